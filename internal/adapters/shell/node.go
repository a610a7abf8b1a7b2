package shell

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/internal/adapters/fs"
	"go.trai.ch/cellar/internal/adapters/logger"
	"go.trai.ch/cellar/internal/adapters/settings"
	"go.trai.ch/cellar/internal/core/ports"
)

// NodeID is the unique identifier for the builder Graft node.
const NodeID graft.ID = "adapter.builder"

func init() {
	graft.Register(graft.Node[ports.Builder]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{settings.NodeID, logger.NodeID, fs.HasherNodeID},
		Run: func(ctx context.Context) (ports.Builder, error) {
			cfg, err := graft.Dep[*settings.Settings](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			hasher, err := graft.Dep[ports.Hasher](ctx)
			if err != nil {
				return nil, err
			}
			return NewBuilder(log, hasher, cfg.StagingDir, os.Getenv("PATH")), nil
		},
	})
}
