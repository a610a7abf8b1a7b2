package cas

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/internal/adapters/fs"
	"go.trai.ch/cellar/internal/adapters/settings"
	"go.trai.ch/cellar/internal/core/ports"
)

// NodeID is the unique identifier for the artifact cache Graft node.
const NodeID graft.ID = "adapter.artifact_cache"

func init() {
	graft.Register(graft.Node[ports.ArtifactCache]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{settings.NodeID, fs.HasherNodeID},
		Run: func(ctx context.Context) (ports.ArtifactCache, error) {
			cfg, err := graft.Dep[*settings.Settings](ctx)
			if err != nil {
				return nil, err
			}
			hasher, err := graft.Dep[ports.Hasher](ctx)
			if err != nil {
				return nil, err
			}
			return NewStore(cfg.CacheDir, hasher)
		},
	})
}
