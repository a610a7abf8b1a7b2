package logger

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/internal/adapters/settings"
	"go.trai.ch/cellar/internal/core/ports"
)

// NodeID is the unique identifier for the logger Graft node.
const NodeID graft.ID = "adapter.logger"

func init() {
	graft.Register(graft.Node[ports.Logger]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{settings.NodeID},
		Run: func(ctx context.Context) (ports.Logger, error) {
			cfg, err := graft.Dep[*settings.Settings](ctx)
			if err != nil {
				return nil, err
			}
			return New(cfg.LogLevel), nil
		},
	})
}
