package telemetry

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/internal/adapters/settings"
	"go.trai.ch/cellar/internal/adapters/telemetry/progrock"
	"go.trai.ch/cellar/internal/core/ports"
)

// NodeID is the unique identifier for the telemetry Graft node.
const NodeID graft.ID = "adapter.telemetry"

func init() {
	graft.Register(graft.Node[ports.Telemetry]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{settings.NodeID},
		Run: func(ctx context.Context) (ports.Telemetry, error) {
			cfg, err := graft.Dep[*settings.Settings](ctx)
			if err != nil {
				return nil, err
			}
			if !cfg.Progress {
				return Noop{}, nil
			}
			return progrock.New(os.Stderr, cfg.LogLevel == "debug"), nil
		},
	})
}
