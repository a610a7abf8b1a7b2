package orchestrator

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/internal/adapters/cas"       //nolint:depguard // Wired in engine wiring
	"go.trai.ch/cellar/internal/adapters/fetch"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/cellar/internal/adapters/logger"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/cellar/internal/adapters/settings"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/cellar/internal/adapters/shell"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/cellar/internal/adapters/telemetry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/cellar/internal/core/ports"
)

// NodeID is the unique identifier for the orchestrator Graft node.
const NodeID graft.ID = "engine.orchestrator"

func init() {
	graft.Register(graft.Node[*Orchestrator]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			settings.NodeID,
			logger.NodeID,
			fetch.NodeID,
			shell.NodeID,
			cas.NodeID,
			telemetry.NodeID,
		},
		Run: func(ctx context.Context) (*Orchestrator, error) {
			cfg, err := graft.Dep[*settings.Settings](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			fetcher, err := graft.Dep[ports.Fetcher](ctx)
			if err != nil {
				return nil, err
			}
			builder, err := graft.Dep[ports.Builder](ctx)
			if err != nil {
				return nil, err
			}
			cache, err := graft.Dep[ports.ArtifactCache](ctx)
			if err != nil {
				return nil, err
			}
			tel, err := graft.Dep[ports.Telemetry](ctx)
			if err != nil {
				return nil, err
			}
			return New(fetcher, builder, cache, tel, log, cfg.Jobs), nil
		},
	})
}
