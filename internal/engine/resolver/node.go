package resolver

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/internal/adapters/cas"      //nolint:depguard // Wired in engine wiring
	"go.trai.ch/cellar/internal/adapters/settings" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/cellar/internal/core/ports"
)

// NodeID is the unique identifier for the resolver Graft node.
const NodeID graft.ID = "engine.resolver"

func init() {
	graft.Register(graft.Node[*Resolver]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{settings.NodeID, cas.NodeID},
		Run: func(ctx context.Context) (*Resolver, error) {
			cfg, err := graft.Dep[*settings.Settings](ctx)
			if err != nil {
				return nil, err
			}
			cache, err := graft.Dep[ports.ArtifactCache](ctx)
			if err != nil {
				return nil, err
			}
			platform, err := cfg.TargetPlatform()
			if err != nil {
				return nil, err
			}
			return New(platform, cache), nil
		},
	})
}
