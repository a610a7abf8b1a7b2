package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/internal/adapters/cas"       //nolint:depguard // Wired in app layer
	"go.trai.ch/cellar/internal/adapters/formula"   //nolint:depguard // Wired in app layer
	"go.trai.ch/cellar/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/cellar/internal/adapters/settings"  //nolint:depguard // Wired in app layer
	"go.trai.ch/cellar/internal/adapters/shell"     //nolint:depguard // Wired in app layer
	"go.trai.ch/cellar/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/cellar/internal/engine/orchestrator"
	"go.trai.ch/cellar/internal/engine/resolver"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			settings.NodeID,
			logger.NodeID,
			formula.NodeID,
			cas.NodeID,
			shell.NodeID,
			telemetry.NodeID,
			resolver.NodeID,
			orchestrator.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			settings.NodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	cfg, err := graft.Dep[*settings.Settings](ctx)
	if err != nil {
		return nil, err
	}
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	loader, err := graft.Dep[ports.FormulaLoader](ctx)
	if err != nil {
		return nil, err
	}
	cache, err := graft.Dep[ports.ArtifactCache](ctx)
	if err != nil {
		return nil, err
	}
	builder, err := graft.Dep[ports.Builder](ctx)
	if err != nil {
		return nil, err
	}
	tel, err := graft.Dep[ports.Telemetry](ctx)
	if err != nil {
		return nil, err
	}
	res, err := graft.Dep[*resolver.Resolver](ctx)
	if err != nil {
		return nil, err
	}
	orch, err := graft.Dep[*orchestrator.Orchestrator](ctx)
	if err != nil {
		return nil, err
	}
	return New(loader, res, orch, cache, builder, tel, log, cfg.FormulaDir), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	a, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := graft.Dep[*settings.Settings](ctx)
	if err != nil {
		return nil, err
	}
	return &Components{App: a, Logger: log, Settings: cfg}, nil
}
