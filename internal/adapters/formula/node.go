package formula

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/internal/adapters/logger"
	"go.trai.ch/cellar/internal/core/ports"
)

// NodeID is the unique identifier for the formula loader Graft node.
const NodeID graft.ID = "adapter.formula_loader"

func init() {
	graft.Register(graft.Node[ports.FormulaLoader]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.FormulaLoader, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewLoader(log), nil
		},
	})
}
