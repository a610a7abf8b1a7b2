package fs

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/cellar/internal/core/ports"
)

const (
	// WalkerNodeID is the unique identifier for the walker Graft node.
	WalkerNodeID graft.ID = "adapter.fs.walker"
	// HasherNodeID is the unique identifier for the hasher Graft node.
	HasherNodeID graft.ID = "adapter.fs.hasher"
)

// ignoredNames are files that never belong in an installed prefix manifest.
var ignoredNames = []string{".DS_Store"}

func init() {
	graft.Register(graft.Node[*Walker]{
		ID:        WalkerNodeID,
		Cacheable: true,
		Run:       runWalkerNode,
	})

	graft.Register(graft.Node[ports.Hasher]{
		ID:        HasherNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{WalkerNodeID},
		Run:       runHasherNode,
	})
}

func runWalkerNode(_ context.Context) (*Walker, error) {
	return NewWalker(ignoredNames...), nil
}

func runHasherNode(ctx context.Context) (ports.Hasher, error) {
	walker, err := graft.Dep[*Walker](ctx)
	if err != nil {
		return nil, err
	}
	return NewHasher(walker), nil
}
