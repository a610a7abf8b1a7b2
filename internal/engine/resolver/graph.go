package resolver

import (
	"maps"
	"slices"
	"strings"

	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	unvisited = iota
	visiting
	visited
)

// postOrder returns the nodes dependencies-first, or a CyclicDependency error naming the cycle.
func postOrder(nodes map[domain.InternedString]*node) ([]domain.InternedString, error) {
	state := make(map[domain.InternedString]int, len(nodes))
	order := make([]domain.InternedString, 0, len(nodes))
	var path []domain.InternedString

	var visit func(u domain.InternedString) error
	visit = func(u domain.InternedString) error {
		state[u] = visiting
		path = append(path, u)

		for _, e := range nodes[u].edges {
			switch state[e.to] {
			case visiting:
				return buildCycleError(path, e.to)
			case unvisited:
				if err := visit(e.to); err != nil {
					return err
				}
			}
		}

		state[u] = visited
		path = path[:len(path)-1]
		order = append(order, u)
		return nil
	}

	for _, name := range slices.SortedFunc(maps.Keys(nodes), domain.InternedString.Compare) {
		if state[name] == unvisited {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// buildCycleError names the cycle as "a -> b -> a" in the error metadata.
func buildCycleError(path []domain.InternedString, dep domain.InternedString) error {
	start := slices.Index(path, dep)
	names := make([]string, 0, len(path)-start+1)
	for _, n := range path[start:] {
		names = append(names, n.String())
	}
	names = append(names, dep.String())
	cycle := strings.Join(names, " -> ")
	return zerr.With(zerr.Wrap(domain.ErrCyclicDependency, "dependency cycle: "+cycle), "cycle", cycle)
}

// stableOrder is Kahn's algorithm where the ready set is kept sorted by name,
// so an unchanged graph always yields the same order.
func stableOrder(included map[domain.InternedString][]edge) []domain.InternedString {
	inDegree := make(map[domain.InternedString]int, len(included))
	dependents := make(map[domain.InternedString][]domain.InternedString, len(included))
	for name, edges := range included {
		inDegree[name] = len(edges)
		for _, e := range edges {
			dependents[e.to] = append(dependents[e.to], name)
		}
	}

	var ready []domain.InternedString
	for name, degree := range inDegree {
		if degree == 0 {
			ready = insertSorted(ready, name)
		}
	}

	order := make([]domain.InternedString, 0, len(included))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}
	return order
}

func insertSorted(ready []domain.InternedString, name domain.InternedString) []domain.InternedString {
	i, _ := slices.BinarySearchFunc(ready, name, domain.InternedString.Compare)
	return slices.Insert(ready, i, name)
}
