// Package resolver turns install requests into deterministic, topologically ordered build plans.
package resolver

import (
	"maps"
	"slices"

	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
)

// Resolver walks a spec store and produces a ResolvedPlan.
// It never fetches or builds; the artifact index is only read.
type Resolver struct {
	platform domain.Platform
	index    ports.ArtifactIndex
}

// New creates a Resolver for platform. index may be nil, in which case every
// node is treated as needing a build unless it has a bottle.
func New(platform domain.Platform, index ports.ArtifactIndex) *Resolver {
	return &Resolver{
		platform: platform,
		index:    index,
	}
}

// Platform returns the platform plans are resolved for.
func (r *Resolver) Platform() domain.Platform {
	return r.platform
}

// Resolve computes the plan for req. On any error no plan is returned.
func (r *Resolver) Resolve(store *domain.SpecStore, req domain.Request) (*domain.ResolvedPlan, error) {
	if len(req.Targets) == 0 {
		return nil, domain.ErrNoTargetsSpecified
	}

	// 1. Select the active subgraph under a stable option assignment.
	nodes, err := r.selectGraph(store, req)
	if err != nil {
		return nil, err
	}

	// 2. Reject cycles and order nodes dependencies-first.
	order, err := postOrder(nodes)
	if err != nil {
		return nil, err
	}

	// 3. Fingerprint the full active closure, build edges included.
	for _, name := range order {
		r.fingerprint(nodes, name)
	}

	// 4. Match bottles against the configuration they were built for.
	r.assignBottles(store, nodes)

	// 5. Drop build edges of nodes that will be served from the cache or a bottle.
	included, err := r.prune(nodes, req)
	if err != nil {
		return nil, err
	}

	// 6. Linearize with a lexicographic tie-break.
	steps := make([]domain.PlanStep, 0, len(included))
	for _, name := range stableOrder(included) {
		steps = append(steps, r.planStep(nodes, name, included[name]))
	}

	return domain.NewResolvedPlan(r.platform, steps), nil
}

func (r *Resolver) fingerprint(nodes map[domain.InternedString]*node, name domain.InternedString) {
	n := nodes[name]
	deps := make([]domain.DepRef, 0, len(n.edges))
	for _, e := range n.edges {
		deps = append(deps, domain.DepRef{
			Name:        e.to,
			Kind:        e.kind,
			Fingerprint: nodes[e.to].fingerprint,
		})
	}

	n.args = buildArgs(n.spec, n.options)
	n.fingerprint = domain.ComputeFingerprint(domain.FingerprintInput{
		Name:         n.spec.Name,
		Channel:      n.channel.ID,
		Version:      n.channel.Version,
		Source:       n.channel.Source,
		Patches:      n.channel.Patches,
		Resources:    n.channel.Resources,
		Options:      n.options,
		Args:         n.args,
		Env:          n.spec.Env,
		Install:      n.spec.Install,
		Platform:     r.platform,
		Dependencies: deps,
	})
}

// assignBottles keeps a node's bottle only when the node resolves exactly as it
// does when installed alone with default options, the configuration bottles
// are built from. Any other configuration has a different fingerprint and is
// built from source.
func (r *Resolver) assignBottles(store *domain.SpecStore, nodes map[domain.InternedString]*node) {
	for _, name := range slices.SortedFunc(maps.Keys(nodes), domain.InternedString.Compare) {
		n := nodes[name]
		bottle := n.channel.BottleFor(r.platform)
		if bottle == nil {
			continue
		}
		fp, err := r.standaloneFingerprint(store, name, n.channel.ID)
		if err != nil || fp != n.fingerprint {
			continue
		}
		n.bottle = bottle
	}
}

func (r *Resolver) standaloneFingerprint(
	store *domain.SpecStore,
	name domain.InternedString,
	channel string,
) (domain.Fingerprint, error) {
	req := domain.Request{Targets: []domain.Target{{Name: name, Channel: channel}}}
	nodes, err := r.selectGraph(store, req)
	if err != nil {
		return "", err
	}
	order, err := postOrder(nodes)
	if err != nil {
		return "", err
	}
	for _, dep := range order {
		r.fingerprint(nodes, dep)
	}
	return nodes[name].fingerprint, nil
}

// prune walks from the requested roots and keeps build edges only for nodes that must be built.
func (r *Resolver) prune(
	nodes map[domain.InternedString]*node,
	req domain.Request,
) (map[domain.InternedString][]edge, error) {
	included := make(map[domain.InternedString][]edge, len(nodes))

	var walk func(name domain.InternedString) error
	walk = func(name domain.InternedString) error {
		if _, seen := included[name]; seen {
			return nil
		}
		n := nodes[name]

		served, err := r.served(n)
		if err != nil {
			return err
		}

		kept := make([]edge, 0, len(n.edges))
		for _, e := range n.edges {
			if served && e.kind == domain.DependencyBuild {
				continue
			}
			kept = append(kept, e)
		}
		included[name] = kept

		for _, e := range kept {
			if err := walk(e.to); err != nil {
				return err
			}
		}
		return nil
	}

	for _, target := range sortedTargets(req.Targets) {
		nodes[target.Name].root = true
		if err := walk(target.Name); err != nil {
			return nil, err
		}
	}
	return included, nil
}

// served reports whether n will be satisfied without invoking the builder.
func (r *Resolver) served(n *node) (bool, error) {
	if r.index != nil {
		artifact, err := r.index.Lookup(n.fingerprint)
		if err != nil {
			return false, zerr.With(zerr.Wrap(err, "artifact lookup failed"), "package", n.spec.Name.String())
		}
		n.available = artifact != nil
	}
	return n.available || n.bottle != nil, nil
}

func (r *Resolver) planStep(nodes map[domain.InternedString]*node, name domain.InternedString, kept []edge) domain.PlanStep {
	n := nodes[name]
	deps := make([]domain.DepRef, 0, len(kept))
	for _, e := range kept {
		deps = append(deps, domain.DepRef{Name: e.to, Kind: e.kind, Fingerprint: nodes[e.to].fingerprint})
	}

	step := domain.PlanStep{
		Name:         n.spec.Name,
		Channel:      n.channel.ID,
		Version:      n.channel.Version,
		Options:      n.options.Clone(),
		Args:         slices.Clone(n.args),
		Env:          maps.Clone(n.spec.Env),
		Install:      slices.Clone(n.spec.Install),
		Source:       n.channel.Source,
		Patches:      slices.Clone(n.channel.Patches),
		Resources:    slices.Clone(n.channel.Resources),
		Bottle:       n.bottle,
		Dependencies: deps,
		Fingerprint:  n.fingerprint,
		Root:         n.root,
		Available:    n.available,
	}
	return step
}

// buildArgs emits the arguments of every declared option in name order.
func buildArgs(spec *domain.PackageSpec, opts domain.OptionSet) []string {
	var args []string
	for _, opt := range spec.DeclaredOptions() {
		if opts[opt.Name] {
			args = append(args, opt.EnabledArgs...)
		} else {
			args = append(args, opt.DisabledArgs...)
		}
	}
	return args
}
