package resolver

import (
	"maps"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/zerr"
)

const requestedBy = "request"

type edge struct {
	to   domain.InternedString
	kind domain.DependencyKind
}

type node struct {
	spec        *domain.PackageSpec
	channel     *domain.Channel
	options     domain.OptionSet
	args        []string
	edges       []edge
	fingerprint digest.Digest
	bottle      *domain.Bottle
	available   bool
	root        bool
}

type requirement struct {
	value bool
	from  string
}

type channelChoice struct {
	id   string
	from string
}

// selectGraph iterates the walk until option assignments stop changing. Edge
// activity in one pass is decided by the options of the previous pass, so a
// requirement discovered late still reaches every edge it gates.
func (r *Resolver) selectGraph(store *domain.SpecStore, req domain.Request) (map[domain.InternedString]*node, error) {
	var prev map[domain.InternedString]domain.OptionSet
	for range store.Len() + 2 {
		nodes, err := r.expand(store, req, prev)
		if err != nil {
			return nil, err
		}
		if converged(prev, nodes) {
			return nodes, nil
		}
		prev = make(map[domain.InternedString]domain.OptionSet, len(nodes))
		for name, n := range nodes {
			prev[name] = n.options
		}
	}
	return nil, zerr.Wrap(domain.ErrOptionConflict, "option requirements do not converge")
}

func converged(prev map[domain.InternedString]domain.OptionSet, nodes map[domain.InternedString]*node) bool {
	if prev == nil || len(prev) != len(nodes) {
		return false
	}
	for name, n := range nodes {
		opts, ok := prev[name]
		if !ok || !maps.Equal(opts, n.options) {
			return false
		}
	}
	return true
}

type walkState struct {
	r        *Resolver
	store    *domain.SpecStore
	prev     map[domain.InternedString]domain.OptionSet
	nodes    map[domain.InternedString]*node
	reqs     map[domain.InternedString]map[string]requirement
	channels map[domain.InternedString]channelChoice
}

func (r *Resolver) expand(
	store *domain.SpecStore,
	req domain.Request,
	prev map[domain.InternedString]domain.OptionSet,
) (map[domain.InternedString]*node, error) {
	w := &walkState{
		r:        r,
		store:    store,
		prev:     prev,
		nodes:    make(map[domain.InternedString]*node),
		reqs:     make(map[domain.InternedString]map[string]requirement),
		channels: make(map[domain.InternedString]channelChoice),
	}

	targets := sortedTargets(req.Targets)
	for _, target := range targets {
		if err := w.chooseChannel(target.Name, target.Channel, requestedBy); err != nil {
			return nil, err
		}
		for _, opt := range slices.Sorted(maps.Keys(target.Options)) {
			if err := w.require(target.Name, opt, target.Options[opt], requestedBy); err != nil {
				return nil, err
			}
		}
	}

	for _, target := range targets {
		if err := w.visit(target.Name, requestedBy); err != nil {
			return nil, err
		}
	}

	for _, name := range slices.SortedFunc(maps.Keys(w.nodes), domain.InternedString.Compare) {
		if err := w.finalize(name); err != nil {
			return nil, err
		}
	}
	return w.nodes, nil
}

func (w *walkState) visit(name domain.InternedString, from string) error {
	if _, seen := w.nodes[name]; seen {
		return nil
	}

	spec, ok := w.store.Get(name)
	if !ok {
		err := zerr.Wrap(domain.ErrUnresolvedDependency, "unknown package")
		return zerr.With(zerr.With(err, "package", name.String()), "required_by", from)
	}
	n := &node{spec: spec}
	w.nodes[name] = n

	opts, ok := w.prev[name]
	if !ok {
		var err error
		if opts, err = effectiveOptions(spec, w.reqs[name]); err != nil {
			return err
		}
	}

	kinds := make(map[domain.InternedString]domain.DependencyKind)
	var order []domain.InternedString
	for _, dep := range spec.Dependencies {
		if !dep.Platform.Matches(w.r.platform) {
			continue
		}
		if dep.Kind.IsConditional() && !opts[dep.ControllingOption()] {
			continue
		}

		if err := w.chooseChannel(dep.Name, dep.Channel, name.String()); err != nil {
			return err
		}
		for _, flag := range dep.Requires {
			opt, enabled, err := domain.ParseOptionFlag(flag)
			if err != nil {
				return err
			}
			if err := w.require(dep.Name, opt, enabled, name.String()); err != nil {
				return err
			}
		}

		prevKind, dup := kinds[dep.Name]
		switch {
		case !dup:
			kinds[dep.Name] = dep.Kind
			order = append(order, dep.Name)
		case prevKind == domain.DependencyBuild:
			// A package needed at runtime too is not a build-only edge.
			kinds[dep.Name] = dep.Kind
		}
	}

	slices.SortFunc(order, domain.InternedString.Compare)
	for _, dep := range order {
		n.edges = append(n.edges, edge{to: dep, kind: kinds[dep]})
	}

	for _, e := range n.edges {
		if err := w.visit(e.to, name.String()); err != nil {
			return err
		}
	}
	return nil
}

func (w *walkState) require(pkg domain.InternedString, opt string, value bool, from string) error {
	byOpt, ok := w.reqs[pkg]
	if !ok {
		byOpt = make(map[string]requirement)
		w.reqs[pkg] = byOpt
	}
	if existing, ok := byOpt[opt]; ok && existing.value != value {
		err := zerr.Wrap(domain.ErrOptionConflict, "mutually exclusive option requirements")
		err = zerr.With(err, "package", pkg.String())
		err = zerr.With(err, "option", opt)
		return zerr.With(err, "required_by", strings.Join([]string{
			existing.from + " (" + domain.FormatOptionFlag(opt, existing.value) + ")",
			from + " (" + domain.FormatOptionFlag(opt, value) + ")",
		}, ", "))
	}
	if _, ok := byOpt[opt]; !ok {
		byOpt[opt] = requirement{value: value, from: from}
	}
	return nil
}

func (w *walkState) chooseChannel(pkg domain.InternedString, id, from string) error {
	if id == "" {
		return nil
	}
	if existing, ok := w.channels[pkg]; ok && existing.id != id {
		err := zerr.Wrap(domain.ErrOptionConflict, "conflicting channel requirements")
		err = zerr.With(err, "package", pkg.String())
		return zerr.With(err, "channel", existing.id+" ("+existing.from+"), "+id+" ("+from+")")
	}
	if _, ok := w.channels[pkg]; !ok {
		w.channels[pkg] = channelChoice{id: id, from: from}
	}
	return nil
}

func (w *walkState) finalize(name domain.InternedString) error {
	n := w.nodes[name]

	choice := w.channels[name]
	ch, ok := n.spec.Channel(choice.id)
	if !ok {
		err := zerr.Wrap(domain.ErrUnresolvedDependency, "unknown channel")
		err = zerr.With(zerr.With(err, "package", name.String()), "channel", choice.id)
		return zerr.With(err, "required_by", choice.from)
	}
	n.channel = ch

	opts, err := effectiveOptions(n.spec, w.reqs[name])
	if err != nil {
		return err
	}
	n.options = opts
	return nil
}

// effectiveOptions assigns every declared option its default, then applies requirements.
func effectiveOptions(spec *domain.PackageSpec, reqs map[string]requirement) (domain.OptionSet, error) {
	declared := spec.DeclaredOptions()
	opts := make(domain.OptionSet, len(declared))
	for _, opt := range declared {
		opts[opt.Name] = opt.Default
	}
	for _, name := range slices.Sorted(maps.Keys(reqs)) {
		if _, ok := opts[name]; !ok {
			err := zerr.Wrap(domain.ErrOptionConflict, "undeclared option")
			err = zerr.With(zerr.With(err, "package", spec.Name.String()), "option", name)
			return nil, zerr.With(err, "required_by", reqs[name].from)
		}
		opts[name] = reqs[name].value
	}
	return opts, nil
}

func sortedTargets(targets []domain.Target) []domain.Target {
	out := slices.Clone(targets)
	slices.SortStableFunc(out, func(a, b domain.Target) int { return a.Name.Compare(b.Name) })
	return out
}
