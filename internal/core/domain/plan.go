package domain

import (
	"iter"

	"github.com/opencontainers/go-digest"
)

// Fingerprint is the content-derived key of a (spec, options, dependency closure) combination.
type Fingerprint = digest.Digest

// Target is one package requested for installation.
type Target struct {
	Name    InternedString
	Channel string
	Options OptionSet
}

// Request is an install or plan request.
type Request struct {
	Targets []Target
}

// DepRef is a resolved reference from a plan step to one of its dependencies.
type DepRef struct {
	Name        InternedString
	Kind        DependencyKind
	Fingerprint Fingerprint
}

// PlanStep is one package build/install action.
type PlanStep struct {
	Name    InternedString
	Channel string
	Version string
	// Options holds the effective value of every declared option.
	Options OptionSet
	// Args are the build arguments derived from Options.
	Args      []string
	Env       map[string]string
	Install   []string
	Source    Source
	Patches   []Patch
	Resources []Resource
	Bottle    *Bottle
	// Dependencies lists the steps this step waits on, sorted by name.
	Dependencies []DepRef
	Fingerprint  Fingerprint
	// Root marks steps that were requested directly.
	Root bool
	// Available is set when the artifact cache already held the fingerprint at resolve time.
	Available bool
}

// ResolvedPlan is a topologically ordered sequence of plan steps.
type ResolvedPlan struct {
	Platform Platform
	Steps    []PlanStep

	index      map[InternedString]int
	dependents map[InternedString][]InternedString
}

// NewResolvedPlan indexes steps, which must already be in topological order.
func NewResolvedPlan(platform Platform, steps []PlanStep) *ResolvedPlan {
	p := &ResolvedPlan{
		Platform:   platform,
		Steps:      steps,
		index:      make(map[InternedString]int, len(steps)),
		dependents: make(map[InternedString][]InternedString),
	}
	for i, step := range steps {
		p.index[step.Name] = i
		for _, dep := range step.Dependencies {
			p.dependents[dep.Name] = append(p.dependents[dep.Name], step.Name)
		}
	}
	return p
}

// Len returns the number of steps.
func (p *ResolvedPlan) Len() int {
	return len(p.Steps)
}

// Step returns the step named name.
func (p *ResolvedPlan) Step(name InternedString) (*PlanStep, bool) {
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return &p.Steps[i], true
}

// IndexOf returns the position of a step in the plan, or -1.
func (p *ResolvedPlan) IndexOf(name InternedString) int {
	i, ok := p.index[name]
	if !ok {
		return -1
	}
	return i
}

// Dependents returns the steps that depend directly on name, in plan order.
func (p *ResolvedPlan) Dependents(name InternedString) []InternedString {
	return p.dependents[name]
}

// Walk yields the steps in plan order.
func (p *ResolvedPlan) Walk() iter.Seq[PlanStep] {
	return func(yield func(PlanStep) bool) {
		for _, step := range p.Steps {
			if !yield(step) {
				return
			}
		}
	}
}
