// Package orchestrator executes resolved plans: it checks the artifact cache,
// fetches sources, invokes the builder and commits artifacts, running
// independent steps concurrently.
package orchestrator

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
)

// Orchestrator runs plan steps against the fetcher, builder and artifact cache.
type Orchestrator struct {
	fetcher   ports.Fetcher
	builder   ports.Builder
	cache     ports.ArtifactCache
	telemetry ports.Telemetry
	logger    ports.Logger
	jobs      int
	now       func() time.Time
}

// New creates an Orchestrator running at most jobs steps at once.
func New(
	fetcher ports.Fetcher,
	builder ports.Builder,
	cache ports.ArtifactCache,
	telemetry ports.Telemetry,
	logger ports.Logger,
	jobs int,
) *Orchestrator {
	return &Orchestrator{
		fetcher:   fetcher,
		builder:   builder,
		cache:     cache,
		telemetry: telemetry,
		logger:    logger,
		jobs:      max(jobs, 1),
		now:       time.Now,
	}
}

// Jobs returns the concurrency bound.
func (o *Orchestrator) Jobs() int {
	return o.jobs
}

// WithJobs returns a copy of o bounded to jobs concurrent steps.
func (o *Orchestrator) WithJobs(jobs int) *Orchestrator {
	c := *o
	c.jobs = max(jobs, 1)
	return &c
}

// Execute runs plan and returns one result per step, in plan order. It never
// stops early on failure: dependents of a failed step fail with
// DependencyFailed and independent steps keep running. After ctx is cancelled
// no new step starts and unstarted steps fail with Cancelled.
func (o *Orchestrator) Execute(ctx context.Context, plan *domain.ResolvedPlan) []domain.BuildResult {
	state := o.newRunState(ctx, plan)

	done := ctx.Done()
	for !state.isDone() {
		state.schedule()

		if state.isDone() {
			break
		}
		if ctx.Err() != nil && state.active == 0 {
			break
		}

		select {
		case res := <-state.resultsCh:
			state.handleResult(res)
		case <-done:
			// Keep draining in-flight steps without spinning.
			done = nil
		}
	}

	state.finish()
	return state.results
}

type stepResult struct {
	index  int
	result domain.BuildResult
}

type runState struct {
	o         *Orchestrator
	ctx       context.Context
	plan      *domain.ResolvedPlan
	inDegree  []int
	ready     []int
	active    int
	resultsCh chan stepResult
	results   []domain.BuildResult
	artifacts map[domain.InternedString]domain.BuildArtifact
}

func (o *Orchestrator) newRunState(ctx context.Context, plan *domain.ResolvedPlan) *runState {
	n := plan.Len()
	state := &runState{
		o:         o,
		ctx:       ctx,
		plan:      plan,
		inDegree:  make([]int, n),
		resultsCh: make(chan stepResult, o.jobs),
		results:   make([]domain.BuildResult, n),
		artifacts: make(map[domain.InternedString]domain.BuildArtifact, n),
	}

	for i, step := range plan.Steps {
		state.results[i] = domain.BuildResult{
			Step:        step.Name,
			Version:     step.Version,
			Fingerprint: step.Fingerprint,
			Status:      domain.StatusPending,
		}
		state.inDegree[i] = len(step.Dependencies)
		if state.inDegree[i] == 0 {
			state.ready = append(state.ready, i)
		}
	}
	return state
}

func (state *runState) isDone() bool {
	return state.active == 0 && len(state.ready) == 0
}

// schedule starts ready steps in plan order while workers are free.
func (state *runState) schedule() {
	for len(state.ready) > 0 && state.active < state.o.jobs && state.ctx.Err() == nil {
		i := state.ready[0]
		state.ready = state.ready[1:]

		step := state.plan.Steps[i]
		deps := make(map[string]domain.BuildArtifact, len(step.Dependencies))
		for _, dep := range step.Dependencies {
			deps[dep.Name.String()] = state.artifacts[dep.Name]
		}

		state.active++
		state.results[i].Status = domain.StatusRunning
		go func() {
			state.resultsCh <- stepResult{index: i, result: state.o.runStep(state.ctx, step, deps)}
		}()
	}
}

func (state *runState) handleResult(res stepResult) {
	state.active--
	state.results[res.index] = res.result

	step := state.plan.Steps[res.index]
	if !res.result.Status.IsSuccess() {
		state.failDependents(step.Name)
		return
	}

	state.artifacts[step.Name] = *res.result.Artifact
	for _, dependent := range state.plan.Dependents(step.Name) {
		j := state.plan.IndexOf(dependent)
		state.inDegree[j]--
		if state.inDegree[j] == 0 && state.results[j].Status == domain.StatusPending {
			state.ready = insertSorted(state.ready, j)
		}
	}
}

// failDependents marks every transitive dependent of name as DependencyFailed.
func (state *runState) failDependents(name domain.InternedString) {
	for _, dependent := range state.plan.Dependents(name) {
		j := state.plan.IndexOf(dependent)
		if state.results[j].Status != domain.StatusPending {
			continue
		}
		err := zerr.Wrap(domain.ErrDependencyFailed, "dependency failed")
		err = zerr.With(zerr.With(err, "package", dependent.String()), "dependency", name.String())
		state.results[j].Status = domain.StatusFailed
		state.results[j].Kind = domain.KindDependencyFailed
		state.results[j].Err = err
		state.failDependents(dependent)
	}
}

// finish fails every step that never started.
func (state *runState) finish() {
	for i := range state.results {
		if state.results[i].Status.IsTerminal() {
			continue
		}
		err := zerr.Wrap(domain.ErrCancelled, "step not started")
		if state.ctx.Err() != nil {
			err = zerr.Wrap(errors.Join(domain.ErrCancelled, state.ctx.Err()), "step not started")
		}
		state.results[i].Status = domain.StatusFailed
		state.results[i].Kind = domain.KindCancelled
		state.results[i].Err = zerr.With(err, "package", state.results[i].Step.String())
	}
}

func insertSorted(ready []int, i int) []int {
	at, _ := slices.BinarySearch(ready, i)
	return slices.Insert(ready, at, i)
}
