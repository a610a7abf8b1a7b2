package domain

import (
	"slices"
	"time"
)

// StepStatus is the lifecycle state of one plan step during orchestration.
type StepStatus string

const (
	// StatusPending indicates the step is waiting for dependencies or a worker.
	StatusPending StepStatus = "pending"
	// StatusRunning indicates the step is fetching or building.
	StatusRunning StepStatus = "running"
	// StatusSucceeded indicates the step was built and committed.
	StatusSucceeded StepStatus = "succeeded"
	// StatusFailed indicates the step did not produce an artifact.
	StatusFailed StepStatus = "failed"
	// StatusCached indicates the step was served from the artifact cache or a bottle.
	StatusCached StepStatus = "cached"
)

// IsTerminal reports whether no further transition is possible.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCached:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether dependents may proceed.
func (s StepStatus) IsSuccess() bool {
	return s == StatusSucceeded || s == StatusCached
}

// BuildResult is the record of one orchestrated step.
type BuildResult struct {
	Step        InternedString
	Version     string
	Fingerprint Fingerprint
	Status      StepStatus
	Kind        ErrorKind
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
	Artifact    *BuildArtifact
}

// Duration returns how long the step ran, or zero if it never started.
func (r BuildResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Report is the complete outcome of an install request.
type Report struct {
	RequestID string
	Plan      *ResolvedPlan
	Results   []BuildResult
}

// Count returns how many results have the given status.
func (r *Report) Count(status StepStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// OK reports whether every step succeeded or was cached.
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if !res.Status.IsSuccess() {
			return false
		}
	}
	return true
}

// Failures returns the steps that failed on their own, excluding those skipped
// because a dependency failed.
func (r *Report) Failures() []BuildResult {
	var out []BuildResult
	for _, res := range r.Results {
		if res.Status == StatusFailed && res.Kind != KindDependencyFailed {
			out = append(out, res)
		}
	}
	return out
}

// RetryTargets returns the requested packages that did not complete, sorted.
// Re-requesting them rebuilds only the failed subtree because completed steps are cached.
func (r *Report) RetryTargets() []string {
	if r.Plan == nil {
		return nil
	}
	var out []string
	for _, res := range r.Results {
		step, ok := r.Plan.Step(res.Step)
		if !ok || !step.Root || res.Status.IsSuccess() {
			continue
		}
		out = append(out, res.Step.String())
	}
	slices.Sort(out)
	return out
}
