// Package app implements the application layer for cellar.
package app

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/cellar/internal/engine/orchestrator"
	"go.trai.ch/cellar/internal/engine/resolver"
	"go.trai.ch/zerr"
)

// App ties formula loading, resolution and orchestration together.
type App struct {
	loader       ports.FormulaLoader
	resolver     *resolver.Resolver
	orchestrator *orchestrator.Orchestrator
	cache        ports.ArtifactCache
	builder      ports.Builder
	telemetry    ports.Telemetry
	logger       ports.Logger
	formulaDir   string
	newID        func() string
}

// New creates a new App instance.
func New(
	loader ports.FormulaLoader,
	res *resolver.Resolver,
	orch *orchestrator.Orchestrator,
	cache ports.ArtifactCache,
	builder ports.Builder,
	telemetry ports.Telemetry,
	logger ports.Logger,
	formulaDir string,
) *App {
	return &App{
		loader:       loader,
		resolver:     res,
		orchestrator: orch,
		cache:        cache,
		builder:      builder,
		telemetry:    telemetry,
		logger:       logger,
		formulaDir:   formulaDir,
		newID:        uuid.NewString,
	}
}

// Options overrides configured behavior for a single request.
type Options struct {
	// Jobs bounds concurrent steps when positive.
	Jobs int
	// Platform resolves for another os/arch when set.
	Platform *domain.Platform
	// Flags are option assignments applied to every target that declares the
	// option. Each must be declared by at least one target.
	Flags domain.OptionSet
}

// Plan loads the formulas and resolves req without fetching or building anything.
func (a *App) Plan(_ context.Context, req domain.Request, opts Options) (*domain.ResolvedPlan, error) {
	if len(req.Targets) == 0 {
		return nil, zerr.Wrap(domain.ErrNoTargetsSpecified, "nothing to resolve")
	}

	res := a.resolver
	if opts.Platform != nil {
		res = resolver.New(*opts.Platform, a.cache)
	}

	// Formulas may branch on the platform, so they are evaluated for the one being resolved.
	store, err := a.loader.Load(a.formulaDir, res.Platform())
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load formulas")
	}

	req, err = applyFlags(store, req, opts.Flags)
	if err != nil {
		return nil, err
	}

	plan, err := res.Resolve(store, req)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve request")
	}
	return plan, nil
}

// Install resolves req and executes the plan. The report is returned even when
// some steps failed; the error is then ErrInstallFailed.
func (a *App) Install(ctx context.Context, req domain.Request, opts Options) (*domain.Report, error) {
	requestID := a.newID()

	plan, err := a.Plan(ctx, req, opts)
	if err != nil {
		return nil, zerr.With(err, "request_id", requestID)
	}

	orch := a.orchestrator
	if opts.Jobs > 0 {
		orch = orch.WithJobs(opts.Jobs)
	}

	a.logger.Info("install started",
		"request_id", requestID,
		"targets", targetNames(req.Targets),
		"steps", plan.Len(),
		"platform", plan.Platform.String(),
		"jobs", orch.Jobs(),
	)

	results := orch.Execute(ctx, plan)
	report := &domain.Report{RequestID: requestID, Plan: plan, Results: results}

	if err := a.finish(); err != nil {
		a.logger.Warn("cleanup failed", "request_id", requestID, "error", err.Error())
	}

	a.logger.Info("install finished",
		"request_id", requestID,
		"succeeded", report.Count(domain.StatusSucceeded),
		"cached", report.Count(domain.StatusCached),
		"failed", report.Count(domain.StatusFailed),
	)

	if !report.OK() {
		err := zerr.With(zerr.Wrap(domain.ErrInstallFailed, "some steps did not complete"), "request_id", requestID)
		return report, zerr.With(err, "retry", strings.Join(report.RetryTargets(), " "))
	}
	return report, nil
}

// CacheList returns every committed artifact.
func (a *App) CacheList() ([]domain.BuildArtifact, error) {
	return a.cache.List()
}

// CacheVerify re-hashes every committed payload and reports all mismatches.
func (a *App) CacheVerify() (int, error) {
	artifacts, err := a.cache.List()
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, artifact := range artifacts {
		if err := a.cache.Verify(artifact.Fingerprint); err != nil {
			errs = append(errs, err)
		}
	}
	return len(artifacts), errors.Join(errs...)
}

type cleaner interface {
	Cleanup() error
}

// finish flushes telemetry and removes staged build trees once their payloads are committed.
func (a *App) finish() error {
	var errs []error
	if c, ok := a.builder.(cleaner); ok {
		errs = append(errs, c.Cleanup())
	}
	errs = append(errs, a.telemetry.Close())
	return errors.Join(errs...)
}

// applyFlags copies each flag onto the targets declaring that option. Options
// set on a target itself take precedence.
func applyFlags(store *domain.SpecStore, req domain.Request, flags domain.OptionSet) (domain.Request, error) {
	if len(flags) == 0 {
		return req, nil
	}

	out := domain.Request{Targets: make([]domain.Target, 0, len(req.Targets))}
	used := make(map[string]bool, len(flags))
	for _, target := range req.Targets {
		target.Options = target.Options.Clone()
		if spec, ok := store.Get(target.Name); ok {
			for name, enabled := range flags {
				if _, declared := spec.Option(name); !declared {
					continue
				}
				used[name] = true
				if _, set := target.Options[name]; !set {
					target.Options[name] = enabled
				}
			}
		}
		out.Targets = append(out.Targets, target)
	}

	for _, name := range slices.Sorted(maps.Keys(flags)) {
		if !used[name] {
			err := zerr.Wrap(domain.ErrOptionConflict, "no requested package declares this option")
			err = zerr.With(err, "option", domain.FormatOptionFlag(name, flags[name]))
			return domain.Request{}, zerr.With(err, "targets", strings.Join(targetNames(req.Targets), " "))
		}
	}
	return out, nil
}

func targetNames(targets []domain.Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Name.String())
	}
	return out
}
