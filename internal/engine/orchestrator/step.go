package orchestrator

import (
	"context"
	"errors"

	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// runStep drives one step through cache check, then bottle or fetch and build, then commit.
func (o *Orchestrator) runStep(
	ctx context.Context,
	step domain.PlanStep,
	deps map[string]domain.BuildArtifact,
) domain.BuildResult {
	res := domain.BuildResult{
		Step:        step.Name,
		Version:     step.Version,
		Fingerprint: step.Fingerprint,
		StartedAt:   o.now(),
	}

	ctx, vertex := o.telemetry.Record(ctx, step.Name.String(), ports.WithVertexID(step.Fingerprint.String()))

	artifact, cached, err := o.produce(ctx, vertex, step, deps)
	res.FinishedAt = o.now()

	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, domain.ErrCancelled) {
			err = errors.Join(domain.ErrCancelled, err)
		}
		err = zerr.With(zerr.Wrap(err, "step failed"), "package", step.Name.String())
		res.Status = domain.StatusFailed
		res.Kind = domain.KindOf(err)
		res.Err = err
		vertex.Complete(err)
		o.logger.Error(err)
		return res
	}

	res.Artifact = &artifact
	res.Status = domain.StatusSucceeded
	if cached {
		res.Status = domain.StatusCached
		vertex.Cached()
	}
	vertex.Complete(nil)
	o.logger.Info("step finished",
		"package", step.Name.String(),
		"version", step.Version,
		"status", string(res.Status),
		"duration", res.Duration().String(),
	)
	return res
}

func (o *Orchestrator) produce(
	ctx context.Context,
	vertex ports.Vertex,
	step domain.PlanStep,
	deps map[string]domain.BuildArtifact,
) (domain.BuildArtifact, bool, error) {
	existing, err := o.cache.Lookup(step.Fingerprint)
	if err != nil {
		return domain.BuildArtifact{}, false, zerr.Wrap(err, "artifact lookup failed")
	}
	if existing != nil {
		vertex.Log(domain.LogLevelDebug, "artifact found in cache")
		return *existing, true, nil
	}

	if step.Bottle != nil {
		artifact, err := o.pour(ctx, vertex, step)
		return artifact, err == nil, err
	}

	req, err := o.fetchInputs(ctx, step, deps)
	if err != nil {
		return domain.BuildArtifact{}, false, err
	}

	vertex.Log(domain.LogLevelInfo, "building "+step.Name.String()+" "+step.Version)
	built, err := o.builder.Build(ctx, req)
	if err != nil {
		if !errors.Is(err, domain.ErrBuildFailed) {
			err = errors.Join(domain.ErrBuildFailed, err)
		}
		return domain.BuildArtifact{}, false, err
	}
	built.Package = step.Name.String()
	built.Version = step.Version
	built.Channel = step.Channel
	built.Origin = domain.OriginBuilt

	committed, err := o.cache.Commit(step.Fingerprint, built)
	if err != nil {
		return domain.BuildArtifact{}, false, zerr.Wrap(err, "commit failed")
	}
	return committed, false, nil
}

// pour fetches the platform bottle and commits it under the step fingerprint in place of a build.
func (o *Orchestrator) pour(ctx context.Context, vertex ports.Vertex, step domain.PlanStep) (domain.BuildArtifact, error) {
	vertex.Log(domain.LogLevelInfo, "pouring bottle for "+step.Bottle.Platform.String())

	blob, err := o.fetcher.Fetch(ctx, step.Bottle.Source.Locator, step.Bottle.Source.Checksum)
	if err != nil {
		return domain.BuildArtifact{}, zerr.With(zerr.Wrap(err, "bottle fetch failed"), "platform", step.Bottle.Platform.String())
	}

	committed, err := o.cache.Commit(step.Fingerprint, domain.BuildArtifact{
		Package: step.Name.String(),
		Version: step.Version,
		Channel: step.Channel,
		Origin:  domain.OriginBottle,
		Path:    blob.Path,
	})
	if err != nil {
		return domain.BuildArtifact{}, zerr.Wrap(err, "commit failed")
	}
	return committed, nil
}

// fetchInputs fetches the source, patches and resources of step concurrently.
func (o *Orchestrator) fetchInputs(
	ctx context.Context,
	step domain.PlanStep,
	deps map[string]domain.BuildArtifact,
) (domain.BuildRequest, error) {
	req := domain.BuildRequest{
		Step:         step,
		Patches:      make([]domain.LocalBlob, len(step.Patches)),
		Resources:    make(map[string]domain.LocalBlob, len(step.Resources)),
		Dependencies: deps,
	}
	resources := make([]domain.LocalBlob, len(step.Resources))

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(src domain.Source, dst *domain.LocalBlob, attrs ...string) {
		g.Go(func() error {
			blob, err := o.fetcher.Fetch(gctx, src.Locator, src.Checksum)
			if err != nil {
				err = zerr.With(err, "url", src.Locator.URL)
				for i := 0; i+1 < len(attrs); i += 2 {
					err = zerr.With(err, attrs[i], attrs[i+1])
				}
				return err
			}
			*dst = blob
			return nil
		})
	}

	fetch(step.Source, &req.Source)
	for i, patch := range step.Patches {
		fetch(patch.Source, &req.Patches[i], "input", "patch")
	}
	for i, res := range step.Resources {
		fetch(res.Source, &resources[i], "resource", res.Name)
	}

	if err := g.Wait(); err != nil {
		return domain.BuildRequest{}, err
	}
	for i, res := range step.Resources {
		req.Resources[res.Name] = resources[i]
	}
	return req, nil
}
