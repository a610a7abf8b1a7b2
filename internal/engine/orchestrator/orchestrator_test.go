package orchestrator_test

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/cellar/internal/core/ports/mocks"
	"go.trai.ch/cellar/internal/engine/orchestrator"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	fetcher *mocks.MockFetcher
	builder *mocks.MockBuilder
	cache   *mocks.MockArtifactCache
	orch    *orchestrator.Orchestrator
}

func newFixture(t *testing.T, jobs int) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Error(gomock.Any()).AnyTimes()

	vertex := mocks.NewMockVertex(ctrl)
	vertex.EXPECT().Log(gomock.Any(), gomock.Any()).AnyTimes()
	vertex.EXPECT().Cached().AnyTimes()
	vertex.EXPECT().Complete(gomock.Any()).AnyTimes()

	tel := mocks.NewMockTelemetry(ctrl)
	tel.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ ...ports.VertexOption) (context.Context, ports.Vertex) {
			return ports.ContextWithVertex(ctx, vertex), vertex
		}).AnyTimes()

	f := &fixture{
		fetcher: mocks.NewMockFetcher(ctrl),
		builder: mocks.NewMockBuilder(ctrl),
		cache:   mocks.NewMockArtifactCache(ctrl),
	}
	f.orch = orchestrator.New(f.fetcher, f.builder, f.cache, tel, log, jobs)
	return f
}

// expectMisses makes every lookup miss, every fetch succeed and every commit echo its artifact.
func (f *fixture) expectMisses() {
	f.cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil).AnyTimes()
	f.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, loc domain.Locator, d digest.Digest) (domain.LocalBlob, error) {
			return domain.LocalBlob{Path: "/downloads/" + path.Base(loc.URL), Digest: d, URL: loc.URL}, nil
		}).AnyTimes()
	f.cache.EXPECT().Commit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(fp domain.Fingerprint, a domain.BuildArtifact) (domain.BuildArtifact, error) {
			a.Fingerprint = fp
			a.Path = "/cache/" + a.Package
			return a, nil
		}).AnyTimes()
}

func step(name string, deps ...string) domain.PlanStep {
	s := domain.PlanStep{
		Name:        domain.NewInternedString(name),
		Channel:     "stable",
		Version:     "1.0",
		Fingerprint: digest.FromString(name),
		Source: domain.Source{
			Locator:  domain.Locator{URL: "https://example.test/" + name + ".tar.gz"},
			Checksum: digest.FromString(name + "-src"),
		},
	}
	for _, d := range deps {
		s.Dependencies = append(s.Dependencies, domain.DepRef{
			Name:        domain.NewInternedString(d),
			Kind:        domain.DependencyRuntime,
			Fingerprint: digest.FromString(d),
		})
	}
	return s
}

func plan(steps ...domain.PlanStep) *domain.ResolvedPlan {
	return domain.NewResolvedPlan(domain.Platform{OS: "linux", Arch: "amd64"}, steps)
}

func built(req domain.BuildRequest) domain.BuildArtifact {
	return domain.BuildArtifact{Path: "/staging/" + req.Step.Name.String(), ContentDigest: digest.FromString(req.Step.Name.String())}
}

func statuses(results []domain.BuildResult) map[string]domain.StepStatus {
	out := make(map[string]domain.StepStatus, len(results))
	for _, r := range results {
		out[r.Step.String()] = r.Status
	}
	return out
}

func names(results []domain.BuildResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Step.String())
	}
	return out
}

func TestExecute_BuildsInDependencyOrder(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t, 4)
		f.expectMisses()

		var mu sync.Mutex
		var order []string
		requests := make(map[string]domain.BuildRequest)
		f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req domain.BuildRequest) (domain.BuildArtifact, error) {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, req.Step.Name.String())
				requests[req.Step.Name.String()] = req
				return built(req), nil
			}).Times(2)

		results := f.orch.Execute(context.Background(), plan(step("zlib"), step("libpng", "zlib")))

		assert.Equal(t, []string{"zlib", "libpng"}, names(results))
		assert.Equal(t, []string{"zlib", "libpng"}, order)
		for _, r := range results {
			assert.Equal(t, domain.StatusSucceeded, r.Status)
			require.NotNil(t, r.Artifact)
			assert.Equal(t, domain.OriginBuilt, r.Artifact.Origin)
			assert.NoError(t, r.Err)
		}

		req := requests["libpng"]
		assert.Equal(t, "/cache/zlib", req.Dependencies["zlib"].Path)
		assert.Equal(t, "/downloads/libpng.tar.gz", req.Source.Path)
	})
}

func TestExecute_CachedStepsSkipBuild(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t, 2)
		f.cache.EXPECT().Lookup(gomock.Any()).DoAndReturn(func(fp domain.Fingerprint) (*domain.BuildArtifact, error) {
			return &domain.BuildArtifact{Fingerprint: fp, Path: "/cache/" + fp.Encoded()}, nil
		}).Times(2)
		f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).Times(0)
		f.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		results := f.orch.Execute(context.Background(), plan(step("zlib"), step("libpng", "zlib")))

		assert.Equal(t, map[string]domain.StepStatus{
			"zlib":   domain.StatusCached,
			"libpng": domain.StatusCached,
		}, statuses(results))
	})
}

func TestExecute_FailurePropagatesOnlyToDependents(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t, 4)
		f.expectMisses()
		f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req domain.BuildRequest) (domain.BuildArtifact, error) {
				switch req.Step.Name.String() {
				case "b":
					return domain.BuildArtifact{}, errors.New("make: *** [all] Error 2")
				case "a":
					t.Error("a must not be built")
				}
				return built(req), nil
			}).Times(3)

		// Diamond: a needs b and c, both need d; e is independent.
		results := f.orch.Execute(context.Background(), plan(
			step("d"), step("b", "d"), step("c", "d"), step("e"), step("a", "b", "c"),
		))

		assert.Equal(t, []string{"d", "b", "c", "e", "a"}, names(results))
		assert.Equal(t, map[string]domain.StepStatus{
			"a": domain.StatusFailed,
			"b": domain.StatusFailed,
			"c": domain.StatusSucceeded,
			"d": domain.StatusSucceeded,
			"e": domain.StatusSucceeded,
		}, statuses(results))

		assert.Equal(t, domain.KindBuildFailed, results[1].Kind)
		assert.ErrorIs(t, results[1].Err, domain.ErrBuildFailed)
		assert.Equal(t, domain.KindDependencyFailed, results[4].Kind)
		assert.ErrorIs(t, results[4].Err, domain.ErrDependencyFailed)

		report := &domain.Report{Results: results}
		require.Len(t, report.Failures(), 1)
		assert.Equal(t, "b", report.Failures()[0].Step.String())
	})
}

func TestExecute_TransitiveDependencyFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t, 2)
		f.cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil).AnyTimes()
		mismatch := zerr.With(zerr.Wrap(domain.ErrIntegrityMismatch, "downloaded content does not match checksum"), "url", "x")
		f.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.LocalBlob{}, errors.Join(domain.ErrFetchFailed, mismatch))
		f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).Times(0)

		results := f.orch.Execute(context.Background(), plan(step("a"), step("b", "a"), step("c", "b")))

		assert.Equal(t, domain.KindIntegrityMismatch, results[0].Kind)
		for _, r := range results[1:] {
			assert.Equal(t, domain.StatusFailed, r.Status)
			assert.Equal(t, domain.KindDependencyFailed, r.Kind)
		}

		var zErr *zerr.Error
		require.True(t, errors.As(results[2].Err, &zErr))
		assert.Equal(t, "b", zErr.Metadata()["dependency"])
	})
}

func TestExecute_BoundedConcurrency(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t, 2)
		f.expectMisses()

		var running, peak, started atomic.Int32
		gate := make(chan struct{})
		f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req domain.BuildRequest) (domain.BuildArtifact, error) {
				n := running.Add(1)
				started.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-gate
				running.Add(-1)
				return built(req), nil
			}).Times(4)

		done := make(chan []domain.BuildResult)
		go func() {
			done <- f.orch.Execute(context.Background(), plan(step("a"), step("b"), step("c"), step("d")))
		}()

		synctest.Wait()
		assert.Equal(t, int32(2), started.Load())

		close(gate)
		results := <-done

		assert.Equal(t, int32(2), peak.Load())
		for _, r := range results {
			assert.Equal(t, domain.StatusSucceeded, r.Status)
		}
	})
}

func TestExecute_Cancellation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t, 1)
		f.expectMisses()
		f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, _ domain.BuildRequest) (domain.BuildArtifact, error) {
				<-ctx.Done()
				return domain.BuildArtifact{}, ctx.Err()
			}).Times(1)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan []domain.BuildResult)
		go func() {
			done <- f.orch.Execute(ctx, plan(step("a"), step("b"), step("c", "a")))
		}()

		synctest.Wait()
		cancel()
		results := <-done

		assert.Equal(t, domain.StatusFailed, results[0].Status)
		assert.Equal(t, domain.KindCancelled, results[0].Kind)
		assert.Equal(t, domain.KindCancelled, results[1].Kind)
		assert.ErrorIs(t, results[1].Err, context.Canceled)
		// c depends on the interrupted a.
		assert.Equal(t, domain.KindDependencyFailed, results[2].Kind)
	})
}

func TestExecute_PoursBottle(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t, 1)
		s := step("wine")
		s.Bottle = &domain.Bottle{
			Platform: domain.Platform{OS: "linux", Arch: "amd64"},
			Source: domain.Source{
				Locator:  domain.Locator{URL: "https://example.test/wine.bottle.tar.gz"},
				Checksum: digest.FromString("bottle"),
			},
		}

		f.cache.EXPECT().Lookup(s.Fingerprint).Return(nil, nil)
		f.fetcher.EXPECT().Fetch(gomock.Any(), s.Bottle.Source.Locator, s.Bottle.Source.Checksum).
			Return(domain.LocalBlob{Path: "/downloads/wine.bottle.tar.gz"}, nil)
		f.cache.EXPECT().Commit(s.Fingerprint, gomock.Any()).DoAndReturn(
			func(fp domain.Fingerprint, a domain.BuildArtifact) (domain.BuildArtifact, error) {
				assert.Equal(t, domain.OriginBottle, a.Origin)
				assert.Equal(t, "/downloads/wine.bottle.tar.gz", a.Path)
				a.Fingerprint = fp
				return a, nil
			})
		f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).Times(0)

		results := f.orch.Execute(context.Background(), plan(s))

		require.Len(t, results, 1)
		assert.Equal(t, domain.StatusCached, results[0].Status)
		assert.Equal(t, domain.OriginBottle, results[0].Artifact.Origin)
	})
}

func TestExecute_FetchesPatchesAndResources(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t, 1)
		f.expectMisses()

		s := step("wine")
		s.Patches = []domain.Patch{{Source: domain.Source{
			Locator:  domain.Locator{URL: "https://bugs.example.test/52485.patch"},
			Checksum: digest.FromString("patch"),
		}, Strip: 1}}
		s.Resources = []domain.Resource{{Name: "gecko", Source: domain.Source{
			Locator:  domain.Locator{URL: "https://example.test/wine_gecko.msi"},
			Checksum: digest.FromString("gecko"),
		}}}

		f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req domain.BuildRequest) (domain.BuildArtifact, error) {
				assert.Equal(t, "/downloads/wine.tar.gz", req.Source.Path)
				require.Len(t, req.Patches, 1)
				assert.Equal(t, "/downloads/52485.patch", req.Patches[0].Path)
				assert.Equal(t, "/downloads/wine_gecko.msi", req.Resources["gecko"].Path)
				return built(req), nil
			})

		results := f.orch.Execute(context.Background(), plan(s))
		assert.Equal(t, domain.StatusSucceeded, results[0].Status)
	})
}

func TestExecute_DuplicateCommit(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t, 1)
		f.cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil)
		f.fetcher.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.LocalBlob{Path: "/downloads/x"}, nil)
		f.builder.EXPECT().Build(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req domain.BuildRequest) (domain.BuildArtifact, error) {
				return built(req), nil
			})
		f.cache.EXPECT().Commit(gomock.Any(), gomock.Any()).
			Return(domain.BuildArtifact{}, zerr.Wrap(domain.ErrDuplicateCommit, "fingerprint already committed with different content"))

		results := f.orch.Execute(context.Background(), plan(step("x")))
		assert.Equal(t, domain.KindDuplicateCommit, results[0].Kind)
	})
}

func TestExecute_LookupError(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(t, 1)
		f.cache.EXPECT().Lookup(gomock.Any()).Return(nil, errors.New("corrupt record"))

		results := f.orch.Execute(context.Background(), plan(step("x")))
		assert.Equal(t, domain.StatusFailed, results[0].Status)
		assert.Equal(t, domain.KindUnknown, results[0].Kind)
	})
}

func TestExecute_EmptyPlan(t *testing.T) {
	f := newFixture(t, 1)
	assert.Empty(t, f.orch.Execute(context.Background(), plan()))
}
