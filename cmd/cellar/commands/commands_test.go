package commands_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/cmd/cellar/commands"
	"go.trai.ch/cellar/internal/app"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports/mocks"
	"go.trai.ch/cellar/internal/engine/orchestrator"
	"go.trai.ch/cellar/internal/engine/resolver"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	loader *mocks.MockFormulaLoader
	cache  *mocks.MockArtifactCache
	cli    *commands.CLI
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()

	f := &fixture{
		loader: mocks.NewMockFormulaLoader(ctrl),
		cache:  mocks.NewMockArtifactCache(ctrl),
	}
	tel := mocks.NewMockTelemetry(ctrl)
	builder := mocks.NewMockBuilder(ctrl)
	fetcher := mocks.NewMockFetcher(ctrl)

	platform := domain.Platform{OS: "linux", Arch: "amd64"}
	res := resolver.New(platform, f.cache)
	orch := orchestrator.New(fetcher, builder, f.cache, tel, log, 1)
	a := app.New(f.loader, res, orch, f.cache, builder, tel, log, "/formula")
	f.cli = commands.New(a)
	return f
}

func spec(pkg string, channels ...string) *domain.PackageSpec {
	s := &domain.PackageSpec{Name: domain.NewInternedString(pkg), Install: []string{"make install"}}
	for _, ch := range channels {
		s.Channels = append(s.Channels, domain.Channel{
			ID:      ch,
			Version: ch + "-1.0",
			Source: domain.Source{
				Locator:  domain.Locator{URL: "https://example.invalid/" + pkg + ".tar.gz"},
				Checksum: digest.FromString(pkg + ch),
			},
		})
	}
	return s
}

func TestPlan_PrintsSteps(t *testing.T) {
	f := newFixture(t)
	store, err := domain.NewSpecStore(spec("zlib", "stable", "devel"))
	require.NoError(t, err)
	f.loader.EXPECT().Load("/formula", gomock.Any()).Return(store, nil)
	f.cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil)

	var out bytes.Buffer
	f.cli.SetOutput(&out)
	f.cli.SetArgs([]string{"plan", "zlib@devel"})

	require.NoError(t, f.cli.Execute(context.Background()))
	assert.Contains(t, out.String(), "platform linux/amd64, 1 steps")
	assert.Contains(t, out.String(), "devel-1.0")
	assert.Contains(t, out.String(), "build")
}

func TestPlan_ChannelFlag(t *testing.T) {
	f := newFixture(t)
	store, err := domain.NewSpecStore(spec("zlib", "stable", "devel"))
	require.NoError(t, err)
	f.loader.EXPECT().Load("/formula", gomock.Any()).Return(store, nil)
	f.cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil)

	var out bytes.Buffer
	f.cli.SetOutput(&out)
	f.cli.SetArgs([]string{"plan", "--channel", "devel", "--platform", "darwin/arm64", "zlib"})

	require.NoError(t, f.cli.Execute(context.Background()))
	assert.Contains(t, out.String(), "platform darwin/arm64")
	assert.Contains(t, out.String(), "devel-1.0")
}

func TestPlan_UndeclaredOption(t *testing.T) {
	f := newFixture(t)
	store, err := domain.NewSpecStore(spec("zlib", "stable"))
	require.NoError(t, err)
	f.loader.EXPECT().Load("/formula", gomock.Any()).Return(store, nil)

	f.cli.SetOutput(&bytes.Buffer{})
	f.cli.SetArgs([]string{"plan", "--with", "x11", "zlib"})

	err = f.cli.Execute(context.Background())
	assert.ErrorIs(t, err, domain.ErrOptionConflict)
}

func TestPlan_WithFlagSkipsTargetsWithoutOption(t *testing.T) {
	f := newFixture(t)
	wine := spec("wine", "stable")
	wine.Options = []domain.BuildOption{{Name: "x11", EnabledArgs: []string{"--with-x"}}}
	store, err := domain.NewSpecStore(wine, spec("zlib", "stable"))
	require.NoError(t, err)
	f.loader.EXPECT().Load("/formula", gomock.Any()).Return(store, nil)
	f.cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil).AnyTimes()

	var out bytes.Buffer
	f.cli.SetOutput(&out)
	f.cli.SetArgs([]string{"plan", "wine", "zlib", "--with", "x11"})

	require.NoError(t, f.cli.Execute(context.Background()))
	assert.Contains(t, out.String(), "2 steps")
}

func TestPlan_TargetOptionSuffix(t *testing.T) {
	f := newFixture(t)
	wine := spec("wine", "stable")
	wine.Options = []domain.BuildOption{{Name: "x11", EnabledArgs: []string{"--with-x"}}}
	store, err := domain.NewSpecStore(wine, spec("zlib", "stable"))
	require.NoError(t, err)
	f.loader.EXPECT().Load("/formula", gomock.Any()).Return(store, nil).Times(2)
	f.cache.EXPECT().Lookup(gomock.Any()).Return(nil, nil).AnyTimes()

	f.cli.SetOutput(&bytes.Buffer{})
	f.cli.SetArgs([]string{"plan", "wine@stable,with-x11", "zlib"})
	require.NoError(t, f.cli.Execute(context.Background()))

	f.cli.SetArgs([]string{"plan", "wine", "zlib,with-x11"})
	assert.ErrorIs(t, f.cli.Execute(context.Background()), domain.ErrOptionConflict)
}

func TestPlan_InvalidTargetOption(t *testing.T) {
	f := newFixture(t)

	f.cli.SetOutput(&bytes.Buffer{})
	f.cli.SetArgs([]string{"plan", "wine,x11"})

	assert.ErrorIs(t, f.cli.Execute(context.Background()), domain.ErrInvalidOption)
}

func TestPlan_InvalidTarget(t *testing.T) {
	f := newFixture(t)

	f.cli.SetOutput(&bytes.Buffer{})
	f.cli.SetArgs([]string{"plan", "zlib@"})

	assert.Error(t, f.cli.Execute(context.Background()))
}

func TestInstall_NoTargetsPrintsHelp(t *testing.T) {
	f := newFixture(t)

	var out bytes.Buffer
	f.cli.SetOutput(&out)
	f.cli.SetArgs([]string{"install"})

	require.NoError(t, f.cli.Execute(context.Background()))
	assert.Contains(t, out.String(), "Usage:")
}

func TestCacheList(t *testing.T) {
	f := newFixture(t)
	f.cache.EXPECT().List().Return([]domain.BuildArtifact{{
		Fingerprint: digest.FromString("zlib"),
		Package:     "zlib",
		Version:     "1.3.1",
		Origin:      domain.OriginBuilt,
		Path:        "/cache/objects/zlib",
	}}, nil)

	var out bytes.Buffer
	f.cli.SetOutput(&out)
	f.cli.SetArgs([]string{"cache", "list"})

	require.NoError(t, f.cli.Execute(context.Background()))
	assert.Contains(t, out.String(), "zlib")
	assert.Contains(t, out.String(), digest.FromString("zlib").Encoded()[:12])
}

func TestVersion(t *testing.T) {
	f := newFixture(t)

	var out bytes.Buffer
	f.cli.SetOutput(&out)
	f.cli.SetArgs([]string{"version"})

	require.NoError(t, f.cli.Execute(context.Background()))
	assert.Equal(t, "dev\n", out.String())
}
