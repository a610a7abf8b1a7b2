package shell_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/adapters/fs"
	"go.trai.ch/cellar/internal/adapters/shell"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/cellar/internal/core/ports/mocks"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

func newBuilder(t *testing.T, log ports.Logger, path string) (*shell.Builder, string) {
	t.Helper()
	staging := filepath.Join(t.TempDir(), "staging")
	return shell.NewBuilder(log, fs.NewHasher(fs.NewWalker()), staging, path), staging
}

func request(install ...string) domain.BuildRequest {
	return domain.BuildRequest{
		Step: domain.PlanStep{
			Name:    domain.NewInternedString("libpng"),
			Channel: "stable",
			Version: "1.6.43",
			Args:    []string{"--disable-static", "--with-zlib"},
			Env:     map[string]string{"CFLAGS": "-O2"},
			Install: install,
		},
		Source: domain.LocalBlob{Path: "/downloads/libpng.tar.xz"},
		Resources: map[string]domain.LocalBlob{
			"test-data": {Path: "/downloads/data.tar"},
		},
		Dependencies: map[string]domain.BuildArtifact{
			"zlib": {Package: "zlib", Path: "/cache/objects/zlib"},
		},
	}
}

func TestBuilder_Build(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	builder, _ := newBuilder(t, log, os.Getenv("PATH"))

	artifact, err := builder.Build(context.Background(), request(
		`mkdir -p "$PREFIX/share"`,
		`printf '%s|%s|%s|%s|%s' "$CELLAR_ARGS" "$DEP_ZLIB" "$RESOURCE_TEST_DATA" "$CFLAGS" "$SRC" > "$PREFIX/share/env.txt"`,
	))
	require.NoError(t, err)

	assert.Equal(t, "libpng", artifact.Package)
	assert.Equal(t, "1.6.43", artifact.Version)
	assert.Equal(t, domain.OriginBuilt, artifact.Origin)
	require.Len(t, artifact.Manifest.Files, 1)
	assert.Equal(t, "share/env.txt", artifact.Manifest.Files[0].Path)
	assert.Equal(t, artifact.Manifest.Digest(), artifact.ContentDigest)

	data, err := os.ReadFile(filepath.Join(artifact.Path, "share", "env.txt"))
	require.NoError(t, err)
	assert.Equal(t, "--disable-static --with-zlib|/cache/objects/zlib|/downloads/data.tar|-O2|/downloads/libpng.tar.xz", string(data))
}

func TestBuilder_Build_MultiLineOutput(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	gomock.InOrder(
		log.EXPECT().Info("checking for gcc... gcc"),
		log.EXPECT().Info("configure: creating Makefile"),
	)
	log.EXPECT().Warn("warning: deprecated")
	builder, _ := newBuilder(t, log, os.Getenv("PATH"))

	_, err := builder.Build(context.Background(), request(
		`printf 'checking for gcc... gcc\nconfigure: '; printf 'creating Makefile\n'`,
		`printf 'warning: deprecated' >&2`,
	))
	require.NoError(t, err)
}

func TestBuilder_Build_WithVertex(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).Times(0)

	var stdout, stderr bytes.Buffer
	vertex := mocks.NewMockVertex(ctrl)
	vertex.EXPECT().Stdout().Return(&stdout).AnyTimes()
	vertex.EXPECT().Stderr().Return(&stderr).AnyTimes()

	builder, _ := newBuilder(t, log, os.Getenv("PATH"))
	ctx := ports.ContextWithVertex(context.Background(), vertex)

	_, err := builder.Build(ctx, request("echo hello to stdout; echo hello to stderr >&2"))
	require.NoError(t, err)

	assert.Equal(t, "hello to stdout\n", stdout.String())
	assert.Equal(t, "hello to stderr\n", stderr.String())
}

func TestBuilder_Build_CommandFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	builder, staging := newBuilder(t, log, os.Getenv("PATH"))

	_, err := builder.Build(context.Background(), request("echo configuring", "exit 3", "echo unreachable > $PREFIX/x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBuildFailed)
	assert.Equal(t, domain.KindBuildFailed, domain.KindOf(err))

	var zErr *zerr.Error
	require.True(t, errors.As(err, &zErr))
	assert.Equal(t, 1, zErr.Metadata()["command_index"])

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuilder_Build_HermeticPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info("success").Times(1)

	toolDir := t.TempDir()
	//nolint:gosec // Test requires executable file
	require.NoError(t, os.WriteFile(filepath.Join(toolDir, "my-hermetic-tool"), []byte("#!/bin/sh\necho success\n"), 0o700))

	shDir := filepath.Dir(lookupSh(t))
	builder, _ := newBuilder(t, log, toolDir+string(os.PathListSeparator)+shDir)

	_, err := builder.Build(context.Background(), request("my-hermetic-tool"))
	require.NoError(t, err)
}

func TestBuilder_Build_IgnoresProcessEnvironment(t *testing.T) {
	t.Setenv("CELLAR_LEAK", "leaked")

	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Info("unset").Times(1)
	builder, _ := newBuilder(t, log, os.Getenv("PATH"))

	_, err := builder.Build(context.Background(), request(`echo "${CELLAR_LEAK:-unset}"`))
	require.NoError(t, err)
}

func TestBuilder_Cleanup(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	builder, staging := newBuilder(t, log, os.Getenv("PATH"))

	artifact, err := builder.Build(context.Background(), request(`touch "$PREFIX/done"`))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(artifact.Path, "done"))

	require.NoError(t, builder.Cleanup())
	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuilder_Build_Cancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	builder, _ := newBuilder(t, log, os.Getenv("PATH"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := builder.Build(ctx, request("sleep 5"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBuildFailed)
}

func lookupSh(t *testing.T) string {
	t.Helper()
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		candidate := filepath.Join(dir, "sh")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	t.Skip("sh not found in PATH")
	return ""
}
