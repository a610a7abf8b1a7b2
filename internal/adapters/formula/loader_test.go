package formula_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/adapters/formula"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

const (
	sumA = "dee2a4959e5f90a89aaf04566c23f2926e9590f8968ea662afd81947fdb6f6d6"
	sumB = "59f1831a1b49c1b7a4c6e6af7e3f89f0bc60bec0bead645a615b251d37d232ac"
	sumC = "1a29d17435a52b7663cea6f30a0771f74097962b07031947719bb7b46057d302"
)

var linux = domain.Platform{OS: "linux", Arch: "amd64"}

const wineYAML = `
name: wine
description: Run Windows applications without a copy of Microsoft Windows
homepage: https://www.winehq.org/
channels:
  - id: stable
    version: 1.8.5
    url: https://dl.winehq.org/wine/source/1.8/wine-1.8.5.tar.bz2
    mirrors:
      - https://downloads.sourceforge.net/project/wine/Source/wine-1.8.5.tar.bz2
    sha256: ` + sumA + `
    patches:
      - url: https://bugs.winehq.org/attachment.cgi?id=52485
        sha256: sha256:` + sumB + `
    resources:
      - name: gecko
        url: https://downloads.sourceforge.net/wine/wine_gecko-2.40-x86.msi
        sha256: ` + sumC + `
    bottles:
      - platform: darwin/amd64
        url: https://example.test/wine-1.8.5.darwin.tar.gz
        sha256: ` + sumB + `
  - id: devel
    version: 1.9.23
    url: https://dl.winehq.org/wine/source/1.9/wine-1.9.23.tar.bz2
    sha256: ` + sumC + `
dependencies:
  - name: x11
    kind: recommended
  - name: pkg-config
    kind: build
  - name: freetype
  - name: libgsm
    kind: optional
options:
  - name: x11
    description: Build with the X11 driver
    default: true
    disabled_args: [--without-x]
env:
  CC: clang
install:
  - ./configure --prefix="$PREFIX" $CELLAR_ARGS
  - make install
`

func newLoader(t *testing.T) *formula.Loader {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	return formula.NewLoader(log)
}

func writeFormula(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoader_YAML(t *testing.T) {
	dir := t.TempDir()
	writeFormula(t, dir, "wine.yaml", wineYAML)
	writeFormula(t, dir, "README.md", "ignored")

	store, err := newLoader(t).Load(dir, linux)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	spec, ok := store.Get(domain.NewInternedString("wine"))
	require.True(t, ok)
	assert.Equal(t, "https://www.winehq.org/", spec.Homepage)
	require.Len(t, spec.Channels, 2)

	stable := spec.Channels[0]
	assert.Equal(t, "stable", stable.ID)
	assert.Equal(t, digest.NewDigestFromEncoded(digest.SHA256, sumA), stable.Source.Checksum)
	assert.Equal(t, []string{"https://downloads.sourceforge.net/project/wine/Source/wine-1.8.5.tar.bz2"}, stable.Source.Locator.Mirrors)
	require.Len(t, stable.Patches, 1)
	assert.Equal(t, 1, stable.Patches[0].Strip)
	require.Len(t, stable.Resources, 1)
	assert.Equal(t, "gecko", stable.Resources[0].Name)
	require.NotNil(t, stable.BottleFor(domain.Platform{OS: "darwin", Arch: "amd64"}))

	require.Len(t, spec.Dependencies, 4)
	assert.Equal(t, domain.DependencyRecommended, spec.Dependencies[0].Kind)
	assert.Equal(t, domain.DependencyRuntime, spec.Dependencies[2].Kind)

	opt, ok := spec.Option("x11")
	require.True(t, ok)
	assert.Equal(t, []string{"--without-x"}, opt.DisabledArgs)
	libgsm, ok := spec.Option("libgsm")
	require.True(t, ok)
	assert.False(t, libgsm.Default)

	assert.Equal(t, map[string]string{"CC": "clang"}, spec.Env)
	assert.Len(t, spec.Install, 2)
}

func TestLoader_YAMLNameFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	writeFormula(t, dir, "zlib.yml", `
channels:
  - id: stable
    version: 1.3.1
    url: https://zlib.net/zlib-1.3.1.tar.gz
    sha256: `+sumA+`
`)

	store, err := newLoader(t).Load(dir, linux)
	require.NoError(t, err)
	_, ok := store.Get(domain.NewInternedString("zlib"))
	assert.True(t, ok)
}

func TestLoader_HCL(t *testing.T) {
	dir := t.TempDir()
	writeFormula(t, dir, "graphics.hcl", `
package "libpng" {
  channel "stable" {
    version = "1.6.43"
    url     = "https://download.sourceforge.net/libpng/libpng-1.6.43.tar.xz"
    sha256  = "`+sumA+`"
  }
  depends_on "zlib" {}
  install = ["./configure --host=${platform.arch}-${platform.os}", "make install"]
}

package "zlib" {
  channel "stable" {
    version = "1.3.1"
    url     = "https://zlib.net/zlib-1.3.1.tar.gz"
    mirrors = ["https://mirror.test/zlib-1.3.1.tar.gz"]
    sha256  = "`+sumB+`"

    bottle "linux/amd64" {
      url    = "https://example.test/zlib.linux.tar.gz"
      sha256 = "`+sumC+`"
    }
  }
  depends_on "libiconv" {
    kind = "build"
    os   = ["darwin"]
  }
  option "static" {
    enabled_args = ["--static"]
  }
}
`)

	store, err := newLoader(t).Load(dir, linux)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	libpng, ok := store.Get(domain.NewInternedString("libpng"))
	require.True(t, ok)
	assert.Equal(t, "./configure --host=amd64-linux", libpng.Install[0])
	require.Len(t, libpng.Dependencies, 1)
	assert.Equal(t, domain.DependencyRuntime, libpng.Dependencies[0].Kind)

	zlib, ok := store.Get(domain.NewInternedString("zlib"))
	require.True(t, ok)
	require.NotNil(t, zlib.Channels[0].BottleFor(domain.Platform{OS: "linux", Arch: "amd64"}))
	require.NotNil(t, zlib.Dependencies[0].Platform)
	assert.False(t, zlib.Dependencies[0].Platform.Matches(domain.Platform{OS: "linux", Arch: "amd64"}))
	opt, ok := zlib.Option("static")
	require.True(t, ok)
	assert.Equal(t, []string{"--static"}, opt.EnabledArgs)
}

func TestLoader_DuplicatePackage(t *testing.T) {
	dir := t.TempDir()
	body := `
channels:
  - id: stable
    url: https://zlib.net/zlib.tar.gz
    sha256: ` + sumA + `
`
	writeFormula(t, dir, "a.yaml", "name: zlib\n"+body)
	writeFormula(t, dir, "b.yaml", "name: zlib\n"+body)

	_, err := newLoader(t).Load(dir, linux)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicatePackage)
}

func TestLoader_InvalidChecksum(t *testing.T) {
	dir := t.TempDir()
	writeFormula(t, dir, "bad.yaml", `
channels:
  - id: stable
    url: https://example.test/bad.tar.gz
    sha256: not-hex
`)

	_, err := newLoader(t).Load(dir, linux)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

func TestLoader_UnknownField(t *testing.T) {
	dir := t.TempDir()
	writeFormula(t, dir, "typo.yaml", `
channels:
  - id: stable
    url: https://example.test/x.tar.gz
    sha256: `+sumA+`
dependncies: []
`)

	_, err := newLoader(t).Load(dir, linux)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

func TestLoader_InvalidHCL(t *testing.T) {
	dir := t.TempDir()
	writeFormula(t, dir, "broken.hcl", `package "x" {`)

	_, err := newLoader(t).Load(dir, linux)
	require.Error(t, err)
}

func TestLoader_MissingDir(t *testing.T) {
	_, err := newLoader(t).Load(filepath.Join(t.TempDir(), "missing"), linux)
	require.Error(t, err)
}

func TestLoader_HCLEvaluatesRequestedPlatform(t *testing.T) {
	dir := t.TempDir()
	writeFormula(t, dir, "jq.hcl", `
package "jq" {
  channel "stable" {
    version = "1.7.1"
    url     = "https://example.test/jq-1.7.1.tar.gz"
    sha256  = "`+sumA+`"
  }
  install = ["./configure --host=${platform.tag}"]
}
`)
	loader := newLoader(t)

	native, err := loader.Load(dir, linux)
	require.NoError(t, err)
	cross, err := loader.Load(dir, domain.Platform{OS: "darwin", Arch: "arm64"})
	require.NoError(t, err)

	jq, _ := native.Get(domain.NewInternedString("jq"))
	assert.Equal(t, []string{"./configure --host=linux/amd64"}, jq.Install)
	jq, _ = cross.Get(domain.NewInternedString("jq"))
	assert.Equal(t, []string{"./configure --host=darwin/arm64"}, jq.Install)
}
