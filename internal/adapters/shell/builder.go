// Package shell provides a Builder that runs a formula's install commands with sh.
package shell

import (
	"context"
	"errors"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Builder = (*Builder)(nil)

// Builder implements ports.Builder using os/exec.
//
// Every command runs as `sh -c <command>` inside a fresh work directory with an
// environment assembled only from the build request:
//
//	PATH              the builder's configured search path
//	HOME, TMPDIR      inside the work directory
//	PREFIX            the directory the payload must be installed into
//	SRC               the verified source blob
//	PATCH_<n>         patch blobs in declaration order, with PATCH_<n>_STRIP
//	RESOURCE_<NAME>   resource blobs
//	DEP_<NAME>        committed payload directories of dependencies
//	CELLAR_ARGS       option-derived arguments, space separated
//	CELLAR_PACKAGE, CELLAR_VERSION, CELLAR_CHANNEL
//
// Formula Env entries are applied last and override all of the above.
type Builder struct {
	logger     ports.Logger
	hasher     ports.Hasher
	stagingDir string
	path       string

	mu     sync.Mutex
	staged []string
}

// NewBuilder creates a Builder that stages work under stagingDir and resolves
// executables using path.
func NewBuilder(logger ports.Logger, hasher ports.Hasher, stagingDir, path string) *Builder {
	return &Builder{
		logger:     logger,
		hasher:     hasher,
		stagingDir: stagingDir,
		path:       path,
	}
}

// Build runs the step's install commands and hashes the resulting prefix.
func (b *Builder) Build(ctx context.Context, req domain.BuildRequest) (domain.BuildArtifact, error) {
	step := req.Step
	name := step.Name.String()

	if err := os.MkdirAll(b.stagingDir, 0o750); err != nil {
		return domain.BuildArtifact{}, zerr.With(zerr.Wrap(err, "failed to create staging directory"), "path", b.stagingDir)
	}
	work, err := os.MkdirTemp(b.stagingDir, name+"-")
	if err != nil {
		return domain.BuildArtifact{}, zerr.Wrap(err, "failed to create work directory")
	}

	prefix := filepath.Join(work, "prefix")
	srcDir := filepath.Join(work, "src")
	tmpDir := filepath.Join(work, "tmp")
	for _, dir := range []string{prefix, srcDir, tmpDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			_ = os.RemoveAll(work)
			return domain.BuildArtifact{}, zerr.Wrap(err, "failed to prepare work directory")
		}
	}

	env := buildEnvironment(b.path, work, prefix, tmpDir, req)
	for i, command := range step.Install {
		if err := b.run(ctx, srcDir, env, command); err != nil {
			_ = os.RemoveAll(work)
			err = zerr.Wrap(errors.Join(domain.ErrBuildFailed, err), "install command failed")
			err = zerr.With(zerr.With(err, "package", name), "command_index", i)
			return domain.BuildArtifact{}, zerr.With(err, "command", command)
		}
	}

	manifest, err := b.hasher.HashTree(prefix)
	if err != nil {
		_ = os.RemoveAll(work)
		return domain.BuildArtifact{}, zerr.With(zerr.Wrap(err, "failed to hash prefix"), "package", name)
	}

	b.mu.Lock()
	b.staged = append(b.staged, work)
	b.mu.Unlock()

	return domain.BuildArtifact{
		Package:       name,
		Version:       step.Version,
		Channel:       step.Channel,
		Origin:        domain.OriginBuilt,
		ContentDigest: manifest.Digest(),
		Path:          prefix,
		Manifest:      manifest,
	}, nil
}

// Cleanup removes the work directories of successful builds. Call it once their payloads are committed.
func (b *Builder) Cleanup() error {
	b.mu.Lock()
	staged := b.staged
	b.staged = nil
	b.mu.Unlock()

	var errs []error
	for _, dir := range staged {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Builder) run(ctx context.Context, dir string, env []string, command string) error {
	sh := "sh"
	if lp, err := lookPath(sh, env); err == nil {
		sh = lp
	}

	cmd := exec.CommandContext(ctx, sh, "-c", command) //nolint:gosec // Commands are declared by formulas
	cmd.Dir = dir
	cmd.Env = env

	stdout, stderr := b.outputs(ctx)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	defer stdout.Flush()
	defer stderr.Flush()

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return zerr.With(zerr.Wrap(err, "command failed"), "exit_code", exitCode)
	}
	return nil
}

// outputs routes command output to the vertex carried by ctx, or to the logger.
func (b *Builder) outputs(ctx context.Context) (stdout, stderr *lineWriter) {
	if v, ok := ports.VertexFromContext(ctx); ok {
		return &lineWriter{emit: writeTo(v.Stdout())}, &lineWriter{emit: writeTo(v.Stderr())}
	}
	return &lineWriter{emit: func(line string) { b.logger.Info(line) }},
		&lineWriter{emit: func(line string) { b.logger.Warn(line) }}
}

func writeTo(w interface{ Write([]byte) (int, error) }) func(string) {
	return func(line string) {
		_, _ = w.Write([]byte(line + "\n"))
	}
}

// lineWriter splits output into lines. A trailing partial line is held until Flush.
type lineWriter struct {
	emit func(string)
	buf  []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := slices.Index(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

// buildEnvironment assembles the sorted environment of a build. Formula Env has the highest priority.
func buildEnvironment(path, work, prefix, tmpDir string, req domain.BuildRequest) []string {
	step := req.Step
	env := map[string]string{
		"PATH":           path,
		"HOME":           work,
		"TMPDIR":         tmpDir,
		"PREFIX":         prefix,
		"SRC":            req.Source.Path,
		"CELLAR_ARGS":    strings.Join(step.Args, " "),
		"CELLAR_PACKAGE": step.Name.String(),
		"CELLAR_VERSION": step.Version,
		"CELLAR_CHANNEL": step.Channel,
	}

	for i, patch := range req.Patches {
		key := "PATCH_" + strconv.Itoa(i)
		env[key] = patch.Path
		if i < len(step.Patches) {
			env[key+"_STRIP"] = strconv.Itoa(step.Patches[i].Strip)
		}
	}
	for name, res := range req.Resources {
		env["RESOURCE_"+envName(name)] = res.Path
	}
	for name, dep := range req.Dependencies {
		env["DEP_"+envName(name)] = dep.Path
	}

	maps.Copy(env, step.Env)

	result := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		result = append(result, k+"="+env[k])
	}
	return result
}

// envName upper-cases name and replaces every character outside [A-Z0-9_] with '_'.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// lookPath searches for an executable in the directories named by the PATH entry of env.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if v, ok := strings.CutPrefix(e, "PATH="); ok {
			path = v
			break
		}
	}
	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
