// Package settings loads the cellar.toml configuration file.
package settings

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	// Filename is the name of the settings file.
	Filename = "cellar.toml"
	// EnvConfig overrides the settings file location.
	EnvConfig = "CELLAR_CONFIG"
	// EnvHome overrides the default root directory.
	EnvHome = "CELLAR_HOME"
)

// Settings holds the runtime configuration.
type Settings struct {
	// Root is the base for every directory left unset.
	Root        string `toml:"root"`
	FormulaDir  string `toml:"formula_dir"`
	CacheDir    string `toml:"cache_dir"`
	DownloadDir string `toml:"download_dir"`
	StagingDir  string `toml:"staging_dir"`
	// Jobs bounds how many steps build concurrently.
	Jobs int `toml:"jobs"`
	// Platform overrides the detected os/arch tag.
	Platform string `toml:"platform"`
	LogLevel string `toml:"log_level"`
	// Progress prints one line per step transition to stderr.
	Progress bool  `toml:"progress"`
	Fetch    Fetch `toml:"fetch"`
}

// Fetch configures the download retry policy.
type Fetch struct {
	MaxAttempts     int           `toml:"max_attempts"`
	InitialInterval time.Duration `toml:"initial_interval"`
	MaxInterval     time.Duration `toml:"max_interval"`
	Timeout         time.Duration `toml:"timeout"`
}

// Default returns the settings used when no file exists.
func Default() *Settings {
	return &Settings{
		Jobs:     runtime.NumCPU(),
		LogLevel: "info",
		Progress: true,
		Fetch: Fetch{
			MaxAttempts:     3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Timeout:         5 * time.Minute,
		},
	}
}

// DefaultPath returns $CELLAR_CONFIG, or cellar.toml under the user config directory.
func DefaultPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return Filename
	}
	return filepath.Join(dir, "cellar", Filename)
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Settings, error) {
	s := Default()

	_, err := toml.DecodeFile(path, s)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, zerr.With(zerr.Wrap(err, "failed to parse settings"), "path", path)
	}

	if err := s.complete(); err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return s, nil
}

func (s *Settings) complete() error {
	if s.Root == "" {
		s.Root = os.Getenv(EnvHome)
	}
	if s.Root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return zerr.Wrap(err, "failed to locate home directory")
		}
		s.Root = filepath.Join(home, ".cellar")
	}

	if s.FormulaDir == "" {
		s.FormulaDir = filepath.Join(s.Root, "Formula")
	}
	if s.CacheDir == "" {
		s.CacheDir = filepath.Join(s.Root, "cache")
	}
	if s.DownloadDir == "" {
		s.DownloadDir = filepath.Join(s.Root, "downloads")
	}
	if s.StagingDir == "" {
		s.StagingDir = filepath.Join(s.Root, "staging")
	}

	if s.Jobs < 1 {
		return zerr.With(zerr.New("jobs must be at least 1"), "jobs", s.Jobs)
	}
	if s.Fetch.MaxAttempts < 1 {
		return zerr.With(zerr.New("fetch.max_attempts must be at least 1"), "max_attempts", s.Fetch.MaxAttempts)
	}
	if _, err := s.TargetPlatform(); err != nil {
		return err
	}
	return nil
}

// TargetPlatform returns the configured platform, or the running one.
func (s *Settings) TargetPlatform() (domain.Platform, error) {
	if s.Platform == "" {
		return domain.CurrentPlatform(), nil
	}
	return domain.ParsePlatform(s.Platform)
}
