// Package formula loads package formulas from a directory of YAML and HCL files.
package formula

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.FormulaLoader = (*Loader)(nil)

// Loader implements ports.FormulaLoader.
type Loader struct {
	logger ports.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load reads every *.yaml, *.yml and *.hcl file directly under dir, in name order.
// platform is exposed to HCL expressions.
func (l *Loader) Load(dir string, platform domain.Platform) (*domain.SpecStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read formula directory"), "path", dir)
	}

	store, err := domain.NewSpecStore()
	if err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		ext := filepath.Ext(entry.Name())

		var dtos []FormulaDTO
		switch ext {
		case ".yaml", ".yml":
			dtos, err = parseYAML(path)
		case ".hcl":
			dtos, err = parseHCL(parser, path, platform)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}

		fallback := strings.TrimSuffix(entry.Name(), ext)
		for _, dto := range dtos {
			spec, err := toSpec(dto, fallback)
			if err != nil {
				return nil, zerr.With(err, "path", path)
			}
			if err := store.Add(spec); err != nil {
				return nil, zerr.With(err, "path", path)
			}
		}
	}

	l.logger.Debug("loaded formulas", "path", dir, "platform", platform.String(), "count", store.Len())
	return store, nil
}

// parseYAML decodes each document of a YAML file as one formula. Unknown fields are rejected.
func parseYAML(path string) ([]FormulaDTO, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is within the formula directory
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read formula"), "path", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var out []FormulaDTO
	for {
		var dto FormulaDTO
		err := dec.Decode(&dto)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, zerr.With(zerr.Wrap(errors.Join(domain.ErrInvalidSpec, err), "failed to parse formula"), "path", path)
		}
		out = append(out, dto)
	}

	if len(out) > 1 && slices.ContainsFunc(out, func(d FormulaDTO) bool { return d.Name == "" }) {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidSpec, "multi-document formulas must name every package"), "path", path)
	}
	return out, nil
}
