package formula

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/zerr"
)

// hclFile is the top-level structure of an HCL formula file. A file may declare several packages.
type hclFile struct {
	Packages []*hclPackage `hcl:"package,block"`
}

type hclPackage struct {
	Name         string            `hcl:"name,label"`
	Description  string            `hcl:"description,optional"`
	Homepage     string            `hcl:"homepage,optional"`
	Channels     []*hclChannel     `hcl:"channel,block"`
	Dependencies []*hclDependency  `hcl:"depends_on,block"`
	Options      []*hclOption      `hcl:"option,block"`
	Env          map[string]string `hcl:"env,optional"`
	Install      []string          `hcl:"install,optional"`
}

type hclChannel struct {
	ID        string         `hcl:"id,label"`
	Version   string         `hcl:"version,optional"`
	URL       string         `hcl:"url"`
	Mirrors   []string       `hcl:"mirrors,optional"`
	Sha256    string         `hcl:"sha256"`
	Patches   []*hclPatch    `hcl:"patch,block"`
	Resources []*hclResource `hcl:"resource,block"`
	Bottles   []*hclBottle   `hcl:"bottle,block"`
}

type hclPatch struct {
	URL     string   `hcl:"url"`
	Mirrors []string `hcl:"mirrors,optional"`
	Sha256  string   `hcl:"sha256"`
	Strip   *int     `hcl:"strip,optional"`
}

type hclResource struct {
	Name    string   `hcl:"name,label"`
	URL     string   `hcl:"url"`
	Mirrors []string `hcl:"mirrors,optional"`
	Sha256  string   `hcl:"sha256"`
}

type hclBottle struct {
	Platform string   `hcl:"platform,label"`
	URL      string   `hcl:"url"`
	Mirrors  []string `hcl:"mirrors,optional"`
	Sha256   string   `hcl:"sha256"`
}

type hclDependency struct {
	Name     string   `hcl:"name,label"`
	Kind     string   `hcl:"kind,optional"`
	Channel  string   `hcl:"channel,optional"`
	Option   string   `hcl:"option,optional"`
	Requires []string `hcl:"requires,optional"`
	OS       []string `hcl:"os,optional"`
	Arch     []string `hcl:"arch,optional"`
}

type hclOption struct {
	Name         string   `hcl:"name,label"`
	Description  string   `hcl:"description,optional"`
	Default      bool     `hcl:"default,optional"`
	EnabledArgs  []string `hcl:"enabled_args,optional"`
	DisabledArgs []string `hcl:"disabled_args,optional"`
}

// evalContext exposes the target platform to formula expressions as platform.os and platform.arch.
func evalContext(p domain.Platform) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"platform": cty.ObjectVal(map[string]cty.Value{
				"os":   cty.StringVal(p.OS),
				"arch": cty.StringVal(p.Arch),
				"tag":  cty.StringVal(p.String()),
			}),
		},
	}
}

// parseHCL decodes every package block of an HCL formula file.
func parseHCL(parser *hclparse.Parser, path string, platform domain.Platform) ([]FormulaDTO, error) {
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, zerr.With(zerr.Wrap(diags, "failed to parse formula"), "path", path)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, evalContext(platform), &parsed); diags.HasErrors() {
		return nil, zerr.With(zerr.Wrap(diags, "failed to decode formula"), "path", path)
	}

	out := make([]FormulaDTO, 0, len(parsed.Packages))
	for _, pkg := range parsed.Packages {
		out = append(out, pkg.toDTO())
	}
	return out, nil
}

func (p *hclPackage) toDTO() FormulaDTO {
	dto := FormulaDTO{
		Name:        p.Name,
		Description: p.Description,
		Homepage:    p.Homepage,
		Env:         p.Env,
		Install:     p.Install,
	}
	for _, ch := range p.Channels {
		c := ChannelDTO{
			ID:        ch.ID,
			Version:   ch.Version,
			SourceDTO: SourceDTO{URL: ch.URL, Mirrors: ch.Mirrors, Sha256: ch.Sha256},
		}
		for _, patch := range ch.Patches {
			c.Patches = append(c.Patches, PatchDTO{
				SourceDTO: SourceDTO{URL: patch.URL, Mirrors: patch.Mirrors, Sha256: patch.Sha256},
				Strip:     patch.Strip,
			})
		}
		for _, r := range ch.Resources {
			c.Resources = append(c.Resources, ResourceDTO{
				Name:      r.Name,
				SourceDTO: SourceDTO{URL: r.URL, Mirrors: r.Mirrors, Sha256: r.Sha256},
			})
		}
		for _, b := range ch.Bottles {
			c.Bottles = append(c.Bottles, BottleDTO{
				Platform:  b.Platform,
				SourceDTO: SourceDTO{URL: b.URL, Mirrors: b.Mirrors, Sha256: b.Sha256},
			})
		}
		dto.Channels = append(dto.Channels, c)
	}
	for _, d := range p.Dependencies {
		dto.Dependencies = append(dto.Dependencies, DependencyDTO{
			Name:     d.Name,
			Kind:     d.Kind,
			Channel:  d.Channel,
			Option:   d.Option,
			Requires: d.Requires,
			OS:       d.OS,
			Arch:     d.Arch,
		})
	}
	for _, o := range p.Options {
		dto.Options = append(dto.Options, OptionDTO{
			Name:         o.Name,
			Description:  o.Description,
			Default:      o.Default,
			EnabledArgs:  o.EnabledArgs,
			DisabledArgs: o.DisabledArgs,
		})
	}
	return dto
}
