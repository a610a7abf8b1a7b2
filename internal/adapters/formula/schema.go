package formula

// FormulaDTO is the YAML shape of one formula file. HCL formulas decode into
// their own block structs and are converted to this shape.
type FormulaDTO struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Homepage     string            `yaml:"homepage"`
	Channels     []ChannelDTO      `yaml:"channels"`
	Dependencies []DependencyDTO   `yaml:"dependencies"`
	Options      []OptionDTO       `yaml:"options"`
	Env          map[string]string `yaml:"env"`
	Install      []string          `yaml:"install"`
}

// SourceDTO is a URL with mirrors and a checksum. Sha256 may be bare hex or a full digest.
type SourceDTO struct {
	URL     string   `yaml:"url"`
	Mirrors []string `yaml:"mirrors"`
	Sha256  string   `yaml:"sha256"`
}

// ChannelDTO is one release stream.
type ChannelDTO struct {
	ID        string `yaml:"id"`
	Version   string `yaml:"version"`
	SourceDTO `yaml:",inline"`
	Patches   []PatchDTO    `yaml:"patches"`
	Resources []ResourceDTO `yaml:"resources"`
	Bottles   []BottleDTO   `yaml:"bottles"`
}

// PatchDTO is a patch applied to a channel's source tree.
type PatchDTO struct {
	SourceDTO `yaml:",inline"`
	Strip     *int `yaml:"strip"`
}

// ResourceDTO is a named auxiliary source.
type ResourceDTO struct {
	Name      string `yaml:"name"`
	SourceDTO `yaml:",inline"`
}

// BottleDTO is a prebuilt payload for one "os/arch" platform.
type BottleDTO struct {
	Platform  string `yaml:"platform"`
	SourceDTO `yaml:",inline"`
}

// DependencyDTO is one dependency edge.
type DependencyDTO struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Channel  string   `yaml:"channel"`
	Option   string   `yaml:"option"`
	Requires []string `yaml:"requires"`
	OS       []string `yaml:"os"`
	Arch     []string `yaml:"arch"`
}

// OptionDTO declares a build option.
type OptionDTO struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Default      bool     `yaml:"default"`
	EnabledArgs  []string `yaml:"enabled_args"`
	DisabledArgs []string `yaml:"disabled_args"`
}
