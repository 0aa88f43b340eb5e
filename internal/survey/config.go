package survey

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
)

//go:embed survey.yaml
var defaultConfig []byte

type ChartKind string

const (
	ChartCounts   ChartKind = "counts"
	ChartAges     ChartKind = "ages"
	ChartSplit    ChartKind = "split"
	ChartLikert   ChartKind = "likert"
	ChartPresence ChartKind = "presence"
)

// Role is a column the dashboards look up by meaning rather than position.
type Role struct {
	Name     string   `yaml:"name" json:"name"`
	Names    []string `yaml:"names" json:"names"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Chart is one statistic of a section. A chart names its column either
// directly (Column) or through a Role; likert and presence charts use
// Questions instead.
type Chart struct {
	ID        string                    `yaml:"id" json:"id"`
	Title     string                    `yaml:"title" json:"title"`
	Kind      ChartKind                 `yaml:"kind" json:"kind"`
	Role      string                    `yaml:"role,omitempty" json:"role,omitempty"`
	Column    string                    `yaml:"column,omitempty" json:"column,omitempty"`
	Basis     internal.CountBasis       `yaml:"basis,omitempty" json:"basis,omitempty"`
	Separator string                    `yaml:"separator,omitempty" json:"separator,omitempty"`
	Top       int                       `yaml:"top,omitempty" json:"top,omitempty"`
	Questions []internal.LikertQuestion `yaml:"questions,omitempty" json:"questions,omitempty"`
}

type Section struct {
	ID     string  `yaml:"id" json:"id"`
	Title  string  `yaml:"title" json:"title"`
	Charts []Chart `yaml:"charts" json:"charts"`
}

// Config is the versioned keyword and section table.
type Config struct {
	Version  int       `yaml:"version" json:"version"`
	Roles    []Role    `yaml:"roles" json:"roles"`
	Sections []Section `yaml:"sections" json:"sections"`
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	return Parse(defaultConfig)
}

// Load reads path, or the embedded configuration when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrapf(apperr.WithCode(apperr.CodeInvalidInput, err), "read survey config %s", path)
	}
	cfg, err := Parse(blob)
	if err != nil {
		return nil, apperr.Wrapf(err, "survey config %s", path)
	}
	return cfg, nil
}

func Parse(blob []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(blob, &cfg); err != nil {
		return nil, apperr.WithCode(apperr.CodeInvalidInput, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Version < 1 {
		return apperr.Newf(apperr.CodeInvalidInput, "survey config: unsupported version %d", c.Version)
	}
	roles := map[string]struct{}{}
	for _, r := range c.Roles {
		if r.Name == "" {
			return apperr.New(apperr.CodeInvalidInput, "survey config: role without name")
		}
		if _, dup := roles[r.Name]; dup {
			return apperr.Newf(apperr.CodeInvalidInput, "survey config: duplicate role %s", r.Name)
		}
		roles[r.Name] = struct{}{}
	}

	sections := map[string]struct{}{}
	for _, s := range c.Sections {
		if _, dup := sections[s.ID]; dup || s.ID == "" {
			return apperr.Newf(apperr.CodeInvalidInput, "survey config: bad or duplicate section id %q", s.ID)
		}
		sections[s.ID] = struct{}{}
		for _, ch := range s.Charts {
			if err := c.validateChart(s.ID, ch, roles); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Config) validateChart(section string, ch Chart, roles map[string]struct{}) error {
	where := fmt.Sprintf("survey config: section %s chart %s", section, ch.ID)
	switch ch.Kind {
	case ChartCounts, ChartAges, ChartSplit:
		if ch.Role == "" && ch.Column == "" {
			return apperr.Newf(apperr.CodeInvalidInput, "%s: needs role or column", where)
		}
	case ChartLikert, ChartPresence:
		if len(ch.Questions) == 0 {
			return apperr.Newf(apperr.CodeInvalidInput, "%s: needs questions", where)
		}
	default:
		return apperr.Newf(apperr.CodeInvalidInput, "%s: unknown kind %q", where, ch.Kind)
	}
	if ch.Role != "" {
		if _, ok := roles[ch.Role]; !ok {
			return apperr.Newf(apperr.CodeInvalidInput, "%s: unknown role %s", where, ch.Role)
		}
	}
	switch ch.Basis {
	case "", internal.BasisRows, internal.BasisRespondents:
	default:
		return apperr.Newf(apperr.CodeInvalidInput, "%s: unknown basis %s", where, ch.Basis)
	}
	return nil
}

func (c *Config) Role(name string) (Role, bool) {
	for _, r := range c.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

func (c *Config) Section(id string) (Section, bool) {
	for _, s := range c.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}
