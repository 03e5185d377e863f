// Package config reads YAML run descriptions and turns them into meshes,
// laws and solver options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/notargets/DGSolver/partitions"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is a complete run description.
type Config struct {
	Mesh       MeshConfig                `yaml:"mesh"`
	Order      int                       `yaml:"order"`
	Partition  PartitionConfig           `yaml:"partition,omitempty"`
	Law        LawConfig                 `yaml:"law"`
	Initial    FieldConfig               `yaml:"initial"`
	Boundaries map[string]BoundaryConfig `yaml:"boundaries"`
	Time       TimeConfig                `yaml:"time"`
	Output     OutputConfig              `yaml:"output,omitempty"`
	Verbose    bool                      `yaml:"verbose,omitempty"`
}

// MeshConfig selects a mesh file or a structured generator.
type MeshConfig struct {
	File      string    `yaml:"file,omitempty"`
	Generator string    `yaml:"generator,omitempty"` // line, rectangle or box
	Divisions []int     `yaml:"divisions,omitempty"`
	Lower     []float64 `yaml:"lower,omitempty"` // Defaults to 0
	Upper     []float64 `yaml:"upper,omitempty"` // Defaults to 1
}

type PartitionConfig struct {
	Strategy     string `yaml:"strategy,omitempty"`
	MaxGroupSize int    `yaml:"max_group_size,omitempty"`
}

// LawConfig selects a built-in conservation law.
type LawConfig struct {
	Kind      string       `yaml:"kind"` // advection or burgers
	Fields    int          `yaml:"fields,omitempty"`
	Velocity  []float64    `yaml:"velocity,omitempty"` // Burgers direction
	Diffusion float64      `yaml:"diffusion,omitempty"`
	Penalty   float64      `yaml:"penalty,omitempty"`
	Source    *FieldConfig `yaml:"source,omitempty"`
}

// FieldConfig describes a field by its values at a point.
type FieldConfig struct {
	Kind      string    `yaml:"kind"` // constant or gaussian
	Value     []float64 `yaml:"value,omitempty"`
	Center    []float64 `yaml:"center,omitempty"`
	Width     float64   `yaml:"width,omitempty"`
	Amplitude float64   `yaml:"amplitude,omitempty"`
}

// BoundaryConfig is one tagged boundary condition.
type BoundaryConfig struct {
	Kind  string    `yaml:"kind"`
	Value []float64 `yaml:"value,omitempty"`
}

type TimeConfig struct {
	Integrator  string  `yaml:"integrator,omitempty"`
	Dt          float64 `yaml:"dt,omitempty"`
	CFL         float64 `yaml:"cfl,omitempty"`
	FinalTime   float64 `yaml:"final_time"`
	ReportEvery int     `yaml:"report_every,omitempty"`
}

type OutputConfig struct {
	Solution   string `yaml:"solution,omitempty"`
	Checkpoint string `yaml:"checkpoint,omitempty"`
	Restart    string `yaml:"restart,omitempty"`
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML document. Unknown keys are errors.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Marshal encodes c back to YAML.
func (c *Config) Marshal() ([]byte, error) { return yaml.Marshal(c) }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks c and fills in defaults.
func (c *Config) Validate() error {
	if c.Order < 0 {
		return invalid("order %d", c.Order)
	}
	if err := c.Mesh.validate(); err != nil {
		return err
	}
	if c.Law.Kind == "" {
		c.Law.Kind = "advection"
	}
	switch c.Law.Kind {
	case "advection":
		if c.Law.Fields == 0 {
			c.Law.Fields = 1
		}
	case "burgers":
		if c.Law.Fields > 1 {
			return invalid("burgers has one field, got %d", c.Law.Fields)
		}
		c.Law.Fields = 1
		if len(c.Law.Velocity) == 0 {
			c.Law.Velocity = []float64{1, 1, 1}
		}
	default:
		return invalid("unknown law %q", c.Law.Kind)
	}
	if len(c.Law.Velocity) > 3 {
		return invalid("velocity has %d components", len(c.Law.Velocity))
	}
	if c.Law.Fields < 1 || c.Law.Diffusion < 0 {
		return invalid("law needs at least one field and a non-negative diffusion")
	}
	if err := c.Initial.validate("initial", c.Law.Fields); err != nil {
		return err
	}
	if c.Law.Source != nil {
		if err := c.Law.Source.validate("source", c.Law.Fields); err != nil {
			return err
		}
	}
	for tag, bc := range c.Boundaries {
		if err := bc.validate(tag, c.Law.Fields); err != nil {
			return err
		}
	}
	if c.Time.Integrator == "" {
		c.Time.Integrator = "rk44"
	}
	if _, err := c.Integrator(); err != nil {
		return err
	}
	if _, err := partitions.ParseStrategy(c.Partition.Strategy); err != nil {
		return invalid("%v", err)
	}
	if c.Time.FinalTime <= 0 {
		return invalid("final_time must be positive")
	}
	if c.Time.Dt < 0 || c.Time.CFL < 0 {
		return invalid("negative dt or cfl")
	}
	if c.Time.Dt == 0 && c.Time.CFL == 0 {
		c.Time.CFL = 0.1
	}
	if c.Time.ReportEvery <= 0 {
		c.Time.ReportEvery = 100
	}
	return nil
}

func (m *MeshConfig) validate() error {
	if m.File != "" {
		if m.Generator != "" {
			return invalid("mesh has both a file and a generator")
		}
		return nil
	}
	dims := map[string]int{"line": 1, "rectangle": 2, "box": 3}
	d, ok := dims[m.Generator]
	if !ok {
		return invalid("unknown mesh generator %q", m.Generator)
	}
	if len(m.Divisions) != d {
		return invalid("%s needs %d divisions, got %d", m.Generator, d, len(m.Divisions))
	}
	if len(m.Lower) == 0 {
		m.Lower = make([]float64, d)
	}
	if len(m.Upper) == 0 {
		m.Upper = make([]float64, d)
		for i := range m.Upper {
			m.Upper[i] = 1
		}
	}
	if len(m.Lower) != d || len(m.Upper) != d {
		return invalid("%s bounds need %d components", m.Generator, d)
	}
	for i := 0; i < d; i++ {
		if m.Divisions[i] < 1 {
			return invalid("divisions must be positive")
		}
		if m.Upper[i] <= m.Lower[i] {
			return invalid("empty mesh extent in direction %d", i)
		}
	}
	return nil
}

func (f *FieldConfig) validate(what string, fields int) error {
	switch f.Kind {
	case "", "constant":
		f.Kind = "constant"
		if len(f.Value) == 0 {
			f.Value = make([]float64, fields)
		}
		if len(f.Value) != fields {
			return invalid("%s has %d values for %d fields", what, len(f.Value), fields)
		}
	case "gaussian":
		if fields != 1 {
			return invalid("%s: gaussian fields are scalar", what)
		}
		if f.Width <= 0 {
			return invalid("%s: gaussian width must be positive", what)
		}
		if len(f.Center) > 3 {
			return invalid("%s: center has %d components", what, len(f.Center))
		}
		if f.Amplitude == 0 {
			f.Amplitude = 1
		}
	default:
		return invalid("%s: unknown field kind %q", what, f.Kind)
	}
	return nil
}

func (b *BoundaryConfig) validate(tag string, fields int) error {
	switch b.Kind {
	case "zero-flux", "symmetry", "interior-solution", "transmissive", "normal-diffusive-flux":
		return nil
	case "outside-value":
		if len(b.Value) != fields {
			return invalid("boundary %q has %d values for %d fields", tag, len(b.Value), fields)
		}
		return nil
	}
	return invalid("boundary %q: unknown kind %q", tag, b.Kind)
}

// vec3 pads v with zeros.
func vec3(v []float64) (x [3]float64) {
	copy(x[:], v)
	return
}
