// Package config handles ccvm.toml machine configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"ccvm/memory"

	"github.com/BurntSushi/toml"
)

const FileName = "ccvm.toml"

// Config represents a ccvm.toml file.
type Config struct {
	Machine Machine      `toml:"machine"`
	Memory  MemoryConfig `toml:"memory"`
	Log     Log          `toml:"log"`

	// Dir is the directory containing the ccvm.toml file (set at load time).
	Dir string `toml:"-"`
}

type Machine struct {
	MaxSteps int  `toml:"max-steps"` // 0 = unlimited
	Trace    bool `toml:"trace"`
}

type MemoryConfig struct {
	Virgin  *int                    `toml:"virgin"`
	Regions map[string]RegionConfig `toml:"regions"`
}

// RegionConfig overrides one region of the default layout. A zero field
// keeps the default.
type RegionConfig struct {
	Start  uint32 `toml:"start"`
	Length uint32 `toml:"length"`
}

type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default reproduces the built-in machine.
func Default() *Config {
	virgin := memory.DefaultVirgin
	return &Config{
		Memory: MemoryConfig{Virgin: &virgin},
	}
}

// Load parses a ccvm.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// Parse decodes ccvm.toml text and applies defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, err
	}

	// Defaults
	if c.Memory.Virgin == nil {
		virgin := memory.DefaultVirgin
		c.Memory.Virgin = &virgin
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a ccvm.toml file, then loads
// and returns it. Without one the defaults are returned.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

func (c *Config) Validate() error {
	if c.Machine.MaxSteps < 0 {
		return fmt.Errorf("machine.max-steps must not be negative")
	}
	if v := *c.Memory.Virgin; v < 0 || v > 0xff {
		return fmt.Errorf("memory.virgin 0x%x is not a byte", v)
	}
	if _, err := c.Layout(); err != nil {
		return err
	}
	return nil
}

// Layout is the default layout with the configured region overrides.
func (c *Config) Layout() (memory.Layout, error) {
	layout := memory.DefaultLayout()
	slots := map[string]*memory.Region{
		memory.RegionProg: &layout.Prog,
		memory.RegionReg:  &layout.Reg,
		memory.RegionES:   &layout.ES,
		memory.RegionDefs: &layout.Defs,
		memory.RegionGAS:  &layout.GAS,
		memory.RegionHeap: &layout.Heap,
		memory.RegionRTS:  &layout.RTS,
	}
	for name, override := range c.Memory.Regions {
		r, found := slots[name]
		if !found {
			return memory.Layout{}, fmt.Errorf("memory.regions: unknown region %q", name)
		}
		if override.Start != 0 {
			r.Start = override.Start
		}
		if override.Length != 0 {
			r.Length = override.Length
		}
	}
	if err := layout.Validate(); err != nil {
		return memory.Layout{}, fmt.Errorf("memory.regions: %w", err)
	}
	return layout, nil
}

// NewMemory builds a Memory from the configured layout and virgin byte.
func (c *Config) NewMemory() (*memory.Memory, error) {
	layout, err := c.Layout()
	if err != nil {
		return nil, err
	}
	return memory.New(layout, memory.WithVirgin(byte(*c.Memory.Virgin))), nil
}
