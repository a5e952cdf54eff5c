package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

// Duration is a time.Duration which can be decoded from a TOML string such
// as "10s" or "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// FragmentConfig describes a single storage fragment: an independent sqlite
// file which owns every account homed in one of its cities.
type FragmentConfig struct {
	Name   string   `toml:"name"`
	DBPath string   `toml:"db-path"`
	Cities []string `toml:"cities"`
}

type Config struct {
	LogLevel string `toml:"log-level"`

	// Maximum time a transaction may wait for a single lock before it is
	// aborted with a retryable error.
	LockTimeout Duration `toml:"lock-timeout"`

	Fragments []FragmentConfig `toml:"fragment"`
}

func (c *Config) Validate() error {
	if len(c.Fragments) == 0 {
		return fmt.Errorf("at least one fragment must be configured")
	}
	if c.LockTimeout.Duration <= 0 {
		return fmt.Errorf("lock timeout must be greater than 0")
	}
	names := make(map[string]struct{})
	paths := make(map[string]struct{})
	cities := make(map[string]string)
	for _, frag := range c.Fragments {
		if frag.Name == "" {
			return fmt.Errorf("fragment name must not be empty")
		}
		if _, ok := names[frag.Name]; ok {
			return fmt.Errorf("duplicate fragment name %q", frag.Name)
		}
		names[frag.Name] = struct{}{}
		if _, ok := paths[frag.DBPath]; ok {
			return fmt.Errorf("fragment %q reuses db path %q", frag.Name, frag.DBPath)
		}
		paths[frag.DBPath] = struct{}{}
		for _, city := range frag.Cities {
			if owner, ok := cities[city]; ok {
				return fmt.Errorf("city %q assigned to both %q and %q", city, owner, frag.Name)
			}
			cities[city] = frag.Name
		}
	}
	return nil
}

// FragmentForCity returns the name of the fragment owning the given city, or
// the empty string if no fragment is configured for it.
func (c *Config) FragmentForCity(city string) string {
	for _, frag := range c.Fragments {
		for _, candidate := range frag.Cities {
			if candidate == city {
				return frag.Name
			}
		}
	}
	return ""
}

// Load reads and validates a TOML config file.
func Load(path string) (*Config, error) {
	c := new(Config)
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, errors.Annotatef(err, "decode config %s", path)
	}
	if c.LogLevel == "" {
		c.LogLevel = getLogLevel()
	}
	if c.LockTimeout.Duration == 0 {
		c.LockTimeout.Duration = 10 * time.Second
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return c, nil
}

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

func NewDefaultConfig() *Config {
	dir := filepath.Join(os.TempDir(), "tinybank")
	return &Config{
		LogLevel:    getLogLevel(),
		LockTimeout: Duration{10 * time.Second},
		Fragments: []FragmentConfig{
			{Name: "north", DBPath: filepath.Join(dir, "north.db"), Cities: []string{"Kisumu", "Eldoret"}},
			{Name: "central", DBPath: filepath.Join(dir, "central.db"), Cities: []string{"Nairobi", "Nakuru"}},
			{Name: "coast", DBPath: filepath.Join(dir, "coast.db"), Cities: []string{"Mombasa", "Malindi"}},
		},
	}
}

func NewTestConfig() *Config {
	c := NewDefaultConfig()
	c.LockTimeout = Duration{500 * time.Millisecond}
	return c
}
