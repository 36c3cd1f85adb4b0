// Package config loads and saves the plusdeck configuration file.
//
// The file is YAML. Its location is, in order of precedence:
//   - an explicit path (the --config-file flag),
//   - GlobalFile when the global configuration is requested,
//   - plusdeck.yaml under the user configuration directory ($XDG_CONFIG_HOME, ~/.config).
//
// A missing file is not an error: the defaults are used and Save creates it.
// The PLUSDECK_PORT and PLUSDECK_TIMEOUT environment variables override the file
// when ApplyEnv is called.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppName names the configuration file and directory.
	AppName = "plusdeck"

	// GlobalFile is the system wide configuration file.
	GlobalFile = "/etc/plusdeck.yaml"

	// EnvPort overrides the serial port.
	EnvPort = "PLUSDECK_PORT"
	// EnvTimeout overrides the default timeout.
	EnvTimeout = "PLUSDECK_TIMEOUT"
)

// ErrUnknownField indicates a configuration field that does not exist.
var ErrUnknownField = errors.New("config: unknown field")

// Config is the plusdeck configuration.
type Config struct {
	// Port is the serial port of the deck. Empty means the first port of the system.
	Port string `yaml:"port,omitempty" json:"port"`

	// Timeout bounds waits of command line programs. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout"`

	file string
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{}
}

// UserFile returns the path of the configuration file of the current user.
func UserFile() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("config: locate user config dir: %w", err)
		}
	}

	return filepath.Join(dir, AppName+".yaml"), nil
}

// FilePath resolves the configuration file path from an explicit path and the global flag.
func FilePath(path string, global bool) (string, error) {
	switch {
	case path != "":
		return path, nil
	case global:
		return GlobalFile, nil
	default:
		return UserFile()
	}
}

// Load resolves the configuration file with FilePath and loads it.
func Load(path string, global bool) (*Config, error) {
	file, err := FilePath(path, global)
	if err != nil {
		return nil, err
	}

	return LoadFile(file)
}

// LoadFile loads the configuration from path, merged over the defaults.
// A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.file = path

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// File returns the path the configuration was loaded from and is saved to.
func (c *Config) File() string { return c.file }

// SetFile changes the path Save writes to.
func (c *Config) SetFile(path string) { c.file = path }

// Save writes the configuration to its file, creating the directory if needed.
func (c *Config) Save() error {
	if c.file == "" {
		return errors.New("config: no file to save to")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.file), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	if err := os.WriteFile(c.file, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", c.file, err)
	}

	return nil
}

// ApplyEnv overrides fields from the PLUSDECK_* environment variables.
func (c *Config) ApplyEnv() error {
	if port, ok := os.LookupEnv(EnvPort); ok && port != "" {
		c.Port = port
	}

	if timeout, ok := os.LookupEnv(EnvTimeout); ok && timeout != "" {
		if err := c.Set("timeout", timeout); err != nil {
			return fmt.Errorf("config: %s: %w", EnvTimeout, err)
		}
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}

	return nil
}

// Fields returns the names of the configuration fields.
func Fields() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Get returns the value of a field as text.
func (c *Config) Get(name string) (string, error) {
	f, err := lookup(name)
	if err != nil {
		return "", err
	}

	return f.get(c), nil
}

// Set parses value into a field.
func (c *Config) Set(name, value string) error {
	f, err := lookup(name)
	if err != nil {
		return err
	}

	return f.set(c, value)
}

// Unset resets a field to its default.
func (c *Config) Unset(name string) error {
	f, err := lookup(name)
	if err != nil {
		return err
	}

	f.unset(c)

	return nil
}

type field struct {
	get   func(*Config) string
	set   func(*Config, string) error
	unset func(*Config)
}

var fields = map[string]field{
	"port": {
		get: func(c *Config) string { return c.Port },
		set: func(c *Config, v string) error {
			c.Port = v
			return nil
		},
		unset: func(c *Config) { c.Port = Default().Port },
	},
	"timeout": {
		get: func(c *Config) string {
			if c.Timeout == 0 {
				return ""
			}

			return c.Timeout.String()
		},
		set: func(c *Config, v string) error {
			d, err := parseTimeout(v)
			if err != nil {
				return err
			}
			c.Timeout = d

			return nil
		},
		unset: func(c *Config) { c.Timeout = Default().Timeout },
	},
}

func lookup(name string) (field, error) {
	f, ok := fields[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return field{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}

	return f, nil
}

// parseTimeout accepts a Go duration or a number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)

	d, err := time.ParseDuration(v)
	if err != nil {
		var secs float64
		if _, serr := fmt.Sscanf(v, "%g", &secs); serr != nil {
			return 0, fmt.Errorf("invalid timeout %q: %w", v, err)
		}
		d = time.Duration(secs * float64(time.Second))
	}

	if d < 0 {
		return 0, fmt.Errorf("timeout must not be negative, got %s", d)
	}

	return d, nil
}
