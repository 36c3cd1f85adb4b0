// Package cli holds the pieces shared by the plusdeck command line programs: global
// flags, environment loading, logger setup, output formatting and a small command tree.
package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/arloliu/go-plusdeck/config"
	"github.com/arloliu/go-plusdeck/logger"
)

// EnvLogLevel sets the default of the --log-level flag.
const EnvLogLevel = "PLUSDECK_LOG_LEVEL"

// LoadEnv loads a .env file from the working directory into the environment.
// Variables that are already set win over the file.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env file", "error", err)
	}
}

// Globals holds the flags shared by the programs. Each program registers the groups it
// needs.
type Globals struct {
	Global     bool
	ConfigFile string
	LogLevel   string
	Port       string
	Output     string
	Timeout    time.Duration

	fs *pflag.FlagSet
}

// RegisterConfig registers --global and --config-file.
func (g *Globals) RegisterConfig(fs *pflag.FlagSet) {
	g.fs = fs
	fs.BoolVar(&g.Global, "global", os.Geteuid() == 0,
		"use the global config file "+config.GlobalFile+" (default true when run as root)")
	fs.StringVarP(&g.ConfigFile, "config-file", "C", "", "path to a config file")
}

// RegisterLogging registers --log-level, defaulting to $PLUSDECK_LOG_LEVEL.
func (g *Globals) RegisterLogging(fs *pflag.FlagSet) {
	level := os.Getenv(EnvLogLevel)
	if level == "" {
		level = logger.InfoLevel.String()
	}
	fs.StringVar(&g.LogLevel, "log-level", level, "log level: debug, info, warn, error or fatal")
}

// RegisterOutput registers --output.
func (g *Globals) RegisterOutput(fs *pflag.FlagSet) {
	fs.StringVar(&g.Output, "output", "", "output format: text or json (default text on a terminal, json otherwise)")
}

// RegisterTimeout registers --timeout.
func (g *Globals) RegisterTimeout(fs *pflag.FlagSet) {
	g.fs = fs
	fs.DurationVar(&g.Timeout, "timeout", 0, "default timeout of waits, 0 for none (env "+config.EnvTimeout+")")
}

// RegisterDevice registers --port and --timeout.
func (g *Globals) RegisterDevice(fs *pflag.FlagSet) {
	fs.StringVar(&g.Port, "port", "", "serial port of the deck (env "+config.EnvPort+")")
	g.RegisterTimeout(fs)
}

// SetupLogger installs the default logger at the requested level, writing to stderr.
func (g *Globals) SetupLogger() (logger.Logger, error) {
	level, err := logger.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, Usage(err)
	}

	l := logger.NewSlogWriter(os.Stderr, level, false)
	logger.SetLogger(l)

	return l, nil
}

// ConfigPath resolves the configuration file from --config-file and --global.
func (g *Globals) ConfigPath() (string, error) {
	if g.ConfigFile != "" && g.Global {
		logger.Warn("--config-file is set, ignoring --global")
	}

	return config.FilePath(g.ConfigFile, g.Global)
}

// LoadConfig loads the configuration file as stored, without overrides.
func (g *Globals) LoadConfig() (*config.Config, error) {
	path, err := g.ConfigPath()
	if err != nil {
		return nil, err
	}

	return config.LoadFile(path)
}

// EffectiveConfig loads the configuration and applies the environment, then the flags.
func (g *Globals) EffectiveConfig() (*config.Config, error) {
	cfg, err := g.LoadConfig()
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, Usage(err)
	}

	if g.Port != "" {
		cfg.Port = g.Port
	}
	if g.fs != nil && g.fs.Changed("timeout") {
		if g.Timeout < 0 {
			return nil, Usage(fmt.Errorf("negative timeout %s", g.Timeout))
		}
		cfg.Timeout = g.Timeout
	}

	return cfg, nil
}
