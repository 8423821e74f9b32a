package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// EnvPrefix is the prefix of environment overrides, e.g. FASTSTATIC_PORT
const EnvPrefix = "FASTSTATIC"

// Config holds all application configuration.
type Config struct {
	Port           int    `config:"port"`
	TrigMode       int    `config:"trig_mode"`
	TimeoutMS      int    `config:"timeout_ms"`
	OptLinger      bool   `config:"opt_linger"`
	ThreadNumber   int    `config:"thread_number"`
	MaxConnections int    `config:"max_connections"`
	ResourceDir    string `config:"resource_dir"`
	Env            string `config:"env"`
	LogLevel       string `config:"log_level"`
	GCPercent      int    `config:"gc_percent"`

	ConfigFile string `config:"-"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port:           1234,
		TrigMode:       3,
		TimeoutMS:      60000,
		ThreadNumber:   4,
		MaxConnections: 65536,
		ResourceDir:    "./resources",
		Env:            "development",
		LogLevel:       "info",
		GCPercent:      200,
	}
}

// New loads configuration from the command line, exiting on bad input.
func New() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Parse builds a Config from defaults, then the JSON file named by
// -config, then FASTSTATIC_* variables, then flags given in args.
func Parse(args []string) (*Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet("fast-static", flag.ContinueOnError)

	fs.IntVar(&cfg.Port, "port", cfg.Port, "listen port (0 or 1024-65535)")
	fs.IntVar(&cfg.TrigMode, "trig-mode", cfg.TrigMode, "0 LT, 1 ET connections, 2 ET listener, 3 ET both")
	fs.IntVar(&cfg.TimeoutMS, "timeout-ms", cfg.TimeoutMS, "idle connection timeout in milliseconds (<=0 disables)")
	fs.BoolVar(&cfg.OptLinger, "linger", cfg.OptLinger, "enable SO_LINGER on close")
	fs.IntVar(&cfg.ThreadNumber, "threads", cfg.ThreadNumber, "worker thread count")
	fs.IntVar(&cfg.MaxConnections, "max-conns", cfg.MaxConnections, "maximum concurrent connections")
	fs.StringVar(&cfg.ResourceDir, "root", cfg.ResourceDir, "resource directory")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development/production)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.IntVar(&cfg.GCPercent, "gc-percent", cfg.GCPercent, "GOGC value applied at startup")
	fs.StringVar(&cfg.ConfigFile, "config", "", "JSON config file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	m := NewManager()
	if cfg.ConfigFile != "" {
		if err := m.LoadFromJSON(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	m.LoadFromEnv(EnvPrefix)

	// file and env values replace defaults...
	fileAndEnv := Default()
	if err := m.Unmarshal(fileAndEnv); err != nil {
		return nil, err
	}
	fileAndEnv.ConfigFile = cfg.ConfigFile
	*cfg = *fileAndEnv

	// ...and flags given explicitly replace both
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	var errs []error
	if c.Port != 0 && (c.Port < 1024 || c.Port > 65535) {
		errs = append(errs, fmt.Errorf("port %d out of range (0 or 1024-65535)", c.Port))
	}
	if c.TrigMode < 0 {
		errs = append(errs, fmt.Errorf("trig_mode %d must not be negative", c.TrigMode))
	}
	if c.ThreadNumber <= 0 {
		errs = append(errs, fmt.Errorf("thread_number %d must be positive", c.ThreadNumber))
	}
	if c.MaxConnections <= 0 {
		errs = append(errs, fmt.Errorf("max_connections %d must be positive", c.MaxConnections))
	}
	if c.ResourceDir == "" {
		errs = append(errs, errors.New("resource_dir must not be empty"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// IdleTimeout returns the idle connection timeout
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// IsProduction reports whether Env selects production behaviour
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
