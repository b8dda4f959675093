// Package config loads the sync queue configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/errors"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "SYNCQ_CONFIG"

// AppConfig is the full application configuration.
type AppConfig struct {
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`

	Backend struct {
		BaseURL string            `yaml:"baseURL"`
		Timeout time.Duration     `yaml:"timeout"`
		Headers map[string]string `yaml:"headers"`
	} `yaml:"backend"`

	Connectivity struct {
		HealthURL     string        `yaml:"healthURL"`
		ProbeInterval time.Duration `yaml:"probeInterval"`
		ProbeTimeout  time.Duration `yaml:"probeTimeout"`
		StartOnline   bool          `yaml:"startOnline"`
	} `yaml:"connectivity"`

	Sync struct {
		MaxRetries        int           `yaml:"maxRetries"`
		AutoDrainInterval time.Duration `yaml:"autoDrainInterval"`
		DrainOnStart      bool          `yaml:"drainOnStart"`
	} `yaml:"sync"`

	HTTP struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		AllowedOrigins  []string      `yaml:"allowedOrigins"`
	} `yaml:"http"`
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	cfg := &AppConfig{
		DataDir:  "data",
		LogLevel: "INFO",
	}
	cfg.Backend.BaseURL = "http://localhost:8080/api"
	cfg.Backend.Timeout = 30 * time.Second
	cfg.Connectivity.ProbeInterval = 15 * time.Second
	cfg.Connectivity.ProbeTimeout = 5 * time.Second
	cfg.Connectivity.StartOnline = true
	cfg.Sync.MaxRetries = 3
	cfg.Sync.AutoDrainInterval = time.Minute
	cfg.Sync.DrainOnStart = true
	cfg.HTTP.Addr = "127.0.0.1:8090"
	cfg.HTTP.ShutdownTimeout = 10 * time.Second
	return cfg
}

// Load reads the file at path over the defaults. An empty path falls back to
// $SYNCQ_CONFIG; when both are empty only defaults and env overrides apply.
func Load(path string) (*AppConfig, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}

	cfg := Default()
	if path != "" {
		buff, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrConfig, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(buff, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrConfig, "failed to parse config file", err)
		}
		logging.Debug("Loaded config file", map[string]interface{}{"path": path})
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays SYNCQ_* variables.
func (c *AppConfig) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(errors.ErrConfig, key+" is not a duration", err)
		}
		*dst = d
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.ErrConfig, key+" is not a boolean", err)
		}
		*dst = b
		return nil
	}

	str("SYNCQ_DATA_DIR", &c.DataDir)
	str("SYNCQ_LOG_LEVEL", &c.LogLevel)
	str("SYNCQ_BACKEND_URL", &c.Backend.BaseURL)
	str("SYNCQ_HEALTH_URL", &c.Connectivity.HealthURL)
	str("SYNCQ_HTTP_ADDR", &c.HTTP.Addr)

	if v, ok := lookup("SYNCQ_MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.ErrConfig, "SYNCQ_MAX_RETRIES is not an integer", err)
		}
		c.Sync.MaxRetries = n
	}
	if err := dur("SYNCQ_BACKEND_TIMEOUT", &c.Backend.Timeout); err != nil {
		return err
	}
	if err := dur("SYNCQ_PROBE_INTERVAL", &c.Connectivity.ProbeInterval); err != nil {
		return err
	}
	if err := dur("SYNCQ_AUTO_DRAIN_INTERVAL", &c.Sync.AutoDrainInterval); err != nil {
		return err
	}
	if err := boolean("SYNCQ_START_ONLINE", &c.Connectivity.StartOnline); err != nil {
		return err
	}
	return nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *AppConfig) Validate() error {
	var problems []string

	if strings.TrimSpace(c.DataDir) == "" {
		problems = append(problems, "dataDir is required")
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		problems = append(problems, fmt.Sprintf("logLevel %q is not one of DEBUG, INFO, WARN, ERROR", c.LogLevel))
	}
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("backend.baseURL %q is not an absolute URL", c.Backend.BaseURL))
	}
	if c.Backend.Timeout <= 0 {
		problems = append(problems, "backend.timeout must be positive")
	}
	if c.Connectivity.HealthURL != "" && c.Connectivity.ProbeInterval <= 0 {
		problems = append(problems, "connectivity.probeInterval must be positive when healthURL is set")
	}
	if c.Sync.MaxRetries < 1 {
		problems = append(problems, "sync.maxRetries must be at least 1")
	}
	if c.Sync.AutoDrainInterval < 0 {
		problems = append(problems, "sync.autoDrainInterval must not be negative")
	}
	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr is required")
	}

	if len(problems) > 0 {
		return errors.New(errors.ErrConfig, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}
