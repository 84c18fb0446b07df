package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/poolrotate/internal/errors"
	"github.com/systmms/poolrotate/internal/logging"
)

//go:embed schema.json
var schema []byte

// Pool modes
const (
	ModeEvict   = "evict"
	ModeRefresh = "refresh"
	ModeDirect  = "direct"
)

// Config holds the runtime configuration
type Config struct {
	Path       string
	Debug      bool
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the poolrotate.yaml structure
type Definition struct {
	Secrets SecretsConfig `yaml:"secrets"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Probe   ProbeConfig   `yaml:"probe"`
	Pools   []PoolConfig  `yaml:"pools"`
}

// SecretsConfig points at the mounted credential files
type SecretsConfig struct {
	Path            string        `yaml:"path" default:"/var/run/secrets/database"`
	RefreshInterval time.Duration `yaml:"refresh_interval" default:"30s"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level" default:"info"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"false"`
	Address string `yaml:"address" default:":9090"`
	Path    string `yaml:"path" default:"/metrics"`
}

// ProbeConfig holds pool health probe settings. A zero interval disables probing.
type ProbeConfig struct {
	Interval time.Duration `yaml:"interval" default:"0s"`
	Timeout  time.Duration `yaml:"timeout" default:"5s"`
}

// PoolConfig describes one connection pool
type PoolConfig struct {
	Name            string        `yaml:"name"`
	Driver          string        `yaml:"driver"`
	Mode            string        `yaml:"mode" default:"evict"`
	URL             string        `yaml:"url"`
	URLFromSecret   bool          `yaml:"url_from_secret"`
	MaxOpen         int           `yaml:"max_open" default:"10"`
	MaxIdle         int           `yaml:"max_idle" default:"2"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" default:"30s"`
}

// UnmarshalYAML applies the pool defaults before decoding, so values set
// explicitly in the file, zeros included, are kept.
func (p *PoolConfig) UnmarshalYAML(value *yaml.Node) error {
	if err := defaults.Set(p); err != nil {
		return fmt.Errorf("apply pool defaults: %w", err)
	}
	type plain PoolConfig
	return value.Decode((*plain)(p))
}

// Default returns a definition with every default applied and no pools
func Default() *Definition {
	var def Definition
	// Only fails on malformed default tags.
	if err := defaults.Set(&def); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &def
}

// Load reads and parses the poolrotate.yaml file. An empty Path yields the
// defaults.
func (c *Config) Load() error {
	if c.Path == "" {
		c.Definition = Default()
		return nil
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Pass --config with the path of an existing poolrotate.yaml",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}

	c.Definition = def
	if c.Logger != nil {
		c.Logger.Debug("Loaded configuration from %s with %d pools", c.Path, len(def.Pools))
	}
	return nil
}

// Parse validates data against the schema and decodes it with defaults applied
func Parse(data []byte) (*Definition, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dserrors.ConfigError{
			Message:    fmt.Sprintf("invalid YAML syntax in configuration file: %v", err),
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	def := Default()
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, dserrors.ConfigError{
			Message:    fmt.Sprintf("invalid configuration: %v", err),
			Suggestion: "Durations use Go syntax such as 30s or 5m",
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func validateSchema(raw interface{}) error {
	if raw == nil {
		raw = map[string]interface{}{}
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration for validation: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return dserrors.ConfigError{
			Message:    "schema validation failed:\n  - " + strings.Join(errorMessages, "\n  - "),
			Suggestion: "Compare your poolrotate.yaml with the documented configuration keys",
		}
	}
	return nil
}

// Validate checks rules the schema cannot express
func (d *Definition) Validate() error {
	if d.Secrets.RefreshInterval <= 0 {
		return dserrors.ConfigError{
			Field:      "secrets.refresh_interval",
			Value:      d.Secrets.RefreshInterval,
			Message:    "refresh interval must be positive",
			Suggestion: "Use a duration such as 30s",
		}
	}

	seen := make(map[string]bool, len(d.Pools))
	for i, p := range d.Pools {
		field := fmt.Sprintf("pools[%d]", i)

		if seen[p.Name] {
			return dserrors.ConfigError{
				Field:      field + ".name",
				Value:      p.Name,
				Message:    "duplicate pool name",
				Suggestion: "Give every pool a unique name",
			}
		}
		seen[p.Name] = true

		if p.URL == "" && !p.URLFromSecret {
			return dserrors.ConfigError{
				Field:      field + ".url",
				Message:    "connection URL is required",
				Suggestion: "Set url, or set url_from_secret: true to read the jdbc-url secret file",
			}
		}
		if p.URL != "" && p.URLFromSecret {
			return dserrors.ConfigError{
				Field:      field + ".url_from_secret",
				Value:      p.Name,
				Message:    "url and url_from_secret are mutually exclusive",
				Suggestion: "Remove one of the two settings",
			}
		}
		if p.MaxOpen > 0 && p.MaxIdle > p.MaxOpen {
			return dserrors.ConfigError{
				Field:      field + ".max_idle",
				Value:      p.MaxIdle,
				Message:    "max_idle cannot exceed max_open",
				Suggestion: fmt.Sprintf("Use a value up to %d", p.MaxOpen),
			}
		}
	}
	return nil
}

// ApplyOverrides replaces settings given on the command line
func (d *Definition) ApplyOverrides(secretsPath string, interval time.Duration) {
	if secretsPath != "" {
		d.Secrets.Path = secretsPath
	}
	if interval > 0 {
		d.Secrets.RefreshInterval = interval
	}
}

// GetPool returns the configuration of the named pool
func (d *Definition) GetPool(name string) (PoolConfig, error) {
	var available []string
	for _, p := range d.Pools {
		if p.Name == name {
			return p, nil
		}
		available = append(available, p.Name)
	}

	suggestion := "No pools are configured"
	if len(available) > 0 {
		suggestion = fmt.Sprintf("Available pools: %s", strings.Join(available, ", "))
	}
	return PoolConfig{}, dserrors.ConfigError{
		Field:      "pool",
		Value:      name,
		Message:    "pool not found",
		Suggestion: suggestion,
	}
}
