// Package config loads the service configuration: one YAML or JSON5
// document, composed through $include directives, with ${ENV} references
// expanded before parsing. Defaults come first and the document overlays
// them, so an empty file is a valid configuration for everything except the
// tenant id.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"

	"github.com/haasonsaas/taskpilot/internal/agent"
	"github.com/haasonsaas/taskpilot/internal/audit"
	"github.com/haasonsaas/taskpilot/internal/decision"
	"github.com/haasonsaas/taskpilot/internal/llm"
	"github.com/haasonsaas/taskpilot/internal/llm/providers"
	"github.com/haasonsaas/taskpilot/internal/observability"
)

// Config is the root configuration document.
type Config struct {
	Agent         agent.Config        `yaml:"agent"`
	Model         ModelConfig         `yaml:"model"`
	Decision      decision.Config     `yaml:"decision"`
	Observability ObservabilityConfig `yaml:"observability"`
	Audit         audit.Config        `yaml:"audit"`
}

// ModelConfig pairs backend selection with the client's resilience settings.
type ModelConfig struct {
	Provider providers.Config `yaml:"provider"`
	Client   llm.Config       `yaml:"client"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
	// AddSource includes file and line in log records.
	AddSource bool `yaml:"add_source"`
	// RedactPatterns are extra regexes scrubbed from log output.
	RedactPatterns []string `yaml:"redact_patterns"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Addr is the listen address for the metrics endpoint. Default: :9090
	Addr string `yaml:"addr"`
}

type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// Defaults returns the configuration a document overlays.
func Defaults() Config {
	return Config{
		Agent: agent.DefaultConfig(),
		Model: ModelConfig{
			Provider: providers.Config{Name: "anthropic"},
			Client:   llm.DefaultConfig(),
		},
		Decision: decision.DefaultConfig(),
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "json"},
			Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
			Tracing: TracingConfig{ServiceName: "taskpilot", SamplingRate: 1.0},
		},
		Audit: audit.DefaultConfig(),
	}
}

// Load reads, composes, and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadEnv loads dotenv files into the process environment so ${VAR}
// references in the config resolve. With no arguments it tries ".env" and
// treats a missing file as fine; explicitly named files must exist.
func LoadEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && len(paths) == 0 && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Validate checks cross-field consistency. Component constructors revalidate
// what they own; this catches what a constructor would only see at runtime.
func (c *Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	if strings.TrimSpace(c.Model.Provider.Name) == "" {
		return fmt.Errorf("model: provider name is required")
	}
	if c.Model.Client.MaxTokens < 0 {
		return fmt.Errorf("model: max_tokens must not be negative")
	}
	if c.Model.Client.MaxRetries < 0 {
		return fmt.Errorf("model: max_retries must not be negative")
	}
	if err := c.Decision.Validate(); err != nil {
		return fmt.Errorf("decision: %w", err)
	}
	if err := c.Observability.validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	if err := validateAudit(c.Audit); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

func (o ObservabilityConfig) validate() error {
	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", o.Logging.Level)
	}
	switch o.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging: unknown format %q", o.Logging.Format)
	}
	if o.Tracing.SamplingRate < 0 || o.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing: sampling_rate must be between 0 and 1")
	}
	if o.Tracing.Enabled && strings.TrimSpace(o.Tracing.Endpoint) == "" {
		return fmt.Errorf("tracing: endpoint is required when tracing is enabled")
	}
	return nil
}

func validateAudit(cfg audit.Config) error {
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Level {
	case audit.LevelDebug, audit.LevelInfo, audit.LevelWarn, audit.LevelError:
	default:
		return fmt.Errorf("unknown level %q", cfg.Level)
	}
	switch cfg.Format {
	case audit.FormatJSON, audit.FormatLogfmt, audit.FormatText:
	default:
		return fmt.Errorf("unknown format %q", cfg.Format)
	}
	if cfg.Output != "stdout" && cfg.Output != "stderr" && !strings.HasPrefix(cfg.Output, "file:") {
		return fmt.Errorf("unsupported output %q", cfg.Output)
	}
	if cfg.BufferSize < 0 {
		return fmt.Errorf("buffer_size must not be negative")
	}
	return nil
}

// LogConfig maps the logging section onto the observability logger.
func (o ObservabilityConfig) LogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:          o.Logging.Level,
		Format:         o.Logging.Format,
		AddSource:      o.Logging.AddSource,
		RedactPatterns: o.Logging.RedactPatterns,
	}
}

// TraceConfig maps the tracing section onto the observability tracer. A
// disabled section maps to an empty endpoint, which the tracer treats as
// tracing off.
func (o ObservabilityConfig) TraceConfig() observability.TraceConfig {
	endpoint := o.Tracing.Endpoint
	if !o.Tracing.Enabled {
		endpoint = ""
	}
	return observability.TraceConfig{
		ServiceName:    o.Tracing.ServiceName,
		ServiceVersion: o.Tracing.ServiceVersion,
		Environment:    o.Tracing.Environment,
		Endpoint:       endpoint,
		SamplingRate:   o.Tracing.SamplingRate,
		Attributes:     o.Tracing.Attributes,
		EnableInsecure: o.Tracing.Insecure,
	}
}
