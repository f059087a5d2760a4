// Package config loads the gateway's YAML configuration bundle.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// OpentelemetryTracingSetting toggles OTLP tracing.
type OpentelemetryTracingSetting struct {
	Enable bool `yaml:"enable" default:"false"`
}

// OpentelemetrySetting groups observability toggles.
type OpentelemetrySetting struct {
	TracingSetting OpentelemetryTracingSetting `yaml:"tracing"`
}

// Config is the full set of options recognized by the gateway.
type Config struct {
	ServiceName     string `yaml:"service_name"`
	ListenPort      int    `yaml:"listen_port" default:"6100"`
	TimeoutDuration string `yaml:"timeout_duration" default:"5s"`

	SchemaRegistryURL string `yaml:"schema_registry_url"`
	UserCycleURL      string `yaml:"user_cycle_url"`
	PrivateKey        string `yaml:"private_key"`
	PollIntervalMs    int    `yaml:"poll_interval_ms"`

	RouterSignature string `yaml:"router_signature"`

	SentryDsn      string `yaml:"sentry_dsn"`
	KafkaBrokerURL string `yaml:"kafka_broker_url"`

	Opentelemetry OpentelemetrySetting `yaml:"opentelemetry"`
}

// Load reads the config bundle selected by envID ("dev" or "prod" by
// convention) from gateway.<envID>.yaml in the current directory. An empty
// envID loads gateway.dev.yaml.
func Load(envID string) (*Config, error) {
	if envID == "" {
		envID = "dev"
	}

	path := fmt.Sprintf("gateway.%s.yaml", envID)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gateway config %q: %w", path, err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gateway config %q: %w", path, err)
	}

	if cfg.ListenPort == 0 {
		cfg.ListenPort = 6100
	}
	if cfg.TimeoutDuration == "" {
		cfg.TimeoutDuration = "5s"
	}

	return &cfg, nil
}

// LoadFromEnv reads the ENV_ID environment variable and loads the
// corresponding config bundle.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("ENV_ID"))
}
