// Package config loads the loader's hierarchical YAML configuration,
// expanding environment variable references before parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the loader's configuration tree, mirroring the
// external interface described for input, output and monitoring collaborators.
type Config struct {
	Input       Input       `yaml:"input"`
	Output      Output      `yaml:"output"`
	Batching    Batching    `yaml:"batching"`
	Retries     Retries     `yaml:"retries"`
	SkipSchemas []string    `yaml:"skipSchemas"`
	Monitoring  Monitoring  `yaml:"monitoring"`
	Telemetry   Telemetry   `yaml:"telemetry"`
}

// Input describes the source-specific consumer configuration.
type Input struct {
	Type            string `yaml:"type"` // "pubsub" or "kafka"
	SubscriptionID  string `yaml:"subscriptionId"`
	StreamName      string `yaml:"streamName"`
	ConsumerAppName string `yaml:"consumerAppName"`
	InitialPosition string `yaml:"initialPosition"` // "trim_horizon" or "latest"
	RetrievalMode   string `yaml:"retrievalMode"`
}

// Output groups the good-stream and bad-stream destinations.
type Output struct {
	Good OutputGood `yaml:"good"`
	Bad  OutputBad  `yaml:"bad"`
}

// OutputGood is the warehouse connection configuration.
type OutputGood struct {
	URL           string        `yaml:"url"`
	User          string        `yaml:"user"`
	PrivateKey    string        `yaml:"privateKey"`
	Passphrase    string        `yaml:"passphrase"`
	Role          string        `yaml:"role"`
	Database      string        `yaml:"database"`
	Schema        string        `yaml:"schema"`
	Table         string        `yaml:"table"`
	ChannelName   string        `yaml:"channelName"`
	LoginTimeout  time.Duration `yaml:"loginTimeout"`
	NetworkTimeout time.Duration `yaml:"networkTimeout"`
	QueryTimeout  time.Duration `yaml:"queryTimeout"`
}

// OutputBad is the dead-letter destination configuration.
type OutputBad struct {
	Type          string        `yaml:"type"`
	Destination   string        `yaml:"destination"`
	BatchSize     int           `yaml:"batchSize"`
	MaxBytes      int           `yaml:"maxBytes"`
	BackoffDelay  time.Duration `yaml:"backoffDelay"`
	BackoffMaxRetries int       `yaml:"backoffMaxRetries"`
}

// Batching controls how source records are grouped before an insert attempt.
type Batching struct {
	MaxBytes          int           `yaml:"maxBytes"`
	MaxDelay          time.Duration `yaml:"maxDelay"`
	UploadConcurrency int           `yaml:"uploadConcurrency"`
}

// Retries configures the two retry policies used by the retry engine.
type Retries struct {
	SetupErrors    SetupRetryConfig    `yaml:"setupErrors"`
	TransientErrors TransientRetryConfig `yaml:"transientErrors"`
}

// SetupRetryConfig is the unbounded, alerted retry policy.
type SetupRetryConfig struct {
	Delay time.Duration `yaml:"delay"`
}

// TransientRetryConfig is the bounded retry policy.
type TransientRetryConfig struct {
	Delay    time.Duration `yaml:"delay"`
	Attempts int           `yaml:"attempts"`
}

// Monitoring groups the metrics, crash-reporting and alerting collaborators.
type Monitoring struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Sentry  SentryConfig  `yaml:"sentry"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// MetricsConfig configures the statsd reporter.
type MetricsConfig struct {
	Statsd StatsdConfig `yaml:"statsd"`
}

// StatsdConfig is the statsd collaborator's connection configuration.
type StatsdConfig struct {
	Host   string            `yaml:"host"`
	Port   int               `yaml:"port"`
	Tags   map[string]string `yaml:"tags"`
	Period time.Duration     `yaml:"period"`
	Prefix string            `yaml:"prefix"`
}

// SentryConfig configures the optional crash-report collaborator.
type SentryConfig struct {
	DSN  string            `yaml:"dsn"`
	Tags map[string]string `yaml:"tags"`
}

// WebhookConfig configures the alert webhook collaborator.
type WebhookConfig struct {
	Endpoint string            `yaml:"endpoint"`
	Tags     map[string]string `yaml:"tags"`
}

// Telemetry configures the heartbeat collaborator.
type Telemetry struct {
	Destination string            `yaml:"destination"`
	Identifiers map[string]string `yaml:"identifiers"`
}

// Load reads and parses a YAML config file from path, expanding
// ${VAR:default} environment variable references first.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	expanded, err := ReplaceEnvVariables(raw, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("expand env vars in %q: %w", path, err)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Batching: Batching{
			MaxBytes:          16 * 1024 * 1024,
			MaxDelay:          time.Second,
			UploadConcurrency: 1,
		},
		Retries: Retries{
			SetupErrors: SetupRetryConfig{Delay: 30 * time.Second},
			TransientErrors: TransientRetryConfig{
				Delay:    time.Second,
				Attempts: 5,
			},
		},
		Output: Output{
			Good: OutputGood{
				LoginTimeout:   60 * time.Second,
				NetworkTimeout: 60 * time.Second,
				QueryTimeout:   60 * time.Second,
			},
		},
	}
}
