// Package config loads healerd configuration from YAML with environment
// overrides for secrets and deployment knobs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings like "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all healerd configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Store    StoreConfig    `yaml:"store"`
	Stream   StreamConfig   `yaml:"stream"`
	Ledger   LedgerConfig   `yaml:"ledger"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxInputSize int    `yaml:"max_input_size"` // bytes, start requests above this are rejected
}

// LLMConfig configures the Gemini reasoner.
type LLMConfig struct {
	APIKey  string   `yaml:"api_key"`
	Model   string   `yaml:"model"`
	Timeout Duration `yaml:"timeout"`
}

// PipelineConfig configures the runner and its retry policy.
type PipelineConfig struct {
	// Retry policy for rate-limited reasoner calls.
	MaxRetries     int      `yaml:"max_retries"`
	RetryBaseDelay Duration `yaml:"retry_base_delay"`

	// Pacing between sequential verification calls (rate-limit budget).
	InterTestDelay Duration `yaml:"inter_test_delay"`
	StepDelay      Duration `yaml:"step_delay"` // cosmetic pacing between activity entries

	// Overall bound for one background pipeline run.
	RunTimeout Duration `yaml:"run_timeout"`

	// Upper bound on rerun/feedback iterations per session.
	MaxRerunIterations int `yaml:"max_rerun_iterations"`

	// Maximum concurrently running pipelines.
	MaxConcurrentRuns int64 `yaml:"max_concurrent_runs"`
}

// StoreConfig configures the in-memory session store.
type StoreConfig struct {
	EvictAfter    Duration `yaml:"evict_after"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// StreamConfig configures progress feed delivery.
type StreamConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	MaxPolls     int      `yaml:"max_polls"` // feed hard stop: poll_interval * max_polls
}

// LedgerConfig configures the SQLite activity history.
type LedgerConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8090",
			MaxInputSize: 100 * 1024,
		},
		LLM: LLMConfig{
			Model:   "gemini-2.0-flash",
			Timeout: Duration(60 * time.Second),
		},
		Pipeline: PipelineConfig{
			MaxRetries:         3,
			RetryBaseDelay:     Duration(10 * time.Second),
			InterTestDelay:     Duration(8 * time.Second),
			StepDelay:          Duration(500 * time.Millisecond),
			RunTimeout:         Duration(10 * time.Minute),
			MaxRerunIterations: 3,
			MaxConcurrentRuns:  8,
		},
		Store: StoreConfig{
			EvictAfter:    Duration(30 * time.Minute),
			SweepInterval: Duration(5 * time.Minute),
		},
		Stream: StreamConfig{
			PollInterval: Duration(500 * time.Millisecond),
			MaxPolls:     600,
		},
		Ledger: LedgerConfig{
			Path:    "healerd.db",
			Enabled: true,
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("HEALERD_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("HEALERD_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("HEALERD_LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}
}
