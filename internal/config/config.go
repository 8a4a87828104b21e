// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
//
// Values come from defaults, then the YAML file named by QUERYFLOW_CONFIG
// (if any), then environment variables, which win.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Workflow   WorkflowConfig   `yaml:"workflow"`

	// DataDBPath is the portfolio database queries run against.
	DataDBPath string `yaml:"data_db_path"`
	MaxRows    int    `yaml:"max_rows"`

	HTTPAddr string `yaml:"http_addr"`
	ThreadID string `yaml:"thread_id"`

	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
}

// LLMConfig selects the text-generation provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic or google
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	// BaseURL points the openai provider at a compatible gateway.
	BaseURL string `yaml:"base_url"`
}

// CheckpointConfig selects where thread state is persisted.
type CheckpointConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite or mysql
	// DSN is a file path for sqlite and a go-sql-driver DSN for mysql.
	DSN string `yaml:"dsn"`
}

// WorkflowConfig tunes the assistant workflow.
type WorkflowConfig struct {
	SummaryThreshold int           `yaml:"summary_threshold"`
	MaxAttempts      int           `yaml:"max_attempts"`
	MaxSteps         int           `yaml:"max_steps"`
	NodeTimeout      time.Duration `yaml:"node_timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{Provider: "openai"},
		Checkpoint: CheckpointConfig{
			Backend: "sqlite",
			DSN:     "./checkpoints.db",
		},
		Workflow: WorkflowConfig{
			SummaryThreshold: 5,
			MaxAttempts:      3,
			MaxSteps:         100,
			NodeTimeout:      2 * time.Minute,
		},
		DataDBPath: "./investments.db",
		MaxRows:    500,
		HTTPAddr:   ":8080",
		ThreadID:   "user_1234",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load reads configuration from the optional YAML file and environment
// variables, and validates the result.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("QUERYFLOW_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the keys present in a YAML file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LLM.Provider = strings.ToLower(getEnv("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = getEnv("LLM_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = getEnv("LLM_API_KEY", c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv(providerKeyVar(c.LLM.Provider))
	}

	c.Checkpoint.Backend = strings.ToLower(getEnv("CHECKPOINT_BACKEND", c.Checkpoint.Backend))
	c.Checkpoint.DSN = getEnv("CHECKPOINT_DSN", c.Checkpoint.DSN)

	c.Workflow.SummaryThreshold = getEnvInt("SUMMARY_THRESHOLD", c.Workflow.SummaryThreshold)
	c.Workflow.MaxAttempts = getEnvInt("MAX_ATTEMPTS", c.Workflow.MaxAttempts)
	c.Workflow.MaxSteps = getEnvInt("MAX_STEPS", c.Workflow.MaxSteps)
	c.Workflow.NodeTimeout = getEnvDuration("NODE_TIMEOUT", c.Workflow.NodeTimeout)

	c.DataDBPath = getEnv("DATA_DB_PATH", c.DataDBPath)
	c.MaxRows = getEnvInt("MAX_ROWS", c.MaxRows)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.ThreadID = getEnv("THREAD_ID", c.ThreadID)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", c.LogFormat))
	c.TracingEnabled = getEnvBool("TRACING_ENABLED", c.TracingEnabled)
}

func providerKeyVar(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Provider {
	case "openai", "anthropic", "google":
	default:
		errs = append(errs, fmt.Errorf("LLM_PROVIDER must be openai, anthropic or google, got %q", c.LLM.Provider))
	}
	switch c.Checkpoint.Backend {
	case "memory":
	case "sqlite", "mysql":
		if c.Checkpoint.DSN == "" {
			errs = append(errs, errors.New("CHECKPOINT_DSN cannot be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("CHECKPOINT_BACKEND must be memory, sqlite or mysql, got %q", c.Checkpoint.Backend))
	}
	if c.DataDBPath == "" {
		errs = append(errs, errors.New("DATA_DB_PATH cannot be empty"))
	}
	if c.MaxRows <= 0 {
		errs = append(errs, errors.New("MAX_ROWS must be > 0"))
	}
	if c.Workflow.SummaryThreshold < 2 {
		errs = append(errs, errors.New("SUMMARY_THRESHOLD must be >= 2"))
	}
	if c.Workflow.MaxAttempts <= 0 {
		errs = append(errs, errors.New("MAX_ATTEMPTS must be > 0"))
	}
	if c.Workflow.MaxSteps <= 0 {
		errs = append(errs, errors.New("MAX_STEPS must be > 0"))
	}
	if c.Workflow.NodeTimeout < 0 {
		errs = append(errs, errors.New("NODE_TIMEOUT cannot be negative"))
	}
	if c.ThreadID == "" {
		errs = append(errs, errors.New("THREAD_ID cannot be empty"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
