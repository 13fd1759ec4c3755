// Package config loads and validates vpsagentd's configuration: a YAML file
// with environment-variable expansion, layered with strict env-var
// overrides for the seven secrets and endpoints spec §9 names as
// process-environment-only (never written to disk in the YAML file).
//
// Grounded on the teacher's internal/config/config.go: Load reads the file,
// expands $VARS, strict-decodes (KnownFields) to catch typo'd keys, applies
// env overrides, applies per-section defaults, then validates and collects
// every problem into one error instead of failing on the first.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is vpsagentd's top-level configuration tree.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	LLM      LLMConfig      `yaml:"llm"`
	Research ResearchConfig `yaml:"research"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP/WS Gateway's listener.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig configures the Store Port's Postgres/CockroachDB backend.
// URL is almost always supplied via the DATABASE_URL env override rather
// than written into the YAML file.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// AuthConfig configures the JWT verification slice at the gateway boundary
// (spec's Non-goal narrows this to verification only, never issuance/OTP).
type AuthConfig struct {
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// SecretsConfig names the three distinct process-wide secrets the Vault
// derives keys from (spec's "yet another key" note on BackupConfig) plus
// the two LLM API keys and the n8n webhook URL. Every field here is
// expected to arrive via env override, never plaintext in the YAML file;
// the YAML keys exist so an operator can still $EXPAND them from a
// secrets-manager-injected env var if they choose.
type SecretsConfig struct {
	SessionSecret          string `yaml:"session_secret"`
	APIKeyEncryptionSecret string `yaml:"api_key_encryption_secret"`
	EncryptionKey          string `yaml:"encryption_key"`
	AnthropicAPIKey        string `yaml:"anthropic_api_key"`
	PerplexityAPIKey       string `yaml:"perplexity_api_key"`
	N8NWebhookURL          string `yaml:"n8n_webhook_url"`
}

// LLMConfig selects the default chat provider/model the Agent Loop uses.
type LLMConfig struct {
	DefaultProvider string `yaml:"default_provider"`
	DefaultModel    string `yaml:"default_model"`
	MaxRetries      int    `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// ResearchConfig configures the Perplexity-backed Research Gateway (C8).
type ResearchConfig struct {
	Model string `yaml:"model"`
}

// LoggingConfig configures the slog handler built in cmd/vpsagentd.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path, expands $VAR references against the process
// environment, strict-decodes the YAML, layers env overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config: parse: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyAuthDefaults(&cfg.Auth)
	applyLLMDefaults(&cfg.LLM)
	applyResearchDefaults(&cfg.Research)
	applyLoggingDefaults(&cfg.Logging)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.TokenExpiry == 0 {
		cfg.TokenExpiry = 24 * time.Hour
	}
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-5"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
}

func applyResearchDefaults(cfg *ResearchConfig) {
	if cfg.Model == "" {
		cfg.Model = "sonar"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

// applyEnvOverrides reads the seven env vars spec §9 names directly,
// overriding whatever the YAML file (after its own $VAR expansion) set.
// This is the layer operators actually rely on: secrets live in the
// environment, never in a config file checked into version control.
func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("SESSION_SECRET")); value != "" {
		cfg.Secrets.SessionSecret = value
	}
	if value := strings.TrimSpace(os.Getenv("API_KEY_ENCRYPTION_SECRET")); value != "" {
		cfg.Secrets.APIKeyEncryptionSecret = value
	}
	if value := strings.TrimSpace(os.Getenv("ENCRYPTION_KEY")); value != "" {
		cfg.Secrets.EncryptionKey = value
	}
	if value := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); value != "" {
		cfg.Secrets.AnthropicAPIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("PERPLEXITY_API_KEY")); value != "" {
		cfg.Secrets.PerplexityAPIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("N8N_WEBHOOK_URL")); value != "" {
		cfg.Secrets.N8NWebhookURL = value
	}
	if value := strings.TrimSpace(os.Getenv("DATABASE_URL")); value != "" {
		cfg.Database.URL = value
	}

	if value := strings.TrimSpace(os.Getenv("VPSAGENT_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("VPSAGENT_HTTP_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("VPSAGENT_TOKEN_EXPIRY")); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			cfg.Auth.TokenExpiry = parsed
		}
	}
}

// ConfigValidationError collects every validation problem found, rather
// than surfacing only the first, so an operator fixes a broken config file
// in one pass instead of one error at a time.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	var issues []string

	if cfg.Database.URL == "" {
		issues = append(issues, "database.url (or DATABASE_URL) is required")
	}
	if cfg.Secrets.SessionSecret == "" {
		issues = append(issues, "secrets.session_secret (or SESSION_SECRET) is required")
	}
	if cfg.Secrets.APIKeyEncryptionSecret == "" {
		issues = append(issues, "secrets.api_key_encryption_secret (or API_KEY_ENCRYPTION_SECRET) is required")
	}
	if cfg.Secrets.AnthropicAPIKey == "" {
		issues = append(issues, "secrets.anthropic_api_key (or ANTHROPIC_API_KEY) is required")
	}
	if len(strings.TrimSpace(cfg.Secrets.SessionSecret)) > 0 && len(cfg.Secrets.SessionSecret) < 32 {
		issues = append(issues, "secrets.session_secret must be at least 32 characters")
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		issues = append(issues, "server.http_port must be between 1 and 65535")
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		issues = append(issues, "server.metrics_port must be between 1 and 65535")
	}
	if cfg.Database.MaxOpenConns < 0 {
		issues = append(issues, "database.max_open_conns must be >= 0")
	}
	if cfg.Database.MaxIdleConns < 0 {
		issues = append(issues, "database.max_idle_conns must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider)) {
	case "anthropic", "openai":
	default:
		issues = append(issues, "llm.default_provider must be \"anthropic\" or \"openai\"")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, "logging.level must be \"debug\", \"info\", \"warn\", or \"error\"")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "json", "text":
	default:
		issues = append(issues, "logging.format must be \"json\" or \"text\"")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
