package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  bogus: true
database:
  url: postgres://localhost/vpsagent
secrets:
  session_secret: 01234567890123456789012345678901
  api_key_encryption_secret: secret
  anthropic_api_key: key
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadRequiresSessionSecret(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/vpsagent
secrets:
  api_key_encryption_secret: secret
  anthropic_api_key: key
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "session_secret") {
		t.Fatalf("expected session_secret error, got %v", err)
	}
}

func TestLoadValidatesSessionSecretLength(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/vpsagent
secrets:
  session_secret: tooshort
  api_key_encryption_secret: secret
  anthropic_api_key: key
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "at least 32 characters") {
		t.Fatalf("expected length error, got %v", err)
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/vpsagent
secrets:
  session_secret: 01234567890123456789012345678901
  api_key_encryption_secret: secret
  anthropic_api_key: key
llm:
  default_provider: cohere
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/vpsagent
secrets:
  session_secret: 01234567890123456789012345678901
  api_key_encryption_secret: secret
  anthropic_api_key: key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Fatalf("expected default http_port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Fatalf("expected default provider anthropic, got %q", cfg.LLM.DefaultProvider)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected default logging format json, got %q", cfg.Logging.Format)
	}
}

func TestLoadExpandsEnvAndAppliesOverrides(t *testing.T) {
	t.Setenv("VPSAGENT_DB_URL", "postgres://env/vpsagent")
	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")

	path := writeConfig(t, `
database:
  url: ${VPSAGENT_DB_URL}
secrets:
  session_secret: 01234567890123456789012345678901
  api_key_encryption_secret: secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "postgres://env/vpsagent" {
		t.Fatalf("expected $VAR-expanded database url, got %q", cfg.Database.URL)
	}
	if cfg.Secrets.AnthropicAPIKey != "env-anthropic-key" {
		t.Fatalf("expected ANTHROPIC_API_KEY override, got %q", cfg.Secrets.AnthropicAPIKey)
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/vpsagent
secrets:
  session_secret: 01234567890123456789012345678901
  api_key_encryption_secret: secret
  anthropic_api_key: key
---
server:
  host: 0.0.0.0
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for multiple documents")
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vpsagent.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
