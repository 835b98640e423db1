package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		AI: AIConfig{APIKey: "test-key"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Transport.Mode != TransportWhatsApp {
		t.Fatalf("mode = %q, want whatsapp default", cfg.Transport.Mode)
	}
	if cfg.Storage.Backend != BackendFile {
		t.Fatalf("backend = %q, want file default", cfg.Storage.Backend)
	}
	if cfg.Storage.Dir != "storage" {
		t.Fatalf("dir = %q, want storage default", cfg.Storage.Dir)
	}
	if cfg.AI.Model != "gemini-1.5-flash" {
		t.Fatalf("model = %q, want default model", cfg.AI.Model)
	}
	if cfg.WhatsApp.SessionDB == "" {
		t.Fatal("expected default whatsapp session db path")
	}
}

func TestNormalizeRequiresAPIKey(t *testing.T) {
	cfg := &Config{}
	err := Normalize(cfg)
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("err = %v, want missing key error", err)
	}
}

func TestNormalizeTelegramNeedsToken(t *testing.T) {
	cfg := validConfig()
	cfg.Transport.Mode = "telegram"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for telegram mode without token")
	}
	cfg.Telegram.Token = "123:abc"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
}

func TestNormalizePostgresNeedsConnection(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Backend = "postgres"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for postgres backend without connection settings")
	}
	cfg.Database.Host = "localhost"
	cfg.Database.Name = "onboard"
	cfg.Database.User = "onboard"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Database.Port != "5432" || cfg.Database.SSLMode != "disable" {
		t.Fatalf("expected port/sslmode defaults, got %+v", cfg.Database)
	}
}

func TestNormalizeRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Transport.Mode = "carrier-pigeon"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for unknown transport mode")
	}
}
