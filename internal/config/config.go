// Package config loads the bot configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// TransportWhatsApp selects the WhatsApp adapter.
	TransportWhatsApp = "whatsapp"
	// TransportTelegram selects the Telegram adapter.
	TransportTelegram = "telegram"

	// BackendFile selects the JSON file record store.
	BackendFile = "file"
	// BackendPostgres selects the Postgres record store.
	BackendPostgres = "postgres"
)

// TransportConfig selects and tunes the chat transport.
type TransportConfig struct {
	Mode string `yaml:"mode" envconfig:"TRANSPORT_MODE"`
}

// WhatsAppConfig holds WhatsApp pairing settings.
type WhatsAppConfig struct {
	// SessionDB is the sqlite file holding the whatsmeow device session.
	SessionDB string `yaml:"session_db" envconfig:"WHATSAPP_SESSION_DB"`
}

// TelegramConfig holds Telegram bot settings for the alternate transport.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// StorageConfig selects the record store backend and its root directory.
type StorageConfig struct {
	Backend string `yaml:"backend" envconfig:"STORAGE_BACKEND"`
	Dir     string `yaml:"dir" envconfig:"STORAGE_DIR"`
}

// DatabaseConfig holds Postgres connection settings for the keyed store.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// AIConfig holds Gemini settings. The API key has no YAML form on purpose:
// it comes from the environment only.
type AIConfig struct {
	APIKey string `yaml:"-" envconfig:"GEMINI_API_KEY"`
	Model  string `yaml:"model" envconfig:"GEMINI_MODEL"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// Config aggregates all bot configuration.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	AI        AIConfig        `yaml:"ai"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and
// adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	// Missing AI key is a fatal configuration error, not a soft failure.
	if strings.TrimSpace(cfg.AI.APIKey) == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.AI.Model) == "" {
		cfg.AI.Model = "gemini-1.5-flash"
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.Transport.Mode))
	if mode == "" {
		mode = TransportWhatsApp
	}
	switch mode {
	case TransportWhatsApp:
	case TransportTelegram:
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required when transport.mode is 'telegram'")
		}
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid transport.mode %q; allowed: whatsapp, telegram", cfg.Transport.Mode)
	}
	cfg.Transport.Mode = mode

	if strings.TrimSpace(cfg.Storage.Dir) == "" {
		cfg.Storage.Dir = "storage"
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if backend == "" {
		backend = BackendFile
	}
	switch backend {
	case BackendFile:
	case BackendPostgres:
		if cfg.Database.Host == "" || cfg.Database.Name == "" || cfg.Database.User == "" {
			return fmt.Errorf("database.{host,name,user} are required when storage.backend is 'postgres'")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 4
		}
	default:
		return fmt.Errorf("invalid storage.backend %q; allowed: file, postgres", cfg.Storage.Backend)
	}
	cfg.Storage.Backend = backend

	if mode == TransportWhatsApp && strings.TrimSpace(cfg.WhatsApp.SessionDB) == "" {
		cfg.WhatsApp.SessionDB = filepath.Join(cfg.Storage.Dir, "whatsapp.db")
	}

	return nil
}
