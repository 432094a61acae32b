package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "wabot"
	DefaultPGSSLMode    = "disable"
	DefaultGraphBaseURL = "https://graph.facebook.com/v18.0"
	DefaultOpenAIURL    = "https://api.openai.com/v1"
	DefaultDataRoot     = "data"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Postgres  PostgresConfig  `toml:"postgres"`
	WhatsApp  WhatsAppConfig  `toml:"whatsapp"`
	Assistant AssistantConfig `toml:"assistant"`
	Media     MediaConfig     `toml:"media"`
	Dispatch  DispatchConfig  `toml:"dispatch"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// PublicBaseURL is the externally reachable base URL, used to build
	// storage links for downloaded media.
	PublicBaseURL string `toml:"public_base_url" validate:"required,url"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type WhatsAppConfig struct {
	// VerifyToken is the shared secret echoed back during webhook verification.
	VerifyToken string `toml:"verify_token" validate:"required"`
	BaseURL     string `toml:"base_url"`
	TimeoutSecs int    `toml:"timeout_seconds"`
}

type AssistantConfig struct {
	APIKey      string `toml:"api_key" validate:"required"`
	AssistantID string `toml:"assistant_id" validate:"required"`
	BaseURL     string `toml:"base_url"`
	// Poll bounds for run status checks.
	PollInitialMs   int `toml:"poll_initial_ms"`
	PollMaxMs       int `toml:"poll_max_ms"`
	PollDeadlineSec int `toml:"poll_deadline_seconds"`
}

type MediaConfig struct {
	DataRoot string `toml:"data_root"`
	// RetrySchedule is a cron spec for the failed-ingestion retry sweep.
	RetrySchedule string `toml:"retry_schedule"`
}

type DispatchConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
	RetryMax  int `toml:"retry_max"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		WhatsApp: WhatsAppConfig{
			BaseURL:     DefaultGraphBaseURL,
			TimeoutSecs: 30,
		},
		Assistant: AssistantConfig{
			BaseURL:         DefaultOpenAIURL,
			PollInitialMs:   500,
			PollMaxMs:       5000,
			PollDeadlineSec: 120,
		},
		Media: MediaConfig{
			DataRoot:      DefaultDataRoot,
			RetrySchedule: "@every 5m",
		},
		Dispatch: DispatchConfig{
			Workers:   4,
			QueueSize: 256,
			RetryMax:  3,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks that credentials and required endpoints are present.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := v.Struct(c.WhatsApp); err != nil {
		return fmt.Errorf("whatsapp config: %w", err)
	}
	if err := v.Struct(c.Assistant); err != nil {
		return fmt.Errorf("assistant config: %w", err)
	}
	return nil
}
