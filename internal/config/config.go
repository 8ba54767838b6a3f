// Package config loads settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     int    `yaml:"port" env:"PORT" env-default:"8080"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"INFO"`

	StoreDriver string `yaml:"store_driver" env:"STORE_DRIVER" env-default:"sqlite"`
	DBPath      string `yaml:"db_path" env:"DB_PATH" env-default:"data/opsdash.db"`
	PostgresDSN string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`

	StorageDir       string `yaml:"storage_dir" env:"STORAGE_DIR" env-default:"data/storage"`
	StoragePublicURL string `yaml:"storage_public_url" env:"STORAGE_PUBLIC_URL" env-default:"http://localhost:8080/storage"`

	JWTSecret          string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	TokenTTL           time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"24h"`
	GitHubClientID     string        `yaml:"github_client_id" env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string        `yaml:"github_client_secret" env:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string        `yaml:"github_callback_url" env:"GITHUB_CALLBACK_URL"`

	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:3000,http://localhost:5173"`
	ElasticURL  string   `yaml:"elastic_url" env:"ELASTIC_URL"`

	SuccessTTL     time.Duration `yaml:"success_ttl" env:"SUCCESS_TTL" env-default:"3s"`
	AutoSaveDelay  time.Duration `yaml:"autosave_delay" env:"AUTOSAVE_DELAY" env-default:"1500ms"`
	MaxAvatarBytes int64         `yaml:"max_avatar_bytes" env:"MAX_AVATAR_BYTES" env-default:"5242880"`
	// SessionIdleTTL is how long an untouched user's state stays mounted.
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl" env:"SESSION_IDLE_TTL" env-default:"30m"`
}

// Load reads .env into the environment if present, then the YAML file at
// path (skipped when path is empty or missing), then the environment.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: reading env: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("config: reading env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad is Load for main packages.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("cannot load config: %s", err)
	}
	return cfg
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("config: POSTGRES_DSN is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be at least 16 characters")
	}
	return nil
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// CallbackURL falls back to the local default when none is set.
func (c Config) CallbackURL() string {
	if c.GitHubCallbackURL != "" {
		return c.GitHubCallbackURL
	}
	return fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Port)
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
