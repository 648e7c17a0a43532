package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	JWTSecret   string `env:"JWT_SECRET"`
	JWTIssuer   string `env:"JWT_ISSUER" envDefault:"skulicheck"`
	CORSOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:4028"`

	PasswordHasher string `env:"PASSWORD_HASHER" envDefault:"sha256"`
	BcryptCost     int    `env:"BCRYPT_COST" envDefault:"12"`

	SMTPHost      string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	EmailUsername string `env:"EMAIL_USERNAME"`
	EmailPassword string `env:"EMAIL_PASSWORD"`
	EmailFrom     string `env:"EMAIL_FROM"`

	LogEnv   string `env:"LOG_ENV" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	RegistrationCodeTTL time.Duration `env:"REGISTRATION_CODE_TTL" envDefault:"10m"`
	MFACodeTTL          time.Duration `env:"MFA_CODE_TTL" envDefault:"5m"`
	ResetCodeTTL        time.Duration `env:"RESET_CODE_TTL" envDefault:"15m"`
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"168h"`
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}
	switch cfg.PasswordHasher {
	case "sha256", "bcrypt":
	default:
		return Config{}, fmt.Errorf("PASSWORD_HASHER must be sha256 or bcrypt, got %q", cfg.PasswordHasher)
	}
	for name, ttl := range map[string]time.Duration{
		"REGISTRATION_CODE_TTL": cfg.RegistrationCodeTTL,
		"MFA_CODE_TTL":          cfg.MFACodeTTL,
		"RESET_CODE_TTL":        cfg.ResetCodeTTL,
		"SESSION_TTL":           cfg.SessionTTL,
	} {
		if ttl <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", name)
		}
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// AllowedOrigins splits CORSOrigins on commas.
func (c Config) AllowedOrigins() []string {
	return parseCSV(c.CORSOrigins)
}

// EmailEnabled reports whether SMTP credentials are present.
func (c Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.EmailUsername != ""
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	var out []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
