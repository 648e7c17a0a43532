package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", " sqlite://./skulicheck.db ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite://./skulicheck.db", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.HTTPAddress())
	assert.Equal(t, []string{"http://localhost:4028"}, cfg.AllowedOrigins())
	assert.Equal(t, "sha256", cfg.PasswordHasher)
	assert.Equal(t, 10*time.Minute, cfg.RegistrationCodeTTL)
	assert.Equal(t, 5*time.Minute, cfg.MFACodeTTL)
	assert.Equal(t, 15*time.Minute, cfg.ResetCodeTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.False(t, cfg.EmailEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("PASSWORD_HASHER", "bcrypt")
	t.Setenv("EMAIL_USERNAME", "school@example.com")
	t.Setenv("MFA_CODE_TTL", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddress())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
	assert.Equal(t, "bcrypt", cfg.PasswordHasher)
	assert.True(t, cfg.EmailEnabled())
	assert.Equal(t, 2*time.Minute, cfg.MFACodeTTL)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing database url": {"DATABASE_URL": ""},
		"unknown hasher":       {"DATABASE_URL": "sqlite://x.db", "PASSWORD_HASHER": "md5"},
		"zero ttl":             {"DATABASE_URL": "sqlite://x.db", "SESSION_TTL": "0s"},
		"bad duration":         {"DATABASE_URL": "sqlite://x.db", "RESET_CODE_TTL": "soon"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseCSV_EmptyMeansAny(t *testing.T) {
	assert.Equal(t, []string{"*"}, parseCSV(" , "))
}
