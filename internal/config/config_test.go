package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CONFIG_FILE", "ENV", "PORT", "DATABASE_URL", "REDIS_URL", "LOG_LEVEL", "LOG_FORMAT",
	"JOURNAL_TIMEZONE", "PROVISION_SCHEDULE", "RECONCILE_SCHEDULE", "PROVISION_ON_REQUEST",
	"JWT_SECRET", "CORS_ORIGINS", "RUN_MIGRATIONS", "SEED_DEV_DATA",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "5 0 * * *", cfg.ProvisionSchedule)
	assert.Equal(t, "30 3 * * *", cfg.ReconcileSchedule)
	assert.Equal(t, ProvisionInline, cfg.ProvisionOnRequest)
	assert.Equal(t, "UTC", cfg.Location().String())
	assert.True(t, cfg.RunMigrations)
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
journal_timezone: Europe/Istanbul
cors_origins: [https://a.example, https://b.example]
seed_dev_data: true
jwt_secret: from-file
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("CORS_ORIGINS", "https://c.example, https://d.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, "Europe/Istanbul", cfg.Location().String())
	assert.Equal(t, []string{"https://c.example", "https://d.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.SeedDevData)
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prot: 9000\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad provision mode", map[string]string{"PROVISION_ON_REQUEST": "sometimes"}},
		{"enqueue without redis", map[string]string{"PROVISION_ON_REQUEST": "enqueue"}},
		{"bad timezone", map[string]string{"JOURNAL_TIMEZONE": "Mars/Olympus"}},
		{"empty cors list", map[string]string{"CORS_ORIGINS": " , "}},
		{"bad bool", map[string]string{"RUN_MIGRATIONS": "maybe"}},
		{"production without secret", map[string]string{"ENV": "production"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
