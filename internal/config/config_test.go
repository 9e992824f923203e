package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, ProviderSandbox, cfg.Payment.Provider)
	assert.Equal(t, "gbp", cfg.Payment.Currency)
	assert.Equal(t, 10*time.Second, cfg.Payment.Timeout)
	assert.True(t, cfg.Payment.Verify)
	assert.Equal(t, DriverLog, cfg.Notify.Driver)
	assert.Equal(t, 5*time.Second, cfg.Notify.Timeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Booking.PendingTTL)
	assert.Equal(t, []string{"Heavy Jig", "Light Jig", "Reel", "Championship"}, cfg.Booking.Options)
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PUBLIC_BASE_URL", "https://feis.example/")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PAYMENT_CURRENCY", "EUR")
	t.Setenv("PAYMENT_TIMEOUT", "3s")
	t.Setenv("BOOKING_OPTIONS", " Reel , ,Hornpipe")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/feis.db")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://feis.example", cfg.PublicBaseURL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "eur", cfg.Payment.Currency)
	assert.Equal(t, 3*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, []string{"Reel", "Hornpipe"}, cfg.Booking.Options)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "/tmp/feis.db", cfg.SQLite.Path)
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", map[string]string{"SERVER_PORT": "0"}, "SERVER_PORT"},
		{"port not a number", map[string]string{"SERVER_PORT": "http"}, "SERVER_PORT"},
		{"unknown backend", map[string]string{"STORE_BACKEND": "mongo"}, "STORE_BACKEND"},
		{"postgres without user", map[string]string{"STORE_BACKEND": "postgres", "POSTGRES_USER": ""}, "POSTGRES_USER"},
		{"stripe without key", map[string]string{"PAYMENT_PROVIDER": "stripe", "STRIPE_SECRET_KEY": ""}, "STRIPE_SECRET_KEY"},
		{"unknown provider", map[string]string{"PAYMENT_PROVIDER": "paypal"}, "PAYMENT_PROVIDER"},
		{"bad currency", map[string]string{"PAYMENT_CURRENCY": "pounds"}, "PAYMENT_CURRENCY"},
		{"unknown driver", map[string]string{"NOTIFY_DRIVER": "sms"}, "NOTIFY_DRIVER"},
		{"relative base url", map[string]string{"PUBLIC_BASE_URL": "/feis"}, "PUBLIC_BASE_URL"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := New()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	c := PostgresConfig{
		User:     "feis",
		Password: "p@ss word",
		Name:     "feisbook",
		Host:     "db",
		Port:     5432,
		SSLMode:  "disable",
	}

	assert.Equal(t, "postgres://feis:p%40ss%20word@db:5432/feisbook?sslmode=disable", c.DSN())
}
