package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	path := writeConfig(t, "secret: s3cret\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "127.0.0.1:8081", cfg.InternalAddr)
	assert.Equal(t, int64(32768), cfg.ReadLimit)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 60*time.Second, cfg.PongWait)
	assert.Equal(t, 32, cfg.SendBuffer)
	assert.Equal(t, "drop", cfg.SlowConsumer)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, DB{Driver: "sqlite", DSN: "molian.db"}, cfg.DB)
}

func TestLoadFile_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
mode: debug
port: 9000
secret: from-file
slow_consumer: kick
allowed_origins: ["https://app.example.com"]
db:
  driver: postgres
  dsn: postgres://file
`)
	t.Setenv("CHAT_SECRET", "from-env")
	t.Setenv("CHAT_DB_DSN", "postgres://env")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "from-env", cfg.Secret)
	assert.Equal(t, "kick", cfg.SlowConsumer)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, DB{Driver: "postgres", DSN: "postgres://env"}, cfg.DB)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing secret", body: "port: 1\n"},
		{name: "unknown driver", body: "secret: x\ndb:\n  driver: mongo\n"},
		{name: "pong before ping", body: "secret: x\nping_period: 10s\npong_wait: 5s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CHAT_SECRET", "")
			_, err := LoadFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
