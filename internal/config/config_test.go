package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-message-gateway/internal/config"
)

func TestDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "DRIVER", "MESSAGE_BUFFER_SIZE", "TOKEN_SWEEP_INTERVAL", "ALLOWED_ORIGINS", "WEBHOOK_ENABLED"} {
		t.Setenv(key, "")
	}
	c := config.New()

	require.Equal(t, ":3000", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "fake", c.GetDriver())
	require.Equal(t, 1000, c.GetMessageBufferSize())
	require.Equal(t, time.Hour, c.GetTokenSweepInterval())
	require.False(t, c.GetWebhookEnabled())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("*"))
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("MESSAGE_BUFFER_SIZE", "25")
	t.Setenv("TOKEN_SWEEP_INTERVAL", "5m")
	t.Setenv("WEBHOOK_ENABLED", "true")
	t.Setenv("WEBHOOK_TIMEOUT", "2s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	c := config.New()

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, 25, c.GetMessageBufferSize())
	require.Equal(t, 5*time.Minute, c.GetTokenSweepInterval())
	require.True(t, c.GetWebhookEnabled())
	require.Equal(t, 2*time.Second, c.GetWebhookTimeout())
	origins := c.GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("https://b.example"))
	require.False(t, origins.IsAllowedOrigin("*"))
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MESSAGE_BUFFER_SIZE", "lots")
	t.Setenv("TOKEN_SWEEP_INTERVAL", "hourly")
	c := config.New()

	require.Equal(t, 1000, c.GetMessageBufferSize())
	require.Equal(t, time.Hour, c.GetTokenSweepInterval())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_NAME=from-file\n"), 0o600))
	t.Setenv("APP_NAME", "")
	require.NoError(t, os.Unsetenv("APP_NAME"))

	c, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-file", c.GetAppName())

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}
