package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConfig returns a valid Config for testing
func newTestConfig() Config {
	var c Config
	c.Mode = "production"
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 8080
	c.Session.CookieName = "csrf_session"
	c.Session.CookieMaxAge = time.Hour
	c.Token.Lifetime = 30 * time.Minute
	c.Token.ValueStrategy = "sha512"
	c.Store.Backend = "memory"
	c.Store.SweepInterval = time.Minute
	c.Errors.PageURL = "/error"
	c.Log.Level = "info"
	return c
}

// chdirTemp runs the test from an empty directory so no config.yaml is found
func chdirTemp(t *testing.T) string {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		viper.Reset()
	})
	viper.Reset()
	return dir
}

func TestLoadConfig(t *testing.T) {
	chdirTemp(t)

	config, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, config)

	// Check defaults
	assert.Equal(t, "production", config.Mode)
	assert.False(t, config.IsDevelopment())
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 15*time.Second, config.Server.ReadTimeout)
	assert.True(t, config.Server.Docs)
	assert.Equal(t, 5.0, config.Server.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, config.Server.RateLimit.Burst)
	assert.Equal(t, "csrf_session", config.Session.CookieName)
	assert.Equal(t, 30*time.Minute, config.Token.Lifetime)
	assert.Equal(t, "sha512", config.Token.ValueStrategy)
	assert.Equal(t, "memory", config.Store.Backend)
	assert.Equal(t, 100000, config.Store.Memory.MaxEntries)
	assert.Equal(t, 256, config.Store.Memory.MaxPerSession)
	assert.Equal(t, "csrf:", config.Store.Redis.KeyPrefix)
	assert.Equal(t, 5*time.Minute, config.Store.SweepInterval)
	assert.Equal(t, "/error", config.Errors.PageURL)
	assert.Equal(t, 10, config.Notify.RatePerMinute)
	assert.Empty(t, config.Notify.Channels)
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
mode: development
token:
  lifetime: 10m
  value_strategy: alphanumeric
store:
  backend: sqlite
  sqlite:
    path: tokens.db
notify:
  rate_per_minute: 3
  channels:
    - enabled: true
      type: webhook
      webhook_url: https://hooks.example.com/csrf
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, config.IsDevelopment())
	assert.Equal(t, 10*time.Minute, config.Token.Lifetime)
	assert.Equal(t, "alphanumeric", config.Token.ValueStrategy)
	assert.Equal(t, "sqlite", config.Store.Backend)
	assert.Equal(t, "tokens.db", config.Store.SQLite.Path)
	require.Len(t, config.Notify.Channels, 1)
	assert.Equal(t, "webhook", config.Notify.Channels[0].Type)
	assert.Equal(t, "https://hooks.example.com/csrf", config.Notify.Channels[0].WebhookURL)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CSRFGUARD_MODE", "development")
	t.Setenv("CSRFGUARD_STORE_BACKEND", "redis")
	t.Setenv("CSRFGUARD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CSRFGUARD_TOKEN_LIFETIME", "45m")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", config.Mode)
	assert.Equal(t, "redis", config.Store.Backend)
	assert.Equal(t, "redis.internal:6380", config.Store.Redis.Addr)
	assert.Equal(t, 45*time.Minute, config.Token.Lifetime)
}

func TestLoadConfigFile_Missing(t *testing.T) {
	chdirTemp(t)
	_, err := LoadConfigFile("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CSRFGUARD_TOKEN_VALUE_STRATEGY", "md5")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "invalid config")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  newTestConfig(),
			wantErr: false,
		},
		{
			name: "unknown mode",
			config: func() Config {
				c := newTestConfig()
				c.Mode = "staging"
				return c
			}(),
			wantErr: true,
		},
		{
			name: "invalid port",
			config: func() Config {
				c := newTestConfig()
				c.Server.Port = 99999
				return c
			}(),
			wantErr: true,
		},
		{
			name: "tls without cert",
			config: func() Config {
				c := newTestConfig()
				c.Server.TLS = true
				return c
			}(),
			wantErr: true,
		},
		{
			name: "cookie name with separator",
			config: func() Config {
				c := newTestConfig()
				c.Session.CookieName = "csrf;session"
				return c
			}(),
			wantErr: true,
		},
		{
			name: "rate limit without burst",
			config: func() Config {
				c := newTestConfig()
				c.Server.RateLimit.RequestsPerSecond = 5
				return c
			}(),
			wantErr: true,
		},
		{
			name: "rate limit with burst",
			config: func() Config {
				c := newTestConfig()
				c.Server.RateLimit.RequestsPerSecond = 5
				c.Server.RateLimit.Burst = 10
				return c
			}(),
			wantErr: false,
		},
		{
			name: "zero lifetime",
			config: func() Config {
				c := newTestConfig()
				c.Token.Lifetime = 0
				return c
			}(),
			wantErr: true,
		},
		{
			name: "unknown backend",
			config: func() Config {
				c := newTestConfig()
				c.Store.Backend = "etcd"
				return c
			}(),
			wantErr: true,
		},
		{
			name: "redis without addr",
			config: func() Config {
				c := newTestConfig()
				c.Store.Backend = "redis"
				return c
			}(),
			wantErr: true,
		},
		{
			name: "sqlite without path",
			config: func() Config {
				c := newTestConfig()
				c.Store.Backend = "sqlite"
				return c
			}(),
			wantErr: true,
		},
		{
			name: "absolute error page",
			config: func() Config {
				c := newTestConfig()
				c.Errors.PageURL = "https://example.com/erro"
				return c
			}(),
			wantErr: false,
		},
		{
			name: "relative error page without slash",
			config: func() Config {
				c := newTestConfig()
				c.Errors.PageURL = "erro.php"
				return c
			}(),
			wantErr: true,
		},
		{
			name: "email channel without recipients",
			config: func() Config {
				c := newTestConfig()
				c.Notify.Channels = []NotifyChannel{{Enabled: true, Type: "email", SMTPHost: "smtp", SMTPPort: 25}}
				return c
			}(),
			wantErr: true,
		},
		{
			name: "disabled channel is not checked",
			config: func() Config {
				c := newTestConfig()
				c.Notify.Channels = []NotifyChannel{{Enabled: false, Type: "webhook"}}
				return c
			}(),
			wantErr: false,
		},
		{
			name: "webhook with bad url",
			config: func() Config {
				c := newTestConfig()
				c.Notify.Channels = []NotifyChannel{{Enabled: true, Type: "webhook", WebhookURL: "ftp://x"}}
				return c
			}(),
			wantErr: true,
		},
		{
			name: "bad recipient address",
			config: func() Config {
				c := newTestConfig()
				c.Notify.Channels = []NotifyChannel{{
					Enabled: true, Type: "email", SMTPHost: "smtp", SMTPPort: 25,
					ToAddresses: []string{"not-an-address"},
				}}
				return c
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	c := newTestConfig()
	c.Store.Redis.Password = "hunter2"
	c.Notify.Channels = []NotifyChannel{
		{Type: "email", SMTPPassword: "smtp-secret"},
		{Type: "webhook", WebhookHeaders: map[string]string{"Authorization": "Bearer x"}},
	}

	r := c.Redacted()
	assert.Equal(t, redactedValue, r.Store.Redis.Password)
	assert.Equal(t, redactedValue, r.Notify.Channels[0].SMTPPassword)
	assert.Equal(t, redactedValue, r.Notify.Channels[1].WebhookHeaders["Authorization"])

	// Original is untouched
	assert.Equal(t, "hunter2", c.Store.Redis.Password)
	assert.Equal(t, "smtp-secret", c.Notify.Channels[0].SMTPPassword)
	assert.Equal(t, "Bearer x", c.Notify.Channels[1].WebhookHeaders["Authorization"])
}
