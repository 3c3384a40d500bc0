package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g. CSRFGUARD_STORE_BACKEND
const EnvPrefix = "CSRFGUARD"

const redactedValue = "********"

// NotifyChannel configures one operator report channel
type NotifyChannel struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Type    string `mapstructure:"type" yaml:"type" validate:"required,oneof=email webhook"`

	SMTPHost     string   `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int      `mapstructure:"smtp_port" yaml:"smtp_port" validate:"omitempty,min=1,max=65535"`
	SMTPUsername string   `mapstructure:"smtp_username" yaml:"smtp_username"`
	SMTPPassword string   `mapstructure:"smtp_password" yaml:"smtp_password"`
	FromAddress  string   `mapstructure:"from_address" yaml:"from_address" validate:"omitempty,email"`
	ToAddresses  []string `mapstructure:"to_addresses" yaml:"to_addresses" validate:"dive,email"`

	WebhookURL     string            `mapstructure:"webhook_url" yaml:"webhook_url"`
	WebhookMethod  string            `mapstructure:"webhook_method" yaml:"webhook_method" validate:"omitempty,oneof=POST PUT"`
	WebhookHeaders map[string]string `mapstructure:"webhook_headers" yaml:"webhook_headers"`
}

// Config holds all configuration for the token service
type Config struct {
	// Mode selects how a form posted without CSRF fields is handled:
	// "development" aborts the request, "production" reports and redirects
	Mode string `mapstructure:"mode" yaml:"mode" validate:"required,oneof=development production"`

	Server struct {
		Host         string        `mapstructure:"host" yaml:"host"`
		Port         int           `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
		TLS          bool          `mapstructure:"tls" yaml:"tls"`
		CertFile     string        `mapstructure:"cert_file" yaml:"cert_file"`
		KeyFile      string        `mapstructure:"key_file" yaml:"key_file"`
		TrustProxy   bool          `mapstructure:"trust_proxy" yaml:"trust_proxy"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
		// Docs serves the OpenAPI description under /swagger/
		Docs      bool `mapstructure:"docs" yaml:"docs"`
		RateLimit struct {
			// RequestsPerSecond per client address on form and script routes; 0 disables
			RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"min=0"`
			Burst             int     `mapstructure:"burst" yaml:"burst" validate:"min=0"`
			MaxClients        int     `mapstructure:"max_clients" yaml:"max_clients" validate:"min=0"`
		} `mapstructure:"rate_limit" yaml:"rate_limit"`
	} `mapstructure:"server" yaml:"server"`

	Session struct {
		CookieName   string        `mapstructure:"cookie_name" yaml:"cookie_name" validate:"required"`
		CookieMaxAge time.Duration `mapstructure:"cookie_max_age" yaml:"cookie_max_age"`
	} `mapstructure:"session" yaml:"session"`

	Token struct {
		Lifetime      time.Duration `mapstructure:"lifetime" yaml:"lifetime"`
		ValueStrategy string        `mapstructure:"value_strategy" yaml:"value_strategy" validate:"required,oneof=sha512 alphanumeric"`
		SaltPrefix    string        `mapstructure:"salt_prefix" yaml:"salt_prefix"`
		SaltSuffix    string        `mapstructure:"salt_suffix" yaml:"salt_suffix"`
	} `mapstructure:"token" yaml:"token"`

	Store struct {
		Backend string `mapstructure:"backend" yaml:"backend" validate:"required,oneof=memory redis sqlite"`
		Memory  struct {
			// MaxEntries bounds the whole store. When it is full the least recently
			// used record of any session is dropped and its form will be rejected,
			// so size it for concurrent sessions times open forms per session.
			MaxEntries int `mapstructure:"max_entries" yaml:"max_entries" validate:"min=0"`
			// MaxPerSession bounds one session; its oldest record goes first
			MaxPerSession int `mapstructure:"max_per_session" yaml:"max_per_session" validate:"min=0"`
		} `mapstructure:"memory" yaml:"memory"`
		Redis struct {
			Addr      string `mapstructure:"addr" yaml:"addr"`
			Password  string `mapstructure:"password" yaml:"password"`
			DB        int    `mapstructure:"db" yaml:"db" validate:"min=0"`
			PoolSize  int    `mapstructure:"pool_size" yaml:"pool_size" validate:"min=0"`
			KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
		} `mapstructure:"redis" yaml:"redis"`
		SQLite struct {
			Path string `mapstructure:"path" yaml:"path"`
		} `mapstructure:"sqlite" yaml:"sqlite"`
		SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	} `mapstructure:"store" yaml:"store"`

	Errors struct {
		// PageURL is where production mode redirects a violating request
		PageURL string `mapstructure:"page_url" yaml:"page_url" validate:"required"`
	} `mapstructure:"errors" yaml:"errors"`

	Notify struct {
		System        string          `mapstructure:"system" yaml:"system"`
		RatePerMinute int             `mapstructure:"rate_per_minute" yaml:"rate_per_minute" validate:"min=0"`
		Channels      []NotifyChannel `mapstructure:"channels" yaml:"channels" validate:"dive"`
	} `mapstructure:"notify" yaml:"notify"`

	Log struct {
		Level string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	} `mapstructure:"log" yaml:"log"`
}

func setDefaults() {
	viper.SetDefault("mode", "production")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.tls", false)
	viper.SetDefault("server.cert_file", "server.crt")
	viper.SetDefault("server.key_file", "server.key")
	viper.SetDefault("server.trust_proxy", false)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.docs", true)
	viper.SetDefault("server.rate_limit.requests_per_second", 5.0)
	viper.SetDefault("server.rate_limit.burst", 20)
	viper.SetDefault("server.rate_limit.max_clients", 10000)

	viper.SetDefault("session.cookie_name", "csrf_session")
	viper.SetDefault("session.cookie_max_age", 24*time.Hour)

	viper.SetDefault("token.lifetime", 30*time.Minute)
	viper.SetDefault("token.value_strategy", "sha512")
	viper.SetDefault("token.salt_prefix", "") // Empty = built-in salt
	viper.SetDefault("token.salt_suffix", "")

	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("store.memory.max_entries", 100000)
	viper.SetDefault("store.memory.max_per_session", 256)
	viper.SetDefault("store.redis.addr", "localhost:6379")
	viper.SetDefault("store.redis.password", "")
	viper.SetDefault("store.redis.db", 0)
	viper.SetDefault("store.redis.pool_size", 10)
	viper.SetDefault("store.redis.key_prefix", "csrf:")
	viper.SetDefault("store.sqlite.path", "data/csrf_tokens.db")
	viper.SetDefault("store.sweep_interval", 5*time.Minute)

	viper.SetDefault("errors.page_url", "/error")

	viper.SetDefault("notify.system", "csrfguard")
	viper.SetDefault("notify.rate_per_minute", 10)
	viper.SetDefault("notify.channels", []NotifyChannel{})

	viper.SetDefault("log.level", "info")
}

func loadFromEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Secrets get short, explicit names
	_ = viper.BindEnv("store.redis.password", EnvPrefix+"_REDIS_PASSWORD")
	_ = viper.BindEnv("store.redis.addr", EnvPrefix+"_REDIS_ADDR")
	_ = viper.BindEnv("store.sqlite.path", EnvPrefix+"_SQLITE_PATH")
}

// LoadConfig reads config.yaml from . or ./config, then applies defaults and
// CSRFGUARD_* environment overrides. A missing file is not an error.
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile is LoadConfig with an explicit file path. An empty path
// falls back to the search paths.
func LoadConfigFile(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return validateConfig(c)
}

func validateConfig(config *Config) error {
	if config.Server.TLS && (config.Server.CertFile == "" || config.Server.KeyFile == "") {
		return fmt.Errorf("server TLS enabled but cert_file or key_file is empty")
	}
	if config.Server.ReadTimeout < 0 || config.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts cannot be negative")
	}
	if config.Server.RateLimit.RequestsPerSecond > 0 && config.Server.RateLimit.Burst < 1 {
		return fmt.Errorf("server rate limit burst must be at least 1 when the limit is enabled")
	}

	if strings.ContainsAny(config.Session.CookieName, " \t;,=\"") {
		return fmt.Errorf("invalid session cookie_name %q", config.Session.CookieName)
	}
	if config.Session.CookieMaxAge < 0 {
		return fmt.Errorf("session cookie_max_age cannot be negative")
	}

	if config.Token.Lifetime <= 0 {
		return fmt.Errorf("token lifetime must be positive (got %s)", config.Token.Lifetime)
	}

	switch config.Store.Backend {
	case "redis":
		if config.Store.Redis.Addr == "" {
			return fmt.Errorf("store backend redis requires store.redis.addr")
		}
	case "sqlite":
		if config.Store.SQLite.Path == "" {
			return fmt.Errorf("store backend sqlite requires store.sqlite.path")
		}
	}
	if config.Store.SweepInterval < 0 {
		return fmt.Errorf("store sweep_interval cannot be negative")
	}

	if !strings.HasPrefix(config.Errors.PageURL, "/") {
		u, err := url.Parse(config.Errors.PageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid errors.page_url %q: must be a path or an http(s) URL", config.Errors.PageURL)
		}
	}

	for i, ch := range config.Notify.Channels {
		if !ch.Enabled {
			continue
		}
		switch ch.Type {
		case "email":
			if ch.SMTPHost == "" || ch.SMTPPort == 0 {
				return fmt.Errorf("notify channel %d: email requires smtp_host and smtp_port", i)
			}
			if len(ch.ToAddresses) == 0 {
				return fmt.Errorf("notify channel %d: email requires to_addresses", i)
			}
		case "webhook":
			u, err := url.Parse(ch.WebhookURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("notify channel %d: invalid webhook_url %q", i, ch.WebhookURL)
			}
		}
	}

	return nil
}

// IsDevelopment reports whether violations abort the request
func (c *Config) IsDevelopment() bool {
	return c.Mode == "development"
}

// Redacted returns a copy with secrets masked, for display
func (c *Config) Redacted() Config {
	out := *c
	if out.Store.Redis.Password != "" {
		out.Store.Redis.Password = redactedValue
	}
	out.Notify.Channels = make([]NotifyChannel, len(c.Notify.Channels))
	for i, ch := range c.Notify.Channels {
		if ch.SMTPPassword != "" {
			ch.SMTPPassword = redactedValue
		}
		if len(ch.WebhookHeaders) > 0 {
			headers := make(map[string]string, len(ch.WebhookHeaders))
			for k := range ch.WebhookHeaders {
				headers[k] = redactedValue
			}
			ch.WebhookHeaders = headers
		}
		out.Notify.Channels[i] = ch
	}
	return out
}
