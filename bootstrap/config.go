package bootstrap

import (
	"fmt"
	"os"

	"github.com/dilneiss/CSRFProtector/config"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger with colored console output.
// The returned level starts at debug and is lowered once config is loaded.
func InitLogger() (*zap.Logger, *zap.SugaredLogger, zap.AtomicLevel, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), level, nil
}

// ApplyLogLevel sets level from its configured name. An empty name keeps info.
func ApplyLogLevel(level zap.AtomicLevel, name string) error {
	if name == "" {
		name = "info"
	}
	parsed, err := zapcore.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	level.SetLevel(parsed)
	return nil
}

// InitConfig loads the application configuration.
func InitConfig(sugar *zap.SugaredLogger) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if viper.ConfigFileUsed() == "" {
		sugar.Info("No config file found, using defaults and env vars")
	}

	sugar.Infow("Guard mode",
		"mode", cfg.Mode,
		"description", func() string {
			if cfg.IsDevelopment() {
				return "unprotected posts abort the request with a diagnostic"
			}
			return "unprotected posts are reported and redirected to " + cfg.Errors.PageURL
		}())

	sugar.Infow("Config loaded",
		"store_backend", cfg.Store.Backend,
		"token_lifetime", cfg.Token.Lifetime,
		"value_strategy", cfg.Token.ValueStrategy,
		"port", cfg.Server.Port,
		"report_channels", len(cfg.Notify.Channels))

	return cfg, nil
}
