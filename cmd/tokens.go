// Package cmd provides the command-line interface for operating the token store.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dilneiss/CSRFProtector/bootstrap"
	"github.com/dilneiss/CSRFProtector/config"
	"github.com/dilneiss/CSRFProtector/core"
	"github.com/dilneiss/CSRFProtector/storage"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags for tokens commands
var (
	outputJSON bool
	configFile string
	noColor    bool
	quiet      bool
)

const defaultTimeout = 30 * time.Second

// NewTokensCmd creates the root tokens command with all subcommands.
func NewTokensCmd() *cobra.Command {
	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Inspect and maintain CSRF form tokens",
		Long: `Inspect and maintain the CSRF form tokens held by the configured store.

Tokens issued here use the same store, salts and lifetime as the server, so a
token issued for a session, user agent and client address can be verified or
posted against a running instance.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	tokensCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	tokensCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default: ./config.yaml or ./config/config.yaml)")
	tokensCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	tokensCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	tokensCmd.AddCommand(newIssueCmd())
	tokensCmd.AddCommand(newVerifyCmd())
	tokensCmd.AddCommand(newDeriveCmd())
	tokensCmd.AddCommand(newSweepCmd())
	tokensCmd.AddCommand(newConfigCmd())

	return tokensCmd
}

// clientFlags identifies the client a token is bound to
type clientFlags struct {
	sessionID string
	userAgent string
	clientIP  string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sessionID, "session", "", "Session identifier (default: a new random one)")
	cmd.Flags().StringVar(&f.userAgent, "user-agent", "", "User-Agent the token is bound to")
	cmd.Flags().StringVar(&f.clientIP, "client-ip", "127.0.0.1", "Client address the token is bound to")
}

// cliRequestContext is a fixed request described by command flags
type cliRequestContext struct {
	clientFlags
	method string
	fields map[string]string
	now    time.Time
}

func (c *cliRequestContext) SessionID() string             { return c.sessionID }
func (c *cliRequestContext) Method() string                { return c.method }
func (c *cliRequestContext) PostFields() map[string]string { return c.fields }
func (c *cliRequestContext) UserAgent() string             { return c.userAgent }
func (c *cliRequestContext) ClientIP() string              { return c.clientIP }
func (c *cliRequestContext) Now() time.Time                { return c.now }

// cliEnv is the loaded configuration plus an open store and guard
type cliEnv struct {
	cfg    *config.Config
	store  core.SessionStore
	guard  *core.Guard
	logger *zap.SugaredLogger
}

func newCLILogger() *zap.SugaredLogger {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

func initEnv(ctx context.Context) (*cliEnv, func(), error) {
	cfg, err := config.LoadConfigFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newCLILogger()
	store, err := bootstrap.InitSessionStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	guard, err := bootstrap.InitGuard(cfg, store, nil, logger)
	if err != nil {
		closeStore(store, logger)
		return nil, nil, err
	}

	cleanup := func() {
		closeStore(store, logger)
		_ = logger.Sync()
	}
	return &cliEnv{cfg: cfg, store: store, guard: guard, logger: logger}, cleanup, nil
}

func closeStore(store core.SessionStore, logger *zap.SugaredLogger) {
	if err := store.Close(); err != nil {
		logger.Warnw("Failed to close token store", "error", err)
	}
}

// IssueResult is the output of the issue command
type IssueResult struct {
	Scope     string    `json:"scope"`
	SessionID string    `json:"session_id"`
	AccessKey string    `json:"access_key"`
	Name      string    `json:"csrfname"`
	Token     string    `json:"csrftoken"`
	Markup    string    `json:"markup"`
	ExpiresAt time.Time `json:"expires_at"`
}

// newIssueCmd creates the 'issue' subcommand
func newIssueCmd() *cobra.Command {
	var client clientFlags
	var ajax bool

	cmd := &cobra.Command{
		Use:   "issue <scope>",
		Short: "Issue a token for a form scope",
		Long:  "Issue and store a token for a form scope and print the markup a page would embed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			env, cleanup, err := initEnv(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if client.sessionID == "" {
				client.sessionID = uuid.NewString()
			}
			if env.cfg.Store.Backend == storage.BackendMemory && !quiet && !outputJSON {
				warningColor.Fprintln(cmd.ErrOrStderr(), "⚠ memory store: the token is discarded when this command exits")
			}

			now := time.Now()
			tg := env.guard.For(args[0], &cliRequestContext{clientFlags: client, method: "GET", now: now})

			var markup string
			if ajax {
				attrs, err := tg.AjaxAttributes(ctx)
				if err != nil {
					return fmt.Errorf("failed to issue token: %w", err)
				}
				markup = string(attrs)
			} else {
				inputs, err := tg.HiddenInputs(ctx, args[0], true)
				if err != nil {
					return fmt.Errorf("failed to issue token: %w", err)
				}
				markup = string(inputs)
			}

			rec, _ := tg.Record()
			result := IssueResult{
				Scope:     args[0],
				SessionID: client.sessionID,
				AccessKey: rec.AccessKey,
				Name:      rec.TokenName,
				Token:     rec.TokenValue,
				Markup:    markup,
				ExpiresAt: now.Add(env.guard.Lifetime()).UTC(),
			}

			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), result)
			}
			renderIssueResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	client.register(cmd)
	cmd.Flags().BoolVar(&ajax, "ajax", false, "Print inline attributes instead of hidden inputs")

	return cmd
}

// VerifyResult is the output of the verify command
type VerifyResult struct {
	Scope    string `json:"scope"`
	Accepted bool   `json:"accepted"`
}

// newVerifyCmd creates the 'verify' subcommand
func newVerifyCmd() *cobra.Command {
	var client clientFlags
	var name, token string

	cmd := &cobra.Command{
		Use:   "verify <scope>",
		Short: "Validate and consume a token",
		Long:  "Validate a token pair the way a form post would. An accepted token is consumed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if client.sessionID == "" {
				return fmt.Errorf("--session is required")
			}

			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			env, cleanup, err := initEnv(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			fields := map[string]string{core.FieldName: name, core.FieldToken: token}
			tg := env.guard.For(args[0], &cliRequestContext{
				clientFlags: client,
				method:      "POST",
				fields:      fields,
				now:         time.Now(),
			})

			result := VerifyResult{Scope: args[0], Accepted: tg.ValidateRequest(ctx)}
			if outputJSON {
				if err := outputAsJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else if result.Accepted {
				successColor.Fprintf(cmd.OutOrStdout(), "✓ Token accepted for %s\n", result.Scope)
			} else {
				errorColor.Fprintf(cmd.OutOrStdout(), "✗ Token rejected for %s\n", result.Scope)
			}

			if !result.Accepted {
				return fmt.Errorf("token rejected")
			}
			return nil
		},
	}

	client.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "Token name ("+core.FieldName+")")
	cmd.Flags().StringVar(&token, "token", "", "Token value ("+core.FieldToken+")")

	return cmd
}

// newDeriveCmd creates the 'derive' subcommand
func newDeriveCmd() *cobra.Command {
	var client clientFlags

	cmd := &cobra.Command{
		Use:   "derive <scope>",
		Short: "Print the access key of a scope and client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigFile(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			key := core.NewAccessKeyDeriver(cfg.Token.SaltPrefix, cfg.Token.SaltSuffix).
				Derive(args[0], client.userAgent, client.clientIP)

			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), map[string]string{"scope": args[0], "access_key": key})
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}

	client.register(cmd)
	return cmd
}

// SweepResult is the output of the sweep command
type SweepResult struct {
	Backend string        `json:"backend"`
	Removed int64         `json:"removed"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// newSweepCmd creates the 'sweep' subcommand
func newSweepCmd() *cobra.Command {
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired tokens from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			env, cleanup, err := initEnv(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			var s *spinner.Spinner
			if showProgress && !outputJSON && !quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
				s.Suffix = " Sweeping expired tokens..."
				s.Start()
			}

			start := time.Now()
			sweeper := bootstrap.NewSweeper(env.store, 0, env.guard.Lifetime(), env.logger)
			removed, err := sweeper.SweepOnce(ctx)

			if s != nil {
				s.Stop()
			}
			if err != nil {
				return fmt.Errorf("failed to sweep tokens: %w", err)
			}

			result := SweepResult{Backend: env.cfg.Store.Backend, Removed: removed, Elapsed: time.Since(start)}
			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), result)
			}
			if !quiet {
				successColor.Fprintf(cmd.OutOrStdout(), "✓ Removed %d expired tokens from %s store in %s\n",
					result.Removed, result.Backend, result.Elapsed.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress indicator")

	return cmd
}

// newConfigCmd creates the 'config' subcommand
func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigFile(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			redacted := cfg.Redacted()
			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), redacted)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(redacted); err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			return enc.Close()
		},
	}
}

func outputAsJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var _ core.RequestContext = (*cliRequestContext)(nil)
