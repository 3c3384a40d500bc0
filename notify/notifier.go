package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/dilneiss/CSRFProtector/core"
	"github.com/dilneiss/CSRFProtector/metrics"
	"github.com/dilneiss/CSRFProtector/util"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ChannelType represents the type of notification channel
type ChannelType string

const (
	// ChannelEmail delivers reports over SMTP
	ChannelEmail ChannelType = "email"
	// ChannelWebhook delivers reports as a JSON HTTP request
	ChannelWebhook ChannelType = "webhook"
)

// DefaultHTTPTimeout bounds a single webhook delivery
const DefaultHTTPTimeout = 10 * time.Second

// ChannelConfig holds configuration for one report channel
type ChannelConfig struct {
	Enabled bool
	Type    ChannelType

	// Email configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
	ToAddresses  []string

	// Webhook configuration
	WebhookURL     string
	WebhookMethod  string
	WebhookHeaders map[string]string
}

// Report is the payload delivered to every channel
type Report struct {
	Type      string `json:"type"`
	System    string `json:"system"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Notifier delivers misconfiguration reports to the operator.
// Each channel has its own breaker; all channels share one rate limit.
type Notifier struct {
	channels   []ChannelConfig
	system     string
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *zap.SugaredLogger

	breakers map[string]*core.Breaker
	mu       sync.RWMutex
}

// NewNotifier creates a notifier. ratePerMinute <= 0 disables throttling.
func NewNotifier(channels []ChannelConfig, system string, ratePerMinute int, logger *zap.SugaredLogger) *Notifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), ratePerMinute)
	}

	return &Notifier{
		channels: channels,
		system:   system,
		limiter:  limiter,
		httpClient: &http.Client{
			Timeout: DefaultHTTPTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		logger:   logger,
		breakers: make(map[string]*core.Breaker),
	}
}

// breaker gets or creates the breaker of a channel
func (n *Notifier) breaker(key string) *core.Breaker {
	n.mu.RLock()
	b, exists := n.breakers[key]
	n.mu.RUnlock()
	if exists {
		return b
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if b, exists := n.breakers[key]; exists {
		return b
	}
	b = core.NewBreaker(core.DefaultBreakerConfig())
	n.breakers[key] = b
	n.logger.Infof("Created circuit breaker for report channel: %s", key)
	return b
}

func channelKey(cfg ChannelConfig) string {
	switch cfg.Type {
	case ChannelEmail:
		return fmt.Sprintf("email:%s", cfg.SMTPHost)
	case ChannelWebhook:
		return fmt.Sprintf("webhook:%s", cfg.WebhookURL)
	default:
		return string(cfg.Type)
	}
}

// ReportMisconfiguration delivers message to every enabled channel.
// Throttled reports are dropped and logged. Delivery failures are joined
// into the returned error.
func (n *Notifier) ReportMisconfiguration(ctx context.Context, message string) error {
	if !n.limiter.Allow() {
		metrics.Notifications.WithLabelValues("all", "throttled").Inc()
		n.logger.Warnw("Misconfiguration report throttled", "message", message)
		return nil
	}

	report := Report{
		Type:      "csrf_misconfiguration",
		System:    n.system,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var errs []error
	for _, cfg := range n.channels {
		if !cfg.Enabled {
			continue
		}

		key := channelKey(cfg)
		b := n.breaker(key)
		if err := b.Allow(); err != nil {
			metrics.Notifications.WithLabelValues(string(cfg.Type), "breaker_open").Inc()
			n.logger.Warnf("Circuit breaker open for report channel %s: %v", key, err)
			continue
		}

		var err error
		switch cfg.Type {
		case ChannelEmail:
			err = n.sendEmail(report, cfg)
		case ChannelWebhook:
			err = n.sendWebhook(ctx, report, cfg)
		default:
			err = fmt.Errorf("unsupported channel type %q", cfg.Type)
		}

		if err != nil {
			state := b.Failure()
			metrics.Notifications.WithLabelValues(string(cfg.Type), "failed").Inc()
			n.logger.Errorw("Failed to deliver misconfiguration report",
				"channel", key,
				"breaker", state,
				"error", util.SanitizeError(err))
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		b.Success()
		metrics.Notifications.WithLabelValues(string(cfg.Type), "sent").Inc()
	}

	return errors.Join(errs...)
}

// sendEmail sends the report as a plain-text email
func (n *Notifier) sendEmail(report Report, cfg ChannelConfig) error {
	if len(cfg.ToAddresses) == 0 {
		return fmt.Errorf("no recipients specified for email notification")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", cfg.FromAddress)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(cfg.ToAddresses, ", "))
	fmt.Fprintf(&msg, "Subject: [%s] CSRF misconfiguration detected\r\n", report.System)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\nTime: %s\r\n", report.Message, report.Timestamp)
	msg.WriteString("A form was posted without CSRF fields. Check the page template and the server logs.\r\n")

	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}

	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	if err := smtp.SendMail(addr, auth, cfg.FromAddress, cfg.ToAddresses, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Infof("Sent misconfiguration report email to %d recipients", len(cfg.ToAddresses))
	return nil
}

// sendWebhook posts the report as JSON
func (n *Notifier) sendWebhook(ctx context.Context, report Report, cfg ChannelConfig) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	method := cfg.WebhookMethod
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", report.System)
	for key, value := range cfg.WebhookHeaders {
		req.Header.Set(key, value)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			n.logger.Debugf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}

	n.logger.Infof("Sent misconfiguration report webhook to %s", cfg.WebhookURL)
	return nil
}

// BreakerState returns the breaker state of a channel, closed when unused
func (n *Notifier) BreakerState(cfg ChannelConfig) core.BreakerState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if b, ok := n.breakers[channelKey(cfg)]; ok {
		return b.State()
	}
	return core.BreakerClosed
}

var _ core.Reporter = (*Notifier)(nil)
