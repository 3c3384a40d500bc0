package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dilneiss/CSRFProtector/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNotifier_WebhookDelivery(t *testing.T) {
	var got Report
	var header string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		header = r.Header.Get("X-Api-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewNotifier([]ChannelConfig{{
		Enabled:        true,
		Type:           ChannelWebhook,
		WebhookURL:     server.URL,
		WebhookHeaders: map[string]string{"X-Api-Key": "secret"},
	}}, "csrfguard", 0, zaptest.NewLogger(t).Sugar())

	err := n.ReportMisconfiguration(context.Background(), "form submitted without CSRF protection")
	require.NoError(t, err)

	assert.Equal(t, "csrf_misconfiguration", got.Type)
	assert.Equal(t, "csrfguard", got.System)
	assert.Equal(t, "form submitted without CSRF protection", got.Message)
	assert.NotEmpty(t, got.Timestamp)
	assert.Equal(t, "secret", header)
}

func TestNotifier_EmailDelivery(t *testing.T) {
	smtpServer, err := newMockSMTPServer(false)
	require.NoError(t, err)
	defer smtpServer.Close()

	n := NewNotifier([]ChannelConfig{{
		Enabled:     true,
		Type:        ChannelEmail,
		SMTPHost:    "127.0.0.1",
		SMTPPort:    smtpServer.Port(),
		FromAddress: "guard@example.com",
		ToAddresses: []string{"ops@example.com", "dev@example.com"},
	}}, "csrfguard", 0, zaptest.NewLogger(t).Sugar())

	require.NoError(t, n.ReportMisconfiguration(context.Background(), "missing fields on /checkout"))

	messages := smtpServer.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "guard@example.com", messages[0].From)
	assert.Equal(t, []string{"ops@example.com", "dev@example.com"}, messages[0].To)
	assert.Contains(t, messages[0].Data, "Subject: [csrfguard] CSRF misconfiguration detected")
	assert.Contains(t, messages[0].Data, "missing fields on /checkout")
}

func TestNotifier_EmailWithoutRecipients(t *testing.T) {
	n := NewNotifier([]ChannelConfig{{
		Enabled:  true,
		Type:     ChannelEmail,
		SMTPHost: "127.0.0.1",
		SMTPPort: 1,
	}}, "csrfguard", 0, zaptest.NewLogger(t).Sugar())

	err := n.ReportMisconfiguration(context.Background(), "msg")
	assert.ErrorContains(t, err, "no recipients")
}

func TestNotifier_SkipsDisabledChannels(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	n := NewNotifier([]ChannelConfig{{Enabled: false, Type: ChannelWebhook, WebhookURL: server.URL}},
		"csrfguard", 0, zaptest.NewLogger(t).Sugar())

	require.NoError(t, n.ReportMisconfiguration(context.Background(), "msg"))
	assert.Equal(t, int32(0), calls.Load())
}

func TestNotifier_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := ChannelConfig{Enabled: true, Type: ChannelWebhook, WebhookURL: server.URL}
	n := NewNotifier([]ChannelConfig{cfg}, "csrfguard", 0, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	for i := 0; i < core.DefaultBreakerConfig().MaxFailures; i++ {
		err := n.ReportMisconfiguration(ctx, "msg")
		assert.ErrorContains(t, err, "non-2xx status: 500")
	}
	assert.Equal(t, core.BreakerOpen, n.BreakerState(cfg))

	// Open breaker skips delivery without error
	require.NoError(t, n.ReportMisconfiguration(ctx, "msg"))
	assert.Equal(t, int32(core.DefaultBreakerConfig().MaxFailures), calls.Load())
}

func TestNotifier_RateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	n := NewNotifier([]ChannelConfig{{Enabled: true, Type: ChannelWebhook, WebhookURL: server.URL}},
		"csrfguard", 2, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, n.ReportMisconfiguration(ctx, "msg"))
	}
	assert.Equal(t, int32(2), calls.Load(), "burst allows two reports per minute")
}

func TestNotifier_UnsupportedChannel(t *testing.T) {
	cfg := ChannelConfig{Enabled: true, Type: "pager"}
	n := NewNotifier([]ChannelConfig{cfg}, "csrfguard", 0, nil)

	err := n.ReportMisconfiguration(context.Background(), "msg")
	assert.ErrorContains(t, err, "unsupported channel type")
	assert.Equal(t, core.BreakerClosed, n.BreakerState(cfg))
}

func TestNotifier_SMTPFailure(t *testing.T) {
	smtpServer, err := newMockSMTPServer(true)
	require.NoError(t, err)
	defer smtpServer.Close()

	n := NewNotifier([]ChannelConfig{{
		Enabled:     true,
		Type:        ChannelEmail,
		SMTPHost:    "127.0.0.1",
		SMTPPort:    smtpServer.Port(),
		FromAddress: "guard@example.com",
		ToAddresses: []string{"ops@example.com"},
	}}, "csrfguard", 0, zaptest.NewLogger(t).Sugar())

	err = n.ReportMisconfiguration(context.Background(), "msg")
	assert.ErrorContains(t, err, "failed to send email")
	assert.Empty(t, smtpServer.Messages())
}
