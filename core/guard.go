package core

import (
	"context"
	"crypto/subtle"
	"fmt"
	"html"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/dilneiss/CSRFProtector/metrics"
	"go.uber.org/zap"
)

// Mode selects how a missing-protection violation is handled
type Mode string

const (
	// ModeDevelopment aborts the request with a diagnostic message
	ModeDevelopment Mode = "development"
	// ModeProduction reports to the operator and redirects to the error page
	ModeProduction Mode = "production"
)

// IsValid checks if the mode is known
func (m Mode) IsValid() bool {
	return m == ModeDevelopment || m == ModeProduction
}

// GenericErrorMessage is shown to users whose submission failed validation
const GenericErrorMessage = "An unexpected error occurred with your request.<br />If the error persists, please contact us."

// GuardConfig holds the tunables of a Guard
type GuardConfig struct {
	Lifetime time.Duration
	Mode     Mode
	Deriver  *AccessKeyDeriver
}

// Guard is the long-lived, concurrency-safe factory of per-request TokenGuards.
type Guard struct {
	store     SessionStore
	generator TokenGenerator
	reporter  Reporter
	deriver   *AccessKeyDeriver
	lifetime  time.Duration
	mode      Mode
	logger    *zap.SugaredLogger
}

// NewGuard creates a Guard. A zero Lifetime selects DefaultTokenLifetime and
// an empty Mode selects ModeProduction.
func NewGuard(store SessionStore, generator TokenGenerator, reporter Reporter, cfg GuardConfig, logger *zap.SugaredLogger) *Guard {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultTokenLifetime
	}
	if !cfg.Mode.IsValid() {
		cfg.Mode = ModeProduction
	}
	if cfg.Deriver == nil {
		cfg.Deriver = NewAccessKeyDeriver("", "")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Guard{
		store:     store,
		generator: generator,
		reporter:  reporter,
		deriver:   cfg.Deriver,
		lifetime:  cfg.Lifetime,
		mode:      cfg.Mode,
		logger:    logger,
	}
}

// Lifetime returns how long issued tokens stay acceptable
func (g *Guard) Lifetime() time.Duration {
	return g.lifetime
}

// Mode returns the violation handling mode
func (g *Guard) Mode() Mode {
	return g.mode
}

// For returns a TokenGuard for scope bound to req. The returned guard holds no
// token until EnsureToken is called, so it can be used for validation alone.
func (g *Guard) For(scope string, req RequestContext) *TokenGuard {
	return &TokenGuard{guard: g, scope: scope, req: req}
}

// TokenGuard issues and validates the token of one scope within one request.
// It is not safe for concurrent use.
type TokenGuard struct {
	guard     *Guard
	scope     string
	req       RequestContext
	accessKey string
	record    *TokenRecord
}

// Scope returns the scope the guard was created for
func (t *TokenGuard) Scope() string {
	return t.scope
}

// AccessKey derives the access key of the bound request. The derivation
// always starts from the scope, so repeated calls return the same key.
func (t *TokenGuard) AccessKey() string {
	if t.accessKey == "" {
		t.accessKey = t.guard.deriver.Derive(t.scope, t.req.UserAgent(), t.req.ClientIP())
	}
	return t.accessKey
}

// Record returns a copy of the held record, or false when none was issued
func (t *TokenGuard) Record() (TokenRecord, bool) {
	if t.record == nil {
		return TokenRecord{}, false
	}
	return *t.record, true
}

// EnsureToken issues and stores a new token if this guard holds none, and
// returns the held name/value pair.
func (t *TokenGuard) EnsureToken(ctx context.Context) (string, string, error) {
	if t.record != nil {
		return t.record.TokenName, t.record.TokenValue, nil
	}

	sessionID := t.req.SessionID()
	if sessionID == "" {
		return "", "", ErrNoSession
	}

	name, err := t.guard.generator.NewName()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate token name: %w", err)
	}
	value, err := t.guard.generator.NewValue()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate token value: %w", err)
	}

	rec := TokenRecord{
		AccessKey:  t.AccessKey(),
		TokenName:  name,
		TokenValue: value,
		IssuedAt:   t.req.Now().Unix(),
	}
	if err := t.guard.store.Put(ctx, sessionID, rec); err != nil {
		return "", "", fmt.Errorf("failed to store token: %w", err)
	}

	t.record = &rec
	metrics.TokensIssued.WithLabelValues(t.scope).Inc()
	t.guard.logger.Debugw("CSRF token issued",
		"scope", t.scope,
		"client_ip", t.req.ClientIP())

	return name, value, nil
}

// HiddenInputs returns the two hidden inputs carrying the token. pageName is
// appended to the class (and id when useID is set) of each input.
func (t *TokenGuard) HiddenInputs(ctx context.Context, pageName string, useID bool) (template.HTML, error) {
	name, value, err := t.EnsureToken(ctx)
	if err != nil {
		return "", err
	}

	page := html.EscapeString(pageName)
	var idName, idToken string
	if useID {
		idName = fmt.Sprintf(" id='%s%s'", AttrName, page)
		idToken = fmt.Sprintf(" id='%s%s'", AttrToken, page)
	}

	markup := fmt.Sprintf("<input class='%s%s' type='hidden'%s name='%s' value='%s' />\n"+
		"<input class='%s%s' type='hidden'%s name='%s' value='%s' />",
		AttrName, page, idName, FieldName, html.EscapeString(name),
		AttrToken, page, idToken, FieldToken, html.EscapeString(value))

	return template.HTML(markup), nil
}

// AjaxAttributes returns the token as inline attributes for script-driven posts.
func (t *TokenGuard) AjaxAttributes(ctx context.Context) (template.HTMLAttr, error) {
	name, value, err := t.EnsureToken(ctx)
	if err != nil {
		return "", err
	}
	return template.HTMLAttr(fmt.Sprintf(" %s='%s' %s='%s'",
		AttrName, html.EscapeString(name), AttrToken, html.EscapeString(value))), nil
}

// ValidateRequest validates the method and POST fields of the bound request.
func (t *TokenGuard) ValidateRequest(ctx context.Context) bool {
	return t.Validate(ctx, t.req.Method(), t.req.PostFields())
}

// Validate reports whether fields carry a live token issued for this scope
// and client. A successful validation consumes the token; every failure
// leaves the store untouched.
func (t *TokenGuard) Validate(ctx context.Context, method string, fields map[string]string) bool {
	start := time.Now()
	result := t.validate(ctx, method, fields)
	metrics.ValidationDuration.Observe(time.Since(start).Seconds())
	metrics.Validations.WithLabelValues(result).Inc()

	if result != "accepted" {
		t.guard.logger.Infow("CSRF validation rejected",
			"scope", t.scope,
			"reason", result,
			"client_ip", t.req.ClientIP())
		return false
	}
	return true
}

func (t *TokenGuard) validate(ctx context.Context, method string, fields map[string]string) string {
	if !strings.EqualFold(method, http.MethodPost) {
		return "not_post"
	}

	name := fields[FieldName]
	value := fields[FieldToken]
	if name == "" || value == "" {
		return "missing_fields"
	}

	sessionID := t.req.SessionID()
	if sessionID == "" {
		return "no_session"
	}

	now := t.req.Now()
	lifetime := t.guard.lifetime
	reason := "not_found"

	consumed, err := t.guard.store.Consume(ctx, sessionID, t.AccessKey(), name, func(rec TokenRecord) bool {
		if rec.Expired(now, lifetime) {
			reason = "expired"
			return false
		}
		if subtle.ConstantTimeCompare([]byte(rec.TokenValue), []byte(value)) != 1 {
			reason = "mismatch"
			return false
		}
		return true
	})
	if err != nil {
		t.guard.logger.Errorw("CSRF token lookup failed",
			"scope", t.scope,
			"error", err)
		return "store_error"
	}
	if !consumed {
		return reason
	}
	return "accepted"
}

// RequirePostProtection checks that a request carrying POST fields includes
// at least one CSRF field. On violation it returns a fatal *ProtectionError
// in development mode; in production mode it reports the violation, calls
// redirect and returns ErrMissingProtection.
func (t *TokenGuard) RequirePostProtection(ctx context.Context, fields map[string]string, redirect func()) error {
	if len(fields) == 0 {
		return nil
	}
	_, hasName := fields[FieldName]
	_, hasToken := fields[FieldToken]
	if hasName || hasToken {
		return nil
	}

	msg := ErrMissingProtection.Error()
	metrics.ProtectionViolations.WithLabelValues(string(t.guard.mode)).Inc()
	t.guard.logger.Warnw("CSRF protection missing on POST",
		"scope", t.scope,
		"mode", t.guard.mode,
		"client_ip", t.req.ClientIP(),
		"user_agent", t.req.UserAgent())

	if t.guard.mode == ModeDevelopment {
		return &ProtectionError{Message: msg, Fatal: true}
	}

	if t.guard.reporter != nil {
		if err := t.guard.reporter.ReportMisconfiguration(ctx, msg); err != nil {
			t.guard.logger.Errorw("Failed to report missing CSRF protection", "error", err)
		}
	}
	if redirect != nil {
		redirect()
	}
	return ErrMissingProtection
}

// ErrorMessage returns the text shown to a user whose submission was rejected
func (t *TokenGuard) ErrorMessage() string {
	return GenericErrorMessage
}
