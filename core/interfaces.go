package core

import (
	"context"
	"time"
)

// SessionStore holds token records per session.
// Implementations must be safe for concurrent use and must make Consume
// atomic: two callers racing on the same key can never both get true.
type SessionStore interface {
	// Put writes rec under (sessionID, rec.AccessKey, rec.TokenName)
	Put(ctx context.Context, sessionID string, rec TokenRecord) error
	// Get returns ErrTokenNotFound when no record exists
	Get(ctx context.Context, sessionID, accessKey, tokenName string) (*TokenRecord, error)
	Delete(ctx context.Context, sessionID, accessKey, tokenName string) error
	// Consume removes the record only if it exists and accept returns true.
	// A missing record yields (false, nil) without calling accept.
	Consume(ctx context.Context, sessionID, accessKey, tokenName string, accept func(TokenRecord) bool) (bool, error)
	// Sweep removes records issued before olderThan and returns how many were removed
	Sweep(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}

// RequestContext is the read-only view of the current request.
type RequestContext interface {
	SessionID() string
	Method() string
	PostFields() map[string]string
	UserAgent() string
	ClientIP() string
	// Now is the server timestamp of the request
	Now() time.Time
}

// Reporter delivers misconfiguration reports to an operator.
type Reporter interface {
	ReportMisconfiguration(ctx context.Context, message string) error
}
