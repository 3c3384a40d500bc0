package core

import (
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Default salts wrapped around the inner fingerprint digest.
// They only need to be stable for the lifetime of the issued tokens.
const (
	DefaultSaltPrefix = "rdhdh465rd4h56rds4h56dr"
	DefaultSaltSuffix = "gsegse4ges489ges498gse984g98es49j8rt4jt"
)

// AccessKeyDeriver computes the scoping identifier of a token.
// The key is an identifier, not a secret: it namespaces tokens per
// form and client fingerprint.
type AccessKeyDeriver struct {
	saltPrefix string
	saltSuffix string
}

// NewAccessKeyDeriver creates a deriver with the given salts, falling back
// to the defaults when empty.
func NewAccessKeyDeriver(prefix, suffix string) *AccessKeyDeriver {
	if prefix == "" {
		prefix = DefaultSaltPrefix
	}
	if suffix == "" {
		suffix = DefaultSaltSuffix
	}
	return &AccessKeyDeriver{saltPrefix: prefix, saltSuffix: suffix}
}

// Derive returns base64url(H(prefix + hex(H(userAgent + clientIP + scope)) + suffix)).
// An empty user-agent is replaced by NoUserAgent.
func (d *AccessKeyDeriver) Derive(scope, userAgent, clientIP string) string {
	if userAgent == "" {
		userAgent = NoUserAgent
	}

	inner := blake2b.Sum256([]byte(userAgent + clientIP + scope))
	outer := blake2b.Sum256([]byte(d.saltPrefix + hex.EncodeToString(inner[:]) + d.saltSuffix))

	return base64.RawURLEncoding.EncodeToString(outer[:])
}

// DeriveAccessKey derives an access key with the default salts.
func DeriveAccessKey(scope, userAgent, clientIP string) string {
	return NewAccessKeyDeriver("", "").Derive(scope, userAgent, clientIP)
}
