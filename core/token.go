package core

import "time"

const (
	// FieldName is the POST field carrying the token name
	FieldName = "CSRFName"
	// FieldToken is the POST field carrying the token value
	FieldToken = "CSRFToken"

	// AttrName is the AJAX attribute carrying the token name
	AttrName = "csrfname"
	// AttrToken is the AJAX attribute carrying the token value
	AttrToken = "csrftoken"

	// DefaultTokenLifetime is how long an issued token stays acceptable
	DefaultTokenLifetime = 1800 * time.Second

	// NoUserAgent replaces an absent User-Agent header in access key derivation
	NoUserAgent = "nobrowser"
)

// TokenRecord is the stored state of one issued token.
// It holds no behaviour that depends on the guard that produced it.
type TokenRecord struct {
	AccessKey  string `json:"access_key" msgpack:"access_key"`
	TokenName  string `json:"token_name" msgpack:"token_name"`
	TokenValue string `json:"token_value" msgpack:"token_value"`
	// IssuedAt is in Unix seconds
	IssuedAt int64 `json:"issued_at" msgpack:"issued_at"`
}

// Age returns how long ago the record was issued relative to now.
func (r TokenRecord) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(r.IssuedAt, 0))
}

// Expired reports whether the record is no longer acceptable.
// A record is live while its age is strictly below the lifetime.
func (r TokenRecord) Expired(now time.Time, lifetime time.Duration) bool {
	return r.Age(now) >= lifetime
}

// IsZero reports whether the record was never issued.
func (r TokenRecord) IsZero() bool {
	return r.TokenName == "" && r.TokenValue == ""
}
