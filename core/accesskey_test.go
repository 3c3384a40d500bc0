package core

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func TestDeriveAccessKey_Construction(t *testing.T) {
	inner := blake2b.Sum256([]byte("A" + "1.2.3.4" + "loginForm"))
	outer := blake2b.Sum256([]byte(DefaultSaltPrefix + hex.EncodeToString(inner[:]) + DefaultSaltSuffix))
	want := base64.RawURLEncoding.EncodeToString(outer[:])

	assert.Equal(t, want, DeriveAccessKey("loginForm", "A", "1.2.3.4"))
}

func TestDeriveAccessKey_Deterministic(t *testing.T) {
	k1 := DeriveAccessKey("loginForm", "A", "1.2.3.4")
	k2 := DeriveAccessKey("loginForm", "A", "1.2.3.4")
	assert.Equal(t, k1, k2)

	raw, err := base64.RawURLEncoding.DecodeString(k1)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestDeriveAccessKey_SensitiveToEveryInput(t *testing.T) {
	base := DeriveAccessKey("loginForm", "A", "1.2.3.4")

	assert.NotEqual(t, base, DeriveAccessKey("signupForm", "A", "1.2.3.4"))
	assert.NotEqual(t, base, DeriveAccessKey("loginForm", "B", "1.2.3.4"))
	assert.NotEqual(t, base, DeriveAccessKey("loginForm", "A", "1.2.3.5"))
	assert.NotEqual(t, base, NewAccessKeyDeriver("other", "").Derive("loginForm", "A", "1.2.3.4"))
	assert.NotEqual(t, base, NewAccessKeyDeriver("", "other").Derive("loginForm", "A", "1.2.3.4"))
}

func TestDeriveAccessKey_MissingUserAgent(t *testing.T) {
	assert.Equal(t,
		DeriveAccessKey("loginForm", NoUserAgent, "1.2.3.4"),
		DeriveAccessKey("loginForm", "", "1.2.3.4"))
}

func TestNewAccessKeyDeriver_DefaultSalts(t *testing.T) {
	d := NewAccessKeyDeriver("", "")
	assert.Equal(t, DeriveAccessKey("f", "ua", "ip"), d.Derive("f", "ua", "ip"))
}

func TestTokenGuard_AccessKeyStable(t *testing.T) {
	g, _, _ := newTestGuard(t, ModeProduction)
	tg := g.For("loginForm", loginRequest())

	assert.Equal(t, DeriveAccessKey("loginForm", "A", "1.2.3.4"), tg.AccessKey())
	assert.Equal(t, tg.AccessKey(), tg.AccessKey())
}
