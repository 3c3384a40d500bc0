package core

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Token value strategies accepted by NewTokenGenerator
const (
	StrategySHA512       = "sha512"
	StrategyAlphanumeric = "alphanumeric"
)

const (
	randomBufferSize    = 32
	valueSeedSize       = 64
	alphanumericLength  = 128
	alphanumericCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// TokenGenerator produces the random name and value of a token.
type TokenGenerator interface {
	NewName() (string, error)
	NewValue() (string, error)
}

// NewTokenGenerator returns the generator for a strategy name.
// An empty name selects StrategySHA512.
func NewTokenGenerator(strategy string) (TokenGenerator, error) {
	switch strings.ToLower(strategy) {
	case "", StrategySHA512:
		return NewSecureGenerator(rand.Reader), nil
	case StrategyAlphanumeric:
		return NewAlphanumericGenerator(rand.Reader), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// SecureGenerator names tokens with HMAC-SHA256 over two independent random
// buffers and values them with a SHA-512 digest of random bytes.
type SecureGenerator struct {
	random io.Reader
}

// NewSecureGenerator creates a SecureGenerator reading from random.
func NewSecureGenerator(random io.Reader) *SecureGenerator {
	return &SecureGenerator{random: random}
}

// NewName returns a 64-character hex token name.
func (g *SecureGenerator) NewName() (string, error) {
	return hmacName(g.random)
}

// NewValue returns a 128-character hex token value.
func (g *SecureGenerator) NewValue() (string, error) {
	seed, err := readRandom(g.random, valueSeedSize)
	if err != nil {
		return "", err
	}
	sum := sha512.Sum512(seed)
	return hex.EncodeToString(sum[:]), nil
}

// AlphanumericGenerator values tokens with 128 random characters from [a-z0-9].
// Names are produced the same way as SecureGenerator.
type AlphanumericGenerator struct {
	random io.Reader
}

// NewAlphanumericGenerator creates an AlphanumericGenerator reading from random.
func NewAlphanumericGenerator(random io.Reader) *AlphanumericGenerator {
	return &AlphanumericGenerator{random: random}
}

// NewName returns a 64-character hex token name.
func (g *AlphanumericGenerator) NewName() (string, error) {
	return hmacName(g.random)
}

// NewValue returns a 128-character alphanumeric token value.
func (g *AlphanumericGenerator) NewValue() (string, error) {
	var sb strings.Builder
	sb.Grow(alphanumericLength)

	// Rejection sampling keeps the distribution uniform over 36 symbols.
	limit := byte(256 - 256%len(alphanumericCharset))
	buf := make([]byte, alphanumericLength)
	for sb.Len() < alphanumericLength {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			sb.WriteByte(alphanumericCharset[int(b)%len(alphanumericCharset)])
			if sb.Len() == alphanumericLength {
				break
			}
		}
	}
	return sb.String(), nil
}

func hmacName(random io.Reader) (string, error) {
	data, err := readRandom(random, randomBufferSize)
	if err != nil {
		return "", err
	}
	key, err := readRandom(random, randomBufferSize)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(base64.StdEncoding.EncodeToString(key)))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func readRandom(random io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(random, buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}
