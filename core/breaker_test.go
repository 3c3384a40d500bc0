package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker() (*Breaker, *time.Time) {
	now := time.Unix(1700000000, 0)
	b := NewBreaker(BreakerConfig{MaxFailures: 2, Cooldown: time.Minute})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b, _ := newTestBreaker()

	assert.NoError(t, b.Allow())
	assert.Equal(t, BreakerClosed, b.Failure())
	assert.Equal(t, BreakerOpen, b.Failure())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	b, now := newTestBreaker()
	b.Failure()
	b.Failure()

	*now = now.Add(time.Minute)
	assert.NoError(t, b.Allow(), "cooldown elapsed allows one trial")
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen, "only one trial at a time")

	b.Success()
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	b, now := newTestBreaker()
	b.Failure()
	b.Failure()

	*now = now.Add(time.Minute)
	assert.NoError(t, b.Allow())
	assert.Equal(t, BreakerOpen, b.Failure())
	assert.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker()
	b.Failure()
	b.Success()
	assert.Equal(t, BreakerClosed, b.Failure())
}

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	for i := 0; i < DefaultBreakerConfig().MaxFailures-1; i++ {
		b.Failure()
	}
	assert.Equal(t, BreakerClosed, b.State())
	b.Failure()
	assert.Equal(t, BreakerOpen, b.State())
}
