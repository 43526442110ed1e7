package middleware

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(2, time.Minute, clock)
	defer rl.Close()

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"), "ключи независимы")

	clock.Advance(30 * time.Second)
	assert.False(t, rl.Allow("u1"))

	clock.Advance(31 * time.Second)
	assert.True(t, rl.Allow("u1"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(1, time.Minute, clock)
	defer rl.Close()

	rl.Allow("u1")
	rl.Allow("u2")
	assert.Equal(t, 2, rl.Tracked())

	clock.Advance(2 * time.Minute)
	rl.cleanup()
	assert.Equal(t, 0, rl.Tracked())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "привет", Truncate("привет", 10))
	assert.Equal(t, "при...", Truncate("привет", 3))
}
