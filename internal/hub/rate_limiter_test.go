package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(rl *RateLimiter, start time.Time) *time.Time {
	now := start
	rl.now = func() time.Time { return now }
	return &now
}

func TestRateLimiter_AllowsUpToLimitPerWindow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	now := fixedClock(rl, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("alice"), "message %d should pass", i+1)
	}
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"), "limits are per user")

	*now = now.Add(time.Minute)
	assert.True(t, rl.Allow("alice"), "a new window resets the count")
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.Equal(t, DefaultRateLimit, rl.limit)
	assert.Equal(t, DefaultRateWindow, rl.window)

	fixedClock(rl, time.Now())
	for i := 0; i < DefaultRateLimit; i++ {
		rl.Allow("alice")
	}
	assert.False(t, rl.Allow("alice"))
}

func TestRateLimiter_CleanupDropsIdleUsers(t *testing.T) {
	rl := NewRateLimiter(10, time.Minute)
	now := fixedClock(rl, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	rl.Allow("alice")
	*now = now.Add(4 * time.Minute)
	rl.Allow("bob")
	assert.Equal(t, 2, rl.Tracked())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 1, rl.Tracked())
}
