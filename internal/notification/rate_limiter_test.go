package notification

import (
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeLastSeen map[Type]time.Time

func (f fakeLastSeen) LastSeen(t Type) (time.Time, bool) {
	v, ok := f[t]
	return v, ok
}

func TestRateLimiter_PriorityAllowances(t *testing.T) {
	t.Parallel()

	for _, r := range []int{1, 2, 3, 30, 59} {
		rl := NewRateLimiter("test", RateLimitPolicy{Limit: r, Period: time.Minute}, nil)
		assert.Equal(t, 2*r, rl.PriorityAllowance(PriorityHigh), "HIGH for R=%d", r)
		assert.Equal(t, r/2, rl.PriorityAllowance(PriorityLow), "LOW for R=%d", r)
		assert.Equal(t, r, rl.PriorityAllowance(PriorityNormal), "NORMAL for R=%d", r)
	}
}

func TestRateLimiter_TypeAllowances(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter("test", RateLimitPolicy{Limit: 8, Period: time.Minute}, nil)

	assert.Equal(t, 2, rl.TypeAllowance(TypeDebug))
	assert.Equal(t, 4, rl.TypeAllowance(TypeProgress))
	assert.Equal(t, 12, rl.TypeAllowance(TypeSystem))
	assert.Equal(t, 16, rl.TypeAllowance(TypeError))
	assert.Equal(t, 8, rl.TypeAllowance(TypeCompletion))
	assert.Equal(t, 8, rl.TypeAllowance(TypeCustom))
}

func TestRateLimiter_TypeGate(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		seen := fakeLastSeen{TypeProgress: time.Now()}
		rl := NewRateLimiter("test", RateLimitPolicy{Limit: 30, Period: time.Minute, MinInterval: time.Second}, seen)

		d := rl.Allow(PriorityNormal, TypeProgress)
		assert.False(t, d.Allowed)
		assert.Equal(t, reasonTypeInterval, d.Reason)
		assert.Equal(t, time.Second, d.RetryIn)

		// other types are not gated
		assert.True(t, rl.Allow(PriorityNormal, TypeCompletion).Allowed)

		time.Sleep(time.Second)
		assert.True(t, rl.Allow(PriorityNormal, TypeProgress).Allowed)
	})
}

func TestRateLimiter_PriorityWindow(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		rl := NewRateLimiter("test", RateLimitPolicy{Limit: 2, Period: time.Minute}, nil)

		assert.True(t, rl.Allow(PriorityLow, TypeCompletion).Allowed)
		d := rl.Allow(PriorityLow, TypeWarning)
		assert.False(t, d.Allowed)
		assert.Equal(t, reasonPriority, d.Reason)

		// NORMAL has its own window
		assert.True(t, rl.Allow(PriorityNormal, TypeWarning).Allowed)

		time.Sleep(time.Minute + time.Millisecond)
		assert.True(t, rl.Allow(PriorityLow, TypeCustom).Allowed)
	})
}

func TestRateLimiter_TypeWindowIndependentOfPriority(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		rl := NewRateLimiter("test", RateLimitPolicy{Limit: 4, Period: time.Minute}, nil)

		// DEBUG allowance is 1 while HIGH allowance is 8
		assert.True(t, rl.Allow(PriorityHigh, TypeDebug).Allowed)
		d := rl.Allow(PriorityHigh, TypeDebug)
		assert.False(t, d.Allowed)
		assert.Equal(t, reasonType, d.Reason)

		assert.True(t, rl.Allow(PriorityHigh, TypeError).Allowed)
	})
}

func TestRateLimiter_NeverExceedsAllowance(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		rl := NewRateLimiter("test", RateLimitPolicy{Limit: 5, Period: 10 * time.Second}, nil)

		allowed := 0
		for range 200 {
			if rl.Allow(PriorityNormal, TypeCompletion).Allowed {
				allowed++
			}
			time.Sleep(100 * time.Millisecond)
		}
		// 20s of traffic over a 10s window: at most 5 per window
		assert.LessOrEqual(t, allowed, 10)
		assert.GreaterOrEqual(t, allowed, 5)
	})
}

func TestRateLimiter_ZeroAllowanceDenies(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter("test", RateLimitPolicy{Limit: 1, Period: time.Minute}, nil)
	assert.Equal(t, 0, rl.PriorityAllowance(PriorityLow))

	d := rl.Allow(PriorityLow, TypeCompletion)
	assert.False(t, d.Allowed)
	assert.Equal(t, reasonPriority, d.Reason)
}
