//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// DeferredTimeSince detects deferred calls whose time.Since argument is
// evaluated when the defer statement runs, not at function exit.
//
//	defer m.RecordPoll(status, time.Since(start).Seconds()) // measures nothing
//	defer func() { m.RecordPoll(status, time.Since(start).Seconds()) }()
func DeferredTimeSince(m dsl.Matcher) {
	m.Match(
		`defer $fn(time.Since($start))`,
		`defer $fn(time.Since($start), $*args)`,
		`defer $fn($arg, time.Since($start))`,
		`defer $fn($arg, time.Since($start).Seconds())`,
		`defer $fn($arg1, $arg2, time.Since($start))`,
	).
		Report("time.Since($start) is evaluated at defer time, not function exit; wrap in func()")
}

// TimerChannelLen flags len/cap on timer channels, which are unbuffered
// since Go 1.23 and always report zero.
func TimerChannelLen(m dsl.Matcher) {
	m.Match(`len($t.C)`, `cap($t.C)`).
		Where(m["t"].Type.Is("*time.Timer") || m["t"].Type.Is("*time.Ticker")).
		Report("timer channels are unbuffered; len/cap is always 0")
}
