package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Seconds converts a whole-second setting to a Duration.
func Seconds(s int) time.Duration { return time.Duration(s) * time.Second }

// Millis converts a millisecond setting to a Duration.
func Millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// Micros returns d in whole microseconds, the unit wake timers are armed in.
// Negative durations yield 0.
func Micros(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Microsecond)
}
