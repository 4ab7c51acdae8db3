package tarpit

import "time"

// elapsedUnit is the resolution of Elapsed values.
const elapsedUnit = 100 * time.Millisecond

// Elapsed is a time offset from a reference instant, such as process
// start, at a tenth of a second resolution. It wraps after roughly 13.6
// years, and costs 4 bytes instead of the 24 of a time.Time; scheduling
// granularity is a full second, so nothing finer is ever needed.
type Elapsed uint32

// ElapsedSince returns the time elapsed since epoch.
func ElapsedSince(epoch time.Time) Elapsed {
	return Elapsed(time.Since(epoch) / elapsedUnit)
}

// Duration converts back to a duration, at the resolution of the
// encoding.
func (x Elapsed) Duration() time.Duration {
	return time.Duration(x) * elapsedUnit
}

// Sub returns the duration between two offsets from the same epoch. The
// unsigned arithmetic remains correct across a single wraparound.
func (x Elapsed) Sub(earlier Elapsed) time.Duration {
	return (x - earlier).Duration()
}
