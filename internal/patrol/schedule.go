package patrol

import "time"

// NextWake advances the target wake time by whole intervals until it is not
// in the past. Anchoring the cadence to the original schedule rather than to
// "last completion + interval" means a slow cycle does not shift the phase,
// and a long pause causes at most one immediate catch-up cycle.
func NextWake(next, now time.Time, interval time.Duration) time.Time {
	for next.Before(now) {
		next = next.Add(interval)
	}
	return next
}

// StaggerOffset spreads the initial wake times of n targets across one poll
// interval so they do not hit their remotes simultaneously.
func StaggerOffset(index, count int, interval time.Duration) time.Duration {
	if count <= 0 {
		return 0
	}
	return time.Duration(index) * interval / time.Duration(count)
}
