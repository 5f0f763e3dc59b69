package db

import "time"

// remaining computes the searches left for a user who made count requests,
// the latest at last. Counters from an earlier UTC day no longer apply.
func remaining(count int, last, now time.Time, maxPerDay int) int {
	if isStale(last, now) {
		count = 0
	}
	left := maxPerDay - count
	if left < 0 {
		return 0
	}
	return left
}

func isStale(last, now time.Time) bool {
	return utcDay(last).Before(utcDay(now))
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
