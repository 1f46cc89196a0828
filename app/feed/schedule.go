package feed

import (
	"strconv"
	"time"

	"github.com/feedpoll/feedpoll/app/store"
)

// Base durations of the declared update periods. Unknown period names fall
// back to the hourly base.
var periodSeconds = map[string]int64{
	"hourly":  3600,
	"daily":   86400,
	"weekly":  604800,
	"monthly": 2592000,
}

// Interval computes a feed's polling interval from its declared update
// period and frequency.
func Interval(period string, frequency int) time.Duration {
	base, ok := periodSeconds[period]
	if !ok {
		base = periodSeconds["hourly"]
	}
	if frequency < 1 {
		frequency = 1
	}
	return time.Duration(base*int64(frequency)) * time.Second
}

// Due reports whether a feed's metadata record is due for polling at now.
// A feed that was never polled (or whose last_polled value cannot be
// parsed) is immediately due; inactive feeds never are.
func Due(meta store.Record, now time.Time) bool {
	if meta.Attrs.GetString("status") == StatusInactive {
		return false
	}

	lastPolled := meta.Attrs.GetString("last_polled")
	if lastPolled == "" {
		return true
	}

	polledAt, err := time.Parse(store.TimeFormat, lastPolled)
	if err != nil {
		return true
	}

	frequency, err := strconv.Atoi(meta.Attrs.GetString("update_frequency"))
	if err != nil {
		frequency = 1
	}

	interval := Interval(meta.Attrs.GetString("update_period"), frequency)

	return !now.Before(polledAt.Add(interval))
}
