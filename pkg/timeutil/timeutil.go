// Package timeutil provides the clock and day-window helpers shared by the
// stats, sync and inactivity code.
// No external dependencies - uses only standard library.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the source of "now". Production code uses SystemClock,
// tests use a FixedClock to pin rolling windows.
type Clock interface {
	Now() time.Time
}

// SystemClock returns wall-clock time in UTC.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant until moved.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a FixedClock set to t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now returns the pinned instant.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Day is a 24-hour span. Rolling windows are measured in whole days
// regardless of DST.
const Day = 24 * time.Hour

// DaysBefore returns the instant exactly days*24h before now.
func DaysBefore(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * Day)
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DateKey formats t as YYYY-MM-DD in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return StartOfDay(t, loc).Format("2006-01-02")
}

// Sleep waits for d or until ctx-like done channel closes.
// Returns false when interrupted.
func Sleep(done <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-done:
		return false
	}
}
