package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDebouncer(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	d := NewDebouncerWithClock(DefaultDebounce, clock.Now)

	assert.True(t, d.Allow(), "first scan passes")

	clock.Advance(40 * time.Millisecond)
	assert.False(t, d.Allow(), "burst inside the window is dropped")

	// The dropped scan must not extend the window.
	clock.Advance(60 * time.Millisecond)
	assert.True(t, d.Allow(), "100ms after the accepted scan passes")

	clock.Advance(99 * time.Millisecond)
	assert.False(t, d.Allow())
}

func TestDebouncerZeroWindow(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	d := NewDebouncerWithClock(0, clock.Now)
	assert.True(t, d.Allow())
	assert.True(t, d.Allow())
}

func TestSessionDebouncerIsolatesSessions(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	s := NewSessionDebouncer(DefaultDebounce, clock.Now)

	assert.True(t, s.Allow("station-1"))
	assert.True(t, s.Allow("station-2"), "another station is not throttled")
	assert.False(t, s.Allow("station-1"))
	assert.True(t, s.Allow(""), "anonymous scans are not throttled")
	assert.True(t, s.Allow(""))

	clock.Advance(DefaultDebounce)
	assert.True(t, s.Allow("station-1"))
}
