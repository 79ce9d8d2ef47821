package scan

import (
	"sync"
	"time"
)

// DefaultDebounce is the minimum gap between two accepted scans of one session.
const DefaultDebounce = 100 * time.Millisecond

// Debouncer throttles one scanning session. Keyboard-wedge scanners can emit
// the same label several times in a burst; only the first passes.
// It gives no guarantee across sessions.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	now    func() time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	return NewDebouncerWithClock(window, time.Now)
}

func NewDebouncerWithClock(window time.Duration, now func() time.Time) *Debouncer {
	if window < 0 {
		window = 0
	}
	return &Debouncer{window: window, now: now}
}

// Allow records the scan and returns true when it is outside the window of
// the previously accepted one. Rejected scans do not move the window.
func (d *Debouncer) Allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.now()
	if !d.last.IsZero() && t.Sub(d.last) < d.window {
		return false
	}
	d.last = t
	return true
}

// SessionDebouncer keeps one Debouncer per scanning session (station or staff
// member) for the server side of the scan path.
type SessionDebouncer struct {
	mu       sync.Mutex
	window   time.Duration
	now      func() time.Time
	sessions map[string]*Debouncer
	seen     map[string]time.Time
}

func NewSessionDebouncer(window time.Duration, now func() time.Time) *SessionDebouncer {
	if now == nil {
		now = time.Now
	}
	return &SessionDebouncer{
		window:   window,
		now:      now,
		sessions: make(map[string]*Debouncer),
		seen:     make(map[string]time.Time),
	}
}

// Allow applies the session's debouncer. An empty session key is never throttled.
func (s *SessionDebouncer) Allow(session string) bool {
	if session == "" || s.window == 0 {
		return true
	}

	s.mu.Lock()
	d, ok := s.sessions[session]
	if !ok {
		d = NewDebouncerWithClock(s.window, s.now)
		s.sessions[session] = d
	}
	s.seen[session] = s.now()
	s.evictLocked()
	s.mu.Unlock()

	return d.Allow()
}

// sessions idle for a minute are dropped so the map does not grow with every
// station that ever connected.
func (s *SessionDebouncer) evictLocked() {
	if len(s.sessions) < 256 {
		return
	}
	cutoff := s.now().Add(-time.Minute)
	for k, t := range s.seen {
		if t.Before(cutoff) {
			delete(s.seen, k)
			delete(s.sessions, k)
		}
	}
}
