package recur

import (
	"io"
	"iter"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxDelay is the longest single timer an Engine arms. Longer waits
// are chained from several timers.
const DefaultMaxDelay = time.Duration(math.MaxInt32) * time.Millisecond

// An Engine computes occurrences of schedules in a single time zone and
// runs a callback on them.
//
// Next, Previous, Get and Valid are safe for concurrent use. An Engine runs
// at most one Exec session at a time.
type Engine struct {
	loc        *time.Location
	resolution time.Duration
	maxDelay   time.Duration
	log        zerolog.Logger

	mu      sync.Mutex
	session *session
}

// A session is the timer armed by Exec.
type session struct {
	schedule Schedule
	f        func()
	timer    stopper
}

// An Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the zone used to read and build calendar fields.
// The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithResolution sets the minimum spacing between occurrences returned by
// Get and between callbacks run by Exec. It is rounded down to whole
// seconds and is at least one second.
func WithResolution(d time.Duration) Option {
	return func(e *Engine) {
		e.resolution = max(d.Truncate(time.Second), time.Second)
	}
}

// WithMaxDelay sets the longest single timer armed by Exec.
func WithMaxDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.maxDelay = d
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithLog sends the engine's logs to w at the given level.
func WithLog(w io.Writer, level zerolog.Level) Option {
	return func(e *Engine) { e.log = newLogger(w).Level(level) }
}

// New returns an Engine configured by opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		loc:        time.UTC,
		resolution: time.Second,
		maxDelay:   DefaultMaxDelay,
		log:        newLogger(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the zone the engine works in.
func (e *Engine) Location() *time.Location { return e.loc }

// Resolution returns the engine's minimum spacing between occurrences.
func (e *Engine) Resolution() time.Duration { return e.resolution }

// Valid reports whether t, truncated to the second, is an occurrence of s.
// After constraints are relative to a search start, so Valid ignores them.
func (e *Engine) Valid(s Schedule, t time.Time) bool {
	t = t.In(e.loc).Truncate(time.Second)
	next, ok := e.find(solver{loc: e.loc, exact: true}, s, t, t)
	return ok && next.Equal(t)
}

// Next returns the first occurrence of s at or after start. A non-zero end
// bounds the search. It reports false if no occurrence was found.
func (e *Engine) Next(s Schedule, start, end time.Time) (time.Time, bool) {
	return e.find(solver{loc: e.loc}, s, ceil(start), end)
}

// Previous returns the last occurrence of s at or before start. A non-zero
// end bounds the search from below.
func (e *Engine) Previous(s Schedule, start, end time.Time) (time.Time, bool) {
	return e.find(solver{loc: e.loc, reverse: true},
		s, start.Truncate(time.Second), end)
}

func (e *Engine) find(
	sv solver, s Schedule, start, end time.Time,
) (time.Time, bool) {
	reverse := sv.reverse
	excepted := Schedule{Sets: s.Exceptions}
	for range maxLoops {
		if !end.IsZero() && sv.beyond(start, end) {
			return time.Time{}, false
		}
		var best time.Time
		var found bool
		for _, set := range s.Sets {
			t, ok := sv.solve(set, start, end)
			if !ok {
				continue
			}
			if !found || reverse && t.After(best) || !reverse && t.Before(best) {
				best, found = t, true
			}
		}
		if !found {
			return time.Time{}, false
		}
		if len(excepted.Sets) == 0 || !e.Valid(excepted, best) {
			return best, true
		}
		start = e.tick(best, reverse)
	}
	return time.Time{}, false
}

// Get returns up to count occurrences of s from start, in reverse if
// reverse is set. Successive occurrences are at least the engine's
// resolution apart. The sequence ends early at end, if non-zero, or when
// no further occurrence exists.
func (e *Engine) Get(
	s Schedule, count int, start, end time.Time, reverse bool,
) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		t := start
		for range count {
			var ok bool
			if reverse {
				t, ok = e.Previous(s, t, end)
			} else {
				t, ok = e.Next(s, t, end)
			}
			if !ok || !yield(t) {
				return
			}
			t = e.tick(t, reverse)
		}
	}
}

func (e *Engine) tick(t time.Time, reverse bool) time.Time {
	if reverse {
		return t.Add(-e.resolution)
	}
	return t.Add(e.resolution)
}

// following returns the earliest instant an occurrence strictly after t
// may have.
func (e *Engine) following(t time.Time) time.Time {
	return t.Truncate(time.Second).Add(e.resolution)
}

// Exec runs f at every occurrence of s after start until StopExec is
// called. It replaces any session already running and reports whether a
// timer was armed; it is false when s has no occurrence after start.
//
// f runs on its own goroutine. The next occurrence is computed after f
// returns, so occurrences passed while f runs are skipped.
func (e *Engine) Exec(s Schedule, start time.Time, f func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	ss := &session{schedule: s, f: f}
	e.session = ss
	return e.armLocked(ss, start)
}

// StopExec stops the running session. A callback already running is not
// interrupted, but the session is not re-armed after it.
func (e *Engine) StopExec() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

// Close stops the engine's session.
func (e *Engine) Close() error {
	e.StopExec()
	return nil
}

func (e *Engine) stopLocked() {
	if e.session == nil {
		return
	}
	if e.session.timer != nil {
		e.session.timer.Stop()
	}
	e.session = nil
	e.log.Debug().Msg("stopped")
}

func (e *Engine) armLocked(ss *session, start time.Time) bool {
	next, ok := e.Next(ss.schedule, e.following(start), time.Time{})
	if !ok {
		e.session = nil
		e.log.Debug().Time("after", start).Msg("no occurrence to arm")
		return false
	}
	delay := next.Sub(timeNow())
	if delay > e.maxDelay {
		ss.timer = afterFunc(e.maxDelay, func() { e.chain(ss, start) })
		e.log.Debug().Time("next", next).Dur("delay", e.maxDelay).
			Msg("chained")
		return true
	}
	ss.timer = afterFunc(delay, func() { e.fire(ss, next) })
	e.log.Debug().Time("next", next).Dur("delay", delay).Msg("armed")
	return true
}

// chain re-arms a session whose occurrence was beyond the longest timer.
func (e *Engine) chain(ss *session, start time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != ss {
		return
	}
	e.armLocked(ss, start)
}

func (e *Engine) fire(ss *session, at time.Time) {
	e.mu.Lock()
	live := e.session == ss
	e.mu.Unlock()
	if !live {
		return
	}
	e.log.Debug().Time("at", at).Msg("fire")
	ss.f()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != ss {
		return
	}
	now := timeNow()
	if now.Before(at) {
		now = at
	}
	e.armLocked(ss, now)
}

// ceil rounds t up to a whole second.
func ceil(t time.Time) time.Time {
	if u := t.Truncate(time.Second); !u.Equal(t) {
		return u.Add(time.Second)
	}
	return t
}
