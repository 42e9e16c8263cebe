package recur

import (
	"testing"
	"time"
)

type fakeTimer struct {
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type armed struct {
	d     time.Duration
	f     func()
	timer *fakeTimer
}

// fakeTimers replaces afterFunc with one that records each timer instead
// of starting it.
func fakeTimers(t *testing.T) *[]armed {
	var timers []armed
	swap(t, &afterFunc, func(d time.Duration, f func()) stopper {
		a := armed{d, f, new(fakeTimer)}
		timers = append(timers, a)
		return a.timer
	})
	return &timers
}

func TestExec(t *testing.T) {
	timers := fakeTimers(t)
	now := utc(2024, 1, 1, 11, 59, 0)
	swap(t, &timeNow, func() time.Time { return now })
	e := New()
	s := mustCron(t, "0 0 12 * * ?")
	var calls int

	ok := e.Exec(s, now, func() { calls++ })

	if !ok {
		t.Fatalf("Exec(%v, %v) = false, want true", s, now)
	}
	if got, want := len(*timers), 1; got != want {
		t.Fatalf("armed %d timers, want %d", got, want)
	}
	if got, want := (*timers)[0].d, time.Minute; got != want {
		t.Errorf("delay = %v, want %v", got, want)
	}
	(*timers)[0].f()
	if got, want := calls, 1; got != want {
		t.Errorf("calls = %d, want %d", got, want)
	}
	if got, want := len(*timers), 2; got != want {
		t.Fatalf("armed %d timers, want %d", got, want)
	}
	if got, want := (*timers)[1].d, 24*time.Hour+time.Minute; got != want {
		t.Errorf("delay = %v, want %v", got, want)
	}
}

func TestExecStop(t *testing.T) {
	timers := fakeTimers(t)
	now := utc(2024, 1, 1, 0, 0, 0)
	swap(t, &timeNow, func() time.Time { return now })
	e := New()
	s := mustCron(t, "0 0 12 * * ?")
	var calls int

	e.Exec(s, now, func() { calls++ })
	e.StopExec()

	if got, want := len(*timers), 1; got != want {
		t.Fatalf("armed %d timers, want %d", got, want)
	}
	if !(*timers)[0].timer.stopped {
		t.Errorf("timer not stopped")
	}
	(*timers)[0].f()
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
	if got, want := len(*timers), 1; got != want {
		t.Errorf("armed %d timers after stop, want %d", got, want)
	}
	e.StopExec()
}

func TestExecReplacesSession(t *testing.T) {
	timers := fakeTimers(t)
	now := utc(2024, 1, 1, 0, 0, 0)
	swap(t, &timeNow, func() time.Time { return now })
	e := New()
	s := mustCron(t, "0 0 12 * * ?")
	var first, second int

	e.Exec(s, now, func() { first++ })
	e.Exec(s, now, func() { second++ })

	if !(*timers)[0].timer.stopped {
		t.Errorf("first timer not stopped")
	}
	(*timers)[0].f()
	(*timers)[1].f()
	if first != 0 || second != 1 {
		t.Errorf("calls = %d, %d, want 0, 1", first, second)
	}
}

func TestExecNoOccurrence(t *testing.T) {
	timers := fakeTimers(t)
	e := New()
	s := mustSchedule(t, map[string][]int{"Y": {2020}})

	if e.Exec(s, utc(2024, 1, 1, 0, 0, 0), func() {}) {
		t.Errorf("Exec(%v) = true, want false", s)
	}
	if len(*timers) > 0 {
		t.Errorf("armed %d timers, want 0", len(*timers))
	}
}

func TestExecChain(t *testing.T) {
	timers := fakeTimers(t)
	now := utc(2024, 1, 1, 0, 0, 0)
	swap(t, &timeNow, func() time.Time { return now })
	e := New(WithMaxDelay(time.Hour))
	s := mustCron(t, "0 0 12 * * ?")
	var calls int

	e.Exec(s, now, func() { calls++ })

	if got, want := (*timers)[0].d, time.Hour; got != want {
		t.Errorf("delay = %v, want %v", got, want)
	}
	now = utc(2024, 1, 1, 11, 30, 0)
	(*timers)[0].f()
	if calls != 0 {
		t.Errorf("calls = %d after chained timer, want 0", calls)
	}
	if got, want := len(*timers), 2; got != want {
		t.Fatalf("armed %d timers, want %d", got, want)
	}
	if got, want := (*timers)[1].d, 30*time.Minute; got != want {
		t.Errorf("delay = %v, want %v", got, want)
	}
	(*timers)[1].f()
	if got, want := calls, 1; got != want {
		t.Errorf("calls = %d, want %d", got, want)
	}
}

func TestExecExcludesStart(t *testing.T) {
	timers := fakeTimers(t)
	now := utc(2024, 1, 1, 12, 0, 0)
	swap(t, &timeNow, func() time.Time { return now })
	e := New()

	e.Exec(mustCron(t, "0 0 12 * * ?"), now, func() {})

	if got, want := (*timers)[0].d, 24*time.Hour; got != want {
		t.Errorf("delay = %v, want %v", got, want)
	}
}

func TestExecTimer(t *testing.T) {
	e := New()
	s := mustCron(t, "* * * * * ?")
	fired := make(chan struct{}, 1)

	e.Exec(s, time.Now(), func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	defer e.Close()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("callback did not run")
	}
}
