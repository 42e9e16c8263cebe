// Package recur computes occurrences of recurring calendar schedules and
// runs callbacks and durable jobs on them.
//
// A Schedule is a set of alternative constraint Sets plus exception Sets.
// Schedules are built directly with NewSet or parsed from cron expressions
// with ParseCron. An Engine finds the next or previous occurrence of a
// schedule, enumerates occurrences, and drives a repeating timer.
package recur

import (
	"cmp"
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	sleep     = time.Sleep
	timeNow   = time.Now
	afterFunc = func(d time.Duration, f func()) stopper {
		return time.AfterFunc(d, f)
	}
)

var (
	// ErrParse reports a cron expression that could not be parsed.
	ErrParse = errors.New("bad cron expression")

	// ErrInvariant reports a constraint that can never be part of a
	// well-formed Set: an unknown constraint, an empty value list or a
	// value outside of the constraint's domain.
	ErrInvariant = errors.New("invalid constraint")
)

type stopper interface {
	Stop() bool
}

func newLogger(w io.Writer) zerolog.Logger {
	w = cmp.Or[io.Writer](w, os.Stderr)
	return zerolog.New(w).With().
		Timestamp().
		Str("pkg", "lesiw.io/recur").
		Logger().
		Level(zerolog.InfoLevel)
}
