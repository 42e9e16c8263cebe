package recur

import (
	"slices"
	"time"
)

// maxLoops bounds the corrections made while solving a single Set.
// Contradictory constraints such as February 31st exhaust it.
const maxLoops = 1000

type outcome uint8

const (
	satisfied outcome = iota
	corrected
	exhausted
)

// A solver finds the instant nearest to a start that satisfies a Set,
// searching forward or, if reverse, backward. An exact solver does not
// push the start forward by the Set's after constraints.
type solver struct {
	loc     *time.Location
	reverse bool
	exact   bool
}

type check func(solver, time.Time, []int) (time.Time, outcome)

var checks = [TimeOfDay + 1]check{
	Year:         solver.year,
	DayOfYear:    solver.dayOfYear,
	Month:        solver.month,
	WeekOfYear:   solver.weekOfYear,
	Day:          solver.day,
	WeekOfMonth:  solver.weekOfMonth,
	Weekday:      solver.weekday,
	WeekdayCount: solver.weekdayCount,
	Hour:         solver.hour,
	Minute:       solver.minute,
	Second:       solver.second,
	TimeOfDay:    solver.timeOfDay,
}

// solve returns the first instant at or after start (at or before, in
// reverse) that satisfies set. The search stops at end unless end is zero.
func (sv solver) solve(set Set, start, end time.Time) (time.Time, bool) {
	if set.impossible() {
		return time.Time{}, false
	}
	next := start.In(sv.loc)
	if !sv.reverse && !sv.exact {
		next = sv.after(set, next)
	}
	for range maxLoops {
		if !end.IsZero() && sv.beyond(next, end) {
			return time.Time{}, false
		}
		var o outcome
		switch next, o = sv.step(set, next); o {
		case satisfied:
			return next, true
		case exhausted:
			return time.Time{}, false
		}
	}
	return time.Time{}, false
}

// step checks each constrained field of set against t in solving order and
// corrects the first one that does not match. The corrected instant has
// every finer field reset to the start of its unit (the end, in reverse).
func (sv solver) step(set Set, t time.Time) (time.Time, outcome) {
	for f := Year; f <= TimeOfDay; f++ {
		vs, ok := set.c[f]
		if !ok {
			continue
		}
		if next, o := checks[f](sv, t, vs); o != satisfied {
			return next, o
		}
	}
	return t, satisfied
}

// after pushes t forward by the minimum interval of set's after constraints.
func (sv solver) after(set Set, t time.Time) time.Time {
	n := func(f Field) int {
		if vs := set.c[f]; len(vs) > 0 {
			return vs[0]
		}
		return 0
	}
	days := max(n(AfterDay), n(AfterDayOfYear), n(AfterWeekday),
		7*n(AfterWeekOfYear), 7*n(AfterWeekOfMonth))
	ay, am := n(AfterYear), n(AfterMonth)
	ah, amin, as := n(AfterHour), n(AfterMinute), n(AfterSecond)
	if ay == 0 && am == 0 && days == 0 && ah == 0 && amin == 0 && as == 0 {
		return t
	}
	y, m, d := date(t)
	h, mi, s := t.Clock()
	return time.Date(y+ay, time.Month(m+am), d+days,
		h+ah, mi+amin, s+as, 0, sv.loc)
}

func (sv solver) beyond(t, end time.Time) bool {
	if sv.reverse {
		return t.Before(end)
	}
	return t.After(end)
}

func (sv solver) rng(val int, values []int, offset int) int {
	if sv.reverse {
		return prevInRange(val, values, offset)
	}
	return nextInRange(val, values, offset)
}

// at builds an instant from the leading parts year, month, day, hour,
// minute and second. Missing parts are the start of their unit, or the end
// of it in reverse. Out of range parts roll over as in time.Date.
func (sv solver) at(parts ...int) time.Time {
	p := [6]int{0, 1, 1, 0, 0, 0}
	if sv.reverse {
		p = [6]int{0, 12, 0, 23, 59, 59}
	}
	copy(p[:], parts)
	if sv.reverse && len(parts) < 3 {
		p[2] = daysIn(p[0], p[1])
	}
	return time.Date(p[0], time.Month(p[1]), p[2], p[3], p[4], p[5], 0, sv.loc)
}

// shift steps the last of parts one unit in the search direction and
// builds the instant at the boundary of that unit.
func (sv solver) shift(parts ...int) time.Time {
	if sv.reverse {
		parts[len(parts)-1]--
	} else {
		parts[len(parts)-1]++
	}
	return sv.at(parts...)
}

// unit corrects a field whose values lie in [lo, hi] within its containing
// unit. move builds the instant for a value inside the unit; wrap is the
// boundary of the neighbouring unit, used when no value is left in this one.
func (sv solver) unit(
	cur int, values []int, lo, hi int,
	move func(int) time.Time, wrap time.Time,
) (time.Time, outcome) {
	vs := clamp(values, lo, hi)
	if len(vs) == 0 {
		return wrap, corrected
	}
	inc := sv.rng(cur, vs, hi-lo+1)
	switch {
	case inc == cur:
		return time.Time{}, satisfied
	case inc < lo || inc > hi:
		return wrap, corrected
	}
	return move(inc), corrected
}

// clamp maps values below lo, which stand for the last value of the unit,
// to hi and drops values beyond hi.
func clamp(values []int, lo, hi int) []int {
	if !slices.ContainsFunc(values, func(v int) bool {
		return v < lo || v > hi
	}) {
		return values
	}
	vs := make([]int, 0, len(values))
	for _, v := range values {
		switch {
		case v < lo:
			vs = append(vs, hi)
		case v <= hi:
			vs = append(vs, v)
		}
	}
	return vs
}

func (sv solver) year(t time.Time, vs []int) (time.Time, outcome) {
	y := t.Year()
	inc := sv.rng(y, vs, 0)
	switch {
	case inc == y:
		return t, satisfied
	case sv.reverse && inc < y, !sv.reverse && inc > y:
		return sv.at(inc), corrected
	}
	return time.Time{}, exhausted
}

func (sv solver) dayOfYear(t time.Time, vs []int) (time.Time, outcome) {
	y := t.Year()
	return sv.unit(t.YearDay(), vs, 1, daysInYear(y),
		func(v int) time.Time { return sv.at(y, 1, v) },
		sv.shift(y))
}

func (sv solver) month(t time.Time, vs []int) (time.Time, outcome) {
	y, m, _ := date(t)
	return sv.unit(m, vs, 1, 12,
		func(v int) time.Time { return sv.at(y, v) },
		sv.shift(y))
}

func (sv solver) weekOfYear(t time.Time, vs []int) (time.Time, outcome) {
	y, w := t.ISOWeek()
	mon := isoWeekOne(y)
	move := func(v int) time.Time {
		d := mon + (v-1)*7
		if sv.reverse {
			d += 6
		}
		return sv.at(y, 1, d)
	}
	wrap := sv.at(y+1, 1, isoWeekOne(y+1))
	if sv.reverse {
		wrap = sv.at(y, 1, mon-1)
	}
	return sv.unit(w, vs, 1, isoWeeks(y), move, wrap)
}

func (sv solver) day(t time.Time, vs []int) (time.Time, outcome) {
	y, m, d := date(t)
	return sv.unit(d, vs, 1, daysIn(y, m),
		func(v int) time.Time { return sv.at(y, m, v) },
		sv.shift(y, m))
}

// weekOfMonth counts weeks starting on Sunday; week 1 holds the 1st.
func (sv solver) weekOfMonth(t time.Time, vs []int) (time.Time, outcome) {
	y, m, d := date(t)
	first := weekdayOf(y, m, 1)
	dim := daysIn(y, m)
	move := func(v int) time.Time {
		if sv.reverse {
			return sv.at(y, m, min(dim, v*7-first))
		}
		return sv.at(y, m, max(1, (v-1)*7-first+1))
	}
	return sv.unit((d+first-1)/7+1, vs, 1, (dim+first-1)/7+1,
		move, sv.shift(y, m))
}

func (sv solver) weekday(t time.Time, vs []int) (time.Time, outcome) {
	y, m, d := date(t)
	cur := int(t.Weekday()) + 1
	if vs = clamp(vs, 1, 7); len(vs) == 0 {
		return time.Time{}, exhausted
	}
	inc := sv.rng(cur, vs, 7)
	if inc == cur {
		return t, satisfied
	}
	return sv.at(y, m, d+inc-cur), corrected
}

// weekdayCount matches the nth seven day block of the month, so combined
// with a weekday it selects the nth such weekday. Zero selects the last
// seven days of the month.
func (sv solver) weekdayCount(t time.Time, vs []int) (time.Time, outcome) {
	y, m, d := date(t)
	dim := daysIn(y, m)
	dc := (d-1)/7 + 1
	for _, v := range vs {
		if v == dc || v == 0 && d > dim-7 {
			return t, satisfied
		}
	}
	// Candidate days are block starts forward and block ends in reverse.
	var days []int
	for _, v := range vs {
		first, last := 1+7*(v-1), min(7*v, dim)
		if v == 0 {
			first, last = dim-6, dim
		}
		if first > dim {
			continue
		}
		if sv.reverse {
			days = append(days, last)
		} else {
			days = append(days, first)
		}
	}
	if len(days) == 0 {
		return sv.shift(y, m), corrected
	}
	inc := sv.rng(d, days, dim)
	if inc < 1 || inc > dim {
		return sv.shift(y, m), corrected
	}
	return sv.at(y, m, inc), corrected
}

func (sv solver) hour(t time.Time, vs []int) (time.Time, outcome) {
	y, m, d := date(t)
	return sv.unit(t.Hour(), vs, 0, 23,
		func(v int) time.Time { return sv.at(y, m, d, v) },
		sv.shift(y, m, d))
}

func (sv solver) minute(t time.Time, vs []int) (time.Time, outcome) {
	y, m, d := date(t)
	h := t.Hour()
	return sv.unit(t.Minute(), vs, 0, 59,
		func(v int) time.Time { return sv.at(y, m, d, h, v) },
		sv.shift(y, m, d, h))
}

func (sv solver) second(t time.Time, vs []int) (time.Time, outcome) {
	y, m, d := date(t)
	h, mi, s := t.Clock()
	return sv.unit(s, vs, 0, 59,
		func(v int) time.Time { return sv.at(y, m, d, h, mi, v) },
		sv.shift(y, m, d, h, mi))
}

func (sv solver) timeOfDay(t time.Time, vs []int) (time.Time, outcome) {
	y, m, d := date(t)
	h, mi, s := t.Clock()
	return sv.unit(h*3600+mi*60+s, vs, 0, 86399,
		func(v int) time.Time { return sv.at(y, m, d, 0, 0, v) },
		sv.shift(y, m, d))
}

func date(t time.Time) (year, month, day int) {
	y, m, d := t.Date()
	return y, int(m), d
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func daysInYear(year int) int {
	return time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

// weekdayOf returns the weekday of a date, 0 for Sunday.
func weekdayOf(year, month, day int) int {
	return int(time.Date(year, time.Month(month), day,
		0, 0, 0, 0, time.UTC).Weekday())
}

// isoWeekOne returns the day of January, possibly zero or negative, on
// which ISO week 1 of year starts.
func isoWeekOne(year int) int {
	return 4 - (weekdayOf(year, 1, 4)+6)%7
}

func isoWeeks(year int) int {
	_, w := time.Date(year, 12, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}
