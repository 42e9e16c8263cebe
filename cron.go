package recur

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var monthNames = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

var dayNames = map[string]int{
	"SUN": 1, "MON": 2, "TUE": 3, "WED": 4, "THU": 5, "FRI": 6, "SAT": 7,
}

// A cronField maps a position of a cron expression to a constraint.
// Numeric values are shifted by offset; names are not.
type cronField struct {
	field  Field
	name   string
	pos    int
	lo, hi int
	offset int
}

// Day of week is parsed last so that the Sets cloned for its # and L items
// carry every other constraint.
var cronFields = []cronField{
	{Second, "second", 0, 0, 59, 0},
	{Minute, "minute", 1, 0, 59, 0},
	{Hour, "hour", 2, 0, 23, 0},
	{Day, "day-of-month", 3, 1, 31, 0},
	{Month, "month", 4, 1, 12, 0},
	{Year, "year", 6, 1970, 2099, 0},
	{Weekday, "day-of-week", 5, 1, 7, 1},
}

// ParseCron parses a cron expression into a Schedule.
//
// The fields are second, minute, hour, day of month, month, day of week and
// an optional year. Without hasSeconds the second field is omitted and
// defaults to 0. Days of the week are numbered 0-6 from Sunday, and 7 is
// Sunday too. Besides values, names, lists, ranges and steps, the
// expression may use:
//
//	L     the last value of a field, such as the last day of the month
//	15W   the weekday nearest to the 15th, within the same month
//	5L    the last Thursday of the month
//	5#2   the second Thursday of the month
//
// An expression whose ranges are all empty, such as 5-3, parses into a
// Schedule that never matches.
func ParseCron(expr string, hasSeconds bool) (Schedule, error) {
	e := strings.ToUpper(expr)
	if !hasSeconds {
		e = "0 " + e
	}
	parts := strings.Fields(e)
	if n := len(parts); n != 6 && n != 7 {
		if !hasSeconds {
			return Schedule{}, fmt.Errorf(
				"%w: expected 5 or 6 fields, got %d", ErrParse, n-1)
		}
		return Schedule{}, fmt.Errorf(
			"%w: expected 6 or 7 fields, got %d", ErrParse, n)
	}
	p := &cronParser{s: Schedule{Sets: []Set{{}}}}
	for _, f := range cronFields {
		if f.pos >= len(parts) {
			continue
		}
		part := parts[f.pos]
		if part == "*" || part == "?" {
			continue
		}
		items := strings.Split(part, ",")
		slices.SortStableFunc(items, func(a, b string) int {
			switch ha, hb := isHash(a), isHash(b); {
			case ha && !hb:
				return 1
			case !ha && hb:
				return -1
			}
			return 0
		})
		for _, item := range items {
			if err := p.item(f, item); err != nil {
				return Schedule{}, fmt.Errorf("%w: %s field: %q: %w",
					ErrParse, f.name, item, err)
			}
		}
	}
	return p.s, nil
}

// MustParseCron is like ParseCron but panics on error.
func MustParseCron(expr string, hasSeconds bool) Schedule {
	s, err := ParseCron(expr, hasSeconds)
	if err != nil {
		panic(err)
	}
	return s
}

// isHash reports whether item is of the form x#y or xL.
func isHash(item string) bool {
	return strings.Contains(item, "#") || strings.Index(item, "L") > 0
}

type cronParser struct {
	s Schedule
}

func (p *cronParser) cur() Set { return p.s.Sets[len(p.s.Sets)-1] }

func (p *cronParser) add(f Field, lo, hi, step int) {
	var vs []int
	for v := lo; v <= hi; v += step {
		if f == Weekday && v > fields[Weekday].hi {
			vs = append(vs, v-7)
			continue
		}
		vs = append(vs, v)
	}
	p.s.Sets[len(p.s.Sets)-1] = p.cur().add(f, vs...)
}

func (p *cronParser) item(f cronField, item string) error {
	switch {
	case item == "?":
		return nil
	case item == "*":
		p.add(f.field, f.lo, f.hi, 1)
		return nil
	case item == "L":
		if !fields[f.field].last {
			return fmt.Errorf("no last value")
		}
		p.add(f.field, f.lo-1, f.lo-1, 1)
		return nil
	}
	if v, err := f.value(item); err == nil {
		p.add(f.field, v, v, 1)
		return nil
	}
	if x, ok := strings.CutSuffix(item, "W"); ok && f.field == Day {
		v, err := f.value(x)
		if err != nil {
			return err
		}
		p.weekday(v)
		return nil
	}
	if x, ok := strings.CutSuffix(item, "L"); ok && f.field == Weekday {
		v, err := f.value(x)
		if err != nil {
			return err
		}
		p.hash(v, 0)
		return nil
	}
	if x, y, ok := strings.Cut(item, "#"); ok && f.field == Weekday {
		v, err := f.value(x)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(y)
		if err != nil || n < 1 || n > 5 {
			return fmt.Errorf("bad occurrence %q", y)
		}
		p.hash(v, n)
		return nil
	}
	return p.rng(f, item)
}

// weekday adds the weekday nearest to day v. The window around v allows
// the day before and after; the exceptions keep them only when v falls on
// a weekend. Cron does not cross months, so the 1st looks ahead only and
// the 31st looks back only.
func (p *cronParser) weekday(v int) {
	const mon, tue, wed, thu, fri = 2, 3, 4, 5, 6
	before, after := Set{}, Set{}
	switch v {
	case 1:
		p.add(Day, 1, 3, 1)
		before = before.add(Day, 2).add(Weekday, tue, wed, thu, fri)
		after = after.add(Day, 3).add(Weekday, tue, wed, thu, fri)
	case 31:
		// A Sunday 31st has no match; the Friday before is two days away.
		p.add(Day, 30, 31, 1)
		before = before.add(Day, 30).add(Weekday, mon, tue, wed, thu)
	default:
		p.add(Day, v-1, v+1, 1)
		before = before.add(Day, v-1).add(Weekday, mon, tue, wed, thu)
		after = after.add(Day, v+1).add(Weekday, tue, wed, thu, fri)
	}
	p.add(Weekday, mon, fri, 1)
	p.s.Exceptions = append(p.s.Exceptions, before)
	if len(after.c) > 0 {
		p.s.Exceptions = append(p.s.Exceptions, after)
	}
}

// hash adds the nth (0 for last) weekday v of the month. Occurrence
// constraints apply to every weekday of a Set, so a weekday that needs a
// different occurrence gets a Set of its own.
func (p *cronParser) hash(v, n int) {
	cur := p.cur()
	if cur.Has(Weekday) && !cur.Has(WeekdayCount) ||
		cur.Has(WeekdayCount) && !slices.Contains(cur.c[WeekdayCount], n) {
		p.s.Sets = append(p.s.Sets, cur.without(Weekday, WeekdayCount))
	}
	p.add(Weekday, v, v, 1)
	p.add(WeekdayCount, n, n, 1)
}

// rng adds x-y, x-y/z, x/z, */z and 0/z items.
func (p *cronParser) rng(f cronField, item string) error {
	r, inc, stepped := strings.Cut(item, "/")
	step := 1
	if stepped {
		n, err := strconv.Atoi(inc)
		if err != nil || n < 1 {
			return fmt.Errorf("bad step %q", inc)
		}
		step = n
	}
	lo, hi := f.lo, f.hi
	switch x, y, isRange := strings.Cut(r, "-"); {
	case r == "*", r == "0" && stepped && f.lo > 0:
	case isRange:
		var err error
		if lo, err = f.value(x); err != nil {
			return err
		}
		if hi, err = f.value(y); err != nil {
			return err
		}
	case stepped:
		var err error
		if lo, err = f.value(r); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unrecognized item")
	}
	p.add(f.field, lo, hi, step)
	return nil
}

// value parses a number or name within the field's range.
func (f cronField) value(s string) (int, error) {
	if v, ok := monthNames[s]; ok && f.field == Month {
		return v, nil
	}
	if v, ok := dayNames[s]; ok && f.field == Weekday {
		return v, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	v := n + f.offset
	if f.field == Weekday && n == 7 {
		return v, nil // Sunday; add wraps it to 1
	}
	if v < f.lo || v > f.hi {
		return 0, fmt.Errorf("value %d out of range [%d-%d]",
			n, f.lo-f.offset, f.hi-f.offset)
	}
	return v, nil
}
