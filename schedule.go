package recur

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// A Field identifies one kind of calendar constraint.
//
// The order of the constants is the order in which the solver checks them:
// coarse fields first, so that correcting one resets every finer field.
type Field uint8

const (
	Year         Field = iota // Y: 1970-2099
	DayOfYear                 // dy: 1-366, 0 is the last day
	Month                     // M: 1-12, 0 is December
	WeekOfYear                // wy: ISO week 1-53, 0 is the last week
	Day                       // D: 1-31, 0 is the last day of the month
	WeekOfMonth               // wm: 1-6, 0 is the last week of the month
	Weekday                   // d: 1-7 (Sunday-Saturday), 0 is Saturday
	WeekdayCount              // dc: 1-5, 0 is the last occurrence
	Hour                      // h: 0-23, -1 is 23
	Minute                    // m: 0-59, -1 is 59
	Second                    // s: 0-59, -1 is 59
	TimeOfDay                 // t: seconds since midnight

	AfterYear        // aY
	AfterMonth       // aM
	AfterDay         // aD
	AfterDayOfYear   // ady
	AfterWeekday     // ad
	AfterWeekOfYear  // awy
	AfterWeekOfMonth // awm
	AfterHour        // ah
	AfterMinute      // am
	AfterSecond      // as

	numFields
)

type fieldInfo struct {
	id     string
	lo, hi int
	last   bool // lo-1 means the last value of the containing unit
}

var fields = [numFields]fieldInfo{
	Year:         {"Y", 1970, 2099, false},
	DayOfYear:    {"dy", 1, 366, true},
	Month:        {"M", 1, 12, true},
	WeekOfYear:   {"wy", 1, 53, true},
	Day:          {"D", 1, 31, true},
	WeekOfMonth:  {"wm", 1, 6, true},
	Weekday:      {"d", 1, 7, true},
	WeekdayCount: {"dc", 1, 5, true},
	Hour:         {"h", 0, 23, true},
	Minute:       {"m", 0, 59, true},
	Second:       {"s", 0, 59, true},
	TimeOfDay:    {"t", 0, 86399, false},

	AfterYear:        {"aY", 0, math.MaxInt32, false},
	AfterMonth:       {"aM", 0, math.MaxInt32, false},
	AfterDay:         {"aD", 0, math.MaxInt32, false},
	AfterDayOfYear:   {"ady", 0, math.MaxInt32, false},
	AfterWeekday:     {"ad", 0, math.MaxInt32, false},
	AfterWeekOfYear:  {"awy", 0, math.MaxInt32, false},
	AfterWeekOfMonth: {"awm", 0, math.MaxInt32, false},
	AfterHour:        {"ah", 0, math.MaxInt32, false},
	AfterMinute:      {"am", 0, math.MaxInt32, false},
	AfterSecond:      {"as", 0, math.MaxInt32, false},
}

// ParseField returns the Field with the given constraint ID, such as "Y",
// "dc" or "awy".
func ParseField(id string) (Field, error) {
	for f, info := range fields {
		if info.id == id {
			return Field(f), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown constraint %q", ErrInvariant, id)
}

func (f Field) String() string {
	if f >= numFields {
		return "Field(" + strconv.Itoa(int(f)) + ")"
	}
	return fields[f].id
}

func (f Field) valid(v int) bool {
	info := fields[f]
	lo := info.lo
	if info.last {
		lo--
	}
	return v >= lo && v <= info.hi
}

// A Set is a group of constraints that must all hold for an instant to
// match. A Set is immutable; With returns a modified copy.
//
// A field with no constraint always matches.
type Set struct {
	c map[Field][]int
}

// NewSet builds a Set from constraint IDs and their allowed values.
// TimeOfDay values are seconds since midnight; see ParseClock.
func NewSet(constraints map[string][]int) (Set, error) {
	var s Set
	for _, id := range slices.Sorted(maps.Keys(constraints)) {
		f, err := ParseField(id)
		if err != nil {
			return Set{}, err
		}
		if s, err = s.With(f, constraints[id]...); err != nil {
			return Set{}, err
		}
	}
	return s, nil
}

// MustSet is like NewSet but panics on error.
func MustSet(constraints map[string][]int) Set {
	s, err := NewSet(constraints)
	if err != nil {
		panic(err)
	}
	return s
}

// With returns a copy of s whose f constraint also allows values.
func (s Set) With(f Field, values ...int) (Set, error) {
	if f >= numFields {
		return Set{}, fmt.Errorf("%w: %v", ErrInvariant, f)
	}
	if len(values) == 0 {
		return Set{}, fmt.Errorf("%w: %v: no values", ErrInvariant, f)
	}
	for _, v := range values {
		if !f.valid(v) {
			return Set{}, fmt.Errorf("%w: %v: value %d out of range",
				ErrInvariant, f, v)
		}
	}
	return s.add(f, values...), nil
}

// add is With without validation. Adding no values still marks f as
// constrained, which makes the Set impossible to satisfy.
func (s Set) add(f Field, values ...int) Set {
	c := make(map[Field][]int, len(s.c)+1)
	maps.Copy(c, s.c)
	vs := slices.Clone(c[f])
	for _, v := range values {
		if i, found := slices.BinarySearch(vs, v); !found {
			vs = slices.Insert(vs, i, v)
		}
	}
	if vs == nil {
		vs = []int{}
	}
	c[f] = vs
	return Set{c}
}

// without returns a copy of s with the given fields unconstrained.
func (s Set) without(fs ...Field) Set {
	c := maps.Clone(s.c)
	for _, f := range fs {
		delete(c, f)
	}
	return Set{c}
}

// Get returns the values allowed for f, or nil if f is unconstrained.
func (s Set) Get(f Field) []int {
	return slices.Clone(s.c[f])
}

// Has reports whether f is constrained.
func (s Set) Has(f Field) bool {
	_, ok := s.c[f]
	return ok
}

// Fields returns the constrained fields in solving order.
func (s Set) Fields() []Field {
	return slices.Sorted(maps.Keys(s.c))
}

func (s Set) impossible() bool {
	for _, vs := range s.c {
		if len(vs) == 0 {
			return true
		}
	}
	return false
}

func (s Set) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range s.Fields() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.String())
		b.WriteByte(':')
		vs := s.c[f]
		for j, v := range vs {
			if j > 0 {
				b.WriteByte(',')
			}
			if f == TimeOfDay {
				b.WriteString(Clock(v))
			} else {
				b.WriteString(strconv.Itoa(v))
			}
		}
	}
	b.WriteByte('}')
	return b.String()
}

// A Schedule matches an instant if any of its Sets matches it and none of
// its Exceptions does. A Schedule with no Sets never matches.
//
// Schedules are read-only once built.
type Schedule struct {
	Sets       []Set
	Exceptions []Set
}

func (s Schedule) String() string {
	var b strings.Builder
	for i, set := range s.Sets {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(set.String())
	}
	for _, set := range s.Exceptions {
		b.WriteString(" - ")
		b.WriteString(set.String())
	}
	return b.String()
}

// ParseClock converts an "HH:MM:SS" time of day to seconds since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: time of day %q", ErrInvariant, s)
	}
	var hms [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > []int{23, 59, 59}[i] {
			return 0, fmt.Errorf("%w: time of day %q", ErrInvariant, s)
		}
		hms[i] = n
	}
	return hms[0]*3600 + hms[1]*60 + hms[2], nil
}

// Clock formats seconds since midnight as "HH:MM:SS".
func Clock(secs int) string {
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}
