package recur

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config describes an Engine and the jobs to run on it.
//
//	location: "+02:00"
//	resolution: 1s
//	log_level: debug
//	jobs:
//	  - name: report
//	    cron: "0 30 9 ? * MON-FRI"
//	    seconds: true
//	  - name: sweep
//	    schedule:
//	      sets: [{h: [3], m: [0], s: [0]}]
type Config struct {
	// Location is UTC, Local, a fixed offset such as +05:30 or an IANA
	// zone name.
	Location   string        `yaml:"location"`
	Resolution time.Duration `yaml:"resolution"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	LogLevel   string        `yaml:"log_level"`
	Jobs       []Job         `yaml:"jobs"`
}

// A Job is a named schedule, given either as a cron expression or as
// constraint sets.
type Job struct {
	Name     string    `yaml:"name"`
	Cron     string    `yaml:"cron"`
	Seconds  bool      `yaml:"seconds"`
	Schedule *Schedule `yaml:"schedule"`
}

// LoadConfig reads a YAML configuration.
func LoadConfig(r io.Reader) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("could not decode config: %w", err)
	}
	for i, j := range c.Jobs {
		if j.Name == "" {
			return Config{}, fmt.Errorf("job %d: missing name", i)
		}
		if (j.Cron == "") == (j.Schedule == nil) {
			return Config{}, fmt.Errorf(
				"job %q: exactly one of cron and schedule is required", j.Name)
		}
	}
	return c, nil
}

// ReadConfig reads a YAML configuration file.
func ReadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return LoadConfig(f)
}

// Options returns the engine options described by c. Logs go to w.
func (c Config) Options(w io.Writer) ([]Option, error) {
	loc, err := ParseLocation(c.Location)
	if err != nil {
		return nil, err
	}
	level := zerolog.InfoLevel
	if c.LogLevel != "" {
		if level, err = zerolog.ParseLevel(c.LogLevel); err != nil {
			return nil, fmt.Errorf("bad log level: %w", err)
		}
	}
	opts := []Option{WithLocation(loc), WithLog(w, level)}
	if c.Resolution > 0 {
		opts = append(opts, WithResolution(c.Resolution))
	}
	if c.MaxDelay > 0 {
		opts = append(opts, WithMaxDelay(c.MaxDelay))
	}
	return opts, nil
}

// Compile returns the job's schedule.
func (j Job) Compile() (Schedule, error) {
	if j.Schedule != nil {
		return *j.Schedule, nil
	}
	return ParseCron(j.Cron, j.Seconds)
}

// ParseLocation returns UTC for "" or "UTC", time.Local for "Local", a
// fixed zone for an offset such as "-07:00", and otherwise the IANA zone
// of that name.
func ParseLocation(s string) (*time.Location, error) {
	switch strings.ToUpper(s) {
	case "", "UTC", "Z":
		return time.UTC, nil
	case "LOCAL":
		return time.Local, nil
	}
	if t, err := time.Parse("-07:00", s); err == nil {
		_, offset := t.Zone()
		return time.FixedZone(s, offset), nil
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("bad location %q: %w", s, err)
	}
	return loc, nil
}

// yamlSchedule is the YAML form of a Schedule. Constraint IDs are keys;
// times of day are written as "HH:MM:SS".
type yamlSchedule struct {
	Sets       []map[string][]any `yaml:"sets"`
	Exceptions []map[string][]any `yaml:"exceptions,omitempty"`
}

func (s Schedule) MarshalYAML() (any, error) {
	var y yamlSchedule
	for _, set := range s.Sets {
		y.Sets = append(y.Sets, set.yaml())
	}
	for _, set := range s.Exceptions {
		y.Exceptions = append(y.Exceptions, set.yaml())
	}
	return y, nil
}

func (s *Schedule) UnmarshalYAML(node *yaml.Node) error {
	var y yamlSchedule
	if err := node.Decode(&y); err != nil {
		return err
	}
	var out Schedule
	for _, m := range y.Sets {
		set, err := setFromYAML(m)
		if err != nil {
			return err
		}
		out.Sets = append(out.Sets, set)
	}
	for _, m := range y.Exceptions {
		set, err := setFromYAML(m)
		if err != nil {
			return err
		}
		out.Exceptions = append(out.Exceptions, set)
	}
	*s = out
	return nil
}

func (s Set) yaml() map[string][]any {
	m := make(map[string][]any, len(s.c))
	for f, vs := range s.c {
		m[f.String()] = []any{}
		for _, v := range vs {
			if f == TimeOfDay {
				m[f.String()] = append(m[f.String()], Clock(v))
			} else {
				m[f.String()] = append(m[f.String()], v)
			}
		}
	}
	return m
}

// setFromYAML builds a Set from its YAML form. An empty list is kept as a
// constraint that nothing satisfies.
func setFromYAML(m map[string][]any) (Set, error) {
	c := make(map[string][]int, len(m))
	var empty []Field
	for id, raw := range m {
		if len(raw) == 0 {
			f, err := ParseField(id)
			if err != nil {
				return Set{}, err
			}
			empty = append(empty, f)
			continue
		}
		for _, r := range raw {
			switch v := r.(type) {
			case int:
				c[id] = append(c[id], v)
			case string:
				secs, err := ParseClock(v)
				if err != nil {
					return Set{}, err
				}
				c[id] = append(c[id], secs)
			default:
				return Set{}, fmt.Errorf("%w: %s: bad value %v",
					ErrInvariant, id, r)
			}
		}
	}
	s, err := NewSet(c)
	if err != nil {
		return Set{}, err
	}
	for _, f := range empty {
		s = s.add(f)
	}
	return s, nil
}
