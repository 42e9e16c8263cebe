package recur

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// A Scheduler runs named functions on standard five-field cron expressions.
type Scheduler interface {
	Go(name, expr string, f func()) error
}

type routine struct {
	Name     string
	Expr     string
	Schedule Schedule
	Do       func()
	Error    chan error
}

var macros = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

// compile parses a standard cron expression: minute, hour, day of month,
// month and day of week, or one of the @ macros.
func compile(expr string) (Schedule, error) {
	if m, ok := macros[strings.ToLower(strings.TrimSpace(expr))]; ok {
		expr = m
	}
	if len(strings.Fields(expr)) != 5 || !gronx.IsValid(expr) {
		return Schedule{}, ErrParse
	}
	return ParseCron(expr, false)
}

// Memory is an in-memory scheduler.
// Its primary purpose is testing and documentation.
// For durable execution, use a persistent store.
type Memory struct {
	Log    io.Writer
	Engine *Engine

	once sync.Once
	cron *cron.Cron
}

// NewMemory returns a running in-memory scheduler. A nil engine computes
// occurrences in UTC.
func NewMemory(e *Engine) Scheduler {
	m := &Memory{Engine: e}
	m.Init()
	return m
}

func (m *Memory) Init() {
	m.once.Do(func() {
		if m.Engine == nil {
			m.Engine = New()
		}
		log := newLogger(m.Log)
		m.cron = cron.New(
			cron.WithLocation(m.Engine.Location()),
			cron.WithLogger(cronLogger{log}),
			cron.WithChain(cron.Recover(cronLogger{log})),
		)
		m.cron.Start()
	})
}

func (m *Memory) Go(name, expr string, f func()) error {
	s, err := compile(expr)
	if err != nil {
		return err
	}
	m.Init()
	id := m.cron.Schedule(m.Engine.CronSchedule(s), cron.FuncJob(f))
	log := newLogger(m.Log)
	log.Debug().Str("name", name).Int("entry", int(id)).Msg("scheduled")
	return nil
}

// Stop stops the scheduler and waits for running functions to return.
func (m *Memory) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// CronSchedule exposes s as a schedule of github.com/robfig/cron.
func (e *Engine) CronSchedule(s Schedule) cron.Schedule {
	return cronSchedule{e, s}
}

type cronSchedule struct {
	e *Engine
	s Schedule
}

// Next returns the first occurrence after t, or the zero time if there is
// none, which the cron runner treats as never.
func (c cronSchedule) Next(t time.Time) time.Time {
	next, ok := c.e.Next(c.s, c.e.following(t), time.Time{})
	if !ok {
		return time.Time{}
	}
	return next
}

// cronLogger adapts a zerolog.Logger to cron.Logger. The runner's
// routine messages are logged at debug level.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug().Fields(kv).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error().Err(err).Fields(kv).Msg(msg)
}
