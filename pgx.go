package recur

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"lesiw.io/recur/internal/stmt"
)

const (
	pollInterval   = 15 * time.Second
	staleHeartbeat = time.Minute
)

var errNoTick = errors.New("schedule has no previous occurrence")

// lastTick returns the last occurrence of s at or before t.
var lastTick = func(e *Engine, s Schedule, t time.Time) (time.Time, error) {
	tick, ok := e.Previous(s, t, time.Time{})
	if !ok {
		return time.Time{}, errNoTick
	}
	return tick, nil
}

// A PgxConn is a pgx.Conn or pgxpool.Pool.
type PgxConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (
		pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pgx is a postgres-backed scheduler.
// Each occurrence of a job runs on one replica sharing the database.
type Pgx struct {
	Log    io.Writer
	Engine *Engine

	ctx      context.Context
	conn     PgxConn
	routinec chan routine
	routines map[string]routine
	notify   chan struct{}
}

// NewPgx instantiates a new Pgx scheduler.
func NewPgx(conn PgxConn) (Scheduler, error) {
	p := new(Pgx)
	return p, p.Init(conn)
}

func (p *Pgx) Init(conn PgxConn) (err error) {
	p.ctx = context.Background()
	p.conn = conn
	p.routinec = make(chan routine)
	p.routines = make(map[string]routine)
	p.notify = make(chan struct{}, 1)
	if p.Engine == nil {
		p.Engine = New()
	}
	for n := range 3 {
		_, err = conn.Exec(p.ctx, stmt.CreateTable)
		if err != nil {
			sleep(time.Duration(math.Pow(2, float64(n))) * time.Second)
			continue
		}
		break
	}
	if err != nil {
		return fmt.Errorf("could not create recur table: %w", err)
	}
	go func() {
		ticker := time.NewTicker(pollInterval)
		for {
			select {
			case r := <-p.routinec:
				p.routines[r.Name] = r
				r.Error <- p.insert(r)
			case <-ticker.C:
				now := timeNow()
				for _, r := range p.routines {
					if err := p.tick(now, r); err != nil {
						p.log().Error().Err(err).Str("name", r.Name).
							Msg("tick")
					}
				}
			}
		}
	}()
	return nil
}

func (p *Pgx) Go(name, expr string, f func()) error {
	s, err := compile(expr)
	if err != nil {
		return err
	}
	r := routine{
		Name:     name,
		Expr:     expr,
		Schedule: s,
		Do:       f,
		Error:    make(chan error),
	}
	p.routinec <- r
	return <-r.Error
}

func (p *Pgx) log() *zerolog.Logger {
	l := newLogger(p.Log)
	return &l
}

func (p *Pgx) insert(r routine) error {
	lastrun, err := lastTick(p.Engine, r.Schedule, timeNow().Add(-time.Second))
	if err != nil {
		return fmt.Errorf("could not determine previous tick: %w", err)
	}
	_, err = p.conn.Exec(p.ctx, stmt.InsertJob, r.Name, lastrun)
	if err != nil {
		return fmt.Errorf("InsertJob: %w", err)
	}
	return nil
}

func (p *Pgx) tick(now time.Time, r routine) error {
	tick, err := lastTick(p.Engine, r.Schedule, now)
	if err != nil {
		return err
	}
	var active bool
	var lastRun, lastBeat time.Time
	tx, err := p.conn.Begin(p.ctx)
	if err != nil {
		return err
	}
	defer tx.Commit(p.ctx)
	err = tx.QueryRow(
		p.ctx, stmt.SelectJob, r.Name,
	).Scan(&active, &lastRun, &lastBeat)
	if err != nil {
		return fmt.Errorf("SelectJob: %w", err)
	}
	if !tick.After(lastRun) {
		return nil
	}
	if active && lastBeat.After(now.Add(-staleHeartbeat)) {
		return nil
	}
	_, err = tx.Exec(p.ctx, stmt.ActivateJob, r.Name, now)
	if err != nil {
		return fmt.Errorf("ActivateJob: %w", err)
	}
	done := make(chan struct{})
	go p.heartbeat(now, r, done)
	go func() { r.Do(); done <- struct{}{} }()
	return nil
}

// heartbeat keeps the claim on r alive until done, then releases it.
func (p *Pgx) heartbeat(now time.Time, r routine, done <-chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			_, err := p.conn.Exec(
				p.ctx, stmt.UpdateJob, r.Name, false, now, timeNow(),
			)
			if err != nil {
				p.log().Error().Err(err).Str("name", r.Name).Msg("UpdateJob")
			}
			select {
			case p.notify <- struct{}{}:
			default:
			}
			return
		case <-ticker.C:
			_, err := p.conn.Exec(
				p.ctx, stmt.HeartbeatJob, r.Name, timeNow(),
			)
			if err != nil {
				p.log().Error().Err(err).Str("name", r.Name).
					Msg("HeartbeatJob")
			}
		}
	}
}
