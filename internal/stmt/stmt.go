// Package stmt holds the SQL run by the postgres scheduler.
package stmt

// CreateTable creates the job ledger. One row records the last run of a
// named job and the heartbeat of the replica running it.
const CreateTable = `CREATE TABLE IF NOT EXISTS recur (
	name     text        PRIMARY KEY,
	active   boolean     NOT NULL DEFAULT false,
	lastrun  timestamptz NOT NULL,
	lastbeat timestamptz NOT NULL DEFAULT now()
)`

// InsertJob registers a job ($1) with its initial last run ($2).
const InsertJob = `INSERT INTO recur (name, lastrun) VALUES ($1, $2)
ON CONFLICT (name) DO NOTHING`

// SelectJob locks a job ($1) and returns active, lastrun and lastbeat.
const SelectJob = `SELECT active, lastrun, lastbeat FROM recur
WHERE name = $1 FOR UPDATE`

// ActivateJob claims a job ($1) at $2.
const ActivateJob = `UPDATE recur SET active = true, lastbeat = $2
WHERE name = $1`

// HeartbeatJob records that the replica running a job ($1) is alive at $2.
const HeartbeatJob = `UPDATE recur SET lastbeat = $2 WHERE name = $1`

// UpdateJob sets active ($2), lastrun ($3) and lastbeat ($4) of a job ($1).
const UpdateJob = `UPDATE recur SET active = $2, lastrun = $3, lastbeat = $4
WHERE name = $1`
