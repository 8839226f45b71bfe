// Package pgstore persists jobs and checkpoints in PostgreSQL, in the
// teacher's raw-SQL style (see packages/com.r3e.services.secrets/
// store_postgres.go) but through sqlx for the read-side convenience
// methods; schema is applied via golang-migrate.
package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/jobmanager"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// Store persists Job and Checkpoint rows in two tables of one database.
type Store struct {
	db *sqlx.DB
}

// New wraps an already-connected sqlx.DB. Open with sqlx.Connect("postgres", dsn).
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

var _ jobmanager.Storage = (*Store)(nil)

type jobRow struct {
	ConnectorName  string    `db:"connector_name"`
	State          string    `db:"state"`
	StartedAt      time.Time `db:"started_at"`
	LastCheckpoint time.Time `db:"last_checkpoint"`
	LastError      string    `db:"last_error"`
	ResumeToken    string    `db:"resume_token"`
}

func (r jobRow) toCore() core.Job {
	return core.Job{
		ConnectorName:  r.ConnectorName,
		State:          core.JobState(r.State),
		StartedAt:      r.StartedAt,
		LastCheckpoint: r.LastCheckpoint,
		LastError:      r.LastError,
		ResumeToken:    r.ResumeToken,
	}
}

func (s *Store) PutJob(ctx context.Context, job core.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (connector_name, state, started_at, last_checkpoint, last_error, resume_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (connector_name) DO UPDATE SET
			state = $2, started_at = $3, last_checkpoint = $4, last_error = $5, resume_token = $6
	`, job.ConnectorName, string(job.State), job.StartedAt, job.LastCheckpoint, job.LastError, job.ResumeToken)
	if err != nil {
		return svcerr.Wrap(svcerr.CodeConfigError, "persisting job", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, connectorName string) (core.Job, bool, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT connector_name, state, started_at, last_checkpoint, last_error, resume_token FROM jobs WHERE connector_name = $1`, connectorName)
	if err == sql.ErrNoRows {
		return core.Job{}, false, nil
	}
	if err != nil {
		return core.Job{}, false, svcerr.Wrap(svcerr.CodeConfigError, "loading job", err)
	}
	return row.toCore(), true, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]core.Job, error) {
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT connector_name, state, started_at, last_checkpoint, last_error, resume_token FROM jobs ORDER BY connector_name`); err != nil {
		return nil, svcerr.Wrap(svcerr.CodeConfigError, "listing jobs", err)
	}
	out := make([]core.Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (s *Store) DeleteJob(ctx context.Context, connectorName string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE connector_name = $1`, connectorName); err != nil {
		return svcerr.Wrap(svcerr.CodeConfigError, "deleting job", err)
	}
	return nil
}

func (s *Store) AppendCheckpoint(ctx context.Context, cp core.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (connector_name, resume_token, timestamp) VALUES ($1, $2, $3)
	`, cp.ConnectorName, cp.ResumeToken, cp.Timestamp)
	if err != nil {
		return svcerr.Wrap(svcerr.CodeConfigError, "appending checkpoint", err)
	}
	return nil
}

type checkpointRow struct {
	ConnectorName string    `db:"connector_name"`
	ResumeToken   string    `db:"resume_token"`
	Timestamp     time.Time `db:"timestamp"`
}

func (r checkpointRow) toCore() core.Checkpoint {
	return core.Checkpoint{ConnectorName: r.ConnectorName, ResumeToken: r.ResumeToken, Timestamp: r.Timestamp}
}

func (s *Store) ListCheckpoints(ctx context.Context, connectorName string) ([]core.Checkpoint, error) {
	var rows []checkpointRow
	err := s.db.SelectContext(ctx, &rows, `SELECT connector_name, resume_token, timestamp FROM checkpoints WHERE connector_name = $1 ORDER BY timestamp DESC`, connectorName)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.CodeConfigError, "listing checkpoints", err)
	}
	out := make([]core.Checkpoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

// PruneCheckpoints keeps the keep most recent checkpoint rows for
// connectorName and deletes the rest, via a subquery since checkpoints has
// no surrogate key.
func (s *Store) PruneCheckpoints(ctx context.Context, connectorName string, keep int) error {
	if keep < 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE connector_name = $1
		AND timestamp <= (
			SELECT timestamp FROM checkpoints
			WHERE connector_name = $1
			ORDER BY timestamp DESC
			OFFSET $2 LIMIT 1
		)
	`, connectorName, keep)
	if err != nil {
		return svcerr.Wrap(svcerr.CodeConfigError, "pruning checkpoints", err)
	}
	return nil
}

func (s *Store) LatestCheckpoint(ctx context.Context, connectorName string) (core.Checkpoint, bool, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row, `SELECT connector_name, resume_token, timestamp FROM checkpoints WHERE connector_name = $1 ORDER BY timestamp DESC LIMIT 1`, connectorName)
	if err == sql.ErrNoRows {
		return core.Checkpoint{}, false, nil
	}
	if err != nil {
		return core.Checkpoint{}, false, svcerr.Wrap(svcerr.CodeConfigError, "loading latest checkpoint", err)
	}
	return row.toCore(), true, nil
}
