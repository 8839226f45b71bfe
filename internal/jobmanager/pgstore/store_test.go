package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestPutJobUpserts(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("orders-sync", "running", sqlmock.AnyArg(), sqlmock.AnyArg(), "", "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.PutJob(context.Background(), core.Job{
		ConnectorName: "orders-sync",
		State:         core.JobRunning,
		StartedAt:     time.Now(),
		ResumeToken:   "t1",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobReturnsNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT connector_name, state").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"connector_name", "state", "started_at", "last_checkpoint", "last_error", "resume_token"}))

	_, found, err := store.GetJob(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestCheckpointReturnsMostRecent(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now()

	mock.ExpectQuery("SELECT connector_name, resume_token, timestamp").
		WithArgs("orders-sync").
		WillReturnRows(sqlmock.NewRows([]string{"connector_name", "resume_token", "timestamp"}).
			AddRow("orders-sync", "t2", now))

	cp, found, err := store.LatestCheckpoint(context.Background(), "orders-sync")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "t2", cp.ResumeToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneCheckpointsDeletesStaleRows(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM checkpoints").
		WithArgs("orders-sync", 2).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := store.PruneCheckpoints(context.Background(), "orders-sync", 2)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneCheckpointsNegativeKeepIsNoop(t *testing.T) {
	store, mock := newTestStore(t)

	err := store.PruneCheckpoints(context.Background(), "orders-sync", -1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
