// Package jobmanager governs connector lifecycle — start, stop, restart,
// checkpoint — and persists state so the process can restart without
// losing position, per spec §4.7.
package jobmanager

import (
	"context"

	"github.com/mstreamio/mstream/internal/domain/core"
)

// Storage persists Job and Checkpoint records. Backends: in-memory
// (ephemeral), MongoDB, and Postgres all implement the same interface
// (spec §6: "the in-memory store offers the same interface for ephemeral
// mode").
type Storage interface {
	PutJob(ctx context.Context, job core.Job) error
	GetJob(ctx context.Context, connectorName string) (core.Job, bool, error)
	ListJobs(ctx context.Context) ([]core.Job, error)
	DeleteJob(ctx context.Context, connectorName string) error

	AppendCheckpoint(ctx context.Context, cp core.Checkpoint) error
	ListCheckpoints(ctx context.Context, connectorName string) ([]core.Checkpoint, error)
	LatestCheckpoint(ctx context.Context, connectorName string) (core.Checkpoint, bool, error)

	// PruneCheckpoints discards all but the keep most recent checkpoint
	// records for connectorName, oldest first.
	PruneCheckpoints(ctx context.Context, connectorName string, keep int) error
}
