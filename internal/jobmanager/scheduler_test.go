package jobmanager

import (
	"context"
	"testing"
	"time"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/jobmanager/memstore"
	"github.com/stretchr/testify/require"
)

func TestScheduleCheckpointPruningRejectsBadSpec(t *testing.T) {
	manager := New(newFakeBuilder(), memstore.New(), nil)
	scheduler := NewScheduler(manager, nil)

	err := scheduler.ScheduleCheckpointPruning("not a cron spec", 10)
	require.Error(t, err)
}

func TestScheduleCheckpointPruningRunsSweep(t *testing.T) {
	store := memstore.New()
	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendCheckpoint(context.Background(), core.Checkpoint{
			ConnectorName: "orders-sync",
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.PutJob(context.Background(), core.Job{ConnectorName: "orders-sync", State: core.JobRunning}))

	manager := New(newFakeBuilder(), store, nil)
	scheduler := NewScheduler(manager, nil)

	require.NoError(t, scheduler.ScheduleCheckpointPruning("@every 200ms", 2))
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	require.Eventually(t, func() bool {
		cps, err := store.ListCheckpoints(context.Background(), "orders-sync")
		return err == nil && len(cps) == 2
	}, 2*time.Second, 50*time.Millisecond)
}
