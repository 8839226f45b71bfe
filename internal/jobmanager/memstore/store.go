// Package memstore is the in-memory JobStorage backend for ephemeral mode,
// per spec §6: "the in-memory store offers the same interface."
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/jobmanager"
)

// Store holds jobs and checkpoints in process memory; state does not
// survive restarts.
type Store struct {
	mu          sync.RWMutex
	jobs        map[string]core.Job
	checkpoints map[string][]core.Checkpoint
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		jobs:        make(map[string]core.Job),
		checkpoints: make(map[string][]core.Checkpoint),
	}
}

var _ jobmanager.Storage = (*Store)(nil)

func (s *Store) PutJob(_ context.Context, job core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ConnectorName] = job
	return nil
}

func (s *Store) GetJob(_ context.Context, connectorName string) (core.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[connectorName]
	return job, ok, nil
}

func (s *Store) ListJobs(_ context.Context) ([]core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectorName < out[j].ConnectorName })
	return out, nil
}

func (s *Store) DeleteJob(_ context.Context, connectorName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, connectorName)
	return nil
}

func (s *Store) AppendCheckpoint(_ context.Context, cp core.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cp.ConnectorName] = append(s.checkpoints[cp.ConnectorName], cp)
	return nil
}

func (s *Store) ListCheckpoints(_ context.Context, connectorName string) ([]core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Checkpoint, len(s.checkpoints[connectorName]))
	copy(out, s.checkpoints[connectorName])
	return out, nil
}

func (s *Store) PruneCheckpoints(_ context.Context, connectorName string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cps := s.checkpoints[connectorName]
	if keep < 0 || len(cps) <= keep {
		return nil
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].Timestamp.Before(cps[j].Timestamp) })
	s.checkpoints[connectorName] = append([]core.Checkpoint(nil), cps[len(cps)-keep:]...)
	return nil
}

func (s *Store) LatestCheckpoint(_ context.Context, connectorName string) (core.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := s.checkpoints[connectorName]
	if len(cps) == 0 {
		return core.Checkpoint{}, false, nil
	}
	latest := cps[0]
	for _, cp := range cps[1:] {
		if cp.Timestamp.After(latest.Timestamp) {
			latest = cp
		}
	}
	return latest, true, nil
}
