package jobmanager

import (
	"context"
	"time"

	"github.com/mstreamio/mstream/internal/logging"
	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic background maintenance against a Manager: the
// checkpoint-compaction sweep spec.md's ambient storage stack implies but
// never spells out (a connector with no retention policy grows its
// checkpoint history forever). Grounded on the teacher's ticker-based
// internal/app/services/automation scheduler, generalized to robfig/cron's
// Cron-expression scheduling instead of a fixed ticker.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
	log     *logging.Logger
}

// NewScheduler builds a Scheduler around manager. log may be nil.
func NewScheduler(manager *Manager, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Scheduler{
		cron:    cron.New(),
		manager: manager,
		log:     log,
	}
}

// ScheduleCheckpointPruning registers a checkpoint-pruning sweep on spec
// (standard five-field cron syntax), keeping the keep most recent
// checkpoints per connector on each run.
func (s *Scheduler) ScheduleCheckpointPruning(spec string, keep int) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.manager.PruneCheckpoints(ctx, keep); err != nil {
			s.log.WithError(err).Warn("checkpoint pruning sweep failed")
		}
	})
	return err
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and returns a context that is done once any
// in-flight job has finished; it does not wait itself.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }
