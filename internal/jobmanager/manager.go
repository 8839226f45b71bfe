package jobmanager

import (
	"context"
	"sync"
	"time"

	"github.com/mstreamio/mstream/internal/domain/core"
	"github.com/mstreamio/mstream/internal/handler"
	"github.com/mstreamio/mstream/internal/logging"
	"github.com/mstreamio/mstream/internal/metrics"
	"github.com/mstreamio/mstream/internal/pipeline"
	"github.com/mstreamio/mstream/internal/svcerr"
)

// runningJob tracks one live handler and the means to cancel it.
type runningJob struct {
	connector core.Connector
	pipeline  *pipeline.Pipeline
	cancel    context.CancelFunc
	done      chan handler.Status
}

// PipelineBuilder resolves a connector declaration into a runnable
// Pipeline. *pipeline.Builder satisfies this; tests supply fakes.
type PipelineBuilder interface {
	Build(ctx context.Context, conn core.Connector) (*pipeline.Pipeline, error)
}

// Manager governs connector lifecycle across many concurrently running
// pipelines, per spec §4.7.
type Manager struct {
	builder PipelineBuilder
	store   Storage
	log     *logging.Logger

	mu         sync.Mutex
	running    map[string]*runningJob
	connectors map[string]core.Connector
}

// New builds a Manager backed by builder (to resolve connectors into
// pipelines) and store (to persist Job/Checkpoint state).
func New(builder PipelineBuilder, store Storage, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewDefault()
	}
	return &Manager{
		builder:    builder,
		store:      store,
		log:        log,
		running:    make(map[string]*runningJob),
		connectors: make(map[string]core.Connector),
	}
}

// CreateAndStart builds the connector's pipeline, records it Created then
// Running, and spawns its event handler. Fails with NameInUse if a job by
// this name is already live.
func (m *Manager) CreateAndStart(ctx context.Context, conn core.Connector) error {
	m.mu.Lock()
	if _, live := m.running[conn.Name]; live {
		m.mu.Unlock()
		return svcerr.New(svcerr.CodeNameInUse, "job "+conn.Name+" is already running")
	}
	m.mu.Unlock()

	now := time.Now().UTC()
	if err := m.store.PutJob(ctx, core.Job{ConnectorName: conn.Name, State: core.JobCreated, StartedAt: now}); err != nil {
		return err
	}

	p, err := m.builder.Build(ctx, conn)
	if err != nil {
		m.markFailed(ctx, conn.Name, err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := handler.New(p, m.checkpointFunc(), m.log)

	job := &runningJob{connector: conn, pipeline: p, cancel: cancel, done: make(chan handler.Status, 1)}
	m.mu.Lock()
	m.running[conn.Name] = job
	m.connectors[conn.Name] = conn
	m.mu.Unlock()

	if err := m.store.PutJob(ctx, core.Job{ConnectorName: conn.Name, State: core.JobRunning, StartedAt: now}); err != nil {
		cancel()
		return err
	}

	metrics.JobsRunning.Inc()
	go m.drive(runCtx, h, job, conn.Name, now)
	return nil
}

func (m *Manager) drive(ctx context.Context, h *handler.Handler, job *runningJob, name string, startedAt time.Time) {
	status := h.Run(ctx)

	m.mu.Lock()
	delete(m.running, name)
	m.mu.Unlock()
	metrics.JobsRunning.Dec()

	state := core.JobStopped
	lastErr := ""
	if status.State == core.JobFailed {
		state = core.JobFailed
		if status.Err != nil {
			lastErr = status.Err.Error()
		}
	}
	_ = m.store.PutJob(context.Background(), core.Job{
		ConnectorName:  name,
		State:          state,
		StartedAt:      startedAt,
		LastCheckpoint: time.Now().UTC(),
		LastError:      lastErr,
	})
	job.done <- status
}

func (m *Manager) markFailed(ctx context.Context, name string, err error) {
	_ = m.store.PutJob(ctx, core.Job{ConnectorName: name, State: core.JobFailed, LastError: err.Error()})
}

func (m *Manager) checkpointFunc() handler.CheckpointFunc {
	return func(ctx context.Context, connectorName, resumeToken string) error {
		return m.store.AppendCheckpoint(ctx, core.Checkpoint{
			ConnectorName: connectorName,
			ResumeToken:   resumeToken,
			Timestamp:     time.Now().UTC(),
		})
	}
}

// Stop signals cancellation for name and waits until the handler has
// drained, reported its terminal status, and had its final Job record
// (terminal state and last error) persisted. Stop appends no checkpoint of
// its own; checkpoints are appended by the handler as events are published.
// Stopping a name with no live job is a no-op (idempotent).
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	job, live := m.running[name]
	m.mu.Unlock()
	if !live {
		return nil
	}

	job.cancel()
	select {
	case <-job.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Restart stops name if running, then starts it again from the connector
// declaration. Persisted checkpoints are not read: the new pipeline's source
// reader opens its change stream without a resume token.
func (m *Manager) Restart(ctx context.Context, conn core.Connector) error {
	if err := m.Stop(ctx, conn.Name); err != nil {
		return err
	}
	return m.CreateAndStart(ctx, conn)
}

// ListJobs returns a snapshot of every persisted job.
func (m *Manager) ListJobs(ctx context.Context) ([]core.Job, error) {
	return m.store.ListJobs(ctx)
}

// GetJob returns a snapshot of one persisted job.
func (m *Manager) GetJob(ctx context.Context, name string) (core.Job, bool, error) {
	return m.store.GetJob(ctx, name)
}

// ListCheckpoints returns the checkpoint history for one connector.
func (m *Manager) ListCheckpoints(ctx context.Context, name string) ([]core.Checkpoint, error) {
	return m.store.ListCheckpoints(ctx, name)
}

// PruneCheckpoints trims every connector's checkpoint history down to its
// keep most recent records. Run periodically by a Scheduler so checkpoint
// tables don't grow unbounded on long-lived connectors.
func (m *Manager) PruneCheckpoints(ctx context.Context, keep int) error {
	jobs, err := m.store.ListJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := m.store.PruneCheckpoints(ctx, job.ConnectorName, keep); err != nil {
			return err
		}
	}
	return nil
}

// IsRunning reports whether name currently has a live handler.
func (m *Manager) IsRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[name]
	return ok
}

// Pipeline returns the live Pipeline for name, if it is currently running.
// Used by the management API's transform dry-run to preview a middleware
// chain without duplicating pipeline build logic.
func (m *Manager) Pipeline(name string) (*pipeline.Pipeline, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.running[name]
	if !ok {
		return nil, false
	}
	return job.pipeline, true
}

// Connector returns the last connector declaration CreateAndStart used for
// name, if this process has seen one since startup.
func (m *Manager) Connector(name string) (core.Connector, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connectors[name]
	return conn, ok
}

// RestartByName restarts name using the last connector declaration this
// process started it with. Fails with ConfigError if the process has no
// memory of that connector (e.g. after a restart of mstream itself) — the
// caller should POST the full declaration to /jobs instead.
func (m *Manager) RestartByName(ctx context.Context, name string) error {
	conn, ok := m.Connector(name)
	if !ok {
		return svcerr.New(svcerr.CodeConfigError, "no known connector declaration for "+name+" in this process")
	}
	return m.Restart(ctx, conn)
}

// Reconcile applies the startup reconciliation policy spec §4.7 names
// against the connectors declared in config.
func (m *Manager) Reconcile(ctx context.Context, state core.StartupState, connectors []core.Connector) error {
	switch state {
	case core.StartupForceFromFile:
		for _, conn := range connectors {
			_ = m.Stop(ctx, conn.Name)
			_ = m.store.DeleteJob(ctx, conn.Name)
			if err := m.CreateAndStart(ctx, conn); err != nil {
				return err
			}
		}
		return nil

	case core.StartupSeedFromFile:
		for _, conn := range connectors {
			_, exists, err := m.store.GetJob(ctx, conn.Name)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := m.CreateAndStart(ctx, conn); err != nil {
				return err
			}
		}
		return nil

	case core.StartupKeep:
		jobs, err := m.store.ListJobs(ctx)
		if err != nil {
			return err
		}
		byName := make(map[string]core.Connector, len(connectors))
		for _, c := range connectors {
			byName[c.Name] = c
		}
		for _, job := range jobs {
			if job.State != core.JobRunning && job.State != core.JobCreated {
				continue
			}
			conn, ok := byName[job.ConnectorName]
			if !ok {
				continue
			}
			if err := m.CreateAndStart(ctx, conn); err != nil {
				return err
			}
		}
		return nil

	default:
		return svcerr.New(svcerr.CodeConfigError, "unknown startup state")
	}
}
