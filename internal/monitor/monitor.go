package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"composewatch/internal/alerts"
	"composewatch/internal/health"
	"composewatch/internal/models"
	"composewatch/internal/state"
)

// dispatchLimit bounds concurrent alert deliveries within one cycle.
const dispatchLimit = 4

type Phase int

const (
	Running Phase = iota
	Stopped
)

func (p Phase) String() string {
	if p == Stopped {
		return "stopped"
	}
	return "running"
}

type Lister interface {
	ListProject(ctx context.Context, project string) ([]models.Observation, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, rec models.ContainerRecord)
}

type Options struct {
	Project         string
	RetryThreshold  int
	Wait            time.Duration
	ContinueOnEmpty bool
}

type Monitor struct {
	lister   Lister
	store    *state.Store
	dispatch Dispatcher
	opts     Options
	log      *slog.Logger

	mu    sync.RWMutex
	phase Phase
}

func New(lister Lister, store *state.Store, dispatch Dispatcher, opts Options, logger *slog.Logger) *Monitor {
	if opts.RetryThreshold < 1 {
		opts.RetryThreshold = 1
	}
	return &Monitor{lister: lister, store: store, dispatch: dispatch, opts: opts, log: logger}
}

func (m *Monitor) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

func (m *Monitor) Store() *state.Store { return m.store }

func (m *Monitor) stop() {
	m.mu.Lock()
	m.phase = Stopped
	m.mu.Unlock()
}

// Run polls until the project has no containers (unless ContinueOnEmpty is
// set) or ctx is cancelled. Both end the loop without an error.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.stop()
	m.log.Info("monitoring project", "project", m.opts.Project, "retries", m.opts.RetryThreshold, "wait", m.opts.Wait)
	for {
		if m.Poll(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			m.log.Info("monitor interrupted")
			return nil
		case <-time.After(m.opts.Wait):
		}
	}
}

// Poll runs a single cycle and reports whether the loop should stop.
func (m *Monitor) Poll(ctx context.Context) bool {
	obs, err := m.lister.ListProject(ctx, m.opts.Project)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		m.log.Warn("list containers failed", "project", m.opts.Project, "err", err)
		return false
	}
	if len(obs) == 0 {
		if !m.opts.ContinueOnEmpty {
			m.log.Info("no containers found, stopping", "project", m.opts.Project)
			return true
		}
		m.log.Warn("no containers found", "project", m.opts.Project)
		return false
	}

	var due []models.ContainerRecord
	for _, o := range obs {
		status := health.Classify(o)
		rec, failing := m.store.Update(o.Name, status, o.ErrorMessage)
		if failing {
			m.log.Debug("container in error", "container", o.Name, "status", status.String(), "errors", rec.ConsecutiveErrors)
		}
		if alerts.ShouldAlert(rec.ConsecutiveErrors, m.opts.RetryThreshold) {
			due = append(due, rec)
		}
	}
	if len(due) == 0 {
		return false
	}

	var g errgroup.Group
	g.SetLimit(dispatchLimit)
	for _, rec := range due {
		rec := rec
		g.Go(func() error {
			m.dispatch.Dispatch(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	return false
}
