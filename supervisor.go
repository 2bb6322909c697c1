package wspool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// backstopSlack is added to the grace period before the supervisor gives up
// on stragglers and synthesizes their outcomes.
const backstopSlack = 500 * time.Millisecond

// Supervisor launches a set of Connection Tasks, monitors their completion,
// and joins them into one outcome list. A Supervisor runs one pool; Run must
// be called at most once.
type Supervisor struct {
	cfg      Config
	logger   *slog.Logger
	dialGate *semaphore.Weighted

	mu     sync.Mutex
	state  PoolState
	states map[uuid.UUID]TaskState
}

// NewSupervisor creates a pool Supervisor. A nil logger uses slog.Default.
func NewSupervisor(cfg Config, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.MaxConcurrentDials <= 0 {
		cfg.MaxConcurrentDials = DefaultMaxConcurrentDials
	}

	return &Supervisor{
		cfg:      cfg,
		logger:   logger,
		dialGate: semaphore.NewWeighted(cfg.MaxConcurrentDials),
		state:    PoolIdle,
		states:   make(map[uuid.UUID]TaskState),
	}
}

// State returns the pool lifecycle state.
func (s *Supervisor) State() PoolState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of task states.
func (s *Supervisor) Stats() PoolStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := PoolStats{
		State: s.state,
		Tasks: len(s.states),
	}
	for _, st := range s.states {
		switch st {
		case StatePending:
			stats.Pending++
		case StateConnecting:
			stats.Connecting++
		case StateOpen:
			stats.Open++
		case StateClosing:
			stats.Closing++
		case StateClosed:
			stats.Closed++
		case StateFailed:
			stats.Failed++
		}
	}
	return stats
}

// setState advances the pool state machine; backward moves are ignored.
func (s *Supervisor) setState(next PoolState) {
	s.mu.Lock()
	if next <= s.state {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	s.mu.Unlock()

	s.logger.Debug("pool state change", "from", prev.String(), "to", next.String())
}

// onTaskState records task state changes for Stats.
func (s *Supervisor) onTaskState(id uuid.UUID, state TaskState) {
	s.mu.Lock()
	s.states[id] = state
	s.mu.Unlock()
}

// Run launches every task concurrently and blocks until all reach a terminal
// state or, after cancellation, until the grace period expires. It returns
// one Outcome per factory, in completion order; no individual failure aborts
// the pool or surfaces as an error.
func (s *Supervisor) Run(ctx context.Context, factories []TaskFactory) []Outcome {
	s.setState(PoolRunning)

	n := len(factories)
	outcomes := make([]Outcome, 0, n)
	if n == 0 {
		s.setState(PoolDone)
		return outcomes
	}

	tasks := make([]*Task, 0, n)
	for _, factory := range factories {
		t := factory()
		t.observer = s.onTaskState
		t.dialGate = s.dialGate
		s.onTaskState(t.id, t.State())
		tasks = append(tasks, t)
	}

	// Buffered to capacity: stragglers that finish after the backstop still
	// deliver without blocking, so no goroutine leaks.
	results := make(chan Outcome, n)
	for _, t := range tasks {
		go func(t *Task) {
			results <- t.Run(ctx)
		}(t)
	}

	s.logger.Info("pool started", "tasks", n)

	// Single-writer outcome collection: this loop is the only mutator.
	seen := make(map[uuid.UUID]struct{}, n)
	ctxDone := ctx.Done()
	var backstop <-chan time.Time
	forced := false

	for len(outcomes) < n && !forced {
		select {
		case out := <-results:
			seen[out.TaskID] = struct{}{}
			outcomes = append(outcomes, out)

		case <-ctxDone:
			ctxDone = nil
			s.setState(PoolDraining)
			backstop = time.After(s.cfg.GracePeriod + backstopSlack)
			s.logger.Info("cancellation requested, draining",
				"remaining", n-len(outcomes),
				"grace", s.cfg.GracePeriod,
			)

		case <-backstop:
			forced = true
		}
	}

	if forced {
		for _, t := range tasks {
			if _, ok := seen[t.id]; ok {
				continue
			}
			s.logger.Warn("task missed grace period, forcing termination",
				"task", t.id.String(),
				"url", t.spec.URL,
			)
			s.onTaskState(t.id, StateFailed)
			outcomes = append(outcomes, Outcome{
				TaskID:     t.id,
				URL:        t.spec.URL,
				FinalState: StateFailed,
				Err: &TaskError{
					Kind: CancellationFailure,
					URL:  t.spec.URL,
					Err:  ErrForcedTermination,
				},
			})
		}
	}

	s.setState(PoolDone)

	failed := 0
	for _, out := range outcomes {
		if out.Failed() {
			failed++
		}
	}
	s.logger.Info("pool complete",
		"tasks", n,
		"closed", n-failed,
		"failed", failed,
	)

	return outcomes
}
