package wspool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Task owns one WebSocket endpoint's lifecycle: connect, receive loop,
// callback dispatch, disconnect and timeout handling, retry under the
// reconnect policy, graceful shutdown on cancellation.
type Task struct {
	spec   Spec
	id     uuid.UUID
	logger *slog.Logger
	dialer Dialer

	// Set by the supervisor before launch.
	dialGate *semaphore.Weighted
	observer func(id uuid.UUID, state TaskState)

	mu    sync.Mutex
	state TaskState
}

// Option configures a Task.
type Option func(*Task)

// WithLogger sets the task logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithDialer overrides the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(t *Task) {
		t.dialer = d
	}
}

// WithTaskID sets an explicit task ID instead of a generated one.
func WithTaskID(id uuid.UUID) Option {
	return func(t *Task) {
		t.id = id
	}
}

// NewTask builds a Connection Task from a spec. Zero optional spec fields
// are filled with defaults; IdleTimeout is taken as given (zero expires
// immediately, negative disables the idle timer).
func NewTask(spec Spec, opts ...Option) *Task {
	t := &Task{
		spec:   spec.withDefaults(),
		id:     uuid.New(),
		logger: slog.Default(),
		state:  StatePending,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.dialer == nil {
		t.dialer = netDialer{handshakeTimeout: t.spec.HandshakeTimeout}
	}
	t.logger = t.logger.With("task", t.id.String(), "url", t.spec.URL)
	return t
}

// TaskFactory produces a Connection Task for the supervisor to launch.
type TaskFactory func() *Task

// Factory returns a zero-argument factory for the given spec.
func Factory(spec Spec, opts ...Option) TaskFactory {
	return func() *Task {
		return NewTask(spec, opts...)
	}
}

// ID returns the task ID.
func (t *Task) ID() uuid.UUID {
	return t.id
}

// URL returns the endpoint URL.
func (t *Task) URL() string {
	return t.spec.URL
}

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// setState advances the state machine. Transitions are monotone: terminal
// states are sticky and the state never moves backward.
func (t *Task) setState(next TaskState) {
	t.mu.Lock()
	cur := t.state
	if cur.Terminal() || next <= cur {
		t.mu.Unlock()
		return
	}
	t.state = next
	obs := t.observer
	t.mu.Unlock()

	t.logger.Debug("state change", "from", cur.String(), "to", next.String())
	if obs != nil {
		obs(t.id, next)
	}
}

// Run executes the full task lifecycle and returns its terminal Outcome.
// It never returns an error and never panics across the boundary: every
// failure becomes a Failed outcome with a classified cause.
func (t *Task) Run(ctx context.Context) Outcome {
	start := time.Now()
	out := Outcome{TaskID: t.id, URL: t.spec.URL}

	maxAttempts := t.spec.Reconnect.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := t.spec.Reconnect.BaseDelay

	var (
		counters  taskCounters
		cancelled bool
		cause     *TaskError
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out.Attempts = attempt

		if attempt == 1 {
			t.setState(StateConnecting)
		} else {
			t.logger.Info("reconnecting", "attempt", attempt, "wait", delay)
			if !sleepCtx(ctx, delay) {
				cancelled = true
				cause = nil
				break
			}
			delay *= 2
			if delay > t.spec.Reconnect.MaxDelay {
				delay = t.spec.Reconnect.MaxDelay
			}
		}

		cancelled, cause = t.runOnce(ctx, &counters)
		if cancelled || cause == nil {
			break
		}
		if attempt < maxAttempts {
			t.logger.Warn("connection attempt failed", "attempt", attempt, "error", cause)
		}
	}

	out.MessagesReceived = counters.messages
	out.HandlerErrors = counters.handlerErrors
	out.Duration = time.Since(start)

	if cause == nil {
		t.setState(StateClosing)
		t.setState(StateClosed)
		out.FinalState = StateClosed
		t.logger.Info("task closed",
			"attempts", out.Attempts,
			"messages", out.MessagesReceived,
			"duration", out.Duration,
		)
	} else {
		t.setState(StateFailed)
		out.FinalState = StateFailed
		out.Err = cause
		t.logger.Warn("task failed",
			"kind", cause.Kind.String(),
			"attempts", out.Attempts,
			"messages", out.MessagesReceived,
			"error", cause.Err,
		)
	}

	return out
}

type taskCounters struct {
	messages      int64
	handlerErrors int64
}

// runOnce performs one connection attempt and runs its receive loop.
// cancelled reports that the context ended the attempt; a nil cause with
// cancelled=true means the shutdown was graceful.
func (t *Task) runOnce(ctx context.Context, counters *taskCounters) (cancelled bool, cause *TaskError) {
	if t.dialGate != nil {
		if err := t.dialGate.Acquire(ctx, 1); err != nil {
			return true, nil
		}
	}

	c := newClient(t.spec, t.dialer, t.logger)
	err := c.connect(ctx)
	if t.dialGate != nil {
		t.dialGate.Release(1)
	}
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, &TaskError{Kind: ConnectFailure, URL: t.spec.URL, Err: err}
	}

	t.setState(StateOpen)

	if t.spec.OnConnect != nil {
		if err := t.spec.OnConnect.HandleConnect(ctx, c); err != nil {
			counters.handlerErrors++
			t.logger.Warn("connect handler error", "error", err)
		}
	}

	// Idle timer: zero fires immediately, negative disables.
	var (
		idle  *time.Timer
		idleC <-chan time.Time
	)
	if t.spec.IdleTimeout >= 0 {
		idle = time.NewTimer(t.spec.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case <-ctx.Done():
			return true, t.shutdown(c)

		case <-idleC:
			t.logger.Warn("idle timeout", "timeout", t.spec.IdleTimeout)
			c.close()
			return false, &TaskError{Kind: TimeoutFailure, URL: t.spec.URL, Err: ErrIdleTimeout}

		case err := <-c.errors:
			c.close()
			return false, &TaskError{Kind: TransportFailure, URL: t.spec.URL, Err: err}

		case msg := <-c.messages:
			counters.messages++
			if idle != nil {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(t.spec.IdleTimeout)
			}
			if t.spec.OnMessage != nil {
				if err := t.spec.OnMessage.HandleMessage(ctx, msg); err != nil {
					counters.handlerErrors++
					t.logger.Warn("message handler error", "error", err)
				}
			}
		}
	}
}

// shutdown attempts a graceful close bounded by the grace period. Past the
// grace period the connection is dropped and the task is force-failed.
func (t *Task) shutdown(c *client) *TaskError {
	t.setState(StateClosing)

	done := make(chan struct{})
	go func() {
		c.close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(t.spec.GracePeriod):
		t.logger.Warn("graceful close timed out, terminating", "grace", t.spec.GracePeriod)
		c.terminate()
		return &TaskError{Kind: CancellationFailure, URL: t.spec.URL, Err: ErrForcedTermination}
	}
}

// sleepCtx waits for d or until the context is cancelled. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
