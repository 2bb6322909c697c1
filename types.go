package wspool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyClosed     = errors.New("already closed")
	ErrIdleTimeout       = errors.New("no message within idle timeout")
	ErrForcedTermination = errors.New("graceful close exceeded grace period")
)

// Default values for optional Spec and Config fields.
const (
	DefaultIdleTimeout        = 30 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultGracePeriod        = 5 * time.Second
	DefaultBufferSize         = 256
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultMaxConcurrentDials = 64
)

// TaskState is the lifecycle state of a Connection Task.
//
// States only move forward along Pending → Connecting → Open → Closing →
// Closed; Failed is reachable from any non-terminal state. Closed and Failed
// are terminal.
type TaskState int32

const (
	StatePending TaskState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

// String returns the state name.
func (s TaskState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown(%d)", int32(s))
}

// Terminal reports whether the state is Closed or Failed.
func (s TaskState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// PoolState is the lifecycle state of the pool as a whole.
type PoolState int32

const (
	PoolIdle PoolState = iota
	PoolRunning
	PoolDraining
	PoolDone
)

// String returns the pool state name.
func (s PoolState) String() string {
	switch s {
	case PoolIdle:
		return "idle"
	case PoolRunning:
		return "running"
	case PoolDraining:
		return "draining"
	case PoolDone:
		return "done"
	}
	return fmt.Sprintf("unknown(%d)", int32(s))
}

// FailureKind classifies a terminal task failure.
type FailureKind int

const (
	// ConnectFailure covers dial errors: DNS, refused, handshake failure or
	// handshake timeout.
	ConnectFailure FailureKind = iota + 1

	// TimeoutFailure means no message arrived within the idle timeout.
	TimeoutFailure

	// TransportFailure is a mid-stream read or protocol error after the
	// connection was open.
	TransportFailure

	// CancellationFailure means the task was forcibly terminated because the
	// graceful close did not finish within the grace period.
	CancellationFailure
)

// String returns the failure kind name.
func (k FailureKind) String() string {
	switch k {
	case ConnectFailure:
		return "connect"
	case TimeoutFailure:
		return "timeout"
	case TransportFailure:
		return "transport"
	case CancellationFailure:
		return "cancellation"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// TaskError is the terminal error of a failed Connection Task.
type TaskError struct {
	Kind FailureKind
	URL  string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s failure for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// FailureKindOf extracts the failure kind from a task error chain.
func FailureKindOf(err error) (FailureKind, bool) {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// Message wraps raw message data with a receive timestamp.
type Message struct {
	Data       []byte    // Raw message bytes from the WebSocket
	ReceivedAt time.Time // Local timestamp when the read returned
}

// MessageHandler receives inbound messages for one connection. Calls are
// strictly ordered per connection; a returned error is logged and counted
// but does not terminate the task.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg Message) error
}

// MessageHandlerFunc is a function adapter for MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg Message) error

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Conn is the write surface handed to a ConnectHandler, typically used to
// send subscribe frames after the connection opens.
type Conn interface {
	Send(data []byte) error
}

// ConnectHandler is invoked once per established connection, before the
// receive loop starts. A returned error is logged and counted but does not
// terminate the task.
type ConnectHandler interface {
	HandleConnect(ctx context.Context, conn Conn) error
}

// ConnectHandlerFunc is a function adapter for ConnectHandler.
type ConnectHandlerFunc func(ctx context.Context, conn Conn) error

func (f ConnectHandlerFunc) HandleConnect(ctx context.Context, conn Conn) error {
	return f(ctx, conn)
}

// ReconnectPolicy bounds automatic reconnection after failed dials, transport
// errors, and idle timeouts. The zero value disables retry: a task makes a
// single connection attempt.
type ReconnectPolicy struct {
	MaxAttempts int           // Total connection attempts; <= 1 means no retry
	BaseDelay   time.Duration // First backoff wait; doubles per attempt
	MaxDelay    time.Duration // Backoff cap
}

func (p ReconnectPolicy) enabled() bool {
	return p.MaxAttempts > 1
}

// Spec describes one WebSocket endpoint. It is immutable once a Task is
// built from it.
type Spec struct {
	URL       string
	OnMessage MessageHandler
	OnConnect ConnectHandler // Optional, invoked once per established connection

	// IdleTimeout bounds the wait for the next inbound message. Zero expires
	// immediately; a negative value disables the idle timer. Each new
	// connection under a reconnect policy gets a fresh budget.
	IdleTimeout time.Duration

	Reconnect ReconnectPolicy

	HandshakeTimeout time.Duration // Dial deadline
	WriteTimeout     time.Duration // Write deadline for sends
	GracePeriod      time.Duration // Graceful close window on cancellation
	BufferSize       int           // Message channel buffer size
	Header           http.Header   // Optional extra handshake headers
}

// DefaultSpec returns a Spec with sensible defaults for url and handler.
func DefaultSpec(url string, h MessageHandler) Spec {
	return Spec{
		URL:              url,
		OnMessage:        h,
		IdleTimeout:      DefaultIdleTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		GracePeriod:      DefaultGracePeriod,
		BufferSize:       DefaultBufferSize,
	}
}

// withDefaults fills zero optional fields. IdleTimeout is deliberately left
// alone: zero means "expire immediately" and must not be rewritten.
func (s Spec) withDefaults() Spec {
	if s.HandshakeTimeout == 0 {
		s.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.GracePeriod == 0 {
		s.GracePeriod = DefaultGracePeriod
	}
	if s.BufferSize == 0 {
		s.BufferSize = DefaultBufferSize
	}
	if s.Reconnect.enabled() {
		if s.Reconnect.BaseDelay == 0 {
			s.Reconnect.BaseDelay = DefaultReconnectBaseDelay
		}
		if s.Reconnect.MaxDelay == 0 {
			s.Reconnect.MaxDelay = DefaultReconnectMaxDelay
		}
	}
	return s
}

// Outcome is the terminal result of one Connection Task.
type Outcome struct {
	TaskID           uuid.UUID
	URL              string
	FinalState       TaskState // StateClosed or StateFailed
	Err              error     // Nil for StateClosed; *TaskError for StateFailed
	Attempts         int
	MessagesReceived int64
	HandlerErrors    int64
	Duration         time.Duration
}

// Failed reports whether the task reached StateFailed.
func (o Outcome) Failed() bool {
	return o.FinalState == StateFailed
}

// Config configures the pool Supervisor.
type Config struct {
	// GracePeriod is how long the supervisor waits after cancellation before
	// synthesizing forced-termination outcomes for unresponsive tasks.
	GracePeriod time.Duration

	// MaxConcurrentDials bounds concurrent connection attempts across the
	// pool. <= 0 uses the default.
	MaxConcurrentDials int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriod:        DefaultGracePeriod,
		MaxConcurrentDials: DefaultMaxConcurrentDials,
	}
}

// PoolStats is a snapshot of task states.
type PoolStats struct {
	State PoolState
	Tasks int

	Pending    int
	Connecting int
	Open       int
	Closing    int
	Closed     int
	Failed     int
}
