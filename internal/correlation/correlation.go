// Package correlation implements the request/response overlay on top of
// the event bus's one-way events.
// A CorrelationContext binds a correlation ID to a single-shot promise that
// is completed exactly once by the first response, a timeout, or a cancel.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentmeshio/meshcore/internal/observability"
	"github.com/agentmeshio/meshcore/internal/ports"
)

// State is a CorrelationContext's lifecycle state. It is monotonic: PENDING
// transitions to exactly one of the four terminal states.
type State int

const (
	StatePending State = iota
	StateCompleted
	StateTimedOut
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateCompleted:
		return "COMPLETED"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateCancelled:
		return "CANCELLED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Response is one reply recorded against a correlation ID.
type Response struct {
	SenderAgentID string
	Payload       any
	ReceivedAt    time.Time
}

var (
	// ErrTimeout is the error a promise fails with on timeout.
	ErrTimeout = errors.New("correlation: timed out waiting for response")
	// ErrCancelled is the error a promise fails with on cancel.
	ErrCancelled = errors.New("correlation: cancelled")
	// ErrAgentFailure is the error a promise fails with when a handler
	// reports a non-timeout task error — distinct from ErrTimeout so a
	// dispatcher can tell "the agent answered, badly" from "the agent never
	// answered" without waiting out the full timeout either way.
	ErrAgentFailure = errors.New("correlation: agent task failed")
	// ErrUnknownID is returned by operations on an ID the tracker never created.
	ErrUnknownID = errors.New("correlation: unknown correlation id")
)

// Context is the tracker's record for one correlation ID.
type Context struct {
	ID          string
	RequestType string
	CreatedAt   time.Time
	TimeoutMs   int

	mu        sync.Mutex
	responses []Response
	state     State
	children  []string

	done         chan struct{}
	completeOnce sync.Once
	result       Response
	err          error
	timer        ports.Timer
}

// State returns the context's current state under its own lock.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Responses returns a copy of every response recorded so far, in arrival order.
func (c *Context) Responses() []Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Response, len(c.responses))
	copy(out, c.responses)
	return out
}

// Tracker is the concrete Correlation Tracker. Entries are stored in a
// sync.Map since, unlike the registry's interdependent indices, each
// correlation context is an independent record — a natural fit for a
// lock-free map rather than a single RWMutex.
type Tracker struct {
	entries sync.Map // id -> *Context

	logger  *slog.Logger
	metrics *observability.MetricsManager

	graceWindow     time.Duration
	cleanupInterval time.Duration
	maxAge          time.Duration

	clock ports.Clock

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// Option configures optional Tracker behavior.
type Option func(*Tracker)

// WithClock overrides the Tracker's time source, letting tests replace wall
// time with a fake clock to make timeout and cleanup behavior deterministic
// instead of depending on real sleeps.
func WithClock(clock ports.Clock) Option {
	return func(t *Tracker) { t.clock = clock }
}

// New constructs a Tracker. graceWindow, cleanupInterval and maxAge default
// to 30s, 5 minutes and 1 hour when zero.
func New(logger *slog.Logger, metrics *observability.MetricsManager, graceWindow, cleanupInterval, maxAge time.Duration, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if graceWindow <= 0 {
		graceWindow = 30 * time.Second
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	t := &Tracker{
		logger:          logger,
		metrics:         metrics,
		graceWindow:     graceWindow,
		cleanupInterval: cleanupInterval,
		maxAge:          maxAge,
		clock:           ports.SystemClock{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create registers a new PENDING context and schedules its timeout timer.
func (t *Tracker) Create(id, requestType string, timeoutMs int) *Context {
	ctx := &Context{
		ID:          id,
		RequestType: requestType,
		CreatedAt:   t.clock.Now(),
		TimeoutMs:   timeoutMs,
		state:       StatePending,
		done:        make(chan struct{}),
	}
	timer := t.clock.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	ctx.timer = timer
	go func() {
		select {
		case <-timer.C():
			t.timeout(ctx)
		case <-ctx.done:
			// Completed by a response or cancel before the timer fired;
			// nothing left for this goroutine to do.
		}
	}()
	t.entries.Store(id, ctx)

	if t.metrics != nil {
		t.metrics.SetCorrelationPending(context.Background(), 1)
	}
	return ctx
}

// Get returns the context for id, if known.
func (t *Tracker) Get(id string) (*Context, bool) {
	v, ok := t.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Context), true
}

// Await blocks until id's promise is completed by a response, a timeout, or
// a cancel, or until ctx is done.
func (t *Tracker) Await(ctx context.Context, id string) (Response, error) {
	entry, ok := t.Get(id)
	if !ok {
		return Response{}, ErrUnknownID
	}
	select {
	case <-entry.done:
		entry.mu.Lock()
		defer entry.mu.Unlock()
		return entry.result, entry.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// RecordResponse appends resp to id's response log. The first call for a
// still-PENDING context completes its promise; later calls (fan-in, or
// arrivals after the grace window) only append — recordResponse never
// re-completes an already-terminal promise.
func (t *Tracker) RecordResponse(id string, resp Response) error {
	entry, ok := t.Get(id)
	if !ok {
		return ErrUnknownID
	}
	if resp.ReceivedAt.IsZero() {
		resp.ReceivedAt = t.clock.Now()
	}

	entry.mu.Lock()
	state := entry.state
	entry.responses = append(entry.responses, resp)
	entry.mu.Unlock()

	if state != StatePending {
		t.logger.Warn("correlation: late response for non-pending context",
			"correlation_id", id, "state", state.String())
		return nil
	}

	t.completeWith(entry, resp, nil, StateCompleted)
	return nil
}

// Complete transitions a still-PENDING context straight to COMPLETED with no
// response payload, for a task whose success carries nothing to record (an
// acknowledgement rather than a result). Unlike RecordResponse it does not
// append to the response log; callers that do have a payload should use
// RecordResponse instead.
func (t *Tracker) Complete(id string) error {
	entry, ok := t.Get(id)
	if !ok {
		return ErrUnknownID
	}
	t.completeWith(entry, Response{}, nil, StateCompleted)
	return nil
}

// Cancel transitions id's context to CANCELLED and fails its promise.
func (t *Tracker) Cancel(id string) error {
	entry, ok := t.Get(id)
	if !ok {
		return ErrUnknownID
	}
	t.completeWith(entry, Response{}, ErrCancelled, StateCancelled)
	return nil
}

// Fail transitions a still-PENDING context straight to FAILED, wrapping
// cause in ErrAgentFailure so a waiting Dispatch can distinguish a handler
// error from ErrTimeout without waiting for the timer. Unlike timeout,
// this fires as soon as the handler reports its error, not after the full
// TimeoutMs has elapsed.
func (t *Tracker) Fail(id string, cause error) error {
	entry, ok := t.Get(id)
	if !ok {
		return ErrUnknownID
	}
	t.completeWith(entry, Response{}, fmt.Errorf("%w: %v", ErrAgentFailure, cause), StateFailed)
	return nil
}

func (t *Tracker) timeout(entry *Context) {
	entry.mu.Lock()
	pending := entry.state == StatePending
	entry.mu.Unlock()
	if !pending {
		return
	}
	t.completeWith(entry, Response{}, ErrTimeout, StateTimedOut)
	if t.metrics != nil {
		t.metrics.IncrementCorrelationTimeouts(context.Background())
	}
}

// completeWith is the single path through which a promise is completed,
// guaranteeing exactly-once completion via sync.Once regardless of which
// of recordResponse/complete/cancel/timeout races to get there first.
func (t *Tracker) completeWith(entry *Context, result Response, err error, state State) {
	entry.completeOnce.Do(func() {
		entry.mu.Lock()
		entry.state = state
		entry.result = result
		entry.err = err
		entry.mu.Unlock()

		if entry.timer != nil {
			entry.timer.Stop()
		}
		close(entry.done)

		if t.metrics != nil {
			t.metrics.SetCorrelationPending(context.Background(), -1)
		}
	})
}

// AddChild records causal lineage between a parent and child correlation
// for observability; it has no effect on either context's completion.
func (t *Tracker) AddChild(parentID, childID string) error {
	entry, ok := t.Get(parentID)
	if !ok {
		return ErrUnknownID
	}
	entry.mu.Lock()
	entry.children = append(entry.children, childID)
	entry.mu.Unlock()
	return nil
}

// Children returns the child correlation IDs recorded against parentID.
func (t *Tracker) Children(parentID string) []string {
	entry, ok := t.Get(parentID)
	if !ok {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := make([]string, len(entry.children))
	copy(out, entry.children)
	return out
}

// StartCleanup launches the periodic sweep that removes contexts older
// than maxAge regardless of state.
func (t *Tracker) StartCleanup() {
	t.stopCleanup = make(chan struct{})
	t.cleanupDone = make(chan struct{})
	go t.cleanupLoop()
}

func (t *Tracker) cleanupLoop() {
	defer close(t.cleanupDone)
	for {
		timer := t.clock.NewTimer(t.cleanupInterval)
		select {
		case <-timer.C():
			t.sweep()
		case <-t.stopCleanup:
			timer.Stop()
			return
		}
	}
}

func (t *Tracker) sweep() {
	cutoff := t.clock.Now().Add(-t.maxAge)
	t.entries.Range(func(key, value any) bool {
		entry := value.(*Context)
		if entry.CreatedAt.Before(cutoff) {
			t.entries.Delete(key)
		}
		return true
	})
}

// StopCleanup halts the periodic sweep goroutine, if running.
func (t *Tracker) StopCleanup() {
	if t.stopCleanup == nil {
		return
	}
	close(t.stopCleanup)
	<-t.cleanupDone
}
