package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentmeshio/meshcore/internal/observability"
)

// Retry parameters for AtLeastOnce delivery.
const (
	retryBaseDelay  = 100 * time.Millisecond
	retryFactor     = 2
	retryMaxAttempt = 5
	retryJitter     = 0.2
)

var (
	// ErrStopped is returned by Publish once the bus has been stopped.
	ErrStopped = errors.New("eventbus: bus stopped")
	// ErrSubscriptionNotFound is returned by Unsubscribe for an unknown handle.
	ErrSubscriptionNotFound = errors.New("eventbus: subscription not found")
)

// Subscription is the bus's record of a single subscribe call. Callers
// receive the opaque ID as their subscriptionHandle.
type Subscription struct {
	ID                string
	SubscriberAgentID string
	Pattern           string
	Handler           Handler
	CreatedAt         time.Time

	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
}

// Bus is the concrete event bus: a wildcard-matching trie fronting
// per-subscription delivery workers, plus ordered per-(sender,topic) lanes
// for the Ordered delivery mode.
type Bus struct {
	mu       sync.RWMutex
	root     *trie
	subs     map[string]*Subscription
	stopped  atomic.Bool
	wg       sync.WaitGroup
	logger   *slog.Logger
	metrics  *observability.MetricsManager
	tracer   *observability.TraceManager

	orderedMu sync.Mutex
	ordered   map[string]*orderedLane

	bufferSize int
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithMetrics attaches a MetricsManager; nil leaves metrics disabled.
func WithMetrics(mm *observability.MetricsManager) Option {
	return func(b *Bus) { b.metrics = mm }
}

// WithTracer attaches a TraceManager; nil leaves tracing disabled.
func WithTracer(tm *observability.TraceManager) Option {
	return func(b *Bus) { b.tracer = tm }
}

// WithBufferSize overrides the per-subscription channel buffer (default 256).
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// NewBus constructs a Bus ready to accept subscriptions and publishes.
func NewBus(logger *slog.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		root:       newTrie(),
		subs:       make(map[string]*Subscription),
		ordered:    make(map[string]*orderedLane),
		logger:     logger,
		bufferSize: 256,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for every future event whose topic matches
// pattern, returning the subscriptionHandle needed to Unsubscribe.
func (b *Bus) Subscribe(agentID, pattern string, handler Handler) (string, error) {
	if handler == nil {
		return "", errors.New("eventbus: handler must not be nil")
	}
	if b.stopped.Load() {
		return "", ErrStopped
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		ID:                uuid.NewString(),
		SubscriberAgentID: agentID,
		Pattern:           pattern,
		Handler:           handler,
		CreatedAt:         time.Now(),
		ch:                make(chan Event, b.bufferSize),
		ctx:               ctx,
		cancel:            cancel,
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.root.insert(pattern, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.runSubscription(sub)

	b.logger.Info("eventbus: subscribed", "subscription_id", sub.ID, "agent_id", agentID, "pattern", pattern)
	return sub.ID, nil
}

// Unsubscribe removes a previously created subscription. Idempotent for an
// already-removed handle is not guaranteed; a second call returns
// ErrSubscriptionNotFound.
func (b *Bus) Unsubscribe(handle string) error {
	b.mu.Lock()
	sub, ok := b.subs[handle]
	if !ok {
		b.mu.Unlock()
		return ErrSubscriptionNotFound
	}
	delete(b.subs, handle)
	b.root.remove(sub.Pattern, sub.ID)
	b.mu.Unlock()

	sub.cancel()
	b.logger.Info("eventbus: unsubscribed", "subscription_id", handle)
	return nil
}

// Publish routes event to every subscription whose pattern currently
// matches event.Topic, per the matching snapshot taken at this call. It
// returns once the event is durably enqueued for delivery, not once
// delivery completes.
func (b *Bus) Publish(e Event) error {
	if b.stopped.Load() {
		return ErrStopped
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	matches := b.root.match(e.Topic)
	b.mu.RUnlock()

	ctx := context.Background()
	if b.metrics != nil {
		b.metrics.IncrementEventsPublished(ctx, e.Topic, e.DeliveryOptions.String())
	}

	if len(matches) == 0 {
		return nil
	}

	if e.DeliveryOptions == Ordered {
		b.lane(e.Sender, e.Topic).enqueue(e, matches)
		return nil
	}

	for _, sub := range matches {
		b.deliverAsync(sub, e)
	}
	return nil
}

// deliverAsync hands event off to sub's worker, dropping it under backpressure
// for BestEffort and blocking (bounded by the subscription's own lifetime)
// for AtLeastOnce so at-least-once semantics are not silently violated by a
// full buffer.
func (b *Bus) deliverAsync(sub *Subscription, e Event) {
	switch e.DeliveryOptions {
	case AtLeastOnce:
		select {
		case sub.ch <- e:
		case <-sub.ctx.Done():
		}
	default: // BestEffort
		select {
		case sub.ch <- e:
		default:
			b.logger.Warn("eventbus: dropping event, subscriber overloaded",
				"subscription_id", sub.ID, "topic", e.Topic, "event_id", e.ID)
		}
	}
}

func (b *Bus) runSubscription(sub *Subscription) {
	defer b.wg.Done()
	for {
		select {
		case e := <-sub.ch:
			b.handle(sub, e)
		case <-sub.ctx.Done():
			return
		}
	}
}

func (b *Bus) handle(sub *Subscription, e Event) {
	start := time.Now()

	var span trace.Span
	ctx := context.Background()
	if b.tracer != nil {
		if len(e.TraceHeaders) > 0 {
			ctx = b.tracer.ExtractTraceContext(ctx, e.TraceHeaders)
		}
		ctx, span = b.tracer.StartEventProcessingSpan(ctx, e.ID, e.Topic, e.Sender, sub.SubscriberAgentID)
		defer span.End()
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("eventbus: handler panicked", "subscription_id", sub.ID, "topic", e.Topic, "panic", r)
			if span != nil {
				b.tracer.RecordError(span, fmt.Errorf("handler panic: %v", r))
			}
			if e.DeliveryOptions == AtLeastOnce {
				b.sendToDLQ(e, fmt.Errorf("handler panic: %v", r))
			}
		}
	}()

	var err error
	switch e.DeliveryOptions {
	case AtLeastOnce:
		if err = b.deliverWithRetry(sub, e); err != nil {
			b.sendToDLQ(e, err)
			if b.metrics != nil {
				b.metrics.IncrementEventErrors(ctx, e.Topic, sub.SubscriberAgentID, "delivery_exhausted")
			}
		}
	default:
		if err = sub.Handler(e); err != nil {
			b.logger.Error("eventbus: handler error", "subscription_id", sub.ID, "topic", e.Topic, "error", err)
		}
	}

	if span != nil {
		if err != nil {
			b.tracer.RecordError(span, err)
		} else {
			b.tracer.SetSpanSuccess(span)
		}
	}

	if b.metrics != nil {
		b.metrics.RecordEventProcessingDuration(ctx, e.Topic, sub.SubscriberAgentID, time.Since(start))
		b.metrics.IncrementEventsProcessed(ctx, e.Topic, sub.SubscriberAgentID, err == nil)
	}
}

func (b *Bus) deliverWithRetry(sub *Subscription, e Event) error {
	var lastErr error
	for attempt := 0; attempt < retryMaxAttempt; attempt++ {
		if attempt > 0 {
			delay := backoffWithJitter(attempt)
			select {
			case <-time.After(delay):
			case <-sub.ctx.Done():
				return sub.ctx.Err()
			}
		}
		if err := sub.Handler(e); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("eventbus: delivery exhausted after %d attempts: %w", retryMaxAttempt, lastErr)
}

func backoffWithJitter(attempt int) time.Duration {
	base := float64(retryBaseDelay) * pow(retryFactor, attempt-1)
	jitter := base * retryJitter * (2*rand.Float64() - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func (b *Bus) sendToDLQ(e Event, cause error) {
	dlqPayload := map[string]any{
		"original_event": e,
		"failure_reason": cause.Error(),
		"failed_at":      time.Now(),
	}
	dlq := NewEvent(DLQTopicFor(e.Topic), dlqPayload, "eventbus", e.CorrelationID, BestEffort)
	b.logger.Error("eventbus: event moved to dead letter queue", "original_topic", e.Topic, "event_id", e.ID, "reason", cause)
	_ = b.Publish(dlq)
}

// Stopped reports whether Stop has been called.
func (b *Bus) Stopped() bool {
	return b.stopped.Load()
}

// Stop rejects further publishes at once, cancels every subscription worker
// and every ordered lane, then waits up to grace for workers to return.
// Pending deliveries are not drained: events still buffered for a
// subscription or queued in an ordered lane may be handled before their
// worker sees the cancellation, or dropped.
func (b *Bus) Stop(grace time.Duration) {
	if !b.stopped.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	for _, sub := range b.subs {
		sub.cancel()
	}
	b.mu.Unlock()

	b.orderedMu.Lock()
	for _, lane := range b.ordered {
		lane.stop()
	}
	b.orderedMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		b.logger.Warn("eventbus: stop grace period elapsed with workers still draining")
	}
}
