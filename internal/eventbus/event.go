// Package eventbus implements a topic-based publish/subscribe fabric:
// wildcard topic matching over a segment trie, three delivery
// guarantees, ordering per (sender, topic) pair, and a dead-letter topic for
// deliveries that exhaust retry.
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryMode selects the guarantee a subscription receives its events
// under.
type DeliveryMode int

const (
	// BestEffort fires handlers without retry; overloaded subscribers may
	// drop events.
	BestEffort DeliveryMode = iota
	// AtLeastOnce retries a failing handler with exponential backoff;
	// handlers must be idempotent since duplicate delivery is possible.
	AtLeastOnce
	// Ordered guarantees publisher order per (sender, topic) pair and never
	// invokes a subscription's handler concurrently with itself for events
	// of the same pair. Each pair has its own lane, so a subscription that
	// matches several pairs can have its handler invoked concurrently by
	// different lanes.
	Ordered
)

func (m DeliveryMode) String() string {
	switch m {
	case BestEffort:
		return "BEST_EFFORT"
	case AtLeastOnce:
		return "AT_LEAST_ONCE"
	case Ordered:
		return "ORDERED"
	default:
		return "UNKNOWN"
	}
}

// Event is an immutable record published to the bus. Once constructed by
// NewEvent its fields must not be mutated by callers.
type Event struct {
	ID              string
	Topic           string
	Payload         any
	Sender          string
	CorrelationID   string
	Timestamp       time.Time
	DeliveryOptions DeliveryMode

	// TraceHeaders carries an injected trace context across the goroutine
	// boundary between Publish and a subscription's delivery worker, where
	// Go's context.Context does not otherwise flow. Nil when tracing is
	// disabled or the publisher set none.
	TraceHeaders map[string]string
}

// NewEvent constructs an Event, assigning an ID and timestamp. If
// correlationID is empty the event is not part of a request/response
// overlay.
func NewEvent(topic string, payload any, sender, correlationID string, mode DeliveryMode) Event {
	return Event{
		ID:              uuid.NewString(),
		Topic:           topic,
		Payload:         payload,
		Sender:          sender,
		CorrelationID:   correlationID,
		Timestamp:       time.Now(),
		DeliveryOptions: mode,
	}
}

// Handler processes a delivered event. A returned error only matters under
// AtLeastOnce, where it triggers a retry; under BestEffort and Ordered it is
// logged and otherwise ignored by the bus.
type Handler func(e Event) error

// DLQTopicFor returns the dead-letter topic an originalTopic's permanently
// failed deliveries are republished under.
func DLQTopicFor(originalTopic string) string {
	return "dlq." + originalTopic
}
