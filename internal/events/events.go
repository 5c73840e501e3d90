// Package events fans out change notifications about properties and leads.
// Subscribers are dashboards listening on the server-sent events stream;
// delivery is best-effort and a slow subscriber loses events rather than
// blocking writers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/rentops/internal/types"
)

// Type names a kind of change.
type Type string

const (
	PropertyCreated Type = "property-created"
	PropertyUpdated Type = "property-updated"
	PropertyDeleted Type = "property-deleted"
	LeadUpdated     Type = "lead-updated"
	LeadDeleted     Type = "lead-deleted"
)

// ErrClosed is returned when publishing to or subscribing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// SubscriberBuffer is the per-subscriber channel capacity.
const SubscriberBuffer = 64

// Event is one change notification.
type Event struct {
	Type       Type        `json:"type"`
	PropertyID string      `json:"property_id,omitempty"`
	LeadID     string      `json:"lead_id,omitempty"`
	Phase      types.Phase `json:"phase,omitempty"`
	// Fields lists the field keys touched by a property update.
	Fields []string  `json:"fields,omitempty"`
	Actor  string    `json:"actor,omitempty"`
	At     time.Time `json:"at"`
}

// Bus publishes events to every current subscriber.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a channel of events that is closed when ctx is done
	// or the bus is closed.
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}

// Encode serializes an event for transport.
func Encode(ev Event) ([]byte, error) {
	if ev.Type == "" {
		return nil, errors.New("event type is required")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

// Decode parses an event produced by Encode.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errors.New("decode event: missing type")
	}
	return ev, nil
}

func stamp(ev Event) Event {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev
}
