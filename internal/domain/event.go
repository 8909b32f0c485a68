package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AggregateClass groups aggregates for broker topic routing.
type AggregateClass string

const (
	AggregateBet     AggregateClass = "bet"
	AggregateWallet  AggregateClass = "wallet"
	AggregateEvent   AggregateClass = "event"
	AggregateMarket  AggregateClass = "market"
	AggregateOdds    AggregateClass = "odds"
	AggregateGeneral AggregateClass = "general"
)

// DomainEvent is implemented by every event payload. EventName is the
// wire discriminant (e.g. "BetPlacedEvent"); AggregateClass selects the
// broker topic family.
type DomainEvent interface {
	EventName() string
	AggregateClass() AggregateClass
}

// EventRecord is one persisted row of an aggregate's event stream.
// Version is assigned by the store and is strictly increasing per
// aggregate without gaps; Seq is the global append order used by the
// broker forwarder.
type EventRecord struct {
	Seq         int64           `json:"-"`
	EventID     uuid.UUID       `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	Version     int64           `json:"version"`
	Class       AggregateClass  `json:"aggregate_class"`
	Type        string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// NewEventRecord wraps a domain event for appending to a stream. The
// store fills in Version and Seq.
func NewEventRecord(aggregateID string, ev DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("marshal %s: %w", ev.EventName(), err)
	}
	return EventRecord{
		EventID:     uuid.New(),
		AggregateID: aggregateID,
		Class:       ev.AggregateClass(),
		Type:        ev.EventName(),
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	}, nil
}

// EventKind derives the broker topic suffix from an event type name:
// trailing "Event" stripped, lowercased ("BetPlacedEvent" -> "betplaced").
func EventKind(eventType string) string {
	return strings.ToLower(strings.TrimSuffix(eventType, "Event"))
}
