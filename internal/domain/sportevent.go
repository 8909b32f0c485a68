package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus is the lifecycle state of a sporting event.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventLive      EventStatus = "live"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
	EventSuspended EventStatus = "suspended"
)

var eventTransitions = map[EventStatus][]EventStatus{
	EventScheduled: {EventLive, EventCancelled, EventSuspended},
	EventLive:      {EventCompleted, EventSuspended},
	EventSuspended: {EventLive, EventCancelled},
}

// CanTransitionTo reports whether the event lifecycle allows s -> next.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	for _, allowed := range eventTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SportEvent is a scheduled sporting fixture that carries markets.
type SportEvent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Sport        string      `json:"sport"`
	Competition  string      `json:"competition"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      *time.Time  `json:"end_time,omitempty"`
	Status       EventStatus `json:"status"`
	Participants []string    `json:"participants"`
	CreatedAt    time.Time   `json:"created_at"`
	LastModified time.Time   `json:"last_modified"`
}

// MarketStatus is the lifecycle state of a betting market.
type MarketStatus string

const (
	MarketOpen      MarketStatus = "open"
	MarketActive    MarketStatus = "active"
	MarketSuspended MarketStatus = "suspended"
	MarketClosed    MarketStatus = "closed"
	MarketSettled   MarketStatus = "settled"
)

var marketTransitions = map[MarketStatus][]MarketStatus{
	MarketOpen:      {MarketActive, MarketSuspended, MarketClosed},
	MarketActive:    {MarketSuspended, MarketClosed, MarketSettled},
	MarketSuspended: {MarketActive, MarketClosed},
	MarketClosed:    {MarketSettled},
}

// CanTransitionTo reports whether the market lifecycle allows s -> next.
func (s MarketStatus) CanTransitionTo(next MarketStatus) bool {
	for _, allowed := range marketTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Market is a betting market within an event. Outcomes maps selection ID
// to its opening decimal odds; live odds are owned by the odds entity.
type Market struct {
	ID             string                     `json:"id"`
	EventID        string                     `json:"event_id"`
	Name           string                     `json:"name"`
	Description    string                     `json:"description,omitempty"`
	Status         MarketStatus               `json:"status"`
	Outcomes       map[string]decimal.Decimal `json:"outcomes"`
	WinningOutcome string                     `json:"winning_outcome,omitempty"`
}
