// Package sportevent is the fixture lifecycle entity: a sporting event
// and the betting markets it carries. Settling a market emits the
// event that triggers the settlement saga.
package sportevent

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/eventlog"
	"github.com/stakemesh/platform/internal/market"
)

// KindEvent is the entity kind; the key is the event ID.
const KindEvent actor.Kind = "sportevent"

// AggregateID returns the event-stream aggregate for a sport event.
func AggregateID(eventID string) string { return "event-" + eventID }

// MarketAggregateID returns the event-stream aggregate for a market.
// Market events live on their own streams so the broker preserves
// per-market order for the settlement consumer.
func MarketAggregateID(marketID string) string { return "market-" + marketID }

type state struct {
	Exists  bool                      `json:"exists"`
	Event   domain.SportEvent         `json:"event"`
	Markets map[string]*domain.Market `json:"markets"`
}

// Entity is one activated sport event.
type Entity struct {
	env      *actor.Env
	log      *eventlog.Log
	markets  *market.Client
	registry *RegistryClient
	state    state
	now      func() time.Time
}

// NewFactory returns the sport event factory for runtime registration.
func NewFactory(log *eventlog.Log) actor.Factory {
	return func(env *actor.Env) actor.Entity {
		return &Entity{
			env:      env,
			log:      log,
			markets:  market.NewClient(env.Caller),
			registry: NewRegistryClient(env.Caller),
			now:      func() time.Time { return time.Now().UTC() },
		}
	}
}

func (e *Entity) OnActivate(ctx context.Context) error {
	_, err := e.env.State.Load(ctx, &e.state)
	return err
}

func (e *Entity) OnDeactivate(ctx context.Context, _ actor.DeactivateReason) error {
	if !e.state.Exists {
		return nil
	}
	return e.env.State.Save(ctx, &e.state)
}

// --- Requests and results ---

type CreateRequest struct {
	EventID      string    `json:"event_id"`
	Name         string    `json:"name"`
	Sport        string    `json:"sport"`
	Competition  string    `json:"competition"`
	StartTime    time.Time `json:"start_time"`
	Participants []string  `json:"participants"`
}

type UpdateStatusRequest struct {
	Status domain.EventStatus `json:"status"`
	Reason string             `json:"reason,omitempty"`
}

type AddMarketRequest struct {
	MarketID    string                     `json:"market_id"`
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Outcomes    map[string]decimal.Decimal `json:"outcomes"`
}

type UpdateMarketStatusRequest struct {
	MarketID string              `json:"market_id"`
	Status   domain.MarketStatus `json:"status"`
	Reason   string              `json:"reason,omitempty"`
}

type SetMarketResultRequest struct {
	MarketID       string `json:"market_id"`
	WinningOutcome string `json:"winning_outcome"`
	Voided         bool   `json:"voided"`
}

// EventView is the query shape: the fixture plus its markets.
type EventView struct {
	Event   domain.SportEvent `json:"event"`
	Markets []domain.Market   `json:"markets"`
}

func (e *Entity) Handlers() map[string]actor.Handler {
	return map[string]actor.Handler{
		"CreateEvent":        actor.Typed(e.createEvent),
		"GetEvent":           actor.Typed(e.getEvent),
		"UpdateEventStatus":  actor.Typed(e.updateEventStatus),
		"AddMarket":          actor.Typed(e.addMarket),
		"UpdateMarketStatus": actor.Typed(e.updateMarketStatus),
		"SetMarketResult":    actor.Typed(e.setMarketResult),
	}
}

// --- Operations ---

func (e *Entity) createEvent(ctx context.Context, req CreateRequest) (EventView, error) {
	if e.state.Exists {
		return EventView{}, domain.ErrConflict("event " + e.env.Key + " already exists")
	}
	if req.EventID != e.env.Key {
		return EventView{}, domain.ErrValidation("event_id does not match entity key")
	}
	if req.Name == "" || req.Sport == "" {
		return EventView{}, domain.ErrValidation("createEvent requires name and sport")
	}
	if req.StartTime.IsZero() {
		return EventView{}, domain.ErrValidation("createEvent requires a start_time")
	}

	now := e.now()
	e.state = state{
		Exists:  true,
		Markets: make(map[string]*domain.Market),
		Event: domain.SportEvent{
			ID:           req.EventID,
			Name:         req.Name,
			Sport:        req.Sport,
			Competition:  req.Competition,
			StartTime:    req.StartTime,
			Status:       domain.EventScheduled,
			Participants: req.Participants,
			CreatedAt:    now,
			LastModified: now,
		},
	}

	if _, err := e.log.Append(ctx, AggregateID(req.EventID), domain.SportEventCreatedEvent{
		EventID:      req.EventID,
		Name:         req.Name,
		Sport:        req.Sport,
		Competition:  req.Competition,
		StartTime:    req.StartTime,
		Participants: req.Participants,
	}); err != nil {
		return EventView{}, domain.ErrUnavailable("append event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return EventView{}, err
	}
	if err := e.registry.Register(ctx, req.EventID); err != nil {
		e.env.Logger.Warn("failed to register event in registry", "event_id", req.EventID, "error", err)
	}
	return e.view(), nil
}

func (e *Entity) getEvent(_ context.Context, _ struct{}) (EventView, error) {
	if !e.state.Exists {
		return EventView{}, domain.ErrNotFound("event", e.env.Key)
	}
	return e.view(), nil
}

func (e *Entity) updateEventStatus(ctx context.Context, req UpdateStatusRequest) (EventView, error) {
	if !e.state.Exists {
		return EventView{}, domain.ErrNotFound("event", e.env.Key)
	}
	if req.Status == e.state.Event.Status {
		return e.view(), nil
	}
	previous := e.state.Event.Status
	if !previous.CanTransitionTo(req.Status) {
		return EventView{}, domain.ErrInvalidTransition(string(previous), string(req.Status))
	}

	now := e.now()
	e.state.Event.Status = req.Status
	e.state.Event.LastModified = now
	if req.Status == domain.EventCompleted {
		e.state.Event.EndTime = &now
	}

	if _, err := e.log.Append(ctx, AggregateID(e.env.Key), domain.EventStatusChangedEvent{
		EventID:  e.env.Key,
		Previous: previous,
		New:      req.Status,
		Reason:   req.Reason,
	}); err != nil {
		return EventView{}, domain.ErrUnavailable("append event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return EventView{}, err
	}
	return e.view(), nil
}

func (e *Entity) addMarket(ctx context.Context, req AddMarketRequest) (domain.Market, error) {
	if !e.state.Exists {
		return domain.Market{}, domain.ErrNotFound("event", e.env.Key)
	}
	if _, exists := e.state.Markets[req.MarketID]; exists {
		return domain.Market{}, domain.ErrConflict("market " + req.MarketID + " already exists on event " + e.env.Key)
	}
	if err := domain.ValidateEntityKey(req.MarketID); err != nil {
		return domain.Market{}, domain.ErrValidation(err.Error())
	}
	if len(req.Outcomes) == 0 {
		return domain.Market{}, domain.ErrValidation("addMarket requires at least one outcome")
	}
	for selection, o := range req.Outcomes {
		if err := domain.ValidateOddsValue(o); err != nil {
			return domain.Market{}, domain.ErrValidation("outcome " + selection + ": " + err.Error())
		}
	}

	m := &domain.Market{
		ID:          req.MarketID,
		EventID:     e.env.Key,
		Name:        req.Name,
		Description: req.Description,
		Status:      domain.MarketOpen,
		Outcomes:    req.Outcomes,
	}
	e.state.Markets[req.MarketID] = m
	e.state.Event.LastModified = e.now()

	// Seed the live odds entity with the opening prices.
	if _, err := e.markets.InitializeMarket(ctx, req.MarketID, req.Outcomes, "opening"); err != nil {
		if domain.CodeOf(err) != domain.CodeConflict {
			delete(e.state.Markets, req.MarketID)
			return domain.Market{}, err
		}
	}

	if _, err := e.log.Append(ctx, MarketAggregateID(req.MarketID), domain.MarketAddedEvent{
		EventID:  e.env.Key,
		MarketID: req.MarketID,
		Name:     req.Name,
		Outcomes: req.Outcomes,
	}); err != nil {
		return domain.Market{}, domain.ErrUnavailable("append event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return domain.Market{}, err
	}
	return *m, nil
}

func (e *Entity) updateMarketStatus(ctx context.Context, req UpdateMarketStatusRequest) (domain.Market, error) {
	if !e.state.Exists {
		return domain.Market{}, domain.ErrNotFound("event", e.env.Key)
	}
	m, exists := e.state.Markets[req.MarketID]
	if !exists {
		return domain.Market{}, domain.ErrNotFound("market", req.MarketID)
	}
	if req.Status == m.Status {
		return *m, nil
	}
	previous := m.Status
	if !previous.CanTransitionTo(req.Status) {
		return domain.Market{}, domain.ErrInvalidTransition(string(previous), string(req.Status))
	}

	m.Status = req.Status
	e.state.Event.LastModified = e.now()

	if _, err := e.log.Append(ctx, MarketAggregateID(req.MarketID), domain.MarketStatusChangedEvent{
		EventID:  e.env.Key,
		MarketID: req.MarketID,
		Previous: previous,
		New:      req.Status,
		Reason:   req.Reason,
	}); err != nil {
		return domain.Market{}, domain.ErrUnavailable("append event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return domain.Market{}, err
	}
	return *m, nil
}

// setMarketResult closes the book: the market moves to settled and the
// marketSettled event goes on the stream. The broker forwarder carries
// it to the settlement consumer, which starts the saga.
func (e *Entity) setMarketResult(ctx context.Context, req SetMarketResultRequest) (domain.Market, error) {
	if !e.state.Exists {
		return domain.Market{}, domain.ErrNotFound("event", e.env.Key)
	}
	m, exists := e.state.Markets[req.MarketID]
	if !exists {
		return domain.Market{}, domain.ErrNotFound("market", req.MarketID)
	}
	if m.Status == domain.MarketSettled {
		if m.WinningOutcome == req.WinningOutcome {
			return *m, nil
		}
		return domain.Market{}, domain.ErrConflict("market " + req.MarketID + " already settled with a different outcome")
	}
	if !m.Status.CanTransitionTo(domain.MarketSettled) {
		return domain.Market{}, domain.ErrInvalidTransition(string(m.Status), string(domain.MarketSettled))
	}
	if !req.Voided {
		if _, known := m.Outcomes[req.WinningOutcome]; !known {
			return domain.Market{}, domain.ErrNotFound("outcome", req.WinningOutcome)
		}
	}

	previous := m.Status
	now := e.now()
	m.Status = domain.MarketSettled
	m.WinningOutcome = req.WinningOutcome
	e.state.Event.LastModified = now

	if _, err := e.log.Append(ctx, MarketAggregateID(req.MarketID),
		domain.MarketStatusChangedEvent{
			EventID:  e.env.Key,
			MarketID: req.MarketID,
			Previous: previous,
			New:      domain.MarketSettled,
		},
		domain.MarketSettledEvent{
			EventID:        e.env.Key,
			MarketID:       req.MarketID,
			WinningOutcome: req.WinningOutcome,
			Voided:         req.Voided,
			SettledAt:      now,
		},
	); err != nil {
		return domain.Market{}, domain.ErrUnavailable("append event", err)
	}
	if err := e.env.State.Save(ctx, &e.state); err != nil {
		return domain.Market{}, err
	}
	return *m, nil
}

func (e *Entity) view() EventView {
	markets := make([]domain.Market, 0, len(e.state.Markets))
	for _, m := range e.state.Markets {
		markets = append(markets, *m)
	}
	return EventView{Event: e.state.Event, Markets: markets}
}
