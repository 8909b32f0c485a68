package sportevent

import (
	"context"
	"sort"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
)

// KindRegistry is a singleton entity listing known sport events, so
// the listing endpoint has something to enumerate without a table
// scan. Always addressed by RegistryKey.
const KindRegistry actor.Kind = "event-registry"

// RegistryKey is the single activation key for the registry.
const RegistryKey = "global"

type registryState struct {
	EventIDs []string `json:"event_ids"`
}

// RegistryEntity is the event listing singleton.
type RegistryEntity struct {
	env    *actor.Env
	events *Client
	state  registryState
}

// NewRegistryFactory returns the registry factory.
func NewRegistryFactory() actor.Factory {
	return func(env *actor.Env) actor.Entity {
		return &RegistryEntity{env: env, events: NewClient(env.Caller)}
	}
}

func (e *RegistryEntity) OnActivate(ctx context.Context) error {
	_, err := e.env.State.Load(ctx, &e.state)
	return err
}

func (e *RegistryEntity) OnDeactivate(ctx context.Context, _ actor.DeactivateReason) error {
	if len(e.state.EventIDs) == 0 {
		return nil
	}
	return e.env.State.Save(ctx, &e.state)
}

type RegisterRequest struct {
	EventID string `json:"event_id"`
}

type ListEventsRequest struct {
	Status domain.EventStatus `json:"status,omitempty"`
	Limit  int                `json:"limit,omitempty"`
}

func (e *RegistryEntity) Handlers() map[string]actor.Handler {
	return map[string]actor.Handler{
		"Register":   actor.Typed(e.register),
		"ListEvents": actor.Typed(e.listEvents),
	}
}

func (e *RegistryEntity) register(ctx context.Context, req RegisterRequest) (struct{}, error) {
	if req.EventID == "" {
		return struct{}{}, domain.ErrValidation("register requires an event_id")
	}
	for _, id := range e.state.EventIDs {
		if id == req.EventID {
			return struct{}{}, nil
		}
	}
	e.state.EventIDs = append(e.state.EventIDs, req.EventID)
	return struct{}{}, e.env.State.Save(ctx, &e.state)
}

// listEvents resolves current snapshots through the event entities,
// newest start time first. Registered IDs whose entity is missing are
// skipped rather than failing the listing.
func (e *RegistryEntity) listEvents(ctx context.Context, req ListEventsRequest) ([]EventView, error) {
	views := make([]EventView, 0, len(e.state.EventIDs))
	for _, id := range e.state.EventIDs {
		view, err := e.events.GetEvent(ctx, id)
		if err != nil {
			if domain.CodeOf(err) == domain.CodeNotFound {
				continue
			}
			return nil, err
		}
		if req.Status != "" && view.Event.Status != req.Status {
			continue
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool {
		return views[i].Event.StartTime.After(views[j].Event.StartTime)
	})
	if req.Limit > 0 && len(views) > req.Limit {
		views = views[:req.Limit]
	}
	return views, nil
}
