package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/sportevent"
)

// EventHandler handles the event and market lifecycle endpoints.
type EventHandler struct {
	events   *sportevent.Client
	registry *sportevent.RegistryClient
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(events *sportevent.Client, registry *sportevent.RegistryClient) *EventHandler {
	return &EventHandler{events: events, registry: registry}
}

func eventIDFromPath(r *http.Request) (string, error) {
	eventID := chi.URLParam(r, "eventId")
	if err := domain.ValidateEntityKey(eventID); err != nil {
		return "", domain.ErrValidation(err.Error())
	}
	return eventID, nil
}

type createEventRequest struct {
	EventID      string    `json:"eventId"`
	Name         string    `json:"name"`
	Sport        string    `json:"sport"`
	Competition  string    `json:"competition,omitempty"`
	StartTime    time.Time `json:"startTime"`
	Participants []string  `json:"participants,omitempty"`
}

// CreateEvent handles POST /api/events.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	if err := domain.ValidateEntityKey(req.EventID); err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}
	view, err := h.events.CreateEvent(r.Context(), sportevent.CreateRequest{
		EventID:      req.EventID,
		Name:         req.Name,
		Sport:        req.Sport,
		Competition:  req.Competition,
		StartTime:    req.StartTime,
		Participants: req.Participants,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, view)
}

// ListEvents handles GET /api/events.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	status := domain.EventStatus(r.URL.Query().Get("status"))
	views, err := h.registry.ListEvents(r.Context(), status, limitParam(r, 100))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"events": views})
}

// GetEvent handles GET /api/events/{eventId}.
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	view, err := h.events.GetEvent(r.Context(), eventID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// UpdateEventStatus handles PUT /api/events/{eventId}/status.
func (h *EventHandler) UpdateEventStatus(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req struct {
		Status domain.EventStatus `json:"status"`
		Reason string             `json:"reason,omitempty"`
	}
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	view, err := h.events.UpdateEventStatus(r.Context(), eventID, req.Status, req.Reason)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

type addMarketRequest struct {
	MarketID    string                     `json:"marketId"`
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Outcomes    map[string]decimal.Decimal `json:"outcomes"`
}

// AddMarket handles POST /api/events/{eventId}/markets.
func (h *EventHandler) AddMarket(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req addMarketRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	m, err := h.events.AddMarket(r.Context(), eventID, sportevent.AddMarketRequest{
		MarketID:    req.MarketID,
		Name:        req.Name,
		Description: req.Description,
		Outcomes:    req.Outcomes,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, m)
}

// UpdateMarketStatus handles PUT /api/events/{eventId}/markets/{marketId}/status.
func (h *EventHandler) UpdateMarketStatus(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req struct {
		Status domain.MarketStatus `json:"status"`
		Reason string              `json:"reason,omitempty"`
	}
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	m, err := h.events.UpdateMarketStatus(r.Context(), eventID, sportevent.UpdateMarketStatusRequest{
		MarketID: chi.URLParam(r, "marketId"),
		Status:   req.Status,
		Reason:   req.Reason,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, m)
}

// SetMarketResult handles POST /api/events/{eventId}/markets/{marketId}/result.
func (h *EventHandler) SetMarketResult(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req struct {
		WinningOutcome string `json:"winningOutcome"`
		Voided         bool   `json:"voided,omitempty"`
	}
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	m, err := h.events.SetMarketResult(r.Context(), eventID, sportevent.SetMarketResultRequest{
		MarketID:       chi.URLParam(r, "marketId"),
		WinningOutcome: req.WinningOutcome,
		Voided:         req.Voided,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, m)
}
