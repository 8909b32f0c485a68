package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/market"
)

// OddsHandler handles the live-odds surface of a market.
type OddsHandler struct {
	markets *market.Client
}

// NewOddsHandler creates a new OddsHandler.
func NewOddsHandler(markets *market.Client) *OddsHandler {
	return &OddsHandler{markets: markets}
}

func marketIDFromPath(r *http.Request) (string, error) {
	marketID := chi.URLParam(r, "marketId")
	if err := domain.ValidateEntityKey(marketID); err != nil {
		return "", domain.ErrValidation(err.Error())
	}
	return marketID, nil
}

// GetOdds handles GET /api/odds/{marketId}.
func (h *OddsHandler) GetOdds(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	snapshot, err := h.markets.GetCurrentOdds(r.Context(), marketID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snapshot)
}

type updateOddsRequest struct {
	Selections map[string]decimal.Decimal `json:"selections"`
	Source     string                     `json:"source,omitempty"`
	Reason     string                     `json:"reason,omitempty"`
}

// UpdateOdds handles PUT /api/odds/{marketId}.
func (h *OddsHandler) UpdateOdds(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req updateOddsRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	snapshot, err := h.markets.UpdateOdds(r.Context(), marketID, market.UpdateRequest{
		SelectionOdds: req.Selections,
		Source:        req.Source,
		Reason:        req.Reason,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snapshot)
}

type suspendRequest struct {
	Reason string `json:"reason"`
	By     string `json:"by,omitempty"`
}

// Suspend handles POST /api/odds/{marketId}/suspend.
func (h *OddsHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req suspendRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	snapshot, err := h.markets.SuspendOdds(r.Context(), marketID, req.Reason, req.By)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snapshot)
}

// Resume handles POST /api/odds/{marketId}/resume.
func (h *OddsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req suspendRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	snapshot, err := h.markets.ResumeOdds(r.Context(), marketID, req.Reason, req.By)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snapshot)
}

type lockRequest struct {
	BetID       string `json:"betId"`
	SelectionID string `json:"selectionId"`
}

// Lock handles POST /api/odds/{marketId}/lock.
func (h *OddsHandler) Lock(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req lockRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	result, err := h.markets.LockOddsForBet(r.Context(), marketID, req.BetID, req.SelectionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

// Unlock handles POST /api/odds/{marketId}/unlock.
func (h *OddsHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req lockRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	result, err := h.markets.UnlockOdds(r.Context(), marketID, req.BetID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

// GetVolatility handles GET /api/odds/{marketId}/volatility.
func (h *OddsHandler) GetVolatility(w http.ResponseWriter, r *http.Request) {
	marketID, err := marketIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	result, err := h.markets.GetVolatilityScore(r.Context(), marketID, 0)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
