package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/settlement"
)

// SettlementHandler exposes the manual settlement surface: trigger one
// saga, run a batch, or inspect a saga's stored result. The usual
// trigger path is the broker consumer; these endpoints exist for
// operators re-driving a settlement.
type SettlementHandler struct {
	sagas       *settlement.Client
	coordinator *settlement.Coordinator
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(sagas *settlement.Client, coordinator *settlement.Coordinator) *SettlementHandler {
	return &SettlementHandler{sagas: sagas, coordinator: coordinator}
}

type settleRequest struct {
	EventID            string   `json:"eventId"`
	MarketID           string   `json:"marketId"`
	WinningSelectionID string   `json:"winningSelectionId"`
	Voided             bool     `json:"voided,omitempty"`
	BetIDs             []string `json:"betIds,omitempty"`
}

// Settle handles POST /api/admin/settlements.
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	if err := domain.ValidateEntityKey(req.MarketID); err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	sagaID := settlement.SagaIDForMarket(req.MarketID)
	result, err := h.sagas.Execute(r.Context(), sagaID, settlement.ExecuteRequest{
		EventID:            req.EventID,
		MarketID:           req.MarketID,
		WinningSelectionID: req.WinningSelectionID,
		Voided:             req.Voided,
		BetIDs:             req.BetIDs,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

type batchSettleRequest struct {
	Requests []settlement.Request `json:"requests"`
}

// SettleBatch handles POST /api/admin/settlements/batch.
func (h *SettlementHandler) SettleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchSettleRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	if len(req.Requests) == 0 {
		RespondError(w, domain.ErrValidation("batch requires at least one request"))
		return
	}
	for i := range req.Requests {
		if req.Requests[i].SagaID == "" {
			req.Requests[i].SagaID = settlement.SagaIDForMarket(req.Requests[i].MarketID)
		}
	}
	result := h.coordinator.Process(r.Context(), req.Requests)
	RespondJSON(w, http.StatusOK, result)
}

// GetSaga handles GET /api/admin/settlements/{sagaId}.
func (h *SettlementHandler) GetSaga(w http.ResponseWriter, r *http.Request) {
	sagaID := chi.URLParam(r, "sagaId")
	result, err := h.sagas.GetResult(r.Context(), sagaID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
