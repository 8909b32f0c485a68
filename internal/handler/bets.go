package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stakemesh/platform/internal/bet"
	"github.com/stakemesh/platform/internal/domain"
)

// BetHandler handles bet placement and lifecycle endpoints.
type BetHandler struct {
	bets  *bet.Client
	index *bet.UserIndexClient
}

// NewBetHandler creates a new BetHandler.
func NewBetHandler(bets *bet.Client, index *bet.UserIndexClient) *BetHandler {
	return &BetHandler{bets: bets, index: index}
}

type placeBetRequest struct {
	UserID         string          `json:"userId"`
	EventID        string          `json:"eventId"`
	MarketID       string          `json:"marketId"`
	SelectionID    string          `json:"selectionId"`
	Stake          int64           `json:"stake"`
	Currency       string          `json:"currency"`
	AcceptableOdds decimal.Decimal `json:"acceptableOdds"`
	Type           domain.BetType  `json:"type,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

type placeBetResponse struct {
	BetID           string           `json:"betId"`
	Status          domain.BetStatus `json:"status"`
	PotentialPayout domain.Money     `json:"potentialPayout"`
	ActualOdds      decimal.Decimal  `json:"actualOdds"`
}

// BetIDForKey derives the bet ID from a caller idempotency key: the
// first 16 bytes of SHA-256(key), hex encoded. Repeated POSTs with the
// same key land on the same bet entity and replay its stored result.
func BetIDForKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// PlaceBet handles POST /api/bets.
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}

	betID := uuid.NewString()
	if req.IdempotencyKey != "" {
		betID = BetIDForKey(req.IdempotencyKey)
	}
	if req.Type == "" {
		req.Type = domain.BetSingle
	}
	stake, err := domain.NewMoney(req.Stake, req.Currency)
	if err != nil {
		RespondError(w, err)
		return
	}

	placed, err := h.bets.PlaceBet(r.Context(), bet.PlaceRequest{
		BetID:          betID,
		UserID:         req.UserID,
		EventID:        req.EventID,
		MarketID:       req.MarketID,
		SelectionID:    req.SelectionID,
		Amount:         stake,
		AcceptableOdds: req.AcceptableOdds,
		Type:           req.Type,
	})
	if err != nil {
		RespondError(w, err)
		return
	}

	// The user index is caller-maintained; registration failure leaves
	// the bet reachable by ID, so it is not fatal to the placement.
	_ = h.index.AddBet(r.Context(), placed.UserID, placed.ID, placed.PlacedAt)

	RespondJSON(w, http.StatusCreated, placeBetResponse{
		BetID:           placed.ID,
		Status:          placed.Status,
		PotentialPayout: placed.PotentialPayout(),
		ActualOdds:      placed.Odds,
	})
}

// GetBet handles GET /api/bets/{betId}.
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	betID := chi.URLParam(r, "betId")
	b, err := h.bets.GetBet(r.Context(), betID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, b)
}

// GetBetHistory handles GET /api/bets/{betId}/history.
func (h *BetHandler) GetBetHistory(w http.ResponseWriter, r *http.Request) {
	betID := chi.URLParam(r, "betId")
	history, err := h.bets.GetBetHistory(r.Context(), betID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

// VoidBet handles POST /api/bets/{betId}/void.
func (h *BetHandler) VoidBet(w http.ResponseWriter, r *http.Request) {
	betID := chi.URLParam(r, "betId")
	var req struct {
		Reason string `json:"reason"`
	}
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("malformed request body"))
		return
	}
	b, err := h.bets.VoidBet(r.Context(), betID, req.Reason)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, b)
}

// CashOut handles POST /api/bets/{betId}/cashout.
func (h *BetHandler) CashOut(w http.ResponseWriter, r *http.Request) {
	betID := chi.URLParam(r, "betId")
	result, err := h.bets.CashOut(r.Context(), betID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"payoutAmount": result.PayoutAmount,
		"fees":         result.Fee,
		"cashedOutAt":  result.CashedOutAt,
		"bet":          result.Bet,
	})
}

// GetUserBets handles GET /api/users/{userId}/bets with offset paging.
func (h *BetHandler) GetUserBets(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	page := 1
	if s := r.URL.Query().Get("page"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			page = n
		}
	}
	pageSize := limitParam(r, 20)

	var bets []domain.Bet
	switch r.URL.Query().Get("status") {
	case "active":
		bets, err = h.index.GetActiveBets(r.Context(), userID, 0)
	case "settled":
		bets, err = h.index.GetBetHistory(r.Context(), userID, 0)
	default:
		bets, err = h.index.GetUserBets(r.Context(), userID, 0)
	}
	if err != nil {
		RespondError(w, err)
		return
	}

	total := len(bets)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"bets":        bets[start:end],
		"totalCount":  total,
		"page":        page,
		"hasNextPage": end < total,
	})
}
