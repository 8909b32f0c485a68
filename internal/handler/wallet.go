package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/wallet"
)

// WalletHandler handles wallet balance and money-movement endpoints.
type WalletHandler struct {
	wallets *wallet.Client
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(wallets *wallet.Client) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// moveRequest is the body of deposit and withdraw: a major-or-minor
// agnostic amount in minor units plus the caller's idempotency
// reference.
type moveRequest struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	TransactionID string `json:"transactionId"`
}

type moveResponse struct {
	Transaction domain.WalletTransaction `json:"transaction"`
	NewBalance  domain.Money             `json:"newBalance"`
	Available   domain.Money             `json:"availableBalance"`
	Replayed    bool                     `json:"replayed,omitempty"`
}

// Deposit handles POST /api/wallet/{userId}/deposit.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, req, err := h.decodeMove(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	amount, err := domain.NewMoney(req.Amount, req.Currency)
	if err != nil {
		RespondError(w, err)
		return
	}
	result, err := h.wallets.Deposit(r.Context(), userID, amount, req.TransactionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, moveResponse{
		Transaction: result.Transaction,
		NewBalance:  result.Balance,
		Available:   result.Available,
		Replayed:    result.Replayed,
	})
}

// Withdraw handles POST /api/wallet/{userId}/withdraw.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, req, err := h.decodeMove(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	amount, err := domain.NewMoney(req.Amount, req.Currency)
	if err != nil {
		RespondError(w, err)
		return
	}
	result, err := h.wallets.Withdraw(r.Context(), userID, amount, req.TransactionID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, moveResponse{
		Transaction: result.Transaction,
		NewBalance:  result.Balance,
		Available:   result.Available,
		Replayed:    result.Replayed,
	})
}

// GetBalance handles GET /api/wallet/{userId}/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	result, err := h.wallets.GetBalance(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"amount":          result.Balance.Amount,
		"currency":        result.Balance.Currency,
		"availableAmount": result.Available.Amount,
		"reservedAmount":  result.Reserved.Amount,
	})
}

// GetTransactions handles GET /api/wallet/{userId}/transactions.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	txs, err := h.wallets.GetTransactionHistory(r.Context(), userID, limitParam(r, 50))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// GetLedger handles GET /api/wallet/{userId}/ledger.
func (h *WalletHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	entries, err := h.wallets.GetLedgerEntries(r.Context(), userID, limitParam(r, 50))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *WalletHandler) decodeMove(r *http.Request) (string, moveRequest, error) {
	userID, err := userIDFromPath(r)
	if err != nil {
		return "", moveRequest{}, err
	}
	var req moveRequest
	if err := DecodeJSON(r, &req); err != nil {
		return "", moveRequest{}, domain.ErrValidation("malformed request body")
	}
	if req.TransactionID == "" {
		return "", moveRequest{}, domain.ErrValidation("transactionId is required")
	}
	return userID, req, nil
}

func userIDFromPath(r *http.Request) (string, error) {
	userID := chi.URLParam(r, "userId")
	if err := domain.ValidateEntityKey(userID); err != nil {
		return "", domain.ErrValidation(err.Error())
	}
	return userID, nil
}

func limitParam(r *http.Request, fallback int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return fallback
}
