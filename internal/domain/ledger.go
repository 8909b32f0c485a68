package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType enumerates all wallet transaction types.
type TransactionType string

const (
	TxDeposit            TransactionType = "deposit"
	TxWithdrawal         TransactionType = "withdrawal"
	TxBetPlacement       TransactionType = "bet_placement"
	TxBetWin             TransactionType = "bet_win"
	TxBetLoss            TransactionType = "bet_loss"
	TxBetRefund          TransactionType = "bet_refund"
	TxReservation        TransactionType = "reservation"
	TxReservationCommit  TransactionType = "reservation_commit"
	TxReservationRelease TransactionType = "reservation_release"
	TxBetPayout          TransactionType = "bet_payout"
	TxPayoutReversal     TransactionType = "payout_reversal"
)

// TransactionStatus is the lifecycle status of a wallet transaction.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

// EntryKind discriminates the two sides of a ledger posting.
type EntryKind string

const (
	EntryDebit  EntryKind = "debit"
	EntryCredit EntryKind = "credit"
)

// LedgerEntry is one side of a double-entry posting. Immutable once
// written; corrections are made by compensating transactions.
type LedgerEntry struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Amount        Money     `json:"amount"`
	Kind          EntryKind `json:"kind"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
}

// WalletTransaction is one money movement on a wallet, successful or not.
// ReferenceID carries the caller-supplied idempotency reference.
type WalletTransaction struct {
	ID           uuid.UUID         `json:"id"`
	UserID       string            `json:"user_id"`
	Type         TransactionType   `json:"type"`
	Amount       Money             `json:"amount"`
	Status       TransactionStatus `json:"status"`
	ReferenceID  string            `json:"reference_id,omitempty"`
	BalanceAfter Money             `json:"balance_after"`
	FailureCode  string            `json:"failure_code,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// NewPosting builds the balanced debit/credit pair for a transaction.
// debitDesc describes the account money leaves, creditDesc the account it
// enters; both entries carry the same amount so the posting sums to zero.
func NewPosting(txID uuid.UUID, amount Money, debitDesc, creditDesc string, at time.Time) (LedgerEntry, LedgerEntry) {
	debit := LedgerEntry{
		ID:            uuid.New(),
		TransactionID: txID,
		Amount:        amount,
		Kind:          EntryDebit,
		Description:   debitDesc,
		Timestamp:     at,
	}
	credit := LedgerEntry{
		ID:            uuid.New(),
		TransactionID: txID,
		Amount:        amount,
		Kind:          EntryCredit,
		Description:   creditDesc,
		Timestamp:     at,
	}
	return debit, credit
}

// CheckPostingBalance verifies that debits equal credits per transaction.
// Returns ErrInvariant naming the first unbalanced transaction.
func CheckPostingBalance(entries []LedgerEntry) error {
	type sums struct{ debit, credit int64 }
	perTx := make(map[uuid.UUID]*sums)
	for _, e := range entries {
		s, ok := perTx[e.TransactionID]
		if !ok {
			s = &sums{}
			perTx[e.TransactionID] = s
		}
		switch e.Kind {
		case EntryDebit:
			s.debit += e.Amount.Amount
		case EntryCredit:
			s.credit += e.Amount.Amount
		}
	}
	for txID, s := range perTx {
		if s.debit != s.credit {
			return ErrInvariant("ledger entries for transaction " + txID.String() + " do not balance")
		}
	}
	return nil
}
