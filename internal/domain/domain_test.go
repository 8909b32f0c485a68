package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Money Tests ---

func TestNewMoney(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		currency string
		wantErr  bool
	}{
		{"valid amount", 10050, "USD", false},
		{"zero amount", 0, "EUR", false},
		{"large amount", 999_999_999_99, "GBP", false},
		{"negative amount", -1, "USD", true},
		{"lowercase currency", 100, "usd", true},
		{"bad currency length", 100, "USDT", true},
		{"empty currency", 100, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMoney(tt.amount, tt.currency)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.amount, m.Amount)
			assert.Equal(t, tt.currency, m.Currency)
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	usd := func(cents int64) Money { return Money{Amount: cents, Currency: "USD"} }

	t.Run("add same currency", func(t *testing.T) {
		sum, err := usd(100_00).Add(usd(21_00))
		require.NoError(t, err)
		assert.Equal(t, usd(121_00), sum)
	})

	t.Run("add currency mismatch", func(t *testing.T) {
		_, err := usd(100).Add(Money{Amount: 100, Currency: "EUR"})
		require.Error(t, err)
		var ae *AppError
		require.True(t, errors.As(err, &ae))
		assert.Equal(t, CodeCurrencyMismatch, ae.Code)
	})

	t.Run("subtract", func(t *testing.T) {
		diff, err := usd(100_00).Subtract(usd(30_00))
		require.NoError(t, err)
		assert.Equal(t, usd(70_00), diff)
	})

	t.Run("subtract below zero", func(t *testing.T) {
		_, err := usd(10_00).Subtract(usd(30_00))
		require.Error(t, err)
	})

	t.Run("compare", func(t *testing.T) {
		less, err := usd(100).Compare(usd(200))
		require.NoError(t, err)
		assert.Equal(t, -1, less)

		eq, err := usd(200).Compare(usd(200))
		require.NoError(t, err)
		assert.Equal(t, 0, eq)

		more, err := usd(300).Compare(usd(200))
		require.NoError(t, err)
		assert.Equal(t, 1, more)
	})

	t.Run("mul round for payout", func(t *testing.T) {
		// 100.00 USD at odds 2.10 -> 210.00 USD
		payout := usd(100_00).MulRound(decimal.NewFromFloat(2.10))
		assert.Equal(t, usd(210_00), payout)
	})

	t.Run("mul round half away from zero", func(t *testing.T) {
		// 33 cents * 1.505 = 49.665 -> 50
		payout := usd(33).MulRound(decimal.NewFromFloat(1.505))
		assert.Equal(t, int64(50), payout.Amount)
	})
}

func TestMoneyFromDecimal(t *testing.T) {
	m, err := MoneyFromDecimal(decimal.RequireFromString("100.50"), "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(10050), m.Amount)

	back := m.Decimal()
	assert.True(t, back.Equal(decimal.RequireFromString("100.50")), "got %s", back)

	assert.Equal(t, "100.50 USD", m.String())
}

// --- Error Tests ---

func TestAppErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrInternal("store write failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "INTERNAL_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", ErrTimeout("wallet.deposit"), true},
		{"unavailable", ErrUnavailable("node lost", nil), true},
		{"validation", ErrValidation("bad amount"), false},
		{"insufficient funds", ErrInsufficientFunds(Money{Amount: 100, Currency: "USD"}, Zero("USD")), false},
		{"invalid transition", ErrInvalidTransition("won", "void"), false},
		{"invariant", ErrInvariant("ledger out of balance"), false},
		{"odds changed", ErrOddsChanged("home", "1.95", "1.90"), false},
		{"foreign error treated transient", errors.New("broken pipe"), true},
		{"wrapped timeout", &AppError{Code: CodeInternal, Message: "x", Status: 500, Cause: ErrTimeout("y")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeOddsChanged, CodeOf(ErrOddsChanged("x", "2.00", "1.90")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("anything")))
}

// --- Ledger Tests ---

func TestNewPostingBalances(t *testing.T) {
	txID := uuid.New()
	amount := Money{Amount: 50_00, Currency: "USD"}
	debit, credit := NewPosting(txID, amount, "user cash", "house float", time.Now())

	assert.Equal(t, txID, debit.TransactionID)
	assert.Equal(t, txID, credit.TransactionID)
	assert.Equal(t, EntryDebit, debit.Kind)
	assert.Equal(t, EntryCredit, credit.Kind)
	assert.Equal(t, amount, debit.Amount)
	assert.Equal(t, amount, credit.Amount)

	require.NoError(t, CheckPostingBalance([]LedgerEntry{debit, credit}))
}

func TestCheckPostingBalanceDetectsImbalance(t *testing.T) {
	txID := uuid.New()
	entries := []LedgerEntry{
		{ID: uuid.New(), TransactionID: txID, Kind: EntryDebit, Amount: Money{Amount: 100, Currency: "USD"}},
		{ID: uuid.New(), TransactionID: txID, Kind: EntryCredit, Amount: Money{Amount: 90, Currency: "USD"}},
	}
	err := CheckPostingBalance(entries)
	require.Error(t, err)
	assert.Equal(t, CodeInvariant, CodeOf(err))
}

// --- Bet Tests ---

func TestBetStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to BetStatus
		allowed  bool
	}{
		{BetPending, BetAccepted, true},
		{BetPending, BetRejected, true},
		{BetPending, BetWon, false},
		{BetAccepted, BetWon, true},
		{BetAccepted, BetLost, true},
		{BetAccepted, BetVoid, true},
		{BetAccepted, BetCashedOut, true},
		{BetWon, BetVoid, false},
		{BetLost, BetAccepted, false},
		{BetCashedOut, BetWon, false},
		{BetRejected, BetAccepted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestBetStatusIsTerminal(t *testing.T) {
	for _, s := range []BetStatus{BetRejected, BetWon, BetLost, BetVoid, BetCashedOut} {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}
	for _, s := range []BetStatus{BetPending, BetAccepted} {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestBetPredicatesAndPayout(t *testing.T) {
	bet := &Bet{
		ID:     "bet-1",
		UserID: "user-1",
		Amount: Money{Amount: 100_00, Currency: "USD"},
		Odds:   decimal.RequireFromString("2.10"),
		Status: BetAccepted,
	}

	assert.Equal(t, int64(210_00), bet.PotentialPayout().Amount)
	assert.True(t, bet.IsActive())
	assert.True(t, bet.CanBeVoided())
	assert.True(t, bet.CanBeCashedOut())
	assert.False(t, bet.IsSettled())

	bet.Status = BetWon
	assert.True(t, bet.IsSettled())
	assert.False(t, bet.CanBeVoided())
	assert.False(t, bet.CanBeCashedOut())

	bet.Status = BetCashedOut
	assert.False(t, bet.IsSettled(), "cash_out is terminal but not a settlement outcome")
}

func TestCashOutValue(t *testing.T) {
	bet := &Bet{
		Amount: Money{Amount: 100_00, Currency: "USD"},
		Odds:   decimal.RequireFromString("3.00"),
		Status: BetAccepted,
	}
	// 100.00 * 2.00 * 0.95 = 190.00
	value := bet.CashOutValue(decimal.RequireFromString("2.00"))
	assert.Equal(t, int64(190_00), value.Amount)
	assert.Equal(t, "USD", value.Currency)
}

// --- Lifecycle Transition Tests ---

func TestEventStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to EventStatus
		allowed  bool
	}{
		{EventScheduled, EventLive, true},
		{EventScheduled, EventCancelled, true},
		{EventScheduled, EventSuspended, true},
		{EventScheduled, EventCompleted, false},
		{EventLive, EventCompleted, true},
		{EventLive, EventSuspended, true},
		{EventLive, EventCancelled, false},
		{EventSuspended, EventLive, true},
		{EventSuspended, EventCancelled, true},
		{EventSuspended, EventCompleted, false},
		{EventCompleted, EventLive, false},
		{EventCancelled, EventScheduled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestMarketStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to MarketStatus
		allowed  bool
	}{
		{MarketOpen, MarketActive, true},
		{MarketOpen, MarketSettled, false},
		{MarketActive, MarketSettled, true},
		{MarketActive, MarketSuspended, true},
		{MarketSuspended, MarketActive, true},
		{MarketSuspended, MarketSettled, false},
		{MarketClosed, MarketSettled, true},
		{MarketSettled, MarketActive, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

// --- Event Tests ---

func TestNewEventRecord(t *testing.T) {
	ev := FundsDepositedEvent{
		UserID:        "user-9",
		Amount:        Money{Amount: 1000_00, Currency: "USD"},
		TransactionID: uuid.New(),
		ReferenceID:   "txn-1",
		BalanceAfter:  Money{Amount: 1000_00, Currency: "USD"},
	}

	rec, err := NewEventRecord("user-9", ev)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, rec.EventID)
	assert.Equal(t, "user-9", rec.AggregateID)
	assert.Equal(t, AggregateWallet, rec.Class)
	assert.Equal(t, "FundsDepositedEvent", rec.Type)
	assert.False(t, rec.OccurredAt.IsZero())
	assert.Zero(t, rec.Version, "store assigns versions")

	var decoded FundsDepositedEvent
	require.NoError(t, json.Unmarshal(rec.Payload, &decoded))
	assert.Equal(t, ev.UserID, decoded.UserID)
	assert.Equal(t, ev.Amount, decoded.Amount)
}

func TestEventKind(t *testing.T) {
	assert.Equal(t, "betplaced", EventKind("BetPlacedEvent"))
	assert.Equal(t, "marketsettled", EventKind("MarketSettledEvent"))
	assert.Equal(t, "oddsvolatilitychanged", EventKind("OddsVolatilityChangedEvent"))
}

func TestDecodeEvent(t *testing.T) {
	t.Run("round trips a typed payload", func(t *testing.T) {
		original := MarketSettledEvent{
			EventID:        "evt-1",
			MarketID:       "mkt-1",
			WinningOutcome: "home_win",
		}
		rec, err := NewEventRecord("evt-1", original)
		require.NoError(t, err)

		decoded, err := DecodeEvent(rec.Type, rec.Payload)
		require.NoError(t, err)

		settled, ok := decoded.(*MarketSettledEvent)
		require.True(t, ok)
		assert.Equal(t, original.MarketID, settled.MarketID)
		assert.Equal(t, original.WinningOutcome, settled.WinningOutcome)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := DecodeEvent("MysteryEvent", json.RawMessage(`{}`))
		require.Error(t, err)
	})

	t.Run("every registered factory matches its name", func(t *testing.T) {
		for name, factory := range eventFactories {
			assert.Equal(t, name, factory().EventName())
		}
	})
}

// --- Validator Tests ---

func TestValidateCurrency(t *testing.T) {
	tests := []struct {
		name     string
		currency string
		wantErr  bool
	}{
		{"valid EUR", "EUR", false},
		{"valid USD", "USD", false},
		{"lowercase", "eur", true},
		{"too short", "EU", true},
		{"too long", "EURO", true},
		{"empty", "", true},
		{"numbers", "123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCurrency(tt.currency)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid currency code")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateEntityKey(t *testing.T) {
	require.NoError(t, ValidateEntityKey("user-123"))
	require.NoError(t, ValidateEntityKey("a1b2c3d4e5f6"))
	require.Error(t, ValidateEntityKey(""))
	require.Error(t, ValidateEntityKey("has space"))
	require.Error(t, ValidateEntityKey("slash/key"))
}

func TestValidateOddsValue(t *testing.T) {
	require.NoError(t, ValidateOddsValue(decimal.RequireFromString("1.01")))
	require.NoError(t, ValidateOddsValue(decimal.RequireFromString("25.00")))
	require.Error(t, ValidateOddsValue(decimal.RequireFromString("1.00")))
	require.Error(t, ValidateOddsValue(decimal.Zero))
	require.Error(t, ValidateOddsValue(decimal.RequireFromString("-2.00")))
}

func TestValidateBetType(t *testing.T) {
	require.NoError(t, ValidateBetType(BetSingle))
	require.NoError(t, ValidateBetType(BetAccumulator))
	require.NoError(t, ValidateBetType(BetSystem))
	require.Error(t, ValidateBetType("parlay"))
}
