package bet_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/bet"
	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/eventlog"
	"github.com/stakemesh/platform/internal/market"
	"github.com/stakemesh/platform/internal/repository"
	"github.com/stakemesh/platform/internal/wallet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func usd(amount int64) domain.Money {
	return domain.Money{Amount: amount, Currency: "USD"}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	bets      *bet.Client
	wallets   *wallet.Client
	markets   *market.Client
	userIdx   *bet.UserIndexClient
	marketIdx *bet.MarketIndexClient
	log       *eventlog.Log
}

func newFixture(t *testing.T, filters ...actor.Filter) *fixture {
	t.Helper()
	log := eventlog.New(repository.NewMemoryEventStore(), testLogger())
	sys, err := actor.NewSystem(actor.Config{
		Store:   repository.NewMemoryStateStore(),
		Logger:  testLogger(),
		Filters: filters,
	})
	require.NoError(t, err)
	specs := []actor.KindSpec{
		{Kind: wallet.KindWallet, New: wallet.NewFactory(log)},
		{Kind: market.KindOdds, New: market.NewFactory(log)},
		{Kind: bet.KindBet, New: bet.NewFactory(log)},
		{Kind: bet.KindUserIndex, New: bet.NewUserIndexFactory()},
		{Kind: bet.KindMarketIndex, New: bet.NewMarketIndexFactory()},
	}
	for _, spec := range specs {
		require.NoError(t, sys.Register(spec))
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sys.Drain(ctx)
	})
	return &fixture{
		bets:      bet.NewClient(sys),
		wallets:   wallet.NewClient(sys),
		markets:   market.NewClient(sys),
		userIdx:   bet.NewUserIndexClient(sys),
		marketIdx: bet.NewMarketIndexClient(sys),
		log:       log,
	}
}

// fund deposits and opens a single-selection market at the given price.
func (f *fixture) fund(t *testing.T, userID string, balance int64, marketID, selection, price string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.wallets.Deposit(ctx, userID, usd(balance), "dep-"+userID)
	require.NoError(t, err)
	_, err = f.markets.InitializeMarket(ctx, marketID,
		map[string]decimal.Decimal{selection: dec(price)}, "opening")
	require.NoError(t, err)
}

func placeReq(betID string) bet.PlaceRequest {
	return bet.PlaceRequest{
		BetID:          betID,
		UserID:         "u1",
		EventID:        "e1",
		MarketID:       "m1",
		SelectionID:    "home",
		Amount:         usd(100_00),
		AcceptableOdds: dec("2.00"),
		Type:           domain.BetSingle,
	}
}

// failFirstCalls makes the first n matching invocations fail as a
// transient outage.
func failFirstCalls(kind actor.Kind, key, method string, n int32) actor.Filter {
	var calls atomic.Int32
	return func(next actor.InvokeFunc) actor.InvokeFunc {
		return func(ctx context.Context, info *actor.CallInfo, args []byte) (any, error) {
			if info.Kind == kind && info.Key == key && info.Method == method && calls.Add(1) <= n {
				return nil, domain.ErrUnavailable(string(kind)+" temporarily down", nil)
			}
			return next(ctx, info, args)
		}
	}
}

// --- Placement Tests ---

func TestPlaceBetHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")

	placed, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)
	assert.Equal(t, domain.BetAccepted, placed.Status)
	assert.True(t, placed.Odds.Equal(dec("2.10")), "locked odds are the market price, not the acceptable minimum")
	assert.Equal(t, usd(210_00), placed.PotentialPayout())

	// The stake is earmarked, not withdrawn.
	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(500_00), bal.Balance)
	assert.Equal(t, usd(100_00), bal.Reserved)

	// Settlement finds the bet through the market index.
	refs, err := f.marketIdx.ListBets(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, bet.BetRef{BetID: "b1", UserID: "u1", SelectionID: "home"}, refs[0])

	stream, err := f.log.Read(ctx, bet.AggregateID("b1"), 0)
	require.NoError(t, err)
	require.Len(t, stream, 2)
	assert.Equal(t, "BetPlacedEvent", stream[0].Type)
	assert.Equal(t, "BetAcceptedEvent", stream[1].Type)
}

func TestPlaceBetIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")

	first, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)

	// The identical request replays without reserving again.
	second, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(100_00), bal.Reserved)

	// The same bet ID with a different request is a conflict.
	changed := placeReq("b1")
	changed.Amount = usd(50_00)
	_, err = f.bets.PlaceBet(ctx, changed)
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
}

func TestPlaceBetRejectedWhenOddsDrop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")

	req := placeReq("b1")
	req.AcceptableOdds = dec("2.50")
	_, err := f.bets.PlaceBet(ctx, req)
	require.Error(t, err)
	assert.Equal(t, domain.CodeOddsChanged, domain.CodeOf(err))

	// No money moved.
	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(0), bal.Reserved)

	// The rejection is stored: replaying the same request reports the
	// original failure instead of retrying the placement.
	_, err = f.bets.PlaceBet(ctx, req)
	require.Error(t, err)
	assert.Equal(t, domain.CodeOddsChanged, domain.CodeOf(err))

	b, err := f.bets.GetBet(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BetRejected, b.Status)
	assert.NotEmpty(t, b.RejectionReason)
}

func TestPlaceBetRejectedWithoutFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.markets.InitializeMarket(ctx, "m1",
		map[string]decimal.Decimal{"home": dec("2.10")}, "opening")
	require.NoError(t, err)

	_, err = f.bets.PlaceBet(ctx, placeReq("b1"))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInsufficientFunds, domain.CodeOf(err))

	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(0), bal.Reserved)
}

func TestPlaceBetOnSuspendedMarketReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")

	// Suspension is checked at lock time, after the reservation; the
	// failed lock must give the funds back.
	_, err := f.markets.SuspendOdds(ctx, "m1", "maintenance", "ops-1")
	require.NoError(t, err)

	_, err = f.bets.PlaceBet(ctx, placeReq("b1"))
	require.Error(t, err)
	assert.Equal(t, domain.CodeMarketSuspended, domain.CodeOf(err))

	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(0), bal.Reserved)
	assert.Equal(t, usd(500_00), bal.Available)
}

func TestTransientOddsOutageDoesNotRejectTheBet(t *testing.T) {
	f := newFixture(t, failFirstCalls(market.KindOdds, "m1", "GetCurrentOdds", 1))
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")

	_, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.Error(t, err)
	assert.Equal(t, domain.CodeUnavailable, domain.CodeOf(err))

	// The outage left no bet behind; the same bet ID is still usable.
	_, err = f.bets.GetBet(ctx, "b1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	placed, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)
	assert.Equal(t, domain.BetAccepted, placed.Status)

	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(100_00), bal.Reserved)
}

func TestPlaceBetValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := placeReq("b1")
	req.Amount = usd(0)
	_, err := f.bets.PlaceBet(ctx, req)
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	req = placeReq("b1")
	req.Type = "parlay"
	_, err = f.bets.PlaceBet(ctx, req)
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = f.bets.GetBet(ctx, "b1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err), "validation failures must not create the bet")
}

// --- Void Tests ---

func TestVoidReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")
	_, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)

	voided, err := f.bets.VoidBet(ctx, "b1", "fixture postponed")
	require.NoError(t, err)
	assert.Equal(t, domain.BetVoid, voided.Status)
	assert.Equal(t, "fixture postponed", voided.VoidReason)

	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(500_00), bal.Available)
	assert.Equal(t, usd(0), bal.Reserved)

	// Re-voiding is idempotent.
	again, err := f.bets.VoidBet(ctx, "b1", "duplicate")
	require.NoError(t, err)
	assert.Equal(t, "fixture postponed", again.VoidReason)
}

func TestVoidAfterSettlementIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")
	_, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)
	_, err = f.bets.SettleBet(ctx, "b1", domain.BetLost, nil, "saga-1")
	require.NoError(t, err)

	_, err = f.bets.VoidBet(ctx, "b1", "too late")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidTransition, domain.CodeOf(err))
}

// --- Cash-Out Tests ---

func TestCashOutAtCurrentOdds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "3.00")

	req := placeReq("b1")
	_, err := f.bets.PlaceBet(ctx, req)
	require.NoError(t, err)

	// The market drifts down before the user bails out.
	_, err = f.markets.UpdateOdds(ctx, "m1", market.UpdateRequest{
		SelectionOdds: map[string]decimal.Decimal{"home": dec("2.00")},
		Source:        "trader",
	})
	require.NoError(t, err)

	// 100.00 at current odds 2.00 less the 5% fee: 190.00 net, 10.00 fee.
	res, err := f.bets.CashOut(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, usd(190_00), res.PayoutAmount)
	assert.Equal(t, usd(10_00), res.Fee)
	assert.True(t, res.OddsAtCashOut.Equal(dec("2.00")))
	assert.Equal(t, domain.BetCashedOut, res.Bet.Status)

	// Stake gone, cash-out value in: 500 - 100 + 190.
	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(590_00), bal.Balance)
	assert.Equal(t, usd(0), bal.Reserved)

	// A cashed-out bet cannot cash out again.
	_, err = f.bets.CashOut(ctx, "b1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidTransition, domain.CodeOf(err))
}

func TestCashOutRetryAfterPayoutFailure(t *testing.T) {
	f := newFixture(t, failFirstCalls(wallet.KindWallet, "u1", "ProcessPayout", 1))
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")
	_, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)

	// The first attempt commits the stake, fails to credit and puts the
	// stake back on reserve.
	_, err = f.bets.CashOut(ctx, "b1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeUnavailable, domain.CodeOf(err))
	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(500_00), bal.Balance)
	assert.Equal(t, usd(100_00), bal.Reserved)

	// The retry must debit the stake for real. 100.00 at 2.10 less the
	// 5% fee: 199.50 net, so 500 - 100 + 199.50.
	res, err := f.bets.CashOut(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, usd(199_50), res.PayoutAmount)
	bal, err = f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(599_50), bal.Balance)
	assert.Equal(t, usd(0), bal.Reserved)
}

// --- Settlement Tests ---

func TestSettleWonPaysLockedOdds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")
	_, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)

	settled, err := f.bets.SettleBet(ctx, "b1", domain.BetWon, nil, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BetWon, settled.Status)
	require.NotNil(t, settled.Payout)
	assert.Equal(t, usd(210_00), *settled.Payout)

	// 500 - 100 stake + 210 payout.
	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(610_00), bal.Balance)
	assert.Equal(t, usd(0), bal.Reserved)

	// The same saga settling again replays; no second payout.
	again, err := f.bets.SettleBet(ctx, "b1", domain.BetWon, nil, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, settled.Status, again.Status)
	bal, err = f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(610_00), bal.Balance)
}

func TestSettleLostCommitsStake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")
	_, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)

	settled, err := f.bets.SettleBet(ctx, "b1", domain.BetLost, nil, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BetLost, settled.Status)
	assert.Nil(t, settled.Payout)

	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(400_00), bal.Balance)
	assert.Equal(t, usd(0), bal.Reserved)
}

func TestSettleVoidRefundsStake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")
	_, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)

	settled, err := f.bets.SettleBet(ctx, "b1", domain.BetVoid, nil, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BetVoid, settled.Status)

	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(500_00), bal.Available)
}

func TestReverseSettlementRestoresTheBet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")
	_, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)
	_, err = f.bets.SettleBet(ctx, "b1", domain.BetWon, nil, "saga-1")
	require.NoError(t, err)

	restored, err := f.bets.ReverseSettlement(ctx, "b1", "saga-1", "compensation")
	require.NoError(t, err)
	assert.Equal(t, domain.BetAccepted, restored.Status)
	assert.Nil(t, restored.Payout)
	assert.Nil(t, restored.SettledAt)

	// Back to the post-placement picture: payout clawed back, stake
	// reserved again.
	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(500_00), bal.Balance)
	assert.Equal(t, usd(100_00), bal.Reserved)

	// Reversing twice is harmless.
	_, err = f.bets.ReverseSettlement(ctx, "b1", "saga-1", "duplicate")
	require.NoError(t, err)
	bal, err = f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(500_00), bal.Balance)

	// Reversing a saga that never settled is NOT_FOUND.
	_, err = f.bets.ReverseSettlement(ctx, "b1", "saga-9", "unknown")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestResettleAfterReversalPaysExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")
	_, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)

	_, err = f.bets.SettleBet(ctx, "b1", domain.BetWon, nil, "saga-1")
	require.NoError(t, err)
	_, err = f.bets.ReverseSettlement(ctx, "b1", "saga-1", "mis-settled market")
	require.NoError(t, err)

	// The corrected round debits the stake again and pays once:
	// 500 - 100 + 210, with nothing left sitting reserved.
	settled, err := f.bets.SettleBet(ctx, "b1", domain.BetWon, nil, "saga-2")
	require.NoError(t, err)
	assert.Equal(t, domain.BetWon, settled.Status)

	bal, err := f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(610_00), bal.Balance)
	assert.Equal(t, usd(0), bal.Reserved)

	// Reversing the second round works the same way as the first.
	_, err = f.bets.ReverseSettlement(ctx, "b1", "saga-2", "still wrong")
	require.NoError(t, err)
	bal, err = f.wallets.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, usd(500_00), bal.Balance)
	assert.Equal(t, usd(100_00), bal.Reserved)
}

func TestSettleRequiresSagaAndValidStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")
	_, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)

	_, err = f.bets.SettleBet(ctx, "b1", domain.BetWon, nil, "")
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = f.bets.SettleBet(ctx, "b1", domain.BetAccepted, nil, "saga-1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

// --- History Tests ---

func TestBetHistoryReconstructsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")
	_, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)
	_, err = f.bets.SettleBet(ctx, "b1", domain.BetWon, nil, "saga-1")
	require.NoError(t, err)

	history, err := f.bets.GetBetHistory(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.BetPending, history[0].Status)
	assert.Equal(t, domain.BetAccepted, history[1].Status)
	assert.Equal(t, domain.BetWon, history[2].Status)
	require.NotNil(t, history[2].Payout)
	assert.Equal(t, usd(210_00), *history[2].Payout)
}

// --- User Index Tests ---

func TestUserIndexTracksAndFiltersBets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "u1", 500_00, "m1", "home", "2.10")

	first, err := f.bets.PlaceBet(ctx, placeReq("b1"))
	require.NoError(t, err)
	require.NoError(t, f.userIdx.AddBet(ctx, "u1", "b1", first.PlacedAt))

	second := placeReq("b2")
	second.Amount = usd(50_00)
	placed, err := f.bets.PlaceBet(ctx, second)
	require.NoError(t, err)
	require.NoError(t, f.userIdx.AddBet(ctx, "u1", "b2", placed.PlacedAt))

	// Registering twice does not duplicate.
	require.NoError(t, f.userIdx.AddBet(ctx, "u1", "b2", placed.PlacedAt))

	has, err := f.userIdx.HasBet(ctx, "u1", "b1")
	require.NoError(t, err)
	assert.True(t, has)

	all, err := f.userIdx.GetUserBets(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.bets.SettleBet(ctx, "b1", domain.BetLost, nil, "saga-1")
	require.NoError(t, err)

	active, err := f.userIdx.GetActiveBets(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b2", active[0].ID)

	settled, err := f.userIdx.GetBetHistory(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, "b1", settled[0].ID)
}
