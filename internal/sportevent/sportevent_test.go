package sportevent_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/eventlog"
	"github.com/stakemesh/platform/internal/market"
	"github.com/stakemesh/platform/internal/repository"
	"github.com/stakemesh/platform/internal/sportevent"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	events   *sportevent.Client
	registry *sportevent.RegistryClient
	markets  *market.Client
	log      *eventlog.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := eventlog.New(repository.NewMemoryEventStore(), testLogger())
	sys, err := actor.NewSystem(actor.Config{
		Store:  repository.NewMemoryStateStore(),
		Logger: testLogger(),
	})
	require.NoError(t, err)
	specs := []actor.KindSpec{
		{Kind: sportevent.KindEvent, New: sportevent.NewFactory(log)},
		{Kind: sportevent.KindRegistry, New: sportevent.NewRegistryFactory()},
		{Kind: market.KindOdds, New: market.NewFactory(log)},
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
		events:   sportevent.NewClient(sys),
		registry: sportevent.NewRegistryClient(sys),
		markets:  market.NewClient(sys),
		log:      log,
	}
}

func createReq(eventID string, start time.Time) sportevent.CreateRequest {
	return sportevent.CreateRequest{
		EventID:      eventID,
		Name:         "Arsenal v Chelsea",
		Sport:        "football",
		Competition:  "premier-league",
		StartTime:    start,
		Participants: []string{"Arsenal", "Chelsea"},
	}
}

func (f *fixture) createEvent(t *testing.T, eventID string) {
	t.Helper()
	_, err := f.events.CreateEvent(context.Background(), createReq(eventID, time.Now().Add(time.Hour).UTC()))
	require.NoError(t, err)
}

func (f *fixture) addMarket(t *testing.T, eventID, marketID string) {
	t.Helper()
	_, err := f.events.AddMarket(context.Background(), eventID, sportevent.AddMarketRequest{
		MarketID: marketID,
		Name:     "Match Winner",
		Outcomes: map[string]decimal.Decimal{"home": dec("2.10"), "away": dec("3.40")},
	})
	require.NoError(t, err)
}

// closeMarket walks the market to closed so a result can be recorded.
func (f *fixture) closeMarket(t *testing.T, eventID, marketID string) {
	t.Helper()
	_, err := f.events.UpdateMarketStatus(context.Background(), eventID, sportevent.UpdateMarketStatusRequest{
		MarketID: marketID,
		Status:   domain.MarketClosed,
		Reason:   "kick-off",
	})
	require.NoError(t, err)
}

// --- Event Lifecycle Tests ---

func TestCreateAndGetEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := time.Now().Add(time.Hour).UTC()

	view, err := f.events.CreateEvent(ctx, createReq("e1", start))
	require.NoError(t, err)
	assert.Equal(t, "e1", view.Event.ID)
	assert.Equal(t, domain.EventScheduled, view.Event.Status)
	assert.Equal(t, []string{"Arsenal", "Chelsea"}, view.Event.Participants)
	assert.Empty(t, view.Markets)

	got, err := f.events.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, view.Event.ID, got.Event.ID)

	_, err = f.events.CreateEvent(ctx, createReq("e1", start))
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))

	_, err = f.events.GetEvent(ctx, "ghost")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestCreateEventValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := createReq("e1", time.Now().UTC())
	req.Name = ""
	_, err := f.events.CreateEvent(ctx, req)
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	req = createReq("e1", time.Time{})
	_, err = f.events.CreateEvent(ctx, req)
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	// The addressed entity and the request body must agree.
	req = createReq("e2", time.Now().UTC())
	req.EventID = "e9"
	_, err = f.events.CreateEvent(ctx, req)
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestEventStatusLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createEvent(t, "e1")

	view, err := f.events.UpdateEventStatus(ctx, "e1", domain.EventLive, "kick-off")
	require.NoError(t, err)
	assert.Equal(t, domain.EventLive, view.Event.Status)
	assert.Nil(t, view.Event.EndTime)

	// Same-status updates are a no-op, not an error.
	view, err = f.events.UpdateEventStatus(ctx, "e1", domain.EventLive, "again")
	require.NoError(t, err)
	assert.Equal(t, domain.EventLive, view.Event.Status)

	view, err = f.events.UpdateEventStatus(ctx, "e1", domain.EventCompleted, "full-time")
	require.NoError(t, err)
	assert.Equal(t, domain.EventCompleted, view.Event.Status)
	require.NotNil(t, view.Event.EndTime, "completion stamps the end time")

	_, err = f.events.UpdateEventStatus(ctx, "e1", domain.EventLive, "rewind")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidTransition, domain.CodeOf(err))
}

func TestScheduledEventCannotComplete(t *testing.T) {
	f := newFixture(t)
	f.createEvent(t, "e1")

	_, err := f.events.UpdateEventStatus(context.Background(), "e1", domain.EventCompleted, "")
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidTransition, domain.CodeOf(err))
}

// --- Market Tests ---

func TestAddMarketSeedsLiveOdds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createEvent(t, "e1")

	m, err := f.events.AddMarket(ctx, "e1", sportevent.AddMarketRequest{
		MarketID: "m1",
		Name:     "Match Winner",
		Outcomes: map[string]decimal.Decimal{"home": dec("2.10"), "away": dec("3.40")},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MarketOpen, m.Status)
	assert.Equal(t, "e1", m.EventID)

	// The live odds entity was seeded with the opening prices.
	snap, err := f.markets.GetCurrentOdds(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, snap.Selections["home"].Decimal.Equal(dec("2.10")))
	assert.Equal(t, "opening", snap.Selections["home"].Source)

	_, err = f.events.AddMarket(ctx, "e1", sportevent.AddMarketRequest{
		MarketID: "m1",
		Name:     "Match Winner",
		Outcomes: map[string]decimal.Decimal{"home": dec("2.10")},
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
}

func TestAddMarketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createEvent(t, "e1")

	_, err := f.events.AddMarket(ctx, "e1", sportevent.AddMarketRequest{MarketID: "m1", Name: "Winner"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = f.events.AddMarket(ctx, "e1", sportevent.AddMarketRequest{
		MarketID: "m1",
		Name:     "Winner",
		Outcomes: map[string]decimal.Decimal{"home": dec("1.00")},
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = f.events.AddMarket(ctx, "ghost", sportevent.AddMarketRequest{
		MarketID: "m1",
		Name:     "Winner",
		Outcomes: map[string]decimal.Decimal{"home": dec("2.00")},
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestUpdateMarketStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createEvent(t, "e1")
	f.addMarket(t, "e1", "m1")

	m, err := f.events.UpdateMarketStatus(ctx, "e1", sportevent.UpdateMarketStatusRequest{
		MarketID: "m1", Status: domain.MarketSuspended, Reason: "var check",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MarketSuspended, m.Status)

	// Same status is a no-op.
	m, err = f.events.UpdateMarketStatus(ctx, "e1", sportevent.UpdateMarketStatusRequest{
		MarketID: "m1", Status: domain.MarketSuspended,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MarketSuspended, m.Status)

	// A suspended market cannot jump straight to settled.
	_, err = f.events.UpdateMarketStatus(ctx, "e1", sportevent.UpdateMarketStatusRequest{
		MarketID: "m1", Status: domain.MarketSettled,
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidTransition, domain.CodeOf(err))

	_, err = f.events.UpdateMarketStatus(ctx, "e1", sportevent.UpdateMarketStatusRequest{
		MarketID: "m9", Status: domain.MarketClosed,
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

// --- Result Tests ---

func TestSetMarketResultEmitsTheSettlementTrigger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createEvent(t, "e1")
	f.addMarket(t, "e1", "m1")
	f.closeMarket(t, "e1", "m1")

	m, err := f.events.SetMarketResult(ctx, "e1", sportevent.SetMarketResultRequest{
		MarketID:       "m1",
		WinningOutcome: "home",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MarketSettled, m.Status)
	assert.Equal(t, "home", m.WinningOutcome)

	// The market stream carries the status change and the settlement
	// trigger the forwarder publishes for the saga consumer.
	stream, err := f.log.Read(ctx, sportevent.MarketAggregateID("m1"), 0)
	require.NoError(t, err)
	var types []string
	for _, rec := range stream {
		types = append(types, rec.Type)
	}
	assert.Contains(t, types, "MarketStatusChangedEvent")
	require.Contains(t, types, "MarketSettledEvent")

	last := stream[len(stream)-1]
	require.Equal(t, "MarketSettledEvent", last.Type)
	ev, err := domain.DecodeEvent(last.Type, last.Payload)
	require.NoError(t, err)
	settled := ev.(*domain.MarketSettledEvent)
	assert.Equal(t, "m1", settled.MarketID)
	assert.Equal(t, "home", settled.WinningOutcome)
	assert.False(t, settled.Voided)
}

func TestSetMarketResultIsIdempotentPerOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createEvent(t, "e1")
	f.addMarket(t, "e1", "m1")
	f.closeMarket(t, "e1", "m1")

	_, err := f.events.SetMarketResult(ctx, "e1", sportevent.SetMarketResultRequest{MarketID: "m1", WinningOutcome: "home"})
	require.NoError(t, err)

	before, err := f.log.Read(ctx, sportevent.MarketAggregateID("m1"), 0)
	require.NoError(t, err)

	// Same outcome replays without a second trigger on the stream.
	m, err := f.events.SetMarketResult(ctx, "e1", sportevent.SetMarketResultRequest{MarketID: "m1", WinningOutcome: "home"})
	require.NoError(t, err)
	assert.Equal(t, domain.MarketSettled, m.Status)
	after, err := f.log.Read(ctx, sportevent.MarketAggregateID("m1"), 0)
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	// A different outcome is a conflict, never a silent overwrite.
	_, err = f.events.SetMarketResult(ctx, "e1", sportevent.SetMarketResultRequest{MarketID: "m1", WinningOutcome: "away"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
}

func TestSetMarketResultValidatesTheOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createEvent(t, "e1")
	f.addMarket(t, "e1", "m1")

	// An open market has no result yet to record.
	_, err := f.events.SetMarketResult(ctx, "e1", sportevent.SetMarketResultRequest{MarketID: "m1", WinningOutcome: "home"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidTransition, domain.CodeOf(err))

	f.closeMarket(t, "e1", "m1")
	_, err = f.events.SetMarketResult(ctx, "e1", sportevent.SetMarketResultRequest{MarketID: "m1", WinningOutcome: "draw"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	// Voiding needs no outcome.
	m, err := f.events.SetMarketResult(ctx, "e1", sportevent.SetMarketResultRequest{MarketID: "m1", Voided: true})
	require.NoError(t, err)
	assert.Equal(t, domain.MarketSettled, m.Status)
}

// --- Registry Tests ---

func TestRegistryListsEventsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"e1", "e2", "e3"} {
		_, err := f.events.CreateEvent(ctx, createReq(id, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := f.events.UpdateEventStatus(ctx, "e2", domain.EventLive, "kick-off")
	require.NoError(t, err)

	views, err := f.registry.ListEvents(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "e3", views[0].Event.ID)
	assert.Equal(t, "e1", views[2].Event.ID)

	live, err := f.registry.ListEvents(ctx, domain.EventLive, 0)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "e2", live[0].Event.ID)

	limited, err := f.registry.ListEvents(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
