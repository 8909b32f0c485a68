package settlement

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/stakemesh/platform/internal/actor"
)

// Request is one market settlement in a batch run.
type Request struct {
	SagaID             string   `json:"saga_id"`
	EventID            string   `json:"event_id"`
	MarketID           string   `json:"market_id"`
	WinningSelectionID string   `json:"winning_selection_id"`
	Voided             bool     `json:"voided"`
	BetIDs             []string `json:"bet_ids,omitempty"`
}

// BatchResult pairs each request with its saga outcome.
type BatchResult struct {
	Results   map[string]Result `json:"results"`
	Errors    map[string]string `json:"errors,omitempty"`
	Cancelled int               `json:"cancelled"`
}

// Coordinator fans a batch of settlements out over the runtime with
// bounded concurrency.
type Coordinator struct {
	sagas  *Client
	limit  int64
	logger *slog.Logger
}

// NewCoordinator builds a Coordinator; maxConcurrent bounds the number
// of sagas in flight at once.
func NewCoordinator(caller actor.Caller, maxConcurrent int64, logger *slog.Logger) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{sagas: NewClient(caller), limit: maxConcurrent, logger: logger}
}

// Process runs the batch. Cancellation is cooperative: once ctx is
// done no further requests are dispatched, but sagas already in flight
// run to their own conclusion on a detached context.
func (c *Coordinator) Process(ctx context.Context, requests []Request) BatchResult {
	sem := semaphore.NewWeighted(c.limit)
	out := BatchResult{
		Results: make(map[string]Result, len(requests)),
		Errors:  make(map[string]string),
	}

	type outcome struct {
		sagaID string
		result Result
		err    error
	}
	results := make(chan outcome, len(requests))
	dispatched := 0

	for _, req := range requests {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		dispatched++
		go func() {
			defer sem.Release(1)
			// Detached so an in-flight saga is never torn down mid-settle.
			result, err := c.sagas.Execute(context.WithoutCancel(ctx), req.SagaID, ExecuteRequest{
				EventID:            req.EventID,
				MarketID:           req.MarketID,
				WinningSelectionID: req.WinningSelectionID,
				Voided:             req.Voided,
				BetIDs:             req.BetIDs,
			})
			results <- outcome{sagaID: req.SagaID, result: result, err: err}
		}()
	}

	for i := 0; i < dispatched; i++ {
		o := <-results
		if o.err != nil {
			out.Errors[o.sagaID] = o.err.Error()
			c.logger.Error("batch settlement failed", "saga_id", o.sagaID, "error", o.err)
			continue
		}
		out.Results[o.sagaID] = o.result
	}
	out.Cancelled = len(requests) - dispatched
	return out
}
