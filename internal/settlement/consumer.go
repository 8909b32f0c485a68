package settlement

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
	"github.com/stakemesh/platform/internal/eventlog"
)

// MessageSource is the broker-facing side of the consumer. Satisfied
// by infra.KafkaConsumer.
type MessageSource interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// TriggerTopic is the topic the consumer subscribes to for the given
// prefix: the forwarder publishes MarketSettledEvent there.
func TriggerTopic(prefix string) string {
	if prefix == "" {
		prefix = eventlog.DefaultTopicPrefix
	}
	return prefix + "." + string(domain.AggregateMarket) + ".marketsettled"
}

// SagaIDForMarket derives the deterministic saga ID for a market
// settlement, so redelivered trigger messages land on the same saga
// and replay its stored result instead of settling twice.
func SagaIDForMarket(marketID string) string { return "settle-" + marketID }

// Consumer turns marketSettled broker messages into saga executions.
type Consumer struct {
	source MessageSource
	sagas  *Client
	logger *slog.Logger
}

// NewConsumer builds a stopped consumer; call Run to start it.
func NewConsumer(source MessageSource, caller actor.Caller, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{source: source, sagas: NewClient(caller), logger: logger}
}

// Run consumes until ctx is cancelled. Malformed messages are logged
// and skipped; saga failures are logged but never block the stream,
// since the saga records its own terminal state.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("settlement consumer started")
	for {
		msg, err := c.source.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("settlement consumer stopped")
				return
			}
			c.logger.Error("failed to read settlement trigger", slog.Any("error", err))
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var rec eventlog.Envelope
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		c.logger.Error("malformed settlement trigger", slog.Any("error", err))
		return
	}
	if rec.Type != (domain.MarketSettledEvent{}).EventName() {
		return
	}
	ev, err := domain.DecodeEvent(rec.Type, rec.Payload)
	if err != nil {
		c.logger.Error("undecodable settlement trigger", slog.Any("error", err))
		return
	}
	settled, ok := ev.(*domain.MarketSettledEvent)
	if !ok {
		return
	}

	sagaID := SagaIDForMarket(settled.MarketID)
	result, err := c.sagas.Execute(ctx, sagaID, ExecuteRequest{
		EventID:            settled.EventID,
		MarketID:           settled.MarketID,
		WinningSelectionID: settled.WinningOutcome,
		Voided:             settled.Voided,
	})
	if err != nil {
		c.logger.Error("settlement saga failed",
			slog.String("saga_id", sagaID),
			slog.String("market_id", settled.MarketID),
			slog.Any("error", err))
		return
	}
	c.logger.Info("settlement saga finished",
		slog.String("saga_id", sagaID),
		slog.String("market_id", settled.MarketID),
		slog.String("status", string(result.Status)),
		slog.Int("settled_bets", result.SettledBets))
}
