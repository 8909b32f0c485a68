package sportevent

import (
	"context"

	"github.com/stakemesh/platform/internal/actor"
	"github.com/stakemesh/platform/internal/domain"
)

// Client is the typed sport event interface used by handlers and the
// registry.
type Client struct {
	caller actor.Caller
}

// NewClient wraps a runtime caller.
func NewClient(caller actor.Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) invoke(ctx context.Context, eventID, method string, args, result any) error {
	return c.caller.Invoke(ctx, KindEvent, eventID, method, args, result)
}

func (c *Client) CreateEvent(ctx context.Context, req CreateRequest) (EventView, error) {
	var out EventView
	err := c.invoke(ctx, req.EventID, "CreateEvent", req, &out)
	return out, err
}

func (c *Client) GetEvent(ctx context.Context, eventID string) (EventView, error) {
	var out EventView
	err := c.invoke(ctx, eventID, "GetEvent", nil, &out)
	return out, err
}

func (c *Client) UpdateEventStatus(ctx context.Context, eventID string, status domain.EventStatus, reason string) (EventView, error) {
	var out EventView
	err := c.invoke(ctx, eventID, "UpdateEventStatus", UpdateStatusRequest{Status: status, Reason: reason}, &out)
	return out, err
}

func (c *Client) AddMarket(ctx context.Context, eventID string, req AddMarketRequest) (domain.Market, error) {
	var out domain.Market
	err := c.invoke(ctx, eventID, "AddMarket", req, &out)
	return out, err
}

func (c *Client) UpdateMarketStatus(ctx context.Context, eventID string, req UpdateMarketStatusRequest) (domain.Market, error) {
	var out domain.Market
	err := c.invoke(ctx, eventID, "UpdateMarketStatus", req, &out)
	return out, err
}

func (c *Client) SetMarketResult(ctx context.Context, eventID string, req SetMarketResultRequest) (domain.Market, error) {
	var out domain.Market
	err := c.invoke(ctx, eventID, "SetMarketResult", req, &out)
	return out, err
}

// RegistryClient talks to the event-registry singleton.
type RegistryClient struct {
	caller actor.Caller
}

func NewRegistryClient(caller actor.Caller) *RegistryClient {
	return &RegistryClient{caller: caller}
}

func (c *RegistryClient) Register(ctx context.Context, eventID string) error {
	var out struct{}
	return c.caller.Invoke(ctx, KindRegistry, RegistryKey, "Register", RegisterRequest{EventID: eventID}, &out)
}

func (c *RegistryClient) ListEvents(ctx context.Context, status domain.EventStatus, limit int) ([]EventView, error) {
	var out []EventView
	err := c.caller.Invoke(ctx, KindRegistry, RegistryKey, "ListEvents", ListEventsRequest{Status: status, Limit: limit}, &out)
	return out, err
}
