package settlement

import (
	"context"

	"github.com/stakemesh/platform/internal/actor"
)

// Client is the typed saga interface used by handlers, the batch
// coordinator and the broker consumer.
type Client struct {
	caller actor.Caller
}

// NewClient wraps a runtime caller.
func NewClient(caller actor.Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) Execute(ctx context.Context, sagaID string, req ExecuteRequest) (Result, error) {
	var out Result
	err := c.caller.Invoke(ctx, KindSaga, sagaID, "Execute", req, &out)
	return out, err
}

func (c *Client) GetResult(ctx context.Context, sagaID string) (Result, error) {
	var out Result
	err := c.caller.Invoke(ctx, KindSaga, sagaID, "GetResult", nil, &out)
	return out, err
}
