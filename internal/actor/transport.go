package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stakemesh/platform/internal/domain"
)

// InvokePath is the HTTP route nodes expose for cross-node dispatch.
const InvokePath = "/internal/actors/invoke"

// InvokeRequest is the wire form of one entity call.
type InvokeRequest struct {
	Kind          Kind            `json:"kind"`
	Key           string          `json:"key"`
	Method        string          `json:"method"`
	Args          json.RawMessage `json:"args,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CallPath      []string        `json:"call_path,omitempty"`
}

// ErrorPayload carries a typed failure across nodes.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// InvokeResponse is the wire form of a call result.
type InvokeResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

func errorPayload(err error) *ErrorPayload {
	var ae *domain.AppError
	if errors.As(err, &ae) {
		return &ErrorPayload{Code: ae.Code, Message: ae.Message, Status: ae.Status}
	}
	return &ErrorPayload{Code: domain.CodeInternal, Message: err.Error(), Status: 500}
}

// AppError reconstructs the typed error on the calling side.
func (p *ErrorPayload) AppError() *domain.AppError {
	return &domain.AppError{Code: p.Code, Message: p.Message, Status: p.Status}
}

// Transport ships invocations between nodes.
type Transport interface {
	Send(ctx context.Context, node Node, req *InvokeRequest) (*InvokeResponse, error)
}

// HTTPTransport sends invocations over plain HTTP between nodes.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds the default inter-node transport.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) Send(ctx context.Context, node Node, req *InvokeRequest) (*InvokeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode invoke request: %w", err)
	}

	url := "http://" + node.Addr + InvokePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build invoke request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", node.ID, err)
	}
	defer httpResp.Body.Close()

	var resp InvokeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode invoke response from %s: %w", node.ID, err)
	}
	return &resp, nil
}

// InvokeHTTPHandler serves InvokePath on the receiving node.
func (s *System) InvokeHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InvokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(InvokeResponse{
				Error: &ErrorPayload{Code: domain.CodeValidation, Message: "malformed invoke request", Status: 400},
			})
			return
		}
		resp := s.HandleInvoke(r.Context(), &req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
