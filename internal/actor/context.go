package actor

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxKeyCorrelation ctxKey = iota
	ctxKeyCallPath
)

// WithCorrelation attaches a correlation ID to the context. The runtime
// propagates it across entity calls and nodes.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelation, id)
}

// CorrelationFrom returns the correlation ID, or empty when unset.
func CorrelationFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyCorrelation).(string)
	return id
}

// ensureCorrelation returns the context's correlation ID, minting one
// for calls that arrive without.
func ensureCorrelation(ctx context.Context) (context.Context, string) {
	if id := CorrelationFrom(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithCorrelation(ctx, id), id
}

// withCallPath replaces the chain of entity addresses on the context.
func withCallPath(ctx context.Context, path []string) context.Context {
	return context.WithValue(ctx, ctxKeyCallPath, path)
}

// callPathFrom returns the current call chain, outermost first.
func callPathFrom(ctx context.Context) []string {
	path, _ := ctx.Value(ctxKeyCallPath).([]string)
	return path
}

func pathContains(path []string, addr string) bool {
	for _, p := range path {
		if p == addr {
			return true
		}
	}
	return false
}
