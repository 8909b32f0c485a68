package actor

import (
	"context"
	"log/slog"
	"time"
)

// CallInfo describes the call a filter is wrapping.
type CallInfo struct {
	Kind          Kind
	Key           string
	Method        string
	CorrelationID string
}

// InvokeFunc is the filterable shape of an entity call.
type InvokeFunc func(ctx context.Context, info *CallInfo, args []byte) (any, error)

// Filter wraps every inbound entity call; filters compose outermost first.
type Filter func(next InvokeFunc) InvokeFunc

func buildChain(filters []Filter, final InvokeFunc) InvokeFunc {
	for i := len(filters) - 1; i >= 0; i-- {
		final = filters[i](final)
	}
	return final
}

// LoggingFilter emits a structured record per call, carrying the
// correlation ID end to end.
func LoggingFilter(logger *slog.Logger) Filter {
	return func(next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, info *CallInfo, args []byte) (any, error) {
			start := time.Now()
			value, err := next(ctx, info, args)
			attrs := []any{
				slog.String("kind", string(info.Kind)),
				slog.String("key", info.Key),
				slog.String("method", info.Method),
				slog.String("correlation_id", info.CorrelationID),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("entity call failed", append(attrs, slog.Any("error", err))...)
				return value, err
			}
			logger.Debug("entity call", attrs...)
			return value, nil
		}
	}
}
