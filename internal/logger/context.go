package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// FromContext returns the request-scoped logger, or the process logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return log
}

func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}
