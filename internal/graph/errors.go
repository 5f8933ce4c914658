package graph

import (
	"context"

	"go.uber.org/zap"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/logger"
)

// fail reports err to the client as a kinded GraphQL error. Unexpected
// failures are logged here since their detail is dropped from the response.
func fail(ctx context.Context, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindStoreUnavailable, apperr.KindProcessorUnavailable, apperr.KindBookedPendingRetry:
		logger.FromContext(ctx).Error("graphql resolver error", zap.Error(err))
	}
	return apperr.Public(err)
}
