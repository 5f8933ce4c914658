// Package graph exposes the entity graph and the booking mutations over
// GraphQL. Root fields go through the handler; relation fields go through the
// per-request loaders.
package graph

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"go.uber.org/zap"

	"tutoring-api/internal/loader"
	"tutoring-api/internal/logger"
)

//go:embed schema.graphql
var schemaSDL string

// NewSchema parses the schema against r. Sibling fields resolve concurrently,
// at most maxParallelism at a time.
func NewSchema(r *Resolver, maxParallelism int) (*graphql.Schema, error) {
	if maxParallelism <= 0 {
		maxParallelism = 10
	}
	s, err := graphql.ParseSchema(schemaSDL, r,
		graphql.MaxParallelism(maxParallelism),
		graphql.Logger(panicLogger{}),
	)
	if err != nil {
		return nil, fmt.Errorf("parse graphql schema: %w", err)
	}
	return s, nil
}

// Handler serves the schema over HTTP with a fresh set of loaders per request.
func Handler(s *graphql.Schema, repo loader.Repository) http.Handler {
	return loader.Middleware(repo)(&relay.Handler{Schema: s})
}

type panicLogger struct{}

func (panicLogger) LogPanic(ctx context.Context, value interface{}) {
	logger.FromContext(ctx).Error("graphql resolver panic", zap.Any("panic", value), zap.Stack("stack"))
}
