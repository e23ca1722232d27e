package http

import (
	"net/http"

	"github.com/atinyakov/GraphPaste/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler of the paste service.
//
// Routes:
//
//	POST /graphql        → graphqlHandler.Post (single or batched operations)
//	GET  /graphql        → graphqlHandler.Get
//	GET  /subscriptions  → subscriptionHandler (graphql-ws over websocket)
//	GET  /health         → healthHandler
//	GET  /metrics        → metricsHandler
//
// Middleware chain (applied in order):
//  1. RealIP: takes the client address from proxy headers
//  2. Recoverer: turns panics into 500 responses
//  3. WithRequestLogging: logs incoming requests
//  4. Credentials: records the caller and its bearer token
func NewRouter(
	graphqlHandler *GraphQLHandler,
	subscriptionHandler *SubscriptionHandler,
	healthHandler *HealthHandler,
	metricsHandler http.Handler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.Credentials)

	r.With(chiMiddleware.AllowContentType("application/json", "application/graphql")).
		Post("/graphql", graphqlHandler.Post)
	r.Get("/graphql", graphqlHandler.Get)
	r.Get("/subscriptions", subscriptionHandler.ServeHTTP)
	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", metricsHandler)

	return r
}
