package main

import (
	"net/http"

	"burndown/internal/shared/config"
	"burndown/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", deps.HealthHandler.HandleHealth)

	authMiddleware := middleware.Auth(deps.JWT)
	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(h)
	}

	mux.Handle("/api/plaid/link-token", protect(deps.PlaidHandler.HandleLinkToken))
	mux.Handle("/api/plaid/exchange", protect(deps.PlaidHandler.HandleExchange))
	mux.Handle("/api/plaid/connections", protect(deps.PlaidHandler.HandleConnections))
	mux.Handle("/api/plaid/connections/{id}", protect(deps.PlaidHandler.HandleConnectionByID))
	mux.Handle("/api/plaid/accounts", protect(deps.PlaidHandler.HandleAccounts))
	mux.Handle("/api/plaid/sync", protect(deps.PlaidHandler.HandleSync))
	mux.Handle("/api/plaid/budget", protect(deps.PlaidHandler.HandleBudget))

	// Apply global middleware
	handler := middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(mux))
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(middleware.Tracing(handler))
	}

	return handler
}
