// Package api exposes the token registration endpoints the mobile and web
// clients call when a device obtains or abandons a push token.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/fieldcrew/go-push-service/pkg/dispatch"
)

type TokenAPI struct {
	store  dispatch.RegistryStore
	valid  func(token string) bool
	logger *slog.Logger
}

// NewTokenAPI wires the registry plus the active provider's token-format
// predicate, so a token the provider would never accept is rejected at the
// door instead of polluting the registry.
func NewTokenAPI(store dispatch.RegistryStore, valid func(string) bool, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		store:  store,
		valid:  valid,
		logger: logger.With("component", "TokenAPI"),
	}
}

type tokenRequest struct {
	Scope string `json:"scope"`
	Token string `json:"token"`
}

// RegisterToken handles PUT /tokens: append one token to the authenticated
// user's registry under the given scope.
func (api *TokenAPI) RegisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Scope == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing scope")
		return
	}
	if req.Token == "" || !api.valid(req.Token) {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid token format")
		return
	}

	if err := api.store.AddToken(ctx, userID, req.Scope, req.Token); err != nil {
		if errors.Is(err, dispatch.ErrUserNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		api.logger.Error("failed to register token", "user_id", userID, "scope", req.Scope, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	api.logger.Info("token registered", "user_id", userID, "scope", req.Scope)
	w.WriteHeader(http.StatusNoContent)
}

// UnregisterToken handles DELETE /tokens: remove one scoped token.
// Idempotent; removing a token that was never registered still succeeds.
func (api *TokenAPI) UnregisterToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Scope == "" || req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing scope or token")
		return
	}

	if err := api.store.RemoveTokens(ctx, userID, map[string][]string{req.Scope: {req.Token}}); err != nil {
		// Idempotency is preferred for unregister; log and report success.
		api.logger.Warn("failed to unregister token", "user_id", userID, "scope", req.Scope, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}
