package handlers

import (
	"errors"
	"net/http"
	"strings"

	"genserver/internal/domain"
)

// CreditsGet reports a user's current balance.
func (a *App) CreditsGet(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id required")
		return
	}
	balance, err := a.Credits.Balance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no balance for user")
			return
		}
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: load balance failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"user_id": balance.UserID,
		"balance": balance.Balance,
	})
}
