package handlers

import (
	"net/http"
	"strconv"
	"strings"
)

// ArtifactsList returns a user's most recent artifacts.
func (a *App) ArtifactsList(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	artifacts, err := a.Artifacts.ListByUser(r.Context(), userID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: list artifacts failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list artifacts")
		return
	}
	items := make([]map[string]any, 0, len(artifacts))
	for _, artifact := range artifacts {
		items = append(items, map[string]any{
			"id":           artifact.ID,
			"request_id":   artifact.RequestID,
			"kind":         artifact.Kind,
			"url":          artifact.URL,
			"content_type": artifact.ContentType,
			"bytes":        artifact.Bytes,
			"created_at":   artifact.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
