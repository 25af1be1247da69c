package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"genserver/internal/domain"
)

type generationCreateRequest struct {
	UserID string          `json:"user_id"`
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

type generationCreateResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Cost      int    `json:"cost"`
}

// GenerationsCreate enqueues a generation request. The credit reservation is
// the worker's job; the balance check here is only an early, advisory
// rejection so obviously underfunded requests never enter the queue.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	var body generationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	userID := strings.TrimSpace(body.UserID)
	if userID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}
	kind := domain.JobKind(strings.TrimSpace(body.Kind))
	if !domain.KnownKind(kind) {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported job kind")
		return
	}
	if len(body.Params) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "params are required")
		return
	}
	cost := domain.CostFor(kind)

	if balance, err := a.Credits.Balance(r.Context(), userID); err == nil && balance.Balance < cost {
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits for this job")
		return
	}

	req := &domain.GenerationRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Params:    body.Params,
		Cost:      cost,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.Requests.Enqueue(r.Context(), req); err != nil {
		a.Logger.Error().Err(err).Msg("handlers: enqueue generation failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue request")
		return
	}
	a.json(w, http.StatusAccepted, generationCreateResponse{
		RequestID: req.ID,
		Status:    string(domain.RequestStatusQueued),
		Cost:      cost,
	})
}

// GenerationsGet reports the status and, once available, the artifact of a
// request.
func (a *App) GenerationsGet(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "request_id")
	if requestID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "request_id required")
		return
	}
	rec, err := a.Requests.GetByID(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "request not found")
			return
		}
		a.Logger.Error().Err(err).Str("request_id", requestID).Msg("handlers: load generation failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load request")
		return
	}
	resp := map[string]any{
		"request_id": rec.ID,
		"user_id":    rec.UserID,
		"kind":       rec.Kind,
		"status":     rec.Status,
		"cost":       rec.Cost,
		"created_at": rec.CreatedAt,
		"updated_at": rec.UpdatedAt,
	}
	if rec.ArtifactURL != "" {
		resp["artifact_url"] = rec.ArtifactURL
	}
	if rec.Status == domain.RequestStatusFailed {
		resp["error"] = userFacingFailure(rec.ErrorMessage)
	}
	a.json(w, http.StatusOK, resp)
}

// userFacingFailure maps the stored failure onto the two messages callers are
// allowed to see. The refund guarantee is what makes the generic message safe.
func userFacingFailure(stored string) string {
	if strings.HasPrefix(stored, string(domain.ErrKindInsufficient)) {
		return "not enough credits"
	}
	return "generation failed, no credits were charged"
}
