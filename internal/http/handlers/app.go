package handlers

import (
	"encoding/json"
	"net/http"

	"genserver/internal/domain"
	"genserver/internal/infra"
)

// App bundles the dependencies shared by the HTTP handlers.
type App struct {
	Requests  domain.RequestRepository
	Credits   domain.CreditStore
	Artifacts domain.ArtifactRepository
	Logger    infra.Logger
}

// NewApp constructs the handler container.
func NewApp(requests domain.RequestRepository, credits domain.CreditStore, artifacts domain.ArtifactRepository, logger infra.Logger) *App {
	return &App{Requests: requests, Credits: credits, Artifacts: artifacts, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}
