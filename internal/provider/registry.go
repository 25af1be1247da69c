package provider

import (
	"net/http"
	"time"

	"genserver/internal/domain"
	"genserver/internal/infra"
)

// RegistryOptions configures one client per job kind against a shared API.
type RegistryOptions struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// NewRegistry builds a client for every supported job kind.
func NewRegistry(opts RegistryOptions) (map[domain.JobKind]Client, error) {
	kinds := []domain.JobKind{domain.JobKindImage, domain.JobKindVideo, domain.JobKindSpeech}
	registry := make(map[domain.JobKind]Client, len(kinds))
	for _, kind := range kinds {
		client, err := NewClient(Options{
			APIKey:         opts.APIKey,
			BaseURL:        opts.BaseURL,
			Kind:           kind,
			HTTPClient:     opts.HTTPClient,
			Logger:         opts.Logger,
			RequestTimeout: opts.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		registry[kind] = client
	}
	return registry, nil
}
