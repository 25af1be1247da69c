package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"genserver/internal/domain"
	"genserver/internal/infra"
	"genserver/internal/storage"
)

// Materializer copies a provider-hosted result into our own durable storage
// and returns the stable reference. It either fully publishes or fails as a
// whole; a blob orphaned by a failure after upload is left for out-of-band
// cleanup.
type Materializer struct {
	store      storage.ObjectStore
	httpClient *http.Client
	logger     infra.Logger
	now        func() time.Time
}

// NewMaterializer constructs a materializer. httpClient may be nil.
func NewMaterializer(store storage.ObjectStore, httpClient *http.Client, logger infra.Logger) *Materializer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Materializer{store: store, httpClient: httpClient, logger: logger, now: time.Now}
}

// Materialize downloads the first result locator and re-uploads it under a
// collision-resistant key derived from user, timestamp and provider job id.
func (m *Materializer) Materialize(ctx context.Context, req *domain.GenerationRequest, handle domain.JobHandle, report domain.StatusReport) (*domain.Artifact, error) {
	if len(report.ResultURLs) == 0 {
		return nil, errors.New("materialize: no result locators")
	}
	data, contentType, err := m.download(ctx, report.ResultURLs[0])
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = defaultContentType(req.Kind)
	}

	key := fmt.Sprintf("generated/%s/%s/%s-%s%s",
		req.Kind,
		req.UserID,
		m.now().UTC().Format("20060102T150405"),
		handle.ProviderJobID,
		extensionForContentType(contentType),
	)
	publicURL, err := m.store.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("materialize: upload: %w", err)
	}

	m.logger.Debug().
		Str("request_id", req.ID).
		Str("storage_key", key).
		Int("bytes", len(data)).
		Msg("materialize: artifact stored")
	return &domain.Artifact{
		ID:          uuid.NewString(),
		RequestID:   req.ID,
		UserID:      req.UserID,
		Kind:        req.Kind,
		StorageKey:  key,
		URL:         publicURL,
		ContentType: contentType,
		Bytes:       int64(len(data)),
		CreatedAt:   m.now().UTC(),
	}, nil
}

func (m *Materializer) download(ctx context.Context, resultURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(resultURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("materialize: invalid result url: %s", resultURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("materialize: build download request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("materialize: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("materialize: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("materialize: read result: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func defaultContentType(kind domain.JobKind) string {
	switch kind {
	case domain.JobKindImage:
		return "image/png"
	case domain.JobKindVideo:
		return "video/mp4"
	case domain.JobKindSpeech:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

func extensionForContentType(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		return ".bin"
	}
}
