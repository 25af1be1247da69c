package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genserver/internal/domain"
	"genserver/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("provider: api key is required")

// RejectedError is a definitive provider-side rejection (4xx). Submitting the
// same payload again will fail the same way, so callers must not retry it.
type RejectedError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider: rejected (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider: rejected (%d)", e.StatusCode)
}

// Client is one asynchronous inference provider: submit returns a job handle,
// status dereferences it. Both are single calls with no internal retry.
type Client interface {
	Submit(ctx context.Context, params json.RawMessage) (domain.JobHandle, error)
	Status(ctx context.Context, handle domain.JobHandle) (domain.StatusReport, error)
}

// Options configures the async job API client.
type Options struct {
	APIKey         string
	BaseURL        string
	Kind           domain.JobKind
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// HTTPClient talks to an async job API: POST /v1/jobs/{kind} accepts work and
// returns a job id, GET /v1/jobs/{kind}/{id} reports progress.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	kind       domain.JobKind
	httpClient *http.Client
	logger     *infra.Logger
}

type submitResponse struct {
	JobID   string `json:"job_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Reason  string `json:"reason"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results []struct {
		URL string `json:"url"`
	} `json:"results"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*HTTPClient, error) {
	if !domain.KnownKind(opts.Kind) {
		return nil, fmt.Errorf("provider: unknown job kind %q", opts.Kind)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("provider: base url is required")
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &HTTPClient{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		kind:       opts.Kind,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Kind returns the job kind this client submits.
func (c *HTTPClient) Kind() domain.JobKind {
	return c.kind
}

// Submit performs exactly one job-accepting call and returns the handle.
func (c *HTTPClient) Submit(ctx context.Context, params json.RawMessage) (domain.JobHandle, error) {
	if c.apiKey == "" {
		return domain.JobHandle{}, ErrMissingAPIKey
	}
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	endpoint := fmt.Sprintf("%s/v1/jobs/%s", c.baseURL, c.kind)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(params))
	if err != nil {
		return domain.JobHandle{}, fmt.Errorf("provider: build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.JobHandle{}, fmt.Errorf("provider: submit request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.JobHandle{}, fmt.Errorf("provider: read submit response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, raw); err != nil {
		return domain.JobHandle{}, err
	}

	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.JobHandle{}, fmt.Errorf("provider: decode submit response: %w", err)
	}
	if decoded.Code != "" {
		return domain.JobHandle{}, &RejectedError{StatusCode: resp.StatusCode, Code: decoded.Code, Message: decoded.Message}
	}
	if strings.TrimSpace(decoded.JobID) == "" {
		return domain.JobHandle{}, errors.New("provider: empty job id in submit response")
	}
	c.logger.Debug().
		Str("kind", string(c.kind)).
		Str("provider_job_id", decoded.JobID).
		Msg("provider: job submitted")
	return domain.JobHandle{ProviderJobID: decoded.JobID, Kind: c.kind}, nil
}

// Status dereferences the handle once and maps the provider's answer into the
// normalized report.
func (c *HTTPClient) Status(ctx context.Context, handle domain.JobHandle) (domain.StatusReport, error) {
	if c.apiKey == "" {
		return domain.StatusReport{}, ErrMissingAPIKey
	}
	endpoint := fmt.Sprintf("%s/v1/jobs/%s/%s", c.baseURL, handle.Kind, handle.ProviderJobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.StatusReport{}, fmt.Errorf("provider: build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.StatusReport{}, fmt.Errorf("provider: status request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.StatusReport{}, fmt.Errorf("provider: read status response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, raw); err != nil {
		return domain.StatusReport{}, err
	}

	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.StatusReport{}, fmt.Errorf("provider: decode status response: %w", err)
	}
	report := domain.StatusReport{
		State:  mapState(decoded.Status),
		Reason: strings.TrimSpace(decoded.Reason),
	}
	if report.Reason == "" {
		report.Reason = strings.TrimSpace(decoded.Message)
	}
	for _, result := range decoded.Results {
		if url := strings.TrimSpace(result.URL); url != "" {
			report.ResultURLs = append(report.ResultURLs, url)
		}
	}
	if report.State == domain.JobStateSucceeded && len(report.ResultURLs) == 0 {
		return domain.StatusReport{}, errors.New("provider: succeeded without result urls")
	}
	return report, nil
}

// checkStatus turns HTTP failures into the submit/poll error taxonomy:
// 4xx is a definitive rejection, anything else >= 300 is transport-class.
func checkStatus(statusCode int, raw []byte) error {
	if statusCode < 300 {
		return nil
	}
	var detail errorResponse
	_ = json.Unmarshal(raw, &detail)
	if statusCode >= 400 && statusCode < 500 {
		return &RejectedError{StatusCode: statusCode, Code: detail.Code, Message: detail.Message}
	}
	if detail.Message != "" {
		return fmt.Errorf("provider: status %d: %s", statusCode, detail.Message)
	}
	return fmt.Errorf("provider: status %d: %s", statusCode, strings.TrimSpace(string(raw)))
}

// mapState normalizes provider status strings. Unknown values map to running:
// an unrecognized state keeps the job alive until the poll ceiling rather
// than failing a job the provider may still finish.
func mapState(status string) domain.JobState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "queued", "pending", "submitted":
		return domain.JobStateQueued
	case "running", "processing", "in_progress":
		return domain.JobStateRunning
	case "throttled", "rate_limited":
		return domain.JobStateThrottled
	case "succeeded", "success", "completed":
		return domain.JobStateSucceeded
	case "failed", "error", "canceled":
		return domain.JobStateFailed
	default:
		return domain.JobStateRunning
	}
}

var _ Client = (*HTTPClient)(nil)
