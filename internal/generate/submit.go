package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"genserver/internal/domain"
	"genserver/internal/provider"
)

// Submitter converts a validated request into exactly one provider call.
// It never retries: provider submissions are not idempotent, so a retry is
// the caller's decision and takes the shape of a brand-new request with a
// fresh reservation.
type Submitter struct {
	clients map[domain.JobKind]provider.Client
}

// NewSubmitter constructs a submitter over the per-kind provider clients.
func NewSubmitter(clients map[domain.JobKind]provider.Client) *Submitter {
	return &Submitter{clients: clients}
}

// Submit validates the parameter bag for the request's kind and performs the
// single outbound call. Failures are classified: malformed parameters are the
// caller's fault, a provider rejection is definitive, and a transport failure
// is retryable only as a new request.
func (s *Submitter) Submit(ctx context.Context, req *domain.GenerationRequest) (domain.JobHandle, error) {
	client, ok := s.clients[req.Kind]
	if !ok {
		return domain.JobHandle{}, domain.NewGenerationError(domain.ErrInvalidRequest,
			fmt.Sprintf("no provider configured for kind %q", req.Kind), nil)
	}
	if err := validateParams(req.Kind, req.Params); err != nil {
		return domain.JobHandle{}, domain.NewGenerationError(domain.ErrInvalidRequest, err.Error(), err)
	}

	handle, err := client.Submit(ctx, req.Params)
	if err != nil {
		var rejected *provider.RejectedError
		if errors.As(err, &rejected) {
			return domain.JobHandle{}, domain.NewGenerationError(domain.ErrSubmissionFailed, rejected.Message, err)
		}
		if errors.Is(err, provider.ErrMissingAPIKey) {
			return domain.JobHandle{}, domain.NewGenerationError(domain.ErrSubmissionFailed, "provider credentials missing", err)
		}
		genErr := domain.NewGenerationError(domain.ErrSubmissionFailed, "provider unreachable", err)
		genErr.Retryable = true
		return domain.JobHandle{}, genErr
	}
	return handle, nil
}

var requiredParams = map[domain.JobKind][]string{
	domain.JobKindImage:  {"prompt"},
	domain.JobKindVideo:  {"prompt", "source_image"},
	domain.JobKindSpeech: {"text", "voice"},
}

// validateParams checks the required fields for a kind before any outbound
// call. The bag stays opaque beyond the presence of these keys.
func validateParams(kind domain.JobKind, params json.RawMessage) error {
	var bag map[string]any
	if len(params) == 0 {
		return fmt.Errorf("%s job: parameters are required", kind)
	}
	if err := json.Unmarshal(params, &bag); err != nil {
		return fmt.Errorf("%s job: parameters are not a JSON object", kind)
	}
	for _, field := range requiredParams[kind] {
		value, ok := bag[field]
		if !ok {
			return fmt.Errorf("%s job: %q parameter is required", kind, field)
		}
		if text, isString := value.(string); isString && strings.TrimSpace(text) == "" {
			return fmt.Errorf("%s job: %q parameter is empty", kind, field)
		}
	}
	return nil
}
