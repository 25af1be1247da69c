package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"genserver/internal/domain"
	"genserver/internal/infra"
	"genserver/internal/ledger"
	"genserver/internal/metrics"
)

// paramsSummaryLimit bounds how much of a prompt the audit row carries.
const paramsSummaryLimit = 140

// Orchestrator composes reservation, submission, polling, materialization and
// settlement into one operation per request. Stages run strictly in order;
// every exit path past the reservation refunds before returning its error,
// and every terminal outcome writes exactly one ledger entry.
type Orchestrator struct {
	ledger       *ledger.QuotaLedger
	submitter    *Submitter
	poller       *Poller
	materializer *Materializer
	logger       infra.Logger
	now          func() time.Time
}

// NewOrchestrator wires the four stages together.
func NewOrchestrator(quota *ledger.QuotaLedger, submitter *Submitter, poller *Poller, materializer *Materializer, logger infra.Logger) *Orchestrator {
	return &Orchestrator{
		ledger:       quota,
		submitter:    submitter,
		poller:       poller,
		materializer: materializer,
		logger:       logger,
		now:          time.Now,
	}
}

// Generate runs one request to a terminal outcome. On success the returned
// artifact is durably stored and the user's balance reflects a net debit of
// the request's cost; on any typed failure the balance is unchanged.
func (o *Orchestrator) Generate(ctx context.Context, req *domain.GenerationRequest) (*domain.Artifact, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	res, err := o.ledger.Reserve(ctx, req.UserID, req.Cost)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredit) {
			// Nothing was attempted; no ledger entry is owed.
			metrics.GenerationsTotal.WithLabelValues(string(req.Kind), "insufficient_credit").Inc()
			return nil, domain.NewGenerationError(domain.ErrKindInsufficient,
				fmt.Sprintf("balance cannot cover %d credits", req.Cost), err)
		}
		return nil, fmt.Errorf("reserve credits: %w", err)
	}
	submittedAt := o.now().UTC()

	handle, err := o.submitter.Submit(ctx, req)
	if err != nil {
		return nil, o.fail(ctx, req, res, submittedAt, asGenerationError(err, domain.ErrSubmissionFailed))
	}
	o.logger.Info().
		Str("request_id", req.ID).
		Str("provider_job_id", handle.ProviderJobID).
		Str("kind", string(req.Kind)).
		Msg("generate: job submitted")

	report, err := o.poller.Wait(ctx, handle)
	if err != nil {
		// Caller cancelled or the poller broke; the provider job is
		// abandoned and no artifact was produced, so refund.
		cleanupErr := o.fail(ctx, req, res, submittedAt,
			domain.NewGenerationError(domain.ErrJobFailed, "polling aborted: "+err.Error(), err))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, cleanupErr
	}

	switch report.State {
	case domain.JobStateFailed:
		return nil, o.fail(ctx, req, res, submittedAt,
			domain.NewGenerationError(domain.ErrJobFailed, report.Reason, nil))
	case domain.JobStateTimedOut:
		genErr := domain.NewGenerationError(domain.ErrJobTimedOut, report.Reason, nil)
		genErr.Retryable = true
		return nil, o.fail(ctx, req, res, submittedAt, genErr)
	case domain.JobStateSucceeded:
	default:
		return nil, o.fail(ctx, req, res, submittedAt,
			domain.NewGenerationError(domain.ErrJobFailed, fmt.Sprintf("poll loop returned non-terminal state %q", report.State), nil))
	}

	artifact, err := o.materializer.Materialize(ctx, req, handle, report)
	if err != nil {
		// The user does not pay for a result that could not be delivered.
		return nil, o.fail(ctx, req, res, submittedAt,
			domain.NewGenerationError(domain.ErrMaterializationFailed, err.Error(), err))
	}

	if err := o.ledger.Settle(ctx, res); err != nil {
		// The debit already happened at reserve time; a stale reservation
		// state does not change what the user was charged.
		o.logger.Warn().Err(err).Str("request_id", req.ID).Msg("generate: settle failed")
	}
	o.record(ctx, &domain.LedgerEntry{
		RequestID:      req.ID,
		UserID:         req.UserID,
		Kind:           req.Kind,
		ParamsSummary:  summarizeParams(req.Params),
		CreditsCharged: req.Cost,
		Outcome:        domain.LedgerOutcomeSucceeded,
		ArtifactURL:    artifact.URL,
		SubmittedAt:    submittedAt,
		CompletedAt:    o.now().UTC(),
	})
	metrics.GenerationsTotal.WithLabelValues(string(req.Kind), "succeeded").Inc()
	o.logger.Info().
		Str("request_id", req.ID).
		Str("artifact_url", artifact.URL).
		Msg("generate: succeeded")
	return artifact, nil
}

// fail runs the shared failure path: refund first, then the audit row, then
// hand the typed error back. Invalid requests never reserved, so they bypass
// this entirely.
func (o *Orchestrator) fail(ctx context.Context, req *domain.GenerationRequest, res *domain.Reservation, submittedAt time.Time, genErr *domain.GenerationError) error {
	// Cleanup must survive the caller's cancellation: the refund guarantee
	// holds even when the request context is already dead.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := o.refundWithRetry(ctx, res); err != nil {
		o.logger.Error().Err(err).
			Str("request_id", req.ID).
			Str("reservation_id", res.ID).
			Msg("generate: refund failed, credits remain held")
	}
	o.record(ctx, &domain.LedgerEntry{
		RequestID:      req.ID,
		UserID:         req.UserID,
		Kind:           req.Kind,
		ParamsSummary:  summarizeParams(req.Params),
		CreditsCharged: 0,
		Outcome:        domain.LedgerOutcomeFailed,
		FailureReason:  genErr.Error(),
		SubmittedAt:    submittedAt,
		CompletedAt:    o.now().UTC(),
	})
	metrics.GenerationsTotal.WithLabelValues(string(req.Kind), string(genErr.Kind)).Inc()
	return genErr
}

// refundWithRetry refunds the reservation, retrying once. Refund is
// idempotent at the store, so the retry cannot double-credit.
func (o *Orchestrator) refundWithRetry(ctx context.Context, res *domain.Reservation) error {
	if err := o.ledger.Refund(ctx, res); err == nil {
		return nil
	}
	return o.ledger.Refund(ctx, res)
}

func (o *Orchestrator) record(ctx context.Context, entry *domain.LedgerEntry) {
	if err := o.ledger.Record(ctx, entry); err != nil {
		o.logger.Warn().Err(err).
			Str("request_id", entry.RequestID).
			Msg("generate: ledger entry not durable")
	}
}

func validateRequest(req *domain.GenerationRequest) error {
	switch {
	case req == nil:
		return domain.NewGenerationError(domain.ErrInvalidRequest, "request is nil", nil)
	case req.ID == "":
		return domain.NewGenerationError(domain.ErrInvalidRequest, "request id is required", nil)
	case req.UserID == "":
		return domain.NewGenerationError(domain.ErrInvalidRequest, "user id is required", nil)
	case !domain.KnownKind(req.Kind):
		return domain.NewGenerationError(domain.ErrInvalidRequest, fmt.Sprintf("unknown job kind %q", req.Kind), nil)
	case req.Cost <= 0:
		return domain.NewGenerationError(domain.ErrInvalidRequest, "cost must be positive", nil)
	}
	return nil
}

// asGenerationError keeps an already-typed error, wrapping anything else
// under the fallback kind.
func asGenerationError(err error, fallback domain.ErrorKind) *domain.GenerationError {
	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	return domain.NewGenerationError(fallback, err.Error(), err)
}

// summarizeParams redacts the parameter bag down to its prompt text for the
// audit row. Raw payloads never reach the ledger.
func summarizeParams(params json.RawMessage) string {
	var bag map[string]any
	if err := json.Unmarshal(params, &bag); err != nil {
		return ""
	}
	for _, field := range []string{"prompt", "text"} {
		if text, ok := bag[field].(string); ok && text != "" {
			if len(text) > paramsSummaryLimit {
				return text[:paramsSummaryLimit]
			}
			return text
		}
	}
	return fmt.Sprintf("%d parameters", len(bag))
}
