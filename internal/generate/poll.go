package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"genserver/internal/domain"
	"genserver/internal/infra"
	"genserver/internal/metrics"
	"genserver/internal/provider"
)

// PollConfig tunes the status polling state machine.
type PollConfig struct {
	// BaseInterval is the wait before the second poll; subsequent waits
	// double up to MaxInterval.
	BaseInterval time.Duration
	// MaxInterval caps the backoff between polls.
	MaxInterval time.Duration
	// ThrottleMultiplier stretches the next wait when the provider reports
	// a throttled job.
	ThrottleMultiplier float64
	// MaxWait is the hard wall-clock ceiling; exceeding it yields timed_out.
	MaxWait time.Duration
	// MaxConsecutiveErrors bounds transient status-call failures before the
	// job is declared failed.
	MaxConsecutiveErrors int
}

func (c PollConfig) withDefaults() PollConfig {
	if c.BaseInterval <= 0 {
		c.BaseInterval = 2 * time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
	if c.MaxInterval < c.BaseInterval {
		c.MaxInterval = c.BaseInterval
	}
	if c.ThrottleMultiplier < 1 {
		c.ThrottleMultiplier = 2
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 5 * time.Minute
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = 5
	}
	return c
}

// Poller drives a submitted job to a terminal state. Waits are timer-driven
// and every wait point observes both the hard ceiling and the caller's
// cancellation; no lock is held across a wait.
type Poller struct {
	clients map[domain.JobKind]provider.Client
	cfg     PollConfig
	logger  infra.Logger
}

// NewPoller constructs a poller with defaults applied to cfg.
func NewPoller(clients map[domain.JobKind]provider.Client, cfg PollConfig, logger infra.Logger) *Poller {
	return &Poller{clients: clients, cfg: cfg.withDefaults(), logger: logger}
}

// Wait polls the handle until a terminal state and returns the final report.
// timed_out is assigned here when the ceiling elapses; the provider-side job
// is abandoned, not cancelled. A context error is returned as-is so the
// caller can run its refund path.
func (p *Poller) Wait(ctx context.Context, handle domain.JobHandle) (domain.StatusReport, error) {
	client, ok := p.clients[handle.Kind]
	if !ok {
		return domain.StatusReport{}, fmt.Errorf("poll: no provider configured for kind %q", handle.Kind)
	}

	deadline := time.NewTimer(p.cfg.MaxWait)
	defer deadline.Stop()
	// Zero wait so the first poll fires immediately.
	poll := time.NewTimer(0)
	defer poll.Stop()

	interval := p.cfg.BaseInterval
	consecutiveErrs := 0

	for {
		select {
		case <-ctx.Done():
			return domain.StatusReport{}, ctx.Err()
		case <-deadline.C:
			return domain.StatusReport{
				State:  domain.JobStateTimedOut,
				Reason: fmt.Sprintf("no terminal state within %s", p.cfg.MaxWait),
			}, nil
		case <-poll.C:
		}

		report, err := client.Status(ctx, handle)
		metrics.PollsTotal.WithLabelValues(string(handle.Kind)).Inc()
		if err != nil {
			if ctx.Err() != nil {
				return domain.StatusReport{}, ctx.Err()
			}
			var rejected *provider.RejectedError
			if errors.As(err, &rejected) {
				// The provider no longer recognizes the job; polling again
				// cannot change that.
				return domain.StatusReport{State: domain.JobStateFailed, Reason: rejected.Error()}, nil
			}
			consecutiveErrs++
			if consecutiveErrs >= p.cfg.MaxConsecutiveErrors {
				return domain.StatusReport{
					State:  domain.JobStateFailed,
					Reason: fmt.Sprintf("provider unreachable after %d polls: %v", consecutiveErrs, err),
				}, nil
			}
			p.logger.Warn().Err(err).
				Str("provider_job_id", handle.ProviderJobID).
				Int("consecutive_errors", consecutiveErrs).
				Msg("poll: status call failed")
			poll.Reset(interval)
			interval = nextInterval(interval, p.cfg.MaxInterval)
			continue
		}
		consecutiveErrs = 0

		switch report.State {
		case domain.JobStateSucceeded, domain.JobStateFailed:
			return report, nil
		case domain.JobStateThrottled:
			wait := time.Duration(float64(interval) * p.cfg.ThrottleMultiplier)
			p.logger.Debug().
				Str("provider_job_id", handle.ProviderJobID).
				Dur("wait", wait).
				Msg("poll: provider throttled")
			poll.Reset(wait)
		default:
			poll.Reset(interval)
		}
		interval = nextInterval(interval, p.cfg.MaxInterval)
	}
}

func nextInterval(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
