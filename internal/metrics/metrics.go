package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationsTotal counts finished generation attempts by kind and outcome.
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "genserver",
		Name:      "generations_total",
		Help:      "Generation attempts by job kind and terminal outcome.",
	}, []string{"kind", "outcome"})

	// PollsTotal counts status polls against providers.
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "genserver",
		Name:      "provider_polls_total",
		Help:      "Status polls issued to providers, by job kind.",
	}, []string{"kind"})

	// CreditsRefunded accumulates credits returned to users on failure paths.
	CreditsRefunded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "genserver",
		Name:      "credits_refunded_total",
		Help:      "Credits refunded after failed or abandoned generations.",
	})

	// LedgerWriteFailures counts audit rows that could not be appended after retry.
	LedgerWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "genserver",
		Name:      "ledger_write_failures_total",
		Help:      "Ledger appends that failed even after a retry.",
	})
)
