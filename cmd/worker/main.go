package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"genserver/internal/adapter/repo"
	"genserver/internal/domain"
	"genserver/internal/generate"
	"genserver/internal/infra"
	"genserver/internal/ledger"
	"genserver/internal/provider"
	"genserver/internal/storage"
)

type worker struct {
	ctx          context.Context
	requests     domain.RequestRepository
	artifacts    domain.ArtifactRepository
	orchestrator *generate.Orchestrator
	logger       infra.Logger
	idleSleep    time.Duration
	slots        chan struct{}
	wg           sync.WaitGroup
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	store, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	clients, err := provider.NewRegistry(provider.RegistryOptions{
		APIKey:     cfg.ProviderAPIKey,
		BaseURL:    cfg.ProviderBaseURL,
		HTTPClient: httpClient,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure providers")
	}
	if cfg.ProviderAPIKey == "" {
		logger.Warn().Msg("worker: provider api key missing, submissions will fail")
	}

	quota := ledger.New(repo.NewCreditRepository(pool), repo.NewLedgerRepository(pool), logger)
	orchestrator := generate.NewOrchestrator(
		quota,
		generate.NewSubmitter(clients),
		generate.NewPoller(clients, generate.PollConfig{
			BaseInterval:       cfg.PollBaseInterval,
			MaxInterval:        cfg.PollMaxInterval,
			ThrottleMultiplier: cfg.PollThrottleFactor,
			MaxWait:            cfg.PollMaxWait,
		}, logger),
		generate.NewMaterializer(store, httpClient, logger),
		logger,
	)

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	w := &worker{
		ctx:          ctx,
		requests:     repo.NewRequestRepository(pool),
		artifacts:    repo.NewArtifactRepository(pool),
		orchestrator: orchestrator,
		logger:       logger,
		idleSleep:    cfg.WorkerIdleSleep,
		slots:        make(chan struct{}, concurrency),
	}

	if err := w.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	w.wg.Wait()
	logger.Info().Msg("worker: stopped")
}

// Run claims queued requests and hands each to its own goroutine, bounded by
// the concurrency slots. Each request is an independent unit of execution;
// the dominant cost is waiting on the provider, not CPU.
func (w *worker) Run() error {
	w.logger.Info().Int("concurrency", cap(w.slots)).Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		case w.slots <- struct{}{}:
		}

		req, err := w.requests.Claim(w.ctx)
		if err != nil {
			<-w.slots
			if errors.Is(err, domain.ErrNoPendingRequest) {
				w.sleep()
				continue
			}
			if w.ctx.Err() != nil {
				return w.ctx.Err()
			}
			w.logger.Error().Err(err).Msg("worker: claim failed")
			w.sleep()
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.slots }()
			w.process(req)
		}()
	}
}

func (w *worker) process(req *domain.GenerationRequest) {
	w.logger.Info().
		Str("request_id", req.ID).
		Str("kind", string(req.Kind)).
		Msg("worker: picked request")

	artifact, err := w.orchestrator.Generate(w.ctx, req)

	// Outcome bookkeeping runs on its own context so a shutdown mid-request
	// still records what happened.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), 15*time.Second)
	defer cancel()

	if err != nil {
		w.logger.Error().Err(err).Str("request_id", req.ID).Msg("worker: generation failed")
		if markErr := w.requests.MarkOutcome(ctx, req.ID, domain.RequestStatusFailed, err.Error(), ""); markErr != nil {
			w.logger.Error().Err(markErr).Str("request_id", req.ID).Msg("worker: mark outcome failed")
		}
		return
	}

	if saveErr := w.artifacts.Save(ctx, artifact); saveErr != nil {
		w.logger.Error().Err(saveErr).Str("request_id", req.ID).Msg("worker: save artifact failed")
	}
	if markErr := w.requests.MarkOutcome(ctx, req.ID, domain.RequestStatusSucceeded, "", artifact.URL); markErr != nil {
		w.logger.Error().Err(markErr).Str("request_id", req.ID).Msg("worker: mark outcome failed")
	}
}

func (w *worker) sleep() {
	select {
	case <-w.ctx.Done():
	case <-time.After(w.idleSleep):
	}
}
