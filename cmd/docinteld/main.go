// docinteld is the processing daemon: worker pool, stale-claim reclaimer,
// and the metrics/health HTTP listener.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/common"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/document"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/enrich"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/llm"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/llm/anthropic"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/llm/openai"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/metrics"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/notify"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/pipeline"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/queue"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/repository"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/storage"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/validation"
	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)
	if err := repository.HealthCheck(ctx, pool, 3*time.Second); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewLocal(cfg.Storage.RootDir)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}

	q := queue.NewRedis(cfg.Redis, logger)
	defer func() { _ = q.Close() }()

	docs := repository.NewDocuments(pool)
	extractions := repository.NewExtractions(pool)
	validations := repository.NewValidations(pool)

	var providers []llm.Provider
	if cfg.Providers.AnthropicAPIKey != "" {
		providers = append(providers, anthropic.NewClient(anthropic.Config{
			APIKey:  cfg.Providers.AnthropicAPIKey,
			BaseURL: cfg.Providers.AnthropicBaseURL,
			Model:   cfg.Providers.AnthropicModel,
			Timeout: cfg.Providers.RequestTimeout,
		}, logger))
	}
	if cfg.Providers.OpenAIAPIKey != "" {
		providers = append(providers, openai.NewClient(openai.Config{
			APIKey:  cfg.Providers.OpenAIAPIKey,
			BaseURL: cfg.Providers.OpenAIBaseURL,
			Model:   cfg.Providers.OpenAIModel,
			Timeout: cfg.Providers.RequestTimeout,
		}, logger))
	}

	m := metrics.New(nil)
	caller := llm.NewCaller(providers, common.RetryPolicy{
		MaxAttempts: cfg.Pipeline.RetryMaxAttempts,
		BaseDelay:   cfg.Pipeline.RetryBaseDelay,
		MaxDelay:    cfg.Pipeline.RetryMaxDelay,
		Factor:      2,
	}, logger).WithMetrics(m)
	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Webhook.URL != "" {
		notifier = notify.NewWebhook(cfg.Webhook, logger)
	}

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Documents:   docs,
		Extractions: extractions,
		Validations: validations,
		Storage:     store,
		Processor: document.NewProcessor(document.Config{
			MaxPages:         cfg.Processing.MaxPages,
			DPI:              cfg.Processing.PDFDPI,
			MaxDimension:     cfg.Processing.MaxDimension,
			JPEGQuality:      cfg.Processing.JPEGQuality,
			ScannedTextChars: cfg.Processing.ScannedTextChars,
			Deskew:           cfg.Processing.Deskew,
			EnhanceContrast:  cfg.Processing.EnhanceContrast,
			PdftoppmBin:      cfg.Processing.PdftoppmBin,
		}, logger),
		Classifier: llm.NewClassifier(caller, cfg.Providers.ClassifyPages, logger),
		Extractor:  llm.NewExtractor(caller, cfg.Providers.PagesPerCall, cfg.Providers.MaxOutputTokens, logger),
		Validator: validation.NewValidator(validation.Tolerance{
			Abs: cfg.Pipeline.ToleranceAbs,
			Pct: cfg.Pipeline.TolerancePct,
		}),
		Enricher: enrich.NewEnricher(nil, logger),
		Notifier: notifier,
		Metrics:  m,
	}, cfg.Pipeline, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := repository.HealthCheck(r.Context(), pool, 2*time.Second); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":9090"
	}
	srv := &http.Server{Addr: httpAddr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.NewPool(q, orch, cfg.Pipeline.Workers, logger).Run(ctx)
	})
	g.Go(func() error {
		return worker.NewReclaimer(docs, q, cfg.Pipeline.ClaimTimeout, logger).Run(ctx)
	})
	g.Go(func() error {
		logger.Info("http listener started", "addr", httpAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if n, err := q.Len(ctx); err == nil {
					m.QueueDepth.Set(float64(n))
				}
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	logger.Info("docinteld started", "workers", cfg.Pipeline.Workers)
	if err := g.Wait(); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("docinteld stopped")
}
