package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/intervue/internal/adapters/asr"
	"github.com/okian/intervue/internal/adapters/blob"
	"github.com/okian/intervue/internal/adapters/catalog"
	"github.com/okian/intervue/internal/adapters/http/api"
	"github.com/okian/intervue/internal/adapters/http/swagger"
	"github.com/okian/intervue/internal/adapters/llm/gemini"
	"github.com/okian/intervue/internal/adapters/repository"
	service "github.com/okian/intervue/internal/app"
	"github.com/okian/intervue/internal/config"
	"github.com/okian/intervue/internal/domain/report"
	"github.com/okian/intervue/internal/domain/scoring"
	"github.com/okian/intervue/pkg/logger"
)

// HTTP server timeouts. Writes cover a full chat turn or report scoring
// against the LLM, retries included.
const (
	readTimeout       = 30 * time.Second
	writeTimeout      = 3 * time.Minute
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newServeCmd(f *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the attempt, report and relay API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := setup(ctx, f)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			defer func() { _ = logger.Sync() }()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// buildService wires the store, catalog, blob store, LLM, speech backend and
// report engine selected by cfg.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, error) {
	store, err := repository.New(cfg.Store.Driver, cfg.Store.DSN,
		repository.WithSQLLogging(cfg.Store.LogSQL),
		repository.WithLogger(log.Named("repository")),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	blobs, err := blob.New(cfg.Blob.Dir)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	llm := newLLM(ctx, cfg.LLM, log)
	engineOpts := []report.Option{
		report.WithHeuristic(newHeuristic(cfg.Scoring)),
		report.WithLogger(log.Named("report")),
	}
	opts := []service.Option{
		service.WithStore(store),
		service.WithCatalog(cat),
		service.WithBlobs(blobs),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithBypassLLM(cfg.Scoring.BypassLLM),
		service.WithLogger(log.Named("service")),
	}
	if llm != nil {
		engineOpts = append(engineOpts, report.WithCompleter(llm))
		opts = append(opts, service.WithReplier(llm))
	}
	if cfg.ASR.URL != "" {
		opts = append(opts, service.WithTranscriber(asr.New(cfg.ASR.URL, cfg.ASR.Timeout)))
	} else {
		log.Info(ctx, "no speech backend configured; relay transcription disabled")
	}
	opts = append(opts, service.WithEngine(report.NewEngine(engineOpts...)))
	return service.New(opts...), nil
}

// newLLM returns nil when no model is configured, so callers never hold a
// typed nil. A missing key only degrades the service to heuristic scoring
// and canned interviewer replies.
func newLLM(ctx context.Context, cfg config.LLMConfig, log logger.Logger) *gemini.Client {
	if cfg.Provider == "none" {
		log.Info(ctx, "llm disabled by configuration")
		return nil
	}
	c, err := gemini.New(ctx, cfg.APIKey,
		gemini.WithModel(cfg.Model),
		gemini.WithTemperature(cfg.Temperature),
		gemini.WithMaxRetries(cfg.MaxRetries),
		gemini.WithTimeout(cfg.Timeout),
		gemini.WithLogger(log.Named("gemini")),
	)
	if err != nil {
		log.Warn(ctx, "llm unavailable; using fallback scoring", logger.Error(err))
		return nil
	}
	log.Info(ctx, "llm ready", logger.String("model", c.Model()))
	return c
}

func newHeuristic(cfg config.ScoringConfig) *scoring.Heuristic {
	return scoring.NewHeuristic(
		scoring.WithMinWords(cfg.MinWords),
		scoring.WithLengthCap(cfg.LengthCap),
	)
}
