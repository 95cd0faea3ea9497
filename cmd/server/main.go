package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgallion1/pdfrag/internal/api"
	"github.com/dgallion1/pdfrag/internal/chat"
	"github.com/dgallion1/pdfrag/internal/config"
	"github.com/dgallion1/pdfrag/internal/llm"
	"github.com/dgallion1/pdfrag/internal/metrics"
	"github.com/dgallion1/pdfrag/internal/pipeline"
	"github.com/dgallion1/pdfrag/internal/rag"
	"github.com/dgallion1/pdfrag/internal/vectorstore"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := cfg.NewLogger()
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.Warn("could not read .env", "error", envErr)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize clients.
	gemini, err := llm.NewClient(ctx, llm.ClientConfig{
		APIKey:            cfg.GeminiAPIKey,
		Model:             cfg.GeminiModel,
		EmbedModel:        cfg.GeminiEmbedModel,
		EmbedBatchSize:    cfg.EmbedBatchSize,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
	}, log, m)
	if err != nil {
		log.Error("gemini client", "error", err)
		os.Exit(1)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("vector store", "backend", cfg.VectorBackend, "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, gemini, store, log, m)
	orch.Start(ctx)
	metrics.RegisterQueueDepth(reg, orch.QueueDepth)

	engine := rag.NewEngine(gemini, gemini, store, rag.Config{
		DefaultTopK:   cfg.DefaultTopK,
		MaxTopK:       cfg.MaxTopK,
		MinSimilarity: cfg.MinSimilarity,
		PreviewChars:  cfg.PreviewChars,
	}, log, m)

	sessions := chat.NewStore(cfg.SessionTTL)
	go sessions.Run(ctx, 10*time.Minute)

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Orchestrator: orch,
		Store:        store,
		Engine:       engine,
		Sessions:     sessions,
		LLMStats:     gemini.Stats,
		EmbedModel:   gemini.EmbedModel(),
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		cancel()
		if err := store.Close(); err != nil {
			log.Error("close store", "error", err)
		}
	}()

	log.Info("starting pdfrag", "port", cfg.Port, "backend", store.Name(),
		"model", cfg.GeminiModel, "embed_model", cfg.GeminiEmbedModel)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped
	log.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg config.Config) (vectorstore.Store, error) {
	switch cfg.VectorBackend {
	case config.BackendPostgres:
		return vectorstore.NewPostgresStore(ctx, cfg.PostgresURL, cfg.EmbedDim)
	default:
		return vectorstore.NewChromemStore(cfg.ChromemPath, cfg.ChromemCompress)
	}
}
