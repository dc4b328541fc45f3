package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-ledger/internal/api/handlers"
	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/app"
	"github.com/dvloznov/finance-ledger/internal/config"
	"github.com/dvloznov/finance-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal().Err(err).Msg("Failed to load config")
	}
	logger.SetLevel(cfg.Log.Level)
	log := logger.NewFromFormat(cfg.Log.Format)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise ledger")
	}
	defer a.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(inmemory.Options{
		Workers:    cfg.Server.Workers,
		MaxRetries: cfg.Server.MaxAttempts - 1,
	}, jobStore, log)

	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	jobHandler := a.JobHandler(ctx)
	if err := jobQueue.Start(workerCtx, jobHandler.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	mux := http.NewServeMux()
	handlers.Routes{
		Debts:    handlers.NewDebtsHandler(a.Ledger, a.Recorder, a.Rates),
		Balances: handlers.NewBalancesHandler(a.Aggregator, a.Recorder),
		Rates:    handlers.NewRatesHandler(a.Rates),
		Intents:  handlers.NewIntentsHandler(a.Processor),
		Jobs:     handlers.NewJobsHandler(jobStore, jobQueue),
	}.Register(mux)

	handler := middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the queue first so in-flight jobs finish with a live context
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
