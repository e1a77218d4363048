package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"vgate/internal/config"
	"vgate/internal/httpapi"
	"vgate/internal/jobs"
	"vgate/internal/pkg/errors"
	"vgate/internal/pkg/logger"
	"vgate/internal/pkg/shutdown"
	"vgate/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger depends on config; report with defaults.
		logger.NewDefault().LogError(context.Background(), "invalid configuration", err,
			"code", string(errors.GetCode(err)),
			"details", errors.GetFields(err),
		)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.ServiceName,
		AddSource:   cfg.Log.AddSource,
	})

	log.Info("starting video job gateway", cfg.Redacted()...)

	ctx := context.Background()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	// Queue publisher
	pub, err := queue.NewPublisher(ctx, cfg.Queue, log)
	if err != nil {
		log.LogFatal("failed to initialize queue publisher", err, "queue_backend", cfg.Queue.Backend)
	}
	shutdownMgr.Register("queue-publisher", func(ctx context.Context) error {
		return pub.Close()
	})

	svc := jobs.NewService(jobs.Deps{
		Publisher: pub,
		Log:       log,
	})

	// Create HTTP router
	router := httpapi.NewRouter(httpapi.Deps{
		Jobs:        svc,
		Queue:       pub,
		ServiceName: cfg.ServiceName,
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})

	// WriteTimeout must outlast a publish.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Queue.Timeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Register last so it drains first.
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.HTTPPort,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	// Wait for shutdown signal
	shutdownMgr.Wait()
}
