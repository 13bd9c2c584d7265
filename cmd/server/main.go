package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/taskrelay/relay/api/handlers"
	"github.com/taskrelay/relay/internal/config"
	"github.com/taskrelay/relay/internal/db"
	"github.com/taskrelay/relay/internal/logger"
	"github.com/taskrelay/relay/internal/metrics"
	"github.com/taskrelay/relay/internal/repository"
	"github.com/taskrelay/relay/internal/ws"
)

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg, err := logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logg.Close()

	if !dotenv {
		logg.Debug("No .env file found, using process environment")
	}

	if err := run(cfg, logg); err != nil {
		logg.WithError(err).Error("Relay server stopped with error")
		logg.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Optional connection journal
	var journal *repository.ConnectionRepository
	if cfg.JournalEnabled() {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalDBPath), 0755); err != nil {
			return err
		}
		database, err := db.Open(cfg.JournalDBPath)
		if err != nil {
			return err
		}
		defer database.Close()
		journal = repository.NewConnectionRepository(database)
		logg.WithField("path", cfg.JournalDBPath).Info("Connection journal enabled")
	}

	opts := ws.Options{
		HistoryCapacity: cfg.HistoryCapacity,
		SendBuffer:      cfg.SendBuffer,
		Logger:          logg,
		Metrics:         m,
	}
	var lister handlers.ConnectionLister
	if journal != nil {
		opts.Journal = journal
		lister = journal
	}
	service := ws.NewService(opts)
	defer service.Close()

	wsHandler := ws.NewHandler(service, ws.HandlerConfig{
		PongWait:       cfg.PongWait,
		MaxMessageSize: cfg.MaxBodyBytes,
	})

	gin.SetMode(cfg.GinMode)
	router := handlers.NewRouter(
		handlers.NewControlPlane(service, lister, cfg.MaxBodyBytes, logg),
		handlers.NewWebSocketHandler(wsHandler, logg),
		reg,
		logg,
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go ws.NewHeartbeat(service, cfg.HeartbeatInterval).Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		logg.WithFields(log.Fields{
			"addr":               cfg.Addr(),
			"websocket":          "ws://localhost" + cfg.Addr(),
			"history_capacity":   cfg.HistoryCapacity,
			"heartbeat_interval": cfg.HeartbeatInterval.String(),
		}).Info("Starting relay server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if errors.Is(err, syscall.EADDRINUSE) {
				logg.Errorf("Port %d is already in use; stop the other process or set PORT", cfg.Port)
			}
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	service.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logg.Info("Relay server stopped")
	return nil
}
