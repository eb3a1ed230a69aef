package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/dispatch-console/internal/config"
	"github.com/example/dispatch-console/internal/dispatch"
	"github.com/example/dispatch-console/internal/geo"
	httpapi "github.com/example/dispatch-console/internal/http"
	"github.com/example/dispatch-console/internal/ingest"
	"github.com/example/dispatch-console/internal/logging"
	"github.com/example/dispatch-console/internal/matcher"
	"github.com/example/dispatch-console/internal/source"
	"github.com/example/dispatch-console/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.New(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.PGDSN != "" && cfg.RunMigrations {
		if err := runMigrations(cfg.PGDSN); err != nil {
			logger.Error("migration failed", "error", err)
		} else {
			logger.Info("migrations applied")
		}
	}

	var index geo.Index
	if cfg.RedisAddr != "" {
		index = geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		index = geo.NewMemoryIndex()
	}

	var store storage.AssignmentStore
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Warn("postgres unavailable, using memory store", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	engine := &matcher.Engine{TieBandKm: cfg.TieBandKm, EtaMinutesPerKm: cfg.EtaMinutesPerKm}
	board := dispatch.NewBoard(engine, store)

	// assignment history is retained indefinitely; reload it so a restart
	// does not lose the ledger the console serves
	if history, err := store.ListAssignments(context.Background()); err != nil {
		logger.Warn("could not reload assignment history", "error", err)
	} else if len(history) > 0 {
		board.RestoreAssignments(history)
		logger.Info("assignment history reloaded", "count", len(history))
	}

	wsreg := dispatch.NewWSRegistry()
	board.Notify = dispatch.NewPushNotifier(cfg.PushEndpoint, wsreg)

	var locations *ingest.LocationProducer
	if len(cfg.KafkaBrokers) > 0 {
		locations = ingest.NewLocationProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer locations.Close()
		events := ingest.NewEventProducer(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		defer events.Close()
		board.Events = events
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SourceBaseURL != "" {
		sched := &dispatch.Scheduler{
			Board:    board,
			Source:   source.NewHTTPSource(cfg.SourceBaseURL),
			Interval: cfg.RefreshInterval,
			Jitter:   dispatch.DefaultJitter(cfg.JitterMaxDeg),
			GeoIndex: index,
			Logger:   logger,
		}
		go sched.Run(ctx)
	} else {
		logger.Warn("SOURCE_BASE_URL not set, refresh scheduler disabled")
	}

	api := httpapi.NewServer(board, index, wsreg, logger)
	api.AssignTimeout = cfg.AssignTimeout
	if locations != nil {
		api.Kafka = locations
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("dispatch console listening", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down cleanly")
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_assignments.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
