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

	"github.com/redis/go-redis/v9"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/api"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/catalog"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/config"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/engine"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/ratelimit"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scenario"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/store"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/telemetry"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/ticker"
)

func main() {
	cfg := config.Load()
	logger, closeLog := config.SetupLogger(cfg.LogFile, config.ParseLevel(cfg.LogLevel))
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		logger.Info("shutdown signal received")
		cancel()
	}()

	cat, err := catalog.LoadDir(cfg.CatalogDir)
	if err != nil {
		logger.Error("load catalog", "dir", cfg.CatalogDir, "err", err)
		os.Exit(1)
	}
	logger.Info("catalog loaded",
		"equipment", len(cat.EquipmentIDs()), "items", len(cat.ItemIDs()), "methods", len(cat.MethodIDs()))

	var (
		st      store.Store
		limiter *ratelimit.AdmissionLimiter
	)
	switch cfg.SnapshotBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rs := store.NewRedisStore(client)
		rs.ArchiveKeep = int64(cfg.ArchiveKeep)
		defer rs.Close()
		st = rs
		if cfg.RateLimitCapacity > 0 {
			limiter = ratelimit.NewAdmissionLimiter(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
		}
	case "postgres":
		ps, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("connect postgres", "err", err)
			os.Exit(1)
		}
		if err := ps.RunMigrations(ctx); err != nil {
			logger.Error("migrations", "err", err)
			os.Exit(1)
		}
		defer ps.Close()
		st = ps
	case "":
		logger.Info("no snapshot backend configured, state is in-memory only")
	default:
		logger.Error("unknown snapshot backend", "backend", cfg.SnapshotBackend)
		os.Exit(1)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	eng, err := engine.New(engine.Config{
		Catalog:      cat,
		Store:        st,
		ArchiveLimit: cfg.ArchiveLimit,
		Seed:         seed,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("build engine", "err", err)
		os.Exit(1)
	}

	// A restored world wins over the scenario: the scenario only bootstraps
	// a fresh deployment.
	var scn *scenario.Scenario
	restored := 0
	if st != nil {
		restored, err = eng.RestoreAll(ctx)
		if err != nil {
			logger.Error("restore facilities", "err", err)
			os.Exit(1)
		}
	}
	if restored > 0 {
		logger.Info("facilities restored from store", "count", restored)
	} else if cfg.ScenarioPath != "" {
		scn, err = scenario.Load(cfg.ScenarioPath)
		if err != nil {
			logger.Error("load scenario", "path", cfg.ScenarioPath, "err", err)
			os.Exit(1)
		}
		if err := scn.Apply(eng); err != nil {
			logger.Error("apply scenario", "err", err)
			os.Exit(1)
		}
		logger.Info("scenario applied",
			"facilities", len(scn.Facilities), "jobs", len(scn.Jobs))
	}

	hub := api.NewHub(logger)
	defer hub.Close()

	server := api.New(eng, hub, limiter, logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}
	go func() {
		logger.Info("api listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			cancel()
		}
	}()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
				logger.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	snapshotEvery := cfg.SnapshotEvery
	if st == nil {
		snapshotEvery = 0
	}
	driver := ticker.New(ticker.Config{
		Interval:      cfg.TickInterval,
		Step:          cfg.SimStep,
		SnapshotEvery: snapshotEvery,
	}, eng, scn, hub, logger)

	if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tick loop", "err", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	if st != nil {
		if err := eng.SaveAll(shutdownCtx); err != nil {
			logger.Error("final snapshot", "err", err)
		} else {
			logger.Info("world saved", "facilities", len(eng.Facilities()))
		}
	}
	logger.Info("shutdown complete")
}
