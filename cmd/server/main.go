package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"
	"gopkg.in/vrecan/death.v3"

	"github.com/iliyamo/ticket-ledger/internal/chain"
	"github.com/iliyamo/ticket-ledger/internal/config"
	"github.com/iliyamo/ticket-ledger/internal/database"
	"github.com/iliyamo/ticket-ledger/internal/events"
	"github.com/iliyamo/ticket-ledger/internal/handler"
	"github.com/iliyamo/ticket-ledger/internal/ledger"
	"github.com/iliyamo/ticket-ledger/internal/middleware"
	"github.com/iliyamo/ticket-ledger/internal/queue"
	"github.com/iliyamo/ticket-ledger/internal/repository"
	"github.com/iliyamo/ticket-ledger/internal/router"
	"github.com/iliyamo/ticket-ledger/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("ticket-ledger", pflag.ContinueOnError)
	port := flagSet.String("port", "", "HTTP port (overrides APP_PORT)")
	dataDir := flagSet.String("data-dir", "", "block store directory (overrides LEDGER_DATA_DIR)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("shutdown", "err", err)
			}
		}
	}()

	// Journal: hash-chained badger store, or memory when no data dir is set.
	var journal ledger.Journal = ledger.NewMemoryJournal()
	if cfg.DataDir != "" {
		store, err := chain.Open(cfg.DataDir, logger)
		if err != nil {
			return err
		}
		closers = append(closers, store.Close)
		journal = store
	} else {
		logger.Warn("LEDGER_DATA_DIR not set, ledger is not persisted")
	}

	bus := events.NewBus(logger, cfg.EventBuffer)
	closers = append(closers, func() error { bus.Close(); return nil })

	l, err := ledger.New(cfg.LedgerAdmin,
		ledger.WithJournal(journal),
		ledger.WithPublisher(bus),
		ledger.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if err := l.Restore(ctx); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}

	rdb := config.NewRedisClient(logger)
	if rdb != nil {
		closers = append(closers, rdb.Close)
	}
	cacheCfg := config.LoadCacheConfig()
	rlCfg := config.LoadRateLimitConfig()
	cache := middleware.NewRedisCache(cacheCfg, rdb)
	limiter := middleware.NewTokenBucket(rlCfg, rdb)
	if rdb != nil && cacheCfg.Enabled {
		bus.Subscribe("cache", middleware.NewCacheInvalidator(rdb, cacheCfg.Prefix, logger))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))

	router.RegisterRoutes(e)
	auth := handler.NewAuthHandler(cfg, l)
	if rdb != nil {
		auth.Guard = repository.NewLoginGuard(rdb, "ledger:login", 2*cfg.LoginSkew+time.Second)
	}
	router.RegisterAuth(e, auth, cfg.JWTSecret)
	router.RegisterTickets(e, handler.NewTicketHandler(l, logger), cfg.JWTSecret, cache, limiter)

	if cfg.ProjectionEnabled() {
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return fmt.Errorf("open projection db: %w", err)
		}
		closers = append(closers, db.Close)
		if err := database.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("projection schema: %w", err)
		}
		repo := repository.NewTicketRepo(db)
		if err := repo.Rebuild(ctx, l.Page(0, l.TotalSupply()), l.Seq()); err != nil {
			return fmt.Errorf("rebuild projection: %w", err)
		}
		bus.Subscribe("projector", service.NewProjector(repo, logger).Handle)
		router.RegisterSearch(e, handler.NewSearchHandler(repo, logger), cache)
	}

	if cfg.BrokerEnabled() {
		bus.Subscribe("broker", service.NewEventPublisher(cfg.RabbitURL, logger).Handle)
		go func() {
			if err := queue.StartTicketEventConsumer(ctx, cfg.RabbitURL, cfg.EventLogDir, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event consumer stopped", "err", err)
			}
		}()
	}

	addr := ":" + cfg.Port
	serverErr := make(chan error, 1)
	go func() { serverErr <- e.Start(addr) }()
	logger.Info("listening", "addr", addr, "env", cfg.Env, "admin", l.Admin(), "seq", l.Seq(), "tickets", l.TotalSupply())

	stop := make(chan struct{})
	go death.NewDeath(syscall.SIGINT, syscall.SIGTERM).WaitForDeathWithFunc(func() { close(stop) })

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stop:
		logger.Info("shutting down")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	cancel()
	return e.Shutdown(shutdownCtx)
}
