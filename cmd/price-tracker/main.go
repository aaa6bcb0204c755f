package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/price-tracker/internal/api"
	"github.com/maltedev/price-tracker/internal/browser"
	"github.com/maltedev/price-tracker/internal/compare"
	"github.com/maltedev/price-tracker/internal/config"
	"github.com/maltedev/price-tracker/internal/database"
	"github.com/maltedev/price-tracker/internal/events"
	"github.com/maltedev/price-tracker/internal/extractor"
	"github.com/maltedev/price-tracker/internal/fetch"
	"github.com/maltedev/price-tracker/internal/mongostore"
	"github.com/maltedev/price-tracker/internal/monitor"
	"github.com/maltedev/price-tracker/internal/notify"
	"github.com/maltedev/price-tracker/internal/ratelimit"
	"github.com/maltedev/price-tracker/internal/store"
	"github.com/maltedev/price-tracker/internal/tracker"
	"github.com/maltedev/price-tracker/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("price tracker failed", "error", err)
		os.Exit(1)
	}

	logger.Info("price tracker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, db, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	fetcher := fetch.NewClient(fetch.Options{
		Timeout:     cfg.Fetch.Timeout,
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BackoffBase: cfg.Fetch.BackoffBase,
		UserAgent:   cfg.Fetch.UserAgent,
		Limiter:     ratelimit.NewHostLimiter(cfg.Fetch.RateLimit, cfg.Fetch.RateBurst),
	}, logger)

	launcher := browser.NewLauncher(&browser.Options{
		Headless:       cfg.Browser.Headless,
		NavTimeout:     cfg.Browser.NavTimeout,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Locale:         cfg.Browser.Locale,
	}, cfg.Browser.MaxConcurrent, logger)
	defer func() {
		if err := launcher.Close(); err != nil {
			logger.Error("failed to stop browser driver", "error", err)
		}
	}()

	registry := extractor.NewDefaultRegistry(extractor.Deps{
		Fetcher:  fetcher,
		Renderer: launcher,
		Headers:  fetch.BrowserHeaders(cfg.Fetch.UserAgent),
		Wait: extractor.WaitOptions{
			Timeout:      cfg.Browser.WaitTimeout,
			PollInterval: cfg.Browser.PollInterval,
		},
		Logger: logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	var (
		notifier    notify.Notifier
		recorder    monitor.ChangeRecorder
		outboxStats api.OutboxStatter
	)

	// With postgres and redis, alerts go through the outbox and
	// cmd/alert-consumer sends the mail. Otherwise mail is sent in-process.
	if db != nil {
		outbox := database.NewOutboxRepository(db, cfg.Redis.Stream)
		outboxStats = outbox

		if cfg.Redis.Addr != "" {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}

			relay := database.NewRelay(outbox, redisClient, logger, database.RelayConfig{
				PollInterval: 5 * time.Second,
				BatchSize:    100,
				MaxStreamLen: int64(cfg.Redis.MaxStreamLen),
			})
			g.Go(func() error {
				if err := relay.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("relay stopped: %w", err)
				}
				return nil
			})

			// Price updates and their PRICE_CHANGED events commit in one transaction.
			publisher := events.NewPublisher(outbox, logger)
			recorder = notify.NewOutboxRecorder(database.NewItemRepository(db).WithOutbox(outbox), publisher)
			notifier = notify.NewEventNotifier(publisher)
		}
	}
	if notifier == nil {
		notifier = notify.NewEmailNotifier(emailConfig(cfg.SMTP), logger)
	}

	comparer := compare.New(registry, compare.Options{
		CacheSize: cfg.Compare.CacheSize,
		CacheTTL:  cfg.Compare.CacheTTL,
	}, logger)
	service := tracker.NewService(st, registry, comparer, logger)

	if cfg.Monitor.Enabled {
		engine := monitor.NewEngine(st, registry, notify.NewMulti(logger, notifier), logger)
		if recorder != nil {
			engine.WithChangeRecorder(recorder)
		}
		scheduler := monitor.NewScheduler(engine, cfg.Monitor.Interval, logger)
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	handlers := api.NewHandlers(service, registry, outboxStats, logger)
	server := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(handlers, api.RouterOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.WriteTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("server starting", "addr", server.Addr, "store", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore returns the configured store. db is non-nil only for postgres.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, *database.DB, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.New(ctx, database.Config{
			DSN:      cfg.Database.DSN(),
			MaxConns: 10,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return database.NewItemRepository(db), db, db.Close, nil

	case "mongo":
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error("failed to disconnect from mongo", "error", err)
			}
		}

		s, err := mongostore.New(ctx, client.Database(cfg.Mongo.Database))
		if err != nil {
			closeFn()
			return nil, nil, nil, err
		}
		return s, nil, closeFn, nil

	default:
		s, err := store.NewMemoryStore(cfg.Store.FilePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, nil, func() {}, nil
	}
}

func emailConfig(c config.SMTPConfig) notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}
