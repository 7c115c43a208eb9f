package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/ems-console/internal/audit"
	"github.com/iliyamo/ems-console/internal/config"
	"github.com/iliyamo/ems-console/internal/console"
	"github.com/iliyamo/ems-console/internal/database"
	"github.com/iliyamo/ems-console/internal/gateway"
	"github.com/iliyamo/ems-console/internal/handler"
	"github.com/iliyamo/ems-console/internal/logging"
	"github.com/iliyamo/ems-console/internal/middleware"
	"github.com/iliyamo/ems-console/internal/model"
	"github.com/iliyamo/ems-console/internal/queue"
	"github.com/iliyamo/ems-console/internal/router"
	"github.com/iliyamo/ems-console/internal/session"
	"github.com/iliyamo/ems-console/internal/telemetry"
	"github.com/iliyamo/ems-console/internal/tenant"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ems-console:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(os.Stdout, cfg.IsProduction())
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, cfg.Telemetry, log)

	// Redis is optional: without it sessions live in process memory and the
	// login limiter and module cache are off.
	var (
		rdb     redis.UniversalClient
		backend session.Backend
	)
	if client, err := config.NewRedisClient(ctx, cfg.Redis); err != nil {
		log.Warn("redis unavailable; keeping sessions in memory", zap.Error(err))
		backend = session.NewMemoryBackend(cfg.Session.TTL)
	} else {
		defer client.Close()
		rdb = client
		backend = session.RedisBackend{RDB: client, Prefix: cfg.Session.Prefix, TTL: cfg.Session.TTL}
	}

	var recorder audit.Recorder = audit.Nop{}
	if cfg.DB.Enabled() {
		db, err := database.Open(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		recorder = audit.Logged{Recorder: audit.NewMySQL(db), Log: log}
		log.Info("audit trail enabled", zap.String("db", cfg.DB.Name))
	}

	var publisher *queue.Publisher
	if cfg.Queue.URL != "" {
		publisher = queue.NewPublisher(cfg.Queue.URL, cfg.Queue.Exchange, log)
		defer publisher.Close()
		if cfg.Queue.EventLog != "" {
			go func() {
				if err := queue.Consume(ctx, cfg.Queue.URL, cfg.Queue.Exchange, queue.AppendToFile(cfg.Queue.EventLog), log); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("tenant event consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	reg, err := console.NewRegistry(console.Config{
		Backend:     backend,
		BaseURL:     cfg.APIBaseURL,
		HTTPClient:  gateway.NewHTTPClient(cfg.APITimeout),
		PageSize:    cfg.PageSize,
		IdleTimeout: cfg.Session.TTL,
		Logger:      log,
		OnMutation:  onMutation(recorder, publisher, log),
	})
	if err != nil {
		return err
	}

	ck := middleware.Cookie{Name: cfg.Session.CookieName, TTL: cfg.Session.TTL, Secure: cfg.Session.Secure}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(ck, log)
	e.Use(echomw.Recover())
	e.Use(logging.Requests(log))

	opts := router.Options{}
	if rdb != nil {
		opts.LoginLimiter = middleware.NewTokenBucket(cfg.RateLimit, rdb, log)
		opts.ModuleCache = middleware.NewRedisCache(cfg.Cache, rdb, log)
	}
	router.RegisterRoutes(e, handler.New(reg, ck, recorder, log), opts)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, "ems-console"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("api", cfg.APIBaseURL))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
	return nil
}

// onMutation records each tenant change in the audit trail and announces it
// on the broker when one is configured.
func onMutation(rec audit.Recorder, pub *queue.Publisher, log *zap.Logger) console.MutationHook {
	return func(ctx context.Context, actor model.Identity, m tenant.Mutation) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = rec.Record(ctx, audit.FromMutation(actor, m))
		if pub == nil {
			return
		}
		if err := pub.PublishTenantChanged(ctx, queue.NewTenantChangedEvent(actor, m)); err != nil {
			log.Warn("tenant event not published", zap.String("op", m.Op), zap.Int64("tenant", m.TenantID), zap.Error(err))
		}
	}
}
