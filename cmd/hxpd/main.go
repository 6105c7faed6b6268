package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	hxphttp "github.com/hxplabs/hxpd/internal/adapter/http"
	"github.com/hxplabs/hxpd/internal/adapter/memory"
	hxpnats "github.com/hxplabs/hxpd/internal/adapter/nats"
	"github.com/hxplabs/hxpd/internal/adapter/postgres"
	"github.com/hxplabs/hxpd/internal/adapter/ristretto"
	"github.com/hxplabs/hxpd/internal/adapter/ws"
	"github.com/hxplabs/hxpd/internal/config"
	"github.com/hxplabs/hxpd/internal/domain/principal"
	"github.com/hxplabs/hxpd/internal/logger"
	"github.com/hxplabs/hxpd/internal/middleware"
	"github.com/hxplabs/hxpd/internal/port/database"
	"github.com/hxplabs/hxpd/internal/port/directory"
	"github.com/hxplabs/hxpd/internal/port/messagequeue"
	"github.com/hxplabs/hxpd/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	defer closeLogger.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"nats_enabled", cfg.NATS.Enabled,
		"auth_enabled", cfg.Auth.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// --- NATS (optional) ---
	var queue messagequeue.Queue
	var natsQueue *hxpnats.Queue
	if cfg.NATS.Enabled {
		natsQueue, err = hxpnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = natsQueue.Close() }()
		queue = natsQueue
		slog.Info("nats connected", "url", cfg.NATS.URL)
	}

	// --- Directory ---
	dir := memory.NewDirectory()
	if err := seedDirectory(ctx, dir, cfg.Directory); err != nil {
		return fmt.Errorf("directory seed: %w", err)
	}

	// --- Services ---
	hub := ws.NewHub()
	notifier := service.NewNotifier(hub, queue)

	readCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer readCache.Close()

	// The clock fires into the resolver, which cancels deadlines on the
	// clock. Break the cycle with a late-bound closure.
	var resolver *service.Resolver
	clock := service.NewClock(func(id string) { resolver.HandleDeadline(id) })
	resolver = service.NewResolver(store, clock, notifier)

	router := service.NewRouter(dir)
	requestSvc := service.NewRequestService(store, router, resolver, clock, notifier,
		readCache, cfg.Cache.TTL)

	// --- HTTP ---
	handlers := &hxphttp.Handlers{
		Requests:  requestSvc,
		Router:    router,
		Directory: dir,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(time.Minute, 10*time.Minute)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(hxphttp.CORS(cfg.Server.CORSOrigin))
	r.Use(hxphttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(hxphttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(limiter.Handler)
	r.Use(middleware.Auth(cfg.Auth))

	if natsQueue != nil {
		kv, err := natsQueue.KeyValue(ctx, cfg.NATS.IdempotencyBucket)
		if err != nil {
			return fmt.Errorf("idempotency bucket: %w", err)
		}
		r.Use(middleware.Idempotency(kv))
	}

	r.Get("/ws", hub.HandleWS)
	hxphttp.MountRoutes(r, handlers)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return clock.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildStore constructs the configured request store and returns a cleanup
// function for its resources.
func buildStore(ctx context.Context, cfg *config.Config) (database.Store, func(), error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.NewStore(), func() {}, nil
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")
		return postgres.NewStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// seedDirectory registers the projects and principals declared in config so
// requests route without manual admin calls.
func seedDirectory(ctx context.Context, dir directory.Directory, seeds config.Directory) error {
	now := time.Now().UTC()
	for _, sp := range seeds.Projects {
		if err := dir.RegisterProject(ctx, principal.Project{
			ID:        sp.ID,
			Name:      sp.Name,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		for _, pr := range sp.Principals {
			err := dir.AddPrincipal(ctx, sp.ID, principal.Principal{
				ID:        pr.ID,
				Name:      pr.Name,
				Owner:     pr.Owner,
				Delegate:  pr.Delegate,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
