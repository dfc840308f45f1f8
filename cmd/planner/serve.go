package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"contentplanner/config"
	"contentplanner/internal/ai"
	"contentplanner/internal/httpserver"
	"contentplanner/internal/identity"
	"contentplanner/internal/repository"
	"contentplanner/internal/scheduler"
	"contentplanner/internal/session"
	"contentplanner/pkg/db"
	"contentplanner/pkg/docstore"
	"contentplanner/pkg/logger"
	"contentplanner/pkg/mq"
	"contentplanner/pkg/otel"
	"contentplanner/pkg/outbox"
	"contentplanner/pkg/redis"
	"contentplanner/pkg/util"
)

const (
	shutdownTimeout = 10 * time.Second
	dedupTTL        = 10 * time.Minute
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config-dir")
			return runServe(dir, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the database schema before serving (postgres driver)")
	return cmd
}

// backend is the storage side of the process, picked by store.driver.
type backend struct {
	store     docstore.Store
	users     repository.UserStore
	revoked   identity.Revocations
	readiness map[string]httpserver.ReadinessCheck
	closers   []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func runServe(configDir string, migrate bool) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLogger(cfg.Log.Development)
	defer log.Sync()
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := otel.Init(cfg.OTel, Version, log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(log)

	var be *backend
	switch cfg.Store.Driver {
	case "memory":
		log.Warn("Using in-memory store; data is lost on restart")
		be = memoryBackend()
	default:
		be, err = postgresBackend(ctx, cfg, migrate, sched, log)
		if err != nil {
			return err
		}
	}
	defer be.close()

	provider := identity.NewProvider(be.users, be.revoked, cfg.JWT.Secret, cfg.JWT.TTL, log)
	adapter := ai.NewAdapter(ai.NewOpenAIClient(cfg.AI, log), log)
	sessions := session.NewManager(be.store, provider, adapter, cfg.Scheduler.SessionIdleTTL, log)
	defer sessions.Shutdown()

	if err := sched.Add("session_reaper", cfg.Scheduler.SessionReaper, scheduler.SessionReaperJob(sessions)); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	router := httpserver.NewRouter(httpserver.Deps{
		Provider:       provider,
		Auth:           provider,
		Sessions:       sessions,
		Readiness:      be.readiness,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         log,
	})
	srv := httpserver.NewServer(cfg.Server.Port, router, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	log.Info("Planner started",
		zap.String("version", Version),
		zap.String("store", cfg.Store.Driver),
		zap.String("addr", cfg.Server.Port),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	return nil
}

func memoryBackend() *backend {
	return &backend{
		store:   docstore.NewMemStore(),
		users:   repository.NewMemoryUserRepository(),
		revoked: identity.NewMemoryRevocations(),
	}
}

func postgresBackend(ctx context.Context, cfg *config.Config, migrate bool, sched *scheduler.Scheduler, log *zap.Logger) (*backend, error) {
	be := &backend{}
	fail := func(err error) (*backend, error) {
		be.close()
		return nil, err
	}

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return fail(fmt.Errorf("failed to connect to database: %w", err))
	}
	be.closers = append(be.closers, pool.Close)

	if migrate {
		if err := db.Migrate(ctx, pool, log); err != nil {
			return fail(err)
		}
	}

	rdb, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		return fail(fmt.Errorf("failed to connect to redis: %w", err))
	}
	be.closers = append(be.closers, func() { _ = rdb.Close() })

	pub, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		return fail(fmt.Errorf("failed to connect to rabbitmq: %w", err))
	}
	be.closers = append(be.closers, pub.Close)

	events := outbox.NewRepository(pool)
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	go outbox.NewDispatcher(events, pub, log).Start(dispatchCtx)
	be.closers = append(be.closers, cancelDispatch)

	replay := outbox.NewReplayService(events, pub, log)
	if err := sched.Add("outbox_requeue", cfg.Scheduler.OutboxReplay, scheduler.OutboxRequeueJob(replay, log)); err != nil {
		return fail(err)
	}

	be.store = docstore.NewPGStore(pool, cfg.MQ.URL, util.NewDeduper(rdb, dedupTTL, log), log)
	be.users = repository.NewUserRepository(pool)
	be.revoked = identity.NewRedisRevocations(rdb)
	be.readiness = map[string]httpserver.ReadinessCheck{
		"db": pool.Ping,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
		"mq": func(context.Context) error {
			if !pub.IsConnected() {
				return errors.New("publisher disconnected")
			}
			return nil
		},
	}
	return be, nil
}
