package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/skillforge/marketplace/internal/adapters/cache"
	eventadapter "github.com/skillforge/marketplace/internal/adapters/events"
	httpadapter "github.com/skillforge/marketplace/internal/adapters/http"
	"github.com/skillforge/marketplace/internal/adapters/postgres"
	reasoneradapter "github.com/skillforge/marketplace/internal/adapters/reasoner"
	"github.com/skillforge/marketplace/internal/adapters/security"
	"github.com/skillforge/marketplace/internal/application"
	"github.com/skillforge/marketplace/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	outbox     *eventadapter.OutboxWorker
	consumer   *eventadapter.ConsumerWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With("service", cfg.ServiceID)
	slog.SetDefault(logger)

	kek, generated, err := cfg.ResolveKEK()
	if err != nil {
		return nil, err
	}
	if generated {
		logger.WarnContext(ctx, "no KEK configured, generated a random development key; encrypted knowledge will not survive a restart")
	}
	envelope, err := security.NewEnvelope(kek)
	if err != nil {
		return nil, err
	}
	security.Zeroize(kek)

	if cfg.AuthJWTSecret == "" {
		if cfg.Production() {
			return nil, fmt.Errorf("AUTH_JWT_SECRET is required in production")
		}
		cfg.AuthJWTSecret = "dev-secret"
		logger.WarnContext(ctx, "no AUTH_JWT_SECRET configured, using the development secret")
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	var cacheStore ports.Cache = cache.NewNoopCache()
	var closers []io.Closer
	if cfg.RedisURL != "" {
		redisClient, redisErr := cache.Connect(ctx, cfg.RedisURL)
		if redisErr != nil {
			_ = sqlDB.Close()
			return nil, redisErr
		}
		cacheStore = cache.NewRedisCache(redisClient)
		closers = append(closers, redisClient)
	} else {
		logger.WarnContext(ctx, "no REDIS_URL configured, package cache disabled")
	}

	var remote ports.Reasoner
	if cfg.ReasonerURL != "" {
		remote = reasoneradapter.NewHTTPClient(cfg.ReasonerURL, cfg.ReasonerTimeout, logger)
	}

	repos := postgres.NewRepositories(db, logger)
	service := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:        cfg.ServiceID,
			OveragePriceCents:  cfg.OveragePriceCents,
			CreatorShare:       cfg.CreatorShare,
			TierCallLimits:     cfg.TierCallLimits,
			ReasonerCredential: cfg.ReasonerCredential,
			PackageCacheTTL:    cfg.PackageCacheTTL,
			SearchCacheTTL:     cfg.SearchCacheTTL,
			EventDedupTTL:      cfg.EventDedupTTL,
		},
		Logger:          logger,
		Packages:        repos.Packages,
		Mints:           repos.Mints,
		Installations:   repos.Installations,
		Knowledge:       repos.Knowledge,
		Subscriptions:   repos.Subscriptions,
		UsageLedger:     repos.UsageLedger,
		RoyaltyLedger:   repos.RoyaltyLedger,
		InvocationLog:   repos.InvocationLog,
		Outbox:          repos.Outbox,
		EventDedup:      repos.EventDedup,
		Cache:           cacheStore,
		Envelope:        envelope,
		Secure:          security.NewContexts(),
		RemoteReasoner:  remote,
		OfflineReasoner: reasoneradapter.NewOffline(),
		Tokens:          security.NewJWTVerifier(cfg.AuthJWTSecret),
	})

	handler := httpadapter.NewHandler(service)
	router := httpadapter.NewRouter(handler, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		for _, closer := range closers {
			_ = closer.Close()
		}
		_ = sqlDB.Close()
		return nil, err
	}

	publisher := ports.EventPublisher(eventadapter.NewLoggingPublisher(logger))
	consumerAdapter := eventadapter.Consumer(eventadapter.NewNoopConsumer())
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, map[string]string{
			"package.installed":   cfg.KafkaTopicInstalled,
			"package.uninstalled": cfg.KafkaTopicUninstalled,
			"skill.invoked":       cfg.KafkaTopicInvoked,
		})
		if pubErr != nil {
			logger.WarnContext(ctx, "kafka publisher disabled, using logging publisher", "error", pubErr)
		} else {
			publisher = kafkaPublisher
			closers = append(closers, kafkaPublisher)
		}

		kafkaConsumer, conErr := eventadapter.NewKafkaConsumer(
			cfg.KafkaBrokers,
			cfg.KafkaConsumerGroup,
			[]string{cfg.KafkaTopicSubscriptionUpdate, cfg.KafkaTopicSubscriptionCancel},
		)
		if conErr != nil {
			logger.WarnContext(ctx, "kafka consumer disabled, using noop consumer", "error", conErr)
		} else {
			consumerAdapter = kafkaConsumer
			closers = append(closers, kafkaConsumer)
		}
	}

	outbox := eventadapter.NewOutboxWorker(repos.Outbox, publisher, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	consumer := eventadapter.NewConsumerWorker(consumerAdapter, map[string]eventadapter.Handler{
		cfg.KafkaTopicSubscriptionUpdate: service.HandleSubscriptionUpdated,
		cfg.KafkaTopicSubscriptionCancel: service.HandleSubscriptionCanceled,
	}, logger, cfg.ConsumerPollInterval, cfg.ConsumerBatchSize)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		outbox:     outbox,
		consumer:   consumer,
		cleanupFn: func(ctx context.Context) {
			for _, closer := range closers {
				_ = closer.Close()
			}
			_ = sqlDB.Close()
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 2)

	go func() {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		r.logger.ErrorContext(ctx, "runtime failure", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{}, 2)
	go func() {
		r.outbox.Run(ctx)
		done <- struct{}{}
	}()
	go func() {
		r.consumer.Run(ctx)
		done <- struct{}{}
	}()

	<-ctx.Done()
	<-done
	<-done
	r.cleanupFn(context.Background())
	return nil
}
