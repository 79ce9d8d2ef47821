// cmd/main.go in manifest-service
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/config"
	grpcServer "github.com/oinam-labs/tac-portal-sub002/services/manifest-service/handler/grpc"
	httpServer "github.com/oinam-labs/tac-portal-sub002/services/manifest-service/handler/http"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/tracking"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/store"
	pkgkafka "github.com/oinam-labs/tac-portal-sub002/shared/kafka"
	"github.com/oinam-labs/tac-portal-sub002/shared/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	common := cfg.CommonConfig
	log := logger.New("manifest-service", common.LOG_LEVEL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store: Postgres when configured, otherwise in memory for local runs.
	var (
		st manifest.Store
		tx manifest.TxManager
	)
	if common.HasDB() {
		pg, err := store.NewPostgresStore(common.GetDBURL())
		if err != nil {
			log.Fatalf("failed to create store: %v", err)
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate schema: %v", err)
		}
		st, tx = pg, store.NewTxManager(pg.DB())
		log.Info("using postgres store")
	} else {
		mem := store.NewMemoryStore()
		st, tx = mem, mem
		log.Warn("DB_HOST/DB_NAME not set, using in-memory store")
	}

	opts := []manifest.Option{
		manifest.WithLogger(log.WithField("component", "manifest")),
		manifest.WithConfig(manifest.Config{
			DebounceWindow:      cfg.Scan.Debounce,
			ValidateDestination: cfg.Scan.ValidateDestination,
			ValidateStatus:      cfg.Scan.ValidateStatus,
		}),
	}

	if brokers := common.GetKafkaBrokers(); len(brokers) > 0 {
		producer := pkgkafka.NewKafkaProducer(brokers, cfg.ManifestTopic, log)
		publisher := pkgkafka.NewBreakerPublisher(producer, "manifest-events", log)
		defer publisher.Close()
		opts = append(opts, manifest.WithPublisher(publisher))
		log.Infof("publishing manifest events to %s", cfg.ManifestTopic)
	} else {
		log.Warn("KAFKA_BROKER not set, manifest events will not be published")
	}

	if common.TEMPORAL_HOSTPORT != "" {
		tc, err := client.Dial(client.Options{
			HostPort:  common.GetTemporalHostPort(),
			Namespace: common.TEMPORAL_NAMESPACE,
		})
		if err != nil {
			log.Fatalf("failed to create Temporal client: %v", err)
		}
		defer tc.Close()
		opts = append(opts, manifest.WithTrackingRetrier(tracking.NewTemporalRetrier(tc, cfg.TrackingTaskQueue, log)))
	} else {
		log.Warn("TEMPORAL_HOSTPORT not set, failed tracking writes are only logged")
	}

	svc := manifest.New(st, tx, opts...)

	var limiter httpServer.Limiter
	if common.REDIS_ADDR != "" && cfg.RateLimit.Capacity > 0 {
		rdb := redis.NewClient(&redis.Options{Addr: common.GetRedisAddr(), Password: common.REDIS_PASSWORD})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warnf("redis not reachable at %s: %v, scans are not rate limited until it is", common.GetRedisAddr(), err)
		}
		cancel()
		limiter = httpServer.NewRedisLimiter(rdb)
	}

	handler := httpServer.NewHandler(svc, log, limiter, httpServer.RateConfig{
		Capacity: cfg.RateLimit.Capacity,
		Refill:   cfg.RateLimit.Refill,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcServer.NewServer(log)
	grpcServer.RegisterManifestServer(grpcSrv, grpcServer.NewManifestServer(svc))
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("HTTP server running on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Infof("gRPC server running on %s", cfg.GRPCAddr)
		health.SetServingStatus(grpcServer.ServiceName, healthpb.HealthCheckResponse_SERVING)
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("manifest service stopped with error")
		os.Exit(1)
	}
	log.Info("manifest service stopped")
}
