// cmd/worker/main.go runs the manifest background work: the Temporal worker
// that retries tracking writes and the Kafka -> RabbitMQ hub notification bridge.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/config"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/notify"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/tracking"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/store"
	"github.com/oinam-labs/tac-portal-sub002/shared/contracts"
	pkgkafka "github.com/oinam-labs/tac-portal-sub002/shared/kafka"
	"github.com/oinam-labs/tac-portal-sub002/shared/logger"
	pkgrabbit "github.com/oinam-labs/tac-portal-sub002/shared/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	common := cfg.CommonConfig
	log := logger.New("manifest-worker", common.LOG_LEVEL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Tracking retries need the database the service writes to.
	if common.HasDB() {
		pg, err := store.NewPostgresStore(common.GetDBURL())
		if err != nil {
			log.Fatalf("worker failed to connect to DB: %v", err)
		}
		defer pg.Close()

		tc, err := client.Dial(client.Options{
			HostPort:  common.GetTemporalHostPort(),
			Namespace: common.TEMPORAL_NAMESPACE,
		})
		if err != nil {
			log.Fatalf("unable to create Temporal client: %v", err)
		}
		defer tc.Close()

		w := worker.New(tc, cfg.TrackingTaskQueue, worker.Options{})
		tracking.Register(w, &tracking.Activities{Store: pg})

		g.Go(func() error {
			if err := w.Start(); err != nil {
				return err
			}
			log.Infof("tracking worker polling %s", cfg.TrackingTaskQueue)
			<-gctx.Done()
			w.Stop()
			return nil
		})
	} else {
		log.Warn("DB_HOST/DB_NAME not set, tracking worker disabled")
	}

	brokers := common.GetKafkaBrokers()
	if len(brokers) > 0 {
		rabbit, err := pkgrabbit.NewClient(common.GetRabbitMQURL())
		if err != nil {
			log.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		if err := rabbit.CreateQueue(contracts.InboundManifestQueue); err != nil {
			log.Fatalf("failed to create queue %s: %v", contracts.InboundManifestQueue, err)
		}

		consumer := pkgkafka.NewConsumer(brokers, cfg.ManifestTopic, cfg.ConsumerGroup, log)
		bridge := notify.NewBridge(rabbit, log.WithField("component", "notify"))

		g.Go(func() error {
			consumer.Start(gctx, bridge.Handle)
			// The consumer has returned, so nothing publishes to rabbit any more.
			if err := consumer.Close(); err != nil {
				log.WithError(err).Warn("closing kafka consumer")
			}
			return rabbit.Close()
		})
	} else {
		log.Warn("KAFKA_BROKER not set, hub notification bridge disabled")
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("worker stopped with error")
		os.Exit(1)
	}
	log.Info("worker stopped")
}
