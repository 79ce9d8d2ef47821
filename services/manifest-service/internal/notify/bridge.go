package notify

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/oinam-labs/tac-portal-sub002/shared/contracts"
	"github.com/oinam-labs/tac-portal-sub002/shared/rabbitmq"
)

// JobInboundManifest is the job name the destination hubs dispatch on.
const JobInboundManifest = "inbound_manifest"

// Bridge turns manifest lifecycle facts from Kafka into work for the hubs on RabbitMQ.
type Bridge struct {
	queue rabbitmq.Publisher
	log   logrus.FieldLogger
}

func NewBridge(queue rabbitmq.Publisher, log logrus.FieldLogger) *Bridge {
	return &Bridge{queue: queue, log: log}
}

// Handle has the kafka.Handler signature. Unreadable messages are dropped so
// they cannot block the partition; publish failures are returned so the
// consumer retries the message.
func (b *Bridge) Handle(ctx context.Context, key, value []byte) error {
	var ev contracts.ManifestEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		b.log.WithError(err).WithField("key", string(key)).Warn("dropping unreadable manifest event")
		return nil
	}
	if ev.Type != contracts.EventManifestDeparted {
		return nil
	}

	job := contracts.InboundManifestJob{
		Job:               JobInboundManifest,
		HubID:             ev.ToHubID,
		ManifestID:        ev.ManifestID,
		ManifestNo:        ev.ManifestNo,
		FromHubID:         ev.FromHubID,
		ExpectedShipments: ev.TotalShipments,
		ExpectedPackages:  ev.TotalPackages,
		AWBs:              ev.AWBs,
		ETA:               ev.ETA,
		DepartedAt:        ev.OccurredAt,
	}
	if job.AWBs == nil {
		job.AWBs = []string{}
	}
	if err := b.queue.PublishJSON(ctx, contracts.InboundManifestQueue, job); err != nil {
		return err
	}

	b.log.WithFields(logrus.Fields{
		"manifest_id": ev.ManifestID,
		"hub_id":      ev.ToHubID,
		"shipments":   ev.TotalShipments,
	}).Info("inbound manifest job queued")
	return nil
}
