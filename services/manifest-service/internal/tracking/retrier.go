package tracking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
)

// TemporalRetrier hands failed tracking writes to the tracking worker.
type TemporalRetrier struct {
	client    client.Client
	taskQueue string
	log       logrus.FieldLogger
}

func NewTemporalRetrier(c client.Client, taskQueue string, log logrus.FieldLogger) *TemporalRetrier {
	return &TemporalRetrier{client: c, taskQueue: taskQueue, log: log}
}

// RetryTrackingEvents starts one workflow per manifest and event code. A second
// call for the same pair while the first is running joins that run.
func (r *TemporalRetrier) RetryTrackingEvents(ctx context.Context, manifestID uuid.UUID, events []manifest.TrackingEvent) error {
	if len(events) == 0 {
		return nil
	}
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(manifestID, events[0].EventCode),
		TaskQueue: r.taskQueue,
	}
	run, err := r.client.ExecuteWorkflow(ctx, opts, RecordTrackingEventsWorkflow, RecordInput{
		ManifestID: manifestID.String(),
		Events:     events,
	})
	if err != nil {
		return fmt.Errorf("start tracking workflow: %w", err)
	}
	r.log.WithFields(logrus.Fields{
		"manifest_id": manifestID,
		"workflow_id": run.GetID(),
		"run_id":      run.GetRunID(),
		"events":      len(events),
	}).Info("tracking events deferred to workflow")
	return nil
}

func WorkflowID(manifestID uuid.UUID, eventCode string) string {
	return fmt.Sprintf("manifest-tracking-%s-%s", manifestID, eventCode)
}
