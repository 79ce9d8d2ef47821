package tracking

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
)

// ActivityInsertTrackingEvents is the registered name of Activities.InsertTrackingEvents.
const ActivityInsertTrackingEvents = "ACTIVITY_InsertTrackingEvents"

// RecordInput carries the tracking events a lifecycle transition could not write.
type RecordInput struct {
	ManifestID string                   `json:"manifest_id"`
	Events     []manifest.TrackingEvent `json:"events"`
}

// RecordTrackingEventsWorkflow keeps inserting the events until the store
// accepts them. Inserts are idempotent, so a retry after a partial write is safe.
func RecordTrackingEventsWorkflow(ctx workflow.Context, in RecordInput) (int, error) {
	retrypolicy := &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    100,
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         retrypolicy,
	})

	if len(in.Events) == 0 {
		return 0, nil
	}

	var written int
	if err := workflow.ExecuteActivity(ctx, ActivityInsertTrackingEvents, in).Get(ctx, &written); err != nil {
		return 0, err
	}
	workflow.GetLogger(ctx).Info("tracking events recorded", "manifest_id", in.ManifestID, "count", written)
	return written, nil
}
