package tracking

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
)

// EventWriter is the part of the manifest store the activity needs.
type EventWriter interface {
	InsertTrackingEvents(ctx context.Context, events []manifest.TrackingEvent) error
}

type Activities struct {
	Store EventWriter
}

func (a *Activities) InsertTrackingEvents(ctx context.Context, in RecordInput) (int, error) {
	info := activity.GetInfo(ctx)
	if err := a.Store.InsertTrackingEvents(ctx, in.Events); err != nil {
		activity.GetLogger(ctx).Warn("tracking insert failed", "manifest_id", in.ManifestID, "attempt", info.Attempt, "error", err)
		return 0, fmt.Errorf("insert tracking events for manifest %s: %w", in.ManifestID, err)
	}
	return len(in.Events), nil
}

// Register adds the workflow and its activity to a worker.
func Register(w interface {
	RegisterWorkflow(w interface{})
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}, a *Activities) {
	w.RegisterWorkflow(RecordTrackingEventsWorkflow)
	w.RegisterActivityWithOptions(a.InsertTrackingEvents, activity.RegisterOptions{Name: ActivityInsertTrackingEvents})
}
