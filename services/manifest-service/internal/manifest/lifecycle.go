package manifest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/shipment"
	"github.com/oinam-labs/tac-portal-sub002/shared/contracts"
)

// LifecycleResult reports what a lifecycle move touched.
type LifecycleResult struct {
	Manifest              *Manifest `json:"manifest"`
	ShipmentsUpdated      int       `json:"shipments_updated"`
	TrackingEventsCreated int       `json:"tracking_events_created"`
	// TrackingDeferred is set when the events were handed to the retry workflow.
	TrackingDeferred bool `json:"tracking_deferred,omitempty"`
}

// step describes one lifecycle move.
type step struct {
	name     string
	from     []Status
	to       Status
	shipment shipment.ShipmentStatus // empty: shipments untouched
	event    string                  // tracking event code, empty: none
	action   string
	kafka    string
	atOrigin bool
}

var (
	closeStep = step{
		name:     "close",
		from:     EditableStatuses(),
		to:       StatusClosed,
		shipment: shipment.StatusLoadedForLinehaul,
		event:    EventLoadedForLinehaul,
		action:   "MANIFEST_CLOSED",
		kafka:    contracts.EventManifestClosed,
		atOrigin: true,
	}
	departStep = step{
		name:     "depart",
		from:     []Status{StatusClosed},
		to:       StatusDeparted,
		shipment: shipment.StatusInTransit,
		event:    EventDeparted,
		action:   "MANIFEST_DEPARTED",
		kafka:    contracts.EventManifestDeparted,
		atOrigin: true,
	}
	arriveStep = step{
		name:     "arrive",
		from:     []Status{StatusDeparted},
		to:       StatusArrived,
		shipment: shipment.StatusReceivedAtDest,
		event:    EventArrived,
		action:   "MANIFEST_ARRIVED",
		kafka:    contracts.EventManifestArrived,
	}
	reconcileStep = step{
		name:  "reconcile",
		from:  []Status{StatusArrived},
		to:    StatusReconciled,
		kafka: contracts.EventManifestReconciled,
	}
)

// Close freezes membership and marks every linked shipment LOADED_FOR_LINEHAUL.
func (s *Service) Close(ctx context.Context, id uuid.UUID, staffID string) (*LifecycleResult, error) {
	return s.advance(ctx, id, closeStep, staffID)
}

// Depart moves a CLOSED manifest and its shipments into transit.
func (s *Service) Depart(ctx context.Context, id uuid.UUID, staffID string) (*LifecycleResult, error) {
	return s.advance(ctx, id, departStep, staffID)
}

// Arrive receives a DEPARTED manifest at its destination hub.
func (s *Service) Arrive(ctx context.Context, id uuid.UUID, staffID string) (*LifecycleResult, error) {
	return s.advance(ctx, id, arriveStep, staffID)
}

// Reconcile signs off an ARRIVED manifest after the inbound count.
func (s *Service) Reconcile(ctx context.Context, id uuid.UUID, staffID string) (*LifecycleResult, error) {
	return s.advance(ctx, id, reconcileStep, staffID)
}

// advance applies st in one transaction: a conditional status update, the
// totals refresh and the shipment bulk update. A manifest that is not in one
// of st.from comes back as ErrInvalidManifestTransition with nothing written.
// Tracking events and the Kafka event follow the commit and never undo it.
func (s *Service) advance(ctx context.Context, id uuid.UUID, st step, staffID string) (*LifecycleResult, error) {
	ctx, span := s.tracer.Start(ctx, "manifest."+st.name)
	defer span.End()
	span.SetAttributes(attribute.String("manifest.id", id.String()))

	m, err := s.store.GetManifest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s manifest %s: %w", st.name, id, err)
	}
	if !statusIn(m.Status, st.from) {
		return nil, fmt.Errorf("%w: cannot %s a %s manifest", ErrInvalidManifestTransition, st.name, m.Status)
	}

	at := s.now().UTC()
	var moved []shipment.Shipment
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateManifestStatus(ctx, id, m.Status, st.to, at, staffID); err != nil {
			return err
		}
		if _, err := s.store.RecalculateTotals(ctx, id); err != nil {
			return err
		}
		if st.shipment == "" {
			return nil
		}
		var err error
		moved, err = s.store.BulkUpdateShipments(ctx, id, st.shipment, at)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s manifest %s: %w", st.name, id, err)
	}

	updated, err := s.store.GetManifest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload manifest %s: %w", id, err)
	}
	res := &LifecycleResult{Manifest: updated, ShipmentsUpdated: len(moved)}

	log := s.log.WithFields(logrus.Fields{
		"manifest_id": id,
		"manifest_no": updated.ManifestNo,
		"status":      updated.Status,
		"shipments":   len(moved),
	})

	if st.event != "" && len(moved) > 0 {
		events := trackingEvents(updated, moved, st, staffID, at)
		if err := s.store.InsertTrackingEvents(ctx, events); err != nil {
			log.WithError(err).Warn("tracking events not written, handing to retry")
			res.TrackingDeferred = s.deferTracking(ctx, log, id, events)
		} else {
			res.TrackingEventsCreated = len(events)
		}
	}
	log.Infof("manifest %s", st.name)

	awbs := make([]string, 0, len(moved))
	for _, sh := range moved {
		awbs = append(awbs, sh.AWB)
	}
	s.publish(ctx, st.kafka, updated, awbs, staffID)
	return res, nil
}

func (s *Service) deferTracking(ctx context.Context, log logrus.FieldLogger, id uuid.UUID, events []TrackingEvent) bool {
	if s.tracker == nil {
		log.Error("no tracking retrier configured, tracking events dropped")
		return false
	}
	if err := s.tracker.RetryTrackingEvents(ctx, id, events); err != nil {
		log.WithError(err).Error("failed to schedule tracking retry")
		return false
	}
	return true
}

func trackingEvents(m *Manifest, moved []shipment.Shipment, st step, staffID string, at time.Time) []TrackingEvent {
	hub := m.ToHubID
	if st.atOrigin {
		hub = m.FromHubID
	}
	events := make([]TrackingEvent, 0, len(moved))
	for _, sh := range moved {
		events = append(events, TrackingEvent{
			ID:         uuid.New(),
			ShipmentID: sh.ID,
			AWB:        sh.AWB,
			ManifestID: m.ID,
			ManifestNo: m.ManifestNo,
			EventCode:  st.event,
			Action:     st.action,
			HubID:      hub,
			ActorID:    staffID,
			Source:     "SYSTEM",
			CreatedAt:  at,
		})
	}
	return events
}

func statusIn(s Status, set []Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
