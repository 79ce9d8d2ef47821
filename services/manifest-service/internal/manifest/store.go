package manifest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/shipment"
)

// Store is the persistence contract of the manifest desk. Implementations
// must enforce at most one item per (manifest, shipment) atomically and
// apply UpdateManifestStatus as a conditional update on the stored status.
type Store interface {
	CreateManifest(ctx context.Context, m *Manifest) error
	GetManifest(ctx context.Context, id uuid.UUID) (*Manifest, error)
	ListManifests(ctx context.Context, f Filter) ([]Manifest, error)

	GetShipmentByAWB(ctx context.Context, awb string) (*shipment.Shipment, error)

	// FindItem returns ErrItemNotFound when the pair is not linked.
	FindItem(ctx context.Context, manifestID, shipmentID uuid.UUID) (*Item, error)
	// FindEditableManifestForShipment returns the id of another editable
	// manifest holding the shipment, or uuid.Nil.
	FindEditableManifestForShipment(ctx context.Context, shipmentID, exclude uuid.UUID) (uuid.UUID, error)
	// InsertManifestItem returns ErrDuplicateItem when the pair already exists
	// ErrShipmentInOtherManifest when another editable manifest holds the
	// shipment, and ErrManifestNotEditable when the manifest left the
	// editable states.
	InsertManifestItem(ctx context.Context, item *Item) error
	DeleteManifestItem(ctx context.Context, manifestID, shipmentID uuid.UUID) error
	ListItems(ctx context.Context, manifestID uuid.UUID) ([]Item, error)
	SetShipmentManifest(ctx context.Context, shipmentID uuid.UUID, manifestID *uuid.UUID) error
	RecalculateTotals(ctx context.Context, manifestID uuid.UUID) (Totals, error)

	// UpdateManifestStatus moves the manifest only if it is currently in from.
	// It returns ErrManifestNotFound or ErrInvalidManifestTransition otherwise.
	UpdateManifestStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time, staffID string) error
	// BulkUpdateShipments sets the status of every shipment linked to the
	// manifest and returns them.
	BulkUpdateShipments(ctx context.Context, manifestID uuid.UUID, status shipment.ShipmentStatus, at time.Time) ([]shipment.Shipment, error)
	// InsertTrackingEvents is idempotent on (shipment, manifest, event code).
	InsertTrackingEvents(ctx context.Context, events []TrackingEvent) error

	InsertScanLog(ctx context.Context, log *ScanLog) error
	ListScanLogs(ctx context.Context, manifestID uuid.UUID) ([]ScanLog, error)
	// ListScanLogsBetween returns scans in [from, to]; a non-empty hubID keeps
	// only scans onto manifests leaving that hub.
	ListScanLogsBetween(ctx context.Context, hubID string, from, to time.Time) ([]ScanLog, error)
}

// TxManager runs fn in one database transaction carried by ctx.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher is satisfied by the shared Kafka producer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// TrackingRetrier takes over tracking events that could not be written
// right after a lifecycle commit.
type TrackingRetrier interface {
	RetryTrackingEvents(ctx context.Context, manifestID uuid.UUID, events []TrackingEvent) error
}
