package contracts

import "time"

// Kafka event types published by the manifest service. The message key is the manifest id.
const (
	EventManifestItemAdded   = "manifest.item_added"
	EventManifestItemRemoved = "manifest.item_removed"
	EventManifestClosed      = "manifest.closed"
	EventManifestDeparted    = "manifest.departed"
	EventManifestArrived     = "manifest.arrived"
	EventManifestReconciled  = "manifest.reconciled"
)

// ManifestEvent is the single payload shape for every manifest topic message.
type ManifestEvent struct {
	Type       string `json:"type"`
	ManifestID string `json:"manifest_id"`
	ManifestNo string `json:"manifest_no"`
	FromHubID  string `json:"from_hub_id"`
	ToHubID    string `json:"to_hub_id"`
	Status     string `json:"status"`

	// AWBs is filled for lifecycle events (every linked shipment) and item events (the one shipment).
	AWBs []string `json:"awbs,omitempty"`

	TotalShipments int     `json:"total_shipments"`
	TotalPackages  int     `json:"total_packages"`
	TotalWeight    float64 `json:"total_weight"`

	StaffID    string     `json:"staff_id,omitempty"`
	ETA        *time.Time `json:"eta,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// InboundManifestQueue is the RabbitMQ queue the destination hubs work from.
const InboundManifestQueue = "hub.inbound_manifest"

// InboundManifestJob tells a destination hub what to expect off a departed linehaul.
type InboundManifestJob struct {
	Job               string     `json:"job"`
	HubID             string     `json:"hub_id"`
	ManifestID        string     `json:"manifest_id"`
	ManifestNo        string     `json:"manifest_no"`
	FromHubID         string     `json:"from_hub_id"`
	ExpectedShipments int        `json:"expected_shipments"`
	ExpectedPackages  int        `json:"expected_packages"`
	AWBs              []string   `json:"awbs"`
	ETA               *time.Time `json:"eta,omitempty"`
	DepartedAt        time.Time  `json:"departed_at"`
}
