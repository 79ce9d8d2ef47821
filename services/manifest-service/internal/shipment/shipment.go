package shipment

import (
	"time"

	"github.com/google/uuid"
)

// Shipment is the slice of a booking the manifest desk works with.
type Shipment struct {
	ID               uuid.UUID      `json:"id"`
	AWB              string         `json:"awb_number"`
	Status           ShipmentStatus `json:"status"`
	OriginHubID      string         `json:"origin_hub_id"`
	DestinationHubID string         `json:"destination_hub_id"`
	ConsigneeName    string         `json:"consignee_name"`
	SenderName       string         `json:"sender_name"`
	PackageCount     int            `json:"package_count"`
	Weight           float64        `json:"total_weight"`
	// ManifestID is set while the shipment is linked to a manifest.
	ManifestID *uuid.UUID `json:"manifest_id,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// manifestEligible are the statuses a shipment may be in when it is scanned onto a manifest.
var manifestEligible = map[ShipmentStatus]bool{
	StatusCreated:          true,
	StatusPickedUp:         true,
	StatusReceivedAtOrigin: true,
}

// EligibleForManifest reports whether s can be loaded onto an outbound manifest.
func EligibleForManifest(s ShipmentStatus) bool {
	return manifestEligible[s]
}
