package manifest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/shipment"
)

// Status is the manifest lifecycle state.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusOpen       Status = "OPEN"
	StatusBuilding   Status = "BUILDING"
	StatusClosed     Status = "CLOSED"
	StatusDeparted   Status = "DEPARTED"
	StatusArrived    Status = "ARRIVED"
	StatusReconciled Status = "RECONCILED"
)

var statusTransitions = map[Status][]Status{
	StatusDraft:      {StatusBuilding, StatusOpen, StatusClosed},
	StatusOpen:       {StatusBuilding, StatusClosed},
	StatusBuilding:   {StatusOpen, StatusClosed},
	StatusClosed:     {StatusDeparted},
	StatusDeparted:   {StatusArrived},
	StatusArrived:    {StatusReconciled},
	StatusReconciled: {},
}

// CanTransition reports whether a manifest may move from current to next.
func CanTransition(current, next Status) bool {
	for _, s := range statusTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// Editable is true while shipments may still be added or removed.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusOpen || s == StatusBuilding
}

// EditableStatuses lists the statuses for which Editable is true.
func EditableStatuses() []Status {
	return []Status{StatusDraft, StatusOpen, StatusBuilding}
}

// ParseStatus rejects unknown manifest statuses read from storage or requests.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := statusTransitions[s]; !ok {
		return "", fmt.Errorf("unknown manifest status %q", raw)
	}
	return s, nil
}

// Type is the linehaul mode.
type Type string

const (
	TypeAir   Type = "AIR"
	TypeTruck Type = "TRUCK"
)

// Manifest groups shipments that move together on one leg between two hubs.
type Manifest struct {
	ID         uuid.UUID `json:"id"`
	ManifestNo string    `json:"manifest_no"`
	Type       Type      `json:"type"`
	FromHubID  string    `json:"from_hub_id"`
	ToHubID    string    `json:"to_hub_id"`
	Status     Status    `json:"status"`

	// AIR
	FlightNo    string `json:"flight_number,omitempty"`
	FlightDate  string `json:"flight_date,omitempty"`
	AirlineCode string `json:"airline_code,omitempty"`
	// TRUCK
	VehicleNo   string `json:"vehicle_number,omitempty"`
	DriverName  string `json:"driver_name,omitempty"`
	DriverPhone string `json:"driver_phone,omitempty"`

	ETD        *time.Time `json:"etd,omitempty"`
	ETA        *time.Time `json:"eta,omitempty"`
	DispatchAt *time.Time `json:"dispatch_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`

	TotalShipments int     `json:"total_shipments"`
	TotalPackages  int     `json:"total_packages"`
	TotalWeight    float64 `json:"total_weight"`

	CreatedBy    string     `json:"created_by_staff_id,omitempty"`
	ClosedBy     string     `json:"closed_by_staff_id,omitempty"`
	ReconciledBy string     `json:"reconciled_by_staff_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	DepartedAt   *time.Time `json:"departed_at,omitempty"`
	ArrivedAt    *time.Time `json:"arrived_at,omitempty"`
	ReconciledAt *time.Time `json:"reconciled_at,omitempty"`
}

// Item links one shipment to one manifest. At most one exists per pair.
type Item struct {
	ID           uuid.UUID `json:"id"`
	ManifestID   uuid.UUID `json:"manifest_id"`
	ShipmentID   uuid.UUID `json:"shipment_id"`
	AWB          string    `json:"awb_number"`
	PackageCount int       `json:"package_count"`
	Weight       float64   `json:"total_weight"`
	ScannedBy    string    `json:"scanned_by_staff_id,omitempty"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// Totals are the manifest aggregates; they always equal the sums over its items.
type Totals struct {
	Shipments int     `json:"total_shipments"`
	Packages  int     `json:"total_packages"`
	Weight    float64 `json:"total_weight"`
}

// SumItems computes Totals from the linked items.
func SumItems(items []Item) Totals {
	var t Totals
	for _, it := range items {
		t.Shipments++
		t.Packages += it.PackageCount
		t.Weight += it.Weight
	}
	return t
}

// Event codes written to tracking_events by the lifecycle.
const (
	EventLoadedForLinehaul = "LOADED_FOR_LINEHAUL"
	EventDeparted          = "DEPARTED"
	EventArrived           = "ARRIVED"
)

// TrackingEvent is one line of a shipment's public tracking history.
type TrackingEvent struct {
	ID         uuid.UUID `json:"id"`
	ShipmentID uuid.UUID `json:"shipment_id"`
	AWB        string    `json:"awb_number"`
	ManifestID uuid.UUID `json:"manifest_id"`
	ManifestNo string    `json:"manifest_no"`
	EventCode  string    `json:"event_code"`
	Action     string    `json:"action"`
	HubID      string    `json:"hub_id"`
	ActorID    string    `json:"actor_staff_id,omitempty"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScanSource is the input device of a scan.
type ScanSource string

const (
	SourceCamera  ScanSource = "CAMERA"
	SourceManual  ScanSource = "MANUAL"
	SourceScanner ScanSource = "BARCODE_SCANNER"
)

// ScanResult is the recorded outcome of one scan attempt.
type ScanResult string

const (
	ResultSuccess           ScanResult = "SUCCESS"
	ResultDuplicate         ScanResult = "DUPLICATE"
	ResultNotFound          ScanResult = "NOT_FOUND"
	ResultInvalid           ScanResult = "INVALID"
	ResultWrongDestination  ScanResult = "WRONG_DESTINATION"
	ResultWrongStatus       ScanResult = "WRONG_STATUS"
	ResultAlreadyManifested ScanResult = "ALREADY_MANIFESTED"
	ResultManifestClosed    ScanResult = "MANIFEST_CLOSED"
)

// ScanLog is the audit row written for every scan that reached the service.
type ScanLog struct {
	ID              uuid.UUID  `json:"id"`
	ManifestID      uuid.UUID  `json:"manifest_id"`
	ShipmentID      *uuid.UUID `json:"shipment_id,omitempty"`
	RawScanToken    string     `json:"raw_scan_token"`
	NormalizedToken string     `json:"normalized_token,omitempty"`
	Result          ScanResult `json:"scan_result"`
	Source          ScanSource `json:"scan_source"`
	StaffID         string     `json:"scanned_by_staff_id,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Scan rejection codes returned in ScanResponse.Error.
const (
	ScanErrInvalidFormat       = "INVALID_FORMAT"
	ScanErrInvalidScanType     = "INVALID_SCAN_TYPE"
	ScanErrDebounced           = "DEBOUNCED"
	ScanErrManifestNotFound    = "MANIFEST_NOT_FOUND"
	ScanErrManifestClosed      = "MANIFEST_CLOSED"
	ScanErrShipmentNotFound    = "SHIPMENT_NOT_FOUND"
	ScanErrAlreadyInManifest   = "ALREADY_IN_MANIFEST"
	ScanErrDestinationMismatch = "DESTINATION_MISMATCH"
	ScanErrInvalidStatus       = "INVALID_STATUS"
	ScanErrSystem              = "SYSTEM_ERROR"
)

// ScanResponse is returned for every scan. Duplicate scans are successes.
type ScanResponse struct {
	Success        bool                    `json:"success"`
	Duplicate      bool                    `json:"duplicate"`
	AWBNumber      string                  `json:"awb_number,omitempty"`
	ConsigneeName  string                  `json:"consignee_name,omitempty"`
	SenderName     string                  `json:"sender_name,omitempty"`
	Error          string                  `json:"error,omitempty"`
	Message        string                  `json:"message,omitempty"`
	ShipmentID     string                  `json:"shipment_id,omitempty"`
	ManifestItemID string                  `json:"manifest_item_id,omitempty"`
	TotalPackages  int                     `json:"total_packages,omitempty"`
	TotalWeight    float64                 `json:"total_weight,omitempty"`
	CurrentStatus  shipment.ShipmentStatus `json:"current_status,omitempty"`
}

// Filter narrows List. Zero values do not filter; a zero Limit returns every match.
type Filter struct {
	Status    Status
	FromHubID string
	ToHubID   string
	// HubID matches either end of the leg.
	HubID string
	Type  Type

	UpdatedFrom time.Time
	UpdatedTo   time.Time
	Limit       int
}

// Matches applies f to m the way the SQL store does.
func (f Filter) Matches(m *Manifest) bool {
	switch {
	case f.Status != "" && m.Status != f.Status:
		return false
	case f.FromHubID != "" && m.FromHubID != f.FromHubID:
		return false
	case f.ToHubID != "" && m.ToHubID != f.ToHubID:
		return false
	case f.HubID != "" && m.FromHubID != f.HubID && m.ToHubID != f.HubID:
		return false
	case f.Type != "" && m.Type != f.Type:
		return false
	case !f.UpdatedFrom.IsZero() && m.UpdatedAt.Before(f.UpdatedFrom):
		return false
	case !f.UpdatedTo.IsZero() && m.UpdatedAt.After(f.UpdatedTo):
		return false
	}
	return true
}
