package manifest

import (
	"fmt"
	"strings"
	"time"
)

// CreateRequest carries what the manifest desk enters for a new manifest.
type CreateRequest struct {
	Type      Type   `json:"type"`
	FromHubID string `json:"from_hub_id"`
	ToHubID   string `json:"to_hub_id"`

	FlightNo    string `json:"flight_number,omitempty"`
	FlightDate  string `json:"flight_date,omitempty"`
	AirlineCode string `json:"airline_code,omitempty"`

	VehicleNo   string `json:"vehicle_number,omitempty"`
	DriverName  string `json:"driver_name,omitempty"`
	DriverPhone string `json:"driver_phone,omitempty"`

	ETD        *time.Time `json:"etd,omitempty"`
	ETA        *time.Time `json:"eta,omitempty"`
	DispatchAt *time.Time `json:"dispatch_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`

	// Status may be OPEN or BUILDING; anything else starts as DRAFT.
	Status  Status `json:"status,omitempty"`
	StaffID string `json:"staff_id,omitempty"`
}

// validateCreate returns every problem with req, in form order.
func validateCreate(req CreateRequest) []string {
	var problems []string

	switch req.Type {
	case TypeAir:
		if len(strings.TrimSpace(req.FlightNo)) < 3 {
			problems = append(problems, "Flight number is required for AIR manifest (min 3 chars)")
		}
	case TypeTruck:
		if len(strings.TrimSpace(req.VehicleNo)) < 4 {
			problems = append(problems, "Vehicle number is required for TRUCK manifest (min 4 chars)")
		}
	default:
		problems = append(problems, fmt.Sprintf("Unknown manifest type %q", req.Type))
	}

	if strings.TrimSpace(req.FromHubID) == "" {
		problems = append(problems, "Origin hub is required")
	}
	if strings.TrimSpace(req.ToHubID) == "" {
		problems = append(problems, "Destination hub is required")
	}
	if req.FromHubID != "" && req.FromHubID == req.ToHubID {
		problems = append(problems, "Destination must be different from Origin")
	}
	return problems
}

func initialStatus(requested Status) Status {
	if requested == StatusOpen || requested == StatusBuilding {
		return requested
	}
	return StatusDraft
}

// ManifestNumber formats the human manifest number for t (UTC).
func ManifestNumber(t time.Time) string {
	return "MAN-" + t.UTC().Format("20060102-150405")
}
