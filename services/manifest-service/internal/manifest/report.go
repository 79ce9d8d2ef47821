package manifest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ShiftSummary is the handover report for one hub over one shift.
type ShiftSummary struct {
	HubID         string    `json:"hub_id,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	DurationHours float64   `json:"duration_hours"`
	GeneratedAt   time.Time `json:"generated_at"`

	Manifests ManifestCounts `json:"manifests"`
	Scans     ScanCounts     `json:"scans"`

	// OpenManifests counts editable manifests leaving the hub, whenever they were created.
	OpenManifests int `json:"open_manifests"`
}

type ManifestCounts struct {
	Total    int `json:"total"`
	Opened   int `json:"opened"`
	Closed   int `json:"closed"`
	Departed int `json:"departed"`
	Arrived  int `json:"arrived"`
}

type ScanCounts struct {
	Total           int                `json:"total"`
	BySource        map[ScanSource]int `json:"by_source"`
	ByResult        map[ScanResult]int `json:"by_result"`
	UniqueShipments int                `json:"unique_shipments"`
}

// ShiftSummary aggregates manifest and scan activity between start and end.
// An empty hubID reports across all hubs.
func (s *Service) ShiftSummary(ctx context.Context, hubID string, start, end time.Time) (*ShiftSummary, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("shift end %s must be after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	ctx, span := s.tracer.Start(ctx, "manifest.ShiftSummary")
	defer span.End()

	manifests, err := s.store.ListManifests(ctx, Filter{HubID: hubID, UpdatedFrom: start, UpdatedTo: end})
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	logs, err := s.store.ListScanLogsBetween(ctx, hubID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list scan logs: %w", err)
	}

	out := &ShiftSummary{
		HubID:         hubID,
		Start:         start,
		End:           end,
		DurationHours: math.Round(end.Sub(start).Hours()*10) / 10,
		GeneratedAt:   s.now().UTC(),
		Manifests:     countManifests(manifests, start, end),
		Scans:         countScans(logs),
	}

	for _, st := range EditableStatuses() {
		open, err := s.store.ListManifests(ctx, Filter{Status: st, FromHubID: hubID})
		if err != nil {
			return nil, fmt.Errorf("list %s manifests: %w", st, err)
		}
		out.OpenManifests += len(open)
	}
	return out, nil
}

func countManifests(ms []Manifest, start, end time.Time) ManifestCounts {
	within := func(t *time.Time) bool {
		return t != nil && !t.Before(start) && !t.After(end)
	}
	c := ManifestCounts{Total: len(ms)}
	for i := range ms {
		m := &ms[i]
		if within(&m.CreatedAt) {
			c.Opened++
		}
		if within(m.ClosedAt) {
			c.Closed++
		}
		if within(m.DepartedAt) {
			c.Departed++
		}
		if within(m.ArrivedAt) {
			c.Arrived++
		}
	}
	return c
}

func countScans(logs []ScanLog) ScanCounts {
	c := ScanCounts{
		Total:    len(logs),
		BySource: make(map[ScanSource]int),
		ByResult: make(map[ScanResult]int),
	}
	seen := make(map[uuid.UUID]struct{})
	for _, l := range logs {
		c.BySource[l.Source]++
		c.ByResult[l.Result]++
		if l.ShipmentID != nil {
			seen[*l.ShipmentID] = struct{}{}
		}
	}
	c.UniqueShipments = len(seen)
	return c
}
