package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/shipment"
)

type trackingKey struct {
	shipmentID uuid.UUID
	manifestID uuid.UUID
	code       string
}

type memTxKey struct{}

// MemoryStore keeps everything in maps. It serves local runs and tests and
// implements both manifest.Store and manifest.TxManager: RunInTx serializes
// writers and restores a snapshot when fn fails.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	manifests   map[uuid.UUID]manifest.Manifest
	manifestNos map[string]uuid.UUID
	shipments   map[uuid.UUID]shipment.Shipment
	awbs        map[string]uuid.UUID
	items       map[uuid.UUID]map[uuid.UUID]manifest.Item // manifest -> shipment -> item
	tracking    map[trackingKey]manifest.TrackingEvent
	scanLogs    []manifest.ScanLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		manifests:   make(map[uuid.UUID]manifest.Manifest),
		manifestNos: make(map[string]uuid.UUID),
		shipments:   make(map[uuid.UUID]shipment.Shipment),
		awbs:        make(map[string]uuid.UUID),
		items:       make(map[uuid.UUID]map[uuid.UUID]manifest.Item),
		tracking:    make(map[trackingKey]manifest.TrackingEvent),
	}
}

// PutShipment seeds or replaces a booking. Bookings are owned by another
// service; this is how local runs and tests get them in.
func (s *MemoryStore) PutShipment(sh shipment.Shipment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shipments[sh.ID] = sh
	s.awbs[sh.AWB] = sh.ID
}

// GetShipment returns a copy of the stored booking.
func (s *MemoryStore) GetShipment(id uuid.UUID) (shipment.Shipment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shipments[id]
	return sh, ok
}

// TrackingEvents returns the events written for a shipment, oldest first.
func (s *MemoryStore) TrackingEvents(shipmentID uuid.UUID) []manifest.TrackingEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []manifest.TrackingEvent
	for k, e := range s.tracking {
		if k.shipmentID == shipmentID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// RunInTx runs fn with exclusive write access. Store calls made with the
// context passed to fn join the transaction.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		} else if err != nil {
			s.restore(snap)
		}
	}()
	return fn(context.WithValue(ctx, memTxKey{}, s))
}

func (s *MemoryStore) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(memTxKey{}).(*MemoryStore)
	return owner == s
}

// write runs fn under the write lock, joining a running transaction if ctx carries one.
func (s *MemoryStore) write(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if !s.inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *MemoryStore) read(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

type memSnapshot struct {
	manifests   map[uuid.UUID]manifest.Manifest
	manifestNos map[string]uuid.UUID
	shipments   map[uuid.UUID]shipment.Shipment
	awbs        map[string]uuid.UUID
	items       map[uuid.UUID]map[uuid.UUID]manifest.Item
	tracking    map[trackingKey]manifest.TrackingEvent
	scanLogs    []manifest.ScanLog
}

func (s *MemoryStore) snapshot() memSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := memSnapshot{
		manifests:   copyMap(s.manifests),
		manifestNos: copyMap(s.manifestNos),
		shipments:   copyMap(s.shipments),
		awbs:        copyMap(s.awbs),
		items:       make(map[uuid.UUID]map[uuid.UUID]manifest.Item, len(s.items)),
		tracking:    copyMap(s.tracking),
		scanLogs:    append([]manifest.ScanLog(nil), s.scanLogs...),
	}
	for id, set := range s.items {
		snap.items[id] = copyMap(set)
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests = snap.manifests
	s.manifestNos = snap.manifestNos
	s.shipments = snap.shipments
	s.awbs = snap.awbs
	s.items = snap.items
	s.tracking = snap.tracking
	s.scanLogs = snap.scanLogs
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *MemoryStore) CreateManifest(ctx context.Context, m *manifest.Manifest) error {
	return s.write(ctx, func() error {
		if _, taken := s.manifestNos[m.ManifestNo]; taken {
			return manifest.ErrDuplicateManifestNo
		}
		s.manifests[m.ID] = *m
		s.manifestNos[m.ManifestNo] = m.ID
		return nil
	})
}

func (s *MemoryStore) GetManifest(ctx context.Context, id uuid.UUID) (*manifest.Manifest, error) {
	var out *manifest.Manifest
	err := s.read(ctx, func() error {
		m, ok := s.manifests[id]
		if !ok {
			return manifest.ErrManifestNotFound
		}
		out = &m
		return nil
	})
	return out, err
}

// ListManifests returns matches newest first.
func (s *MemoryStore) ListManifests(ctx context.Context, f manifest.Filter) ([]manifest.Manifest, error) {
	var out []manifest.Manifest
	err := s.read(ctx, func() error {
		for _, m := range s.manifests {
			if f.Matches(&m) {
				out = append(out, m)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, err
}

func (s *MemoryStore) GetShipmentByAWB(ctx context.Context, awb string) (*shipment.Shipment, error) {
	var out *shipment.Shipment
	err := s.read(ctx, func() error {
		id, ok := s.awbs[awb]
		if !ok {
			return manifest.ErrShipmentNotFound
		}
		sh := s.shipments[id]
		out = &sh
		return nil
	})
	return out, err
}

func (s *MemoryStore) FindItem(ctx context.Context, manifestID, shipmentID uuid.UUID) (*manifest.Item, error) {
	var out *manifest.Item
	err := s.read(ctx, func() error {
		it, ok := s.items[manifestID][shipmentID]
		if !ok {
			return manifest.ErrItemNotFound
		}
		out = &it
		return nil
	})
	return out, err
}

func (s *MemoryStore) FindEditableManifestForShipment(ctx context.Context, shipmentID, exclude uuid.UUID) (uuid.UUID, error) {
	found := uuid.Nil
	err := s.read(ctx, func() error {
		for manifestID, set := range s.items {
			if manifestID == exclude {
				continue
			}
			if _, ok := set[shipmentID]; !ok {
				continue
			}
			if m, ok := s.manifests[manifestID]; ok && m.Status.Editable() {
				found = manifestID
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (s *MemoryStore) InsertManifestItem(ctx context.Context, item *manifest.Item) error {
	return s.write(ctx, func() error {
		m, ok := s.manifests[item.ManifestID]
		if !ok {
			return manifest.ErrManifestNotFound
		}
		if !m.Status.Editable() {
			return manifest.ErrManifestNotEditable
		}
		set := s.items[item.ManifestID]
		if set == nil {
			set = make(map[uuid.UUID]manifest.Item)
			s.items[item.ManifestID] = set
		}
		if _, dup := set[item.ShipmentID]; dup {
			return manifest.ErrDuplicateItem
		}
		for otherID, other := range s.items {
			if otherID == item.ManifestID {
				continue
			}
			if _, ok := other[item.ShipmentID]; ok && s.manifests[otherID].Status.Editable() {
				return manifest.ErrShipmentInOtherManifest
			}
		}
		set[item.ShipmentID] = *item
		return nil
	})
}

func (s *MemoryStore) DeleteManifestItem(ctx context.Context, manifestID, shipmentID uuid.UUID) error {
	return s.write(ctx, func() error {
		if _, ok := s.items[manifestID][shipmentID]; !ok {
			return manifest.ErrItemNotFound
		}
		delete(s.items[manifestID], shipmentID)
		return nil
	})
}

// ListItems returns the manifest's items in scan order.
func (s *MemoryStore) ListItems(ctx context.Context, manifestID uuid.UUID) ([]manifest.Item, error) {
	var out []manifest.Item
	err := s.read(ctx, func() error {
		out = s.itemsLocked(manifestID)
		return nil
	})
	return out, err
}

func (s *MemoryStore) itemsLocked(manifestID uuid.UUID) []manifest.Item {
	out := make([]manifest.Item, 0, len(s.items[manifestID]))
	for _, it := range s.items[manifestID] {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScannedAt.Equal(out[j].ScannedAt) {
			return out[i].AWB < out[j].AWB
		}
		return out[i].ScannedAt.Before(out[j].ScannedAt)
	})
	return out
}

func (s *MemoryStore) SetShipmentManifest(ctx context.Context, shipmentID uuid.UUID, manifestID *uuid.UUID) error {
	return s.write(ctx, func() error {
		sh, ok := s.shipments[shipmentID]
		if !ok {
			return manifest.ErrShipmentNotFound
		}
		if manifestID != nil {
			id := *manifestID
			sh.ManifestID = &id
		} else {
			sh.ManifestID = nil
		}
		s.shipments[shipmentID] = sh
		return nil
	})
}

func (s *MemoryStore) RecalculateTotals(ctx context.Context, manifestID uuid.UUID) (manifest.Totals, error) {
	var t manifest.Totals
	err := s.write(ctx, func() error {
		m, ok := s.manifests[manifestID]
		if !ok {
			return manifest.ErrManifestNotFound
		}
		t = manifest.SumItems(s.itemsLocked(manifestID))
		m.TotalShipments, m.TotalPackages, m.TotalWeight = t.Shipments, t.Packages, t.Weight
		s.manifests[manifestID] = m
		return nil
	})
	return t, err
}

func (s *MemoryStore) UpdateManifestStatus(ctx context.Context, id uuid.UUID, from, to manifest.Status, at time.Time, staffID string) error {
	return s.write(ctx, func() error {
		m, ok := s.manifests[id]
		if !ok {
			return manifest.ErrManifestNotFound
		}
		if m.Status != from {
			return manifest.ErrInvalidManifestTransition
		}
		m.Status = to
		m.UpdatedAt = at
		stamp := at
		switch to {
		case manifest.StatusClosed:
			m.ClosedAt, m.ClosedBy = &stamp, staffID
		case manifest.StatusDeparted:
			m.DepartedAt = &stamp
		case manifest.StatusArrived:
			m.ArrivedAt = &stamp
		case manifest.StatusReconciled:
			m.ReconciledAt, m.ReconciledBy = &stamp, staffID
		}
		s.manifests[id] = m
		return nil
	})
}

func (s *MemoryStore) BulkUpdateShipments(ctx context.Context, manifestID uuid.UUID, status shipment.ShipmentStatus, at time.Time) ([]shipment.Shipment, error) {
	var out []shipment.Shipment
	err := s.write(ctx, func() error {
		for _, it := range s.itemsLocked(manifestID) {
			sh, ok := s.shipments[it.ShipmentID]
			if !ok {
				continue
			}
			id := manifestID
			sh.Status, sh.ManifestID, sh.UpdatedAt = status, &id, at
			s.shipments[sh.ID] = sh
			out = append(out, sh)
		}
		return nil
	})
	return out, err
}

func (s *MemoryStore) InsertTrackingEvents(ctx context.Context, events []manifest.TrackingEvent) error {
	return s.write(ctx, func() error {
		for _, e := range events {
			k := trackingKey{shipmentID: e.ShipmentID, manifestID: e.ManifestID, code: e.EventCode}
			if _, exists := s.tracking[k]; exists {
				continue
			}
			s.tracking[k] = e
		}
		return nil
	})
}

func (s *MemoryStore) InsertScanLog(ctx context.Context, log *manifest.ScanLog) error {
	return s.write(ctx, func() error {
		s.scanLogs = append(s.scanLogs, *log)
		return nil
	})
}

// ListScanLogs returns the manifest's scans newest first.
func (s *MemoryStore) ListScanLogs(ctx context.Context, manifestID uuid.UUID) ([]manifest.ScanLog, error) {
	var out []manifest.ScanLog
	err := s.read(ctx, func() error {
		for i := len(s.scanLogs) - 1; i >= 0; i-- {
			if s.scanLogs[i].ManifestID == manifestID {
				out = append(out, s.scanLogs[i])
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (s *MemoryStore) ListScanLogsBetween(ctx context.Context, hubID string, from, to time.Time) ([]manifest.ScanLog, error) {
	var out []manifest.ScanLog
	err := s.read(ctx, func() error {
		for _, l := range s.scanLogs {
			if l.CreatedAt.Before(from) || l.CreatedAt.After(to) {
				continue
			}
			if hubID != "" && s.manifests[l.ManifestID].FromHubID != hubID {
				continue
			}
			out = append(out, l)
		}
		return nil
	})
	return out, err
}
