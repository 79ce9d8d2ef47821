package manifest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/shipment"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/store"
	"github.com/oinam-labs/tac-portal-sub002/shared/contracts"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []contracts.ManifestEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, value.(contracts.ManifestEvent))
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingRetrier struct {
	manifestID uuid.UUID
	events     []manifest.TrackingEvent
}

func (r *recordingRetrier) RetryTrackingEvents(ctx context.Context, id uuid.UUID, events []manifest.TrackingEvent) error {
	r.manifestID = id
	r.events = append(r.events, events...)
	return nil
}

// flakyStore fails tracking writes so the retry hand-off can be observed.
type flakyStore struct {
	*store.MemoryStore
	trackingErr error
}

func (f *flakyStore) InsertTrackingEvents(ctx context.Context, events []manifest.TrackingEvent) error {
	if f.trackingErr != nil {
		return f.trackingErr
	}
	return f.MemoryStore.InsertTrackingEvents(ctx, events)
}

type fixture struct {
	store     *store.MemoryStore
	clock     *fakeClock
	publisher *recordingPublisher
	retrier   *recordingRetrier
	svc       *manifest.Service
}

func newFixture(t *testing.T, opts ...manifest.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     store.NewMemoryStore(),
		clock:     &fakeClock{now: time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)},
		publisher: &recordingPublisher{},
		retrier:   &recordingRetrier{},
	}
	logger, _ := test.NewNullLogger()
	base := []manifest.Option{
		manifest.WithClock(f.clock.Now),
		manifest.WithPublisher(f.publisher),
		manifest.WithTrackingRetrier(f.retrier),
		manifest.WithLogger(logger),
	}
	f.svc = manifest.New(f.store, f.store, append(base, opts...)...)
	return f
}

func (f *fixture) truck(t *testing.T, status manifest.Status) *manifest.Manifest {
	t.Helper()
	m, err := f.svc.Create(context.Background(), manifest.CreateRequest{
		Type:      manifest.TypeTruck,
		FromHubID: "IMF",
		ToHubID:   "GAU",
		VehicleNo: "mn01ab1234",
		Status:    status,
		StaffID:   "staff-1",
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return m
}

func (f *fixture) booking(awb string, status shipment.ShipmentStatus, dest string) shipment.Shipment {
	sh := shipment.Shipment{
		ID:               uuid.New(),
		AWB:              awb,
		Status:           status,
		OriginHubID:      "IMF",
		DestinationHubID: dest,
		ConsigneeName:    "R. Devi",
		SenderName:       "K. Singh",
		PackageCount:     3,
		Weight:           12.5,
	}
	f.store.PutShipment(sh)
	return sh
}

func (f *fixture) scan(t *testing.T, m *manifest.Manifest, token string) manifest.ScanResponse {
	t.Helper()
	resp, err := f.svc.AddShipmentByScan(context.Background(), manifest.ScanRequest{
		ManifestID: m.ID,
		Token:      token,
		Source:     manifest.SourceScanner,
	})
	require.NoError(t, err)
	return resp
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name    string
		req     manifest.CreateRequest
		wantErr string
	}{
		{
			name:    "air without flight",
			req:     manifest.CreateRequest{Type: manifest.TypeAir, FromHubID: "IMF", ToHubID: "GAU", FlightNo: " 6E "},
			wantErr: "Flight number is required for AIR manifest (min 3 chars)",
		},
		{
			name:    "truck with short vehicle",
			req:     manifest.CreateRequest{Type: manifest.TypeTruck, FromHubID: "IMF", ToHubID: "GAU", VehicleNo: "MN1"},
			wantErr: "Vehicle number is required for TRUCK manifest (min 4 chars)",
		},
		{
			name:    "same hubs",
			req:     manifest.CreateRequest{Type: manifest.TypeAir, FromHubID: "IMF", ToHubID: "IMF", FlightNo: "6E-123"},
			wantErr: "Destination must be different from Origin",
		},
		{
			name:    "unknown type",
			req:     manifest.CreateRequest{Type: "RAIL", FromHubID: "IMF", ToHubID: "GAU"},
			wantErr: `Unknown manifest type "RAIL"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Create(context.Background(), tt.req)
			require.ErrorIs(t, err, manifest.ErrInvalidManifest)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCreateDefaultsAndNumbering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.Create(ctx, manifest.CreateRequest{
		Type: "air", FromHubID: "IMF", ToHubID: "CCU", FlightNo: "6e-737", Status: manifest.StatusClosed,
	})
	require.NoError(t, err)
	assert.Equal(t, "MAN-20261016-093000", m.ManifestNo)
	assert.Equal(t, manifest.StatusDraft, m.Status, "only OPEN or BUILDING may be requested")
	assert.Equal(t, manifest.TypeAir, m.Type)
	assert.Equal(t, "6E-737", m.FlightNo)

	// same second: the clash is retried one second later
	clash, err := f.svc.Create(ctx, manifest.CreateRequest{
		Type: manifest.TypeTruck, FromHubID: "IMF", ToHubID: "GAU", VehicleNo: "MN01AB1234", Status: manifest.StatusOpen,
	})
	require.NoError(t, err)
	assert.Equal(t, "MAN-20261016-093001", clash.ManifestNo)
	assert.Equal(t, manifest.StatusOpen, clash.Status)
}

func TestAddShipmentByScanIsIdempotent(t *testing.T) {
	f := newFixture(t)
	m := f.truck(t, manifest.StatusOpen)
	sh := f.booking("TAC20260001", shipment.StatusReceivedAtOrigin, "GAU")

	first := f.scan(t, m, "tac20260001")
	require.True(t, first.Success, first.Message)
	assert.False(t, first.Duplicate)
	assert.Equal(t, "TAC20260001", first.AWBNumber)
	assert.Equal(t, sh.ID.String(), first.ShipmentID)
	assert.NotEmpty(t, first.ManifestItemID)

	second := f.scan(t, m, `{"v":1,"awb":"TAC20260001"}`)
	assert.True(t, second.Success)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ManifestItemID, second.ManifestItemID)

	items, err := f.svc.Items(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	got, err := f.svc.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalShipments)
	assert.Equal(t, 3, got.TotalPackages)
	assert.Equal(t, 12.5, got.TotalWeight)

	stored, _ := f.store.GetShipment(sh.ID)
	require.NotNil(t, stored.ManifestID)
	assert.Equal(t, m.ID, *stored.ManifestID)

	assert.Equal(t, []string{contracts.EventManifestItemAdded}, f.publisher.types())

	logs, err := f.svc.ScanLogs(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, manifest.ResultDuplicate, logs[0].Result)
	assert.Equal(t, manifest.ResultSuccess, logs[1].Result)
}

func TestAddShipmentByScanConcurrentScansLandOnce(t *testing.T) {
	f := newFixture(t)
	m := f.truck(t, manifest.StatusBuilding)
	f.booking("TAC20260002", shipment.StatusCreated, "GAU")

	var wg sync.WaitGroup
	responses := make([]manifest.ScanResponse, 10)
	for i := range responses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := f.svc.AddShipmentByScan(context.Background(), manifest.ScanRequest{ManifestID: m.ID, Token: "TAC20260002"})
			assert.NoError(t, err)
			responses[i] = resp
		}(i)
	}
	wg.Wait()

	added := 0
	for _, r := range responses {
		assert.True(t, r.Success)
		if !r.Duplicate {
			added++
		}
	}
	assert.Equal(t, 1, added)
	items, _ := f.svc.Items(context.Background(), m.ID)
	assert.Len(t, items, 1)
}

func TestAddShipmentByScanConcurrentScansIntoDifferentManifests(t *testing.T) {
	f := newFixture(t)
	var targets []*manifest.Manifest
	for i := 0; i < 6; i++ {
		targets = append(targets, f.truck(t, manifest.StatusOpen))
	}
	sh := f.booking("TAC20260005", shipment.StatusCreated, "GAU")

	var wg sync.WaitGroup
	responses := make([]manifest.ScanResponse, len(targets))
	for i, m := range targets {
		wg.Add(1)
		go func(i int, m *manifest.Manifest) {
			defer wg.Done()
			resp, err := f.svc.AddShipmentByScan(context.Background(), manifest.ScanRequest{ManifestID: m.ID, Token: sh.AWB})
			assert.NoError(t, err)
			responses[i] = resp
		}(i, m)
	}
	wg.Wait()

	added := 0
	for _, r := range responses {
		if r.Success {
			added++
			continue
		}
		assert.Equal(t, manifest.ScanErrAlreadyInManifest, r.Error)
	}
	assert.Equal(t, 1, added)

	total := 0
	for _, m := range targets {
		items, err := f.svc.Items(context.Background(), m.ID)
		require.NoError(t, err)
		total += len(items)
	}
	assert.Equal(t, 1, total)
}

func TestAddShipmentByScanRejections(t *testing.T) {
	no := false

	tests := []struct {
		name      string
		setup     func(t *testing.T, f *fixture) (*manifest.Manifest, manifest.ScanRequest)
		wantError string
		wantLog   manifest.ScanResult
	}{
		{
			name: "garbage",
			setup: func(t *testing.T, f *fixture) (*manifest.Manifest, manifest.ScanRequest) {
				m := f.truck(t, manifest.StatusOpen)
				return m, manifest.ScanRequest{ManifestID: m.ID, Token: "hello world"}
			},
			wantError: manifest.ScanErrInvalidFormat,
			wantLog:   manifest.ResultInvalid,
		},
		{
			name: "manifest label",
			setup: func(t *testing.T, f *fixture) (*manifest.Manifest, manifest.ScanRequest) {
				m := f.truck(t, manifest.StatusOpen)
				return m, manifest.ScanRequest{ManifestID: m.ID, Token: m.ManifestNo}
			},
			wantError: manifest.ScanErrInvalidScanType,
			wantLog:   manifest.ResultInvalid,
		},
		{
			name: "closed manifest",
			setup: func(t *testing.T, f *fixture) (*manifest.Manifest, manifest.ScanRequest) {
				m := f.truck(t, manifest.StatusOpen)
				_, err := f.svc.Close(context.Background(), m.ID, "")
				require.NoError(t, err)
				f.booking("TAC20260003", shipment.StatusCreated, "GAU")
				return m, manifest.ScanRequest{ManifestID: m.ID, Token: "TAC20260003"}
			},
			wantError: manifest.ScanErrManifestClosed,
			wantLog:   manifest.ResultManifestClosed,
		},
		{
			name: "unknown awb",
			setup: func(t *testing.T, f *fixture) (*manifest.Manifest, manifest.ScanRequest) {
				m := f.truck(t, manifest.StatusOpen)
				return m, manifest.ScanRequest{ManifestID: m.ID, Token: "TAC99999999"}
			},
			wantError: manifest.ScanErrShipmentNotFound,
			wantLog:   manifest.ResultNotFound,
		},
		{
			name: "wrong destination",
			setup: func(t *testing.T, f *fixture) (*manifest.Manifest, manifest.ScanRequest) {
				m := f.truck(t, manifest.StatusOpen)
				f.booking("TAC20260004", shipment.StatusCreated, "CCU")
				return m, manifest.ScanRequest{ManifestID: m.ID, Token: "TAC20260004"}
			},
			wantError: manifest.ScanErrDestinationMismatch,
			wantLog:   manifest.ResultWrongDestination,
		},
		{
			name: "ineligible status",
			setup: func(t *testing.T, f *fixture) (*manifest.Manifest, manifest.ScanRequest) {
				m := f.truck(t, manifest.StatusOpen)
				f.booking("TAC20260005", shipment.StatusDelivered, "GAU")
				return m, manifest.ScanRequest{ManifestID: m.ID, Token: "TAC20260005"}
			},
			wantError: manifest.ScanErrInvalidStatus,
			wantLog:   manifest.ResultWrongStatus,
		},
		{
			name: "already on another open manifest",
			setup: func(t *testing.T, f *fixture) (*manifest.Manifest, manifest.ScanRequest) {
				first := f.truck(t, manifest.StatusOpen)
				f.booking("TAC20260006", shipment.StatusCreated, "GAU")
				require.True(t, f.scan(t, first, "TAC20260006").Success)
				m := f.truck(t, manifest.StatusOpen)
				return m, manifest.ScanRequest{ManifestID: m.ID, Token: "TAC20260006"}
			},
			wantError: manifest.ScanErrAlreadyInManifest,
			wantLog:   manifest.ResultAlreadyManifested,
		},
		{
			name: "checks can be switched off per request",
			setup: func(t *testing.T, f *fixture) (*manifest.Manifest, manifest.ScanRequest) {
				m := f.truck(t, manifest.StatusOpen)
				f.booking("TAC20260007", shipment.StatusDelivered, "CCU")
				return m, manifest.ScanRequest{
					ManifestID: m.ID, Token: "TAC20260007",
					ValidateDestination: &no, ValidateStatus: &no,
				}
			},
			wantLog: manifest.ResultSuccess,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			m, req := tt.setup(t, f)

			resp, err := f.svc.AddShipmentByScan(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Equal(t, tt.wantError == "", resp.Success, resp.Message)

			logs, err := f.svc.ScanLogs(context.Background(), m.ID)
			require.NoError(t, err)
			require.NotEmpty(t, logs)
			assert.Equal(t, tt.wantLog, logs[0].Result)
			assert.Equal(t, req.Token, logs[0].RawScanToken)
		})
	}
}

func TestAddShipmentByScanUnknownManifest(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.AddShipmentByScan(context.Background(), manifest.ScanRequest{ManifestID: uuid.New(), Token: "TAC20260008"})
	require.NoError(t, err)
	assert.Equal(t, manifest.ScanErrManifestNotFound, resp.Error)
}

func TestAddShipmentByScanDebouncesPerStation(t *testing.T) {
	f := newFixture(t)
	m := f.truck(t, manifest.StatusOpen)
	f.booking("TAC20260010", shipment.StatusCreated, "GAU")
	f.booking("TAC20260011", shipment.StatusCreated, "GAU")
	ctx := context.Background()

	req := func(token, station string) manifest.ScanRequest {
		return manifest.ScanRequest{ManifestID: m.ID, Token: token, StationID: station}
	}

	resp, err := f.svc.AddShipmentByScan(ctx, req("TAC20260010", "dock-1"))
	require.NoError(t, err)
	assert.True(t, resp.Success)

	resp, err = f.svc.AddShipmentByScan(ctx, req("TAC20260011", "dock-1"))
	require.NoError(t, err)
	assert.Equal(t, manifest.ScanErrDebounced, resp.Error)

	resp, err = f.svc.AddShipmentByScan(ctx, req("TAC20260011", "dock-2"))
	require.NoError(t, err)
	assert.True(t, resp.Success, "other stations are not throttled")

	logs, _ := f.svc.ScanLogs(ctx, m.ID)
	assert.Len(t, logs, 2, "debounced scans never reach the audit log")
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.truck(t, manifest.StatusOpen)
	a := f.booking("TAC20260020", shipment.StatusReceivedAtOrigin, "GAU")
	b := f.booking("TAC20260021", shipment.StatusPickedUp, "GAU")
	require.True(t, f.scan(t, m, a.AWB).Success)
	require.True(t, f.scan(t, m, b.AWB).Success)

	// depart before close: nothing moves
	_, err := f.svc.Depart(ctx, m.ID, "")
	require.ErrorIs(t, err, manifest.ErrInvalidManifestTransition)
	got, _ := f.svc.Get(ctx, m.ID)
	assert.Equal(t, manifest.StatusOpen, got.Status)
	stored, _ := f.store.GetShipment(a.ID)
	assert.Equal(t, shipment.StatusReceivedAtOrigin, stored.Status)

	steps := []struct {
		name     string
		run      func(context.Context, uuid.UUID, string) (*manifest.LifecycleResult, error)
		status   manifest.Status
		shipment shipment.ShipmentStatus
		event    string
		hub      string
	}{
		{"close", f.svc.Close, manifest.StatusClosed, shipment.StatusLoadedForLinehaul, manifest.EventLoadedForLinehaul, "IMF"},
		{"depart", f.svc.Depart, manifest.StatusDeparted, shipment.StatusInTransit, manifest.EventDeparted, "IMF"},
		{"arrive", f.svc.Arrive, manifest.StatusArrived, shipment.StatusReceivedAtDest, manifest.EventArrived, "GAU"},
	}
	for _, st := range steps {
		f.clock.Advance(time.Hour)
		res, err := st.run(ctx, m.ID, "staff-9")
		require.NoError(t, err, st.name)
		assert.Equal(t, st.status, res.Manifest.Status)
		assert.Equal(t, 2, res.ShipmentsUpdated)
		assert.Equal(t, 2, res.TrackingEventsCreated)
		assert.Equal(t, 2, res.Manifest.TotalShipments)

		for _, id := range []uuid.UUID{a.ID, b.ID} {
			sh, _ := f.store.GetShipment(id)
			assert.Equal(t, st.shipment, sh.Status, st.name)
			events := f.store.TrackingEvents(id)
			last := events[len(events)-1]
			assert.Equal(t, st.event, last.EventCode)
			assert.Equal(t, st.hub, last.HubID)
			assert.Equal(t, m.ManifestNo, last.ManifestNo)
			assert.Equal(t, "SYSTEM", last.Source)
		}
	}

	// closing twice is rejected
	_, err = f.svc.Close(ctx, m.ID, "")
	assert.ErrorIs(t, err, manifest.ErrInvalidManifestTransition)

	res, err := f.svc.Reconcile(ctx, m.ID, "staff-9")
	require.NoError(t, err)
	assert.Equal(t, manifest.StatusReconciled, res.Manifest.Status)
	assert.Equal(t, "staff-9", res.Manifest.ReconciledBy)
	require.NotNil(t, res.Manifest.ClosedAt)
	require.NotNil(t, res.Manifest.DepartedAt)
	require.NotNil(t, res.Manifest.ArrivedAt)

	assert.Equal(t, []string{
		contracts.EventManifestItemAdded,
		contracts.EventManifestItemAdded,
		contracts.EventManifestClosed,
		contracts.EventManifestDeparted,
		contracts.EventManifestArrived,
		contracts.EventManifestReconciled,
	}, f.publisher.types())
}

func TestLifecycleDefersTrackingOnFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	flaky := &flakyStore{MemoryStore: mem, trackingErr: errors.New("tracking table locked")}
	retrier := &recordingRetrier{}
	logger, hook := test.NewNullLogger()
	svc := manifest.New(flaky, mem, manifest.WithTrackingRetrier(retrier), manifest.WithLogger(logger))
	ctx := context.Background()

	m, err := svc.Create(ctx, manifest.CreateRequest{Type: manifest.TypeTruck, FromHubID: "IMF", ToHubID: "GAU", VehicleNo: "MN01AB1234"})
	require.NoError(t, err)
	sh := shipment.Shipment{ID: uuid.New(), AWB: "TAC20260030", Status: shipment.StatusCreated, DestinationHubID: "GAU", PackageCount: 1}
	mem.PutShipment(sh)
	resp, err := svc.AddShipmentByScan(ctx, manifest.ScanRequest{ManifestID: m.ID, Token: sh.AWB})
	require.NoError(t, err)
	require.True(t, resp.Success)

	res, err := svc.Close(ctx, m.ID, "")
	require.NoError(t, err, "tracking failures never undo the close")
	assert.Equal(t, manifest.StatusClosed, res.Manifest.Status)
	assert.True(t, res.TrackingDeferred)
	assert.Zero(t, res.TrackingEventsCreated)

	assert.Equal(t, m.ID, retrier.manifestID)
	require.Len(t, retrier.events, 1)
	assert.Equal(t, manifest.EventLoadedForLinehaul, retrier.events[0].EventCode)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestLifecycleSurvivesPublisherFailure(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	m := f.truck(t, manifest.StatusDraft)

	res, err := f.svc.Close(context.Background(), m.ID, "")
	require.NoError(t, err)
	assert.Equal(t, manifest.StatusClosed, res.Manifest.Status)
}

func TestDepartConcurrentCallsSucceedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.truck(t, manifest.StatusOpen)
	a := f.booking("TAC20260040", shipment.StatusReceivedAtOrigin, "GAU")
	b := f.booking("TAC20260041", shipment.StatusCreated, "GAU")
	require.True(t, f.scan(t, m, a.AWB).Success)
	require.True(t, f.scan(t, m, b.AWB).Success)
	_, err := f.svc.Close(ctx, m.ID, "")
	require.NoError(t, err)

	const callers = 20
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Depart(ctx, m.ID, "staff-2")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, manifest.ErrInvalidManifestTransition)
	}
	assert.Equal(t, 1, succeeded)

	got, _ := f.svc.Get(ctx, m.ID)
	assert.Equal(t, manifest.StatusDeparted, got.Status)
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		departed := 0
		for _, e := range f.store.TrackingEvents(id) {
			if e.EventCode == manifest.EventDeparted {
				departed++
			}
		}
		assert.Equal(t, 1, departed)
		sh, _ := f.store.GetShipment(id)
		assert.Equal(t, shipment.StatusInTransit, sh.Status)
	}
}

func TestRemoveShipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.truck(t, manifest.StatusOpen)
	a := f.booking("TAC20260040", shipment.StatusCreated, "GAU")
	b := f.booking("TAC20260041", shipment.StatusCreated, "GAU")
	f.scan(t, m, a.AWB)
	f.scan(t, m, b.AWB)

	require.NoError(t, f.svc.RemoveShipment(ctx, m.ID, a.ID, "staff-2"))
	got, _ := f.svc.Get(ctx, m.ID)
	assert.Equal(t, 1, got.TotalShipments)
	assert.Equal(t, 3, got.TotalPackages)
	stored, _ := f.store.GetShipment(a.ID)
	assert.Nil(t, stored.ManifestID)

	assert.ErrorIs(t, f.svc.RemoveShipment(ctx, m.ID, a.ID, ""), manifest.ErrItemNotFound)

	_, err := f.svc.Close(ctx, m.ID, "")
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.RemoveShipment(ctx, m.ID, b.ID, ""), manifest.ErrManifestNotEditable)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.truck(t, manifest.StatusDraft)

	got, err := f.svc.UpdateStatus(ctx, m.ID, manifest.StatusBuilding, "")
	require.NoError(t, err)
	assert.Equal(t, manifest.StatusBuilding, got.Status)

	_, err = f.svc.UpdateStatus(ctx, m.ID, manifest.StatusClosed, "")
	assert.ErrorIs(t, err, manifest.ErrInvalidManifestTransition, "closing goes through Close")

	_, err = f.svc.UpdateStatus(ctx, uuid.New(), manifest.StatusOpen, "")
	assert.ErrorIs(t, err, manifest.ErrManifestNotFound)
}

func TestShiftSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()

	closed := f.truck(t, manifest.StatusOpen)
	open := f.truck(t, manifest.StatusOpen)
	f.booking("TAC20260050", shipment.StatusCreated, "GAU")
	f.scan(t, closed, "TAC20260050")
	f.scan(t, closed, "TAC20260050")
	f.scan(t, open, "not-a-label")
	_, err := f.svc.Close(ctx, closed.ID, "")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	sum, err := f.svc.ShiftSummary(ctx, "IMF", start, f.clock.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Manifests.Opened)
	assert.Equal(t, 1, sum.Manifests.Closed)
	assert.Equal(t, 3, sum.Scans.Total)
	assert.Equal(t, 1, sum.Scans.ByResult[manifest.ResultSuccess])
	assert.Equal(t, 1, sum.Scans.ByResult[manifest.ResultDuplicate])
	assert.Equal(t, 1, sum.Scans.ByResult[manifest.ResultInvalid])
	assert.Equal(t, 3, sum.Scans.BySource[manifest.SourceScanner])
	assert.Equal(t, 1, sum.Scans.UniqueShipments)
	assert.Equal(t, 1, sum.OpenManifests)

	_, err = f.svc.ShiftSummary(ctx, "IMF", start, start)
	assert.Error(t, err)
}
