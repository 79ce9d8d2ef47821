package manifest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/scan"
	"github.com/oinam-labs/tac-portal-sub002/shared/contracts"
)

const instrumentationName = "github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"

// manifest numbers have one-second resolution; a clash is retried with the next second.
const numberAttempts = 3

// Config holds the scan-path switches read from the service config.
type Config struct {
	DebounceWindow      time.Duration
	ValidateDestination bool
	ValidateStatus      bool
}

// DefaultConfig validates both destination and status and debounces at 100ms.
func DefaultConfig() Config {
	return Config{
		DebounceWindow:      scan.DefaultDebounce,
		ValidateDestination: true,
		ValidateStatus:      true,
	}
}

// Service orchestrates manifests: creation, scan-driven membership and the
// CLOSED -> DEPARTED -> ARRIVED -> RECONCILED lifecycle.
type Service struct {
	store     Store
	tx        TxManager
	publisher EventPublisher
	tracker   TrackingRetrier

	cfg      Config
	debounce *scan.SessionDebouncer
	log      logrus.FieldLogger
	now      func() time.Time

	tracer trace.Tracer
	scans  metric.Int64Counter
}

type Option func(*Service)

func WithConfig(cfg Config) Option { return func(s *Service) { s.cfg = cfg } }

func WithPublisher(p EventPublisher) Option { return func(s *Service) { s.publisher = p } }

func WithTrackingRetrier(r TrackingRetrier) Option { return func(s *Service) { s.tracker = r } }

func WithLogger(l logrus.FieldLogger) Option { return func(s *Service) { s.log = l } }

// WithClock replaces time.Now; tests use it to pin manifest numbers and timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(store Store, tx TxManager, opts ...Option) *Service {
	s := &Service{
		store: store,
		tx:    tx,
		cfg:   DefaultConfig(),
		log:   logrus.StandardLogger(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.debounce = scan.NewSessionDebouncer(s.cfg.DebounceWindow, s.now)

	s.tracer = otel.Tracer(instrumentationName)
	meter := otel.GetMeterProvider().Meter(instrumentationName)
	counter, err := meter.Int64Counter("manifest_scan_total",
		metric.WithDescription("Manifest scan attempts by result"))
	if err != nil {
		s.log.WithError(err).Warn("failed to create scan counter")
	}
	s.scans = counter
	return s
}

// Create validates req and stores a new manifest with a fresh MAN- number.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Manifest, error) {
	ctx, span := s.tracer.Start(ctx, "manifest.Create")
	defer span.End()

	req.FromHubID = strings.TrimSpace(req.FromHubID)
	req.ToHubID = strings.TrimSpace(req.ToHubID)
	req.Type = Type(strings.ToUpper(strings.TrimSpace(string(req.Type))))

	if problems := validateCreate(req); len(problems) > 0 {
		err := fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(problems, "; "))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.now().UTC()
	m := &Manifest{
		ID:          uuid.New(),
		Type:        req.Type,
		FromHubID:   req.FromHubID,
		ToHubID:     req.ToHubID,
		Status:      initialStatus(req.Status),
		FlightNo:    strings.ToUpper(strings.TrimSpace(req.FlightNo)),
		FlightDate:  req.FlightDate,
		AirlineCode: strings.ToUpper(strings.TrimSpace(req.AirlineCode)),
		VehicleNo:   strings.ToUpper(strings.TrimSpace(req.VehicleNo)),
		DriverName:  req.DriverName,
		DriverPhone: req.DriverPhone,
		ETD:         req.ETD,
		ETA:         req.ETA,
		DispatchAt:  req.DispatchAt,
		Notes:       req.Notes,
		CreatedBy:   req.StaffID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for attempt := 0; attempt < numberAttempts; attempt++ {
		m.ManifestNo = ManifestNumber(now.Add(time.Duration(attempt) * time.Second))
		err := s.store.CreateManifest(ctx, m)
		if err == nil {
			s.log.WithFields(logrus.Fields{
				"manifest_id": m.ID,
				"manifest_no": m.ManifestNo,
				"type":        m.Type,
			}).Info("manifest created")
			return m, nil
		}
		if !errors.Is(err, ErrDuplicateManifestNo) {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("create manifest: %w", err)
		}
	}
	return nil, fmt.Errorf("create manifest: %w", ErrDuplicateManifestNo)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Manifest, error) {
	m, err := s.store.GetManifest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get manifest %s: %w", id, err)
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]Manifest, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	out, err := s.store.ListManifests(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	return out, nil
}

// Items returns the manifest's shipments in scan order.
func (s *Service) Items(ctx context.Context, id uuid.UUID) ([]Item, error) {
	if _, err := s.store.GetManifest(ctx, id); err != nil {
		return nil, fmt.Errorf("get manifest %s: %w", id, err)
	}
	items, err := s.store.ListItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// UpdateStatus moves a manifest between DRAFT, OPEN and BUILDING. Lifecycle
// moves (close, depart, arrive, reconcile) have their own operations because
// they touch shipments too.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, staffID string) (*Manifest, error) {
	m, err := s.store.GetManifest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get manifest %s: %w", id, err)
	}
	if !to.Editable() || !CanTransition(m.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidManifestTransition, m.Status, to)
	}
	if err := s.store.UpdateManifestStatus(ctx, id, m.Status, to, s.now().UTC(), staffID); err != nil {
		return nil, fmt.Errorf("update manifest status: %w", err)
	}
	return s.store.GetManifest(ctx, id)
}

// publish is fire-and-forget: the state change is already committed.
func (s *Service) publish(ctx context.Context, eventType string, m *Manifest, awbs []string, staffID string) {
	if s.publisher == nil {
		return
	}
	evt := contracts.ManifestEvent{
		Type:           eventType,
		ManifestID:     m.ID.String(),
		ManifestNo:     m.ManifestNo,
		FromHubID:      m.FromHubID,
		ToHubID:        m.ToHubID,
		Status:         string(m.Status),
		AWBs:           awbs,
		TotalShipments: m.TotalShipments,
		TotalPackages:  m.TotalPackages,
		TotalWeight:    m.TotalWeight,
		StaffID:        staffID,
		ETA:            m.ETA,
		OccurredAt:     s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, m.ID.String(), evt); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"manifest_id": m.ID,
			"event":       eventType,
		}).Warn("failed to publish manifest event")
	}
}

func (s *Service) countScan(ctx context.Context, result string) {
	if s.scans == nil {
		return
	}
	s.scans.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
