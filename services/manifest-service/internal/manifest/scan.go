package manifest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/scan"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/shipment"
	"github.com/oinam-labs/tac-portal-sub002/shared/contracts"
)

// ScanRequest is one scanner read aimed at a manifest.
type ScanRequest struct {
	ManifestID uuid.UUID  `json:"manifest_id"`
	Token      string     `json:"scan_token"`
	Source     ScanSource `json:"scan_source,omitempty"`
	StaffID    string     `json:"staff_id,omitempty"`
	// StationID keys the debounce window; scans without one are not debounced.
	StationID string `json:"station_id,omitempty"`

	// Nil falls back to the service config.
	ValidateDestination *bool `json:"validate_destination,omitempty"`
	ValidateStatus      *bool `json:"validate_status,omitempty"`
}

func (r ScanRequest) session() string {
	if r.StationID != "" {
		return r.StationID
	}
	return r.StaffID
}

// AddShipmentByScan resolves a scanned token to a shipment and links it to the
// manifest. Scanning a shipment that is already on the manifest succeeds with
// Duplicate set; the (manifest, shipment) unique constraint makes concurrent
// scans of the same label land exactly one item.
//
// Business rejections are reported in ScanResponse.Error with a nil error. A
// non-nil error means the store failed and the response carries SYSTEM_ERROR.
func (s *Service) AddShipmentByScan(ctx context.Context, req ScanRequest) (ScanResponse, error) {
	ctx, span := s.tracer.Start(ctx, "manifest.AddShipmentByScan")
	defer span.End()
	span.SetAttributes(attribute.String("manifest.id", req.ManifestID.String()))

	if req.Source == "" {
		req.Source = SourceManual
	}
	log := s.log.WithFields(logrus.Fields{
		"manifest_id": req.ManifestID,
		"station_id":  req.StationID,
		"scan_source": req.Source,
	})

	tok, err := scan.ParseScanInput(req.Token)
	if err != nil {
		s.recordScan(ctx, req, nil, "", ResultInvalid, err.Error())
		return s.reject(ctx, ScanErrInvalidFormat, err.Error()), nil
	}
	if tok.Kind != scan.KindShipment {
		msg := fmt.Sprintf("Expected a shipment label, got a %s code", tok.Kind)
		s.recordScan(ctx, req, nil, tok.Normalized(), ResultInvalid, msg)
		return s.reject(ctx, ScanErrInvalidScanType, msg), nil
	}
	log = log.WithField("awb", tok.AWB)

	if !s.debounce.Allow(req.session()) {
		return s.reject(ctx, ScanErrDebounced, "Scan ignored: too soon after the previous scan"), nil
	}

	m, err := s.store.GetManifest(ctx, req.ManifestID)
	if errors.Is(err, ErrManifestNotFound) {
		return s.reject(ctx, ScanErrManifestNotFound, "Manifest not found or access denied"), nil
	}
	if err != nil {
		return s.systemError(ctx, span, log, fmt.Errorf("get manifest: %w", err))
	}
	if !m.Status.Editable() {
		msg := "Cannot add items to a closed manifest"
		s.recordScan(ctx, req, nil, tok.AWB, ResultManifestClosed, msg)
		return s.reject(ctx, ScanErrManifestClosed, msg), nil
	}

	sh, err := s.store.GetShipmentByAWB(ctx, tok.AWB)
	if errors.Is(err, ErrShipmentNotFound) {
		msg := "No shipment found matching: " + tok.AWB
		s.recordScan(ctx, req, nil, tok.AWB, ResultNotFound, msg)
		return s.reject(ctx, ScanErrShipmentNotFound, msg), nil
	}
	if err != nil {
		return s.systemError(ctx, span, log, fmt.Errorf("get shipment: %w", err))
	}

	if boolOr(req.ValidateDestination, s.cfg.ValidateDestination) && sh.DestinationHubID != m.ToHubID {
		msg := "Shipment destination does not match manifest destination"
		s.recordScan(ctx, req, &sh.ID, tok.AWB, ResultWrongDestination, msg)
		resp := s.reject(ctx, ScanErrDestinationMismatch, msg)
		withShipment(&resp, sh)
		return resp, nil
	}
	if boolOr(req.ValidateStatus, s.cfg.ValidateStatus) && !shipment.EligibleForManifest(sh.Status) {
		msg := fmt.Sprintf("Shipment status is not eligible for manifesting: %s", sh.Status)
		s.recordScan(ctx, req, &sh.ID, tok.AWB, ResultWrongStatus, msg)
		resp := s.reject(ctx, ScanErrInvalidStatus, msg)
		withShipment(&resp, sh)
		resp.CurrentStatus = sh.Status
		return resp, nil
	}

	existing, err := s.store.FindItem(ctx, m.ID, sh.ID)
	switch {
	case err == nil:
		return s.duplicate(ctx, req, sh, existing, "Shipment already in manifest"), nil
	case !errors.Is(err, ErrItemNotFound):
		return s.systemError(ctx, span, log, fmt.Errorf("find item: %w", err))
	}

	other, err := s.store.FindEditableManifestForShipment(ctx, sh.ID, m.ID)
	if err != nil {
		return s.systemError(ctx, span, log, fmt.Errorf("find open manifest: %w", err))
	}
	if other != uuid.Nil {
		return s.alreadyManifested(ctx, req, sh), nil
	}

	item := &Item{
		ID:           uuid.New(),
		ManifestID:   m.ID,
		ShipmentID:   sh.ID,
		AWB:          sh.AWB,
		PackageCount: sh.PackageCount,
		Weight:       sh.Weight,
		ScannedBy:    req.StaffID,
		ScannedAt:    s.now().UTC(),
	}
	var totals Totals
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.InsertManifestItem(ctx, item); err != nil {
			return err
		}
		if err := s.store.SetShipmentManifest(ctx, sh.ID, &m.ID); err != nil {
			return err
		}
		t, err := s.store.RecalculateTotals(ctx, m.ID)
		totals = t
		return err
	})
	switch {
	case errors.Is(err, ErrDuplicateItem):
		// lost the race against a concurrent scan of the same label
		existing, _ := s.store.FindItem(ctx, m.ID, sh.ID)
		return s.duplicate(ctx, req, sh, existing, "Shipment already in manifest (concurrent)"), nil
	case errors.Is(err, ErrShipmentInOtherManifest):
		return s.alreadyManifested(ctx, req, sh), nil
	case errors.Is(err, ErrManifestNotEditable):
		msg := "Cannot add items to a closed manifest"
		s.recordScan(ctx, req, &sh.ID, tok.AWB, ResultManifestClosed, msg)
		return s.reject(ctx, ScanErrManifestClosed, msg), nil
	case err != nil:
		return s.systemError(ctx, span, log, fmt.Errorf("add item: %w", err))
	}

	s.recordScan(ctx, req, &sh.ID, tok.AWB, ResultSuccess, "")
	s.countScan(ctx, string(ResultSuccess))
	log.WithField("total_shipments", totals.Shipments).Info("shipment added to manifest")

	m.TotalShipments, m.TotalPackages, m.TotalWeight = totals.Shipments, totals.Packages, totals.Weight
	s.publish(ctx, contracts.EventManifestItemAdded, m, []string{sh.AWB}, req.StaffID)

	resp := ScanResponse{
		Success:        true,
		Message:        "Shipment added to manifest",
		ManifestItemID: item.ID.String(),
	}
	withShipment(&resp, sh)
	return resp, nil
}

// RemoveShipment unlinks a shipment while the manifest is still editable.
func (s *Service) RemoveShipment(ctx context.Context, manifestID, shipmentID uuid.UUID, staffID string) error {
	ctx, span := s.tracer.Start(ctx, "manifest.RemoveShipment")
	defer span.End()

	m, err := s.store.GetManifest(ctx, manifestID)
	if err != nil {
		return fmt.Errorf("get manifest %s: %w", manifestID, err)
	}
	if !m.Status.Editable() {
		return fmt.Errorf("%w: status %s", ErrManifestNotEditable, m.Status)
	}
	item, err := s.store.FindItem(ctx, manifestID, shipmentID)
	if err != nil {
		return fmt.Errorf("find item: %w", err)
	}

	var totals Totals
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteManifestItem(ctx, manifestID, shipmentID); err != nil {
			return err
		}
		if err := s.store.SetShipmentManifest(ctx, shipmentID, nil); err != nil {
			return err
		}
		t, err := s.store.RecalculateTotals(ctx, manifestID)
		totals = t
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("remove item: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"manifest_id": manifestID,
		"awb":         item.AWB,
		"staff_id":    staffID,
	}).Info("shipment removed from manifest")

	m.TotalShipments, m.TotalPackages, m.TotalWeight = totals.Shipments, totals.Packages, totals.Weight
	s.publish(ctx, contracts.EventManifestItemRemoved, m, []string{item.AWB}, staffID)
	return nil
}

// ScanLogs returns the manifest's scan audit trail, newest first.
func (s *Service) ScanLogs(ctx context.Context, manifestID uuid.UUID) ([]ScanLog, error) {
	logs, err := s.store.ListScanLogs(ctx, manifestID)
	if err != nil {
		return nil, fmt.Errorf("list scan logs: %w", err)
	}
	return logs, nil
}

func (s *Service) reject(ctx context.Context, code, msg string) ScanResponse {
	s.countScan(ctx, code)
	return ScanResponse{Success: false, Error: code, Message: msg}
}

func (s *Service) duplicate(ctx context.Context, req ScanRequest, sh *shipment.Shipment, item *Item, msg string) ScanResponse {
	s.recordScan(ctx, req, &sh.ID, sh.AWB, ResultDuplicate, "")
	s.countScan(ctx, string(ResultDuplicate))
	resp := ScanResponse{Success: true, Duplicate: true, Message: msg}
	withShipment(&resp, sh)
	if item != nil {
		resp.ManifestItemID = item.ID.String()
	}
	return resp
}

func (s *Service) alreadyManifested(ctx context.Context, req ScanRequest, sh *shipment.Shipment) ScanResponse {
	msg := "Shipment is already in another open manifest"
	s.recordScan(ctx, req, &sh.ID, sh.AWB, ResultAlreadyManifested, msg)
	resp := s.reject(ctx, ScanErrAlreadyInManifest, msg)
	withShipment(&resp, sh)
	return resp
}

func (s *Service) systemError(ctx context.Context, span trace.Span, log logrus.FieldLogger, err error) (ScanResponse, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.WithError(err).Error("scan failed")
	s.countScan(ctx, ScanErrSystem)
	return ScanResponse{Success: false, Error: ScanErrSystem, Message: "Scan could not be processed. Please try again."}, err
}

// recordScan writes the audit row. A failed write is logged and never fails the scan.
func (s *Service) recordScan(ctx context.Context, req ScanRequest, shipmentID *uuid.UUID, normalized string, result ScanResult, msg string) {
	entry := &ScanLog{
		ID:              uuid.New(),
		ManifestID:      req.ManifestID,
		ShipmentID:      shipmentID,
		RawScanToken:    req.Token,
		NormalizedToken: normalized,
		Result:          result,
		Source:          req.Source,
		StaffID:         req.StaffID,
		ErrorMessage:    msg,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.InsertScanLog(ctx, entry); err != nil {
		s.log.WithError(err).WithField("manifest_id", req.ManifestID).Warn("failed to write scan log")
	}
}

func withShipment(resp *ScanResponse, sh *shipment.Shipment) {
	resp.ShipmentID = sh.ID.String()
	resp.AWBNumber = sh.AWB
	resp.ConsigneeName = sh.ConsigneeName
	resp.SenderName = sh.SenderName
	resp.TotalPackages = sh.PackageCount
	resp.TotalWeight = sh.Weight
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
