package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/shipment"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// PostgresStore implements manifest.Store on database/sql with lib/pq. Every
// method joins the transaction opened by TxManager when ctx carries one.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings the database behind connStr.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres db: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing pool, e.g. one shared with TxManager.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB { return s.db }

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const manifestColumns = `
	id, manifest_no, type, from_hub_id, to_hub_id, status,
	flight_number, flight_date, airline_code, vehicle_number, driver_name, driver_phone,
	etd, eta, dispatch_at, notes,
	total_shipments, total_packages, total_weight,
	created_by_staff_id, closed_by_staff_id, reconciled_by_staff_id,
	created_at, updated_at, closed_at, departed_at, arrived_at, reconciled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanManifest(row rowScanner) (*manifest.Manifest, error) {
	var (
		m                                  manifest.Manifest
		status, typ                        string
		etd, eta, dispatch                 sql.NullTime
		closed, departed, arrived, reconed sql.NullTime
	)
	err := row.Scan(
		&m.ID, &m.ManifestNo, &typ, &m.FromHubID, &m.ToHubID, &status,
		&m.FlightNo, &m.FlightDate, &m.AirlineCode, &m.VehicleNo, &m.DriverName, &m.DriverPhone,
		&etd, &eta, &dispatch, &m.Notes,
		&m.TotalShipments, &m.TotalPackages, &m.TotalWeight,
		&m.CreatedBy, &m.ClosedBy, &m.ReconciledBy,
		&m.CreatedAt, &m.UpdatedAt, &closed, &departed, &arrived, &reconed,
	)
	if err != nil {
		return nil, err
	}
	if m.Status, err = manifest.ParseStatus(status); err != nil {
		return nil, err
	}
	m.Type = manifest.Type(typ)
	m.ETD, m.ETA, m.DispatchAt = timePtr(etd), timePtr(eta), timePtr(dispatch)
	m.ClosedAt, m.DepartedAt = timePtr(closed), timePtr(departed)
	m.ArrivedAt, m.ReconciledAt = timePtr(arrived), timePtr(reconed)
	return &m, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *PostgresStore) CreateManifest(ctx context.Context, m *manifest.Manifest) error {
	query := `
		INSERT INTO manifests (` + manifestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`
	_, err := conn(ctx, s.db).ExecContext(ctx, query,
		m.ID, m.ManifestNo, string(m.Type), m.FromHubID, m.ToHubID, string(m.Status),
		m.FlightNo, m.FlightDate, m.AirlineCode, m.VehicleNo, m.DriverName, m.DriverPhone,
		nullTime(m.ETD), nullTime(m.ETA), nullTime(m.DispatchAt), m.Notes,
		m.TotalShipments, m.TotalPackages, m.TotalWeight,
		m.CreatedBy, m.ClosedBy, m.ReconciledBy,
		m.CreatedAt, m.UpdatedAt, nullTime(m.ClosedAt), nullTime(m.DepartedAt),
		nullTime(m.ArrivedAt), nullTime(m.ReconciledAt),
	)
	if isUniqueViolation(err) {
		return manifest.ErrDuplicateManifestNo
	}
	if err != nil {
		return fmt.Errorf("failed to insert manifest: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetManifest(ctx context.Context, id uuid.UUID) (*manifest.Manifest, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+manifestColumns+` FROM manifests WHERE id = $1`, id)
	m, err := scanManifest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, manifest.ErrManifestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListManifests(ctx context.Context, f manifest.Filter) ([]manifest.Manifest, error) {
	query := `
		SELECT ` + manifestColumns + `
		FROM manifests
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR from_hub_id = $2)
		  AND ($3 = '' OR to_hub_id = $3)
		  AND ($4 = '' OR from_hub_id = $4 OR to_hub_id = $4)
		  AND ($5 = '' OR type = $5)
		  AND ($6::timestamptz IS NULL OR updated_at >= $6)
		  AND ($7::timestamptz IS NULL OR updated_at <= $7)
		ORDER BY created_at DESC
		LIMIT NULLIF($8, 0)`

	from, to := sql.NullTime{}, sql.NullTime{}
	if !f.UpdatedFrom.IsZero() {
		from = sql.NullTime{Time: f.UpdatedFrom, Valid: true}
	}
	if !f.UpdatedTo.IsZero() {
		to = sql.NullTime{Time: f.UpdatedTo, Valid: true}
	}
	rows, err := conn(ctx, s.db).QueryContext(ctx, query,
		string(f.Status), f.FromHubID, f.ToHubID, f.HubID, string(f.Type), from, to, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests: %w", err)
	}
	defer rows.Close()

	var out []manifest.Manifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

const shipmentColumns = `id, awb_number, status, origin_hub_id, destination_hub_id,
	consignee_name, sender_name, package_count, total_weight, manifest_id, updated_at`

func scanShipment(row rowScanner) (*shipment.Shipment, error) {
	var (
		sh         shipment.Shipment
		status     string
		manifestID uuid.NullUUID
	)
	err := row.Scan(&sh.ID, &sh.AWB, &status, &sh.OriginHubID, &sh.DestinationHubID,
		&sh.ConsigneeName, &sh.SenderName, &sh.PackageCount, &sh.Weight, &manifestID, &sh.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sh.Status, err = shipment.ParseStatus(status); err != nil {
		return nil, err
	}
	if manifestID.Valid {
		id := manifestID.UUID
		sh.ManifestID = &id
	}
	return &sh, nil
}

func (s *PostgresStore) GetShipmentByAWB(ctx context.Context, awb string) (*shipment.Shipment, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+shipmentColumns+` FROM shipments WHERE awb_number = $1`, awb)
	sh, err := scanShipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, manifest.ErrShipmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shipment: %w", err)
	}
	return sh, nil
}

const itemColumns = `id, manifest_id, shipment_id, awb_number, package_count, total_weight, scanned_by_staff_id, scanned_at`

func scanItem(row rowScanner) (*manifest.Item, error) {
	var it manifest.Item
	err := row.Scan(&it.ID, &it.ManifestID, &it.ShipmentID, &it.AWB, &it.PackageCount, &it.Weight, &it.ScannedBy, &it.ScannedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *PostgresStore) FindItem(ctx context.Context, manifestID, shipmentID uuid.UUID) (*manifest.Item, error) {
	row := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM manifest_items WHERE manifest_id = $1 AND shipment_id = $2`,
		manifestID, shipmentID)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, manifest.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item: %w", err)
	}
	return it, nil
}

func (s *PostgresStore) FindEditableManifestForShipment(ctx context.Context, shipmentID, exclude uuid.UUID) (uuid.UUID, error) {
	query := `
		SELECT mi.manifest_id
		FROM manifest_items mi
		JOIN manifests m ON m.id = mi.manifest_id
		WHERE mi.shipment_id = $1
		  AND mi.manifest_id <> $2
		  AND m.status = ANY($3)
		LIMIT 1`
	var id uuid.UUID
	err := conn(ctx, s.db).QueryRowContext(ctx, query, shipmentID, exclude, pq.Array(editableStatuses())).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to find open manifest: %w", err)
	}
	return id, nil
}

func editableStatuses() []string {
	var out []string
	for _, st := range manifest.EditableStatuses() {
		out = append(out, string(st))
	}
	return out
}

// InsertManifestItem inserts only while the manifest row is editable. The
// shipment row lock serializes membership changes for one shipment, so two
// open manifests never both take it. The FOR SHARE lock makes a concurrent
// close wait for this insert, or this insert see the closed status.
func (s *PostgresStore) InsertManifestItem(ctx context.Context, it *manifest.Item) error {
	return NewTxManager(s.db).RunInTx(ctx, func(ctx context.Context) error {
		var locked uuid.UUID
		err := conn(ctx, s.db).QueryRowContext(ctx,
			`SELECT id FROM shipments WHERE id = $1 FOR UPDATE`, it.ShipmentID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return manifest.ErrShipmentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock shipment: %w", err)
		}

		other, err := s.FindEditableManifestForShipment(ctx, it.ShipmentID, it.ManifestID)
		if err != nil {
			return err
		}
		if other != uuid.Nil {
			return manifest.ErrShipmentInOtherManifest
		}

		query := `
			INSERT INTO manifest_items (` + itemColumns + `)
			SELECT $1, $2, $3, $4, $5, $6, $7, $8
			WHERE EXISTS (
				SELECT 1 FROM manifests WHERE id = $2 AND status = ANY($9) FOR SHARE
			)`
		res, err := conn(ctx, s.db).ExecContext(ctx, query,
			it.ID, it.ManifestID, it.ShipmentID, it.AWB, it.PackageCount, it.Weight, it.ScannedBy, it.ScannedAt,
			pq.Array(editableStatuses()))
		if isUniqueViolation(err) {
			return manifest.ErrDuplicateItem
		}
		if err != nil {
			return fmt.Errorf("failed to insert manifest item: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := s.GetManifest(ctx, it.ManifestID); err != nil {
				return err
			}
			return manifest.ErrManifestNotEditable
		}
		return nil
	})
}

func (s *PostgresStore) DeleteManifestItem(ctx context.Context, manifestID, shipmentID uuid.UUID) error {
	res, err := conn(ctx, s.db).ExecContext(ctx,
		`DELETE FROM manifest_items WHERE manifest_id = $1 AND shipment_id = $2`, manifestID, shipmentID)
	if err != nil {
		return fmt.Errorf("failed to delete manifest item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return manifest.ErrItemNotFound
	}
	return nil
}

func (s *PostgresStore) ListItems(ctx context.Context, manifestID uuid.UUID) ([]manifest.Item, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+itemColumns+` FROM manifest_items WHERE manifest_id = $1 ORDER BY scanned_at, awb_number`, manifestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var out []manifest.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetShipmentManifest(ctx context.Context, shipmentID uuid.UUID, manifestID *uuid.UUID) error {
	var ref uuid.NullUUID
	if manifestID != nil {
		ref = uuid.NullUUID{UUID: *manifestID, Valid: true}
	}
	res, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE shipments SET manifest_id = $2, updated_at = now() WHERE id = $1`, shipmentID, ref)
	if err != nil {
		return fmt.Errorf("failed to link shipment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return manifest.ErrShipmentNotFound
	}
	return nil
}

func (s *PostgresStore) RecalculateTotals(ctx context.Context, manifestID uuid.UUID) (manifest.Totals, error) {
	query := `
		UPDATE manifests m
		SET total_shipments = t.shipments,
		    total_packages  = t.packages,
		    total_weight    = t.weight,
		    updated_at      = now()
		FROM (
			SELECT COUNT(*) AS shipments,
			       COALESCE(SUM(package_count), 0) AS packages,
			       COALESCE(SUM(total_weight), 0) AS weight
			FROM manifest_items
			WHERE manifest_id = $1
		) t
		WHERE m.id = $1
		RETURNING m.total_shipments, m.total_packages, m.total_weight`
	var t manifest.Totals
	err := conn(ctx, s.db).QueryRowContext(ctx, query, manifestID).Scan(&t.Shipments, &t.Packages, &t.Weight)
	if errors.Is(err, sql.ErrNoRows) {
		return t, manifest.ErrManifestNotFound
	}
	if err != nil {
		return t, fmt.Errorf("failed to recalculate totals: %w", err)
	}
	return t, nil
}

// UpdateManifestStatus is a compare-and-swap on status. When no row moves it
// reads the row back to tell a missing manifest from a wrong precondition.
func (s *PostgresStore) UpdateManifestStatus(ctx context.Context, id uuid.UUID, from, to manifest.Status, at time.Time, staffID string) error {
	query := `
		UPDATE manifests
		SET status = $3::text,
		    updated_at = $4,
		    closed_at = CASE WHEN $3::text = 'CLOSED' THEN $4 ELSE closed_at END,
		    closed_by_staff_id = CASE WHEN $3::text = 'CLOSED' THEN $5 ELSE closed_by_staff_id END,
		    departed_at = CASE WHEN $3::text = 'DEPARTED' THEN $4 ELSE departed_at END,
		    arrived_at = CASE WHEN $3::text = 'ARRIVED' THEN $4 ELSE arrived_at END,
		    reconciled_at = CASE WHEN $3::text = 'RECONCILED' THEN $4 ELSE reconciled_at END,
		    reconciled_by_staff_id = CASE WHEN $3::text = 'RECONCILED' THEN $5 ELSE reconciled_by_staff_id END
		WHERE id = $1 AND status = $2`
	q := conn(ctx, s.db)
	res, err := q.ExecContext(ctx, query, id, string(from), string(to), at, staffID)
	if err != nil {
		return fmt.Errorf("failed to update manifest status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var current string
	err = q.QueryRowContext(ctx, `SELECT status FROM manifests WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return manifest.ErrManifestNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: manifest is %s, expected %s", manifest.ErrInvalidManifestTransition, current, from)
}

func (s *PostgresStore) BulkUpdateShipments(ctx context.Context, manifestID uuid.UUID, status shipment.ShipmentStatus, at time.Time) ([]shipment.Shipment, error) {
	query := `
		UPDATE shipments s
		SET status = $2, manifest_id = $1, updated_at = $3
		FROM manifest_items mi
		WHERE mi.shipment_id = s.id AND mi.manifest_id = $1
		RETURNING s.id, s.awb_number, s.status, s.origin_hub_id, s.destination_hub_id,
		          s.consignee_name, s.sender_name, s.package_count, s.total_weight, s.manifest_id, s.updated_at`
	rows, err := conn(ctx, s.db).QueryContext(ctx, query, manifestID, string(status), at)
	if err != nil {
		return nil, fmt.Errorf("failed to update shipments: %w", err)
	}
	defer rows.Close()

	var out []shipment.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sh)
	}
	return out, rows.Err()
}

// InsertTrackingEvents writes all events or none; rows already present are skipped.
func (s *PostgresStore) InsertTrackingEvents(ctx context.Context, events []manifest.TrackingEvent) error {
	if len(events) == 0 {
		return nil
	}
	query := `
		INSERT INTO tracking_events (id, shipment_id, awb_number, manifest_id, manifest_no,
			event_code, action, hub_id, actor_staff_id, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (shipment_id, manifest_id, event_code) DO NOTHING`
	return NewTxManager(s.db).RunInTx(ctx, func(ctx context.Context) error {
		q := conn(ctx, s.db)
		for _, e := range events {
			if _, err := q.ExecContext(ctx, query,
				e.ID, e.ShipmentID, e.AWB, e.ManifestID, e.ManifestNo,
				e.EventCode, e.Action, e.HubID, e.ActorID, e.Source, e.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert tracking event for %s: %w", e.AWB, err)
			}
		}
		return nil
	})
}

const scanLogColumns = `id, manifest_id, shipment_id, raw_scan_token, normalized_token,
	scan_result, scan_source, scanned_by_staff_id, error_message, created_at`

func (s *PostgresStore) InsertScanLog(ctx context.Context, l *manifest.ScanLog) error {
	var shipmentID uuid.NullUUID
	if l.ShipmentID != nil {
		shipmentID = uuid.NullUUID{UUID: *l.ShipmentID, Valid: true}
	}
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO manifest_scan_logs (`+scanLogColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.ManifestID, shipmentID, l.RawScanToken, l.NormalizedToken,
		string(l.Result), string(l.Source), l.StaffID, l.ErrorMessage, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scan log: %w", err)
	}
	return nil
}

func scanScanLogs(rows *sql.Rows) ([]manifest.ScanLog, error) {
	defer rows.Close()
	var out []manifest.ScanLog
	for rows.Next() {
		var (
			l              manifest.ScanLog
			shipmentID     uuid.NullUUID
			result, source string
		)
		if err := rows.Scan(&l.ID, &l.ManifestID, &shipmentID, &l.RawScanToken, &l.NormalizedToken,
			&result, &source, &l.StaffID, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, err
		}
		if shipmentID.Valid {
			id := shipmentID.UUID
			l.ShipmentID = &id
		}
		l.Result, l.Source = manifest.ScanResult(result), manifest.ScanSource(source)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListScanLogs(ctx context.Context, manifestID uuid.UUID) ([]manifest.ScanLog, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+scanLogColumns+` FROM manifest_scan_logs WHERE manifest_id = $1 ORDER BY created_at DESC`, manifestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan logs: %w", err)
	}
	return scanScanLogs(rows)
}

func (s *PostgresStore) ListScanLogsBetween(ctx context.Context, hubID string, from, to time.Time) ([]manifest.ScanLog, error) {
	query := `
		SELECT l.id, l.manifest_id, l.shipment_id, l.raw_scan_token, l.normalized_token,
		       l.scan_result, l.scan_source, l.scanned_by_staff_id, l.error_message, l.created_at
		FROM manifest_scan_logs l
		LEFT JOIN manifests m ON m.id = l.manifest_id
		WHERE l.created_at BETWEEN $2 AND $3
		  AND ($1 = '' OR m.from_hub_id = $1)
		ORDER BY l.created_at`
	rows, err := conn(ctx, s.db).QueryContext(ctx, query, hubID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan logs: %w", err)
	}
	return scanScanLogs(rows)
}
