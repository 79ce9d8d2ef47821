package manifest

import "errors"

var (
	// ErrManifestNotFound matches standard 404 behavior.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrManifestNotEditable guards membership: only DRAFT, OPEN and BUILDING
	// manifests accept or release shipments.
	ErrManifestNotEditable = errors.New("manifest is not editable")

	// ErrInvalidManifestTransition is returned when the stored status does not
	// match the precondition of the requested move. Nothing is mutated.
	ErrInvalidManifestTransition = errors.New("invalid manifest status transition")

	// ErrInvalidManifest wraps create-time validation failures.
	ErrInvalidManifest = errors.New("invalid manifest")

	ErrDuplicateManifestNo = errors.New("manifest number already exists")

	ErrShipmentNotFound = errors.New("shipment not found")

	ErrItemNotFound = errors.New("shipment is not on this manifest")

	// ErrDuplicateItem is the unique (manifest, shipment) constraint firing.
	// The scan path turns it into a duplicate success.
	ErrDuplicateItem = errors.New("shipment already on manifest")

	// ErrShipmentInOtherManifest is returned when the shipment already sits on
	// a different editable manifest.
	ErrShipmentInOtherManifest = errors.New("shipment already in another open manifest")
)
