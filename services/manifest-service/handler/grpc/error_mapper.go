package grpcServer

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/shipment"
)

// MapManifestError translates manifest domain errors into transport-safe
// status errors. Anything unrecognised becomes Internal without its text.
func MapManifestError(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		return st.Err()
	}

	switch {
	case errors.Is(err, manifest.ErrManifestNotFound):
		return status.Error(codes.NotFound, "manifest not found")
	case errors.Is(err, manifest.ErrShipmentNotFound):
		return status.Error(codes.NotFound, "shipment not found")
	case errors.Is(err, manifest.ErrItemNotFound):
		return status.Error(codes.NotFound, "shipment is not on this manifest")

	case errors.Is(err, manifest.ErrInvalidManifest):
		// Validation messages are written for the desk and safe to return.
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, shipment.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, manifest.ErrManifestNotEditable):
		return status.Error(codes.FailedPrecondition, "manifest is not editable")
	case errors.Is(err, manifest.ErrInvalidManifestTransition):
		return status.Error(codes.FailedPrecondition, "invalid manifest status transition")

	case errors.Is(err, manifest.ErrDuplicateManifestNo), errors.Is(err, manifest.ErrDuplicateItem),
		errors.Is(err, manifest.ErrShipmentInOtherManifest):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	}
	return status.Error(codes.Internal, "internal error")
}
