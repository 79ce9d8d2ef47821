package grpcServer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/shipment"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/store"
)

func dialManifestServer(t *testing.T, svc ManifestService) *grpc.ClientConn {
	t.Helper()
	log, _ := test.NewNullLogger()
	srv, _ := NewServer(log)
	RegisterManifestServer(srv, NewManifestServer(svc))

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, in, out interface{}) error {
	return conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

func TestManifestRPCs(t *testing.T) {
	mem := store.NewMemoryStore()
	log, _ := test.NewNullLogger()
	svc := manifest.New(mem, mem, manifest.WithLogger(log))
	conn := dialManifestServer(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, err := svc.Create(ctx, manifest.CreateRequest{Type: manifest.TypeTruck, FromHubID: "IMF", ToHubID: "GAU", VehicleNo: "MN01AB1234"})
	require.NoError(t, err)
	sh := shipment.Shipment{ID: uuid.New(), AWB: "TAC20261001", Status: shipment.StatusCreated, OriginHubID: "IMF", DestinationHubID: "GAU", PackageCount: 2}
	mem.PutShipment(sh)

	var got manifest.Manifest
	require.NoError(t, invoke(ctx, conn, "GetManifest", &ManifestRef{ManifestID: m.ID.String()}, &got))
	assert.Equal(t, m.ManifestNo, got.ManifestNo)

	var scan manifest.ScanResponse
	require.NoError(t, invoke(ctx, conn, "ScanShipment", &manifest.ScanRequest{ManifestID: m.ID, Token: "tac20261001"}, &scan))
	assert.True(t, scan.Success)
	assert.Equal(t, sh.ID.String(), scan.ShipmentID)

	var rejected manifest.ScanResponse
	require.NoError(t, invoke(ctx, conn, "ScanShipment", &manifest.ScanRequest{ManifestID: m.ID, Token: "TAC99999999"}, &rejected))
	assert.False(t, rejected.Success)
	assert.Equal(t, manifest.ScanErrShipmentNotFound, rejected.Error)

	var res manifest.LifecycleResult
	require.NoError(t, invoke(ctx, conn, "CloseManifest", &ManifestRef{ManifestID: m.ID.String(), StaffID: "staff-3"}, &res))
	assert.Equal(t, manifest.StatusClosed, res.Manifest.Status)
	assert.Equal(t, 1, res.ShipmentsUpdated)

	require.NoError(t, invoke(ctx, conn, "DepartManifest", &ManifestRef{ManifestID: m.ID.String()}, &res))
	assert.Equal(t, manifest.StatusDeparted, res.Manifest.Status)

	err = invoke(ctx, conn, "DepartManifest", &ManifestRef{ManifestID: m.ID.String()}, &res)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	require.NoError(t, invoke(ctx, conn, "ArriveManifest", &ManifestRef{ManifestID: m.ID.String()}, &res))
	assert.Equal(t, manifest.StatusArrived, res.Manifest.Status)
}

func TestManifestRPCErrors(t *testing.T) {
	mem := store.NewMemoryStore()
	log, _ := test.NewNullLogger()
	conn := dialManifestServer(t, manifest.New(mem, mem, manifest.WithLogger(log)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got manifest.Manifest
	err := invoke(ctx, conn, "GetManifest", &ManifestRef{ManifestID: uuid.NewString()}, &got)
	assert.Equal(t, codes.NotFound, status.Code(err))

	var res manifest.LifecycleResult
	err = invoke(ctx, conn, "CloseManifest", &ManifestRef{ManifestID: "not-a-uuid"}, &res)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	var scan manifest.ScanResponse
	err = invoke(ctx, conn, "ScanShipment", &manifest.ScanRequest{Token: "TAC20261001"}, &scan)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
