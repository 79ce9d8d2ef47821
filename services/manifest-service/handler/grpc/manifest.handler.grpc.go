package grpcServer

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
)

// CodecName is the content-subtype the manifest RPCs are served with.
// Clients pass grpc.CallContentSubtype(CodecName).
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ManifestService is the part of manifest.Service the RPC surface needs.
type ManifestService interface {
	Get(ctx context.Context, id uuid.UUID) (*manifest.Manifest, error)
	AddShipmentByScan(ctx context.Context, req manifest.ScanRequest) (manifest.ScanResponse, error)
	Close(ctx context.Context, id uuid.UUID, staffID string) (*manifest.LifecycleResult, error)
	Depart(ctx context.Context, id uuid.UUID, staffID string) (*manifest.LifecycleResult, error)
	Arrive(ctx context.Context, id uuid.UUID, staffID string) (*manifest.LifecycleResult, error)
}

// ManifestRef names a manifest and the staff member acting on it.
type ManifestRef struct {
	ManifestID string `json:"manifest_id"`
	StaffID    string `json:"staff_id,omitempty"`
}

// ManifestServiceServer is the handler type registered for ServiceName.
type ManifestServiceServer interface {
	GetManifest(ctx context.Context, req *ManifestRef) (*manifest.Manifest, error)
	ScanShipment(ctx context.Context, req *manifest.ScanRequest) (*manifest.ScanResponse, error)
	CloseManifest(ctx context.Context, req *ManifestRef) (*manifest.LifecycleResult, error)
	DepartManifest(ctx context.Context, req *ManifestRef) (*manifest.LifecycleResult, error)
	ArriveManifest(ctx context.Context, req *ManifestRef) (*manifest.LifecycleResult, error)
}

// ManifestServer serves the manifest operations over gRPC. Domain errors go
// through MapManifestError, as on the HTTP surface.
type ManifestServer struct {
	service ManifestService
}

func NewManifestServer(svc ManifestService) *ManifestServer {
	return &ManifestServer{service: svc}
}

// RegisterManifestServer registers srv under ServiceName.
func RegisterManifestServer(s grpc.ServiceRegistrar, srv ManifestServiceServer) {
	s.RegisterService(&manifestServiceDesc, srv)
}

func parseManifestID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "manifest_id must be a UUID")
	}
	return id, nil
}

func (s *ManifestServer) GetManifest(ctx context.Context, req *ManifestRef) (*manifest.Manifest, error) {
	id, err := parseManifestID(req.ManifestID)
	if err != nil {
		return nil, err
	}
	m, err := s.service.Get(ctx, id)
	if err != nil {
		return nil, MapManifestError(err)
	}
	return m, nil
}

// ScanShipment returns business rejections in the response body. Only store
// failures become RPC errors.
func (s *ManifestServer) ScanShipment(ctx context.Context, req *manifest.ScanRequest) (*manifest.ScanResponse, error) {
	if req.ManifestID == uuid.Nil {
		return nil, status.Error(codes.InvalidArgument, "manifest_id is required")
	}
	resp, err := s.service.AddShipmentByScan(ctx, *req)
	if err != nil {
		return nil, MapManifestError(err)
	}
	return &resp, nil
}

func (s *ManifestServer) CloseManifest(ctx context.Context, req *ManifestRef) (*manifest.LifecycleResult, error) {
	return s.lifecycle(ctx, req, s.service.Close)
}

func (s *ManifestServer) DepartManifest(ctx context.Context, req *ManifestRef) (*manifest.LifecycleResult, error) {
	return s.lifecycle(ctx, req, s.service.Depart)
}

func (s *ManifestServer) ArriveManifest(ctx context.Context, req *ManifestRef) (*manifest.LifecycleResult, error) {
	return s.lifecycle(ctx, req, s.service.Arrive)
}

func (s *ManifestServer) lifecycle(ctx context.Context, req *ManifestRef,
	move func(context.Context, uuid.UUID, string) (*manifest.LifecycleResult, error)) (*manifest.LifecycleResult, error) {
	id, err := parseManifestID(req.ManifestID)
	if err != nil {
		return nil, err
	}
	res, err := move(ctx, id, req.StaffID)
	if err != nil {
		return nil, MapManifestError(err)
	}
	return res, nil
}

func unaryMethod[Req any](name string, call func(ManifestServiceServer, context.Context, *Req) (interface{}, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, status.Error(codes.InvalidArgument, "malformed request")
			}
			server := srv.(ManifestServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}

var manifestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ManifestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetManifest", func(s ManifestServiceServer, ctx context.Context, in *ManifestRef) (interface{}, error) {
			return s.GetManifest(ctx, in)
		}),
		unaryMethod("ScanShipment", func(s ManifestServiceServer, ctx context.Context, in *manifest.ScanRequest) (interface{}, error) {
			return s.ScanShipment(ctx, in)
		}),
		unaryMethod("CloseManifest", func(s ManifestServiceServer, ctx context.Context, in *ManifestRef) (interface{}, error) {
			return s.CloseManifest(ctx, in)
		}),
		unaryMethod("DepartManifest", func(s ManifestServiceServer, ctx context.Context, in *ManifestRef) (interface{}, error) {
			return s.DepartManifest(ctx, in)
		}),
		unaryMethod("ArriveManifest", func(s ManifestServiceServer, ctx context.Context, in *ManifestRef) (interface{}, error) {
			return s.ArriveManifest(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "manifest.json",
}
