package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"boothbook/internal/models"
	"boothbook/internal/schedule"
	"boothbook/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

const (
	availabilityServiceName = "boothbook.availability.v1.AvailabilityService"
	// JSONContentSubtype selects the JSON codec: clients call with
	// grpc.CallContentSubtype(JSONContentSubtype).
	JSONContentSubtype = "json"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONContentSubtype }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type GetAvailabilityRequest struct {
	Day  string `json:"day"`
	Time string `json:"time"`
}

type GetAvailabilityResponse struct {
	Slot models.SlotAvailability `json:"slot"`
}

type ListSlotsRequest struct {
	Day string `json:"day,omitempty"`
}

type ListSlotsResponse struct {
	Slots []models.SlotAvailability `json:"slots"`
}

type AvailabilityServer interface {
	GetAvailability(ctx context.Context, req *GetAvailabilityRequest) (*GetAvailabilityResponse, error)
	ListSlots(ctx context.Context, req *ListSlotsRequest) (*ListSlotsResponse, error)
}

type availabilitySource interface {
	Availability(ctx context.Context) ([]models.SlotAvailability, error)
}

// AvailabilityService is the read-only gRPC view of slot capacity, used by
// kiosks and partner sites.
type AvailabilityService struct {
	source availabilitySource
}

func NewAvailabilityService(source availabilitySource) *AvailabilityService {
	return &AvailabilityService{source: source}
}

func (s *AvailabilityService) GetAvailability(ctx context.Context, req *GetAvailabilityRequest) (*GetAvailabilityResponse, error) {
	day := schedule.NormalizeDay(req.Day)
	hhmm := strings.TrimSpace(req.Time)
	if day == "" || hhmm == "" {
		return nil, status.Error(codes.InvalidArgument, "day and time are required")
	}

	slots, err := s.source.Availability(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	for _, a := range slots {
		if a.Day == day && a.Time == hhmm {
			return &GetAvailabilityResponse{Slot: a}, nil
		}
	}
	return nil, status.Errorf(codes.NotFound, "slot %s-%s not found", day, hhmm)
}

func (s *AvailabilityService) ListSlots(ctx context.Context, req *ListSlotsRequest) (*ListSlotsResponse, error) {
	slots, err := s.source.Availability(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	day := schedule.NormalizeDay(req.Day)
	if day == "" {
		return &ListSlotsResponse{Slots: slots}, nil
	}
	out := make([]models.SlotAvailability, 0, len(slots))
	for _, a := range slots {
		if a.Day == day {
			out = append(out, a)
		}
	}
	return &ListSlotsResponse{Slots: out}, nil
}

func grpcError(err error) error {
	if errors.Is(err, service.ErrStoreUnavailable) {
		return status.Error(codes.Unavailable, service.ErrStoreUnavailable.Error())
	}
	return status.Error(codes.Internal, "internal error")
}

func RegisterAvailabilityServer(s grpc.ServiceRegistrar, srv AvailabilityServer) {
	s.RegisterService(&availabilityServiceDesc, srv)
}

var availabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: availabilityServiceName,
	HandlerType: (*AvailabilityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAvailability", Handler: getAvailabilityHandler},
		{MethodName: "ListSlots", Handler: listSlotsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "boothbook/availability/v1",
}

func getAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAvailabilityRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).GetAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + availabilityServiceName + "/GetAvailability"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).GetAvailability(ctx, req.(*GetAvailabilityRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listSlotsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListSlotsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvailabilityServer).ListSlots(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + availabilityServiceName + "/ListSlots"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AvailabilityServer).ListSlots(ctx, req.(*ListSlotsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AvailabilityClient calls the service over a connection using the JSON codec.
type AvailabilityClient struct {
	cc grpc.ClientConnInterface
}

func NewAvailabilityClient(cc grpc.ClientConnInterface) *AvailabilityClient {
	return &AvailabilityClient{cc: cc}
}

func (c *AvailabilityClient) GetAvailability(ctx context.Context, req *GetAvailabilityRequest, opts ...grpc.CallOption) (*GetAvailabilityResponse, error) {
	out := new(GetAvailabilityResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONContentSubtype)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+availabilityServiceName+"/GetAvailability", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AvailabilityClient) ListSlots(ctx context.Context, req *ListSlotsRequest, opts ...grpc.CallOption) (*ListSlotsResponse, error) {
	out := new(ListSlotsResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONContentSubtype)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+availabilityServiceName+"/ListSlots", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
