package grpc

import (
	"context"

	ggrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ReservationsServiceName is the wire name of the reservations service. Messages
// are google.protobuf.Struct so clients need no generated stubs.
const ReservationsServiceName = "reserveit.v1.Reservations"

type ReservationsServiceServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Cancel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reschedule(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetReservation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListResources(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(context.Context, *structpb.Struct) (*structpb.Struct, error)

var ReservationsServiceDesc = ggrpc.ServiceDesc{
	ServiceName: ReservationsServiceName,
	HandlerType: (*ReservationsServiceServer)(nil),
	Methods: []ggrpc.MethodDesc{
		{MethodName: "Submit", Handler: unaryHandler("Submit", func(s ReservationsServiceServer) unaryMethod { return s.Submit })},
		{MethodName: "Cancel", Handler: unaryHandler("Cancel", func(s ReservationsServiceServer) unaryMethod { return s.Cancel })},
		{MethodName: "Reschedule", Handler: unaryHandler("Reschedule", func(s ReservationsServiceServer) unaryMethod { return s.Reschedule })},
		{MethodName: "GetReservation", Handler: unaryHandler("GetReservation", func(s ReservationsServiceServer) unaryMethod { return s.GetReservation })},
		{MethodName: "ListResources", Handler: unaryHandler("ListResources", func(s ReservationsServiceServer) unaryMethod { return s.ListResources })},
	},
	Streams:  []ggrpc.StreamDesc{},
	Metadata: "reserveit/v1/reservations.proto",
}

func RegisterReservationsServer(r ggrpc.ServiceRegistrar, srv ReservationsServiceServer) {
	r.RegisterService(&ReservationsServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ReservationsServiceName + "/" + name
}

func unaryHandler(name string, pick func(ReservationsServiceServer) unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor ggrpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor ggrpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		call := pick(srv.(ReservationsServiceServer))
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &ggrpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(ctx, req.(*structpb.Struct))
		})
	}
}

// ReservationsClient calls the reservations service over any client connection.
type ReservationsClient struct {
	cc ggrpc.ClientConnInterface
}

func NewReservationsClient(cc ggrpc.ClientConnInterface) *ReservationsClient {
	return &ReservationsClient{cc: cc}
}

func (c *ReservationsClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...ggrpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
