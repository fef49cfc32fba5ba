// Package rpc exposes the guard as the gRPC service policyguard.v1.PolicyGuard.
// Messages are google.protobuf.Struct documents shaped like the JSON
// snapshot and verdict, so no generated code is needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "policyguard.v1.PolicyGuard"

const (
	methodEvaluate = "/" + ServiceName + "/Evaluate"
	methodIngest   = "/" + ServiceName + "/Ingest"
	methodSummary  = "/" + ServiceName + "/Summary"
)

// #region server-interface
// PolicyGuardServer is the server API for the PolicyGuard service.
type PolicyGuardServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ingest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Summary(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// #endregion server-interface

// #region service-desc
// ServiceDesc describes the PolicyGuard service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PolicyGuardServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: structHandler(methodEvaluate, PolicyGuardServer.Evaluate)},
		{MethodName: "Ingest", Handler: structHandler(methodIngest, PolicyGuardServer.Ingest)},
		{MethodName: "Summary", Handler: summaryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "policyguard/v1/policy_guard.proto",
}

// Register attaches srv to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv PolicyGuardServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type structMethod func(PolicyGuardServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structHandler(fullMethod string, call structMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PolicyGuardServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PolicyGuardServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func summaryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PolicyGuardServer).Summary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSummary}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PolicyGuardServer).Summary(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// #endregion service-desc
