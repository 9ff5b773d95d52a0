package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Every method takes
// and returns a google.protobuf.Struct holding the same JSON document the
// HTTP API uses.
const ServiceName = "budgets.v1.BudgetService"

// BudgetServiceServer is the handler type registered for ServiceName.
type BudgetServiceServer interface {
	budgetService()
}

// ServiceDesc describes the BudgetService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BudgetServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Health", (*BudgetServer).health),

		unary("CreateCycle", (*BudgetServer).createCycle),
		unary("GetCycle", (*BudgetServer).getCycle),
		unary("CurrentCycle", (*BudgetServer).currentCycle),
		unary("ListCycles", (*BudgetServer).listCycles),
		unary("TransitionCycle", (*BudgetServer).transitionCycle),
		unary("UpdateCycleLimits", (*BudgetServer).updateCycleLimits),
		unary("RefreshSpend", (*BudgetServer).refreshSpend),
		unary("ListSegmentCycles", (*BudgetServer).listSegmentCycles),
		unary("OpenSegmentCycles", (*BudgetServer).openSegmentCycles),

		unary("GetSegmentCycle", (*BudgetServer).getSegmentCycle),
		unary("TransitionSegmentCycle", (*BudgetServer).transitionSegmentCycle),
		unary("AuthorizePayout", (*BudgetServer).authorizePayout),

		unary("CreateSegment", (*BudgetServer).createSegment),
		unary("GetSegment", (*BudgetServer).getSegment),
		unary("ListSegments", (*BudgetServer).listSegments),
		unary("UpdateSegment", (*BudgetServer).updateSegment),
		unary("DeleteSegment", (*BudgetServer).deleteSegment),
		unary("GetThrottleConfig", (*BudgetServer).getThrottleConfig),
		unary("SetThrottleConfig", (*BudgetServer).setThrottleConfig),

		unary("Simulate", (*BudgetServer).simulate),
		unary("ProjectFunnel", (*BudgetServer).projectFunnel),

		unary("ListEvents", (*BudgetServer).listEvents),
		unary("Rollback", (*BudgetServer).rollback),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "budgets/v1/budgets.proto",
}

// unary builds a method descriptor that decodes the Struct request into
// Req, runs op and encodes its result back into a Struct.
func unary[Req any](name string, op func(*BudgetServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				var r Req
				if err := fromStruct(req.(*structpb.Struct), &r); err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}
				out, err := op(srv.(*BudgetServer), ctx, &r)
				if err != nil {
					return nil, toStatus(err)
				}
				resp, err := toStruct(out)
				if err != nil {
					return nil, status.Error(codes.Internal, err.Error())
				}
				return resp, nil
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, call)
		},
	}
}

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the BudgetService and reflection, and returns the server ready
// to serve. When authToken is non-empty every RPC except Health must carry
// a matching bearer token.
func NewGRPCServer(budgetServer *BudgetServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			MetricsInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&ServiceDesc, budgetServer)
	reflection.Register(srv)

	return srv
}
