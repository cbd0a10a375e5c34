package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/pipeline-rca/internal/models"
	"github.com/miradorstack/pipeline-rca/internal/services"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "pipelinerca.v1.PipelineRCA"

// PipelineRCAServer is the gRPC surface. Messages are google.protobuf.Struct
// values carrying the same JSON documents as the HTTP API.
type PipelineRCAServer interface {
	Classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CreateNotification(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	NotificationAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListNotifications(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	SearchKnowledgeBase(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(PipelineRCAServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PipelineRCAServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PipelineRCAServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes PipelineRCAServer for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PipelineRCAServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Classify", PipelineRCAServer.Classify),
		unaryMethod("CreateNotification", PipelineRCAServer.CreateNotification),
		unaryMethod("NotificationAction", PipelineRCAServer.NotificationAction),
		unaryMethod("ListNotifications", PipelineRCAServer.ListNotifications),
		unaryMethod("SearchKnowledgeBase", PipelineRCAServer.SearchKnowledgeBase),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterPipelineRCAServer registers srv on s.
func RegisterPipelineRCAServer(s grpc.ServiceRegistrar, srv PipelineRCAServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// GRPCService adapts PipelineService to PipelineRCAServer.
type GRPCService struct {
	svc *services.PipelineService
}

// NewGRPCService constructs the gRPC adapter.
func NewGRPCService(svc *services.PipelineService) *GRPCService {
	return &GRPCService{svc: svc}
}

// Classify implements PipelineRCAServer.
func (g *GRPCService) Classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.ClassifyRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, StatusFor(err)
	}
	resp, err := g.svc.Classify(ctx, req)
	return respond(resp, err)
}

// CreateNotification implements PipelineRCAServer.
func (g *GRPCService) CreateNotification(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.CreateNotificationRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, StatusFor(err)
	}
	n, err := g.svc.CreateNotification(ctx, req)
	return respond(n, err)
}

// NotificationAction implements PipelineRCAServer.
func (g *GRPCService) NotificationAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.NotificationActionRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, StatusFor(err)
	}
	resp, err := g.svc.NotificationAction(ctx, req)
	return respond(resp, err)
}

// ListNotifications implements PipelineRCAServer.
func (g *GRPCService) ListNotifications(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var filters models.NotificationFilters
	if err := FromStruct(in, &filters); err != nil {
		return nil, StatusFor(err)
	}
	return respond(g.svc.ListNotifications(ctx, filters), nil)
}

// SearchKnowledgeBase implements PipelineRCAServer. The action defaults to search.
func (g *GRPCService) SearchKnowledgeBase(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.KnowledgeBaseRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, StatusFor(err)
	}
	if req.Action == "" {
		req.Action = models.KBActionSearch
	}
	resp, err := g.svc.KnowledgeBase(ctx, req)
	return respond(resp, err)
}

func respond(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, StatusFor(err)
	}
	out, err := ToStruct(v)
	if err != nil {
		return nil, StatusFor(err)
	}
	return out, nil
}
