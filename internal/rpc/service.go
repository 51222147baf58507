package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "notesync.v1.SyncService"

// Full method names, as seen by interceptors.
const (
	MethodPing                      = "/" + ServiceName + "/Ping"
	MethodSubmitChanges             = "/" + ServiceName + "/SubmitChanges"
	MethodPullChanges               = "/" + ServiceName + "/PullChanges"
	MethodPresignAttachmentUpload   = "/" + ServiceName + "/PresignAttachmentUpload"
	MethodPresignAttachmentDownload = "/" + ServiceName + "/PresignAttachmentDownload"
)

// SyncServiceServer is implemented by the server's gRPC handler.
type SyncServiceServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	SubmitChanges(context.Context, *SubmitChangesRequest) (*SubmitChangesResponse, error)
	PullChanges(context.Context, *PullChangesRequest) (*PullChangesResponse, error)
	PresignAttachmentUpload(context.Context, *PresignAttachmentRequest) (*PresignAttachmentResponse, error)
	PresignAttachmentDownload(context.Context, *PresignAttachmentRequest) (*PresignAttachmentResponse, error)
}

// UnimplementedSyncServiceServer answers every method with codes.Unimplemented.
// Embed it to stay forward compatible.
type UnimplementedSyncServiceServer struct{}

func (UnimplementedSyncServiceServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Ping not implemented")
}
func (UnimplementedSyncServiceServer) SubmitChanges(context.Context, *SubmitChangesRequest) (*SubmitChangesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitChanges not implemented")
}
func (UnimplementedSyncServiceServer) PullChanges(context.Context, *PullChangesRequest) (*PullChangesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PullChanges not implemented")
}
func (UnimplementedSyncServiceServer) PresignAttachmentUpload(context.Context, *PresignAttachmentRequest) (*PresignAttachmentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PresignAttachmentUpload not implemented")
}
func (UnimplementedSyncServiceServer) PresignAttachmentDownload(context.Context, *PresignAttachmentRequest) (*PresignAttachmentResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method PresignAttachmentDownload not implemented")
}

func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	s.RegisterService(&SyncServiceDesc, srv)
}

// unaryHandler builds a grpc.MethodHandler that decodes Req and dispatches
// to call, going through the server's interceptor chain when one is set.
func unaryHandler[Req any, Resp any](method string, call func(SyncServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SyncServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SyncServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var SyncServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ping",
			Handler:    unaryHandler(MethodPing, SyncServiceServer.Ping),
		},
		{
			MethodName: "SubmitChanges",
			Handler:    unaryHandler(MethodSubmitChanges, SyncServiceServer.SubmitChanges),
		},
		{
			MethodName: "PullChanges",
			Handler:    unaryHandler(MethodPullChanges, SyncServiceServer.PullChanges),
		},
		{
			MethodName: "PresignAttachmentUpload",
			Handler:    unaryHandler(MethodPresignAttachmentUpload, SyncServiceServer.PresignAttachmentUpload),
		},
		{
			MethodName: "PresignAttachmentDownload",
			Handler:    unaryHandler(MethodPresignAttachmentDownload, SyncServiceServer.PresignAttachmentDownload),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "notesync/v1/sync.json",
}

// SyncServiceClient is the client API of the service.
type SyncServiceClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	SubmitChanges(ctx context.Context, in *SubmitChangesRequest, opts ...grpc.CallOption) (*SubmitChangesResponse, error)
	PullChanges(ctx context.Context, in *PullChangesRequest, opts ...grpc.CallOption) (*PullChangesResponse, error)
	PresignAttachmentUpload(ctx context.Context, in *PresignAttachmentRequest, opts ...grpc.CallOption) (*PresignAttachmentResponse, error)
	PresignAttachmentDownload(ctx context.Context, in *PresignAttachmentRequest, opts ...grpc.CallOption) (*PresignAttachmentResponse, error)
}

type syncServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSyncServiceClient(cc grpc.ClientConnInterface) SyncServiceClient {
	return &syncServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *syncServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}

func (c *syncServiceClient) SubmitChanges(ctx context.Context, in *SubmitChangesRequest, opts ...grpc.CallOption) (*SubmitChangesResponse, error) {
	return invoke[SubmitChangesResponse](ctx, c.cc, MethodSubmitChanges, in, opts)
}

func (c *syncServiceClient) PullChanges(ctx context.Context, in *PullChangesRequest, opts ...grpc.CallOption) (*PullChangesResponse, error) {
	return invoke[PullChangesResponse](ctx, c.cc, MethodPullChanges, in, opts)
}

func (c *syncServiceClient) PresignAttachmentUpload(ctx context.Context, in *PresignAttachmentRequest, opts ...grpc.CallOption) (*PresignAttachmentResponse, error) {
	return invoke[PresignAttachmentResponse](ctx, c.cc, MethodPresignAttachmentUpload, in, opts)
}

func (c *syncServiceClient) PresignAttachmentDownload(ctx context.Context, in *PresignAttachmentRequest, opts ...grpc.CallOption) (*PresignAttachmentResponse, error) {
	return invoke[PresignAttachmentResponse](ctx, c.cc, MethodPresignAttachmentDownload, in, opts)
}
