package carenotev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	Documents_Get_FullMethodName     = "/carenote.v1.Documents/Get"
	Documents_Put_FullMethodName     = "/carenote.v1.Documents/Put"
	Documents_Changes_FullMethodName = "/carenote.v1.Documents/Changes"
)

// DocumentsServer is the server API for the Documents service.
type DocumentsServer interface {
	Get(context.Context, *GetRequest) (*GetResponse, error)
	Put(context.Context, *PutRequest) (*PutResponse, error)
	Changes(context.Context, *ChangesRequest) (*ChangesResponse, error)
}

// UnimplementedDocumentsServer can be embedded to have forward compatible implementations.
type UnimplementedDocumentsServer struct{}

func (UnimplementedDocumentsServer) Get(context.Context, *GetRequest) (*GetResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}
func (UnimplementedDocumentsServer) Put(context.Context, *PutRequest) (*PutResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Put not implemented")
}
func (UnimplementedDocumentsServer) Changes(context.Context, *ChangesRequest) (*ChangesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Changes not implemented")
}

// RegisterDocumentsServer attaches srv to s.
func RegisterDocumentsServer(s grpc.ServiceRegistrar, srv DocumentsServer) {
	s.RegisterService(&Documents_ServiceDesc, srv)
}

func _Documents_Get_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocumentsServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Documents_Get_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DocumentsServer).Get(ctx, req.(*GetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Documents_Put_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocumentsServer).Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Documents_Put_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DocumentsServer).Put(ctx, req.(*PutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Documents_Changes_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ChangesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocumentsServer).Changes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Documents_Changes_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DocumentsServer).Changes(ctx, req.(*ChangesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Documents_ServiceDesc is the grpc.ServiceDesc for the Documents service.
var Documents_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "carenote.v1.Documents",
	HandlerType: (*DocumentsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: _Documents_Get_Handler},
		{MethodName: "Put", Handler: _Documents_Put_Handler},
		{MethodName: "Changes", Handler: _Documents_Changes_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carenote/v1/documents",
}

// DocumentsClient is the client API for the Documents service.
type DocumentsClient interface {
	Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error)
	Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*PutResponse, error)
	Changes(ctx context.Context, in *ChangesRequest, opts ...grpc.CallOption) (*ChangesResponse, error)
}

type documentsClient struct {
	cc grpc.ClientConnInterface
}

// NewDocumentsClient returns a client that encodes calls with the JSON codec.
func NewDocumentsClient(cc grpc.ClientConnInterface) DocumentsClient {
	return &documentsClient{cc: cc}
}

func (c *documentsClient) Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error) {
	out := new(GetResponse)
	if err := c.cc.Invoke(ctx, Documents_Get_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *documentsClient) Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*PutResponse, error) {
	out := new(PutResponse)
	if err := c.cc.Invoke(ctx, Documents_Put_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *documentsClient) Changes(ctx context.Context, in *ChangesRequest, opts ...grpc.CallOption) (*ChangesResponse, error) {
	out := new(ChangesResponse)
	if err := c.cc.Invoke(ctx, Documents_Changes_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
