package carenotev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const Entitlements_VerifyPurchase_FullMethodName = "/carenote.v1.Entitlements/VerifyPurchase"

// EntitlementsServer is the server API for the Entitlements service.
type EntitlementsServer interface {
	VerifyPurchase(context.Context, *VerifyPurchaseRequest) (*VerifyPurchaseResponse, error)
}

// UnimplementedEntitlementsServer can be embedded to have forward compatible implementations.
type UnimplementedEntitlementsServer struct{}

func (UnimplementedEntitlementsServer) VerifyPurchase(context.Context, *VerifyPurchaseRequest) (*VerifyPurchaseResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method VerifyPurchase not implemented")
}

// RegisterEntitlementsServer attaches srv to s.
func RegisterEntitlementsServer(s grpc.ServiceRegistrar, srv EntitlementsServer) {
	s.RegisterService(&Entitlements_ServiceDesc, srv)
}

func _Entitlements_VerifyPurchase_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(VerifyPurchaseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntitlementsServer).VerifyPurchase(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Entitlements_VerifyPurchase_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EntitlementsServer).VerifyPurchase(ctx, req.(*VerifyPurchaseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Entitlements_ServiceDesc is the grpc.ServiceDesc for the Entitlements service.
var Entitlements_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "carenote.v1.Entitlements",
	HandlerType: (*EntitlementsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "VerifyPurchase", Handler: _Entitlements_VerifyPurchase_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carenote/v1/entitlements",
}

// EntitlementsClient is the client API for the Entitlements service.
type EntitlementsClient interface {
	VerifyPurchase(ctx context.Context, in *VerifyPurchaseRequest, opts ...grpc.CallOption) (*VerifyPurchaseResponse, error)
}

type entitlementsClient struct {
	cc grpc.ClientConnInterface
}

// NewEntitlementsClient returns a client that encodes calls with the JSON codec.
func NewEntitlementsClient(cc grpc.ClientConnInterface) EntitlementsClient {
	return &entitlementsClient{cc: cc}
}

func (c *entitlementsClient) VerifyPurchase(ctx context.Context, in *VerifyPurchaseRequest, opts ...grpc.CallOption) (*VerifyPurchaseResponse, error) {
	out := new(VerifyPurchaseResponse)
	if err := c.cc.Invoke(ctx, Entitlements_VerifyPurchase_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
