package relay

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(codec{})
}

const (
	serviceName = "mutablechannel.relay.MutableRelay"
	pushMethod  = "PushMutable"
	regMethod   = "RegisterMutable"
)

// Handler is implemented by a relay's reader-side endpoint; ServiceDesc
// below wires its two methods onto a grpc.Server without any generated
// .pb.go stubs.
type Handler interface {
	HandlePushMutable(ctx context.Context, req *PushMutableRequest) (*PushMutableReply, error)
	HandleRegisterMutableObject(ctx context.Context, req *RegisterMutableRequest) (*RegisterMutableReply, error)
}

// ServiceDesc hand-registers the two RPC methods spec section 6 describes
// (PushMutable, RegisterMutable) on a real *grpc.Server, the same public
// mechanism grpc-go's own generated code uses internally — built by hand
// here because no .pb.go stubs exist for this service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: pushMethod,
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(PushMutableRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				h := srv.(Handler)
				if interceptor == nil {
					return h.HandlePushMutable(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(pushMethod)}
				return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
					return h.HandlePushMutable(ctx, req.(*PushMutableRequest))
				})
			},
		},
		{
			MethodName: regMethod,
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				req := new(RegisterMutableRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				h := srv.(Handler)
				if interceptor == nil {
					return h.HandleRegisterMutableObject(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(regMethod)}
				return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
					return h.HandleRegisterMutableObject(ctx, req.(*RegisterMutableRequest))
				})
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mutablechannel/relay.proto",
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

// RegisterHandler registers h's methods on srv.
func RegisterHandler(srv *grpc.Server, h Handler) {
	srv.RegisterService(&ServiceDesc, h)
}

// peerClient is a thin hand-rolled stub around grpc.ClientConn.Invoke,
// standing in for a generated PushMutable/RegisterMutable client — the
// method names and content-subtype must match ServiceDesc and codec
// exactly for the server to decode the request correctly.
type peerClient struct {
	cc *grpc.ClientConn
}

// NewPeerClient wraps an established connection to a peer node's relay
// handler.
func NewPeerClient(cc *grpc.ClientConn) *peerClient {
	return &peerClient{cc: cc}
}

func (c *peerClient) PushMutable(ctx context.Context, req *PushMutableRequest) (*PushMutableReply, error) {
	reply := new(PushMutableReply)
	err := c.cc.Invoke(ctx, fullMethod(pushMethod), req, reply, grpc.CallContentSubtype(codecName))
	return reply, err
}

func (c *peerClient) RegisterMutable(ctx context.Context, req *RegisterMutableRequest) (*RegisterMutableReply, error) {
	reply := new(RegisterMutableReply)
	err := c.cc.Invoke(ctx, fullMethod(regMethod), req, reply, grpc.CallContentSubtype(codecName))
	return reply, err
}
