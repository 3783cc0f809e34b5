package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "fnhost.Function"

	callMethod = "/fnhost.Function/Call"
	talkMethod = "/fnhost.Function/Talk"
)

// FunctionServer is the server-side contract for the function service.
type FunctionServer interface {
	// Call dispatches one invocation and returns the response envelope.
	Call(ctx context.Context, req *Message) (*Message, error)
	// Talk is a declared bidirectional stream reserved for future use.
	// Implementations are expected to treat it as a no-op.
	Talk(stream FunctionTalkServer) error
}

// FunctionTalkServer is the server view of the Talk stream.
type FunctionTalkServer interface {
	Send(*Message) error
	Recv() (*Message, error)
	grpc.ServerStream
}

type functionTalkServer struct {
	grpc.ServerStream
}

func (x *functionTalkServer) Send(m *Message) error { return x.ServerStream.SendMsg(m) }

func (x *functionTalkServer) Recv() (*Message, error) {
	m := new(Message)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RegisterFunctionServer registers srv on the given gRPC registrar.
func RegisterFunctionServer(s grpc.ServiceRegistrar, srv FunctionServer) {
	s.RegisterService(&functionServiceDesc, srv)
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Message)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FunctionServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: callMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FunctionServer).Call(ctx, req.(*Message))
	}
	return interceptor(ctx, in, info, handler)
}

func talkHandler(srv any, stream grpc.ServerStream) error {
	return srv.(FunctionServer).Talk(&functionTalkServer{stream})
}

// functionServiceDesc is maintained by hand: the wire format is JSON via the
// registered codec, so there is no generated protobuf code to derive it from.
var functionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FunctionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Call",
			Handler:    callHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Talk",
			Handler:       talkHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "fnhost/function",
}

// FunctionClient is the client-side contract for the function service.
type FunctionClient interface {
	Call(ctx context.Context, in *Message, opts ...grpc.CallOption) (*Message, error)
	Talk(ctx context.Context, opts ...grpc.CallOption) (FunctionTalkClient, error)
}

// FunctionTalkClient is the client view of the Talk stream.
type FunctionTalkClient interface {
	Send(*Message) error
	Recv() (*Message, error)
	grpc.ClientStream
}

type functionClient struct {
	cc grpc.ClientConnInterface
}

// NewFunctionClient creates a function service client on the given connection.
// All calls use the JSON codec.
func NewFunctionClient(cc grpc.ClientConnInterface) FunctionClient {
	return &functionClient{cc: cc}
}

func (c *functionClient) Call(ctx context.Context, in *Message, opts ...grpc.CallOption) (*Message, error) {
	out := new(Message)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, callMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *functionClient) Talk(ctx context.Context, opts ...grpc.CallOption) (FunctionTalkClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &functionServiceDesc.Streams[0], talkMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &functionTalkClient{stream}, nil
}

type functionTalkClient struct {
	grpc.ClientStream
}

func (x *functionTalkClient) Send(m *Message) error { return x.ClientStream.SendMsg(m) }

func (x *functionTalkClient) Recv() (*Message, error) {
	m := new(Message)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
