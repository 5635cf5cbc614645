// Package agentpb defines the built-in energy-saving agent's gRPC
// control channel: Halt/WakeUp/Check. Hostnames travel as a
// structpb.ListValue and acknowledgements as emptypb.Empty — both
// well-known protobuf types — so the service needs no protoc-generated
// message code, only a hand-written grpc.ServiceDesc of the kind
// protoc-gen-go-grpc would otherwise emit.
package agentpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "batchsched.energy.Agent"

// AgentServer is implemented by the built-in agent's server side.
type AgentServer interface {
	Halt(ctx context.Context, hostnames *structpb.ListValue) (*emptypb.Empty, error)
	WakeUp(ctx context.Context, hostnames *structpb.ListValue) (*emptypb.Empty, error)
	Check(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error)
}

// RegisterAgentServer registers srv with s under ServiceDesc.
func RegisterAgentServer(s grpc.ServiceRegistrar, srv AgentServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func haltHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(structpb.ListValue)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).Halt(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Halt"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).Halt(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, req, info, handler)
}

func wakeUpHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(structpb.ListValue)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).WakeUp(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/WakeUp"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).WakeUp(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, req, info, handler)
}

func checkHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(emptypb.Empty)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentServer).Check(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Check"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentServer).Check(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, req, info, handler)
}

// ServiceDesc is a hand-written grpc.ServiceDesc in the shape
// protoc-gen-go-grpc output takes; no agent.proto is kept in the tree.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AgentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Halt", Handler: haltHandler},
		{MethodName: "WakeUp", Handler: wakeUpHandler},
		{MethodName: "Check", Handler: checkHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/energy/agentpb/agent.proto",
}

// AgentClient is implemented by NewAgentClient's return value.
type AgentClient interface {
	Halt(ctx context.Context, hostnames *structpb.ListValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	WakeUp(ctx context.Context, hostnames *structpb.ListValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Check(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type agentClient struct {
	cc grpc.ClientConnInterface
}

// NewAgentClient wraps cc with the Halt/WakeUp/Check stubs.
func NewAgentClient(cc grpc.ClientConnInterface) AgentClient {
	return &agentClient{cc: cc}
}

func (c *agentClient) Halt(ctx context.Context, hostnames *structpb.ListValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Halt", hostnames, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentClient) WakeUp(ctx context.Context, hostnames *structpb.ListValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/WakeUp", hostnames, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *agentClient) Check(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Check", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
