package energy

import (
	"context"

	"github.com/cuemby/batchsched/pkg/energy/agentpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// GRPCAgent is the built-in energy-saving agent, preferred whenever a
// control-channel endpoint is configured.
type GRPCAgent struct {
	client agentpb.AgentClient
}

// NewGRPCAgent wraps an already-dialed agentpb client.
func NewGRPCAgent(client agentpb.AgentClient) *GRPCAgent {
	return &GRPCAgent{client: client}
}

func (a *GRPCAgent) Halt(ctx context.Context, hostnames []string) error {
	_, err := a.client.Halt(ctx, stringsToList(hostnames))
	return err
}

func (a *GRPCAgent) WakeUp(ctx context.Context, hostnames []string) error {
	_, err := a.client.WakeUp(ctx, stringsToList(hostnames))
	return err
}

func (a *GRPCAgent) Check(ctx context.Context) error {
	_, err := a.client.Check(ctx, &emptypb.Empty{})
	return err
}

func stringsToList(ss []string) *structpb.ListValue {
	values := make([]*structpb.Value, len(ss))
	for i, s := range ss {
		values[i] = structpb.NewStringValue(s)
	}
	return &structpb.ListValue{Values: values}
}
