package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
	"github.com/pesio-ai/be-compliance-tasks/internal/rpc"
	"github.com/pesio-ai/be-compliance-tasks/internal/service"
)

// WorkflowGRPCClient calls compliance.v1.WorkflowService.
type WorkflowGRPCClient struct {
	conn *grpc.ClientConn
}

// NewWorkflowGRPCClient creates a client for addr. Extra dial options are
// appended to the defaults.
func NewWorkflowGRPCClient(addr string, creds Credentials, opts ...grpc.DialOption) (*WorkflowGRPCClient, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.CodecName)),
		grpc.WithChainUnaryInterceptor(forwardMetadata),
	}
	conn, err := grpc.NewClient(addr, append(dialOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &WorkflowGRPCClient{conn: conn}, nil
}

// Close closes the gRPC connection
func (c *WorkflowGRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *WorkflowGRPCClient) invoke(ctx context.Context, method string, req, resp any) error {
	if err := c.conn.Invoke(ctx, rpc.FullMethod(method), req, resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// ListTasks lists the tasks visible to the caller.
func (c *WorkflowGRPCClient) ListTasks(ctx context.Context, req *rpc.ListTasksRequest) ([]*repository.TaskInstance, error) {
	var resp rpc.ListTasksResponse
	if err := c.invoke(ctx, rpc.MethodListTasks, req, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// GetTask retrieves a task.
func (c *WorkflowGRPCClient) GetTask(ctx context.Context, taskID string) (*repository.TaskInstance, error) {
	var resp rpc.TaskResponse
	if err := c.invoke(ctx, rpc.MethodGetTask, &rpc.TaskRequest{TaskID: taskID}, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

// GetEscalations lists a task's escalation log.
func (c *WorkflowGRPCClient) GetEscalations(ctx context.Context, taskID string) ([]*repository.EscalationRecord, error) {
	var resp rpc.EscalationsResponse
	if err := c.invoke(ctx, rpc.MethodGetEscalations, &rpc.TaskRequest{TaskID: taskID}, &resp); err != nil {
		return nil, err
	}
	return resp.Escalations, nil
}

// Transition drives one workflow edge. method is one of the rpc.Method*
// transition names.
func (c *WorkflowGRPCClient) Transition(ctx context.Context, method string, req *rpc.TransitionRequest) (*repository.TaskInstance, error) {
	switch method {
	case rpc.MethodSubmit, rpc.MethodApprove, rpc.MethodReject, rpc.MethodSendBack, rpc.MethodReopen:
	default:
		return nil, fmt.Errorf("unknown transition %q", method)
	}
	var resp rpc.TaskResponse
	if err := c.invoke(ctx, method, req, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

// Sweep runs one escalation sweep. Admin only.
func (c *WorkflowGRPCClient) Sweep(ctx context.Context) (service.SweepSummary, error) {
	var resp rpc.SweepResponse
	err := c.invoke(ctx, rpc.MethodSweep, &rpc.Empty{}, &resp)
	return resp.Summary, err
}

// Provision runs one provisioning pass. Admin only.
func (c *WorkflowGRPCClient) Provision(ctx context.Context) (service.ProvisionSummary, error) {
	var resp rpc.ProvisionResponse
	err := c.invoke(ctx, rpc.MethodProvision, &rpc.Empty{}, &resp)
	return resp.Summary, err
}
