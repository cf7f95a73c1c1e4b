package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/auth"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
	"github.com/pesio-ai/be-compliance-tasks/internal/rpc"
	"github.com/pesio-ai/be-compliance-tasks/internal/service"
)

// WorkflowServer is the server side of compliance.v1.WorkflowService.
type WorkflowServer interface {
	ListTasks(context.Context, *rpc.ListTasksRequest) (*rpc.ListTasksResponse, error)
	GetTask(context.Context, *rpc.TaskRequest) (*rpc.TaskResponse, error)
	GetEscalations(context.Context, *rpc.TaskRequest) (*rpc.EscalationsResponse, error)
	Submit(context.Context, *rpc.TransitionRequest) (*rpc.TaskResponse, error)
	Approve(context.Context, *rpc.TransitionRequest) (*rpc.TaskResponse, error)
	Reject(context.Context, *rpc.TransitionRequest) (*rpc.TaskResponse, error)
	SendBack(context.Context, *rpc.TransitionRequest) (*rpc.TaskResponse, error)
	Reopen(context.Context, *rpc.TransitionRequest) (*rpc.TaskResponse, error)
	Sweep(context.Context, *rpc.Empty) (*rpc.SweepResponse, error)
	Provision(context.Context, *rpc.Empty) (*rpc.ProvisionResponse, error)
}

// GRPCHandler implements WorkflowServer
type GRPCHandler struct {
	svc    Services
	now    func() time.Time
	logger zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(svc Services, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		svc:    svc,
		now:    time.Now,
		logger: logger.With().Str("handler", "grpc").Logger(),
	}
}

// Register attaches the handler to s.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&workflowServiceDesc, h)
}

var workflowServiceDesc = grpc.ServiceDesc{
	ServiceName: rpc.ServiceName,
	HandlerType: (*WorkflowServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(rpc.MethodListTasks, WorkflowServer.ListTasks),
		unary(rpc.MethodGetTask, WorkflowServer.GetTask),
		unary(rpc.MethodGetEscalations, WorkflowServer.GetEscalations),
		unary(rpc.MethodSubmit, WorkflowServer.Submit),
		unary(rpc.MethodApprove, WorkflowServer.Approve),
		unary(rpc.MethodReject, WorkflowServer.Reject),
		unary(rpc.MethodSendBack, WorkflowServer.SendBack),
		unary(rpc.MethodReopen, WorkflowServer.Reopen),
		unary(rpc.MethodSweep, WorkflowServer.Sweep),
		unary(rpc.MethodProvision, WorkflowServer.Provision),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "compliance/v1/workflow.proto",
}

// unary adapts a typed server method to a grpc.MethodDesc.
func unary[Req, Resp any](method string, call func(WorkflowServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(WorkflowServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpc.FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}

// callerFrom extracts the authenticated caller from context.
func callerFrom(ctx context.Context) (service.Viewer, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return service.Viewer{}, mapErrorToGRPC(err)
	}
	return viewerFromUser(uc), nil
}

// ListTasks lists the tasks visible to the caller
func (h *GRPCHandler) ListTasks(ctx context.Context, req *rpc.ListTasksRequest) (*rpc.ListTasksResponse, error) {
	v, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := h.svc.Workflow.ListTasks(ctx, v, req.Filter(h.now()))
	if err != nil {
		return nil, h.fail(rpc.MethodListTasks, err)
	}
	return &rpc.ListTasksResponse{Tasks: tasks}, nil
}

// GetTask retrieves a task by ID
func (h *GRPCHandler) GetTask(ctx context.Context, req *rpc.TaskRequest) (*rpc.TaskResponse, error) {
	v, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	task, err := h.svc.Workflow.GetTask(ctx, v, req.TaskID)
	if err != nil {
		return nil, h.fail(rpc.MethodGetTask, err)
	}
	return &rpc.TaskResponse{Task: task}, nil
}

// GetEscalations lists a task's escalation log
func (h *GRPCHandler) GetEscalations(ctx context.Context, req *rpc.TaskRequest) (*rpc.EscalationsResponse, error) {
	v, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	records, err := h.svc.Workflow.GetEscalations(ctx, v, req.TaskID)
	if err != nil {
		return nil, h.fail(rpc.MethodGetEscalations, err)
	}
	return &rpc.EscalationsResponse{Escalations: records}, nil
}

// Submit submits a draft for review
func (h *GRPCHandler) Submit(ctx context.Context, req *rpc.TransitionRequest) (*rpc.TaskResponse, error) {
	v, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}

	h.logger.Info().
		Str("task_id", req.TaskID).
		Str("actor_id", v.EmployeeID).
		Bool("document", len(req.Document) > 0).
		Msg("gRPC Submit called")

	sreq := service.SubmitRequest{TaskID: req.TaskID, Remarks: req.Remarks}
	if len(req.Document) > 0 {
		sreq.Document = &service.Document{Name: req.DocumentName, Data: req.Document}
	}
	task, err := h.svc.Workflow.Submit(ctx, v, sreq)
	if err != nil {
		return nil, h.fail(rpc.MethodSubmit, err)
	}
	return &rpc.TaskResponse{Task: task}, nil
}

// Approve approves a submitted task
func (h *GRPCHandler) Approve(ctx context.Context, req *rpc.TransitionRequest) (*rpc.TaskResponse, error) {
	return h.review(ctx, rpc.MethodApprove, req, h.svc.Workflow.Approve)
}

// Reject rejects a submitted task
func (h *GRPCHandler) Reject(ctx context.Context, req *rpc.TransitionRequest) (*rpc.TaskResponse, error) {
	return h.review(ctx, rpc.MethodReject, req, h.svc.Workflow.Reject)
}

// SendBack returns a submitted task to the maker
func (h *GRPCHandler) SendBack(ctx context.Context, req *rpc.TransitionRequest) (*rpc.TaskResponse, error) {
	return h.review(ctx, rpc.MethodSendBack, req, h.svc.Workflow.SendBack)
}

func (h *GRPCHandler) review(
	ctx context.Context,
	method string,
	req *rpc.TransitionRequest,
	decide func(context.Context, service.Viewer, string, string) (*repository.TaskInstance, error),
) (*rpc.TaskResponse, error) {
	v, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	h.logger.Info().
		Str("task_id", req.TaskID).
		Str("actor_id", v.EmployeeID).
		Str("method", method).
		Msg("gRPC review called")

	task, err := decide(ctx, v, req.TaskID, req.Remarks)
	if err != nil {
		return nil, h.fail(method, err)
	}
	return &rpc.TaskResponse{Task: task}, nil
}

// Reopen returns a rejected task to draft
func (h *GRPCHandler) Reopen(ctx context.Context, req *rpc.TransitionRequest) (*rpc.TaskResponse, error) {
	v, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	task, err := h.svc.Workflow.Reopen(ctx, v, req.TaskID)
	if err != nil {
		return nil, h.fail(rpc.MethodReopen, err)
	}
	return &rpc.TaskResponse{Task: task}, nil
}

// Sweep runs one escalation sweep. Admin only.
func (h *GRPCHandler) Sweep(ctx context.Context, _ *rpc.Empty) (*rpc.SweepResponse, error) {
	if err := h.requireAdmin(ctx); err != nil {
		return nil, err
	}
	summary, err := h.svc.Escalation.Sweep(ctx)
	if err != nil {
		return nil, h.fail(rpc.MethodSweep, err)
	}
	return &rpc.SweepResponse{Summary: summary}, nil
}

// Provision runs one provisioning pass. Admin only.
func (h *GRPCHandler) Provision(ctx context.Context, _ *rpc.Empty) (*rpc.ProvisionResponse, error) {
	if err := h.requireAdmin(ctx); err != nil {
		return nil, err
	}
	summary, err := h.svc.Provisioning.ProvisionAll(ctx)
	if err != nil {
		return nil, h.fail(rpc.MethodProvision, err)
	}
	return &rpc.ProvisionResponse{Summary: summary}, nil
}

func (h *GRPCHandler) requireAdmin(ctx context.Context) error {
	v, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	if !v.IsAdmin() {
		return mapErrorToGRPC(errors.Forbidden("admin role required"))
	}
	return nil
}

func (h *GRPCHandler) fail(method string, err error) error {
	st := mapErrorToGRPC(err)
	if status.Code(st) == codes.Internal || status.Code(st) == codes.Unavailable {
		h.logger.Error().Err(err).Str("method", method).Msg("gRPC call failed")
	}
	return st
}

// mapErrorToGRPC maps application error codes to gRPC status codes.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	var c codes.Code
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		c = codes.NotFound
	case errors.ErrCodeValidation:
		c = codes.InvalidArgument
	case errors.ErrCodePrecondition:
		c = codes.FailedPrecondition
	case errors.ErrCodeForbidden:
		c = codes.PermissionDenied
	case errors.ErrCodeUnauthorized:
		c = codes.Unauthenticated
	case errors.ErrCodeConflict:
		c = codes.AlreadyExists
	case errors.ErrCodeUnavailable:
		c = codes.Unavailable
	default:
		return status.Error(codes.Internal, "internal error")
	}

	msg := err.Error()
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	return status.Error(c, msg)
}
