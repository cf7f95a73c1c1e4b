package handler

import (
	"context"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/pesio-ai/be-compliance-tasks/internal/client"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/auth"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
	"github.com/pesio-ai/be-compliance-tasks/internal/rpc"
)

func startGRPC(t *testing.T, f *fixture) func(creds client.Credentials) *client.WorkflowGRPCClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(auth.NewAuthenticator(nil, true).UnaryInterceptor()))
	NewGRPCHandler(f.svc, zerolog.Nop()).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return func(creds client.Credentials) *client.WorkflowGRPCClient {
		c, err := client.NewWorkflowGRPCClient("passthrough:///bufnet", creds,
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		return c
	}
}

func TestGRPCWorkflowRoundTrip(t *testing.T) {
	f := newFixture(t)
	dial := startGRPC(t, f)
	ctx := context.Background()

	maker := dial(client.Credentials{EmployeeID: "m-1", Role: "maker"})
	checker := dial(client.Credentials{EmployeeID: "c-1", Role: "checker"})

	tasks, err := maker.ListTasks(ctx, &rpc.ListTasksRequest{})
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	task, err := maker.Transition(ctx, rpc.MethodSubmit, &rpc.TransitionRequest{
		TaskID:       "t-1",
		Remarks:      "Filed",
		DocumentName: "challan.pdf",
		Document:     []byte("challan"),
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusSubmitted, task.Status)
	require.NotNil(t, task.DocumentRef)

	task, err = checker.Transition(ctx, rpc.MethodSendBack, &rpc.TransitionRequest{TaskID: "t-1", Remarks: "Wrong period"})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDraft, task.Status)

	_, err = checker.GetTask(ctx, "t-1")
	assert.Equal(t, codes.NotFound, status.Code(err), "drafts are invisible to checkers")

	records, err := maker.GetEscalations(ctx, "t-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestGRPCErrorMapping(t *testing.T) {
	f := newFixture(t)
	dial := startGRPC(t, f)
	ctx := context.Background()

	_, err := dial(client.Credentials{}).GetTask(ctx, "t-1")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	maker := dial(client.Credentials{EmployeeID: "m-1", Role: "maker"})

	_, err = maker.Transition(ctx, rpc.MethodApprove, &rpc.TransitionRequest{TaskID: "t-2"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = maker.Transition(ctx, rpc.MethodSubmit, &rpc.TransitionRequest{TaskID: "t-2", Remarks: "again"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = maker.Transition(ctx, rpc.MethodSubmit, &rpc.TransitionRequest{TaskID: "t-1"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = maker.Sweep(ctx)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	summary, err := dial(client.Credentials{EmployeeID: "a-1", Role: "admin"}).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Scanned)
}

func TestMapErrorToGRPC(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{errors.NotFound("task", "t-1"), codes.NotFound},
		{errors.InvalidInput("remarks", "required"), codes.InvalidArgument},
		{errors.Precondition("wrong state"), codes.FailedPrecondition},
		{errors.Forbidden("no"), codes.PermissionDenied},
		{errors.Conflict("duplicate binding"), codes.AlreadyExists},
		{errors.Unavailable(assert.AnError, "s3 down"), codes.Unavailable},
		{assert.AnError, codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(mapErrorToGRPC(tt.err)), tt.err.Error())
	}
	assert.NoError(t, mapErrorToGRPC(nil))

	st, _ := status.FromError(mapErrorToGRPC(assert.AnError))
	assert.Equal(t, "internal error", st.Message(), "raw causes are not leaked")
}
