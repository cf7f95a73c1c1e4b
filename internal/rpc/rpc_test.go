package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

func TestCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec)

	data, err := codec.Marshal(&TransitionRequest{TaskID: "t-1", Remarks: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"task_id":"t-1","remarks":"ok"}`, string(data))
}

func TestFullMethod(t *testing.T) {
	assert.Equal(t, "/compliance.v1.WorkflowService/Submit", FullMethod(MethodSubmit))
}

func TestListTasksFilter(t *testing.T) {
	now := time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)

	f := (&ListTasksRequest{MakerID: "m-1", Statuses: []string{"submitted"}}).Filter(now)
	assert.Equal(t, "m-1", f.MakerID)
	assert.Equal(t, []repository.TaskStatus{repository.StatusSubmitted}, f.Statuses)
	assert.Nil(t, f.DueBefore)

	f = (&ListTasksRequest{OverdueOnly: true}).Filter(now)
	require.NotNil(t, f.DueBefore)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), *f.DueBefore)
	assert.Equal(t, repository.OpenStatuses, f.Statuses)
}
