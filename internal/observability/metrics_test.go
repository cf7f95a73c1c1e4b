package observability

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/config"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/service"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumBy(t *testing.T, m metricdata.Metrics, key attribute.Key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(key); ok && v.Emit() == value {
			total += dp.Value
		}
	}
	return total
}

func TestMetricsRecordWorkflowActivity(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewWithReader(reader)
	require.NoError(t, err)
	ctx := context.Background()

	m.TransitionCompleted(ctx, service.EventSubmit, nil)
	m.TransitionCompleted(ctx, service.EventApprove, nil)
	m.TransitionCompleted(ctx, service.EventApprove, errors.Precondition("task is no longer submitted"))
	m.EscalationRaised(ctx, 3)
	m.EscalationRaised(ctx, 3)
	m.TaskProvisioned(ctx, true)
	m.SweepCompleted(ctx, service.SweepSummary{Scanned: 4, Escalated: 2, Failed: 1}, 250*time.Millisecond)

	got := collect(t, reader)

	transitions := got["compliance.task.transitions"]
	assert.Equal(t, int64(2), sumBy(t, transitions, "outcome", "ok"))
	assert.Equal(t, int64(1), sumBy(t, transitions, "outcome", string(errors.ErrCodePrecondition)))
	assert.Equal(t, int64(2), sumBy(t, transitions, "event", "approve"))

	assert.Equal(t, int64(2), sumBy(t, got["compliance.escalations"], "level", "3"))
	assert.Equal(t, int64(1), sumBy(t, got["compliance.task.provisioned"], "created", "true"))

	sweep := got["compliance.sweep.tasks"]
	assert.Equal(t, int64(4), sumBy(t, sweep, "result", "scanned"))
	assert.Equal(t, int64(1), sumBy(t, sweep, "result", "failed"))

	hist, ok := got["compliance.sweep.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)

	require.NoError(t, m.Shutdown(ctx))
}

func TestMetricsUnknownErrorIsInternal(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := NewWithReader(reader)
	require.NoError(t, err)

	m.TransitionCompleted(context.Background(), service.EventReject, stderrors.New("boom"))
	got := collect(t, reader)
	assert.Equal(t, int64(1), sumBy(t, got["compliance.task.transitions"], "outcome", string(errors.ErrCodeInternal)))
}

func TestNewWithoutEndpoint(t *testing.T) {
	m, err := New(context.Background(), config.TelemetryConfig{}, config.Default().Service)
	require.NoError(t, err)
	m.EscalationRaised(context.Background(), 1)
	assert.NoError(t, m.Shutdown(context.Background()))
}
