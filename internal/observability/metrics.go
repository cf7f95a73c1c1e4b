// Package observability exports workflow metrics over OpenTelemetry.
package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/config"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/service"
)

const meterName = "github.com/pesio-ai/be-compliance-tasks"

// Metrics records workflow activity. It satisfies service.Metrics.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	transitions   metric.Int64Counter
	escalations   metric.Int64Counter
	provisioned   metric.Int64Counter
	sweepTasks    metric.Int64Counter
	sweepDuration metric.Float64Histogram
}

var _ service.Metrics = (*Metrics)(nil)

// New creates the meter provider. With no OTLP endpoint configured the
// instruments still work but nothing is exported.
func New(ctx context.Context, cfg config.TelemetryConfig, svc config.ServiceConfig) (*Metrics, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", svc.Name),
			attribute.String("service.version", svc.Version),
			attribute.String("deployment.environment", svc.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		interval := cfg.Interval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
	}

	return newMetrics(sdkmetric.NewMeterProvider(opts...))
}

// NewWithReader creates metrics backed by the given reader.
func NewWithReader(reader sdkmetric.Reader) (*Metrics, error) {
	return newMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
}

func newMetrics(provider *sdkmetric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)
	m := &Metrics{provider: provider}

	var err error
	if m.transitions, err = meter.Int64Counter("compliance.task.transitions",
		metric.WithDescription("Workflow transitions attempted, by event and outcome"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}
	if m.escalations, err = meter.Int64Counter("compliance.escalations",
		metric.WithDescription("Escalation records written, by level"),
		metric.WithUnit("{escalation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create escalations counter: %w", err)
	}
	if m.provisioned, err = meter.Int64Counter("compliance.task.provisioned",
		metric.WithDescription("Provisioning attempts, by whether a task was created"),
		metric.WithUnit("{task}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create provisioned counter: %w", err)
	}
	if m.sweepTasks, err = meter.Int64Counter("compliance.sweep.tasks",
		metric.WithDescription("Tasks handled by escalation sweeps, by result"),
		metric.WithUnit("{task}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sweep counter: %w", err)
	}
	if m.sweepDuration, err = meter.Float64Histogram("compliance.sweep.duration",
		metric.WithDescription("Escalation sweep duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60),
	); err != nil {
		return nil, fmt.Errorf("failed to create sweep histogram: %w", err)
	}
	return m, nil
}

// Shutdown flushes and stops the provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

func (m *Metrics) TransitionCompleted(ctx context.Context, event service.Event, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(errors.CodeOf(err))
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", string(event)),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) EscalationRaised(ctx context.Context, level int) {
	m.escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("level", strconv.Itoa(level))))
}

func (m *Metrics) TaskProvisioned(ctx context.Context, created bool) {
	m.provisioned.Add(ctx, 1, metric.WithAttributes(attribute.Bool("created", created)))
}

func (m *Metrics) SweepCompleted(ctx context.Context, summary service.SweepSummary, elapsed time.Duration) {
	m.sweepDuration.Record(ctx, elapsed.Seconds())
	for result, n := range map[string]int{
		"scanned":   summary.Scanned,
		"escalated": summary.Escalated,
		"failed":    summary.Failed,
	} {
		if n > 0 {
			m.sweepTasks.Add(ctx, int64(n), metric.WithAttributes(attribute.String("result", result)))
		}
	}
}
