package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

// TaskStore is the task persistence the workflow engine depends on.
// repository.TaskRepository implements it.
type TaskStore interface {
	Insert(ctx context.Context, t *repository.TaskInstance) (bool, error)
	GetByID(ctx context.Context, id string) (*repository.TaskInstance, error)
	HasOpenTask(ctx context.Context, complianceID, makerID string) (bool, error)
	List(ctx context.Context, f repository.TaskFilter) ([]*repository.TaskInstance, error)
	ListOpenOverdue(ctx context.Context, asOf time.Time) ([]*repository.TaskInstance, error)
	Transition(ctx context.Context, id string, expected repository.TaskStatus, patch repository.TaskPatch) (*repository.TaskInstance, error)
	RaiseEscalation(ctx context.Context, rec *repository.EscalationRecord) (bool, error)
}

// EmployeeStore is the directory.
type EmployeeStore interface {
	Create(ctx context.Context, e *repository.Employee) error
	GetByID(ctx context.Context, id string) (*repository.Employee, error)
	List(ctx context.Context, f repository.EmployeeFilter) ([]*repository.Employee, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// ComplianceStore holds compliance definition masters.
type ComplianceStore interface {
	Create(ctx context.Context, c *repository.ComplianceDefinition) error
	GetByID(ctx context.Context, id string) (*repository.ComplianceDefinition, error)
	List(ctx context.Context, activeOnly bool) ([]*repository.ComplianceDefinition, error)
	ListUnassigned(ctx context.Context) ([]*repository.ComplianceDefinition, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// PoolStore holds assignment pool bindings.
type PoolStore interface {
	Create(ctx context.Context, p *repository.PoolEntry) error
	GetByID(ctx context.Context, id string) (*repository.PoolEntry, error)
	SetStatus(ctx context.Context, id string, status repository.PoolStatus) error
	Delete(ctx context.Context, id string) error
	ListByCompliance(ctx context.Context, complianceID string, activeOnly bool) ([]*repository.PoolEntry, error)
	ListByEmployee(ctx context.Context, employeeID string) ([]*repository.PoolEntry, error)
	ListProvisionable(ctx context.Context) ([]*repository.PoolEntry, error)
}

// EscalationStore reads the escalation log.
type EscalationStore interface {
	ListByTask(ctx context.Context, taskID string) ([]*repository.EscalationRecord, error)
	ListOpen(ctx context.Context, limit int) ([]*repository.EscalationRecord, error)
}

// DocumentStore persists evidence files and returns an opaque reference.
type DocumentStore interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
}

// Notifier delivers notification intents. Implementations never fail the
// caller; delivery problems are logged.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// EventPublisher announces task changes on the change feed. Advisory only.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, ev TaskEvent)
}

// Metrics records workflow counters.
type Metrics interface {
	TransitionCompleted(ctx context.Context, event Event, err error)
	EscalationRaised(ctx context.Context, level int)
	TaskProvisioned(ctx context.Context, created bool)
	SweepCompleted(ctx context.Context, summary SweepSummary, elapsed time.Duration)
}

// Clock returns the current time. Injected for tests.
type Clock func() time.Time

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) {}

type noopPublisher struct{}

func (noopPublisher) PublishTaskEvent(context.Context, TaskEvent) {}

type noopMetrics struct{}

func (noopMetrics) TransitionCompleted(context.Context, Event, error) {}
func (noopMetrics) EscalationRaised(context.Context, int) {}
func (noopMetrics) TaskProvisioned(context.Context, bool) {}
func (noopMetrics) SweepCompleted(context.Context, SweepSummary, time.Duration) {}
