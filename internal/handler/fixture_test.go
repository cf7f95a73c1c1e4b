package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-compliance-tasks/internal/documents"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
	"github.com/pesio-ai/be-compliance-tasks/internal/service"
)

// memTasks is a minimal in-memory task store for transport tests.
type memTasks struct {
	mu    sync.Mutex
	tasks map[string]*repository.TaskInstance
	log   []*repository.EscalationRecord
}

func (m *memTasks) Insert(_ context.Context, t *repository.TaskInstance) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return true, nil
}

func (m *memTasks) GetByID(_ context.Context, id string) (*repository.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, errors.NotFound("task", id)
	}
	cp := *t
	return &cp, nil
}

func (m *memTasks) HasOpenTask(context.Context, string, string) (bool, error) { return false, nil }

func (m *memTasks) List(_ context.Context, f repository.TaskFilter) ([]*repository.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.TaskInstance
	for _, id := range []string{"t-1", "t-2", "t-3"} {
		t, ok := m.tasks[id]
		if !ok {
			continue
		}
		if f.MakerID != "" && t.MakerID != f.MakerID {
			continue
		}
		if f.CheckerID != "" && !t.HasChecker(f.CheckerID) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memTasks) ListOpenOverdue(context.Context, time.Time) ([]*repository.TaskInstance, error) {
	return nil, nil
}

func (m *memTasks) Transition(_ context.Context, id string, expected repository.TaskStatus, p repository.TaskPatch) (*repository.TaskInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, errors.NotFound("task", id)
	}
	if t.Status != expected {
		return nil, errors.Precondition("task changed concurrently")
	}
	t.Status = p.Status
	if p.MakerRemarks != nil {
		t.MakerRemarks = p.MakerRemarks
	}
	if p.CheckerRemarks != nil {
		t.CheckerRemarks = p.CheckerRemarks
	}
	if p.DocumentRef != nil {
		t.DocumentRef = p.DocumentRef
	}
	if p.SubmittedAt != nil {
		t.SubmittedAt = p.SubmittedAt
	}
	if p.CompletedAt != nil {
		t.CompletedAt = p.CompletedAt
	}
	cp := *t
	return &cp, nil
}

func (m *memTasks) RaiseEscalation(context.Context, *repository.EscalationRecord) (bool, error) {
	return false, nil
}

func (m *memTasks) ListByTask(_ context.Context, taskID string) ([]*repository.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*repository.EscalationRecord{}
	for _, r := range m.log {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memTasks) ListOpen(context.Context, int) ([]*repository.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*repository.EscalationRecord{}, m.log...), nil
}

type noEmployees struct{}

func (noEmployees) Create(context.Context, *repository.Employee) error { return nil }
func (noEmployees) GetByID(_ context.Context, id string) (*repository.Employee, error) {
	return nil, errors.NotFound("employee", id)
}
func (noEmployees) List(context.Context, repository.EmployeeFilter) ([]*repository.Employee, error) {
	return nil, nil
}
func (noEmployees) SetActive(context.Context, string, bool) error { return nil }

type fixture struct {
	tasks *memTasks
	docs  *documents.FileStore
	svc   Services
}

func strPtr(s string) *string { return &s }

// newFixture seeds three tasks: t-1 draft, t-2 submitted, t-3 rejected. m-1
// makes all of them and c-1 checks them.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mt := &memTasks{tasks: map[string]*repository.TaskInstance{}}
	for id, st := range map[string]repository.TaskStatus{
		"t-1": repository.StatusDraft,
		"t-2": repository.StatusSubmitted,
		"t-3": repository.StatusRejected,
	} {
		mt.tasks[id] = &repository.TaskInstance{
			ID:           id,
			ComplianceID: "c-1",
			MakerID:      "m-1",
			CheckerID:    strPtr("c-1"),
			Period:       "2026-03",
			DueDate:      due,
			Status:       st,
		}
	}
	mt.log = []*repository.EscalationRecord{{ID: "e-1", TaskID: "t-1", Level: 1, Target: "m-1", Status: repository.EscalationOpen}}

	docs, err := documents.NewFileStore(t.TempDir())
	require.NoError(t, err)

	log := logger.Nop()
	clock := func() time.Time { return time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC) }
	svc := Services{
		Workflow:   service.NewWorkflowService(mt, mt, docs, log, service.WithWorkflowClock(clock)),
		Escalation: service.NewEscalationService(mt, noEmployees{}, log),
		Documents:  docs,
	}
	return &fixture{tasks: mt, docs: docs, svc: svc}
}
