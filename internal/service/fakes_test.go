package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

// ── tasks + escalation log ───────────────────────────────────────────────────

type fakeTasks struct {
	mu        sync.Mutex
	tasks     map[string]*repository.TaskInstance
	records   []*repository.EscalationRecord
	seq       int
	raiseErr  map[string]error
	listErr   error
	insertErr error
	transHook func(id string)
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: map[string]*repository.TaskInstance{}, raiseErr: map[string]error{}}
}

func (f *fakeTasks) put(t *repository.TaskInstance) *repository.TaskInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		f.seq++
		t.ID = fmt.Sprintf("t-%d", f.seq)
	}
	f.tasks[t.ID] = t
	cp := *t
	return &cp
}

func (f *fakeTasks) get(id string) *repository.TaskInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.tasks[id]
	return &cp
}

func (f *fakeTasks) Insert(_ context.Context, t *repository.TaskInstance) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, f.insertErr
	}
	for _, existing := range f.tasks {
		if existing.ComplianceID == t.ComplianceID && existing.MakerID == t.MakerID && existing.Period == t.Period {
			return false, nil
		}
	}
	f.seq++
	t.ID = fmt.Sprintf("t-%d", f.seq)
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	f.tasks[t.ID] = &cp
	return true, nil
}

func (f *fakeTasks) GetByID(_ context.Context, id string) (*repository.TaskInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, errors.NotFound("task", id)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTasks) HasOpenTask(_ context.Context, complianceID, makerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ComplianceID == complianceID && t.MakerID == makerID && t.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTasks) List(_ context.Context, flt repository.TaskFilter) ([]*repository.TaskInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*repository.TaskInstance, 0)
	for _, t := range f.tasks {
		if flt.MakerID != "" && t.MakerID != flt.MakerID {
			continue
		}
		if flt.CheckerID != "" && !t.HasChecker(flt.CheckerID) {
			continue
		}
		if flt.ComplianceID != "" && t.ComplianceID != flt.ComplianceID {
			continue
		}
		if len(flt.Statuses) > 0 && !hasStatus(flt.Statuses, t.Status) {
			continue
		}
		if flt.DueBefore != nil && !t.DueDate.Before(*flt.DueBefore) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func hasStatus(list []repository.TaskStatus, s repository.TaskStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (f *fakeTasks) ListOpenOverdue(ctx context.Context, asOf time.Time) ([]*repository.TaskInstance, error) {
	return f.List(ctx, repository.TaskFilter{Statuses: repository.OpenStatuses, DueBefore: &asOf})
}

func (f *fakeTasks) Transition(_ context.Context, id string, expected repository.TaskStatus, p repository.TaskPatch) (*repository.TaskInstance, error) {
	if f.transHook != nil {
		f.transHook(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, errors.NotFound("task", id)
	}
	if t.Status != expected {
		return nil, errors.Precondition("task is no longer " + string(expected))
	}

	t.Status = p.Status
	if p.MakerRemarks != nil {
		t.MakerRemarks = p.MakerRemarks
	}
	if p.CheckerRemarks != nil {
		t.CheckerRemarks = p.CheckerRemarks
	} else if p.ClearCheckerRemarks {
		t.CheckerRemarks = nil
	}
	if p.DocumentRef != nil {
		t.DocumentRef = p.DocumentRef
	}
	if p.SubmittedAt != nil {
		t.SubmittedAt = p.SubmittedAt
	} else if p.ClearSubmittedAt {
		t.SubmittedAt = nil
	}
	if p.CompletedAt != nil {
		t.CompletedAt = p.CompletedAt
	} else if p.ClearCompletedAt {
		t.CompletedAt = nil
	}
	if p.ResetEscalationLevel {
		t.EscalationLevel = 0
	}
	if p.Status.IsTerminal() || p.ResetEscalationLevel {
		now := time.Now()
		for _, r := range f.records {
			if r.TaskID == id && r.Status == repository.EscalationOpen {
				r.Status = repository.EscalationResolved
				r.ResolvedAt = &now
			}
		}
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTasks) RaiseEscalation(_ context.Context, rec *repository.EscalationRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.raiseErr[rec.TaskID]; err != nil {
		return false, err
	}
	t, ok := f.tasks[rec.TaskID]
	if !ok || t.EscalationLevel >= rec.Level || !t.Status.IsOpen() {
		return false, nil
	}
	t.EscalationLevel = rec.Level
	rec.ID = fmt.Sprintf("e-%d", len(f.records)+1)
	rec.CreatedAt = time.Now()
	cp := *rec
	f.records = append(f.records, &cp)
	return true, nil
}

func (f *fakeTasks) ListByTask(_ context.Context, taskID string) ([]*repository.EscalationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.EscalationRecord, 0)
	for _, r := range f.records {
		if r.TaskID == taskID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeTasks) ListOpen(_ context.Context, limit int) ([]*repository.EscalationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.EscalationRecord, 0)
	for _, r := range f.records {
		if r.Status == repository.EscalationOpen && len(out) < limit {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ── directory ────────────────────────────────────────────────────────────────

type fakeEmployees struct {
	mu   sync.Mutex
	byID map[string]*repository.Employee
	seq  int
}

func newFakeEmployees(emps ...*repository.Employee) *fakeEmployees {
	f := &fakeEmployees{byID: map[string]*repository.Employee{}}
	for _, e := range emps {
		f.byID[e.ID] = e
	}
	return f
}

func (f *fakeEmployees) Create(_ context.Context, e *repository.Employee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == e.Email {
			return errors.Conflict("email already registered")
		}
	}
	f.seq++
	e.ID = fmt.Sprintf("emp-%d", f.seq)
	f.byID[e.ID] = e
	return nil
}

func (f *fakeEmployees) GetByID(_ context.Context, id string) (*repository.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, errors.NotFound("employee", id)
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEmployees) List(_ context.Context, flt repository.EmployeeFilter) ([]*repository.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.Employee, 0)
	for _, e := range f.byID {
		if flt.Department != "" && e.Department != flt.Department {
			continue
		}
		if flt.ActiveOnly && !e.IsActive {
			continue
		}
		if len(flt.Roles) > 0 {
			match := false
			for _, r := range flt.Roles {
				if e.Role == r {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeEmployees) SetActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return errors.NotFound("employee", id)
	}
	e.IsActive = active
	return nil
}

// ── compliance definitions ───────────────────────────────────────────────────

type fakeCompliances struct {
	mu    sync.Mutex
	byID  map[string]*repository.ComplianceDefinition
	tasks *fakeTasks
	seq   int
}

func newFakeCompliances(tasks *fakeTasks, defs ...*repository.ComplianceDefinition) *fakeCompliances {
	f := &fakeCompliances{byID: map[string]*repository.ComplianceDefinition{}, tasks: tasks}
	for _, d := range defs {
		f.byID[d.ID] = d
	}
	return f
}

func (f *fakeCompliances) Create(_ context.Context, c *repository.ComplianceDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	c.ID = fmt.Sprintf("c-new-%d", f.seq)
	f.byID[c.ID] = c
	return nil
}

func (f *fakeCompliances) GetByID(_ context.Context, id string) (*repository.ComplianceDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, errors.NotFound("compliance", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCompliances) List(_ context.Context, activeOnly bool) ([]*repository.ComplianceDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.ComplianceDefinition, 0)
	for _, c := range f.byID {
		if activeOnly && !c.IsActive {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCompliances) ListUnassigned(ctx context.Context) ([]*repository.ComplianceDefinition, error) {
	all, _ := f.List(ctx, true)
	open, _ := f.tasks.List(ctx, repository.TaskFilter{Statuses: repository.OpenStatuses})
	out := make([]*repository.ComplianceDefinition, 0)
	for _, c := range all {
		busy := false
		for _, t := range open {
			if t.ComplianceID == c.ID {
				busy = true
			}
		}
		if !busy {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCompliances) SetActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return errors.NotFound("compliance", id)
	}
	c.IsActive = active
	return nil
}

// ── assignment pool ──────────────────────────────────────────────────────────

type fakePool struct {
	mu      sync.Mutex
	seq     int
	entries []*repository.PoolEntry
}

func (f *fakePool) Create(_ context.Context, p *repository.PoolEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.EmployeeID == p.EmployeeID && e.ComplianceID == p.ComplianceID {
			return errors.Conflict("employee already bound to compliance")
		}
	}
	if p.Status == "" {
		p.Status = repository.PoolActive
	}
	f.seq++
	p.ID = fmt.Sprintf("p-%d", f.seq)
	cp := *p
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakePool) GetByID(_ context.Context, id string) (*repository.PoolEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, errors.NotFound("pool_entry", id)
}

func (f *fakePool) SetStatus(_ context.Context, id string, status repository.PoolStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			e.Status = status
			return nil
		}
	}
	return errors.NotFound("pool_entry", id)
}

func (f *fakePool) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return errors.NotFound("pool_entry", id)
}

func (f *fakePool) ListByCompliance(_ context.Context, complianceID string, activeOnly bool) ([]*repository.PoolEntry, error) {
	return f.filter(func(e *repository.PoolEntry) bool {
		return e.ComplianceID == complianceID && (!activeOnly || e.Status == repository.PoolActive)
	}), nil
}

func (f *fakePool) ListByEmployee(_ context.Context, employeeID string) ([]*repository.PoolEntry, error) {
	return f.filter(func(e *repository.PoolEntry) bool { return e.EmployeeID == employeeID }), nil
}

func (f *fakePool) ListProvisionable(_ context.Context) ([]*repository.PoolEntry, error) {
	return f.filter(func(e *repository.PoolEntry) bool { return e.Status == repository.PoolActive }), nil
}

func (f *fakePool) filter(keep func(*repository.PoolEntry) bool) []*repository.PoolEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.PoolEntry, 0)
	for _, e := range f.entries {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// ── side-effect sinks ────────────────────────────────────────────────────────

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.RecipientID)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []TaskEvent
}

func (r *recordingPublisher) PublishTaskEvent(_ context.Context, ev TaskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type fakeDocuments struct {
	err    error
	stored map[string][]byte
}

func (f *fakeDocuments) Store(_ context.Context, name string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.stored == nil {
		f.stored = map[string][]byte{}
	}
	f.stored[name] = data
	return "fs://" + name, nil
}

// ── fixtures ─────────────────────────────────────────────────────────────────

var testNow = time.Date(2026, 10, 16, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func strPtr(s string) *string { return &s }

func day(offset int) time.Time {
	return time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func makerM() Viewer   { return Viewer{EmployeeID: "m-1", Role: repository.RoleMaker} }
func checkerC() Viewer { return Viewer{EmployeeID: "k-1", Role: repository.RoleChecker} }
func adminA() Viewer   { return Viewer{EmployeeID: "a-1", Role: repository.RoleAdmin} }

func draftTask() *repository.TaskInstance {
	return &repository.TaskInstance{
		ComplianceID: "c-1",
		MakerID:      "m-1",
		CheckerID:    strPtr("k-1"),
		Period:       "2026-10",
		DueDate:      day(2),
		Status:       repository.StatusDraft,
	}
}

func nopLog() *logger.Logger { return logger.Nop() }
