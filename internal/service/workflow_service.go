package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

// WorkflowService drives task instances through the maker-checker lifecycle.
// It holds no locks; the store re-checks the expected status at commit time.
type WorkflowService struct {
	tasks       TaskStore
	escalations EscalationStore
	documents   DocumentStore
	notifier    Notifier
	events      EventPublisher
	metrics     Metrics
	now         Clock
	log         *logger.Logger
}

// WorkflowOption customises a WorkflowService.
type WorkflowOption func(*WorkflowService)

// WithWorkflowClock overrides the time source.
func WithWorkflowClock(c Clock) WorkflowOption {
	return func(s *WorkflowService) { s.now = c }
}

// WithNotifier sets the notification intent sink.
func WithNotifier(n Notifier) WorkflowOption {
	return func(s *WorkflowService) { s.notifier = n }
}

// WithEventPublisher sets the change-feed publisher.
func WithEventPublisher(p EventPublisher) WorkflowOption {
	return func(s *WorkflowService) { s.events = p }
}

// WithWorkflowMetrics sets the metrics recorder.
func WithWorkflowMetrics(m Metrics) WorkflowOption {
	return func(s *WorkflowService) { s.metrics = m }
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(
	tasks TaskStore,
	escalations EscalationStore,
	documents DocumentStore,
	log *logger.Logger,
	opts ...WorkflowOption,
) *WorkflowService {
	s := &WorkflowService{
		tasks:       tasks,
		escalations: escalations,
		documents:   documents,
		notifier:    noopNotifier{},
		events:      noopPublisher{},
		metrics:     noopMetrics{},
		now:         time.Now,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Document is an evidence file uploaded with a submission.
type Document struct {
	Name string
	Data []byte
}

// SubmitRequest carries a maker's submission.
type SubmitRequest struct {
	TaskID   string
	Remarks  string
	Document *Document
}

// ── Read path ─────────────────────────────────────────────────────────────────

// ListTasks returns the tasks matching f that viewer may see.
func (s *WorkflowService) ListTasks(ctx context.Context, viewer Viewer, f repository.TaskFilter) ([]*repository.TaskInstance, error) {
	scoped, ok := scopeFor(viewer, f)
	if !ok {
		return []*repository.TaskInstance{}, nil
	}
	tasks, err := s.tasks.List(ctx, scoped)
	if err != nil {
		return nil, err
	}
	return Filter(tasks, viewer), nil
}

// GetTask returns one task. Tasks the viewer may not see are reported as
// not found.
func (s *WorkflowService) GetTask(ctx context.Context, viewer Viewer, id string) (*repository.TaskInstance, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Visible(task, viewer) {
		return nil, errors.NotFound("task", id)
	}
	return task, nil
}

// GetEscalations returns the escalation history of a task the viewer can see.
func (s *WorkflowService) GetEscalations(ctx context.Context, viewer Viewer, taskID string) ([]*repository.EscalationRecord, error) {
	if _, err := s.GetTask(ctx, viewer, taskID); err != nil {
		return nil, err
	}
	return s.escalations.ListByTask(ctx, taskID)
}

// OpenEscalations lists unresolved escalation records, newest first. Admin only.
func (s *WorkflowService) OpenEscalations(ctx context.Context, viewer Viewer, limit int) ([]*repository.EscalationRecord, error) {
	if err := requireAdmin(viewer); err != nil {
		return nil, err
	}
	return s.escalations.ListOpen(ctx, limit)
}

// ── Transitions ───────────────────────────────────────────────────────────────

// Submit moves a draft to submitted. When a document is attached it is
// stored first; a storage failure leaves the task in draft.
func (s *WorkflowService) Submit(ctx context.Context, viewer Viewer, req SubmitRequest) (*repository.TaskInstance, error) {
	task, err := s.tasks.GetByID(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	remarks := strings.TrimSpace(req.Remarks)
	if err := CanTransition(task, EventSubmit, viewer, remarks); err != nil {
		return nil, s.fail(ctx, EventSubmit, err)
	}

	now := s.now()
	patch := repository.TaskPatch{
		Status:              repository.StatusSubmitted,
		MakerRemarks:        &remarks,
		ClearCheckerRemarks: true,
		SubmittedAt:         &now,
	}

	if req.Document != nil && len(req.Document.Data) > 0 {
		ref, err := s.documents.Store(ctx, documentKey(task, req.Document.Name, now), req.Document.Data)
		if err != nil {
			s.log.Warn().Err(err).Str("task_id", task.ID).Msg("Document upload failed; task left in draft")
			return nil, s.fail(ctx, EventSubmit, errors.Unavailable(err, "failed to store document"))
		}
		patch.DocumentRef = &ref
	}

	updated, err := s.tasks.Transition(ctx, task.ID, repository.StatusDraft, patch)
	if err != nil {
		return nil, s.fail(ctx, EventSubmit, err)
	}

	var notes []Notification
	if updated.CheckerID != nil {
		notes = append(notes, Notification{
			Type:        "task_submitted",
			Priority:    PriorityNormal,
			RecipientID: *updated.CheckerID,
			Message:     "A compliance task is awaiting your review",
		})
	}
	s.completed(ctx, EventSubmit, updated, viewer, notes)
	return updated, nil
}

// Approve closes a submitted task as approved.
func (s *WorkflowService) Approve(ctx context.Context, viewer Viewer, taskID, remarks string) (*repository.TaskInstance, error) {
	return s.review(ctx, viewer, taskID, EventApprove, remarks)
}

// Reject closes a submitted task as rejected. The maker may reopen it.
func (s *WorkflowService) Reject(ctx context.Context, viewer Viewer, taskID, remarks string) (*repository.TaskInstance, error) {
	return s.review(ctx, viewer, taskID, EventReject, remarks)
}

// SendBack returns a submitted task to the maker's draft with remarks.
func (s *WorkflowService) SendBack(ctx context.Context, viewer Viewer, taskID, remarks string) (*repository.TaskInstance, error) {
	return s.review(ctx, viewer, taskID, EventSendBack, remarks)
}

func (s *WorkflowService) review(ctx context.Context, viewer Viewer, taskID string, event Event, remarks string) (*repository.TaskInstance, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	remarks = strings.TrimSpace(remarks)
	if err := CanTransition(task, event, viewer, remarks); err != nil {
		return nil, s.fail(ctx, event, err)
	}

	now := s.now()
	patch := repository.TaskPatch{
		Status:         transitions[event].to,
		CheckerRemarks: &remarks,
	}
	notice := Notification{RecipientID: task.MakerID, Priority: PriorityNormal}

	switch event {
	case EventApprove:
		patch.CompletedAt = &now
		notice.Type = "task_approved"
		notice.Message = "Your compliance task was approved"
	case EventReject:
		patch.CompletedAt = &now
		notice.Type = "task_rejected"
		notice.Priority = PriorityHigh
		notice.Message = "Your compliance task was rejected"
	case EventSendBack:
		patch.ClearSubmittedAt = true
		patch.ResetEscalationLevel = true
		notice.Type = "task_sent_back"
		notice.Priority = PriorityHigh
		notice.Message = fmt.Sprintf("Your compliance task was sent back: %s", remarks)
	}

	updated, err := s.tasks.Transition(ctx, task.ID, repository.StatusSubmitted, patch)
	if err != nil {
		return nil, s.fail(ctx, event, err)
	}

	s.completed(ctx, event, updated, viewer, []Notification{notice})
	return updated, nil
}

// Reopen returns a rejected task to draft for resubmission. Prior maker
// remarks are kept for context.
func (s *WorkflowService) Reopen(ctx context.Context, viewer Viewer, taskID string) (*repository.TaskInstance, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(task, EventReopen, viewer, ""); err != nil {
		return nil, s.fail(ctx, EventReopen, err)
	}

	patch := repository.TaskPatch{
		Status:               repository.StatusDraft,
		ClearSubmittedAt:     true,
		ClearCompletedAt:     true,
		ResetEscalationLevel: true,
	}
	updated, err := s.tasks.Transition(ctx, task.ID, repository.StatusRejected, patch)
	if err != nil {
		return nil, s.fail(ctx, EventReopen, err)
	}

	s.completed(ctx, EventReopen, updated, viewer, nil)
	return updated, nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

func (s *WorkflowService) fail(ctx context.Context, event Event, err error) error {
	s.metrics.TransitionCompleted(ctx, event, err)
	return err
}

// completed emits the side effects of a committed transition. None of them
// can fail the caller.
func (s *WorkflowService) completed(ctx context.Context, event Event, t *repository.TaskInstance, viewer Viewer, notes []Notification) {
	s.metrics.TransitionCompleted(ctx, event, nil)

	s.log.Info().
		Str("task_id", t.ID).
		Str("event", string(event)).
		Str("status", string(t.Status)).
		Str("actor_id", viewer.EmployeeID).
		Msg("Task transitioned")

	for _, n := range notes {
		if n.RecipientID == "" || n.RecipientID == viewer.EmployeeID {
			continue
		}
		n.TaskID = t.ID
		n.ActorID = viewer.EmployeeID
		s.notifier.Notify(ctx, n)
	}
	s.events.PublishTaskEvent(ctx, newTaskEvent(event, t, viewer.EmployeeID, s.now()))
}

// documentKey builds a collision-free storage name for an upload.
func documentKey(t *repository.TaskInstance, name string, at time.Time) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "document"
	}
	return fmt.Sprintf("%s/%s/%d-%s", t.ComplianceID, t.ID, at.UnixNano(), base)
}
