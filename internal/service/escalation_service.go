package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

// Escalation tiers by days overdue.
const (
	TargetSupervisor     = "maker's direct supervisor"
	TargetDepartmentHead = "department head"
	TargetExecutive      = "compliance-officer/executive tier"
)

var escalationTiers = []struct {
	minDays int
	level   int
	target  string
}{
	{5, 3, TargetExecutive},
	{3, 2, TargetDepartmentHead},
	{1, 1, TargetSupervisor},
}

// ComputeLevel maps days overdue to an escalation level and target.
// Level 0 has no target.
func ComputeLevel(daysOverdue int) (int, string) {
	for _, tier := range escalationTiers {
		if daysOverdue >= tier.minDays {
			return tier.level, tier.target
		}
	}
	return 0, ""
}

// DaysOverdue counts whole UTC calendar days from due to now, never negative.
func DaysOverdue(due, now time.Time) int {
	days := int(utcDay(now).Sub(utcDay(due)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SweepSummary reports one escalation sweep.
type SweepSummary struct {
	Scanned   int `json:"scanned"`
	Escalated int `json:"escalated"`
	Failed    int `json:"failed"`
}

// EscalationService raises escalation levels on overdue open tasks.
type EscalationService struct {
	tasks     TaskStore
	employees EmployeeStore
	notifier  Notifier
	events    EventPublisher
	metrics   Metrics
	now       Clock
	workers   int
	log       *logger.Logger
}

// EscalationOption customises an EscalationService.
type EscalationOption func(*EscalationService)

// WithEscalationClock overrides the time source.
func WithEscalationClock(c Clock) EscalationOption {
	return func(s *EscalationService) { s.now = c }
}

// WithWorkers bounds the number of tasks evaluated concurrently.
func WithWorkers(n int) EscalationOption {
	return func(s *EscalationService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithEscalationNotifier sets the notification intent sink.
func WithEscalationNotifier(n Notifier) EscalationOption {
	return func(s *EscalationService) { s.notifier = n }
}

// WithEscalationEvents sets the change-feed publisher.
func WithEscalationEvents(p EventPublisher) EscalationOption {
	return func(s *EscalationService) { s.events = p }
}

// WithEscalationMetrics sets the metrics recorder.
func WithEscalationMetrics(m Metrics) EscalationOption {
	return func(s *EscalationService) { s.metrics = m }
}

// NewEscalationService creates a new EscalationService.
func NewEscalationService(tasks TaskStore, employees EmployeeStore, log *logger.Logger, opts ...EscalationOption) *EscalationService {
	s := &EscalationService{
		tasks:     tasks,
		employees: employees,
		notifier:  noopNotifier{},
		events:    noopPublisher{},
		metrics:   noopMetrics{},
		now:       time.Now,
		workers:   4,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep evaluates every open overdue task. A failure on one task is logged
// and counted; the sweep carries on. The returned error is non-nil only when
// the work list cannot be read or ctx is cancelled.
func (s *EscalationService) Sweep(ctx context.Context) (SweepSummary, error) {
	start := s.now()
	tasks, err := s.tasks.ListOpenOverdue(ctx, utcDay(start))
	if err != nil {
		return SweepSummary{}, err
	}

	var escalated, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.workers)

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		task := task
		g.Go(func() error {
			raised, err := s.EvaluateTask(ctx, task)
			if err != nil {
				failed.Add(1)
				s.log.Error().Err(err).Str("task_id", task.ID).Msg("Escalation evaluation failed")
				return nil
			}
			if raised {
				escalated.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := SweepSummary{
		Scanned:   len(tasks),
		Escalated: int(escalated.Load()),
		Failed:    int(failed.Load()),
	}
	elapsed := s.now().Sub(start)
	s.metrics.SweepCompleted(ctx, summary, elapsed)

	s.log.Info().
		Int("scanned", summary.Scanned).
		Int("escalated", summary.Escalated).
		Int("failed", summary.Failed).
		Dur("elapsed", elapsed).
		Msg("Escalation sweep finished")

	return summary, ctx.Err()
}

// EvaluateByID evaluates a single task on demand.
func (s *EscalationService) EvaluateByID(ctx context.Context, taskID string) (bool, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return false, err
	}
	return s.EvaluateTask(ctx, task)
}

// EvaluateTask raises the task's escalation level if its overdue days call
// for a higher one. Terminal tasks and tasks already at or above the computed
// level are left alone. It reports whether a new record was written.
func (s *EscalationService) EvaluateTask(ctx context.Context, task *repository.TaskInstance) (bool, error) {
	if !task.Status.IsOpen() {
		return false, nil
	}

	days := DaysOverdue(task.DueDate, s.now())
	level, target := ComputeLevel(days)
	if level <= task.EscalationLevel {
		return false, nil
	}

	rec := &repository.EscalationRecord{
		TaskID: task.ID,
		Level:  level,
		Target: target,
		Reason: fmt.Sprintf("%d days overdue", days),
		Status: repository.EscalationOpen,
	}
	raised, err := s.tasks.RaiseEscalation(ctx, rec)
	if err != nil {
		return false, err
	}
	if !raised {
		// Another writer got there first or the task closed meanwhile.
		return false, nil
	}

	s.metrics.EscalationRaised(ctx, level)
	s.log.Info().
		Str("task_id", task.ID).
		Int("from_level", task.EscalationLevel).
		Int("to_level", level).
		Str("target", target).
		Msg("Task escalated")

	escalated := *task
	escalated.EscalationLevel = level
	s.notifyEscalation(ctx, &escalated, rec)
	s.events.PublishTaskEvent(ctx, newTaskEvent(EventEscalate, &escalated, "", s.now()))
	return true, nil
}

func (s *EscalationService) notifyEscalation(ctx context.Context, task *repository.TaskInstance, rec *repository.EscalationRecord) {
	priority := PriorityHigh
	if rec.Level >= 3 {
		priority = PriorityUrgent
	}
	msg := fmt.Sprintf("Compliance task escalated to level %d (%s): %s", rec.Level, rec.Target, rec.Reason)

	s.notifier.Notify(ctx, Notification{
		Type:        "task_escalated",
		Priority:    priority,
		RecipientID: task.MakerID,
		TaskID:      task.ID,
		Message:     msg,
	})

	if rec.Level != 1 || s.employees == nil {
		return
	}
	maker, err := s.employees.GetByID(ctx, task.MakerID)
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", task.ID).Msg("Could not resolve maker supervisor")
		return
	}
	if maker.SupervisorID == nil {
		return
	}
	s.notifier.Notify(ctx, Notification{
		Type:        "task_escalated",
		Priority:    priority,
		RecipientID: *maker.SupervisorID,
		TaskID:      task.ID,
		Message:     msg,
	})
}
