package service

import (
	"context"
	"fmt"
	"time"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

// PeriodKey names the recurrence period that at falls in. Together with the
// compliance and maker it identifies at most one task.
func PeriodKey(freq repository.Frequency, at time.Time) string {
	at = at.UTC()
	switch freq {
	case repository.FrequencyDaily:
		return at.Format("2006-01-02")
	case repository.FrequencyWeekly, repository.FrequencyFortnightly:
		year, week := at.ISOWeek()
		if freq == repository.FrequencyFortnightly {
			week = (week+1)/2*2 - 1
		}
		return fmt.Sprintf("%d-W%02d", year, week)
	case repository.FrequencyMonthly:
		return at.Format("2006-01")
	case repository.FrequencyQuarterly:
		return fmt.Sprintf("%d-Q%d", at.Year(), (int(at.Month())-1)/3+1)
	case repository.FrequencyHalfYearly:
		return fmt.Sprintf("%d-H%d", at.Year(), (int(at.Month())-1)/6+1)
	case repository.FrequencyYearly:
		return fmt.Sprintf("%d", at.Year())
	default:
		return "once"
	}
}

// DueDate computes the due date of a task provisioned at from. Unknown or
// one-time frequencies fall back to fallbackDays.
func DueDate(freq repository.Frequency, from time.Time, fallbackDays int) time.Time {
	day := utcDay(from)
	switch freq {
	case repository.FrequencyDaily:
		return day.AddDate(0, 0, 1)
	case repository.FrequencyWeekly:
		return day.AddDate(0, 0, 7)
	case repository.FrequencyFortnightly:
		return day.AddDate(0, 0, 14)
	case repository.FrequencyMonthly:
		return addMonths(day, 1)
	case repository.FrequencyQuarterly:
		return addMonths(day, 3)
	case repository.FrequencyHalfYearly:
		return addMonths(day, 6)
	case repository.FrequencyYearly:
		return addMonths(day, 12)
	default:
		return day.AddDate(0, 0, fallbackDays)
	}
}

// addMonths adds n months, clamping to the last day of the target month.
func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// ProvisionSummary reports one provisioning run.
type ProvisionSummary struct {
	Scanned int `json:"scanned"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ProvisionRequest names the participants of a task to create.
type ProvisionRequest struct {
	ComplianceID string
	MakerID      string
	// CheckerID, when set, overrides checker resolution.
	CheckerID *string
}

// ProvisioningService materialises task instances from pool entries.
type ProvisioningService struct {
	compliances    ComplianceStore
	employees      EmployeeStore
	pool           PoolStore
	tasks          TaskStore
	events         EventPublisher
	notifier       Notifier
	metrics        Metrics
	now            Clock
	defaultDueDays int
	log            *logger.Logger
}

// ProvisioningOption customises a ProvisioningService.
type ProvisioningOption func(*ProvisioningService)

// WithProvisioningClock overrides the time source.
func WithProvisioningClock(c Clock) ProvisioningOption {
	return func(s *ProvisioningService) { s.now = c }
}

// WithDefaultDueDays sets the due-date fallback for unrecognised frequencies.
func WithDefaultDueDays(days int) ProvisioningOption {
	return func(s *ProvisioningService) {
		if days > 0 {
			s.defaultDueDays = days
		}
	}
}

// WithProvisioningEvents sets the change-feed publisher.
func WithProvisioningEvents(p EventPublisher) ProvisioningOption {
	return func(s *ProvisioningService) { s.events = p }
}

// WithProvisioningNotifier sets the notification intent sink.
func WithProvisioningNotifier(n Notifier) ProvisioningOption {
	return func(s *ProvisioningService) { s.notifier = n }
}

// WithProvisioningMetrics sets the metrics recorder.
func WithProvisioningMetrics(m Metrics) ProvisioningOption {
	return func(s *ProvisioningService) { s.metrics = m }
}

// NewProvisioningService creates a new ProvisioningService.
func NewProvisioningService(
	compliances ComplianceStore,
	employees EmployeeStore,
	pool PoolStore,
	tasks TaskStore,
	log *logger.Logger,
	opts ...ProvisioningOption,
) *ProvisioningService {
	s := &ProvisioningService{
		compliances:    compliances,
		employees:      employees,
		pool:           pool,
		tasks:          tasks,
		events:         noopPublisher{},
		notifier:       noopNotifier{},
		metrics:        noopMetrics{},
		now:            time.Now,
		defaultDueDays: 7,
		log:            log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProvisionAll walks every provisionable pool entry. Failures on single
// entries are logged and counted.
func (s *ProvisioningService) ProvisionAll(ctx context.Context) (ProvisionSummary, error) {
	entries, err := s.pool.ListProvisionable(ctx)
	if err != nil {
		return ProvisionSummary{}, err
	}

	var summary ProvisionSummary
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Scanned++

		task, err := s.ProvisionEntry(ctx, entry)
		switch {
		case err != nil:
			summary.Failed++
			s.log.Error().Err(err).
				Str("pool_entry_id", entry.ID).
				Str("compliance_id", entry.ComplianceID).
				Msg("Provisioning failed")
		case task == nil:
			summary.Skipped++
		default:
			summary.Created++
		}
	}

	s.log.Info().
		Int("scanned", summary.Scanned).
		Int("created", summary.Created).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Provisioning run finished")
	return summary, nil
}

// ProvisionEntry creates the current period's task for one pool entry.
// It returns nil when there is nothing to do: the entry or its definition is
// inactive, the employee is not an active maker, or an open task already
// exists.
func (s *ProvisioningService) ProvisionEntry(ctx context.Context, entry *repository.PoolEntry) (*repository.TaskInstance, error) {
	if entry.Status != repository.PoolActive {
		return nil, nil
	}

	def, err := s.compliances.GetByID(ctx, entry.ComplianceID)
	if err != nil {
		return nil, err
	}
	if !def.IsActive {
		return nil, nil
	}

	emp, err := s.employees.GetByID(ctx, entry.EmployeeID)
	if err != nil {
		return nil, err
	}
	if !emp.IsActive || emp.Role != repository.RoleMaker {
		return nil, nil
	}

	open, err := s.tasks.HasOpenTask(ctx, def.ID, emp.ID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, nil
	}

	return s.create(ctx, def, emp.ID, nil)
}

// Provision creates a task for an explicit maker and optional checker.
// It fails with CONFLICT when the maker already has an open task for the
// compliance or the current period's task exists. It returns nil when a
// concurrent run inserted the period's task first.
func (s *ProvisioningService) Provision(ctx context.Context, req ProvisionRequest) (*repository.TaskInstance, error) {
	if req.MakerID == "" {
		return nil, errors.InvalidInput("maker_id", "maker is required")
	}
	def, err := s.compliances.GetByID(ctx, req.ComplianceID)
	if err != nil {
		return nil, err
	}
	if err := s.CheckProvisionable(ctx, def, req.MakerID); err != nil {
		return nil, err
	}
	return s.create(ctx, def, req.MakerID, req.CheckerID)
}

// CheckProvisionable reports CONFLICT when a new task for the pair would
// duplicate an open task or the current period's task.
func (s *ProvisioningService) CheckProvisionable(ctx context.Context, def *repository.ComplianceDefinition, makerID string) error {
	open, err := s.tasks.HasOpenTask(ctx, def.ID, makerID)
	if err != nil {
		return err
	}
	if open {
		return errors.Conflict("maker already has an open task for this compliance").
			WithDetail("compliance_id", def.ID).
			WithDetail("maker_id", makerID)
	}

	period := PeriodKey(def.Frequency, s.now())
	existing, err := s.tasks.List(ctx, repository.TaskFilter{ComplianceID: def.ID, MakerID: makerID})
	if err != nil {
		return err
	}
	for _, t := range existing {
		if t.Period == period {
			return errors.Conflict("a task for the current period already exists").
				WithDetail("compliance_id", def.ID).
				WithDetail("maker_id", makerID).
				WithDetail("period", period)
		}
	}
	return nil
}

func (s *ProvisioningService) create(ctx context.Context, def *repository.ComplianceDefinition, makerID string, checkerID *string) (*repository.TaskInstance, error) {
	if checkerID == nil {
		resolved, err := s.ResolveChecker(ctx, def, makerID)
		if err != nil {
			return nil, err
		}
		checkerID = resolved
	}
	if checkerID != nil && *checkerID == makerID {
		return nil, errors.InvalidInput("checker_id", "checker must differ from maker")
	}

	now := s.now()
	task := &repository.TaskInstance{
		ComplianceID: def.ID,
		MakerID:      makerID,
		CheckerID:    checkerID,
		Period:       PeriodKey(def.Frequency, now),
		DueDate:      DueDate(def.Frequency, now, s.defaultDueDays),
		Status:       repository.StatusDraft,
	}

	created, err := s.tasks.Insert(ctx, task)
	s.metrics.TaskProvisioned(ctx, created)
	if err != nil {
		return nil, err
	}
	if !created {
		s.log.Debug().
			Str("compliance_id", def.ID).
			Str("maker_id", makerID).
			Str("period", task.Period).
			Msg("Task for period already exists")
		return nil, nil
	}

	s.log.Info().
		Str("task_id", task.ID).
		Str("compliance_id", def.ID).
		Str("maker_id", makerID).
		Str("period", task.Period).
		Time("due_date", task.DueDate).
		Msg("Task provisioned")

	s.notifier.Notify(ctx, Notification{
		Type:        "task_assigned",
		Priority:    PriorityNormal,
		RecipientID: makerID,
		TaskID:      task.ID,
		Message:     fmt.Sprintf("New compliance task %q due %s", def.Name, task.DueDate.Format("2006-01-02")),
	})
	s.events.PublishTaskEvent(ctx, newTaskEvent(EventProvision, task, "", now))
	return task, nil
}

// ResolveChecker picks the checker for a new task: the compliance's
// designated checker if one is bound, otherwise any active checker in the
// definition's department. The maker is never chosen. Nil means none found.
func (s *ProvisioningService) ResolveChecker(ctx context.Context, def *repository.ComplianceDefinition, makerID string) (*string, error) {
	entries, err := s.pool.ListByCompliance(ctx, def.ID, true)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.EmployeeID == makerID {
			continue
		}
		emp, err := s.employees.GetByID(ctx, entry.EmployeeID)
		if errors.Is(err, errors.ErrCodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if emp.IsActive && emp.Role == repository.RoleChecker {
			id := emp.ID
			return &id, nil
		}
	}

	checkers, err := s.employees.List(ctx, repository.EmployeeFilter{
		Department: def.Department,
		Roles:      []repository.Role{repository.RoleChecker},
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	for _, c := range checkers {
		if c.ID != makerID {
			id := c.ID
			return &id, nil
		}
	}

	s.log.Warn().
		Str("compliance_id", def.ID).
		Str("department", def.Department).
		Msg("No checker available; task created without one")
	return nil, nil
}
