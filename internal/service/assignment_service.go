package service

import (
	"context"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

// Candidates are the eligible participants for one compliance definition.
// A given employee appears in at most one list.
type Candidates struct {
	Compliance *repository.ComplianceDefinition `json:"compliance"`
	Makers     []*repository.Employee           `json:"makers"`
	Checkers   []*repository.Employee           `json:"checkers"`
}

// AssignRequest is an admin's choice of participants.
type AssignRequest struct {
	ComplianceID string
	MakerID      string
	CheckerID    *string
}

// Assignment is the outcome of a successful Assign.
type Assignment struct {
	Task        *repository.TaskInstance `json:"task"`
	PoolEntries []*repository.PoolEntry  `json:"pool_entries"`
}

// AssignmentService suggests and applies maker/checker assignments for
// compliances nobody is working on. Candidates never cross departments.
type AssignmentService struct {
	compliances ComplianceStore
	employees   EmployeeStore
	pool        PoolStore
	provisioner *ProvisioningService
	log         *logger.Logger
}

// NewAssignmentService creates a new AssignmentService.
func NewAssignmentService(
	compliances ComplianceStore,
	employees EmployeeStore,
	pool PoolStore,
	provisioner *ProvisioningService,
	log *logger.Logger,
) *AssignmentService {
	return &AssignmentService{
		compliances: compliances,
		employees:   employees,
		pool:        pool,
		provisioner: provisioner,
		log:         log,
	}
}

// Unassigned lists active definitions with no open task.
func (s *AssignmentService) Unassigned(ctx context.Context, viewer Viewer) ([]*repository.ComplianceDefinition, error) {
	if err := requireAdmin(viewer); err != nil {
		return nil, err
	}
	return s.compliances.ListUnassigned(ctx)
}

// Candidates returns the active makers and checkers in the definition's
// department.
func (s *AssignmentService) Candidates(ctx context.Context, viewer Viewer, complianceID string) (*Candidates, error) {
	if err := requireAdmin(viewer); err != nil {
		return nil, err
	}
	return s.candidates(ctx, complianceID)
}

func (s *AssignmentService) candidates(ctx context.Context, complianceID string) (*Candidates, error) {
	def, err := s.compliances.GetByID(ctx, complianceID)
	if err != nil {
		return nil, err
	}

	staff, err := s.employees.List(ctx, repository.EmployeeFilter{
		Department: def.Department,
		Roles:      []repository.Role{repository.RoleMaker, repository.RoleChecker},
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}

	c := &Candidates{
		Compliance: def,
		Makers:     make([]*repository.Employee, 0),
		Checkers:   make([]*repository.Employee, 0),
	}
	for _, e := range staff {
		if !e.IsActive || e.Department != def.Department {
			continue
		}
		switch e.Role {
		case repository.RoleMaker:
			c.Makers = append(c.Makers, e)
		case repository.RoleChecker:
			c.Checkers = append(c.Checkers, e)
		}
	}
	return c, nil
}

// Assign binds the chosen maker (and checker) to the compliance and
// provisions the current period's task.
func (s *AssignmentService) Assign(ctx context.Context, viewer Viewer, req AssignRequest) (*Assignment, error) {
	if err := requireAdmin(viewer); err != nil {
		return nil, err
	}

	cands, err := s.candidates(ctx, req.ComplianceID)
	if err != nil {
		return nil, err
	}
	if len(cands.Makers) == 0 {
		return nil, errors.InvalidInput("maker_id", "no active makers in department").
			WithDetail("department", cands.Compliance.Department)
	}
	if req.MakerID == "" {
		return nil, errors.InvalidInput("maker_id", "maker is required")
	}
	if !containsEmployee(cands.Makers, req.MakerID) {
		return nil, errors.InvalidInput("maker_id", "maker is not an eligible candidate").
			WithDetail("department", cands.Compliance.Department)
	}
	if req.CheckerID != nil {
		if *req.CheckerID == req.MakerID {
			return nil, errors.InvalidInput("checker_id", "checker must differ from maker")
		}
		if !containsEmployee(cands.Checkers, *req.CheckerID) {
			return nil, errors.InvalidInput("checker_id", "checker is not an eligible candidate").
				WithDetail("department", cands.Compliance.Department)
		}
	}

	if err := s.provisioner.CheckProvisionable(ctx, cands.Compliance, req.MakerID); err != nil {
		return nil, err
	}

	result := &Assignment{PoolEntries: make([]*repository.PoolEntry, 0, 2)}
	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	ids := []string{req.MakerID}
	if req.CheckerID != nil {
		ids = append(ids, *req.CheckerID)
	}
	for _, id := range ids {
		entry, revert, err := s.bind(ctx, id, req.ComplianceID)
		if err != nil {
			rollback()
			return nil, err
		}
		if revert != nil {
			undo = append(undo, revert)
		}
		result.PoolEntries = append(result.PoolEntries, entry)
	}

	task, err := s.provisioner.Provision(ctx, ProvisionRequest{
		ComplianceID: req.ComplianceID,
		MakerID:      req.MakerID,
		CheckerID:    req.CheckerID,
	})
	if err == nil && task == nil {
		err = errors.Conflict("a task for the current period already exists").
			WithDetail("compliance_id", req.ComplianceID).
			WithDetail("maker_id", req.MakerID)
	}
	if err != nil {
		rollback()
		return nil, err
	}
	result.Task = task

	s.log.Info().
		Str("compliance_id", req.ComplianceID).
		Str("maker_id", req.MakerID).
		Str("task_id", task.ID).
		Str("admin_id", viewer.EmployeeID).
		Msg("Compliance assigned")
	return result, nil
}

// bind ensures an active pool entry exists for the pair. The returned revert
// func, when non-nil, undoes whatever bind changed.
func (s *AssignmentService) bind(ctx context.Context, employeeID, complianceID string) (*repository.PoolEntry, func(), error) {
	entries, err := s.pool.ListByCompliance(ctx, complianceID, false)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.EmployeeID != employeeID {
			continue
		}
		if e.Status == repository.PoolActive {
			return e, nil, nil
		}
		prev := e.Status
		if err := s.pool.SetStatus(ctx, e.ID, repository.PoolActive); err != nil {
			return nil, nil, err
		}
		e.Status = repository.PoolActive
		return e, func() { s.restore(ctx, e.ID, prev) }, nil
	}

	entry := &repository.PoolEntry{EmployeeID: employeeID, ComplianceID: complianceID, Status: repository.PoolActive}
	if err := s.pool.Create(ctx, entry); err != nil {
		return nil, nil, err
	}
	return entry, func() { s.remove(ctx, entry.ID) }, nil
}

func (s *AssignmentService) restore(ctx context.Context, id string, status repository.PoolStatus) {
	if err := s.pool.SetStatus(ctx, id, status); err != nil {
		s.log.Error().Err(err).Str("pool_entry_id", id).Msg("Failed to restore pool binding")
	}
}

func (s *AssignmentService) remove(ctx context.Context, id string) {
	if err := s.pool.Delete(ctx, id); err != nil {
		s.log.Error().Err(err).Str("pool_entry_id", id).Msg("Failed to remove pool binding")
	}
}

func containsEmployee(list []*repository.Employee, id string) bool {
	for _, e := range list {
		if e.ID == id {
			return true
		}
	}
	return false
}

func requireAdmin(viewer Viewer) error {
	if !viewer.IsAdmin() {
		return errors.Forbidden("admin role required").WithDetail("actor_id", viewer.EmployeeID)
	}
	return nil
}
