package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

// MastersService administers compliance definitions, the employee directory
// and the assignment pool. Writes are admin only.
type MastersService struct {
	compliances ComplianceStore
	employees   EmployeeStore
	pool        PoolStore
	log         *logger.Logger
}

// NewMastersService creates a new masters service
func NewMastersService(
	compliances ComplianceStore,
	employees EmployeeStore,
	pool PoolStore,
	log *logger.Logger,
) *MastersService {
	return &MastersService{
		compliances: compliances,
		employees:   employees,
		pool:        pool,
		log:         log,
	}
}

// CreateComplianceRequest represents a create compliance request
type CreateComplianceRequest struct {
	Name        string
	Category    string
	Department  string
	RiskTier    string
	Frequency   string
	Description *string
}

// CreateEmployeeRequest represents a create employee request
type CreateEmployeeRequest struct {
	Name         string
	Email        string
	Department   string
	Role         string
	SupervisorID *string
}

// ── Compliance definitions ────────────────────────────────────────────────────

// CreateCompliance creates a new, active compliance definition.
func (s *MastersService) CreateCompliance(ctx context.Context, viewer Viewer, req *CreateComplianceRequest) (*repository.ComplianceDefinition, error) {
	if err := requireAdmin(viewer); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	department := strings.TrimSpace(req.Department)
	if department == "" {
		return nil, errors.InvalidInput("department", "department is required")
	}

	def := &repository.ComplianceDefinition{
		Name:        name,
		Category:    strings.TrimSpace(req.Category),
		Department:  department,
		RiskTier:    strings.ToLower(strings.TrimSpace(req.RiskTier)),
		Frequency:   repository.ParseFrequency(req.Frequency),
		Description: req.Description,
		IsActive:    true,
	}
	if err := s.compliances.Create(ctx, def); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("compliance_id", def.ID).
		Str("department", def.Department).
		Str("frequency", string(def.Frequency)).
		Msg("Compliance definition created")
	return def, nil
}

// GetCompliance retrieves a compliance definition.
func (s *MastersService) GetCompliance(ctx context.Context, id string) (*repository.ComplianceDefinition, error) {
	return s.compliances.GetByID(ctx, id)
}

// ListCompliances lists compliance definitions.
func (s *MastersService) ListCompliances(ctx context.Context, activeOnly bool) ([]*repository.ComplianceDefinition, error) {
	return s.compliances.List(ctx, activeOnly)
}

// SetComplianceActive activates or deactivates a definition.
func (s *MastersService) SetComplianceActive(ctx context.Context, viewer Viewer, id string, active bool) error {
	if err := requireAdmin(viewer); err != nil {
		return err
	}
	if err := s.compliances.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.log.Info().Str("compliance_id", id).Bool("active", active).Msg("Compliance definition updated")
	return nil
}

// ── Employees ─────────────────────────────────────────────────────────────────

// CreateEmployee adds an employee to the directory.
func (s *MastersService) CreateEmployee(ctx context.Context, viewer Viewer, req *CreateEmployeeRequest) (*repository.Employee, error) {
	if err := requireAdmin(viewer); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.InvalidInput("name", "name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, errors.InvalidInput("email", "invalid email address")
	}
	department := strings.TrimSpace(req.Department)
	if department == "" {
		return nil, errors.InvalidInput("department", "department is required")
	}

	if req.SupervisorID != nil {
		if _, err := s.employees.GetByID(ctx, *req.SupervisorID); err != nil {
			if errors.Is(err, errors.ErrCodeNotFound) {
				return nil, errors.InvalidInput("supervisor_id", "supervisor does not exist")
			}
			return nil, err
		}
	}

	emp := &repository.Employee{
		Name:         name,
		Email:        strings.ToLower(addr.Address),
		Department:   department,
		Role:         repository.ParseRole(req.Role),
		SupervisorID: req.SupervisorID,
		IsActive:     true,
	}
	if err := s.employees.Create(ctx, emp); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("employee_id", emp.ID).
		Str("role", string(emp.Role)).
		Str("department", emp.Department).
		Msg("Employee created")
	return emp, nil
}

// GetEmployee retrieves a directory entry.
func (s *MastersService) GetEmployee(ctx context.Context, id string) (*repository.Employee, error) {
	return s.employees.GetByID(ctx, id)
}

// ListEmployees lists directory entries.
func (s *MastersService) ListEmployees(ctx context.Context, f repository.EmployeeFilter) ([]*repository.Employee, error) {
	return s.employees.List(ctx, f)
}

// SetEmployeeActive activates or deactivates an employee.
func (s *MastersService) SetEmployeeActive(ctx context.Context, viewer Viewer, id string, active bool) error {
	if err := requireAdmin(viewer); err != nil {
		return err
	}
	if err := s.employees.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.log.Info().Str("employee_id", id).Bool("active", active).Msg("Employee updated")
	return nil
}

// ── Assignment pool ───────────────────────────────────────────────────────────

// Bind makes an employee eligible for a compliance. A second binding of
// the same pair fails with Conflict.
func (s *MastersService) Bind(ctx context.Context, viewer Viewer, employeeID, complianceID string) (*repository.PoolEntry, error) {
	if err := requireAdmin(viewer); err != nil {
		return nil, err
	}
	if employeeID == "" {
		return nil, errors.InvalidInput("employee_id", "employee is required")
	}
	if complianceID == "" {
		return nil, errors.InvalidInput("compliance_id", "compliance is required")
	}

	emp, err := s.employees.GetByID(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	def, err := s.compliances.GetByID(ctx, complianceID)
	if err != nil {
		return nil, err
	}
	if emp.Department != def.Department {
		return nil, errors.InvalidInput("employee_id", "employee belongs to a different department").
			WithDetail("department", def.Department)
	}

	entry := &repository.PoolEntry{EmployeeID: employeeID, ComplianceID: complianceID, Status: repository.PoolActive}
	if err := s.pool.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("pool_entry_id", entry.ID).
		Str("employee_id", employeeID).
		Str("compliance_id", complianceID).
		Msg("Employee bound to compliance")
	return entry, nil
}

// Unbind deactivates a pool entry. Existing tasks are not affected.
func (s *MastersService) Unbind(ctx context.Context, viewer Viewer, entryID string) error {
	if err := requireAdmin(viewer); err != nil {
		return err
	}
	if err := s.pool.SetStatus(ctx, entryID, repository.PoolInactive); err != nil {
		return err
	}
	s.log.Info().Str("pool_entry_id", entryID).Msg("Pool entry deactivated")
	return nil
}

// ListPool lists pool entries for a compliance or an employee. Exactly one
// of the two ids must be set.
func (s *MastersService) ListPool(ctx context.Context, complianceID, employeeID string) ([]*repository.PoolEntry, error) {
	switch {
	case complianceID != "" && employeeID == "":
		return s.pool.ListByCompliance(ctx, complianceID, false)
	case employeeID != "" && complianceID == "":
		return s.pool.ListByEmployee(ctx, employeeID)
	default:
		return nil, errors.InvalidInput("compliance_id", "filter by exactly one of compliance_id or employee_id")
	}
}
