package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/database"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
)

// PoolRepository manages employee ↔ compliance eligibility bindings.
// (employee_id, compliance_id) is unique.
type PoolRepository struct {
	db *database.DB
}

// NewPoolRepository creates a new PoolRepository.
func NewPoolRepository(db *database.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

const poolColumns = `id, employee_id, compliance_id, status, created_at, updated_at`

// Create inserts a binding. A duplicate (employee, compliance) pair fails
// with a Conflict error.
func (r *PoolRepository) Create(ctx context.Context, p *PoolEntry) error {
	if p.Status == "" {
		p.Status = PoolActive
	}
	query := `
		INSERT INTO assignment_pool (employee_id, compliance_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, p.EmployeeID, p.ComplianceID, string(p.Status)).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(database.Classify(err, ""), errors.ErrCodeConflict) {
			return errors.Conflict("employee already bound to compliance").
				WithDetail("employee_id", p.EmployeeID).
				WithDetail("compliance_id", p.ComplianceID)
		}
		return database.Classify(err, "failed to create pool entry")
	}
	return nil
}

// GetByID retrieves a binding by primary key.
func (r *PoolRepository) GetByID(ctx context.Context, id string) (*PoolEntry, error) {
	query := `SELECT ` + poolColumns + ` FROM assignment_pool WHERE id = $1`

	p, err := scanPoolEntry(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("pool_entry", id)
	}
	if err != nil {
		return nil, database.Classify(err, "failed to get pool entry")
	}
	return p, nil
}

// SetStatus activates or deactivates a binding.
func (r *PoolRepository) SetStatus(ctx context.Context, id string, status PoolStatus) error {
	query := `
		UPDATE assignment_pool
		SET status     = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, string(status)).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("pool_entry", id)
	}
	return database.Classify(err, "failed to update pool entry")
}

// Delete removes a binding outright. Used to undo a binding that never
// produced a task; routine unbinding goes through SetStatus.
func (r *PoolRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM assignment_pool WHERE id = $1`, id)
	if err != nil {
		return database.Classify(err, "failed to delete pool entry")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("pool_entry", id)
	}
	return nil
}

// ListByCompliance returns the bindings for one compliance.
func (r *PoolRepository) ListByCompliance(ctx context.Context, complianceID string, activeOnly bool) ([]*PoolEntry, error) {
	query := `SELECT ` + poolColumns + ` FROM assignment_pool WHERE compliance_id = $1`
	if activeOnly {
		query += ` AND status = 'active'`
	}
	query += ` ORDER BY created_at, id`

	return r.query(ctx, query, complianceID)
}

// ListByEmployee returns the bindings for one employee.
func (r *PoolRepository) ListByEmployee(ctx context.Context, employeeID string) ([]*PoolEntry, error) {
	query := `SELECT ` + poolColumns + ` FROM assignment_pool WHERE employee_id = $1 ORDER BY created_at, id`
	return r.query(ctx, query, employeeID)
}

// ListProvisionable returns active bindings of active employees to active
// definitions. This is the scheduled provisioning work list.
func (r *PoolRepository) ListProvisionable(ctx context.Context) ([]*PoolEntry, error) {
	query := `
		SELECT p.id, p.employee_id, p.compliance_id, p.status, p.created_at, p.updated_at
		FROM assignment_pool p
		JOIN compliance_definitions c ON c.id = p.compliance_id
		JOIN employees e ON e.id = p.employee_id
		WHERE p.status = 'active'
		  AND c.is_active = TRUE
		  AND e.is_active = TRUE
		ORDER BY p.compliance_id, p.created_at
	`
	return r.query(ctx, query)
}

func (r *PoolRepository) query(ctx context.Context, query string, args ...any) ([]*PoolEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, database.Classify(err, "failed to list pool entries")
	}
	defer rows.Close()

	entries := make([]*PoolEntry, 0)
	for rows.Next() {
		p, err := scanPoolEntry(rows)
		if err != nil {
			return nil, database.Classify(err, "failed to scan pool entry")
		}
		entries = append(entries, p)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err, "failed to list pool entries")
	}
	return entries, nil
}

func scanPoolEntry(row rowScanner) (*PoolEntry, error) {
	p := &PoolEntry{}
	var status string
	err := row.Scan(&p.ID, &p.EmployeeID, &p.ComplianceID, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = PoolStatus(status)
	return p, nil
}
