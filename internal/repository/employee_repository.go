package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/database"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
)

// EmployeeRepository is the directory store.
type EmployeeRepository struct {
	db *database.DB
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *database.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

const employeeColumns = `
	id, name, email, department, role, supervisor_id,
	is_active, created_at, updated_at
`

// Create inserts an employee.
func (r *EmployeeRepository) Create(ctx context.Context, e *Employee) error {
	query := `
		INSERT INTO employees (name, email, department, role, supervisor_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		e.Name,
		e.Email,
		e.Department,
		string(e.Role),
		e.SupervisorID,
		e.IsActive,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return database.Classify(err, "failed to create employee")
	}
	return nil
}

// GetByID retrieves an employee by id
func (r *EmployeeRepository) GetByID(ctx context.Context, id string) (*Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`

	e, err := scanEmployee(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("employee", id)
	}
	if err != nil {
		return nil, database.Classify(err, "failed to get employee")
	}
	return e, nil
}

// List retrieves employees matching the filter, ordered by name.
func (r *EmployeeRepository) List(ctx context.Context, f EmployeeFilter) ([]*Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE 1 = 1`

	args := []any{}
	argCount := 1

	if f.Department != "" {
		query += fmt.Sprintf(" AND department = $%d", argCount)
		args = append(args, f.Department)
		argCount++
	}

	if len(f.Roles) > 0 {
		roles := make([]string, len(f.Roles))
		for i, role := range f.Roles {
			roles[i] = string(role)
		}
		query += fmt.Sprintf(" AND LOWER(role) = ANY($%d)", argCount)
		args = append(args, roles)
		argCount++
	}

	if f.ActiveOnly {
		query += " AND is_active = TRUE"
	}

	query += " ORDER BY name, id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, database.Classify(err, "failed to list employees")
	}
	defer rows.Close()

	employees := make([]*Employee, 0)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, database.Classify(err, "failed to scan employee")
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err, "failed to list employees")
	}
	return employees, nil
}

// SetActive toggles the active flag.
func (r *EmployeeRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE employees
		SET is_active  = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, active).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("employee", id)
	}
	return database.Classify(err, "failed to update employee")
}

func scanEmployee(row rowScanner) (*Employee, error) {
	e := &Employee{}
	var role string
	err := row.Scan(
		&e.ID,
		&e.Name,
		&e.Email,
		&e.Department,
		&role,
		&e.SupervisorID,
		&e.IsActive,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Email = strings.TrimSpace(e.Email)
	e.Role = ParseRole(role)
	return e, nil
}
