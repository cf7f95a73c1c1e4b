package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/database"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
)

// ComplianceRepository manages compliance definition masters.
type ComplianceRepository struct {
	db *database.DB
}

// NewComplianceRepository creates a new ComplianceRepository.
func NewComplianceRepository(db *database.DB) *ComplianceRepository {
	return &ComplianceRepository{db: db}
}

const complianceColumns = `
	id, name, category, department, risk_tier, frequency,
	description, is_active, created_at, updated_at
`

// Create inserts a definition and fills in its generated fields.
func (r *ComplianceRepository) Create(ctx context.Context, c *ComplianceDefinition) error {
	query := `
		INSERT INTO compliance_definitions
		    (name, category, department, risk_tier, frequency, description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		c.Name,
		c.Category,
		c.Department,
		c.RiskTier,
		string(c.Frequency),
		c.Description,
		c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return database.Classify(err, "failed to create compliance definition")
	}
	return nil
}

// GetByID retrieves a definition by primary key.
func (r *ComplianceRepository) GetByID(ctx context.Context, id string) (*ComplianceDefinition, error) {
	query := `SELECT ` + complianceColumns + ` FROM compliance_definitions WHERE id = $1`

	c, err := scanCompliance(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("compliance", id)
	}
	if err != nil {
		return nil, database.Classify(err, "failed to get compliance definition")
	}
	return c, nil
}

// List returns definitions ordered by name.
func (r *ComplianceRepository) List(ctx context.Context, activeOnly bool) ([]*ComplianceDefinition, error) {
	query := `SELECT ` + complianceColumns + ` FROM compliance_definitions`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name`

	return r.query(ctx, query, "failed to list compliance definitions")
}

// ListUnassigned returns active definitions that have no open task.
func (r *ComplianceRepository) ListUnassigned(ctx context.Context) ([]*ComplianceDefinition, error) {
	query := `
		SELECT ` + complianceColumns + `
		FROM compliance_definitions c
		WHERE c.is_active = TRUE
		  AND NOT EXISTS (
		      SELECT 1 FROM task_instances t
		      WHERE t.compliance_id = c.id
		        AND t.status IN ('draft', 'submitted')
		  )
		ORDER BY c.name
	`

	return r.query(ctx, query, "failed to list unassigned compliances")
}

// SetActive toggles the active flag.
func (r *ComplianceRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `
		UPDATE compliance_definitions
		SET is_active  = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, active).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("compliance", id)
	}
	return database.Classify(err, "failed to update compliance definition")
}

func (r *ComplianceRepository) query(ctx context.Context, query, failMsg string, args ...any) ([]*ComplianceDefinition, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, database.Classify(err, failMsg)
	}
	defer rows.Close()

	out := make([]*ComplianceDefinition, 0)
	for rows.Next() {
		c, err := scanCompliance(rows)
		if err != nil {
			return nil, database.Classify(err, "failed to scan compliance definition")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err, failMsg)
	}
	return out, nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompliance(row rowScanner) (*ComplianceDefinition, error) {
	c := &ComplianceDefinition{}
	var frequency string
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Category,
		&c.Department,
		&c.RiskTier,
		&frequency,
		&c.Description,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Frequency = ParseFrequency(frequency)
	return c, nil
}
