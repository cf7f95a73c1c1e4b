package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/database"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
)

// TaskRepository manages task instances. Status and escalation writes are
// guarded in SQL so concurrent writers never both win.
type TaskRepository struct {
	db *database.DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *database.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `
	id, compliance_id, maker_id, checker_id, period, due_date, status,
	maker_remarks, checker_remarks, document_ref, escalation_level,
	submitted_at, completed_at, created_at, updated_at
`

// Insert creates a task unless one already exists for the same
// (compliance, maker, period). It reports whether a row was written.
func (r *TaskRepository) Insert(ctx context.Context, t *TaskInstance) (bool, error) {
	if t.Status == "" {
		t.Status = StatusDraft
	}
	query := `
		INSERT INTO task_instances
		    (compliance_id, maker_id, checker_id, period, due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (compliance_id, maker_id, period) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		t.ComplianceID,
		t.MakerID,
		t.CheckerID,
		t.Period,
		t.DueDate,
		string(t.Status),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, database.Classify(err, "failed to create task")
	}
	return true, nil
}

// GetByID retrieves a task by primary key.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*TaskInstance, error) {
	query := `SELECT ` + taskColumns + ` FROM task_instances WHERE id = $1`

	t, err := scanTask(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("task", id)
	}
	if err != nil {
		return nil, database.Classify(err, "failed to get task")
	}
	return t, nil
}

// HasOpenTask reports whether the maker already has a draft or submitted
// task for the compliance.
func (r *TaskRepository) HasOpenTask(ctx context.Context, complianceID, makerID string) (bool, error) {
	query := `
		SELECT EXISTS (
		    SELECT 1 FROM task_instances
		    WHERE compliance_id = $1
		      AND maker_id = $2
		      AND status IN ('draft', 'submitted')
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, complianceID, makerID).Scan(&exists); err != nil {
		return false, database.Classify(err, "failed to check open tasks")
	}
	return exists, nil
}

// List retrieves tasks matching the filter, earliest due first.
func (r *TaskRepository) List(ctx context.Context, f TaskFilter) ([]*TaskInstance, error) {
	query := `SELECT ` + taskColumns + ` FROM task_instances WHERE 1 = 1`

	args := []any{}
	argCount := 1

	if f.MakerID != "" {
		query += fmt.Sprintf(" AND maker_id = $%d", argCount)
		args = append(args, f.MakerID)
		argCount++
	}

	if f.CheckerID != "" {
		query += fmt.Sprintf(" AND checker_id = $%d", argCount)
		args = append(args, f.CheckerID)
		argCount++
	}

	if f.ComplianceID != "" {
		query += fmt.Sprintf(" AND compliance_id = $%d", argCount)
		args = append(args, f.ComplianceID)
		argCount++
	}

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argCount)
		args = append(args, statuses)
		argCount++
	}

	if f.DueBefore != nil {
		query += fmt.Sprintf(" AND due_date < $%d", argCount)
		args = append(args, *f.DueBefore)
		argCount++
	}

	query += " ORDER BY due_date, id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, database.Classify(err, "failed to list tasks")
	}
	defer rows.Close()

	tasks := make([]*TaskInstance, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, database.Classify(err, "failed to scan task")
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err, "failed to list tasks")
	}
	return tasks, nil
}

// ListOpenOverdue returns draft and submitted tasks due before asOf.
func (r *TaskRepository) ListOpenOverdue(ctx context.Context, asOf time.Time) ([]*TaskInstance, error) {
	return r.List(ctx, TaskFilter{Statuses: OpenStatuses, DueBefore: &asOf})
}

// Transition applies patch to the task only if it is still in expected
// status. Reaching approved or rejected resolves the task's open escalation
// records in the same transaction. A task that moved under the caller yields
// PreconditionFailed.
func (r *TaskRepository) Transition(ctx context.Context, id string, expected TaskStatus, patch TaskPatch) (*TaskInstance, error) {
	sets := []string{"status = $3", "updated_at = NOW()"}
	args := []any{id, string(expected), string(patch.Status)}
	argCount := 4

	set := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argCount))
		args = append(args, value)
		argCount++
	}

	if patch.MakerRemarks != nil {
		set("maker_remarks", *patch.MakerRemarks)
	}
	if patch.CheckerRemarks != nil {
		set("checker_remarks", *patch.CheckerRemarks)
	} else if patch.ClearCheckerRemarks {
		sets = append(sets, "checker_remarks = NULL")
	}
	if patch.DocumentRef != nil {
		set("document_ref", *patch.DocumentRef)
	}
	if patch.SubmittedAt != nil {
		set("submitted_at", *patch.SubmittedAt)
	} else if patch.ClearSubmittedAt {
		sets = append(sets, "submitted_at = NULL")
	}
	if patch.CompletedAt != nil {
		set("completed_at", *patch.CompletedAt)
	} else if patch.ClearCompletedAt {
		sets = append(sets, "completed_at = NULL")
	}
	if patch.ResetEscalationLevel {
		sets = append(sets, "escalation_level = 0")
	}

	query := `UPDATE task_instances SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND status = $2 RETURNING ` + taskColumns

	var updated *TaskInstance
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		t, err := scanTask(tx.QueryRow(ctx, query, args...))
		if err == pgx.ErrNoRows {
			return errors.Precondition(fmt.Sprintf("task is no longer %s", expected)).
				WithDetail("task_id", id).
				WithDetail("expected_status", string(expected))
		}
		if err != nil {
			return database.Classify(err, "failed to update task")
		}

		if patch.Status.IsTerminal() || patch.ResetEscalationLevel {
			if err := resolveOpenEscalations(ctx, tx, id); err != nil {
				return err
			}
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RaiseEscalation lifts the task's escalation level and appends rec, both
// in one transaction. The update only applies when the stored level is lower
// and the task is still open; otherwise nothing is written and false is
// returned.
func (r *TaskRepository) RaiseEscalation(ctx context.Context, rec *EscalationRecord) (bool, error) {
	raised := false
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE task_instances
			SET escalation_level = $2,
			    updated_at       = NOW()
			WHERE id = $1
			  AND escalation_level < $2
			  AND status IN ('draft', 'submitted')
		`
		tag, err := tx.Exec(ctx, query, rec.TaskID, rec.Level)
		if err != nil {
			return database.Classify(err, "failed to raise escalation level")
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if err := insertEscalation(ctx, tx, rec); err != nil {
			return err
		}
		raised = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return raised, nil
}

func scanTask(row rowScanner) (*TaskInstance, error) {
	t := &TaskInstance{}
	var status string
	err := row.Scan(
		&t.ID,
		&t.ComplianceID,
		&t.MakerID,
		&t.CheckerID,
		&t.Period,
		&t.DueDate,
		&status,
		&t.MakerRemarks,
		&t.CheckerRemarks,
		&t.DocumentRef,
		&t.EscalationLevel,
		&t.SubmittedAt,
		&t.CompletedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = TaskStatus(status)
	return t, nil
}
