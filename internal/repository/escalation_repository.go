package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/database"
)

// EscalationRepository reads the escalation log. Records are written by
// TaskRepository.RaiseEscalation so the level update and the insert share a
// transaction.
type EscalationRepository struct {
	db *database.DB
}

// NewEscalationRepository creates a new EscalationRepository.
func NewEscalationRepository(db *database.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

const escalationColumns = `id, task_id, level, target, reason, status, created_at, resolved_at`

// ListByTask returns all records for a task in chronological order.
func (r *EscalationRepository) ListByTask(ctx context.Context, taskID string) ([]*EscalationRecord, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalation_records WHERE task_id = $1 ORDER BY created_at, level`
	return r.query(ctx, query, taskID)
}

// ListOpen returns the most recent open records across all tasks.
func (r *EscalationRepository) ListOpen(ctx context.Context, limit int) ([]*EscalationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + escalationColumns + `
		FROM escalation_records
		WHERE status = 'open'
		ORDER BY created_at DESC
		LIMIT $1
	`
	return r.query(ctx, query, limit)
}

func (r *EscalationRepository) query(ctx context.Context, query string, args ...any) ([]*EscalationRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, database.Classify(err, "failed to list escalation records")
	}
	defer rows.Close()

	records := make([]*EscalationRecord, 0)
	for rows.Next() {
		rec := &EscalationRecord{}
		var status string
		err := rows.Scan(
			&rec.ID,
			&rec.TaskID,
			&rec.Level,
			&rec.Target,
			&rec.Reason,
			&status,
			&rec.CreatedAt,
			&rec.ResolvedAt,
		)
		if err != nil {
			return nil, database.Classify(err, "failed to scan escalation record")
		}
		rec.Status = EscalationStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Classify(err, "failed to list escalation records")
	}
	return records, nil
}

// ── transactional helpers ─────────────────────────────────────────────────────

type txQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertEscalation(ctx context.Context, q txQuerier, rec *EscalationRecord) error {
	if rec.Status == "" {
		rec.Status = EscalationOpen
	}
	query := `
		INSERT INTO escalation_records (task_id, level, target, reason, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query, rec.TaskID, rec.Level, rec.Target, rec.Reason, string(rec.Status)).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return database.Classify(err, fmt.Sprintf("failed to record level %d escalation", rec.Level))
	}
	return nil
}

func resolveOpenEscalations(ctx context.Context, q txQuerier, taskID string) error {
	query := `
		UPDATE escalation_records
		SET status      = 'resolved',
		    resolved_at = NOW()
		WHERE task_id = $1 AND status = 'open'
	`
	if _, err := q.Exec(ctx, query, taskID); err != nil {
		return database.Classify(err, "failed to resolve escalation records")
	}
	return nil
}
