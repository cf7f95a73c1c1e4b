package repository

import (
	"strings"
	"time"
)

// ── Roles ────────────────────────────────────────────────────────────────────

// Role is the closed set of employee roles. Stored values are free text in
// older data, so ParseRole normalises case and whitespace.
type Role string

const (
	RoleMaker   Role = "maker"
	RoleChecker Role = "checker"
	RoleAdmin   Role = "admin"
	RoleOther   Role = "other"
)

// ParseRole maps a stored role name onto a Role. Unknown names become RoleOther.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleMaker:
		return RoleMaker
	case RoleChecker:
		return RoleChecker
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleOther
	}
}

// ── Task status ──────────────────────────────────────────────────────────────

// TaskStatus is the workflow state of a TaskInstance.
type TaskStatus string

const (
	StatusDraft     TaskStatus = "draft"
	StatusSubmitted TaskStatus = "submitted"
	StatusApproved  TaskStatus = "approved"
	StatusRejected  TaskStatus = "rejected"
)

// OpenStatuses are the states the escalation evaluator still watches.
var OpenStatuses = []TaskStatus{StatusDraft, StatusSubmitted}

// IsOpen reports whether the task is still being worked.
func (s TaskStatus) IsOpen() bool {
	return s == StatusDraft || s == StatusSubmitted
}

// IsTerminal reports whether the task is closed for escalation.
// A rejected task can still be reopened by its maker.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is one of the four workflow states.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// ── Pool / escalation status ─────────────────────────────────────────────────

type PoolStatus string

const (
	PoolActive   PoolStatus = "active"
	PoolInactive PoolStatus = "inactive"
)

type EscalationStatus string

const (
	EscalationOpen     EscalationStatus = "open"
	EscalationResolved EscalationStatus = "resolved"
)

// ── Frequency ────────────────────────────────────────────────────────────────

// Frequency is a compliance recurrence.
type Frequency string

const (
	FrequencyDaily       Frequency = "daily"
	FrequencyWeekly      Frequency = "weekly"
	FrequencyFortnightly Frequency = "fortnightly"
	FrequencyMonthly     Frequency = "monthly"
	FrequencyQuarterly   Frequency = "quarterly"
	FrequencyHalfYearly  Frequency = "half_yearly"
	FrequencyYearly      Frequency = "yearly"
	FrequencyOneTime     Frequency = "one_time"
)

// ParseFrequency normalises free-text frequencies ("Half-Yearly", "Annual").
func ParseFrequency(s string) Frequency {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "daily":
		return FrequencyDaily
	case "weekly":
		return FrequencyWeekly
	case "fortnightly", "biweekly", "bi_weekly":
		return FrequencyFortnightly
	case "monthly":
		return FrequencyMonthly
	case "quarterly":
		return FrequencyQuarterly
	case "half_yearly", "halfyearly", "semi_annual", "semiannual":
		return FrequencyHalfYearly
	case "yearly", "annual", "annually":
		return FrequencyYearly
	default:
		return FrequencyOneTime
	}
}

// ── Records ──────────────────────────────────────────────────────────────────

// ComplianceDefinition is a regulatory obligation master record.
type ComplianceDefinition struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Department  string    `json:"department"`
	RiskTier    string    `json:"risk_tier"`
	Frequency   Frequency `json:"frequency"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Employee is a directory entry.
type Employee struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Department   string    `json:"department"`
	Role         Role      `json:"role"`
	SupervisorID *string   `json:"supervisor_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PoolEntry binds an employee to a compliance definition they may work.
type PoolEntry struct {
	ID           string     `json:"id"`
	EmployeeID   string     `json:"employee_id"`
	ComplianceID string     `json:"compliance_id"`
	Status       PoolStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TaskInstance is one provisioned occurrence of a compliance.
type TaskInstance struct {
	ID              string     `json:"id"`
	ComplianceID    string     `json:"compliance_id"`
	MakerID         string     `json:"maker_id"`
	CheckerID       *string    `json:"checker_id,omitempty"`
	Period          string     `json:"period"`
	DueDate         time.Time  `json:"due_date"`
	Status          TaskStatus `json:"status"`
	MakerRemarks    *string    `json:"maker_remarks,omitempty"`
	CheckerRemarks  *string    `json:"checker_remarks,omitempty"`
	DocumentRef     *string    `json:"document_ref,omitempty"`
	EscalationLevel int        `json:"escalation_level"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasChecker reports whether id is the task's assigned checker.
func (t *TaskInstance) HasChecker(id string) bool {
	return t.CheckerID != nil && *t.CheckerID == id
}

// EscalationRecord is one entry in a task's append-only escalation log.
type EscalationRecord struct {
	ID         string           `json:"id"`
	TaskID     string           `json:"task_id"`
	Level      int              `json:"level"`
	Target     string           `json:"target"`
	Reason     string           `json:"reason"`
	Status     EscalationStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}

// ── Filters and patches ──────────────────────────────────────────────────────

// EmployeeFilter narrows directory lookups. Zero fields are ignored.
type EmployeeFilter struct {
	Department string
	Roles      []Role
	ActiveOnly bool
}

// TaskFilter narrows task listings. Zero fields are ignored.
type TaskFilter struct {
	MakerID      string
	CheckerID    string
	ComplianceID string
	Statuses     []TaskStatus
	DueBefore    *time.Time
}

// TaskPatch is the set of fields a workflow transition writes. Nil pointers
// leave the column unchanged; the Clear* flags null it.
type TaskPatch struct {
	Status               TaskStatus
	MakerRemarks         *string
	CheckerRemarks       *string
	ClearCheckerRemarks  bool
	DocumentRef          *string
	SubmittedAt          *time.Time
	ClearSubmittedAt     bool
	CompletedAt          *time.Time
	ClearCompletedAt     bool
	ResetEscalationLevel bool
}
