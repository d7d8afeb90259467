package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScheduleKind determines how a chore definition recurs.
type ScheduleKind string

const (
	// ScheduleFixedDays occurs on specific calendar days resolved by the
	// scheduling collaborator. Its weekly target is always treated as 1.
	ScheduleFixedDays ScheduleKind = "fixed_days"
	// ScheduleWeeklyFrequency occurs a target number of times per week,
	// on whichever days the assignee picks.
	ScheduleWeeklyFrequency ScheduleKind = "weekly_frequency"
)

// ChoreDefinition is the recurring task template. It is created and edited
// by parents; the reconciliation engine only ever reads it.
type ChoreDefinition struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	AssignedTo   *int64          `json:"assigned_to"`
	EarnValue    decimal.Decimal `json:"earn_value"`
	PenaltyValue decimal.Decimal `json:"penalty_value"`
	ScheduleKind ScheduleKind    `json:"schedule_kind"`
	WeeklyTarget int             `json:"weekly_target"`
	Repeatable   bool            `json:"repeatable"`
	AutoApprove  bool            `json:"auto_approve"`
	Active       bool            `json:"active"`
	StartsOn     *string         `json:"starts_on"`
	EndsOn       *string         `json:"ends_on"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TargetCount returns the effective weekly target. Fixed-day chores always
// count as a single occurrence regardless of the configured target.
func (c ChoreDefinition) TargetCount() int {
	if c.ScheduleKind == ScheduleFixedDays {
		return 1
	}
	if c.WeeklyTarget < 1 {
		return 1
	}
	return c.WeeklyTarget
}

// ActiveOn reports whether the definition's validity window covers the given
// date (YYYY-MM-DD). Open-ended sides always match.
func (c ChoreDefinition) ActiveOn(date string) bool {
	if !c.Active {
		return false
	}
	if c.StartsOn != nil && date < *c.StartsOn {
		return false
	}
	if c.EndsOn != nil && date > *c.EndsOn {
		return false
	}
	return true
}

// ChoreLog is the per-(chore, date) occurrence record. It is created lazily
// on first interaction and never deleted, only status-transitioned. Version
// is the optimistic-concurrency counter bumped on every successful mutation;
// TransactionID links the at-most-one ledger transaction reflecting the
// current status.
type ChoreLog struct {
	ID              int64      `json:"id"`
	ChoreID         int64      `json:"chore_id"`
	Date            string     `json:"date"`
	Status          string     `json:"status"`
	CompletedBy     *int64     `json:"completed_by"`
	CompletedAt     *time.Time `json:"completed_at"`
	ApprovedBy      *int64     `json:"approved_by"`
	ApprovedAt      *time.Time `json:"approved_at"`
	HelpReason      *string    `json:"help_reason"`
	HelpRequestedAt *time.Time `json:"help_requested_at"`
	Notes           string     `json:"notes"`
	Version         int64      `json:"version"`
	TransactionID   *int64     `json:"transaction_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// WeeklyProgress is derived on demand from the completed/approved logs in
// the active week window; it is never persisted.
type WeeklyProgress struct {
	ChoreID             int64           `json:"chore_id"`
	WeekStart           string          `json:"week_start"`
	WeekEnd             string          `json:"week_end"`
	CompletedCount      int             `json:"completed_count"`
	TargetCount         int             `json:"target_count"`
	BaseEarned          decimal.Decimal `json:"base_earned"`
	BonusEarned         decimal.Decimal `json:"bonus_earned"`
	NextCompletionValue decimal.Decimal `json:"next_completion_value"`
}
