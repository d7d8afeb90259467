package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthside/chorebank/internal/model"
)

type ChoreStore struct {
	db *sql.DB
}

func NewChoreStore(db *sql.DB) *ChoreStore {
	return &ChoreStore{db: db}
}

// DB exposes the underlying handle for unit-of-work callers.
func (s *ChoreStore) DB() *sql.DB { return s.db }

// --- Definition methods ---

const defCols = `id, title, description, assigned_to, earn_value, penalty_value,
	schedule_kind, weekly_target, repeatable, auto_approve, active,
	starts_on, ends_on, created_at, updated_at`

func scanDefinition(scanner interface{ Scan(...any) error }) (*model.ChoreDefinition, error) {
	var d model.ChoreDefinition
	var assignedTo sql.NullInt64
	var startsOn, endsOn sql.NullString
	var repeatable, autoApprove, active int

	err := scanner.Scan(
		&d.ID, &d.Title, &d.Description, &assignedTo, &d.EarnValue, &d.PenaltyValue,
		&d.ScheduleKind, &d.WeeklyTarget, &repeatable, &autoApprove, &active,
		&startsOn, &endsOn, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if assignedTo.Valid {
		d.AssignedTo = &assignedTo.Int64
	}
	if startsOn.Valid {
		d.StartsOn = &startsOn.String
	}
	if endsOn.Valid {
		d.EndsOn = &endsOn.String
	}
	d.Repeatable = repeatable != 0
	d.AutoApprove = autoApprove != 0
	d.Active = active != 0
	return &d, nil
}

func (s *ChoreStore) CreateDefinition(d *model.ChoreDefinition) (*model.ChoreDefinition, error) {
	var assignedTo sql.NullInt64
	if d.AssignedTo != nil {
		assignedTo = sql.NullInt64{Int64: *d.AssignedTo, Valid: true}
	}
	var startsOn, endsOn sql.NullString
	if d.StartsOn != nil {
		startsOn = sql.NullString{String: *d.StartsOn, Valid: true}
	}
	if d.EndsOn != nil {
		endsOn = sql.NullString{String: *d.EndsOn, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO chore_definitions
			(title, description, assigned_to, earn_value, penalty_value,
			 schedule_kind, weekly_target, repeatable, auto_approve, active, starts_on, ends_on)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Title, d.Description, assignedTo, d.EarnValue, d.PenaltyValue,
		d.ScheduleKind, d.TargetCount(), boolInt(d.Repeatable), boolInt(d.AutoApprove),
		boolInt(d.Active), startsOn, endsOn,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chore definition: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetDefinition(id)
}

func (s *ChoreStore) GetDefinition(id int64) (*model.ChoreDefinition, error) {
	row := s.db.QueryRow(`SELECT `+defCols+` FROM chore_definitions WHERE id = ?`, id)
	d, err := scanDefinition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore definition: %w", err)
	}
	return d, nil
}

func (s *ChoreStore) ListDefinitions() ([]model.ChoreDefinition, error) {
	rows, err := s.db.Query(`SELECT ` + defCols + ` FROM chore_definitions ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list chore definitions: %w", err)
	}
	defer rows.Close()
	return collectDefinitions(rows)
}

// ListWeeklyByAssignee returns the active weekly-frequency chores assigned to
// a member, the set the weekly penalty reconciler walks.
func (s *ChoreStore) ListWeeklyByAssignee(memberID int64) ([]model.ChoreDefinition, error) {
	rows, err := s.db.Query(
		`SELECT `+defCols+` FROM chore_definitions
		 WHERE assigned_to = ? AND active = 1 AND schedule_kind = ?
		 ORDER BY title ASC`,
		memberID, model.ScheduleWeeklyFrequency,
	)
	if err != nil {
		return nil, fmt.Errorf("list weekly chores by assignee: %w", err)
	}
	defer rows.Close()
	return collectDefinitions(rows)
}

func collectDefinitions(rows *sql.Rows) ([]model.ChoreDefinition, error) {
	var defs []model.ChoreDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore definition: %w", err)
		}
		defs = append(defs, *d)
	}
	return defs, rows.Err()
}

func (s *ChoreStore) UpdateDefinition(d *model.ChoreDefinition) (*model.ChoreDefinition, error) {
	var assignedTo sql.NullInt64
	if d.AssignedTo != nil {
		assignedTo = sql.NullInt64{Int64: *d.AssignedTo, Valid: true}
	}
	var startsOn, endsOn sql.NullString
	if d.StartsOn != nil {
		startsOn = sql.NullString{String: *d.StartsOn, Valid: true}
	}
	if d.EndsOn != nil {
		endsOn = sql.NullString{String: *d.EndsOn, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE chore_definitions SET
			title = ?, description = ?, assigned_to = ?, earn_value = ?, penalty_value = ?,
			schedule_kind = ?, weekly_target = ?, repeatable = ?, auto_approve = ?, active = ?,
			starts_on = ?, ends_on = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		d.Title, d.Description, assignedTo, d.EarnValue, d.PenaltyValue,
		d.ScheduleKind, d.TargetCount(), boolInt(d.Repeatable), boolInt(d.AutoApprove),
		boolInt(d.Active), startsOn, endsOn, d.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update chore definition: %w", err)
	}
	return s.GetDefinition(d.ID)
}

func (s *ChoreStore) DeleteDefinition(id int64) error {
	_, err := s.db.Exec(`DELETE FROM chore_definitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chore definition: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Occurrence log methods ---

const logCols = `id, chore_id, date, status, completed_by, completed_at,
	approved_by, approved_at, help_reason, help_requested_at, notes,
	version, transaction_id, created_at, updated_at`

func scanLog(scanner interface{ Scan(...any) error }) (*model.ChoreLog, error) {
	var l model.ChoreLog
	var completedBy, approvedBy, transactionID sql.NullInt64
	var completedAt, approvedAt, helpRequestedAt sql.NullTime
	var helpReason sql.NullString

	err := scanner.Scan(
		&l.ID, &l.ChoreID, &l.Date, &l.Status, &completedBy, &completedAt,
		&approvedBy, &approvedAt, &helpReason, &helpRequestedAt, &l.Notes,
		&l.Version, &transactionID, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedBy.Valid {
		l.CompletedBy = &completedBy.Int64
	}
	if completedAt.Valid {
		l.CompletedAt = &completedAt.Time
	}
	if approvedBy.Valid {
		l.ApprovedBy = &approvedBy.Int64
	}
	if approvedAt.Valid {
		l.ApprovedAt = &approvedAt.Time
	}
	if helpReason.Valid {
		l.HelpReason = &helpReason.String
	}
	if helpRequestedAt.Valid {
		l.HelpRequestedAt = &helpRequestedAt.Time
	}
	if transactionID.Valid {
		l.TransactionID = &transactionID.Int64
	}
	return &l, nil
}

// EnsureLog returns the occurrence log for (chore, date), creating a pending
// one on first touch. Creation is race-safe: concurrent callers converge on
// the same row via the unique index.
func (s *ChoreStore) EnsureLog(choreID int64, date string) (*model.ChoreLog, error) {
	_, err := s.db.Exec(
		`INSERT INTO chore_logs (chore_id, date) VALUES (?, ?)
		 ON CONFLICT (chore_id, date) DO NOTHING`,
		choreID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure chore log: %w", err)
	}
	return s.GetLog(choreID, date)
}

func (s *ChoreStore) GetLog(choreID int64, date string) (*model.ChoreLog, error) {
	row := s.db.QueryRow(
		`SELECT `+logCols+` FROM chore_logs WHERE chore_id = ? AND date = ?`,
		choreID, date,
	)
	l, err := scanLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore log: %w", err)
	}
	return l, nil
}

func (s *ChoreStore) GetLogByID(id int64) (*model.ChoreLog, error) {
	row := s.db.QueryRow(`SELECT `+logCols+` FROM chore_logs WHERE id = ?`, id)
	l, err := scanLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore log: %w", err)
	}
	return l, nil
}

func (s *ChoreStore) ListLogsForDate(date string) ([]model.ChoreLog, error) {
	rows, err := s.db.Query(
		`SELECT `+logCols+` FROM chore_logs WHERE date = ? ORDER BY chore_id ASC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("list chore logs for date: %w", err)
	}
	defer rows.Close()

	var logs []model.ChoreLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// UpdateLog persists the log's mutable fields with an optimistic version
// check. The row's version is bumped; if someone else already bumped it the
// update touches zero rows and ErrVersionConflict is returned. Runs on a
// Querier so the reconciler can include it in its unit of work.
func (s *ChoreStore) UpdateLog(q Querier, l *model.ChoreLog, expectedVersion int64) error {
	var completedBy, approvedBy, transactionID sql.NullInt64
	if l.CompletedBy != nil {
		completedBy = sql.NullInt64{Int64: *l.CompletedBy, Valid: true}
	}
	if l.ApprovedBy != nil {
		approvedBy = sql.NullInt64{Int64: *l.ApprovedBy, Valid: true}
	}
	if l.TransactionID != nil {
		transactionID = sql.NullInt64{Int64: *l.TransactionID, Valid: true}
	}
	var completedAt, approvedAt, helpRequestedAt sql.NullTime
	if l.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *l.CompletedAt, Valid: true}
	}
	if l.ApprovedAt != nil {
		approvedAt = sql.NullTime{Time: *l.ApprovedAt, Valid: true}
	}
	if l.HelpRequestedAt != nil {
		helpRequestedAt = sql.NullTime{Time: *l.HelpRequestedAt, Valid: true}
	}
	var helpReason sql.NullString
	if l.HelpReason != nil {
		helpReason = sql.NullString{String: *l.HelpReason, Valid: true}
	}

	result, err := q.Exec(
		`UPDATE chore_logs SET
			status = ?, completed_by = ?, completed_at = ?, approved_by = ?, approved_at = ?,
			help_reason = ?, help_requested_at = ?, notes = ?, transaction_id = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		l.Status, completedBy, completedAt, approvedBy, approvedAt,
		helpReason, helpRequestedAt, l.Notes, transactionID,
		time.Now().UTC(), l.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update chore log: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("chore log %d at version %d: %w", l.ID, expectedVersion, ErrVersionConflict)
	}
	l.Version = expectedVersion + 1
	return nil
}

// CountCompletedInWindow counts a chore's completed/approved logs with dates
// inside the inclusive [start, end] window.
func (s *ChoreStore) CountCompletedInWindow(q Querier, choreID int64, start, end string) (int, error) {
	var n int
	err := q.QueryRow(
		`SELECT COUNT(*) FROM chore_logs
		 WHERE chore_id = ? AND date >= ? AND date <= ? AND status IN ('completed', 'approved')`,
		choreID, start, end,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed in window: %w", err)
	}
	return n, nil
}

// ListApprovedInWindow returns a chore's approved logs with dates inside the
// inclusive [start, end] window, in completion order. Only approved logs hold
// earning transactions, so this is the set the reconciler re-prices when the
// week's completion order shifts.
func (s *ChoreStore) ListApprovedInWindow(q Querier, choreID int64, start, end string) ([]model.ChoreLog, error) {
	rows, err := q.Query(
		`SELECT `+logCols+` FROM chore_logs
		 WHERE chore_id = ? AND date >= ? AND date <= ? AND status = 'approved'
		 ORDER BY date ASC, id ASC`,
		choreID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("list approved in window: %w", err)
	}
	defer rows.Close()

	var logs []model.ChoreLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// CompletionPosition returns the 1-based rank of the given log among the
// chore's completed/approved logs in the window, ordering by (date, id) so
// the rank is stable however the logs were touched. The log itself need not
// currently hold a counted status; it ranks after every counted sibling that
// sorts before it.
func (s *ChoreStore) CompletionPosition(q Querier, choreID int64, start, end string, logID int64, logDate string) (int, error) {
	var before int
	err := q.QueryRow(
		`SELECT COUNT(*) FROM chore_logs
		 WHERE chore_id = ? AND date >= ? AND date <= ?
		   AND status IN ('completed', 'approved')
		   AND id != ?
		   AND (date < ? OR (date = ? AND id < ?))`,
		choreID, start, end, logID, logDate, logDate, logID,
	).Scan(&before)
	if err != nil {
		return 0, fmt.Errorf("completion position: %w", err)
	}
	return before + 1, nil
}
