package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hearthside/chorebank/internal/model"
)

type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// DB exposes the underlying handle for callers that run outside a
// transaction.
func (s *LedgerStore) DB() *sql.DB {
	return s.db
}

// --- Account methods ---

const accountCols = `id, member_id, name, created_at`

func scanAccount(scanner interface{ Scan(...any) error }) (*model.LedgerAccount, error) {
	var a model.LedgerAccount
	if err := scanner.Scan(&a.ID, &a.MemberID, &a.Name, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// EnsureDefaultAccount returns the member's default account, creating it on
// first use. Safe under concurrent callers via the unique index.
func (s *LedgerStore) EnsureDefaultAccount(q Querier, memberID int64) (*model.LedgerAccount, error) {
	_, err := q.Exec(
		`INSERT INTO ledger_accounts (member_id, name) VALUES (?, ?)
		 ON CONFLICT (member_id, name) DO NOTHING`,
		memberID, model.DefaultAccountName,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure default account: %w", err)
	}
	row := q.QueryRow(
		`SELECT `+accountCols+` FROM ledger_accounts WHERE member_id = ? AND name = ?`,
		memberID, model.DefaultAccountName,
	)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("get default account: %w", err)
	}
	return a, nil
}

func (s *LedgerStore) CreateAccount(memberID int64, name string) (*model.LedgerAccount, error) {
	result, err := s.db.Exec(
		`INSERT INTO ledger_accounts (member_id, name) VALUES (?, ?)`,
		memberID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+accountCols+` FROM ledger_accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (s *LedgerStore) ListAccounts(memberID int64) ([]model.LedgerAccount, error) {
	rows, err := s.db.Query(
		`SELECT `+accountCols+` FROM ledger_accounts WHERE member_id = ? ORDER BY name ASC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.LedgerAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// --- Transaction methods ---

const txnCols = `id, reference, account_id, member_id, amount, type,
	chore_id, week_end_date, description, transaction_date, created_at`

func scanTransaction(scanner interface{ Scan(...any) error }) (*model.LedgerTransaction, error) {
	var t model.LedgerTransaction
	var choreID sql.NullInt64
	var weekEndDate sql.NullString

	err := scanner.Scan(
		&t.ID, &t.Reference, &t.AccountID, &t.MemberID, &t.Amount, &t.Type,
		&choreID, &weekEndDate, &t.Description, &t.TransactionDate, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if choreID.Valid {
		t.ChoreID = &choreID.Int64
	}
	if weekEndDate.Valid {
		t.WeekEndDate = &weekEndDate.String
	}
	return &t, nil
}

// CreateTransaction posts a new ledger entry. A fresh audit reference is
// assigned if the caller did not supply one. Runs on a Querier so the
// reconcilers can post inside their unit of work.
func (s *LedgerStore) CreateTransaction(q Querier, t *model.LedgerTransaction) (*model.LedgerTransaction, error) {
	if t.Reference == "" {
		t.Reference = uuid.NewString()
	}
	var choreID sql.NullInt64
	if t.ChoreID != nil {
		choreID = sql.NullInt64{Int64: *t.ChoreID, Valid: true}
	}
	var weekEndDate sql.NullString
	if t.WeekEndDate != nil {
		weekEndDate = sql.NullString{String: *t.WeekEndDate, Valid: true}
	}

	result, err := q.Exec(
		`INSERT INTO ledger_transactions
			(reference, account_id, member_id, amount, type, chore_id, week_end_date,
			 description, transaction_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Reference, t.AccountID, t.MemberID, t.Amount, t.Type, choreID, weekEndDate,
		t.Description, t.TransactionDate, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.TransactionByID(q, id)
}

// DeleteTransaction removes a reconciliation-created entry. Only the
// reconciler calls this, and only for entries whose triggering occurrence
// reverted to a non-monetary status.
func (s *LedgerStore) DeleteTransaction(q Querier, id int64) error {
	_, err := q.Exec(`DELETE FROM ledger_transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (s *LedgerStore) GetTransaction(id int64) (*model.LedgerTransaction, error) {
	return s.TransactionByID(s.db, id)
}

// TransactionByID fetches a transaction through the given Querier so the
// reconciler can read inside its unit of work.
func (s *LedgerStore) TransactionByID(q Querier, id int64) (*model.LedgerTransaction, error) {
	row := q.QueryRow(`SELECT `+txnCols+` FROM ledger_transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *LedgerStore) ListByMember(memberID int64) ([]model.LedgerTransaction, error) {
	rows, err := s.db.Query(
		`SELECT `+txnCols+` FROM ledger_transactions WHERE member_id = ? ORDER BY created_at DESC, id DESC`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []model.LedgerTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// FindPenalty looks up the penalty entry carrying the exact (member, chore,
// week-end-date) idempotency dimensions, or nil when this week has not been
// reconciled for the chore yet.
func (s *LedgerStore) FindPenalty(q Querier, memberID, choreID int64, weekEndDate string) (*model.LedgerTransaction, error) {
	row := q.QueryRow(
		`SELECT `+txnCols+` FROM ledger_transactions
		 WHERE member_id = ? AND chore_id = ? AND week_end_date = ? AND type = ?`,
		memberID, choreID, weekEndDate, model.TxPenalty,
	)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find penalty: %w", err)
	}
	return t, nil
}

// BalanceForMember sums the member's transactions. Amounts are summed as
// decimals in Go; sqlite's SUM would coerce the text column to float.
func (s *LedgerStore) BalanceForMember(memberID int64) (decimal.Decimal, error) {
	rows, err := s.db.Query(
		`SELECT amount FROM ledger_transactions WHERE member_id = ?`,
		memberID,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query amounts: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("scan amount: %w", err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}
