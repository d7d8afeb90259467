package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxChoreEarning TransactionType = "chore_earning"
	TxPenalty      TransactionType = "penalty"
	TxBonus        TransactionType = "bonus"
	TxPayout       TransactionType = "payout"
	TxAdjustment   TransactionType = "adjustment"
	TxTransfer     TransactionType = "transfer"
)

// LedgerAccount is a named sub-account belonging to a member. Every member
// gets a default account; additional named accounts are allowed.
type LedgerAccount struct {
	ID        int64     `json:"id"`
	MemberID  int64     `json:"member_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultAccountName is the account created for every member.
const DefaultAccountName = "allowance"

// LedgerTransaction is an immutable-once-posted financial entry. An account
// balance is always the sum of its transactions; no stored balance exists.
//
// ChoreID and WeekEndDate are idempotency dimensions used by the weekly
// penalty reconciler to keep re-runs from double-posting. Reconciliation
// entries created for a chore log are deleted (not negated) when the log
// reverts to a non-monetary status.
type LedgerTransaction struct {
	ID              int64           `json:"id"`
	Reference       string          `json:"reference"`
	AccountID       int64           `json:"account_id"`
	MemberID        int64           `json:"member_id"`
	Amount          decimal.Decimal `json:"amount"`
	Type            TransactionType `json:"type"`
	ChoreID         *int64          `json:"chore_id"`
	WeekEndDate     *string         `json:"week_end_date"`
	Description     string          `json:"description"`
	TransactionDate string          `json:"transaction_date"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Balance is the live sum over a member's transactions.
type Balance struct {
	MemberID   int64           `json:"member_id"`
	MemberName string          `json:"member_name"`
	Balance    decimal.Decimal `json:"balance"`
}
