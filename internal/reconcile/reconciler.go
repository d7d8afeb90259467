package reconcile

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearthside/chorebank/internal/chore"
	"github.com/hearthside/chorebank/internal/model"
	"github.com/hearthside/chorebank/internal/quota"
	"github.com/hearthside/chorebank/internal/store"
)

// ledgerEffect is the transaction a chore log's current status requires.
// A nil *ledgerEffect means the status has no monetary effect.
type ledgerEffect struct {
	amount      decimal.Decimal
	txType      model.TransactionType
	description string
}

// reconcileLedger makes the log's linked transaction match what its new
// status requires: delete a stale link, create a missing one, and do nothing
// when they already agree. At most one transaction is ever linked, and its
// amount is a function of current state only, never of history. Must run
// inside the same tx as the log update.
func (s *Service) reconcileLedger(tx store.Querier, def *model.ChoreDefinition, log *model.ChoreLog) error {
	target, err := s.targetEffect(tx, def, log)
	if err != nil {
		return err
	}
	// A posting needs an account holder; an unassigned chore missed by
	// nobody in particular has no one to charge.
	if target != nil && s.beneficiary(def, log) == 0 {
		target = nil
	}

	var current *model.LedgerTransaction
	if log.TransactionID != nil {
		current, err = s.ledger.TransactionByID(tx, *log.TransactionID)
		if err != nil {
			return err
		}
	}

	switch {
	case current == nil && target == nil:
		return nil

	case current != nil && target == nil:
		if err := s.ledger.DeleteTransaction(tx, current.ID); err != nil {
			return err
		}
		log.TransactionID = nil
		return nil

	case current != nil && target != nil &&
		current.Amount.Equal(target.amount) && current.Type == target.txType:
		// Already reconciled; retried calls land here.
		return nil

	default:
		if current != nil {
			if err := s.ledger.DeleteTransaction(tx, current.ID); err != nil {
				return err
			}
			log.TransactionID = nil
		}
		account, err := s.ledger.EnsureDefaultAccount(tx, s.beneficiary(def, log))
		if err != nil {
			return err
		}
		posted, err := s.ledger.CreateTransaction(tx, &model.LedgerTransaction{
			AccountID:       account.ID,
			MemberID:        account.MemberID,
			Amount:          target.amount,
			Type:            target.txType,
			ChoreID:         &def.ID,
			Description:     target.description,
			TransactionDate: log.Date,
		})
		if err != nil {
			return err
		}
		log.TransactionID = &posted.ID
		return nil
	}
}

// reconcileSiblings re-prices the week's other approved logs after a
// weekly-frequency log changes status. The changed log shifts its siblings'
// completion positions, so an amount posted earlier can go stale: a back-fill
// demotes later completions into bonus slots, a revert promotes them back.
// Runs after the changed log's own update, in the same tx, so every posted
// amount matches the quota calculator's value for the week's current state.
func (s *Service) reconcileSiblings(tx store.Querier, def *model.ChoreDefinition, changed *model.ChoreLog) error {
	if def.ScheduleKind != model.ScheduleWeeklyFrequency {
		return nil
	}

	day, err := time.Parse(quota.DateLayout, changed.Date)
	if err != nil {
		return fmt.Errorf("parse log date %q: %w", changed.Date, err)
	}
	weekStart, err := s.settings.WeekStartDay()
	if err != nil {
		return err
	}
	start, end := quota.WeekWindow(day, weekStart)

	siblings, err := s.chores.ListApprovedInWindow(tx, def.ID, start, end)
	if err != nil {
		return err
	}
	for i := range siblings {
		sib := siblings[i]
		if sib.ID == changed.ID {
			continue
		}
		before := sib.TransactionID
		if err := s.reconcileLedger(tx, def, &sib); err != nil {
			return err
		}
		if sameTransactionRef(before, sib.TransactionID) {
			// Position unchanged, posting already correct.
			continue
		}
		if err := s.chores.UpdateLog(tx, &sib, sib.Version); err != nil {
			return err
		}
	}
	return nil
}

func sameTransactionRef(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// targetEffect computes the transaction the log's status calls for:
// approved earns (flat for fixed-day chores, completion-order value for
// weekly ones), missed on a penalty-configured chore deducts, everything
// else carries no money.
func (s *Service) targetEffect(tx store.Querier, def *model.ChoreDefinition, log *model.ChoreLog) (*ledgerEffect, error) {
	switch chore.Status(log.Status) {
	case chore.StatusApproved:
		amount, err := s.earningValue(tx, def, log)
		if err != nil {
			return nil, err
		}
		if amount.IsZero() {
			return nil, nil
		}
		return &ledgerEffect{
			amount:      amount,
			txType:      model.TxChoreEarning,
			description: fmt.Sprintf("%s (%s)", def.Title, log.Date),
		}, nil

	case chore.StatusMissed:
		if !def.PenaltyValue.IsPositive() {
			return nil, nil
		}
		return &ledgerEffect{
			amount:      def.PenaltyValue.Neg(),
			txType:      model.TxPenalty,
			description: fmt.Sprintf("Missed: %s (%s)", def.Title, log.Date),
		}, nil
	}

	return nil, nil
}

// earningValue is the flat earn value for fixed-day chores, or the value of
// this log's slot in the week's completion order for weekly-frequency ones.
func (s *Service) earningValue(tx store.Querier, def *model.ChoreDefinition, log *model.ChoreLog) (decimal.Decimal, error) {
	if def.ScheduleKind == model.ScheduleFixedDays {
		return quota.CompletionValue(*def, 1), nil
	}

	day, err := time.Parse(quota.DateLayout, log.Date)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse log date %q: %w", log.Date, err)
	}
	weekStart, err := s.settings.WeekStartDay()
	if err != nil {
		return decimal.Zero, err
	}
	start, end := quota.WeekWindow(day, weekStart)

	position, err := s.chores.CompletionPosition(tx, def.ID, start, end, log.ID, log.Date)
	if err != nil {
		return decimal.Zero, err
	}
	return quota.CompletionValue(*def, position), nil
}

// beneficiary picks the account holder for a posting: the member who did
// the work when known, else the assignee.
func (s *Service) beneficiary(def *model.ChoreDefinition, log *model.ChoreLog) int64 {
	if log.CompletedBy != nil {
		return *log.CompletedBy
	}
	if def.AssignedTo != nil {
		return *def.AssignedTo
	}
	return 0
}
