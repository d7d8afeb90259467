package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/hearthside/chorebank/internal/model"
	"github.com/hearthside/chorebank/internal/quota"
	"github.com/hearthside/chorebank/internal/store"
	"github.com/hearthside/chorebank/internal/websocket"
)

// penaltyWorkers bounds how many members are reconciled at once.
const penaltyWorkers = 4

// ChorePenalty is one under-quota chore in a member's weekly report.
type ChorePenalty struct {
	ChoreID        int64           `json:"chore_id"`
	Title          string          `json:"title"`
	CompletedCount int             `json:"completed_count"`
	TargetCount    int             `json:"target_count"`
	Missed         int             `json:"missed"`
	Amount         decimal.Decimal `json:"amount"`
	Posted         bool            `json:"posted"`
}

// MemberPenaltyReport aggregates one member's weekly penalty outcome.
type MemberPenaltyReport struct {
	MemberID   int64           `json:"member_id"`
	MemberName string          `json:"member_name"`
	Chores     []ChorePenalty  `json:"chores"`
	Total      decimal.Decimal `json:"total"`
}

// RunWeeklyPenaltyReconciliation posts a penalty for every active member's
// weekly chore that fell short of target in the week closing on weekEndDate.
// Each member is an independent unit of work: the idempotency check and the
// posting commit together, so re-running the batch for an already-reconciled
// week is a no-op, and one member's failure is logged and skipped without
// aborting the rest.
func (s *Service) RunWeeklyPenaltyReconciliation(ctx context.Context, weekEndDate string) ([]MemberPenaltyReport, error) {
	start, end, err := quota.WindowEndingOn(weekEndDate)
	if err != nil {
		return nil, err
	}

	percent, err := s.settings.WeeklyPenaltyPercent()
	if err != nil {
		return nil, err
	}

	members, err := s.members.ListActive()
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		reports []MemberPenaltyReport
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(penaltyWorkers)
	for _, m := range members {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			report, err := s.reconcileMemberWeek(m, start, end, percent)
			if err != nil {
				// Isolated failure: skip this member, keep the batch going.
				s.logger.Error("weekly penalty reconciliation failed",
					"member_id", m.ID, "week_end", end, "error", err)
				return nil
			}
			if report != nil {
				mu.Lock()
				reports = append(reports, *report)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].MemberID < reports[j].MemberID })

	s.broadcast(websocket.NewMessage(websocket.EntityPenaltyRun, websocket.ActionCompleted, 0, map[string]any{
		"week_end": end,
		"members":  len(reports),
	}))
	return reports, nil
}

// reconcileMemberWeek handles one member inside one transaction. Returns nil
// when the member has no under-quota chores this week.
func (s *Service) reconcileMemberWeek(m model.FamilyMember, start, end string, percent decimal.Decimal) (*MemberPenaltyReport, error) {
	defs, err := s.chores.ListWeeklyByAssignee(m.ID)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, nil
	}

	report := &MemberPenaltyReport{
		MemberID:   m.ID,
		MemberName: m.Name,
		Total:      decimal.Zero,
	}

	err = store.WithTx(s.db, func(tx *sql.Tx) error {
		for _, def := range defs {
			if !definitionCoversWeek(def, start, end) {
				continue
			}

			completed, err := s.chores.CountCompletedInWindow(tx, def.ID, start, end)
			if err != nil {
				return err
			}
			target := def.TargetCount()
			if completed >= target {
				continue
			}

			missed := target - completed
			amount := def.EarnValue.
				Mul(percent).
				Mul(decimal.NewFromInt(int64(missed))).
				Round(2).
				Neg()

			entry := ChorePenalty{
				ChoreID:        def.ID,
				Title:          def.Title,
				CompletedCount: completed,
				TargetCount:    target,
				Missed:         missed,
				Amount:         amount,
			}

			if amount.IsZero() {
				report.Chores = append(report.Chores, entry)
				continue
			}

			// Idempotency: one penalty per (member, chore, week end), no
			// matter how many times the batch runs.
			existing, err := s.ledger.FindPenalty(tx, m.ID, def.ID, end)
			if err != nil {
				return err
			}
			if existing != nil {
				entry.Amount = existing.Amount
				report.Chores = append(report.Chores, entry)
				report.Total = report.Total.Add(existing.Amount)
				continue
			}

			account, err := s.ledger.EnsureDefaultAccount(tx, m.ID)
			if err != nil {
				return err
			}
			weekEnd := end
			_, err = s.ledger.CreateTransaction(tx, &model.LedgerTransaction{
				AccountID:       account.ID,
				MemberID:        m.ID,
				Amount:          amount,
				Type:            model.TxPenalty,
				ChoreID:         &def.ID,
				WeekEndDate:     &weekEnd,
				Description:     fmt.Sprintf("Weekly quota shortfall: %s (%d of %d)", def.Title, completed, target),
				TransactionDate: end,
			})
			if err != nil {
				return err
			}

			entry.Posted = true
			report.Chores = append(report.Chores, entry)
			report.Total = report.Total.Add(amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(report.Chores) == 0 {
		return nil, nil
	}
	return report, nil
}

// definitionCoversWeek checks the chore's validity window against the week.
func definitionCoversWeek(def model.ChoreDefinition, start, end string) bool {
	if !def.Active {
		return false
	}
	if def.StartsOn != nil && *def.StartsOn > end {
		return false
	}
	if def.EndsOn != nil && *def.EndsOn < start {
		return false
	}
	return true
}
