// Package reconcile drives chore occurrence logs through their status
// machine while keeping the money ledger consistent with them. Every status
// change and its ledger effect commit in one transaction; writers race on an
// optimistic version counter and losers retry from the top a bounded number
// of times.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hearthside/chorebank/internal/chore"
	"github.com/hearthside/chorebank/internal/model"
	"github.com/hearthside/chorebank/internal/quota"
	"github.com/hearthside/chorebank/internal/store"
	"github.com/hearthside/chorebank/internal/websocket"
)

const (
	conflictRetries = 3
	conflictBackoff = 25 * time.Millisecond
)

// Service is the reconciliation engine's public surface.
type Service struct {
	db       *sql.DB
	chores   *store.ChoreStore
	ledger   *store.LedgerStore
	members  *store.FamilyMemberStore
	settings *store.SettingsStore
	hub      *websocket.Hub
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the engine. hub may be nil (no live sync).
func NewService(db *sql.DB, cs *store.ChoreStore, ls *store.LedgerStore, ms *store.FamilyMemberStore, ss *store.SettingsStore, hub *websocket.Hub, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		chores:   cs,
		ledger:   ls,
		members:  ms,
		settings: ss,
		hub:      hub,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StatusChangeRequest asks the engine to move a chore occurrence to a new
// status on behalf of an actor.
type StatusChangeRequest struct {
	ChoreID    int64
	Date       string
	ActorID    int64
	Desired    chore.Status
	HelpReason string
	Notes      string
}

// RequestStatusChange validates the transition, reconciles the ledger, and
// commits both atomically. On a version conflict the whole attempt reruns
// from a fresh read; after the retry budget is spent the conflict surfaces
// as ErrConcurrencyConflict. Requesting the current status is a no-op.
func (s *Service) RequestStatusChange(ctx context.Context, req StatusChangeRequest) (*model.ChoreLog, error) {
	var out *model.ChoreLog
	var mutated bool

	backoff := retry.WithMaxRetries(conflictRetries, retry.NewConstant(conflictBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		log, changed, err := s.attemptStatusChange(req)
		if err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = log
		mutated = changed
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("chore %d on %s: %w", req.ChoreID, req.Date, ErrConcurrencyConflict)
		}
		return nil, err
	}

	if mutated {
		s.broadcast(websocket.NewMessage(websocket.EntityChoreLog, websocket.ActionStatusChanged, out.ID, map[string]any{
			"chore_id": out.ChoreID,
			"date":     out.Date,
			"status":   out.Status,
		}))
	}
	return out, nil
}

// attemptStatusChange is one optimistic pass: read fresh state, run the
// state machine, reconcile the ledger, commit. The returned bool reports
// whether anything was written.
func (s *Service) attemptStatusChange(req StatusChangeRequest) (*model.ChoreLog, bool, error) {
	def, err := s.chores.GetDefinition(req.ChoreID)
	if err != nil {
		return nil, false, err
	}
	if def == nil {
		return nil, false, fmt.Errorf("chore %d: %w", req.ChoreID, ErrNotFound)
	}

	member, err := s.members.GetByID(req.ActorID)
	if err != nil {
		return nil, false, err
	}
	if member == nil {
		return nil, false, fmt.Errorf("member %d: %w", req.ActorID, ErrNotFound)
	}
	actor := chore.Actor{ID: member.ID, Role: member.Role}

	log, err := s.chores.EnsureLog(req.ChoreID, req.Date)
	if err != nil {
		return nil, false, err
	}

	// Re-requesting the current status must not bump the version or touch
	// the ledger.
	if chore.Status(log.Status) == req.Desired {
		return log, false, nil
	}

	newStatus, err := chore.Resolve(*def, *log, req.Desired, actor)
	if err != nil {
		return nil, false, err
	}

	updated := s.applyTransition(*log, newStatus, actor, req)

	err = store.WithTx(s.db, func(tx *sql.Tx) error {
		if err := s.reconcileLedger(tx, def, &updated); err != nil {
			return err
		}
		if err := s.chores.UpdateLog(tx, &updated, log.Version); err != nil {
			return err
		}
		// The new status can shift the week's completion order; re-price
		// the sibling postings it displaced.
		return s.reconcileSiblings(tx, def, &updated)
	})
	if err != nil {
		return nil, false, err
	}
	return &updated, true, nil
}

// applyTransition stamps the metadata that goes with the new status.
func (s *Service) applyTransition(log model.ChoreLog, newStatus chore.Status, actor chore.Actor, req StatusChangeRequest) model.ChoreLog {
	now := s.now()
	from := chore.Status(log.Status)
	updated := log
	updated.Status = string(newStatus)

	// Leaving help always clears the request metadata.
	if from == chore.StatusHelp {
		updated.HelpReason = nil
		updated.HelpRequestedAt = nil
	}

	switch newStatus {
	case chore.StatusCompleted:
		if from == chore.StatusApproved {
			// Un-approve: the original completion stands, review restarts.
			updated.ApprovedBy = nil
			updated.ApprovedAt = nil
		} else {
			updated.CompletedBy = &actor.ID
			updated.CompletedAt = &now
			updated.ApprovedBy = nil
			updated.ApprovedAt = nil
		}
	case chore.StatusApproved:
		if updated.CompletedBy == nil && from != chore.StatusHelp {
			updated.CompletedBy = &actor.ID
		}
		if updated.CompletedAt == nil {
			updated.CompletedAt = &now
		}
		updated.ApprovedBy = &actor.ID
		updated.ApprovedAt = &now
	case chore.StatusHelp:
		if req.HelpReason != "" {
			updated.HelpReason = &req.HelpReason
		}
		updated.HelpRequestedAt = &now
	case chore.StatusPending, chore.StatusMissed, chore.StatusSkipped:
		updated.CompletedBy = nil
		updated.CompletedAt = nil
		updated.ApprovedBy = nil
		updated.ApprovedAt = nil
	}

	if req.Notes != "" {
		updated.Notes = req.Notes
	}
	return updated
}

// GetWeeklyProgress derives the quota snapshot for one chore as of a date.
func (s *Service) GetWeeklyProgress(ctx context.Context, choreID int64, asOf time.Time) (*model.WeeklyProgress, error) {
	def, err := s.chores.GetDefinition(choreID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("chore %d: %w", choreID, ErrNotFound)
	}
	return s.progressFor(def, asOf)
}

// MemberWeeklyProgress derives snapshots for every active weekly chore
// assigned to a member.
func (s *Service) MemberWeeklyProgress(ctx context.Context, memberID int64, asOf time.Time) ([]model.WeeklyProgress, error) {
	defs, err := s.chores.ListWeeklyByAssignee(memberID)
	if err != nil {
		return nil, err
	}

	var snapshots []model.WeeklyProgress
	for i := range defs {
		p, err := s.progressFor(&defs[i], asOf)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *p)
	}
	return snapshots, nil
}

func (s *Service) progressFor(def *model.ChoreDefinition, asOf time.Time) (*model.WeeklyProgress, error) {
	weekStart, err := s.settings.WeekStartDay()
	if err != nil {
		return nil, err
	}
	start, end := quota.WeekWindow(asOf, weekStart)

	count, err := s.chores.CountCompletedInWindow(s.db, def.ID, start, end)
	if err != nil {
		return nil, err
	}

	p := quota.Calculate(*def, count)
	return &model.WeeklyProgress{
		ChoreID:             def.ID,
		WeekStart:           start,
		WeekEnd:             end,
		CompletedCount:      p.CompletedCount,
		TargetCount:         p.TargetCount,
		BaseEarned:          p.BaseEarned,
		BonusEarned:         p.BonusEarned,
		NextCompletionValue: p.NextCompletionValue,
	}, nil
}

func (s *Service) broadcast(msg websocket.Message) {
	if s.hub != nil {
		s.hub.Broadcast(msg)
	}
}
