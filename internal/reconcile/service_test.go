package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearthside/chorebank/internal/chore"
	"github.com/hearthside/chorebank/internal/database"
	"github.com/hearthside/chorebank/internal/model"
	"github.com/hearthside/chorebank/internal/quota"
	"github.com/hearthside/chorebank/internal/store"
)

type testEnv struct {
	svc     *Service
	chores  *store.ChoreStore
	ledger  *store.LedgerStore
	members *store.FamilyMemberStore
	parent  *model.FamilyMember
	kid     *model.FamilyMember
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cs := store.NewChoreStore(db)
	ls := store.NewLedgerStore(db)
	ms := store.NewFamilyMemberStore(db)
	ss := store.NewSettingsStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	parent, err := ms.Create("Ana", "", "", model.RoleParent)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	kid, err := ms.Create("Maya", "", "", model.RoleKid)
	if err != nil {
		t.Fatalf("create kid: %v", err)
	}

	return &testEnv{
		svc:     NewService(db, cs, ls, ms, ss, nil, logger),
		chores:  cs,
		ledger:  ls,
		members: ms,
		parent:  parent,
		kid:     kid,
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(s string) time.Time {
	t, err := time.Parse(quota.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func (e *testEnv) createChore(t *testing.T, d model.ChoreDefinition) *model.ChoreDefinition {
	t.Helper()
	if d.ScheduleKind == "" {
		d.ScheduleKind = model.ScheduleFixedDays
	}
	d.Active = true
	def, err := e.chores.CreateDefinition(&d)
	if err != nil {
		t.Fatalf("create chore: %v", err)
	}
	return def
}

func (e *testEnv) change(t *testing.T, choreID int64, date string, actorID int64, desired chore.Status) *model.ChoreLog {
	t.Helper()
	log, err := e.svc.RequestStatusChange(context.Background(), StatusChangeRequest{
		ChoreID: choreID,
		Date:    date,
		ActorID: actorID,
		Desired: desired,
	})
	if err != nil {
		t.Fatalf("status change to %s: %v", desired, err)
	}
	return log
}

func (e *testEnv) txCount(t *testing.T, memberID int64) int {
	t.Helper()
	txns, err := e.ledger.ListByMember(memberID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	return len(txns)
}

func TestAutoApproveCompletionPostsEarning(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Make bed", EarnValue: dec("5.00"), AutoApprove: true, AssignedTo: &e.kid.ID,
	})

	log := e.change(t, def.ID, "2026-08-24", e.kid.ID, chore.StatusCompleted)
	if log.Status != string(chore.StatusApproved) {
		t.Fatalf("status = %q, want approved", log.Status)
	}
	if log.TransactionID == nil {
		t.Fatal("no transaction linked")
	}

	txn, err := e.ledger.GetTransaction(*log.TransactionID)
	if err != nil || txn == nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.Amount.StringFixed(2) != "5.00" {
		t.Errorf("amount = %s, want 5.00", txn.Amount.StringFixed(2))
	}
	if txn.Type != model.TxChoreEarning {
		t.Errorf("type = %q, want chore_earning", txn.Type)
	}
	if txn.MemberID != e.kid.ID {
		t.Errorf("member = %d, want %d", txn.MemberID, e.kid.ID)
	}

	balance, err := e.ledger.BalanceForMember(e.kid.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.StringFixed(2) != "5.00" {
		t.Errorf("balance = %s, want 5.00", balance.StringFixed(2))
	}
}

func TestManualApprovalFlow(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Dishes", EarnValue: dec("2.00"), AssignedTo: &e.kid.ID,
	})

	// Completion alone carries no money.
	log := e.change(t, def.ID, "2026-08-24", e.kid.ID, chore.StatusCompleted)
	if log.Status != string(chore.StatusCompleted) {
		t.Fatalf("status = %q, want completed", log.Status)
	}
	if log.TransactionID != nil {
		t.Error("completed log should not link a transaction")
	}

	// Approval posts the earning.
	log = e.change(t, def.ID, "2026-08-24", e.parent.ID, chore.StatusApproved)
	if log.TransactionID == nil {
		t.Fatal("approved log should link a transaction")
	}
	earningID := *log.TransactionID

	// Reverting removes it again.
	log = e.change(t, def.ID, "2026-08-24", e.parent.ID, chore.StatusPending)
	if log.TransactionID != nil {
		t.Error("pending log still links a transaction")
	}
	gone, err := e.ledger.GetTransaction(earningID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if gone != nil {
		t.Error("earning survived the revert")
	}
	if n := e.txCount(t, e.kid.ID); n != 0 {
		t.Errorf("transactions = %d, want 0", n)
	}
}

func TestRepeatedRequestIsNoOp(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Make bed", EarnValue: dec("5.00"), AutoApprove: true, AssignedTo: &e.kid.ID,
	})

	first := e.change(t, def.ID, "2026-08-24", e.kid.ID, chore.StatusApproved)
	second := e.change(t, def.ID, "2026-08-24", e.kid.ID, chore.StatusApproved)

	if second.Version != first.Version {
		t.Errorf("version bumped %d -> %d on a no-op", first.Version, second.Version)
	}
	if n := e.txCount(t, e.kid.ID); n != 1 {
		t.Errorf("transactions = %d, want 1", n)
	}
}

func TestMissedPostsAndRevertsPenalty(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Walk dog", EarnValue: dec("3.00"), PenaltyValue: dec("2.00"), AssignedTo: &e.kid.ID,
	})

	log := e.change(t, def.ID, "2026-08-24", e.parent.ID, chore.StatusMissed)
	if log.TransactionID == nil {
		t.Fatal("missed log should link a penalty")
	}
	txn, err := e.ledger.GetTransaction(*log.TransactionID)
	if err != nil || txn == nil {
		t.Fatalf("get transaction: %v", err)
	}
	if txn.Amount.StringFixed(2) != "-2.00" || txn.Type != model.TxPenalty {
		t.Errorf("penalty = %s %q, want -2.00 penalty", txn.Amount.StringFixed(2), txn.Type)
	}

	log = e.change(t, def.ID, "2026-08-24", e.parent.ID, chore.StatusPending)
	if log.TransactionID != nil {
		t.Error("pending log still links a transaction")
	}
	if n := e.txCount(t, e.kid.ID); n != 0 {
		t.Errorf("transactions = %d, want 0", n)
	}
}

func TestMissedWithoutPenaltyValuePostsNothing(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Water plants", EarnValue: dec("1.00"), AssignedTo: &e.kid.ID,
	})

	log := e.change(t, def.ID, "2026-08-24", e.parent.ID, chore.StatusMissed)
	if log.TransactionID != nil {
		t.Error("zero-penalty miss linked a transaction")
	}
}

func TestMissedUnassignedChorePostsNothing(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Sweep porch", EarnValue: dec("1.00"), PenaltyValue: dec("1.00"),
	})

	// Nobody to charge: no assignee and no completer.
	log := e.change(t, def.ID, "2026-08-24", e.parent.ID, chore.StatusMissed)
	if log.TransactionID != nil {
		t.Error("unassigned miss linked a transaction")
	}
}

func TestWeeklyCompletionValuesFollowOrder(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Practice piano", EarnValue: dec("10.00"), AssignedTo: &e.kid.ID,
		ScheduleKind: model.ScheduleWeeklyFrequency, WeeklyTarget: 2,
		Repeatable: true, AutoApprove: true,
	})

	// Monday-start week 2026-08-24..30; target 2, so the third earns bonus.
	wants := map[string]string{
		"2026-08-24": "10.00",
		"2026-08-25": "10.00",
		"2026-08-26": "5.00",
	}
	for _, date := range []string{"2026-08-24", "2026-08-25", "2026-08-26"} {
		log := e.change(t, def.ID, date, e.kid.ID, chore.StatusCompleted)
		if log.TransactionID == nil {
			t.Fatalf("%s: no transaction linked", date)
		}
		txn, err := e.ledger.GetTransaction(*log.TransactionID)
		if err != nil || txn == nil {
			t.Fatalf("%s: get transaction: %v", date, err)
		}
		if txn.Amount.StringFixed(2) != wants[date] {
			t.Errorf("%s amount = %s, want %s", date, txn.Amount.StringFixed(2), wants[date])
		}
	}

	balance, err := e.ledger.BalanceForMember(e.kid.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.StringFixed(2) != "25.00" {
		t.Errorf("balance = %s, want 25.00", balance.StringFixed(2))
	}
}

func TestNonRepeatableExtraCompletionEarnsNothing(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Laundry", EarnValue: dec("4.00"), AssignedTo: &e.kid.ID,
		ScheduleKind: model.ScheduleWeeklyFrequency, WeeklyTarget: 1,
		AutoApprove: true,
	})

	first := e.change(t, def.ID, "2026-08-24", e.kid.ID, chore.StatusCompleted)
	if first.TransactionID == nil {
		t.Fatal("first completion should post")
	}
	second := e.change(t, def.ID, "2026-08-25", e.kid.ID, chore.StatusCompleted)
	if second.TransactionID != nil {
		t.Error("over-target completion on a non-repeatable chore posted money")
	}
}

func TestBackfillRepricesEarlierCompletion(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Read a chapter", EarnValue: dec("10.00"), AssignedTo: &e.kid.ID,
		ScheduleKind: model.ScheduleWeeklyFrequency, WeeklyTarget: 1,
		Repeatable: true, AutoApprove: true,
	})

	// Tuesday lands first and takes the full-value slot.
	tue := e.change(t, def.ID, "2026-08-25", e.kid.ID, chore.StatusCompleted)
	txn, err := e.ledger.GetTransaction(*tue.TransactionID)
	if err != nil || txn == nil {
		t.Fatalf("get tuesday transaction: %v", err)
	}
	if txn.Amount.StringFixed(2) != "10.00" {
		t.Fatalf("tuesday amount = %s, want 10.00", txn.Amount.StringFixed(2))
	}

	// Back-filling Monday outranks Tuesday by date and demotes it to the
	// first bonus slot; Tuesday's posting must follow.
	mon := e.change(t, def.ID, "2026-08-24", e.kid.ID, chore.StatusCompleted)
	txn, err = e.ledger.GetTransaction(*mon.TransactionID)
	if err != nil || txn == nil {
		t.Fatalf("get monday transaction: %v", err)
	}
	if txn.Amount.StringFixed(2) != "10.00" {
		t.Errorf("monday amount = %s, want 10.00", txn.Amount.StringFixed(2))
	}

	repriced, err := e.chores.GetLog(def.ID, "2026-08-25")
	if err != nil || repriced == nil {
		t.Fatalf("reload tuesday log: %v", err)
	}
	if repriced.TransactionID == nil {
		t.Fatal("tuesday log lost its transaction")
	}
	if *repriced.TransactionID == *tue.TransactionID {
		t.Error("tuesday still links its pre-backfill transaction")
	}
	if repriced.Version != tue.Version+1 {
		t.Errorf("tuesday version = %d, want %d", repriced.Version, tue.Version+1)
	}
	txn, err = e.ledger.GetTransaction(*repriced.TransactionID)
	if err != nil || txn == nil {
		t.Fatalf("get repriced transaction: %v", err)
	}
	if txn.Amount.StringFixed(2) != "5.00" {
		t.Errorf("tuesday repriced amount = %s, want 5.00", txn.Amount.StringFixed(2))
	}

	balance, err := e.ledger.BalanceForMember(e.kid.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.StringFixed(2) != "15.00" {
		t.Errorf("balance = %s, want 15.00", balance.StringFixed(2))
	}
}

func TestRevertRepricesRemainingCompletion(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Read a chapter", EarnValue: dec("10.00"), AssignedTo: &e.kid.ID,
		ScheduleKind: model.ScheduleWeeklyFrequency, WeeklyTarget: 1,
		Repeatable: true, AutoApprove: true,
	})

	e.change(t, def.ID, "2026-08-24", e.kid.ID, chore.StatusCompleted)
	tue := e.change(t, def.ID, "2026-08-25", e.kid.ID, chore.StatusCompleted)
	txn, err := e.ledger.GetTransaction(*tue.TransactionID)
	if err != nil || txn == nil {
		t.Fatalf("get tuesday transaction: %v", err)
	}
	if txn.Amount.StringFixed(2) != "5.00" {
		t.Fatalf("tuesday amount = %s, want 5.00", txn.Amount.StringFixed(2))
	}

	// Reverting Monday promotes Tuesday into the full-value slot.
	mon := e.change(t, def.ID, "2026-08-24", e.kid.ID, chore.StatusPending)
	if mon.TransactionID != nil {
		t.Error("reverted log still links a transaction")
	}

	repriced, err := e.chores.GetLog(def.ID, "2026-08-25")
	if err != nil || repriced == nil {
		t.Fatalf("reload tuesday log: %v", err)
	}
	if repriced.TransactionID == nil {
		t.Fatal("tuesday log lost its transaction")
	}
	txn, err = e.ledger.GetTransaction(*repriced.TransactionID)
	if err != nil || txn == nil {
		t.Fatalf("get repriced transaction: %v", err)
	}
	if txn.Amount.StringFixed(2) != "10.00" {
		t.Errorf("tuesday repriced amount = %s, want 10.00", txn.Amount.StringFixed(2))
	}

	if n := e.txCount(t, e.kid.ID); n != 1 {
		t.Errorf("transactions = %d, want 1", n)
	}
	balance, err := e.ledger.BalanceForMember(e.kid.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.StringFixed(2) != "10.00" {
		t.Errorf("balance = %s, want 10.00", balance.StringFixed(2))
	}
}

func TestStatusChangeConflictExhaustsRetries(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Dishes", EarnValue: dec("2.00"), AutoApprove: true, AssignedTo: &e.kid.ID,
	})
	if _, err := e.chores.EnsureLog(def.ID, "2026-08-24"); err != nil {
		t.Fatalf("ensure log: %v", err)
	}

	// A rival writer bumps the version between every read and commit, so
	// each optimistic attempt touches zero rows.
	e.svc.now = func() time.Time {
		fresh, err := e.chores.GetLog(def.ID, "2026-08-24")
		if err != nil || fresh == nil {
			t.Fatalf("reload log: %v", err)
		}
		rival := *fresh
		if err := e.chores.UpdateLog(e.chores.DB(), &rival, fresh.Version); err != nil {
			t.Fatalf("rival update: %v", err)
		}
		return time.Now().UTC()
	}

	_, err := e.svc.RequestStatusChange(context.Background(), StatusChangeRequest{
		ChoreID: def.ID, Date: "2026-08-24", ActorID: e.kid.ID, Desired: chore.StatusCompleted,
	})
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("error = %v, want ErrConcurrencyConflict", err)
	}

	// The loser left no durable status change and no money behind.
	log, err := e.chores.GetLog(def.ID, "2026-08-24")
	if err != nil || log == nil {
		t.Fatalf("reload log: %v", err)
	}
	if log.Status != string(chore.StatusPending) {
		t.Errorf("status = %q, want pending", log.Status)
	}
	if n := e.txCount(t, e.kid.ID); n != 0 {
		t.Errorf("transactions = %d, want 0", n)
	}
}

func TestStatusChangeRecoversFromConflict(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Dishes", EarnValue: dec("2.00"), AutoApprove: true, AssignedTo: &e.kid.ID,
	})
	if _, err := e.chores.EnsureLog(def.ID, "2026-08-24"); err != nil {
		t.Fatalf("ensure log: %v", err)
	}

	// One conflicting write; the retry's fresh read then commits cleanly.
	conflicted := false
	e.svc.now = func() time.Time {
		if !conflicted {
			conflicted = true
			fresh, err := e.chores.GetLog(def.ID, "2026-08-24")
			if err != nil || fresh == nil {
				t.Fatalf("reload log: %v", err)
			}
			rival := *fresh
			if err := e.chores.UpdateLog(e.chores.DB(), &rival, fresh.Version); err != nil {
				t.Fatalf("rival update: %v", err)
			}
		}
		return time.Now().UTC()
	}

	log := e.change(t, def.ID, "2026-08-24", e.kid.ID, chore.StatusCompleted)
	if log.Status != string(chore.StatusApproved) {
		t.Errorf("status = %q, want approved", log.Status)
	}
	if n := e.txCount(t, e.kid.ID); n != 1 {
		t.Errorf("transactions = %d, want 1", n)
	}
}

func TestStatusChangeErrors(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Dishes", EarnValue: dec("2.00"), AssignedTo: &e.kid.ID,
	})

	_, err := e.svc.RequestStatusChange(context.Background(), StatusChangeRequest{
		ChoreID: 999, Date: "2026-08-24", ActorID: e.kid.ID, Desired: chore.StatusCompleted,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown chore error = %v, want ErrNotFound", err)
	}

	_, err = e.svc.RequestStatusChange(context.Background(), StatusChangeRequest{
		ChoreID: def.ID, Date: "2026-08-24", ActorID: 999, Desired: chore.StatusCompleted,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown actor error = %v, want ErrNotFound", err)
	}

	_, err = e.svc.RequestStatusChange(context.Background(), StatusChangeRequest{
		ChoreID: def.ID, Date: "2026-08-24", ActorID: e.kid.ID, Desired: chore.StatusMissed,
	})
	if !errors.Is(err, chore.ErrNotAuthorized) {
		t.Errorf("kid marking missed error = %v, want ErrNotAuthorized", err)
	}

	e.change(t, def.ID, "2026-08-24", e.parent.ID, chore.StatusSkipped)
	_, err = e.svc.RequestStatusChange(context.Background(), StatusChangeRequest{
		ChoreID: def.ID, Date: "2026-08-24", ActorID: e.parent.ID, Desired: chore.StatusApproved,
	})
	if !errors.Is(err, chore.ErrInvalidTransition) {
		t.Errorf("skipped->approved error = %v, want ErrInvalidTransition", err)
	}
}

func TestHelpMetadataLifecycle(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Clean room", EarnValue: dec("2.00"), AssignedTo: &e.kid.ID,
	})

	log, err := e.svc.RequestStatusChange(context.Background(), StatusChangeRequest{
		ChoreID: def.ID, Date: "2026-08-24", ActorID: e.kid.ID,
		Desired: chore.StatusHelp, HelpReason: "can't reach the shelf",
	})
	if err != nil {
		t.Fatalf("request help: %v", err)
	}
	if log.HelpReason == nil || *log.HelpReason != "can't reach the shelf" {
		t.Errorf("help reason = %v, want set", log.HelpReason)
	}
	if log.HelpRequestedAt == nil {
		t.Error("help_requested_at not stamped")
	}

	log = e.change(t, def.ID, "2026-08-24", e.parent.ID, chore.StatusApproved)
	if log.HelpReason != nil || log.HelpRequestedAt != nil {
		t.Error("help metadata survived resolution")
	}
	if log.TransactionID == nil {
		t.Error("help resolved to approved should post the earning")
	}
}

func TestGetWeeklyProgress(t *testing.T) {
	e := setupService(t)
	def := e.createChore(t, model.ChoreDefinition{
		Title: "Practice piano", EarnValue: dec("10.00"), AssignedTo: &e.kid.ID,
		ScheduleKind: model.ScheduleWeeklyFrequency, WeeklyTarget: 2,
		Repeatable: true, AutoApprove: true,
	})

	for _, date := range []string{"2026-08-24", "2026-08-25", "2026-08-26"} {
		e.change(t, def.ID, date, e.kid.ID, chore.StatusCompleted)
	}

	asOf := day("2026-08-27")
	p, err := e.svc.GetWeeklyProgress(context.Background(), def.ID, asOf)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.WeekStart != "2026-08-24" || p.WeekEnd != "2026-08-30" {
		t.Errorf("window = [%s, %s], want [2026-08-24, 2026-08-30]", p.WeekStart, p.WeekEnd)
	}
	if p.CompletedCount != 3 || p.TargetCount != 2 {
		t.Errorf("counts = %d/%d, want 3/2", p.CompletedCount, p.TargetCount)
	}
	if p.BaseEarned.StringFixed(2) != "20.00" {
		t.Errorf("base = %s, want 20.00", p.BaseEarned.StringFixed(2))
	}
	if p.BonusEarned.StringFixed(2) != "5.00" {
		t.Errorf("bonus = %s, want 5.00", p.BonusEarned.StringFixed(2))
	}
	if p.NextCompletionValue.StringFixed(2) != "2.50" {
		t.Errorf("next = %s, want 2.50", p.NextCompletionValue.StringFixed(2))
	}

	if _, err := e.svc.GetWeeklyProgress(context.Background(), 999, asOf); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown chore error = %v, want ErrNotFound", err)
	}
}
