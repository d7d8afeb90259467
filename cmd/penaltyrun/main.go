package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hearthside/chorebank/internal/database"
	"github.com/hearthside/chorebank/internal/logging"
	"github.com/hearthside/chorebank/internal/quota"
	"github.com/hearthside/chorebank/internal/reconcile"
	"github.com/hearthside/chorebank/internal/store"
)

// Runs the weekly penalty reconciliation once and prints the per-member
// report. Meant to be invoked from cron shortly after the week rolls over.
func main() {
	dbPath := os.Getenv("CHOREBANK_DB_PATH")
	if dbPath == "" {
		dbPath = "chorebank.db"
	}

	logger := logging.Setup("penaltyrun", os.Getenv("CHOREBANK_LOG_LEVEL"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	memberStore := store.NewFamilyMemberStore(db)
	choreStore := store.NewChoreStore(db)
	ledgerStore := store.NewLedgerStore(db)
	settingsStore := store.NewSettingsStore(db)

	weekEnd := os.Getenv("CHOREBANK_WEEK_END")
	if weekEnd == "" {
		weekStart, err := settingsStore.WeekStartDay()
		if err != nil {
			log.Fatalf("failed to read week start setting: %v", err)
		}
		// Default to the most recently completed week.
		start, _ := quota.WeekWindow(time.Now(), weekStart)
		startDay, err := time.Parse(quota.DateLayout, start)
		if err != nil {
			log.Fatalf("failed to parse week start: %v", err)
		}
		weekEnd = startDay.AddDate(0, 0, -1).Format(quota.DateLayout)
	} else if _, err := time.Parse(quota.DateLayout, weekEnd); err != nil {
		log.Fatalf("invalid CHOREBANK_WEEK_END %q: want YYYY-MM-DD", weekEnd)
	}

	svc := reconcile.NewService(db, choreStore, ledgerStore, memberStore, settingsStore, nil,
		logger.With("component", "reconcile"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reports, err := svc.RunWeeklyPenaltyReconciliation(ctx, weekEnd)
	if err != nil {
		log.Fatalf("penalty reconciliation failed: %v", err)
	}

	fmt.Printf("Penalty reconciliation for week ending %s\n", weekEnd)
	for _, report := range reports {
		fmt.Printf("  %s (member %d): total %s\n", report.MemberName, report.MemberID, report.Total.StringFixed(2))
		for _, p := range report.Chores {
			posted := "unchanged"
			if p.Posted {
				posted = "posted"
			}
			fmt.Printf("    %s: %d/%d done, %d missed, %s (%s)\n",
				p.Title, p.CompletedCount, p.TargetCount, p.Missed, p.Amount.StringFixed(2), posted)
		}
	}
}
