package quota

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearthside/chorebank/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func weeklyDef(earn string, target int, repeatable bool) model.ChoreDefinition {
	return model.ChoreDefinition{
		ID:           1,
		Title:        "Practice piano",
		EarnValue:    dec(earn),
		ScheduleKind: model.ScheduleWeeklyFrequency,
		WeeklyTarget: target,
		Repeatable:   repeatable,
	}
}

func TestBonusValueHalvesPerTerm(t *testing.T) {
	earn := dec("10.00")

	tests := []struct {
		k    int
		want string
	}{
		{1, "5.00"},
		{2, "2.50"},
		{3, "1.25"},
		{4, "0.63"}, // 0.625 rounds half away from zero
		{5, "0.31"},
	}
	for _, tt := range tests {
		got := BonusValue(earn, tt.k)
		if got.StringFixed(2) != tt.want {
			t.Errorf("BonusValue(10, %d) = %s, want %s", tt.k, got.StringFixed(2), tt.want)
		}
	}
}

func TestBonusValueRoundsEachTerm(t *testing.T) {
	// 0.25 / 2 = 0.125 -> 0.13 after per-term rounding, not 0.12 or 0.125.
	got := BonusValue(dec("0.25"), 1)
	if got.StringFixed(2) != "0.13" {
		t.Errorf("BonusValue(0.25, 1) = %s, want 0.13", got.StringFixed(2))
	}
}

func TestCompletionValueWithinTarget(t *testing.T) {
	def := weeklyDef("3.00", 3, true)
	for pos := 1; pos <= 3; pos++ {
		if got := CompletionValue(def, pos); got.StringFixed(2) != "3.00" {
			t.Errorf("CompletionValue(pos %d) = %s, want 3.00", pos, got.StringFixed(2))
		}
	}
}

func TestCompletionValueBeyondTarget(t *testing.T) {
	repeatable := weeklyDef("3.00", 3, true)
	if got := CompletionValue(repeatable, 4); got.StringFixed(2) != "1.50" {
		t.Errorf("4th completion = %s, want 1.50", got.StringFixed(2))
	}
	if got := CompletionValue(repeatable, 5); got.StringFixed(2) != "0.75" {
		t.Errorf("5th completion = %s, want 0.75", got.StringFixed(2))
	}

	capped := weeklyDef("3.00", 3, false)
	if got := CompletionValue(capped, 4); !got.IsZero() {
		t.Errorf("non-repeatable 4th completion = %s, want 0", got)
	}
}

func TestCompletionValueFixedDays(t *testing.T) {
	def := model.ChoreDefinition{
		EarnValue:    dec("2.00"),
		ScheduleKind: model.ScheduleFixedDays,
	}
	// Fixed-day chores earn the flat value regardless of position.
	if got := CompletionValue(def, 7); got.StringFixed(2) != "2.00" {
		t.Errorf("fixed-day completion = %s, want 2.00", got.StringFixed(2))
	}
}

func TestCalculateUnderTarget(t *testing.T) {
	def := weeklyDef("4.00", 3, true)
	p := Calculate(def, 2)

	if p.CompletedCount != 2 || p.TargetCount != 3 {
		t.Errorf("counts = %d/%d, want 2/3", p.CompletedCount, p.TargetCount)
	}
	if p.BaseEarned.StringFixed(2) != "8.00" {
		t.Errorf("base = %s, want 8.00", p.BaseEarned.StringFixed(2))
	}
	if !p.BonusEarned.IsZero() {
		t.Errorf("bonus = %s, want 0", p.BonusEarned)
	}
	if p.NextCompletionValue.StringFixed(2) != "4.00" {
		t.Errorf("next = %s, want 4.00", p.NextCompletionValue.StringFixed(2))
	}
}

func TestCalculateOverTarget(t *testing.T) {
	def := weeklyDef("10.00", 2, true)
	p := Calculate(def, 5)

	if p.BaseEarned.StringFixed(2) != "20.00" {
		t.Errorf("base = %s, want 20.00", p.BaseEarned.StringFixed(2))
	}
	// 5.00 + 2.50 + 1.25
	if p.BonusEarned.StringFixed(2) != "8.75" {
		t.Errorf("bonus = %s, want 8.75", p.BonusEarned.StringFixed(2))
	}
	// 4th term past target: 10 / 2^4 = 0.625 -> 0.63
	if p.NextCompletionValue.StringFixed(2) != "0.63" {
		t.Errorf("next = %s, want 0.63", p.NextCompletionValue.StringFixed(2))
	}
}

func TestCalculateNonRepeatableCapped(t *testing.T) {
	def := weeklyDef("4.00", 2, false)
	p := Calculate(def, 4)

	if p.BaseEarned.StringFixed(2) != "8.00" {
		t.Errorf("base = %s, want 8.00", p.BaseEarned.StringFixed(2))
	}
	if !p.BonusEarned.IsZero() {
		t.Errorf("bonus = %s, want 0", p.BonusEarned)
	}
	if !p.NextCompletionValue.IsZero() {
		t.Errorf("next = %s, want 0", p.NextCompletionValue)
	}
}

func TestWeekWindowMondayStart(t *testing.T) {
	// Wednesday 2026-08-26 in a Monday-start week.
	asOf := time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC)
	start, end := WeekWindow(asOf, time.Monday)
	if start != "2026-08-24" || end != "2026-08-30" {
		t.Errorf("window = [%s, %s], want [2026-08-24, 2026-08-30]", start, end)
	}

	// The start day itself maps to the same window.
	start, end = WeekWindow(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), time.Monday)
	if start != "2026-08-24" || end != "2026-08-30" {
		t.Errorf("window = [%s, %s], want [2026-08-24, 2026-08-30]", start, end)
	}
}

func TestWeekWindowSundayStart(t *testing.T) {
	asOf := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	start, end := WeekWindow(asOf, time.Sunday)
	if start != "2026-08-23" || end != "2026-08-29" {
		t.Errorf("window = [%s, %s], want [2026-08-23, 2026-08-29]", start, end)
	}
}

func TestWindowEndingOn(t *testing.T) {
	start, end, err := WindowEndingOn("2026-08-30")
	if err != nil {
		t.Fatalf("window ending on: %v", err)
	}
	if start != "2026-08-24" || end != "2026-08-30" {
		t.Errorf("window = [%s, %s], want [2026-08-24, 2026-08-30]", start, end)
	}

	if _, _, err := WindowEndingOn("30/08/2026"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestParseWeekStartDay(t *testing.T) {
	day, err := ParseWeekStartDay(" Sunday ")
	if err != nil || day != time.Sunday {
		t.Errorf("ParseWeekStartDay(Sunday) = %v, %v", day, err)
	}
	if _, err := ParseWeekStartDay("someday"); err == nil {
		t.Error("expected error for unknown day")
	}
}
