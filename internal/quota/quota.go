// Package quota computes weekly completion counts and diminishing-return
// earnings for weekly-frequency chores. Everything here is pure; callers
// supply the completed/approved log count for the week window.
package quota

import (
	"github.com/shopspring/decimal"

	"github.com/hearthside/chorebank/internal/model"
)

// minorUnits is the rounding precision for currency amounts.
const minorUnits = 2

var two = decimal.NewFromInt(2)

// Progress describes where a chore stands within a week.
type Progress struct {
	CompletedCount      int
	TargetCount         int
	BaseEarned          decimal.Decimal
	BonusEarned         decimal.Decimal
	NextCompletionValue decimal.Decimal
}

// BonusValue returns the earnings for the k-th completion beyond target
// (k = 1, 2, 3, ...): earnValue * 0.5^k, rounded to minor units. Each bonus
// term is rounded individually; totals are sums of rounded terms.
func BonusValue(earn decimal.Decimal, k int) decimal.Decimal {
	v := earn
	for i := 0; i < k; i++ {
		v = v.Div(two)
	}
	return v.Round(minorUnits)
}

// CompletionValue returns the earnings for the completion holding the given
// 1-based position within the week. Positions at or under target earn the
// full value; beyond target, repeatable chores earn the diminishing bonus
// and non-repeatable ones earn nothing. Fixed-day chores always earn the
// flat value.
func CompletionValue(def model.ChoreDefinition, position int) decimal.Decimal {
	if def.ScheduleKind == model.ScheduleFixedDays {
		return def.EarnValue.Round(minorUnits)
	}
	target := def.TargetCount()
	if position <= target {
		return def.EarnValue.Round(minorUnits)
	}
	if !def.Repeatable {
		return decimal.Zero
	}
	return BonusValue(def.EarnValue, position-target)
}

// Calculate derives the weekly progress for a weekly-frequency chore given
// the number of its completed/approved logs inside the week window.
func Calculate(def model.ChoreDefinition, completedCount int) Progress {
	target := def.TargetCount()
	p := Progress{
		CompletedCount: completedCount,
		TargetCount:    target,
		BaseEarned:     decimal.Zero,
		BonusEarned:    decimal.Zero,
	}

	base := completedCount
	if base > target {
		base = target
	}
	p.BaseEarned = def.EarnValue.Mul(decimal.NewFromInt(int64(base))).Round(minorUnits)

	if def.Repeatable && completedCount > target {
		for k := 1; k <= completedCount-target; k++ {
			p.BonusEarned = p.BonusEarned.Add(BonusValue(def.EarnValue, k))
		}
	}

	p.NextCompletionValue = CompletionValue(def, completedCount+1)
	return p
}
