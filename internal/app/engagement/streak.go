package engagement

import (
	"github.com/willpower-app/willpower/internal/domain"
)

// streakTiers are contiguous and non-overlapping; the last tier is unbounded.
var streakTiers = []domain.StreakTier{
	{MinDays: 1, MaxDays: 2, Multiplier: 1.0},
	{MinDays: 3, MaxDays: 6, Multiplier: 1.2},
	{MinDays: 7, MaxDays: 13, Multiplier: 1.5},
	{MinDays: 14, MaxDays: 29, Multiplier: 1.75},
	{MinDays: 30, Multiplier: 2.0},
}

// Tiers returns a copy of the multiplier table.
func Tiers() []domain.StreakTier {
	out := make([]domain.StreakTier, len(streakTiers))
	copy(out, streakTiers)
	return out
}

// tierIndex returns the index of the tier containing streak.
// Streaks below 1 (no activity) fall into the first tier.
func tierIndex(streak int) int {
	for i := len(streakTiers) - 1; i >= 0; i-- {
		if streak >= streakTiers[i].MinDays {
			return i
		}
	}
	return 0
}

// TierFor returns the tier for a streak length.
func TierFor(streak int) domain.StreakTier {
	return streakTiers[tierIndex(streak)]
}

// Multiplier returns the point multiplier for a streak length.
func Multiplier(streak int) float64 {
	return TierFor(streak).Multiplier
}

// AdvanceStreak applies a qualifying activity on day to the record.
//
//   - last activity was the day before: streak + 1
//   - last activity was today: unchanged (idempotent)
//   - otherwise (gap, first activity, or clock moved backwards): reset to 1
//
// LastActivityDate is always set to day. A TierUp is returned only when the
// streak moves into a higher tier.
func AdvanceStreak(rec domain.WillpowerRecord, day domain.Date) (domain.WillpowerRecord, *domain.TierUp) {
	before := rec.CurrentStreak

	switch {
	case rec.LastActivityDate == day:
		// Already counted today.
	case !rec.LastActivityDate.IsZero() && rec.LastActivityDate.AddDays(1) == day:
		rec.CurrentStreak++
	default:
		rec.CurrentStreak = 1
	}

	rec.LastActivityDate = day
	if rec.CurrentStreak > rec.LongestStreak {
		rec.LongestStreak = rec.CurrentStreak
	}

	if rec.CurrentStreak > before && tierIndex(rec.CurrentStreak) > tierIndex(before) && before > 0 {
		tier := TierFor(rec.CurrentStreak)
		return rec, &domain.TierUp{Streak: rec.CurrentStreak, Multiplier: tier.Multiplier}
	}
	return rec, nil
}

// EffectiveStreak is the streak still in force on today: the stored streak if
// the user was active today or yesterday, otherwise 0 (the streak lapsed and
// will reset on the next activity).
func EffectiveStreak(rec domain.WillpowerRecord, today domain.Date) int {
	if rec.LastActivityDate.IsZero() {
		return 0
	}
	if rec.LastActivityDate == today || rec.LastActivityDate.AddDays(1) == today {
		return rec.CurrentStreak
	}
	return 0
}
