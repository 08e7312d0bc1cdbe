package engagement

import (
	"math"

	"github.com/willpower-app/willpower/internal/domain"
)

// Fixed point rules. Changing any of these is a policy version bump.
const (
	// FailedChallengePoints is granted for logging a challenge that did not
	// succeed. Logging matters more than the outcome.
	FailedChallengePoints int64 = 1

	// ReflectionBonus is added once per completion event with reflection text.
	ReflectionBonus int64 = 1

	MinDifficulty = 1
	MaxDifficulty = 5
)

// ComputePoints maps an action, its difficulty and the streak in effect to a
// point value. It never mutates anything; validation failures are returned
// before any caller touches state.
//
//   - challenge success: the raw difficulty (1..5), no multiplier
//   - challenge failure: FailedChallengePoints
//   - habit: easy=1 / challenging=2, times the streak multiplier, rounded, min 1
//   - milestone: the user-chosen intensity (1..5) as-is
func ComputePoints(action domain.Action, difficulty int, currentStreak int) (int64, error) {
	switch action {
	case domain.ActionChallengeSuccess:
		if err := validateDifficulty(difficulty); err != nil {
			return 0, err
		}
		return int64(difficulty), nil

	case domain.ActionChallengeFailure:
		if err := validateDifficulty(difficulty); err != nil {
			return 0, err
		}
		return FailedChallengePoints, nil

	case domain.ActionHabit:
		base := domain.HabitDifficulty(difficulty)
		if base != domain.HabitEasy && base != domain.HabitChallenging {
			return 0, domain.ErrInvalidHabitDifficulty
		}
		return ApplyMultiplier(int64(base), Multiplier(currentStreak)), nil

	case domain.ActionMilestone:
		if difficulty < MinDifficulty || difficulty > MaxDifficulty {
			return 0, domain.ErrInvalidMilestonePoints
		}
		return int64(difficulty), nil
	}
	return 0, domain.ErrInvalidAction
}

// ReflectionPoints returns ReflectionBonus when reflection text is present.
func ReflectionPoints(reflection string) int64 {
	if reflection == "" {
		return 0
	}
	return ReflectionBonus
}

// ApplyMultiplier rounds base*multiplier to the nearest integer, minimum 1.
func ApplyMultiplier(base int64, multiplier float64) int64 {
	pts := int64(math.Round(float64(base) * multiplier))
	if pts < 1 {
		return 1
	}
	return pts
}

// ValidateDifficulty checks a 1..5 challenge difficulty.
func ValidateDifficulty(d int) error {
	return validateDifficulty(d)
}

func validateDifficulty(d int) error {
	if d < MinDifficulty || d > MaxDifficulty {
		return domain.ErrInvalidDifficulty
	}
	return nil
}
