package engagement

import (
	"github.com/willpower-app/willpower/internal/domain"
)

// levelLadder is strictly increasing; level 1 starts at 0 points.
var levelLadder = []domain.Level{
	{Number: 1, Threshold: 0, Title: "Spark"},
	{Number: 2, Threshold: 50, Title: "Kindling"},
	{Number: 3, Threshold: 150, Title: "Ember"},
	{Number: 4, Threshold: 300, Title: "Flame"},
	{Number: 5, Threshold: 500, Title: "Blaze"},
	{Number: 6, Threshold: 800, Title: "Torch"},
	{Number: 7, Threshold: 1200, Title: "Beacon"},
	{Number: 8, Threshold: 1800, Title: "Bonfire"},
	{Number: 9, Threshold: 2700, Title: "Inferno"},
	{Number: 10, Threshold: 4000, Title: "Unbreakable"},
}

// MaxLevel is the top of the ladder.
var MaxLevel = len(levelLadder)

// Levels returns a copy of the ladder.
func Levels() []domain.Level {
	out := make([]domain.Level, len(levelLadder))
	copy(out, levelLadder)
	return out
}

// LevelFor returns the highest level whose threshold is <= points.
func LevelFor(points int64) domain.Level {
	for i := len(levelLadder) - 1; i >= 0; i-- {
		if points >= levelLadder[i].Threshold {
			return levelLadder[i]
		}
	}
	return levelLadder[0]
}

// LevelUpBetween reports the final level reached when points move from
// before to after, or nil if the level did not increase.
func LevelUpBetween(before, after int64) *domain.LevelUp {
	from, to := LevelFor(before), LevelFor(after)
	if to.Number <= from.Number {
		return nil
	}
	return &domain.LevelUp{Level: to.Number, Title: to.Title}
}

// PointsToNextLevel returns points remaining until the next level (0 at max).
func PointsToNextLevel(points int64) int64 {
	current := LevelFor(points)
	if current.Number >= MaxLevel {
		return 0
	}
	remaining := levelLadder[current.Number].Threshold - points
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// ProgressPct returns progress toward the next level (0.0–100.0).
func ProgressPct(points int64) float64 {
	current := LevelFor(points)
	if current.Number >= MaxLevel {
		return 100.0
	}
	next := levelLadder[current.Number]
	span := next.Threshold - current.Threshold
	if span <= 0 {
		return 100.0
	}
	progress := float64(points-current.Threshold) / float64(span) * 100.0
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return progress
}
