// Package engagement implements the willpower economy: the point policy,
// streak tiers, the level ladder, the per-user point bank and notifications.
package engagement

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/willpower-app/willpower/internal/domain"
	"github.com/willpower-app/willpower/internal/infra/metrics"
)

// Bank owns every user's WillpowerRecord. AwardPoints is the only way points
// are added and Reverse the only way they are removed.
type Bank struct {
	store domain.Store
	notes *Notifications
	clock Clock
	log   *zap.Logger
}

// NewBank creates a point bank.
func NewBank(store domain.Store, notes *Notifications, clock Clock, log *zap.Logger) *Bank {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bank{store: store, notes: notes, clock: clock, log: log.Named("bank")}
}

// Clock returns the bank's clock.
func (b *Bank) Clock() Clock { return b.clock }

// AwardPoints is the public awardPoints operation. It runs in its own
// transaction and delivers any level-up or tier-up notifications afterwards.
func (b *Bank) AwardPoints(ctx context.Context, userID string, award domain.PointAward) (domain.AwardResult, error) {
	var result domain.AwardResult
	var outbox []domain.Notification

	err := b.store.RunTx(ctx, func(tx domain.Tx) error {
		var err error
		result, outbox, err = b.AwardInTx(ctx, tx, userID, award)
		return err
	})
	if err != nil {
		return domain.AwardResult{}, err
	}

	metrics.ObserveAward(string(award.Action), result.PointsAwarded, result.LevelUp != nil, result.TierUp != nil)
	b.notes.Deliver(ctx, outbox)
	return result, nil
}

// LogHabit awards points for a logged habit.
func (b *Bank) LogHabit(ctx context.Context, userID string, difficulty domain.HabitDifficulty) (domain.AwardResult, error) {
	return b.AwardPoints(ctx, userID, domain.PointAward{Action: domain.ActionHabit, Difficulty: int(difficulty)})
}

// AwardInTx applies a qualifying activity inside the caller's transaction:
// validate, compute points with the streak in force before this activity,
// advance the streak, bank the points, and report tier/level transitions.
// The returned notifications must be delivered after commit.
func (b *Bank) AwardInTx(ctx context.Context, tx domain.Tx, userID string, award domain.PointAward) (domain.AwardResult, []domain.Notification, error) {
	if userID == "" {
		return domain.AwardResult{}, nil, domain.ErrMissingUser
	}

	rec, version, err := b.load(ctx, tx, userID)
	if err != nil {
		return domain.AwardResult{}, nil, err
	}

	today := b.clock.Today()
	points, err := ComputePoints(award.Action, award.Difficulty, EffectiveStreak(rec, today))
	if err != nil {
		return domain.AwardResult{}, nil, err
	}
	if award.Action == domain.ActionChallengeSuccess || award.Action == domain.ActionChallengeFailure {
		points += ReflectionPoints(award.Reflection)
	}

	before := rec.TotalPoints
	rec, tierUp := AdvanceStreak(rec, today)
	rec.TotalPoints += points
	rec.UpdatedAt = b.clock.Time()

	if err := b.save(ctx, tx, rec, version); err != nil {
		return domain.AwardResult{}, nil, err
	}

	result := domain.AwardResult{
		PointsAwarded: points,
		TotalPoints:   rec.TotalPoints,
		NewStreak:     rec.CurrentStreak,
		TierUp:        tierUp,
		LevelUp:       LevelUpBetween(before, rec.TotalPoints),
	}

	var outbox []domain.Notification
	if result.LevelUp != nil {
		n, ok, err := b.notes.Enqueue(ctx, tx, domain.Notification{
			UserID: userID,
			Type:   domain.NotifyLevelUp,
			Title:  fmt.Sprintf("Level %d reached", result.LevelUp.Level),
			Body:   fmt.Sprintf("You are now %s.", result.LevelUp.Title),
		})
		if err != nil {
			return domain.AwardResult{}, nil, err
		}
		if ok {
			outbox = append(outbox, n)
		}
	}
	if result.TierUp != nil {
		n, ok, err := b.notes.Enqueue(ctx, tx, domain.Notification{
			UserID: userID,
			Type:   domain.NotifyTierUp,
			Title:  fmt.Sprintf("%d-day streak", result.TierUp.Streak),
			Body:   fmt.Sprintf("Habits now earn %gx points.", result.TierUp.Multiplier),
		})
		if err != nil {
			return domain.AwardResult{}, nil, err
		}
		if ok {
			outbox = append(outbox, n)
		}
	}

	return result, outbox, nil
}

// Reverse removes up to points from the user's bank, clamping at zero, and
// returns the amount actually removed. Streaks are not affected.
func (b *Bank) Reverse(ctx context.Context, tx domain.Tx, userID string, points int64) (int64, error) {
	if points <= 0 {
		return 0, nil
	}
	rec, version, err := b.load(ctx, tx, userID)
	if err != nil {
		return 0, err
	}

	removed := points
	if removed > rec.TotalPoints {
		removed = rec.TotalPoints
	}
	rec.TotalPoints -= removed
	rec.UpdatedAt = b.clock.Time()

	if err := b.save(ctx, tx, rec, version); err != nil {
		return 0, err
	}
	return removed, nil
}

// Record returns the user's current record (zero-valued if they never earned points).
func (b *Bank) Record(ctx context.Context, userID string) (domain.WillpowerRecord, error) {
	var rec domain.WillpowerRecord
	err := b.store.RunTx(ctx, func(tx domain.Tx) error {
		var err error
		rec, _, err = b.load(ctx, tx, userID)
		return err
	})
	return rec, err
}

// Summary returns the profile read model.
func (b *Bank) Summary(ctx context.Context, userID string) (domain.Summary, error) {
	rec, err := b.Record(ctx, userID)
	if err != nil {
		return domain.Summary{}, err
	}
	streak := EffectiveStreak(rec, b.clock.Today())
	return domain.Summary{
		UserID:           userID,
		TotalPoints:      rec.TotalPoints,
		Level:            LevelFor(rec.TotalPoints),
		PointsToNext:     PointsToNextLevel(rec.TotalPoints),
		ProgressPct:      ProgressPct(rec.TotalPoints),
		CurrentStreak:    streak,
		LongestStreak:    rec.LongestStreak,
		LastActivityDate: rec.LastActivityDate,
		Tier:             TierFor(streak),
	}, nil
}

// load returns the record and its store version (0 when not yet created).
func (b *Bank) load(ctx context.Context, tx domain.Tx, userID string) (domain.WillpowerRecord, int64, error) {
	doc, err := tx.Get(ctx, domain.CollWillpower, userID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return domain.WillpowerRecord{UserID: userID}, 0, nil
	}
	if err != nil {
		return domain.WillpowerRecord{}, 0, fmt.Errorf("load willpower record: %w", err)
	}
	var rec domain.WillpowerRecord
	if err := doc.Decode(&rec); err != nil {
		return domain.WillpowerRecord{}, 0, fmt.Errorf("decode willpower record: %w", err)
	}
	return rec, doc.Version, nil
}

func (b *Bank) save(ctx context.Context, tx domain.Tx, rec domain.WillpowerRecord, version int64) error {
	if version == 0 {
		if _, err := tx.Create(ctx, domain.CollWillpower, rec.UserID, rec); err != nil {
			return fmt.Errorf("create willpower record: %w", err)
		}
		return nil
	}
	if err := tx.Update(ctx, domain.CollWillpower, rec.UserID, version, rec); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.StoreConflicts.WithLabelValues(domain.CollWillpower).Inc()
			return err
		}
		return fmt.Errorf("save willpower record: %w", err)
	}
	return nil
}
