// Package challenge implements the challenge lifecycle state machine, the
// buddy coordinator that links two participants' challenges, community
// templates and repeat statistics.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/willpower-app/willpower/internal/app/engagement"
	"github.com/willpower-app/willpower/internal/domain"
	"github.com/willpower-app/willpower/internal/infra/metrics"
)

// Config tunes the lifecycle.
type Config struct {
	MaxExtendedDays int // upper bound for extended challenge duration
	ConflictRetries int // reruns of a unit of work that lost a version check
}

// DefaultConfig returns the lifecycle defaults.
func DefaultConfig() Config {
	return Config{MaxExtendedDays: 90, ConflictRetries: 3}
}

// Service drives single challenges from creation to a terminal state.
// Every public method is one atomic store transaction; notifications produced
// inside it are delivered only after commit. Writing methods rerun the whole
// transaction when a version-checked write conflicts.
type Service struct {
	store domain.Store
	bank  *engagement.Bank
	notes *engagement.Notifications
	clock engagement.Clock
	cfg   Config
	log   *zap.Logger
}

// NewService creates a challenge lifecycle service.
func NewService(store domain.Store, bank *engagement.Bank, notes *engagement.Notifications, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxExtendedDays <= 0 {
		cfg.MaxExtendedDays = DefaultConfig().MaxExtendedDays
	}
	if cfg.ConflictRetries < 0 {
		cfg.ConflictRetries = 0
	}
	return &Service{
		store: store,
		bank:  bank,
		notes: notes,
		clock: bank.Clock(),
		cfg:   cfg,
		log:   log.Named("challenge"),
	}
}

// ─── Create ─────────────────────────────────────────────────────────────────

// Create starts a new challenge for userID. It fails with
// ErrActiveChallengeExists when the user already has an active challenge.
func (s *Service) Create(ctx context.Context, userID string, spec domain.ChallengeSpec) (domain.Challenge, error) {
	if userID == "" {
		return domain.Challenge{}, domain.ErrMissingUser
	}

	var ch domain.Challenge
	err := s.runTx(ctx, func(tx domain.Tx) error {
		resolved, err := s.resolveSpec(ctx, tx, spec)
		if err != nil {
			return err
		}
		ch, err = s.createInTx(ctx, tx, userID, resolved, "")
		return err
	})
	if err != nil {
		return domain.Challenge{}, err
	}

	metrics.ChallengeTransitions.WithLabelValues(string(ch.Type), string(ch.Status)).Inc()
	s.log.Info("challenge created",
		zap.String("user_id", userID),
		zap.String("challenge_id", ch.ID),
		zap.String("type", string(ch.Type)),
		zap.Int("duration_days", ch.DurationDays),
	)
	return ch, nil
}

// resolveSpec fills a spec from its template, if any, and validates it.
func (s *Service) resolveSpec(ctx context.Context, tx domain.Tx, spec domain.ChallengeSpec) (domain.ChallengeSpec, error) {
	if spec.TemplateID != "" {
		tmpl, _, err := loadTemplate(ctx, tx, spec.TemplateID)
		if err != nil {
			return spec, err
		}
		if tmpl.Status != domain.ModerationApproved {
			return spec, domain.ErrTemplateNotApproved
		}
		spec = tmpl.Spec
		spec.TemplateID = tmpl.ID
	}
	return spec, s.ValidateSpec(spec)
}

// ValidateSpec checks a challenge spec without touching the store.
func (s *Service) ValidateSpec(spec domain.ChallengeSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return domain.Validationf("challenge name is required")
	}
	if err := engagement.ValidateDifficulty(spec.DifficultyExpected); err != nil {
		return err
	}
	switch spec.Type {
	case domain.ChallengeDaily:
	case domain.ChallengeExtended:
		if spec.DurationDays < 1 || spec.DurationDays > s.cfg.MaxExtendedDays {
			return domain.Wrap(domain.KindValidation,
				fmt.Sprintf("duration must be between 1 and %d days", s.cfg.MaxExtendedDays),
				domain.ErrInvalidDuration)
		}
	default:
		return domain.ErrInvalidChallengeType
	}
	return nil
}

// createInTx enforces the single-active-challenge invariant and writes the
// challenge inside tx. buddyID links the challenge to a buddy agreement.
func (s *Service) createInTx(ctx context.Context, tx domain.Tx, userID string, spec domain.ChallengeSpec, buddyID string) (domain.Challenge, error) {
	active, err := queryChallenges(ctx, tx,
		domain.Eq("user_id", userID),
		domain.Eq("status", domain.ChallengeActive),
	)
	if err != nil {
		return domain.Challenge{}, err
	}
	if len(active) > 0 {
		return domain.Challenge{}, domain.ErrActiveChallengeExists
	}

	now := s.clock.Time()
	ch := domain.Challenge{
		UserID:             userID,
		Name:               strings.TrimSpace(spec.Name),
		Description:        spec.Description,
		Status:             domain.ChallengeActive,
		Type:               spec.Type,
		DifficultyExpected: spec.DifficultyExpected,
		TemplateID:         spec.TemplateID,
		StartDate:          s.clock.Today(),
		IsBuddyChallenge:   buddyID != "",
		BuddyChallengeID:   buddyID,
		CreatedAt:          now,
	}
	if spec.Type == domain.ChallengeExtended {
		ch.DurationDays = spec.DurationDays
		ch.Milestones = make([]domain.Milestone, spec.DurationDays)
		for i := range ch.Milestones {
			ch.Milestones[i].DayNumber = i + 1
		}
	}

	ch.ID = uuid.NewString()
	if _, err := tx.Create(ctx, domain.CollChallenges, ch.ID, ch); err != nil {
		return domain.Challenge{}, fmt.Errorf("create challenge: %w", err)
	}
	return ch, nil
}

// ─── Day arithmetic ─────────────────────────────────────────────────────────

// CurrentDayNumber returns floor(days since start) + 1 for today, never less
// than 1.
func CurrentDayNumber(start, today domain.Date) int {
	n := start.DaysUntil(today) + 1
	if n < 1 {
		return 1
	}
	return n
}

// CurrentDayNumber returns the challenge's current day by the service clock.
// It never falls below the highest milestone already checked in, so a clock
// or timezone step backwards cannot lock a day the user has reached.
func (s *Service) CurrentDayNumber(ch domain.Challenge) int {
	n := CurrentDayNumber(ch.StartDate, s.clock.Today())
	for _, m := range ch.Milestones {
		if m.Completed && m.DayNumber > n {
			n = m.DayNumber
		}
	}
	return n
}

// AllMilestonesComplete reports whether every milestone is checked in.
// An empty set is never complete.
func AllMilestonesComplete(milestones []domain.Milestone) bool {
	if len(milestones) == 0 {
		return false
	}
	for _, m := range milestones {
		if !m.Completed {
			return false
		}
	}
	return true
}

// MilestoneSum is the derived audit total of per-milestone grants.
func MilestoneSum(milestones []domain.Milestone) int64 {
	var sum int64
	for _, m := range milestones {
		if m.Completed && m.PointsAwarded != nil {
			sum += *m.PointsAwarded
		}
	}
	return sum
}

// ─── Check-in ───────────────────────────────────────────────────────────────

// CheckInMilestone checks in one day of an extended challenge and banks the
// user-chosen points. Checking in the last open milestone completes the
// challenge.
func (s *Service) CheckInMilestone(ctx context.Context, userID, challengeID string, in domain.CheckIn) (domain.CheckInResult, error) {
	if userID == "" {
		return domain.CheckInResult{}, domain.ErrMissingUser
	}
	if in.Points < engagement.MinDifficulty || in.Points > engagement.MaxDifficulty {
		return domain.CheckInResult{}, domain.ErrInvalidMilestonePoints
	}

	var (
		result  domain.CheckInResult
		outbox  []domain.Notification
		settled bool
		ch      domain.Challenge
	)
	err := s.runTx(ctx, func(tx domain.Tx) error {
		outbox, settled = nil, false
		var (
			version int64
			err     error
		)
		ch, version, err = loadChallenge(ctx, tx, userID, challengeID)
		if err != nil {
			return err
		}
		if ch.Status != domain.ChallengeActive {
			return domain.ErrChallengeNotActive
		}
		if ch.Type != domain.ChallengeExtended {
			return domain.ErrNotExtended
		}
		m := ch.Milestone(in.DayNumber)
		if m == nil {
			return domain.ErrMilestoneNotFound
		}
		if m.Completed {
			return domain.ErrMilestoneCompleted
		}
		if in.DayNumber > s.CurrentDayNumber(ch) {
			return domain.ErrMilestoneInFuture
		}

		award, notifs, err := s.bank.AwardInTx(ctx, tx, userID, domain.PointAward{
			Action:     domain.ActionMilestone,
			Difficulty: in.Points,
		})
		if err != nil {
			return err
		}
		outbox = append(outbox, notifs...)

		now := s.clock.Time()
		succeeded := in.Succeeded
		points := award.PointsAwarded
		m.Completed = true
		m.SucceededOnCompletion = &succeeded
		m.PointsAwarded = &points
		m.CompletedAt = &now
		m.Note = in.Note

		result = domain.CheckInResult{
			PointsAwarded: award.PointsAwarded,
			NewStreak:     award.NewStreak,
			TierUp:        award.TierUp,
			LevelUp:       award.LevelUp,
		}

		if AllMilestonesComplete(ch.Milestones) {
			difficulty := ch.DifficultyExpected
			total := MilestoneSum(ch.Milestones)
			ch.Status = domain.ChallengeCompleted
			ch.DifficultyActual = &difficulty
			ch.PointsAwarded = &total
			ch.CompletedAt = &now
			result.ChallengeCompleted = true
			result.ChallengePoints = total
		}

		if err := saveChallenge(ctx, tx, ch, version); err != nil {
			return err
		}
		if !result.ChallengeCompleted {
			return nil
		}

		if err := appendCompletionLog(ctx, tx, domain.CompletionLog{
			UserID:        userID,
			ChallengeID:   ch.ID,
			Name:          ch.Name,
			Status:        ch.Status,
			Difficulty:    *ch.DifficultyActual,
			PointsAwarded: result.ChallengePoints,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		settled, notifs, err = s.settleLinked(ctx, tx, ch)
		outbox = append(outbox, notifs...)
		return err
	})
	if err != nil {
		return domain.CheckInResult{}, err
	}

	metrics.MilestoneCheckIns.WithLabelValues(fmt.Sprint(in.Succeeded)).Inc()
	metrics.ObserveAward(string(domain.ActionMilestone), result.PointsAwarded, result.LevelUp != nil, result.TierUp != nil)
	if result.ChallengeCompleted {
		s.observeTerminal(ch, settled)
	}
	s.notes.Deliver(ctx, outbox)
	return result, nil
}

// ─── Complete ───────────────────────────────────────────────────────────────

// Complete records the outcome of a daily challenge, or ends an extended one
// early. It grants points once; a second call fails with ErrChallengeNotActive.
func (s *Service) Complete(ctx context.Context, userID, challengeID string, outcome domain.Outcome) (domain.CompletionResult, error) {
	if userID == "" {
		return domain.CompletionResult{}, domain.ErrMissingUser
	}
	var action domain.Action
	switch outcome.Status {
	case domain.ChallengeCompleted:
		action = domain.ActionChallengeSuccess
	case domain.ChallengeFailed:
		action = domain.ActionChallengeFailure
	default:
		return domain.CompletionResult{}, domain.ErrInvalidOutcome
	}
	if outcome.DifficultyActual != 0 {
		if err := engagement.ValidateDifficulty(outcome.DifficultyActual); err != nil {
			return domain.CompletionResult{}, err
		}
	}

	var (
		result  domain.CompletionResult
		outbox  []domain.Notification
		settled bool
		ch      domain.Challenge
	)
	err := s.runTx(ctx, func(tx domain.Tx) error {
		outbox, settled = nil, false
		var (
			version int64
			err     error
		)
		ch, version, err = loadChallenge(ctx, tx, userID, challengeID)
		if err != nil {
			return err
		}
		if ch.Status != domain.ChallengeActive {
			return domain.ErrChallengeNotActive
		}

		difficulty := outcome.DifficultyActual
		if difficulty == 0 {
			difficulty = ch.DifficultyExpected
		}
		reflection := strings.TrimSpace(outcome.Reflection)

		award, notifs, err := s.bank.AwardInTx(ctx, tx, userID, domain.PointAward{
			Action:     action,
			Difficulty: difficulty,
			Reflection: reflection,
		})
		if err != nil {
			return err
		}
		outbox = append(outbox, notifs...)

		// An early-ended extended challenge keeps its milestone grants in the
		// audit total alongside the completion grant.
		total := award.PointsAwarded + MilestoneSum(ch.Milestones)
		now := s.clock.Time()
		ch.Status = outcome.Status
		ch.DifficultyActual = &difficulty
		ch.PointsAwarded = &total
		ch.Reflection = reflection
		ch.CompletedAt = &now
		if err := saveChallenge(ctx, tx, ch, version); err != nil {
			return err
		}

		if err := appendCompletionLog(ctx, tx, domain.CompletionLog{
			UserID:        userID,
			ChallengeID:   ch.ID,
			Name:          ch.Name,
			Status:        ch.Status,
			Difficulty:    difficulty,
			PointsAwarded: award.PointsAwarded,
			Reflection:    reflection,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		result = domain.CompletionResult{
			PointsAwarded: award.PointsAwarded,
			NewStreak:     award.NewStreak,
			TierUp:        award.TierUp,
			LevelUp:       award.LevelUp,
		}
		settled, notifs, err = s.settleLinked(ctx, tx, ch)
		outbox = append(outbox, notifs...)
		return err
	})
	if err != nil {
		return domain.CompletionResult{}, err
	}

	metrics.ObserveAward(string(action), result.PointsAwarded, result.LevelUp != nil, result.TierUp != nil)
	s.observeTerminal(ch, settled)
	s.notes.Deliver(ctx, outbox)
	return result, nil
}

// ─── Cancel / Archive ───────────────────────────────────────────────────────

// Cancel abandons an active challenge without granting points.
func (s *Service) Cancel(ctx context.Context, userID, challengeID string) (domain.Challenge, error) {
	return s.retire(ctx, userID, challengeID, domain.ChallengeCancelled)
}

// Archive retires an active challenge without an outcome or points.
func (s *Service) Archive(ctx context.Context, userID, challengeID string) (domain.Challenge, error) {
	return s.retire(ctx, userID, challengeID, domain.ChallengeArchived)
}

func (s *Service) retire(ctx context.Context, userID, challengeID string, status domain.ChallengeStatus) (domain.Challenge, error) {
	if userID == "" {
		return domain.Challenge{}, domain.ErrMissingUser
	}
	var (
		ch      domain.Challenge
		outbox  []domain.Notification
		settled bool
	)
	err := s.runTx(ctx, func(tx domain.Tx) error {
		var (
			version int64
			err     error
		)
		ch, version, err = loadChallenge(ctx, tx, userID, challengeID)
		if err != nil {
			return err
		}
		if ch.Status != domain.ChallengeActive {
			return domain.ErrChallengeNotActive
		}
		now := s.clock.Time()
		ch.Status = status
		ch.CompletedAt = &now
		if err := saveChallenge(ctx, tx, ch, version); err != nil {
			return err
		}
		settled, outbox, err = s.settleLinked(ctx, tx, ch)
		return err
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	s.observeTerminal(ch, settled)
	s.notes.Deliver(ctx, outbox)
	return ch, nil
}

// ─── Delete ─────────────────────────────────────────────────────────────────

// Delete removes a terminal challenge and reverses its recorded points from
// the user's bank, clamped at zero.
func (s *Service) Delete(ctx context.Context, userID, challengeID string) (domain.DeleteResult, error) {
	if userID == "" {
		return domain.DeleteResult{}, domain.ErrMissingUser
	}
	var result domain.DeleteResult
	err := s.runTx(ctx, func(tx domain.Tx) error {
		ch, _, err := loadChallenge(ctx, tx, userID, challengeID)
		if err != nil {
			return err
		}
		if ch.Status == domain.ChallengeActive {
			return domain.ErrChallengeActive
		}
		removed, err := s.bank.Reverse(ctx, tx, userID, ch.Points())
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, domain.CollChallenges, ch.ID); err != nil {
			return fmt.Errorf("delete challenge: %w", err)
		}
		result.PointsRemoved = removed
		return nil
	})
	if err != nil {
		return domain.DeleteResult{}, err
	}

	metrics.PointsReversed.Add(float64(result.PointsRemoved))
	s.log.Info("challenge deleted",
		zap.String("user_id", userID),
		zap.String("challenge_id", challengeID),
		zap.Int64("points_removed", result.PointsRemoved),
	)
	return result, nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// Get returns one of the user's challenges.
func (s *Service) Get(ctx context.Context, userID, challengeID string) (domain.Challenge, error) {
	var ch domain.Challenge
	err := s.store.RunTx(ctx, func(tx domain.Tx) error {
		var err error
		ch, _, err = loadChallenge(ctx, tx, userID, challengeID)
		return err
	})
	return ch, err
}

// List returns all of the user's challenges, oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Challenge, error) {
	if userID == "" {
		return nil, domain.ErrMissingUser
	}
	var out []domain.Challenge
	err := s.store.RunTx(ctx, func(tx domain.Tx) error {
		var err error
		out, err = queryChallenges(ctx, tx, domain.Eq("user_id", userID))
		return err
	})
	return out, err
}

// Active returns the user's active challenge, or ErrChallengeNotFound.
func (s *Service) Active(ctx context.Context, userID string) (domain.Challenge, error) {
	if userID == "" {
		return domain.Challenge{}, domain.ErrMissingUser
	}
	var active []domain.Challenge
	err := s.store.RunTx(ctx, func(tx domain.Tx) error {
		var err error
		active, err = queryChallenges(ctx, tx,
			domain.Eq("user_id", userID),
			domain.Eq("status", domain.ChallengeActive),
		)
		return err
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	if len(active) == 0 {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	return active[0], nil
}

// ─── helpers ────────────────────────────────────────────────────────────────

// runTx runs fn in a fresh transaction, starting over up to ConflictRetries
// times when a version-checked write fails with ErrVersionConflict. fn must
// reset any state it accumulates across attempts.
func (s *Service) runTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.store.RunTx(ctx, fn)
		if err == nil || !errors.Is(err, domain.ErrVersionConflict) || attempt >= s.cfg.ConflictRetries {
			return err
		}
		s.log.Debug("rerunning after version conflict", zap.Int("attempt", attempt+1), zap.Error(err))
	}
}

// settleLinked runs buddy settlement when ch belongs to a buddy agreement.
func (s *Service) settleLinked(ctx context.Context, tx domain.Tx, ch domain.Challenge) (bool, []domain.Notification, error) {
	if !ch.IsBuddyChallenge || ch.BuddyChallengeID == "" {
		return false, nil, nil
	}
	settled, notifs, err := s.settleInTx(ctx, tx, ch.BuddyChallengeID)
	if errors.Is(err, domain.ErrDuoStreakSettled) {
		return false, nil, nil
	}
	return settled, notifs, err
}

func (s *Service) observeTerminal(ch domain.Challenge, settled bool) {
	metrics.ChallengeTransitions.WithLabelValues(string(ch.Type), string(ch.Status)).Inc()
	s.log.Info("challenge finished",
		zap.String("user_id", ch.UserID),
		zap.String("challenge_id", ch.ID),
		zap.String("status", string(ch.Status)),
		zap.Int64("points", ch.Points()),
	)
	if settled {
		metrics.BuddyTransitions.WithLabelValues(string(domain.BuddyCompleted)).Inc()
		s.log.Info("buddy challenge settled", zap.String("buddy_challenge_id", ch.BuddyChallengeID))
	}
}
