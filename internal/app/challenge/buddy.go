package challenge

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/willpower-app/willpower/internal/domain"
	"github.com/willpower-app/willpower/internal/infra/metrics"
)

// Coordinator runs the two-party buddy agreement on top of the lifecycle
// Service. Writes to the shared BuddyChallenge and DuoStreak records are
// version-checked; a conflicting unit of work is rolled back and rerun.
type Coordinator struct {
	svc *Service
	log *zap.Logger
}

// NewCoordinator creates a buddy coordinator.
func NewCoordinator(svc *Service) *Coordinator {
	return &Coordinator{svc: svc, log: svc.log.Named("buddy")}
}

// Invite creates a pending buddy challenge and notifies the invitee.
func (c *Coordinator) Invite(ctx context.Context, inviterID, inviteeID string, spec domain.ChallengeSpec) (domain.BuddyChallenge, error) {
	if inviterID == "" || inviteeID == "" {
		return domain.BuddyChallenge{}, domain.ErrMissingUser
	}
	if inviterID == inviteeID {
		return domain.BuddyChallenge{}, domain.ErrSelfInvite
	}

	var (
		b      domain.BuddyChallenge
		outbox []domain.Notification
	)
	err := c.svc.runTx(ctx, func(tx domain.Tx) error {
		outbox = nil
		resolved, err := c.svc.resolveSpec(ctx, tx, spec)
		if err != nil {
			return err
		}
		b = domain.BuddyChallenge{
			ID:        uuid.NewString(),
			InviterID: inviterID,
			InviteeID: inviteeID,
			Status:    domain.BuddyPending,
			Template:  resolved,
			TeamID:    uuid.NewString(),
			CreatedAt: c.svc.clock.Time(),
		}
		if _, err := tx.Create(ctx, domain.CollBuddies, b.ID, b); err != nil {
			return fmt.Errorf("create buddy challenge: %w", err)
		}
		n, ok, err := c.svc.notes.Enqueue(ctx, tx, domain.Notification{
			UserID: inviteeID,
			Type:   domain.NotifyBuddyInvite,
			Title:  "New buddy challenge",
			Body:   fmt.Sprintf("You were invited to %q.", resolved.Name),
			Data:   map[string]string{"buddy_challenge_id": b.ID, "from": inviterID},
		})
		if err != nil {
			return err
		}
		if ok {
			outbox = append(outbox, n)
		}
		return nil
	})
	if err != nil {
		return domain.BuddyChallenge{}, err
	}

	metrics.BuddyTransitions.WithLabelValues(string(b.Status)).Inc()
	c.log.Info("buddy invite sent",
		zap.String("buddy_challenge_id", b.ID),
		zap.String("inviter_id", inviterID),
		zap.String("invitee_id", inviteeID),
	)
	c.svc.notes.Deliver(ctx, outbox)
	return b, nil
}

// Accept activates a pending invitation. Both participants get their own
// linked challenge; the call fails if either already has an active one.
func (c *Coordinator) Accept(ctx context.Context, userID, buddyID string) (domain.BuddyChallenge, error) {
	var (
		b      domain.BuddyChallenge
		outbox []domain.Notification
	)
	err := c.svc.runTx(ctx, func(tx domain.Tx) error {
		outbox = nil
		var (
			version int64
			err     error
		)
		b, version, err = c.loadForInvitee(ctx, tx, userID, buddyID)
		if err != nil {
			return err
		}

		inviterCh, err := c.svc.createInTx(ctx, tx, b.InviterID, b.Template, b.ID)
		if err != nil {
			return err
		}
		inviteeCh, err := c.svc.createInTx(ctx, tx, b.InviteeID, b.Template, b.ID)
		if err != nil {
			return err
		}

		now := c.svc.clock.Time()
		b.Status = domain.BuddyActive
		b.InviterChallengeID = inviterCh.ID
		b.InviteeChallengeID = inviteeCh.ID
		b.RespondedAt = &now
		if err := c.updateBuddy(ctx, tx, b, version); err != nil {
			return err
		}

		n, ok, err := c.svc.notes.Enqueue(ctx, tx, domain.Notification{
			UserID: b.InviterID,
			Type:   domain.NotifyBuddyAccepted,
			Title:  "Buddy challenge accepted",
			Body:   fmt.Sprintf("%q has started.", b.Template.Name),
			Data:   map[string]string{"buddy_challenge_id": b.ID, "challenge_id": inviterCh.ID},
		})
		if err != nil {
			return err
		}
		if ok {
			outbox = append(outbox, n)
		}
		return nil
	})
	if err != nil {
		return domain.BuddyChallenge{}, err
	}

	metrics.BuddyTransitions.WithLabelValues(string(b.Status)).Inc()
	metrics.ChallengeTransitions.WithLabelValues(string(b.Template.Type), string(domain.ChallengeActive)).Add(2)
	c.log.Info("buddy challenge accepted", zap.String("buddy_challenge_id", b.ID))
	c.svc.notes.Deliver(ctx, outbox)
	return b, nil
}

// Decline rejects a pending invitation.
func (c *Coordinator) Decline(ctx context.Context, userID, buddyID string) (domain.BuddyChallenge, error) {
	var b domain.BuddyChallenge
	err := c.svc.runTx(ctx, func(tx domain.Tx) error {
		var (
			version int64
			err     error
		)
		b, version, err = c.loadForInvitee(ctx, tx, userID, buddyID)
		if err != nil {
			return err
		}
		now := c.svc.clock.Time()
		b.Status = domain.BuddyDeclined
		b.RespondedAt = &now
		return c.updateBuddy(ctx, tx, b, version)
	})
	if err != nil {
		return domain.BuddyChallenge{}, err
	}
	metrics.BuddyTransitions.WithLabelValues(string(b.Status)).Inc()
	return b, nil
}

// loadForInvitee loads a pending buddy challenge that userID may respond to.
func (c *Coordinator) loadForInvitee(ctx context.Context, tx domain.Tx, userID, buddyID string) (domain.BuddyChallenge, int64, error) {
	if userID == "" {
		return domain.BuddyChallenge{}, 0, domain.ErrMissingUser
	}
	b, version, err := loadBuddy(ctx, tx, buddyID)
	if err != nil {
		return b, 0, err
	}
	if !b.IsParticipant(userID) {
		return domain.BuddyChallenge{}, 0, domain.ErrBuddyNotFound
	}
	if userID != b.InviteeID {
		return domain.BuddyChallenge{}, 0, domain.ErrNotInvitee
	}
	if b.Status != domain.BuddyPending {
		return domain.BuddyChallenge{}, 0, domain.ErrBuddyNotPending
	}
	return b, version, nil
}

// SendNudge notifies the partner. A buddy challenge carries at most one nudge
// per day, whichever participant sends it; a repeat the same day returns
// AlreadyNudged without error.
func (c *Coordinator) SendNudge(ctx context.Context, senderID, buddyID string) (domain.NudgeResult, error) {
	if senderID == "" {
		return domain.NudgeResult{}, domain.ErrMissingUser
	}
	today := c.svc.clock.Today()

	var (
		result domain.NudgeResult
		outbox []domain.Notification
	)
	err := c.svc.runTx(ctx, func(tx domain.Tx) error {
		result, outbox = domain.NudgeResult{}, nil
		return c.svc.mutateBuddy(ctx, tx, buddyID, func(b *domain.BuddyChallenge) (bool, error) {
			if !b.IsParticipant(senderID) {
				return false, domain.ErrBuddyNotFound
			}
			if b.Status != domain.BuddyActive {
				return false, domain.ErrBuddyNotActive
			}
			if b.LastNudgedOn == today {
				result.AlreadyNudged = true
				return false, nil
			}
			b.LastNudgedOn = today
			b.LastNudgedBy = senderID

			n, ok, err := c.svc.notes.Enqueue(ctx, tx, domain.Notification{
				UserID: b.PartnerOf(senderID),
				Type:   domain.NotifyNudge,
				Title:  "Your buddy is cheering you on",
				Body:   fmt.Sprintf("Keep going on %q.", b.Template.Name),
				Data:   map[string]string{"buddy_challenge_id": b.ID, "from": senderID},
			})
			if err != nil {
				return false, err
			}
			result.Sent = true
			if ok {
				result.NotificationID = n.ID
				outbox = append(outbox, n)
			}
			return true, nil
		})
	})
	if err != nil {
		return domain.NudgeResult{}, err
	}

	if result.AlreadyNudged {
		metrics.Nudges.WithLabelValues("already_nudged").Inc()
		return result, nil
	}
	metrics.Nudges.WithLabelValues("sent").Inc()
	c.svc.notes.Deliver(ctx, outbox)
	return result, nil
}

// Settle re-runs settlement for a buddy challenge. It returns
// ErrDuoStreakSettled if the agreement was already settled and
// ErrBuddyNotActive if the linked challenges are not both terminal yet.
func (c *Coordinator) Settle(ctx context.Context, userID, buddyID string) (domain.BuddyChallenge, error) {
	var (
		b       domain.BuddyChallenge
		outbox  []domain.Notification
		settled bool
	)
	err := c.svc.runTx(ctx, func(tx domain.Tx) error {
		current, _, err := loadBuddy(ctx, tx, buddyID)
		if err != nil {
			return err
		}
		if !current.IsParticipant(userID) {
			return domain.ErrBuddyNotFound
		}
		settled, outbox, err = c.svc.settleInTx(ctx, tx, buddyID)
		if err != nil {
			return err
		}
		if !settled {
			return domain.ErrBuddyNotActive
		}
		b, _, err = loadBuddy(ctx, tx, buddyID)
		return err
	})
	if err != nil {
		return domain.BuddyChallenge{}, err
	}
	metrics.BuddyTransitions.WithLabelValues(string(b.Status)).Inc()
	c.svc.notes.Deliver(ctx, outbox)
	return b, nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// Get returns a buddy challenge visible to userID.
func (c *Coordinator) Get(ctx context.Context, userID, buddyID string) (domain.BuddyChallenge, error) {
	var b domain.BuddyChallenge
	err := c.svc.store.RunTx(ctx, func(tx domain.Tx) error {
		var err error
		b, _, err = loadBuddy(ctx, tx, buddyID)
		if err != nil {
			return err
		}
		if !b.IsParticipant(userID) {
			return domain.ErrBuddyNotFound
		}
		return nil
	})
	return b, err
}

// List returns every buddy challenge userID takes part in, oldest first.
func (c *Coordinator) List(ctx context.Context, userID string) ([]domain.BuddyChallenge, error) {
	if userID == "" {
		return nil, domain.ErrMissingUser
	}
	var out []domain.BuddyChallenge
	err := c.svc.store.RunTx(ctx, func(tx domain.Tx) error {
		sent, err := queryBuddies(ctx, tx, domain.Eq("inviter_id", userID))
		if err != nil {
			return err
		}
		received, err := queryBuddies(ctx, tx, domain.Eq("invitee_id", userID))
		if err != nil {
			return err
		}
		out = append(sent, received...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PartnerProgress projects the partner's linked challenge. It never writes.
func (c *Coordinator) PartnerProgress(ctx context.Context, userID, buddyID string) (domain.PartnerProgress, error) {
	var p domain.PartnerProgress
	err := c.svc.store.RunTx(ctx, func(tx domain.Tx) error {
		b, _, err := loadBuddy(ctx, tx, buddyID)
		if err != nil {
			return err
		}
		if !b.IsParticipant(userID) {
			return domain.ErrBuddyNotFound
		}
		partnerID := b.PartnerOf(userID)
		p = domain.PartnerProgress{
			BuddyChallengeID: b.ID,
			PartnerID:        partnerID,
			BuddyStatus:      b.Status,
			Type:             b.Template.Type,
		}
		chID := b.ChallengeIDFor(partnerID)
		if chID == "" {
			return nil
		}
		ch, _, err := loadChallenge(ctx, tx, partnerID, chID)
		if errors.Is(err, domain.ErrChallengeNotFound) {
			return nil // partner deleted their record
		}
		if err != nil {
			return err
		}
		p.ChallengeStatus = ch.Status
		p.CompletedMilestones = ch.CompletedMilestones()
		p.TotalMilestones = len(ch.Milestones)
		p.Milestones = ch.Milestones
		return nil
	})
	return p, err
}

// DuoStreak returns how many buddy challenges two users completed together.
func (c *Coordinator) DuoStreak(ctx context.Context, userA, userB string) (domain.DuoStreak, error) {
	if userA == "" || userB == "" {
		return domain.DuoStreak{}, domain.ErrMissingUser
	}
	key := domain.DuoKey(userA, userB)
	var d domain.DuoStreak
	err := c.svc.store.RunTx(ctx, func(tx domain.Tx) error {
		doc, err := tx.Get(ctx, domain.CollDuoStreaks, key)
		if errors.Is(err, domain.ErrDocumentNotFound) {
			d = newDuoStreak(userA, userB)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load duo streak: %w", err)
		}
		return doc.Decode(&d)
	})
	return d, err
}

// ─── Settlement ─────────────────────────────────────────────────────────────

// settleInTx flips the Settled flag once both linked challenges are terminal
// and increments the duo streak when both completed. It reports whether this
// call performed the flip; an already-settled agreement yields
// ErrDuoStreakSettled.
func (s *Service) settleInTx(ctx context.Context, tx domain.Tx, buddyID string) (bool, []domain.Notification, error) {
	var (
		settled       bool
		bothCompleted bool
		b             domain.BuddyChallenge
	)
	err := s.mutateBuddy(ctx, tx, buddyID, func(cur *domain.BuddyChallenge) (bool, error) {
		if cur.Settled {
			return false, domain.ErrDuoStreakSettled
		}
		if cur.Status != domain.BuddyActive {
			return false, nil
		}
		inviter, err := linkedStatus(ctx, tx, cur.InviterID, cur.InviterChallengeID)
		if err != nil {
			return false, err
		}
		invitee, err := linkedStatus(ctx, tx, cur.InviteeID, cur.InviteeChallengeID)
		if err != nil {
			return false, err
		}
		if !inviter.Terminal() || !invitee.Terminal() {
			return false, nil
		}

		now := s.clock.Time()
		cur.Settled = true
		cur.SettledAt = &now
		cur.Status = domain.BuddyCompleted
		settled = true
		bothCompleted = inviter == domain.ChallengeCompleted && invitee == domain.ChallengeCompleted
		b = *cur
		return true, nil
	})
	if err != nil || !settled {
		return false, nil, err
	}
	if !bothCompleted {
		return true, nil, nil
	}

	streak, err := s.incrementDuo(ctx, tx, b.InviterID, b.InviteeID)
	if err != nil {
		return false, nil, err
	}

	var outbox []domain.Notification
	for _, userID := range []string{b.InviterID, b.InviteeID} {
		n, ok, err := s.notes.Enqueue(ctx, tx, domain.Notification{
			UserID: userID,
			Type:   domain.NotifyBuddyCompleted,
			Title:  "Buddy challenge complete",
			Body:   fmt.Sprintf("You and your buddy have finished %d challenges together.", streak.ChallengesCompletedTogether),
			Data:   map[string]string{"buddy_challenge_id": b.ID, "partner_id": b.PartnerOf(userID)},
		})
		if err != nil {
			return false, nil, err
		}
		if ok {
			outbox = append(outbox, n)
		}
	}
	return true, outbox, nil
}

// linkedStatus returns a linked challenge's status. A deleted record was
// terminal before deletion and never completed for settlement purposes.
func linkedStatus(ctx context.Context, tx domain.Tx, userID, challengeID string) (domain.ChallengeStatus, error) {
	if challengeID == "" {
		return domain.ChallengeActive, nil
	}
	ch, _, err := loadChallenge(ctx, tx, userID, challengeID)
	if errors.Is(err, domain.ErrChallengeNotFound) {
		return domain.ChallengeArchived, nil
	}
	if err != nil {
		return "", err
	}
	return ch.Status, nil
}

func (s *Service) incrementDuo(ctx context.Context, tx domain.Tx, a, b string) (domain.DuoStreak, error) {
	key := domain.DuoKey(a, b)
	doc, err := tx.Get(ctx, domain.CollDuoStreaks, key)
	var d domain.DuoStreak
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		d = newDuoStreak(a, b)
		d.ChallengesCompletedTogether = 1
		d.UpdatedAt = s.clock.Time()
		_, err = tx.Create(ctx, domain.CollDuoStreaks, key, d)
	case err != nil:
		return d, fmt.Errorf("load duo streak: %w", err)
	default:
		if err := doc.Decode(&d); err != nil {
			return d, fmt.Errorf("decode duo streak: %w", err)
		}
		d.ChallengesCompletedTogether++
		d.UpdatedAt = s.clock.Time()
		err = tx.Update(ctx, domain.CollDuoStreaks, key, doc.Version, d)
	}
	if err != nil {
		return d, conflictErr(domain.CollDuoStreaks, "save duo streak", err)
	}
	metrics.DuoStreakIncrements.Inc()
	return d, nil
}

func newDuoStreak(a, b string) domain.DuoStreak {
	if b < a {
		a, b = b, a
	}
	return domain.DuoStreak{ID: domain.DuoKey(a, b), ParticipantAID: a, ParticipantBID: b}
}

// mutateBuddy runs a read-modify-write on the shared buddy record. mutate
// reports whether it changed the record.
func (s *Service) mutateBuddy(ctx context.Context, tx domain.Tx, buddyID string, mutate func(*domain.BuddyChallenge) (bool, error)) error {
	b, version, err := loadBuddy(ctx, tx, buddyID)
	if err != nil {
		return err
	}
	changed, err := mutate(&b)
	if err != nil || !changed {
		return err
	}
	if err := tx.Update(ctx, domain.CollBuddies, b.ID, version, b); err != nil {
		return conflictErr(domain.CollBuddies, "save buddy challenge", err)
	}
	return nil
}

func (c *Coordinator) updateBuddy(ctx context.Context, tx domain.Tx, b domain.BuddyChallenge, version int64) error {
	if err := tx.Update(ctx, domain.CollBuddies, b.ID, version, b); err != nil {
		return conflictErr(domain.CollBuddies, "save buddy challenge", err)
	}
	return nil
}

// conflictErr wraps a failed write and counts version conflicts.
func conflictErr(collection, op string, err error) error {
	if errors.Is(err, domain.ErrVersionConflict) {
		metrics.StoreConflicts.WithLabelValues(collection).Inc()
	}
	return fmt.Errorf("%s: %w", op, err)
}
