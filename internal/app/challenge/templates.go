package challenge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/willpower-app/willpower/internal/domain"
)

// SubmitTemplate stores a community template awaiting moderation.
func (s *Service) SubmitTemplate(ctx context.Context, userID string, spec domain.ChallengeSpec) (domain.ChallengeTemplate, error) {
	if userID == "" {
		return domain.ChallengeTemplate{}, domain.ErrMissingUser
	}
	spec.TemplateID = ""
	if err := s.ValidateSpec(spec); err != nil {
		return domain.ChallengeTemplate{}, err
	}

	t := domain.ChallengeTemplate{
		ID:          uuid.NewString(),
		Spec:        spec,
		SubmittedBy: userID,
		Status:      domain.ModerationPending,
		CreatedAt:   s.clock.Time(),
	}
	err := s.store.RunTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.Create(ctx, domain.CollTemplates, t.ID, t); err != nil {
			return fmt.Errorf("create template: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ChallengeTemplate{}, err
	}
	s.log.Info("template submitted", zap.String("template_id", t.ID), zap.String("user_id", userID))
	return t, nil
}

// Template returns a community template.
func (s *Service) Template(ctx context.Context, id string) (domain.ChallengeTemplate, error) {
	var t domain.ChallengeTemplate
	err := s.store.RunTx(ctx, func(tx domain.Tx) error {
		var err error
		t, _, err = loadTemplate(ctx, tx, id)
		return err
	})
	return t, err
}

// SetTemplateStatus records a moderation decision made by reviewerID through
// the external review workflow. Submitters cannot review their own template.
func (s *Service) SetTemplateStatus(ctx context.Context, reviewerID, id string, status domain.ModerationStatus) (domain.ChallengeTemplate, error) {
	if reviewerID == "" {
		return domain.ChallengeTemplate{}, domain.ErrMissingUser
	}
	switch status {
	case domain.ModerationPending, domain.ModerationApproved, domain.ModerationRejected:
	default:
		return domain.ChallengeTemplate{}, domain.Validationf("unknown moderation status %q", status)
	}

	var t domain.ChallengeTemplate
	err := s.runTx(ctx, func(tx domain.Tx) error {
		var (
			version int64
			err     error
		)
		t, version, err = loadTemplate(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.SubmittedBy == reviewerID {
			return domain.ErrSelfReview
		}
		now := s.clock.Time()
		t.Status = status
		t.ReviewedBy = reviewerID
		t.ReviewedAt = &now
		if err := tx.Update(ctx, domain.CollTemplates, t.ID, version, t); err != nil {
			return fmt.Errorf("save template: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ChallengeTemplate{}, err
	}
	s.log.Info("template reviewed",
		zap.String("template_id", id),
		zap.String("reviewer_id", reviewerID),
		zap.String("status", string(status)),
	)
	return t, nil
}
