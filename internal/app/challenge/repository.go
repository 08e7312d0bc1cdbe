package challenge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/willpower-app/willpower/internal/domain"
)

// Typed access to the document store. Every helper takes the caller's Tx so
// reads and writes of one operation share a transaction.

func loadChallenge(ctx context.Context, tx domain.Tx, userID, id string) (domain.Challenge, int64, error) {
	var ch domain.Challenge
	doc, err := tx.Get(ctx, domain.CollChallenges, id)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return ch, 0, domain.ErrChallengeNotFound
	}
	if err != nil {
		return ch, 0, fmt.Errorf("load challenge: %w", err)
	}
	if err := doc.Decode(&ch); err != nil {
		return ch, 0, fmt.Errorf("decode challenge: %w", err)
	}
	// Other users' challenges are indistinguishable from missing ones.
	if userID != "" && ch.UserID != userID {
		return domain.Challenge{}, 0, domain.ErrChallengeNotFound
	}
	return ch, doc.Version, nil
}

func saveChallenge(ctx context.Context, tx domain.Tx, ch domain.Challenge, version int64) error {
	if err := tx.Update(ctx, domain.CollChallenges, ch.ID, version, ch); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("save challenge: %w", err)
	}
	return nil
}

func queryChallenges(ctx context.Context, tx domain.Tx, filters ...domain.Filter) ([]domain.Challenge, error) {
	docs, err := tx.Query(ctx, domain.CollChallenges, filters...)
	if err != nil {
		return nil, fmt.Errorf("query challenges: %w", err)
	}
	out := make([]domain.Challenge, 0, len(docs))
	for _, doc := range docs {
		var ch domain.Challenge
		if err := doc.Decode(&ch); err != nil {
			return nil, fmt.Errorf("decode challenge: %w", err)
		}
		out = append(out, ch)
	}
	return out, nil
}

func appendCompletionLog(ctx context.Context, tx domain.Tx, entry domain.CompletionLog) error {
	entry.ID = uuid.NewString()
	if _, err := tx.Create(ctx, domain.CollCompletionLogs, entry.ID, entry); err != nil {
		return fmt.Errorf("append completion log: %w", err)
	}
	return nil
}

func loadBuddy(ctx context.Context, tx domain.Tx, id string) (domain.BuddyChallenge, int64, error) {
	var b domain.BuddyChallenge
	doc, err := tx.Get(ctx, domain.CollBuddies, id)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return b, 0, domain.ErrBuddyNotFound
	}
	if err != nil {
		return b, 0, fmt.Errorf("load buddy challenge: %w", err)
	}
	if err := doc.Decode(&b); err != nil {
		return b, 0, fmt.Errorf("decode buddy challenge: %w", err)
	}
	return b, doc.Version, nil
}

func queryBuddies(ctx context.Context, tx domain.Tx, filters ...domain.Filter) ([]domain.BuddyChallenge, error) {
	docs, err := tx.Query(ctx, domain.CollBuddies, filters...)
	if err != nil {
		return nil, fmt.Errorf("query buddy challenges: %w", err)
	}
	out := make([]domain.BuddyChallenge, 0, len(docs))
	for _, doc := range docs {
		var b domain.BuddyChallenge
		if err := doc.Decode(&b); err != nil {
			return nil, fmt.Errorf("decode buddy challenge: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func loadTemplate(ctx context.Context, tx domain.Tx, id string) (domain.ChallengeTemplate, int64, error) {
	var t domain.ChallengeTemplate
	doc, err := tx.Get(ctx, domain.CollTemplates, id)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return t, 0, domain.ErrTemplateNotFound
	}
	if err != nil {
		return t, 0, fmt.Errorf("load template: %w", err)
	}
	if err := doc.Decode(&t); err != nil {
		return t, 0, fmt.Errorf("decode template: %w", err)
	}
	return t, doc.Version, nil
}
