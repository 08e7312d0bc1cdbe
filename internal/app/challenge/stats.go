package challenge

import (
	"context"
	"sort"
	"time"

	"github.com/willpower-app/willpower/internal/domain"
)

// RepeatStats derives per-name history for userID. It is recomputed on every
// call and never writes.
func (s *Service) RepeatStats(ctx context.Context, userID string) ([]domain.RepeatStats, error) {
	history, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return AggregateRepeats(history), nil
}

// AggregateRepeats groups challenges by exact name. Every challenge that has
// left the active state counts as an attempt; only completed ones count as
// completions. Results are sorted by name.
func AggregateRepeats(history []domain.Challenge) []domain.RepeatStats {
	byName := make(map[string]*domain.RepeatStats)
	for _, ch := range history {
		if !ch.Status.Terminal() {
			continue
		}
		st, ok := byName[ch.Name]
		if !ok {
			st = &domain.RepeatStats{Name: ch.Name}
			byName[ch.Name] = st
		}
		st.TotalAttempts++
		if ch.Status != domain.ChallengeCompleted {
			continue
		}
		st.TotalCompletions++

		at := ch.CreatedAt
		if ch.CompletedAt != nil {
			at = *ch.CompletedAt
		}
		if st.FirstCompletedAt == nil || at.Before(*st.FirstCompletedAt) {
			st.FirstCompletedAt = timePtr(at)
		}
		if st.LastCompletedAt == nil || at.After(*st.LastCompletedAt) {
			st.LastCompletedAt = timePtr(at)
		}
	}

	out := make([]domain.RepeatStats, 0, len(byName))
	for _, st := range byName {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func timePtr(t time.Time) *time.Time { return &t }
