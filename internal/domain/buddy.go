package domain

import (
	"sort"
	"strings"
	"time"
)

// BuddyStatus tracks the shared buddy agreement.
type BuddyStatus string

const (
	BuddyPending   BuddyStatus = "pending"
	BuddyActive    BuddyStatus = "active"
	BuddyCompleted BuddyStatus = "completed"
	BuddyDeclined  BuddyStatus = "declined"
)

// BuddyChallenge is the shared record linking two participants' challenges.
// Settled flips to true exactly once, when both linked challenges have
// reached a terminal state; the duo streak is only touched on that flip.
type BuddyChallenge struct {
	ID                 string          `json:"id"`
	InviterID          string          `json:"inviter_id"`
	InviteeID          string          `json:"invitee_id"`
	Status             BuddyStatus     `json:"status"`
	Template           ChallengeSpec   `json:"template"`
	TeamID             string          `json:"team_id"`
	InviterChallengeID string          `json:"inviter_challenge_id,omitempty"`
	InviteeChallengeID string          `json:"invitee_challenge_id,omitempty"`
	Settled            bool            `json:"settled"`
	SettledAt          *time.Time      `json:"settled_at,omitempty"`
	LastNudgedOn       Date            `json:"last_nudged_on,omitempty"`
	LastNudgedBy       string          `json:"last_nudged_by,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	RespondedAt        *time.Time      `json:"responded_at,omitempty"`
}

// IsParticipant reports whether userID is one of the two parties.
func (b *BuddyChallenge) IsParticipant(userID string) bool {
	return userID != "" && (userID == b.InviterID || userID == b.InviteeID)
}

// PartnerOf returns the other participant's id.
func (b *BuddyChallenge) PartnerOf(userID string) string {
	if userID == b.InviterID {
		return b.InviteeID
	}
	return b.InviterID
}

// ChallengeIDFor returns the linked challenge id owned by userID.
func (b *BuddyChallenge) ChallengeIDFor(userID string) string {
	if userID == b.InviterID {
		return b.InviterChallengeID
	}
	return b.InviteeChallengeID
}

// DuoStreak counts buddy challenges two users completed together.
type DuoStreak struct {
	ID                          string    `json:"id"`
	ParticipantAID              string    `json:"participant_a_id"`
	ParticipantBID              string    `json:"participant_b_id"`
	ChallengesCompletedTogether int       `json:"challenges_completed_together"`
	UpdatedAt                   time.Time `json:"updated_at"`
}

// DuoKey returns the order-independent key for a pair of users.
func DuoKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

// PartnerProgress is a read-only projection of the partner's linked challenge.
type PartnerProgress struct {
	BuddyChallengeID    string          `json:"buddy_challenge_id"`
	PartnerID           string          `json:"partner_id"`
	BuddyStatus         BuddyStatus     `json:"buddy_status"`
	ChallengeStatus     ChallengeStatus `json:"challenge_status,omitempty"`
	Type                ChallengeType   `json:"type"`
	CompletedMilestones int             `json:"completed_milestones"`
	TotalMilestones     int             `json:"total_milestones"`
	Milestones          []Milestone     `json:"milestones,omitempty"`
}

// NudgeResult reports whether a nudge went out. AlreadyNudged is a signal,
// not an error: one of the pair already nudged this buddy challenge today.
type NudgeResult struct {
	Sent           bool   `json:"sent"`
	AlreadyNudged  bool   `json:"already_nudged"`
	NotificationID string `json:"notification_id,omitempty"`
}
