package domain

import "time"

// ChallengeStatus tracks a challenge through its lifecycle.
// Every status except ChallengeActive is terminal.
type ChallengeStatus string

const (
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeFailed    ChallengeStatus = "failed"
	ChallengeArchived  ChallengeStatus = "archived"
	ChallengeCancelled ChallengeStatus = "cancelled"
)

// Terminal reports whether s is a terminal status.
func (s ChallengeStatus) Terminal() bool {
	switch s {
	case ChallengeCompleted, ChallengeFailed, ChallengeArchived, ChallengeCancelled:
		return true
	}
	return false
}

// ChallengeType distinguishes single-day challenges from multi-day ones.
type ChallengeType string

const (
	ChallengeDaily    ChallengeType = "daily"
	ChallengeExtended ChallengeType = "extended"
)

// Milestone is one day's check-in slot within an extended challenge.
type Milestone struct {
	DayNumber             int        `json:"day_number"`
	Completed             bool       `json:"completed"`
	SucceededOnCompletion *bool      `json:"succeeded_on_completion,omitempty"`
	PointsAwarded         *int64     `json:"points_awarded,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	Note                  string     `json:"note,omitempty"`
}

// Challenge is a user-owned challenge record.
//
// For extended challenges PointsAwarded is a derived audit total: the sum of
// the per-milestone grants (plus any early-completion grant). The grants
// themselves were already applied to the user's bank as they happened.
type Challenge struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	Status             ChallengeStatus `json:"status"`
	Type               ChallengeType   `json:"type"`
	DifficultyExpected int             `json:"difficulty_expected"`
	DifficultyActual   *int            `json:"difficulty_actual,omitempty"`
	PointsAwarded      *int64          `json:"points_awarded,omitempty"`
	Reflection         string          `json:"reflection,omitempty"`
	TemplateID         string          `json:"template_id,omitempty"`
	StartDate          Date            `json:"start_date"`
	DurationDays       int             `json:"duration_days,omitempty"`
	Milestones         []Milestone     `json:"milestones,omitempty"`
	IsBuddyChallenge   bool            `json:"is_buddy_challenge"`
	BuddyChallengeID   string          `json:"buddy_challenge_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// Milestone returns a pointer to the milestone for day, or nil.
func (c *Challenge) Milestone(day int) *Milestone {
	for i := range c.Milestones {
		if c.Milestones[i].DayNumber == day {
			return &c.Milestones[i]
		}
	}
	return nil
}

// CompletedMilestones counts checked-in milestones.
func (c *Challenge) CompletedMilestones() int {
	n := 0
	for _, m := range c.Milestones {
		if m.Completed {
			n++
		}
	}
	return n
}

// Points returns PointsAwarded or 0 when absent.
func (c *Challenge) Points() int64 {
	if c.PointsAwarded == nil {
		return 0
	}
	return *c.PointsAwarded
}

// ChallengeSpec describes a challenge to create.
type ChallengeSpec struct {
	Name               string        `json:"name"`
	Description        string        `json:"description,omitempty"`
	Type               ChallengeType `json:"type"`
	DifficultyExpected int           `json:"difficulty_expected"`
	DurationDays       int           `json:"duration_days,omitempty"`
	TemplateID         string        `json:"template_id,omitempty"`
}

// CheckIn is a milestone check-in request.
type CheckIn struct {
	DayNumber int    `json:"day_number"`
	Succeeded bool   `json:"succeeded"`
	Points    int    `json:"points"`
	Note      string `json:"note,omitempty"`
}

// CheckInResult is returned by checkInMilestone.
type CheckInResult struct {
	PointsAwarded      int64    `json:"points_awarded"`
	ChallengeCompleted bool     `json:"challenge_completed"`
	ChallengePoints    int64    `json:"challenge_points,omitempty"`
	NewStreak          int      `json:"new_streak"`
	TierUp             *TierUp  `json:"tier_up,omitempty"`
	LevelUp            *LevelUp `json:"level_up,omitempty"`
}

// Outcome is the user's report when completing a challenge.
// DifficultyActual of 0 means "same as expected".
type Outcome struct {
	Status           ChallengeStatus `json:"status"`
	DifficultyActual int             `json:"difficulty_actual,omitempty"`
	Reflection       string          `json:"reflection,omitempty"`
}

// CompletionResult is returned by completeChallenge.
type CompletionResult struct {
	PointsAwarded int64    `json:"points_awarded"`
	NewStreak     int      `json:"new_streak"`
	TierUp        *TierUp  `json:"tier_up,omitempty"`
	LevelUp       *LevelUp `json:"level_up,omitempty"`
}

// DeleteResult is returned by deleteChallenge.
type DeleteResult struct {
	PointsRemoved int64 `json:"points_removed"`
}

// CompletionLog is an append-only record of a completion event.
type CompletionLog struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	ChallengeID   string          `json:"challenge_id"`
	Name          string          `json:"name"`
	Status        ChallengeStatus `json:"status"`
	Difficulty    int             `json:"difficulty"`
	PointsAwarded int64           `json:"points_awarded"`
	Reflection    string          `json:"reflection,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RepeatStats summarises a user's history for one challenge name.
type RepeatStats struct {
	Name             string     `json:"name"`
	TotalCompletions int        `json:"total_completions"`
	TotalAttempts    int        `json:"total_attempts"`
	FirstCompletedAt *time.Time `json:"first_completed_at,omitempty"`
	LastCompletedAt  *time.Time `json:"last_completed_at,omitempty"`
}

// ─── Community Templates ────────────────────────────────────────────────────

// ModerationStatus is owned by the external moderation workflow; the engine
// only reads it.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending_review"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// ChallengeTemplate is a community-submitted challenge definition.
type ChallengeTemplate struct {
	ID          string           `json:"id"`
	Spec        ChallengeSpec    `json:"spec"`
	SubmittedBy string           `json:"submitted_by"`
	Status      ModerationStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	ReviewedBy  string           `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time       `json:"reviewed_at,omitempty"`
}
