// Package domain holds the willpower engine's records, value types and
// storage contracts. It has no infrastructure dependencies.
package domain

import "time"

// ─── Willpower Record ───────────────────────────────────────────────────────

// WillpowerRecord is the per-user point bank and streak state.
// It is only ever mutated through engagement.Bank.AwardPoints and
// engagement.Bank.Reverse.
type WillpowerRecord struct {
	UserID           string    `json:"user_id"`
	TotalPoints      int64     `json:"total_points"`
	CurrentStreak    int       `json:"current_streak"`
	LongestStreak    int       `json:"longest_streak"`
	LastActivityDate Date      `json:"last_activity_date,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ─── Point Actions ──────────────────────────────────────────────────────────

// Action identifies what earned the points.
type Action string

const (
	ActionChallengeSuccess Action = "challenge_success"
	ActionChallengeFailure Action = "challenge_failure"
	ActionHabit            Action = "habit"
	ActionMilestone        Action = "milestone"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionChallengeSuccess, ActionChallengeFailure, ActionHabit, ActionMilestone:
		return true
	}
	return false
}

// HabitDifficulty is the two-level difficulty used for habits.
type HabitDifficulty int

const (
	HabitEasy        HabitDifficulty = 1
	HabitChallenging HabitDifficulty = 2
)

// ParseHabitDifficulty accepts "easy" or "challenging".
func ParseHabitDifficulty(s string) (HabitDifficulty, error) {
	switch s {
	case "easy":
		return HabitEasy, nil
	case "challenging":
		return HabitChallenging, nil
	}
	return 0, ErrInvalidHabitDifficulty
}

func (h HabitDifficulty) String() string {
	switch h {
	case HabitEasy:
		return "easy"
	case HabitChallenging:
		return "challenging"
	}
	return "unknown"
}

// PointAward is the input to the single awardPoints entry point.
// Difficulty is 1..5 for challenges, a HabitDifficulty for habits, and the
// user-chosen 1..5 intensity for milestone check-ins.
type PointAward struct {
	Action     Action `json:"action"`
	Difficulty int    `json:"difficulty"`
	Reflection string `json:"reflection,omitempty"`
}

// ─── Streak Tiers & Levels ──────────────────────────────────────────────────

// StreakTier is a streak-length bracket with a fixed multiplier.
// MaxDays == 0 means unbounded.
type StreakTier struct {
	MinDays    int     `json:"min_days"`
	MaxDays    int     `json:"max_days,omitempty"`
	Multiplier float64 `json:"multiplier"`
}

// Level is one rung of the level ladder.
type Level struct {
	Number    int    `json:"level"`
	Threshold int64  `json:"threshold"`
	Title     string `json:"title"`
}

// TierUp is reported when the streak enters a higher tier.
type TierUp struct {
	Streak     int     `json:"streak"`
	Multiplier float64 `json:"multiplier"`
}

// LevelUp is reported when cumulative points reach a higher level.
type LevelUp struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

// AwardResult is returned by awardPoints.
type AwardResult struct {
	PointsAwarded int64    `json:"points_awarded"`
	TotalPoints   int64    `json:"total_points"`
	NewStreak     int      `json:"new_streak"`
	TierUp        *TierUp  `json:"tier_up,omitempty"`
	LevelUp       *LevelUp `json:"level_up,omitempty"`
}

// Summary is the read model shown on the profile screen.
type Summary struct {
	UserID           string     `json:"user_id"`
	TotalPoints      int64      `json:"total_points"`
	Level            Level      `json:"level"`
	PointsToNext     int64      `json:"points_to_next"`
	ProgressPct      float64    `json:"progress_pct"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivityDate Date       `json:"last_activity_date,omitempty"`
	Tier             StreakTier `json:"tier"`
}

// ─── Notification Types ─────────────────────────────────────────────────────

// NotificationType categorizes notifications.
type NotificationType string

const (
	NotifyLevelUp        NotificationType = "level_up"
	NotifyTierUp         NotificationType = "tier_up"
	NotifyNudge          NotificationType = "nudge"
	NotifyBuddyInvite    NotificationType = "buddy_invite"
	NotifyBuddyAccepted  NotificationType = "buddy_accepted"
	NotifyBuddyCompleted NotificationType = "buddy_completed"
)

// Notification is a user-facing message queued for the UI and push delivery.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Day       Date              `json:"day"`
	CreatedAt time.Time         `json:"created_at"`
	Shown     bool              `json:"shown"`
}

// NotificationPolicy governs how often a user is notified.
// Nudges and buddy invites are direct requests from another person and are
// not subject to MaxPerDay.
type NotificationPolicy struct {
	MaxPerDay  int    `json:"max_per_day"`
	QuietStart string `json:"quiet_start"` // "22:00"
	QuietEnd   string `json:"quiet_end"`   // "08:00"
}

// DefaultNotificationPolicy returns the default policy.
func DefaultNotificationPolicy() NotificationPolicy {
	return NotificationPolicy{
		MaxPerDay:  3,
		QuietStart: "22:00",
		QuietEnd:   "08:00",
	}
}

// DeviceToken is a push registration for one of the user's devices.
type DeviceToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}
