package domain

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors so transports can react without string matching.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindStateConflict Kind = "state_conflict"
	KindNotFound      Kind = "not_found"
	KindForbidden     Kind = "forbidden"
	KindRateLimited   Kind = "rate_limited"
	KindInternal      Kind = "internal"
)

// Error is a classified engine error. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches two *Error values by kind and message so wrapped sentinels
// (e.g. ErrMilestoneCompleted with extra context) still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// NewError builds a classified error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	// Validation
	ErrInvalidDifficulty      = NewError(KindValidation, "difficulty must be between 1 and 5")
	ErrInvalidHabitDifficulty = NewError(KindValidation, "habit difficulty must be easy or challenging")
	ErrInvalidMilestonePoints = NewError(KindValidation, "milestone points must be between 1 and 5")
	ErrInvalidAction          = NewError(KindValidation, "unknown point action")
	ErrInvalidChallengeType   = NewError(KindValidation, "challenge type must be daily or extended")
	ErrInvalidDuration        = NewError(KindValidation, "extended challenges need a duration in days")
	ErrInvalidOutcome         = NewError(KindValidation, "outcome must be completed or failed")
	ErrInvalidDate            = NewError(KindValidation, "invalid calendar date")
	ErrMissingUser            = NewError(KindValidation, "user id is required")
	ErrSelfInvite             = NewError(KindValidation, "cannot invite yourself as a buddy")

	// State conflicts
	ErrActiveChallengeExists = NewError(KindStateConflict, "an active challenge already exists")
	ErrMilestoneCompleted    = NewError(KindStateConflict, "milestone already checked in")
	ErrMilestoneInFuture     = NewError(KindStateConflict, "milestone day has not started yet")
	ErrChallengeActive       = NewError(KindStateConflict, "active challenges cannot be deleted")
	ErrChallengeNotActive    = NewError(KindStateConflict, "challenge is no longer active")
	ErrNotExtended           = NewError(KindStateConflict, "challenge has no milestones")
	ErrDuoStreakSettled      = NewError(KindStateConflict, "duo streak already settled for this buddy challenge")
	ErrBuddyNotPending       = NewError(KindStateConflict, "buddy challenge is not awaiting a response")
	ErrBuddyNotActive        = NewError(KindStateConflict, "buddy challenge is not active")
	ErrTemplateNotApproved   = NewError(KindStateConflict, "challenge template has not been approved")
	ErrNotInvitee            = NewError(KindStateConflict, "only the invitee can respond to a buddy invitation")
	ErrVersionConflict       = NewError(KindStateConflict, "record was modified concurrently")
	ErrSelfReview            = NewError(KindStateConflict, "submitters cannot review their own template")

	// Not found
	ErrDocumentNotFound  = NewError(KindNotFound, "document not found")
	ErrChallengeNotFound = NewError(KindNotFound, "challenge not found")
	ErrMilestoneNotFound = NewError(KindNotFound, "milestone not found")
	ErrBuddyNotFound     = NewError(KindNotFound, "buddy challenge not found")
	ErrTemplateNotFound  = NewError(KindNotFound, "challenge template not found")

	// Forbidden
	ErrNotModerator = NewError(KindForbidden, "template moderation requires a moderator")

	// Rate limits
	ErrAlreadyNudged = NewError(KindRateLimited, "buddy already nudged today")
	ErrTooManyWrites = NewError(KindRateLimited, "too many requests, slow down")
)
