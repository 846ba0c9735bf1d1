// Package services defines the business logic for daily matching, session
// lifecycle, conversations, and topics. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer. All of them are expected,
// user-actionable outcomes, not crashes; unexpected datastore failures
// propagate as raw errors.
package services

import "errors"

// Matching (resolver + allocator) errors.
var (
	// ErrInvalidMode is returned when the requested matching mode is neither
	// "friend" nor "community".
	ErrInvalidMode = errors.New("invalid matching mode")

	// ErrCommunityNotFound indicates that the requested community does not
	// exist.
	ErrCommunityNotFound = errors.New("community not found")

	// ErrCommunityInactive is returned when matching is attempted inside a
	// deactivated community.
	ErrCommunityInactive = errors.New("community is inactive")

	// ErrNotAMember is returned when the requester lacks an active membership
	// in the given community.
	ErrNotAMember = errors.New("not an active member of this community")

	// ErrNoCandidates is returned when the candidate pool is structurally
	// empty: no accepted friends, or no other active members.
	ErrNoCandidates = errors.New("no candidates available")

	// ErrNoAvailableCandidates is returned when every candidate is already
	// matched today under this mode.
	ErrNoAvailableCandidates = errors.New("all candidates already matched today")

	// ErrAlreadyMatchedToday protects the one-match-per-day-per-mode
	// invariant for the requester.
	ErrAlreadyMatchedToday = errors.New("already matched today")
)

// Conversation gateway errors.
var (
	// ErrSessionNotFound indicates that the requested match session does not
	// exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned when a write is attempted on a session that
	// is no longer active, whether the sweep has flipped it or its day has
	// simply passed.
	ErrSessionEnded = errors.New("session has ended")

	// ErrForbidden is returned when the caller is not one of the session's
	// two participants.
	ErrForbidden = errors.New("not a participant of this session")

	// ErrEmptyMessage is returned when a send request carries no content.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when a send request exceeds the maximum
	// configured content length.
	ErrMessageTooLong = errors.New("message too long")

	// ErrInvalidKind is returned when a message kind is outside the allowed
	// set.
	ErrInvalidKind = errors.New("message kind must be text or stamp")

	// ErrMessageNotFound indicates an unknown message, e.g. a stale
	// pagination cursor.
	ErrMessageNotFound = errors.New("message not found")
)

// Topic errors.
var (
	// ErrNoTopics is returned when the topic catalog is empty, which only
	// happens if seeding was skipped.
	ErrNoTopics = errors.New("topic catalog is empty")
)
