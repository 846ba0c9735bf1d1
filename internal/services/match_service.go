// Package services – MatchService
//
// This file implements MatchService, the application-level component that
// owns daily match allocation: candidate resolution over the friend and
// community graphs, the one-match-per-day-per-mode invariant, uniform random
// partner selection, and race reconciliation.
//
// The storage platform serializes concurrent writers per row but offers no
// cross-row transaction around the check-then-insert sequence, so two
// near-simultaneous requests from the same user (e.g., two devices) can both
// pass the duplicate check. The allocator accepts that race and repairs it
// immediately after insert: it re-reads the day's sessions for the requester
// and keeps only the earliest-created one, discarding every later duplicate
// including possibly its own. Oldest-wins is deterministic, so concurrent
// callers converge on the same surviving session without locks.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// user/mode identifiers.
package services

import (
	"context"
	"math/rand"

	"gorm.io/gorm"

	"github.com/tomoapp/go-match-backend/internal/clock"
	"github.com/tomoapp/go-match-backend/internal/domain"
	"github.com/tomoapp/go-match-backend/internal/notify"
	"github.com/tomoapp/go-match-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MatchService coordinates candidate resolution and daily match allocation.
type MatchService struct {
	DB         *gorm.DB
	Clock      clock.Clock
	Topics     *TopicService
	Dispatcher notify.Dispatcher

	// pickIndex selects a candidate index in [0, n). Overridable in tests
	// for deterministic selection.
	pickIndex func(n int) int
}

// NewMatchService constructs a MatchService with uniform random selection.
func NewMatchService(db *gorm.DB, clk clock.Clock, topics *TopicService, dispatcher notify.Dispatcher) *MatchService {
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	return &MatchService{
		DB:         db,
		Clock:      clk,
		Topics:     topics,
		Dispatcher: dispatcher,
		pickIndex:  rand.Intn,
	}
}

// Candidates resolves the eligible counterpart set for userID under mode.
//
// Semantics:
//   - friend mode: users holding an accepted friendship edge with userID in
//     either direction.
//   - community mode: validates the community exists, is active, and that
//     userID holds an active membership; returns all other active members.
//
// Read-only; no side effects. Returns ErrNoCandidates when the resolved set
// is empty.
func (s *MatchService) Candidates(ctx context.Context, userID, mode, communityID string) ([]string, error) {
	switch mode {
	case domain.ModeFriend:
		ids, err := repo.AcceptedFriendIDs(ctx, s.DB, userID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, ErrNoCandidates
		}
		return ids, nil

	case domain.ModeCommunity:
		community, err := repo.GetCommunity(ctx, s.DB, communityID)
		if err != nil {
			if isNotFound(err) {
				return nil, ErrCommunityNotFound
			}
			return nil, err
		}
		if !community.Active {
			return nil, ErrCommunityInactive
		}
		member, err := repo.IsActiveMember(ctx, s.DB, communityID, userID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrNotAMember
		}
		ids, err := repo.ActiveMemberIDs(ctx, s.DB, communityID, userID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, ErrNoCandidates
		}
		return ids, nil
	}
	return nil, ErrInvalidMode
}

// Allocate pairs userID with one eligible, not-yet-matched partner for
// today and returns the resulting session.
//
// Algorithm:
//  1. Compute today's day key from the injected clock.
//  2. Reject with ErrAlreadyMatchedToday if the requester already occupies
//     either slot of a session for (today, mode).
//  3. Resolve candidates (see Candidates).
//  4. Subtract the users already matched today under this mode.
//  5. Pick uniformly at random from the remainder and persist the session.
//  6. Reconcile: re-read today's sessions for the requester and keep only
//     the earliest; later duplicates (possibly the one just created) are
//     discarded. The survivor is returned either way.
//  7. Attach a topic to the survivor if it has none, and notify the partner
//     best-effort.
//
// Daily exclusivity is keyed by (day, user, mode): a user in several
// communities may still only match once per day in community mode.
func (s *MatchService) Allocate(ctx context.Context, userID, mode, communityID string) (*domain.MatchSession, error) {
	tr := otel.Tracer("services/MatchService")
	ctx, span := tr.Start(ctx, "Allocate",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("match.mode", mode),
		),
	)
	defer span.End()

	if mode != domain.ModeFriend && mode != domain.ModeCommunity {
		return nil, ErrInvalidMode
	}

	today := clock.Today(s.Clock)

	existing, err := repo.SessionsForUserOnDay(ctx, s.DB, today, userID, mode)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrAlreadyMatchedToday
	}

	candidates, err := s.Candidates(ctx, userID, mode, communityID)
	if err != nil {
		return nil, err
	}

	taken, err := repo.MatchedUserIDsOnDay(ctx, s.DB, today, mode)
	if err != nil {
		return nil, err
	}
	available := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if id == userID {
			continue
		}
		if _, matched := taken[id]; matched {
			continue
		}
		available = append(available, id)
	}
	if len(available) == 0 {
		return nil, ErrNoAvailableCandidates
	}

	partner := available[s.pickIndex(len(available))]

	var cid *string
	if mode == domain.ModeCommunity {
		cid = &communityID
	}
	created, err := repo.CreateSession(ctx, s.DB, today, userID, partner, mode, cid)
	if err != nil {
		return nil, err
	}

	survivor, err := s.reconcile(ctx, today, userID, mode, created)
	if err != nil {
		return nil, err
	}

	if survivor.TopicID == nil && s.Topics != nil {
		// Best effort: a session without a topic is still a valid match.
		if _, terr := s.Topics.Assign(ctx, survivor.ID); terr == nil {
			if fresh, gerr := repo.GetSession(ctx, s.DB, survivor.ID); gerr == nil {
				survivor = fresh
			}
		}
	}

	if survivor.ID == created.ID {
		s.Dispatcher.Notify(ctx, partner,
			"Today's match is here",
			"You have a new conversation partner today.",
			map[string]string{"session_id": survivor.ID, "mode": mode},
		)
	}

	return survivor, nil
}

// reconcile re-reads today's sessions for the requester and enforces the
// single-session invariant by discarding everything but the oldest row.
// Returns the surviving session.
func (s *MatchService) reconcile(ctx context.Context, dayKey, userID, mode string, created *domain.MatchSession) (*domain.MatchSession, error) {
	sessions, err := repo.SessionsForUserOnDay(ctx, s.DB, dayKey, userID, mode)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		// Both racers keep index 0, so the oldest row is never deleted and
		// this re-read cannot normally come back empty. Fall back to the row
		// we just wrote.
		return created, nil
	}

	survivor := &sessions[0]
	for i := 1; i < len(sessions); i++ {
		dup := sessions[i]
		if err := repo.DeleteSession(ctx, s.DB, dup.ID); err != nil {
			// Deletion failures leave a duplicate behind; the next call for
			// this user re-runs reconciliation, so log-and-continue is safe.
			trace.SpanFromContext(ctx).RecordError(err)
		}
	}
	return survivor, nil
}
