// Package services – SessionService
//
// This file implements SessionService, which owns the active -> expired
// state machine for match sessions. Expiry has two faces:
//
//   - The scheduled sweep (ExpireStale) flips yesterday's still-active rows
//     once a day. It is idempotent and self-healing: the predicate is
//     "day key < today", so a missed run is caught by the next one.
//   - On-demand derivation (EffectiveState): a session whose day has passed
//     is logically expired the moment the day rolls over, whether or not the
//     sweep has run. Read paths that gate on liveness use the derived state,
//     never the stored flag alone.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tomoapp/go-match-backend/internal/clock"
	"github.com/tomoapp/go-match-backend/internal/domain"
	"github.com/tomoapp/go-match-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// SessionService provides session retrieval, history listing, and the expiry
// sweep.
type SessionService struct {
	DB    *gorm.DB
	Clock clock.Clock
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB, clk clock.Clock) *SessionService {
	return &SessionService{DB: db, Clock: clk}
}

// EffectiveState returns the state a reader should observe right now:
// "expired" once the session's day has passed, even if the sweep has not yet
// persisted the flip. A stored "expired" never reverts.
func (s *SessionService) EffectiveState(session *domain.MatchSession) string {
	if session.State == domain.SessionExpired {
		return domain.SessionExpired
	}
	if session.DayKey < clock.Today(s.Clock) {
		return domain.SessionExpired
	}
	return session.State
}

// Get fetches a session on behalf of requesterID. Non-participants receive
// ErrForbidden; the returned copy carries the derived state.
func (s *SessionService) Get(ctx context.Context, sessionID, requesterID string) (*domain.MatchSession, error) {
	session, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if !session.HasParticipant(requesterID) {
		return nil, ErrForbidden
	}
	session.State = s.EffectiveState(session)
	return session, nil
}

// ListPage returns a page of requesterID's match history, most recent day
// first, with each row carrying its derived state. It applies defaults for
// invalid page/pageSize and returns the total count.
func (s *SessionService) ListPage(ctx context.Context, requesterID string, page, pageSize int) ([]domain.MatchSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountSessionsForUser(ctx, s.DB, requesterID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.MatchSession{}, 0, nil
	}

	items, err := repo.ListSessionsPageForUser(ctx, s.DB, requesterID, offset, pageSize)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].State = s.EffectiveState(&items[i])
	}
	return items, total, nil
}

// ExpireStale flips every active session from a previous day to expired and
// returns the number of rows transitioned. Per-row failures are logged and
// skipped; the sweep runs to completion. There is no user-facing error
// surface for individual rows — stragglers are picked up by the next run.
func (s *SessionService) ExpireStale(ctx context.Context) (int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "ExpireStale")
	defer span.End()

	today := clock.Today(s.Clock)
	stale, err := repo.StaleActiveSessions(ctx, s.DB, today)
	if err != nil {
		return 0, err
	}

	var flipped int64
	for i := range stale {
		if err := repo.ExpireSession(ctx, s.DB, stale[i].ID); err != nil {
			if isNotFound(err) {
				// Another writer expired it between the scan and the update.
				continue
			}
			log.Warn().Err(err).
				Str("session_id", stale[i].ID).
				Str("day_key", stale[i].DayKey).
				Msg("sweep: expire failed, skipping row")
			continue
		}
		flipped++
	}

	span.SetAttributes(attribute.Int64("sweep.flipped", flipped))
	log.Info().
		Int64("flipped", flipped).
		Int("stale", len(stale)).
		Str("today", today).
		Msg("session expiry sweep complete")
	return flipped, nil
}

// isNotFound treats repo-level not found sentinels as "not found" in a
// driver-agnostic way.
func isNotFound(err error) bool {
	if errors.Is(err, repo.ErrNotFound) {
		return true
	}
	return errors.Is(err, gorm.ErrRecordNotFound)
}
