// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// MatchSession model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Allocation support is deliberately split into small queries so the service
// layer can implement the check / pick / persist / reconcile sequence the
// platform's document-at-a-time concurrency model requires.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tomoapp/go-match-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSession inserts a new MatchSession row in the active state.
// The session ID is a randomly generated UUID and CreatedAt is set to UTC.
func CreateSession(ctx context.Context, db *gorm.DB, dayKey, userA, userB, mode string, communityID *string) (*domain.MatchSession, error) {
	s := &domain.MatchSession{
		ID:          uuid.NewString(),
		DayKey:      dayKey,
		UserAID:     userA,
		UserBID:     userB,
		State:       domain.SessionActive,
		Mode:        mode,
		CommunityID: communityID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by ID, or ErrNotFound if missing.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.MatchSession, error) {
	var s domain.MatchSession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// SessionsForUserOnDay returns every session for (dayKey, mode) in which
// userID occupies either slot, ordered oldest first (CreatedAt ASC, ID ASC).
// The deterministic order is what makes oldest-wins reconciliation converge.
func SessionsForUserOnDay(ctx context.Context, db *gorm.DB, dayKey, userID, mode string) ([]domain.MatchSession, error) {
	var out []domain.MatchSession
	err := db.WithContext(ctx).
		Where("day_key = ? AND mode = ? AND (user_a_id = ? OR user_b_id = ?)", dayKey, mode, userID, userID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// MatchedUserIDsOnDay returns the union of both slots across all of the
// day's sessions for a mode: the set of users already taken today.
func MatchedUserIDsOnDay(ctx context.Context, db *gorm.DB, dayKey, mode string) (map[string]struct{}, error) {
	var rows []struct {
		UserAID string
		UserBID string
	}
	err := db.WithContext(ctx).
		Model(&domain.MatchSession{}).
		Select("user_a_id, user_b_id").
		Where("day_key = ? AND mode = ?", dayKey, mode).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, 2*len(rows))
	for _, r := range rows {
		taken[r.UserAID] = struct{}{}
		taken[r.UserBID] = struct{}{}
	}
	return taken, nil
}

// DeleteSession soft-deletes a session row. Used only by the allocator's
// duplicate reconciliation; regular expiry is a state update, not a delete.
func DeleteSession(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Delete(&domain.MatchSession{}, "id = ?", id).Error
}

// AttachTopic sets the session's topic only while it is still unset. The
// conditional WHERE makes the attachment idempotent under concurrent assigns:
// the first writer wins and later calls affect zero rows.
func AttachTopic(ctx context.Context, db *gorm.DB, sessionID, topicID string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.MatchSession{}).
		Where("id = ? AND topic_id IS NULL", sessionID).
		Update("topic_id", topicID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExpireSession flips a single active session to expired. Rows already
// expired are not touched, so a repeated sweep is a no-op for them.
func ExpireSession(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.MatchSession{}).
		Where("id = ? AND state = ?", id, domain.SessionActive).
		Update("state", domain.SessionExpired)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// StaleActiveSessions returns active sessions whose day key precedes today.
// The predicate is "< today" rather than "= yesterday" so a missed sweep run
// is caught by the next one.
func StaleActiveSessions(ctx context.Context, db *gorm.DB, today string) ([]domain.MatchSession, error) {
	var out []domain.MatchSession
	err := db.WithContext(ctx).
		Where("state = ? AND day_key < ?", domain.SessionActive, today).
		Order("day_key ASC, created_at ASC").
		Find(&out).Error
	return out, err
}

// CountSessionsForUser returns the total number of sessions in which userID
// occupies either slot, for history pagination.
func CountSessionsForUser(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.MatchSession{}).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Count(&total).Error
	return total, err
}

// ListSessionsPageForUser returns a page of userID's sessions, most recent
// day first.
func ListSessionsPageForUser(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.MatchSession, error) {
	var out []domain.MatchSession
	err := db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("day_key DESC, created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
