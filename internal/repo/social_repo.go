// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the read-only social graph queries the
// candidate resolver consumes: accepted friendships and active community
// membership. The wider application owns the write paths for these tables.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tomoapp/go-match-backend/internal/domain"
)

// AcceptedFriendIDs returns the user IDs holding an accepted friendship edge
// with userID, in either direction.
func AcceptedFriendIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var rows []domain.Friendship
	err := db.WithContext(ctx).
		Where("status = ? AND (user_id = ? OR friend_id = ?)", domain.FriendshipAccepted, userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(rows))
	ids := make([]string, 0, len(rows))
	for _, f := range rows {
		other := f.FriendID
		if other == userID {
			other = f.UserID
		}
		if other == userID {
			continue // self edge, should not exist
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		ids = append(ids, other)
	}
	return ids, nil
}

// GetCommunity fetches a community by ID, or ErrNotFound.
func GetCommunity(ctx context.Context, db *gorm.DB, id string) (*domain.Community, error) {
	var c domain.Community
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// IsActiveMember reports whether userID holds an active membership in the
// community.
func IsActiveMember(ctx context.Context, db *gorm.DB, communityID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.CommunityMember{}).
		Where("community_id = ? AND user_id = ? AND status = ?", communityID, userID, domain.MemberActive).
		Count(&n).Error
	return n > 0, err
}

// ActiveMemberIDs returns the user IDs of a community's active members,
// excluding excludeUserID.
func ActiveMemberIDs(ctx context.Context, db *gorm.DB, communityID, excludeUserID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.CommunityMember{}).
		Where("community_id = ? AND status = ? AND user_id <> ?", communityID, domain.MemberActive, excludeUserID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
