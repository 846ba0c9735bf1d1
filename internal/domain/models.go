// Package domain defines the persistence models for match sessions, chat
// messages, read receipts, topics, and the social graph. These types are
// mapped with GORM and form the core data layer of the matching backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Session states. A session is created active and is flipped to expired by
// the daily sweep (or derived as expired on read once its day has passed).
// There is no transition back to active.
const (
	SessionActive  = "active"
	SessionExpired = "expired"
)

// Matching modes. Friend mode draws candidates from the accepted friendship
// graph; community mode draws them from a community's active membership.
const (
	ModeFriend    = "friend"
	ModeCommunity = "community"
)

// Message kinds. A stamp message carries a stamp identifier in Content
// instead of free text.
const (
	KindText  = "text"
	KindStamp = "stamp"
)

// MatchSession represents one day's pairing between exactly two users under
// exactly one matching mode.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - DayKey: calendar day of the match (YYYY-MM-DD, fixed UTC+9), immutable.
//   - UserAID / UserBID: the two participants; UserAID is the requester that
//     won the allocation. The pair is conceptually unordered.
//   - State: "active" or "expired" (terminal).
//   - Mode: "friend" or "community".
//   - CommunityID: set iff Mode is "community".
//   - TopicID: conversation starter, attached once (unset -> set).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker; duplicate sessions discarded by race
//     reconciliation end up here, as do account-deletion cascades.
//
// Invariant: for a given (DayKey, user, Mode) at most one live session exists
// with that user in either slot, and UserAID != UserBID.
type MatchSession struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	DayKey      string         `json:"day_key"      gorm:"type:char(10);not null;index:idx_day_mode,priority:1"`
	UserAID     string         `json:"user_a_id"    gorm:"type:varchar(64);not null;index:idx_user_a_day"`
	UserBID     string         `json:"user_b_id"    gorm:"type:varchar(64);not null;index:idx_user_b_day"`
	State       string         `json:"state"        gorm:"type:varchar(16);not null;default:'active';check:state IN ('active','expired')"`
	Mode        string         `json:"mode"         gorm:"type:varchar(16);not null;index:idx_day_mode,priority:2;check:mode IN ('friend','community')"`
	CommunityID *string        `json:"community_id,omitempty" gorm:"type:char(36)"`
	TopicID     *string        `json:"topic_id,omitempty"     gorm:"type:char(36)"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for MatchSession.
func (MatchSession) TableName() string { return "match_sessions" }

// HasParticipant reports whether userID occupies either slot of the session.
func (s *MatchSession) HasParticipant(userID string) bool {
	return s.UserAID == userID || s.UserBID == userID
}

// PartnerOf returns the other participant for userID, or "" when userID is
// not a participant.
func (s *MatchSession) PartnerOf(userID string) string {
	switch userID {
	case s.UserAID:
		return s.UserBID
	case s.UserBID:
		return s.UserAID
	}
	return ""
}

// ChatMessage represents a single utterance within a match session. Messages
// reference the session that existed at send time; session expiry blocks new
// sends but existing messages persist for history.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SessionID: foreign key to the owning session (indexed, cascade delete).
//   - SenderID: one of the session's two participants.
//   - Kind: "text" or "stamp" (enforced by DB constraint).
//   - Content: message text, or the stamp identifier for stamp messages.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type ChatMessage struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string         `json:"session_id" gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	SenderID  string         `json:"sender_id"  gorm:"type:varchar(64);not null"`
	Kind      string         `json:"kind"       gorm:"type:varchar(16);not null;default:'text';check:kind IN ('text','stamp')"`
	Content   string         `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_session_msgs,priority:2"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// Session is the parent match. Messages are cascade-deleted if their
	// session row is removed outright (account deletion).
	Session MatchSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// MessageRead is one entry of a message's read set. The composite primary
// key (MessageID, UserID) gives set semantics: a reader can appear at most
// once per message, so the read set grows monotonically without duplicates.
// The sender's row is written at send time.
type MessageRead struct {
	MessageID string    `json:"message_id" gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Message ChatMessage `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MessageRead.
func (MessageRead) TableName() string { return "message_reads" }

// Topic is one conversation starter from the fixed catalog. Topics are
// seeded at startup and attached to sessions by the topic assigner.
type Topic struct {
	ID        string    `json:"id"    gorm:"type:char(36);primaryKey"`
	Label     string    `json:"label" gorm:"type:varchar(255);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Topic.
func (Topic) TableName() string { return "topics" }

// Friendship states.
const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipBlocked  = "blocked"
)

// Friendship is a directed friendship edge. The candidate resolver treats
// accepted edges as undirected: either endpoint may be matched with the
// other. The wider application owns the request/accept flow; the matching
// engine only reads accepted rows.
type Friendship struct {
	ID        string         `json:"id"        gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"   gorm:"type:varchar(64);not null;uniqueIndex:ux_friend_pair,priority:1"`
	FriendID  string         `json:"friend_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_friend_pair,priority:2"`
	Status    string         `json:"status"    gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','accepted','blocked')"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"         gorm:"index"`
}

// TableName returns the database table name for Friendship.
func (Friendship) TableName() string { return "friendships" }

// Community is a user group that can run its own daily matching. Inactive
// communities are excluded from matching entirely.
type Community struct {
	ID        string         `json:"id"     gorm:"type:char(36);primaryKey"`
	Name      string         `json:"name"   gorm:"type:varchar(255);not null"`
	Active    bool           `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"      gorm:"index"`
}

// TableName returns the database table name for Community.
func (Community) TableName() string { return "communities" }

// Membership states.
const (
	MemberActive = "active"
	MemberLeft   = "left"
)

// CommunityMember links a user to a community. Only active rows count for
// candidate resolution.
type CommunityMember struct {
	CommunityID string    `json:"community_id" gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);primaryKey"`
	Status      string    `json:"status"       gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','left')"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Community Community `json:"-" gorm:"foreignKey:CommunityID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CommunityMember.
func (CommunityMember) TableName() string { return "community_members" }
