// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ChatMessage
// model and its read-receipt rows.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tomoapp/go-match-backend/internal/domain"
)

// CreateMessage inserts a new message row. Callers run it inside the same
// transaction as the sender's read receipt so a message never exists without
// its sender in the read set.
func CreateMessage(db *gorm.DB, sessionID, senderID, kind, content string) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SenderID:  senderID,
		Kind:      kind,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// GetMessage fetches a message by ID, or gorm.ErrRecordNotFound.
func GetMessage(db *gorm.DB, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessagesAfter returns up to limit messages of a session ordered
// deterministically (CreatedAt ASC, ID ASC), starting strictly after the
// given cursor position. Pass a zero time and empty id for the first page.
func ListMessagesAfter(db *gorm.DB, sessionID string, afterCreatedAt time.Time, afterID string, limit int) ([]domain.ChatMessage, error) {
	q := db.Where("session_id = ?", sessionID).Order("created_at ASC, id ASC")
	if afterID != "" {
		q = q.Where("(created_at > ?) OR (created_at = ? AND id > ?)", afterCreatedAt, afterCreatedAt, afterID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.ChatMessage
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM chat_messages WHERE session_id = ? AND deleted_at IS NULL", sessionID).Scan(&total).Error
	return total, err
}

// CreateRead inserts a read receipt for (messageID, userID). A duplicate row
// maps to ErrDuplicate via the composite primary key, so the read set never
// gains a second entry for the same reader.
func CreateRead(db *gorm.DB, messageID, userID string) error {
	r := &domain.MessageRead{
		MessageID: messageID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UnreadMessageIDs returns the IDs of messages in a session that were not
// sent by userID and do not yet carry userID in their read set, oldest first.
func UnreadMessageIDs(db *gorm.DB, sessionID, userID string) ([]string, error) {
	var ids []string
	err := db.
		Model(&domain.ChatMessage{}).
		Select("chat_messages.id").
		Where("chat_messages.session_id = ? AND chat_messages.sender_id <> ?", sessionID, userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = chat_messages.id AND r.user_id = ?)", userID).
		Order("chat_messages.created_at ASC, chat_messages.id ASC").
		Pluck("chat_messages.id", &ids).Error
	return ids, err
}

// CountUnread returns how many of a session's messages are unread by userID.
func CountUnread(db *gorm.DB, sessionID, userID string) (int64, error) {
	var total int64
	err := db.
		Model(&domain.ChatMessage{}).
		Where("session_id = ? AND sender_id <> ?", sessionID, userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = chat_messages.id AND r.user_id = ?)", userID).
		Count(&total).Error
	return total, err
}

// ReadersOf returns the user IDs in a message's read set, in receipt order.
func ReadersOf(db *gorm.DB, messageID string) ([]string, error) {
	var ids []string
	err := db.
		Model(&domain.MessageRead{}).
		Where("message_id = ?", messageID).
		Order("created_at ASC, user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
