// Package services – ConversationService
//
// This file implements ConversationService, the gateway in front of all chat
// content. Every operation is scoped to a match session and gated on the
// requester being one of its two participants. Writes additionally require
// the session to be live, where liveness is derived from the day key rather
// than trusted from the stored state flag (the sweep is cleanup, not the
// gate). Reads of message history survive expiry: yesterday's conversation
// stays reviewable, it just cannot grow.
//
// Read receipts are persisted as (message, user) rows with set semantics, so
// marking twice can never produce duplicate entries.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tomoapp/go-match-backend/internal/domain"
	"github.com/tomoapp/go-match-backend/internal/notify"
	"github.com/tomoapp/go-match-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Default and maximum page sizes for message listing.
const (
	DefaultMessagePageSize = 50
	MaxMessagePageSize     = 100
)

// ConversationService implements the send/list/read-receipt use-cases.
type ConversationService struct {
	DB         *gorm.DB
	Sessions   *SessionService
	Dispatcher notify.Dispatcher

	// MaxContentRunes caps message content by rune length. Zero disables
	// the cap.
	MaxContentRunes int
}

// NewConversationService constructs a ConversationService with the default
// content cap.
func NewConversationService(db *gorm.DB, sessions *SessionService, dispatcher notify.Dispatcher) *ConversationService {
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	return &ConversationService{
		DB:              db,
		Sessions:        sessions,
		Dispatcher:      dispatcher,
		MaxContentRunes: 2000,
	}
}

// guard loads the session and verifies the requester participates in it.
// When requireLive is set it also rejects sessions whose derived state is no
// longer active.
func (s *ConversationService) guard(ctx context.Context, sessionID, requesterID string, requireLive bool) (*domain.MatchSession, error) {
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
	if requireLive && s.Sessions.EffectiveState(session) != domain.SessionActive {
		return nil, ErrSessionEnded
	}
	return session, nil
}

// Send appends a message to a live session on behalf of senderID.
//
// Validation:
//   - the session must exist, include the sender, and still be live;
//   - kind must be "text" or "stamp";
//   - content must be non-empty after trimming and within the rune cap.
//
// The message row and the sender's read receipt are written in one
// transaction, then the partner is notified best-effort; a failed
// notification never fails the send.
func (s *ConversationService) Send(ctx context.Context, sessionID, senderID, kind, content string) (*domain.ChatMessage, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("user.id", senderID),
		),
	)
	defer span.End()

	if kind == "" {
		kind = domain.KindText
	}
	if kind != domain.KindText && kind != domain.KindStamp {
		return nil, ErrInvalidKind
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrMessageTooLong
	}

	session, err := s.guard(ctx, sessionID, senderID, true)
	if err != nil {
		return nil, err
	}

	var msg *domain.ChatMessage
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(tx, sessionID, senderID, kind, content)
		if err != nil {
			return err
		}
		if err := repo.CreateRead(tx, m.ID, senderID); err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Dispatcher.Notify(ctx, session.PartnerOf(senderID),
		"New message",
		"Your match sent you a message.",
		map[string]string{"session_id": sessionID, "message_id": msg.ID},
	)
	return msg, nil
}

// ListMessages returns up to limit messages of a session in ascending
// creation order, starting strictly after the message identified by afterID
// (empty for the first page). History remains readable after expiry; only
// the participant and existence gates apply to reads.
//
// An unknown afterID yields ErrMessageNotFound so clients learn their cursor
// went stale instead of silently restarting from the top.
func (s *ConversationService) ListMessages(ctx context.Context, sessionID, requesterID, afterID string, limit int) ([]domain.ChatMessage, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "ListMessages",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if _, err := s.guard(ctx, sessionID, requesterID, false); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultMessagePageSize
	}
	if limit > MaxMessagePageSize {
		limit = MaxMessagePageSize
	}

	db := s.DB.WithContext(ctx)
	if afterID == "" {
		return repo.ListMessagesAfter(db, sessionID, time.Time{}, "", limit)
	}

	cursor, err := repo.GetMessage(db, afterID)
	if err != nil || cursor.SessionID != sessionID {
		return nil, ErrMessageNotFound
	}
	return repo.ListMessagesAfter(db, sessionID, cursor.CreatedAt, cursor.ID, limit)
}

// MarkRead adds requesterID to the read set of every message in the session
// that they did not send and have not read, returning the number of messages
// newly marked. Calling it again immediately yields zero: the receipt rows
// are keyed (message, user), so re-marking is a no-op.
func (s *ConversationService) MarkRead(ctx context.Context, sessionID, requesterID string) (int64, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	if _, err := s.guard(ctx, sessionID, requesterID, false); err != nil {
		return 0, err
	}

	var marked int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := repo.UnreadMessageIDs(tx, sessionID, requesterID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := repo.CreateRead(tx, id, requesterID); err != nil {
				if err == repo.ErrDuplicate {
					continue // racing reader already marked it
				}
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// UnreadCount returns how many messages in the session were sent by the
// partner and not yet read by requesterID.
func (s *ConversationService) UnreadCount(ctx context.Context, sessionID, requesterID string) (int64, error) {
	if _, err := s.guard(ctx, sessionID, requesterID, false); err != nil {
		return 0, err
	}
	return repo.CountUnread(s.DB.WithContext(ctx), sessionID, requesterID)
}
