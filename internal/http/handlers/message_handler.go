// Message HTTP handlers.
//
// This file exposes REST endpoints for messages inside a match session:
//   - POST /sessions/{id}/messages   (send a message to the partner)
//   - GET  /sessions/{id}/messages   (list messages after a cursor)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to application services (ConversationService)
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, session, key), the handler returns that recorded
// message and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tomoapp/go-match-backend/internal/domain"
	"github.com/tomoapp/go-match-backend/internal/http/middleware"
	"github.com/tomoapp/go-match-backend/internal/repo"
	"github.com/tomoapp/go-match-backend/internal/services"
	"github.com/tomoapp/go-match-backend/internal/utils"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a message.
//
// Content is normalized by the handler (line endings and excessive blank
// lines) before being passed to the service layer. The service also enforces
// a maximum rune count, which can be configured in ConversationService.
type PostMessageRequest struct {
	// Kind is "text" or "stamp"; empty defaults to "text".
	Kind string `json:"kind"`
	// Content is the message body. It must be non-empty.
	Content string `json:"content" binding:"required,min=1"`
}

// PostMessageResponse is the JSON envelope for a newly created message.
type PostMessageResponse struct {
	Message *domain.ChatMessage `json:"message"`
}

// ListMessagesResponse contains a page of session messages and the cursor to
// request the next page.
type ListMessagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
	// NextCursor is the id of the last returned message; pass it as ?after=
	// to continue. Empty when the page is empty.
	NextCursor string `json:"next_cursor,omitempty"`
	// HasMore hints that another page may exist (the page came back full).
	HasMore bool `json:"has_more"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxContentRunes inspects the concrete ConversationService for a
// configured content-length limit. If unavailable, it returns a conservative
// fallback.
func discoverMaxContentRunes(convSvc ConversationService) int {
	const fallback = 2000
	if cs, okSvc := convSvc.(*services.ConversationService); okSvc {
		if cs.MaxContentRunes > 0 {
			return cs.MaxContentRunes
		}
	}
	return fallback
}

// clampMessageLimit parses the ?limit= query parameter, applying the service
// defaults and hard cap.
func clampMessageLimit(c *gin.Context) int {
	return utils.ClampInt(
		utils.AtoiDefault(c.Query("limit"), services.DefaultMessagePageSize),
		1, services.MaxMessagePageSize)
}

//
// Handlers
//

// PostMessage appends a message to a live session on behalf of the current
// user. Sending into an expired session fails with 409 session_ended; history
// remains readable via ListMessages.
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()

	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	sessionID, okID := sessionIDParam(c)
	if !okID {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	content := sanitizeContent(req.Content)
	maxRunes := discoverMaxContentRunes(h.convSvc)
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return
	}
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if db := h.conversationDB(); db != nil {
			if rec, err := repo.GetIdempotency(ctx, db, uid, sessionID, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetMessage(db, rec.ResultID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, PostMessageResponse{Message: prev})
					return
				}
			}
		}
	}

	// Normal processing (service has a second guard for length).
	m, err := h.convSvc.Send(ctx, sessionID, uid, strings.ToLower(strings.TrimSpace(req.Kind)), content)
	if err != nil {
		switch err {
		case services.ErrInvalidKind, services.ErrEmptyMessage:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case services.ErrMessageTooLong:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		case services.ErrSessionNotFound:
			fail(c, http.StatusNotFound, ErrCodeSessionNotFound, "session not found")
		case services.ErrForbidden:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this session")
		case services.ErrSessionEnded:
			fail(c, http.StatusConflict, ErrCodeSessionEnded, "session has ended")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		}
		return
	}
	middleware.CountMessageSent(m.Kind)

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if db := h.conversationDB(); db != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, db, uid, sessionID, idemKey, m.ID, http.StatusCreated, ttl)
		}
	}

	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// ListMessages returns session messages strictly after the ?after= cursor,
// oldest first. It works for expired sessions as well; history outlives the
// session's active day.
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()

	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	sessionID, okID := sessionIDParam(c)
	if !okID {
		return
	}

	// ETag pre-check (best effort).
	if db := h.conversationDB(); db != nil {
		count, maxTS, err := repo.MessagesStats(ctx, db, sessionID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, sessionID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	after := strings.TrimSpace(c.Query("after"))
	limit := clampMessageLimit(c)

	items, err := h.convSvc.ListMessages(ctx, sessionID, uid, after, limit)
	if err != nil {
		h.failConversation(c, err)
		return
	}

	resp := ListMessagesResponse{Messages: items, HasMore: len(items) == limit}
	if len(items) > 0 {
		resp.NextCursor = items[len(items)-1].ID
	}
	ok(c, http.StatusOK, resp)
}

// conversationDB exposes the concrete conversation service's database handle
// for edge concerns (ETag stats, idempotency records). Returns nil when the
// service is a test fake.
func (h *Handlers) conversationDB() *gorm.DB {
	if cs, okSvc := h.convSvc.(*services.ConversationService); okSvc {
		return cs.DB
	}
	return nil
}
