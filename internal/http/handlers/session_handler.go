// Session HTTP handlers.
//
// This file exposes REST endpoints for match session resources:
//   - GET  /sessions               (list the user's session history, paginated)
//   - GET  /sessions/{id}          (fetch one session with derived state)
//   - POST /sessions/{id}/read     (mark all partner messages as read)
//   - GET  /sessions/{id}/unread   (count unread partner messages)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Expired sessions remain readable;
// only writes are rejected downstream by the conversation service.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tomoapp/go-match-backend/internal/domain"
	"github.com/tomoapp/go-match-backend/internal/services"
	"github.com/tomoapp/go-match-backend/internal/utils"
)

//
// DTOs
//

// ListSessionsResponse wraps a page of sessions and pagination information.
type ListSessionsResponse struct {
	Sessions   []domain.MatchSession `json:"sessions"`
	Pagination Pagination            `json:"pagination"`
}

// SessionResponse is the JSON envelope for a single session.
type SessionResponse struct {
	Session *domain.MatchSession `json:"session"`
	// PartnerID is the other participant, resolved for the requester.
	PartnerID string `json:"partner_id"`
}

// MarkReadResponse reports how many messages a read sweep marked.
type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}

// UnreadCountResponse reports the requester's unread message count.
type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.ClampInt(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// sessionIDParam validates the :id path parameter as a UUID. On failure it
// writes a 400 response and returns ok=false.
func sessionIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// ListSessions returns a page of the current user's session history, newest
// day first. Expired sessions are included; each carries its derived state.
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()

	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.sessionSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetSession returns a single session the current user participates in.
func (h *Handlers) GetSession(c *gin.Context) {
	ctx := c.Request.Context()

	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	sessionID, okID := sessionIDParam(c)
	if !okID {
		return
	}

	session, err := h.sessionSvc.Get(ctx, sessionID, uid)
	if err != nil {
		switch err {
		case services.ErrSessionNotFound:
			fail(c, http.StatusNotFound, ErrCodeSessionNotFound, "session not found")
		case services.ErrForbidden:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this session")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, SessionResponse{Session: session, PartnerID: session.PartnerOf(uid)})
}

// MarkSessionRead records read receipts for every message the current user
// has not yet read in the session. The operation is idempotent; repeated
// calls report zero newly marked messages.
func (h *Handlers) MarkSessionRead(c *gin.Context) {
	ctx := c.Request.Context()

	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	sessionID, okID := sessionIDParam(c)
	if !okID {
		return
	}

	marked, err := h.convSvc.MarkRead(ctx, sessionID, uid)
	if err != nil {
		h.failConversation(c, err)
		return
	}

	ok(c, http.StatusOK, MarkReadResponse{Marked: marked})
}

// UnreadCount returns how many partner messages the current user has not read.
func (h *Handlers) UnreadCount(c *gin.Context) {
	ctx := c.Request.Context()

	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	sessionID, okID := sessionIDParam(c)
	if !okID {
		return
	}

	unread, err := h.convSvc.UnreadCount(ctx, sessionID, uid)
	if err != nil {
		h.failConversation(c, err)
		return
	}

	ok(c, http.StatusOK, UnreadCountResponse{Unread: unread})
}

// failConversation maps conversation service errors shared by several
// endpoints onto HTTP responses.
func (h *Handlers) failConversation(c *gin.Context, err error) {
	switch err {
	case services.ErrSessionNotFound:
		fail(c, http.StatusNotFound, ErrCodeSessionNotFound, "session not found")
	case services.ErrForbidden:
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this session")
	case services.ErrSessionEnded:
		fail(c, http.StatusConflict, ErrCodeSessionEnded, "session has ended")
	case services.ErrMessageNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "cursor message not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
