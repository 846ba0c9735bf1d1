// Match HTTP handlers.
//
// This file exposes the REST endpoint for daily match allocation:
//   - POST /match   (allocate today's match for the current user)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Allocation supports idempotency
// via the Idempotency-Key header; a replayed key returns the originally
// allocated session with `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tomoapp/go-match-backend/internal/domain"
	"github.com/tomoapp/go-match-backend/internal/http/middleware"
	"github.com/tomoapp/go-match-backend/internal/repo"
	"github.com/tomoapp/go-match-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// MatchService defines daily match allocation operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MatchService interface {
	// Allocate resolves the candidate pool for userID under the given mode and
	// creates (or converges on) today's match session.
	Allocate(ctx context.Context, userID, mode, communityID string) (*domain.MatchSession, error)
}

// SessionService defines session retrieval operations consumed by HTTP
// handlers. Returned sessions carry their derived lifecycle state.
type SessionService interface {
	// Get returns a session visible to requesterID.
	Get(ctx context.Context, sessionID, requesterID string) (*domain.MatchSession, error)
	// ListPage returns a page of the requester's session history and the total count.
	ListPage(ctx context.Context, requesterID string, page, pageSize int) ([]domain.MatchSession, int64, error)
}

// ConversationService defines messaging operations inside a match session.
type ConversationService interface {
	// Send appends a message to a live session on behalf of senderID.
	Send(ctx context.Context, sessionID, senderID, kind, content string) (*domain.ChatMessage, error)
	// ListMessages returns messages strictly after the cursor message, oldest first.
	ListMessages(ctx context.Context, sessionID, requesterID, afterID string, limit int) ([]domain.ChatMessage, error)
	// MarkRead records read receipts for every unread message and returns how many were marked.
	MarkRead(ctx context.Context, sessionID, requesterID string) (int64, error)
	// UnreadCount returns the number of partner messages the requester has not read.
	UnreadCount(ctx context.Context, sessionID, requesterID string) (int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for matching, sessions, and conversations.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	matchSvc   MatchService
	sessionSvc SessionService
	convSvc    ConversationService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(matchSvc MatchService, sessionSvc SessionService, convSvc ConversationService) *Handlers {
	return &Handlers{matchSvc: matchSvc, sessionSvc: sessionSvc, convSvc: convSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to the "X-User-ID" header set by the
// auth collaborator. It returns "" when no identity is present.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return ""
}

// requireUser returns the current user id, or writes a 401 response and
// returns ok=false when no identity is present.
func requireUser(c *gin.Context) (string, bool) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthenticated, "missing user identity")
		return "", false
	}
	return uid, true
}

//
// DTOs
//

// MatchRequest is the JSON payload for requesting today's match.
type MatchRequest struct {
	// Mode selects the candidate pool: "friend" or "community".
	Mode string `json:"mode" binding:"required"`
	// CommunityID scopes community-mode matching; ignored for friend mode.
	CommunityID string `json:"community_id"`
}

// MatchResponse is the JSON envelope for an allocated match session.
type MatchResponse struct {
	Session *domain.MatchSession `json:"session"`
	// PartnerID is the other participant, resolved for the requester.
	PartnerID string `json:"partner_id"`
	// Topic is the conversation starter attached to the session, when one exists.
	Topic *domain.Topic `json:"topic,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Handlers
//

// PostMatch allocates today's match for the current user.
//
// Responses:
//   - 201 with a MatchResponse on success
//   - 200 with `Idempotency-Replayed: true` when the key replays a prior result
//   - 409 already_matched when a session already exists for today under this mode
//   - 422 when the candidate pool is empty or exhausted
func (h *Handlers) PostMatch(c *gin.Context) {
	ctx := c.Request.Context()

	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mode required")
		return
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.matchSvc.(*services.MatchService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, uid, middleware.ScopeMatch, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := h.sessionSvc.Get(ctx, rec.ResultID, uid); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusOK, h.matchResponse(ctx, uid, prev))
					return
				}
			}
		}
	}

	session, err := h.matchSvc.Allocate(ctx, uid, mode, strings.TrimSpace(req.CommunityID))
	if err != nil {
		switch err {
		case services.ErrInvalidMode:
			middleware.CountMatchOutcome(mode, "invalid_mode")
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case services.ErrCommunityNotFound:
			middleware.CountMatchOutcome(mode, "community_not_found")
			fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
		case services.ErrCommunityInactive:
			middleware.CountMatchOutcome(mode, "community_inactive")
			fail(c, http.StatusUnprocessableEntity, ErrCodeCommunityInactive, err.Error())
		case services.ErrNotAMember:
			middleware.CountMatchOutcome(mode, "not_a_member")
			fail(c, http.StatusUnprocessableEntity, ErrCodeNotAMember, err.Error())
		case services.ErrNoCandidates:
			middleware.CountMatchOutcome(mode, "no_candidates")
			fail(c, http.StatusUnprocessableEntity, ErrCodeNoCandidates, err.Error())
		case services.ErrNoAvailableCandidates:
			middleware.CountMatchOutcome(mode, "no_available_candidates")
			fail(c, http.StatusUnprocessableEntity, ErrCodeNoAvailableCandidates, err.Error())
		case services.ErrAlreadyMatchedToday:
			middleware.CountMatchOutcome(mode, "already_matched")
			fail(c, http.StatusConflict, ErrCodeAlreadyMatched, err.Error())
		default:
			middleware.CountMatchOutcome(mode, "error")
			fail(c, http.StatusInternalServerError, ErrCodeMatchFailed, err.Error())
		}
		return
	}
	middleware.CountMatchOutcome(mode, "matched")

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, okSvc := h.matchSvc.(*services.MatchService); okSvc && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, uid, middleware.ScopeMatch, idemKey, session.ID, http.StatusCreated, ttl)
		}
	}

	ok(c, http.StatusCreated, h.matchResponse(ctx, uid, session))
}

// matchResponse assembles the response envelope for a session, resolving the
// partner and (best effort) the attached topic.
func (h *Handlers) matchResponse(ctx context.Context, uid string, session *domain.MatchSession) MatchResponse {
	resp := MatchResponse{
		Session:   session,
		PartnerID: session.PartnerOf(uid),
	}
	if session.TopicID != nil {
		if svc, okSvc := h.matchSvc.(*services.MatchService); okSvc && svc.DB != nil {
			if topic, err := repo.GetTopic(ctx, svc.DB, *session.TopicID); err == nil {
				resp.Topic = topic
			}
		}
	}
	return resp
}
