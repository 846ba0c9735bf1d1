package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tomoapp/go-match-backend/internal/domain"
	"github.com/tomoapp/go-match-backend/internal/services"
)

// seedHandlerSession inserts a session with a UUID id and returns it.
func seedHandlerSession(t *testing.T, db *gorm.DB, dayKey, a, b, state string) *domain.MatchSession {
	t.Helper()
	row := domain.MatchSession{
		ID: uuid.NewString(), DayKey: dayKey, UserAID: a, UserBID: b,
		State: state, Mode: domain.ModeFriend, CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return &row
}

func Test_clampPagination_and_sessionIDParam(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=-5&page_size=9999", nil)
	p, ps := clampPagination(c)
	if p != 1 || ps != 100 {
		t.Fatalf("clamp bounds got p=%d ps=%d", p, ps)
	}

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=&page_size=0", nil)
	p, ps = clampPagination(c)
	if p != 1 || ps != 1 {
		t.Fatalf("clamp defaults got p=%d ps=%d", p, ps)
	}

	// Bad UUID -> 400.
	w := httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}
	if _, okID := sessionIDParam(c); okID {
		t.Fatalf("expected UUID rejection")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("uuid 400 -> %d", w.Code)
	}
}

func TestListSessions_PaginationEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, matchSvc, sessionSvc, convSvc := realServices(t)
	h := New(matchSvc, sessionSvc, convSvc)

	seedHandlerSession(t, db, "2026-08-29", "u1", "u2", domain.SessionActive)
	seedHandlerSession(t, db, "2026-08-30", "u1", "u3", domain.SessionActive)
	seedHandlerSession(t, db, "2026-08-31", "u1", "u4", domain.SessionActive)

	r := gin.New()
	r.GET("/sessions", h.ListSessions)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions?page=1&page_size=2", nil)
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d body=%s", w.Code, w.Body.String())
	}

	var out ListSessionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Sessions) != 2 || out.Sessions[0].DayKey != "2026-08-31" {
		t.Fatalf("page content: %+v", out.Sessions)
	}
	if out.Pagination.Total != 3 || out.Pagination.TotalPages != 2 || !out.Pagination.HasNext {
		t.Fatalf("pagination: %+v", out.Pagination)
	}
	// Past days read as expired, today as active.
	if out.Sessions[0].State != domain.SessionActive || out.Sessions[1].State != domain.SessionExpired {
		t.Fatalf("derived states: %s / %s", out.Sessions[0].State, out.Sessions[1].State)
	}
}

func TestGetSession_Statuses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, matchSvc, sessionSvc, convSvc := realServices(t)
	h := New(matchSvc, sessionSvc, convSvc)
	session := seedHandlerSession(t, db, "2026-08-31", "u1", "u2", domain.SessionActive)

	r := gin.New()
	r.GET("/sessions/:id", h.GetSession)

	get := func(id, uid string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil)
		req.Header.Set("X-User-ID", uid)
		r.ServeHTTP(w, req)
		return w
	}

	if w := get(uuid.NewString(), "u1"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown session -> %d", w.Code)
	}
	if w := get(session.ID, "intruder"); w.Code != http.StatusForbidden {
		t.Fatalf("non-participant -> %d", w.Code)
	}

	w := get(session.ID, "u2")
	if w.Code != http.StatusOK {
		t.Fatalf("get -> %d body=%s", w.Code, w.Body.String())
	}
	var out SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Session.ID != session.ID || out.PartnerID != "u1" {
		t.Fatalf("envelope: %+v", out)
	}
}

func TestMarkSessionRead_And_UnreadCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, matchSvc, sessionSvc, convSvc := realServices(t)
	h := New(matchSvc, sessionSvc, convSvc)
	session := seedHandlerSession(t, db, "2026-08-31", "u1", "u2", domain.SessionActive)

	for _, text := range []string{"hello", "there"} {
		if _, err := convSvc.Send(context.Background(), session.ID, "u1", "", text); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	r := gin.New()
	r.POST("/sessions/:id/read", h.MarkSessionRead)
	r.GET("/sessions/:id/unread", h.UnreadCount)

	// u2 has two unread messages.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+session.ID+"/unread", nil)
	req.Header.Set("X-User-ID", "u2")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("unread -> %d", w.Code)
	}
	var unread UnreadCountResponse
	if err := json.Unmarshal(w.Body.Bytes(), &unread); err != nil {
		t.Fatalf("json: %v", err)
	}
	if unread.Unread != 2 {
		t.Fatalf("unread = %d", unread.Unread)
	}

	// Mark both, then re-marking reports zero.
	mark := func() MarkReadResponse {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/sessions/"+session.ID+"/read", nil)
		req.Header.Set("X-User-ID", "u2")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("read -> %d body=%s", w.Code, w.Body.String())
		}
		var out MarkReadResponse
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("json: %v", err)
		}
		return out
	}
	if got := mark(); got.Marked != 2 {
		t.Fatalf("marked = %d", got.Marked)
	}
	if got := mark(); got.Marked != 0 {
		t.Fatalf("re-mark = %d", got.Marked)
	}
}

func TestFailConversation_Mapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err      error
		wantCode int
	}{
		{services.ErrSessionNotFound, http.StatusNotFound},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrSessionEnded, http.StatusConflict},
		{services.ErrMessageNotFound, http.StatusNotFound},
		{gorm.ErrInvalidField, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := stubConvSvc{
			unread: func(context.Context, string, string) (int64, error) { return 0, tc.err },
		}
		h := New(stubMatchSvc{}, stubSessionSvc{}, svc)
		r := gin.New()
		r.GET("/sessions/:id/unread", h.UnreadCount)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/sessions/"+uuid.NewString()+"/unread", nil)
		req.Header.Set("X-User-ID", "u1")
		r.ServeHTTP(w, req)
		if w.Code != tc.wantCode {
			t.Fatalf("%v -> %d; want %d", tc.err, w.Code, tc.wantCode)
		}
	}
}
