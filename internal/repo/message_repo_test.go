package repo

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tomoapp/go-match-backend/internal/domain"
)

func newMessageRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("message_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.MatchSession{}, &domain.ChatMessage{}, &domain.MessageRead{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedMessage inserts a message row with a controlled id and timestamp so
// cursor ordering is deterministic in tests.
func seedMessage(t *testing.T, db *gorm.DB, id, sessionID, senderID string, at time.Time) {
	t.Helper()
	m := domain.ChatMessage{
		ID: id, SessionID: sessionID, SenderID: senderID,
		Kind: domain.KindText, Content: "msg " + id, CreatedAt: at,
	}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("seed message %s: %v", id, err)
	}
}

func TestCreateMessage_And_GetMessage(t *testing.T) {
	db := newMessageRepoDB(t)

	m, err := CreateMessage(db, "sess-1", "u1", domain.KindText, "hello")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.ID == "" || m.SessionID != "sess-1" || m.SenderID != "u1" || m.Content != "hello" {
		t.Fatalf("unexpected message fields: %+v", m)
	}

	got, err := GetMessage(db, m.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.ID != m.ID || got.Kind != domain.KindText {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	if _, err := GetMessage(db, "missing"); err != gorm.ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestListMessagesAfter_CursorAndLimit(t *testing.T) {
	db := newMessageRepoDB(t)

	base := time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC)
	seedMessage(t, db, "m1", "sess-1", "u1", base)
	seedMessage(t, db, "m2", "sess-1", "u2", base.Add(time.Minute))
	// Same timestamp as m2: the id breaks the tie.
	seedMessage(t, db, "m3", "sess-1", "u1", base.Add(time.Minute))
	seedMessage(t, db, "m4", "sess-1", "u2", base.Add(2*time.Minute))
	seedMessage(t, db, "zz", "sess-2", "u9", base) // other session

	// First page: no cursor.
	got, err := ListMessagesAfter(db, "sess-1", time.Time{}, "", 0)
	if err != nil {
		t.Fatalf("ListMessagesAfter: %v", err)
	}
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	if len(ids) != 4 || ids[0] != "m1" || ids[1] != "m2" || ids[2] != "m3" || ids[3] != "m4" {
		t.Fatalf("unexpected first page order: %v", ids)
	}

	// Cursor strictly after m2 picks up the equal-timestamp m3 first.
	got, err = ListMessagesAfter(db, "sess-1", base.Add(time.Minute), "m2", 0)
	if err != nil {
		t.Fatalf("after m2: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m3" || got[1].ID != "m4" {
		t.Fatalf("unexpected page after m2: %+v", got)
	}

	// Limit caps the page.
	got, err = ListMessagesAfter(db, "sess-1", time.Time{}, "", 2)
	if err != nil || len(got) != 2 || got[1].ID != "m2" {
		t.Fatalf("unexpected limited page: n=%d err=%v", len(got), err)
	}

	// After the last message: empty page.
	got, err = ListMessagesAfter(db, "sess-1", base.Add(2*time.Minute), "m4", 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty tail page, got n=%d err=%v", len(got), err)
	}
}

func TestCountMessages(t *testing.T) {
	db := newMessageRepoDB(t)

	if n, err := CountMessages(db, "sess-1"); err != nil || n != 0 {
		t.Fatalf("empty count = %d, %v", n, err)
	}

	base := time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC)
	seedMessage(t, db, "m1", "sess-1", "u1", base)
	seedMessage(t, db, "m2", "sess-1", "u2", base.Add(time.Second))
	seedMessage(t, db, "zz", "sess-2", "u9", base)

	if n, err := CountMessages(db, "sess-1"); err != nil || n != 2 {
		t.Fatalf("count = %d, %v; want 2", n, err)
	}

	// Soft-deleted rows drop out of the count.
	if err := db.Delete(&domain.ChatMessage{}, "id = ?", "m1").Error; err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if n, err := CountMessages(db, "sess-1"); err != nil || n != 1 {
		t.Fatalf("count after delete = %d, %v; want 1", n, err)
	}
}

func TestCreateRead_DuplicateMapsToErrDuplicate(t *testing.T) {
	db := newMessageRepoDB(t)

	base := time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC)
	seedMessage(t, db, "m1", "sess-1", "u1", base)

	if err := CreateRead(db, "m1", "u2"); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if err := CreateRead(db, "m1", "u2"); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	readers, err := ReadersOf(db, "m1")
	if err != nil {
		t.Fatalf("ReadersOf: %v", err)
	}
	if len(readers) != 1 || readers[0] != "u2" {
		t.Fatalf("read set must stay a set: %v", readers)
	}
}

func TestUnreadQueries_ExcludeOwnAndReadMessages(t *testing.T) {
	db := newMessageRepoDB(t)

	base := time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC)
	seedMessage(t, db, "m1", "sess-1", "u1", base)                   // partner msg, will be read
	seedMessage(t, db, "m2", "sess-1", "u1", base.Add(time.Minute))  // partner msg, unread
	seedMessage(t, db, "m3", "sess-1", "u2", base.Add(2*time.Minute)) // own msg
	if err := CreateRead(db, "m1", "u2"); err != nil {
		t.Fatalf("mark m1 read: %v", err)
	}

	ids, err := UnreadMessageIDs(db, "sess-1", "u2")
	if err != nil {
		t.Fatalf("UnreadMessageIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "m2" {
		t.Fatalf("unexpected unread ids: %v", ids)
	}

	n, err := CountUnread(db, "sess-1", "u2")
	if err != nil || n != 1 {
		t.Fatalf("CountUnread = %d, %v; want 1", n, err)
	}

	// From u1's side only m3 counts.
	n, err = CountUnread(db, "sess-1", "u1")
	if err != nil || n != 1 {
		t.Fatalf("CountUnread u1 = %d, %v; want 1", n, err)
	}
}
