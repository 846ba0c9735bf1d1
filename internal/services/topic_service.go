// Package services – TopicService
//
// This file implements TopicService, which attaches a pseudo-random
// conversation starter to a match session. Assignment is idempotent: once a
// session carries a topic it is never replaced, and concurrent assigns
// converge because the attach is a conditional update on "topic unset".
package services

import (
	"context"
	"math/rand"
	"strings"

	"gorm.io/gorm"

	"github.com/tomoapp/go-match-backend/internal/domain"
	"github.com/tomoapp/go-match-backend/internal/repo"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// defaultTopicLabels is the fixed conversation-starter catalog seeded at
// startup. Labels are stored title-cased.
var defaultTopicLabels = []string{
	"what made you smile this week",
	"a food you could eat every day",
	"the best trip you ever took",
	"a song stuck in your head lately",
	"something you learned recently",
	"your ideal lazy sunday",
	"a skill you wish you had",
	"the last thing that made you laugh out loud",
	"a place you want to visit someday",
	"your comfort movie or show",
	"a small habit that improves your day",
	"the best advice you ever received",
}

// TopicService owns the topic catalog and session topic assignment.
type TopicService struct {
	DB *gorm.DB

	// pickIndex selects a catalog index in [0, n). Overridable in tests.
	pickIndex func(n int) int
}

// NewTopicService constructs a TopicService with uniform random selection.
func NewTopicService(db *gorm.DB) *TopicService {
	return &TopicService{DB: db, pickIndex: rand.Intn}
}

// Seed inserts the default catalog. Labels already present are skipped via
// the unique index, so repeated startups leave the table unchanged.
func (s *TopicService) Seed(ctx context.Context) error {
	caser := cases.Title(language.English)
	for _, raw := range defaultTopicLabels {
		label := caser.String(strings.TrimSpace(raw))
		if _, err := repo.CreateTopic(ctx, s.DB, label); err != nil && err != repo.ErrDuplicate {
			return err
		}
	}
	return nil
}

// Assign attaches a random catalog topic to the session and returns it. If
// the session already has a topic, that topic is returned unchanged. The
// only failure modes are an unknown session and an unseeded catalog.
func (s *TopicService) Assign(ctx context.Context, sessionID string) (*domain.Topic, error) {
	session, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.TopicID != nil {
		return repo.GetTopic(ctx, s.DB, *session.TopicID)
	}

	topics, err := repo.ListTopics(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}
	pick := &topics[s.pickIndex(len(topics))]

	attached, err := repo.AttachTopic(ctx, s.DB, sessionID, pick.ID)
	if err != nil {
		return nil, err
	}
	if !attached {
		// Lost the race to a concurrent assign; return what actually stuck.
		fresh, err := repo.GetSession(ctx, s.DB, sessionID)
		if err != nil {
			return nil, err
		}
		if fresh.TopicID == nil {
			return nil, ErrSessionNotFound
		}
		return repo.GetTopic(ctx, s.DB, *fresh.TopicID)
	}
	return pick, nil
}
