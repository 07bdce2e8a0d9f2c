// Package sharing owns the per-student visibility preferences and
// derives the redacted cross-student feed.
package sharing

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/edulab-kr/storytalk/internal/ledger"
	"github.com/edulab-kr/storytalk/internal/model"
	"github.com/edulab-kr/storytalk/internal/store"
)

// Registry mediates sharing preference access and feed construction.
// Preference upserts for the same student are serialized like ledger
// appends.
type Registry struct {
	store  *store.Store
	ledger *ledger.Service

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a sharing registry.
func New(s *store.Store, l *ledger.Service) *Registry {
	return &Registry{
		store:  s,
		ledger: l,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (r *Registry) lockFor(studentID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[studentID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[studentID] = l
	}
	return l
}

// SetPreference upserts a student's sharing preference. The original
// created_at survives updates; last_toggled is always refreshed. The
// stored anonymous_id stays nil: feed numbering is recomputed per
// request and never treated as durable state.
func (r *Registry) SetPreference(studentID, name string, isShared bool, displayAs model.DisplayMode) error {
	lock := r.lockFor(studentID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().Format(time.RFC3339)
	pref := &model.SharingPreference{
		StudentID:   studentID,
		Name:        name,
		IsShared:    isShared,
		DisplayAs:   displayAs,
		CreatedAt:   now,
		LastToggled: now,
	}

	existing, err := r.store.LoadPreference(studentID)
	if err != nil {
		slog.Warn("preference load failed, writing fresh", "student_id", studentID, "error", err)
	}
	if existing != nil && existing.CreatedAt != "" {
		pref.CreatedAt = existing.CreatedAt
	}

	return r.store.SavePreference(pref)
}

// GetPreference returns the student's sharing preference, defaulting to
// not shared under the real name when none exists or the read fails.
func (r *Registry) GetPreference(studentID string) model.SharingPreference {
	pref, err := r.store.LoadPreference(studentID)
	if err != nil {
		slog.Error("preference load failed, using default", "student_id", studentID, "error", err)
	}
	if pref == nil {
		return model.SharingPreference{
			StudentID: studentID,
			IsShared:  false,
			DisplayAs: model.DisplayNamed,
		}
	}
	return *pref
}

// BuildFeed derives the cross-student feed: opted-in students only,
// scores stripped from every entry, anonymous identities numbered
// 1..n in current selection order. The numbering is ephemeral per
// call and must never be persisted as a stable identity.
func (r *Registry) BuildFeed(sortBy model.SortKey, filterAnonymous bool) []model.FeedEntry {
	prefs, err := r.store.ListPreferences()
	if err != nil {
		slog.Error("preference list failed, feed empty", "error", err)
		return []model.FeedEntry{}
	}

	var selected []model.SharingPreference
	for _, p := range prefs {
		if !p.IsShared {
			continue
		}
		if filterAnonymous && p.DisplayAs != model.DisplayAnonymous {
			continue
		}
		selected = append(selected, p)
	}

	feed := make([]model.FeedEntry, 0, len(selected))
	anonCounter := 0
	for _, p := range selected {
		displayName := p.Name
		if p.DisplayAs == model.DisplayAnonymous {
			anonCounter++
			displayName = fmt.Sprintf("익명 학생 #%d", anonCounter)
		}

		l := r.ledger.Load(p.StudentID)
		feed = append(feed, model.FeedEntry{
			StudentID:     p.StudentID,
			DisplayName:   displayName,
			Conversations: redact(l.Conversations),
			QuestionCount: len(l.Conversations),
			LastActivity:  lastActivity(l.Conversations),
		})
	}

	switch sortBy {
	case model.SortQuestions:
		sort.SliceStable(feed, func(i, j int) bool {
			return feed[i].QuestionCount > feed[j].QuestionCount
		})
	default: // SortRecent; timestamps share one clock, lexical order works
		sort.SliceStable(feed, func(i, j int) bool {
			return activityKey(feed[i].LastActivity) > activityKey(feed[j].LastActivity)
		})
	}
	return feed
}

// redact copies the entries with the score field removed entirely. The
// stored entries are never aliased, so feed consumers cannot reach
// score data through shared memory either.
func redact(entries []model.ConversationEntry) []model.ConversationEntry {
	out := make([]model.ConversationEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.ConversationEntry{
			Timestamp: e.Timestamp,
			Question:  e.Question,
			Answer:    e.Answer,
		})
	}
	return out
}

func lastActivity(entries []model.ConversationEntry) *string {
	if len(entries) == 0 {
		return nil
	}
	ts := entries[len(entries)-1].Timestamp
	return &ts
}

func activityKey(ts *string) string {
	if ts == nil {
		return ""
	}
	return *ts
}
