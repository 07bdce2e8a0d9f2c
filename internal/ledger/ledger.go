// Package ledger owns the per-student append-only conversation log and
// its derived statistics.
package ledger

import (
	"log/slog"
	"math"
	"sync"

	"github.com/edulab-kr/storytalk/internal/model"
	"github.com/edulab-kr/storytalk/internal/store"
)

// Service mediates all ledger access. Appends for the same student are
// serialized by a per-student mutex so concurrent requests cannot lose
// each other's read-modify-write.
type Service struct {
	store *store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a ledger service over the record store.
func New(s *store.Store) *Service {
	return &Service{
		store: s,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockFor(studentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[studentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[studentID] = l
	}
	return l
}

// Load returns the student's ledger. It never fails: an unknown student
// gets a fresh empty ledger, and a store read error degrades to the
// same so corruption never blocks the student from continuing.
func (s *Service) Load(studentID string) *model.Ledger {
	l, err := s.store.LoadLedger(studentID)
	if err != nil {
		slog.Error("ledger load failed, starting empty", "student_id", studentID, "error", err)
		return model.NewLedger(studentID)
	}
	if l == nil {
		return model.NewLedger(studentID)
	}
	if l.Conversations == nil {
		l.Conversations = []model.ConversationEntry{}
	}
	return l
}

// Append adds one entry to the student's ledger, recomputes the derived
// statistics, and persists the whole document. The updated in-memory
// ledger is returned even when persisting fails; the error tells the
// caller to surface a save warning or retry.
func (s *Service) Append(studentID, name string, entry model.ConversationEntry) (*model.Ledger, error) {
	lock := s.lockFor(studentID)
	lock.Lock()
	defer lock.Unlock()

	l := s.Load(studentID)
	l.Name = name
	l.Conversations = append(l.Conversations, entry)
	l.Statistics = recomputeStatistics(l.Conversations)

	if err := s.store.SaveLedger(l); err != nil {
		slog.Error("ledger persist failed", "student_id", studentID, "error", err)
		return l, err
	}
	return l, nil
}

// recomputeStatistics derives the aggregate view from the entries.
// Entries without a well-formed score total are excluded from the
// average's denominator, not counted as zero.
func recomputeStatistics(entries []model.ConversationEntry) model.Statistics {
	stats := model.Statistics{TotalQuestions: len(entries)}
	if len(entries) == 0 {
		return stats
	}

	var sum float64
	var valid int
	for _, e := range entries {
		if e.Score.WellFormed() {
			sum += e.Score.Total
			valid++
		}
	}
	if valid > 0 {
		stats.AverageScore = math.Round(sum/float64(valid)*100) / 100
	}

	ts := entries[len(entries)-1].Timestamp
	stats.LastActivity = &ts
	return stats
}
