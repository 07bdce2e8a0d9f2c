package model

// DisplayMode controls how a student appears in the shared feed.
type DisplayMode string

const (
	// DisplayNamed shows the student's real name.
	DisplayNamed DisplayMode = "named"
	// DisplayAnonymous shows an ephemeral "익명 학생 #n" identity.
	DisplayAnonymous DisplayMode = "anonymous"
)

// SortKey selects the ordering of the shared feed.
type SortKey string

const (
	// SortRecent orders by last activity, newest first.
	SortRecent SortKey = "recent"
	// SortQuestions orders by question count, most first.
	SortQuestions SortKey = "questions"
)

// ScoreRecord is the bounded quality assessment of a single question.
// All numeric fields are clamped after extraction: sub-scores into
// [1,5], Total into [1.0,5.0]. Records are created only by the score
// package and never mutated once attached to a ConversationEntry.
type ScoreRecord struct {
	Total         float64 `json:"total"`
	Depth         int     `json:"depth"`
	Creativity    int     `json:"creativity"`
	Comprehension int     `json:"comprehension"`
	Thinking      int     `json:"thinking"`
	Feedback      string  `json:"feedback"`
}

// WellFormed reports whether the record's total is inside the valid
// range. Stored documents predating the clamp rules may carry totals
// outside it; those are excluded from statistics denominators.
func (s *ScoreRecord) WellFormed() bool {
	return s != nil && s.Total >= 1.0 && s.Total <= 5.0
}

// ConversationEntry is one question/answer exchange. Entries are
// appended once and never mutated or deleted; slice order is
// chronological order. Score is nil in redacted feed copies and in
// defensively-tolerated corrupt documents.
type ConversationEntry struct {
	Timestamp string       `json:"timestamp"`
	Question  string       `json:"question"`
	Answer    string       `json:"answer"`
	Score     *ScoreRecord `json:"score,omitempty"`
}

// Statistics is a derived view over a ledger's entries. It is
// recomputed on every append and never independently settable.
type Statistics struct {
	TotalQuestions int     `json:"total_questions"`
	AverageScore   float64 `json:"average_score"`
	LastActivity   *string `json:"last_activity"`
}

// Ledger is a student's append-only conversation log plus derived
// statistics. One JSON document per student in the record store.
type Ledger struct {
	StudentID     string              `json:"student_id"`
	Name          string              `json:"name"`
	Conversations []ConversationEntry `json:"conversations"`
	Statistics    Statistics          `json:"statistics"`
}

// NewLedger returns an empty ledger for a student.
func NewLedger(studentID string) *Ledger {
	return &Ledger{
		StudentID:     studentID,
		Conversations: []ConversationEntry{},
	}
}

// SharingPreference is a student's opt-in flag and display mode for the
// cross-student feed. AnonymousID is never persisted meaningfully: the
// feed recomputes it per request, so a stored value is cosmetic only.
type SharingPreference struct {
	StudentID   string      `json:"student_id"`
	Name        string      `json:"name"`
	IsShared    bool        `json:"is_shared"`
	DisplayAs   DisplayMode `json:"display_as"`
	AnonymousID *int        `json:"anonymous_id"`
	CreatedAt   string      `json:"created_at"`
	LastToggled string      `json:"last_toggled"`
}

// FeedEntry is one student's redacted slice of the shared feed.
// Derived per request, never stored; every entry has its score removed.
type FeedEntry struct {
	StudentID     string              `json:"student_id"`
	DisplayName   string              `json:"display_name"`
	Conversations []ConversationEntry `json:"conversations"`
	QuestionCount int                 `json:"question_count"`
	LastActivity  *string             `json:"last_activity"`
}

// Student is one roster row. Roster insertion is append-if-absent.
type Student struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// ScoreLevel maps a score to its band label. Shared by the ledger view,
// the teacher dashboard, and report headers. Boundaries are inclusive
// on the lower bound of each band.
func ScoreLevel(score float64) string {
	switch {
	case score >= 4.5:
		return "매우 우수"
	case score >= 3.5:
		return "우수"
	case score >= 2.5:
		return "보통"
	case score >= 1.5:
		return "노력 필요"
	default:
		return "더 노력 필요"
	}
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	StoryPath     string // Path to the story text shown to students
	GuidePath     string // Optional guide questions JSON
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	Lang          string // UI message language (ko, en)
}
