package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/edulab-kr/storytalk/internal/ledger"
	"github.com/edulab-kr/storytalk/internal/model"
	"github.com/edulab-kr/storytalk/internal/store"
)

type fakeGenerator struct {
	narrative  string
	err        error
	calls      int
	lastPrompt string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	return f.narrative, f.err
}

func newTestSynthesizer(t *testing.T, gen *fakeGenerator) (*Synthesizer, *ledger.Service) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	l := ledger.New(s)
	return New(gen, l), l
}

func appendScored(t *testing.T, l *ledger.Service, studentID, name, question string, total float64) {
	t.Helper()
	entry := model.ConversationEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Question:  question,
		Answer:    "작가의 답변",
		Score:     &model.ScoreRecord{Total: total, Depth: 3, Creativity: 3, Comprehension: 3, Thinking: 3, Feedback: "좋아요"},
	}
	if _, err := l.Append(studentID, name, entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestSynthesizeNoActivity(t *testing.T) {
	gen := &fakeGenerator{narrative: "should not be called"}
	syn, _ := newTestSynthesizer(t, gen)

	doc := syn.Synthesize(context.Background(), "2024-01")

	if gen.calls != 0 {
		t.Errorf("model called %d times for an empty ledger, want 0", gen.calls)
	}
	if !strings.Contains(doc, "아직 활동 기록이 없습니다") {
		t.Errorf("missing no-activity text:\n%s", doc)
	}
	if !strings.Contains(doc, footer) {
		t.Errorf("missing footer")
	}
}

func TestSynthesizeWithActivity(t *testing.T) {
	gen := &fakeGenerator{narrative: "## 질문 분석\n깊이 있는 질문을 던지는 학생입니다."}
	syn, l := newTestSynthesizer(t, gen)

	appendScored(t, l, "2024-01", "김하늘", "주인공은 왜 빵집에 갔을까요?", 4.5)
	appendScored(t, l, "2024-01", "김하늘", "빵은 무슨 맛일까요?", 2.0)

	doc := syn.Synthesize(context.Background(), "2024-01")

	if gen.calls != 1 {
		t.Fatalf("model calls = %d, want 1", gen.calls)
	}
	if !strings.Contains(doc, "김하늘 학생 학습 리포트") {
		t.Errorf("missing header:\n%s", doc)
	}
	if !strings.Contains(doc, "총 질문 개수: **2개**") {
		t.Errorf("missing question count:\n%s", doc)
	}
	if !strings.Contains(doc, gen.narrative) {
		t.Errorf("narrative not embedded")
	}
	if !strings.Contains(doc, footer) {
		t.Errorf("missing footer")
	}
}

func TestSynthesizeModelFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("connection refused")}
	syn, l := newTestSynthesizer(t, gen)

	appendScored(t, l, "2024-01", "김하늘", "질문?", 3.0)

	doc := syn.Synthesize(context.Background(), "2024-01")
	if !strings.Contains(doc, "리포트 생성 오류") {
		t.Errorf("expected explicit error document:\n%s", doc)
	}
	if !strings.Contains(doc, footer) {
		t.Errorf("missing footer")
	}
}

func TestExemplarsIncludeLowestOnlyPastThree(t *testing.T) {
	entries := []model.ConversationEntry{
		{Question: "q1", Score: &model.ScoreRecord{Total: 2.0}},
		{Question: "q2", Score: &model.ScoreRecord{Total: 4.0}},
		{Question: "q3", Score: &model.ScoreRecord{Total: 3.0}},
	}
	out := selectExemplars(entries)
	if strings.Contains(out, "개선이 필요한 질문") {
		t.Errorf("lowest example should be omitted at exactly 3 entries:\n%s", out)
	}
	if !strings.HasPrefix(out, "1. [4.0점] q2") {
		t.Errorf("top exemplar wrong:\n%s", out)
	}

	entries = append(entries, model.ConversationEntry{Question: "q4", Score: &model.ScoreRecord{Total: 1.5}})
	out = selectExemplars(entries)
	if !strings.Contains(out, "개선이 필요한 질문 [1.5점]: q4") {
		t.Errorf("lowest example missing past 3 entries:\n%s", out)
	}
	// Only the top three appear as numbered exemplars.
	if strings.Contains(out, "4. [") {
		t.Errorf("more than three numbered exemplars:\n%s", out)
	}
}

func TestExemplarsToleratesNilScores(t *testing.T) {
	entries := []model.ConversationEntry{
		{Question: "scored", Score: &model.ScoreRecord{Total: 3.5}},
		{Question: "unscored"},
	}
	out := selectExemplars(entries)
	if !strings.HasPrefix(out, "1. [3.5점] scored") {
		t.Errorf("nil score should sort last:\n%s", out)
	}
}

func TestExemplarPromptReachesModel(t *testing.T) {
	gen := &fakeGenerator{narrative: "narrative"}
	syn, l := newTestSynthesizer(t, gen)

	for i, total := range []float64{4.8, 3.1, 2.2, 1.9} {
		appendScored(t, l, "2024-01", "김하늘", fmt.Sprintf("질문%d", i+1), total)
	}

	syn.Synthesize(context.Background(), "2024-01")
	if !strings.Contains(gen.lastPrompt, "[4.8점] 질문1") {
		t.Errorf("top exemplar missing from prompt")
	}
	if !strings.Contains(gen.lastPrompt, "[1.9점]") {
		t.Errorf("lowest example missing from prompt")
	}
}

func TestExportFilename(t *testing.T) {
	if got := ExportFilename("2024-01", "김하늘"); got != "학습리포트_2024-01_김하늘.md" {
		t.Errorf("ExportFilename = %q", got)
	}
	if got := ExportFilename("2024-01", ""); got != "학습리포트_2024-01.md" {
		t.Errorf("ExportFilename without name = %q", got)
	}
}
