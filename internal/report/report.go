// Package report builds per-student learning reports combining ledger
// statistics with a model-generated narrative.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/edulab-kr/storytalk/internal/ledger"
	"github.com/edulab-kr/storytalk/internal/llm/prompts"
	"github.com/edulab-kr/storytalk/internal/model"
)

const footer = "*이 리포트는 AI가 자동으로 생성한 것입니다.*"

// Generator is the model collaborator the synthesizer needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Synthesizer produces learning report documents.
type Synthesizer struct {
	gen    Generator
	ledger *ledger.Service
}

// New creates a Synthesizer with injected collaborators.
func New(gen Generator, l *ledger.Service) *Synthesizer {
	return &Synthesizer{gen: gen, ledger: l}
}

// Synthesize builds the report document for one student. It never
// fails outward: a student with no activity gets the fixed no-activity
// document without a model call, and a model failure degrades to an
// explicit error document.
func (s *Synthesizer) Synthesize(ctx context.Context, studentID string) string {
	l := s.ledger.Load(studentID)

	if len(l.Conversations) == 0 {
		return emptyDocument(studentID, l.Name)
	}

	stats := l.Statistics
	exemplars := selectExemplars(l.Conversations)

	prompt := prompts.Report(studentID, l.Name, stats.TotalQuestions, stats.AverageScore, exemplars)
	narrative, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		slog.Error("report narrative generation failed", "student_id", studentID, "error", err)
		return errorDocument(studentID, l.Name)
	}

	var sb strings.Builder
	writeHeader(&sb, studentID, l.Name)
	sb.WriteString("## 활동 요약\n")
	sb.WriteString(fmt.Sprintf("- 총 질문 개수: **%d개**\n", stats.TotalQuestions))
	sb.WriteString(fmt.Sprintf("- 평균 질문 점수: **%.1f/5.0** (%s)\n\n", stats.AverageScore, model.ScoreLevel(stats.AverageScore)))
	sb.WriteString("---\n\n")
	sb.WriteString(strings.TrimSpace(narrative))
	sb.WriteString("\n\n---\n\n")
	sb.WriteString(footer)
	sb.WriteString("\n")
	return sb.String()
}

// selectExemplars picks the top three entries by score as exemplars
// and, only when more than three entries exist, the single lowest as an
// improvement example. The ledger's own order is never disturbed.
func selectExemplars(entries []model.ConversationEntry) string {
	sorted := make([]model.ConversationEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return entryTotal(sorted[i]) > entryTotal(sorted[j])
	})

	var lines []string
	top := 3
	if len(sorted) < top {
		top = len(sorted)
	}
	for i := 0; i < top; i++ {
		lines = append(lines, fmt.Sprintf("%d. [%.1f점] %s", i+1, entryTotal(sorted[i]), sorted[i].Question))
	}

	if len(sorted) > 3 {
		low := sorted[len(sorted)-1]
		lines = append(lines, fmt.Sprintf("\n[참고] 개선이 필요한 질문 [%.1f점]: %s", entryTotal(low), low.Question))
	}
	return strings.Join(lines, "\n")
}

func entryTotal(e model.ConversationEntry) float64 {
	if e.Score == nil {
		return 0
	}
	return e.Score.Total
}

func writeHeader(sb *strings.Builder, studentID, name string) {
	sb.WriteString(fmt.Sprintf("# %s 학생 학습 리포트\n\n", name))
	sb.WriteString(fmt.Sprintf("**학번**: %s\n", studentID))
	sb.WriteString(fmt.Sprintf("**생성 일자**: %s\n\n", time.Now().Format("2006년 01월 02일")))
	sb.WriteString("---\n\n")
}

func emptyDocument(studentID, name string) string {
	var sb strings.Builder
	writeHeader(&sb, studentID, name)
	sb.WriteString("## 활동 요약\n")
	sb.WriteString("아직 활동 기록이 없습니다.\n\n")
	sb.WriteString("---\n\n")
	sb.WriteString("## 안내\n")
	sb.WriteString(fmt.Sprintf("%s 학생은 아직 작가님께 질문을 하지 않았습니다.\n\n", name))
	sb.WriteString("이야기를 읽고 궁금한 점이나 작가님께 묻고 싶은 것을 자유롭게 질문해보세요!\n\n")
	sb.WriteString("---\n\n")
	sb.WriteString(footer)
	sb.WriteString("\n")
	return sb.String()
}

func errorDocument(studentID, name string) string {
	var sb strings.Builder
	writeHeader(&sb, studentID, name)
	sb.WriteString("## 리포트 생성 오류\n")
	sb.WriteString("리포트를 생성하는 중 오류가 발생했습니다. 잠시 후 다시 시도해주세요.\n\n")
	sb.WriteString("---\n\n")
	sb.WriteString(footer)
	sb.WriteString("\n")
	return sb.String()
}

// ExportFilename returns the download filename for a report:
// 학습리포트_<student_id>[_<name>].md.
func ExportFilename(studentID, name string) string {
	if name == "" {
		return fmt.Sprintf("학습리포트_%s.md", studentID)
	}
	return fmt.Sprintf("학습리포트_%s_%s.md", studentID, name)
}
