package score

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExtractCleanJSON(t *testing.T) {
	raw := `{"total_score": 4.5, "depth": 5, "creativity": 4, "comprehension": 4, "thinking": 5, "feedback": "생각이 깊은 질문이에요."}`

	res := Extract(raw)
	if !res.OK() {
		t.Fatalf("expected OK result, got failure %q", res.Failure)
	}
	if res.Record.Total != 4.5 {
		t.Errorf("Total = %v, want 4.5", res.Record.Total)
	}
	if res.Record.Depth != 5 || res.Record.Thinking != 5 {
		t.Errorf("sub-scores = %+v, want depth 5 thinking 5", res.Record)
	}
	if res.Record.Feedback != "생각이 깊은 질문이에요." {
		t.Errorf("Feedback = %q", res.Record.Feedback)
	}
}

func TestExtractTaggedFence(t *testing.T) {
	raw := "물론입니다! 분석 결과입니다.\n```json\n{\"total_score\": 3.8, \"depth\": 4, \"feedback\": \"좋아요\"}\n```\n도움이 되었길 바랍니다."

	res := Extract(raw)
	if !res.OK() {
		t.Fatalf("expected OK result, got failure %q", res.Failure)
	}
	if res.Record.Total != 3.8 {
		t.Errorf("Total = %v, want 3.8", res.Record.Total)
	}
	// Fields the reply omits fall back to the neutral default.
	if res.Record.Creativity != defaultSubScore {
		t.Errorf("Creativity = %d, want default %d", res.Record.Creativity, defaultSubScore)
	}
}

func TestExtractUntaggedFence(t *testing.T) {
	raw := "```\n{\"total_score\": 2.0}\n```"

	res := Extract(raw)
	if !res.OK() {
		t.Fatalf("expected OK result, got failure %q", res.Failure)
	}
	if res.Record.Total != 2.0 {
		t.Errorf("Total = %v, want 2.0", res.Record.Total)
	}
	if res.Record.Feedback != FeedbackDefault {
		t.Errorf("Feedback = %q, want default", res.Record.Feedback)
	}
}

func TestExtractBraceSearch(t *testing.T) {
	// No fence at all; the JSON is buried in prose with extra braces
	// inside a string literal.
	raw := `분석했습니다: {"total_score": 4.0, "feedback": "중괄호 {예시} 포함"} 이상입니다.`

	res := Extract(raw)
	if !res.OK() {
		t.Fatalf("expected OK result, got failure %q", res.Failure)
	}
	if res.Record.Total != 4.0 {
		t.Errorf("Total = %v, want 4.0", res.Record.Total)
	}
	if !strings.Contains(res.Record.Feedback, "{예시}") {
		t.Errorf("Feedback = %q, braces in string should survive", res.Record.Feedback)
	}
}

func TestExtractPrefersTaggedFence(t *testing.T) {
	// A tagged fence and a bare object disagree; the tagged fence wins.
	raw := "{\"total_score\": 1.0}\n```json\n{\"total_score\": 5.0}\n```"

	res := Extract(raw)
	if res.Record.Total != 5.0 {
		t.Errorf("Total = %v, want 5.0 from the tagged fence", res.Record.Total)
	}
}

func TestExtractUnparseable(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose only", "정말 좋은 질문이네요! 5점 만점에 4점 정도 드리고 싶어요."},
		{"empty", ""},
		{"truncated json", `{"total_score": 4.2, "feedback": "잘`},
		{"array not object", `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Extract(tt.raw)
			if res.Failure != FailureParse {
				t.Fatalf("Failure = %q, want %q", res.Failure, FailureParse)
			}
			if res.Record.Total != defaultTotal {
				t.Errorf("Total = %v, want default %v", res.Record.Total, defaultTotal)
			}
			if res.Record.Feedback != FeedbackUnparseable {
				t.Errorf("Feedback = %q, want %q", res.Record.Feedback, FeedbackUnparseable)
			}
		})
	}
}

func TestExtractClamping(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTotal float64
		wantDepth int
	}{
		{"above range", `{"total_score": 9.7, "depth": 12}`, 5.0, 5},
		{"below range", `{"total_score": -3, "depth": 0}`, 1.0, 1},
		{"zero total", `{"total_score": 0}`, 1.0, defaultSubScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Extract(tt.raw)
			if !res.OK() {
				t.Fatalf("expected OK result, got failure %q", res.Failure)
			}
			if res.Record.Total != tt.wantTotal {
				t.Errorf("Total = %v, want %v", res.Record.Total, tt.wantTotal)
			}
			if res.Record.Depth != tt.wantDepth {
				t.Errorf("Depth = %d, want %d", res.Record.Depth, tt.wantDepth)
			}
		})
	}
}

func TestExtractFloatSubScores(t *testing.T) {
	res := Extract(`{"total_score": 3.5, "depth": 4.6, "creativity": 2.4}`)
	if !res.OK() {
		t.Fatalf("expected OK result, got failure %q", res.Failure)
	}
	if res.Record.Depth != 5 {
		t.Errorf("Depth = %d, want 5 (rounded from 4.6)", res.Record.Depth)
	}
	if res.Record.Creativity != 2 {
		t.Errorf("Creativity = %d, want 2 (rounded from 2.4)", res.Record.Creativity)
	}
}

func FuzzExtract(f *testing.F) {
	f.Add(`{"total_score": 4.5, "depth": 5, "feedback": "좋아요"}`)
	f.Add("```json\n{\"total_score\": 2}\n```")
	f.Add("no json here at all")
	f.Add(`{"total_score": 1e308}`)
	f.Add(`{"total_score": "not a number"}`)
	f.Add("{{{{}}}}")
	f.Add(`{"feedback": "중괄호 { 하나"}`)

	f.Fuzz(func(t *testing.T, raw string) {
		res := Extract(raw)
		rec := res.Record
		if rec.Total < 1.0 || rec.Total > 5.0 {
			t.Errorf("Total %v out of [1,5] for input %q", rec.Total, raw)
		}
		for name, v := range map[string]int{
			"depth": rec.Depth, "creativity": rec.Creativity,
			"comprehension": rec.Comprehension, "thinking": rec.Thinking,
		} {
			if v < 1 || v > 5 {
				t.Errorf("%s %d out of [1,5] for input %q", name, v, raw)
			}
		}
		if rec.Feedback == "" {
			t.Errorf("empty feedback for input %q", raw)
		}
	})
}

type fakeGenerator struct {
	reply string
	err   error
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, _ string) (string, error) {
	return f.reply, f.err
}

func TestScorerTransportFailure(t *testing.T) {
	s := NewScorer(&fakeGenerator{err: errors.New("connection refused")})

	res := s.Score(context.Background(), "왜 빵집이 이상해요?", "옛날 옛적에...")
	if res.Failure != FailureTransport {
		t.Fatalf("Failure = %q, want %q", res.Failure, FailureTransport)
	}
	if res.Record.Feedback != FeedbackTransportError {
		t.Errorf("Feedback = %q, want %q", res.Record.Feedback, FeedbackTransportError)
	}
	if res.Record.Total != defaultTotal {
		t.Errorf("Total = %v, want default", res.Record.Total)
	}
}

func TestScorerParseFailure(t *testing.T) {
	s := NewScorer(&fakeGenerator{reply: "이 질문은 아주 훌륭합니다만 점수는 말씀드리기 어렵네요."})

	res := s.Score(context.Background(), "질문", "이야기")
	if res.Failure != FailureParse {
		t.Fatalf("Failure = %q, want %q", res.Failure, FailureParse)
	}
	if res.Record.Feedback != FeedbackUnparseable {
		t.Errorf("Feedback = %q, want %q", res.Record.Feedback, FeedbackUnparseable)
	}
}

func TestScorerSuccess(t *testing.T) {
	s := NewScorer(&fakeGenerator{reply: `{"total_score": 4.2, "depth": 4, "creativity": 5, "comprehension": 4, "thinking": 4, "feedback": "상상력이 돋보여요!"}`})

	res := s.Score(context.Background(), "주인공은 왜 그 빵을 골랐을까요?", "이야기")
	if !res.OK() {
		t.Fatalf("expected OK, got failure %q", res.Failure)
	}
	if res.Record.Total != 4.2 || res.Record.Creativity != 5 {
		t.Errorf("record = %+v", res.Record)
	}
}
