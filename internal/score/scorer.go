package score

import (
	"context"
	"log/slog"

	"github.com/edulab-kr/storytalk/internal/llm/prompts"
)

// Generator is the model collaborator the scorer needs. *llm.Client
// satisfies it; tests substitute a fake.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Scorer turns a raw student question into a bounded quality score via
// the model. Scoring is stateless and side-effect free beyond the model
// call, so it may be retried freely.
type Scorer struct {
	gen Generator
}

// NewScorer creates a Scorer with an injected model collaborator.
func NewScorer(gen Generator) *Scorer {
	return &Scorer{gen: gen}
}

// Score analyzes one question against the story. It always returns a
// usable Result: transport failures and unparseable replies both
// resolve to the neutral default record, tagged and logged distinctly.
func (s *Scorer) Score(ctx context.Context, question, story string) Result {
	prompt := prompts.QuestionAnalysis(story, question)

	raw, err := s.gen.GenerateJSON(ctx, prompt)
	if err != nil {
		slog.Error("question analysis transport failure", "error", err)
		return Result{
			Record:  fallbackRecord(FeedbackTransportError),
			Failure: FailureTransport,
		}
	}

	res := Extract(raw)
	if res.Failure == FailureParse {
		slog.Warn("question analysis reply not parseable", "raw", truncate(raw, 300))
	}
	return res
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
