package score

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/edulab-kr/storytalk/internal/model"
)

// Default values for fields the model reply leaves out.
const (
	defaultTotal    = 3.0
	defaultSubScore = 3

	// FeedbackDefault fills a missing feedback field in an otherwise
	// parseable reply.
	FeedbackDefault = "좋은 질문입니다!"
	// FeedbackUnparseable marks a question that was received but whose
	// analysis reply could not be parsed.
	FeedbackUnparseable = "질문을 분석했습니다."
	// FeedbackTransportError marks a question whose analysis call never
	// produced a reply.
	FeedbackTransportError = "분석 중 오류가 발생했습니다."
)

// FailureReason tags why a Result carries a fallback record instead of
// a model-derived one. Transport and parse failures converge to the
// same neutral default but are logged distinctly.
type FailureReason string

const (
	FailureNone      FailureReason = ""
	FailureParse     FailureReason = "parse"
	FailureTransport FailureReason = "transport"
)

// Result is the outcome of scoring one question. Record is always a
// valid, clamped ScoreRecord regardless of Failure.
type Result struct {
	Record  model.ScoreRecord
	Failure FailureReason
}

// OK reports whether the record came from an actual model reply.
func (r Result) OK() bool { return r.Failure == FailureNone }

var (
	taggedFenceRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	anyFenceRe    = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(\\{.*?\\})\\s*```")
)

// A strategy selects a candidate substring that might be the JSON
// object we asked the model for. Strategies are tried in order; the
// first candidate that parses wins.
type strategy func(raw string) (string, bool)

var strategies = []strategy{
	taggedFencedBlock,
	anyFencedBlock,
	braceAroundTotalScore,
	wholeText,
}

// Extract parses an unstructured model reply into a validated
// ScoreRecord. It never fails outward: on any structural failure the
// returned record is the all-default fallback and Failure is set to
// FailureParse. It is a pure function with no I/O.
func Extract(raw string) Result {
	for _, pick := range strategies {
		candidate, ok := pick(raw)
		if !ok {
			continue
		}
		rec, err := parseCandidate(candidate)
		if err != nil {
			continue
		}
		clamp(&rec)
		return Result{Record: rec}
	}
	return Result{
		Record:  fallbackRecord(FeedbackUnparseable),
		Failure: FailureParse,
	}
}

func taggedFencedBlock(raw string) (string, bool) {
	m := taggedFenceRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func anyFencedBlock(raw string) (string, bool) {
	m := anyFenceRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// braceAroundTotalScore returns the smallest brace-balanced substring
// containing the key "total_score".
func braceAroundTotalScore(raw string) (string, bool) {
	keyIdx := strings.Index(raw, "total_score")
	if keyIdx < 0 {
		return "", false
	}
	// Try opening braces from the nearest one leftward: the first whose
	// matching close brace lies past the key is the smallest enclosure.
	for open := strings.LastIndex(raw[:keyIdx], "{"); open >= 0; open = strings.LastIndex(raw[:open], "{") {
		if close := matchBrace(raw, open); close > keyIdx {
			return raw[open : close+1], true
		}
	}
	return "", false
}

func wholeText(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// matchBrace returns the index of the brace closing the one at open,
// or -1 if the text ends first. String literals are respected so
// braces inside feedback text do not unbalance the count.
func matchBrace(s string, open int) int {
	depth := 0
	inString := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// rawScore is the tolerant intermediate shape: every field optional,
// numeric sub-scores accepted as floats since models round-trip numbers
// loosely.
type rawScore struct {
	TotalScore    *float64 `json:"total_score"`
	Depth         *float64 `json:"depth"`
	Creativity    *float64 `json:"creativity"`
	Comprehension *float64 `json:"comprehension"`
	Thinking      *float64 `json:"thinking"`
	Feedback      *string  `json:"feedback"`
}

func parseCandidate(candidate string) (model.ScoreRecord, error) {
	var rs rawScore
	if err := json.Unmarshal([]byte(candidate), &rs); err != nil {
		return model.ScoreRecord{}, err
	}

	rec := fallbackRecord(FeedbackDefault)
	if rs.TotalScore != nil {
		rec.Total = *rs.TotalScore
	}
	if rs.Depth != nil {
		rec.Depth = int(math.Round(*rs.Depth))
	}
	if rs.Creativity != nil {
		rec.Creativity = int(math.Round(*rs.Creativity))
	}
	if rs.Comprehension != nil {
		rec.Comprehension = int(math.Round(*rs.Comprehension))
	}
	if rs.Thinking != nil {
		rec.Thinking = int(math.Round(*rs.Thinking))
	}
	if rs.Feedback != nil && *rs.Feedback != "" {
		rec.Feedback = *rs.Feedback
	}
	return rec, nil
}

func clamp(rec *model.ScoreRecord) {
	rec.Total = clampFloat(rec.Total, 1.0, 5.0)
	rec.Depth = clampInt(rec.Depth, 1, 5)
	rec.Creativity = clampInt(rec.Creativity, 1, 5)
	rec.Comprehension = clampInt(rec.Comprehension, 1, 5)
	rec.Thinking = clampInt(rec.Thinking, 1, 5)
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func fallbackRecord(feedback string) model.ScoreRecord {
	return model.ScoreRecord{
		Total:         defaultTotal,
		Depth:         defaultSubScore,
		Creativity:    defaultSubScore,
		Comprehension: defaultSubScore,
		Thinking:      defaultSubScore,
		Feedback:      feedback,
	}
}
