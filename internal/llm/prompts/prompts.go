// Package prompts builds the Korean prompts sent to the model: the
// author persona reply, the question-quality analysis, and the learning
// report narrative.
package prompts

import (
	"fmt"
	"strings"
)

// AuthorReply builds the persona prompt answering a student's question
// about the story.
func AuthorReply(story, question string) string {
	var sb strings.Builder
	sb.WriteString("당신은 아래 이야기를 쓴 작가입니다. 초등학교 6학년 학생이 이야기를 읽고 질문합니다.\n\n")
	sb.WriteString("이야기:\n")
	sb.WriteString(story)
	sb.WriteString("\n\n학생의 질문:\n")
	sb.WriteString(question)
	sb.WriteString("\n\n작가로서 다음 지침을 따라 답변하세요:\n")
	sb.WriteString("- 따뜻하고 친근한 말투로, 초등학생이 이해할 수 있는 쉬운 표현을 사용하세요.\n")
	sb.WriteString("- 이야기의 내용과 창작 의도에 근거하여 답변하세요.\n")
	sb.WriteString("- 답변은 3~5문장 정도로 간결하게 하세요.\n")
	sb.WriteString("- 학생이 더 깊이 생각해볼 수 있도록 격려하며 마무리하세요.\n")
	return sb.String()
}

// QuestionAnalysis builds the scoring prompt. The model is instructed
// to reply with a JSON object, but callers must not assume it obeys.
func QuestionAnalysis(story, question string) string {
	var sb strings.Builder
	sb.WriteString("당신은 초등학생의 질문 수준을 평가하는 교육 전문가입니다.\n\n")
	sb.WriteString("이야기:\n")
	sb.WriteString(story)
	sb.WriteString("\n\n학생의 질문:\n")
	sb.WriteString(question)
	sb.WriteString("\n\n위 질문을 다음 네 가지 기준으로 각각 1~5점으로 평가하세요:\n")
	sb.WriteString("- depth: 질문의 깊이 (표면적 사실 확인인지, 숨은 의미를 파고드는지)\n")
	sb.WriteString("- creativity: 창의성 (새로운 관점이나 상상력이 드러나는지)\n")
	sb.WriteString("- comprehension: 이해도 (이야기 내용을 정확히 이해하고 있는지)\n")
	sb.WriteString("- thinking: 사고력 (추론, 비교, 비판적 사고가 담겨 있는지)\n\n")
	sb.WriteString("total_score는 네 기준을 종합한 1.0~5.0 사이의 점수입니다.\n")
	sb.WriteString("feedback은 학생을 격려하는 한두 문장의 한국어 평가입니다.\n\n")
	sb.WriteString("반드시 아래 형식의 JSON 객체로만 응답하세요:\n")
	sb.WriteString(`{"total_score": 3.5, "depth": 4, "creativity": 3, "comprehension": 4, "thinking": 3, "feedback": "..."}`)
	sb.WriteString("\n")
	return sb.String()
}

// Report builds the narrative prompt for a student's learning report.
// Exemplars is a pre-formatted list of representative questions with
// their scores.
func Report(studentID, name string, totalQuestions int, avgScore float64, exemplars string) string {
	var sb strings.Builder
	sb.WriteString("당신은 초등학생의 학습 활동을 분석하는 교육 전문가입니다.\n")
	sb.WriteString("아래 학생의 질문 활동을 바탕으로 학습 리포트의 본문을 작성하세요.\n\n")
	sb.WriteString(fmt.Sprintf("학생: %s (학번 %s)\n", name, studentID))
	sb.WriteString(fmt.Sprintf("총 질문 개수: %d개\n", totalQuestions))
	sb.WriteString(fmt.Sprintf("평균 질문 점수: %.1f/5.0\n\n", avgScore))
	sb.WriteString("대표 질문:\n")
	sb.WriteString(exemplars)
	sb.WriteString("\n\n다음 구성으로 작성하세요:\n")
	sb.WriteString("## 질문 분석\n질문들의 특징과 강점을 2~3문장으로 분석합니다.\n\n")
	sb.WriteString("## 칭찬할 점\n학생이 잘한 점을 구체적으로 칭찬합니다.\n\n")
	sb.WriteString("## 더 발전하려면\n더 좋은 질문을 만들기 위한 조언을 1~2가지 제안합니다.\n\n")
	sb.WriteString("초등학생과 학부모가 함께 읽을 문서이므로 쉽고 따뜻한 한국어로 작성하세요.\n")
	sb.WriteString("마크다운 형식을 사용하되 위 세 섹션 제목을 그대로 유지하세요.\n")
	return sb.String()
}
