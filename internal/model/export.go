package model

// ClassExport is the top-level JSON structure for class activity export.
type ClassExport struct {
	ClassLabel   string            `json:"class_label"`
	ExportedAt   string            `json:"exported_at"`
	StudentCount int               `json:"student_count"`
	Students     []StudentActivity `json:"students"`
}

// StudentActivity holds one student's full ledger plus roster data for
// export. Unlike the shared feed, exports keep scores: the export
// command is a teacher-side tool.
type StudentActivity struct {
	StudentID      string              `json:"student_id"`
	Name           string              `json:"name"`
	CreatedAt      string              `json:"created_at"`
	TotalQuestions int                 `json:"total_questions"`
	AverageScore   float64             `json:"average_score"`
	Level          string              `json:"level"`
	LastActivity   *string             `json:"last_activity"`
	Conversations  []ConversationEntry `json:"conversations"`
}
