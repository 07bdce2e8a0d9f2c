package ledger

import (
	"time"

	"github.com/edulab-kr/storytalk/internal/model"
)

// BuildClassExport assembles the full-class activity snapshot: every
// roster student with their complete ledger, scores included. Used by
// the teacher dashboard and the export command; never exposed to
// students.
func (s *Service) BuildClassExport(classLabel string) (*model.ClassExport, error) {
	students, err := s.store.ListStudents()
	if err != nil {
		return nil, err
	}

	export := &model.ClassExport{
		ClassLabel:   classLabel,
		ExportedAt:   time.Now().Format(time.RFC3339),
		StudentCount: len(students),
		Students:     make([]model.StudentActivity, 0, len(students)),
	}

	for _, st := range students {
		l := s.Load(st.StudentID)
		export.Students = append(export.Students, model.StudentActivity{
			StudentID:      st.StudentID,
			Name:           st.Name,
			CreatedAt:      st.CreatedAt,
			TotalQuestions: l.Statistics.TotalQuestions,
			AverageScore:   l.Statistics.AverageScore,
			Level:          model.ScoreLevel(l.Statistics.AverageScore),
			LastActivity:   l.Statistics.LastActivity,
			Conversations:  l.Conversations,
		})
	}
	return export, nil
}
