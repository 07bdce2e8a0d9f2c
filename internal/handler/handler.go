// Package handler wires the HTTP API: the student-facing question flow,
// sharing preferences and feed, report downloads, and the teacher
// dashboard.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/edulab-kr/storytalk/internal/i18n"
	"github.com/edulab-kr/storytalk/internal/ledger"
	"github.com/edulab-kr/storytalk/internal/llm/prompts"
	"github.com/edulab-kr/storytalk/internal/model"
	"github.com/edulab-kr/storytalk/internal/report"
	"github.com/edulab-kr/storytalk/internal/score"
	"github.com/edulab-kr/storytalk/internal/sharing"
	"github.com/edulab-kr/storytalk/internal/store"
)

// Generator is the model collaborator for free-form replies (author
// persona answers). *llm.Client satisfies it; tests substitute a fake.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	ledger  *ledger.Service
	sharing *sharing.Registry
	scorer  *score.Scorer
	report  *report.Synthesizer
	gen     Generator
	config  model.AppConfig

	story          string
	guideQuestions []string
}

// New creates a new Handler.
func New(s *store.Store, l *ledger.Service, sh *sharing.Registry, sc *score.Scorer, rp *report.Synthesizer, gen Generator, cfg model.AppConfig, story string, guideQuestions []string) *Handler {
	return &Handler{
		store:          s,
		ledger:         l,
		sharing:        sh,
		scorer:         sc,
		report:         rp,
		gen:            gen,
		config:         cfg,
		story:          story,
		guideQuestions: guideQuestions,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/students", h.handleRegisterStudent)
		r.Post("/ask", h.handleAsk)
		r.Get("/story", h.handleStory)
		r.Get("/guide-questions", h.handleGuideQuestions)
		r.Get("/feed", h.handleFeed)
		r.Route("/students/{studentID}", func(r chi.Router) {
			r.Get("/conversations", h.handleConversations)
			r.Get("/sharing", h.handleGetSharing)
			r.Put("/sharing", h.handleSetSharing)
			r.Get("/report", h.handleReport)
		})
	})

	r.Route("/teacher", func(r chi.Router) {
		r.Post("/login", h.handleTeacherLogin)
		r.Group(func(r chi.Router) {
			r.Use(h.requireTeacher)
			r.Post("/logout", h.handleTeacherLogout)
			r.Get("/students", h.handleTeacherStudents)
			r.Get("/students/{studentID}", h.handleTeacherStudent)
			r.Get("/students/{studentID}/report", h.handleReport)
			r.Get("/export", h.handleTeacherExport)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type registerRequest struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
}

func (h *Handler) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.Name = strings.TrimSpace(req.Name)
	if req.StudentID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "StudentRequired"))
		return
	}

	if err := h.store.AddStudent(req.StudentID, req.Name); err != nil {
		slog.Error("register student", "student_id", req.StudentID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "SaveFailed"))
		return
	}

	st, err := h.store.GetStudent(req.StudentID)
	if err != nil || st == nil {
		slog.Error("read back student", "student_id", req.StudentID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "SaveFailed"))
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

type askRequest struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Question  string `json:"question"`
}

type askResponse struct {
	Answer  string             `json:"answer"`
	Score   *model.ScoreRecord `json:"score"`
	Saved   bool               `json:"saved"`
	Warning string             `json:"warning,omitempty"`
}

// handleAsk runs the full question flow: author persona answer, quality
// scoring, ledger append. The student always gets an answer and a score
// back; a failed persist downgrades to saved:false with a warning
// instead of an error status.
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.Name = strings.TrimSpace(req.Name)
	req.Question = strings.TrimSpace(req.Question)
	if req.StudentID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "StudentRequired"))
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "QuestionRequired"))
		return
	}

	if err := h.store.AddStudent(req.StudentID, req.Name); err != nil {
		slog.Warn("roster insert failed, continuing", "student_id", req.StudentID, "error", err)
	}

	answer, err := h.gen.Generate(r.Context(), prompts.AuthorReply(h.story, req.Question))
	if err != nil {
		slog.Error("author reply failed", "student_id", req.StudentID, "error", err)
		answer = appI18n.T(r.Context(), "AnswerUnavailable")
	}

	res := h.scorer.Score(r.Context(), req.Question, h.story)
	rec := res.Record

	entry := model.ConversationEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Question:  req.Question,
		Answer:    answer,
		Score:     &rec,
	}

	resp := askResponse{Answer: answer, Score: &rec, Saved: true}
	if _, err := h.ledger.Append(req.StudentID, req.Name, entry); err != nil {
		resp.Saved = false
		resp.Warning = appI18n.T(r.Context(), "SaveFailed")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"story": h.story})
}

func (h *Handler) handleGuideQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"questions": h.guideQuestions})
}

func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	writeJSON(w, http.StatusOK, h.ledger.Load(studentID))
}

func (h *Handler) handleGetSharing(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	writeJSON(w, http.StatusOK, h.sharing.GetPreference(studentID))
}

type sharingRequest struct {
	IsShared  bool   `json:"is_shared"`
	DisplayAs string `json:"display_as"`
}

func (h *Handler) handleSetSharing(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")

	var req sharingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}

	var mode model.DisplayMode
	switch model.DisplayMode(req.DisplayAs) {
	case model.DisplayNamed, model.DisplayAnonymous:
		mode = model.DisplayMode(req.DisplayAs)
	case "":
		mode = model.DisplayNamed
	default:
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}

	st, err := h.store.GetStudent(studentID)
	if err != nil {
		slog.Error("lookup student", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "SaveFailed"))
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "StudentNotFound"))
		return
	}

	if err := h.sharing.SetPreference(studentID, st.Name, req.IsShared, mode); err != nil {
		slog.Error("save preference", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "SaveFailed"))
		return
	}
	writeJSON(w, http.StatusOK, h.sharing.GetPreference(studentID))
}

func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	sortBy := model.SortRecent
	if r.URL.Query().Get("sort") == string(model.SortQuestions) {
		sortBy = model.SortQuestions
	}
	anonymousOnly := r.URL.Query().Get("anonymous_only") == "true"

	feed := h.sharing.BuildFeed(sortBy, anonymousOnly)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": feed,
		"count":   len(feed),
	})
}

// handleReport synthesizes the student's report and serves it as a
// markdown download.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")

	st, err := h.store.GetStudent(studentID)
	if err != nil {
		slog.Error("lookup student", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "SaveFailed"))
		return
	}
	name := ""
	if st != nil {
		name = st.Name
	}

	doc := h.report.Synthesize(r.Context(), studentID)
	filename := report.ExportFilename(studentID, name)

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition",
		`attachment; filename="report_`+studentID+`.md"; filename*=UTF-8''`+url.PathEscape(filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc)); err != nil {
		slog.Error("write report", "student_id", studentID, "error", err)
	}
}
