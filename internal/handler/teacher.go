package handler

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/edulab-kr/storytalk/internal/i18n"
	"github.com/edulab-kr/storytalk/internal/model"
	"github.com/edulab-kr/storytalk/internal/store"
)

const sessionCookieName = "teacher_session"

// requireTeacher is middleware that checks for a valid teacher session
// cookie. There is one teacher account per deployment; the password
// hash lives in the settings table.
func (h *Handler) requireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ok, err := h.store.ValidAuthSession(cookie.Value)
		if err != nil {
			slog.Error("session lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

func (h *Handler) handleTeacherLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "InvalidRequest"))
		return
	}

	hash, err := h.store.GetSetting(store.SettingTeacherPasswordHash)
	if err != nil {
		slog.Error("read password hash", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "LoginError"))
		return
	}

	token, err := h.store.CreateAuthSession()
	if err != nil {
		slog.Error("create auth session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleTeacherLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		_ = h.store.DeleteAuthSession(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type classSummary struct {
	StudentCount   int                     `json:"student_count"`
	TotalQuestions int                     `json:"total_questions"`
	ClassAverage   float64                 `json:"class_average"`
	Students       []model.StudentActivity `json:"students"`
}

// handleTeacherStudents returns the class overview: per-student
// aggregates plus the class-wide average over students with activity.
func (h *Handler) handleTeacherStudents(w http.ResponseWriter, r *http.Request) {
	export, err := h.ledger.BuildClassExport("")
	if err != nil {
		slog.Error("class overview failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	summary := classSummary{
		StudentCount: export.StudentCount,
		Students:     make([]model.StudentActivity, 0, len(export.Students)),
	}
	var sum float64
	var active int
	for _, sa := range export.Students {
		summary.TotalQuestions += sa.TotalQuestions
		if sa.TotalQuestions > 0 {
			sum += sa.AverageScore
			active++
		}
		// Overview rows carry aggregates only; full ledgers come from the
		// per-student endpoint.
		sa.Conversations = nil
		summary.Students = append(summary.Students, sa)
	}
	if active > 0 {
		summary.ClassAverage = roundTo2(sum / float64(active))
	}
	writeJSON(w, http.StatusOK, summary)
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

type teacherStudentView struct {
	Student    *model.Student          `json:"student"`
	Ledger     *model.Ledger           `json:"ledger"`
	Level      string                  `json:"level"`
	Preference model.SharingPreference `json:"preference"`
}

func (h *Handler) handleTeacherStudent(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")

	st, err := h.store.GetStudent(studentID)
	if err != nil {
		slog.Error("lookup student", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if st == nil {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "StudentNotFound"))
		return
	}

	l := h.ledger.Load(studentID)
	writeJSON(w, http.StatusOK, teacherStudentView{
		Student:    st,
		Ledger:     l,
		Level:      model.ScoreLevel(l.Statistics.AverageScore),
		Preference: h.sharing.GetPreference(studentID),
	})
}

func (h *Handler) handleTeacherExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.ledger.BuildClassExport(r.URL.Query().Get("class"))
	if err != nil {
		slog.Error("class export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, export)
}
