package http

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/archive"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type optionReq struct {
	ID           string `json:"id"`
	Text         string `json:"text" validate:"required"`
	IsCorrect    bool   `json:"is_correct"`
	DisplayOrder int    `json:"display_order"`
}

type questionReq struct {
	ID           string      `json:"id"`
	Type         string      `json:"type" validate:"required,question_type"`
	Text         string      `json:"text" validate:"required"`
	Points       float64     `json:"points" validate:"gte=0"`
	DisplayOrder int         `json:"display_order"`
	Options      []optionReq `json:"options" validate:"dive"`
}

type examReq struct {
	ID               string        `json:"id"`
	CourseID         string        `json:"course_id" validate:"required"`
	Name             string        `json:"name" validate:"required,max=255"`
	Description      string        `json:"description"`
	IsPublished      bool          `json:"is_published"`
	AvailableFrom    *time.Time    `json:"available_from"`
	AvailableTo      *time.Time    `json:"available_to"`
	TimeLimitMinutes int           `json:"time_limit_minutes" validate:"gte=0"`
	IPAllowlist      []string      `json:"ip_allowlist" validate:"dive,ip"`
	ResultVisibility string        `json:"result_visibility" validate:"visibility"`
	Questions        []questionReq `json:"questions" validate:"dive"`
}

func (e examReq) toExam() exam.Exam {
	ex := exam.Exam{
		ID:               e.ID,
		CourseID:         e.CourseID,
		Name:             e.Name,
		Description:      e.Description,
		IsPublished:      e.IsPublished,
		AvailableFrom:    e.AvailableFrom,
		AvailableTo:      e.AvailableTo,
		TimeLimitMinutes: e.TimeLimitMinutes,
		IPAllowlist:      e.IPAllowlist,
	}
	// already checked by the visibility tag; empty means the default
	ex.ResultVisibility, _ = exam.ParseResultVisibility(e.ResultVisibility)
	for _, q := range e.Questions {
		eq := exam.Question{ID: q.ID, Type: exam.QuestionType(q.Type), Text: q.Text, Points: q.Points, DisplayOrder: q.DisplayOrder}
		for _, o := range q.Options {
			eq.Options = append(eq.Options, exam.Option{ID: o.ID, Text: o.Text, IsCorrect: o.IsCorrect, DisplayOrder: o.DisplayOrder})
		}
		ex.Questions = append(ex.Questions, eq)
	}
	return ex
}

// PUT /exams
func (h *handler) putExam(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req examReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	ex, err := h.exams.PutExam(r.Context(), a, req.toExam())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

type enrollReq struct {
	CourseID string `json:"course_id" validate:"required"`
	UserID   string `json:"user_id" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=student professor ta"`
}

// POST /enrollments (admin)
func (h *handler) enroll(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req enrollReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	en := exam.Enrollment{CourseID: req.CourseID, UserID: req.UserID, Role: req.Role}
	if err := h.exams.Enroll(r.Context(), a, en); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, en)
}

type archiveResp struct {
	Archive   exam.ArchivedExam `json:"archive"`
	Attempts  int               `json:"attempts"`
	ExportKey string            `json:"export_key,omitempty"`
}

// POST /exams/{examID}/archive
func (h *handler) archiveExam(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	res, err := h.archiver.Archive(r.Context(), archive.Request{
		ExamID: chi.URLParam(r, "examID"),
		Actor:  a,
		Reason: archive.ReasonManual,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	res.Archive.Payload = nil
	writeJSON(w, http.StatusCreated, archiveResp{Archive: res.Archive, Attempts: res.Attempts, ExportKey: res.ExportKey})
}

// GET /exams/{examID}/archives
func (h *handler) listArchives(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	list, err := h.archiver.List(r.Context(), chi.URLParam(r, "examID"), a)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if list == nil {
		list = []exam.ArchivedExam{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /exams/{examID}/archives/{archiveID}
func (h *handler) downloadArchive(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	archiveID := chi.URLParam(r, "archiveID")
	rc, err := h.archiver.Open(r.Context(), chi.URLParam(r, "examID"), archiveID, a)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+archiveID+`.json"`)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("archive download interrupted", "archive_id", archiveID, "err", err)
	}
}
