package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

type sessionResp struct {
	Attempt          exam.Attempt  `json:"attempt"`
	Exam             *exam.Exam    `json:"exam,omitempty"`
	Answers          []exam.Answer `json:"answers,omitempty"`
	Created          bool          `json:"created"`
	Expired          bool          `json:"expired"`
	RemainingSeconds *int64        `json:"remaining_seconds,omitempty"`
}

// POST /exams/{examID}/attempts
func (h *handler) startAttempt(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	s, err := h.exams.StartOrResume(r.Context(), exam.StartRequest{
		ExamID:   chi.URLParam(r, "examID"),
		Actor:    a,
		ClientIP: clientIP(r),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	resp := sessionResp{Attempt: s.Attempt, Exam: s.Exam, Answers: s.Answers, Created: s.Created, Expired: s.Expired}
	if s.Remaining != nil {
		secs := int64(s.Remaining.Seconds())
		resp.RemainingSeconds = &secs
	}
	status := http.StatusOK
	if s.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

type submitReq struct {
	// question id -> option id or answer text
	Answers map[string]string `json:"answers" validate:"dive,keys,required,max=64,endkeys,max=20000"`
}

type submitResp struct {
	Attempt          exam.Attempt `json:"attempt"`
	AlreadySubmitted bool         `json:"already_submitted"`
	Expired          bool         `json:"expired"`
}

// POST /attempts/{attemptID}/submit
func (h *handler) submitAttempt(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req submitReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	res, err := h.exams.Submit(r.Context(), exam.SubmitRequest{
		AttemptID: chi.URLParam(r, "attemptID"),
		Actor:     a,
		Answers:   req.Answers,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResp{Attempt: res.Attempt, AlreadySubmitted: res.AlreadySubmitted, Expired: res.Expired})
}

type gradeResp struct {
	Attempt exam.Attempt       `json:"attempt"`
	Awarded map[string]float64 `json:"awarded"`
}

// POST /attempts/{attemptID}/auto-grade
func (h *handler) autoGrade(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	rep, err := h.exams.AutoGrade(r.Context(), chi.URLParam(r, "attemptID"), a)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, gradeResp{Attempt: rep.Attempt, Awarded: rep.Awarded})
}

type gradeItem struct {
	QuestionID string   `json:"question_id" validate:"required"`
	Points     *float64 `json:"points" validate:"required"`
	Feedback   string   `json:"feedback" validate:"max=4000"`
}

type gradeReq struct {
	Grades []gradeItem `json:"grades" validate:"required,min=1,dive"`
}

// POST /attempts/{attemptID}/grades
func (h *handler) gradeManually(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req gradeReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	entries := make([]exam.GradeEntry, 0, len(req.Grades))
	for _, g := range req.Grades {
		entries = append(entries, exam.GradeEntry{QuestionID: g.QuestionID, Points: *g.Points, Feedback: g.Feedback})
	}
	rep, err := h.exams.GradeManually(r.Context(), exam.ManualGradeRequest{
		AttemptID: chi.URLParam(r, "attemptID"),
		Actor:     a,
		Grades:    entries,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, gradeResp{Attempt: rep.Attempt, Awarded: rep.Awarded})
}

type resultsResp struct {
	Attempt exam.Attempt  `json:"attempt"`
	Exam    exam.Exam     `json:"exam"`
	Answers []exam.Answer `json:"answers"`
}

// GET /attempts/{attemptID}/results
func (h *handler) results(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	v, err := h.exams.Results(r.Context(), chi.URLParam(r, "attemptID"), a)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsResp{Attempt: v.Attempt, Exam: v.Exam, Answers: v.Answers})
}

// GET /exams/{examID}/attempts?status=submitted,graded
func (h *handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var statuses []exam.AttemptStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := exam.AttemptStatus(strings.TrimSpace(s))
			if !st.Valid() {
				writeError(w, h.log, &exam.ValidationError{Fields: []exam.FieldError{{Field: "status", Message: "unknown status " + string(st)}}})
				return
			}
			statuses = append(statuses, st)
		}
	}
	list, err := h.exams.ListAttempts(r.Context(), chi.URLParam(r, "examID"), a, statuses...)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if list == nil {
		list = []exam.Attempt{}
	}
	writeJSON(w, http.StatusOK, list)
}
