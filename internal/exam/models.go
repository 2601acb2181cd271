package exam

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleProfessor Role = "professor"
	RoleStudent   Role = "student"
)

// Actor is the authenticated subject invoking an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor performs scheduled work (auto-archive, stale attempt expiry).
var SystemActor = Actor{ID: "system", Role: RoleAdmin}

type Option struct {
	ID           string `json:"id"`
	QuestionID   string `json:"question_id"`
	Text         string `json:"text"`
	IsCorrect    bool   `json:"is_correct,omitempty"`
	DisplayOrder int    `json:"display_order"`
}

type Question struct {
	ID           string       `json:"id"`
	ExamID       string       `json:"exam_id"`
	Type         QuestionType `json:"type"`
	Text         string       `json:"text"`
	Points       float64      `json:"points"`
	DisplayOrder int          `json:"display_order"`
	Options      []Option     `json:"options,omitempty"` // multiple_choice / true_false only
}

// Option returns the option with the given id, if it belongs to q.
func (q Question) Option(id string) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

type Exam struct {
	ID               string           `json:"id"`
	CourseID         string           `json:"course_id"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	IsPublished      bool             `json:"is_published"`
	AvailableFrom    *time.Time       `json:"available_from,omitempty"`
	AvailableTo      *time.Time       `json:"available_to,omitempty"`
	TimeLimitMinutes int              `json:"time_limit_minutes,omitempty"` // 0 = untimed
	IPAllowlist      []string         `json:"ip_allowlist,omitempty"`
	ResultVisibility ResultVisibility `json:"result_visibility"`
	IsActive         bool             `json:"is_active"`
	CreatedBy        string           `json:"created_by,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`

	Questions []Question `json:"questions,omitempty"`
}

// TimeLimit is zero for untimed exams.
func (e Exam) TimeLimit() time.Duration {
	return time.Duration(e.TimeLimitMinutes) * time.Minute
}

// Question looks up a question of e by id.
func (e Exam) Question(id string) (Question, bool) {
	for _, q := range e.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// StudentView strips option correctness so the exam can be rendered to takers.
func (e Exam) StudentView() Exam {
	out := e
	out.Questions = make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Options = append([]Option(nil), q.Options...)
		for j := range q.Options {
			q.Options[j].IsCorrect = false
		}
		out.Questions[i] = q
	}
	return out
}

type Attempt struct {
	ID              string        `json:"id"`
	ExamID          string        `json:"exam_id"`
	UserID          string        `json:"user_id"`
	StartTime       time.Time     `json:"start_time"`
	SubmissionTime  *time.Time    `json:"submission_time,omitempty"`
	IPAddress       string        `json:"ip_address,omitempty"`
	Status          AttemptStatus `json:"status"`
	TotalScore      *float64      `json:"total_score,omitempty"`
	IsAutoSubmitted bool          `json:"is_auto_submitted"`
}

type Answer struct {
	ID               string     `json:"id"`
	AttemptID        string     `json:"attempt_id"`
	QuestionID       string     `json:"question_id"`
	AnswerText       *string    `json:"answer_text,omitempty"`
	SelectedOptionID *string    `json:"selected_option_id,omitempty"`
	PointsAwarded    *float64   `json:"points_awarded,omitempty"`
	Feedback         string     `json:"feedback,omitempty"`
	GradedBy         string     `json:"graded_by,omitempty"`
	GradedAt         *time.Time `json:"graded_at,omitempty"`
}

// Enrollment is read from the course collaborator; Role is the course role
// (professor, student or ta), not the account role.
type Enrollment struct {
	CourseID string `json:"course_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
}

// ArchivedExam is written once by archival and never mutated.
type ArchivedExam struct {
	ID         string          `json:"id"`
	ExamID     string          `json:"exam_id"`
	CourseID   string          `json:"course_id"`
	ExamName   string          `json:"exam_name"`
	Payload    json.RawMessage `json:"payload"`
	ArchivedBy string          `json:"archived_by"`
	Reason     string          `json:"reason"`
	ArchivedAt time.Time       `json:"archived_at"`
}
