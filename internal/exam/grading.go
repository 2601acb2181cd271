package exam

import (
	"context"
	"errors"

	"github.com/mind-engage/mindengage-exams/internal/audit"
	"github.com/mind-engage/mindengage-exams/internal/grading"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type GradeEntry struct {
	QuestionID string
	Points     float64
	Feedback   string
}

type ManualGradeRequest struct {
	AttemptID string
	Actor     Actor
	Grades    []GradeEntry
}

// GradeReport is the graded attempt plus the points given per question in
// this pass. Unanswered objective questions appear with zero.
type GradeReport struct {
	Attempt Attempt
	Awarded map[string]float64
}

// gradeFunc computes the answer updates for one grading pass.
type gradeFunc func(ex Exam, byQ map[string]Answer) (updates []Answer, awarded map[string]float64, err error)

// GradeManually applies grader-entered points and feedback. Any entry out of
// range rejects the whole request.
func (s *Service) GradeManually(ctx context.Context, req ManualGradeRequest) (GradeReport, error) {
	now := s.now()
	return s.grade(ctx, req.AttemptID, req.Actor, audit.ActionGradeExam, func(ex Exam, byQ map[string]Answer) ([]Answer, map[string]float64, error) {
		var fields []FieldError
		for _, g := range req.Grades {
			q, ok := ex.Question(g.QuestionID)
			if !ok {
				fields = append(fields, FieldError{Field: g.QuestionID, Message: "question not in exam"})
				continue
			}
			if err := grading.CheckPoints(g.Points, q.Points); err != nil {
				fields = append(fields, FieldError{Field: g.QuestionID, Message: err.Error()})
			}
		}
		if len(fields) > 0 {
			return nil, nil, invalid(fields...)
		}

		awarded := make(map[string]float64, len(req.Grades))
		updates := make([]Answer, 0, len(req.Grades))
		for _, g := range req.Grades {
			ans, ok := byQ[g.QuestionID]
			if !ok {
				ans = Answer{ID: s.newID(), AttemptID: req.AttemptID, QuestionID: g.QuestionID}
			}
			p := g.Points
			ans.PointsAwarded = &p
			ans.Feedback = g.Feedback
			ans.GradedBy = req.Actor.ID
			ans.GradedAt = &now
			byQ[g.QuestionID] = ans
			awarded[g.QuestionID] = p
			updates = append(updates, ans)
		}
		return updates, awarded, nil
	})
}

// AutoGrade scores the objective questions of an attempt. Free-text answers
// keep whatever a grader already gave them.
func (s *Service) AutoGrade(ctx context.Context, attemptID string, actor Actor) (GradeReport, error) {
	now := s.now()
	return s.grade(ctx, attemptID, actor, audit.ActionAutoGradeExam, func(ex Exam, byQ map[string]Answer) ([]Answer, map[string]float64, error) {
		awarded := map[string]float64{}
		var updates []Answer
		for _, q := range ex.Questions {
			if !q.Type.Objective() {
				continue
			}
			ans, answered := byQ[q.ID]
			var resp interface{}
			if answered {
				resp = ans.SelectedOptionID
			}
			res, err := s.grader.Grade(ctx, gradingView(q), resp)
			if err != nil {
				return nil, nil, err
			}
			awarded[q.ID] = res.AutoPoints
			if !answered {
				continue
			}
			p := res.AutoPoints
			ans.PointsAwarded = &p
			ans.GradedBy = actor.ID
			ans.GradedAt = &now
			byQ[q.ID] = ans
			updates = append(updates, ans)
		}
		return updates, awarded, nil
	})
}

func gradingView(q Question) grading.Q {
	gq := grading.Q{Type: string(q.Type), Points: q.Points}
	for _, o := range q.Options {
		if o.IsCorrect {
			gq.Correct = append(gq.Correct, o.ID)
		}
	}
	return gq
}

// grade runs one grading pass in a transaction. The attempt's status row is
// locked first so passes on the same attempt serialize.
func (s *Service) grade(ctx context.Context, attemptID string, actor Actor, action string, fn gradeFunc) (GradeReport, error) {
	var (
		report GradeReport
		prev   Attempt
	)
	err := s.store.WithTx(ctx, func(r Repository) error {
		a, err := r.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		ex, err := r.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}
		if err := s.AuthorizeStaff(ctx, r, actor, ex, rbac.PermAttemptGrade); err != nil {
			return err
		}
		if !CanTransition(a.Status, StatusGraded) {
			return badTransition(a, StatusGraded)
		}
		from := predecessors(StatusGraded)
		ok, err := r.UpdateAttempt(ctx, a, from...)
		if err != nil {
			return err
		}
		if !ok {
			return badTransition(a, StatusGraded)
		}
		prev = a

		answers, err := r.ListAnswers(ctx, a.ID)
		if err != nil {
			return err
		}
		byQ := make(map[string]Answer, len(answers))
		for _, ans := range answers {
			byQ[ans.QuestionID] = ans
		}
		updates, awarded, err := fn(ex, byQ)
		if err != nil {
			return err
		}
		for _, ans := range updates {
			if err := r.UpsertAnswer(ctx, ans); err != nil {
				return err
			}
		}

		points := make([]*float64, 0, len(byQ))
		for _, ans := range byQ {
			points = append(points, ans.PointsAwarded)
		}
		total := grading.Total(points)
		next := a
		next.Status = StatusGraded
		next.TotalScore = &total
		ok, err = r.UpdateAttempt(ctx, next, from...)
		if err != nil {
			return err
		}
		if !ok {
			return badTransition(a, StatusGraded)
		}
		report = GradeReport{Attempt: next, Awarded: awarded}
		return nil
	})
	if err != nil {
		return GradeReport{}, err
	}
	s.log.Info("attempt graded", "attempt_id", attemptID, "grader", actor.ID, "action", action, "total", *report.Attempt.TotalScore)
	s.audit.Record(ctx, audit.Entry{
		ActorID: actor.ID, Action: action,
		EntityType: "exam_attempt", EntityID: attemptID,
		Old: attemptValues(prev), New: attemptValues(report.Attempt),
	})
	return report, nil
}

// ResultView is an attempt with its exam (including option correctness) and
// answers, as shown to the owner or to staff.
type ResultView struct {
	Attempt Attempt
	Exam    Exam
	Answers []Answer
	Staff   bool
}

// Results returns an attempt's results. Staff of the exam's course always
// see them; the owner only once the exam's visibility policy allows.
func (s *Service) Results(ctx context.Context, attemptID string, actor Actor) (ResultView, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return ResultView{}, err
	}
	ex, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return ResultView{}, err
	}

	staff := false
	if actor.Role == RoleAdmin || actor.Role == RoleProfessor {
		err := s.AuthorizeStaff(ctx, s.store, actor, ex, rbac.PermAttemptViewAll)
		switch {
		case err == nil:
			staff = true
		case !errors.Is(err, ErrUnauthorized):
			return ResultView{}, err
		}
	}
	if !staff {
		if a.UserID != actor.ID || !s.can(actor, rbac.PermResultsViewOwn) {
			return ResultView{}, unauthorized("user %q cannot view attempt %q", actor.ID, a.ID)
		}
		if !CanViewResults(ex.ResultVisibility, a, s.now()) {
			return ResultView{}, ErrResultsUnavailable
		}
	}

	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return ResultView{}, err
	}
	return ResultView{Attempt: a, Exam: ex, Answers: answers, Staff: staff}, nil
}

// ListAttempts lists an exam's attempts for its graders.
func (s *Service) ListAttempts(ctx context.Context, examID string, actor Actor, statuses ...AttemptStatus) ([]Attempt, error) {
	ex, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := s.AuthorizeStaff(ctx, s.store, actor, ex, rbac.PermAttemptViewAll); err != nil {
		return nil, err
	}
	return s.store.ListAttempts(ctx, examID, statuses...)
}
