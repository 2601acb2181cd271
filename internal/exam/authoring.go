package exam

import (
	"context"
	"errors"
	"fmt"

	"github.com/mind-engage/mindengage-exams/internal/audit"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// PutExam creates or replaces an exam with its questions and options. Ids
// left blank are generated; a new exam starts active.
func (s *Service) PutExam(ctx context.Context, actor Actor, ex Exam) (Exam, error) {
	if err := validateExam(ex); err != nil {
		return Exam{}, err
	}
	now := s.now()
	err := s.store.WithTx(ctx, func(r Repository) error {
		if err := s.AuthorizeStaff(ctx, r, actor, ex, rbac.PermExamCreate); err != nil {
			return err
		}
		if ex.ID != "" {
			cur, err := r.GetExam(ctx, ex.ID)
			switch {
			case err == nil:
				if cur.CourseID != ex.CourseID {
					return invalid(FieldError{Field: "course_id", Message: "cannot move an exam between courses"})
				}
				ex.CreatedBy, ex.CreatedAt, ex.IsActive = cur.CreatedBy, cur.CreatedAt, cur.IsActive
			case errors.Is(err, ErrNotFound):
				ex.CreatedBy, ex.CreatedAt, ex.IsActive = actor.ID, now, true
			default:
				return err
			}
		} else {
			ex.ID = s.newID()
			ex.CreatedBy, ex.CreatedAt, ex.IsActive = actor.ID, now, true
		}
		for i := range ex.Questions {
			q := &ex.Questions[i]
			if q.ID == "" {
				q.ID = s.newID()
			}
			q.ExamID = ex.ID
			for j := range q.Options {
				o := &q.Options[j]
				if o.ID == "" {
					o.ID = s.newID()
				}
				o.QuestionID = q.ID
			}
		}
		return r.PutExam(ctx, ex)
	})
	if err != nil {
		return Exam{}, err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID: actor.ID, Action: audit.ActionPutExam,
		EntityType: "exam", EntityID: ex.ID,
		New: map[string]any{"name": ex.Name, "questions": len(ex.Questions), "published": ex.IsPublished},
	})
	return s.store.GetExam(ctx, ex.ID)
}

func validateExam(ex Exam) error {
	var fields []FieldError
	add := func(field, format string, args ...any) {
		fields = append(fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	if ex.CourseID == "" {
		add("course_id", "required")
	}
	if ex.Name == "" {
		add("name", "required")
	}
	if ex.TimeLimitMinutes < 0 {
		add("time_limit_minutes", "must not be negative")
	}
	if ex.AvailableFrom != nil && ex.AvailableTo != nil && ex.AvailableTo.Before(*ex.AvailableFrom) {
		add("available_to", "before available_from")
	}
	orders := map[int]bool{}
	for i, q := range ex.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if !q.Type.Valid() {
			add(field+".type", "unknown question type %q", q.Type)
		}
		if q.Points < 0 {
			add(field+".points", "must not be negative")
		}
		if orders[q.DisplayOrder] {
			add(field+".display_order", "duplicate display order %d", q.DisplayOrder)
		}
		orders[q.DisplayOrder] = true
		switch {
		case q.Type.Objective() && len(q.Options) == 0:
			add(field+".options", "required for %s", q.Type)
		case !q.Type.Objective() && len(q.Options) > 0:
			add(field+".options", "not allowed for %s", q.Type)
		}
	}
	if len(fields) > 0 {
		return invalid(fields...)
	}
	return nil
}
