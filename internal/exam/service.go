package exam

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-exams/internal/audit"
	"github.com/mind-engage/mindengage-exams/internal/clock"
	"github.com/mind-engage/mindengage-exams/internal/grading"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// Service runs the attempt lifecycle: start/resume, submit, grade and
// result lookup. It is safe for concurrent use.
type Service struct {
	store   Store
	clock   clock.Clock
	grader  grading.Grader
	checker *rbac.Checker
	audit   *audit.Recorder
	log     *slog.Logger
	newID   func() string
}

type ServiceOption func(*Service)

func WithClock(c clock.Clock) ServiceOption { return func(s *Service) { s.clock = clock.OrSystem(c) } }

func WithGrader(g grading.Grader) ServiceOption { return func(s *Service) { s.grader = g } }

func WithChecker(c *rbac.Checker) ServiceOption { return func(s *Service) { s.checker = c } }

func WithAudit(r *audit.Recorder) ServiceOption { return func(s *Service) { s.audit = r } }

func WithLogger(l *slog.Logger) ServiceOption { return func(s *Service) { s.log = l } }

// WithIDs replaces uuid generation, mostly for deterministic tests.
func WithIDs(f func() string) ServiceOption { return func(s *Service) { s.newID = f } }

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		clock:   clock.System,
		grader:  grading.NewDefaultGrader(),
		checker: rbac.NewChecker(nil),
		log:     slog.Default(),
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// now is truncated to the second, the resolution timestamps are stored at.
func (s *Service) now() time.Time { return s.clock().UTC().Truncate(time.Second) }

func (s *Service) can(a Actor, perm string) bool {
	return s.checker.Has(string(a.Role), perm)
}

// AuthorizeStaff admits admins, and professors holding the course-level
// professor enrollment on ex's course. perm must also be granted to the
// actor's role.
func (s *Service) AuthorizeStaff(ctx context.Context, r Repository, a Actor, ex Exam, perm string) error {
	if !s.can(a, perm) {
		return unauthorized("%s %q lacks %s", a.Role, a.ID, perm)
	}
	switch a.Role {
	case RoleAdmin:
		return nil
	case RoleProfessor:
		en, err := r.GetEnrollment(ctx, ex.CourseID, a.ID)
		if errors.Is(err, ErrNotFound) {
			return unauthorized("user %q does not teach course %q", a.ID, ex.CourseID)
		}
		if err != nil {
			return err
		}
		if en.Role != string(RoleProfessor) {
			return unauthorized("user %q does not teach course %q", a.ID, ex.CourseID)
		}
		return nil
	}
	return unauthorized("role %q cannot manage exams", a.Role)
}

// enrollmentOf returns nil when the user has no enrollment on the course.
func enrollmentOf(ctx context.Context, r Repository, courseID, userID string) (*Enrollment, error) {
	en, err := r.GetEnrollment(ctx, courseID, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &en, nil
}

// Enroll registers a course membership. Course administration lives
// elsewhere; this is the seeding hook for admins.
func (s *Service) Enroll(ctx context.Context, actor Actor, en Enrollment) error {
	if actor.Role != RoleAdmin {
		return unauthorized("only admins manage enrollments")
	}
	var fields []FieldError
	if en.CourseID == "" {
		fields = append(fields, FieldError{Field: "course_id", Message: "required"})
	}
	if en.UserID == "" {
		fields = append(fields, FieldError{Field: "user_id", Message: "required"})
	}
	switch en.Role {
	case "professor", "student", "ta":
	default:
		fields = append(fields, FieldError{Field: "role", Message: "must be professor, student or ta"})
	}
	if len(fields) > 0 {
		return invalid(fields...)
	}
	return s.store.PutEnrollment(ctx, en)
}

func attemptValues(a Attempt) map[string]any {
	v := map[string]any{"status": string(a.Status)}
	if a.TotalScore != nil {
		v["total_score"] = *a.TotalScore
	}
	if a.IsAutoSubmitted {
		v["is_auto_submitted"] = true
	}
	return v
}
