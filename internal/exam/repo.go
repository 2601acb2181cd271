package exam

import (
	"context"
	"time"
)

// Repository is the persistence surface of the attempt lifecycle. Inside
// Store.WithTx every call runs in the same transaction.
//
// Lookups of missing rows return an error wrapping ErrNotFound; all other
// storage failures wrap ErrPersistence.
type Repository interface {
	// GetExam returns the exam with questions and options in display order.
	GetExam(ctx context.Context, id string) (Exam, error)
	PutExam(ctx context.Context, e Exam) error
	// ListArchivableExams returns active exams whose window closed before cutoff.
	ListArchivableExams(ctx context.Context, cutoff time.Time) ([]Exam, error)
	// DeactivateExam flips is_active to false; it reports false when the exam
	// was already inactive.
	DeactivateExam(ctx context.Context, id string) (bool, error)

	GetEnrollment(ctx context.Context, courseID, userID string) (Enrollment, error)
	PutEnrollment(ctx context.Context, en Enrollment) error

	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// LatestAttempt prefers the in_progress attempt, then the most recently started.
	LatestAttempt(ctx context.Context, examID, userID string) (Attempt, error)
	// CreateAttempt fails with errActiveAttempt if (exam, user) already has an
	// in_progress attempt.
	CreateAttempt(ctx context.Context, a Attempt) error
	// UpdateAttempt writes a's mutable fields only if the stored status is one
	// of from; it reports whether a row was updated.
	UpdateAttempt(ctx context.Context, a Attempt, from ...AttemptStatus) (bool, error)
	ListAttempts(ctx context.Context, examID string, statuses ...AttemptStatus) ([]Attempt, error)
	// ListOverdueAttempts returns in_progress attempts on timed exams whose
	// time limit elapsed before now.
	ListOverdueAttempts(ctx context.Context, now time.Time) ([]Attempt, error)

	ListAnswers(ctx context.Context, attemptID string) ([]Answer, error)
	// UpsertAnswer inserts or replaces the answer for (attempt, question).
	UpsertAnswer(ctx context.Context, a Answer) error

	InsertArchive(ctx context.Context, ar ArchivedExam) error
	ListArchives(ctx context.Context, examID string) ([]ArchivedExam, error)
}

// Store is a Repository that can run a unit of work atomically. fn's
// Repository must be used for every call inside the unit; returning an error
// from fn rolls everything back.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(Repository) error) error
}
