package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/audit"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type StartRequest struct {
	ExamID   string
	Actor    Actor
	ClientIP string
}

// Session is what a taker sees after StartOrResume. When Expired is set the
// attempt was auto-submitted and Exam, Answers and Remaining are withheld.
type Session struct {
	Attempt   Attempt
	Exam      *Exam
	Answers   []Answer
	Created   bool
	Expired   bool
	Remaining *time.Duration // nil for untimed exams
}

// RemainingTime reports the time left on a timed attempt, never negative.
// ok is false for untimed exams.
func RemainingTime(ex Exam, a Attempt, now time.Time) (d time.Duration, ok bool) {
	limit := ex.TimeLimit()
	if limit <= 0 {
		return 0, false
	}
	d = limit - now.Sub(a.StartTime)
	if d < 0 {
		d = 0
	}
	return d, true
}

// TimedOut reports whether the elapsed time strictly exceeds ex's limit.
func TimedOut(ex Exam, a Attempt, now time.Time) bool {
	limit := ex.TimeLimit()
	return limit > 0 && now.Sub(a.StartTime) > limit
}

// StartOrResume opens a new attempt for the actor, or continues the one in
// progress. A resumed attempt past its time limit is submitted on the spot.
func (s *Service) StartOrResume(ctx context.Context, req StartRequest) (Session, error) {
	if !s.can(req.Actor, rbac.PermAttemptCreate) {
		return Session{}, unauthorized("%s %q cannot take exams", req.Actor.Role, req.Actor.ID)
	}
	var out Session
	for try := 0; ; try++ {
		err := s.store.WithTx(ctx, func(r Repository) error {
			var err error
			out, err = s.startOrResume(ctx, r, req)
			return err
		})
		if errors.Is(err, errActiveAttempt) {
			// Another request created the attempt between our read and
			// insert; the retry resumes it.
			if try == 0 {
				continue
			}
			return Session{}, fmt.Errorf("start attempt on exam %q: %w", req.ExamID, ErrInvalidTransition)
		}
		if err != nil {
			return Session{}, err
		}
		break
	}

	switch {
	case out.Created:
		s.log.Info("attempt started", "attempt_id", out.Attempt.ID, "exam_id", req.ExamID, "user_id", req.Actor.ID)
		s.audit.Record(ctx, audit.Entry{
			ActorID: req.Actor.ID, Action: audit.ActionStartExam,
			EntityType: "exam_attempt", EntityID: out.Attempt.ID,
			New: attemptValues(out.Attempt), IP: req.ClientIP,
		})
	case out.Expired && out.Attempt.IsAutoSubmitted:
		s.log.Info("attempt expired on resume", "attempt_id", out.Attempt.ID, "exam_id", req.ExamID)
		s.audit.Record(ctx, audit.Entry{
			ActorID: req.Actor.ID, Action: audit.ActionAutoSubmit,
			EntityType: "exam_attempt", EntityID: out.Attempt.ID,
			Old: map[string]any{"status": string(StatusInProgress)},
			New: attemptValues(out.Attempt), IP: req.ClientIP,
		})
	}
	return out, nil
}

func (s *Service) startOrResume(ctx context.Context, r Repository, req StartRequest) (Session, error) {
	now := s.now()
	ex, err := r.GetExam(ctx, req.ExamID)
	if err != nil {
		return Session{}, err
	}
	en, err := enrollmentOf(ctx, r, ex.CourseID, req.Actor.ID)
	if err != nil {
		return Session{}, err
	}
	if d := CanStart(ex, req.Actor.ID, en, req.ClientIP, now); !d.Allowed {
		return Session{}, d.Err()
	}

	latest, err := r.LatestAttempt(ctx, ex.ID, req.Actor.ID)
	switch {
	case errors.Is(err, ErrNotFound), err == nil && latest.Status != StatusInProgress:
		a := Attempt{
			ID:        s.newID(),
			ExamID:    ex.ID,
			UserID:    req.Actor.ID,
			StartTime: now,
			IPAddress: req.ClientIP,
			Status:    StatusInProgress,
		}
		if err := r.CreateAttempt(ctx, a); err != nil {
			return Session{}, err
		}
		return s.session(ex, a, nil, now, true), nil
	case err != nil:
		return Session{}, err
	}

	if TimedOut(ex, latest, now) {
		next := latest
		next.Status = StatusSubmitted
		next.SubmissionTime = &now
		next.IsAutoSubmitted = true
		ok, err := r.UpdateAttempt(ctx, next, StatusInProgress)
		if err != nil {
			return Session{}, err
		}
		if !ok {
			if next, err = r.GetAttempt(ctx, latest.ID); err != nil {
				return Session{}, err
			}
		}
		return Session{Attempt: next, Expired: true}, nil
	}

	answers, err := r.ListAnswers(ctx, latest.ID)
	if err != nil {
		return Session{}, err
	}
	return s.session(ex, latest, answers, now, false), nil
}

func (s *Service) session(ex Exam, a Attempt, answers []Answer, now time.Time, created bool) Session {
	view := ex.StudentView()
	out := Session{Attempt: a, Exam: &view, Answers: answers, Created: created}
	if d, ok := RemainingTime(ex, a, now); ok {
		out.Remaining = &d
	}
	return out
}

type SubmitRequest struct {
	AttemptID string
	Actor     Actor
	// Answers maps question id to the selected option id (objective types)
	// or the answer text (free-text types).
	Answers map[string]string
}

type SubmitResult struct {
	Attempt Attempt
	// AlreadySubmitted is set when the attempt had left in_progress before
	// this call; nothing was written.
	AlreadySubmitted bool
	// Expired is set when the time limit had run out. The attempt was
	// auto-submitted and the answers in the request were dropped.
	Expired bool
}

// Submit records the actor's answers and moves the attempt to submitted.
// Only the attempt owner may submit. Past the time limit the attempt is
// auto-submitted instead and the answers are not recorded.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if !s.can(req.Actor, rbac.PermAttemptSubmit) {
		return SubmitResult{}, unauthorized("%s %q cannot submit attempts", req.Actor.Role, req.Actor.ID)
	}
	now := s.now()
	var res SubmitResult
	err := s.store.WithTx(ctx, func(r Repository) error {
		a, err := r.GetAttempt(ctx, req.AttemptID)
		if err != nil {
			return err
		}
		if a.UserID != req.Actor.ID {
			return unauthorized("attempt %q belongs to another user", a.ID)
		}
		if a.Status != StatusInProgress {
			res = SubmitResult{Attempt: a, AlreadySubmitted: true}
			return nil
		}
		ex, err := r.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}

		expired := TimedOut(ex, a, now)
		next := a
		next.Status = StatusSubmitted
		next.SubmissionTime = &now
		next.IsAutoSubmitted = expired
		ok, err := r.UpdateAttempt(ctx, next, StatusInProgress)
		if err != nil {
			return err
		}
		if !ok {
			cur, err := r.GetAttempt(ctx, a.ID)
			if err != nil {
				return err
			}
			res = SubmitResult{Attempt: cur, AlreadySubmitted: true}
			return nil
		}
		if expired {
			res = SubmitResult{Attempt: next, Expired: true}
			return nil
		}
		if err := s.applyAnswers(ctx, r, ex, a.ID, req.Answers); err != nil {
			return err
		}
		res = SubmitResult{Attempt: next}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	switch {
	case res.AlreadySubmitted:
	case res.Expired:
		s.log.Info("late submit, attempt expired", "attempt_id", res.Attempt.ID, "user_id", req.Actor.ID)
		s.audit.Record(ctx, audit.Entry{
			ActorID: req.Actor.ID, Action: audit.ActionAutoSubmit,
			EntityType: "exam_attempt", EntityID: res.Attempt.ID,
			Old: map[string]any{"status": string(StatusInProgress)},
			New: attemptValues(res.Attempt),
		})
	default:
		s.log.Info("attempt submitted", "attempt_id", res.Attempt.ID, "user_id", req.Actor.ID)
		s.audit.Record(ctx, audit.Entry{
			ActorID: req.Actor.ID, Action: audit.ActionSubmitExam,
			EntityType: "exam_attempt", EntityID: res.Attempt.ID,
			Old: map[string]any{"status": string(StatusInProgress)},
			New: attemptValues(res.Attempt),
		})
	}
	return res, nil
}

// ExpireOverdue auto-submits every in_progress attempt whose time limit has
// elapsed, without waiting for the taker to come back. It returns how many
// attempts it moved.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.store.ListOverdueAttempts(ctx, now)
	if err != nil {
		return 0, err
	}
	var (
		n    int
		errs []error
	)
	for _, a := range overdue {
		next := a
		next.Status = StatusSubmitted
		next.SubmissionTime = &now
		next.IsAutoSubmitted = true
		ok, err := s.store.UpdateAttempt(ctx, next, StatusInProgress)
		if err != nil {
			s.log.Error("expire attempt failed", "attempt_id", a.ID, "err", err)
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		n++
		s.audit.Record(ctx, audit.Entry{
			ActorID: SystemActor.ID, Action: audit.ActionAutoSubmit,
			EntityType: "exam_attempt", EntityID: a.ID,
			Old: map[string]any{"status": string(StatusInProgress)},
			New: attemptValues(next),
		})
	}
	return n, errors.Join(errs...)
}
