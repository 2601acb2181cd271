package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/audit"
)

func submitted(t *testing.T, h *harness, who Actor, answers map[string]string) Attempt {
	t.Helper()
	s := h.start(t, who)
	return h.submit(t, who, s.Attempt.ID, answers).Attempt
}

func TestAutoGradeMultipleChoice(t *testing.T) {
	cases := []struct {
		name    string
		answers map[string]string
		want    float64
		rows    int
	}{
		{"correct", map[string]string{"q-mc": "A"}, 5, 1},
		{"wrong", map[string]string{"q-mc": "B"}, 0, 1},
		{"blank", map[string]string{}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stores(t, func(t *testing.T, newStore func(*testing.T) Store) {
				h := newHarness(t, newStore(t))
				a := submitted(t, h, student, tc.answers)

				rep, err := h.svc.AutoGrade(context.Background(), a.ID, prof)
				require.NoError(t, err)
				assert.Equal(t, tc.want, rep.Awarded["q-mc"])
				assert.Equal(t, StatusGraded, rep.Attempt.Status)
				require.NotNil(t, rep.Attempt.TotalScore)
				assert.Equal(t, tc.want, *rep.Attempt.TotalScore)

				answers, err := h.store.ListAnswers(context.Background(), a.ID)
				require.NoError(t, err)
				assert.Len(t, answers, tc.rows)
				for _, ans := range answers {
					require.NotNil(t, ans.PointsAwarded)
					assert.Equal(t, tc.want, *ans.PointsAwarded)
					assert.Equal(t, prof.ID, ans.GradedBy)
					assert.NotNil(t, ans.GradedAt)
				}
			})
		})
	}
}

func TestAutoGradeLeavesFreeTextAlone(t *testing.T) {
	h := newHarness(t, NewInMemoryStore())
	a := submitted(t, h, student, map[string]string{"q-mc": "A", "q-tf": "F", "q-essay": "Long answer"})

	_, err := h.svc.GradeManually(context.Background(), ManualGradeRequest{
		AttemptID: a.ID, Actor: prof,
		Grades: []GradeEntry{{QuestionID: "q-essay", Points: 7.5, Feedback: "good"}},
	})
	require.NoError(t, err)

	rep, err := h.svc.AutoGrade(context.Background(), a.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"q-mc": 5, "q-tf": 0}, rep.Awarded)
	assert.Equal(t, 12.5, *rep.Attempt.TotalScore)

	answers, err := h.store.ListAnswers(context.Background(), a.ID)
	require.NoError(t, err)
	for _, ans := range answers {
		if ans.QuestionID == "q-essay" {
			assert.Equal(t, 7.5, *ans.PointsAwarded)
			assert.Equal(t, "good", ans.Feedback)
			assert.Equal(t, prof.ID, ans.GradedBy)
		}
	}
}

func TestGradeManually(t *testing.T) {
	stores(t, func(t *testing.T, newStore func(*testing.T) Store) {
		h := newHarness(t, newStore(t))
		a := submitted(t, h, student, map[string]string{"q-mc": "B", "q-essay": "text"})
		h.clk.Advance(time.Hour)

		rep, err := h.svc.GradeManually(context.Background(), ManualGradeRequest{
			AttemptID: a.ID, Actor: prof,
			Grades: []GradeEntry{
				{QuestionID: "q-essay", Points: 8.25, Feedback: "solid"},
				{QuestionID: "q-tf", Points: 1},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, StatusGraded, rep.Attempt.Status)
		assert.Equal(t, 9.25, *rep.Attempt.TotalScore)

		answers, err := h.store.ListAnswers(context.Background(), a.ID)
		require.NoError(t, err)
		require.Len(t, answers, 3)
		for _, ans := range answers {
			switch ans.QuestionID {
			case "q-essay":
				assert.Equal(t, 8.25, *ans.PointsAwarded)
				assert.Equal(t, "solid", ans.Feedback)
				assert.Equal(t, t0.Add(time.Hour), *ans.GradedAt)
			case "q-tf":
				assert.Equal(t, 1.0, *ans.PointsAwarded)
				assert.Nil(t, ans.SelectedOptionID)
			case "q-mc":
				assert.Nil(t, ans.PointsAwarded)
			}
		}

		// re-grade
		rep, err = h.svc.GradeManually(context.Background(), ManualGradeRequest{
			AttemptID: a.ID, Actor: admin,
			Grades: []GradeEntry{{QuestionID: "q-essay", Points: 10}},
		})
		require.NoError(t, err)
		assert.Equal(t, 11.0, *rep.Attempt.TotalScore)
		assert.Equal(t, []string{audit.ActionStartExam, audit.ActionSubmitExam, audit.ActionGradeExam, audit.ActionGradeExam}, h.actions())
	})
}

func TestGradeManuallyRejectsOutOfRangeWithoutPartialWrites(t *testing.T) {
	stores(t, func(t *testing.T, newStore func(*testing.T) Store) {
		h := newHarness(t, newStore(t))
		a := submitted(t, h, student, map[string]string{"q-mc": "A", "q-essay": "text"})

		_, err := h.svc.GradeManually(context.Background(), ManualGradeRequest{
			AttemptID: a.ID, Actor: prof,
			Grades: []GradeEntry{
				{QuestionID: "q-mc", Points: 5},
				{QuestionID: "q-essay", Points: 11},
				{QuestionID: "q-tf", Points: -1},
			},
		})
		require.ErrorIs(t, err, ErrValidationFailed)
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		fields := map[string]bool{}
		for _, f := range ve.Fields {
			fields[f.Field] = true
		}
		assert.Equal(t, map[string]bool{"q-essay": true, "q-tf": true}, fields)

		after, err := h.store.GetAttempt(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusSubmitted, after.Status)
		assert.Nil(t, after.TotalScore)
		answers, err := h.store.ListAnswers(context.Background(), a.ID)
		require.NoError(t, err)
		for _, ans := range answers {
			assert.Nil(t, ans.PointsAwarded, ans.QuestionID)
		}
	})
}

func TestGradeUnknownQuestion(t *testing.T) {
	h := newHarness(t, NewInMemoryStore())
	a := submitted(t, h, student, nil)
	_, err := h.svc.GradeManually(context.Background(), ManualGradeRequest{
		AttemptID: a.ID, Actor: prof, Grades: []GradeEntry{{QuestionID: "q-none", Points: 1}},
	})
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestGradeRequiresSubmittedOrGraded(t *testing.T) {
	h := newHarness(t, NewInMemoryStore())
	s := h.start(t, student)

	_, err := h.svc.AutoGrade(context.Background(), s.Attempt.ID, prof)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.svc.AutoGrade(context.Background(), "missing", prof)
	require.ErrorIs(t, err, ErrNotFound)

	a, err := h.store.GetAttempt(context.Background(), s.Attempt.ID)
	require.NoError(t, err)
	a.Status = StatusArchived
	ok, err := h.store.UpdateAttempt(context.Background(), a, StatusInProgress)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = h.svc.AutoGrade(context.Background(), s.Attempt.ID, prof)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGradeAuthorization(t *testing.T) {
	h := newHarness(t, NewInMemoryStore())
	a := submitted(t, h, student, map[string]string{"q-mc": "A"})

	for _, who := range []Actor{outsider, student, {ID: "prof-x", Role: RoleProfessor}} {
		_, err := h.svc.AutoGrade(context.Background(), a.ID, who)
		require.ErrorIs(t, err, ErrUnauthorized, who.ID)
	}
	// a TA enrollment is not enough
	require.NoError(t, h.svc.Enroll(context.Background(), admin, Enrollment{CourseID: "course-1", UserID: "ta-1", Role: "ta"}))
	_, err := h.svc.AutoGrade(context.Background(), a.ID, Actor{ID: "ta-1", Role: RoleProfessor})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.svc.AutoGrade(context.Background(), a.ID, admin)
	require.NoError(t, err)
}

func TestResultsVisibility(t *testing.T) {
	release := t0.Add(2 * time.Hour)
	h := newHarness(t, NewInMemoryStore(), func(e *Exam) {
		e.ResultVisibility = ResultVisibility{Mode: VisibleAfter, After: release}
	})
	a := submitted(t, h, student, map[string]string{"q-mc": "A"})

	_, err := h.svc.Results(context.Background(), a.ID, student)
	require.ErrorIs(t, err, ErrResultsUnavailable)

	view, err := h.svc.Results(context.Background(), a.ID, prof)
	require.NoError(t, err)
	assert.True(t, view.Staff)
	assert.Len(t, view.Answers, 1)

	_, err = h.svc.Results(context.Background(), a.ID, classmate)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.svc.Results(context.Background(), a.ID, outsider)
	require.ErrorIs(t, err, ErrUnauthorized)

	h.clk.Set(release)
	view, err = h.svc.Results(context.Background(), a.ID, student)
	require.NoError(t, err)
	assert.False(t, view.Staff)
	opt, ok := view.Exam.Questions[0].Option("A")
	require.True(t, ok)
	assert.True(t, opt.IsCorrect)
}

func TestResultsOnGraded(t *testing.T) {
	h := newHarness(t, NewInMemoryStore())
	a := submitted(t, h, student, map[string]string{"q-mc": "A"})

	_, err := h.svc.Results(context.Background(), a.ID, student)
	require.ErrorIs(t, err, ErrResultsUnavailable)

	_, err = h.svc.AutoGrade(context.Background(), a.ID, prof)
	require.NoError(t, err)
	view, err := h.svc.Results(context.Background(), a.ID, student)
	require.NoError(t, err)
	assert.Equal(t, 5.0, *view.Attempt.TotalScore)
}

func TestListAttemptsForGraders(t *testing.T) {
	h := newHarness(t, NewInMemoryStore())
	submitted(t, h, student, nil)
	h.start(t, classmate)

	all, err := h.svc.ListAttempts(context.Background(), h.exam.ID, prof)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	subs, err := h.svc.ListAttempts(context.Background(), h.exam.ID, prof, StatusSubmitted)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, student.ID, subs[0].UserID)

	_, err = h.svc.ListAttempts(context.Background(), h.exam.ID, student)
	require.ErrorIs(t, err, ErrUnauthorized)
}
