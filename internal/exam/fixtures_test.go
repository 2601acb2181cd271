package exam

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/audit"
	"github.com/mind-engage/mindengage-exams/internal/clock"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/logging"
)

var (
	t0        = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	admin     = Actor{ID: "root", Role: RoleAdmin}
	prof      = Actor{ID: "prof-1", Role: RoleProfessor}
	outsider  = Actor{ID: "prof-2", Role: RoleProfessor}
	student   = Actor{ID: "stu-1", Role: RoleStudent}
	classmate = Actor{ID: "stu-2", Role: RoleStudent}
)

type harness struct {
	store Store
	clk   *clock.Manual
	svc   *Service
	audit *audit.MemorySink
	exam  Exam
}

func seqIDs(prefix string) func() string {
	var n int64
	return func() string { return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&n, 1)) }
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewSQLStore(conn)
}

// sampleExam has a 30 minute limit, one 5-point multiple choice question
// (A correct), one true/false worth 2 and one essay worth 10.
func sampleExam() Exam {
	from, to := t0.Add(-time.Hour), t0.Add(24*time.Hour)
	return Exam{
		ID:               "exam-1",
		CourseID:         "course-1",
		Name:             "Midterm",
		IsPublished:      true,
		AvailableFrom:    &from,
		AvailableTo:      &to,
		TimeLimitMinutes: 30,
		Questions: []Question{
			{ID: "q-mc", Type: MultipleChoice, Text: "Pick A", Points: 5, DisplayOrder: 1, Options: []Option{
				{ID: "A", Text: "A", IsCorrect: true, DisplayOrder: 1},
				{ID: "B", Text: "B", DisplayOrder: 2},
			}},
			{ID: "q-tf", Type: TrueFalse, Text: "Sky is blue", Points: 2, DisplayOrder: 2, Options: []Option{
				{ID: "T", Text: "True", IsCorrect: true, DisplayOrder: 1},
				{ID: "F", Text: "False", DisplayOrder: 2},
			}},
			{ID: "q-essay", Type: Essay, Text: "Explain", Points: 10, DisplayOrder: 3},
		},
	}
}

func newHarness(t *testing.T, store Store, mutate ...func(*Exam)) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{store: store, clk: clock.NewManual(t0), audit: &audit.MemorySink{}}
	h.svc = NewService(store,
		WithClock(h.clk.Clock()),
		WithAudit(audit.NewRecorder(h.audit, nil, h.clk.Clock())),
		WithIDs(seqIDs("id")),
		WithLogger(logging.Discard()),
	)
	for _, en := range []Enrollment{
		{CourseID: "course-1", UserID: prof.ID, Role: "professor"},
		{CourseID: "course-1", UserID: student.ID, Role: "student"},
		{CourseID: "course-1", UserID: classmate.ID, Role: "student"},
		{CourseID: "course-2", UserID: outsider.ID, Role: "professor"},
	} {
		require.NoError(t, h.svc.Enroll(ctx, admin, en))
	}
	ex := sampleExam()
	for _, m := range mutate {
		m(&ex)
	}
	saved, err := h.svc.PutExam(ctx, prof, ex)
	require.NoError(t, err)
	h.exam = saved
	// Tests assert on the entries their own calls produce.
	h.audit.Reset()
	return h
}

func (h *harness) start(t *testing.T, who Actor) Session {
	t.Helper()
	s, err := h.svc.StartOrResume(context.Background(), StartRequest{ExamID: h.exam.ID, Actor: who, ClientIP: "10.0.0.1"})
	require.NoError(t, err)
	return s
}

func (h *harness) submit(t *testing.T, who Actor, attemptID string, answers map[string]string) SubmitResult {
	t.Helper()
	res, err := h.svc.Submit(context.Background(), SubmitRequest{AttemptID: attemptID, Actor: who, Answers: answers})
	require.NoError(t, err)
	return res
}

func (h *harness) actions() []string {
	var out []string
	for _, e := range h.audit.Entries() {
		out = append(out, e.Action)
	}
	return out
}

// stores runs fn against the in-memory and the SQLite store.
func stores(t *testing.T, fn func(t *testing.T, newStore func(t *testing.T) Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, func(*testing.T) Store { return NewInMemoryStore() }) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore) })
}
