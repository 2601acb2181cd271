package exam

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memAttempt struct {
	Attempt
	seq int
}

type memData struct {
	exams       map[string]Exam
	enrollments map[string]Enrollment // course|user
	attempts    map[string]memAttempt
	answers     map[string]Answer // attempt|question
	archives    []ArchivedExam
	seq         int
}

func (d *memData) clone() *memData {
	c := &memData{
		exams:       make(map[string]Exam, len(d.exams)),
		enrollments: make(map[string]Enrollment, len(d.enrollments)),
		attempts:    make(map[string]memAttempt, len(d.attempts)),
		answers:     make(map[string]Answer, len(d.answers)),
		archives:    append([]ArchivedExam(nil), d.archives...),
		seq:         d.seq,
	}
	for k, v := range d.exams {
		c.exams[k] = v
	}
	for k, v := range d.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range d.attempts {
		c.attempts[k] = v
	}
	for k, v := range d.answers {
		c.answers[k] = v
	}
	return c
}

// memRepo serves calls either under its own lock or, inside WithTx, under the
// lock already held by the transaction.
type memRepo struct {
	mu *sync.Mutex
	d  *memData
	tx bool
}

func (r *memRepo) lock() func() {
	if r.tx {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

type memoryStore struct {
	*memRepo
}

// NewInMemoryStore returns a Store kept in process memory. Transactions are
// serialized and restored from a snapshot on error.
func NewInMemoryStore() Store {
	return &memoryStore{memRepo: &memRepo{
		mu: &sync.Mutex{},
		d: &memData{
			exams:       map[string]Exam{},
			enrollments: map[string]Enrollment{},
			attempts:    map[string]memAttempt{},
			answers:     map[string]Answer{},
		},
	}}
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return storeErr("begin tx", err)
	}
	snap := m.d.clone()
	if err := fn(&memRepo{mu: m.mu, d: m.d, tx: true}); err != nil {
		*m.d = *snap
		return err
	}
	return nil
}

func copyExam(e Exam) Exam {
	e.IPAllowlist = append([]string(nil), e.IPAllowlist...)
	qs := make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Options = append([]Option(nil), q.Options...)
		sort.SliceStable(q.Options, func(a, b int) bool { return q.Options[a].DisplayOrder < q.Options[b].DisplayOrder })
		qs[i] = q
	}
	sort.SliceStable(qs, func(a, b int) bool { return qs[a].DisplayOrder < qs[b].DisplayOrder })
	e.Questions = qs
	return e
}

func (r *memRepo) GetExam(_ context.Context, id string) (Exam, error) {
	defer r.lock()()
	e, ok := r.d.exams[id]
	if !ok {
		return Exam{}, notFound("exam", id)
	}
	return copyExam(e), nil
}

func (r *memRepo) PutExam(_ context.Context, e Exam) error {
	defer r.lock()()
	r.d.exams[e.ID] = copyExam(e)
	return nil
}

func (r *memRepo) ListArchivableExams(_ context.Context, cutoff time.Time) ([]Exam, error) {
	defer r.lock()()
	var out []Exam
	for _, e := range r.d.exams {
		if e.IsActive && e.AvailableTo != nil && e.AvailableTo.Before(cutoff) {
			e.Questions = nil
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) DeactivateExam(_ context.Context, id string) (bool, error) {
	defer r.lock()()
	e, ok := r.d.exams[id]
	if !ok {
		return false, notFound("exam", id)
	}
	if !e.IsActive {
		return false, nil
	}
	e.IsActive = false
	r.d.exams[id] = e
	return true, nil
}

func (r *memRepo) GetEnrollment(_ context.Context, courseID, userID string) (Enrollment, error) {
	defer r.lock()()
	en, ok := r.d.enrollments[courseID+"|"+userID]
	if !ok {
		return Enrollment{}, notFound("enrollment", courseID+"/"+userID)
	}
	return en, nil
}

func (r *memRepo) PutEnrollment(_ context.Context, en Enrollment) error {
	defer r.lock()()
	r.d.enrollments[en.CourseID+"|"+en.UserID] = en
	return nil
}

func (r *memRepo) GetAttempt(_ context.Context, id string) (Attempt, error) {
	defer r.lock()()
	a, ok := r.d.attempts[id]
	if !ok {
		return Attempt{}, notFound("attempt", id)
	}
	return a.Attempt, nil
}

func (r *memRepo) LatestAttempt(_ context.Context, examID, userID string) (Attempt, error) {
	defer r.lock()()
	var best *memAttempt
	for _, a := range r.d.attempts {
		if a.ExamID != examID || a.UserID != userID {
			continue
		}
		a := a
		if best == nil || newer(a, *best) {
			best = &a
		}
	}
	if best == nil {
		return Attempt{}, notFound("attempt for exam", examID)
	}
	return best.Attempt, nil
}

func newer(a, b memAttempt) bool {
	ai, bi := a.Status == StatusInProgress, b.Status == StatusInProgress
	if ai != bi {
		return ai
	}
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.After(b.StartTime)
	}
	return a.seq > b.seq
}

func (r *memRepo) CreateAttempt(_ context.Context, a Attempt) error {
	defer r.lock()()
	if a.Status == StatusInProgress {
		for _, o := range r.d.attempts {
			if o.ExamID == a.ExamID && o.UserID == a.UserID && o.Status == StatusInProgress {
				return errActiveAttempt
			}
		}
	}
	r.d.seq++
	r.d.attempts[a.ID] = memAttempt{Attempt: a, seq: r.d.seq}
	return nil
}

func (r *memRepo) UpdateAttempt(_ context.Context, a Attempt, from ...AttemptStatus) (bool, error) {
	defer r.lock()()
	cur, ok := r.d.attempts[a.ID]
	if !ok || !statusIn(cur.Status, from) {
		return false, nil
	}
	cur.Status = a.Status
	cur.SubmissionTime = a.SubmissionTime
	cur.TotalScore = a.TotalScore
	cur.IsAutoSubmitted = a.IsAutoSubmitted
	r.d.attempts[a.ID] = cur
	return true, nil
}

func statusIn(s AttemptStatus, set []AttemptStatus) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

func (r *memRepo) sortedAttempts(keep func(memAttempt) bool) []Attempt {
	var ms []memAttempt
	for _, a := range r.d.attempts {
		if keep(a) {
			ms = append(ms, a)
		}
	}
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].StartTime.Equal(ms[j].StartTime) {
			return ms[i].StartTime.Before(ms[j].StartTime)
		}
		return ms[i].seq < ms[j].seq
	})
	out := make([]Attempt, len(ms))
	for i, a := range ms {
		out[i] = a.Attempt
	}
	return out
}

func (r *memRepo) ListAttempts(_ context.Context, examID string, statuses ...AttemptStatus) ([]Attempt, error) {
	defer r.lock()()
	return r.sortedAttempts(func(a memAttempt) bool {
		return a.ExamID == examID && (len(statuses) == 0 || statusIn(a.Status, statuses))
	}), nil
}

func (r *memRepo) ListOverdueAttempts(_ context.Context, now time.Time) ([]Attempt, error) {
	defer r.lock()()
	return r.sortedAttempts(func(a memAttempt) bool {
		if a.Status != StatusInProgress {
			return false
		}
		e, ok := r.d.exams[a.ExamID]
		return ok && TimedOut(e, a.Attempt, now)
	}), nil
}

func (r *memRepo) ListAnswers(_ context.Context, attemptID string) ([]Answer, error) {
	defer r.lock()()
	var out []Answer
	for _, a := range r.d.answers {
		if a.AttemptID == attemptID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (r *memRepo) UpsertAnswer(_ context.Context, a Answer) error {
	defer r.lock()()
	k := a.AttemptID + "|" + a.QuestionID
	if cur, ok := r.d.answers[k]; ok {
		a.ID = cur.ID
	}
	r.d.answers[k] = a
	return nil
}

func (r *memRepo) InsertArchive(_ context.Context, ar ArchivedExam) error {
	defer r.lock()()
	ar.Payload = append([]byte(nil), ar.Payload...)
	r.d.archives = append(r.d.archives, ar)
	return nil
}

func (r *memRepo) ListArchives(_ context.Context, examID string) ([]ArchivedExam, error) {
	defer r.lock()()
	var out []ArchivedExam
	for _, ar := range r.d.archives {
		if ar.ExamID == examID {
			out = append(out, ar)
		}
	}
	return out, nil
}
