package exam

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore persists the attempt lifecycle in SQLite or Postgres. Queries use
// $n placeholders, which both drivers accept.
type SQLStore struct {
	sqlRepo
	db *sql.DB
}

func NewSQLStore(conn *sql.DB) *SQLStore {
	return &SQLStore{sqlRepo: sqlRepo{q: conn}, db: conn}
}

func (s *SQLStore) WithTx(ctx context.Context, fn func(Repository) error) error {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&sqlRepo{q: tx})
	})
	if err != nil && !isDomainErr(err) {
		return storeErr("tx", err)
	}
	return err
}

func isDomainErr(err error) bool {
	for _, k := range []error{ErrNotFound, ErrUnauthorized, ErrInvalidTransition, ErrValidationFailed, ErrPersistence, ErrAccessDenied, ErrResultsUnavailable, errActiveAttempt} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

type sqlRepo struct{ q queryer }

// ---- column helpers ----

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeOrNil(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

func floatOrNil(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func stringOrNil(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// deref turns a nil pointer into SQL NULL and anything else into its value.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ---- exams ----

const examColumns = `id, course_id, name, description, is_published, available_from, available_to,
	time_limit_minutes, ip_allowlist, result_visibility, is_active, created_by, created_at`

type scanner interface{ Scan(dest ...any) error }

func scanExam(row scanner) (Exam, error) {
	var (
		e        Exam
		from, to sql.NullInt64
		ips, vis string
		created  int64
	)
	if err := row.Scan(&e.ID, &e.CourseID, &e.Name, &e.Description, &e.IsPublished, &from, &to,
		&e.TimeLimitMinutes, &ips, &vis, &e.IsActive, &e.CreatedBy, &created); err != nil {
		return Exam{}, err
	}
	e.AvailableFrom, e.AvailableTo = timeOrNil(from), timeOrNil(to)
	e.IPAllowlist = splitList(ips)
	rv, err := ParseResultVisibility(vis)
	if err != nil {
		return Exam{}, err
	}
	e.ResultVisibility = rv
	e.CreatedAt = time.Unix(created, 0).UTC()
	return e, nil
}

func (r *sqlRepo) GetExam(ctx context.Context, id string) (Exam, error) {
	e, err := scanExam(r.q.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, notFound("exam", id)
	}
	if err != nil {
		return Exam{}, storeErr("get exam", err)
	}
	if e.Questions, err = r.questions(ctx, id); err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (r *sqlRepo) questions(ctx context.Context, examID string) ([]Question, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, exam_id, type, text, points, display_order FROM questions WHERE exam_id=$1 ORDER BY display_order, id`, examID)
	if err != nil {
		return nil, storeErr("list questions", err)
	}
	var qs []Question
	idx := map[string]int{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Text, &q.Points, &q.DisplayOrder); err != nil {
			rows.Close()
			return nil, storeErr("scan question", err)
		}
		idx[q.ID] = len(qs)
		qs = append(qs, q)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storeErr("list questions", err)
	}
	rows.Close()

	rows, err = r.q.QueryContext(ctx,
		`SELECT o.id, o.question_id, o.text, o.is_correct, o.display_order
		 FROM question_options o JOIN questions q ON q.id = o.question_id
		 WHERE q.exam_id=$1 ORDER BY o.display_order, o.id`, examID)
	if err != nil {
		return nil, storeErr("list options", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.DisplayOrder); err != nil {
			return nil, storeErr("scan option", err)
		}
		if i, ok := idx[o.QuestionID]; ok {
			qs[i].Options = append(qs[i].Options, o)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list options", err)
	}
	return qs, nil
}

// PutExam upserts the exam row, then replaces its question set. Questions
// keep their ids so answers stay attached.
func (r *sqlRepo) PutExam(ctx context.Context, e Exam) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO exams (`+examColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
		  name=excluded.name, description=excluded.description, is_published=excluded.is_published,
		  available_from=excluded.available_from, available_to=excluded.available_to,
		  time_limit_minutes=excluded.time_limit_minutes, ip_allowlist=excluded.ip_allowlist,
		  result_visibility=excluded.result_visibility, is_active=excluded.is_active`,
		e.ID, e.CourseID, e.Name, e.Description, e.IsPublished, unixOrNil(e.AvailableFrom), unixOrNil(e.AvailableTo),
		e.TimeLimitMinutes, strings.Join(e.IPAllowlist, ","), e.ResultVisibility.String(), e.IsActive, e.CreatedBy, e.CreatedAt.Unix())
	if err != nil {
		return storeErr("put exam", err)
	}

	old, err := r.questions(ctx, e.ID)
	if err != nil {
		return err
	}
	keep := map[string]bool{}
	for _, q := range e.Questions {
		keep[q.ID] = true
	}
	for _, q := range old {
		if !keep[q.ID] {
			if _, err := r.q.ExecContext(ctx, `DELETE FROM questions WHERE id=$1`, q.ID); err != nil {
				return storeErr("delete question", err)
			}
		}
	}
	for _, q := range e.Questions {
		_, err := r.q.ExecContext(ctx, `INSERT INTO questions (id, exam_id, type, text, points, display_order)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO UPDATE SET type=excluded.type, text=excluded.text, points=excluded.points, display_order=excluded.display_order`,
			q.ID, e.ID, string(q.Type), q.Text, q.Points, q.DisplayOrder)
		if err != nil {
			return storeErr("put question", err)
		}
		if _, err := r.q.ExecContext(ctx, `DELETE FROM question_options WHERE question_id=$1`, q.ID); err != nil {
			return storeErr("clear options", err)
		}
		for _, o := range q.Options {
			_, err := r.q.ExecContext(ctx, `INSERT INTO question_options (id, question_id, text, is_correct, display_order)
				VALUES ($1,$2,$3,$4,$5)`, o.ID, q.ID, o.Text, o.IsCorrect, o.DisplayOrder)
			if err != nil {
				return storeErr("put option", err)
			}
		}
	}
	return nil
}

func (r *sqlRepo) ListArchivableExams(ctx context.Context, cutoff time.Time) ([]Exam, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+examColumns+` FROM exams
		WHERE is_active=$1 AND available_to IS NOT NULL AND available_to < $2 ORDER BY id`, true, cutoff.Unix())
	if err != nil {
		return nil, storeErr("list archivable exams", err)
	}
	defer rows.Close()
	var out []Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, storeErr("scan exam", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list archivable exams", err)
	}
	return out, nil
}

func (r *sqlRepo) DeactivateExam(ctx context.Context, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE exams SET is_active=$1 WHERE id=$2 AND is_active=$3`, false, id, true)
	if err != nil {
		return false, storeErr("deactivate exam", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("deactivate exam", err)
	}
	if n == 0 {
		var one int
		err := r.q.QueryRowContext(ctx, `SELECT 1 FROM exams WHERE id=$1`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, notFound("exam", id)
		}
		if err != nil {
			return false, storeErr("deactivate exam", err)
		}
	}
	return n > 0, nil
}

// ---- enrollments ----

func (r *sqlRepo) GetEnrollment(ctx context.Context, courseID, userID string) (Enrollment, error) {
	en := Enrollment{CourseID: courseID, UserID: userID}
	err := r.q.QueryRowContext(ctx, `SELECT role FROM enrollments WHERE course_id=$1 AND user_id=$2`, courseID, userID).Scan(&en.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, notFound("enrollment", courseID+"/"+userID)
	}
	if err != nil {
		return Enrollment{}, storeErr("get enrollment", err)
	}
	return en, nil
}

func (r *sqlRepo) PutEnrollment(ctx context.Context, en Enrollment) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO enrollments (course_id, user_id, role) VALUES ($1,$2,$3)
		ON CONFLICT (course_id, user_id) DO UPDATE SET role=excluded.role`, en.CourseID, en.UserID, en.Role)
	return storeErr("put enrollment", err)
}

// ---- attempts ----

const attemptColumns = `id, exam_id, user_id, start_time, submission_time, ip_address, status, total_score, is_auto_submitted`

func scanAttempt(row scanner) (Attempt, error) {
	var (
		a         Attempt
		start     int64
		submitted sql.NullInt64
		score     sql.NullFloat64
	)
	if err := row.Scan(&a.ID, &a.ExamID, &a.UserID, &start, &submitted, &a.IPAddress, &a.Status, &score, &a.IsAutoSubmitted); err != nil {
		return Attempt{}, err
	}
	a.StartTime = time.Unix(start, 0).UTC()
	a.SubmissionTime = timeOrNil(submitted)
	a.TotalScore = floatOrNil(score)
	return a, nil
}

func (r *sqlRepo) listAttempts(ctx context.Context, op, query string, args ...any) ([]Attempt, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}

func (r *sqlRepo) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := scanAttempt(r.q.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, notFound("attempt", id)
	}
	if err != nil {
		return Attempt{}, storeErr("get attempt", err)
	}
	return a, nil
}

func (r *sqlRepo) LatestAttempt(ctx context.Context, examID, userID string) (Attempt, error) {
	a, err := scanAttempt(r.q.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE exam_id=$1 AND user_id=$2
		ORDER BY CASE WHEN status='in_progress' THEN 0 ELSE 1 END, start_time DESC, id DESC
		LIMIT 1`, examID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, notFound("attempt for exam", examID)
	}
	if err != nil {
		return Attempt{}, storeErr("latest attempt", err)
	}
	return a, nil
}

func (r *sqlRepo) CreateAttempt(ctx context.Context, a Attempt) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO attempts (`+attemptColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.ExamID, a.UserID, a.StartTime.Unix(), unixOrNil(a.SubmissionTime), a.IPAddress, string(a.Status), deref(a.TotalScore), a.IsAutoSubmitted)
	if db.IsUniqueViolation(err) && a.Status == StatusInProgress {
		return errActiveAttempt
	}
	return storeErr("create attempt", err)
}

// UpdateAttempt is a compare-and-swap on status.
func (r *sqlRepo) UpdateAttempt(ctx context.Context, a Attempt, from ...AttemptStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := []any{string(a.Status), unixOrNil(a.SubmissionTime), deref(a.TotalScore), a.IsAutoSubmitted, a.ID}
	ph := make([]string, len(from))
	for i, s := range from {
		args = append(args, string(s))
		ph[i] = "$" + strconv.Itoa(len(args))
	}
	res, err := r.q.ExecContext(ctx, `UPDATE attempts SET status=$1, submission_time=$2, total_score=$3, is_auto_submitted=$4
		WHERE id=$5 AND status IN (`+strings.Join(ph, ",")+`)`, args...)
	if err != nil {
		return false, storeErr("update attempt", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("update attempt", err)
	}
	return n == 1, nil
}

func (r *sqlRepo) ListAttempts(ctx context.Context, examID string, statuses ...AttemptStatus) ([]Attempt, error) {
	args := []any{examID}
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE exam_id=$1`
	if len(statuses) > 0 {
		ph := make([]string, len(statuses))
		for i, s := range statuses {
			args = append(args, string(s))
			ph[i] = "$" + strconv.Itoa(len(args))
		}
		query += ` AND status IN (` + strings.Join(ph, ",") + `)`
	}
	return r.listAttempts(ctx, "list attempts", query+` ORDER BY start_time, id`, args...)
}

func (r *sqlRepo) ListOverdueAttempts(ctx context.Context, now time.Time) ([]Attempt, error) {
	return r.listAttempts(ctx, "list overdue attempts", `SELECT a.id, a.exam_id, a.user_id, a.start_time, a.submission_time,
		  a.ip_address, a.status, a.total_score, a.is_auto_submitted
		FROM attempts a JOIN exams e ON e.id = a.exam_id
		WHERE a.status=$1 AND e.time_limit_minutes > 0
		  AND $2 - a.start_time > e.time_limit_minutes * 60
		ORDER BY a.start_time, a.id`, string(StatusInProgress), now.Unix())
}

// ---- answers ----

func (r *sqlRepo) ListAnswers(ctx context.Context, attemptID string) ([]Answer, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, attempt_id, question_id, answer_text, selected_option_id,
		  points_awarded, feedback, graded_by, graded_at
		FROM answers WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, storeErr("list answers", err)
	}
	defer rows.Close()
	var out []Answer
	for rows.Next() {
		var (
			a        Answer
			text, op sql.NullString
			points   sql.NullFloat64
			gradedAt sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &text, &op, &points, &a.Feedback, &a.GradedBy, &gradedAt); err != nil {
			return nil, storeErr("scan answer", err)
		}
		a.AnswerText, a.SelectedOptionID = stringOrNil(text), stringOrNil(op)
		a.PointsAwarded, a.GradedAt = floatOrNil(points), timeOrNil(gradedAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list answers", err)
	}
	return out, nil
}

func (r *sqlRepo) UpsertAnswer(ctx context.Context, a Answer) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO answers (id, attempt_id, question_id, answer_text, selected_option_id,
		  points_awarded, feedback, graded_by, graded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (attempt_id, question_id) DO UPDATE SET
		  answer_text=excluded.answer_text, selected_option_id=excluded.selected_option_id,
		  points_awarded=excluded.points_awarded, feedback=excluded.feedback,
		  graded_by=excluded.graded_by, graded_at=excluded.graded_at`,
		a.ID, a.AttemptID, a.QuestionID, deref(a.AnswerText), deref(a.SelectedOptionID),
		deref(a.PointsAwarded), a.Feedback, a.GradedBy, unixOrNil(a.GradedAt))
	return storeErr("upsert answer", err)
}

// ---- archives ----

func (r *sqlRepo) InsertArchive(ctx context.Context, ar ArchivedExam) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO archived_exams (id, exam_id, course_id, exam_name, payload, archived_by, reason, archived_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ar.ID, ar.ExamID, ar.CourseID, ar.ExamName, string(ar.Payload), ar.ArchivedBy, ar.Reason, ar.ArchivedAt.Unix())
	return storeErr("insert archive", err)
}

func (r *sqlRepo) ListArchives(ctx context.Context, examID string) ([]ArchivedExam, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, exam_id, course_id, exam_name, payload, archived_by, reason, archived_at
		FROM archived_exams WHERE exam_id=$1 ORDER BY archived_at, id`, examID)
	if err != nil {
		return nil, storeErr("list archives", err)
	}
	defer rows.Close()
	var out []ArchivedExam
	for rows.Next() {
		var (
			ar      ArchivedExam
			payload string
			at      int64
		)
		if err := rows.Scan(&ar.ID, &ar.ExamID, &ar.CourseID, &ar.ExamName, &payload, &ar.ArchivedBy, &ar.Reason, &at); err != nil {
			return nil, storeErr("scan archive", err)
		}
		ar.Payload = []byte(payload)
		ar.ArchivedAt = time.Unix(at, 0).UTC()
		out = append(out, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list archives", err)
	}
	return out, nil
}
