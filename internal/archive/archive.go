// Package archive snapshots an exam with its graded attempts into an
// immutable ArchivedExam and retires the exam.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-exams/internal/audit"
	"github.com/mind-engage/mindengage-exams/internal/clock"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/storage"
)

const (
	ReasonManual = "Manual archive by professor"
	ReasonAuto   = "Auto-archived after availability period"
)

// Authorizer decides whether an actor may manage an exam's course.
// *exam.Service implements it.
type Authorizer interface {
	AuthorizeStaff(ctx context.Context, r exam.Repository, a exam.Actor, ex exam.Exam, perm string) error
}

type Request struct {
	ExamID string
	Actor  exam.Actor
	Reason string
	// OnlyIfActive skips exams already inactive when the transaction reads
	// them. The nightly sweep sets it; manual calls may snapshot again.
	OnlyIfActive bool
}

type Result struct {
	Archive  exam.ArchivedExam
	Attempts int
	Skipped  bool
	// ExportKey is the blob key of the exported payload; empty when no blob
	// store is configured or the export failed.
	ExportKey string
}

type Archiver struct {
	store exam.Store
	authz Authorizer
	blobs storage.BlobStore
	audit *audit.Recorder
	log   *slog.Logger
	now   clock.Clock
	newID func() string
}

type Option func(*Archiver)

func WithBlobStore(b storage.BlobStore) Option { return func(a *Archiver) { a.blobs = b } }
func WithAudit(r *audit.Recorder) Option       { return func(a *Archiver) { a.audit = r } }
func WithLogger(l *slog.Logger) Option         { return func(a *Archiver) { a.log = l } }
func WithClock(c clock.Clock) Option           { return func(a *Archiver) { a.now = clock.OrSystem(c) } }
func WithIDs(f func() string) Option           { return func(a *Archiver) { a.newID = f } }

func New(store exam.Store, authz Authorizer, opts ...Option) *Archiver {
	a := &Archiver{
		store: store,
		authz: authz,
		log:   slog.Default(),
		now:   clock.System,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// snapshot is the archived payload: exam metadata with its questions, and
// every graded attempt with its answers.
type snapshot struct {
	Exam     exam.Exam      `json:"exam"`
	Attempts []attemptEntry `json:"attempts"`
}

type attemptEntry struct {
	exam.Attempt
	Answers []exam.Answer `json:"answers"`
}

// Archive snapshots the exam, marks the snapshotted attempts archived and
// deactivates the exam, all in one transaction.
func (a *Archiver) Archive(ctx context.Context, req Request) (Result, error) {
	if req.Reason == "" {
		req.Reason = ReasonManual
	}
	now := a.now().UTC().Truncate(time.Second)
	var res Result
	err := a.store.WithTx(ctx, func(r exam.Repository) error {
		ex, err := r.GetExam(ctx, req.ExamID)
		if err != nil {
			return err
		}
		if req.Actor != exam.SystemActor {
			if err := a.authz.AuthorizeStaff(ctx, r, req.Actor, ex, rbac.PermExamArchive); err != nil {
				return err
			}
		}
		if req.OnlyIfActive && !ex.IsActive {
			res = Result{Skipped: true}
			return nil
		}

		graded, err := r.ListAttempts(ctx, ex.ID, exam.StatusGraded)
		if err != nil {
			return err
		}
		snap := snapshot{Exam: ex, Attempts: make([]attemptEntry, 0, len(graded))}
		for _, at := range graded {
			answers, err := r.ListAnswers(ctx, at.ID)
			if err != nil {
				return err
			}
			snap.Attempts = append(snap.Attempts, attemptEntry{Attempt: at, Answers: answers})
		}
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encode archive payload: %w", err)
		}

		ar := exam.ArchivedExam{
			ID:         a.newID(),
			ExamID:     ex.ID,
			CourseID:   ex.CourseID,
			ExamName:   ex.Name,
			Payload:    payload,
			ArchivedBy: req.Actor.ID,
			Reason:     req.Reason,
			ArchivedAt: now,
		}
		if err := r.InsertArchive(ctx, ar); err != nil {
			return err
		}
		for _, at := range graded {
			next := at
			next.Status = exam.StatusArchived
			ok, err := r.UpdateAttempt(ctx, next, exam.StatusGraded)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("archive attempt %q: %w", at.ID, exam.ErrInvalidTransition)
			}
		}
		flipped, err := r.DeactivateExam(ctx, ex.ID)
		if err != nil {
			return err
		}
		if req.OnlyIfActive && !flipped {
			return fmt.Errorf("exam %q deactivated concurrently: %w", ex.ID, exam.ErrInvalidTransition)
		}
		res = Result{Archive: ar, Attempts: len(graded)}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if res.Skipped {
		return res, nil
	}

	res.ExportKey = a.export(ctx, res.Archive)
	a.log.Info("exam archived", "exam_id", req.ExamID, "archive_id", res.Archive.ID,
		"attempts", res.Attempts, "by", req.Actor.ID, "reason", req.Reason)
	a.audit.Record(ctx, audit.Entry{
		ActorID: req.Actor.ID, Action: audit.ActionArchiveExam,
		EntityType: "exam", EntityID: req.ExamID,
		New: map[string]any{"archive_id": res.Archive.ID, "reason": req.Reason},
	})
	return res, nil
}

// ExportKey is where an archive's payload is written in the blob store.
func ExportKey(ar exam.ArchivedExam) string {
	return "archives/" + ar.ExamID + "/" + ar.ID + ".json"
}

// export writes the payload to the blob store after commit. Failures are
// logged; the archive row is the record of truth.
func (a *Archiver) export(ctx context.Context, ar exam.ArchivedExam) string {
	if a.blobs == nil {
		return ""
	}
	key, err := a.blobs.Put(ctx, ExportKey(ar), bytes.NewReader(ar.Payload))
	if err != nil {
		a.log.Warn("archive export failed", "archive_id", ar.ID, "exam_id", ar.ExamID, "err", err)
		return ""
	}
	return key
}

// SweepReport counts the outcome of one sweep.
type SweepReport struct {
	Candidates int
	Archived   int
	Skipped    int
	Failed     int
}

// Sweep archives every still-active exam whose availability closed more than
// days ago. Exams are processed one at a time and a failure on one does not
// stop the rest.
func (a *Archiver) Sweep(ctx context.Context, days int) (SweepReport, error) {
	cutoff := a.now().UTC().AddDate(0, 0, -days)
	exams, err := a.store.ListArchivableExams(ctx, cutoff)
	if err != nil {
		return SweepReport{}, err
	}
	rep := SweepReport{Candidates: len(exams)}
	for _, ex := range exams {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res, err := a.Archive(ctx, Request{
			ExamID:       ex.ID,
			Actor:        exam.SystemActor,
			Reason:       ReasonAuto,
			OnlyIfActive: true,
		})
		switch {
		case err != nil:
			rep.Failed++
			a.log.Error("auto-archive failed", "exam_id", ex.ID, "err", err)
		case res.Skipped:
			rep.Skipped++
		default:
			rep.Archived++
		}
	}
	a.log.Info("archive sweep finished", "cutoff", cutoff, "candidates", rep.Candidates,
		"archived", rep.Archived, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, nil
}

// List returns an exam's archives, newest first. Payloads are omitted.
func (a *Archiver) List(ctx context.Context, examID string, actor exam.Actor) ([]exam.ArchivedExam, error) {
	ex, err := a.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := a.authz.AuthorizeStaff(ctx, a.store, actor, ex, rbac.PermAttemptViewAll); err != nil {
		return nil, err
	}
	list, err := a.store.ListArchives(ctx, examID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].ArchivedAt.After(list[j].ArchivedAt) })
	for i := range list {
		list[i].Payload = nil
	}
	return list, nil
}

// Open returns an archive's payload. The exported blob is preferred; the
// archive row is used when the blob is missing.
func (a *Archiver) Open(ctx context.Context, examID, archiveID string, actor exam.Actor) (io.ReadCloser, error) {
	ex, err := a.store.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := a.authz.AuthorizeStaff(ctx, a.store, actor, ex, rbac.PermAttemptViewAll); err != nil {
		return nil, err
	}
	list, err := a.store.ListArchives(ctx, examID)
	if err != nil {
		return nil, err
	}
	for _, ar := range list {
		if ar.ID != archiveID {
			continue
		}
		if a.blobs != nil {
			rc, err := a.blobs.Get(ctx, ExportKey(ar))
			if err == nil {
				return rc, nil
			}
			a.log.Debug("archive blob unavailable, serving stored payload", "archive_id", ar.ID, "err", err)
		}
		return io.NopCloser(bytes.NewReader(ar.Payload)), nil
	}
	return nil, fmt.Errorf("archive %q of exam %q: %w", archiveID, examID, exam.ErrNotFound)
}
