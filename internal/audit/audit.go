// Package audit records who did what to which entity. Recording is
// best-effort: a failing sink is logged and never fails the caller.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/clock"
)

const (
	ActionStartExam     = "start_exam"
	ActionSubmitExam    = "submit_exam"
	ActionAutoSubmit    = "auto_submit_exam"
	ActionGradeExam     = "grade_exam"
	ActionAutoGradeExam = "auto_grade_exam"
	ActionArchiveExam   = "archive_exam"
	ActionPutExam       = "put_exam"
)

type Entry struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Old        map[string]any
	New        map[string]any
	IP         string
	UserAgent  string
	CreatedAt  time.Time
}

type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// ---- request metadata in context ----

// Meta carries the originating request's address and agent.
type Meta struct {
	IP        string
	UserAgent string
}

type ctxKey struct{}

func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, ctxKey{}, m)
}

func MetaFromContext(ctx context.Context) Meta {
	if m, ok := ctx.Value(ctxKey{}).(Meta); ok {
		return m
	}
	return Meta{}
}

// Recorder stamps entries and forwards them to a Sink. A nil *Recorder
// discards everything.
type Recorder struct {
	sink Sink
	log  *slog.Logger
	now  clock.Clock
}

func NewRecorder(sink Sink, log *slog.Logger, now clock.Clock) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{sink: sink, log: log, now: clock.OrSystem(now)}
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.sink == nil {
		return
	}
	m := MetaFromContext(ctx)
	if e.IP == "" {
		e.IP = m.IP
	}
	if e.UserAgent == "" {
		e.UserAgent = m.UserAgent
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	if err := r.sink.Append(ctx, e); err != nil {
		r.log.Warn("audit append failed",
			"action", e.Action, "entity_type", e.EntityType, "entity_id", e.EntityID, "err", err)
	}
}

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *MemorySink) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Reset drops every entry kept so far.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
}

func encodeValues(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
