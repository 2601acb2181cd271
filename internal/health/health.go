// Package health records liveness heartbeats for the server, its database
// and connected clients.
package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mind-engage/mindengage-exams/internal/clock"
)

const (
	ComponentServer   = "server"
	ComponentDatabase = "database"
	ComponentClient   = "client"

	StatusUp   = "up"
	StatusDown = "down"
)

var ErrNoHeartbeat = errors.New("no heartbeat recorded")

type Heartbeat struct {
	ID        int64     `json:"id"`
	Component string    `json:"component"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"timestamp"`
}

type Recorder interface {
	Record(ctx context.Context, hb Heartbeat) error
	Latest(ctx context.Context, component string) (Heartbeat, error)
}

// Monitor runs the probes. Probes never return errors: a failure becomes a
// "down" heartbeat.
type Monitor struct {
	rec Recorder
	db  *sql.DB
	now clock.Clock
	log *slog.Logger
}

func NewMonitor(rec Recorder, db *sql.DB, now clock.Clock, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{rec: rec, db: db, now: clock.OrSystem(now), log: log}
}

func (m *Monitor) record(ctx context.Context, component, status, msg string) Heartbeat {
	hb := Heartbeat{Component: component, Status: status, Message: msg, CreatedAt: m.now().UTC().Truncate(time.Second)}
	if err := m.rec.Record(ctx, hb); err != nil {
		m.log.Error("heartbeat not recorded", "component", component, "err", err)
		if status == StatusUp {
			hb.Status = StatusDown
			hb.Message = fmt.Sprintf("%s error: %v", component, err)
		}
	}
	return hb
}

// Server records that the process is alive. It reports down only when the
// heartbeat itself cannot be written.
func (m *Monitor) Server(ctx context.Context) Heartbeat {
	return m.record(ctx, ComponentServer, StatusUp, "Server is running")
}

// Database runs SELECT 1 against the database.
func (m *Monitor) Database(ctx context.Context) Heartbeat {
	var one int
	err := m.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
	if err == nil && one != 1 {
		err = fmt.Errorf("unexpected probe result %d", one)
	}
	if err != nil {
		m.log.Warn("database probe failed", "err", err)
		return m.record(ctx, ComponentDatabase, StatusDown, "Database error: "+err.Error())
	}
	return m.record(ctx, ComponentDatabase, StatusUp, "Database is responsive")
}

// Client records a heartbeat sent by a client browser.
func (m *Monitor) Client(ctx context.Context, clientIP string) Heartbeat {
	return m.record(ctx, ComponentClient, StatusUp, "Client "+clientIP+" last seen")
}

// Latest returns the newest heartbeat for a component.
func (m *Monitor) Latest(ctx context.Context, component string) (Heartbeat, error) {
	return m.rec.Latest(ctx, component)
}

// SQLRecorder stores heartbeats in the heartbeats table.
type SQLRecorder struct{ db *sql.DB }

func NewSQLRecorder(db *sql.DB) *SQLRecorder { return &SQLRecorder{db: db} }

func (r *SQLRecorder) Record(ctx context.Context, hb Heartbeat) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO heartbeats (component, status, message, created_at) VALUES ($1,$2,$3,$4)`,
		hb.Component, hb.Status, hb.Message, hb.CreatedAt.Unix())
	return err
}

func (r *SQLRecorder) Latest(ctx context.Context, component string) (Heartbeat, error) {
	var (
		hb Heartbeat
		at int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, component, status, message, created_at FROM heartbeats
		 WHERE component=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, component).
		Scan(&hb.ID, &hb.Component, &hb.Status, &hb.Message, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Heartbeat{}, fmt.Errorf("%s: %w", component, ErrNoHeartbeat)
	}
	if err != nil {
		return Heartbeat{}, err
	}
	hb.CreatedAt = time.Unix(at, 0).UTC()
	return hb, nil
}
