package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/archive"
	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/health"
	"github.com/mind-engage/mindengage-exams/internal/logging"
)

func TestBackgroundJobs(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:gateway_jobs?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	log := logging.Discard()
	store := exam.NewSQLStore(conn)
	svc := exam.NewService(store, exam.WithLogger(log))
	arch := archive.New(store, svc, archive.WithLogger(log))
	mon := health.NewMonitor(health.NewSQLRecorder(conn), conn, nil, log)
	cfg := config.Config{HeartbeatInterval: 5 * time.Minute, ArchiveDays: 30, ArchiveHour: 2, ExpireSweepInterval: time.Minute}

	jobs := backgroundJobs(cfg, mon, arch, svc, log)
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name)
		require.NoError(t, j.Run(ctx), j.Name)
	}
	assert.Equal(t, []string{"server-heartbeat", "database-heartbeat", "archive-sweep", "expire-overdue"}, names)

	for _, c := range []string{health.ComponentServer, health.ComponentDatabase} {
		hb, err := mon.Latest(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, health.StatusUp, hb.Status)
	}

	cfg.ExpireSweepInterval = 0
	assert.Len(t, backgroundJobs(cfg, mon, arch, svc, log), 3)
}
