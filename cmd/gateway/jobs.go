package main

import (
	"context"
	"log/slog"

	"github.com/mind-engage/mindengage-exams/internal/archive"
	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/health"
	"github.com/mind-engage/mindengage-exams/internal/scheduler"
)

// backgroundJobs lists the periodic work: heartbeats, the nightly archive
// sweep and, unless disabled, the stale attempt sweep.
func backgroundJobs(cfg config.Config, mon *health.Monitor, arch *archive.Archiver, svc *exam.Service, log *slog.Logger) []scheduler.Job {
	jobs := []scheduler.Job{
		{
			Name:    "server-heartbeat",
			Trigger: scheduler.Every(cfg.HeartbeatInterval),
			Run: func(ctx context.Context) error {
				mon.Server(ctx)
				return nil
			},
		},
		{
			Name:    "database-heartbeat",
			Trigger: scheduler.Every(cfg.HeartbeatInterval),
			Run: func(ctx context.Context) error {
				mon.Database(ctx)
				return nil
			},
		},
		{
			Name:    "archive-sweep",
			Trigger: scheduler.DailyAt(cfg.ArchiveHour, 0),
			Run: func(ctx context.Context) error {
				rep, err := arch.Sweep(ctx, cfg.ArchiveDays)
				log.Info("archive sweep", "candidates", rep.Candidates, "archived", rep.Archived,
					"skipped", rep.Skipped, "failed", rep.Failed)
				return err
			},
		},
	}
	if cfg.ExpireSweepInterval > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:    "expire-overdue",
			Trigger: scheduler.Every(cfg.ExpireSweepInterval),
			Run: func(ctx context.Context) error {
				n, err := svc.ExpireOverdue(ctx)
				if n > 0 {
					log.Info("overdue attempts submitted", "count", n)
				}
				return err
			},
		})
	}
	return jobs
}
