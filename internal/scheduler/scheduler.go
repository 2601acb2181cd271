// Package scheduler runs background jobs on fixed triggers for the life of
// the process. A job still running when its next trigger fires is skipped
// for that tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-exams/internal/clock"
)

// Trigger yields the next fire time strictly after t.
type Trigger interface {
	Next(t time.Time) time.Time
}

type every time.Duration

// Every fires at a fixed interval from the previous fire.
func Every(d time.Duration) Trigger {
	if d <= 0 {
		panic("scheduler: non-positive interval")
	}
	return every(d)
}

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

type dailyAt struct{ hour, minute int }

// DailyAt fires once a day at hour:minute in the clock's location.
func DailyAt(hour, minute int) Trigger {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		panic(fmt.Sprintf("scheduler: bad time of day %02d:%02d", hour, minute))
	}
	return dailyAt{hour, minute}
}

func (d dailyAt) Next(t time.Time) time.Time {
	n := time.Date(t.Year(), t.Month(), t.Day(), d.hour, d.minute, 0, 0, t.Location())
	if !n.After(t) {
		n = n.AddDate(0, 0, 1)
	}
	return n
}

type Job struct {
	Name    string
	Trigger Trigger
	Run     func(ctx context.Context) error
}

// Stats counts a job's activity since Start.
type Stats struct {
	Runs    int64
	Failed  int64
	Skipped int64
}

type entry struct {
	Job
	running atomic.Bool
	runs    atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

type Scheduler struct {
	now clock.Clock
	log *slog.Logger

	mu      sync.Mutex
	jobs    []*entry
	cancel  context.CancelFunc
	group   *errgroup.Group
	running sync.WaitGroup
}

func New(now clock.Clock, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{now: clock.OrSystem(now), log: log}
}

var ErrStarted = errors.New("scheduler already started")

// Add registers a job. Jobs must be added before Start.
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" || j.Trigger == nil || j.Run == nil {
		return fmt.Errorf("scheduler: job %q needs a name, trigger and run func", j.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrStarted
	}
	for _, e := range s.jobs {
		if e.Name == j.Name {
			return fmt.Errorf("scheduler: duplicate job %q", j.Name)
		}
	}
	s.jobs = append(s.jobs, &entry{Job: j})
	return nil
}

// Start launches one loop per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrStarted
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)
	for _, e := range s.jobs {
		e := e
		s.group.Go(func() error { return s.loop(ctx, e) })
	}
	s.log.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels all loops and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, g := s.cancel, s.group
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	_ = g.Wait()
	s.running.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) Stats(name string) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.jobs {
		if e.Name == name {
			return Stats{Runs: e.runs.Load(), Failed: e.failed.Load(), Skipped: e.skipped.Load()}, true
		}
	}
	return Stats{}, false
}

func (s *Scheduler) loop(ctx context.Context, e *entry) error {
	for {
		now := s.now()
		next := e.Trigger.Next(now)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if !e.running.CompareAndSwap(false, true) {
			e.skipped.Add(1)
			s.log.Warn("job still running, skipping tick", "job", e.Name)
			continue
		}
		s.running.Add(1)
		go s.run(ctx, e)
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	defer s.running.Done()
	defer e.running.Store(false)
	defer func() {
		if p := recover(); p != nil {
			e.failed.Add(1)
			s.log.Error("job panicked", "job", e.Name, "panic", p)
		}
	}()
	start := time.Now()
	err := e.Run(ctx)
	e.runs.Add(1)
	if err != nil {
		e.failed.Add(1)
		s.log.Error("job failed", "job", e.Name, "err", err, "took", time.Since(start))
		return
	}
	s.log.Debug("job done", "job", e.Name, "took", time.Since(start))
}
