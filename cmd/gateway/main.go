package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mind-engage/mindengage-exams/internal/api/http"
	"github.com/mind-engage/mindengage-exams/internal/archive"
	"github.com/mind-engage/mindengage-exams/internal/audit"
	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/health"
	"github.com/mind-engage/mindengage-exams/internal/logging"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/scheduler"
	"github.com/mind-engage/mindengage-exams/internal/storage"
)

func main() {
	cfg := config.FromEnv()

	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("logger", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return err
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, driver, cfg.DBDSN)
	cancel()
	if err != nil {
		return err
	}
	defer dbh.Close()

	// --- Domain ---
	checker := rbac.NewChecker(nil)
	auditRec := audit.NewRecorder(audit.NewSQLSink(dbh), log, nil)
	store := exam.NewSQLStore(dbh)
	svc := exam.NewService(store,
		exam.WithAudit(auditRec),
		exam.WithChecker(checker),
		exam.WithLogger(log),
	)
	blobs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return err
	}
	arch := archive.New(store, svc,
		archive.WithBlobStore(blobs),
		archive.WithAudit(auditRec),
		archive.WithLogger(log),
	)
	mon := health.NewMonitor(health.NewSQLRecorder(dbh), dbh, nil, log)

	// --- Scheduler ---
	sched := scheduler.New(nil, log)
	for _, j := range backgroundJobs(cfg, mon, arch, svc, log) {
		if err := sched.Add(j); err != nil {
			return err
		}
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, api.TrustProxies(cfg.TrustedProxies), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	api.Mount(r, api.Deps{
		Exams:    svc,
		Archiver: arch,
		Health:   mon,
		Auth:     auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL),
		Login: auth.LoginConfig{
			AdminUser:     cfg.AdminUser,
			AdminPassHash: cfg.AdminPassHash,
			AllowDevLogin: cfg.Mode == config.ModeOffline,
		},
		Checker: checker,
		Log:     log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShut()
	return srv.Shutdown(shutCtx)
}
