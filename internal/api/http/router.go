// Package http exposes the exam lifecycle over JSON/HTTP using chi.
package http

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mind-engage/mindengage-exams/internal/archive"
	"github.com/mind-engage/mindengage-exams/internal/audit"
	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/health"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

type Deps struct {
	Exams    *exam.Service
	Archiver *archive.Archiver
	Health   *health.Monitor
	Auth     *auth.AuthService
	Login    auth.LoginConfig
	Checker  *rbac.Checker
	Log      *slog.Logger
}

type handler struct {
	exams    *exam.Service
	archiver *archive.Archiver
	health   *health.Monitor
	log      *slog.Logger
}

// Mount registers every route on r. Callers add transport middleware
// (request ids, CORS, recovery) before calling it.
func Mount(r chi.Router, d Deps) {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	h := &handler{exams: d.Exams, archiver: d.Archiver, health: d.Health, log: d.Log}
	g := rbac.NewGuard(d.Checker)

	r.Use(RequestMeta)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Login, d.Log))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		pr.With(g.Require(rbac.PermExamCreate)).Put("/exams", h.putExam)
		pr.Post("/enrollments", h.enroll)

		pr.Route("/exams/{examID}", func(er chi.Router) {
			er.With(g.Require(rbac.PermAttemptCreate)).Post("/attempts", h.startAttempt)
			er.With(g.Require(rbac.PermAttemptViewAll)).Get("/attempts", h.listAttempts)
			er.With(g.Require(rbac.PermExamArchive)).Post("/archive", h.archiveExam)
			er.With(g.Require(rbac.PermAttemptViewAll)).Get("/archives", h.listArchives)
			er.With(g.Require(rbac.PermAttemptViewAll)).Get("/archives/{archiveID}", h.downloadArchive)
		})

		pr.Route("/attempts/{attemptID}", func(ar chi.Router) {
			ar.With(g.Require(rbac.PermAttemptSubmit)).Post("/submit", h.submitAttempt)
			ar.With(g.Require(rbac.PermAttemptGrade)).Post("/auto-grade", h.autoGrade)
			ar.With(g.Require(rbac.PermAttemptGrade)).Post("/grades", h.gradeManually)
			ar.With(g.RequireAny(rbac.PermResultsViewOwn, rbac.PermAttemptViewAll)).Get("/results", h.results)
		})

		pr.With(g.Require(rbac.PermHeartbeat)).Post("/heartbeats/client", h.clientHeartbeat)
		pr.With(g.Require(rbac.PermHeartbeatView)).Get("/heartbeats/{component}", h.latestHeartbeat)
	})
}

// TrustProxies applies chi's RealIP only when the direct peer falls in
// trusted. Other callers keep their socket address, so forwarding headers
// cannot move a client onto an exam's IP allow-list.
func TrustProxies(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		forwarded := middleware.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if peerTrusted(trusted, r.RemoteAddr) {
				forwarded.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func peerTrusted(trusted []netip.Prefix, remoteAddr string) bool {
	if len(trusted) == 0 {
		return false
	}
	ap, err := netip.ParseAddrPort(remoteAddr)
	if err != nil {
		return false
	}
	addr := ap.Addr().Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RequestMeta stores the caller's address and user agent for audit entries.
// Run it after TrustProxies so forwarded addresses from known proxies count.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithMeta(r.Context(), audit.Meta{IP: clientIP(r), UserAgent: r.UserAgent()})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func actor(w http.ResponseWriter, r *http.Request) (exam.Actor, bool) {
	a, ok := auth.ActorFromContext(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
	}
	return a, ok
}
