// Package api provides the HTTP server for the willpower engine.
// Every engine operation is exposed as JSON under /api/v1.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/willpower-app/willpower/internal/app/challenge"
	"github.com/willpower-app/willpower/internal/app/engagement"
	"github.com/willpower-app/willpower/internal/domain"
	"github.com/willpower-app/willpower/internal/health"
	"github.com/willpower-app/willpower/internal/infra/logger"
	"github.com/willpower-app/willpower/internal/infra/metrics"
)

// UserHeader carries the authenticated user id, set by the auth gateway in
// front of this server.
const UserHeader = "X-User-ID"

// Services are the engine components the API exposes.
type Services struct {
	Bank          *engagement.Bank
	Notifications *engagement.Notifications
	Challenges    *challenge.Service
	Buddies       *challenge.Coordinator
	Health        *health.Checker
}

// Server is the willpower HTTP API server.
type Server struct {
	svc            Services
	log            *zap.Logger
	metricsEnabled bool
	corsOrigins    []string
	limiter        *RateLimiter
	moderators     map[string]bool
}

// NewServer creates a new API server.
func NewServer(svc Services, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, log: log.Named("api"), corsOrigins: []string{"*"}}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetCORSOrigins restricts the allowed CORS origins ("*" allows any).
func (s *Server) SetCORSOrigins(origins []string) {
	if len(origins) > 0 {
		s.corsOrigins = origins
	}
}

// SetRateLimiter throttles mutating requests per user.
func (s *Server) SetRateLimiter(l *RateLimiter) { s.limiter = l }

// SetModerators lists the user ids allowed on the moderation routes. With
// none configured every moderation request is refused.
func (s *Server) SetModerators(ids []string) {
	s.moderators = make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s.moderators[id] = true
		}
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogContext)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.corsMiddleware)
	r.Use(observeLatency)

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireUser)
		if s.limiter != nil {
			r.Use(s.limiter.Handler)
		}

		r.Get("/me", s.handleSummary)
		r.Post("/habits", s.handleLogHabit)
		r.Post("/points", s.handleAwardPoints)

		r.Route("/challenges", func(r chi.Router) {
			r.Get("/", s.handleListChallenges)
			r.Post("/", s.handleCreateChallenge)
			r.Get("/active", s.handleActiveChallenge)
			r.Get("/{id}", s.handleGetChallenge)
			r.Delete("/{id}", s.handleDeleteChallenge)
			r.Post("/{id}/milestones/{day}/check-in", s.handleCheckIn)
			r.Post("/{id}/complete", s.handleCompleteChallenge)
			r.Post("/{id}/cancel", s.handleCancelChallenge)
			r.Post("/{id}/archive", s.handleArchiveChallenge)
		})

		r.Get("/stats/repeats", s.handleRepeatStats)

		r.Route("/buddies", func(r chi.Router) {
			r.Get("/", s.handleListBuddies)
			r.Post("/", s.handleInviteBuddy)
			r.Get("/{id}", s.handleGetBuddy)
			r.Post("/{id}/accept", s.handleAcceptBuddy)
			r.Post("/{id}/decline", s.handleDeclineBuddy)
			r.Post("/{id}/nudge", s.handleNudge)
			r.Post("/{id}/settle", s.handleSettleBuddy)
			r.Get("/{id}/partner", s.handlePartnerProgress)
		})
		r.Get("/duo-streaks/{partnerId}", s.handleDuoStreak)

		r.Get("/notifications", s.handleNotifications)
		r.Post("/notifications/{id}/shown", s.handleNotificationShown)
		r.Post("/devices", s.handleRegisterDevice)

		r.Route("/templates", func(r chi.Router) {
			r.Post("/", s.handleSubmitTemplate)
			r.Get("/{id}", s.handleGetTemplate)
		})

		r.Route("/moderation", func(r chi.Router) {
			r.Use(s.requireModerator)
			r.Post("/templates/{id}/status", s.handleTemplateStatus)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	checks := s.svc.Health.CheckNow(r.Context())
	status, code := "ok", http.StatusOK
	for _, c := range checks {
		if !c.Healthy {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requestLogContext copies chi's request id where logger.WithRequestID finds it.
func requestLogContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(logger.ContextWithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// observeLatency records request duration by route pattern.
func observeLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		metrics.APILatency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// requireUser rejects requests without a user id.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID(r) == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
				Kind:    "unauthenticated",
				Message: UserHeader + " header is required",
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireModerator admits only configured moderators.
func (s *Server) requireModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.moderators[userID(r)] {
			s.writeError(w, r, domain.ErrNotModerator)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

// corsMiddleware adds CORS headers for browser clients.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserHeader)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.corsOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}
