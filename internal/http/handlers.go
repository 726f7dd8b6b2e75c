package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"budgetly/internal/gateway"
	"budgetly/internal/log"
	"budgetly/internal/middleware/trace"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"timestamp":  s.now().Format(time.RFC3339),
		"uptime":     s.now().Sub(s.appMetrics.uptime).Round(time.Second).String(),
		"request_id": trace.GetRequestID(r.Context()),
	})
}

// handleReady checks templates and the data backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.ready == nil:
		checks["backend"] = "ok"
	default:
		if err := s.ready(ctx); err != nil {
			checks["backend"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["backend"] = "ok"
		}
	}

	if s.sessions != nil {
		checks["sessions"] = map[string]any{"active": s.sessions.Count()}
	}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	chartStats := s.chartLRU.Stats()
	activeSessions := 0
	if s.sessions != nil {
		activeSessions = s.sessions.Count()
	}

	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_requests_in_flight", "gauge", "Requests currently being served", traceMetrics.InFlight)
	metric("expenses_created_total", "counter", "Expenses created through the UI", s.appMetrics.expensesCreated.Load())
	metric("expenses_deleted_total", "counter", "Expenses deleted through the UI", s.appMetrics.expensesDeleted.Load())
	metric("budget_updates_total", "counter", "Budget updates through the UI", s.appMetrics.budgetUpdates.Load())
	metric("active_sessions", "gauge", "Signed-in sessions", activeSessions)
	metric("chart_cache_hits_total", "counter", "Chart cache hits", chartStats.Hits)
	metric("chart_cache_misses_total", "counter", "Chart cache misses", chartStats.Misses)
	metric("chart_cache_entries", "gauge", "Cached chart images", chartStats.Size)
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", s.now().Sub(s.appMetrics.uptime).Seconds()))
}

type indexData struct {
	Email string
	Error string
}

// handleIndex shows the sign-in page, or forwards a signed-in browser to
// the dashboard.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.sessionFrom(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	s.renderIndex(w, r, http.StatusOK, indexData{})
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request, status int, data indexData) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			log.FieldPath, r.URL.Path,
			"error_type", log.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Index template execution failed",
			log.FieldError, err, "template", "index.html")
	}
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		s.renderIndex(w, r, http.StatusBadRequest, indexData{Error: "Authentication Failed: invalid request"})
		return
	}
	email := sanitizeInput(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	if s.sessions == nil {
		s.renderIndex(w, r, http.StatusServiceUnavailable, indexData{Email: email, Error: "Authentication Failed: sign-in is unavailable"})
		return
	}

	sess, err := s.sessions.SignIn(r.Context(), email, password)
	if err != nil {
		var authErr *gateway.AuthError
		msg := "could not start a session"
		status := http.StatusInternalServerError
		if errors.As(err, &authErr) {
			msg = authErr.Message
			status = http.StatusUnauthorized
		}
		logger.WarnContext(r.Context(), "Sign-in failed",
			log.FieldOperation, log.OpSignIn,
			log.FieldError, err)
		s.renderIndex(w, r, status, indexData{Email: email, Error: "Authentication Failed: " + msg})
		return
	}

	s.setSessionCookie(w, sess.Token)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" && s.sessions != nil {
		if err := s.sessions.End(r.Context(), c.Value); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Sign-out failed",
				log.FieldOperation, log.OpSignOut,
				log.FieldError, err)
		}
		s.charts.Forget(c.Value)
	}
	s.clearSessionCookie(w)

	if isHTMX(r) {
		NewHTMXResponse().Header("HX-Redirect", "/").Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
