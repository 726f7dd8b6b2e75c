package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"budgetly/internal/charts"
	"budgetly/internal/core"
	"budgetly/internal/dashboard"
	"budgetly/internal/log"
	"budgetly/internal/validate"
)

type dashboardPage struct {
	Greeting        string
	User            core.User
	Today           string
	Categories      []core.Category
	DefaultCategory core.Category
	View            dashboard.View
}

// handleDashboard renders the full dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r.Context())
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	now := s.now()
	view := sess.Dashboard.View()
	data := dashboardPage{
		Greeting:        dashboard.Greeting(now),
		User:            view.User,
		Today:           core.DateOf(now).String(),
		Categories:      core.Categories(),
		DefaultCategory: core.DefaultCategory,
		View:            view,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Dashboard template execution failed",
			log.FieldError, err, "template", "dashboard.html")
	}
}

// handleSummary renders the derived-state partial.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.renderSummary(w, r)
}

func (s *Server) renderSummary(w http.ResponseWriter, r *http.Request) {
	body, err := s.summaryHTML(r)
	if err != nil {
		InternalServerError("Could not render the summary.").Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(string(body)).Write(w)
}

// summaryHTML renders the summary partial for the request's session.
func (s *Server) summaryHTML(r *http.Request) ([]byte, error) {
	if s.templates == nil {
		return nil, errors.New("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "summary", currentSession(r.Context()).Dashboard.View()); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Summary template execution failed",
			log.FieldError, err, "template", "summary")
		return nil, err
	}
	return buf.Bytes(), nil
}

// handleFilter applies a filter form submission and re-renders the summary.
// The mode switch happens first; year and month are only applied when their
// selector is visible in the resulting mode.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	sess := currentSession(r.Context())

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request").Write(w)
		return
	}
	params, err := ParseFilterParams(parser.Values())
	if err != nil {
		UnprocessableEntityError("Please choose a valid period.").Write(w)
		return
	}

	d := sess.Dashboard
	if params.Mode != "" {
		if err := d.Select(string(params.Mode)); err != nil {
			s.filterFailed(w, r, err)
			return
		}
	}
	view := d.View()
	if params.Year != nil && view.YearSelectorVisible && *params.Year != view.Year {
		if err := d.SetYear(*params.Year); err != nil {
			s.filterFailed(w, r, err)
			return
		}
	}
	if params.Month != nil && view.MonthSelectorVisible && *params.Month != view.Month {
		if err := d.SetMonth(*params.Month); err != nil {
			s.filterFailed(w, r, err)
			return
		}
	}

	logger.DebugContext(r.Context(), "Filter changed", log.FieldPeriod, d.View().Summary.Period.String())
	s.renderSummary(w, r)
}

func (s *Server) filterFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, dashboard.ErrClosed) {
		NewHTMXResponse().Header("HX-Redirect", "/").Status(http.StatusUnauthorized).Write(w)
		return
	}
	log.FromContext(r.Context()).WarnContext(r.Context(), "Filter rejected", log.FieldError, err)
	UnprocessableEntityError("Please choose a valid period.").Write(w)
}

// handleUpdateBudget validates and saves a new budget. The summary refreshes
// from the pushed snapshot.
func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r.Context())

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request").Write(w)
		return
	}
	raw := parser.Get("budget")

	if err := sess.Dashboard.SetBudget(r.Context(), raw); err != nil {
		s.writeFailed(w, r, err, "Could not update the budget. Please try again.")
		return
	}

	s.appMetrics.budgetUpdates.Add(1)
	view := sess.Dashboard.View()

	SuccessResponse("Budget updated to "+core.FormatMoney(view.Summary.Budget)).
		TriggerBudgetUpdated(core.FormatAmount(view.Summary.Budget)).
		TriggerSummaryRefresh(view.Version).
		Write(w)
}

// writeFailed maps a dashboard write error onto the inline message.
// Validation messages are shown verbatim; gateway failures get fallback.
func (s *Server) writeFailed(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if msg, ok := validate.Message(err); ok {
		UnprocessableEntityError(msg).Write(w)
		return
	}
	if errors.Is(err, dashboard.ErrClosed) {
		NewHTMXResponse().Header("HX-Redirect", "/").Status(http.StatusUnauthorized).Write(w)
		return
	}
	// The dashboard already logged the gateway failure.
	log.FromContext(r.Context()).DebugContext(r.Context(), "Write rejected", log.FieldError, err)
	InternalServerError(fallback).TriggerErrorNotification(fallback).Write(w)
}

// handleCategoryChart serves the category breakdown as a PNG. An empty
// period has nothing to draw and gets 204.
func (s *Server) handleCategoryChart(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r.Context())

	kind, err := charts.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view := sess.Dashboard.View()
	png, err := s.charts.Render(charts.CacheKey(sess.Token, view.Version, kind), kind, view.Summary.Shares())
	if errors.Is(err, charts.ErrNoData) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.events.LogError(r.Context(), "Chart rendering failed", err, log.ComponentCharts, log.OpRender,
			log.NewFields().WithUser(sess.User.ID))
		http.Error(w, "chart unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	_, _ = w.Write(png)
}
