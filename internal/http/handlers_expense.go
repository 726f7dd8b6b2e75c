package http

import (
	"errors"
	"net/http"
	"strings"

	"budgetly/internal/core"
	"budgetly/internal/gateway"
	"budgetly/internal/log"
)

// handleCreateExpense validates the entry form and adds the expense. A
// validation failure answers 422 with the single message and nothing is
// written.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r.Context())

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Parse form error",
			log.FieldOperation, log.OpParse,
			log.FieldError, err)
		BadRequestError("Invalid request").Write(w)
		return
	}
	raw := parser.RawExpense()

	id, err := sess.Dashboard.AddExpense(r.Context(), raw)
	if err != nil {
		s.writeFailed(w, r, err, "Could not add the expense. Please try again.")
		return
	}

	s.appMetrics.expensesCreated.Add(1)
	amount, _ := core.ParseAmount(raw.Amount)

	view := sess.Dashboard.View()
	SuccessResponse("Added "+raw.Description+" ("+core.FormatMoney(amount)+")").
		TriggerExpenseCreated(id).
		TriggerFormReset().
		TriggerSummaryRefresh(view.Version).
		Write(w)
}

// handleDeleteExpense removes an expense and answers with the refreshed
// summary. The browser asks for confirmation before sending the request.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r.Context())
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		BadRequestError("Missing expense id").Write(w)
		return
	}

	if err := sess.Dashboard.DeleteExpense(r.Context(), id); err != nil {
		if errors.Is(err, gateway.ErrNotFound) {
			NotFoundError("That expense no longer exists.").Write(w)
			return
		}
		s.writeFailed(w, r, err, "Could not delete the expense. Please try again.")
		return
	}

	s.appMetrics.expensesDeleted.Add(1)

	body, err := s.summaryHTML(r)
	if err != nil {
		InternalServerError("Could not refresh the summary.").Write(w)
		return
	}
	NewHTMXResponse().
		BodyHTML(string(body)).
		TriggerExpenseDeleted(id).
		TriggerSuccessNotification("Expense deleted").
		Write(w)
}
