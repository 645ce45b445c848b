/*
handlers.go - HTTP API handlers for the benefits portal core

PURPOSE:
  Exposes the application lifecycle and approval engine via REST. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Applications:
    POST   /api/applications                 Submit an application
    GET    /api/applications                 List (filter by citizen/status)
    GET    /api/applications/{id}            Get one application
    POST   /api/applications/{id}/resubmit   Resubmit a rejected application
    POST   /api/applications/{id}/approve    Approve with amount (admin)
    POST   /api/applications/{id}/reject     Reject with reason (admin)

  Budgets:
    GET    /api/budgets                      List configured budgets
    GET    /api/budgets/{year}/{month}       Get one allocation
    PUT    /api/budgets/{year}/{month}       Set/amend allocation (admin)
    GET    /api/budgets/{year}/{month}/status Allocation/committed/remaining

  Audit:
    GET    /api/audit                        Query the audit trail

  Notices:
    GET    /api/citizens/{id}/notices        In-app notifications

ERROR HANDLING:
  Errors are returned as JSON with a machine-readable code:
  - 400 bad_request:        Malformed input
  - 404 not_found:          Unknown application
  - 409 invalid_state:      Decision on a non-pending application
  - 409 conflict:           Concurrent submission/decision race
  - 422 no_budget:          No allocation for the decision period
  - 422 insufficient_funds: Requested amount exceeds remaining balance
                            (response carries the exact remaining balance)

IDENTITY:
  Authentication is an external collaborator. The acting administrator is
  taken from X-Actor-ID / X-Actor-Role headers; the audit origin from the
  network origin of the request.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/aid-engine/engine"
	"github.com/warp/aid-engine/metrics"
	"github.com/warp/aid-engine/notify"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *engine.Engine
	Store   engine.TxStore
	Notices notify.NoticeStore
}

// NewHandler creates a new handler.
func NewHandler(eng *engine.Engine, store engine.TxStore, notices notify.NoticeStore) *Handler {
	return &Handler{Engine: eng, Store: store, Notices: notices}
}

// =============================================================================
// APPLICATION HANDLERS
// =============================================================================

// SubmitApplication creates a new pending application for a citizen.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req SubmitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err)
		return
	}
	if req.CitizenID == "" || req.Program == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "citizen_id and program are required", nil)
		return
	}

	app, err := h.Engine.Submit(r.Context(), engine.SubmitInput{
		CitizenID:    engine.CitizenID(req.CitizenID),
		Program:      req.Program,
		Details:      req.Details,
		DocumentRefs: req.DocumentRefs,
		Origin:       requestOrigin(r),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toApplicationDTO(app))
}

// GetApplication returns a single application.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := applicationID(w, r)
	if !ok {
		return
	}

	app, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// ListApplications returns applications, optionally filtered by citizen_id,
// status, or program query parameters.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	var filter engine.ApplicationFilter
	if v := r.URL.Query().Get("citizen_id"); v != "" {
		cid := engine.CitizenID(v)
		filter.CitizenID = &cid
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := engine.Status(v)
		if !status.IsValid() {
			writeError(w, http.StatusBadRequest, "bad_request", "Unknown status filter", nil)
			return
		}
		filter.Status = &status
	}
	if v := r.URL.Query().Get("program"); v != "" {
		filter.Program = &v
	}

	apps, err := h.Engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to list applications", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// ResubmitApplication returns a rejected application to pending.
func (h *Handler) ResubmitApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := applicationID(w, r)
	if !ok {
		return
	}

	var req ResubmitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err)
		return
	}

	app, err := h.Engine.Resubmit(r.Context(), id, engine.ResubmitInput{
		Details:      req.Details,
		DocumentRefs: req.DocumentRefs,
		Origin:       requestOrigin(r),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// =============================================================================
// DECISION HANDLERS
// =============================================================================

// ApproveApplication approves a pending application with a disbursement
// amount, validated against the current period's remaining budget.
func (h *Handler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := applicationID(w, r)
	if !ok {
		return
	}

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err)
		return
	}
	amount, err := engine.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid amount (use a decimal string)", err)
		return
	}

	app, err := h.Engine.Approve(r.Context(), id, amount, requestActor(r), requestOrigin(r))
	metrics.DecisionRecorded("approve", outcomeLabel(err))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// RejectApplication rejects a pending application with a reason.
func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := applicationID(w, r)
	if !ok {
		return
	}

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Rejection reason is required", nil)
		return
	}

	app, err := h.Engine.Reject(r.Context(), id, req.Reason, requestActor(r), requestOrigin(r))
	metrics.DecisionRecorded("reject", outcomeLabel(err))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

// ListBudgets returns all configured monthly budgets.
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.Store.ListBudgets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to list budgets", err)
		return
	}
	dtos := make([]BudgetDTO, len(budgets))
	for i, b := range budgets {
		dtos[i] = toBudgetDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBudget returns the allocation for one period.
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	period, ok := budgetPeriod(w, r)
	if !ok {
		return
	}

	budget, err := h.Store.GetBudget(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to get budget", err)
		return
	}
	if budget == nil {
		writeError(w, http.StatusNotFound, "no_budget", "No budget configured for "+period.String(), nil)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(*budget))
}

// SetBudget creates or amends the allocation for one period.
func (h *Handler) SetBudget(w http.ResponseWriter, r *http.Request) {
	period, ok := budgetPeriod(w, r)
	if !ok {
		return
	}

	var req SetBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err)
		return
	}
	amount, err := engine.ParseAmount(req.Allocated)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid allocation (use a decimal string)", err)
		return
	}

	budget, err := h.Engine.SetBudget(r.Context(), period, amount, requestActor(r), requestOrigin(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(*budget))
}

// GetBudgetStatus returns allocated/committed/remaining for one period.
func (h *Handler) GetBudgetStatus(w http.ResponseWriter, r *http.Request) {
	period, ok := budgetPeriod(w, r)
	if !ok {
		return
	}

	status, err := h.Engine.BudgetStatus(r.Context(), period)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BudgetStatusDTO{
		Year:      status.Period.Year,
		Month:     int(status.Period.Month),
		Allocated: status.Allocated.String(),
		Committed: status.Committed.String(),
		Remaining: status.Remaining.String(),
	})
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// QueryAudit returns audit entries, optionally filtered by application_id,
// actor_id, or action query parameters.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	var filter engine.AuditFilter
	if v := r.URL.Query().Get("application_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Invalid application_id", err)
			return
		}
		id := engine.ApplicationID(n)
		filter.ApplicationID = &id
	}
	if v := r.URL.Query().Get("actor_id"); v != "" {
		filter.ActorID = &v
	}
	if v := r.URL.Query().Get("action"); v != "" {
		filter.Actions = []engine.AuditAction{engine.AuditAction(v)}
	}

	entries, err := h.Engine.Audit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to query audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// NOTICE HANDLERS
// =============================================================================

// ListNotices returns a citizen's in-app notifications, newest first.
func (h *Handler) ListNotices(w http.ResponseWriter, r *http.Request) {
	citizenID := engine.CitizenID(chi.URLParam(r, "id"))

	notices, err := h.Notices.ListNotices(r.Context(), citizenID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to list notices", err)
		return
	}
	dtos := make([]NoticeDTO, len(notices))
	for i, n := range notices {
		dtos[i] = toNoticeDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func applicationID(w http.ResponseWriter, r *http.Request) (engine.ApplicationID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid application id", err)
		return 0, false
	}
	return engine.ApplicationID(n), true
}

func budgetPeriod(w http.ResponseWriter, r *http.Request) (engine.Period, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid year", err)
		return engine.Period{}, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid month", err)
		return engine.Period{}, false
	}
	period := engine.Period{Year: year, Month: time.Month(month)}
	if !period.IsValid() {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid period", nil)
		return engine.Period{}, false
	}
	return period, true
}

// requestActor reads the acting identity placed by the auth collaborator.
func requestActor(r *http.Request) engine.Actor {
	actor := engine.Actor{
		ID:   r.Header.Get("X-Actor-ID"),
		Role: engine.ActorRole(r.Header.Get("X-Actor-Role")),
	}
	if actor.ID == "" {
		actor.ID = "unknown"
	}
	if actor.Role == "" {
		actor.Role = engine.RoleAdmin
	}
	return actor
}

// requestOrigin returns the network origin recorded in audit entries.
func requestOrigin(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrApplicationNotFound):
		return "not_found"
	case errors.Is(err, engine.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, engine.ErrNoBudget):
		return "no_budget"
	case errors.Is(err, engine.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, engine.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// writeEngineError maps domain errors to HTTP responses with enough
// structured detail for the UI to explain why.
func writeEngineError(w http.ResponseWriter, err error) {
	var ife *engine.InsufficientFundsError
	if errors.As(err, &ife) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:     err.Error(),
			Code:      "insufficient_funds",
			Remaining: ife.Remaining.String(),
		})
		return
	}

	switch {
	case errors.Is(err, engine.ErrApplicationNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Application not found", err)
	case errors.Is(err, engine.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", "Application is not in a state that allows this action", err)
	case errors.Is(err, engine.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "Concurrent change detected", err)
	case errors.Is(err, engine.ErrNoBudget):
		writeError(w, http.StatusUnprocessableEntity, "no_budget", "No budget configured for the current period; set a budget first", err)
	case errors.Is(err, engine.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid amount", err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
