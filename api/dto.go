/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Monetary values cross the wire as decimal strings ("1500.00"), never
  floats. The remaining balance reported on an insufficient-funds rejection
  must be exact.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/aid-engine/engine"
	"github.com/warp/aid-engine/notify"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ApplicationDTO represents an aid application in API responses.
type ApplicationDTO struct {
	ID             int64             `json:"id"`
	CitizenID      string            `json:"citizen_id"`
	Program        string            `json:"program"`
	Details        map[string]string `json:"details,omitempty"`
	DocumentRefs   []string          `json:"document_refs,omitempty"`
	Status         string            `json:"status"`
	AmountReleased *string           `json:"amount_released,omitempty"`
	ApprovedAt     *string           `json:"approved_at,omitempty"`
	Remarks        string            `json:"remarks,omitempty"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
}

// SubmitApplicationRequest is the request to submit a new application.
type SubmitApplicationRequest struct {
	CitizenID    string            `json:"citizen_id"`
	Program      string            `json:"program"`
	Details      map[string]string `json:"details,omitempty"`
	DocumentRefs []string          `json:"document_refs,omitempty"`
}

// ResubmitApplicationRequest overwrites details/documents of a rejected
// application and returns it to pending.
type ResubmitApplicationRequest struct {
	Details      map[string]string `json:"details,omitempty"`
	DocumentRefs []string          `json:"document_refs,omitempty"`
}

// ApproveRequest is the request to approve a pending application.
type ApproveRequest struct {
	Amount string `json:"amount"`
}

// RejectRequest is the request to reject a pending application.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// BudgetDTO represents a monthly budget allocation.
type BudgetDTO struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Allocated string `json:"allocated"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// SetBudgetRequest creates or amends a period allocation.
type SetBudgetRequest struct {
	Allocated string `json:"allocated"`
}

// BudgetStatusDTO is the allocation/committed/remaining snapshot for a
// period, consumed by the report surface.
type BudgetStatusDTO struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Allocated string `json:"allocated"`
	Committed string `json:"committed"`
	Remaining string `json:"remaining"`
}

// AuditEntryDTO represents one audit log entry.
type AuditEntryDTO struct {
	ID            string `json:"id"`
	ActorID       string `json:"actor_id"`
	ActorRole     string `json:"actor_role"`
	Action        string `json:"action"`
	ApplicationID int64  `json:"application_id,omitempty"`
	Details       string `json:"details,omitempty"`
	Origin        string `json:"origin,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// NoticeDTO represents an in-app notification.
type NoticeDTO struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// ErrorResponse is the standard error response. Code identifies the error
// kind; Remaining is set for insufficient-funds rejections so the operator
// sees the exact balance.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Remaining string `json:"remaining,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toApplicationDTO(app *engine.Application) ApplicationDTO {
	dto := ApplicationDTO{
		ID:           int64(app.ID),
		CitizenID:    string(app.CitizenID),
		Program:      app.Program,
		Details:      app.Details,
		DocumentRefs: app.DocumentRefs,
		Status:       string(app.Status),
		Remarks:      app.Remarks,
		CreatedAt:    app.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    app.UpdatedAt.Format(time.RFC3339),
	}
	if app.AmountReleased != nil {
		s := app.AmountReleased.String()
		dto.AmountReleased = &s
	}
	if app.ApprovedAt != nil {
		s := app.ApprovedAt.Format(time.RFC3339)
		dto.ApprovedAt = &s
	}
	return dto
}

func toApplicationDTOs(apps []*engine.Application) []ApplicationDTO {
	dtos := make([]ApplicationDTO, len(apps))
	for i, app := range apps {
		dtos[i] = toApplicationDTO(app)
	}
	return dtos
}

func toBudgetDTO(b engine.MonthlyBudget) BudgetDTO {
	return BudgetDTO{
		Year:      b.Period.Year,
		Month:     int(b.Period.Month),
		Allocated: b.Allocated.String(),
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
	}
}

func toAuditEntryDTO(e engine.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:            e.ID,
		ActorID:       e.ActorID,
		ActorRole:     string(e.ActorRole),
		Action:        string(e.Action),
		ApplicationID: int64(e.ApplicationID),
		Details:       e.Details,
		Origin:        e.Origin,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
	}
}

func toNoticeDTO(n notify.Notice) NoticeDTO {
	return NoticeDTO{
		ID:        n.ID,
		EventType: string(n.EventType),
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}
