package dto

import (
	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/workflow"
)

// DecisionRequest is the body of POST /admin/applications/{type}/{id}/{action}.
type DecisionRequest struct {
	Comments string `json:"comments"`
	Version  *int   `json:"version,omitempty"`
}

// StatusUpdateRequest is the body of PUT /admin/orders/{id}/status and
// PUT /admin/video-reviews/{id}.
type StatusUpdateRequest struct {
	Status        string `json:"status" validate:"required"`
	AdminComments string `json:"admin_comments"`
	Version       *int   `json:"version,omitempty"`
}

// CancellationDecisionRequest is the body of PUT /admin/cancellations/{id}.
type CancellationDecisionRequest struct {
	Action   string `json:"action" validate:"required,oneof=approve reject"`
	Comments string `json:"comments"`
	Version  *int   `json:"version,omitempty"`
}

// CreateCancellationRequest opens a pending cancellation for a booking.
type CreateCancellationRequest struct {
	BookingID    int64    `json:"booking_id" validate:"required,gt=0"`
	Reason       string   `json:"reason" validate:"required"`
	RefundAmount *float64 `json:"refund_amount" validate:"omitempty,gte=0"`
	CustomerName string   `json:"customer_name"`
	Email        string   `json:"email" validate:"omitempty,email"`
}

// TransitionRequest is the normalised input of every transition endpoint.
type TransitionRequest struct {
	Target          workflow.Status
	Comment         string
	ExpectedVersion *int
}

// TransitionResult reports the new state of the entity and whether the
// affected party will be emailed.
type TransitionResult struct {
	Entity   models.Entity   `json:"entity"`
	From     workflow.Status `json:"from"`
	To       workflow.Status `json:"to"`
	Notified bool            `json:"notified"`
	Message  string          `json:"message"`
}

// ApplicationListResponse mirrors the {applications, count} list shape.
type ApplicationListResponse struct {
	Applications []models.Entity `json:"applications"`
	Count        int             `json:"count"`
}

// VocabularyResponse serves the transition table to clients.
type VocabularyResponse struct {
	Policy      workflow.OrderPolicy  `json:"order_policy"`
	Rules       []workflow.Rule       `json:"rules"`
	Descriptors []workflow.Descriptor `json:"descriptors"`
}
