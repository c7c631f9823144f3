package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/middleware"
	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/workflow"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
	"github.com/hmxfpv/admin-api/pkg/response"
)

type workflowService interface {
	List(ctx context.Context, kind workflow.Kind, q workflow.Query) ([]models.Entity, error)
	Get(ctx context.Context, kind workflow.Kind, id int64) (*models.Entity, error)
	Transition(ctx context.Context, kind workflow.Kind, id int64, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResult, error)
	TransitionByAction(ctx context.Context, kind workflow.Kind, id int64, action, comment string, expectedVersion *int, actor *models.JWTClaims) (*dto.TransitionResult, error)
	CreateCancellation(ctx context.Context, req dto.CreateCancellationRequest, actor *models.JWTClaims) (*models.Entity, error)
	History(ctx context.Context, kind workflow.Kind, id int64) ([]models.StatusChange, error)
	Stats(ctx context.Context) (map[workflow.Kind]map[workflow.Status]int, error)
	Vocabulary() dto.VocabularyResponse
}

// WorkflowHandler exposes the approval workflow of applications, orders,
// cancellations and video reviews.
type WorkflowHandler struct {
	service workflowService
}

// NewWorkflowHandler builds a new handler.
func NewWorkflowHandler(service workflowService) *WorkflowHandler {
	return &WorkflowHandler{service: service}
}

// ListApplications godoc
// @Summary List applications of one type
// @Tags Applications
// @Produce json
// @Param type path string true "pilot, editor, referral or business_client"
// @Param status query string false "pending, approved or rejected"
// @Param search query string false "Free-text search"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/applications/{type} [get]
func (h *WorkflowHandler) ListApplications(c *gin.Context) {
	kind, ok := workflow.ApplicationKind(c.Param("type"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnknownKind, "invalid application type"))
		return
	}
	items, err := h.service.List(c.Request.Context(), kind, workflow.ParseQuery(c.Request.URL.Query()))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ApplicationListResponse{Applications: items, Count: len(items)}, nil, middleware.ExtractMeta(c))
}

// GetApplication godoc
// @Summary Get one application
// @Tags Applications
// @Produce json
// @Param type path string true "Application type"
// @Param id path int true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/applications/{type}/{id} [get]
func (h *WorkflowHandler) GetApplication(c *gin.Context) {
	kind, ok := workflow.ApplicationKind(c.Param("type"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnknownKind, "invalid application type"))
		return
	}
	h.get(c, kind)
}

// DecideApplication godoc
// @Summary Approve or reject an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param type path string true "Application type"
// @Param id path int true "Application ID"
// @Param action path string true "approve or reject"
// @Param payload body dto.DecisionRequest false "Admin comments"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/applications/{type}/{id}/{action} [post]
func (h *WorkflowHandler) DecideApplication(c *gin.Context) {
	kind, ok := workflow.ApplicationKind(c.Param("type"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnknownKind, "invalid application type"))
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	action := strings.ToLower(c.Param("action"))
	if action != "approve" && action != "reject" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "action must be approve or reject"))
		return
	}
	var req dto.DecisionRequest
	if !bindOptionalJSON(c, &req, "invalid decision payload") {
		return
	}
	result, err := h.service.TransitionByAction(c.Request.Context(), kind, id, action, req.Comments, req.Version, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListOrders godoc
// @Summary List orders
// @Tags Orders
// @Produce json
// @Param status query string false "Order status"
// @Param min_amount query number false "Minimum amount"
// @Param max_amount query number false "Maximum amount"
// @Success 200 {object} response.Envelope
// @Router /admin/orders [get]
func (h *WorkflowHandler) ListOrders(c *gin.Context) {
	h.list(c, workflow.KindOrder, workflow.ParseQuery(c.Request.URL.Query()))
}

// GetOrder godoc
// @Summary Get one order
// @Tags Orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} response.Envelope
// @Router /admin/orders/{id} [get]
func (h *WorkflowHandler) GetOrder(c *gin.Context) {
	h.get(c, workflow.KindOrder)
}

// UpdateOrderStatus godoc
// @Summary Change an order's status
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param payload body dto.StatusUpdateRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/orders/{id}/status [put]
func (h *WorkflowHandler) UpdateOrderStatus(c *gin.Context) {
	h.updateStatus(c, workflow.KindOrder)
}

// ListVideoReviews godoc
// @Summary List video submissions
// @Tags Video Reviews
// @Produce json
// @Param type query string false "all, pilot or editor"
// @Success 200 {object} response.Envelope
// @Router /admin/video-reviews [get]
func (h *WorkflowHandler) ListVideoReviews(c *gin.Context) {
	h.list(c, workflow.KindVideoSubmission, workflow.ParseQuery(c.Request.URL.Query()))
}

// GetVideoReview godoc
// @Summary Get one video submission
// @Tags Video Reviews
// @Produce json
// @Param id path int true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /admin/video-reviews/{id} [get]
func (h *WorkflowHandler) GetVideoReview(c *gin.Context) {
	h.get(c, workflow.KindVideoSubmission)
}

// UpdateVideoReview godoc
// @Summary Review a video submission
// @Tags Video Reviews
// @Accept json
// @Produce json
// @Param id path int true "Submission ID"
// @Param payload body dto.StatusUpdateRequest true "Target status and comments"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/video-reviews/{id} [put]
func (h *WorkflowHandler) UpdateVideoReview(c *gin.Context) {
	h.updateStatus(c, workflow.KindVideoSubmission)
}

// ListCancellations godoc
// @Summary List cancellation requests
// @Tags Cancellations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/cancellations [get]
func (h *WorkflowHandler) ListCancellations(c *gin.Context) {
	h.list(c, workflow.KindCancellation, workflow.ParseQuery(c.Request.URL.Query()))
}

// GetCancellation godoc
// @Summary Get one cancellation request
// @Tags Cancellations
// @Produce json
// @Param id path int true "Cancellation ID"
// @Success 200 {object} response.Envelope
// @Router /admin/cancellations/{id} [get]
func (h *WorkflowHandler) GetCancellation(c *gin.Context) {
	h.get(c, workflow.KindCancellation)
}

// CreateCancellation godoc
// @Summary Open a cancellation request for a booking
// @Tags Cancellations
// @Accept json
// @Produce json
// @Param payload body dto.CreateCancellationRequest true "Cancellation payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/cancellations [post]
func (h *WorkflowHandler) CreateCancellation(c *gin.Context) {
	var req dto.CreateCancellationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancellation payload"))
		return
	}
	entity, err := h.service.CreateCancellation(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entity)
}

// DecideCancellation godoc
// @Summary Approve or reject a cancellation request
// @Tags Cancellations
// @Accept json
// @Produce json
// @Param id path int true "Cancellation ID"
// @Param payload body dto.CancellationDecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/cancellations/{id} [put]
func (h *WorkflowHandler) DecideCancellation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.CancellationDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cancellation decision"))
		return
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action != "approve" && action != "reject" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "action must be approve or reject"))
		return
	}
	result, err := h.service.TransitionByAction(c.Request.Context(), workflow.KindCancellation, id, action, req.Comments, req.Version, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Vocabulary godoc
// @Summary Status vocabulary and transition table
// @Tags Workflow
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/workflow/vocabulary [get]
func (h *WorkflowHandler) Vocabulary(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Vocabulary(), nil)
}

// Stats godoc
// @Summary Per-status totals for every kind
// @Tags Workflow
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/workflow/stats [get]
func (h *WorkflowHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// History godoc
// @Summary Status history of an entity
// @Tags Workflow
// @Produce json
// @Param kind path string true "Entity kind"
// @Param id path int true "Entity ID"
// @Success 200 {object} response.Envelope
// @Router /admin/history/{kind}/{id} [get]
func (h *WorkflowHandler) History(c *gin.Context) {
	kind, ok := workflow.ParseKind(c.Param("kind"))
	if !ok {
		response.Error(c, appErrors.ErrUnknownKind)
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	changes, err := h.service.History(c.Request.Context(), kind, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, changes, nil)
}

func (h *WorkflowHandler) list(c *gin.Context, kind workflow.Kind, q workflow.Query) {
	items, err := h.service.List(c.Request.Context(), kind, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "count", len(items))
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

func (h *WorkflowHandler) get(c *gin.Context, kind workflow.Kind) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	entity, err := h.service.Get(c.Request.Context(), kind, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entity, nil)
}

func (h *WorkflowHandler) updateStatus(c *gin.Context, kind workflow.Kind) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status is required"))
		return
	}
	result, err := h.service.Transition(c.Request.Context(), kind, id, dto.TransitionRequest{
		Target:          workflow.Status(req.Status),
		Comment:         req.AdminComments,
		ExpectedVersion: req.Version,
	}, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "id must be a positive integer"))
		return 0, false
	}
	return id, true
}

// bindOptionalJSON decodes the body when one is present.
func bindOptionalJSON(c *gin.Context, dest interface{}, message string) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}
