package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/models"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
	"github.com/hmxfpv/admin-api/pkg/response"
)

type emailTemplateService interface {
	List(ctx context.Context) ([]models.EmailTemplate, error)
	Get(ctx context.Context, name string) (*models.EmailTemplate, error)
	Save(ctx context.Context, name string, req dto.UpsertEmailTemplateRequest, actorID string) (*models.EmailTemplate, error)
	Preview(ctx context.Context, name string, vars map[string]string) (*models.RenderedEmail, error)
}

// EmailTemplateHandler serves the decision email templates.
type EmailTemplateHandler struct {
	service emailTemplateService
}

// NewEmailTemplateHandler builds a new handler.
func NewEmailTemplateHandler(service emailTemplateService) *EmailTemplateHandler {
	return &EmailTemplateHandler{service: service}
}

// List godoc
// @Summary List email templates
// @Tags Email Templates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/email-templates [get]
func (h *EmailTemplateHandler) List(c *gin.Context) {
	templates, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// Get godoc
// @Summary Get an email template
// @Tags Email Templates
// @Produce json
// @Param name path string true "Template name"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/email-templates/{name} [get]
func (h *EmailTemplateHandler) Get(c *gin.Context) {
	tpl, err := h.service.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Create godoc
// @Summary Create an email template
// @Tags Email Templates
// @Accept json
// @Produce json
// @Param payload body dto.UpsertEmailTemplateRequest true "Template"
// @Success 201 {object} response.Envelope
// @Router /admin/email-templates [post]
func (h *EmailTemplateHandler) Create(c *gin.Context) {
	var req dto.UpsertEmailTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}
	if req.Name == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "name is required"))
		return
	}
	tpl, err := h.service.Save(c.Request.Context(), req.Name, req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tpl)
}

// Update godoc
// @Summary Replace an email template
// @Tags Email Templates
// @Accept json
// @Produce json
// @Param name path string true "Template name"
// @Param payload body dto.UpsertEmailTemplateRequest true "Template"
// @Success 200 {object} response.Envelope
// @Router /admin/email-templates/{name} [put]
func (h *EmailTemplateHandler) Update(c *gin.Context) {
	var req dto.UpsertEmailTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}
	tpl, err := h.service.Save(c.Request.Context(), c.Param("name"), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Preview godoc
// @Summary Render a template with sample values
// @Tags Email Templates
// @Accept json
// @Produce json
// @Param name path string true "Template name"
// @Param payload body dto.PreviewEmailTemplateRequest false "Variables"
// @Success 200 {object} response.Envelope
// @Router /admin/email-templates/{name}/preview [post]
func (h *EmailTemplateHandler) Preview(c *gin.Context) {
	var req dto.PreviewEmailTemplateRequest
	if !bindOptionalJSON(c, &req, "invalid preview payload") {
		return
	}
	rendered, err := h.service.Preview(c.Request.Context(), c.Param("name"), req.Variables)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rendered, nil)
}
