package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/models"
)

type emailTemplateServiceMock struct {
	lastName string
	lastReq  dto.UpsertEmailTemplateRequest
	lastVars map[string]string
	saved    bool
}

func (m *emailTemplateServiceMock) List(ctx context.Context) ([]models.EmailTemplate, error) {
	return []models.EmailTemplate{{Name: models.TemplateApplicationApproved, BuiltIn: true}}, nil
}

func (m *emailTemplateServiceMock) Get(ctx context.Context, name string) (*models.EmailTemplate, error) {
	m.lastName = name
	return &models.EmailTemplate{Name: name}, nil
}

func (m *emailTemplateServiceMock) Save(ctx context.Context, name string, req dto.UpsertEmailTemplateRequest, actorID string) (*models.EmailTemplate, error) {
	m.saved = true
	m.lastName = name
	m.lastReq = req
	return &models.EmailTemplate{Name: name, Subject: req.Subject, Body: req.Body}, nil
}

func (m *emailTemplateServiceMock) Preview(ctx context.Context, name string, vars map[string]string) (*models.RenderedEmail, error) {
	m.lastName = name
	m.lastVars = vars
	return &models.RenderedEmail{Subject: "Welcome", HTML: "<p>Hi</p>", Text: "Hi"}, nil
}

func TestEmailTemplateHandlerUpdateUsesPathName(t *testing.T) {
	mockSvc := &emailTemplateServiceMock{}
	handler := NewEmailTemplateHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPut, "/admin/email-templates/application_rejected", `{"subject":"Update","body":"Hello {{name}}"}`, gin.Params{{Key: "name", Value: "application_rejected"}})
	handler.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application_rejected", mockSvc.lastName)
	assert.Equal(t, "Hello {{name}}", mockSvc.lastReq.Body)
}

func TestEmailTemplateHandlerCreateRequiresName(t *testing.T) {
	mockSvc := &emailTemplateServiceMock{}
	handler := NewEmailTemplateHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPost, "/admin/email-templates", `{"subject":"Update","body":"Hello"}`, nil)
	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.saved)
}

func TestEmailTemplateHandlerPreview(t *testing.T) {
	mockSvc := &emailTemplateServiceMock{}
	handler := NewEmailTemplateHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPost, "/admin/email-templates/application_approved/preview", `{"variables":{"name":"Asha"}}`, gin.Params{{Key: "name", Value: "application_approved"}})
	handler.Preview(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Asha", mockSvc.lastVars["name"])

	c, w = newWorkflowContext(http.MethodPost, "/admin/email-templates/application_approved/preview", "", gin.Params{{Key: "name", Value: "application_approved"}})
	handler.Preview(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, mockSvc.lastVars)
}
