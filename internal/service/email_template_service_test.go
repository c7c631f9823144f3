package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/models"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
)

type templateStoreStub struct {
	templates map[string]models.EmailTemplate
	err       error
	upserted  []*models.EmailTemplate
}

func (s *templateStoreStub) List(ctx context.Context) ([]models.EmailTemplate, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.EmailTemplate, 0, len(s.templates))
	for _, tpl := range s.templates {
		out = append(out, tpl)
	}
	return out, nil
}

func (s *templateStoreStub) Get(ctx context.Context, name string) (*models.EmailTemplate, error) {
	if s.err != nil {
		return nil, s.err
	}
	tpl, ok := s.templates[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &tpl, nil
}

func (s *templateStoreStub) Upsert(ctx context.Context, tpl *models.EmailTemplate) error {
	if s.err != nil {
		return s.err
	}
	s.upserted = append(s.upserted, tpl)
	return nil
}

type auditStub struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return a.err
}

func TestEmailTemplateFallsBackToBuiltin(t *testing.T) {
	svc := NewEmailTemplateService(&templateStoreStub{}, nil, zap.NewNop())

	tpl, err := svc.Get(context.Background(), "Application_Approved")
	require.NoError(t, err)
	assert.True(t, tpl.BuiltIn)
	assert.Contains(t, tpl.Body, "{{application_type}}")

	_, err = svc.Get(context.Background(), "unknown_template")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEmailTemplateStoredOverridesBuiltin(t *testing.T) {
	store := &templateStoreStub{templates: map[string]models.EmailTemplate{
		models.TemplateApplicationRejected: {Name: models.TemplateApplicationRejected, Subject: "Custom", Body: "Hi {{name}}"},
	}}
	svc := NewEmailTemplateService(store, nil, nil)

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 4)
	for _, tpl := range list {
		if tpl.Name == models.TemplateApplicationRejected {
			assert.Equal(t, "Custom", tpl.Subject)
			assert.False(t, tpl.BuiltIn)
		} else {
			assert.True(t, tpl.BuiltIn, tpl.Name)
		}
	}
	assert.Equal(t, models.TemplateApplicationApproved, list[0].Name)
}

func TestEmailTemplateRenderDropsEmptyLines(t *testing.T) {
	svc := NewEmailTemplateService(&templateStoreStub{}, nil, nil)

	rendered, err := svc.Render(context.Background(), models.TemplateApplicationApproved, map[string]string{
		"name":             "Asha Rao",
		"application_type": "pilot",
	})
	require.NoError(t, err)
	assert.Equal(t, "Application Approved - Welcome to HMX FPV Tours!", rendered.Subject)
	assert.Contains(t, rendered.Text, "Dear Asha Rao,")
	assert.Contains(t, rendered.Text, "Your pilot application has been approved.")
	assert.NotContains(t, rendered.Text, "Admin Comments")
	assert.NotContains(t, rendered.Text, "{{")
	assert.Contains(t, rendered.HTML, "<p>Dear Asha Rao,</p>")
	assert.Contains(t, rendered.HTML, "<ol>")
	assert.Contains(t, rendered.Text, "+91 98765 43210")
}

func TestEmailTemplateRenderEscapesRawHTML(t *testing.T) {
	svc := NewEmailTemplateService(&templateStoreStub{}, nil, nil)
	rendered, err := svc.RenderTemplate(models.EmailTemplate{Subject: "x", Body: "Note: {{admin_comments}}"},
		map[string]string{"admin_comments": "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.NotContains(t, rendered.HTML, "<script>")
}

func TestEmailTemplatePreviewUsesSamples(t *testing.T) {
	svc := NewEmailTemplateService(&templateStoreStub{}, nil, nil)

	rendered, err := svc.Preview(context.Background(), models.TemplateCancellationApproved, map[string]string{"name": "Priya"})
	require.NoError(t, err)
	assert.Equal(t, "Cancellation Approved - Booking #12345", rendered.Subject)
	assert.Contains(t, rendered.Text, "Dear Priya,")
	assert.Contains(t, rendered.Text, "Refund amount: 500.00")
}

func TestEmailTemplateSave(t *testing.T) {
	store := &templateStoreStub{}
	audit := &auditStub{}
	svc := NewEmailTemplateService(store, audit, nil)

	tpl, err := svc.Save(context.Background(), "booking_reminder", dto.UpsertEmailTemplateRequest{Subject: " Reminder ", Body: "See you {{name}}"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "Reminder", tpl.Subject)
	require.Len(t, store.upserted, 1)
	require.NotNil(t, store.upserted[0].UpdatedBy)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionTemplateUpdate, audit.logs[0].Action)

	_, err = svc.Save(context.Background(), "Bad Name!", dto.UpsertEmailTemplateRequest{Subject: "s", Body: "b"}, "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Save(context.Background(), "empty_body", dto.UpsertEmailTemplateRequest{Subject: "s"}, "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEmailTemplateStoreFailure(t *testing.T) {
	svc := NewEmailTemplateService(&templateStoreStub{err: errors.New("db down")}, nil, nil)
	_, err := svc.Get(context.Background(), models.TemplateApplicationApproved)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
