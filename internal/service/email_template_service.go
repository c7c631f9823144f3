package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/models"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
)

type emailTemplateStore interface {
	List(ctx context.Context) ([]models.EmailTemplate, error)
	Get(ctx context.Context, name string) (*models.EmailTemplate, error)
	Upsert(ctx context.Context, tpl *models.EmailTemplate) error
}

var (
	placeholderPattern  = regexp.MustCompile(`{{\s*([a-zA-Z0-9_]+)\s*}}`)
	templateNamePattern = regexp.MustCompile(`^[a-z0-9_]{2,64}$`)
)

const signature = `Best regards,
HMX FPV Tours Team
Email: support@hmxfpvtours.com
Phone: +91 98765 43210`

var builtinTemplates = map[string]models.EmailTemplate{
	models.TemplateApplicationApproved: {
		Name:    models.TemplateApplicationApproved,
		Subject: "Application Approved - Welcome to HMX FPV Tours!",
		Body: `Dear {{name}},

Congratulations! Your {{application_type}} application has been approved.

Welcome to the HMX FPV Tours team! We're excited to have you on board.

Next Steps:

1. You can now log in to your dashboard using your registered email and password
2. Complete your profile setup if needed
3. Start exploring the available opportunities

Admin Comments: {{admin_comments}}

If you have any questions, please don't hesitate to contact our support team.

` + signature,
	},
	models.TemplateApplicationRejected: {
		Name:    models.TemplateApplicationRejected,
		Subject: "Application Update - HMX FPV Tours",
		Body: `Dear {{name}},

Thank you for your interest in joining HMX FPV Tours as a {{application_type}}.

After careful review, we regret to inform you that we cannot proceed with your application at this time.

Feedback: {{admin_comments}}

We encourage you to reapply in the future as opportunities become available.

Thank you for your understanding.

` + signature,
	},
	models.TemplateCancellationApproved: {
		Name:    models.TemplateCancellationApproved,
		Subject: "Cancellation Approved - Booking #{{booking_id}}",
		Body: `Dear {{name}},

Your cancellation request for booking #{{booking_id}} has been approved.

Refund amount: {{refund_amount}}

Admin Comments: {{admin_comments}}

The refund will be processed to your original payment method.

` + signature,
	},
	models.TemplateCancellationRejected: {
		Name:    models.TemplateCancellationRejected,
		Subject: "Cancellation Update - Booking #{{booking_id}}",
		Body: `Dear {{name}},

We were unable to approve the cancellation request for booking #{{booking_id}}.

Reason: {{admin_comments}}

Your booking remains active. Please contact our support team if you have any questions.

` + signature,
	},
}

// sampleVariables fill previews so admins can see a realistic message.
var sampleVariables = map[string]string{
	"name":             "John Doe",
	"booking_id":       "12345",
	"location":         "New York City",
	"date":             "2025-08-30",
	"reason":           "Incomplete documents",
	"application_type": "pilot",
	"refund_amount":    "500.00",
	"admin_comments":   "Incomplete documents",
}

// EmailTemplateService manages notification templates and renders them from
// Markdown to HTML.
type EmailTemplateService struct {
	repo     emailTemplateStore
	audit    auditLogger
	markdown goldmark.Markdown
	logger   *zap.Logger
}

// NewEmailTemplateService constructs the service.
func NewEmailTemplateService(repo emailTemplateStore, audit auditLogger, logger *zap.Logger) *EmailTemplateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	markdown := goldmark.New(
		goldmark.WithExtensions(extension.Linkify),
		goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
	)
	return &EmailTemplateService{repo: repo, audit: audit, markdown: markdown, logger: logger}
}

// List returns stored templates plus any built-in template not yet overridden.
func (s *EmailTemplateService) List(ctx context.Context) ([]models.EmailTemplate, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list email templates")
	}
	seen := make(map[string]struct{}, len(stored))
	result := make([]models.EmailTemplate, 0, len(stored)+len(builtinTemplates))
	for _, tpl := range stored {
		seen[tpl.Name] = struct{}{}
		result = append(result, tpl)
	}
	for name, tpl := range builtinTemplates {
		if _, ok := seen[name]; ok {
			continue
		}
		tpl.BuiltIn = true
		result = append(result, tpl)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Get returns a stored template, falling back to the built-in default.
func (s *EmailTemplateService) Get(ctx context.Context, name string) (*models.EmailTemplate, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	tpl, err := s.repo.Get(ctx, name)
	if err == nil {
		return tpl, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load email template")
	}
	builtin, ok := builtinTemplates[name]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "email template not found")
	}
	builtin.BuiltIn = true
	return &builtin, nil
}

// Save creates or replaces the template called name.
func (s *EmailTemplateService) Save(ctx context.Context, name string, req dto.UpsertEmailTemplateRequest, actorID string) (*models.EmailTemplate, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(req.Name))
	}
	if !templateNamePattern.MatchString(name) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "template name must be 2-64 lowercase letters, digits or underscores")
	}
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Body) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject and body are required")
	}
	tpl := &models.EmailTemplate{
		Name:    name,
		Subject: strings.TrimSpace(req.Subject),
		Body:    req.Body,
	}
	if actorID != "" {
		tpl.UpdatedBy = &actorID
	}
	if err := s.repo.Upsert(ctx, tpl); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save email template")
	}
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     optionalString(actorID),
		Action:     models.AuditActionTemplateUpdate,
		Resource:   "email_template",
		ResourceID: &tpl.Name,
	})
	return tpl, nil
}

// Render substitutes vars into the named template.
func (s *EmailTemplateService) Render(ctx context.Context, name string, vars map[string]string) (*models.RenderedEmail, error) {
	tpl, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.RenderTemplate(*tpl, vars)
}

// Preview renders the template with sample values overlaid by vars.
func (s *EmailTemplateService) Preview(ctx context.Context, name string, vars map[string]string) (*models.RenderedEmail, error) {
	merged := make(map[string]string, len(sampleVariables)+len(vars))
	for k, v := range sampleVariables {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	return s.Render(ctx, name, merged)
}

// RenderTemplate fills placeholders and converts the Markdown body to HTML.
// Lines whose placeholders all resolve to empty values are dropped. Raw HTML
// in the body is not passed through.
func (s *EmailTemplateService) RenderTemplate(tpl models.EmailTemplate, vars map[string]string) (*models.RenderedEmail, error) {
	text := substitute(tpl.Body, vars)
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render email template")
	}
	return &models.RenderedEmail{
		Subject: strings.TrimSpace(substitute(tpl.Subject, vars)),
		HTML:    buf.String(),
		Text:    text,
	}, nil
}

func substitute(body string, vars map[string]string) string {
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		matches := placeholderPattern.FindAllStringSubmatch(line, -1)
		if len(matches) > 0 {
			empty := true
			for _, m := range matches {
				if strings.TrimSpace(vars[m[1]]) != "" {
					empty = false
					break
				}
			}
			if empty {
				continue
			}
		}
		out = append(out, placeholderPattern.ReplaceAllStringFunc(line, func(token string) string {
			key := placeholderPattern.FindStringSubmatch(token)[1]
			return vars[key]
		}))
	}
	return strings.Join(out, "\n")
}
