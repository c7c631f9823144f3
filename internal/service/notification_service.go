package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/workflow"
	"github.com/hmxfpv/admin-api/pkg/email"
	"github.com/hmxfpv/admin-api/pkg/jobs"
)

// JobTypeNotification tags notification jobs on the worker queue.
const JobTypeNotification = "notification_email"

type templateRenderer interface {
	Render(ctx context.Context, name string, vars map[string]string) (*models.RenderedEmail, error)
}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// Notification is the payload of a queued email.
type Notification struct {
	Template string
	To       string
	Kind     workflow.Kind
	EntityID int64
	Vars     map[string]string
}

// NotificationService emails the affected party after a decision. Delivery
// happens on the worker queue; callers only learn whether the email was queued.
type NotificationService struct {
	renderer templateRenderer
	sender   email.Sender
	queue    jobQueue
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService constructs the service. Call UseQueue before Notify.
func NewNotificationService(renderer templateRenderer, sender email.Sender, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{renderer: renderer, sender: sender, metrics: metrics, logger: logger}
}

// UseQueue sets the queue that delivers notifications.
func (s *NotificationService) UseQueue(queue jobQueue) {
	s.queue = queue
}

// TemplateFor returns the template used when entity of kind reaches status, or
// "" when no email is sent.
func TemplateFor(kind workflow.Kind, status workflow.Status) string {
	d, ok := workflow.Describe(kind)
	if !ok || !d.Notifies {
		return ""
	}
	var prefix string
	switch {
	case kind.IsApplication():
		prefix = "application"
	case kind == workflow.KindCancellation:
		prefix = "cancellation"
	default:
		return ""
	}
	switch status {
	case workflow.StatusApproved:
		return prefix + "_approved"
	case workflow.StatusRejected:
		return prefix + "_rejected"
	}
	return ""
}

// Notify queues the decision email for entity. It reports whether an email
// was queued; failures are logged and never returned.
func (s *NotificationService) Notify(ctx context.Context, entity models.Entity, comment string) bool {
	if s == nil || s.queue == nil {
		return false
	}
	template := TemplateFor(entity.Kind, entity.Status)
	if template == "" {
		return false
	}
	to := strings.TrimSpace(entity.Email())
	if to == "" {
		s.logger.Warn("notification skipped: no recipient",
			zap.String("kind", string(entity.Kind)), zap.Int64("id", entity.ID))
		return false
	}
	note := Notification{
		Template: template,
		To:       to,
		Kind:     entity.Kind,
		EntityID: entity.ID,
		Vars:     notificationVars(entity, comment),
	}
	if err := s.queue.Enqueue(jobs.Job{Type: JobTypeNotification, Payload: note}); err != nil {
		s.logger.Warn("failed to queue notification", zap.String("template", template), zap.Int64("id", entity.ID), zap.Error(err))
		s.metrics.RecordNotification(template, false)
		return false
	}
	return true
}

// Handle renders and sends one queued notification. It is the queue handler.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	note, ok := job.Payload.(Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	rendered, err := s.renderer.Render(ctx, note.Template, note.Vars)
	if err != nil {
		return fmt.Errorf("render %s: %w", note.Template, err)
	}
	result, err := s.sender.Send(ctx, email.SendRequest{
		To:      []string{note.To},
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
		Tags:    map[string]string{"template": note.Template, "kind": string(note.Kind)},
	})
	if err != nil {
		return err
	}
	s.metrics.RecordNotification(note.Template, true)
	s.logger.Info("notification sent",
		zap.String("template", note.Template),
		zap.String("kind", string(note.Kind)),
		zap.Int64("id", note.EntityID),
		zap.String("message_id", result.MessageID))
	return nil
}

// Discarded records a notification that exhausted its retries.
func (s *NotificationService) Discarded(job jobs.Job, err error) {
	note, _ := job.Payload.(Notification)
	s.metrics.RecordNotification(note.Template, false)
	s.logger.Error("notification dropped",
		zap.String("template", note.Template),
		zap.Int64("id", note.EntityID),
		zap.Int("attempts", job.Attempt),
		zap.Error(err))
}

func notificationVars(entity models.Entity, comment string) map[string]string {
	vars := map[string]string{
		"name":           entity.DisplayName(),
		"email":          entity.Email(),
		"admin_comments": strings.TrimSpace(comment),
		"id":             fmt.Sprintf("%d", entity.ID),
	}
	if vars["name"] == "" {
		vars["name"] = "there"
	}
	if entity.Kind.IsApplication() {
		vars["application_type"] = strings.ReplaceAll(entity.Kind.ApplicationType(), "_", " ")
	}
	if orderID, ok := entity.LinkedOrderID(); ok {
		vars["booking_id"] = fmt.Sprintf("%d", orderID)
	}
	if amount, ok := entity.NumberValue("refund_amount"); ok {
		vars["refund_amount"] = fmt.Sprintf("%.2f", amount)
	}
	if reason := entity.FieldValue("reason"); reason != "" {
		vars["reason"] = reason
	}
	return vars
}
