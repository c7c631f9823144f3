package models

import "time"

// Built-in template names used by workflow notifications.
const (
	TemplateApplicationApproved  = "application_approved"
	TemplateApplicationRejected  = "application_rejected"
	TemplateCancellationApproved = "cancellation_approved"
	TemplateCancellationRejected = "cancellation_rejected"
)

// EmailTemplate is a Markdown body with {{variable}} placeholders.
type EmailTemplate struct {
	Name      string    `db:"name" json:"name"`
	Subject   string    `db:"subject" json:"subject"`
	Body      string    `db:"body" json:"body"`
	UpdatedBy *string   `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	BuiltIn   bool      `db:"-" json:"built_in"`
}

// RenderedEmail is a template after variable substitution.
type RenderedEmail struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}
