package dto

// UpsertEmailTemplateRequest creates or replaces a template.
type UpsertEmailTemplateRequest struct {
	Name    string `json:"name" validate:"omitempty,max=64"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

// PreviewEmailTemplateRequest renders a template with caller variables merged
// over the sample set.
type PreviewEmailTemplateRequest struct {
	Variables map[string]string `json:"variables"`
}
