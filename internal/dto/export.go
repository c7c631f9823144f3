package dto

import "github.com/hmxfpv/admin-api/internal/workflow"

// ExportRequest selects the kind, format and filter of an export.
type ExportRequest struct {
	Kind   workflow.Kind
	Format string
	Query  workflow.Query
}

// ExportFile is a rendered export ready for download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}
