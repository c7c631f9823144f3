package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/workflow"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
	"github.com/hmxfpv/admin-api/pkg/response"
)

type exportService interface {
	Export(ctx context.Context, req dto.ExportRequest, actorID string) (*dto.ExportFile, error)
}

// ExportHandler streams list exports as CSV or PDF downloads.
type ExportHandler struct {
	service exportService
}

// NewExportHandler builds a new handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Export godoc
// @Summary Export a filtered list
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param kind path string true "Entity kind"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /admin/exports/{kind} [get]
func (h *ExportHandler) Export(c *gin.Context) {
	kind, ok := workflow.ParseKind(c.Param("kind"))
	if !ok {
		response.Error(c, appErrors.ErrUnknownKind)
		return
	}
	file, err := h.service.Export(c.Request.Context(), dto.ExportRequest{
		Kind:   kind,
		Format: c.DefaultQuery("format", "csv"),
		Query:  workflow.ParseQuery(c.Request.URL.Query()),
	}, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Download(c, file.Filename, file.ContentType, file.Body)
}
