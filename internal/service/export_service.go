package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/workflow"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
	"github.com/hmxfpv/admin-api/pkg/export"
)

type entityLister interface {
	List(ctx context.Context, kind workflow.Kind, q workflow.Query) ([]models.Entity, error)
}

type datasetRenderer interface {
	Render(f export.Format, data export.Dataset, title string) ([]byte, error)
}

// ExportService renders filtered workflow lists as CSV or PDF downloads.
type ExportService struct {
	entities entityLister
	renderer datasetRenderer
	audit    auditLogger
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs an ExportService. A nil renderer uses the CSV
// and PDF exporters.
func NewExportService(entities entityLister, renderer datasetRenderer, audit auditLogger, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewRenderer()
	}
	return &ExportService{entities: entities, renderer: renderer, audit: audit, logger: logger, now: time.Now}
}

// Export lists req.Kind with req.Query and renders the result.
func (s *ExportService) Export(ctx context.Context, req dto.ExportRequest, actorID string) (*dto.ExportFile, error) {
	d, ok := workflow.Describe(req.Kind)
	if !ok {
		return nil, appErrors.ErrUnknownKind
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	entities, err := s.entities.List(ctx, req.Kind, req.Query)
	if err != nil {
		return nil, err
	}

	dataset := buildDataset(d, entities)
	title := fmt.Sprintf("%s (%d)", d.Label, len(entities))
	body, err := s.renderer.Render(format, dataset, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("%s_%s.%s", req.Kind, s.now().UTC().Format("20060102_150405"), format.Extension())
	newValues := []byte(fmt.Sprintf(`{"format":%q,"rows":%d}`, format, len(entities)))
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:    optionalString(actorID),
		Action:    models.AuditActionExport,
		Resource:  string(req.Kind),
		NewValues: newValues,
	})
	s.logger.Info("export rendered", zap.String("kind", string(req.Kind)), zap.String("format", string(format)), zap.Int("rows", len(entities)))

	return &dto.ExportFile{
		Filename:    filename,
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

func buildDataset(d workflow.Descriptor, entities []models.Entity) export.Dataset {
	headers := make([]string, 0, len(d.ExportColumns))
	for _, column := range d.ExportColumns {
		headers = append(headers, columnLabel(column))
	}
	rows := make([]map[string]string, 0, len(entities))
	for _, entity := range entities {
		row := make(map[string]string, len(d.ExportColumns))
		for i, column := range d.ExportColumns {
			row[headers[i]] = entity.FieldValue(column)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func columnLabel(column string) string {
	if column == "id" {
		return "ID"
	}
	words := strings.Split(column, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
