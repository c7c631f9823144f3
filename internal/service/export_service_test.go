package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/workflow"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
)

type entityListerStub struct {
	entities []models.Entity
	query    workflow.Query
}

func (s *entityListerStub) List(ctx context.Context, kind workflow.Kind, q workflow.Query) ([]models.Entity, error) {
	s.query = q
	return s.entities, nil
}

func TestExportCancellationsCSV(t *testing.T) {
	lister := &entityListerStub{entities: []models.Entity{
		{ID: 4, Kind: workflow.KindCancellation, Status: workflow.StatusPending, Attributes: models.Attributes{
			"booking_id": float64(30), "customer_name": "Meera, K", "reason": "Weather", "refund_amount": 400.0,
		}},
	}}
	audit := &auditStub{}
	svc := NewExportService(lister, nil, audit, nil)
	svc.now = func() time.Time { return time.Date(2025, 8, 30, 10, 0, 0, 0, time.UTC) }

	file, err := svc.Export(context.Background(), dto.ExportRequest{
		Kind:  workflow.KindCancellation,
		Query: workflow.Query{Status: workflow.StatusPending},
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "cancellation_20250830_100000.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Equal(t, workflow.StatusPending, lister.query.Status)

	lines := strings.Split(strings.TrimSpace(string(file.Body)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Booking ID,Customer Name,Reason,Refund Amount,Status,Created At", lines[0])
	assert.Equal(t, `4,30,"Meera, K",Weather,400,pending,`, lines[1])

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionExport, audit.logs[0].Action)
}

func TestExportPDFAndErrors(t *testing.T) {
	svc := NewExportService(&entityListerStub{}, nil, nil, nil)

	file, err := svc.Export(context.Background(), dto.ExportRequest{Kind: workflow.KindOrder, Format: "PDF"}, "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Body), "%PDF"))

	_, err = svc.Export(context.Background(), dto.ExportRequest{Kind: workflow.KindOrder, Format: "xlsx"}, "")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Export(context.Background(), dto.ExportRequest{Kind: "grades"}, "")
	assert.Equal(t, appErrors.ErrUnknownKind.Code, appErrors.FromError(err).Code)
}

func TestColumnLabel(t *testing.T) {
	assert.Equal(t, "ID", columnLabel("id"))
	assert.Equal(t, "Delivery Video Link", columnLabel("delivery_video_link"))
}
