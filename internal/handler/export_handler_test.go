package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/workflow"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
)

type exportServiceMock struct {
	lastReq dto.ExportRequest
	err     error
}

func (m *exportServiceMock) Export(ctx context.Context, req dto.ExportRequest, actorID string) (*dto.ExportFile, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.ExportFile{Filename: "order_20250901_100000.csv", ContentType: "text/csv", Body: []byte("ID,Status\n1,pending\n")}, nil
}

func TestExportHandlerStreamsFile(t *testing.T) {
	mockSvc := &exportServiceMock{}
	handler := NewExportHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodGet, "/admin/exports/orders?status=pending", "", gin.Params{{Key: "kind", Value: "orders"}})
	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.KindOrder, mockSvc.lastReq.Kind)
	assert.Equal(t, "csv", mockSvc.lastReq.Format)
	assert.Equal(t, workflow.StatusPending, mockSvc.lastReq.Query.Status)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "order_20250901_100000.csv")
	assert.Equal(t, "ID,Status\n1,pending\n", w.Body.String())
}

func TestExportHandlerErrors(t *testing.T) {
	handler := NewExportHandler(&exportServiceMock{})
	c, w := newWorkflowContext(http.MethodGet, "/admin/exports/students", "", gin.Params{{Key: "kind", Value: "students"}})
	handler.Export(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	handler = NewExportHandler(&exportServiceMock{err: appErrors.Clone(appErrors.ErrValidation, "unsupported format")})
	c, w = newWorkflowContext(http.MethodGet, "/admin/exports/orders?format=xlsx", "", gin.Params{{Key: "kind", Value: "orders"}})
	handler.Export(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
