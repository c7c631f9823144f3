package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/middleware"
	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/workflow"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
)

type workflowServiceMock struct {
	listResp       []models.Entity
	listErr        error
	getResp        *models.Entity
	getErr         error
	transitionResp *dto.TransitionResult
	transitionErr  error
	createResp     *models.Entity
	createErr      error

	lastKind       workflow.Kind
	lastQuery      workflow.Query
	lastID         int64
	lastAction     string
	lastComment    string
	lastRequest    dto.TransitionRequest
	lastActor      *models.JWTClaims
	lastCreate     dto.CreateCancellationRequest
	actionCalled   bool
	transitionCall bool
}

func (m *workflowServiceMock) List(ctx context.Context, kind workflow.Kind, q workflow.Query) ([]models.Entity, error) {
	m.lastKind = kind
	m.lastQuery = q
	return m.listResp, m.listErr
}

func (m *workflowServiceMock) Get(ctx context.Context, kind workflow.Kind, id int64) (*models.Entity, error) {
	m.lastKind = kind
	m.lastID = id
	return m.getResp, m.getErr
}

func (m *workflowServiceMock) Transition(ctx context.Context, kind workflow.Kind, id int64, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResult, error) {
	m.transitionCall = true
	m.lastKind = kind
	m.lastID = id
	m.lastRequest = req
	m.lastActor = actor
	return m.transitionResp, m.transitionErr
}

func (m *workflowServiceMock) TransitionByAction(ctx context.Context, kind workflow.Kind, id int64, action, comment string, expectedVersion *int, actor *models.JWTClaims) (*dto.TransitionResult, error) {
	m.actionCalled = true
	m.lastKind = kind
	m.lastID = id
	m.lastAction = action
	m.lastComment = comment
	m.lastActor = actor
	return m.transitionResp, m.transitionErr
}

func (m *workflowServiceMock) CreateCancellation(ctx context.Context, req dto.CreateCancellationRequest, actor *models.JWTClaims) (*models.Entity, error) {
	m.lastCreate = req
	return m.createResp, m.createErr
}

func (m *workflowServiceMock) History(ctx context.Context, kind workflow.Kind, id int64) ([]models.StatusChange, error) {
	m.lastKind = kind
	m.lastID = id
	return []models.StatusChange{{Kind: kind, EntityID: id, FromStatus: workflow.StatusPending, ToStatus: workflow.StatusApproved}}, nil
}

func (m *workflowServiceMock) Stats(ctx context.Context) (map[workflow.Kind]map[workflow.Status]int, error) {
	return map[workflow.Kind]map[workflow.Status]int{workflow.KindOrder: {workflow.StatusPending: 2}}, nil
}

func (m *workflowServiceMock) Vocabulary() dto.VocabularyResponse {
	return dto.VocabularyResponse{Policy: workflow.OrderPolicyFree}
}

func newWorkflowContext(method, target, body string, params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, target, nil)
	} else {
		req, _ = http.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	c.Params = params
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Email: "ops@hmx.example", Role: models.RoleAdmin})
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWorkflowHandlerListApplications(t *testing.T) {
	mockSvc := &workflowServiceMock{listResp: []models.Entity{
		{ID: 1, Status: workflow.StatusPending, Attributes: models.Attributes{"name": "Asha"}},
		{ID: 2, Status: workflow.StatusPending, Attributes: models.Attributes{"name": "Ben"}},
	}}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodGet, "/admin/applications/pilot?status=pending&search=asha", "", gin.Params{{Key: "type", Value: "pilot"}})
	handler.ListApplications(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.KindPilotApplication, mockSvc.lastKind)
	assert.Equal(t, workflow.StatusPending, mockSvc.lastQuery.Status)
	assert.Equal(t, "asha", mockSvc.lastQuery.Search)

	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])
	assert.Len(t, data["applications"], 2)
}

func TestWorkflowHandlerListApplicationsUnknownType(t *testing.T) {
	mockSvc := &workflowServiceMock{}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodGet, "/admin/applications/student", "", gin.Params{{Key: "type", Value: "student"}})
	handler.ListApplications(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mockSvc.lastKind)
}

func TestWorkflowHandlerDecideApplication(t *testing.T) {
	mockSvc := &workflowServiceMock{transitionResp: &dto.TransitionResult{
		Entity:   models.Entity{ID: 5, Status: workflow.StatusApproved},
		From:     workflow.StatusPending,
		To:       workflow.StatusApproved,
		Notified: true,
	}}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPost, "/admin/applications/editor/5/approve", `{"comments":"welcome aboard"}`, gin.Params{
		{Key: "type", Value: "editor"}, {Key: "id", Value: "5"}, {Key: "action", Value: "approve"},
	})
	handler.DecideApplication(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.actionCalled)
	assert.Equal(t, workflow.KindEditorApplication, mockSvc.lastKind)
	assert.Equal(t, int64(5), mockSvc.lastID)
	assert.Equal(t, "approve", mockSvc.lastAction)
	assert.Equal(t, "welcome aboard", mockSvc.lastComment)
	require.NotNil(t, mockSvc.lastActor)
	assert.Equal(t, "admin-1", mockSvc.lastActor.UserID)
}

func TestWorkflowHandlerDecideApplicationWithoutBody(t *testing.T) {
	mockSvc := &workflowServiceMock{transitionResp: &dto.TransitionResult{To: workflow.StatusRejected}}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPost, "/admin/applications/referral/9/reject", "", gin.Params{
		{Key: "type", Value: "referral"}, {Key: "id", Value: "9"}, {Key: "action", Value: "reject"},
	})
	handler.DecideApplication(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reject", mockSvc.lastAction)
	assert.Empty(t, mockSvc.lastComment)
}

func TestWorkflowHandlerDecideApplicationRejectsUnknownAction(t *testing.T) {
	mockSvc := &workflowServiceMock{}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPost, "/admin/applications/pilot/1/archive", "", gin.Params{
		{Key: "type", Value: "pilot"}, {Key: "id", Value: "1"}, {Key: "action", Value: "archive"},
	})
	handler.DecideApplication(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.actionCalled)
}

func TestWorkflowHandlerInvalidTransitionIsConflict(t *testing.T) {
	mockSvc := &workflowServiceMock{transitionErr: appErrors.ErrInvalidTransition}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPost, "/admin/applications/pilot/1/approve", "", gin.Params{
		{Key: "type", Value: "pilot"}, {Key: "id", Value: "1"}, {Key: "action", Value: "approve"},
	})
	handler.DecideApplication(c)

	require.Equal(t, http.StatusConflict, w.Code)
	errBody := decodeEnvelope(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "INVALID_TRANSITION", errBody["code"])
}

func TestWorkflowHandlerUpdateOrderStatus(t *testing.T) {
	mockSvc := &workflowServiceMock{transitionResp: &dto.TransitionResult{To: workflow.StatusAssigned}}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPut, "/admin/orders/12/status", `{"status":"assigned","admin_comments":"pilot booked","version":3}`, gin.Params{{Key: "id", Value: "12"}})
	handler.UpdateOrderStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.transitionCall)
	assert.Equal(t, workflow.KindOrder, mockSvc.lastKind)
	assert.Equal(t, workflow.StatusAssigned, mockSvc.lastRequest.Target)
	assert.Equal(t, "pilot booked", mockSvc.lastRequest.Comment)
	require.NotNil(t, mockSvc.lastRequest.ExpectedVersion)
	assert.Equal(t, 3, *mockSvc.lastRequest.ExpectedVersion)
}

func TestWorkflowHandlerUpdateStatusRequiresStatus(t *testing.T) {
	mockSvc := &workflowServiceMock{}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPut, "/admin/video-reviews/3", `{"admin_comments":"ok"}`, gin.Params{{Key: "id", Value: "3"}})
	handler.UpdateVideoReview(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.transitionCall)
}

func TestWorkflowHandlerInvalidID(t *testing.T) {
	mockSvc := &workflowServiceMock{}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodGet, "/admin/orders/abc", "", gin.Params{{Key: "id", Value: "abc"}})
	handler.GetOrder(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, mockSvc.lastID)
}

func TestWorkflowHandlerGetNotFound(t *testing.T) {
	mockSvc := &workflowServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "order 4 not found")}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodGet, "/admin/orders/4", "", gin.Params{{Key: "id", Value: "4"}})
	handler.GetOrder(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, int64(4), mockSvc.lastID)
}

func TestWorkflowHandlerListVideoReviewsPassesType(t *testing.T) {
	mockSvc := &workflowServiceMock{listResp: []models.Entity{{ID: 1, Status: workflow.StatusSubmitted, SubmissionType: "editor"}}}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodGet, "/admin/video-reviews?type=editor", "", nil)
	handler.ListVideoReviews(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.KindVideoSubmission, mockSvc.lastKind)
	assert.Equal(t, "editor", mockSvc.lastQuery.SubmissionType)
	assert.Len(t, decodeEnvelope(t, w)["data"], 1)
}

func TestWorkflowHandlerCreateCancellation(t *testing.T) {
	mockSvc := &workflowServiceMock{createResp: &models.Entity{ID: 30, Status: workflow.StatusPending}}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPost, "/admin/cancellations", `{"booking_id":4,"reason":"Weather","refund_amount":400}`, nil)
	handler.CreateCancellation(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(4), mockSvc.lastCreate.BookingID)
	require.NotNil(t, mockSvc.lastCreate.RefundAmount)
	assert.Equal(t, 400.0, *mockSvc.lastCreate.RefundAmount)
}

func TestWorkflowHandlerDecideCancellation(t *testing.T) {
	mockSvc := &workflowServiceMock{transitionResp: &dto.TransitionResult{To: workflow.StatusApproved}}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodPut, "/admin/cancellations/30", `{"action":"Approve","comments":"refund issued"}`, gin.Params{{Key: "id", Value: "30"}})
	handler.DecideCancellation(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.KindCancellation, mockSvc.lastKind)
	assert.Equal(t, "approve", mockSvc.lastAction)
	assert.Equal(t, "refund issued", mockSvc.lastComment)
}

func TestWorkflowHandlerHistoryUnknownKind(t *testing.T) {
	handler := NewWorkflowHandler(&workflowServiceMock{})

	c, w := newWorkflowContext(http.MethodGet, "/admin/history/student/1", "", gin.Params{{Key: "kind", Value: "student"}, {Key: "id", Value: "1"}})
	handler.History(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWorkflowHandlerHistoryAndStats(t *testing.T) {
	mockSvc := &workflowServiceMock{}
	handler := NewWorkflowHandler(mockSvc)

	c, w := newWorkflowContext(http.MethodGet, "/admin/history/cancellations/8", "", gin.Params{{Key: "kind", Value: "cancellations"}, {Key: "id", Value: "8"}})
	handler.History(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.KindCancellation, mockSvc.lastKind)
	assert.Equal(t, int64(8), mockSvc.lastID)

	c, w = newWorkflowContext(http.MethodGet, "/admin/workflow/stats", "", nil)
	handler.Stats(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["order"].(map[string]interface{})["pending"])
}
