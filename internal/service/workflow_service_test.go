package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/repository"
	"github.com/hmxfpv/admin-api/internal/workflow"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
)

type orderUpdate struct {
	id        int64
	status    workflow.Status
	extra     models.Attributes
	comment   string
	changedBy string
}

type workflowStoreStub struct {
	entities     map[workflow.Kind]map[int64]models.Entity
	listCalls    int
	transitions  []repository.TransitionParams
	transitionFn func(params repository.TransitionParams) error
	orderUpdates []orderUpdate
	created      []*models.Entity
	counts       map[workflow.Status]int
}

func newWorkflowStoreStub(entities ...models.Entity) *workflowStoreStub {
	s := &workflowStoreStub{entities: map[workflow.Kind]map[int64]models.Entity{}}
	for _, e := range entities {
		if s.entities[e.Kind] == nil {
			s.entities[e.Kind] = map[int64]models.Entity{}
		}
		s.entities[e.Kind][e.ID] = e
	}
	return s
}

func (s *workflowStoreStub) List(ctx context.Context, kind workflow.Kind, filter models.EntityFilter) ([]models.Entity, error) {
	s.listCalls++
	out := []models.Entity{}
	for _, e := range s.entities[kind] {
		if filter.SubmissionType != "" && e.SubmissionType != filter.SubmissionType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *workflowStoreStub) GetByID(ctx context.Context, kind workflow.Kind, id int64) (*models.Entity, error) {
	e, ok := s.entities[kind][id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (s *workflowStoreStub) Create(ctx context.Context, entity *models.Entity) error {
	entity.ID = int64(100 + len(s.created))
	entity.Status = workflow.InitialStatus(entity.Kind)
	entity.Version = 1
	s.created = append(s.created, entity)
	return nil
}

func (s *workflowStoreStub) Transition(ctx context.Context, params repository.TransitionParams) (*models.Entity, error) {
	s.transitions = append(s.transitions, params)
	if s.transitionFn != nil {
		if err := s.transitionFn(params); err != nil {
			return nil, err
		}
	}
	e := s.entities[params.Kind][params.ID]
	e.Status = params.To
	e.Version++
	if params.Comment != "" {
		e.AdminComments = params.Comment
	}
	for _, effect := range params.Effects {
		if err := effect(ctx, nil, &e); err != nil {
			return nil, err
		}
	}
	s.entities[params.Kind][params.ID] = e
	return &e, nil
}

func (s *workflowStoreStub) SetOrderStatus(ctx context.Context, tx *sqlx.Tx, change repository.OrderStatusChange) (bool, error) {
	s.orderUpdates = append(s.orderUpdates, orderUpdate{
		id:        change.OrderID,
		status:    change.Status,
		extra:     change.Extra,
		comment:   change.Comment,
		changedBy: change.ChangedBy,
	})
	_, ok := s.entities[workflow.KindOrder][change.OrderID]
	return ok, nil
}

func (s *workflowStoreStub) History(ctx context.Context, kind workflow.Kind, id int64) ([]models.StatusChange, error) {
	return []models.StatusChange{{Kind: kind, EntityID: id, FromStatus: workflow.StatusPending, ToStatus: workflow.StatusApproved}}, nil
}

func (s *workflowStoreStub) CountByStatus(ctx context.Context, kind workflow.Kind) (map[workflow.Status]int, error) {
	return s.counts, nil
}

type rosterStub struct {
	members []*models.Member
	err     error
}

func (r *rosterStub) Activate(ctx context.Context, tx *sqlx.Tx, member *models.Member) error {
	if r.err != nil {
		return r.err
	}
	member.ID = 501
	r.members = append(r.members, member)
	return nil
}

type notifierStub struct {
	notified []models.Entity
	result   bool
}

func (n *notifierStub) Notify(ctx context.Context, entity models.Entity, comment string) bool {
	n.notified = append(n.notified, entity)
	return n.result
}

var adminClaims = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

func pilotApplication(id int64, status workflow.Status) models.Entity {
	return models.Entity{
		ID:      id,
		Kind:    workflow.KindPilotApplication,
		Status:  status,
		Version: 1,
		Attributes: models.Attributes{
			"name":           "Asha Rao",
			"email":          "asha@example.com",
			"phone":          "555-0101",
			"license_number": "DGCA-1",
			"password_hash":  "$2a$hash",
		},
	}
}

func TestWorkflowListDropsUnknownStatusesAndFilters(t *testing.T) {
	store := newWorkflowStoreStub(
		pilotApplication(1, workflow.StatusPending),
		pilotApplication(2, workflow.StatusApproved),
		pilotApplication(3, "archived"),
	)
	svc := NewWorkflowService(store, nil, nil, zap.NewNop())

	all, err := svc.List(context.Background(), workflow.KindPilotApplication, workflow.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := svc.List(context.Background(), workflow.KindPilotApplication, workflow.Query{Status: workflow.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1), pending[0].ID)

	_, err = svc.List(context.Background(), workflow.KindPilotApplication, workflow.Query{Status: workflow.StatusCompleted})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.List(context.Background(), workflow.Kind("student"), workflow.Query{})
	assert.Equal(t, appErrors.ErrUnknownKind.Code, appErrors.FromError(err).Code)
}

func TestWorkflowListVideoTypeFilter(t *testing.T) {
	store := newWorkflowStoreStub(
		models.Entity{ID: 1, Kind: workflow.KindVideoSubmission, Status: workflow.StatusSubmitted, SubmissionType: "pilot"},
		models.Entity{ID: 2, Kind: workflow.KindVideoSubmission, Status: workflow.StatusSubmitted, SubmissionType: "editor"},
	)
	svc := NewWorkflowService(store, nil, nil, nil)

	editors, err := svc.List(context.Background(), workflow.KindVideoSubmission, workflow.Query{SubmissionType: "editor"})
	require.NoError(t, err)
	require.Len(t, editors, 1)
	assert.Equal(t, int64(2), editors[0].ID)

	_, err = svc.List(context.Background(), workflow.KindVideoSubmission, workflow.Query{SubmissionType: "director"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWorkflowApproveApplicationPromotesAndNotifies(t *testing.T) {
	store := newWorkflowStoreStub(pilotApplication(7, workflow.StatusPending))
	roster := &rosterStub{}
	notifier := &notifierStub{result: true}
	audit := &auditStub{}
	svc := NewWorkflowService(store, workflow.DefaultVocabulary(), audit, nil,
		WithRosterActivator(roster), WithWorkflowNotifier(notifier), WithWorkflowMetrics(NewMetricsService()))

	res, err := svc.TransitionByAction(context.Background(), workflow.KindPilotApplication, 7, "approve", "Welcome aboard", nil, adminClaims)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, res.From)
	assert.Equal(t, workflow.StatusApproved, res.To)
	assert.True(t, res.Notified)
	assert.Contains(t, res.Message, "notified via email")
	assert.Equal(t, "Welcome aboard", res.Entity.AdminComments)

	require.Len(t, store.transitions, 1)
	params := store.transitions[0]
	assert.Equal(t, workflow.StatusPending, params.From)
	assert.Equal(t, "admin-1", params.ChangedBy)

	require.Len(t, roster.members, 1)
	member := roster.members[0]
	assert.Equal(t, models.RosterPilots, member.Roster)
	assert.Equal(t, "asha@example.com", member.Email)
	require.NotNil(t, member.PasswordHash)
	assert.Equal(t, "$2a$hash", *member.PasswordHash)
	assert.Equal(t, "DGCA-1", member.Attributes["license_number"])
	_, leaked := member.Attributes["password_hash"]
	assert.False(t, leaked)

	require.Len(t, notifier.notified, 1)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionTransition, audit.logs[0].Action)
}

func TestWorkflowRejectsDisallowedTransitionWithoutWriting(t *testing.T) {
	store := newWorkflowStoreStub(pilotApplication(8, workflow.StatusApproved))
	notifier := &notifierStub{}
	svc := NewWorkflowService(store, nil, nil, nil, WithWorkflowNotifier(notifier))

	_, err := svc.TransitionByAction(context.Background(), workflow.KindPilotApplication, 8, "reject", "", nil, adminClaims)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	_, err = svc.Transition(context.Background(), workflow.KindPilotApplication, 8, dto.TransitionRequest{Target: workflow.StatusRejected}, adminClaims)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	assert.Empty(t, store.transitions)
	assert.Empty(t, notifier.notified)
}

func TestWorkflowTransitionValidation(t *testing.T) {
	store := newWorkflowStoreStub(models.Entity{ID: 3, Kind: workflow.KindOrder, Status: workflow.StatusPending, Version: 2})
	svc := NewWorkflowService(store, nil, nil, nil)

	_, err := svc.Transition(context.Background(), workflow.KindOrder, 3, dto.TransitionRequest{Target: "shipped"}, adminClaims)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Transition(context.Background(), workflow.KindOrder, 99, dto.TransitionRequest{Target: workflow.StatusAssigned}, adminClaims)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Transition(context.Background(), workflow.KindOrder, 3, dto.TransitionRequest{Target: workflow.StatusAssigned}, nil)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	stale := 1
	_, err = svc.Transition(context.Background(), workflow.KindOrder, 3, dto.TransitionRequest{Target: workflow.StatusAssigned, ExpectedVersion: &stale}, adminClaims)
	assert.Equal(t, appErrors.ErrStaleVersion.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.transitions)

	res, err := svc.Transition(context.Background(), workflow.KindOrder, 3, dto.TransitionRequest{Target: " ASSIGNED "}, adminClaims)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusAssigned, res.To)
	assert.False(t, res.Notified)
}

func TestWorkflowConcurrentChangeSurfacesConflict(t *testing.T) {
	store := newWorkflowStoreStub(models.Entity{ID: 4, Kind: workflow.KindCancellation, Status: workflow.StatusPending, Version: 1})
	store.transitionFn = func(repository.TransitionParams) error { return sql.ErrNoRows }
	svc := NewWorkflowService(store, nil, nil, nil)

	_, err := svc.TransitionByAction(context.Background(), workflow.KindCancellation, 4, "approve", "", nil, adminClaims)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	version := 1
	_, err = svc.TransitionByAction(context.Background(), workflow.KindCancellation, 4, "approve", "", &version, adminClaims)
	assert.Equal(t, appErrors.ErrStaleVersion.Code, appErrors.FromError(err).Code)

	store.transitionFn = func(repository.TransitionParams) error { return errors.New("connection reset") }
	_, err = svc.TransitionByAction(context.Background(), workflow.KindCancellation, 4, "approve", "", nil, adminClaims)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestWorkflowCancellationApprovalCancelsOrder(t *testing.T) {
	store := newWorkflowStoreStub(
		models.Entity{ID: 4, Kind: workflow.KindCancellation, Status: workflow.StatusPending, Attributes: models.Attributes{"booking_id": float64(30), "email": "c@example.com"}},
		models.Entity{ID: 30, Kind: workflow.KindOrder, Status: workflow.StatusAssigned},
	)
	svc := NewWorkflowService(store, nil, nil, nil)

	_, err := svc.TransitionByAction(context.Background(), workflow.KindCancellation, 4, "approve", "", nil, adminClaims)
	require.NoError(t, err)
	require.Len(t, store.orderUpdates, 1)
	assert.Equal(t, int64(30), store.orderUpdates[0].id)
	assert.Equal(t, workflow.StatusCancelled, store.orderUpdates[0].status)
	assert.Equal(t, "admin-1", store.orderUpdates[0].changedBy)
	assert.Equal(t, "cancellation 4 approved", store.orderUpdates[0].comment)
}

func TestWorkflowTransitionMetricsLabelStatuses(t *testing.T) {
	store := newWorkflowStoreStub(
		models.Entity{ID: 4, Kind: workflow.KindCancellation, Status: workflow.StatusPending, Attributes: models.Attributes{"booking_id": float64(30)}},
		models.Entity{ID: 30, Kind: workflow.KindOrder, Status: workflow.StatusAssigned},
	)
	metrics := NewMetricsService()
	svc := NewWorkflowService(store, nil, nil, nil, WithWorkflowMetrics(metrics))

	_, err := svc.TransitionByAction(context.Background(), workflow.KindCancellation, 4, "approve", "", nil, adminClaims)
	require.NoError(t, err)
	_, err = svc.TransitionByAction(context.Background(), workflow.KindCancellation, 4, "reject", "", nil, adminClaims)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("cancellation", "pending", "approved", OutcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("cancellation", "approved", "unresolved", OutcomeRejected)))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("cancellation", "approved", "reject", OutcomeRejected)))
}

func TestWorkflowVideoEffects(t *testing.T) {
	store := newWorkflowStoreStub(
		models.Entity{ID: 1, Kind: workflow.KindVideoSubmission, Status: workflow.StatusSubmitted, SubmissionType: "pilot", Attributes: models.Attributes{"order_id": float64(9)}},
		models.Entity{ID: 2, Kind: workflow.KindVideoSubmission, Status: workflow.StatusSubmitted, SubmissionType: "editor", Attributes: models.Attributes{"order_id": float64(9), "drive_link": "https://drive.example.com/final"}},
	)
	svc := NewWorkflowService(store, nil, nil, nil)

	_, err := svc.Transition(context.Background(), workflow.KindVideoSubmission, 1, dto.TransitionRequest{Target: workflow.StatusCompleted}, adminClaims)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code, "pilot footage cannot be completed directly")

	_, err = svc.Transition(context.Background(), workflow.KindVideoSubmission, 1, dto.TransitionRequest{Target: workflow.StatusForwardedToEditor}, adminClaims)
	require.NoError(t, err)
	_, err = svc.Transition(context.Background(), workflow.KindVideoSubmission, 2, dto.TransitionRequest{Target: workflow.StatusCompleted}, adminClaims)
	require.NoError(t, err)

	require.Len(t, store.orderUpdates, 2)
	assert.Equal(t, workflow.StatusEditing, store.orderUpdates[0].status)
	assert.Equal(t, workflow.StatusCompleted, store.orderUpdates[1].status)
	assert.Equal(t, "https://drive.example.com/final", store.orderUpdates[1].extra["delivery_video_link"])
}

func TestWorkflowRosterFailureAbortsTransition(t *testing.T) {
	store := newWorkflowStoreStub(pilotApplication(7, workflow.StatusPending))
	notifier := &notifierStub{result: true}
	svc := NewWorkflowService(store, nil, nil, nil, WithRosterActivator(&rosterStub{err: errors.New("unique violation")}), WithWorkflowNotifier(notifier))

	_, err := svc.TransitionByAction(context.Background(), workflow.KindPilotApplication, 7, "approve", "", nil, adminClaims)
	require.Error(t, err)
	assert.Equal(t, workflow.StatusPending, store.entities[workflow.KindPilotApplication][7].Status)
	assert.Empty(t, notifier.notified)
}

func TestCreateCancellation(t *testing.T) {
	store := newWorkflowStoreStub(
		models.Entity{ID: 30, Kind: workflow.KindOrder, Status: workflow.StatusAssigned, Attributes: models.Attributes{"customer_name": "Meera", "email": "meera@example.com", "location": "Goa"}},
		models.Entity{ID: 31, Kind: workflow.KindOrder, Status: workflow.StatusCancelled},
	)
	audit := &auditStub{}
	svc := NewWorkflowService(store, nil, audit, nil)

	refund := 400.0
	entity, err := svc.CreateCancellation(context.Background(), dto.CreateCancellationRequest{BookingID: 30, Reason: " Weather ", RefundAmount: &refund}, adminClaims)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPending, entity.Status)
	assert.Equal(t, "Meera", entity.DisplayName())
	assert.Equal(t, "meera@example.com", entity.Email())
	assert.Equal(t, "Weather", entity.FieldValue("reason"))
	require.Len(t, audit.logs, 1)

	_, err = svc.CreateCancellation(context.Background(), dto.CreateCancellationRequest{BookingID: 31, Reason: "again"}, adminClaims)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateCancellation(context.Background(), dto.CreateCancellationRequest{BookingID: 404, Reason: "x"}, adminClaims)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateCancellation(context.Background(), dto.CreateCancellationRequest{}, adminClaims)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWorkflowStatsAndHistory(t *testing.T) {
	store := newWorkflowStoreStub(pilotApplication(1, workflow.StatusApproved))
	store.counts = map[workflow.Status]int{workflow.StatusPending: 2}
	svc := NewWorkflowService(store, nil, nil, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Len(t, stats, len(workflow.Kinds()))
	assert.Equal(t, 2, stats[workflow.KindCancellation][workflow.StatusPending])
	assert.Equal(t, 0, stats[workflow.KindCancellation][workflow.StatusApproved])
	_, hasForeign := stats[workflow.KindCancellation][workflow.StatusCompleted]
	assert.False(t, hasForeign)

	history, err := svc.History(context.Background(), workflow.KindPilotApplication, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = svc.History(context.Background(), workflow.KindPilotApplication, 2)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestWorkflowVocabulary(t *testing.T) {
	svc := NewWorkflowService(newWorkflowStoreStub(), workflow.NewVocabulary(workflow.OrderPolicySequential), nil, nil)
	vocab := svc.Vocabulary()
	assert.Equal(t, workflow.OrderPolicySequential, vocab.Policy)
	assert.Len(t, vocab.Descriptors, len(workflow.Kinds()))
	assert.NotEmpty(t, vocab.Rules)
}
