package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/repository"
	"github.com/hmxfpv/admin-api/internal/workflow"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
)

type workflowStore interface {
	List(ctx context.Context, kind workflow.Kind, filter models.EntityFilter) ([]models.Entity, error)
	GetByID(ctx context.Context, kind workflow.Kind, id int64) (*models.Entity, error)
	Create(ctx context.Context, entity *models.Entity) error
	Transition(ctx context.Context, params repository.TransitionParams) (*models.Entity, error)
	SetOrderStatus(ctx context.Context, tx *sqlx.Tx, change repository.OrderStatusChange) (bool, error)
	History(ctx context.Context, kind workflow.Kind, id int64) ([]models.StatusChange, error)
	CountByStatus(ctx context.Context, kind workflow.Kind) (map[workflow.Status]int, error)
}

type rosterActivator interface {
	Activate(ctx context.Context, tx *sqlx.Tx, member *models.Member) error
}

type decisionNotifier interface {
	Notify(ctx context.Context, entity models.Entity, comment string) bool
}

// WorkflowService lists entities of every kind and applies status transitions
// guarded by the status vocabulary.
type WorkflowService struct {
	repo      workflowStore
	roster    rosterActivator
	vocab     *workflow.Vocabulary
	cache     *CacheService
	cacheTTL  time.Duration
	notifier  decisionNotifier
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// WorkflowServiceOption configures the service.
type WorkflowServiceOption func(*WorkflowService)

// WithWorkflowCache enables the Redis list cache.
func WithWorkflowCache(cache *CacheService, ttl time.Duration) WorkflowServiceOption {
	return func(s *WorkflowService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithWorkflowNotifier sets the decision email notifier.
func WithWorkflowNotifier(n decisionNotifier) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithWorkflowMetrics records transition counters.
func WithWorkflowMetrics(metrics *MetricsService) WorkflowServiceOption {
	return func(s *WorkflowService) {
		s.metrics = metrics
	}
}

// WithRosterActivator promotes approved applicants onto a roster.
func WithRosterActivator(roster rosterActivator) WorkflowServiceOption {
	return func(s *WorkflowService) {
		s.roster = roster
	}
}

// NewWorkflowService constructs the service. A nil vocabulary uses the free
// order policy.
func NewWorkflowService(repo workflowStore, vocab *workflow.Vocabulary, audit auditLogger, logger *zap.Logger, opts ...WorkflowServiceOption) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if vocab == nil {
		vocab = workflow.DefaultVocabulary()
	}
	svc := &WorkflowService{
		repo:      repo,
		vocab:     vocab,
		audit:     audit,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Vocabulary returns the full transition table and descriptors.
func (s *WorkflowService) Vocabulary() dto.VocabularyResponse {
	return dto.VocabularyResponse{
		Policy:      s.vocab.Policy(),
		Rules:       s.vocab.Table(),
		Descriptors: workflow.Descriptors(),
	}
}

// List loads every entity of kind and applies q.
func (s *WorkflowService) List(ctx context.Context, kind workflow.Kind, q workflow.Query) ([]models.Entity, error) {
	d, ok := workflow.Describe(kind)
	if !ok {
		return nil, appErrors.ErrUnknownKind
	}
	if q.Status != "" && !workflow.IsValidStatus(kind, q.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("status %q is not valid for %s", q.Status, kind))
	}
	filter := models.EntityFilter{SubmissionType: workflow.NormalizeSubmissionType(kind, q.SubmissionType)}
	if kind == workflow.KindVideoSubmission && q.SubmissionType != "" && filter.SubmissionType == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "type must be all, pilot or editor")
	}

	entities, err := s.load(ctx, kind, filter)
	if err != nil {
		return nil, err
	}
	return workflow.Apply(d, q, entities), nil
}

func (s *WorkflowService) load(ctx context.Context, kind workflow.Kind, filter models.EntityFilter) ([]models.Entity, error) {
	scope := filter.SubmissionType
	if scope == "" {
		scope = "all"
	}
	key := s.cache.Key("workflow", string(kind), "list", scope)

	var entities []models.Entity
	if key != "" {
		if hit, _ := s.cache.Get(ctx, key, &entities); hit {
			return entities, nil
		}
	}

	start := time.Now()
	rows, err := s.repo.List(ctx, kind, filter)
	s.metrics.ObserveDBQuery("workflow_list", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list "+string(kind))
	}

	entities = make([]models.Entity, 0, len(rows))
	for _, row := range rows {
		if !workflow.IsValidStatus(kind, row.Status) {
			s.logger.Warn("dropping entity with unknown status",
				zap.String("kind", string(kind)), zap.Int64("id", row.ID), zap.String("status", string(row.Status)))
			continue
		}
		entities = append(entities, row)
	}
	if key != "" {
		_ = s.cache.Set(ctx, key, entities, s.cacheTTL)
	}
	return entities, nil
}

// Get returns one entity.
func (s *WorkflowService) Get(ctx context.Context, kind workflow.Kind, id int64) (*models.Entity, error) {
	if _, ok := workflow.Describe(kind); !ok {
		return nil, appErrors.ErrUnknownKind
	}
	entity, err := s.repo.GetByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %d not found", kind, id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+string(kind))
	}
	return entity, nil
}

// History returns the recorded status changes of an entity.
func (s *WorkflowService) History(ctx context.Context, kind workflow.Kind, id int64) ([]models.StatusChange, error) {
	if _, err := s.Get(ctx, kind, id); err != nil {
		return nil, err
	}
	changes, err := s.repo.History(ctx, kind, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status history")
	}
	return changes, nil
}

// Stats returns per-status totals for every kind.
func (s *WorkflowService) Stats(ctx context.Context) (map[workflow.Kind]map[workflow.Status]int, error) {
	stats := make(map[workflow.Kind]map[workflow.Status]int, len(workflow.Kinds()))
	for _, kind := range workflow.Kinds() {
		counts, err := s.repo.CountByStatus(ctx, kind)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count "+string(kind))
		}
		perKind := make(map[workflow.Status]int, len(workflow.Statuses(kind)))
		for _, status := range workflow.Statuses(kind) {
			perKind[status] = counts[status]
		}
		stats[kind] = perKind
	}
	return stats, nil
}

// Transition moves the entity to req.Target when the vocabulary allows it.
func (s *WorkflowService) Transition(ctx context.Context, kind workflow.Kind, id int64, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if _, ok := workflow.Describe(kind); !ok {
		return nil, appErrors.ErrUnknownKind
	}
	target := workflow.Status(strings.ToLower(strings.TrimSpace(string(req.Target))))
	if !workflow.IsValidStatus(kind, target) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("status %q is not valid for %s", req.Target, kind))
	}
	entity, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	req.Target = target
	return s.apply(ctx, entity, req, actor)
}

// TransitionByAction resolves a named action (approve, reject, ...) against
// the entity's current status and applies it.
func (s *WorkflowService) TransitionByAction(ctx context.Context, kind workflow.Kind, id int64, action string, comment string, expectedVersion *int, actor *models.JWTClaims) (*dto.TransitionResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	entity, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	resolved, ok := s.vocab.ActionByName(kind, entity.Status, entity.SubmissionType, action)
	if !ok {
		s.metrics.RecordTransition(kind, entity.Status, "", OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("action %q is not available for %s in status %s", action, kind, entity.Status))
	}
	return s.apply(ctx, entity, dto.TransitionRequest{Target: resolved.Target, Comment: comment, ExpectedVersion: expectedVersion}, actor)
}

func (s *WorkflowService) apply(ctx context.Context, entity *models.Entity, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.TransitionResult, error) {
	kind := entity.Kind
	from := entity.Status
	if !s.vocab.Allowed(kind, from, entity.SubmissionType, req.Target) {
		s.metrics.RecordTransition(kind, from, req.Target, OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("%s cannot move from %s to %s", kind, from, req.Target))
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != entity.Version {
		s.metrics.RecordTransition(kind, from, req.Target, OutcomeConflict)
		return nil, appErrors.ErrStaleVersion
	}

	updated, err := s.repo.Transition(ctx, repository.TransitionParams{
		Kind:            kind,
		ID:              entity.ID,
		From:            from,
		To:              req.Target,
		Comment:         req.Comment,
		ExpectedVersion: req.ExpectedVersion,
		ChangedBy:       actor.UserID,
		Effects:         s.effectsFor(kind, req.Target, actor.UserID),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordTransition(kind, from, req.Target, OutcomeConflict)
			if req.ExpectedVersion != nil {
				return nil, appErrors.ErrStaleVersion
			}
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "status changed concurrently; reload and retry")
		}
		s.metrics.RecordTransition(kind, from, req.Target, OutcomeFailed)
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
	}
	s.metrics.RecordTransition(kind, from, req.Target, OutcomeApplied)
	s.invalidate(ctx, kind)

	oldValues, _ := json.Marshal(map[string]interface{}{"status": from, "version": entity.Version})
	newValues, _ := json.Marshal(map[string]interface{}{"status": updated.Status, "version": updated.Version, "comment": req.Comment})
	resourceID := strconv.FormatInt(entity.ID, 10)
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     optionalString(actor.UserID),
		Action:     models.AuditActionTransition,
		Resource:   string(kind),
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
	})

	notified := false
	if s.notifier != nil {
		notified = s.notifier.Notify(ctx, *updated, req.Comment)
	}
	return &dto.TransitionResult{
		Entity:   *updated,
		From:     from,
		To:       updated.Status,
		Notified: notified,
		Message:  transitionMessage(kind, updated.Status, notified),
	}, nil
}

func (s *WorkflowService) effectsFor(kind workflow.Kind, target workflow.Status, actorID string) []repository.TxEffect {
	switch {
	case kind.IsApplication() && target == workflow.StatusApproved:
		return []repository.TxEffect{s.promoteApplicant}
	case kind == workflow.KindCancellation && target == workflow.StatusApproved:
		return []repository.TxEffect{s.linkedOrderEffect(workflow.StatusCancelled, actorID, nil)}
	case kind == workflow.KindVideoSubmission && target == workflow.StatusForwardedToEditor:
		return []repository.TxEffect{s.linkedOrderEffect(workflow.StatusEditing, actorID, nil)}
	case kind == workflow.KindVideoSubmission && target == workflow.StatusCompleted:
		return []repository.TxEffect{s.linkedOrderEffect(workflow.StatusCompleted, actorID, func(e *models.Entity) models.Attributes {
			if link := e.FieldValue("drive_link"); link != "" {
				return models.Attributes{"delivery_video_link": link}
			}
			return nil
		})}
	}
	return nil
}

var applicationRosters = map[workflow.Kind]models.Roster{
	workflow.KindPilotApplication:          models.RosterPilots,
	workflow.KindEditorApplication:         models.RosterEditors,
	workflow.KindReferralApplication:       models.RosterReferrals,
	workflow.KindBusinessClientApplication: models.RosterClients,
}

func (s *WorkflowService) promoteApplicant(ctx context.Context, tx *sqlx.Tx, entity *models.Entity) error {
	if s.roster == nil {
		return nil
	}
	email := strings.TrimSpace(entity.Email())
	if email == "" {
		return appErrors.Clone(appErrors.ErrValidation, "application has no email address; cannot add the applicant to the roster")
	}
	member := &models.Member{
		Roster:     applicationRosters[entity.Kind],
		Name:       entity.DisplayName(),
		Email:      email,
		Phone:      entity.FieldValue("phone"),
		Attributes: models.Attributes{},
	}
	for k, v := range entity.Attributes {
		switch k {
		case "name", "email", "phone", "password", "password_hash":
			continue
		}
		member.Attributes[k] = v
	}
	member.Attributes["application_id"] = entity.ID
	if hash := entity.FieldValue("password_hash"); hash != "" {
		member.PasswordHash = &hash
	}
	if err := s.roster.Activate(ctx, tx, member); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add applicant to roster")
	}
	s.logger.Info("applicant promoted", zap.String("roster", string(member.Roster)), zap.Int64("member_id", member.ID))
	return nil
}

func (s *WorkflowService) linkedOrderEffect(status workflow.Status, actorID string, extra func(*models.Entity) models.Attributes) repository.TxEffect {
	return func(ctx context.Context, tx *sqlx.Tx, entity *models.Entity) error {
		orderID, ok := entity.LinkedOrderID()
		if !ok {
			s.logger.Warn("no linked order to update", zap.String("kind", string(entity.Kind)), zap.Int64("id", entity.ID))
			return nil
		}
		var attrs models.Attributes
		if extra != nil {
			attrs = extra(entity)
		}
		found, err := s.repo.SetOrderStatus(ctx, tx, repository.OrderStatusChange{
			OrderID:   orderID,
			Status:    status,
			Extra:     attrs,
			Comment:   fmt.Sprintf("%s %d %s", entity.Kind, entity.ID, entity.Status),
			ChangedBy: actorID,
		})
		if err != nil {
			return err
		}
		if !found {
			s.logger.Warn("linked order not found", zap.Int64("order_id", orderID), zap.String("kind", string(entity.Kind)))
		}
		return nil
	}
}

// CreateCancellation opens a pending cancellation for an existing booking.
func (s *WorkflowService) CreateCancellation(ctx context.Context, req dto.CreateCancellationRequest, actor *models.JWTClaims) (*models.Entity, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}
	order, err := s.Get(ctx, workflow.KindOrder, req.BookingID)
	if err != nil {
		return nil, err
	}
	if order.Status == workflow.StatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "booking is already cancelled")
	}

	attrs := models.Attributes{
		"booking_id": req.BookingID,
		"reason":     strings.TrimSpace(req.Reason),
	}
	if req.RefundAmount != nil {
		attrs["refund_amount"] = *req.RefundAmount
	}
	attrs["customer_name"] = firstNonEmpty(req.CustomerName, order.DisplayName())
	attrs["email"] = firstNonEmpty(req.Email, order.Email())
	if location := order.FieldValue("location"); location != "" {
		attrs["location"] = location
	}

	entity := &models.Entity{Kind: workflow.KindCancellation, Attributes: attrs}
	if err := s.repo.Create(ctx, entity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create cancellation")
	}
	s.invalidate(ctx, workflow.KindCancellation)

	resourceID := strconv.FormatInt(entity.ID, 10)
	newValues, _ := json.Marshal(entity)
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     optionalString(actor.UserID),
		Action:     models.AuditActionCancellationCreate,
		Resource:   string(workflow.KindCancellation),
		ResourceID: &resourceID,
		NewValues:  newValues,
	})
	return entity, nil
}

// invalidate drops the cached lists of kind and of orders, which transition
// effects may have touched.
func (s *WorkflowService) invalidate(ctx context.Context, kind workflow.Kind) {
	if !s.cache.Enabled() {
		return
	}
	_ = s.cache.Invalidate(ctx, s.cache.Key("workflow", string(kind), "*"))
	if kind != workflow.KindOrder {
		_ = s.cache.Invalidate(ctx, s.cache.Key("workflow", string(workflow.KindOrder), "*"))
	}
}

func transitionMessage(kind workflow.Kind, status workflow.Status, notified bool) string {
	label := strings.ReplaceAll(string(kind), "_", " ")
	msg := fmt.Sprintf("%s marked %s", strings.ToUpper(label[:1])+label[1:], strings.ReplaceAll(string(status), "_", " "))
	if notified {
		msg += "; the affected party will be notified via email"
	}
	return msg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
