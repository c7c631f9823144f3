package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/workflow"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
)

type memberStore interface {
	List(ctx context.Context, roster models.Roster, filter models.MemberFilter) ([]models.Member, error)
	GetByID(ctx context.Context, roster models.Roster, id int64) (*models.Member, error)
	ExistsByEmail(ctx context.Context, roster models.Roster, email string, excludeID int64) (bool, error)
	Create(ctx context.Context, member *models.Member) error
	Update(ctx context.Context, member *models.Member) error
	Delete(ctx context.Context, roster models.Roster, id int64) error
}

type orderFinder interface {
	ListByAttribute(ctx context.Context, kind workflow.Kind, key, value string) ([]models.Entity, error)
}

// orders reference roster members through these attribute keys
var rosterOrderKeys = map[models.Roster]string{
	models.RosterPilots:    "pilot_id",
	models.RosterEditors:   "editor_id",
	models.RosterReferrals: "referral_id",
	models.RosterClients:   "client_id",
}

// MemberService manages the pilot, editor, referral and client rosters.
type MemberService struct {
	repo      memberStore
	orders    orderFinder
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMemberService constructs a MemberService.
func NewMemberService(repo memberStore, orders orderFinder, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *MemberService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MemberService{repo: repo, orders: orders, audit: audit, validator: validate, logger: logger}
}

// List returns roster members matching filter.
func (s *MemberService) List(ctx context.Context, roster models.Roster, filter models.MemberFilter) ([]models.Member, error) {
	if filter.Status != "" && filter.Status != models.MemberStatusActive && filter.Status != models.MemberStatusInactive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be active or inactive")
	}
	members, err := s.repo.List(ctx, roster, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list "+string(roster))
	}
	out := make([]models.Member, 0, len(members))
	for _, m := range members {
		out = append(out, m.Summary())
	}
	return out, nil
}

// Get returns a single member.
func (s *MemberService) Get(ctx context.Context, roster models.Roster, id int64) (*models.Member, error) {
	member, err := s.repo.GetByID(ctx, roster, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s member %d not found", roster, id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member")
	}
	return member, nil
}

// Details returns the member with the orders linked to them.
func (s *MemberService) Details(ctx context.Context, roster models.Roster, id int64) (*dto.MemberDetailResponse, error) {
	member, err := s.Get(ctx, roster, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.MemberDetailResponse{Member: *member, Orders: []models.Entity{}, Summary: map[string]int{"total": 0}}
	key, ok := rosterOrderKeys[roster]
	if !ok || s.orders == nil {
		return resp, nil
	}
	orders, err := s.orders.ListByAttribute(ctx, workflow.KindOrder, key, strconv.FormatInt(id, 10))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load member orders")
	}
	resp.Orders = orders
	resp.Summary["total"] = len(orders)
	for _, status := range workflow.Statuses(workflow.KindOrder) {
		resp.Summary[string(status)] = 0
	}
	for _, order := range orders {
		resp.Summary[string(order.Status)]++
	}
	return resp, nil
}

// Create adds a member to the roster.
func (s *MemberService) Create(ctx context.Context, roster models.Roster, req dto.CreateMemberRequest, actorID string) (*models.Member, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid member payload")
	}
	if roster.RequiresPassword() && req.Password == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("password is required for %s", roster))
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.ensureUniqueEmail(ctx, roster, email, 0); err != nil {
		return nil, err
	}

	member := &models.Member{
		Roster:     roster,
		Name:       strings.TrimSpace(req.Name),
		Email:      email,
		Phone:      strings.TrimSpace(req.Phone),
		Status:     req.Status,
		Attributes: req.Attributes,
	}
	if req.Password != "" {
		hash, err := hashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		member.PasswordHash = &hash
	}
	if err := s.repo.Create(ctx, member); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create member")
	}

	s.auditMember(ctx, models.AuditActionMemberCreate, actorID, member, nil)
	return member, nil
}

// Update patches a member.
func (s *MemberService) Update(ctx context.Context, roster models.Roster, id int64, req dto.UpdateMemberRequest, actorID string) (*models.Member, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid member payload")
	}
	member, err := s.Get(ctx, roster, id)
	if err != nil {
		return nil, err
	}
	before := *member

	if req.Name != nil {
		member.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != member.Email {
			if err := s.ensureUniqueEmail(ctx, roster, email, id); err != nil {
				return nil, err
			}
		}
		member.Email = email
	}
	if req.Phone != nil {
		member.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Status != nil {
		member.Status = *req.Status
	}
	if req.Password != nil && *req.Password != "" {
		hash, err := hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		member.PasswordHash = &hash
	}
	if req.Attributes != nil {
		merged := models.Attributes{}
		for k, v := range member.Attributes {
			merged[k] = v
		}
		for k, v := range req.Attributes {
			merged[k] = v
		}
		member.Attributes = merged
	}

	if err := s.repo.Update(ctx, member); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s member %d not found", roster, id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update member")
	}

	s.auditMember(ctx, models.AuditActionMemberUpdate, actorID, member, &before)
	return member, nil
}

// Delete removes a member.
func (s *MemberService) Delete(ctx context.Context, roster models.Roster, id int64, actorID string) error {
	member, err := s.Get(ctx, roster, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, roster, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s member %d not found", roster, id))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete member")
	}
	s.auditMember(ctx, models.AuditActionMemberDelete, actorID, nil, member)
	return nil
}

func (s *MemberService) ensureUniqueEmail(ctx context.Context, roster models.Roster, email string, excludeID int64) error {
	exists, err := s.repo.ExistsByEmail(ctx, roster, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %s is already registered on %s", email, roster))
	}
	return nil
}

func (s *MemberService) auditMember(ctx context.Context, action, actorID string, after, before *models.Member) {
	var target *models.Member
	if after != nil {
		target = after
	} else {
		target = before
	}
	if target == nil {
		return
	}
	resourceID := strconv.FormatInt(target.ID, 10)
	entry := &models.AuditLog{
		UserID:     optionalString(actorID),
		Action:     action,
		Resource:   string(target.Roster),
		ResourceID: &resourceID,
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before.Summary())
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after.Summary())
	}
	emitAudit(ctx, s.audit, s.logger, entry)
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	return string(hash), nil
}
