package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hmxfpv/admin-api/internal/dto"
	"github.com/hmxfpv/admin-api/internal/models"
	appErrors "github.com/hmxfpv/admin-api/pkg/errors"
	"github.com/hmxfpv/admin-api/pkg/response"
)

type memberService interface {
	List(ctx context.Context, roster models.Roster, filter models.MemberFilter) ([]models.Member, error)
	Get(ctx context.Context, roster models.Roster, id int64) (*models.Member, error)
	Details(ctx context.Context, roster models.Roster, id int64) (*dto.MemberDetailResponse, error)
	Create(ctx context.Context, roster models.Roster, req dto.CreateMemberRequest, actorID string) (*models.Member, error)
	Update(ctx context.Context, roster models.Roster, id int64, req dto.UpdateMemberRequest, actorID string) (*models.Member, error)
	Delete(ctx context.Context, roster models.Roster, id int64, actorID string) error
}

// MemberHandler manages the pilot, editor, referral and client rosters. Each
// method returns a handler bound to one roster.
type MemberHandler struct {
	service memberService
}

// NewMemberHandler builds a new handler.
func NewMemberHandler(service memberService) *MemberHandler {
	return &MemberHandler{service: service}
}

// List godoc
// @Summary List roster members
// @Tags Rosters
// @Produce json
// @Param roster path string true "pilots, editors, referrals or clients"
// @Param search query string false "Name, email or phone"
// @Param status query string false "active or inactive"
// @Success 200 {object} response.Envelope
// @Router /admin/{roster} [get]
func (h *MemberHandler) List(roster models.Roster) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.MemberFilter{
			Search: c.Query("search"),
			Status: c.Query("status"),
		}
		members, err := h.service.List(c.Request.Context(), roster, filter)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, members, nil)
	}
}

// Get godoc
// @Summary Get a roster member
// @Tags Rosters
// @Produce json
// @Param roster path string true "Roster"
// @Param id path int true "Member ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/{roster}/{id} [get]
func (h *MemberHandler) Get(roster models.Roster) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		member, err := h.service.Get(c.Request.Context(), roster, id)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, member, nil)
	}
}

// Details godoc
// @Summary Member profile with linked orders
// @Tags Rosters
// @Produce json
// @Param roster path string true "Roster"
// @Param id path int true "Member ID"
// @Success 200 {object} response.Envelope
// @Router /admin/{roster}/{id}/details [get]
func (h *MemberHandler) Details(roster models.Roster) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		details, err := h.service.Details(c.Request.Context(), roster, id)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, details, nil)
	}
}

// Create godoc
// @Summary Add a roster member
// @Tags Rosters
// @Accept json
// @Produce json
// @Param roster path string true "Roster"
// @Param payload body dto.CreateMemberRequest true "Member payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/{roster} [post]
func (h *MemberHandler) Create(roster models.Roster) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.CreateMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid member payload"))
			return
		}
		member, err := h.service.Create(c.Request.Context(), roster, req, actorID(c))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Created(c, member)
	}
}

// Update godoc
// @Summary Update a roster member
// @Tags Rosters
// @Accept json
// @Produce json
// @Param roster path string true "Roster"
// @Param id path int true "Member ID"
// @Param payload body dto.UpdateMemberRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /admin/{roster}/{id} [put]
func (h *MemberHandler) Update(roster models.Roster) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req dto.UpdateMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid member payload"))
			return
		}
		member, err := h.service.Update(c.Request.Context(), roster, id, req, actorID(c))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, member, nil)
	}
}

// Delete godoc
// @Summary Remove a roster member
// @Tags Rosters
// @Param roster path string true "Roster"
// @Param id path int true "Member ID"
// @Success 204
// @Router /admin/{roster}/{id} [delete]
func (h *MemberHandler) Delete(roster models.Roster) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := h.service.Delete(c.Request.Context(), roster, id, actorID(c)); err != nil {
			response.Error(c, err)
			return
		}
		response.NoContent(c)
	}
}

func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}
