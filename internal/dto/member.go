package dto

import "github.com/hmxfpv/admin-api/internal/models"

// CreateMemberRequest adds a pilot, editor, referral partner or client.
type CreateMemberRequest struct {
	Name       string            `json:"name" validate:"required,min=2"`
	Email      string            `json:"email" validate:"required,email"`
	Phone      string            `json:"phone" validate:"required"`
	Password   string            `json:"password" validate:"omitempty,min=8"`
	Status     string            `json:"status" validate:"omitempty,oneof=active inactive"`
	Attributes models.Attributes `json:"attributes"`
}

// UpdateMemberRequest patches roster fields; nil fields are left untouched.
type UpdateMemberRequest struct {
	Name       *string           `json:"name" validate:"omitempty,min=2"`
	Email      *string           `json:"email" validate:"omitempty,email"`
	Phone      *string           `json:"phone"`
	Password   *string           `json:"password" validate:"omitempty,min=8"`
	Status     *string           `json:"status" validate:"omitempty,oneof=active inactive"`
	Attributes models.Attributes `json:"attributes"`
}

// MemberDetailResponse is served by GET /admin/{roster}/{id}/details.
type MemberDetailResponse struct {
	Member  models.Member   `json:"member"`
	Orders  []models.Entity `json:"orders"`
	Summary map[string]int  `json:"summary"`
}
