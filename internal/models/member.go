package models

import (
	"strings"
	"time"
)

// Roster names a team the business works with.
type Roster string

const (
	RosterPilots    Roster = "pilots"
	RosterEditors   Roster = "editors"
	RosterReferrals Roster = "referrals"
	RosterClients   Roster = "clients"
)

// ParseRoster validates the {roster} path segment.
func ParseRoster(raw string) (Roster, bool) {
	switch Roster(strings.ToLower(strings.TrimSpace(raw))) {
	case RosterPilots:
		return RosterPilots, true
	case RosterEditors:
		return RosterEditors, true
	case RosterReferrals:
		return RosterReferrals, true
	case RosterClients:
		return RosterClients, true
	}
	return "", false
}

// RequiresPassword reports whether members of the roster sign in to a dashboard.
func (r Roster) RequiresPassword() bool {
	return r == RosterPilots || r == RosterEditors
}

// Member status values.
const (
	MemberStatusActive   = "active"
	MemberStatusInactive = "inactive"
)

// Member is a pilot, editor, referral partner or business client.
type Member struct {
	ID           int64      `db:"id" json:"id"`
	Roster       Roster     `db:"-" json:"roster"`
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	Phone        string     `db:"phone" json:"phone"`
	Status       string     `db:"status" json:"status"`
	PasswordHash *string    `db:"password_hash" json:"-"`
	Attributes   Attributes `db:"attributes" json:"attributes,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Summary strips the member to the fields shown in roster tables.
func (m Member) Summary() Member {
	m.Attributes = nil
	return m
}

// MemberFilter constrains roster listing queries.
type MemberFilter struct {
	Search string
	Status string
}
