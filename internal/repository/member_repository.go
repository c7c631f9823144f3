package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/hmxfpv/admin-api/internal/models"
)

const memberColumns = `id, name, email, phone, status, password_hash, attributes, created_at, updated_at`

// MemberRepository manages the pilot, editor, referral and client rosters.
type MemberRepository struct {
	db *sqlx.DB
}

// NewMemberRepository constructs the repository.
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func rosterTable(roster models.Roster) (string, error) {
	if _, ok := models.ParseRoster(string(roster)); !ok {
		return "", fmt.Errorf("unknown roster %q", roster)
	}
	return string(roster), nil
}

// List returns roster members ordered by name.
func (r *MemberRepository) List(ctx context.Context, roster models.Roster, filter models.MemberFilter) ([]models.Member, error) {
	table, err := rosterTable(roster)
	if err != nil {
		return nil, err
	}
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%[1]d OR LOWER(email) LIKE $%[1]d OR phone LIKE $%[1]d)", len(args)))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", memberColumns, table)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name ASC"

	var members []models.Member
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	for i := range members {
		members[i].Roster = roster
	}
	return members, nil
}

// GetByID fetches a member. sql.ErrNoRows is returned unwrapped.
func (r *MemberRepository) GetByID(ctx context.Context, roster models.Roster, id int64) (*models.Member, error) {
	table, err := rosterTable(roster)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", memberColumns, table)
	var member models.Member
	if err := r.db.GetContext(ctx, &member, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	member.Roster = roster
	return &member, nil
}

// ExistsByEmail checks whether another member of the roster uses email.
func (r *MemberRepository) ExistsByEmail(ctx context.Context, roster models.Roster, email string, excludeID int64) (bool, error) {
	table, err := rosterTable(roster)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE LOWER(email) = LOWER($1) AND id <> $2)", table)
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email, excludeID); err != nil {
		return false, fmt.Errorf("check %s email: %w", table, err)
	}
	return exists, nil
}

// Create inserts a member and fills generated columns.
func (r *MemberRepository) Create(ctx context.Context, member *models.Member) error {
	table, err := rosterTable(member.Roster)
	if err != nil {
		return err
	}
	if member.Status == "" {
		member.Status = models.MemberStatusActive
	}
	if member.Attributes == nil {
		member.Attributes = models.Attributes{}
	}
	query := fmt.Sprintf(`INSERT INTO %s (name, email, phone, status, password_hash, attributes)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`, table)
	row := r.db.QueryRowxContext(ctx, query, member.Name, member.Email, member.Phone, member.Status,
		member.PasswordHash, member.Attributes)
	if err := row.Scan(&member.ID, &member.CreatedAt, &member.UpdatedAt); err != nil {
		return fmt.Errorf("create %s member: %w", table, err)
	}
	return nil
}

// Update persists mutable member fields.
func (r *MemberRepository) Update(ctx context.Context, member *models.Member) error {
	table, err := rosterTable(member.Roster)
	if err != nil {
		return err
	}
	if member.Attributes == nil {
		member.Attributes = models.Attributes{}
	}
	query := fmt.Sprintf(`UPDATE %s SET name = $1, email = $2, phone = $3, status = $4, password_hash = $5,
	attributes = $6, updated_at = NOW() WHERE id = $7 RETURNING updated_at`, table)
	row := r.db.QueryRowxContext(ctx, query, member.Name, member.Email, member.Phone, member.Status,
		member.PasswordHash, member.Attributes, member.ID)
	if err := row.Scan(&member.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// Delete removes a member permanently.
func (r *MemberRepository) Delete(ctx context.Context, roster models.Roster, id int64) error {
	table, err := rosterTable(roster)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s delete rows: %w", table, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Activate inserts the member inside tx or, when the email is already on the
// roster, marks the existing row active.
func (r *MemberRepository) Activate(ctx context.Context, tx *sqlx.Tx, member *models.Member) error {
	table, err := rosterTable(member.Roster)
	if err != nil {
		return err
	}
	if member.Attributes == nil {
		member.Attributes = models.Attributes{}
	}
	query := fmt.Sprintf(`INSERT INTO %s (name, email, phone, status, password_hash, attributes)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (email) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
	RETURNING id, created_at, updated_at`, table)
	row := tx.QueryRowxContext(ctx, query, member.Name, member.Email, member.Phone, models.MemberStatusActive,
		member.PasswordHash, member.Attributes)
	if err := row.Scan(&member.ID, &member.CreatedAt, &member.UpdatedAt); err != nil {
		return fmt.Errorf("activate %s member: %w", table, err)
	}
	member.Status = models.MemberStatusActive
	return nil
}
