package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/workflow"
)

const entityColumns = `id, status, submission_type, admin_comments, attributes, version, created_at, updated_at`

// TxEffect runs inside the transition transaction after the status update.
// Returning an error rolls the whole transition back.
type TxEffect func(ctx context.Context, tx *sqlx.Tx, entity *models.Entity) error

// TransitionParams describes a guarded status change.
type TransitionParams struct {
	Kind            workflow.Kind
	ID              int64
	From            workflow.Status
	To              workflow.Status
	Comment         string
	ExpectedVersion *int
	ChangedBy       string
	Effects         []TxEffect
}

// WorkflowRepository persists entities of every workflow kind. Each kind lives
// in its own table with an identical column layout.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository constructs the repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func tableFor(kind workflow.Kind) (string, error) {
	d, ok := workflow.Describe(kind)
	if !ok || d.Table == "" {
		return "", fmt.Errorf("no table for kind %q", kind)
	}
	return d.Table, nil
}

// List returns entities of kind, newest first.
func (r *WorkflowRepository) List(ctx context.Context, kind workflow.Kind, filter models.EntityFilter) ([]models.Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	args := make([]interface{}, 0, 2)
	conditions := make([]string, 0, 2)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.SubmissionType != "" {
		args = append(args, filter.SubmissionType)
		conditions = append(conditions, fmt.Sprintf("submission_type = $%d", len(args)))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", entityColumns, table)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	for i := range entities {
		entities[i].Kind = kind
	}
	return entities, nil
}

// ListByAttribute returns entities whose JSON attribute key equals value.
func (r *WorkflowRepository) ListByAttribute(ctx context.Context, kind workflow.Kind, key, value string) ([]models.Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE attributes->>$1 = $2 ORDER BY created_at DESC", entityColumns, table)
	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, key, value); err != nil {
		return nil, fmt.Errorf("list %s by %s: %w", table, key, err)
	}
	for i := range entities {
		entities[i].Kind = kind
	}
	return entities, nil
}

// GetByID fetches one entity. sql.ErrNoRows is returned unwrapped.
func (r *WorkflowRepository) GetByID(ctx context.Context, kind workflow.Kind, id int64) (*models.Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", entityColumns, table)
	var entity models.Entity
	if err := r.db.GetContext(ctx, &entity, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	entity.Kind = kind
	return &entity, nil
}

// Create inserts a new entity in its kind's initial status.
func (r *WorkflowRepository) Create(ctx context.Context, entity *models.Entity) error {
	table, err := tableFor(entity.Kind)
	if err != nil {
		return err
	}
	if entity.Status == "" {
		entity.Status = workflow.InitialStatus(entity.Kind)
	}
	if entity.Attributes == nil {
		entity.Attributes = models.Attributes{}
	}
	query := fmt.Sprintf(`INSERT INTO %s (status, submission_type, admin_comments, attributes)
	VALUES ($1, $2, $3, $4) RETURNING id, version, created_at, updated_at`, table)
	row := r.db.QueryRowxContext(ctx, query, entity.Status, entity.SubmissionType, entity.AdminComments, entity.Attributes)
	if err := row.Scan(&entity.ID, &entity.Version, &entity.CreatedAt, &entity.UpdatedAt); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}

// Transition moves an entity from params.From to params.To. The update only
// matches while the row still holds the expected status (and version, when
// given), so a concurrent writer makes it return sql.ErrNoRows. History and
// effects run in the same transaction.
func (r *WorkflowRepository) Transition(ctx context.Context, params TransitionParams) (*models.Entity, error) {
	table, err := tableFor(params.Kind)
	if err != nil {
		return nil, err
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	args := []interface{}{params.To, params.Comment, params.ID, params.From}
	query := fmt.Sprintf(`UPDATE %s SET status = $1, admin_comments = COALESCE(NULLIF($2, ''), admin_comments),
	version = version + 1, updated_at = NOW() WHERE id = $3 AND status = $4`, table)
	if params.ExpectedVersion != nil {
		args = append(args, *params.ExpectedVersion)
		query += fmt.Sprintf(" AND version = $%d", len(args))
	}
	query += " RETURNING " + entityColumns

	var entity models.Entity
	if err := tx.GetContext(ctx, &entity, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update %s status: %w", table, err)
	}
	entity.Kind = params.Kind

	if err := recordHistory(ctx, tx, params.Kind, params.ID, params.From, params.To, params.Comment, params.ChangedBy); err != nil {
		return nil, err
	}

	for _, effect := range params.Effects {
		if effect == nil {
			continue
		}
		if err := effect(ctx, tx, &entity); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	committed = true
	return &entity, nil
}

// OrderStatusChange forces a linked order into Status as a side effect of
// another entity's transition.
type OrderStatusChange struct {
	OrderID   int64
	Status    workflow.Status
	Extra     models.Attributes
	Comment   string
	ChangedBy string
}

// SetOrderStatus applies change inside tx, merges its extra attributes and
// records the order's own status history row. It reports whether the order
// exists.
func (r *WorkflowRepository) SetOrderStatus(ctx context.Context, tx *sqlx.Tx, change OrderStatusChange) (bool, error) {
	extra := change.Extra
	if extra == nil {
		extra = models.Attributes{}
	}
	const query = `WITH prior AS (SELECT id, status FROM orders WHERE id = $3 FOR UPDATE)
	UPDATE orders o SET status = $1, attributes = o.attributes || $2::jsonb, version = o.version + 1, updated_at = NOW()
	FROM prior WHERE o.id = prior.id RETURNING prior.status`
	var from workflow.Status
	if err := tx.GetContext(ctx, &from, query, change.Status, extra, change.OrderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("update linked order %d: %w", change.OrderID, err)
	}
	if from == change.Status {
		return true, nil
	}
	if err := recordHistory(ctx, tx, workflow.KindOrder, change.OrderID, from, change.Status, change.Comment, change.ChangedBy); err != nil {
		return false, err
	}
	return true, nil
}

func recordHistory(ctx context.Context, tx *sqlx.Tx, kind workflow.Kind, id int64, from, to workflow.Status, comment, changedBy string) error {
	const query = `INSERT INTO status_history (kind, entity_id, from_status, to_status, comment, changed_by)
	VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, query, kind, id, from, to, nullableString(comment), nullableString(changedBy)); err != nil {
		return fmt.Errorf("record status history: %w", err)
	}
	return nil
}

// History returns the status changes of one entity, oldest first.
func (r *WorkflowRepository) History(ctx context.Context, kind workflow.Kind, id int64) ([]models.StatusChange, error) {
	const query = `SELECT id, kind, entity_id, from_status, to_status, comment, changed_by, created_at
	FROM status_history WHERE kind = $1 AND entity_id = $2 ORDER BY created_at ASC, id ASC`
	var changes []models.StatusChange
	if err := r.db.SelectContext(ctx, &changes, query, kind, id); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return changes, nil
}

// CountByStatus returns per-status totals for kind.
func (r *WorkflowRepository) CountByStatus(ctx context.Context, kind workflow.Kind) (map[workflow.Status]int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Status workflow.Status `db:"status"`
		Total  int             `db:"total"`
	}
	query := fmt.Sprintf("SELECT status, COUNT(*) AS total FROM %s GROUP BY status", table)
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count %s by status: %w", table, err)
	}
	counts := make(map[workflow.Status]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
