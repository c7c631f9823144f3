package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hmxfpv/admin-api/internal/models"
)

// EmailTemplateRepository stores admin-edited notification templates.
type EmailTemplateRepository struct {
	db *sqlx.DB
}

// NewEmailTemplateRepository constructs the repository.
func NewEmailTemplateRepository(db *sqlx.DB) *EmailTemplateRepository {
	return &EmailTemplateRepository{db: db}
}

// List returns every stored template ordered by name.
func (r *EmailTemplateRepository) List(ctx context.Context) ([]models.EmailTemplate, error) {
	const query = `SELECT name, subject, body, updated_by, created_at, updated_at FROM email_templates ORDER BY name`
	var templates []models.EmailTemplate
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("list email templates: %w", err)
	}
	return templates, nil
}

// Get returns the template called name. sql.ErrNoRows is returned unwrapped.
func (r *EmailTemplateRepository) Get(ctx context.Context, name string) (*models.EmailTemplate, error) {
	const query = `SELECT name, subject, body, updated_by, created_at, updated_at FROM email_templates WHERE name = $1`
	var tpl models.EmailTemplate
	if err := r.db.GetContext(ctx, &tpl, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get email template: %w", err)
	}
	return &tpl, nil
}

// Upsert creates or replaces a template.
func (r *EmailTemplateRepository) Upsert(ctx context.Context, tpl *models.EmailTemplate) error {
	const query = `INSERT INTO email_templates (name, subject, body, updated_by)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (name) DO UPDATE SET subject = EXCLUDED.subject, body = EXCLUDED.body,
	updated_by = EXCLUDED.updated_by, updated_at = NOW()
	RETURNING created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, query, tpl.Name, tpl.Subject, tpl.Body, tpl.UpdatedBy)
	if err := row.Scan(&tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		return fmt.Errorf("upsert email template: %w", err)
	}
	return nil
}
