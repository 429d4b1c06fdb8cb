package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
)

// TemplateLinkRepository handles the links between document templates and workflows.
type TemplateLinkRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTemplateLinkRepository(db *sql.DB, logger *slog.Logger) *TemplateLinkRepository {
	return &TemplateLinkRepository{db: db, logger: logger}
}

func (r *TemplateLinkRepository) Save(ctx context.Context, link *models.TemplateLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_template_links (template_id, workflow_id, sort_order, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (template_id, workflow_id) DO UPDATE SET sort_order = EXCLUDED.sort_order
	`

	_, err := r.db.ExecContext(ctx, query, link.TemplateID, link.WorkflowID, link.Order, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save template link: %w", err)
	}

	return nil
}

func (r *TemplateLinkRepository) Delete(ctx context.Context, templateID, workflowID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM workflow_template_links WHERE template_id = $1 AND workflow_id = $2`,
		templateID, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete template link: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewEntityError("Delete", "template link", templateID+"/"+workflowID, persistence.ErrTemplateLinkNotFound)
	}

	return nil
}

func (r *TemplateLinkRepository) ByTemplate(ctx context.Context, templateID string) ([]*models.TemplateLink, error) {
	return r.query(ctx, `WHERE template_id = $1`, templateID)
}

func (r *TemplateLinkRepository) ByWorkflow(ctx context.Context, workflowID string) ([]*models.TemplateLink, error) {
	return r.query(ctx, `WHERE workflow_id = $1`, workflowID)
}

func (r *TemplateLinkRepository) query(ctx context.Context, where string, arg string) ([]*models.TemplateLink, error) {
	query := `
		SELECT template_id, workflow_id, sort_order, created_at
		FROM workflow_template_links
		` + where + `
		ORDER BY sort_order, workflow_id
	`

	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query template links: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	links := make([]*models.TemplateLink, 0)

	for rows.Next() {
		var link models.TemplateLink

		err := rows.Scan(&link.TemplateID, &link.WorkflowID, &link.Order, &link.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template link: %w", err)
		}

		links = append(links, &link)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating template links: %w", err)
	}

	return links, nil
}
