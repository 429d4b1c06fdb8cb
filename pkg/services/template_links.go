package services

import (
	"context"
	"fmt"

	"github.com/cflux/flow/pkg/models"
)

// LinkTemplate associates a workflow with a document template.
func (w *Workflow) LinkTemplate(ctx context.Context, link *models.TemplateLink) (*models.TemplateLink, error) {
	err := w.validate.Struct(link)
	if err != nil {
		return nil, NewValidationError("LinkTemplate", "INVALID_TEMPLATE_LINK", err.Error(), ErrInvalidRequest)
	}

	_, err = w.persistence.WorkflowRepository().GetByID(ctx, link.WorkflowID)
	if err != nil {
		return nil, err
	}

	err = w.persistence.TemplateLinkRepository().Save(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("failed to save template link: %w", err)
	}

	return link, nil
}

func (w *Workflow) UnlinkTemplate(ctx context.Context, templateID, workflowID string) error {
	return w.persistence.TemplateLinkRepository().Delete(ctx, templateID, workflowID)
}

// ForTemplate returns the workflows linked to a template in link order.
func (w *Workflow) ForTemplate(ctx context.Context, templateID string) ([]*models.Workflow, error) {
	links, err := w.persistence.TemplateLinkRepository().ByTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list template links: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(links))

	for _, link := range links {
		workflow, err := w.FetchByID(ctx, link.WorkflowID)
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, nil
}
