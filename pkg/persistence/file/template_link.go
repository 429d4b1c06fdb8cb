package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
)

// TemplateLinkRepository stores the links between document templates and workflows.
type TemplateLinkRepository struct {
	files jsonDir[models.TemplateLink]
}

func NewTemplateLinkRepository(root string) *TemplateLinkRepository {
	return &TemplateLinkRepository{files: newJSONDir[models.TemplateLink](root, "template_links")}
}

func linkKey(templateID, workflowID string) string {
	return templateID + "__" + workflowID
}

func (lr *TemplateLinkRepository) Save(_ context.Context, link *models.TemplateLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	return lr.files.put(linkKey(link.TemplateID, link.WorkflowID), link)
}

func (lr *TemplateLinkRepository) Delete(_ context.Context, templateID, workflowID string) error {
	deleted, err := lr.files.remove(linkKey(templateID, workflowID))
	if err != nil {
		return err
	}

	if !deleted {
		return persistence.NewEntityError("Delete", "template link", linkKey(templateID, workflowID), persistence.ErrTemplateLinkNotFound)
	}

	return nil
}

func (lr *TemplateLinkRepository) ByTemplate(_ context.Context, templateID string) ([]*models.TemplateLink, error) {
	return lr.filter(func(l *models.TemplateLink) bool { return l.TemplateID == templateID })
}

func (lr *TemplateLinkRepository) ByWorkflow(_ context.Context, workflowID string) ([]*models.TemplateLink, error) {
	return lr.filter(func(l *models.TemplateLink) bool { return l.WorkflowID == workflowID })
}

// filter returns matching links ordered by their position in the template.
func (lr *TemplateLinkRepository) filter(keep func(*models.TemplateLink) bool) ([]*models.TemplateLink, error) {
	all, err := lr.files.all()
	if err != nil {
		return nil, fmt.Errorf("failed to list template links: %w", err)
	}

	links := make([]*models.TemplateLink, 0, len(all))

	for _, l := range all {
		if keep(l) {
			links = append(links, l)
		}
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].Order != links[j].Order {
			return links[i].Order < links[j].Order
		}

		return links[i].WorkflowID < links[j].WorkflowID
	})

	return links, nil
}
