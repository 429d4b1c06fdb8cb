// Package file provides file-based persistence implementation for workflows,
// triggers, actions and instances.
package file

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cflux/flow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root             string
	workflowRepo     *WorkflowRepository
	triggerRepo      *TriggerRepository
	actionRepo       *ActionRepository
	instanceRepo     *InstanceRepository
	templateLinkRepo *TemplateLinkRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	err := os.MkdirAll(cleanRoot, 0750)
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cleanRoot, err)
	}

	return &Persistence{
		root:             cleanRoot,
		workflowRepo:     NewWorkflowRepository(cleanRoot),
		triggerRepo:      NewTriggerRepository(cleanRoot),
		actionRepo:       NewActionRepository(cleanRoot),
		instanceRepo:     NewInstanceRepository(cleanRoot),
		templateLinkRepo: NewTemplateLinkRepository(cleanRoot),
	}, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) TriggerRepository() persistence.TriggerRepository {
	return fp.triggerRepo
}

func (fp *Persistence) ActionRepository() persistence.ActionRepository {
	return fp.actionRepo
}

func (fp *Persistence) InstanceRepository() persistence.InstanceRepository {
	return fp.instanceRepo
}

func (fp *Persistence) TemplateLinkRepository() persistence.TemplateLinkRepository {
	return fp.templateLinkRepo
}
