// Package approval provides the approval node factory.
package approval

import (
	"errors"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/protocol"
)

var ErrNoApprovers = errors.New("approval requires at least one approver")

type ApprovalNodeFactory struct{}

func (f *ApprovalNodeFactory) Parse(config map[string]any) (models.StepType, models.StepConfig, error) {
	cfg := &models.ApprovalConfig{}

	err := protocol.DecodeConfig(config, cfg)
	if err != nil {
		return "", nil, err
	}

	if len(cfg.ApproverUserIDs) == 0 {
		return "", nil, ErrNoApprovers
	}

	return models.StepTypeApproval, cfg, nil
}

func (f *ApprovalNodeFactory) ID() models.NodeType {
	return models.NodeTypeApproval
}

func (f *ApprovalNodeFactory) Name() string {
	return "Approval"
}

func (f *ApprovalNodeFactory) Description() string {
	return "Waits until the listed approvers approve. Any approver may reject, which stops the workflow."
}

func (f *ApprovalNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"approverUserIds": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string", "minLength": 1},
				"description": "User ids, or group:<name> entries resolved by the approver directory.",
			},
			"requireAllApprovers": map[string]any{
				"type":        "boolean",
				"description": "When true every approver must approve; otherwise one approval is enough.",
			},
		},
		"required": []string{"approverUserIds"},
	}
}

func NewApprovalNodeFactory() protocol.NodeFactory {
	return &ApprovalNodeFactory{}
}
