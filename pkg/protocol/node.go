// Package protocol defines the contracts for workflow node types.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cflux/flow/pkg/models"
)

// NodeFactory parses the editor configuration of one node type into a typed
// step config and provides metadata about the node type.
type NodeFactory interface {
	// Parse converts a node's raw config into its step type and typed config.
	Parse(config map[string]any) (models.StepType, models.StepConfig, error)

	// ID returns the editor node type handled by this factory
	ID() models.NodeType

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// DecodeConfig copies a loosely typed config map into a typed config struct.
func DecodeConfig(config map[string]any, out models.StepConfig) error {
	if len(config) == 0 {
		return nil
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	err = json.Unmarshal(raw, out)
	if err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	return nil
}
