// Package delay provides the delay node factory.
package delay

import (
	"errors"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/protocol"
)

var ErrInvalidDelay = errors.New("delay value must be positive")

type DelayNodeFactory struct{}

func (f *DelayNodeFactory) Parse(config map[string]any) (models.StepType, models.StepConfig, error) {
	cfg := &models.DelayConfig{DelayType: models.DelayHours}

	err := protocol.DecodeConfig(config, cfg)
	if err != nil {
		return "", nil, err
	}

	if cfg.DelayValue <= 0 {
		return "", nil, ErrInvalidDelay
	}

	return models.StepTypeDelay, cfg, nil
}

func (f *DelayNodeFactory) ID() models.NodeType {
	return models.NodeTypeDelay
}

func (f *DelayNodeFactory) Name() string {
	return "Delay"
}

func (f *DelayNodeFactory) Description() string {
	return "Suspends the workflow for a number of minutes, hours or days."
}

func (f *DelayNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":       map[string]any{"type": "string"},
			"delayType":  map[string]any{"type": "string", "enum": []string{"minutes", "hours", "days"}},
			"delayValue": map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []string{"delayValue"},
	}
}

func NewDelayNodeFactory() protocol.NodeFactory {
	return &DelayNodeFactory{}
}
