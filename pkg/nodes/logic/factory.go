// Package logic provides the AND/OR logic node factory.
package logic

import (
	"fmt"
	"strings"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/protocol"
)

type LogicNodeFactory struct{}

func (f *LogicNodeFactory) Parse(config map[string]any) (models.StepType, models.StepConfig, error) {
	cfg := &models.LogicConfig{LogicType: models.LogicAnd}

	err := protocol.DecodeConfig(config, cfg)
	if err != nil {
		return "", nil, err
	}

	cfg.LogicType = models.LogicType(strings.ToUpper(string(cfg.LogicType)))

	switch cfg.LogicType {
	case models.LogicAnd:
		return models.StepTypeLogicAnd, cfg, nil
	case models.LogicOr:
		return models.StepTypeLogicOr, cfg, nil
	default:
		return "", nil, fmt.Errorf("unsupported logic type %q", cfg.LogicType)
	}
}

func (f *LogicNodeFactory) ID() models.NodeType {
	return models.NodeTypeLogic
}

func (f *LogicNodeFactory) Name() string {
	return "Logic"
}

func (f *LogicNodeFactory) Description() string {
	return "Combines two upstream conditions with AND or OR. Inputs are connected to input1 and input2."
}

func (f *LogicNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":      map[string]any{"type": "string"},
			"logicType": map[string]any{"type": "string", "enum": []string{"AND", "OR", "and", "or"}},
		},
	}
}

func NewLogicNodeFactory() protocol.NodeFactory {
	return &LogicNodeFactory{}
}
