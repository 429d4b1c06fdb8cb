// Package registry holds the catalog of node types a workflow graph may use.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrInvalidConfig   = errors.New("invalid node configuration")
)

type Registry struct {
	logger        *slog.Logger
	nodeFactories map[models.NodeType]protocol.NodeFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:        log,
		nodeFactories: make(map[models.NodeType]protocol.NodeFactory),
	}
}

// NewDefaultRegistry returns a registry with every built-in node type.
func NewDefaultRegistry(log *slog.Logger) *Registry {
	r := NewRegistry(log)
	r.RegisterDefaultNodes()

	return r
}

func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.nodeFactories[factory.ID()] = factory
}

// Factory returns the factory for a node type.
func (r *Registry) Factory(nodeType models.NodeType) (protocol.NodeFactory, bool) {
	f, ok := r.nodeFactories[nodeType]

	return f, ok
}

// Factories returns all factories sorted by node type.
func (r *Registry) Factories() []protocol.NodeFactory {
	factories := make([]protocol.NodeFactory, 0, len(r.nodeFactories))
	for _, f := range r.nodeFactories {
		factories = append(factories, f)
	}

	sort.Slice(factories, func(i, j int) bool {
		return factories[i].ID() < factories[j].ID()
	})

	return factories
}

// Parse validates a node config against the node type's schema and converts it
// into a typed step config.
func (r *Registry) Parse(nodeType models.NodeType, config map[string]any) (models.StepType, models.StepConfig, error) {
	factory, ok := r.nodeFactories[nodeType]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}

	if config == nil {
		config = map[string]any{}
	}

	err := ValidateSchema(factory.Schema(), config)
	if err != nil {
		return "", nil, err
	}

	stepType, cfg, err := factory.Parse(config)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return stepType, cfg, nil
}

// ValidateSchema validates data against a JSON schema.
func ValidateSchema(schema map[string]any, data any) error {
	if len(schema) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(messages, "; "))
	}

	return nil
}
