package services_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/cflux/flow/pkg/actionbus"
	"github.com/cflux/flow/pkg/condition"
	"github.com/cflux/flow/pkg/engine"
	"github.com/cflux/flow/pkg/graph"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/cflux/flow/pkg/persistence/file"
	"github.com/cflux/flow/pkg/registry"
	"github.com/cflux/flow/pkg/services"
	"github.com/cflux/flow/pkg/trigger"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	persistence persistence.Persistence
	engine      *engine.Engine
	registry    *trigger.Registry
	workflows   *services.Workflow
	actions     *services.Actions
	instances   *services.Instances
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	compiler := graph.NewCompiler(logger, registry.NewDefaultRegistry(logger))
	evaluator := condition.New()
	eng := engine.New(p, compiler, evaluator, logger, engine.WithImmediateDelays())
	reg := trigger.NewRegistry(p, compiler, evaluator, nil, logger)

	return &fixture{
		persistence: p,
		engine:      eng,
		registry:    reg,
		workflows:   services.NewWorkflow(p, compiler, logger),
		actions:     services.NewActions(p, reg, actionbus.NewDirect(p, reg, eng, nil, logger), logger),
		instances:   services.NewInstances(p, eng, logger),
	}
}
