package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cflux/flow/pkg/engine"
	"github.com/cflux/flow/pkg/locker"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence/file"
	"github.com/cflux/flow/pkg/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParsePersistenceProvider(t *testing.T) {
	tests := []struct {
		url      string
		provider string
		location string
	}{
		{url: "file:///var/lib/flow", provider: "file", location: "/var/lib/flow"},
		{url: "./data", provider: "file", location: "./data"},
		{url: "postgres://flow@db/flow", provider: "postgres", location: "flow@db/flow"},
	}

	for _, tt := range tests {
		provider, location := parsePersistenceProvider(tt.url)
		assert.Equal(t, tt.provider, provider, tt.url)
		assert.Equal(t, tt.location, location, tt.url)
	}
}

func TestNewPersistence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")

	p, err := NewPersistence(t.Context(), testLogger(), "file://"+dir)
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, p)
	require.NoError(t, p.HealthCheck(t.Context()))

	_, err = NewPersistence(t.Context(), testLogger(), "mongodb://localhost")
	require.Error(t, err)
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("gochannel", "", "flow-test", testLogger())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = NewEventBus("kafka", "", "flow-test", testLogger())
	require.Error(t, err)

	_, err = NewEventBus("nats", "", "flow-test", testLogger())
	require.Error(t, err)
}

func TestRuntimeFactories(t *testing.T) {
	l, err := NewLocker(t.Context(), "memory", "", testLogger())
	require.NoError(t, err)
	assert.IsType(t, &locker.Memory{}, l)

	_, err = NewLocker(t.Context(), "etcd", "", testLogger())
	require.Error(t, err)

	dir, err := NewApproverDirectory("")
	require.NoError(t, err)
	assert.NotNil(t, dir)

	n, err := NewNotifier("log", nil, nil, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, n)

	_, err = NewNotifier("eventbus", nil, nil, testLogger())
	require.Error(t, err)

	tracer, err := NewTracer(t.Context(), false, "flow-test")
	require.NoError(t, err)
	assert.NotNil(t, tracer)

	compiler, reg := NewCompiler(testLogger())
	assert.NotNil(t, compiler)
	assert.NotEmpty(t, reg.Factories())
}

func TestNewRuntime(t *testing.T) {
	cfg := RuntimeConfig{
		DatabaseURL: "file://" + t.TempDir(),
		EventBus:    "gochannel",
		Locker:      "memory",
		DelayMode:   DelayImmediate,
		Notifier:    "eventbus",
	}

	rt, err := NewRuntime(t.Context(), cfg, "flow-test", testLogger(), prometheus.NewRegistry())
	require.NoError(t, err)

	t.Cleanup(func() { rt.Close(context.Background()) })

	assert.NotNil(t, rt.Engine)
	assert.NotNil(t, rt.Triggers)
	assert.NotNil(t, rt.Metrics)
	assert.NotNil(t, rt.Direct())

	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, rt.Persistence.WorkflowRepository().Save(t.Context(), workflow))

	instance, err := rt.Engine.Start(t.Context(), engine.StartRequest{
		Workflow:   workflow,
		EntityType: "invoice",
		EntityID:   "inv-1",
		EntityData: map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceInProgress, instance.Status)
}

func TestNewRuntime_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  RuntimeConfig
	}{
		{name: "delay mode", cfg: RuntimeConfig{DatabaseURL: "file://" + t.TempDir(), DelayMode: "eventually"}},
		{name: "locker", cfg: RuntimeConfig{DatabaseURL: "file://" + t.TempDir(), Locker: "zookeeper"}},
		{name: "notifier", cfg: RuntimeConfig{DatabaseURL: "file://" + t.TempDir(), Notifier: "smtp"}},
		{name: "persistence", cfg: RuntimeConfig{DatabaseURL: "mongodb://localhost"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuntime(t.Context(), tt.cfg, "flow-test", testLogger(), nil)
			require.Error(t, err)
		})
	}
}
