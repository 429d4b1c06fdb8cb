package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/cflux/flow/pkg/persistence/postgresql"
	"github.com/cflux/flow/pkg/testutil"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{
		"workflow_template_links",
		"workflow_instance_steps",
		"workflow_instances",
		"action_logs",
		"system_actions",
		"workflow_triggers",
		"workflows",
		"schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flow_test"),
			postgres.WithUsername("flow"),
			postgres.WithPassword("flow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "workflow_triggers", "workflow_instances", "workflow_instance_steps", "workflow_template_links"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestWorkflowRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	workflow := testutil.CreateTestWorkflow(testutil.WithID(""), testutil.WithDefinition(testutil.ThresholdDefinition("totalAmount", 1000, "u1")))
	require.NoError(t, repo.Save(ctx, workflow))
	require.NotEmpty(t, workflow.ID)

	loaded, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	assert.True(t, loaded.IsActive)
	require.NotNil(t, loaded.Definition)
	assert.Len(t, loaded.Definition.Nodes, 4)
	assert.Len(t, loaded.Definition.Edges, 4)

	workflow.Name = "Renamed"
	require.NoError(t, repo.Save(ctx, workflow))

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Renamed", all[0].Name)

	require.NoError(t, repo.Delete(ctx, workflow.ID))

	_, err = repo.GetByID(ctx, workflow.ID)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestTriggerRepository_OrderedByPriority(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := testutil.CreateTestWorkflow(testutil.WithID(""))
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	repo := p.TriggerRepository()

	a := testutil.CreateTestTrigger(workflow.ID, "invoice.created", testutil.WithPriority(10), testutil.WithCondition("totalAmount", "gt", 100.0))
	b := testutil.CreateTestTrigger(workflow.ID, "invoice.created", testutil.WithPriority(5))
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	triggers, err := repo.GetByActionKey(ctx, "invoice.created")
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, b.ID, triggers[0].ID)
	assert.Equal(t, a.ID, triggers[1].ID)
	require.NotNil(t, triggers[1].Condition)
	assert.Equal(t, "gt", triggers[1].Condition.Operator)
	assert.InEpsilon(t, 100.0, triggers[1].Condition.Value, 0)

	assert.ErrorIs(t, repo.Delete(ctx, "missing"), persistence.ErrTriggerNotFound)
}

func TestActionRepository_Logs(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ActionRepository()

	require.NoError(t, repo.Save(ctx, &models.SystemAction{
		ActionKey:     "invoice.created",
		DisplayName:   "Invoice created",
		Category:      "invoice",
		ContextSchema: map[string]any{"type": "object"},
		IsSystem:      true,
		IsActive:      true,
	}))

	action, err := repo.GetByKey(ctx, "invoice.created")
	require.NoError(t, err)
	assert.True(t, action.IsSystem)
	assert.Equal(t, "object", action.ContextSchema["type"])

	require.NoError(t, repo.SaveLog(ctx, &models.ActionLog{
		ActionKey:          "invoice.created",
		EntityType:         "invoice",
		EntityID:           "inv-1",
		TriggeredWorkflows: []string{"i-1", "i-2"},
		Success:            true,
		ExecutionTimeMs:    12,
	}))

	logs, err := repo.Logs(ctx, persistence.LogQuery{ActionKey: "invoice.created", Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, []string{"i-1", "i-2"}, logs[0].TriggeredWorkflows)

	none, err := repo.Logs(ctx, persistence.LogQuery{ActionKey: "order.created"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInstanceRepository_CompareAndSet(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.InstanceRepository()

	current := "wf:approve"
	instance := &models.WorkflowInstance{
		WorkflowID:    "wf",
		EntityType:    "invoice",
		EntityID:      "inv-1",
		EntityData:    map[string]any{"totalAmount": 1500.0},
		Status:        models.InstanceInProgress,
		CurrentStepID: &current,
		Decisions:     []models.Decision{{StepID: "wf:check", Type: models.StepTypeValueCondition, Outcome: true, At: time.Now().UTC()}},
		StartedAt:     time.Now().UTC(),
	}
	step := &models.WorkflowInstanceStep{
		StepID:              current,
		StepName:            "Approve",
		StepType:            models.StepTypeApproval,
		Sequence:            1,
		Status:              models.StepPending,
		ApproverUserIDs:     []string{"u1", "u2"},
		RequireAllApprovers: true,
		CreatedAt:           time.Now().UTC(),
	}

	require.NoError(t, repo.Save(ctx, instance, step))
	assert.Equal(t, 1, instance.Version)
	assert.Equal(t, 1, step.Version)

	loaded, err := repo.GetByID(ctx, instance.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.CurrentStepID)
	assert.Equal(t, current, *loaded.CurrentStepID)
	assert.Len(t, loaded.Decisions, 1)

	pending, err := repo.PendingSteps(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	step.Approvals = append(step.Approvals, models.Approval{UserID: "u1", At: time.Now().UTC()})
	require.NoError(t, repo.Save(ctx, instance, step))

	pending, err = repo.PendingSteps(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, pending, "u1 already approved")

	pending, err = repo.PendingSteps(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	loaded.Comment = "stale writer"
	err = repo.Save(ctx, loaded)
	assert.ErrorIs(t, err, persistence.ErrVersionConflict)

	steps, err := repo.Steps(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, []string{"u1", "u2"}, steps[0].ApproverUserIDs)
	assert.Len(t, steps[0].Approvals, 1)
}

func TestInstanceRepository_ListDue(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.InstanceRepository()

	now := time.Now().UTC().Truncate(time.Second)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &models.WorkflowInstance{WorkflowID: "wf", EntityType: "invoice", EntityID: "1", Status: models.InstanceInProgress, DueAt: &past, StartedAt: now}
	later := &models.WorkflowInstance{WorkflowID: "wf", EntityType: "invoice", EntityID: "2", Status: models.InstanceInProgress, DueAt: &future, StartedAt: now}

	require.NoError(t, repo.Save(ctx, due))
	require.NoError(t, repo.Save(ctx, later))

	instances, err := repo.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, due.ID, instances[0].ID)
}

func TestTemplateLinkRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := testutil.CreateTestWorkflow(testutil.WithID(""))
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	repo := p.TemplateLinkRepository()
	require.NoError(t, repo.Save(ctx, &models.TemplateLink{TemplateID: "tpl", WorkflowID: workflow.ID, Order: 1}))

	links, err := repo.ByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "tpl", links[0].TemplateID)

	require.NoError(t, repo.Delete(ctx, "tpl", workflow.ID))
	assert.ErrorIs(t, repo.Delete(ctx, "tpl", workflow.ID), persistence.ErrTemplateLinkNotFound)
}
