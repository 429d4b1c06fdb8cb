package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cflux/flow/pkg/approvers"
	"github.com/cflux/flow/pkg/condition"
	"github.com/cflux/flow/pkg/engine"
	"github.com/cflux/flow/pkg/events"
	"github.com/cflux/flow/pkg/graph"
	"github.com/cflux/flow/pkg/mocks"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/notification"
	"github.com/cflux/flow/pkg/persistence"
	"github.com/cflux/flow/pkg/persistence/file"
	"github.com/cflux/flow/pkg/registry"
	"github.com/cflux/flow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.msgs = append(n.msgs, msg)

	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.msgs)
}

type fixture struct {
	engine      *engine.Engine
	persistence persistence.Persistence
	notifier    *recordingNotifier
}

func newFixture(t *testing.T, opts ...engine.Option) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	compiler := graph.NewCompiler(logger, registry.NewDefaultRegistry(logger))

	opts = append([]engine.Option{engine.WithNotifier(notifier)}, opts...)

	return &fixture{
		engine:      engine.New(p, compiler, condition.New(), logger, opts...),
		persistence: p,
		notifier:    notifier,
	}
}

func (f *fixture) start(t *testing.T, def *models.Definition, data map[string]any) *models.WorkflowInstance {
	t.Helper()

	workflow := testutil.CreateTestWorkflow(testutil.WithID("wf"), testutil.WithDefinition(def))

	instance, err := f.engine.Start(t.Context(), engine.StartRequest{
		Workflow:   workflow,
		EntityType: "invoice",
		EntityID:   "inv-1",
		EntityData: data,
	})
	require.NoError(t, err)

	return instance
}

func (f *fixture) steps(t *testing.T, instanceID string) []*models.WorkflowInstanceStep {
	t.Helper()

	steps, err := f.persistence.InstanceRepository().Steps(t.Context(), instanceID)
	require.NoError(t, err)

	return steps
}

func (f *fixture) instance(t *testing.T, id string) *models.WorkflowInstance {
	t.Helper()

	instance, err := f.persistence.InstanceRepository().GetByID(t.Context(), id)
	require.NoError(t, err)

	return instance
}

func approvalThenNotify(requireAll bool, approvers ...string) *models.Definition {
	return testutil.NewGraph().
		Approval("approve", requireAll, approvers...).
		Notification("notify", "Invoice {{ .instance.entity_id }} approved", "accounting").
		End("end").
		Edge(models.StartNodeID, "approve", "").
		Edge("approve", "notify", "").
		Edge("notify", "end", "").
		Build()
}

func TestStart_ThresholdAboveCreatesPendingApproval(t *testing.T) {
	f := newFixture(t)

	instance := f.start(t, testutil.ThresholdDefinition("totalAmount", 1000, "u1"), map[string]any{"totalAmount": 1500})

	assert.Equal(t, models.InstanceInProgress, instance.Status)
	require.NotNil(t, instance.CurrentStepID)
	assert.Equal(t, "wf:approve", *instance.CurrentStepID)

	outcome, ok := instance.Decision("wf:check")
	require.True(t, ok)
	assert.True(t, outcome)

	steps := f.steps(t, instance.ID)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepPending, steps[0].Status)
	assert.Equal(t, []string{"u1"}, steps[0].ApproverUserIDs)
	assert.Equal(t, 1, steps[0].Sequence)
	assert.Equal(t, "approve", steps[0].StepName)
}

func TestStart_ThresholdBelowCompletesWithoutSteps(t *testing.T) {
	f := newFixture(t)

	instance := f.start(t, testutil.ThresholdDefinition("totalAmount", 1000, "u1"), map[string]any{"totalAmount": 500})

	assert.Equal(t, models.InstanceCompleted, instance.Status)
	assert.Nil(t, instance.CurrentStepID)
	assert.NotNil(t, instance.CompletedAt)
	assert.Empty(t, f.steps(t, instance.ID))

	outcome, ok := instance.Decision("wf:check")
	require.True(t, ok)
	assert.False(t, outcome)
}

func TestStart_InvalidDefinition(t *testing.T) {
	f := newFixture(t)

	workflow := testutil.CreateTestWorkflow(testutil.WithDefinition(testutil.NewGraph().
		Approval("a", false, "u1").
		Edge(models.StartNodeID, "a", "").
		Edge("a", "a", "").
		Build()))

	_, err := f.engine.Start(t.Context(), engine.StartRequest{Workflow: workflow})
	require.Error(t, err)
	assert.True(t, graph.IsDefinitionError(err))
}

func TestApprove_AllQuorum(t *testing.T) {
	f := newFixture(t)

	instance := f.start(t, approvalThenNotify(true, "u1", "u2"), nil)
	stepID := f.steps(t, instance.ID)[0].ID

	result, err := f.engine.Approve(t.Context(), stepID, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StepPending, result.Step.Status)
	assert.Equal(t, models.InstanceInProgress, result.Instance.Status)

	_, err = f.engine.Approve(t.Context(), stepID, "u1", "")
	require.ErrorIs(t, err, engine.ErrAlreadyDecided)

	_, err = f.engine.Approve(t.Context(), stepID, "u3", "")
	require.ErrorIs(t, err, engine.ErrUnauthorizedApprover)

	result, err = f.engine.Approve(t.Context(), stepID, "u2", "fine")
	require.NoError(t, err)
	assert.Equal(t, models.StepApproved, result.Step.Status)
	require.NotNil(t, result.Step.ApprovedByID)
	assert.Equal(t, "u2", *result.Step.ApprovedByID)
	assert.Equal(t, models.InstanceCompleted, result.Instance.Status)

	_, err = f.engine.Approve(t.Context(), stepID, "u2", "")
	require.ErrorIs(t, err, engine.ErrStepNotPending)

	steps := f.steps(t, instance.ID)
	require.Len(t, steps, 2)
	assert.Equal(t, models.StepTypeNotification, steps[1].StepType)
	assert.Equal(t, 2, steps[1].Sequence)

	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, "Invoice inv-1 approved", f.notifier.msgs[0].Body)
}

func TestApprove_MissingStep(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Approve(t.Context(), "nope", "u1", "")
	require.ErrorIs(t, err, persistence.ErrStepNotFound)
}

func TestReject(t *testing.T) {
	f := newFixture(t)

	instance := f.start(t, testutil.ThresholdDefinition("totalAmount", 1000, "u1"), map[string]any{"totalAmount": 1500})
	stepID := f.steps(t, instance.ID)[0].ID

	_, err := f.engine.Reject(t.Context(), stepID, "u1", "   ")
	require.ErrorIs(t, err, engine.ErrCommentRequired)
	assert.Equal(t, models.StepPending, f.steps(t, instance.ID)[0].Status)

	_, err = f.engine.Reject(t.Context(), stepID, "u2", "no")
	require.ErrorIs(t, err, engine.ErrUnauthorizedApprover)

	result, err := f.engine.Reject(t.Context(), stepID, "u1", "amount is wrong")
	require.NoError(t, err)
	assert.Equal(t, models.StepRejected, result.Step.Status)
	assert.Equal(t, models.InstanceRejected, result.Instance.Status)
	assert.Equal(t, "amount is wrong", result.Instance.Comment)

	_, err = f.engine.Approve(t.Context(), stepID, "u1", "")
	require.ErrorIs(t, err, engine.ErrStepNotPending)
}

func TestReject_AllQuorumAfterPartialApproval(t *testing.T) {
	f := newFixture(t)

	instance := f.start(t, approvalThenNotify(true, "u1", "u2"), nil)
	stepID := f.steps(t, instance.ID)[0].ID

	result, err := f.engine.Approve(t.Context(), stepID, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StepPending, result.Step.Status)

	result, err = f.engine.Reject(t.Context(), stepID, "u2", "missing receipt")
	require.NoError(t, err)
	assert.Equal(t, models.StepRejected, result.Step.Status)
	assert.Equal(t, models.InstanceRejected, result.Instance.Status)
	assert.Nil(t, result.Instance.CurrentStepID)

	stored := f.instance(t, instance.ID)
	assert.Equal(t, models.InstanceRejected, stored.Status)
	assert.Equal(t, "missing receipt", stored.Comment)

	steps := f.steps(t, instance.ID)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepRejected, steps[0].Status)
	assert.Zero(t, f.notifier.count())
}

func TestApprove_ConcurrentAnyModeAdvancesOnce(t *testing.T) {
	f := newFixture(t)

	approvers := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	instance := f.start(t, approvalThenNotify(false, approvers...), nil)
	stepID := f.steps(t, instance.ID)[0].ID

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)

	for _, user := range approvers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.engine.Approve(context.Background(), stepID, user, "")

			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, engine.ErrStepNotPending), errors.Is(err, engine.ErrInstanceTerminal):
				conflicts.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(len(approvers)-1), conflicts.Load())
	assert.Equal(t, 1, f.notifier.count())
	assert.Len(t, f.steps(t, instance.ID), 2)
	assert.Equal(t, models.InstanceCompleted, f.instance(t, instance.ID).Status)
}

func TestNotificationFailureDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")

	def := testutil.NewGraph().
		Notification("notify", "hello", "u1").
		End("end").
		Edge(models.StartNodeID, "notify", "").
		Edge("notify", "end", "").
		Build()

	instance := f.start(t, def, nil)
	assert.Equal(t, models.InstanceCompleted, instance.Status)

	steps := f.steps(t, instance.ID)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepApproved, steps[0].Status)
	assert.Equal(t, false, steps[0].Result["delivered"])
	assert.Equal(t, "smtp down", steps[0].Result["error"])
}

func delayDefinition() *models.Definition {
	return testutil.NewGraph().
		Delay("wait", models.DelayHours, 2).
		Approval("approve", false, "u1").
		End("end").
		Edge(models.StartNodeID, "wait", "").
		Edge("wait", "approve", "").
		Edge("approve", "end", "").
		Build()
}

func TestDelay_ResumedBySweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, engine.WithClock(func() time.Time { return now }))

	instance := f.start(t, delayDefinition(), nil)
	assert.Equal(t, models.InstanceInProgress, instance.Status)
	require.NotNil(t, instance.DueAt)
	assert.Equal(t, now.Add(2*time.Hour), *instance.DueAt)

	resumed, err := f.engine.Sweep(t.Context(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)

	resumed, err = f.engine.Sweep(t.Context(), now.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	reloaded := f.instance(t, instance.ID)
	assert.Nil(t, reloaded.DueAt)
	require.NotNil(t, reloaded.CurrentStepID)
	assert.Equal(t, "wf:approve", *reloaded.CurrentStepID)

	steps := f.steps(t, instance.ID)
	require.Len(t, steps, 2)
	assert.Equal(t, models.StepApproved, steps[0].Status)
	assert.Equal(t, models.StepPending, steps[1].Status)

	resumed, err = f.engine.Sweep(t.Context(), now.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, resumed, "resuming is idempotent")
}

func TestDelay_Immediate(t *testing.T) {
	f := newFixture(t, engine.WithImmediateDelays())

	instance := f.start(t, delayDefinition(), nil)
	assert.Nil(t, instance.DueAt)

	steps := f.steps(t, instance.ID)
	require.Len(t, steps, 2)
	assert.Equal(t, models.StepApproved, steps[0].Status)
	assert.Equal(t, models.StepPending, steps[1].Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)

	instance := f.start(t, testutil.ThresholdDefinition("totalAmount", 1000, "u1"), map[string]any{"totalAmount": 1500})

	cancelled, err := f.engine.Cancel(t.Context(), instance.ID, "duplicate invoice")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceCancelled, cancelled.Status)
	assert.Equal(t, "duplicate invoice", cancelled.Comment)
	assert.Equal(t, models.StepSkipped, f.steps(t, instance.ID)[0].Status)

	_, err = f.engine.Cancel(t.Context(), instance.ID, "")
	require.ErrorIs(t, err, engine.ErrInstanceTerminal)
}

func TestEvaluationErrorRejectsInstance(t *testing.T) {
	f := newFixture(t)

	instance := f.start(t, testutil.ThresholdDefinition("totalAmount", 1000, "u1"), map[string]any{"other": 1})

	assert.Equal(t, models.InstanceRejected, instance.Status)
	assert.True(t, strings.HasPrefix(instance.Comment, "system: condition evaluation failed: "), instance.Comment)
	assert.Empty(t, f.steps(t, instance.ID))
}

func logicDefinition() *models.Definition {
	return testutil.NewGraph().
		ValueCondition("big", "totalAmount", models.OpGreater, 1000).
		ValueCondition("old", "ageDays", models.OpGreater, 30).
		Node("and", models.NodeTypeLogic, map[string]any{"logicType": "AND"}).
		Approval("approve", false, "u1").
		End("end").
		Edge(models.StartNodeID, "big", "").
		EdgeTo("big", "and", "true", "input1").
		EdgeTo("old", "and", "true", "input2").
		Edge("and", "approve", "").
		Edge("approve", "end", "").
		Build()
}

func TestLogic(t *testing.T) {
	tests := []struct {
		name   string
		data   map[string]any
		status models.InstanceStatus
		steps  int
	}{
		{name: "both true", data: map[string]any{"totalAmount": 1500, "ageDays": 40}, status: models.InstanceInProgress, steps: 1},
		{name: "second false", data: map[string]any{"totalAmount": 1500, "ageDays": 10}, status: models.InstanceCompleted, steps: 0},
		{name: "first false", data: map[string]any{"totalAmount": 500, "ageDays": 40}, status: models.InstanceCompleted, steps: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			instance := f.start(t, logicDefinition(), tt.data)
			assert.Equal(t, tt.status, instance.Status)
			assert.Len(t, f.steps(t, instance.ID), tt.steps)

			_, ok := instance.Decision("wf:and")
			assert.True(t, ok, "logic outcome is recorded")
		})
	}
}

func TestApproverGroups(t *testing.T) {
	dir, err := approvers.ParseDirectory([]byte("groups:\n  finance: [u1, u2]\n"))
	require.NoError(t, err)

	f := newFixture(t, engine.WithResolver(dir))

	instance := f.start(t, approvalThenNotify(true, "group:finance", "u2"), nil)

	steps := f.steps(t, instance.ID)
	require.Len(t, steps, 1)
	assert.Equal(t, []string{"u1", "u2"}, steps[0].ApproverUserIDs)

	unknown := f.start(t, approvalThenNotify(false, "group:legal"), nil)
	assert.Equal(t, models.InstanceRejected, unknown.Status)
}

func TestPublishesLifecycleEvents(t *testing.T) {
	bus := new(mocks.MockEventBus)
	bus.On("Publish", mock.Anything, mock.Anything, mock.MatchedBy(func(e *events.InstanceEvent) bool {
		return e.Type == events.InstanceStartedEvent || e.Type == events.InstanceCompletedEvent
	})).Return(nil).Twice()

	f := newFixture(t, engine.WithPublisher(bus))

	instance := f.start(t, testutil.ThresholdDefinition("totalAmount", 1000, "u1"), map[string]any{"totalAmount": 1})
	assert.Equal(t, models.InstanceCompleted, instance.Status)

	bus.AssertExpectations(t)
}

func TestDryRun(t *testing.T) {
	f := newFixture(t)
	workflow := testutil.CreateTestWorkflow(testutil.WithID("wf"), testutil.WithDefinition(approvalThenNotify(false, "u1")))

	result, err := f.engine.DryRun(t.Context(), workflow, "invoice", "inv-9", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.InstanceCompleted, result.Status)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "PENDING", result.Steps[0].Status)
	assert.Equal(t, "Invoice inv-9 approved", result.Steps[1].Result["body"])

	assert.Zero(t, f.notifier.count(), "dry run never notifies")

	threshold := testutil.CreateTestWorkflow(testutil.WithID("wf"), testutil.WithDefinition(testutil.ThresholdDefinition("totalAmount", 1000, "u1")))

	result, err = f.engine.DryRun(t.Context(), threshold, "invoice", "inv-9", map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.InstanceRejected, result.Status)
	assert.NotEmpty(t, result.Error)
}
