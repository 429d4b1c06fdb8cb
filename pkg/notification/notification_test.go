package notification_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/cflux/flow/pkg/events"
	"github.com/cflux/flow/pkg/mocks"
	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/notification"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func messageStep(cfg *models.MessageConfig) *models.WorkflowStep {
	return &models.WorkflowStep{ID: "wf:notify", Type: models.StepTypeNotification, Config: cfg}
}

func TestRender(t *testing.T) {
	instance := &models.WorkflowInstance{
		ID:         "i-1",
		WorkflowID: "wf",
		EntityType: "invoice",
		EntityID:   "inv-1",
		EntityData: map[string]any{"totalAmount": 1500, "customer": "acme"},
	}

	msg, err := notification.Render(instance, messageStep(&models.MessageConfig{
		Recipients: []string{"u1"},
		Subject:    "Invoice {{ .instance.entity_id }}",
		Body:       "{{ .customer }} owes {{ .totalAmount }}",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Invoice inv-1", msg.Subject)
	assert.Equal(t, "acme owes 1500", msg.Body)
	assert.Equal(t, []string{"u1"}, msg.Recipients)
	assert.Equal(t, models.StepTypeNotification, msg.Channel)

	msg, err = notification.Render(instance, messageStep(&models.MessageConfig{Message: "plain {{ .customer }}"}))
	require.NoError(t, err)
	assert.Equal(t, "plain acme", msg.Body)

	_, err = notification.Render(instance, &models.WorkflowStep{ID: "x", Type: models.StepTypeApproval, Config: &models.ApprovalConfig{}})
	require.Error(t, err)
}

func TestEventBus_PublishesNotification(t *testing.T) {
	bus := new(mocks.MockEventBus)
	bus.On("Publish", mock.Anything, "i-1", mock.MatchedBy(func(e *events.NotificationRequested) bool {
		return e.Body == "hello" && e.Channel == "EMAIL" && e.WorkflowID == "wf"
	})).Return(nil).Once()

	n := notification.NewEventBus(bus)

	err := n.Notify(t.Context(), notification.Message{WorkflowID: "wf", InstanceID: "i-1", Channel: models.StepTypeEmail, Body: "hello"})
	require.NoError(t, err)
	bus.AssertExpectations(t)
}

type failingNotifier struct {
	calls int
}

func (f *failingNotifier) Notify(context.Context, notification.Message) error {
	f.calls++

	return errors.New("smtp down")
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &failingNotifier{}
	b := notification.NewBreaker(next, notification.BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute}, testLogger(), nil)

	require.Error(t, b.Notify(t.Context(), notification.Message{}))
	require.Error(t, b.Notify(t.Context(), notification.Message{}))
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Notify(t.Context(), notification.Message{})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls, "open circuit must not reach the notifier")
}

func TestLog_Notify(t *testing.T) {
	require.NoError(t, notification.NewLog(testLogger()).Notify(t.Context(), notification.Message{Body: "x"}))
}
