//go:build integration

package web_test

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/cflux/flow/pkg/models"
	"github.com/cflux/flow/pkg/persistence/postgresql"
	"github.com/cflux/flow/pkg/services"
	"github.com/cflux/flow/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupIntegrationApp(t *testing.T) *testApp {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("flow_integration"),
		postgres.WithUsername("flow"),
		postgres.WithPassword("flow"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		testcontainers.CleanupContainer(t, container)
	})

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = p.Close(context.Background())
	})

	return newTestApp(t, p)
}

func TestIntegration_InvoiceApproval(t *testing.T) {
	a := setupIntegrationApp(t)
	a.createInvoiceFlow(t)

	small := a.fireInvoice(t, "inv-small", 400)
	require.Len(t, small.Instances, 1)
	assert.Equal(t, models.InstanceCompleted, small.Instances[0].Status)

	large := a.fireInvoice(t, "inv-large", 4000)
	require.Len(t, large.Instances, 1)
	assert.Equal(t, models.InstanceInProgress, large.Instances[0].Status)

	resp := a.do(t, http.MethodGet, "/workflows/my-approvals", nil, web.UserIDHeader, "u1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	pending := decode[[]services.PendingApproval](t, resp)
	require.Len(t, pending, 1)
	assert.Equal(t, "inv-large", pending[0].EntityID)

	resp = a.do(t, http.MethodPost, "/workflows/instances/steps/"+pending[0].Step.ID+"/approve", web.ApproveRequest{UserID: "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/workflows/invoices/inv-large/check-approval", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, services.ApprovalStatus{CanApprove: true, AllCompleted: true}, decode[services.ApprovalStatus](t, resp))

	resp = a.do(t, http.MethodGet, "/actions/logs/statistics?actionKey=invoice.review", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decode[models.ActionStatistics](t, resp).Total)
}

func TestIntegration_HealthCheck(t *testing.T) {
	a := setupIntegrationApp(t)

	resp := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
