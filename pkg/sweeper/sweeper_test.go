package sweeper_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cflux/flow/pkg/sweeper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTarget struct {
	calls atomic.Int32
	err   error
}

func (c *countingTarget) Sweep(context.Context, time.Time) (int, error) {
	c.calls.Add(1)

	return 1, c.err
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNew_RejectsInvalidInterval(t *testing.T) {
	_, err := sweeper.New(&countingTarget{}, 0, newLogger())
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	target := &countingTarget{}

	s, err := sweeper.New(target, time.Second, newLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, s.Run(t.Context()))

	target.err = errors.New("store offline")
	assert.Equal(t, 1, s.Run(t.Context()))
	assert.Equal(t, int32(2), target.calls.Load())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	assert.Zero(t, s.Run(ctx))
	assert.Equal(t, int32(2), target.calls.Load())
}

func TestStart_SweepsPeriodically(t *testing.T) {
	target := &countingTarget{}

	s, err := sweeper.New(target, time.Second, newLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, s.Start(ctx))

	assert.Eventually(t, func() bool { return target.calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)

	s.Stop()
}
