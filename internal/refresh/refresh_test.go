package refresh_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/airflow-health/internal/refresh"
	"github.com/jonesrussell/airflow-health/internal/testhelpers"
)

func TestLoop_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})

	loop := refresh.NewLoop(
		refresh.Config{Interval: time.Hour, ErrorBackoff: time.Hour},
		func(context.Context) error {
			if calls.Add(1) == 1 {
				close(started)
			}
			return nil
		},
		testhelpers.NewTestMetrics(),
		testhelpers.NewTestLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first refresh tick never ran")
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on cancellation")
	}

	assert.Equal(t, int32(1), calls.Load(), "hour-long interval should allow exactly one tick")
}

func TestLoop_BacksOffAfterError(t *testing.T) {
	var calls atomic.Int32
	second := make(chan struct{})

	loop := refresh.NewLoop(
		// A failing tick retries after the short backoff, not the long interval.
		refresh.Config{Interval: time.Hour, ErrorBackoff: 10 * time.Millisecond},
		func(context.Context) error {
			if calls.Add(1) == 2 {
				close(second)
			}
			return errors.New("airflow down")
		},
		testhelpers.NewTestMetrics(),
		testhelpers.NewTestLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loop.Run(ctx) }()

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second tick never ran despite short error backoff")
	}
}
