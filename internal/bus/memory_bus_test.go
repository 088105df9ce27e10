// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/tunerpool/internal/metrics"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMemoryBusPublishContextTimeoutIncrementsDropMetrics(t *testing.T) {
	b := NewMemoryBusWithDepth(2)
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	// Fill subscriber channel to capacity so next publish blocks.
	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "topic", "msg"))
	}

	initial := metrics.CounterValue(metrics.BusDroppedTotal, "topic", "timeout")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "topic", "blocked")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Greater(t, metrics.CounterValue(metrics.BusDroppedTotal, "topic", "timeout"), initial)
}

func TestMemoryBusPublishRejectsNilContext(t *testing.T) {
	b := NewMemoryBus()
	//nolint:staticcheck // exercising the nil guard
	err := b.Publish(nil, "topic", "msg")
	require.Error(t, err)
	require.Contains(t, err.Error(), "context is nil")
}

func TestMemoryBusFanOutAndUnsubscribe(t *testing.T) {
	b := NewMemoryBus()
	s1, err := b.Subscribe(context.Background(), "device.fault")
	require.NoError(t, err)
	s2, err := b.Subscribe(context.Background(), "device.fault")
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "device.fault", "a"))
	require.Equal(t, "a", <-s1.C())
	require.Equal(t, "a", <-s2.C())

	require.NoError(t, s1.Close())
	require.NoError(t, s1.Close(), "close is idempotent")
	<-s1.Done()

	require.NoError(t, b.Publish(context.Background(), "device.fault", "b"))
	require.Equal(t, "b", <-s2.C())
	require.Len(t, s1.C(), 0)
	require.NoError(t, s2.Close())
}

func TestConsumeStopsOnContextAndReportsHandlerErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Consume(ctx, sub, func(context.Context, Message) error {
			return errors.New("handler failed")
		}, func(err error) { got <- err })
	}()

	require.NoError(t, b.Publish(context.Background(), "t", 1))
	select {
	case err := <-got:
		require.EqualError(t, err, "handler failed")
	case <-time.After(time.Second):
		t.Fatal("handler error not reported")
	}
	cancel()
	<-done
}
