// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/tunerpool/internal/log"
	"github.com/ManuGH/tunerpool/internal/metrics"
)

// MemoryBus is an in-memory pub/sub. It is not durable; delivery is
// in-process and bounded by the publish context.
type MemoryBus struct {
	mu    sync.RWMutex
	subs  map[string][]*memSub
	depth int
}

const (
	dropLogEvery     = 100
	defaultQueueSize = 64
)

var dropCount atomic.Uint64

// NewMemoryBus returns a bus whose subscriber queues hold 64 messages.
func NewMemoryBus() *MemoryBus {
	return NewMemoryBusWithDepth(defaultQueueSize)
}

// NewMemoryBusWithDepth returns a bus with a custom subscriber queue depth.
func NewMemoryBusWithDepth(depth int) *MemoryBus {
	if depth <= 0 {
		depth = defaultQueueSize
	}
	return &MemoryBus{subs: make(map[string][]*memSub), depth: depth}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	b.mu.RLock()
	subs := append([]*memSub(nil), b.subs[topic]...)
	b.mu.RUnlock()
	for _, s := range subs {
		select {
		case s.ch <- msg:
		case <-s.done:
			// unsubscribed while we were publishing
		case <-ctx.Done():
			reason := publishDropReason(ctx.Err())
			metrics.IncBusDrop(topic, reason)
			count := dropCount.Add(1)
			if count%dropLogEvery == 1 {
				log.L().Warn().
					Str("topic", topic).
					Str("reason", reason).
					Uint64("dropped", count).
					Msg("memory bus failed to publish due to context cancellation")
			}
			return fmt.Errorf("publish topic %q: %w", topic, ctx.Err())
		}
	}
	if len(subs) > 0 {
		metrics.IncBusPublished(topic)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscriber, error) {
	s := &memSub{
		b:     b,
		topic: topic,
		ch:    make(chan Message, b.depth),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	return s, nil
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Message
	done  chan struct{}
	once  sync.Once
}

func (s *memSub) C() <-chan Message { return s.ch }

func (s *memSub) Done() <-chan struct{} { return s.done }

func (s *memSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		lst := s.b.subs[s.topic]
		out := lst[:0]
		for _, c := range lst {
			if c != s {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = out
		}
		s.b.mu.Unlock()
		close(s.done)
	})
	return nil
}

var _ Bus = (*MemoryBus)(nil)
