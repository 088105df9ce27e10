// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus is the in-process event transport used to deliver device fault
// events to their dependents.
package bus

import "context"

// Message is an opaque event payload. Fault events travel as model.FaultEvent.
type Message interface{}

// Handler applies an event/message within a context.
type Handler func(ctx context.Context, msg Message) error

type Subscriber interface {
	// C returns a read-only message channel. It is never closed; use Done.
	C() <-chan Message
	// Done is closed once the subscription has been closed.
	Done() <-chan struct{}
	// Close unsubscribes.
	Close() error
}

// Bus is the event transport abstraction.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}

// Consume delivers messages from sub to h until ctx is done or the
// subscription is closed. Handler errors are returned to onError and do not
// stop consumption.
func Consume(ctx context.Context, sub Subscriber, h Handler, onError func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case msg := <-sub.C():
			if err := h(ctx, msg); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
