// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownHook performs cleanup during shutdown. Hooks run in reverse
// registration order.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

type hooks struct {
	mu     sync.Mutex
	list   []namedHook
	done   bool
	logger zerolog.Logger
}

func (h *hooks) add(name string, hook ShutdownHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.list = append(h.list, namedHook{name: name, hook: hook})
	h.logger.Debug().Str("hook", name).Msg("registered shutdown hook")
}

// run executes every hook once, LIFO, and joins their errors.
func (h *hooks) run(ctx context.Context) error {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return nil
	}
	h.done = true
	list := h.list
	h.mu.Unlock()

	var errs []error
	for i := len(list) - 1; i >= 0; i-- {
		hook := list[i]
		start := time.Now()
		if err := hook.hook(ctx); err != nil {
			h.logger.Error().
				Err(err).
				Str("hook", hook.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
			continue
		}
		h.logger.Debug().
			Str("hook", hook.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook completed")
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
