// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

// ErrDispatcherClosed is returned for work submitted after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher runs submitted functions one at a time, in submission order, on
// a single goroutine. State owned by a dispatcher is only touched from
// functions it runs.
//
// Dispatch never blocks: the queue is unbounded so a stream read loop is
// never held up by a slow consumer.
type Dispatcher struct {
	mu      sync.Mutex
	pending []func()
	closed  bool

	wake chan struct{}
	done chan struct{}
	log  zerolog.Logger
}

// NewDispatcher starts a dispatcher goroutine.
func NewDispatcher(log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  log,
	}
	go d.loop()
	return d
}

// Dispatch queues fn and returns immediately.
func (d *Dispatcher) Dispatch(fn func()) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.pending = append(d.pending, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do queues fn and waits for it to finish. It must not be called from a
// function running on the dispatcher. If ctx ends first, fn still runs later.
func (d *Dispatcher) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := d.Dispatch(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, runs everything already queued and waits for
// the goroutine to exit. Close is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)

	for {
		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		closed := d.closed
		d.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-d.wake
			continue
		}

		for _, fn := range batch {
			d.run(fn)
		}
	}
}

// run executes fn, recovering a panic so one bad callback cannot stop the
// loop.
func (d *Dispatcher) run(fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		d.log.Error().
			Str("panic", fmt.Sprint(r.Value)).
			Bytes("stack", r.Stack).
			Msg("dispatched function panicked")
	}
}
