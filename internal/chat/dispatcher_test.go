// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_FIFO(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	defer d.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, d.Dispatch(func() { got = append(got, i) }))
	}
	require.NoError(t, d.Do(context.Background(), func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want in-order execution", i, v)
		}
	}
}

func TestDispatcher_SingleGoroutine(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	defer d.Close()

	// Unsynchronized counter: the race detector flags concurrent runs.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Do(context.Background(), func() { counter++ })
		}()
	}
	wg.Wait()

	require.NoError(t, d.Do(context.Background(), func() {
		assert.Equal(t, 20, counter)
	}))
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher(zerolog.New(&buf))
	defer d.Close()

	require.NoError(t, d.Do(context.Background(), func() { panic("boom") }))

	ran := false
	require.NoError(t, d.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran, "dispatcher keeps running after a panic")
	assert.Contains(t, buf.String(), "boom")
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())

	release := make(chan struct{})
	require.NoError(t, d.Dispatch(func() { <-release }))

	ran := 0
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Dispatch(func() { ran++ }))
	}

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	close(release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, 5, ran)

	assert.ErrorIs(t, d.Dispatch(func() {}), ErrDispatcherClosed)
	assert.ErrorIs(t, d.Do(context.Background(), func() {}), ErrDispatcherClosed)
	d.Close()
}

func TestDispatcher_DoContext(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	defer d.Close()

	release := make(chan struct{})
	require.NoError(t, d.Dispatch(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Do(ctx, func() {}), context.DeadlineExceeded)
	close(release)
}
