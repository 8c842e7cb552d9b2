package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRegisterRunsPeriodically(t *testing.T) {
	s := New(zerolog.Nop())
	var calls int64
	s.Register("tick", 10, func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return nil
	})
	time.Sleep(55 * time.Millisecond)
	stillRunning := s.StopAll(time.Second)
	require.Empty(t, stillRunning)
	require.GreaterOrEqual(t, atomic.LoadInt64(&calls), int64(3))
}

func TestRegisterReplacesExistingTask(t *testing.T) {
	s := New(zerolog.Nop())
	var oldCalls, newCalls int64
	s.Register("tick", 10, func(ctx context.Context) error {
		atomic.AddInt64(&oldCalls, 1)
		return nil
	})
	time.Sleep(15 * time.Millisecond)
	s.Register("tick", 10, func(ctx context.Context) error {
		atomic.AddInt64(&newCalls, 1)
		return nil
	})
	time.Sleep(35 * time.Millisecond)
	s.StopAll(time.Second)
	require.Greater(t, atomic.LoadInt64(&newCalls), int64(0))

	s.mu.Lock()
	_, stillTwo := s.tasks["tick"]
	s.mu.Unlock()
	require.False(t, stillTwo) // StopAll already cleared the registry
}

func TestFailuresAreCountedNotFatal(t *testing.T) {
	s := New(zerolog.Nop())
	s.Register("flaky", 10, func(ctx context.Context) error {
		return errors.New("boom")
	})
	time.Sleep(35 * time.Millisecond)
	status, ok := s.Status("flaky")
	require.True(t, ok)
	require.Greater(t, status.Failures, int64(0))
	require.Error(t, status.LastError)
	s.StopAll(time.Second)
}
