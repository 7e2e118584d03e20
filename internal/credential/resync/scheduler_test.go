package resync

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/credential/models"
)

type countingResyncer struct {
	calls atomic.Int32
	err   error
	block bool
}

func (c *countingResyncer) Resync(ctx context.Context) (*models.ResyncReport, error) {
	c.calls.Add(1)
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	return &models.ResyncReport{}, nil
}

func quiet() Option {
	return WithLogger(slog.New(slog.DiscardHandler))
}

func TestNewScheduler_RejectsNonPositiveInterval(t *testing.T) {
	_, err := NewScheduler(&countingResyncer{}, 0, quiet())
	require.Error(t, err)
}

func TestScheduler_RunsImmediatelyAndRepeats(t *testing.T) {
	r := &countingResyncer{}
	s, err := NewScheduler(r, 50*time.Millisecond, quiet())
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return r.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_FailedPassDoesNotStopSchedule(t *testing.T) {
	r := &countingResyncer{err: errors.New("ledger unavailable")}
	s, err := NewScheduler(r, 30*time.Millisecond, quiet())
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return r.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_StopCancelsRunningPass(t *testing.T) {
	r := &countingResyncer{block: true}
	s, err := NewScheduler(r, time.Hour, quiet())
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a pass was running")
	}
	assert.Equal(t, int32(1), r.calls.Load())
}
