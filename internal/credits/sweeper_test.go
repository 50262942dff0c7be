package credits

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (c *countingExpirer) ExpireOldCredits(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestSweeper_SweepsImmediatelyAndOnTick(t *testing.T) {
	exp := &countingExpirer{}
	s := &Sweeper{service: exp, logger: logging.Default(), interval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return exp.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestSweeper_KeepsRunningAfterError(t *testing.T) {
	exp := &countingExpirer{err: errors.New("db down")}
	s := &Sweeper{service: exp, logger: logging.Default(), interval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	assert.Eventually(t, func() bool { return exp.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestNewSweeper_DefaultsInterval(t *testing.T) {
	s := NewSweeper(NewService(NewMemoryLedger(), nil, nil), 0, nil)
	assert.Equal(t, time.Hour, s.interval)
	assert.NotNil(t, s.logger)
}
