package omnilocation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoSafeRestartsAfterPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	sg := NewSafeGroup(ctx)
	sg.GoSafe("flaky worker", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("first run blows up")
		}
		return nil
	})
	if err := sg.WaitOrInterrupt(5 * time.Second); err != nil {
		t.Fatalf("WaitOrInterrupt error: %v", err)
	}
	if runs.Load() != 2 {
		t.Fatalf("worker ran %d times, want a restart", runs.Load())
	}
}

func TestWorkerErrorCancelsGroup(t *testing.T) {
	sg := NewSafeGroup(context.Background())
	boom := errors.New("worker failed")
	sg.GoSafe("failing worker", func(ctx context.Context) error {
		return boom
	})
	sg.GoSafe("sibling", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	if err := sg.WaitOrInterrupt(5 * time.Second); !errors.Is(err, boom) {
		t.Fatalf("WaitOrInterrupt error = %v, want worker error", err)
	}
}

func TestWaitOrInterruptReturnsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sg := NewSafeGroup(ctx)

	release := make(chan struct{})
	sg.Go(func() error {
		<-release
		return nil
	})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := sg.WaitOrInterrupt(50 * time.Millisecond)
	close(release)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitOrInterrupt error = %v, want canceled", err)
	}
}
