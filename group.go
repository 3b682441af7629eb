package omnilocation

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// SafeGroup is an errgroup.Group hardened for long-running workers: GoSafe
// recovers panics and restarts the worker with backoff instead of taking the
// whole process down, and WaitOrInterrupt returns early when the parent
// context (typically signal.NotifyContext) is canceled.
type SafeGroup struct {
	*errgroup.Group
	ctx    context.Context
	parent context.Context
}

func NewSafeGroup(ctx context.Context) *SafeGroup {
	if ctx == nil {
		ctx = context.Background()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	return &SafeGroup{Group: group, ctx: groupCtx, parent: ctx}
}

// Context returns the group-derived context, canceled on parent cancellation
// or the first worker error.
func (sg *SafeGroup) Context() context.Context { return sg.ctx }

// GoSafe runs fn in a group goroutine. A panic is logged and the worker is
// restarted with exponential backoff; a returned error cancels the group as
// usual. Panic reports go to stderr rather than the structured logger, since
// the logger itself may be what panicked.
func (sg *SafeGroup) GoSafe(name string, fn func(context.Context) error) {
	sg.Group.Go(func() (err error) {
		backoff := 200 * time.Millisecond
		const maxBackoff = 30 * time.Second
		for {
			select {
			case <-sg.ctx.Done():
				return nil
			default:
			}

			panicked := false
			func() {
				defer func() {
					if r := recover(); r != nil {
						panicked = true
						fmt.Fprintf(os.Stderr, "WARN: %s panicked: %v\n%s\n", name, r, debug.Stack())
					}
				}()
				err = fn(sg.ctx)
			}()
			if !panicked {
				return err
			}

			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	})
}

// WaitOrInterrupt waits for the group to finish. If the parent context is
// canceled first, it allows up to gracePeriod for workers to wind down before
// returning the parent's error.
func (sg *SafeGroup) WaitOrInterrupt(gracePeriod time.Duration) error {
	waitCh := make(chan error, 1)
	go func() { waitCh <- sg.Group.Wait() }()

	select {
	case err := <-waitCh:
		return err
	case <-sg.parent.Done():
		if gracePeriod <= 0 {
			return sg.parent.Err()
		}
		select {
		case err := <-waitCh:
			return err
		case <-time.After(gracePeriod):
			return sg.parent.Err()
		}
	}
}
