package service

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

const defaultPollInterval = 250 * time.Millisecond

// completionHub wakes local waiters as soon as a result is stored. Waiters
// also poll, which covers results produced by workers in other processes.
type completionHub struct {
	waiters *xsync.MapOf[string, *waiter]
	poll    time.Duration
}

// waiter is shared by everyone waiting on one key and removed with the last.
type waiter struct {
	ch   chan struct{}
	refs int
}

func newCompletionHub() *completionHub {
	return &completionHub{
		waiters: xsync.NewMapOf[string, *waiter](),
		poll:    defaultPollInterval,
	}
}

func (h *completionHub) signal(key string) {
	if w, ok := h.waiters.LoadAndDelete(key); ok {
		close(w.ch)
	}
}

func (h *completionHub) join(key string) chan struct{} {
	w, _ := h.waiters.Compute(key, func(old *waiter, loaded bool) (*waiter, bool) {
		if !loaded {
			old = &waiter{ch: make(chan struct{})}
		}
		old.refs++
		return old, false
	})
	return w.ch
}

func (h *completionHub) leave(key string, ch chan struct{}) {
	h.waiters.Compute(key, func(old *waiter, loaded bool) (*waiter, bool) {
		if !loaded || old.ch != ch {
			// Already signalled; the entry, if any, belongs to later waiters.
			return old, !loaded
		}
		old.refs--
		return old, old.refs == 0
	})
}

// wait returns true once done reports completion, false when timeout passes
// first. Only done's errors are returned.
func (h *completionHub) wait(ctx context.Context, key string, timeout time.Duration, done func(context.Context) (bool, error)) (bool, error) {
	if ok, err := done(ctx); err != nil || ok {
		return ok, err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()

	for {
		ch := h.join(key)
		var expired bool
		var err error
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-deadline.C:
			expired = true
		case <-ch:
		case <-ticker.C:
		}
		h.leave(key, ch)
		if err != nil || expired {
			return false, err
		}
		if ok, err := done(ctx); err != nil || ok {
			return ok, err
		}
	}
}
