// AngelaMos | 2026
// dispatcher.go

package notify

import (
	"context"
	"sync"
	"time"

	"github.com/petlove/backoffice-api/internal/core"
)

const defaultTimeout = 5 * time.Second

// Dispatcher runs sends in the background, detached from request
// cancellation and bounded by a timeout.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(notifier Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
	}
}

// Dispatch never blocks on delivery. Failures are logged with the caller's
// request-scoped logger. Messages dispatched after Close are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	logger := core.LoggerFromContext(ctx)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		logger.Warn("notification dropped, dispatcher closed", "template", msg.Template)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		if err := d.notifier.Send(sendCtx, msg); err != nil {
			logger.Error("notification failed",
				"template", msg.Template,
				"error", err,
			)
			return
		}

		logger.Debug("notification queued", "template", msg.Template)
	}()
}

// Close stops accepting messages and waits for in-flight sends or until
// ctx is done. It may be called more than once.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
