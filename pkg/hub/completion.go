package hub

import (
	"context"
	"errors"
)

// ErrCompletionDropped is the result of a Completion abandoned because the
// port was detached or the hub disconnected.
var ErrCompletionDropped = errors.New("completion dropped")

// Completion is the single-slot future of a rotation bounded motor run.
// It is settled at most once: resolved when the hub reports the command
// finished (or discarded), dropped otherwise.
type Completion struct {
	port    byte
	done    chan struct{}
	err     error
	settled bool
}

func newCompletion(port byte) *Completion {
	return &Completion{port: port, done: make(chan struct{})}
}

func resolvedCompletion(port byte) *Completion {
	c := newCompletion(port)
	c.settle(nil)
	return c
}

// Port returns the port of the motor.
func (c *Completion) Port() byte {
	return c.port
}

// Done is closed when the completion is settled.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns nil if resolved, ErrCompletionDropped if dropped.
// Only valid after Done is closed.
func (c *Completion) Err() error {
	return c.err
}

// Wait blocks until the completion is settled or ctx is done.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settle must only be called from the goroutine owning the motor.
func (c *Completion) settle(err error) bool {
	if c.settled {
		return false
	}
	c.settled, c.err = true, err
	close(c.done)
	return true
}

// WaitAll waits for all completions, returning the first error.
func WaitAll(ctx context.Context, completions ...*Completion) error {
	for _, c := range completions {
		if err := c.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
