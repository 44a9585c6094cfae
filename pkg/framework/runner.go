package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Runner.Wait after a second stop signal.
var ErrForcedExit = errors.New("forced exit")

type named struct {
	Runnable
	name string
}

func (r *named) Name() string { return r.name }

// NamedRun wraps a Runnable with a name used in logs.
func NamedRun(name string, runnable Runnable) Runnable {
	return &named{Runnable: runnable, name: name}
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Runner runs Runnables sharing one context. The first failing Runnable
// stops the others.
type Runner struct {
	Context context.Context

	cancel context.CancelFunc
	wg     sync.WaitGroup
	forced chan struct{}
	count  int

	errsLock sync.Mutex
	errs     AggregatedError
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner derived from ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	r := &Runner{forced: make(chan struct{})}
	r.Context, r.cancel = context.WithCancel(ctx)
	return r
}

// HandleSignals stops the runner on interrupt or SIGTERM. A second signal
// makes Wait return without waiting.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		glog.Infof("%v: stopping", <-sigCh)
		r.Stop()
		glog.Errorf("%v: exit now", <-sigCh)
		close(r.forced)
	}()
	return r
}

// Stop cancels the context of all Runnables.
func (r *Runner) Stop() {
	r.cancel()
}

// Go starts Runnables.
func (r *Runner) Go(runnables ...Runnable) *Runner {
	for _, runnable := range runnables {
		name := "#" + strconv.Itoa(r.count)
		if n, ok := runnable.(Named); ok {
			name = n.Name()
		}
		r.count++
		r.wg.Add(1)
		go r.run(name, runnable)
	}
	return r
}

func (r *Runner) run(name string, runnable Runnable) {
	defer r.wg.Done()
	glog.V(4).Infof("%s running", name)
	err := runnable.Run(r.Context)
	glog.V(4).Infof("%s exited: %v", name, err)
	if err == nil || err == context.Canceled {
		return
	}
	r.errsLock.Lock()
	r.errs.Add(err)
	r.errsLock.Unlock()
	r.cancel()
}

// Wait waits for all Runnables and returns their errors.
// context.Canceled is not an error.
func (r *Runner) Wait() error {
	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-r.forced:
		return ErrForcedExit
	}
	r.cancel()
	r.errsLock.Lock()
	defer r.errsLock.Unlock()
	return r.errs.Aggregate()
}

// RunWithContextCancel runs fn which doesn't accept a context.
// When ctx is done, onCancel must make fn return.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	resultCh := make(chan error, 1)
	go func() { resultCh <- fn() }()
	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
	}
	if onCancel != nil {
		onCancel()
	}
	<-resultCh
	return ctx.Err()
}

// RunWithContextCloser runs fn and closes closer exactly once, when ctx is
// done or after fn returns.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var once sync.Once
	closeOnce := func() {
		once.Do(func() { closer.Close() })
	}
	defer closeOnce()
	return RunWithContextCancel(ctx, closeOnce, fn)
}
