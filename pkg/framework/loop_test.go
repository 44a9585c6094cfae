package framework

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingController struct {
	ch chan Message
}

func (c *recordingController) Control(cc ControlContext) error {
	cc.Messages().ProcessMessages(ProcessMessageFunc(func(mctx MessageProcessingContext) {
		if s, ok := mctx.CurrentMessage().(string); ok {
			mctx.MessageTaken()
			c.ch <- s
		}
	}))
	return nil
}

func runTestLoop(t *testing.T, ctls ...Controller) *Loop {
	loop := NewLoop()
	loop.Interval = time.Hour
	loop.AddController(ctls...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func TestLoopMessagesInOrder(t *testing.T) {
	ctl := &recordingController{ch: make(chan Message, 16)}
	loop := runTestLoop(t, ctl)
	for _, s := range []string{"a", "b", "c"} {
		loop.PostMessage(s)
	}
	loop.PostMessage(42)
	loop.TriggerNext()
	for _, s := range []string{"a", "b", "c"} {
		select {
		case msg := <-ctl.ch:
			require.Equal(t, s, msg)
		case <-time.After(time.Second):
			t.Fatalf("message %q not received", s)
		}
	}
}

func TestLoopMessageTakenOnce(t *testing.T) {
	first := &recordingController{ch: make(chan Message, 4)}
	second := &recordingController{ch: make(chan Message, 4)}
	loop := runTestLoop(t, first, second)
	loop.Post("x")
	select {
	case msg := <-first.ch:
		require.Equal(t, "x", msg)
	case <-time.After(time.Second):
		t.Fatal("message not received")
	}
	select {
	case msg := <-second.ch:
		t.Fatalf("unexpected message %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoopSchedule(t *testing.T) {
	ctl := &recordingController{ch: make(chan Message, 4)}
	loop := runTestLoop(t, ctl)

	canceled := loop.Schedule(20*time.Millisecond, "canceled")
	task := loop.Schedule(40*time.Millisecond, "fired")
	require.True(t, canceled.Cancel())
	require.False(t, canceled.Cancel())

	select {
	case msg := <-ctl.ch:
		require.Equal(t, "fired", msg)
	case <-time.After(time.Second):
		t.Fatal("scheduled message not received")
	}
	require.True(t, task.Fired())
	require.False(t, task.Cancel())
	require.False(t, canceled.Fired())

	var nilTask *Task
	require.False(t, nilTask.Cancel())
}

func TestRunnerAggregatesErrors(t *testing.T) {
	errFoo := errors.New("foo")
	r := NewRunner().Go(
		NamedRun("ok", RunFunc(func(context.Context) error { return nil })),
		NamedRun("canceled", RunFunc(func(context.Context) error { return context.Canceled })),
		NamedRun("foo", RunFunc(func(context.Context) error { return errFoo })),
	)
	err := r.Wait()
	require.Error(t, err)
	agg, ok := err.(*AggregatedError)
	require.True(t, ok)
	require.Equal(t, []error{errFoo}, agg.Errors)
	require.Equal(t, "foo", err.Error())
	require.True(t, errors.Is(err, errFoo))

	require.NoError(t, NewRunner().Go(RunFunc(func(context.Context) error { return nil })).Wait())
}

func TestRunWithContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopCh := make(chan struct{})
	cancel()
	err := RunWithContextCancel(ctx, func() { close(stopCh) }, func() error {
		<-stopCh
		return nil
	})
	require.Equal(t, context.Canceled, err)
}

func TestRunnerFailureStopsOthers(t *testing.T) {
	errBar := errors.New("bar")
	r := NewRunner().Go(
		NamedRun("blocked", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
		NamedRun("bar", RunFunc(func(context.Context) error { return errBar })),
	)
	require.Equal(t, errBar, r.Wait().(*AggregatedError).Errors[0])

	var agg AggregatedError
	agg.Add(nil, errBar, errors.New("baz"))
	require.Equal(t, "2 errors:\n  bar\n  baz", agg.Error())
	require.Nil(t, (&AggregatedError{}).Aggregate())
}

type countingCloser struct {
	closed int32
	ch     chan struct{}
}

func newCountingCloser() *countingCloser {
	return &countingCloser{ch: make(chan struct{})}
}

func (c *countingCloser) Close() error {
	if atomic.AddInt32(&c.closed, 1) == 1 {
		close(c.ch)
	}
	return nil
}

func TestRunWithContextCloser(t *testing.T) {
	closer := newCountingCloser()
	require.NoError(t, RunWithContextCloser(context.Background(), closer, func() error { return nil }))
	require.Equal(t, int32(1), atomic.LoadInt32(&closer.closed))

	closer = newCountingCloser()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()
	err := RunWithContextCloser(ctx, closer, func() error {
		close(started)
		<-closer.ch
		return nil
	})
	require.Equal(t, context.Canceled, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&closer.closed))
}
