package framework

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Loop runs controllers one iteration at a time. Messages posted from any
// goroutine are handed to the controllers in order, so controllers never
// run concurrently with each other.
type Loop struct {
	// Interval is the period of idle iterations.
	Interval time.Duration

	controllers []Controller
	runners     []Runnable

	messages messageList
	lock     sync.Mutex
	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

// DefaultInterval is the default period of idle iterations.
const DefaultInterval = 100 * time.Millisecond

type loopIteration struct {
	*Loop
	ctx      context.Context
	time     time.Time
	messages messageList
}

type messageList struct {
	head *messageItem
	tail *messageItem
	size int
}

type messageItem struct {
	msg  Message
	next *messageItem
}

func (l *messageList) append(item *messageItem) {
	if l.head == nil {
		l.head = item
	} else {
		l.tail.next = item
	}
	l.tail = item
	l.size++
}

func (l *messageList) splice(src *messageList) {
	l.head, l.tail, l.size = src.head, src.tail, src.size
	src.head, src.tail, src.size = nil, nil, 0
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{
		Interval: DefaultInterval,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers, executed in the order of registration.
func (l *Loop) AddController(ctls ...Controller) *Loop {
	l.controllers = append(l.controllers, ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions started with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.lock.Lock()
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	wakeUpCh := l.wakeUpCh
	l.lock.Unlock()

	runner := NewRunnerWith(ctx)
	runner.Go(l.runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.runIteration(ctx)
		case <-wakeUpCh:
			l.runIteration(ctx)
		}
	}
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.messages.append(&messageItem{msg: msg})
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	l.lock.Lock()
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	ch := l.wakeUpCh
	l.lock.Unlock()
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Post is PostMessage followed by TriggerNext.
func (l *Loop) Post(msg Message) {
	l.PostMessage(msg)
	l.TriggerNext()
}

// Schedule implements LoopControl.
func (l *Loop) Schedule(d time.Duration, msg Message) *Task {
	t := &Task{}
	t.timer = time.AfterFunc(d, func() {
		if atomic.CompareAndSwapInt32(&t.state, taskPending, taskFired) {
			l.Post(msg)
		}
	})
	return t
}

func (l *Loop) runIteration(ctx context.Context) {
	iter := &loopIteration{Loop: l, ctx: ctx, time: time.Now()}
	l.lock.Lock()
	iter.messages.splice(&l.messages)
	l.lock.Unlock()
	for _, ctl := range l.controllers {
		if err := ctl.Control(iter); err != nil {
			glog.Errorf("controller error: %v", err)
		}
	}
	if n := iter.messages.size; n > 0 {
		glog.V(4).Infof("%d messages not taken", n)
	}
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Time() time.Time {
	return t.time
}

func (t *loopIteration) Messages() MessageStore {
	return t
}

func (t *loopIteration) Len() int {
	return t.messages.size
}

type messageContext struct {
	item  *messageItem
	taken bool
}

func (c *messageContext) CurrentMessage() Message { return c.item.msg }
func (c *messageContext) MessageTaken()           { c.taken = true }

func (t *loopIteration) ProcessMessages(proc MessageProcessor) {
	var msgs, remains messageList
	msgs.splice(&t.messages)
	for msgs.head != nil {
		mctx := &messageContext{item: msgs.head}
		msgs.head = msgs.head.next
		mctx.item.next = nil
		proc.ProcessMessage(mctx)
		if !mctx.taken {
			remains.append(mctx.item)
		}
	}
	t.messages = remains
}

const (
	taskPending int32 = iota
	taskFired
	taskCanceled
)

// Task is a one-shot message scheduled by Loop.Schedule.
type Task struct {
	timer *time.Timer
	state int32
}

// Cancel prevents the message from being posted. It returns false if the
// message was already posted or the task was canceled before.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	if !atomic.CompareAndSwapInt32(&t.state, taskPending, taskCanceled) {
		return false
	}
	t.timer.Stop()
	return true
}

// Fired indicates the message has been posted.
func (t *Task) Fired() bool {
	return atomic.LoadInt32(&t.state) == taskFired
}
