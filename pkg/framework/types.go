// Package framework provides the single-threaded loop hub logic runs on.
package framework

import (
	"context"
	"time"
)

// Named is implemented by Runnables with a name for logs.
type Named interface {
	Name() string
}

// Runnable is a background task started along with a Loop or Runner.
type Runnable interface {
	Run(context.Context) error
}

// Message is anything posted to the loop. Controllers pick up
// the messages they understand by type.
type Message interface{}

// Controller is called once per loop iteration.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc is the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(cc ControlContext) error {
	return f(cc)
}

// ControlContext is what a Controller sees during an iteration.
type ControlContext interface {
	// Context is canceled when the loop stops.
	Context() context.Context
	// Time is when the iteration started.
	Time() time.Time
	// Messages are the ones posted before the iteration started.
	Messages() MessageStore

	LoopControl
}

// LoopControl feeds the loop from any goroutine.
type LoopControl interface {
	// PostMessage enqueues the message for the next iteration.
	PostMessage(Message)
	// TriggerNext wakes up the loop without waiting for Interval.
	TriggerNext()
	// Schedule posts msg and triggers an iteration after d.
	Schedule(d time.Duration, msg Message) *Task
}

// MessageStore holds the messages of an iteration.
type MessageStore interface {
	// ProcessMessages hands every remaining message to proc in order.
	ProcessMessages(MessageProcessor)
	// Len returns the number of messages not taken yet.
	Len() int
}

// MessageProcessor inspects messages one by one.
type MessageProcessor interface {
	ProcessMessage(MessageProcessingContext)
}

// ProcessMessageFunc is the func form of MessageProcessor.
type ProcessMessageFunc func(MessageProcessingContext)

// ProcessMessage implements MessageProcessor.
func (f ProcessMessageFunc) ProcessMessage(mc MessageProcessingContext) {
	f(mc)
}

// MessageProcessingContext refers to the message being inspected.
type MessageProcessingContext interface {
	CurrentMessage() Message
	// MessageTaken removes the message so later controllers skip it.
	MessageTaken()
}
