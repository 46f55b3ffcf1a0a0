package bus

import "time"

type EventKind string

const (
	EventAnswered  EventKind = "answered"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// CallEvent is a lifecycle notification emitted by the webhook layer and
// consumed by the dispatcher, which owns the CallRecord bookkeeping.
type CallEvent struct {
	Kind        EventKind
	CallID      string
	Number      string
	DurationSec int
	Transcript  string
	OccurredAt  time.Time
}

// Bus carries call lifecycle events between components. Publishing never
// blocks a webhook response: when the buffer is full Publish reports a
// drop and the publisher logs it. A dropped terminal event leaves its
// call in the dispatcher's active set until Stop finalizes it.
type Bus struct {
	Events chan CallEvent
}

func New(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 1
	}
	return &Bus{Events: make(chan CallEvent, bufSize)}
}

func (b *Bus) Publish(ev CallEvent) bool {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	select {
	case b.Events <- ev:
		return true
	default:
		return false
	}
}
