package runtime

import "time"

// EventKind discriminates the progress events a running turn emits.
type EventKind string

const (
	EventTextChunk       EventKind = "text-chunk"
	EventToolCallStarted EventKind = "tool-call-started"
	EventToolProgress    EventKind = "tool-progress"
	EventToolResult      EventKind = "tool-result"
	EventDone            EventKind = "done"
	EventError           EventKind = "error"
)

// Event is one observable step of turn execution. Exactly one terminal event
// (done or error) closes every run.
type Event struct {
	Kind     EventKind
	Turn     int
	Text     string
	ToolName string
	CallID   string
	IsError  bool
	Err      error
	Time     time.Time
}

const eventBufferSize = 64

// eventSink serializes event emission onto a bounded channel and guarantees
// the single-terminal-event invariant even if both a result and a failure
// race at shutdown.
type eventSink struct {
	ch       chan Event
	terminal bool
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan Event, eventBufferSize)}
}

func (s *eventSink) Events() <-chan Event { return s.ch }

func (s *eventSink) emit(ev Event) {
	if s.terminal {
		return
	}
	ev.Time = time.Now()
	s.ch <- ev
}

func (s *eventSink) emitDone(turn int) {
	s.emit(Event{Kind: EventDone, Turn: turn})
	s.terminal = true
	close(s.ch)
}

func (s *eventSink) emitError(turn int, err error) {
	s.emit(Event{Kind: EventError, Turn: turn, Err: err})
	s.terminal = true
	close(s.ch)
}
