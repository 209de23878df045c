package agent

// EventKind identifies a progress event.
type EventKind int

const (
	EventThinking  EventKind = iota // model call started
	EventToolStart                  // tool call started
	EventToolDone                   // tool call finished
	EventAnswer                     // final answer committed
)

func (k EventKind) String() string {
	switch k {
	case EventThinking:
		return "thinking"
	case EventToolStart:
		return "tool_start"
	case EventToolDone:
		return "tool_done"
	case EventAnswer:
		return "answer"
	}
	return "unknown"
}

// Event reports progress of a turn. Events are delivered synchronously on
// the goroutine running the turn.
type Event struct {
	Kind     EventKind
	Round    int
	Tool     string // tool events
	CallID   string // tool events
	Success  bool   // EventToolDone
	Degraded bool   // EventToolDone
	Text     string // tool output or the answer
}

// EventFunc receives progress events.
type EventFunc func(Event)
