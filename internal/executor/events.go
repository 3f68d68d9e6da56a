package executor

// EventType identifies a progress notification emitted during execution.
type EventType int

const (
	EventHostStarted EventType = iota
	EventAttemptFailed
	EventCommandDone
	EventHostDone
)

// Event describes progress on a single host. Index and Total refer to the
// position of Command in the host's command list.
type Event struct {
	Type    EventType
	Host    string
	Command string
	Index   int
	Total   int
	Attempt int
	Err     error
	Result  *Result // set for EventCommandDone
}

// Observer receives events from every host worker. It is called concurrently
// and must not block for long.
type Observer func(Event)

func (e *Executor) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}
