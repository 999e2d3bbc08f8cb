package fleet

// Stream is what a viewer connection reads from, whichever delivery mode
// backs it.
type Stream interface {
	Events() <-chan Snapshot
	Close()
}

var (
	_ Stream = (*Subscription)(nil)
	_ Stream = (*PollStream)(nil)
)
