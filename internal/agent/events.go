package agent

// EventKind discriminates stream events.
type EventKind string

const (
	// EventText is an incremental delta of the final answer.
	EventText EventKind = "text"

	// EventStatus is an ephemeral progress note. Not part of the answer and
	// never stored.
	EventStatus EventKind = "status"

	// EventImage is a binary payload fetched by a tool, delivered to the
	// chat layer for direct attachment.
	EventImage EventKind = "image_file"
)

// Event is one element of a streaming turn.
//
// A turn's Text events concatenate to exactly the final answer text. The
// stream ends after the last event; a failed turn ends with a single event
// whose Err is set.
type Event struct {
	Kind     EventKind
	Text     string
	Status   string
	Data     []byte
	Filename string

	// Err terminates the stream with a failure. No further events follow.
	Err error
}
