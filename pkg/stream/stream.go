// Package stream turns a duplex socket into a matched pair of half-duplex
// streams that report readiness as discrete events.
//
// Neither Read nor Write ever blocks. An input stream posts
// EventHasBytesAvailable when data arrived and reads the next chunk from the
// socket only after the previous one was consumed. An output stream accepts
// at most one chunk at a time and posts EventHasSpaceAvailable once that
// chunk is on the wire. All events are delivered through a runloop.Loop, in
// the order the socket produced them, and never after the stream was closed.
package stream

import (
	"errors"
	"fmt"

	"dominicbreuker/msgsock/pkg/runloop"
)

// Event is a readiness or lifecycle notification.
type Event int

const (
	EventNone Event = iota
	EventOpenCompleted
	EventHasBytesAvailable
	EventHasSpaceAvailable
	EventErrorOccurred
	EventEndEncountered
)

func (e Event) String() string {
	switch e {
	case EventOpenCompleted:
		return "open"
	case EventHasBytesAvailable:
		return "readable"
	case EventHasSpaceAvailable:
		return "writable"
	case EventErrorOccurred:
		return "error"
	case EventEndEncountered:
		return "end"
	default:
		return "none"
	}
}

// Status is the lifecycle state of one stream.
type Status int

const (
	StatusNotOpen Status = iota
	StatusOpening
	StatusOpen
	StatusAtEnd
	StatusClosed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusNotOpen:
		return "not open"
	case StatusOpening:
		return "opening"
	case StatusOpen:
		return "open"
	case StatusAtEnd:
		return "at end"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ErrNotOpen is returned when reading or writing a stream that is not open.
var ErrNotOpen = errors.New("stream not open")

// Handler receives stream events.
type Handler interface {
	HandleEvent(s Stream, ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(s Stream, ev Event)

// HandleEvent calls f(s, ev).
func (f HandlerFunc) HandleEvent(s Stream, ev Event) {
	f(s, ev)
}

// Stream is the part shared by input and output streams.
type Stream interface {
	// Schedule registers h to receive events on l. It must be called
	// before Open.
	Schedule(l *runloop.Loop, h Handler)
	// Open starts opening the stream; completion is reported as
	// EventOpenCompleted or EventErrorOccurred.
	Open()
	// Close closes the stream. No events are delivered afterwards.
	Close()
	Status() Status
	Err() error
}

// Input is the readable half of a pair.
type Input interface {
	Stream
	// Read copies available bytes into p without blocking. It returns
	// 0, nil if nothing is available yet.
	Read(p []byte) (int, error)
	HasBytesAvailable() bool
}

// Output is the writable half of a pair.
type Output interface {
	Stream
	// Write accepts a prefix of p without blocking and returns its length.
	// It returns 0, nil if the stream has no space right now.
	Write(p []byte) (int, error)
	HasSpaceAvailable() bool
}
