package supervisor

import "strings"

// StartedMarker is printed by wiresock-client once the tunnel is up.
const StartedMarker = "Tunnel has started"

// Event is the classification of one line of client output.
type Event struct {
	Line      string
	Skip      bool
	Connected bool
}

// Classify inspects a single output line. Only the started marker changes
// tunnel state; every other non-empty line is logged as is, including lines
// made of blanks.
func Classify(line string) Event {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Event{Skip: true}
	}
	return Event{
		Line:      line,
		Connected: strings.Contains(line, StartedMarker),
	}
}
