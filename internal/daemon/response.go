package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Message statuses.
const (
	StatusInfo  = "INFO"
	StatusWarn  = "WARN"
	StatusError = "ERROR"
)

// Response is the JSON document written back for every non-streaming
// command.
type Response struct {
	Messages []ResponseMessage `json:"messages"`
	Data     interface{}       `json:"data,omitempty"`
}

type ResponseMessage struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (r *Response) AddMessage(message string, status string) {
	r.Messages = append(r.Messages, ResponseMessage{
		Message: message,
		Status:  status,
	})
}

func (r *Response) AddData(data interface{}) {
	r.Data = data
}

// HasError reports whether any message has ERROR status.
func (r *Response) HasError() bool {
	for _, m := range r.Messages {
		if m.Status == StatusError {
			return true
		}
	}
	return false
}

func (r *Response) ToJSON() string {
	bytes, err := json.Marshal(r)
	if err != nil {
		fallback := Response{}
		fallback.AddMessage("Failed to encode response: "+err.Error(), StatusError)
		bytes, _ = json.Marshal(fallback)
	}
	return string(bytes)
}

// LogMessages writes the messages to slog at their matching level.
func (r *Response) LogMessages() {
	for _, message := range r.Messages {
		switch message.Status {
		case StatusWarn:
			slog.Warn(message.Message)
		case StatusError:
			slog.Error(message.Message)
		default:
			slog.Info(message.Message)
		}
	}
}

// StateEvent is one line of the STATE stream.
type StateEvent struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// StreamingResponse writes newline-delimited JSON documents to a client
// that stays connected.
type StreamingResponse struct {
	mu sync.Mutex
	w  io.Writer
}

func NewStreamingResponse(w io.Writer) *StreamingResponse {
	return &StreamingResponse{w: w}
}

// WriteMessage sends a single ResponseMessage line.
func (s *StreamingResponse) WriteMessage(message, status string) error {
	return s.writeLine(ResponseMessage{Message: message, Status: status})
}

// WriteEvent sends a named event line.
func (s *StreamingResponse) WriteEvent(event string, payload interface{}) error {
	return s.writeLine(StateEvent{Event: event, Payload: payload})
}

func (s *StreamingResponse) writeLine(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode stream line: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintf(s.w, "%s\n", data)
	return err
}
