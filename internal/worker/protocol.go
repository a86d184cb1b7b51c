// Package worker implements the session protocol spoken with the remote ML worker.
//
// Every request opens its own websocket connection. The server sends exactly
// one command and then reads frames until the worker reports Done or Error.
package worker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jocr1627/fun-with-ml-server/internal/models"
)

// Key names a worker command.
type Key string

const (
	KeyDelete   Key = "delete"
	KeyGenerate Key = "generate"
	KeyTrain    Key = "train"
)

// Frame status codes sent by the worker.
const (
	StatusDone   = 0
	StatusActive = 1
	StatusError  = 2
)

// Sentinel errors for session failures.
// Use errors.Is() to classify the Err field of an Event.
var (
	// ErrConnection indicates the worker was unreachable or the stream dropped.
	ErrConnection = errors.New("worker connection error")

	// ErrProtocol indicates the worker sent a frame that could not be decoded.
	ErrProtocol = errors.New("worker protocol error")

	// ErrTimeout indicates the worker stopped answering within the configured window.
	ErrTimeout = errors.New("worker timeout")
)

// sessionError carries a readable message while still matching one of the
// sentinel errors above.
type sessionError struct {
	kind error
	msg  string
}

func (e *sessionError) Error() string { return e.msg }
func (e *sessionError) Unwrap() error { return e.kind }

func newError(kind error, format string, args ...any) error {
	return &sessionError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Command is a single outbound request.
type Command struct {
	Key  Key `json:"key"`
	Args any `json:"args"`
}

// WireModel is the model representation the worker expects.
// Urls duplicates Sources for workers built against the first protocol revision.
type WireModel struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Sources []string `json:"sources"`
	Urls    []string `json:"urls"`
}

// DeleteArgs are the arguments of a delete command.
type DeleteArgs struct {
	Model WireModel `json:"model"`
}

// GenerateArgs are the arguments of a generate command.
type GenerateArgs struct {
	Model       WireModel `json:"model"`
	Prefix      string    `json:"prefix"`
	Count       int       `json:"count"`
	MaxLength   int       `json:"maxLength"`
	Temperature float64   `json:"temperature"`
}

// TrainArgs are the arguments of a train command.
type TrainArgs struct {
	Model     WireModel `json:"model"`
	URL       string    `json:"url"`
	Epochs    int       `json:"epochs"`
	Selectors []string  `json:"selectors"`
}

func toWire(m *models.Model) WireModel {
	sources := m.Sources
	if sources == nil {
		sources = []string{}
	}
	return WireModel{ID: m.ID, Name: m.Name, Sources: sources, Urls: sources}
}

// DeleteCommand builds the command asking the worker to drop a model.
func DeleteCommand(m *models.Model) Command {
	return Command{Key: KeyDelete, Args: DeleteArgs{Model: toWire(m)}}
}

// GenerateCommand builds a text generation command.
func GenerateCommand(m *models.Model, prefix string, count, maxLength int, temperature float64) Command {
	return Command{Key: KeyGenerate, Args: GenerateArgs{
		Model:       toWire(m),
		Prefix:      prefix,
		Count:       count,
		MaxLength:   maxLength,
		Temperature: temperature,
	}}
}

// TrainCommand builds a training command.
func TrainCommand(m *models.Model, url string, epochs int, selectors []string) Command {
	if selectors == nil {
		selectors = []string{}
	}
	return Command{Key: KeyTrain, Args: TrainArgs{
		Model:     toWire(m),
		URL:       url,
		Epochs:    epochs,
		Selectors: selectors,
	}}
}

// Frame is a single inbound message.
type Frame struct {
	Status  *int            `json:"status"`
	Results json.RawMessage `json:"results,omitempty"`
}

// EventType classifies a decoded frame.
type EventType int

const (
	EventProgress EventType = iota + 1
	EventDone
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventProgress:
		return "progress"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is what a session surfaces for each inbound frame or local failure.
type Event struct {
	Type EventType
	// Payload holds the raw results of a progress frame.
	Payload json.RawMessage
	// Message is set for error events.
	Message string
	// Err is set when the error originated locally (connection, protocol, timeout)
	// rather than being reported by the worker.
	Err error
}

// Terminal reports whether the event ends the session.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// ErrorEvent builds a locally originated error event.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Message: err.Error(), Err: err}
}

// DecodeFrame parses a raw frame into an Event.
// Unknown status codes and malformed JSON are reported as ErrProtocol.
func DecodeFrame(data []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, newError(ErrProtocol, "malformed frame: %v", err)
	}
	if f.Status == nil {
		return Event{}, newError(ErrProtocol, "frame has no status")
	}

	switch *f.Status {
	case StatusDone:
		return Event{Type: EventDone}, nil
	case StatusActive:
		if isNull(f.Results) {
			return Event{}, newError(ErrProtocol, "progress frame has no results")
		}
		return Event{Type: EventProgress, Payload: f.Results}, nil
	case StatusError:
		return Event{Type: EventError, Message: errorMessage(f.Results)}, nil
	default:
		return Event{}, newError(ErrProtocol, "unknown frame status %d", *f.Status)
	}
}

// errorMessage extracts a readable message from error frame results.
func errorMessage(raw json.RawMessage) string {
	if isNull(raw) {
		return "worker reported an error"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "worker reported an error"
		}
		return s
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
