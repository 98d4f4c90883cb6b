package quizstream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// EventType tags a StreamEvent on the wire
type EventType string

const (
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
	EventQuestion EventType = "question"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

var ErrUnknownEvent = errors.New("unknown event type")

const framePrefix = "data: "

// Event is one of StatusEvent, ProgressEvent, QuestionEvent, ErrorEvent or CompleteEvent
type Event interface {
	Kind() EventType
}

type StatusEvent struct {
	Message   string `json:"message"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

// ProgressEvent is sent before each question of a chunk starts generating
type ProgressEvent struct {
	Message   string `json:"message"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Current   int    `json:"current"`
}

// QuestionEvent carries one generated question. Data.Index is chunk-local and 0-based.
type QuestionEvent struct {
	Data      GeneratedQuestion `json:"data"`
	Completed int               `json:"completed"`
	Total     int               `json:"total"`
}

// ErrorEvent reports a single failed question; the chunk goes on
type ErrorEvent struct {
	Message   string `json:"message"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Current   int    `json:"current"`
}

// CompleteEvent is the last application-level event of a chunk stream
type CompleteEvent struct {
	Message   string `json:"message"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

func (StatusEvent) Kind() EventType   { return EventStatus }
func (ProgressEvent) Kind() EventType { return EventProgress }
func (QuestionEvent) Kind() EventType { return EventQuestion }
func (ErrorEvent) Kind() EventType    { return EventError }
func (CompleteEvent) Kind() EventType { return EventComplete }

// EncodeEvent marshals an event into a JSON object tagged with its type
func EncodeEvent(ev Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", ev.Kind(), err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to tag %s event: %w", ev.Kind(), err)
	}
	fields["type"] = json.RawMessage(strconv.Quote(string(ev.Kind())))

	return json.Marshal(fields)
}

// DecodeEvent parses one frame payload into its concrete event type
func DecodeEvent(payload []byte) (Event, error) {
	var tag struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(payload, &tag); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	var ev Event
	var err error
	switch tag.Type {
	case EventStatus:
		var e StatusEvent
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventProgress:
		var e ProgressEvent
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventQuestion:
		var e QuestionEvent
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventError:
		var e ErrorEvent
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventComplete:
		var e CompleteEvent
		err = json.Unmarshal(payload, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, tag.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", tag.Type, err)
	}
	return ev, nil
}

// WriteFrame writes ev as a single "data: <json>\n\n" frame
func WriteFrame(w io.Writer, ev Event) error {
	payload, err := EncodeEvent(ev)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Grow(len(framePrefix) + len(payload) + 2)
	buf.WriteString(framePrefix)
	buf.Write(payload)
	buf.WriteString("\n\n")

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", ev.Kind(), err)
	}
	return nil
}

// MaxFrameSize caps a single line of a streaming body
const MaxFrameSize = 1 << 20

var ErrFrameTooLong = errors.New("stream frame too long")

// FrameReader splits a streaming body into frame payloads without buffering it whole
type FrameReader struct {
	sc *bufio.Scanner
}

func NewFrameReader(r io.Reader) *FrameReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxFrameSize)
	return &FrameReader{sc: sc}
}

// Next returns the payload of the next "data: " line. Lines without the prefix are
// skipped. It returns io.EOF once the body is exhausted and ErrFrameTooLong for a
// line longer than MaxFrameSize.
func (fr *FrameReader) Next() ([]byte, error) {
	for fr.sc.Scan() {
		line := bytes.TrimRight(fr.sc.Bytes(), "\r")
		if payload, ok := bytes.CutPrefix(line, []byte(framePrefix)); ok && len(payload) > 0 {
			return bytes.Clone(payload), nil
		}
	}
	if err := fr.sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: over %d bytes", ErrFrameTooLong, MaxFrameSize)
		}
		return nil, err
	}
	return nil, io.EOF
}
