// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message is a single opaque JSON value as exchanged on the wire.
type Message = json.RawMessage

// Kind is the classification of an inbound [Message].
type Kind int

// Inbound message kinds.
const (
	KindGreeting Kind = iota + 1
	KindReply
	KindEvent
)

// String implements [fmt.Stringer].
func (k Kind) String() string {
	switch k {
	case KindGreeting:
		return "greeting"
	case KindReply:
		return "reply"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Command is a request for the process.
//
// Arguments must marshal to a JSON object, if set.
type Command struct {
	Execute   string `json:"execute"`
	Arguments any    `json:"arguments,omitempty"`
	ID        string `json:"id,omitempty"`
}

// Version is the QEMU version announced in the greeting.
type Version struct {
	Major uint8
	Minor uint8
	Micro uint8
}

// String implements [fmt.Stringer].
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

// Greeting is the banner sent by the process once the channel is open.
type Greeting struct {
	Version      Version
	Package      string
	Capabilities []string
}

// Event is an asynchronous notification.
type Event struct {
	// Name of the event, like "RESUME" or "SHUTDOWN".
	Name string
	// Data is the event specific payload. It is nil if the event has none.
	Data Message
	// Timestamp is the time the event was emitted by the process. Zero if
	// not present.
	Timestamp time.Time
	// Raw is the complete message as received.
	Raw Message
}

// Envelope is a classified inbound [Message].
//
// Depending on Kind, either Greeting, Event or one of Return and Error is
// set.
type Envelope struct {
	Kind     Kind
	Raw      Message
	Greeting *Greeting
	Event    *Event
	Return   Message
	Error    *CommandError
	ID       Message
}

// Parse parses a single line into a [Message].
//
// The line must hold exactly one JSON object.
func Parse(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)

	if len(line) == 0 || line[0] != '{' || !json.Valid(line) {
		return nil, &ProtocolError{Line: string(line), Err: ErrMalformedMessage}
	}

	return Message(bytes.Clone(line)), nil
}

// Classify sorts the given [Message] into one of the known kinds.
//
// Exactly one of the top level keys "QMP", "event" or "return"/"error" must
// be present. Anything else is a [ProtocolError].
func Classify(msg Message) (Envelope, error) {
	var fields map[string]json.RawMessage

	malformed := func(err error) (Envelope, error) {
		return Envelope{}, &ProtocolError{
			Line: string(msg),
			Err:  fmt.Errorf("%w: %w", ErrMalformedMessage, err),
		}
	}

	if err := json.Unmarshal(msg, &fields); err != nil {
		return malformed(err)
	}

	greetingRaw, isGreeting := fields["QMP"]
	eventRaw, isEvent := fields["event"]
	returnRaw, hasReturn := fields["return"]
	errorRaw, hasError := fields["error"]

	matches := 0

	for _, match := range []bool{isGreeting, isEvent, hasReturn || hasError} {
		if match {
			matches++
		}
	}

	switch {
	case matches == 0:
		return malformed(errNoKnownKey)
	case matches > 1, hasReturn && hasError:
		return malformed(errAmbiguous)
	}

	env := Envelope{
		Raw: msg,
		ID:  fields["id"],
	}

	switch {
	case isGreeting:
		greeting, err := parseGreeting(greetingRaw)
		if err != nil {
			return Envelope{}, &ProtocolError{Line: string(msg), Err: err}
		}

		env.Kind = KindGreeting
		env.Greeting = greeting
	case isEvent:
		event, err := parseEvent(eventRaw, fields)
		if err != nil {
			return malformed(err)
		}

		event.Raw = msg
		env.Kind = KindEvent
		env.Event = event
	case hasError:
		var cmdErr CommandError
		if err := json.Unmarshal(errorRaw, &cmdErr); err != nil {
			return malformed(err)
		}

		env.Kind = KindReply
		env.Error = &cmdErr
	default:
		env.Kind = KindReply
		env.Return = returnRaw
	}

	return env, nil
}

// Serialize encodes v into a single newline terminated line.
//
// A [Message] is compacted as is, anything else is marshaled with
// [json.Marshal].
func Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer

	switch value := v.(type) {
	case Message:
		if err := json.Compact(&buf, value); err != nil {
			return nil, fmt.Errorf("compact: %w", err)
		}
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}

		buf.Write(data)
	}

	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

var (
	errNoKnownKey = errors.New("no known key")
	errAmbiguous  = errors.New("ambiguous keys")
)

func parseGreeting(data json.RawMessage) (*Greeting, error) {
	var banner struct {
		Version      json.RawMessage `json:"version"`
		Capabilities []string        `json:"capabilities"`
	}

	if err := json.Unmarshal(data, &banner); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	var version struct {
		QEMU struct {
			Major *uint8 `json:"major"`
			Minor *uint8 `json:"minor"`
			Micro *uint8 `json:"micro"`
		} `json:"qemu"`
		Package string `json:"package"`
	}

	if err := json.Unmarshal(banner.Version, &version); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVersionInvalid, err)
	}

	qemu := version.QEMU
	if qemu.Major == nil || qemu.Minor == nil || qemu.Micro == nil {
		return nil, fmt.Errorf("%w: missing field", ErrVersionInvalid)
	}

	return &Greeting{
		Version: Version{
			Major: *qemu.Major,
			Minor: *qemu.Minor,
			Micro: *qemu.Micro,
		},
		Package:      version.Package,
		Capabilities: banner.Capabilities,
	}, nil
}

func parseEvent(
	nameRaw json.RawMessage,
	fields map[string]json.RawMessage,
) (*Event, error) {
	var event Event

	if err := json.Unmarshal(nameRaw, &event.Name); err != nil {
		return nil, fmt.Errorf("event name: %w", err)
	}

	if event.Name == "" {
		return nil, errors.New("event name: empty")
	}

	event.Data = fields["data"]

	if raw, exists := fields["timestamp"]; exists {
		var ts struct {
			Seconds      int64 `json:"seconds"`
			Microseconds int64 `json:"microseconds"`
		}

		if err := json.Unmarshal(raw, &ts); err != nil {
			return nil, fmt.Errorf("event timestamp: %w", err)
		}

		event.Timestamp = time.Unix(ts.Seconds, ts.Microseconds*int64(time.Microsecond))
	}

	return &event, nil
}
