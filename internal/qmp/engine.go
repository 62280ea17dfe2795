// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// LevelTrace is the log level used for the raw wire traffic.
const LevelTrace = slog.LevelDebug - 4

// result is the outcome of a single command.
type result struct {
	value Message
	err   error
}

// request is a command waiting to be sent, together with the channel its
// result is delivered on. The channel has capacity 1, so completion never
// blocks even if the submitter is gone.
type request struct {
	cmd   any
	reply chan result
}

func newRequest(cmd any) *request {
	return &request{
		cmd:   cmd,
		reply: make(chan result, 1),
	}
}

func (r *request) complete(value Message, err error) {
	r.reply <- result{value: value, err: err}
}

// engine owns the write side of the channel and demultiplexes inbound
// messages into replies and events.
//
// At most one command is in flight at any time. New requests are only
// accepted while no command is pending.
type engine struct {
	log         *slog.Logger
	stdin       io.Writer
	reader      *lineReader
	requests    <-chan *request
	events      chan Event
	stop        <-chan struct{}
	tagCommands bool
	violations  *atomic.Int64

	pending   *request
	pendingID string

	// err is the terminal error. It is set before stopped is closed.
	err     error
	stopped chan struct{}
}

// run processes requests and inbound lines until end of stream or a fatal
// protocol error. A command still pending then is failed.
func (e *engine) run() error {
	err := e.loop()

	e.err = err
	close(e.events)
	close(e.stopped)

	return err
}

// closedErr is the error for any operation attempted after the engine
// stopped. Must only be called once stopped is closed.
func (e *engine) closedErr() error {
	if e.err == nil {
		return ErrChannelClosed
	}

	return fmt.Errorf("%w: %w", ErrChannelClosed, e.err)
}

func (e *engine) loop() error {
	for {
		// Prefer new requests over inbound lines while idle, so a command
		// is on its way as early as possible.
		if e.pending == nil {
			select {
			case req := <-e.requests:
				e.dispatch(req)
				continue
			default:
			}
		}

		var requests <-chan *request
		if e.pending == nil {
			requests = e.requests
		}

		select {
		case req := <-requests:
			e.dispatch(req)
		case line, ok := <-e.reader.lines:
			if !ok {
				return e.endOfStream()
			}

			if err := e.handle(line); err != nil {
				e.log.Error("Fatal protocol error", slog.Any("error", err))
				e.failPending(err)

				return err
			}
		}
	}
}

func (e *engine) endOfStream() error {
	readErr := e.reader.err
	if readErr != nil {
		readErr = fmt.Errorf("read: %w", readErr)
		e.failPending(fmt.Errorf("%w: %w", ErrChannelClosed, readErr))

		return readErr
	}

	e.log.Debug("QMP channel closed")
	e.failPending(ErrChannelClosed)

	return nil
}

func (e *engine) failPending(err error) {
	if e.pending == nil {
		return
	}

	e.pending.complete(nil, err)
	e.pending = nil
	e.pendingID = ""
}

func (e *engine) dispatch(req *request) {
	line, id, err := e.encode(req.cmd)
	if err != nil {
		req.complete(nil, fmt.Errorf("encode command: %w", err))
		return
	}

	e.log.Log(context.Background(), LevelTrace, "Send",
		slog.String("line", string(line[:len(line)-1])))

	if _, err := e.stdin.Write(line); err != nil {
		// The read side decides when the channel is gone. Keep reading, so
		// the exit status is collected properly.
		req.complete(nil, fmt.Errorf("write command: %w: %w", ErrChannelClosed, err))
		return
	}

	e.pending = req
	e.pendingID = id
}

// encode serializes the command. If tagging is enabled, object commands
// without an id get a fresh ULID. The id of the command is returned in its
// raw JSON form, empty if it has none.
func (e *engine) encode(cmd any) ([]byte, string, error) {
	line, err := Serialize(cmd)
	if err != nil || !e.tagCommands {
		return line, "", err
	}

	var fields map[string]json.RawMessage

	if json.Unmarshal(line, &fields) != nil {
		// Not an object. Send as is and let the peer complain.
		return line, "", nil
	}

	if id, exists := fields["id"]; exists {
		return line, string(id), nil
	}

	id, err := json.Marshal(ulid.Make().String())
	if err != nil {
		return nil, "", fmt.Errorf("marshal id: %w", err)
	}

	fields["id"] = id

	line, err = Serialize(fields)
	if err != nil {
		return nil, "", err
	}

	return line, string(id), nil
}

func (e *engine) handle(line []byte) error {
	e.log.Log(context.Background(), LevelTrace, "Receive",
		slog.String("line", string(line)))

	msg, err := Parse(line)
	if err != nil {
		return err
	}

	env, err := Classify(msg)
	if err != nil {
		return err
	}

	switch env.Kind {
	case KindGreeting:
		return &ProtocolError{Line: string(msg), Err: ErrUnexpectedGreeting}
	case KindEvent:
		e.deliver(*env.Event)
	case KindReply:
		e.reply(env)
	}

	return nil
}

// deliver queues the event. If the queue is full, the engine blocks until
// the consumer catches up or the client stops listening.
func (e *engine) deliver(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	e.log.Debug("Event queue full", slog.String("event", event.Name))

	select {
	case e.events <- event:
	case <-e.stop:
		e.log.Debug("Event dropped", slog.String("event", event.Name))
	}
}

func (e *engine) reply(env Envelope) {
	if e.pending == nil {
		e.violations.Add(1)
		e.log.Error("Discarding reply", slog.Any("error", &ProtocolError{
			Line: string(env.Raw),
			Err:  ErrUnexpectedReply,
		}))

		return
	}

	if e.pendingID != "" && string(env.ID) != e.pendingID {
		e.violations.Add(1)
		e.log.Error("Reply for other command", slog.Any("error", &ProtocolError{
			Line: string(env.Raw),
			Err:  ErrReplyIDMismatch,
		}))
	}

	req := e.pending
	e.pending = nil
	e.pendingID = ""

	if env.Error != nil {
		req.complete(nil, env.Error)
	} else {
		req.complete(env.Return, nil)
	}
}
