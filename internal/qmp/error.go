// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed is returned once the QMP channel reached end of stream.
	// It is the normal termination signal and not an application error by
	// itself. Check [Client.Wait] for the exit status of the process.
	ErrChannelClosed = errors.New("qmp channel closed")

	// ErrMalformedMessage is returned if an inbound line is not a JSON object
	// or does not match any known message shape.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnexpectedReply is reported if a reply arrives while no command is
	// pending.
	ErrUnexpectedReply = errors.New("reply without pending command")

	// ErrUnexpectedGreeting is returned if a greeting arrives after the
	// handshake.
	ErrUnexpectedGreeting = errors.New("unexpected greeting")

	// ErrVersionInvalid is returned if the greeting's version information is
	// missing or out of range.
	ErrVersionInvalid = errors.New("invalid version")

	// ErrReplyIDMismatch is reported if a tagged command receives a reply
	// carrying a different id.
	ErrReplyIDMismatch = errors.New("reply id does not match command id")
)

// SpawnError is returned if the process could not be started.
type SpawnError struct {
	Executable string
	Err        error
}

// Error implements the [error] interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Executable, e.Err)
}

// Is implements the [errors.Is] interface.
func (*SpawnError) Is(other error) bool {
	_, ok := other.(*SpawnError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// HandshakeError is returned if the process did not greet properly or
// capability negotiation failed.
type HandshakeError struct {
	Err error
}

// Error implements the [error] interface.
func (e *HandshakeError) Error() string {
	return "handshake: " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*HandshakeError) Is(other error) bool {
	_, ok := other.(*HandshakeError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// ProtocolError indicates the peer violated the protocol.
//
// Line is the offending inbound line, if any.
type ProtocolError struct {
	Line string
	Err  error
}

// Error implements the [error] interface.
func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return "protocol violation: " + e.Err.Error()
	}

	return fmt.Sprintf("protocol violation: %v: %q", e.Err, e.Line)
}

// Is implements the [errors.Is] interface.
func (*ProtocolError) Is(other error) bool {
	_, ok := other.(*ProtocolError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ExitError is returned if the process terminated unsuccessfully.
type ExitError struct {
	Status ExitStatus
}

// Error implements the [error] interface.
func (e *ExitError) Error() string {
	return "process exited: " + e.Status.String()
}

// Is implements the [errors.Is] interface.
func (*ExitError) Is(other error) bool {
	_, ok := other.(*ExitError)
	return ok
}

// CommandError is the error reply of a command.
//
// It is not terminal. The channel stays usable.
type CommandError struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

// Error implements the [error] interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed: %s: %s", e.Class, e.Desc)
}

// Is implements the [errors.Is] interface.
func (*CommandError) Is(other error) bool {
	_, ok := other.(*CommandError)
	return ok
}
