// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DefaultEventBuffer is the event queue capacity used if none is configured.
const DefaultEventBuffer = 64

// Config is the configuration of a [Client].
type Config struct {
	// Logger receives diagnostics. Wire traffic is logged at [LevelTrace].
	// Nothing is logged if nil.
	Logger *slog.Logger

	// EventBuffer is the capacity of the event queue. Once it is full,
	// reading from the process pauses until events are consumed. Defaults
	// to [DefaultEventBuffer].
	EventBuffer int

	// TagCommands adds a unique id to every command that has none and
	// verifies the reply echoes it.
	TagCommands bool

	// Stderr receives the standard error output of the process. Discarded
	// if nil. Only used by [Start].
	Stderr io.Writer

	// Dir is the working directory of the process. The current one is used
	// if empty. Only used by [Start].
	Dir string
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return c.Logger
}

func (c Config) eventBuffer() int {
	if c.EventBuffer < 1 {
		return DefaultEventBuffer
	}

	return c.EventBuffer
}

// Start spawns the given executable and connects to its QMP channel on
// stdin and stdout. See [Connect].
//
// The executable must be started with QMP on stdio, like with
// "-qmp stdio".
func Start(ctx context.Context, executable string, args []string, cfg Config) (*Client, error) {
	cfg.logger().Debug("Spawn process",
		slog.String("executable", executable),
		slog.Any("args", args),
	)

	proc, stdin, stdout, err := Spawn(executable, args, cfg.Dir, cfg.Stderr)
	if err != nil {
		return nil, err
	}

	return Connect(ctx, proc, stdin, stdout, cfg)
}

// Connect performs the handshake on an already running process.
//
// It waits for the greeting and negotiates capabilities. Once it returns
// successfully, the client is ready for commands. The context only limits
// the handshake.
//
// On failure, the process has terminated and the error is a
// [HandshakeError].
func Connect(
	ctx context.Context,
	proc Process,
	stdin io.WriteCloser,
	stdout io.Reader,
	cfg Config,
) (*Client, error) {
	client := newClient(proc, stdin, stdout, cfg)
	client.setState(StateHandshaking)
	client.group.Go(client.reader.run)

	greeting, err := client.awaitGreeting(ctx)
	if err != nil {
		client.abort(err)
		return nil, &HandshakeError{Err: err}
	}

	client.greeting = greeting
	client.log.Debug("Received greeting",
		slog.String("version", greeting.Version.String()),
		slog.String("package", greeting.Package),
		slog.Any("capabilities", greeting.Capabilities),
	)

	client.startEngine()

	_, err = client.Execute(ctx, "qmp_capabilities", nil)
	if err != nil {
		_ = client.Close()
		return nil, &HandshakeError{Err: fmt.Errorf("negotiate capabilities: %w", err)}
	}

	client.setState(StateReady)

	return client, nil
}

func (c *Client) awaitGreeting(ctx context.Context) (*Greeting, error) {
	var line []byte

	select {
	case l, ok := <-c.reader.lines:
		if !ok {
			if c.reader.err != nil {
				return nil, fmt.Errorf("%w: read: %w", ErrChannelClosed, c.reader.err)
			}

			return nil, ErrChannelClosed
		}

		line = l
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.log.Log(ctx, LevelTrace, "Receive", slog.String("line", string(line)))

	msg, err := Parse(line)
	if err != nil {
		return nil, err
	}

	env, err := Classify(msg)
	if err != nil {
		return nil, err
	}

	if env.Kind != KindGreeting {
		return nil, &ProtocolError{
			Line: string(msg),
			Err:  fmt.Errorf("%w: expected greeting, got %s", ErrMalformedMessage, env.Kind),
		}
	}

	return env.Greeting, nil
}

// abort tears down a process that failed the handshake before the engine
// was started.
//
// If the channel closed, the process is expected to exit on its own.
// Otherwise, it is killed.
func (c *Client) abort(cause error) {
	c.setState(StateClosing)
	c.halt()

	if !errors.Is(cause, ErrChannelClosed) {
		c.kill()
	}

	if err := c.stdin.Close(); err != nil {
		c.log.Debug("Close stdin", slog.Any("error", err))
	}

	status, err := c.proc.Wait()
	if err != nil {
		c.log.Warn("Wait for process", slog.Any("error", err))
	}

	_ = c.group.Wait()

	c.status = status
	c.err = cause

	c.setState(StateTerminated)
	close(c.done)

	c.log.Debug("Handshake failed",
		slog.Any("error", cause),
		slog.String("status", status.String()),
	)
}
