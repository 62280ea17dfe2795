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
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// State is the lifecycle state of a [Client].
type State int32

// Lifecycle states.
const (
	StateLaunching State = iota
	StateHandshaking
	StateReady
	StateClosing
	StateTerminated
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Client is a QMP channel to a running process.
//
// All methods are safe for concurrent use. Commands are sent strictly one
// at a time in the order they are accepted.
type Client struct {
	log   *slog.Logger
	proc  Process
	stdin io.WriteCloser

	reader   *lineReader
	engine   *engine
	requests chan *request
	group    errgroup.Group

	state      atomic.Int32
	violations atomic.Int64
	greeting   *Greeting

	stop     chan struct{}
	stopOnce sync.Once
	killOnce sync.Once

	// status and err are set before done is closed.
	done   chan struct{}
	status ExitStatus
	err    error
}

func newClient(proc Process, stdin io.WriteCloser, stdout io.Reader, cfg Config) *Client {
	client := &Client{
		log:      cfg.logger(),
		proc:     proc,
		stdin:    stdin,
		requests: make(chan *request),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	client.reader = newLineReader(stdout, client.stop)
	client.engine = &engine{
		log:         client.log,
		stdin:       stdin,
		reader:      client.reader,
		requests:    client.requests,
		events:      make(chan Event, cfg.eventBuffer()),
		stop:        client.stop,
		tagCommands: cfg.TagCommands,
		violations:  &client.violations,
		stopped:     make(chan struct{}),
	}

	return client
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(state State) {
	c.state.Store(int32(state))
}

// Greeting returns the greeting received during the handshake.
func (c *Client) Greeting() Greeting {
	return *c.greeting
}

// Version returns the QEMU version announced in the greeting.
func (c *Client) Version() Version {
	return c.greeting.Version
}

// Violations returns the number of non-fatal protocol violations seen so
// far, like replies nobody waited for.
func (c *Client) Violations() int64 {
	return c.violations.Load()
}

// Submit sends the given command and waits for its reply.
//
// The command must marshal to a JSON object. The raw return value is
// returned on success. An error reply is returned as [CommandError]. If the
// channel closes before the reply arrives, the error wraps
// [ErrChannelClosed].
//
// Cancelling the context only abandons the wait. A command already sent
// still occupies the channel until its reply arrives.
func (c *Client) Submit(ctx context.Context, cmd any) (Message, error) {
	req := newRequest(cmd)

	select {
	case c.requests <- req:
	case <-c.engine.stopped:
		return nil, c.engine.closedErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Execute sends the named command with optional arguments and waits for its
// reply. See [Client.Submit].
func (c *Client) Execute(ctx context.Context, name string, args any) (Message, error) {
	return c.Submit(ctx, Command{Execute: name, Arguments: args})
}

// NextEvent returns the next event in arrival order.
//
// It blocks until an event is available. Once the channel is closed and all
// queued events are consumed, an error wrapping [ErrChannelClosed] is
// returned.
func (c *Client) NextEvent(ctx context.Context) (Event, error) {
	select {
	case event, ok := <-c.engine.events:
		if !ok {
			return Event{}, c.engine.closedErr()
		}

		return event, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Shutdown asks the process to quit and waits for it to exit.
//
// If the context is done before the process exited, it is killed and events
// that did not fit into the queue anymore are dropped. The exit status is
// returned in any case it could be obtained.
func (c *Client) Shutdown(ctx context.Context) (ExitStatus, error) {
	if c.State() == StateReady {
		c.setState(StateClosing)
	}

	_, err := c.Execute(ctx, "quit", nil)
	if err != nil && !errors.Is(err, ErrChannelClosed) && ctx.Err() == nil {
		c.log.Warn("Quit command failed", slog.Any("error", err))
	}

	select {
	case <-c.done:
	case <-ctx.Done():
		c.log.Warn("Process did not quit in time, killing it")
		// Nobody might drain the event queue, so stop delivery first.
		// Otherwise the engine never notices the end of stream.
		c.halt()
		c.kill()
		<-c.done
	}

	return c.result()
}

// Wait blocks until the process terminated and returns its exit status.
//
// The error is a fatal protocol error, if one ended the channel, or an
// [ExitError] if the process did not exit successfully.
func (c *Client) Wait(ctx context.Context) (ExitStatus, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return ExitStatus{}, ctx.Err()
	}

	return c.result()
}

// result must only be called once done is closed.
func (c *Client) result() (ExitStatus, error) {
	if c.err != nil {
		return c.status, c.err
	}

	return c.status, c.status.Err()
}

// ExitStatus returns the exit status and true, if the process terminated
// already.
func (c *Client) ExitStatus() (ExitStatus, bool) {
	select {
	case <-c.done:
		return c.status, true
	default:
		return ExitStatus{}, false
	}
}

// Done returns a channel that is closed once the process terminated and all
// resources are released.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close stops event delivery, kills the process if it is still running and
// releases all resources. It is idempotent.
func (c *Client) Close() error {
	c.halt()

	if _, terminated := c.ExitStatus(); !terminated {
		c.kill()
	}

	<-c.done

	return nil
}

// halt stops the line reader and event delivery.
func (c *Client) halt() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) kill() {
	c.killOnce.Do(func() {
		if err := c.proc.Kill(); err != nil {
			c.log.Warn("Kill process", slog.Any("error", err))
		}
	})
}

// startEngine runs the engine and the final teardown once it stopped.
func (c *Client) startEngine() {
	c.group.Go(func() error {
		err := c.engine.run()

		c.setState(StateClosing)

		if err != nil {
			// The channel is unusable. Make sure the process goes away.
			c.kill()
		}

		c.finish(err)

		return nil
	})

	go func() {
		_ = c.group.Wait()

		c.setState(StateTerminated)
		close(c.done)
	}()
}

// finish closes stdin, reaps the process and records the result.
func (c *Client) finish(err error) {
	c.halt()

	if closeErr := c.stdin.Close(); closeErr != nil {
		c.log.Debug("Close stdin", slog.Any("error", closeErr))
	}

	status, waitErr := c.proc.Wait()
	if waitErr != nil {
		waitErr = fmt.Errorf("wait: %w", waitErr)
		if err == nil {
			err = waitErr
		}
	}

	c.log.Debug("Process terminated", slog.String("status", status.String()))

	c.status = status
	c.err = err
}
