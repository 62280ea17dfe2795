// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/aibor/virtqmp/internal/qmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGreeting = `{"QMP": {"version": {"qemu": {"micro": 0, "minor": 2, "major": 8}, ` +
		`"package": "v8.2.0"}, "capabilities": ["oob"]}}`
	emptyReturn = `{"return": {}}`
)

var errPeerGone = errors.New("peer gone")

type peerCommand struct {
	Execute   string          `json:"execute"`
	Arguments json.RawMessage `json:"arguments"`
	ID        json.RawMessage `json:"id"`
}

// fakePeer plays the process side of the channel. It implements
// [qmp.Process].
type fakePeer struct {
	t *testing.T

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	scanner *bufio.Scanner

	exitOnce sync.Once
	exited   chan struct{}
	status   qmp.ExitStatus
	killed   bool

	scripts sync.WaitGroup
}

var _ qmp.Process = (*fakePeer)(nil)

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()

	peer := &fakePeer{
		t:      t,
		exited: make(chan struct{}),
	}

	peer.stdinR, peer.stdinW = io.Pipe()
	peer.stdoutR, peer.stdoutW = io.Pipe()
	peer.scanner = bufio.NewScanner(peer.stdinR)

	t.Cleanup(func() {
		peer.exit(qmp.ExitStatus{})
		peer.scripts.Wait()
	})

	return peer
}

// Wait implements [qmp.Process].
func (p *fakePeer) Wait() (qmp.ExitStatus, error) {
	<-p.exited
	return p.status, nil
}

// Kill implements [qmp.Process].
func (p *fakePeer) Kill() error {
	p.exitOnce.Do(func() {
		p.killed = true
		p.status = qmp.ExitStatus{Code: -1, Signal: syscall.SIGKILL}
		p.close()
	})

	return nil
}

func (p *fakePeer) exit(status qmp.ExitStatus) {
	p.exitOnce.Do(func() {
		p.status = status
		p.close()
	})
}

func (p *fakePeer) close() {
	_ = p.stdoutW.Close()
	_ = p.stdinR.CloseWithError(errPeerGone)

	close(p.exited)
}

// script runs the given peer behavior concurrently. The test waits for it
// on cleanup.
func (p *fakePeer) script(fn func()) {
	p.scripts.Add(1)

	go func() {
		defer p.scripts.Done()
		fn()
	}()
}

func (p *fakePeer) send(lines ...string) {
	for _, line := range lines {
		_, err := io.WriteString(p.stdoutW, line+"\n")
		assert.NoError(p.t, err, "send")
	}
}

func (p *fakePeer) recv() peerCommand {
	var cmd peerCommand

	if !p.scanner.Scan() {
		assert.Fail(p.t, "receive command", "scanner: %v", p.scanner.Err())
		return cmd
	}

	err := json.Unmarshal(p.scanner.Bytes(), &cmd)
	assert.NoError(p.t, err, "unmarshal command %q", p.scanner.Text())

	return cmd
}

// handshake greets and accepts capability negotiation.
func (p *fakePeer) handshake() {
	p.send(testGreeting)

	cmd := p.recv()
	assert.Equal(p.t, "qmp_capabilities", cmd.Execute)

	p.send(emptyReturn)
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func connect(t *testing.T, cfg qmp.Config) (*qmp.Client, *fakePeer) {
	t.Helper()

	peer := newFakePeer(t)
	peer.script(peer.handshake)

	client, err := qmp.Connect(testContext(t), peer, peer.stdinW, peer.stdoutR, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client, peer
}
