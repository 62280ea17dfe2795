// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// maxLineSize limits the size of a single inbound line. Some replies, like
// the one for "query-qmp-schema", are rather large.
const maxLineSize = 1024 * 1024

// Process is the controlled process.
type Process interface {
	// Wait blocks until the process exited and returns its classified exit
	// status. It is called exactly once.
	Wait() (ExitStatus, error)

	// Kill terminates the process immediately.
	Kill() error
}

type execProcess struct {
	cmd *exec.Cmd
}

var _ Process = (*execProcess)(nil)

// Wait implements [Process].
func (p *execProcess) Wait() (ExitStatus, error) {
	err := p.cmd.Wait()

	return exitStatusFrom(p.cmd.ProcessState, err)
}

// Kill implements [Process].
func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err //nolint:wrapcheck
	}

	return nil
}

// Spawn starts the given executable with piped stdin and stdout.
//
// The process is put into its own process group, so terminal signals are
// not delivered to it directly. Stderr of the process is written to the
// given writer, or discarded if nil. If dir is not empty, the process runs in
// that working directory. An error is always a [SpawnError].
func Spawn(
	executable string,
	args []string,
	dir string,
	stderr io.Writer,
) (Process, io.WriteCloser, io.Reader, error) {
	cmd := exec.Command(executable, args...)
	cmd.Dir = dir
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, &SpawnError{Executable: executable, Err: err}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, &SpawnError{Executable: executable, Err: err}
	}

	err = cmd.Start()
	if err != nil {
		return nil, nil, nil, &SpawnError{Executable: executable, Err: err}
	}

	return &execProcess{cmd: cmd}, stdin, stdout, nil
}

// lineReader reads lines from the process' stdout and hands them over one by
// one.
//
// The lines channel is closed on end of stream. A read error is available
// via err once the channel is closed.
type lineReader struct {
	scanner *bufio.Scanner
	lines   chan []byte
	stop    <-chan struct{}
	err     error
}

func newLineReader(src io.Reader, stop <-chan struct{}) *lineReader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	return &lineReader{
		scanner: scanner,
		lines:   make(chan []byte),
		stop:    stop,
	}
}

// run reads until end of stream, a read error or until stop is closed.
func (r *lineReader) run() error {
	defer close(r.lines)

	for r.scanner.Scan() {
		// Skip empty lines. They carry no message.
		if len(bytes.TrimSpace(r.scanner.Bytes())) == 0 {
			continue
		}

		select {
		case r.lines <- bytes.Clone(r.scanner.Bytes()):
		case <-r.stop:
			return nil
		}
	}

	r.err = r.scanner.Err()

	return nil
}
