// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExitStatus is the classified termination status of the process.
type ExitStatus struct {
	// Code is the exit code. It is -1 if the process was terminated by a
	// signal.
	Code int
	// Signal is the terminating signal, if any.
	Signal syscall.Signal
}

// Success returns true if the process exited cleanly with code 0.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == 0
}

// String implements [fmt.Stringer].
func (s ExitStatus) String() string {
	if s.Signal != 0 {
		name := unix.SignalName(s.Signal)
		if name == "" {
			name = strconv.Itoa(int(s.Signal))
		}

		return "signal " + name
	}

	return "exit status " + strconv.Itoa(s.Code)
}

// Err returns an [ExitError] if the status is not successful, nil otherwise.
func (s ExitStatus) Err() error {
	if s.Success() {
		return nil
	}

	return &ExitError{Status: s}
}

// exitStatusFrom classifies the result of [exec.Cmd.Wait].
//
// The returned error is only set if the status could not be obtained at all.
func exitStatusFrom(state *os.ProcessState, waitErr error) (ExitStatus, error) {
	if state == nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return ExitStatus{Code: -1}, waitErr
		}

		state = exitErr.ProcessState
	}

	status := ExitStatus{Code: state.ExitCode()}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = ws.Signal()
	}

	return status, nil
}
