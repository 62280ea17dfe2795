// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package console

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aibor/virtqmp/internal/qmp"
	"golang.org/x/sys/unix"
)

// UnblankSequence disables screen blanking and power down of the Linux
// virtual console, like "setterm -blank 0 -powerdown 0".
const UnblankSequence = "\x1b[9;0]\x1b[14;0]"

// resumeEvent is emitted once the guest's CPUs run.
const resumeEvent = "RESUME"

// IsTerminal returns true if the given file descriptor refers to a terminal.
func IsTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}

// Unblanker keeps the host console from blanking while the guest runs.
//
// A passed through display would otherwise go dark after the console's
// blank timeout, as there is no local input.
type Unblanker struct {
	output  io.Writer
	enabled bool
	log     *slog.Logger
}

// NewUnblanker returns a new [Unblanker] writing to the given file. It is
// only enabled if the file is a terminal.
func NewUnblanker(file *os.File, logger *slog.Logger) *Unblanker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Unblanker{
		output:  file,
		enabled: IsTerminal(file.Fd()),
		log:     logger,
	}
}

// Enabled returns if the sequence is written at all.
func (u *Unblanker) Enabled() bool {
	return u.enabled
}

// HandleEvent writes the [UnblankSequence] on every "RESUME" event.
func (u *Unblanker) HandleEvent(event qmp.Event) error {
	if !u.enabled || event.Name != resumeEvent {
		return nil
	}

	u.log.Debug("Disable console blanking")

	if _, err := io.WriteString(u.output, UnblankSequence); err != nil {
		return fmt.Errorf("write unblank sequence: %w", err)
	}

	return nil
}
