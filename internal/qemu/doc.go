// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qemu composes the command line for a QEMU system emulator that is
// controlled via QMP on its standard streams. It expects the required QEMU
// binary to be present on the system.
//
// The machine is started paused ("-S") with all default devices disabled.
// Anything else is supplied by the user, usually via an options file.
package qemu
