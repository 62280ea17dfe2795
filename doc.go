// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Virtqmp runs a QEMU virtual machine and controls it via the QEMU Machine
// Protocol (QMP) bound to QEMU's stdin and stdout.
//
// QEMU is started paused. Once the QMP channel is ready, the vCPU threads are
// optionally pinned to host CPUs and the machine is started. All QMP events
// are printed as JSON lines:
//
//	$ virtqmp -smp 2 -pin 2-3 /srv/vm
//	{"timestamp": {"seconds": 1767225600, "microseconds": 42}, "event": "RESUME"}
//
// Extra QEMU arguments are read from the file options.txt in the given
// directory, one option per line. On SIGINT, SIGTERM or SIGHUP, QEMU is asked
// to quit and killed if it does not exit within the shutdown timeout. The exit
// code is QEMU's exit code, or 128 plus the signal number if it was killed.
//
// With -mcp, virtqmp serves a Model Context Protocol server on stdio instead.
// The MCP client controls the machine with the tools qmp_execute and
// qmp_next_event and must start it with the "cont" command:
//
//	$ virtqmp -mcp /srv/vm
package main
