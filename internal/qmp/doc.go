// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qmp implements a client for the QEMU Machine Protocol over the
// standard streams of a supervised process.
//
// The process writes line delimited JSON objects to its stdout and reads
// commands from its stdin. After the greeting and capability negotiation,
// commands are sent one at a time. Asynchronous events are queued and
// consumed with [Client.NextEvent]. Once the process closes its stdout, the
// channel is closed and the exit status is available via [Client.Wait].
package qmp
