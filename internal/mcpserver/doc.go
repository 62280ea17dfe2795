// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mcpserver serves a QMP channel as Model Context Protocol server, so
// an MCP client can drive the virtual machine with tool calls.
package mcpserver
