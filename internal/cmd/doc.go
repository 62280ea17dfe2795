// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cmd provides a CLI command entry point for virtqmp. It handles flag
// parsing, the supervision of the QEMU process and error handling.
package cmd
