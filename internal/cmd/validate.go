// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/aibor/virtqmp/internal/qemu"
)

// validate checks the given [qemu.CommandSpec] for known incompatibilities
// and the presence of the QEMU binary.
//
// The executable is replaced by its absolute path, as QEMU runs in the
// options directory.
func validate(spec *qemu.CommandSpec) error {
	err := spec.Validate()
	if err != nil {
		return fmt.Errorf("qemu command: %w", err)
	}

	// Check binary is actually present.
	path, err := exec.LookPath(spec.Executable)
	if err != nil {
		return fmt.Errorf("qemu binary: %w", err)
	}

	spec.Executable, err = filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("qemu binary: %w", err)
	}

	return nil
}
