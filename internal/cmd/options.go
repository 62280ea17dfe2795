// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/aibor/virtqmp/internal/qemu"
)

// ReadOptions reads extra QEMU arguments from the given options file.
//
// Each line holds a single argument. For convenience, a line starting with
// "-" may also hold the option's value separated by whitespace, like
// "-device virtio-rng-pci". A missing file results in no extra arguments.
func ReadOptions(fsys fs.FS, file string) ([]qemu.Argument, error) {
	lines, err := readLines(fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	tokens := make([]string, 0, len(lines))

	for _, line := range lines {
		option, value, found := strings.Cut(line, " ")
		if !found || !strings.HasPrefix(line, "-") {
			tokens = append(tokens, line)
			continue
		}

		tokens = append(tokens, option, strings.TrimSpace(value))
	}

	args, err := qemu.ParseArguments(tokens)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	return args, nil
}
