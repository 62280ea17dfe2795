// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"slices"
	"strings"
)

// uniqueOptions are QEMU options that take effect only once. Passing them
// multiple times silently overrides earlier occurrences, so it is treated as
// collision.
var uniqueOptions = []string{
	"M",
	"S",
	"append",
	"bios",
	"boot",
	"cpu",
	"display",
	"enable-kvm",
	"initrd",
	"kernel",
	"m",
	"machine",
	"name",
	"nodefaults",
	"no-reboot",
	"no-shutdown",
	"no-user-config",
	"smp",
	"uuid",
}

// ParseArguments converts a list of command line tokens into [Argument]s.
//
// Each option is introduced by a token starting with "-" or "--". If the next
// token does not start with "-", it is the option's value. Well known QEMU
// options that must not be given more than once are marked unique.
func ParseArguments(tokens []string) ([]Argument, error) {
	args := make([]Argument, 0, len(tokens))

	for idx := 0; idx < len(tokens); idx++ {
		token := tokens[idx]
		if !strings.HasPrefix(token, "-") {
			return nil, &ArgumentError{"value without option: " + token}
		}

		name := strings.TrimLeft(token, "-")
		if name == "" {
			return nil, &ArgumentError{"empty option name: " + token}
		}

		var value string

		if next := idx + 1; next < len(tokens) && !strings.HasPrefix(tokens[next], "-") {
			value = tokens[next]
			idx = next
		}

		if slices.Contains(uniqueOptions, name) {
			args = append(args, UniqueArg(name, value))
		} else {
			args = append(args, RepeatableArg(name, value))
		}
	}

	return args, nil
}
