// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"slices"
	"strings"
)

// Argument is a single QEMU command line option with an optional value.
//
// Most options take effect only once, so a second occurrence collides with
// the first one. Repeatable options, like "-device", collide only if the
// value is the same as well.
type Argument struct {
	name       string
	value      string
	repeatable bool
}

// UniqueArg returns an [Argument] that may be given only once. Multiple
// values are joined with ",", like QEMU's option lists.
func UniqueArg(name string, value ...string) Argument {
	return Argument{
		name:  name,
		value: strings.Join(value, ","),
	}
}

// RepeatableArg returns an [Argument] that may be given multiple times with
// different values.
func RepeatableArg(name string, value ...string) Argument {
	arg := UniqueArg(name, value...)
	arg.repeatable = true

	return arg
}

// String returns the argument as it would be typed on a shell.
func (a Argument) String() string {
	if a.value == "" {
		return "-" + a.name
	}

	return "-" + a.name + " " + a.value
}

// Name returns the option name without leading dash.
func (a Argument) Name() string {
	return a.name
}

// Value returns the option value, empty if it has none.
func (a Argument) Value() string {
	return a.value
}

// Repeatable returns true if the option may be given multiple times.
func (a Argument) Repeatable() bool {
	return a.repeatable
}

// Collides returns true if both arguments must not be used together.
//
// Arguments with different names never collide. If both are repeatable,
// they only collide if their values are equal as well.
func (a Argument) Collides(other Argument) bool {
	switch {
	case a.name != other.name:
		return false
	case a.repeatable && other.repeatable:
		return a.value == other.value
	default:
		return true
	}
}

// UsesBackend returns true if the value selects the given character device
// backend, like "stdio" in "stdio,id=char0" or in "mon:stdio".
func (a Argument) UsesBackend(backend string) bool {
	for part := range strings.SplitSeq(a.value, ",") {
		if part == backend || strings.HasSuffix(part, ":"+backend) {
			return true
		}
	}

	return false
}

// Arguments is an ordered list of QEMU command line options.
type Arguments []Argument

// Contains returns true if any argument has one of the given names.
func (l Arguments) Contains(names ...string) bool {
	return slices.ContainsFunc(l, func(arg Argument) bool {
		return slices.Contains(names, arg.name)
	})
}

// Strings compiles the list into the form used by [exec.Command].
//
// It fails with [ErrArgumentCollision] on the first argument colliding with
// an earlier one.
func (l Arguments) Strings() ([]string, error) {
	argv := make([]string, 0, 2*len(l))

	for idx, arg := range l {
		if earlier := slices.IndexFunc(l[:idx], arg.Collides); earlier != -1 {
			return nil, fmt.Errorf("%w: %s, %s", ErrArgumentCollision, arg, l[earlier])
		}

		argv = append(argv, "-"+arg.name)

		if arg.value != "" {
			argv = append(argv, arg.value)
		}
	}

	return argv, nil
}
