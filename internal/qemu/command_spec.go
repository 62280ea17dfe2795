// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"strconv"
	"strings"
)

const (
	machineTypeVirt = "virt"

	// qmpChannel is the character device backend the QMP channel is bound
	// to. It can be used only once.
	qmpChannel = "stdio"
)

// CommandSpec defines the parameters for a QEMU process controlled via QMP
// on stdio.
type CommandSpec struct {
	// Path to the qemu-system binary.
	Executable string

	// QEMU machine type to use. Depends on the QEMU binary used.
	Machine string

	// CPU type to use. Depends on machine type and QEMU binary used.
	CPU string

	// Number of CPUs for the guest.
	SMP uint64

	// Memory for the machine in MB.
	Memory uint64

	// Disable KVM support.
	NoKVM bool

	// Display type. No display argument is added if empty.
	Display string

	// ExtraArgs are extra arguments that are passed to the QEMU command,
	// usually read from an options file. They must not interfere with the
	// arguments set by the [CommandSpec] itself or an error is returned on
	// [CommandSpec.Arguments].
	ExtraArgs Arguments
}

// AddDefaultsFor adds architecture specific default values to the given spec
// if the fields are not set yet.
//
// Defaults are not applied if the [CommandSpec.ExtraArgs] already cover
// them.
func (s *CommandSpec) AddDefaultsFor(arch Arch) error {
	var (
		executable string
		machine    string
	)

	switch arch {
	case AMD64:
		executable = "qemu-system-x86_64"
	case ARM64:
		executable = "qemu-system-aarch64"
		machine = machineTypeVirt
	case RISCV64:
		executable = "qemu-system-riscv64"
		machine = machineTypeVirt
	default:
		return ErrArchNotSupported
	}

	if s.Executable == "" {
		s.Executable = executable
	}

	if s.Machine == "" && !s.ExtraArgs.Contains("machine", "M") {
		s.Machine = machine
	}

	if !s.NoKVM {
		s.NoKVM = !arch.KVMAvailable() || s.ExtraArgs.Contains("enable-kvm", "accel")
	}

	return nil
}

// Validate checks for known incompatibilities.
func (s *CommandSpec) Validate() error {
	if s.Executable == "" {
		return &ArgumentError{"no executable"}
	}

	for _, arg := range s.ExtraArgs {
		switch {
		case arg.name == "daemonize":
			return &ArgumentError{"-daemonize detaches from the QMP channel"}
		case arg.UsesBackend(qmpChannel):
			return &ArgumentError{
				arg.String() + ": " + qmpChannel + " is reserved for QMP",
			}
		}
	}

	return nil
}

// Arguments compiles the complete argument list for the QEMU command.
//
// It returns an error if any arguments collide.
func (s *CommandSpec) Arguments() ([]string, error) {
	return s.arguments().Strings()
}

// String returns the full command line for diagnostics.
func (s *CommandSpec) String() string {
	args := make([]string, 0, len(s.ExtraArgs)+1)
	args = append(args, s.Executable)

	for _, arg := range s.arguments() {
		args = append(args, arg.String())
	}

	return strings.Join(args, " ")
}

// arguments compiles the argument list for the QEMU command.
func (s *CommandSpec) arguments() Arguments {
	args := Arguments{
		// Disable all default devices.
		UniqueArg("nodefaults"),
		// Bind the QMP channel to stdin and stdout.
		RepeatableArg("qmp", qmpChannel),
		// Do not start the CPUs until "cont" is sent.
		UniqueArg("S"),
	}

	if s.Machine != "" {
		args = append(args, UniqueArg("machine", s.Machine))
	}

	if s.CPU != "" {
		args = append(args, UniqueArg("cpu", s.CPU))
	}

	if s.SMP != 0 {
		args = append(args, UniqueArg("smp", strconv.FormatUint(s.SMP, 10)))
	}

	if s.Memory != 0 {
		args = append(args, UniqueArg("m", strconv.FormatUint(s.Memory, 10)))
	}

	if !s.NoKVM {
		args = append(args, UniqueArg("enable-kvm"))
	}

	if s.Display != "" {
		args = append(args, UniqueArg("display", s.Display))
	}

	return append(args, s.ExtraArgs...)
}
