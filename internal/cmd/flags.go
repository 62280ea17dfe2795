// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aibor/virtqmp/internal/affinity"
	"github.com/aibor/virtqmp/internal/qemu"
	"github.com/aibor/virtqmp/internal/qmp"
)

const (
	name = "virtqmp"

	cpuDefault     = "max"
	displayDefault = "none"

	memDefault = 256
	memMin     = 128
	memMax     = 65536

	smpDefault = 1
	smpMin     = 1
	smpMax     = 256

	eventBufferMin = 1
	eventBufferMax = 65536

	optionsFileDefault     = "options.txt"
	shutdownTimeoutDefault = 10 * time.Second

	usageMessage = `Usage of 'virtqmp':
    virtqmp [flags...] [dir]

Starts a paused QEMU virtual machine controlled via QMP on stdio, starts its
CPUs and prints all QMP events as JSON lines on stdout. On SIGINT or SIGTERM
the machine is asked to quit.

Extra QEMU arguments are read from the options file in dir (default "."),
one option per line:
	-device virtio-rng-pci
	-drive file=${HOME}/disk.img,if=virtio

All virtqmp flags can also be provided via environment variable VIRTQMP_ARGS:
	VIRTQMP_ARGS="-nokvm -debug" virtqmp

All virtqmp flags can also be provided via file ./.virtqmp-args, with one
argument per line.
`
)

type flags struct {
	Arch    qemu.Arch
	QemuBin string
	Machine string
	CPUType string
	NumCPU  uint64
	Memory  uint64
	NoKVM   bool
	Display string

	Dir         string
	OptionsFile string

	PinCPUs     affinity.CPUList
	NoBlank     bool
	EventBuffer uint64
	TagCommands bool
	MCP         bool

	ShutdownTimeout time.Duration

	Debug   bool
	Trace   bool
	Version bool
}

func (f *flags) logLevel() slog.Level {
	switch {
	case f.Trace:
		return qmp.LevelTrace
	case f.Debug:
		return slog.LevelDebug
	default:
		return slog.LevelWarn
	}
}

func parseArgs(args []string, output io.Writer) (*flags, error) {
	flags := &flags{
		Arch:            qemu.Native,
		CPUType:         cpuDefault,
		Memory:          memDefault,
		NumCPU:          smpDefault,
		Display:         displayDefault,
		Dir:             ".",
		OptionsFile:     optionsFileDefault,
		EventBuffer:     qmp.DefaultEventBuffer,
		ShutdownTimeout: shutdownTimeoutDefault,
	}

	flagSet := newFlagSet(flags, output)

	err := flagSet.Parse(args)
	if err != nil {
		return nil, &ParseArgsError{msg: "flag parse", err: err}
	}

	// With version flag, the remaining arguments do not matter.
	if flags.Version {
		return flags, nil
	}

	positionalArgs := flagSet.Args()

	switch len(positionalArgs) {
	case 0:
	case 1:
		flags.Dir = positionalArgs[0]
	default:
		return nil, fail(flagSet, "too many positional arguments", nil)
	}

	if flags.ShutdownTimeout <= 0 {
		return nil, fail(flagSet, "shutdown timeout must be positive", nil)
	}

	return flags, nil
}

func newFlagSet(flags *flags, output io.Writer) *flag.FlagSet {
	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(flagSet.Output(), usageMessage)
		fmt.Fprintln(flagSet.Output(), "\nFlags:")
		flagSet.PrintDefaults()
	}

	flagSet.Var(
		&flags.Arch,
		"arch",
		"guest architecture: amd64, arm64, riscv64 (default is host arch). "+
			"KVM is only used for the host arch",
	)

	flagSet.StringVar(
		&flags.QemuBin,
		"qemuBin",
		flags.QemuBin,
		"QEMU binary to use (default depends on host arch: qemu-system-*)",
	)

	flagSet.StringVar(
		&flags.Machine,
		"machine",
		flags.Machine,
		"QEMU machine type to use (default depends on host arch)",
	)

	flagSet.StringVar(
		&flags.CPUType,
		"cpu",
		flags.CPUType,
		"QEMU CPU type to use",
	)

	flagSet.BoolVar(
		&flags.NoKVM,
		"nokvm",
		flags.NoKVM,
		"disable hardware support (default is enabled if present)",
	)

	flagSet.StringVar(
		&flags.Display,
		"display",
		flags.Display,
		"QEMU display type, empty for QEMU's default",
	)

	flagSet.Var(
		&LimitedUintValue{
			Value: &flags.Memory,
			Lower: memMin,
			Upper: memMax,
			Units: memoryUnits,
		},
		"memory",
		"memory (in MB) for the QEMU VM, suffix G or T for larger units",
	)

	flagSet.Var(
		&LimitedUintValue{
			Value: &flags.NumCPU,
			Lower: smpMin,
			Upper: smpMax,
		},
		"smp",
		"number of CPUs for the QEMU VM",
	)

	flagSet.StringVar(
		&flags.OptionsFile,
		"options",
		flags.OptionsFile,
		"file in dir with extra QEMU arguments, one per line",
	)

	flagSet.Var(
		&flags.PinCPUs,
		"pin",
		"host CPUs to pin the vCPU threads to, like 2-3,6. "+
			"vCPUs are assigned round robin",
	)

	flagSet.BoolVar(
		&flags.NoBlank,
		"noBlank",
		flags.NoBlank,
		"disable console blanking once the guest runs (only on a terminal)",
	)

	flagSet.Var(
		&LimitedUintValue{
			Value: &flags.EventBuffer,
			Lower: eventBufferMin,
			Upper: eventBufferMax,
		},
		"eventBuffer",
		"number of QMP events to queue before reading from QEMU blocks",
	)

	flagSet.BoolVar(
		&flags.TagCommands,
		"tagCommands",
		flags.TagCommands,
		"add unique ids to all QMP commands and verify reply ids",
	)

	flagSet.BoolVar(
		&flags.MCP,
		"mcp",
		flags.MCP,
		"serve the QMP channel as MCP server on stdio instead of "+
			"starting the guest and printing events",
	)

	flagSet.DurationVar(
		&flags.ShutdownTimeout,
		"shutdownTimeout",
		flags.ShutdownTimeout,
		"time QEMU has to quit before it is killed",
	)

	flagSet.BoolVar(
		&flags.Debug,
		"debug",
		flags.Debug,
		"enable debug output",
	)

	flagSet.BoolVar(
		&flags.Trace,
		"trace",
		flags.Trace,
		"enable debug output including all QMP traffic",
	)

	flagSet.BoolVar(
		&flags.Version,
		"version",
		flags.Version,
		"show version and exit",
	)

	return flagSet
}

// fail fails like flag does. It prints the error first and then usage.
func fail(flagSet *flag.FlagSet, msg string, err error) error {
	err = &ParseArgsError{msg: msg, err: err}
	fmt.Fprintln(flagSet.Output(), err.Error())

	flagSet.Usage()

	return err
}
