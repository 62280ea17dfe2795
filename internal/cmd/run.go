// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/aibor/virtqmp/internal/affinity"
	"github.com/aibor/virtqmp/internal/console"
	"github.com/aibor/virtqmp/internal/exitcode"
	"github.com/aibor/virtqmp/internal/mcpserver"
	"github.com/aibor/virtqmp/internal/qemu"
	"github.com/aibor/virtqmp/internal/qmp"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const localConfigFile = ".virtqmp-args"

// IO provides input and output details for the command.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// consumer uses the QMP channel once it is ready. It returns once it is done
// or the context is done.
type consumer func(ctx context.Context, client *qmp.Client) error

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

func newFlags(args []string, cfg IO) (*flags, error) {
	args, err := MergedArgs(args, os.DirFS("."), localConfigFile)
	if err != nil {
		return nil, err
	}

	flags, err := parseArgs(args, cfg.Stderr)
	if err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}

	return flags, nil
}

func newCommandSpec(flags *flags) (*qemu.CommandSpec, error) {
	extraArgs, err := ReadOptions(os.DirFS(flags.Dir), flags.OptionsFile)
	if err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}

	spec := &qemu.CommandSpec{
		Executable: flags.QemuBin,
		Machine:    flags.Machine,
		CPU:        flags.CPUType,
		SMP:        flags.NumCPU,
		Memory:     flags.Memory,
		NoKVM:      flags.NoKVM,
		Display:    flags.Display,
		ExtraArgs:  extraArgs,
	}

	err = spec.AddDefaultsFor(flags.Arch)
	if err != nil {
		return nil, fmt.Errorf("qemu defaults: %w", err)
	}

	err = validate(spec)
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	return spec, nil
}

// printEvents writes all events as JSON lines until the channel is closed.
func printEvents(output io.Writer, unblanker *console.Unblanker) consumer {
	return func(ctx context.Context, client *qmp.Client) error {
		for {
			event, err := client.NextEvent(ctx)
			if err != nil {
				if errors.Is(err, qmp.ErrChannelClosed) {
					return nil
				}

				return fmt.Errorf("next event: %w", err)
			}

			_, err = fmt.Fprintf(output, "%s\n", event.Raw)
			if err != nil {
				return fmt.Errorf("print event: %w", err)
			}

			if unblanker == nil {
				continue
			}

			err = unblanker.HandleEvent(event)
			if err != nil {
				slog.Warn("Failed to unblank console", slog.Any("error", err))
			}
		}
	}
}

// serveMCP serves the channel via MCP on the given streams until the MCP
// client disconnects.
func serveMCP(cfg IO) consumer {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(cfg.Stdin),
		Writer: nopWriteCloser{cfg.Stdout},
	}

	return func(ctx context.Context, client *qmp.Client) error {
		server := mcpserver.New(client, buildVersion(), slog.Default())

		err := server.Run(ctx, transport)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		return nil
	}
}

func newUnblanker(flags *flags, output io.Writer) *console.Unblanker {
	if !flags.NoBlank {
		return nil
	}

	file, ok := output.(*os.File)
	if !ok {
		slog.Debug("Output is not a file, console blanking unchanged")
		return nil
	}

	return console.NewUnblanker(file, slog.Default())
}

func pinVCPUs(ctx context.Context, flags *flags, client *qmp.Client) error {
	if len(flags.PinCPUs) == 0 {
		return nil
	}

	pinner := affinity.Pinner{
		HostCPUs: flags.PinCPUs,
		Logger:   slog.Default(),
	}

	assignments, err := pinner.Pin(ctx, client)
	if err != nil {
		return fmt.Errorf("pin vcpus: %w", err)
	}

	slog.Info("Pinned vCPUs", slog.Int("count", len(assignments)))

	return nil
}

func run(ctx context.Context, flags *flags, cfg IO) error {
	spec, err := newCommandSpec(flags)
	if err != nil {
		return err
	}

	args, err := spec.Arguments()
	if err != nil {
		return fmt.Errorf("qemu arguments: %w", err)
	}

	slog.Debug("QEMU command", slog.String("command", spec.String()))

	client, err := qmp.Start(ctx, spec.Executable, args, qmp.Config{
		Logger:      slog.Default(),
		EventBuffer: int(flags.EventBuffer),
		TagCommands: flags.TagCommands,
		Stderr:      cfg.Stderr,
		Dir:         flags.Dir,
	})
	if err != nil {
		return fmt.Errorf("qemu: %w", err)
	}
	defer client.Close()

	slog.Debug("QMP channel ready", slog.String("version", client.Version().String()))

	err = pinVCPUs(ctx, flags, client)
	if err != nil {
		return err
	}

	// In MCP mode the MCP client decides when the guest starts.
	if flags.MCP {
		return supervise(ctx, flags, client, serveMCP(cfg))
	}

	_, err = client.Execute(ctx, "cont", nil)
	if err != nil {
		return fmt.Errorf("start guest: %w", err)
	}

	consume := printEvents(cfg.Stdout, newUnblanker(flags, cfg.Stdout))

	return supervise(ctx, flags, client, consume)
}

// supervise runs the consumer until the process terminates, the consumer
// returns or the context is done. In the latter cases the process is asked to
// quit.
func supervise(
	ctx context.Context,
	flags *flags,
	client *qmp.Client,
	consume consumer,
) error {
	consumeCtx, cancelConsume := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelConsume()

	consumeErr := make(chan error, 1)

	go func() {
		consumeErr <- consume(consumeCtx, client)
	}()

	var (
		consumed bool
		errs     []error
	)

	select {
	case <-client.Done():
	case <-ctx.Done():
		slog.Info("Interrupted, asking QEMU to quit")
	case err := <-consumeErr:
		consumed = true

		errs = append(errs, err)
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx),
		flags.ShutdownTimeout,
	)
	defer cancel()

	status, exitErr := client.Shutdown(shutdownCtx)

	slog.Debug("QEMU terminated", slog.String("status", status.String()))

	if !consumed {
		// Events are printed until the queue is drained, while the MCP
		// server would serve forever.
		if flags.MCP {
			cancelConsume()
		}

		errs = append(errs, <-consumeErr)
	}

	var processErr *qmp.ExitError
	if errors.As(exitErr, &processErr) {
		code := exitcode.FromProcess(status.Code, status.Signal)
		exitErr = fmt.Errorf("%w: %w", code, exitErr)
	}

	errs = append(errs, exitErr)

	return errors.Join(errs...)
}

func handleParseArgsError(err error) int {
	// [ErrHelp] is returned when help is requested. So exit without error
	// in this case.
	if errors.Is(err, ErrHelp) {
		return 0
	}

	// ParseArgs already prints errors, so we just exit without an error.
	if !errors.Is(err, &ParseArgsError{}) {
		slog.Error(err.Error())
	}

	return -1
}

func handleRunError(err error) int {
	exitCode, isExitErr := exitcode.From(err)

	switch {
	case err == nil:
	case isExitErr:
		// A failing QEMU usually printed its reason on stderr already.
		slog.Warn(err.Error())
	default:
		slog.Error(err.Error())
	}

	return exitCode
}

func buildVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok || buildInfo.Main.Version == "" {
		return "dev"
	}

	return buildInfo.Main.Version
}

func printVersion(output io.Writer) error {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return ErrReadBuildInfo
	}

	fmt.Fprintf(output, "Version: %s\n", buildInfo.Main.Version)

	return nil
}

// Run is the main entry point for the CLI command.
func Run(ctx context.Context, args []string, cfg IO) int {
	setupLogging(cfg.Stderr, slog.LevelWarn)

	flags, err := newFlags(args, cfg)
	if err != nil {
		return handleParseArgsError(err)
	}

	setupLogging(cfg.Stderr, flags.logLevel())

	if flags.Version {
		err := printVersion(cfg.Stdout)
		if err != nil {
			slog.Error(err.Error())
			return -1
		}

		return 0
	}

	err = run(ctx, flags, cfg)

	return handleRunError(err)
}
