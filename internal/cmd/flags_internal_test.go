// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aibor/virtqmp/internal/affinity"
	"github.com/aibor/virtqmp/internal/qemu"
	"github.com/aibor/virtqmp/internal/qmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultFlags() *flags {
	return &flags{
		Arch:            qemu.Native,
		CPUType:         "max",
		Memory:          256,
		NumCPU:          1,
		Display:         "none",
		Dir:             ".",
		OptionsFile:     "options.txt",
		EventBuffer:     64,
		ShutdownTimeout: 10 * time.Second,
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name          string
		args          []string
		expectedFlags func(*flags)
		expectedErr   error
	}{
		{
			name:        "help",
			args:        []string{"-help"},
			expectedErr: ErrHelp,
		},
		{
			name:          "defaults",
			expectedFlags: func(*flags) {},
		},
		{
			name: "version ignores positional args",
			args: []string{"-version", "dir1", "dir2"},
			expectedFlags: func(f *flags) {
				f.Version = true
			},
		},
		{
			name: "dir",
			args: []string{"/srv/vm"},
			expectedFlags: func(f *flags) {
				f.Dir = "/srv/vm"
			},
		},
		{
			name:        "too many dirs",
			args:        []string{"/srv/vm", "/srv/other"},
			expectedErr: &ParseArgsError{},
		},
		{
			name:        "negative shutdown timeout",
			args:        []string{"-shutdownTimeout", "-1s"},
			expectedErr: &ParseArgsError{},
		},
		{
			name:        "invalid pin list",
			args:        []string{"-pin", "3-1"},
			expectedErr: &ParseArgsError{},
		},
		{
			name:        "unsupported arch",
			args:        []string{"-arch", "mips"},
			expectedErr: &ParseArgsError{},
		},
		{
			name: "memory with unit",
			args: []string{"-memory", "4G"},
			expectedFlags: func(f *flags) {
				f.Memory = 4096
			},
		},
		{
			name:        "memory with unknown unit",
			args:        []string{"-memory", "4K"},
			expectedErr: &ParseArgsError{},
		},
		{
			name:        "event buffer zero",
			args:        []string{"-eventBuffer", "0"},
			expectedErr: &ParseArgsError{},
		},
		{
			name: "all flags",
			args: []string{
				"-arch", "riscv64",
				"-qemuBin", "/usr/local/bin/qemu-system-x86_64",
				"-machine=q35",
				"-cpu", "host",
				"-smp", "4",
				"-memory=2048",
				"-nokvm",
				"-display=gtk",
				"-options", "vm.txt",
				"-pin", "2-3,6",
				"-noBlank",
				"-eventBuffer", "128",
				"-tagCommands",
				"-mcp",
				"-shutdownTimeout", "30s",
				"-debug",
				"-trace",
				"/srv/vm",
			},
			expectedFlags: func(f *flags) {
				f.Arch = qemu.RISCV64
				f.QemuBin = "/usr/local/bin/qemu-system-x86_64"
				f.Machine = "q35"
				f.CPUType = "host"
				f.NumCPU = 4
				f.Memory = 2048
				f.NoKVM = true
				f.Display = "gtk"
				f.OptionsFile = "vm.txt"
				f.PinCPUs = affinity.CPUList{2, 3, 6}
				f.NoBlank = true
				f.EventBuffer = 128
				f.TagCommands = true
				f.MCP = true
				f.ShutdownTimeout = 30 * time.Second
				f.Debug = true
				f.Trace = true
				f.Dir = "/srv/vm"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, err := parseArgs(tt.args, io.Discard)
			require.ErrorIs(t, err, tt.expectedErr)

			if tt.expectedErr != nil {
				return
			}

			expected := defaultFlags()
			tt.expectedFlags(expected)

			assert.Equal(t, expected, flags)
		})
	}
}

func TestFlags_LogLevel(t *testing.T) {
	tests := []struct {
		name     string
		flags    flags
		expected slog.Level
	}{
		{
			name:     "default",
			expected: slog.LevelWarn,
		},
		{
			name:     "debug",
			flags:    flags{Debug: true},
			expected: slog.LevelDebug,
		},
		{
			name:     "trace",
			flags:    flags{Debug: true, Trace: true},
			expected: qmp.LevelTrace,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.flags.logLevel())
		})
	}
}
