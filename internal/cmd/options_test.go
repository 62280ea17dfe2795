// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd_test

import (
	"testing"
	"testing/fstest"

	"github.com/aibor/virtqmp/internal/cmd"
	"github.com/aibor/virtqmp/internal/qemu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOptions(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		env         map[string]string
		expected    []qemu.Argument
		expectedErr error
	}{
		{
			name:     "empty",
			expected: []qemu.Argument{},
		},
		{
			name: "options with and without value",
			content: "# entropy for the guest\n" +
				"-device virtio-rng-pci\n" +
				"\n" +
				"-no-reboot\n" +
				"-device   virtio-balloon  \n",
			expected: []qemu.Argument{
				qemu.RepeatableArg("device", "virtio-rng-pci"),
				qemu.UniqueArg("no-reboot"),
				qemu.RepeatableArg("device", "virtio-balloon"),
			},
		},
		{
			name:    "env vars",
			content: "-drive file=${IMAGE_DIR}/disk.img,if=virtio\n",
			env:     map[string]string{"IMAGE_DIR": "/var/lib/images"},
			expected: []qemu.Argument{
				qemu.RepeatableArg("drive", "file=/var/lib/images/disk.img,if=virtio"),
			},
		},
		{
			name:    "one argument per line",
			content: "-append\nconsole=ttyS0 quiet\n-machine\nq35\n",
			expected: []qemu.Argument{
				qemu.RepeatableArg("append", "console=ttyS0 quiet"),
				qemu.UniqueArg("machine", "q35"),
			},
		},
		{
			name:        "value without option",
			content:     "virtio-rng-pci\n",
			expectedErr: &qemu.ArgumentError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			testFS := fstest.MapFS{
				"options.txt": &fstest.MapFile{
					Data: []byte(tt.content),
				},
			}

			args, err := cmd.ReadOptions(testFS, "options.txt")
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, tt.expected, args)
		})
	}
}

func TestReadOptions_Missing(t *testing.T) {
	args, err := cmd.ReadOptions(fstest.MapFS{}, "options.txt")
	require.NoError(t, err)
	assert.Nil(t, args)
}
