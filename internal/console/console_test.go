// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package console_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aibor/virtqmp/internal/console"
	"github.com/aibor/virtqmp/internal/qmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnblanker_NotATerminal(t *testing.T) {
	file, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = file.Close() })

	assert.False(t, console.IsTerminal(file.Fd()))

	unblanker := console.NewUnblanker(file, nil)
	assert.False(t, unblanker.Enabled())

	require.NoError(t, unblanker.HandleEvent(qmp.Event{Name: "RESUME"}))

	content, err := os.ReadFile(file.Name())
	require.NoError(t, err)
	assert.Empty(t, content)
}
