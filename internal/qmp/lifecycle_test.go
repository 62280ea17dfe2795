// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aibor/virtqmp/internal/qmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart(t *testing.T) {
	tests := []struct {
		name         string
		mode         string
		expectedCode int
		assertErr    require.ErrorAssertionFunc
	}{
		{
			name:         "clean exit",
			mode:         "0",
			expectedCode: 0,
			assertErr:    require.NoError,
		},
		{
			name:         "failure exit",
			mode:         "3",
			expectedCode: 3,
			assertErr: func(t require.TestingT, err error, _ ...any) {
				require.ErrorIs(t, err, &qmp.ExitError{})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(peerModeEnv, tt.mode)

			var logs bytes.Buffer

			cfg := qmp.Config{
				Logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{
					Level: qmp.LevelTrace,
				})),
			}

			client, err := qmp.Start(testContext(t), os.Args[0], nil, cfg)
			require.NoError(t, err)

			t.Cleanup(func() {
				_ = client.Close()
			})

			assert.Equal(t, qmp.Version{Major: 8, Minor: 2}, client.Version())

			_, err = client.Execute(testContext(t), "cont", nil)
			require.NoError(t, err)

			status, err := client.Shutdown(testContext(t))
			tt.assertErr(t, err)

			assert.Equal(t, tt.expectedCode, status.Code)

			event, err := client.NextEvent(testContext(t))
			require.NoError(t, err)
			assert.Equal(t, "SHUTDOWN", event.Name)

			assert.Contains(t, logs.String(), `msg=Send line="{\"execute\":\"cont\"}"`, "wire traffic logged")
		})
	}
}

func TestStart_SpawnError(t *testing.T) {
	executable := filepath.Join(t.TempDir(), "qemu-system-x86_64")

	_, err := qmp.Start(testContext(t), executable, nil, qmp.Config{})
	require.ErrorIs(t, err, &qmp.SpawnError{})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestStart_NoGreeting(t *testing.T) {
	t.Setenv(peerModeEnv, "silent")

	_, err := qmp.Start(testContext(t), os.Args[0], nil, qmp.Config{})
	require.ErrorIs(t, err, &qmp.HandshakeError{})
	require.ErrorIs(t, err, qmp.ErrChannelClosed)
}

func TestStart_InvalidDir(t *testing.T) {
	cfg := qmp.Config{
		Dir: filepath.Join(t.TempDir(), "missing"),
	}

	_, err := qmp.Start(testContext(t), os.Args[0], nil, cfg)
	require.ErrorIs(t, err, &qmp.SpawnError{})
	require.ErrorIs(t, err, os.ErrNotExist)
}
