// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package affinity_test

import (
	"context"
	"testing"

	"github.com/aibor/virtqmp/internal/affinity"
	"github.com/aibor/virtqmp/internal/qmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type executorFunc func(ctx context.Context, name string, args any) (qmp.Message, error)

func (f executorFunc) Execute(ctx context.Context, name string, args any) (qmp.Message, error) {
	return f(ctx, name, args)
}

func staticExecutor(t *testing.T, result string, err error) affinity.Executor {
	t.Helper()

	return executorFunc(func(_ context.Context, name string, _ any) (qmp.Message, error) {
		assert.Equal(t, "query-cpus-fast", name)
		return qmp.Message(result), err
	})
}

const queryCPUsFastResult = `[
	{"cpu-index": 0, "thread-id": 1001, "qom-path": "/machine/unattached/device[0]", "target": "x86_64"},
	{"cpu-index": 1, "thread-id": 1002, "qom-path": "/machine/unattached/device[1]", "target": "x86_64"},
	{"cpu-index": 2, "thread-id": 1003, "qom-path": "/machine/unattached/device[2]", "target": "x86_64"}
]`

func TestQueryVCPUs(t *testing.T) {
	vcpus, err := affinity.QueryVCPUs(t.Context(), staticExecutor(t, queryCPUsFastResult, nil))
	require.NoError(t, err)

	require.Len(t, vcpus, 3)
	assert.Equal(t, affinity.VCPU{
		Index:    1,
		ThreadID: 1002,
		QOMPath:  "/machine/unattached/device[1]",
	}, vcpus[1])
}

func TestQueryVCPUs_Error(t *testing.T) {
	cmdErr := &qmp.CommandError{Class: "CommandNotFound", Desc: "nope"}

	_, err := affinity.QueryVCPUs(t.Context(), staticExecutor(t, "", cmdErr))
	require.ErrorIs(t, err, &qmp.CommandError{})

	_, err = affinity.QueryVCPUs(t.Context(), staticExecutor(t, `{"foo": 1}`, nil))
	require.Error(t, err)
}

func TestPinner_Pin(t *testing.T) {
	pinned := map[int]int{}

	pinner := affinity.Pinner{
		HostCPUs: affinity.CPUList{4, 5},
		SetAffinity: func(tid int, set *unix.CPUSet) error {
			assert.Equal(t, 1, set.Count(), "exactly one cpu")

			for cpu := range 8 {
				if set.IsSet(cpu) {
					pinned[tid] = cpu
				}
			}

			return nil
		},
	}

	assignments, err := pinner.Pin(t.Context(), staticExecutor(t, queryCPUsFastResult, nil))
	require.NoError(t, err)

	assert.Len(t, assignments, 3)
	assert.Equal(t, map[int]int{1001: 4, 1002: 5, 1003: 4}, pinned)
}

func TestPinner_Pin_Failure(t *testing.T) {
	t.Run("no host cpus", func(t *testing.T) {
		pinner := affinity.Pinner{}

		_, err := pinner.Pin(t.Context(), staticExecutor(t, queryCPUsFastResult, nil))
		require.ErrorIs(t, err, affinity.ErrNoHostCPUs)
	})

	t.Run("syscall", func(t *testing.T) {
		pinner := affinity.Pinner{
			HostCPUs: affinity.CPUList{0},
			SetAffinity: func(tid int, _ *unix.CPUSet) error {
				if tid == 1002 {
					return unix.ESRCH
				}

				return nil
			},
		}

		assignments, err := pinner.Pin(t.Context(), staticExecutor(t, queryCPUsFastResult, nil))
		require.ErrorIs(t, err, unix.ESRCH)

		assert.Len(t, assignments, 1, "assignments up to failure")
	})
}
