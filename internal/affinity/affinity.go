// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package affinity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aibor/virtqmp/internal/qmp"
	"golang.org/x/sys/unix"
)

// ErrNoHostCPUs is returned if pinning is requested without any host CPUs.
var ErrNoHostCPUs = errors.New("no host cpus given")

// VCPU is a virtual CPU as reported by "query-cpus-fast".
type VCPU struct {
	Index    int    `json:"cpu-index"`
	ThreadID int    `json:"thread-id"`
	QOMPath  string `json:"qom-path"`
}

// Assignment is a vCPU host thread pinned to a host CPU.
type Assignment struct {
	VCPU    VCPU
	HostCPU int
}

// Executor runs QMP commands.
type Executor interface {
	Execute(ctx context.Context, name string, args any) (qmp.Message, error)
}

// SetAffinityFunc sets the CPU affinity of the given thread.
type SetAffinityFunc func(tid int, set *unix.CPUSet) error

// Pinner pins the host threads of the guest's vCPUs to host CPUs.
type Pinner struct {
	// HostCPUs to pin to. vCPU n is pinned to HostCPUs[n % len(HostCPUs)].
	HostCPUs CPUList

	// SetAffinity is used for the actual system call. Defaults to
	// [unix.SchedSetaffinity].
	SetAffinity SetAffinityFunc

	// Logger for diagnostics. Defaults to [slog.Default].
	Logger *slog.Logger
}

// QueryVCPUs returns the vCPUs of the guest.
func QueryVCPUs(ctx context.Context, executor Executor) ([]VCPU, error) {
	result, err := executor.Execute(ctx, "query-cpus-fast", nil)
	if err != nil {
		return nil, fmt.Errorf("query-cpus-fast: %w", err)
	}

	var vcpus []VCPU

	if err := json.Unmarshal(result, &vcpus); err != nil {
		return nil, fmt.Errorf("decode vcpus: %w", err)
	}

	return vcpus, nil
}

// Pin queries the guest's vCPUs and pins each vCPU's host thread to a host
// CPU.
//
// It must be called before the guest is started, so no vCPU thread runs on
// an unintended CPU.
func (p *Pinner) Pin(ctx context.Context, executor Executor) ([]Assignment, error) {
	if len(p.HostCPUs) == 0 {
		return nil, ErrNoHostCPUs
	}

	vcpus, err := QueryVCPUs(ctx, executor)
	if err != nil {
		return nil, err
	}

	setAffinity := p.SetAffinity
	if setAffinity == nil {
		setAffinity = unix.SchedSetaffinity
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	assignments := make([]Assignment, 0, len(vcpus))

	for _, vcpu := range vcpus {
		hostCPU := p.HostCPUs[vcpu.Index%len(p.HostCPUs)]

		var set unix.CPUSet

		set.Zero()
		set.Set(hostCPU)

		if err := setAffinity(vcpu.ThreadID, &set); err != nil {
			return assignments, fmt.Errorf("pin vcpu %d (thread %d) to cpu %d: %w",
				vcpu.Index, vcpu.ThreadID, hostCPU, err)
		}

		logger.Debug("Pinned vCPU",
			slog.Int("vcpu", vcpu.Index),
			slog.Int("thread", vcpu.ThreadID),
			slog.Int("cpu", hostCPU),
		)

		assignments = append(assignments, Assignment{
			VCPU:    vcpu,
			HostCPU: hostCPU,
		})
	}

	return assignments, nil
}
