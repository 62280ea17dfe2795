// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package affinity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCPUList is returned if a CPU list can not be parsed.
var ErrInvalidCPUList = errors.New("invalid cpu list")

// CPUList is a list of host CPU numbers.
//
// It implements [flag.Value] and accepts the format used by taskset(1) and
// the cpuset cgroup, like "0-3,6,8-9".
type CPUList []int

// String implements [fmt.Stringer].
func (l *CPUList) String() string {
	if l == nil {
		return ""
	}

	parts := make([]string, 0, len(*l))
	for _, cpu := range *l {
		parts = append(parts, strconv.Itoa(cpu))
	}

	return strings.Join(parts, ",")
}

// Set implements [flag.Value]. An empty value clears the list.
func (l *CPUList) Set(s string) error {
	list := CPUList{}

	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		first, last, isRange := strings.Cut(part, "-")

		start, err := parseCPU(first)
		if err != nil {
			return err
		}

		end := start

		if isRange {
			end, err = parseCPU(last)
			if err != nil {
				return err
			}

			if end < start {
				return fmt.Errorf("%w: descending range %s", ErrInvalidCPUList, part)
			}
		}

		for cpu := start; cpu <= end; cpu++ {
			list = append(list, cpu)
		}
	}

	*l = list

	return nil
}

func parseCPU(s string) (int, error) {
	cpu, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCPUList, err)
	}

	return int(cpu), nil
}
