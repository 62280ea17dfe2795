// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package affinity pins the host threads backing the guest's virtual CPUs to
// dedicated host CPUs. The thread ids are obtained via QMP.
package affinity
