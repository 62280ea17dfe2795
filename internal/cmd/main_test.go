// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd_test

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

// fakeQEMUEnv switches the test binary into a minimal QEMU replacement
// speaking QMP on stdio.
const fakeQEMUEnv = "VIRTQMP_TEST_FAKE_QEMU"

const (
	fakeGreeting = `{"QMP": {"version": {"qemu": {"micro": 1, "minor": 2, "major": 9}, ` +
		`"package": "v9.2.1"}, "capabilities": ["oob"]}}`
	fakeTimestamp = `"timestamp": {"seconds": 1767225600, "microseconds": 42}`
	resumeEvent   = `{"event": "RESUME", ` + fakeTimestamp + `}`
	quitEvent     = `{"event": "SHUTDOWN", "data": {"guest": false, "reason": "host-qmp-quit"}, ` +
		fakeTimestamp + `}`
	poweroffEvent = `{"event": "SHUTDOWN", "data": {"guest": true, "reason": "guest-shutdown"}, ` +
		fakeTimestamp + `}`
)

func TestMain(m *testing.M) {
	if mode, exists := os.LookupEnv(fakeQEMUEnv); exists {
		os.Exit(runFakeQEMU(mode))
	}

	goleak.VerifyTestMain(m)
}

// runFakeQEMU behaves depending on mode:
//
//	quit:N    exit with code N on "quit"
//	poweroff  exit with code 0 right after "cont", like a guest powering off
func runFakeQEMU(mode string) int {
	action, value, _ := strings.Cut(mode, ":")

	exitCode, _ := strconv.Atoi(value)

	fmt.Println(fakeGreeting)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		var cmd struct {
			Execute string `json:"execute"`
		}

		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			fmt.Println(`{"error": {"class": "GenericError", "desc": "invalid json"}}`)
			continue
		}

		fmt.Println(`{"return": {}}`)

		switch cmd.Execute {
		case "cont":
			fmt.Println(resumeEvent)

			if action == "poweroff" {
				fmt.Println(poweroffEvent)
				return 0
			}
		case "quit":
			fmt.Println(quitEvent)
			return exitCode
		}
	}

	return 0
}
