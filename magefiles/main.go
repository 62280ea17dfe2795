// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build mage

package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/magefile/mage/target"
)

const pkg = "github.com/aibor/virtqmp"

var env map[string]string

func init() {
	env = make(map[string]string)

	gobin, exists := os.LookupEnv("GOBIN")
	if !exists {
		gobin = "./gobin"
	}

	if gobin != "" {
		p, err := filepath.Abs(gobin)
		if err == nil {
			gobin = p
		}
	}

	env["GOBIN"] = gobin
}

// Install virtqmp to gobin directory, if sources changed.
func Install() error {
	path := filepath.Join(env["GOBIN"], "virtqmp")

	changed, err := target.Dir(path, "internal", "main.go")
	if err != nil {
		return err
	}

	if !changed {
		return nil
	}

	return sh.RunWithV(env, "go", "install", pkg)
}

// Run unit tests with race detector.
func Test() error {
	return sh.RunWithV(env, "go", "test", "-race", "-cover", "./...")
}

// Run integration tests with a real QEMU. The QEMU binary defaults to the
// one matching the host arch.
func Integration(qemuBin string) error {
	mg.Deps(Test)

	args := []string{
		"test",
		"-v",
		"-timeout", "2m",
		"-tags", "integration",
		"./internal/cmd",
	}

	if qemuBin != "" {
		args = append(args, "-args", "-virtqmp.qemuBin", qemuBin)
	}

	return sh.RunWithV(env, "go", args...)
}

// Remove volatile files.
func Clean() error {
	return sh.Rm(env["GOBIN"])
}
