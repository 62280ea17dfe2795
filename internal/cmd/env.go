// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const envArgsName = "VIRTQMP_ARGS"

// EnvArgs returns virtqmp arguments from the environment.
func EnvArgs() []string {
	return strings.Fields(os.Getenv(envArgsName))
}

// LocalConfigArgs returns virtqmp arguments from a local config file.
//
// The file's format is one argument per line. Environment variables may be used
// and are expanded with [os.ExpandEnv]. A missing file is not an error.
func LocalConfigArgs(fsys fs.FS, file string) ([]string, error) {
	lines, err := readLines(fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	return lines, nil
}

// MergedArgs prepends the arguments from the local config file and the
// environment to the given arguments. Later arguments take precedence.
func MergedArgs(args []string, fsys fs.FS, file string) ([]string, error) {
	localArgs, err := LocalConfigArgs(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("local config args: %w", err)
	}

	merged := append(localArgs, EnvArgs()...)

	return append(merged, args...), nil
}

// readLines reads the given file and returns all non-empty lines with
// environment variables expanded. Lines starting with "#" are skipped.
func readLines(fsys fs.FS, file string) ([]string, error) {
	content, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	lines := []string{}

	expanded := os.ExpandEnv(string(content))
	for line := range strings.SplitSeq(expanded, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}

	return lines, nil
}
