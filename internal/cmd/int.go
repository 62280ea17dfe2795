// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrValueOutOfRange = errors.New("value is outside of range")
	ErrUnknownUnit     = errors.New("unknown unit")
)

// memoryUnits are the size suffixes QEMU accepts for "-m", relative to MB.
var memoryUnits = map[string]uint64{
	"M": 1,
	"G": 1024,
	"T": 1024 * 1024,
}

// LimitedUintValue is a [flag.Value] for unsigned integers within a range.
// Zero bounds are not checked.
//
// If Units is set, the number may carry one of its suffixes and is
// multiplied by the factor of the suffix before the range is checked.
type LimitedUintValue struct {
	Value *uint64
	Lower uint64
	Upper uint64
	Units map[string]uint64
}

func (u *LimitedUintValue) String() string {
	if u.Value == nil {
		return "0"
	}

	return strconv.FormatUint(*u.Value, 10)
}

func (u *LimitedUintValue) Set(s string) error {
	number, factor, err := u.split(s)
	if err != nil {
		return err
	}

	value, err := strconv.ParseUint(number, 10, 64)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if value > math.MaxUint64/factor {
		return fmt.Errorf("%s: %w", s, ErrValueOutOfRange)
	}

	value *= factor

	if u.Lower > 0 && value < u.Lower {
		return fmt.Errorf("%d < %d: %w", value, u.Lower, ErrValueOutOfRange)
	}

	if u.Upper > 0 && value > u.Upper {
		return fmt.Errorf("%d > %d: %w", value, u.Upper, ErrValueOutOfRange)
	}

	*u.Value = value

	return nil
}

// split separates a unit suffix from the number.
func (u *LimitedUintValue) split(s string) (string, uint64, error) {
	idx := strings.LastIndexFunc(s, func(r rune) bool {
		return r >= '0' && r <= '9'
	})

	// No digits at all or no suffix. Leave it to the number parser.
	if idx == -1 || idx == len(s)-1 {
		return s, 1, nil
	}

	number, unit := s[:idx+1], s[idx+1:]

	factor, exists := u.Units[strings.ToUpper(unit)]
	if !exists {
		return "", 0, fmt.Errorf("%s: %w", unit, ErrUnknownUnit)
	}

	return number, factor, nil
}
