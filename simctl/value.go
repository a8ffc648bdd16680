// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package simctl

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is an examined signal value. For Binary representation it is a bit
// string, one rune per bit, MSB first; besides '0' and '1' it may contain
// simulator-specific undefined states ('x', 'z', 'u', '-').
type Value string

// Width returns the bit width of a binary Value.
func (v Value) Width() int {
	return len(v)
}

// Undefined reports whether the value contains any non-boolean bit.
func (v Value) Undefined() bool {
	for _, r := range v {
		if r != '0' && r != '1' {
			return true
		}
	}
	return len(v) == 0
}

// Bit returns bit i counted from the LSB.
func (v Value) Bit(i int) byte {
	return v[len(v)-1-i]
}

// FlipBit returns a copy of a binary value with bit i (from the LSB) toggled.
// Flipping an undefined bit yields '1': injecting into an unknown state
// resolves it, which is the closest meaningful corruption.
func (v Value) FlipBit(i int) Value {
	b := []byte(v)
	pos := len(b) - 1 - i
	switch b[pos] {
	case '0':
		b[pos] = '1'
	case '1':
		b[pos] = '0'
	default:
		b[pos] = '1'
	}
	return Value(b)
}

// Uint parses a binary Value as an unsigned integer.
func (v Value) Uint() (uint64, error) {
	x, err := strconv.ParseUint(string(v), 2, 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not a defined binary string", string(v))
	}
	return x, nil
}

// UintValue renders x as a binary Value of the given width.
func UintValue(x uint64, width int) Value {
	s := strconv.FormatUint(x, 2)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return Value(s)
}

// BitLane formats the hierarchical path of one bit lane of a vector.
func BitLane(path string, bit int) string {
	return fmt.Sprintf("%v(%v)", path, bit)
}

// SplitLane is the inverse of BitLane. The second result is -1 if path does
// not address a bit lane.
func SplitLane(path string) (string, int) {
	if !strings.HasSuffix(path, ")") {
		return path, -1
	}
	open := strings.LastIndexByte(path, '(')
	if open < 0 {
		return path, -1
	}
	bit, err := strconv.Atoi(path[open+1 : len(path)-1])
	if err != nil || bit < 0 {
		return path, -1
	}
	return path[:open], bit
}
