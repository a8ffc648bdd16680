// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package simctl

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seufi/seufi/pkg/testutil"
)

func TestValueBasics(t *testing.T) {
	v := Value("1010")
	assert.Equal(t, 4, v.Width())
	assert.False(t, v.Undefined())
	assert.Equal(t, byte('0'), v.Bit(0))
	assert.Equal(t, byte('1'), v.Bit(1))
	assert.Equal(t, byte('0'), v.Bit(2))
	assert.Equal(t, byte('1'), v.Bit(3))

	assert.True(t, Value("10x0").Undefined())
	assert.True(t, Value("zzzz").Undefined())
	assert.True(t, Value("").Undefined())
	assert.False(t, Value("0").Undefined())
}

func TestValueUint(t *testing.T) {
	x, err := Value("1010").Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), x)

	_, err = Value("10x0").Uint()
	assert.Error(t, err)

	assert.Equal(t, Value("0000"), UintValue(0, 4))
	assert.Equal(t, Value("0101"), UintValue(5, 4))
	assert.Equal(t, Value("1"), UintValue(1, 1))
}

func TestFlipBit(t *testing.T) {
	r := rand.New(testutil.RandSource(t))
	for i := 0; i < testutil.IterCount(); i++ {
		width := 1 + r.Intn(32)
		v := UintValue(r.Uint64()&(1<<width-1), width)
		bit := r.Intn(width)
		f := v.FlipBit(bit)
		require.Equal(t, width, f.Width())
		diff := 0
		for j := 0; j < width; j++ {
			if v.Bit(j) != f.Bit(j) {
				require.Equal(t, bit, j)
				diff++
			}
		}
		require.Equal(t, 1, diff, "flip of %v bit %v gave %v", v, bit, f)
		// A second flip of the same bit restores the original.
		require.Equal(t, v, f.FlipBit(bit))
	}
}

func TestFlipBitUndefined(t *testing.T) {
	// Corrupting an undefined bit resolves it to 1.
	assert.Equal(t, Value("1"), Value("x").FlipBit(0))
	assert.Equal(t, Value("0z10"), Value("0z00").FlipBit(1))
	assert.Equal(t, Value("0100"), Value("0x00").FlipBit(2))
}

func TestBitLane(t *testing.T) {
	assert.Equal(t, "/top/core/pc(3)", BitLane("/top/core/pc", 3))

	tests := []struct {
		path string
		base string
		bit  int
	}{
		{"/top/core/pc(3)", "/top/core/pc", 3},
		{"/top/core/pc", "/top/core/pc", -1},
		{"/top/core/pc(x)", "/top/core/pc(x)", -1},
		{"/top/regfile(2)(7)", "/top/regfile(2)", 7},
		{"(0)", "", 0},
	}
	for _, test := range tests {
		base, bit := SplitLane(test.path)
		assert.Equal(t, test.base, base, "path %q", test.path)
		assert.Equal(t, test.bit, bit, "path %q", test.path)
	}
}
