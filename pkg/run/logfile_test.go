// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package run

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, file string) []string {
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestInjectionLogAppend(t *testing.T) {
	file := filepath.Join(t.TempDir(), "injections.csv")
	lg, err := OpenInjectionLog(file)
	require.NoError(t, err)
	require.NoError(t, lg.Append("10", "/top/core/pc", "0000", "0100", "yes", "no"))
	require.NoError(t, lg.Close())

	// Reopening appends without writing the header again.
	lg, err = OpenInjectionLog(file)
	require.NoError(t, err)
	require.NoError(t, lg.Append("20", "/top/out", "1", "0", "unknown", "unknown"))
	require.NoError(t, lg.Close())

	lines := readLines(t, file)
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,netPath,preFlipValue,postFlipValue,outputsChanged,stateChanged", lines[0])
	assert.Equal(t, "10,/top/core/pc,0000,0100,yes,no", lines[1])
	assert.Equal(t, "20,/top/out,1,0,unknown,unknown", lines[2])
}

func TestVulnLogAppend(t *testing.T) {
	file := filepath.Join(t.TempDir(), "vulns.csv")
	lg, err := OpenVulnLog(file)
	require.NoError(t, err)
	require.NoError(t, lg.Append(7, "incorrect", 3, "/top/core/pc"))
	require.NoError(t, lg.Append(-2, "timeout", 1, "/top/out"))
	require.NoError(t, lg.Close())

	lines := readLines(t, file)
	require.Len(t, lines, 3)
	assert.Equal(t, "seed,terminationCause,faultCount,lastFlippedNetPath", lines[0])
	assert.Equal(t, "7,incorrect,3,/top/core/pc", lines[1])
	assert.Equal(t, "-2,timeout,1,/top/out", lines[2])
}

func TestNewContext(t *testing.T) {
	ctx1 := NewContext(42)
	ctx2 := NewContext(42)
	assert.Equal(t, int64(42), ctx1.Seed)
	assert.NotEqual(t, ctx1.ID, ctx2.ID)
	// Same seed, same stream.
	assert.Equal(t, ctx1.Rand.Int63(), ctx2.Rand.Int63())
	assert.NotNil(t, ctx1.Stats)
}
