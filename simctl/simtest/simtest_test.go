// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package simtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seufi/seufi/simctl"
)

func examine(t *testing.T, s *Sim, path string, repr simctl.Repr) simctl.Value {
	v, err := s.Examine(path, repr)
	require.NoError(t, err)
	return v
}

func TestDemoDesign(t *testing.T) {
	s := NewDemoDesign(10, 5)
	assert.Equal(t, simctl.Value("0"), examine(t, s, "/top/done", simctl.Binary))
	require.NoError(t, s.Run(200))
	// Rising edges at t=5,15,25,35,45; pc saturates at the cycle count.
	assert.Equal(t, simctl.Time(200), s.Now())
	assert.Equal(t, simctl.Value("5"), examine(t, s, "/top/core/pc", simctl.Decimal))
	assert.Equal(t, simctl.Value("1"), examine(t, s, "/top/done", simctl.Binary))
}

func TestScheduleOrder(t *testing.T) {
	s := New()
	var got []int
	s.Schedule(5, func() { got = append(got, 1) })
	s.Schedule(3, func() { got = append(got, 2) })
	s.Schedule(5, func() { got = append(got, 3) })
	h := s.Schedule(4, func() { got = append(got, 4) })
	s.Deschedule(h)
	require.NoError(t, s.Run(10))
	// Time order, then submission order for same-time events;
	// descheduled events never fire.
	assert.Equal(t, []int{2, 1, 3}, got)
	assert.Equal(t, simctl.Time(10), s.Now())
}

func TestWatchEdgeTriggered(t *testing.T) {
	s := New()
	s.AddRegister("/r", 1, "0")
	fired := 0
	s.Watch(func() bool {
		return examine(t, s, "/r", simctl.Binary) == "1"
	}, func() { fired++ })

	set := func(v simctl.Value) {
		require.NoError(t, s.Force("/r", v, simctl.ForceOpts{}))
	}
	set("1")
	assert.Equal(t, 1, fired)
	set("1") // still true, no edge
	assert.Equal(t, 1, fired)
	set("0")
	set("1")
	assert.Equal(t, 2, fired)
}

func TestFreezeAndRelease(t *testing.T) {
	s := New()
	s.AddWire("/w", 1, func() simctl.Value { return "0" })
	require.NoError(t, s.Force("/w", "1", simctl.ForceOpts{Freeze: true, ReleaseAfter: 5}))
	require.NoError(t, s.Run(4))
	assert.Equal(t, simctl.Value("1"), examine(t, s, "/w", simctl.Binary))
	require.NoError(t, s.Run(10))
	// The timed release lifted the force; the driver wins again.
	assert.Equal(t, simctl.Value("0"), examine(t, s, "/w", simctl.Binary))
}

func TestDepositOnWire(t *testing.T) {
	s := New()
	s.AddWire("/w", 1, func() simctl.Value { return "0" })
	// A deposit has no lasting effect on a continuously driven net.
	require.NoError(t, s.Force("/w", "1", simctl.ForceOpts{}))
	assert.Equal(t, simctl.Value("0"), examine(t, s, "/w", simctl.Binary))
}

func TestBitLaneForce(t *testing.T) {
	s := New()
	s.AddRegister("/r", 4, "0000")
	require.NoError(t, s.Force(simctl.BitLane("/r", 2), "1", simctl.ForceOpts{Freeze: true}))
	assert.Equal(t, simctl.Value("0100"), examine(t, s, "/r", simctl.Binary))
	assert.Equal(t, simctl.Value("1"), examine(t, s, "/r(2)", simctl.Binary))
	// Releasing a frozen storage element commits the held value.
	require.NoError(t, s.Release("/r(2)"))
	assert.Equal(t, simctl.Value("0100"), examine(t, s, "/r", simctl.Binary))

	err := s.Force("/r", "1", simctl.ForceOpts{})
	assert.Error(t, err, "width mismatch must be rejected")
}

func TestClockedWriteClearsForce(t *testing.T) {
	s := New()
	s.AddClock("/clk", 10)
	s.AddClockedRegister("/r", 1, "0", func() simctl.Value { return "0" })
	require.NoError(t, s.Force("/r", "1", simctl.ForceOpts{Freeze: true}))
	assert.Equal(t, simctl.Value("1"), examine(t, s, "/r", simctl.Binary))
	require.NoError(t, s.Run(10))
	// The design's own write path wins over a frozen force.
	assert.Equal(t, simctl.Value("0"), examine(t, s, "/r", simctl.Binary))
}

func TestEnumSymbolic(t *testing.T) {
	s := New()
	s.AddEnum("/st", []string{"IDLE", "RUN", "DONE"}, 1)
	assert.Equal(t, simctl.Value("RUN"), examine(t, s, "/st", simctl.Symbolic))
	assert.Equal(t, simctl.Value("01"), examine(t, s, "/st", simctl.Binary))
	assert.Equal(t, simctl.Value("1"), examine(t, s, "/st", simctl.Numeric))

	require.NoError(t, s.Force("/st", "11", simctl.ForceOpts{Freeze: true}))
	// Out-of-range encoding has no label.
	assert.Equal(t, simctl.Value("#11"), examine(t, s, "/st", simctl.Symbolic))
}

func TestHalt(t *testing.T) {
	s := NewDemoDesign(10, 5)
	s.Watch(func() bool {
		v, err := s.Examine("/top/core/pc", simctl.Binary)
		if err != nil {
			return false
		}
		x, err := v.Uint()
		return err == nil && x >= 3
	}, s.Halt)
	require.NoError(t, s.Run(1000))
	assert.Equal(t, simctl.Time(25), s.Now())
}

func TestCheckpointRestore(t *testing.T) {
	s := NewDemoDesign(10, 5)
	require.NoError(t, s.Run(22))
	require.NoError(t, s.Checkpoint("cp"))
	pcAtCp := examine(t, s, "/top/core/pc", simctl.Decimal)
	assert.Equal(t, simctl.Value("2"), pcAtCp)

	require.NoError(t, s.Run(200))
	assert.Equal(t, simctl.Value("5"), examine(t, s, "/top/core/pc", simctl.Decimal))

	require.NoError(t, s.Restore("cp"))
	assert.Equal(t, simctl.Time(22), s.Now())
	assert.Equal(t, pcAtCp, examine(t, s, "/top/core/pc", simctl.Decimal))

	// Clocks are re-armed after restore: the design runs to completion again.
	require.NoError(t, s.Run(200))
	assert.Equal(t, simctl.Value("5"), examine(t, s, "/top/core/pc", simctl.Decimal))
	assert.Equal(t, simctl.Value("1"), examine(t, s, "/top/done", simctl.Binary))

	assert.Error(t, s.Restore("nonexistent"))
}

func TestRestoreDropsEvents(t *testing.T) {
	s := New()
	s.AddRegister("/r", 1, "0")
	require.NoError(t, s.Checkpoint("cp"))
	fired := false
	s.Schedule(5, func() { fired = true })
	s.Watch(func() bool { return examine(t, s, "/r", simctl.Binary) == "1" }, func() { fired = true })
	require.NoError(t, s.Restore("cp"))
	require.NoError(t, s.Force("/r", "1", simctl.ForceOpts{}))
	require.NoError(t, s.Run(10))
	assert.False(t, fired, "events and watches must not survive a restore")
}

func TestSeededRand(t *testing.T) {
	s := New()
	require.NoError(t, s.SetSeed(42))
	a := []int64{s.Rand().Int63(), s.Rand().Int63()}
	require.NoError(t, s.SetSeed(42))
	b := []int64{s.Rand().Int63(), s.Rand().Int63()}
	assert.Equal(t, a, b)
}

func TestBackendRegistry(t *testing.T) {
	sim, err := simctl.Create("test", &simctl.Env{Config: []byte(`{"clock_period": 4, "cycles": 3}`)})
	require.NoError(t, err)
	require.NoError(t, sim.Run(100))
	v, err := sim.Examine("/top/done", simctl.Binary)
	require.NoError(t, err)
	assert.Equal(t, simctl.Value("1"), v)

	_, err = simctl.Create("no-such-backend", &simctl.Env{})
	assert.Error(t, err)
}
