// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package impact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seufi/seufi/pkg/flip"
	"github.com/seufi/seufi/pkg/netlist"
	"github.com/seufi/seufi/pkg/run"
	"github.com/seufi/seufi/simctl"
	"github.com/seufi/seufi/simctl/simtest"
)

func newImpactSim() *simtest.Sim {
	s := simtest.New()
	s.AddRegister("/out", 4, "0000")
	s.AddRegister("/state", 4, "0000")
	return s
}

func set(t *testing.T, s *simtest.Sim, path string, val simctl.Value) {
	require.NoError(t, s.Force(path, val, simctl.ForceOpts{}))
}

func event() *flip.Event {
	return &flip.Event{Net: &netlist.Net{Path: "/some/net"}, Prev: "0", New: "1"}
}

func TestObserverVerdicts(t *testing.T) {
	tests := []struct {
		name        string
		touchOutput bool
		touchState  bool
		wantOutputs flip.Verdict
		wantState   flip.Verdict
	}{
		{"none", false, false, flip.Unchanged, flip.Unchanged},
		{"output only", true, false, flip.Changed, flip.Unchanged},
		{"state only", false, true, flip.Unchanged, flip.Changed},
		{"both", true, true, flip.Changed, flip.Changed},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := newImpactSim()
			ctx := run.NewContext(1)
			obs := NewObserver(ctx, s, []string{"/out"}, []string{"/state"},
				Checks{Outputs: true, State: true})
			require.NoError(t, obs.Before())
			if test.touchOutput {
				set(t, s, "/out", "0001")
			}
			if test.touchState {
				set(t, s, "/state", "0001")
			}
			ev := event()
			require.NoError(t, obs.After(ctx, ev))
			assert.Equal(t, test.wantOutputs, ev.OutputsChanged)
			assert.Equal(t, test.wantState, ev.StateChanged)
		})
	}
}

func TestObserverCounters(t *testing.T) {
	s := newImpactSim()
	ctx := run.NewContext(1)
	obs := NewObserver(ctx, s, []string{"/out"}, []string{"/state"},
		Checks{Outputs: true, State: true})

	// Injection 1: output changed. Injection 2: both. Injection 3: nothing.
	require.NoError(t, obs.Before())
	set(t, s, "/out", "0001")
	require.NoError(t, obs.After(ctx, event()))

	require.NoError(t, obs.Before())
	set(t, s, "/out", "0011")
	set(t, s, "/state", "1000")
	require.NoError(t, obs.After(ctx, event()))

	require.NoError(t, obs.Before())
	require.NoError(t, obs.After(ctx, event()))

	outputs, state, propagated := obs.Counters()
	assert.Equal(t, uint64(2), outputs)
	assert.Equal(t, uint64(1), state)
	assert.Equal(t, uint64(2), propagated)
}

func TestObserverDisabledChecks(t *testing.T) {
	// A disabled check must read as "unknown", not "unchanged".
	s := newImpactSim()
	ctx := run.NewContext(1)
	obs := NewObserver(ctx, s, []string{"/out"}, []string{"/state"}, Checks{})
	require.NoError(t, obs.Before())
	set(t, s, "/out", "1111")
	ev := event()
	require.NoError(t, obs.After(ctx, ev))
	assert.Equal(t, flip.Unknown, ev.OutputsChanged)
	assert.Equal(t, flip.Unknown, ev.StateChanged)
	outputs, state, propagated := obs.Counters()
	assert.Zero(t, outputs+state+propagated)
}

func TestObserverInjectionLog(t *testing.T) {
	s := newImpactSim()
	ctx := run.NewContext(1)
	file := filepath.Join(t.TempDir(), "injections.csv")
	lg, err := run.OpenInjectionLog(file)
	require.NoError(t, err)
	ctx.InjectionLog = lg

	obs := NewObserver(ctx, s, []string{"/out"}, nil, Checks{Outputs: true})
	require.NoError(t, obs.Before())
	set(t, s, "/out", "0001")
	require.NoError(t, obs.After(ctx, event()))
	require.NoError(t, lg.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,netPath,preFlipValue,postFlipValue,outputsChanged,stateChanged", lines[0])
	assert.Equal(t, "0,/some/net,0,1,yes,unknown", lines[1])
}

func TestSnapshot(t *testing.T) {
	s := newImpactSim()
	set(t, s, "/state", "1010")
	vals, err := Snapshot(s, []string{"/out", "/state"})
	require.NoError(t, err)
	assert.Equal(t, []simctl.Value{"0000", "1010"}, vals)

	_, err = Snapshot(s, []string{"/no/such/path"})
	assert.Error(t, err)
}
