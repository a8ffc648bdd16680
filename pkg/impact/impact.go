// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package impact classifies each counted injection by whether it propagated
// to the declared output set or the declared next-state set.
package impact

import (
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/seufi/seufi/pkg/flip"
	"github.com/seufi/seufi/pkg/log"
	"github.com/seufi/seufi/pkg/run"
	"github.com/seufi/seufi/pkg/stat"
	"github.com/seufi/seufi/simctl"
)

// Checks toggles the two propagation checks independently. A disabled check
// yields flip.Unknown in events and logs.
type Checks struct {
	Outputs bool
	State   bool
}

type Observer struct {
	sim     simctl.Simulator
	outputs []string
	state   []string
	checks  Checks

	statOutput     *stat.Val
	statState      *stat.Val
	statPropagated *stat.Val

	preOutputs []simctl.Value
	preState   []simctl.Value
}

func NewObserver(ctx *run.Context, sim simctl.Simulator, outputs, state []string, checks Checks) *Observer {
	return &Observer{
		sim:     sim,
		outputs: outputs,
		state:   state,
		checks:  checks,
		statOutput: ctx.Stats.New("output modified",
			"injections that changed a declared output signal"),
		statState: ctx.Stats.New("state modified",
			"injections that changed a declared next-state signal"),
		statPropagated: ctx.Stats.New("propagated",
			"injections that changed outputs or next-state"),
	}
}

// Snapshot reads the given paths as an ordered sequence of opaque values.
func Snapshot(sim simctl.Simulator, paths []string) ([]simctl.Value, error) {
	vals := make([]simctl.Value, 0, len(paths))
	for _, path := range paths {
		v, err := sim.Examine(path, simctl.Binary)
		if err != nil {
			return nil, fmt.Errorf("snapshot %v: %w", path, err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// Before snapshots the declared sets immediately before a flip.
func (o *Observer) Before() error {
	var err error
	if o.checks.Outputs {
		if o.preOutputs, err = Snapshot(o.sim, o.outputs); err != nil {
			return err
		}
	}
	if o.checks.State {
		if o.preState, err = Snapshot(o.sim, o.state); err != nil {
			return err
		}
	}
	return nil
}

// After re-snapshots, fills the event's verdicts, bumps counters and appends
// the event to the injection log.
func (o *Observer) After(ctx *run.Context, ev *flip.Event) error {
	if o.checks.Outputs {
		post, err := Snapshot(o.sim, o.outputs)
		if err != nil {
			return err
		}
		ev.OutputsChanged = verdict(o.preOutputs, post)
	}
	if o.checks.State {
		post, err := Snapshot(o.sim, o.state)
		if err != nil {
			return err
		}
		ev.StateChanged = verdict(o.preState, post)
	}
	if ev.OutputsChanged == flip.Changed {
		o.statOutput.Add(1)
	}
	if ev.StateChanged == flip.Changed {
		o.statState.Add(1)
	}
	if ev.OutputsChanged == flip.Changed || ev.StateChanged == flip.Changed {
		o.statPropagated.Add(1)
	}
	log.Logf(1, "impact: t=%v %v bit %v %v->%v outputs=%v state=%v",
		ev.Time, ev.Net.Path, ev.Bit, ev.Prev, ev.New, ev.OutputsChanged, ev.StateChanged)
	if ctx.InjectionLog != nil {
		err := ctx.InjectionLog.Append(
			fmt.Sprint(ev.Time), ev.Net.Path, string(ev.Prev), string(ev.New),
			ev.OutputsChanged.String(), ev.StateChanged.String())
		if err != nil {
			return fmt.Errorf("injection log: %w", err)
		}
	}
	return nil
}

func verdict(pre, post []simctl.Value) flip.Verdict {
	if cmp.Equal(pre, post) {
		return flip.Unchanged
	}
	return flip.Changed
}

// Counters returns (output modified, state modified, propagated).
func (o *Observer) Counters() (uint64, uint64, uint64) {
	return o.statOutput.Val(), o.statState.Val(), o.statPropagated.Val()
}
