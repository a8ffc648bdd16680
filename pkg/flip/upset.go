// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package flip

import (
	"golang.org/x/exp/maps"

	"github.com/seufi/seufi/pkg/netlist"
	"github.com/seufi/seufi/simctl"
)

// UpsetTracker remembers which registers currently hold an injected value.
// An entry exists only while the flip persists: the moment the register no
// longer reads back the recorded value (the design overwrote it), the entry
// is dropped. The selector consults it to avoid re-flipping an already-upset
// register when multi-bit upsets are disabled.
type UpsetTracker struct {
	sim     simctl.Simulator
	flipped map[string]simctl.Value
}

func NewUpsetTracker(sim simctl.Simulator) *UpsetTracker {
	return &UpsetTracker{
		sim:     sim,
		flipped: make(map[string]simctl.Value),
	}
}

func (t *UpsetTracker) Record(net *netlist.Net, val simctl.Value) {
	t.flipped[net.Path] = val
}

// StillUpset reports whether net still holds the value recorded at flip
// time. A stale entry is removed as a side effect.
func (t *UpsetTracker) StillUpset(net *netlist.Net) bool {
	rec, ok := t.flipped[net.Path]
	if !ok {
		return false
	}
	cur, err := t.sim.Examine(net.Path, simctl.Binary)
	if err != nil || cur != rec {
		delete(t.flipped, net.Path)
		return false
	}
	return true
}

// Upset returns the paths of all registers still holding an injected value.
func (t *UpsetTracker) Upset() []string {
	var paths []string
	for _, path := range maps.Keys(t.flipped) {
		if t.StillUpset(&netlist.Net{Path: path}) {
			paths = append(paths, path)
		}
	}
	return paths
}

func (t *UpsetTracker) Reset() {
	maps.Clear(t.flipped)
}
