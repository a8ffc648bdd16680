// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package termination watches a set of prioritized end-of-run conditions.
// When one or more conditions are simultaneously active, only the
// highest-priority cause is reported; lower-priority simultaneous triggers
// are merged into that single report. Suppression is per evaluation batch
// and never blocks future reporting.
package termination

import (
	"fmt"

	"github.com/seufi/seufi/pkg/log"
	"github.com/seufi/seufi/simctl"
)

// Cause is the reported outcome of an evaluation batch.
type Cause struct {
	Priority int
	Label    string
}

func (c Cause) String() string {
	return fmt.Sprintf("%v(%v)", c.Label, c.Priority)
}

// Condition is one declarative watcher: either a signal predicate
// (Path equals Equals) or an absolute-time timeout (At > 0).
type Condition struct {
	Priority int
	Label    string

	Path   string
	Equals simctl.Value

	At simctl.Time
}

func (c Condition) isTime() bool {
	return c.At > 0
}

type Config struct {
	// UnknownIsCause maps an undefined (x/z) reading of a watched signal
	// to its own cause instead of ignoring it.
	UnknownIsCause  bool
	UnknownPriority int
	UnknownLabel    string
}

type Monitor struct {
	sim     simctl.Simulator
	cfg     Config
	conds   []Condition
	causeFn func(Cause)
	haltFn  func()
	handles []simctl.Handle
	started bool
}

func New(sim simctl.Simulator, cfg Config) *Monitor {
	if cfg.UnknownLabel == "" {
		cfg.UnknownLabel = "unknown-state"
	}
	return &Monitor{sim: sim, cfg: cfg}
}

func (m *Monitor) Add(cond Condition) {
	if m.started {
		panic("termination: Add after Start")
	}
	m.conds = append(m.conds, cond)
}

// OnCause registers the single cause callback. It receives the winning
// priority and label of each evaluation batch that has an active condition.
func (m *Monitor) OnCause(fn func(Cause)) {
	m.causeFn = fn
}

// OnHalt registers the follow-up callback, run after the cause callback,
// typically to halt the simulation run.
func (m *Monitor) OnHalt(fn func()) {
	m.haltFn = fn
}

// Start registers the watchers. Signal conditions share one edge-triggered
// predicate watcher so that simultaneous activations land in one evaluation
// batch; each time condition gets its own scheduled event.
func (m *Monitor) Start() error {
	if m.causeFn == nil {
		return fmt.Errorf("termination: no cause callback registered")
	}
	m.started = true
	hasSignal := false
	for _, cond := range m.conds {
		if cond.isTime() {
			h := m.sim.Schedule(cond.At, m.evaluate)
			m.handles = append(m.handles, h)
		} else {
			hasSignal = true
		}
	}
	if hasSignal {
		h := m.sim.Watch(m.anyActive, m.evaluate)
		m.handles = append(m.handles, h)
	}
	return nil
}

// Stop deregisters all watchers.
func (m *Monitor) Stop() {
	for _, h := range m.handles {
		m.sim.Deschedule(h)
	}
	m.handles = nil
}

func (m *Monitor) anyActive() bool {
	for i := range m.conds {
		if active, _ := m.active(&m.conds[i]); active {
			return true
		}
	}
	return false
}

// active evaluates one condition. The second result is the substitute cause
// for an undefined signal reading, if configured.
func (m *Monitor) active(cond *Condition) (bool, *Cause) {
	if cond.isTime() {
		return m.sim.Now() >= cond.At, nil
	}
	val, err := m.sim.Examine(cond.Path, simctl.Binary)
	if err != nil {
		log.Logf(0, "termination: examine %v: %v", cond.Path, err)
		return false, nil
	}
	if val.Undefined() {
		if m.cfg.UnknownIsCause {
			return true, &Cause{Priority: m.cfg.UnknownPriority, Label: m.cfg.UnknownLabel}
		}
		log.Logf(2, "termination: %v reads undefined value %v, ignored", cond.Path, val)
		return false, nil
	}
	return val == cond.Equals, nil
}

// evaluate collects all currently active conditions and reports the single
// highest-priority cause of the batch.
func (m *Monitor) evaluate() {
	var winner *Cause
	for i := range m.conds {
		cond := &m.conds[i]
		active, substitute := m.active(cond)
		if !active {
			continue
		}
		cause := Cause{Priority: cond.Priority, Label: cond.Label}
		if substitute != nil {
			cause = *substitute
		}
		if winner == nil || cause.Priority > winner.Priority {
			winner = &cause
		}
	}
	if winner == nil {
		return
	}
	log.Logf(1, "termination: cause %v at t=%v", *winner, m.sim.Now())
	m.causeFn(*winner)
	if m.haltFn != nil {
		m.haltFn()
	}
}
