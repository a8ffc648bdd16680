// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package flip corrupts one bit of a selected net and arranges for the
// corruption to be lifted according to the net's kind.
//
// The three application paths differ because of how simulators resolve
// forces:
//   - a true register is forced and the design's own clocked write path
//     eventually clears the fault (SEU);
//   - a storage-like scalar injected as a signal (enum, integer) has no
//     timed-release semantics that survive its driver, so the engine forces
//     immediately and schedules a deferred manual un-force that only restores
//     the original value if no intervening write happened (SET);
//   - a plain combinational wire gets a timed force; its continuous driver
//     resumes naturally when the force lifts (SET).
package flip

import (
	"fmt"

	"github.com/seufi/seufi/pkg/log"
	"github.com/seufi/seufi/pkg/netlist"
	"github.com/seufi/seufi/pkg/run"
	"github.com/seufi/seufi/simctl"
)

// Verdict is the tri-state outcome of a propagation check. A disabled check
// is Unknown, never Unchanged: "we did not look" must not read as "nothing
// happened".
type Verdict int

const (
	Unknown Verdict = iota
	Unchanged
	Changed
)

func (v Verdict) String() string {
	switch v {
	case Unchanged:
		return "no"
	case Changed:
		return "yes"
	}
	return "unknown"
}

// Event records one injection attempt. Immutable once recorded: the impact
// observer fills the two verdicts right after the flip and the event is then
// appended to the chronological log as-is.
type Event struct {
	Time simctl.Time
	Net  *netlist.Net
	Bit  int
	// Prev and New are display values: binary for vectors, the symbolic
	// state label for enumerated signals.
	Prev simctl.Value
	New  simctl.Value
	// Success is false when the simulator silently rejected the force
	// (e.g. the value is pinned to an undefined state). Not an error;
	// the caller retries with a different net.
	Success bool

	OutputsChanged Verdict
	StateChanged   Verdict
}

type Config struct {
	// RegisterFaultDuration auto-releases register forces after this many
	// time units. 0 means the force never auto-releases and the design's
	// own write path must eventually clear it.
	RegisterFaultDuration simctl.Time
	// SignalFaultDuration is how long a combinational fault is held.
	SignalFaultDuration simctl.Time
	// EnumFallbackZero controls what happens when bit-flipping an
	// enumerated encoding yields a value outside the enumeration: false
	// reports the flip as failed (the caller retries), true forces
	// encoding 0 instead. The latter replicates a legacy workaround and
	// is off by default.
	EnumFallbackZero bool
}

type Engine struct {
	sim     simctl.Simulator
	cfg     Config
	Tracker *UpsetTracker
}

func NewEngine(sim simctl.Simulator, cfg Config) *Engine {
	if cfg.SignalFaultDuration == 0 {
		cfg.SignalFaultDuration = 1
	}
	return &Engine{
		sim:     sim,
		cfg:     cfg,
		Tracker: NewUpsetTracker(sim),
	}
}

// Flip corrupts one pseudo-randomly chosen bit of net. asRegister tells
// whether the net was drawn from the register sub-list (SEU) or the signal
// sub-list (SET).
func (e *Engine) Flip(ctx *run.Context, net *netlist.Net, asRegister bool) (*Event, error) {
	if net.Kind == simctl.KindEnum {
		return e.flipEnum(ctx, net)
	}
	return e.flipVector(ctx, net, asRegister)
}

func (e *Engine) flipVector(ctx *run.Context, net *netlist.Net, asRegister bool) (*Event, error) {
	pre, err := e.sim.Examine(net.Path, simctl.Binary)
	if err != nil {
		return nil, fmt.Errorf("examine %v: %w", net.Path, err)
	}
	width := pre.Width()
	bit := ctx.Rand.Intn(width)
	newVal := pre.FlipBit(bit)
	ev := &Event{Time: e.sim.Now(), Net: net, Bit: bit, Prev: pre, New: newVal}

	// Width 1 targets the whole signal, wider nets the indexed bit lane.
	target := net.Path
	forced := newVal
	if width > 1 {
		target = simctl.BitLane(net.Path, bit)
		forced = simctl.Value(newVal.Bit(bit))
	}

	manual := false
	opts := simctl.ForceOpts{Freeze: true}
	switch {
	case asRegister && net.Kind == simctl.KindRegister:
		opts.ReleaseAfter = e.cfg.RegisterFaultDuration
	case net.Kind == simctl.KindSignal:
		opts.ReleaseAfter = e.cfg.SignalFaultDuration
	default:
		// Storage-like scalar injected as a signal: a timed release
		// would hand the corrupted value straight back to the driver,
		// so the un-force is manual and deferred.
		manual = true
	}
	if err := e.sim.Force(target, forced, opts); err != nil {
		return nil, fmt.Errorf("force %v: %w", target, err)
	}

	post, err := e.sim.Examine(net.Path, simctl.Binary)
	if err != nil {
		return nil, fmt.Errorf("examine %v: %w", net.Path, err)
	}
	if post == pre {
		e.sim.Release(target)
		log.Logf(2, "flip: force of %v had no effect (value %v)", target, pre)
		return ev, nil
	}
	ev.Success = true
	ev.New = post
	if manual {
		e.deferUnforce(net.Path, target, pre, post)
	}
	if asRegister && net.Kind == simctl.KindRegister {
		e.Tracker.Record(net, post)
	}
	return ev, nil
}

func (e *Engine) flipEnum(ctx *run.Context, net *netlist.Net) (*Event, error) {
	// Partial-field forcing is unsafe for enumerated representations:
	// the whole encoding is flipped and forced as one unit.
	pre, err := e.sim.Examine(net.Path, simctl.Binary)
	if err != nil {
		return nil, fmt.Errorf("examine %v: %w", net.Path, err)
	}
	preSym, err := e.sim.Examine(net.Path, simctl.Symbolic)
	if err != nil {
		return nil, fmt.Errorf("examine %v: %w", net.Path, err)
	}
	width := pre.Width()
	bit := ctx.Rand.Intn(width)
	newEnc := pre.FlipBit(bit)
	ev := &Event{Time: e.sim.Now(), Net: net, Bit: bit, Prev: preSym, New: newEnc}

	if enc, err := newEnc.Uint(); err == nil && net.EnumSize > 0 && enc >= uint64(net.EnumSize) {
		if !e.cfg.EnumFallbackZero {
			log.Logf(2, "flip: %v: encoding %v is outside the enumeration (%v states), flip failed",
				net.Path, enc, net.EnumSize)
			return ev, nil
		}
		log.Logf(1, "flip: %v: encoding %v is outside the enumeration, falling back to encoding 0",
			net.Path, enc)
		newEnc = simctl.UintValue(0, width)
	}
	if err := e.sim.Force(net.Path, newEnc, simctl.ForceOpts{Freeze: true}); err != nil {
		return nil, fmt.Errorf("force %v: %w", net.Path, err)
	}
	postSym, err := e.sim.Examine(net.Path, simctl.Symbolic)
	if err != nil {
		return nil, fmt.Errorf("examine %v: %w", net.Path, err)
	}
	if postSym == preSym {
		e.sim.Release(net.Path)
		log.Logf(2, "flip: force of %v had no effect (state %v)", net.Path, preSym)
		return ev, nil
	}
	ev.Success = true
	ev.New = postSym
	e.deferUnforce(net.Path, net.Path, pre, newEnc)
	return ev, nil
}

// deferUnforce schedules the manual un-force of a driven signal. At fire
// time it re-examines the value: if an intervening write already changed it,
// the restore is aborted rather than clobbering a legitimate write. The
// check-then-act against the current value is the cancellation mechanism;
// there is no token.
func (e *Engine) deferUnforce(path, target string, orig, injected simctl.Value) {
	e.sim.Schedule(e.sim.Now()+e.cfg.SignalFaultDuration, func() {
		cur, err := e.sim.Examine(path, simctl.Binary)
		if err != nil {
			log.Logf(0, "flip: manual un-flip of %v failed: %v", path, err)
			return
		}
		if cur != injected {
			log.Logf(1, "flip: manual un-flip of %v aborted: value changed %v -> %v since injection",
				path, injected, cur)
			return
		}
		e.sim.Release(target)
		e.sim.Force(path, orig, simctl.ForceOpts{})
		log.Logf(2, "flip: manually restored %v to %v", path, orig)
	})
}
