// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package simtest implements an in-memory, deterministic, event-driven
// simulator backend. It is the test double for every engine package and
// doubles as the "test" backend for smoke runs of the command line tools.
//
// The simulated design is declared programmatically: registers with optional
// clocked next-state functions, combinational wires with driver functions,
// enumerated state signals, and compound array/record shapes. Combinational
// drivers are recomputed on every examine, so they fight forces exactly the
// way a continuously driven net in a real simulator does.
package simtest

import (
	"container/heap"
	"fmt"
	"math/rand"
	"sort"
	"strconv"

	"github.com/seufi/seufi/simctl"
)

type Sim struct {
	now        simctl.Time
	halted     bool
	seed       int64
	rng        *rand.Rand
	seq        int64
	nextHandle simctl.Handle

	events    eventHeap
	scheduled map[simctl.Handle]*event
	watches   map[simctl.Handle]*watch

	signals map[string]*signal
	order   []string
	forces  map[string]*force
	clocks  []clockSpec

	checkpoints map[string]*snapshot
}

type signal struct {
	desc   *simctl.SignalDescriptor
	stored simctl.Value
	init   simctl.Value
	// driver recomputes a combinational value; nil for storage elements.
	driver func() simctl.Value
	// next computes the register's next state, applied on rising clock edges.
	next   func() simctl.Value
	labels []string
}

type force struct {
	val    simctl.Value
	bit    int // -1 for whole signal
	freeze bool
}

type clockSpec struct {
	path   string
	period simctl.Time
}

type event struct {
	at        simctl.Time
	seq       int64
	fn        func()
	cancelled bool
}

type watch struct {
	pred simctl.Predicate
	fn   func()
	last bool
}

type snapshot struct {
	now    simctl.Time
	seed   int64
	stored map[string]simctl.Value
	forces map[string]*force
}

func New() *Sim {
	s := &Sim{
		seed:        1,
		rng:         rand.New(rand.NewSource(1)),
		scheduled:   make(map[simctl.Handle]*event),
		watches:     make(map[simctl.Handle]*watch),
		signals:     make(map[string]*signal),
		forces:      make(map[string]*force),
		checkpoints: make(map[string]*snapshot),
	}
	return s
}

// Rand exposes the seeded stream for stimulus functions in declared designs.
func (s *Sim) Rand() *rand.Rand {
	return s.rng
}

// Paths returns all declared paths in declaration order (tests use it to
// build catalogs without hardcoding the topology twice).
func (s *Sim) Paths() []string {
	return append([]string(nil), s.order...)
}

func (s *Sim) add(path string, sig *signal) {
	if s.signals[path] != nil {
		panic(fmt.Sprintf("signal %q is already declared", path))
	}
	s.signals[path] = sig
	s.order = append(s.order, path)
}

// AddRegister declares a storage element with no clocked write path:
// it holds whatever was last stored or forced into it.
func (s *Sim) AddRegister(path string, width int, init simctl.Value) {
	s.add(path, &signal{
		desc:   &simctl.SignalDescriptor{Path: path, Kind: simctl.KindRegister, Width: width},
		stored: init,
		init:   init,
	})
}

// AddClockedRegister declares a register rewritten with next() on every
// rising edge of every declared clock.
func (s *Sim) AddClockedRegister(path string, width int, init simctl.Value, next func() simctl.Value) {
	s.add(path, &signal{
		desc:   &simctl.SignalDescriptor{Path: path, Kind: simctl.KindRegister, Width: width},
		stored: init,
		init:   init,
		next:   next,
	})
}

// AddWire declares a combinational net recomputed from driver on every read.
func (s *Sim) AddWire(path string, width int, driver func() simctl.Value) {
	s.add(path, &signal{
		desc:   &simctl.SignalDescriptor{Path: path, Kind: simctl.KindSignal, Width: width},
		driver: driver,
	})
}

// AddEnum declares an enumerated state signal. The numeric encoding of
// labels[i] is i; the encoding width is the smallest width that fits all
// labels.
func (s *Sim) AddEnum(path string, labels []string, init int) {
	width := 1
	for 1<<width < len(labels) {
		width++
	}
	s.add(path, &signal{
		desc: &simctl.SignalDescriptor{
			Path:          path,
			Kind:          simctl.KindEnum,
			Width:         width,
			EncodingWidth: width,
			Len:           len(labels),
		},
		stored: simctl.UintValue(uint64(init), width),
		init:   simctl.UintValue(uint64(init), width),
		labels: labels,
	})
}

// AddInteger declares an integer scalar (32 bit).
func (s *Sim) AddInteger(path string, init int64) {
	s.add(path, &signal{
		desc:   &simctl.SignalDescriptor{Path: path, Kind: simctl.KindInteger, Width: 32},
		stored: simctl.UintValue(uint64(uint32(init)), 32),
		init:   simctl.UintValue(uint64(uint32(init)), 32),
	})
}

// AddArray declares a compound array shape. Elements must be declared
// separately at path(i).
func (s *Sim) AddArray(path string, n int, elem *simctl.SignalDescriptor) {
	s.add(path, &signal{
		desc: &simctl.SignalDescriptor{Path: path, Kind: simctl.KindArray, Len: n, Elem: elem},
	})
}

// AddRecord declares a compound record shape. Fields must be declared
// separately at path/field.
func (s *Sim) AddRecord(path string, fields ...string) {
	s.add(path, &signal{
		desc: &simctl.SignalDescriptor{Path: path, Kind: simctl.KindRecord, Fields: fields},
	})
}

// AddOpaque declares a path whose kind the engine cannot classify
// (simulator-specific leaf types).
func (s *Sim) AddOpaque(path string) {
	s.add(path, &signal{
		desc: &simctl.SignalDescriptor{Path: path, Kind: simctl.KindUnknown},
	})
}

// AddClock declares a clock net toggling with the given full period.
// Rising edges happen at period, 2*period, ...; register next-state
// functions run on every rising edge.
func (s *Sim) AddClock(path string, period simctl.Time) {
	s.AddRegister(path, 1, "0")
	s.clocks = append(s.clocks, clockSpec{path, period})
	s.armClock(clockSpec{path, period})
}

func (s *Sim) armClock(c clockSpec) {
	half := c.period / 2
	if half == 0 {
		half = 1
	}
	var tick func()
	tick = func() {
		sig := s.signals[c.path]
		if sig.stored == "0" {
			sig.stored = "1"
			s.clockEdge()
		} else {
			sig.stored = "0"
		}
		s.Schedule(s.now+half, tick)
	}
	s.Schedule(s.now+half, tick)
}

// clockEdge applies all register next-state functions two-phase: all next
// values are computed from the pre-edge state, then committed. A commit to a
// frozen-forced register clears the force; the design's write path wins.
func (s *Sim) clockEdge() {
	type pending struct {
		sig *signal
		val simctl.Value
	}
	var commits []pending
	for _, path := range s.order {
		sig := s.signals[path]
		if sig.next == nil {
			continue
		}
		commits = append(commits, pending{sig, sig.next()})
	}
	for _, c := range commits {
		c.sig.stored = c.val
		delete(s.forces, c.sig.desc.Path)
	}
}

func (s *Sim) Describe(path string) (*simctl.SignalDescriptor, error) {
	sig := s.signals[path]
	if sig == nil {
		return nil, fmt.Errorf("no such path %q", path)
	}
	return sig.desc, nil
}

func (s *Sim) lookup(path string) (*signal, int, error) {
	if sig := s.signals[path]; sig != nil {
		return sig, -1, nil
	}
	base, bit := simctl.SplitLane(path)
	if bit >= 0 {
		if sig := s.signals[base]; sig != nil && sig.desc.Width > bit {
			return sig, bit, nil
		}
	}
	return nil, -1, fmt.Errorf("no such path %q", path)
}

// rawValue returns the un-forced value of a signal.
func (s *Sim) rawValue(sig *signal) simctl.Value {
	if sig.driver != nil {
		return sig.driver()
	}
	return sig.stored
}

// value returns the signal value with any active force overlaid.
func (s *Sim) value(sig *signal) simctl.Value {
	val := s.rawValue(sig)
	f := s.forces[sig.desc.Path]
	if f == nil {
		return val
	}
	if f.bit < 0 {
		return f.val
	}
	b := []byte(val)
	b[len(b)-1-f.bit] = f.val[0]
	return simctl.Value(b)
}

func (s *Sim) Examine(path string, repr simctl.Repr) (simctl.Value, error) {
	sig, bit, err := s.lookup(path)
	if err != nil {
		return "", err
	}
	val := s.value(sig)
	if bit >= 0 {
		val = simctl.Value(val.Bit(bit))
	}
	switch repr {
	case simctl.Binary:
		return val, nil
	case simctl.Symbolic:
		if sig.labels == nil {
			return val, nil
		}
		enc, err := val.Uint()
		if err != nil || enc >= uint64(len(sig.labels)) {
			return simctl.Value(fmt.Sprintf("#%v", string(val))), nil
		}
		return simctl.Value(sig.labels[enc]), nil
	case simctl.Numeric, simctl.Decimal:
		x, err := val.Uint()
		if err != nil {
			return "", err
		}
		return simctl.Value(strconv.FormatUint(x, 10)), nil
	}
	return "", fmt.Errorf("unknown representation %v", repr)
}

func (s *Sim) Force(path string, val simctl.Value, opts simctl.ForceOpts) error {
	sig, bit, err := s.lookup(path)
	if err != nil {
		return err
	}
	if bit < 0 && val.Width() != sig.desc.Width {
		return fmt.Errorf("force %v: value width %v does not match signal width %v",
			path, val.Width(), sig.desc.Width)
	}
	if bit >= 0 && val.Width() != 1 {
		return fmt.Errorf("force %v: bit lane force needs a 1-bit value", path)
	}
	base := sig.desc.Path
	if opts.Freeze {
		s.forces[base] = &force{val: val, bit: bit, freeze: true}
		if opts.ReleaseAfter > 0 {
			s.Schedule(s.now+opts.ReleaseAfter, func() { s.Release(base) })
		}
	} else {
		// Deposit: write once, the design may overwrite at will.
		// Has no lasting effect on driven wires.
		delete(s.forces, base)
		if sig.driver == nil {
			if bit < 0 {
				sig.stored = val
			} else {
				b := []byte(sig.stored)
				b[len(b)-1-bit] = val[0]
				sig.stored = simctl.Value(b)
			}
		}
	}
	s.runWatches()
	return nil
}

func (s *Sim) Release(path string) error {
	base, _ := simctl.SplitLane(path)
	if s.signals[base] == nil {
		return fmt.Errorf("no such path %q", path)
	}
	f := s.forces[base]
	if f == nil {
		return nil
	}
	sig := s.signals[base]
	if sig.driver == nil {
		// Storage keeps the last driven value when the force lifts.
		if f.bit < 0 {
			sig.stored = f.val
		} else {
			b := []byte(sig.stored)
			b[len(b)-1-f.bit] = f.val[0]
			sig.stored = simctl.Value(b)
		}
	}
	delete(s.forces, base)
	s.runWatches()
	return nil
}

func (s *Sim) Now() simctl.Time {
	return s.now
}

func (s *Sim) Schedule(at simctl.Time, fn func()) simctl.Handle {
	s.seq++
	ev := &event{at: at, seq: s.seq, fn: fn}
	heap.Push(&s.events, ev)
	s.nextHandle++
	s.scheduled[s.nextHandle] = ev
	return s.nextHandle
}

func (s *Sim) Watch(pred simctl.Predicate, fn func()) simctl.Handle {
	s.nextHandle++
	h := s.nextHandle
	s.watches[h] = &watch{pred: pred, fn: fn, last: pred()}
	return h
}

func (s *Sim) Deschedule(h simctl.Handle) {
	if ev := s.scheduled[h]; ev != nil {
		ev.cancelled = true
		delete(s.scheduled, h)
	}
	delete(s.watches, h)
}

func (s *Sim) runWatches() {
	// Deterministic order regardless of map iteration.
	handles := make([]simctl.Handle, 0, len(s.watches))
	for h := range s.watches {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	for _, h := range handles {
		w := s.watches[h]
		if w == nil {
			continue // deregistered by an earlier watcher in this batch
		}
		cur := w.pred()
		fire := cur && !w.last
		w.last = cur
		if fire {
			w.fn()
		}
	}
}

func (s *Sim) Run(until simctl.Time) error {
	s.halted = false
	for !s.halted && s.events.Len() > 0 {
		next := s.events[0]
		if next.at > until {
			break
		}
		heap.Pop(&s.events)
		if next.cancelled {
			continue
		}
		if next.at > s.now {
			s.now = next.at
		}
		next.fn()
		s.runWatches()
	}
	if !s.halted && s.now < until {
		s.now = until
	}
	return nil
}

func (s *Sim) Halt() {
	s.halted = true
}

func (s *Sim) Checkpoint(name string) error {
	snap := &snapshot{
		now:    s.now,
		seed:   s.seed,
		stored: make(map[string]simctl.Value, len(s.signals)),
		forces: make(map[string]*force, len(s.forces)),
	}
	for path, sig := range s.signals {
		snap.stored[path] = sig.stored
	}
	for path, f := range s.forces {
		cp := *f
		snap.forces[path] = &cp
	}
	s.checkpoints[name] = snap
	return nil
}

// Restore resets state, time and forces to the named checkpoint. Pending
// events and watchers are dropped: each run re-registers everything it needs,
// which is how the engine resets shared state between runs. Declared clocks
// are re-armed automatically.
func (s *Sim) Restore(name string) error {
	snap := s.checkpoints[name]
	if snap == nil {
		return fmt.Errorf("no such checkpoint %q", name)
	}
	s.now = snap.now
	s.halted = false
	s.events = nil
	s.scheduled = make(map[simctl.Handle]*event)
	s.watches = make(map[simctl.Handle]*watch)
	for path, sig := range s.signals {
		sig.stored = snap.stored[path]
	}
	s.forces = make(map[string]*force, len(snap.forces))
	for path, f := range snap.forces {
		cp := *f
		s.forces[path] = &cp
	}
	s.seed = snap.seed
	s.rng = rand.New(rand.NewSource(snap.seed))
	for _, c := range s.clocks {
		s.armClock(c)
	}
	return nil
}

func (s *Sim) SetSeed(seed int64) error {
	s.seed = seed
	s.rng = rand.New(rand.NewSource(seed))
	return nil
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(*event)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
