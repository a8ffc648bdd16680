// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package simctl provides an abstract simulation-control interface
// (cycle-accurate RTL simulator, emulator, etc) for the rest of the system.
// The injection engine only ever talks to a Simulator; everything specific to
// one simulator product (its describe/examine/force command syntax) lives in a
// backend implementing this interface.
package simctl

import (
	"encoding/json"
	"fmt"
)

// Time is simulated time in simulator-native units.
type Time uint64

// Repr selects the representation in which a signal value is examined.
type Repr int

const (
	// Binary is the bit-string form, one rune per bit, MSB first.
	Binary Repr = iota
	// Symbolic is the display form of enumerated signals (state label).
	Symbolic
	// Numeric is the underlying numeric encoding of enumerated signals,
	// rendered as a decimal string.
	Numeric
	// Decimal is the unsigned decimal form of vector signals.
	Decimal
)

// Kind classifies a described signal. It is decided once, at catalog build
// time, from the backend's structural metadata.
type Kind int

const (
	KindUnknown Kind = iota
	// KindRegister is a storage element: it persists a value across clock
	// edges without a continuous driver.
	KindRegister
	// KindSignal is a combinational net, continuously recomputed from
	// upstream logic.
	KindSignal
	// KindEnum is a signal with a symbolic state and an underlying numeric
	// encoding that differs from its display form.
	KindEnum
	// KindInteger is an integer-typed scalar.
	KindInteger
	// KindArray and KindRecord are compound shapes that the catalog
	// expands; they never appear as catalog leaves.
	KindArray
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "register"
	case KindSignal:
		return "signal"
	case KindEnum:
		return "enum"
	case KindInteger:
		return "integer"
	case KindArray:
		return "array"
	case KindRecord:
		return "record"
	}
	return "unknown"
}

// SignalDescriptor is the structural metadata of one hierarchical path.
// Backends parse whatever textual blob their simulator emits into this
// structured form; nothing above the backend ever pattern-matches on text.
type SignalDescriptor struct {
	Path string
	Kind Kind
	// Width is the bit width of a leaf (>= 1).
	Width int
	// EncodingWidth is the width of the numeric encoding of a KindEnum leaf.
	EncodingWidth int
	// Len and Elem describe a KindArray shape.
	Len  int
	Elem *SignalDescriptor
	// Fields lists the field names of a KindRecord shape.
	Fields []string
}

// ForceOpts controls how a force is applied.
type ForceOpts struct {
	// Freeze holds the forced value against the design until Release
	// (or ReleaseAfter). Without Freeze the value is deposited once and
	// the design may overwrite it at any time.
	Freeze bool
	// ReleaseAfter schedules an automatic release this many time units
	// after the force. Zero means no automatic release.
	ReleaseAfter Time
}

// Handle identifies a registered watcher for Deschedule.
type Handle int64

// Predicate is evaluated by the simulator after every event; a watcher fires
// on a false-to-true transition.
type Predicate func() bool

// Simulator is the simulation-control collaborator consumed by the engine.
// All operations execute at the current simulated instant; time only advances
// inside Run.
type Simulator interface {
	// Describe returns structural metadata for path.
	Describe(path string) (*SignalDescriptor, error)
	// Examine reads the current value of path in the given representation.
	Examine(path string, repr Repr) (Value, error)
	// Force overrides the value of path. Path may address a single bit
	// lane of a vector as "path(i)".
	Force(path string, val Value, opts ForceOpts) error
	// Release removes a force from path.
	Release(path string) error

	Now() Time
	// Schedule runs fn once at absolute simulated time at.
	Schedule(at Time, fn func()) Handle
	// Watch runs fn every time pred transitions from false to true.
	Watch(pred Predicate, fn func()) Handle
	Deschedule(h Handle)
	// Run advances simulated time until the given instant or until Halt.
	Run(until Time) error
	// Halt stops the current Run at the present instant.
	Halt()

	Checkpoint(name string) error
	Restore(name string) error
	SetSeed(seed int64) error
}

// BootError distinguishes backend-creation failures from engine errors.
type BootError struct {
	Title string
	Err   error
}

func (e BootError) Error() string {
	return fmt.Sprintf("%v: %v", e.Title, e.Err)
}

type Env struct {
	Debug bool
	// Config is backend-specific configuration.
	Config json.RawMessage
}

type Ctor func(env *Env) (Simulator, error)

// Types hosts all registered simulator backends.
var Types = make(map[string]Ctor)

func Register(typ string, ctor Ctor) {
	if Types[typ] != nil {
		panic(fmt.Sprintf("simulator backend %q is already registered", typ))
	}
	Types[typ] = ctor
}

// Create instantiates a simulator backend by registered type name.
func Create(typ string, env *Env) (Simulator, error) {
	ctor := Types[typ]
	if ctor == nil {
		return nil, fmt.Errorf("unknown simulator type %q", typ)
	}
	sim, err := ctor(env)
	if err != nil {
		return nil, BootError{Title: fmt.Sprintf("failed to create %v simulator", typ), Err: err}
	}
	return sim, nil
}
