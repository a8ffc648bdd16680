// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package run holds the per-run mutable state of the injection engine.
// One Context exists per simulation run; it is created fresh for every seed
// and passed explicitly to every component. Nothing in the engine is process
// global, which is what makes seeded runs reproducible.
package run

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/seufi/seufi/pkg/stat"
)

type Context struct {
	// ID names the run in logs and checkpoint names.
	ID   uuid.UUID
	Seed int64
	// Rand is the run's only RNG stream. Every random decision of every
	// component draws from it, in deterministic order, so the same seed
	// replays the same injection sequence.
	Rand *rand.Rand

	// Injections counts successful, counted injections in this run.
	Injections uint64
	// LastNetPath is the path of the most recently flipped net.
	LastNetPath string

	Stats *stat.Set

	// InjectionLog, if set, receives one row per counted injection.
	InjectionLog *InjectionLog
}

func NewContext(seed int64) *Context {
	return &Context{
		ID:    uuid.New(),
		Seed:  seed,
		Rand:  rand.New(rand.NewSource(seed)),
		Stats: stat.NewSet(),
	}
}
