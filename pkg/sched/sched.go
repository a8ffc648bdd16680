// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package sched triggers injections synchronized to a simulation clock.
//
// A prescaler counts qualifying clock edges; every Period edges it resets and
// makes one injection attempt. An attempt retries net selection a bounded
// number of times when the force silently fails; exhausting the retries is a
// no-op for that tick, not an error. An explicit list of forced (time, net)
// pairs bypasses the periodic path entirely and may fire outside the
// start/stop window.
package sched

import (
	"fmt"

	"github.com/seufi/seufi/pkg/flip"
	"github.com/seufi/seufi/pkg/impact"
	"github.com/seufi/seufi/pkg/log"
	"github.com/seufi/seufi/pkg/netlist"
	"github.com/seufi/seufi/pkg/run"
	"github.com/seufi/seufi/pkg/selector"
	"github.com/seufi/seufi/pkg/stat"
	"github.com/seufi/seufi/simctl"
)

type State int

const (
	Idle State = iota
	Armed
	Stopped
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Stopped:
		return "stopped"
	}
	return "idle"
}

// ForcedInjection fires one injection into a named net at an absolute time,
// bypassing periodic selection, the start/stop window and the ceiling.
type ForcedInjection struct {
	At   simctl.Time
	Path string
}

type Config struct {
	// ClockPath is the net whose rising edges drive the prescaler.
	ClockPath string
	// Period is the number of qualifying clock edges between injection
	// attempts.
	Period int
	// RandomPhase offsets the first trigger by a random number of edges
	// to decorrelate multiple seeded runs.
	RandomPhase bool
	// Start and Stop bound the periodic injection window. Stop 0 means
	// no stop time.
	Start simctl.Time
	Stop  simctl.Time
	// MaxInjections is the global injection-count ceiling; 0 = unlimited.
	// Reaching it disarms the periodic trigger permanently for the run.
	MaxInjections uint64
	// RetryLimit bounds net re-selection within one attempt.
	RetryLimit int
	Forced     []ForcedInjection
}

type Scheduler struct {
	sim    simctl.Simulator
	cfg    Config
	sel    *selector.Selector
	engine *flip.Engine
	obs    *impact.Observer

	ctx       *run.Context
	state     State
	prescaler int
	clockH    simctl.Handle

	statAttempts *stat.Val
	statRetries  *stat.Val
	statSkipped  *stat.Val
	widthHist    *stat.Histogram
}

func New(sim simctl.Simulator, sel *selector.Selector, engine *flip.Engine, obs *impact.Observer, cfg Config) (*Scheduler, error) {
	if cfg.ClockPath == "" {
		return nil, fmt.Errorf("sched: no clock path configured")
	}
	if cfg.Period <= 0 {
		cfg.Period = 1
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 50
	}
	return &Scheduler{
		sim:    sim,
		cfg:    cfg,
		sel:    sel,
		engine: engine,
		obs:    obs,
	}, nil
}

func (s *Scheduler) State() State {
	return s.state
}

// Start arms the scheduler on ctx. The periodic trigger arms at cfg.Start
// and disarms at cfg.Stop or at the injection ceiling; forced injections are
// scheduled unconditionally.
func (s *Scheduler) Start(ctx *run.Context) error {
	if s.state != Idle {
		return fmt.Errorf("sched: started twice")
	}
	s.ctx = ctx
	s.statAttempts = ctx.Stats.New("injection attempts", "periodic injection attempts made")
	s.statRetries = ctx.Stats.New("injection retries", "net re-selections after a failed force")
	s.statSkipped = ctx.Stats.New("injection ticks skipped", "ticks that exhausted the retry limit")
	s.widthHist = ctx.Stats.Histogram("flipped width", "bit widths of flipped nets")
	if s.cfg.RandomPhase {
		s.prescaler = ctx.Rand.Intn(s.cfg.Period)
	}
	arm := func() {
		s.state = Armed
		s.clockH = s.sim.Watch(s.clockHigh, s.onEdge)
	}
	if s.cfg.Start > s.sim.Now() {
		s.sim.Schedule(s.cfg.Start, arm)
	} else {
		arm()
	}
	if s.cfg.Stop > 0 {
		s.sim.Schedule(s.cfg.Stop, func() { s.disarm("stop time") })
	}
	for _, f := range s.Forced() {
		f := f
		s.sim.Schedule(f.At, func() { s.injectForced(f) })
	}
	return nil
}

func (s *Scheduler) Forced() []ForcedInjection {
	return s.cfg.Forced
}

func (s *Scheduler) clockHigh() bool {
	v, err := s.sim.Examine(s.cfg.ClockPath, simctl.Binary)
	return err == nil && v == "1"
}

func (s *Scheduler) onEdge() {
	if s.state != Armed {
		return
	}
	s.prescaler++
	if s.prescaler < s.cfg.Period {
		return
	}
	s.prescaler = 0
	s.attempt()
}

func (s *Scheduler) disarm(why string) {
	if s.state == Stopped {
		return
	}
	s.state = Stopped
	s.sim.Deschedule(s.clockH)
	log.Logf(1, "sched: periodic trigger disarmed (%v) after %v injections", why, s.ctx.Injections)
}

// attempt makes one counted injection, retrying net selection up to the
// retry limit when a force has no effect.
func (s *Scheduler) attempt() {
	if s.cfg.MaxInjections > 0 && s.ctx.Injections >= s.cfg.MaxInjections {
		s.disarm("injection ceiling")
		return
	}
	s.statAttempts.Add(1)
	for try := 0; try < s.cfg.RetryLimit; try++ {
		net, isReg, err := s.sel.Select(s.ctx.Rand)
		if err != nil {
			log.Logf(2, "sched: %v, skipping tick", err)
			return
		}
		if done, err := s.inject(net, isReg); err != nil {
			log.Logf(0, "sched: injection into %v failed: %v", net.Path, err)
			return
		} else if done {
			if s.cfg.MaxInjections > 0 && s.ctx.Injections >= s.cfg.MaxInjections {
				s.disarm("injection ceiling")
			}
			return
		}
		s.statRetries.Add(1)
	}
	s.statSkipped.Add(1)
	log.Logf(2, "sched: retry limit (%v) exhausted, tick skipped", s.cfg.RetryLimit)
}

func (s *Scheduler) injectForced(f ForcedInjection) {
	net, isReg := findNet(s.sel, f.Path)
	if net == nil {
		log.Logf(0, "sched: forced injection net %v is not in the catalog", f.Path)
		return
	}
	if done, err := s.inject(net, isReg); err != nil {
		log.Logf(0, "sched: forced injection into %v failed: %v", f.Path, err)
	} else if !done {
		log.Logf(1, "sched: forced injection into %v had no effect", f.Path)
	}
}

// inject performs one flip with impact observation. Returns whether the
// injection was counted.
func (s *Scheduler) inject(net *netlist.Net, isReg bool) (bool, error) {
	if err := s.obs.Before(); err != nil {
		return false, err
	}
	ev, err := s.engine.Flip(s.ctx, net, isReg)
	if err != nil {
		return false, err
	}
	if !ev.Success {
		return false, nil
	}
	s.ctx.Injections++
	s.ctx.LastNetPath = net.Path
	s.widthHist.Record(float64(net.Width))
	if err := s.obs.After(s.ctx, ev); err != nil {
		return false, err
	}
	return true, nil
}

func findNet(sel *selector.Selector, path string) (*netlist.Net, bool) {
	return sel.Catalog().Find(path)
}
