// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package campaign assembles the injection engine for a configured design
// and runs complete, seeded simulation runs against it.
package campaign

import (
	"fmt"

	"github.com/seufi/seufi/pkg/flip"
	"github.com/seufi/seufi/pkg/impact"
	"github.com/seufi/seufi/pkg/log"
	"github.com/seufi/seufi/pkg/netlist"
	"github.com/seufi/seufi/pkg/run"
	"github.com/seufi/seufi/pkg/sched"
	"github.com/seufi/seufi/pkg/selector"
	"github.com/seufi/seufi/pkg/termination"
	"github.com/seufi/seufi/pkg/vulnscan"
	"github.com/seufi/seufi/simctl"
)

// initCheckpoint is the simulator checkpoint every run starts from.
const initCheckpoint = "seufi-init"

type Campaign struct {
	sim     simctl.Simulator
	cfg     *Config
	netmap  *NetMap
	catalog *netlist.Catalog
}

// New builds the catalog and takes the initial checkpoint. The catalog is
// built once per topology configuration; rebuild the campaign if the netmap
// changes.
func New(sim simctl.Simulator, cfg *Config, nm *NetMap) (*Campaign, error) {
	catalog, err := netlist.Build(sim, nm.Roots, netlist.BuildOpts{
		Exclude:       nm.Exclude,
		InjectionSafe: cfg.InjectionSafe,
	})
	if err != nil {
		return nil, err
	}
	log.Logf(0, "campaign: catalog has %v registers, %v signals",
		len(catalog.Registers), len(catalog.Signals))
	if err := sim.Checkpoint(initCheckpoint); err != nil {
		return nil, fmt.Errorf("initial checkpoint: %w", err)
	}
	return &Campaign{sim: sim, cfg: cfg, netmap: nm, catalog: catalog}, nil
}

func (c *Campaign) Catalog() *netlist.Catalog {
	return c.catalog
}

// Run executes one simulation run from the initial checkpoint with the
// context's seed. It implements vulnscan.RunFunc.
func (c *Campaign) Run(ctx *run.Context, opts vulnscan.RunOpts) (*vulnscan.Result, error) {
	sim, cfg := c.sim, c.cfg
	if err := sim.Restore(initCheckpoint); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	if err := sim.SetSeed(ctx.Seed); err != nil {
		return nil, fmt.Errorf("set seed: %w", err)
	}

	res := &vulnscan.Result{Cause: termination.Cause{Priority: -1, Label: "none"}}
	mon := termination.New(sim, termination.Config{
		UnknownIsCause:  cfg.UnknownIsCause,
		UnknownPriority: cfg.UnknownPriority,
	})
	for _, spec := range c.netmap.Conditions {
		mon.Add(spec.Condition())
	}
	for _, cond := range opts.Extra {
		mon.Add(cond)
	}
	mon.OnCause(func(cause termination.Cause) { res.Cause = cause })
	mon.OnHalt(sim.Halt)
	if err := mon.Start(); err != nil {
		return nil, err
	}
	defer mon.Stop()

	if !opts.Golden {
		engine := flip.NewEngine(sim, flip.Config{
			RegisterFaultDuration: simctl.Time(cfg.RegisterFaultDuration),
			SignalFaultDuration:   simctl.Time(cfg.SignalFaultDuration),
			EnumFallbackZero:      cfg.EnumFallbackZero,
		})
		selCfg := selector.Config{
			RegisterRatio: cfg.RegisterRatio,
			WidthWeighted: cfg.WidthWeighted,
		}
		if !cfg.AllowMultiBitUpset {
			selCfg.AlreadyUpset = engine.Tracker.StillUpset
		}
		sel := selector.New(c.catalog, selCfg)
		obs := impact.NewObserver(ctx, sim, c.netmap.Outputs, c.netmap.State, impact.Checks{
			Outputs: cfg.CheckOutputs == nil || *cfg.CheckOutputs,
			State:   cfg.CheckState == nil || *cfg.CheckState,
		})
		ceiling := cfg.MaxInjections
		if opts.Ceiling > 0 {
			ceiling = opts.Ceiling
		}
		var forced []sched.ForcedInjection
		for _, f := range c.netmap.Forced {
			forced = append(forced, sched.ForcedInjection{At: simctl.Time(f.At), Path: f.Path})
		}
		scheduler, err := sched.New(sim, sel, engine, obs, sched.Config{
			ClockPath:     c.netmap.Clock,
			Period:        cfg.Period,
			RandomPhase:   cfg.RandomPhase,
			Start:         simctl.Time(cfg.Start),
			Stop:          simctl.Time(cfg.Stop),
			MaxInjections: ceiling,
			RetryLimit:    cfg.RetryLimit,
			Forced:        forced,
		})
		if err != nil {
			return nil, err
		}
		if err := scheduler.Start(ctx); err != nil {
			return nil, err
		}
	}

	if err := sim.Run(sim.Now() + simctl.Time(cfg.RunTimeout)); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	res.ExecTime = sim.Now()
	res.Injections = ctx.Injections
	res.LastNetPath = ctx.LastNetPath
	var err error
	if res.FinalState, err = impact.Snapshot(sim, c.netmap.State); err != nil {
		return nil, err
	}
	return res, nil
}

// Scanner builds the vulnerability bisector around this campaign.
func (c *Campaign) Scanner(vulnLog *run.VulnLog) (*vulnscan.Scanner, error) {
	cfg := c.cfg
	rounding := vulnscan.Floor
	if cfg.BisectRounding == "ceil" {
		rounding = vulnscan.Ceil
	}
	maxPriority := 0
	for _, spec := range c.netmap.Conditions {
		if spec.Priority > maxPriority {
			maxPriority = spec.Priority
		}
	}
	return vulnscan.New(vulnscan.Config{
		Run:             c.Run,
		TimeoutPriority: maxPriority + 1,
		Rounding:        rounding,
		ShortCircuit:    cfg.BisectShortCircuit == nil || *cfg.BisectShortCircuit,
		VulnLog:         vulnLog,
	})
}
