// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package simtest

import (
	"encoding/json"
	"fmt"

	"github.com/seufi/seufi/simctl"
)

func init() {
	simctl.Register("test", ctor)
}

type backendConfig struct {
	// ClockPeriod is the full clock period in simulated time units.
	ClockPeriod simctl.Time `json:"clock_period"`
	// Cycles is the number of clock cycles the demo program runs before
	// raising done.
	Cycles uint64 `json:"cycles"`
}

// ctor builds the built-in demo design: a counter core with a program
// counter, a small register file, a control FSM and a done flag. It exists so
// the tools can be exercised without a simulator product attached.
func ctor(env *simctl.Env) (simctl.Simulator, error) {
	cfg := backendConfig{ClockPeriod: 10, Cycles: 200}
	if len(env.Config) > 0 {
		if err := json.Unmarshal(env.Config, &cfg); err != nil {
			return nil, fmt.Errorf("test backend config: %w", err)
		}
	}
	return NewDemoDesign(cfg.ClockPeriod, cfg.Cycles), nil
}

// NewDemoDesign declares the demo topology on a fresh Sim.
// Tests reuse it as a convenient non-trivial design.
func NewDemoDesign(period simctl.Time, cycles uint64) *Sim {
	s := New()
	s.AddClock("/top/clk", period)

	examine := func(path string) uint64 {
		v, err := s.Examine(path, simctl.Binary)
		if err != nil {
			panic(err)
		}
		x, err := v.Uint()
		if err != nil {
			return 0
		}
		return x
	}

	s.AddClockedRegister("/top/core/pc", 16, simctl.UintValue(0, 16), func() simctl.Value {
		pc := examine("/top/core/pc")
		if pc >= cycles {
			return simctl.UintValue(pc, 16)
		}
		return simctl.UintValue(pc+1, 16)
	})
	s.AddEnum("/top/core/ctrl/state", []string{"IDLE", "FETCH", "EXEC", "WRITEBACK", "HALTED"}, 0)
	s.AddArray("/top/core/regfile", 4,
		&simctl.SignalDescriptor{Kind: simctl.KindRegister, Width: 8})
	for i := 0; i < 4; i++ {
		i := i
		path := fmt.Sprintf("/top/core/regfile(%v)", i)
		s.AddClockedRegister(path, 8, simctl.UintValue(0, 8), func() simctl.Value {
			acc := examine(path)
			pc := examine("/top/core/pc")
			return simctl.UintValue((acc+pc+uint64(i))&0xff, 8)
		})
	}
	s.AddWire("/top/core/alu/out", 8, func() simctl.Value {
		a := examine("/top/core/regfile(0)")
		b := examine("/top/core/regfile(1)")
		return simctl.UintValue((a+b)&0xff, 8)
	})
	s.AddWire("/top/done", 1, func() simctl.Value {
		if examine("/top/core/pc") >= cycles {
			return "1"
		}
		return "0"
	})
	s.AddWire("/top/out", 8, func() simctl.Value {
		return simctl.UintValue(examine("/top/core/alu/out"), 8)
	})
	return s
}
