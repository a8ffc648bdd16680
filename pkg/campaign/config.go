// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package campaign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seufi/seufi/pkg/config"
	"github.com/seufi/seufi/pkg/termination"
	"github.com/seufi/seufi/simctl"
)

// Config is the flat option surface of an injection campaign.
// Loaded from a commented-JSON file; unknown fields are rejected.
type Config struct {
	// Simulator is the registered backend type; SimulatorConfig is passed
	// to it opaquely.
	Simulator       string          `json:"simulator"`
	SimulatorConfig json.RawMessage `json:"simulator_config,omitempty"`
	// Netmap is the path of the YAML design description.
	Netmap string `json:"netmap"`

	InjectionLog string `json:"injection_log,omitempty"`
	VulnLog      string `json:"vuln_log,omitempty"`
	// HTTP serves prometheus metrics on this address while running.
	HTTP string `json:"http,omitempty"`

	// InjectionSafe enables the array-of-records workaround in the
	// catalog build.
	InjectionSafe bool `json:"injection_safe"`

	RegisterRatio      float64 `json:"register_ratio"`
	WidthWeighted      bool    `json:"width_weighted"`
	AllowMultiBitUpset bool    `json:"allow_multi_bit_upset"`

	// Fault durations in simulated time units. A register duration of 0
	// means the fault persists until the design overwrites it.
	RegisterFaultDuration uint64 `json:"register_fault_duration"`
	SignalFaultDuration   uint64 `json:"signal_fault_duration"`
	EnumFallbackZero      bool   `json:"enum_fallback_zero"`

	// Period is in clock edges; Start/Stop in simulated time units.
	Period        int    `json:"period"`
	RandomPhase   bool   `json:"random_phase"`
	Start         uint64 `json:"start"`
	Stop          uint64 `json:"stop"`
	MaxInjections uint64 `json:"max_injections"`
	RetryLimit    int    `json:"retry_limit"`

	CheckOutputs *bool `json:"check_outputs,omitempty"`
	CheckState   *bool `json:"check_state,omitempty"`

	// RunTimeout caps a single run in simulated time units in case no
	// termination condition ever fires.
	RunTimeout uint64 `json:"run_timeout"`

	// Bisection policy: midpoint rounding ("floor" or "ceil") and the
	// first-flip short-circuit.
	BisectRounding     string `json:"bisect_rounding,omitempty"`
	BisectShortCircuit *bool  `json:"bisect_short_circuit,omitempty"`

	// UnknownIsCause maps undefined termination-signal reads to their own
	// cause at UnknownPriority instead of ignoring them.
	UnknownIsCause  bool `json:"unknown_is_cause"`
	UnknownPriority int  `json:"unknown_priority"`
}

func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if err := config.LoadFile(filename, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	yes := true
	return &Config{
		Simulator:           "test",
		RegisterRatio:       1,
		SignalFaultDuration: 1,
		Period:              1,
		RetryLimit:          50,
		CheckOutputs:        &yes,
		CheckState:          &yes,
		RunTimeout:          1 << 20,
		BisectRounding:      "floor",
		BisectShortCircuit:  &yes,
	}
}

func (cfg *Config) validate() error {
	if cfg.Simulator == "" {
		return fmt.Errorf("config: no simulator type")
	}
	if cfg.Period <= 0 {
		return fmt.Errorf("config: period must be positive")
	}
	if cfg.BisectRounding != "floor" && cfg.BisectRounding != "ceil" {
		return fmt.Errorf("config: bisect_rounding must be floor or ceil, got %q", cfg.BisectRounding)
	}
	if cfg.Stop != 0 && cfg.Stop <= cfg.Start {
		return fmt.Errorf("config: stop %v is not after start %v", cfg.Stop, cfg.Start)
	}
	return nil
}

// NetMap is the per-design description: injection roots, exclusions, the
// clock, the observed sets and the termination conditions.
type NetMap struct {
	Roots   []string `yaml:"roots"`
	Exclude []string `yaml:"exclude"`
	Clock   string   `yaml:"clock"`
	Outputs []string `yaml:"outputs"`
	State   []string `yaml:"state"`

	Conditions []ConditionSpec `yaml:"conditions"`

	Forced []ForcedSpec `yaml:"forced"`
}

type ConditionSpec struct {
	Label    string `yaml:"label"`
	Priority int    `yaml:"priority"`
	Path     string `yaml:"path"`
	Equals   string `yaml:"equals"`
	At       uint64 `yaml:"at"`
}

type ForcedSpec struct {
	At   uint64 `yaml:"at"`
	Path string `yaml:"path"`
}

func LoadNetMap(filename string) (*NetMap, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read netmap: %w", err)
	}
	nm := new(NetMap)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(nm); err != nil {
		return nil, fmt.Errorf("%v: failed to parse netmap: %w", filename, err)
	}
	if err := nm.validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return nm, nil
}

func (nm *NetMap) validate() error {
	if len(nm.Roots) == 0 {
		return fmt.Errorf("netmap: no injection roots")
	}
	if nm.Clock == "" {
		return fmt.Errorf("netmap: no clock net")
	}
	correct := false
	for _, c := range nm.Conditions {
		if c.Label == "correct" {
			correct = true
		}
		if c.Path == "" && c.At == 0 {
			return fmt.Errorf("netmap: condition %q has neither a signal predicate nor a time", c.Label)
		}
	}
	if !correct {
		return fmt.Errorf("netmap: no condition labeled \"correct\"")
	}
	return nil
}

func (c ConditionSpec) Condition() termination.Condition {
	return termination.Condition{
		Priority: c.Priority,
		Label:    c.Label,
		Path:     c.Path,
		Equals:   simctl.Value(c.Equals),
		At:       simctl.Time(c.At),
	}
}
