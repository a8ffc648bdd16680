// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package vulnscan isolates the earliest injected fault responsible for an
// observed divergence, by binary search over the permitted injection count
// across repeated seeded-deterministic simulation runs.
//
// Per seed: a fault-free golden run captures the reference execution length
// and final internal state; an unlimited-ceiling run either matches golden
// (seed resolved non-vulnerable) or yields the upper bisection bound; the
// ceiling is then bisected until the bound gap is exactly one, at which
// point fault number low+1 is the earliest responsible.
package vulnscan

import (
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/seufi/seufi/pkg/log"
	"github.com/seufi/seufi/pkg/run"
	"github.com/seufi/seufi/pkg/termination"
	"github.com/seufi/seufi/simctl"
)

// Result is the outcome of one simulation run.
type Result struct {
	Cause       termination.Cause
	ExecTime    simctl.Time
	Injections  uint64
	LastNetPath string
	// FinalState is the post-run snapshot of the configured internal
	// state signal set, in declaration order.
	FinalState []simctl.Value
}

// RunOpts parameterizes one run of the RunFunc collaborator.
type RunOpts struct {
	// Golden disables injection entirely.
	Golden bool
	// Ceiling is the permitted injection count; 0 = no ceiling.
	Ceiling uint64
	// Extra conditions are added to the run's termination monitor
	// (the derived timeout).
	Extra []termination.Condition
}

// RunFunc executes one simulation run from the initial checkpoint with the
// context's seed and returns its outcome. The same seed must reproduce the
// same injection sequence; the bisection is meaningless otherwise.
type RunFunc func(ctx *run.Context, opts RunOpts) (*Result, error)

// GoldenModel is the correctness oracle captured once per seed before any
// fault is injected. Read-only afterwards.
type GoldenModel struct {
	ExecTime   simctl.Time
	FinalState []simctl.Value
}

// Rounding selects the bisection midpoint policy. Both variants are valid;
// they differ only in which probe sequence they take to the same answer.
type Rounding int

const (
	Floor Rounding = iota
	Ceil
)

type Config struct {
	Run RunFunc

	// CorrectLabel is the termination cause the undamaged design must
	// produce. LatentLabel is substituted when a run terminates with the
	// correct cause but divergent internal state. TimeoutLabel names the
	// derived timeout condition.
	CorrectLabel string
	LatentLabel  string
	TimeoutLabel string
	// TimeoutPriority is the highest-numbered priority, reserved for
	// timeouts so that any real symptom wins over a mere timeout.
	TimeoutPriority int
	// TimeoutFactor scales the golden execution time into the timeout.
	TimeoutFactor float64

	Rounding Rounding
	// ShortCircuit resolves a seed immediately when the unlimited run
	// already fails at injection count 1.
	ShortCircuit bool

	// VulnLog, if set, receives one row per resolved seed.
	VulnLog *run.VulnLog
}

// SeedResult is the resolution of one seed.
type SeedResult struct {
	Seed       int64
	Cause      string
	Vulnerable bool
	// FaultCount is the 1-indexed number of the earliest responsible
	// fault for a vulnerable seed, or the total faults injected in the
	// clean run for a non-vulnerable one.
	FaultCount uint64
	// NetPath is the path of the responsible (vulnerable) or last
	// injected (non-vulnerable) net.
	NetPath string
	Probes  int
}

var (
	// ErrBadGolden: the fault-free run did not terminate with the correct
	// cause. The baseline must be correct or the analysis is meaningless.
	ErrBadGolden = errors.New("golden run terminated with a non-correct cause")
	// ErrDeterminism: a bisection probe contradicted an earlier result
	// for the same seed. The simulator or the selection logic is not
	// reproducing the same sequence for the same seed. Fatal, never
	// retried.
	ErrDeterminism = errors.New("determinism violation between bisection probes")
)

type Scanner struct {
	cfg Config
}

func New(cfg Config) (*Scanner, error) {
	if cfg.Run == nil {
		return nil, fmt.Errorf("vulnscan: no run function")
	}
	if cfg.CorrectLabel == "" {
		cfg.CorrectLabel = "correct"
	}
	if cfg.LatentLabel == "" {
		cfg.LatentLabel = "latent"
	}
	if cfg.TimeoutLabel == "" {
		cfg.TimeoutLabel = "timeout"
	}
	if cfg.TimeoutFactor == 0 {
		cfg.TimeoutFactor = 1.2
	}
	return &Scanner{cfg: cfg}, nil
}

// Scan resolves each seed in order. Runs are strictly sequential: each run
// owns the simulator's checkpoint and RNG state.
func (s *Scanner) Scan(seeds []int64) ([]*SeedResult, error) {
	var results []*SeedResult
	for _, seed := range seeds {
		res, err := s.ScanSeed(seed)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Scanner) ScanSeed(seed int64) (*SeedResult, error) {
	cfg := &s.cfg
	probes := 0
	// Every probe gets a fresh context: the RNG stream is reset
	// deterministically from the seed, counters start at zero.
	probe := func(opts RunOpts) (*Result, error) {
		probes++
		res, err := cfg.Run(run.NewContext(seed), opts)
		if err != nil {
			return nil, fmt.Errorf("seed %v probe %v: %w", seed, probes, err)
		}
		log.Logf(1, "vulnscan: seed %v probe %v (golden=%v ceiling=%v): cause %v, %v injections, t=%v",
			seed, probes, opts.Golden, opts.Ceiling, res.Cause, res.Injections, res.ExecTime)
		return res, err
	}

	golden, err := probe(RunOpts{Golden: true})
	if err != nil {
		return nil, err
	}
	if golden.Cause.Label != cfg.CorrectLabel {
		return nil, fmt.Errorf("%w: seed %v cause %v after %v injections",
			ErrBadGolden, seed, golden.Cause, golden.Injections)
	}
	gm := &GoldenModel{ExecTime: golden.ExecTime, FinalState: golden.FinalState}
	timeout := termination.Condition{
		Priority: cfg.TimeoutPriority,
		Label:    cfg.TimeoutLabel,
		At:       simctl.Time(float64(gm.ExecTime) * cfg.TimeoutFactor),
	}
	extra := []termination.Condition{timeout}

	// Unlimited-ceiling probe.
	res, err := probe(RunOpts{Ceiling: 0, Extra: extra})
	if err != nil {
		return nil, err
	}
	if cause, failed := s.classify(res, gm); !failed {
		sr := &SeedResult{
			Seed:       seed,
			Cause:      cause.Label,
			Vulnerable: false,
			FaultCount: res.Injections,
			NetPath:    res.LastNetPath,
			Probes:     probes,
		}
		return sr, s.resolve(sr)
	} else {
		res.Cause = cause
	}
	if res.Injections == 0 {
		// The probe failed without injecting anything while golden
		// passed: the two runs did not replay the same way.
		return nil, fmt.Errorf("%w: seed %v failed with zero injections", ErrDeterminism, seed)
	}

	// Bisect the ceiling. low is a known-safe count, high a known-unsafe
	// one; invariant 0 <= low < high.
	st := &BisectionState{Seed: seed, Low: 0, High: res.Injections}
	lastFail := res
	if st.High == 1 && !cfg.ShortCircuit {
		// First flip already fails. The cautious policy variant
		// confirms with one capped probe instead of trusting the
		// unlimited run; a pass here is a determinism violation.
		res, err := probe(RunOpts{Ceiling: 1, Extra: extra})
		if err != nil {
			return nil, err
		}
		cause, failed := s.classify(res, gm)
		if !failed {
			return nil, fmt.Errorf("%w: seed %v passed at count 1 after failing at count 1",
				ErrDeterminism, seed)
		}
		res.Cause = cause
		lastFail = res
	}
	for st.High-st.Low > 1 {
		mid := st.midpoint(cfg.Rounding)
		res, err := probe(RunOpts{Ceiling: mid, Extra: extra})
		if err != nil {
			return nil, err
		}
		cause, failed := s.classify(res, gm)
		if failed {
			if res.Injections <= st.Low {
				return nil, fmt.Errorf("%w: seed %v failed at count %v, known safe up to %v",
					ErrDeterminism, seed, res.Injections, st.Low)
			}
			res.Cause = cause
			st.High = res.Injections
			lastFail = res
		} else {
			if res.Injections >= st.High {
				return nil, fmt.Errorf("%w: seed %v passed at count %v, known unsafe at %v",
					ErrDeterminism, seed, res.Injections, st.High)
			}
			if res.Injections > st.Low {
				st.Low = res.Injections
			} else {
				// The run injected fewer faults than the
				// known-safe bound allows; the ceiling cannot
				// be lowered further from this side.
				st.Low = mid
				if st.Low >= st.High {
					return nil, fmt.Errorf("%w: seed %v bounds collapsed", ErrDeterminism, seed)
				}
			}
		}
	}
	sr := &SeedResult{
		Seed:       seed,
		Cause:      lastFail.Cause.Label,
		Vulnerable: true,
		FaultCount: st.Low + 1,
		NetPath:    lastFail.LastNetPath,
		Probes:     probes,
	}
	return sr, s.resolve(sr)
}

// classify decides whether a run outcome counts as a failure against the
// golden model. A correct cause with divergent internal state is
// re-classified as the distinct latent cause: no output or timing symptom
// yet, but the damage is in the state.
func (s *Scanner) classify(res *Result, gm *GoldenModel) (termination.Cause, bool) {
	if res.Cause.Label != s.cfg.CorrectLabel {
		return res.Cause, true
	}
	if !cmp.Equal(res.FinalState, gm.FinalState) {
		log.Logf(1, "vulnscan: correct cause but internal state diverges from golden: %v",
			cmp.Diff(gm.FinalState, res.FinalState))
		return termination.Cause{Priority: res.Cause.Priority, Label: s.cfg.LatentLabel}, true
	}
	return res.Cause, false
}

func (s *Scanner) resolve(sr *SeedResult) error {
	log.Logf(0, "vulnscan: seed %v resolved: cause=%v faults=%v net=%v vulnerable=%v (%v probes)",
		sr.Seed, sr.Cause, sr.FaultCount, sr.NetPath, sr.Vulnerable, sr.Probes)
	if s.cfg.VulnLog == nil {
		return nil
	}
	return s.cfg.VulnLog.Append(sr.Seed, sr.Cause, sr.FaultCount, sr.NetPath)
}

// BisectionState tracks the bounds for one seed.
// Invariant: 0 <= Low < High once both bounds are known.
type BisectionState struct {
	Seed int64
	Low  uint64
	High uint64
}

func (st *BisectionState) midpoint(r Rounding) uint64 {
	if r == Ceil {
		return st.Low + (st.High-st.Low+1)/2
	}
	return st.Low + (st.High-st.Low)/2
}
