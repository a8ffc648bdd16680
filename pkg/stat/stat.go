// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stat provides prometheus-style metrics (Val type) for instrumenting
// the injection engine, and a per-run registry (Set type) for them.
// There deliberately is no global default registry: every value belongs to one
// run and is discarded with it.
package stat

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
)

type Set struct {
	mu    sync.Mutex
	reg   *prometheus.Registry
	vals  map[string]*Val
	hists map[string]*Histogram
}

type UI struct {
	Name  string
	Desc  string
	Value string
}

func NewSet() *Set {
	return &Set{
		reg:   prometheus.NewRegistry(),
		vals:  make(map[string]*Val),
		hists: make(map[string]*Histogram),
	}
}

// Registry exposes the underlying prometheus registry for promhttp.
func (s *Set) Registry() *prometheus.Registry {
	return s.reg
}

func (s *Set) New(name, desc string) *Val {
	v := &Val{name: name, desc: desc}
	s.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "seufi",
		Name:      promName(name),
		Help:      desc,
	},
		func() float64 { return float64(v.Val()) },
	))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vals[name] != nil {
		panic(fmt.Sprintf("duplicate stat %q", name))
	}
	s.vals[name] = v
	return v
}

// Histogram creates a streaming histogram for value distributions
// (flipped-net bit widths, injection intervals).
func (s *Set) Histogram(name, desc string) *Histogram {
	h := &Histogram{
		name: name,
		desc: desc,
		hist: gohistogram.NewHistogram(64),
	}
	s.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "seufi",
		Name:      promName(name) + "_p50",
		Help:      desc + " (median)",
	},
		func() float64 { return h.Quantile(0.5) },
	))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hists[name] != nil {
		panic(fmt.Sprintf("duplicate histogram %q", name))
	}
	s.hists[name] = h
	return h
}

// Collect returns a snapshot of all values for logging/UI.
func (s *Set) Collect() []UI {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []UI
	for _, v := range s.vals {
		res = append(res, UI{v.name, v.desc, fmt.Sprint(v.Val())})
	}
	for _, h := range s.hists {
		res = append(res, UI{h.name, h.desc, fmt.Sprintf("p50=%.1f p90=%.1f",
			h.Quantile(0.5), h.Quantile(0.9))})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

type Val struct {
	name string
	desc string
	v    atomic.Uint64
}

func (v *Val) Add(n int)   { v.v.Add(uint64(n)) }
func (v *Val) Val() uint64 { return v.v.Load() }

type Histogram struct {
	name string
	desc string
	mu   sync.Mutex
	hist *gohistogram.NumericHistogram
}

func (h *Histogram) Record(val float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hist.Add(val)
}

func (h *Histogram) Quantile(q float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hist.Count() == 0 {
		return 0
	}
	return h.hist.Quantile(q)
}

func promName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}
