// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package selector draws the next net to corrupt from a catalog.
//
// Selection is two-level. Level one picks the register or signal sub-list by
// the configured Register:Signal ratio. Level two optionally weights by bit
// width: nets are grouped by width, each group weighted width*groupSize, a
// group is picked by cumulative-weight roulette and the net uniformly within
// it. Wide registers get proportionally more exposure without a flat per-bit
// enumeration.
package selector

import (
	"errors"
	"math/rand"
	"sort"

	"golang.org/x/exp/slices"

	"github.com/seufi/seufi/pkg/netlist"
)

var ErrNoCandidates = errors.New("no selectable nets")

type Config struct {
	// RegisterRatio is the Register:Signal selection weight. The draw is
	// uniform in [0, ratio+1) and picks a register if it lands below 1,
	// so ratio=1 gives 50/50 and larger ratios favor signals.
	RegisterRatio float64
	// WidthWeighted enables bit-width weighting within the sub-list.
	WidthWeighted bool
	// AlreadyUpset, if set, excludes registers that still hold an
	// injected value (multi-bit-upset disabled).
	AlreadyUpset func(*netlist.Net) bool
}

type Selector struct {
	cfg     Config
	catalog *netlist.Catalog
}

func New(catalog *netlist.Catalog, cfg Config) *Selector {
	if cfg.RegisterRatio <= 0 {
		cfg.RegisterRatio = 1
	}
	return &Selector{cfg: cfg, catalog: catalog}
}

// Catalog returns the catalog the selector draws from.
func (s *Selector) Catalog() *netlist.Catalog {
	return s.catalog
}

// Select draws one (net, isRegister) pair.
func (s *Selector) Select(r *rand.Rand) (*netlist.Net, bool, error) {
	regs := s.catalog.Registers
	if s.cfg.AlreadyUpset != nil {
		regs = filterOut(regs, s.cfg.AlreadyUpset)
	}
	sigs := s.catalog.Signals
	var isReg bool
	switch {
	case len(regs) == 0 && len(sigs) == 0:
		return nil, false, ErrNoCandidates
	case len(regs) == 0:
		isReg = false
	case len(sigs) == 0:
		isReg = true
	default:
		isReg = r.Float64()*(s.cfg.RegisterRatio+1) < 1
	}
	list := sigs
	if isReg {
		list = regs
	}
	if !s.cfg.WidthWeighted {
		return list[r.Intn(len(list))], isReg, nil
	}
	return chooseWeighted(r, list), isReg, nil
}

func filterOut(nets []*netlist.Net, drop func(*netlist.Net) bool) []*netlist.Net {
	var kept []*netlist.Net
	for _, net := range nets {
		if !drop(net) {
			kept = append(kept, net)
		}
	}
	return kept
}

// chooseWeighted picks a width group by cumulative-weight binary search,
// then a net uniformly within the group.
func chooseWeighted(r *rand.Rand, nets []*netlist.Net) *netlist.Net {
	byWidth := make(map[int][]*netlist.Net)
	for _, net := range nets {
		byWidth[net.Width] = append(byWidth[net.Width], net)
	}
	widths := make([]int, 0, len(byWidth))
	for w := range byWidth {
		widths = append(widths, w)
	}
	slices.Sort(widths)
	cum := make([]int64, len(widths))
	var sum int64
	for i, w := range widths {
		sum += int64(w) * int64(len(byWidth[w]))
		cum[i] = sum
	}
	x := r.Int63n(sum) + 1
	i := sort.Search(len(cum), func(i int) bool { return cum[i] >= x })
	group := byWidth[widths[i]]
	return group[r.Intn(len(group))]
}
