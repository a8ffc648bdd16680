// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package netlist builds the flat catalog of injectable leaf signals from a
// hierarchical design description.
package netlist

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/seufi/seufi/pkg/log"
	"github.com/seufi/seufi/simctl"
)

// Net identifies one injectable leaf signal.
type Net struct {
	Path  string
	Kind  simctl.Kind
	Width int
	// EncodingWidth and EnumSize are set for KindEnum nets.
	EncodingWidth int
	EnumSize      int
	// FromCompound records that the net was produced by expanding an
	// array or record (provenance only).
	FromCompound bool
}

// Catalog is the ordered, deduplicated set of injectable nets, partitioned
// into storage elements and combinational signals.
type Catalog struct {
	Registers []*Net
	Signals   []*Net

	prefixMask []bool
	segments   []string
}

// ErrUnknownLeafKind is reported (and the leaf skipped) when the simulator
// describes a leaf the catalog cannot classify. Never fatal.
var ErrUnknownLeafKind = errors.New("unknown leaf kind")

type BuildOpts struct {
	// Exclude drops any path (and its whole subtree) matching one of these
	// glob patterns before expansion.
	Exclude []string
	// InjectionSafe works around a known simulator limitation: forcing an
	// array-of-records element (or a record nested in an array) is
	// unreliable for any index other than 0 in some simulators and can
	// silently corrupt the wrong element. When this shape is detected,
	// only index 0 of the affected dimension is retained.
	//
	// This is a documented workaround for specific simulator products,
	// not a general guarantee; backends without the limitation can leave
	// it disabled.
	InjectionSafe bool
}

// Build recursively expands each root path into injectable leaves.
func Build(sim simctl.Simulator, roots []string, opts BuildOpts) (*Catalog, error) {
	b := &builder{
		sim:  sim,
		opts: opts,
		seen: make(map[string]bool),
		c:    &Catalog{},
	}
	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad exclude pattern %q: %w", pattern, err)
		}
		b.exclude = append(b.exclude, g)
	}
	for _, root := range roots {
		if err := b.expand(root, false); err != nil {
			return nil, err
		}
	}
	if len(b.c.Registers)+len(b.c.Signals) == 0 {
		return nil, fmt.Errorf("no injectable nets under roots %v", roots)
	}
	b.c.computePrefix()
	return b.c, nil
}

type builder struct {
	sim     simctl.Simulator
	opts    BuildOpts
	exclude []glob.Glob
	seen    map[string]bool
	c       *Catalog
}

func (b *builder) excluded(path string) bool {
	for _, g := range b.exclude {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func (b *builder) expand(path string, fromCompound bool) error {
	if b.excluded(path) {
		log.Logf(2, "netlist: excluding %v", path)
		return nil
	}
	desc, err := b.sim.Describe(path)
	if err != nil {
		return fmt.Errorf("describe %v: %w", path, err)
	}
	switch desc.Kind {
	case simctl.KindRegister, simctl.KindSignal, simctl.KindEnum, simctl.KindInteger:
		b.addLeaf(path, desc, fromCompound)
	case simctl.KindArray:
		n := desc.Len
		if b.opts.InjectionSafe && n > 1 && b.unsafeElem(path, desc) {
			log.Logf(1, "netlist: %v is an array of records, keeping only index 0 (injection-safe mode)", path)
			n = 1
		}
		for i := 0; i < n; i++ {
			if err := b.expand(fmt.Sprintf("%v(%v)", path, i), true); err != nil {
				return err
			}
		}
	case simctl.KindRecord:
		for _, field := range desc.Fields {
			if err := b.expand(path+"/"+field, true); err != nil {
				return err
			}
		}
	default:
		log.Logf(0, "netlist: %v: %v (kind %v), leaf skipped", path, ErrUnknownLeafKind, desc.Kind)
	}
	return nil
}

// unsafeElem reports whether the array element shape contains a record.
func (b *builder) unsafeElem(path string, desc *simctl.SignalDescriptor) bool {
	elem := desc.Elem
	if elem == nil {
		var err error
		elem, err = b.sim.Describe(fmt.Sprintf("%v(0)", path))
		if err != nil {
			return false
		}
	}
	for elem != nil {
		switch elem.Kind {
		case simctl.KindRecord:
			return true
		case simctl.KindArray:
			elem = elem.Elem
		default:
			return false
		}
	}
	return false
}

func (b *builder) addLeaf(path string, desc *simctl.SignalDescriptor, fromCompound bool) {
	if b.seen[path] {
		return
	}
	b.seen[path] = true
	net := &Net{
		Path:          path,
		Kind:          desc.Kind,
		Width:         desc.Width,
		EncodingWidth: desc.EncodingWidth,
		EnumSize:      desc.Len,
		FromCompound:  fromCompound,
	}
	if net.Width < 1 {
		net.Width = 1
	}
	if net.Kind == simctl.KindRegister {
		b.c.Registers = append(b.c.Registers, net)
	} else {
		b.c.Signals = append(b.c.Signals, net)
	}
}

// Find looks up a catalog entry by exact path. The second result tells
// whether it is in the register partition.
func (c *Catalog) Find(path string) (*Net, bool) {
	for _, net := range c.Registers {
		if net.Path == path {
			return net, true
		}
	}
	for _, net := range c.Signals {
		if net.Path == path {
			return net, false
		}
	}
	return nil, false
}

// Nets returns all catalog entries, registers first.
func (c *Catalog) Nets() []*Net {
	all := make([]*Net, 0, len(c.Registers)+len(c.Signals))
	all = append(all, c.Registers...)
	return append(all, c.Signals...)
}

// PrefixMask is the per-segment commonality mask: element i is true if path
// segment i is identical across all nets. Used only for display compression.
func (c *Catalog) PrefixMask() []bool {
	return c.prefixMask
}

func (c *Catalog) computePrefix() {
	nets := c.Nets()
	first := splitSegments(nets[0].Path)
	mask := make([]bool, len(first))
	for i := range mask {
		mask[i] = true
	}
	for _, net := range nets[1:] {
		segs := splitSegments(net.Path)
		if len(segs) < len(mask) {
			mask = mask[:len(segs)]
		}
		for i := range mask {
			if mask[i] && segs[i] != first[i] {
				mask[i] = false
			}
		}
	}
	c.prefixMask = mask
	c.segments = first
}

// DisplayPath compresses a net path by dropping the segments that are
// identical across the whole catalog.
func (c *Catalog) DisplayPath(path string) string {
	segs := splitSegments(path)
	var kept []string
	for i, seg := range segs {
		if i < len(c.prefixMask) && c.prefixMask[i] {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return path
	}
	return strings.Join(kept, "/")
}

func splitSegments(path string) []string {
	return strings.Split(strings.TrimPrefix(path, "/"), "/")
}
