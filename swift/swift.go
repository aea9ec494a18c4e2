// Copyright 2025 elzar Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package swift hardens a scalar IR module against transient single-lane
// faults by instruction duplication across SIMD lanes.
//
// Every scalar computation is replaced by a lane-wise equivalent over a
// redundant vector holding several copies of the value: four 64-bit lanes,
// eight 32-bit lanes and so on, filling a fixed 256-bit redundancy width
// (or always two lanes under the simplified profile). As long as no fault
// occurs, all lanes stay equal. Wherever a single corrupted lane could
// escape into observable state (a store, a load address, an atomic, a call
// argument, a return value, a branch decision) the redundant value is
// collapsed through a voting checkpoint: a majority vote repairs the group
// under the single-fault assumption, then one lane proceeds. Conditional
// branches use a cheaper aggregate test on the agreement path and fall into
// a majority-vote correction block only when the lanes disagree.
//
// The transformation runs in three sequential phases per function:
// duplication (walk in dominance order, build the redundant counterparts
// and the checkpoint worklist), checkpoint insertion (reverse order), and
// cleanup (delete the replaced originals). Merge nodes get an empty
// redundant skeleton during the walk and are rewired in a second pass, so
// loop back-edges need no special casing.
//
// Checkpoints call out to ELZAR_-prefixed helper functions, declared on
// demand; the interp package binds them to the lanes runtime when
// executing hardened modules.
//
// Typical use:
//
//	m, err := ir.Parse("prog", src)
//	...
//	if err := swift.Transform(m, swift.DefaultConfig()); err != nil {
//		...
//	}
//	fmt.Print(m)
package swift

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tudinfse/elzar/ir"
)

// helpers holds the module's checkpoint helper declarations, resolved once
// per Transform and shared read-only across functions.
type helpers struct {
	checkI8, checkI16, checkI32, checkI64 *ir.Func
	checkPtr, checkF32, checkF64          *ir.Func
	mask, ptestz, ptestnzc                *ir.Func
}

// checkFor returns the voting helper for a redundant vector's element
// type, or nil for widths outside the helper set.
func (h *helpers) checkFor(elem *ir.Type) *ir.Func {
	switch elem.Kind {
	case ir.KInt:
		switch elem.Bits {
		case 8:
			return h.checkI8
		case 16:
			return h.checkI16
		case 32:
			return h.checkI32
		case 64:
			return h.checkI64
		}
		return nil
	case ir.KPtr:
		return h.checkPtr
	case ir.KFloat:
		return h.checkF32
	case ir.KDouble:
		return h.checkF64
	}
	return nil
}

// ensureHelpers declares the checkpoint helpers in m if absent. It runs
// before any function transforms, so parallel transformations only read
// the module's function table.
func ensureHelpers(m *ir.Module, p Profile) *helpers {
	vec := func(t *ir.Type) *ir.Type {
		n, _, _ := laneCountFor(p, t)
		return ir.VecOf(t, n)
	}
	check := func(name string, t *ir.Type) *ir.Func {
		v := vec(t)
		return declare(m, name, ir.FuncOf(v, []*ir.Type{v}, false))
	}
	cond := vec(ir.I64)
	return &helpers{
		checkI8:  check("ELZAR_check_i8", ir.I8),
		checkI16: check("ELZAR_check_i16", ir.I16),
		checkI32: check("ELZAR_check_i32", ir.I32),
		checkI64: check("ELZAR_check_i64", ir.I64),
		checkPtr: check("ELZAR_check_ptr", ir.Ptr),
		checkF32: check("ELZAR_check_float", ir.Float),
		checkF64: check("ELZAR_check_double", ir.Double),
		mask:     declare(m, "ELZAR_mask_i64", ir.FuncOf(cond, []*ir.Type{cond}, false)),
		ptestz:   declare(m, "ELZAR_ptestz", ir.FuncOf(ir.I32, []*ir.Type{cond, cond}, false)),
		ptestnzc: declare(m, "ELZAR_ptestnzc", ir.FuncOf(ir.I32, []*ir.Type{cond, cond}, false)),
	}
}

func declare(m *ir.Module, name string, sig *ir.Type) *ir.Func {
	if f := m.Func(name); f != nil {
		return f
	}
	return m.NewFunc(name, sig)
}

// Transform hardens every defined function of m in place. Declarations and
// pass-through functions are left alone. A nil cfg means DefaultConfig.
// The first failing function aborts the run; its in-place mutations are
// partial and the module must then be discarded.
func Transform(m *ir.Module, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	h := ensureHelpers(m, cfg.Profile)
	log := logrus.WithField("module", m.Name)

	work := lo.Filter(m.Funcs(), func(f *ir.Func, _ int) bool {
		return !f.IsDecl() && !cfg.passesThrough(f.Name())
	})
	run := func(f *ir.Func) error {
		log.WithField("func", f.Name()).Debug("hardening")
		return errors.Wrapf(transformFunc(f, cfg, h), "function %s", f.Ident())
	}

	if cfg.Parallel > 1 {
		var g errgroup.Group
		g.SetLimit(cfg.Parallel)
		for _, f := range work {
			f := f // per-iteration copy: the go.mod language version predates Go 1.22 loop scoping
			g.Go(func() error { return run(f) })
		}
		return g.Wait()
	}
	for _, f := range work {
		if err := run(f); err != nil {
			return err
		}
	}
	return nil
}
