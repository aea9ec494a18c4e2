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

// Package interp evaluates modules instruction by instruction. Values are
// untyped 64-bit patterns, one word per lane, so the same machine runs a
// module before and after hardening and the two runs can be compared on
// their observable behavior: the external calls they issue, the memory
// they leave behind and the value they return.
//
// Checkpoint helpers are not externals; calls to them route into the lanes
// package, so a run exercises the same voting logic the hardened binary
// would. A Fault can be armed to corrupt one lane of a chosen value
// mid-run and watch the checkpoints catch it.
package interp

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tudinfse/elzar/ir"
	"github.com/tudinfse/elzar/lanes"
)

// val is one evaluated value: a single word for scalars, a word per lane
// for vectors, a word per field for structs.
type val []uint64

// ExternFunc binds a declared function to a host implementation. Arguments
// and result travel as raw 64-bit patterns.
type ExternFunc func(args []uint64) (uint64, error)

// Fault corrupts one lane of a named value the first time the value is
// computed, by xoring Flip into lane Lane.
type Fault struct {
	Func  string
	Value string
	Lane  int
	Flip  uint64
}

// VoteError reports a checkpoint that could not recover a majority.
type VoteError struct {
	Op     string
	Detail string
}

func (e *VoteError) Error() string {
	return fmt.Sprintf("no majority in %s: %s", e.Op, e.Detail)
}

const defaultMaxSteps = 1 << 20

// Machine executes one module against a flat memory. It is not safe for
// concurrent use.
type Machine struct {
	// Externs maps declared function names to host bindings. Calls to
	// unbound declarations fail the run.
	Externs map[string]ExternFunc

	// MaxSteps bounds the number of executed instructions per Run.
	MaxSteps int

	// Fault, when non-nil, is injected once on its first match.
	Fault *Fault

	// Trace records every external call in issue order.
	Trace []string

	mod        *ir.Module
	mem        []byte
	brk        uint64
	globals    map[string]uint64
	funcAddr   map[*ir.Func]uint64
	funcByAddr map[uint64]*ir.Func
	log        *logrus.Entry
	steps      int
	faultDone  bool
}

// New lays out the module's globals and function addresses in a fresh
// memory and returns a machine ready to Run.
func New(m *ir.Module) (*Machine, error) {
	mc := &Machine{
		Externs:  map[string]ExternFunc{},
		MaxSteps: defaultMaxSteps,
		mod:      m,
		// The low page stays unmapped so nil and near-nil
		// dereferences fault.
		brk:        16,
		globals:    map[string]uint64{},
		funcAddr:   map[*ir.Func]uint64{},
		funcByAddr: map[uint64]*ir.Func{},
		log:        logrus.WithField("component", "interp"),
	}
	for _, g := range m.Globals() {
		size := g.Elem.SizeBytes()
		addr := mc.alloc(size)
		mc.globals[g.Name()] = addr
		if g.Init != nil {
			x := encodeConst(g.Init)
			if err := mc.storeBits(addr, x, size); err != nil {
				return nil, errors.Wrapf(err, "global @%s", g.Name())
			}
		}
	}
	for _, f := range m.Funcs() {
		addr := mc.alloc(8)
		mc.funcAddr[f] = addr
		mc.funcByAddr[addr] = f
	}
	return mc, nil
}

// GlobalAddr returns the address a named global was laid out at.
func (mc *Machine) GlobalAddr(name string) (uint64, bool) {
	a, ok := mc.globals[name]
	return a, ok
}

// Peek reads size bytes little-endian. It is a test and debugging hook.
func (mc *Machine) Peek(addr uint64, size int) (uint64, error) {
	return mc.loadBits(addr, size)
}

// Run executes the named function with the given argument patterns and
// returns its result pattern. A checkpoint that cannot recover a majority
// aborts the run with a *VoteError instead of terminating the process.
func (mc *Machine) Run(name string, args ...uint64) (ret uint64, err error) {
	f := mc.mod.Func(name)
	if f == nil || f.IsDecl() {
		return 0, errors.Errorf("no defined function @%s", name)
	}
	mc.steps = 0
	mc.log.WithField("func", name).Debug("run")

	prev := lanes.SetExitFunc(func(op, detail string) {
		panic(&VoteError{Op: op, Detail: detail})
	})
	defer lanes.SetExitFunc(prev)
	defer func() {
		if r := recover(); r != nil {
			ve, ok := r.(*VoteError)
			if !ok {
				panic(r)
			}
			err = ve
		}
	}()

	vargs := make([]val, len(args))
	for i, a := range args {
		vargs[i] = val{a}
	}
	out, err := mc.exec(f, vargs)
	if err != nil {
		return 0, err
	}
	if len(out) > 0 {
		ret = out[0]
	}
	return ret, nil
}

type frame struct {
	fn   *ir.Func
	vals map[ir.Value]val
}

func (mc *Machine) exec(f *ir.Func, args []val) (val, error) {
	if len(args) != len(f.Params()) {
		return nil, errors.Errorf("@%s takes %d arguments, got %d",
			f.Name(), len(f.Params()), len(args))
	}
	fr := &frame{fn: f, vals: map[ir.Value]val{}}
	for i, p := range f.Params() {
		fr.vals[p] = normVal(args[i], p.Type())
	}

	blk := f.Entry()
	var prev *ir.Block
	for {
		// Merge values are staged against the incoming edge before any
		// of them is committed, so merges that read each other stay
		// consistent.
		phis := blk.Phis()
		staged := make([]val, len(phis))
		for i, phi := range phis {
			v := phi.IncomingFor(prev)
			if v == nil {
				return nil, errors.Errorf("merge %s in %s of @%s has no entry for the taken edge",
					phi.Ident(), blk.Name(), f.Name())
			}
			x, err := mc.eval(fr, v)
			if err != nil {
				return nil, err
			}
			staged[i] = x
		}
		for i, phi := range phis {
			fr.vals[phi] = staged[i]
		}

		for _, in := range blk.Instrs() {
			if in.Op() == ir.OpPhi {
				continue
			}
			mc.steps++
			if mc.steps > mc.MaxSteps {
				return nil, errors.Errorf("step budget exhausted in @%s", f.Name())
			}
			if in.IsTerm() {
				next, out, err := mc.terminate(fr, in)
				if err != nil {
					return nil, errors.Wrapf(err, "block %s of @%s", blk.Name(), f.Name())
				}
				if next == nil {
					return out, nil
				}
				prev, blk = blk, next
				break
			}
			out, err := mc.step(fr, in)
			if err != nil {
				return nil, errors.Wrapf(err, "block %s of @%s", blk.Name(), f.Name())
			}
			if out != nil {
				fr.vals[in] = mc.applyFault(f, in, out)
			}
		}
	}
}

// terminate executes a terminator. A nil next block means the function
// returned with the given value.
func (mc *Machine) terminate(fr *frame, in *ir.Instr) (*ir.Block, val, error) {
	switch in.Op() {
	case ir.OpRet:
		if in.NumArgs() == 0 {
			return nil, nil, nil
		}
		out, err := mc.eval(fr, in.Arg(0))
		return nil, out, err
	case ir.OpBr:
		return in.Targets[0], nil, nil
	case ir.OpCondBr:
		c, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, nil, err
		}
		if c[0] != 0 {
			return in.Targets[0], nil, nil
		}
		return in.Targets[1], nil, nil
	case ir.OpSwitch:
		s, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, nil, err
		}
		bits := elemBits(in.Arg(0).Type())
		next := in.Targets[0]
		for k, cv := range in.Cases {
			if s[0] == norm(uint64(cv), bits) {
				next = in.Targets[1+k]
				break
			}
		}
		return next, nil, nil
	case ir.OpUnreachable:
		return nil, nil, errors.New("unreachable executed")
	}
	return nil, nil, errors.Errorf("terminator %s is not supported", in.Op())
}

func (mc *Machine) applyFault(f *ir.Func, in *ir.Instr, out val) val {
	ft := mc.Fault
	if ft == nil || mc.faultDone || f.Name() != ft.Func || in.Name() != ft.Value {
		return out
	}
	mc.faultDone = true
	out = append(val(nil), out...)
	l := ft.Lane
	if l < 0 || l >= len(out) {
		l = 0
	}
	out[l] = norm(out[l]^ft.Flip, elemBits(in.Type()))
	mc.log.WithFields(logrus.Fields{
		"func": f.Name(), "value": in.Name(), "lane": l,
	}).Debug("fault injected")
	return out
}

// eval resolves an operand in the current frame.
func (mc *Machine) eval(fr *frame, v ir.Value) (val, error) {
	switch x := v.(type) {
	case *ir.Const:
		return val{encodeConst(x)}, nil
	case *ir.Global:
		return val{mc.globals[x.Name()]}, nil
	case *ir.Func:
		return val{mc.funcAddr[x]}, nil
	case *ir.InlineAsm:
		return nil, errors.New("inline asm has no value")
	}
	if got, ok := fr.vals[v]; ok {
		return got, nil
	}
	return nil, errors.Errorf("use of undefined value %s", v.Ident())
}

func (mc *Machine) invoke(f *ir.Func, args []val) (val, error) {
	name := f.Name()
	if strings.HasPrefix(name, "ELZAR_") {
		return mc.helper(name, args)
	}
	if !f.IsDecl() {
		return mc.exec(f, args)
	}
	ext := mc.Externs[name]
	if ext == nil {
		return nil, errors.Errorf("call to unbound external @%s", name)
	}
	flat := make([]uint64, len(args))
	for i, a := range args {
		if len(a) != 1 {
			return nil, errors.Errorf("external @%s takes scalar arguments", name)
		}
		flat[i] = a[0]
	}
	mc.Trace = append(mc.Trace, traceLine(name, flat))
	r, err := ext(flat)
	if err != nil {
		return nil, errors.Wrapf(err, "external @%s", name)
	}
	if ret := f.Sig().Ret; ret != ir.Void {
		return val{norm(r, elemBits(ret))}, nil
	}
	return nil, nil
}

func traceLine(name string, args []uint64) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprintf("%d", a)
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

// alloc reserves n bytes rounded up to 8 and returns their address.
func (mc *Machine) alloc(n int) uint64 {
	addr := mc.brk
	mc.brk += (uint64(n) + 7) &^ 7
	if need := int(mc.brk); need > len(mc.mem) {
		mc.mem = append(mc.mem, make([]byte, need-len(mc.mem))...)
	}
	return addr
}

func (mc *Machine) inBounds(addr uint64, n int) error {
	if addr < 16 {
		return errors.Errorf("nil page access at %#x", addr)
	}
	if addr+uint64(n) > uint64(len(mc.mem)) || addr+uint64(n) < addr {
		return errors.Errorf("access at %#x+%d is out of bounds", addr, n)
	}
	return nil
}

func (mc *Machine) loadBits(addr uint64, size int) (uint64, error) {
	if err := mc.inBounds(addr, size); err != nil {
		return 0, err
	}
	var x uint64
	for i := 0; i < size; i++ {
		x |= uint64(mc.mem[addr+uint64(i)]) << (8 * i)
	}
	return x, nil
}

func (mc *Machine) storeBits(addr, x uint64, size int) error {
	if err := mc.inBounds(addr, size); err != nil {
		return err
	}
	for i := 0; i < size; i++ {
		mc.mem[addr+uint64(i)] = byte(x >> (8 * i))
	}
	return nil
}
