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

package swift

import (
	"github.com/sirupsen/logrus"

	"github.com/tudinfse/elzar/ir"
)

// transformer carries one function's transformation state. It is built
// fresh per function and never shared.
type transformer struct {
	cfg *Config
	fn  *ir.Func
	bld *ir.Builder
	vm  *valueMap
	h   *helpers
	log *logrus.Entry

	// checks is the deferred checkpoint worklist, consumed in reverse.
	checks []checkpoint
	// phis pairs each original merge node with its redundant skeleton
	// for the rewiring pass.
	phis []phiPair
	// origs lists replaced instructions in definition order for
	// cleanup.
	origs []*ir.Instr

	condLanes int
	condType  *ir.Type
}

type phiPair struct {
	orig, red *ir.Instr
}

func transformFunc(f *ir.Func, cfg *Config, h *helpers) error {
	condLanes, _, err := laneCountFor(cfg.Profile, ir.I64)
	if err != nil {
		return err
	}
	tr := &transformer{
		cfg:       cfg,
		fn:        f,
		bld:       ir.NewBuilder(f),
		vm:        newValueMap(),
		h:         h,
		log:       logrus.WithField("func", f.Name()),
		condLanes: condLanes,
		condType:  ir.VecOf(ir.I64, condLanes),
	}
	if err := tr.duplicate(); err != nil {
		return err
	}
	if err := tr.rewirePhis(); err != nil {
		return err
	}
	if err := tr.insertChecks(); err != nil {
		return err
	}
	return tr.cleanup()
}

// duplicate walks the function in dominance order, emitting a redundant
// counterpart for every instruction and recording checkpoints. Blocks
// unreachable from the entry are visited last, best-effort.
func (tr *transformer) duplicate() error {
	// Snapshot the original instruction lists before any mutation, so
	// freshly emitted broadcasts and splats are never revisited.
	blocks := tr.fn.DomOrder()
	worklist := make([][]*ir.Instr, len(blocks))
	for i, b := range blocks {
		worklist[i] = append([]*ir.Instr(nil), b.Instrs()...)
	}

	if err := tr.broadcastParams(); err != nil {
		return err
	}
	for bi := range blocks {
		for _, in := range worklist[bi] {
			if err := tr.visit(in); err != nil {
				return err
			}
		}
	}
	tr.log.WithFields(logrus.Fields{
		"checkpoints": len(tr.checks),
		"replaced":    len(tr.origs),
	}).Debug("duplication done")
	return nil
}

// broadcastParams seeds the map: every parameter is broadcast at the top of
// the entry block.
func (tr *transformer) broadcastParams() error {
	tr.bld.SetBefore(tr.fn.Entry().First())
	for _, p := range tr.fn.Params() {
		if !p.Type().IsScalar() {
			return unsupportedf("parameter %s of %s has non-scalar type %s",
				p.Ident(), tr.fn.Ident(), p.Type())
		}
		red, err := tr.broadcastScalar(p.Name()+".r", p)
		if err != nil {
			return err
		}
		if err := tr.vm.define(p, red); err != nil {
			return err
		}
	}
	return nil
}

// broadcastScalar emits the redundant counterpart of a scalar value at the
// current insertion point. Booleans are sign-extended to 64 bits first so
// they land in the canonical condition encoding.
func (tr *transformer) broadcastScalar(name string, v ir.Value) (ir.Value, error) {
	t := v.Type()
	if t == ir.I1 {
		wide := tr.bld.Conv(ir.OpSExt, name+".x", ir.I64, v)
		return tr.bld.Broadcast(name, wide, tr.condLanes), nil
	}
	n, err := tr.laneCount(t)
	if err != nil {
		return nil, err
	}
	return tr.bld.Broadcast(name, v, n), nil
}

// resolve returns the redundant counterpart of an operand, per the map
// rules: identity for already lane-packed values, a fresh splat for
// constants and globals, nil (no error) for non-numeric values, a required
// map lookup for everything else. Splats are emitted at the current
// insertion point.
func (tr *transformer) resolve(v ir.Value, user *ir.Instr) (ir.Value, error) {
	if v.Type().IsVector() {
		return v, nil
	}
	switch x := v.(type) {
	case *ir.Const:
		return tr.splatConst(x, user)
	case *ir.Global:
		n, err := tr.laneCount(ir.Ptr)
		if err != nil {
			return nil, err
		}
		return tr.bld.Broadcast(x.Name()+".r", x, n), nil
	case *ir.Func, *ir.InlineAsm, *ir.Block:
		return nil, nil
	case *ir.Instr:
		if x.Op() == ir.OpLandingPad {
			return nil, nil
		}
	}
	if red := tr.vm.lookup(v); red != nil {
		return red, nil
	}
	if v.Type().IsAggregate() {
		return nil, unsupportedf("aggregate operand %s of %s in %s",
			v.Ident(), user.Op(), tr.fn.Ident())
	}
	return nil, internalf("no redundant value for %s consumed by %s in %s",
		v.Ident(), user.Op(), tr.fn.Ident())
}

// splatConst broadcasts a constant. Booleans splat their sign-extended
// 64-bit encoding; address-computation indexes splat at the pointer lane
// count so the consumer sees uniform lane counts.
func (tr *transformer) splatConst(c *ir.Const, user *ir.Instr) (ir.Value, error) {
	t := c.Type()
	if t == ir.I1 {
		enc := ir.ConstInt(ir.I64, -(c.Int & 1))
		return tr.bld.Broadcast("splat", enc, tr.condLanes), nil
	}
	var n int
	var err error
	if user != nil && user.Op() == ir.OpGEP {
		n, err = tr.laneCount(ir.Ptr)
	} else {
		n, err = tr.laneCount(t)
	}
	if err != nil {
		return nil, err
	}
	return tr.bld.Broadcast("splat", c, n), nil
}

// operand resolves argument k of in, requiring a redundant value.
func (tr *transformer) operand(in *ir.Instr, k int) (ir.Value, error) {
	rv, err := tr.resolve(in.Arg(k), in)
	if err != nil {
		return nil, err
	}
	if rv == nil {
		return nil, internalf("operand %s of %s has no redundant form in %s",
			in.Arg(k).Ident(), in.Op(), tr.fn.Ident())
	}
	return rv, nil
}

// replace records in's redundant counterpart and schedules the original for
// deletion.
func (tr *transformer) replace(in *ir.Instr, red ir.Value) error {
	if err := tr.vm.define(in, red); err != nil {
		return err
	}
	tr.origs = append(tr.origs, in)
	return nil
}

// keepResult broadcasts the scalar result of an instruction that stays in
// place, so later consumers find a redundant form.
func (tr *transformer) keepResult(in *ir.Instr) error {
	tr.bld.SetAfter(in)
	red, err := tr.broadcastScalar(in.Name()+".r", in)
	if err != nil {
		return err
	}
	return tr.vm.define(in, red)
}

// canonicalize widens a redundant <n x i1> flag vector into the canonical
// condition encoding, each lane of an i64 vector all-ones or all-zero.
// ebits is the element width the lane count was derived from; lane counts
// in the hardened profile always total the full redundancy width, so the
// bit cast preserves size.
func (tr *transformer) canonicalize(base string, flags ir.Value, ebits int) ir.Value {
	if flags.Type().Len == tr.condLanes {
		return tr.bld.Conv(ir.OpSExt, base+".r", tr.condType, flags)
	}
	wide := tr.bld.Conv(ir.OpSExt, base+".s",
		ir.VecOf(ir.IntType(ebits), flags.Type().Len), flags)
	return tr.bld.Conv(ir.OpBitcast, base+".r", tr.condType, wide)
}

// addCheck records a checkpoint. A nil redundant value means the operand
// passed through unduplicated and needs no collapse.
func (tr *transformer) addCheck(user *ir.Instr, val ir.Value, opIdx int, plain bool) {
	if val == nil {
		return
	}
	tr.checks = append(tr.checks, checkpoint{user: user, val: val, opIdx: opIdx, plain: plain})
}

// visit dispatches one original instruction. The opcode set is closed; an
// opcode with no rule is an internal error, never skipped.
func (tr *transformer) visit(in *ir.Instr) error {
	// Calls go first: allow-listed callees may legitimately take
	// operands the scalar-input filter below would reject.
	if in.Op() == ir.OpCall {
		return tr.visitCall(in)
	}
	if in.Type().IsVector() {
		return unsupportedf("pre-vectorized result %s of %s in %s",
			in.Ident(), in.Op(), tr.fn.Ident())
	}
	for _, a := range in.Args() {
		if a.Type().IsVector() {
			return unsupportedf("pre-vectorized operand %s of %s in %s",
				a.Ident(), in.Op(), tr.fn.Ident())
		}
	}

	switch in.Op() {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpUDiv, ir.OpSRem, ir.OpURem,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr, ir.OpAShr,
		ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv, ir.OpFRem:
		return tr.visitBinOp(in)

	case ir.OpICmp, ir.OpFCmp:
		return tr.visitCmp(in)

	case ir.OpTrunc, ir.OpZExt, ir.OpSExt, ir.OpFPTrunc, ir.OpFPExt,
		ir.OpFPToSI, ir.OpFPToUI, ir.OpSIToFP, ir.OpUIToFP,
		ir.OpPtrToInt, ir.OpIntToPtr, ir.OpBitcast:
		return tr.visitConv(in)

	case ir.OpSelect:
		return tr.visitSelect(in)

	case ir.OpGEP:
		return tr.visitGEP(in)

	case ir.OpPhi:
		return tr.visitPhi(in)

	case ir.OpLoad:
		return tr.visitLoad(in)

	case ir.OpStore:
		return tr.visitStore(in)

	case ir.OpAlloca:
		return tr.visitAlloca(in)

	case ir.OpAtomicRMW:
		return tr.visitAtomicRMW(in)

	case ir.OpCmpXchg:
		return tr.visitCmpXchg(in)

	case ir.OpExtractValue:
		return tr.visitExtractValue(in)

	case ir.OpInsertValue:
		return tr.visitInsertValue(in)

	case ir.OpVAArg:
		return tr.visitVAArg(in)

	case ir.OpRet:
		return tr.visitRet(in)

	case ir.OpCondBr:
		return tr.visitCondBr(in)

	case ir.OpSwitch, ir.OpIndirectBr:
		return tr.visitSelector(in)

	case ir.OpBr, ir.OpFence, ir.OpUnreachable:
		return nil

	case ir.OpBroadcast, ir.OpExtractLane, ir.OpInsertLane, ir.OpShuffle:
		return unsupportedf("vector instruction %s in scalar input of %s",
			in.Op(), tr.fn.Ident())

	case ir.OpInvoke, ir.OpResume, ir.OpLandingPad:
		return unsupportedf("exception dispatch %s in %s", in.Op(), tr.fn.Ident())
	}
	return internalf("no duplication rule for %s in %s", in.Op(), tr.fn.Ident())
}

func (tr *transformer) visitBinOp(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	a, err := tr.operand(in, 0)
	if err != nil {
		return err
	}
	b, err := tr.operand(in, 1)
	if err != nil {
		return err
	}
	return tr.replace(in, tr.bld.BinOp(in.Op(), in.Name()+".r", a, b))
}

func (tr *transformer) visitCmp(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	a, err := tr.operand(in, 0)
	if err != nil {
		return err
	}
	b, err := tr.operand(in, 1)
	if err != nil {
		return err
	}
	var flags *ir.Instr
	if in.Op() == ir.OpICmp {
		flags = tr.bld.ICmp(in.Pred, in.Name()+".c", a, b)
	} else {
		flags = tr.bld.FCmp(in.Pred, in.Name()+".c", a, b)
	}
	red := tr.canonicalize(in.Name(), flags, a.Type().Elem.ScalarBits())
	return tr.replace(in, red)
}

func (tr *transformer) visitConv(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	name := in.Name()
	srcT := in.Arg(0).Type()
	dstT := in.Type()

	rv, err := tr.operand(in, 0)
	if err != nil {
		return err
	}

	// A boolean source arrives canonically encoded; recover per-lane
	// flags first.
	if srcT == ir.I1 {
		rv = tr.bld.Conv(ir.OpTrunc, name+".b", ir.VecOf(ir.I1, tr.condLanes), rv)
	}

	// A boolean destination is produced as per-lane flags, then encoded
	// canonically.
	if dstT == ir.I1 {
		n := rv.Type().Len
		flags := tr.bld.Conv(in.Op(), name+".b", ir.VecOf(ir.I1, n), rv)
		return tr.replace(in, tr.canonicalize(name, flags, rv.Type().Elem.ScalarBits()))
	}

	nd, err := tr.laneCount(dstT)
	if err != nil {
		return err
	}
	ns := rv.Type().Len
	convName := name + ".r"
	if ns != nd {
		convName = name + ".c"
	}
	red := ir.Value(tr.bld.Conv(in.Op(), convName, ir.VecOf(dstT, ns), rv))
	if ns != nd {
		// Lane counts differ across the conversion: permute to the
		// destination count, replicating low lanes cyclically when
		// widening and keeping the low subset when narrowing.
		mask := make([]int, nd)
		for i := range mask {
			mask[i] = i % ns
		}
		red = tr.bld.Shuffle(name+".r", red, red, mask)
	}
	return tr.replace(in, red)
}

func (tr *transformer) visitSelect(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	cond, err := tr.operand(in, 0)
	if err != nil {
		return err
	}
	a, err := tr.operand(in, 1)
	if err != nil {
		return err
	}
	b, err := tr.operand(in, 2)
	if err != nil {
		return err
	}
	name := in.Name()
	n := a.Type().Len
	mask := cond
	if n != tr.condLanes {
		ebits := a.Type().Elem.ScalarBits()
		mask = tr.bld.Conv(ir.OpBitcast, name+".m", ir.VecOf(ir.IntType(ebits), n), mask)
	}
	flags := tr.bld.Conv(ir.OpTrunc, name+".i", ir.VecOf(ir.I1, n), mask)
	return tr.replace(in, tr.bld.Select(name+".r", flags, a, b))
}

func (tr *transformer) visitGEP(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	pn, err := tr.laneCount(ir.Ptr)
	if err != nil {
		return err
	}
	args := make([]ir.Value, in.NumArgs())
	for k := range args {
		rv, err := tr.operand(in, k)
		if err != nil {
			return err
		}
		if ns := rv.Type().Len; ns != pn {
			// Index lane count differs from the pointer's; keep the
			// low subset so every operand runs at pointer lanes.
			mask := make([]int, pn)
			for i := range mask {
				mask[i] = i % ns
			}
			rv = tr.bld.Shuffle(in.Name()+".x", rv, rv, mask)
		}
		args[k] = rv
	}
	red := tr.bld.GEP(in.Name()+".r", in.ElemType, args[0], args[1:]...)
	return tr.replace(in, red)
}

// visitPhi creates the empty redundant skeleton; incoming edges are rewired
// after the walk, once every predecessor's values exist.
func (tr *transformer) visitPhi(in *ir.Instr) error {
	if in.Type().IsAggregate() {
		return unsupportedf("aggregate merge %s in %s", in.Ident(), tr.fn.Ident())
	}
	rt, err := tr.redundantType(in.Type())
	if err != nil {
		return err
	}
	tr.bld.SetAfter(in)
	red := tr.bld.Phi(in.Name()+".r", rt)
	tr.phis = append(tr.phis, phiPair{orig: in, red: red})
	return tr.replace(in, red)
}

func (tr *transformer) visitLoad(in *ir.Instr) error {
	if !in.Type().IsScalar() {
		return unsupportedf("load of non-scalar type %s by %s in %s",
			in.Type(), in.Ident(), tr.fn.Ident())
	}
	tr.bld.SetBefore(in)
	addr, err := tr.operand(in, 0)
	if err != nil {
		return err
	}
	tr.addCheck(in, addr, 0, false)
	return tr.keepResult(in)
}

func (tr *transformer) visitStore(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	// The stored value may be non-numeric (a function address); those
	// pass through and need no checkpoint.
	val, err := tr.resolve(in.Arg(0), in)
	if err != nil {
		return err
	}
	addr, err := tr.operand(in, 1)
	if err != nil {
		return err
	}
	tr.addCheck(in, val, 0, false)
	tr.addCheck(in, addr, 1, false)
	return nil
}

func (tr *transformer) visitAlloca(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	count, err := tr.operand(in, 0)
	if err != nil {
		return err
	}
	tr.addCheck(in, count, 0, false)
	return tr.keepResult(in)
}

func (tr *transformer) visitAtomicRMW(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	addr, err := tr.operand(in, 0)
	if err != nil {
		return err
	}
	val, err := tr.operand(in, 1)
	if err != nil {
		return err
	}
	tr.addCheck(in, addr, 0, false)
	tr.addCheck(in, val, 1, false)
	return tr.keepResult(in)
}

// visitCmpXchg checkpoints all three operands. The struct result stays
// packed; extractvalue consumers broadcast the scalars they pull out.
func (tr *transformer) visitCmpXchg(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	for k := 0; k < 3; k++ {
		rv, err := tr.operand(in, k)
		if err != nil {
			return err
		}
		tr.addCheck(in, rv, k, false)
	}
	return nil
}

func (tr *transformer) visitExtractValue(in *ir.Instr) error {
	if !in.Type().IsScalar() {
		return unsupportedf("extractvalue of non-scalar field %s by %s in %s",
			in.Type(), in.Ident(), tr.fn.Ident())
	}
	return tr.keepResult(in)
}

func (tr *transformer) visitInsertValue(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	v, err := tr.resolve(in.Arg(1), in)
	if err != nil {
		return err
	}
	tr.addCheck(in, v, 1, false)
	return nil
}

func (tr *transformer) visitVAArg(in *ir.Instr) error {
	if !in.Type().IsScalar() {
		return unsupportedf("vaarg of non-scalar type %s by %s in %s",
			in.Type(), in.Ident(), tr.fn.Ident())
	}
	tr.bld.SetBefore(in)
	list, err := tr.operand(in, 0)
	if err != nil {
		return err
	}
	tr.addCheck(in, list, 0, false)
	return tr.keepResult(in)
}

func (tr *transformer) visitRet(in *ir.Instr) error {
	if in.NumArgs() == 0 || in.Arg(0).Type().IsAggregate() {
		return nil
	}
	tr.bld.SetBefore(in)
	rv, err := tr.resolve(in.Arg(0), in)
	if err != nil {
		return err
	}
	tr.addCheck(in, rv, 0, false)
	return nil
}

func (tr *transformer) visitCondBr(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	cond, err := tr.operand(in, 0)
	if err != nil {
		return err
	}
	tr.addCheck(in, cond, 0, false)
	return nil
}

// visitSelector checkpoints the selector of a switch or indirect jump.
func (tr *transformer) visitSelector(in *ir.Instr) error {
	tr.bld.SetBefore(in)
	sel, err := tr.operand(in, 0)
	if err != nil {
		return err
	}
	tr.addCheck(in, sel, 0, false)
	return nil
}

func (tr *transformer) visitCall(in *ir.Instr) error {
	switch callee := in.Callee.(type) {
	case *ir.InlineAsm:
		if callee.Asm != "" {
			return unsupportedf("inline asm call %s in %s", in.Ident(), tr.fn.Ident())
		}
		// An empty fragment is an optimization barrier: keep it, but
		// collapse any redundant arguments without voting.
		if err := tr.callArgs(in, true); err != nil {
			return err
		}
		return tr.callResult(in)
	case *ir.Func:
		if tr.cfg.passesThrough(callee.Name()) {
			if err := tr.callArgs(in, true); err != nil {
				return err
			}
			return tr.callResult(in)
		}
	default:
		// Indirect call: the callee address itself is a checkpoint.
		if in.Callee.Type().IsVector() {
			return unsupportedf("pre-vectorized callee %s of call in %s",
				in.Callee.Ident(), tr.fn.Ident())
		}
		tr.bld.SetBefore(in)
		rv, err := tr.resolve(in.Callee, in)
		if err != nil {
			return err
		}
		tr.addCheck(in, rv, calleeOperand, false)
	}
	if err := tr.callArgs(in, false); err != nil {
		return err
	}
	return tr.callResult(in)
}

// callArgs records a checkpoint per scalar argument. In plain mode only
// instruction results are substituted: the call site stays semantically
// untouched, but references into instructions scheduled for deletion must
// still be rerouted through a lane extraction.
func (tr *transformer) callArgs(in *ir.Instr, plain bool) error {
	tr.bld.SetBefore(in)
	for k, a := range in.Args() {
		if plain {
			if _, ok := a.(*ir.Instr); !ok {
				continue
			}
			if !a.Type().IsScalar() {
				continue
			}
		} else if a.Type().IsVector() {
			return unsupportedf("pre-vectorized operand %s of call in %s",
				a.Ident(), tr.fn.Ident())
		}
		rv, err := tr.resolve(a, in)
		if err != nil {
			return err
		}
		tr.addCheck(in, rv, k, plain)
	}
	return nil
}

func (tr *transformer) callResult(in *ir.Instr) error {
	t := in.Type()
	if t == ir.Void || t.IsAggregate() {
		// Struct returns stay packed for extractvalue consumers.
		return nil
	}
	return tr.keepResult(in)
}

// rewirePhis fills every redundant merge skeleton with the redundant
// counterparts of the original's incoming values, splatting constants in
// the predecessor itself.
func (tr *transformer) rewirePhis() error {
	for _, pair := range tr.phis {
		orig, red := pair.orig, pair.red
		for k, pred := range orig.Incoming {
			v := orig.Arg(k)
			tr.bld.SetBefore(pred.Term())
			rv, err := tr.resolve(v, orig)
			if err != nil {
				return err
			}
			if rv == nil {
				return unsupportedf("merge %s carries non-numeric value %s in %s",
					orig.Ident(), v.Ident(), tr.fn.Ident())
			}
			red.AddIncoming(rv, pred)
		}
	}
	return nil
}

// cleanup deletes the replaced originals. Merge nodes are detached from
// their incoming values first, breaking reference cycles through back
// edges; deletion then runs in reverse definition order so uses drain
// before defs. A nonzero use count here means a consumer was never
// redirected.
func (tr *transformer) cleanup() error {
	for _, in := range tr.origs {
		if in.Op() == ir.OpPhi {
			in.ClearIncoming()
		}
	}
	for i := len(tr.origs) - 1; i >= 0; i-- {
		in := tr.origs[i]
		if n := in.Uses(); n > 0 {
			return internalf("%s in %s still has %d uses at deletion",
				in.Ident(), tr.fn.Ident(), n)
		}
		in.Erase()
	}
	return nil
}
