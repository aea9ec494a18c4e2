// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

package ir

// Builder emits instructions at a movable insertion point, in source order:
// every emitted instruction lands directly after the previous one.
type Builder struct {
	fn    *Func
	block *Block
	at    int
}

// NewBuilder returns a builder for f with no insertion point set.
func NewBuilder(f *Func) *Builder { return &Builder{fn: f} }

// Func returns the function being built.
func (bd *Builder) Func() *Func { return bd.fn }

// SetBlock moves the insertion point to the end of b.
func (bd *Builder) SetBlock(b *Block) {
	bd.block = b
	bd.at = len(b.instrs)
}

// SetBefore moves the insertion point directly before mark.
func (bd *Builder) SetBefore(mark *Instr) {
	bd.block = mark.block
	bd.at = mark.block.indexOf(mark)
}

// SetAfter moves the insertion point directly after mark.
func (bd *Builder) SetAfter(mark *Instr) {
	bd.block = mark.block
	bd.at = mark.block.indexOf(mark) + 1
}

// Emit attaches a raw instruction at the insertion point. The typed
// constructors below are preferred; Emit remains for kinds without one.
func (bd *Builder) Emit(op Op, name string, t *Type, args ...Value) *Instr {
	return bd.insert(NewInstr(op, t, args...), name)
}

func (bd *Builder) insert(i *Instr, name string) *Instr {
	if name != "" && i.typ != Void {
		i.name = bd.fn.genName(name)
	}
	bd.block.attach(i, bd.at)
	bd.at++
	return i
}

// BinOp emits an arithmetic or bitwise instruction typed after its left
// operand.
func (bd *Builder) BinOp(op Op, name string, a, b Value) *Instr {
	return bd.Emit(op, name, a.Type(), a, b)
}

// ICmp emits an integer or pointer comparison; vector operands yield a
// vector of i1.
func (bd *Builder) ICmp(p Pred, name string, a, b Value) *Instr {
	i := bd.Emit(OpICmp, name, cmpType(a), a, b)
	i.Pred = p
	return i
}

// FCmp emits a floating-point comparison.
func (bd *Builder) FCmp(p Pred, name string, a, b Value) *Instr {
	i := bd.Emit(OpFCmp, name, cmpType(a), a, b)
	i.Pred = p
	return i
}

func cmpType(a Value) *Type {
	if t := a.Type(); t.IsVector() {
		return VecOf(I1, t.Len)
	}
	return I1
}

// Conv emits a conversion to the given type.
func (bd *Builder) Conv(op Op, name string, to *Type, v Value) *Instr {
	return bd.Emit(op, name, to, v)
}

// Broadcast emits a splat of scalar across n lanes.
func (bd *Builder) Broadcast(name string, scalar Value, n int) *Instr {
	return bd.Emit(OpBroadcast, name, VecOf(scalar.Type(), n), scalar)
}

// ExtractLane emits an extraction of the given constant lane.
func (bd *Builder) ExtractLane(name string, v Value, lane int) *Instr {
	return bd.Emit(OpExtractLane, name, v.Type().Elem, v, ConstInt(I64, int64(lane)))
}

// InsertLane emits a lane replacement at the given constant lane.
func (bd *Builder) InsertLane(name string, v, scalar Value, lane int) *Instr {
	return bd.Emit(OpInsertLane, name, v.Type(), v, scalar, ConstInt(I64, int64(lane)))
}

// Shuffle emits a lane permutation over a and b; mask entry i selects lane
// mask[i] of the concatenated operands.
func (bd *Builder) Shuffle(name string, a, b Value, mask []int) *Instr {
	i := bd.Emit(OpShuffle, name, VecOf(a.Type().Elem, len(mask)), a, b)
	i.Mask = mask
	return i
}

// ExtractValue emits an aggregate field read.
func (bd *Builder) ExtractValue(name string, agg Value, field int) *Instr {
	i := bd.Emit(OpExtractValue, name, agg.Type().Fields[field], agg)
	i.Field = field
	return i
}

// InsertValue emits an aggregate field replacement.
func (bd *Builder) InsertValue(name string, agg, v Value, field int) *Instr {
	i := bd.Emit(OpInsertValue, name, agg.Type(), agg, v)
	i.Field = field
	return i
}

// Alloca emits a stack allocation of count elements of elem.
func (bd *Builder) Alloca(name string, elem *Type, count Value) *Instr {
	i := bd.Emit(OpAlloca, name, Ptr, count)
	i.ElemType = elem
	return i
}

// Load emits a typed load from addr.
func (bd *Builder) Load(name string, t *Type, addr Value) *Instr {
	return bd.Emit(OpLoad, name, t, addr)
}

// Store emits a store of v to addr.
func (bd *Builder) Store(v, addr Value) *Instr {
	return bd.Emit(OpStore, "", Void, v, addr)
}

// GEP emits address arithmetic over elem-sized strides.
func (bd *Builder) GEP(name string, elem *Type, base Value, idxs ...Value) *Instr {
	t := Ptr
	if bt := base.Type(); bt.IsVector() {
		t = VecOf(Ptr, bt.Len)
	}
	args := append([]Value{base}, idxs...)
	i := bd.Emit(OpGEP, name, t, args...)
	i.ElemType = elem
	return i
}

// AtomicRMW emits an atomic read-modify-write returning the prior value.
func (bd *Builder) AtomicRMW(k AtomicKind, name string, addr, v Value) *Instr {
	i := bd.Emit(OpAtomicRMW, name, v.Type(), addr, v)
	i.Atomic = k
	return i
}

// CmpXchg emits an atomic compare-exchange returning {prior, success}.
func (bd *Builder) CmpXchg(name string, addr, want, new Value) *Instr {
	return bd.Emit(OpCmpXchg, name, StructOf(new.Type(), I1), addr, want, new)
}

// Fence emits a memory fence.
func (bd *Builder) Fence() *Instr {
	return bd.Emit(OpFence, "", Void)
}

// Select emits a conditional lane or scalar select.
func (bd *Builder) Select(name string, cond, a, b Value) *Instr {
	return bd.Emit(OpSelect, name, a.Type(), cond, a, b)
}

// Phi emits an empty merge node of the given type; incoming pairs are added
// with AddIncoming.
func (bd *Builder) Phi(name string, t *Type) *Instr {
	return bd.Emit(OpPhi, name, t)
}

// Call emits a call. The callee may be a function, an inline-asm fragment
// or any pointer-typed value for indirect calls.
func (bd *Builder) Call(name string, ret *Type, callee Value, args ...Value) *Instr {
	i := NewInstr(OpCall, ret, args...)
	i.Callee = callee
	addUse(callee)
	return bd.insert(i, name)
}

// VAArg emits a variadic-argument fetch from list.
func (bd *Builder) VAArg(name string, t *Type, list Value) *Instr {
	return bd.Emit(OpVAArg, name, t, list)
}

// Br emits an unconditional branch.
func (bd *Builder) Br(dst *Block) *Instr {
	return bd.insert(NewInstr(OpBr, Void).withTargets(dst), "")
}

// CondBr emits a two-way conditional branch with a prediction hint.
func (bd *Builder) CondBr(cond Value, then, els *Block, predict BranchPrediction) *Instr {
	i := NewInstr(OpCondBr, Void, cond).withTargets(then, els)
	i.Predict = predict
	return bd.insert(i, "")
}

// Switch emits a multi-way dispatch; dsts is parallel to cases.
func (bd *Builder) Switch(sel Value, def *Block, cases []int64, dsts []*Block) *Instr {
	i := NewInstr(OpSwitch, Void, sel).withTargets(append([]*Block{def}, dsts...)...)
	i.Cases = cases
	return bd.insert(i, "")
}

// IndirectBr emits an indirect jump with its possible destinations.
func (bd *Builder) IndirectBr(addr Value, dsts []*Block) *Instr {
	return bd.insert(NewInstr(OpIndirectBr, Void, addr).withTargets(dsts...), "")
}

// Ret emits a return; v is nil for void.
func (bd *Builder) Ret(v Value) *Instr {
	if v == nil {
		return bd.insert(NewInstr(OpRet, Void), "")
	}
	return bd.insert(NewInstr(OpRet, Void, v), "")
}

// Unreachable emits an unreachable terminator.
func (bd *Builder) Unreachable() *Instr {
	return bd.insert(NewInstr(OpUnreachable, Void), "")
}
