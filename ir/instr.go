// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

package ir

import "fmt"

// Op enumerates every instruction kind the representation can hold. The set
// is closed: passes dispatch with an exhaustive switch and treat unknown
// opcodes as errors rather than skipping them.
type Op uint8

const (
	OpInvalid Op = iota

	// Integer arithmetic and bitwise ops.
	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpSRem
	OpURem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr

	// Floating-point arithmetic.
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFRem

	// Comparison; the predicate lives in Instr.Pred.
	OpICmp
	OpFCmp

	// Conversions; the destination type is the instruction type.
	OpTrunc
	OpZExt
	OpSExt
	OpFPTrunc
	OpFPExt
	OpFPToSI
	OpFPToUI
	OpSIToFP
	OpUIToFP
	OpPtrToInt
	OpIntToPtr
	OpBitcast

	// Vector ops.
	OpBroadcast
	OpExtractLane
	OpInsertLane
	OpShuffle

	// Aggregate ops; the field index lives in Instr.Field.
	OpExtractValue
	OpInsertValue

	// Memory ops.
	OpAlloca
	OpLoad
	OpStore
	OpGEP
	OpAtomicRMW
	OpCmpXchg
	OpFence

	OpSelect
	OpPhi
	OpCall
	OpVAArg

	// Terminators.
	OpBr
	OpCondBr
	OpSwitch
	OpIndirectBr
	OpRet
	OpUnreachable
	OpInvoke
	OpResume

	// Exception dispatch value; present so input using it is rejected
	// loudly rather than miscompiled.
	OpLandingPad

	opCount
)

var opNames = [...]string{
	OpInvalid:      "invalid",
	OpAdd:          "add",
	OpSub:          "sub",
	OpMul:          "mul",
	OpSDiv:         "sdiv",
	OpUDiv:         "udiv",
	OpSRem:         "srem",
	OpURem:         "urem",
	OpAnd:          "and",
	OpOr:           "or",
	OpXor:          "xor",
	OpShl:          "shl",
	OpLShr:         "lshr",
	OpAShr:         "ashr",
	OpFAdd:         "fadd",
	OpFSub:         "fsub",
	OpFMul:         "fmul",
	OpFDiv:         "fdiv",
	OpFRem:         "frem",
	OpICmp:         "icmp",
	OpFCmp:         "fcmp",
	OpTrunc:        "trunc",
	OpZExt:         "zext",
	OpSExt:         "sext",
	OpFPTrunc:      "fptrunc",
	OpFPExt:        "fpext",
	OpFPToSI:       "fptosi",
	OpFPToUI:       "fptoui",
	OpSIToFP:       "sitofp",
	OpUIToFP:       "uitofp",
	OpPtrToInt:     "ptrtoint",
	OpIntToPtr:     "inttoptr",
	OpBitcast:      "bitcast",
	OpBroadcast:    "broadcast",
	OpExtractLane:  "extractlane",
	OpInsertLane:   "insertlane",
	OpShuffle:      "shuffle",
	OpExtractValue: "extractvalue",
	OpInsertValue:  "insertvalue",
	OpAlloca:       "alloca",
	OpLoad:         "load",
	OpStore:        "store",
	OpGEP:          "gep",
	OpAtomicRMW:    "atomicrmw",
	OpCmpXchg:      "cmpxchg",
	OpFence:        "fence",
	OpSelect:       "select",
	OpPhi:          "phi",
	OpCall:         "call",
	OpVAArg:        "vaarg",
	OpBr:           "br",
	OpCondBr:       "condbr",
	OpSwitch:       "switch",
	OpIndirectBr:   "indirectbr",
	OpRet:          "ret",
	OpUnreachable:  "unreachable",
	OpInvoke:       "invoke",
	OpResume:       "resume",
	OpLandingPad:   "landingpad",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// IsTerm reports whether op terminates a basic block.
func (op Op) IsTerm() bool {
	switch op {
	case OpBr, OpCondBr, OpSwitch, OpIndirectBr, OpRet, OpUnreachable, OpInvoke, OpResume:
		return true
	}
	return false
}

// Pred is a comparison predicate, shared between icmp and fcmp; the printer
// picks the spelling from the opcode.
type Pred uint8

const (
	PredEQ Pred = iota
	PredNE
	PredSGT
	PredSGE
	PredSLT
	PredSLE
	PredUGT
	PredUGE
	PredULT
	PredULE

	// Ordered float predicates.
	PredOEQ
	PredONE
	PredOGT
	PredOGE
	PredOLT
	PredOLE
)

var predNames = [...]string{
	PredEQ: "eq", PredNE: "ne",
	PredSGT: "sgt", PredSGE: "sge", PredSLT: "slt", PredSLE: "sle",
	PredUGT: "ugt", PredUGE: "uge", PredULT: "ult", PredULE: "ule",
	PredOEQ: "oeq", PredONE: "one",
	PredOGT: "ogt", PredOGE: "oge", PredOLT: "olt", PredOLE: "ole",
}

func (p Pred) String() string {
	if int(p) < len(predNames) {
		return predNames[p]
	}
	return fmt.Sprintf("pred(%d)", p)
}

// AtomicKind selects the read-modify-write operation of an atomicrmw.
type AtomicKind uint8

const (
	AtomicXchg AtomicKind = iota
	AtomicAdd
	AtomicSub
	AtomicAnd
	AtomicOr
	AtomicXor
	AtomicMax
	AtomicMin
)

var atomicNames = [...]string{
	AtomicXchg: "xchg", AtomicAdd: "add", AtomicSub: "sub",
	AtomicAnd: "and", AtomicOr: "or", AtomicXor: "xor",
	AtomicMax: "max", AtomicMin: "min",
}

func (k AtomicKind) String() string {
	if int(k) < len(atomicNames) {
		return atomicNames[k]
	}
	return fmt.Sprintf("atomic(%d)", k)
}

// BranchPrediction annotates a condbr with the likely successor: negative
// means the first target is unlikely, positive that it is likely.
type BranchPrediction int8

const (
	BranchUnlikely BranchPrediction = -1
	BranchUnknown  BranchPrediction = 0
	BranchLikely   BranchPrediction = 1
)

// Instr is one instruction. Operand layout per opcode:
//
//	binary/compare      args[0], args[1]
//	conversions         args[0]
//	broadcast           args[0] scalar
//	extractlane         args[0] vector, args[1] index
//	insertlane          args[0] vector, args[1] scalar, args[2] index
//	shuffle             args[0], args[1] vectors; Mask
//	extractvalue        args[0] aggregate; Field
//	insertvalue         args[0] aggregate, args[1] scalar; Field
//	alloca              args[0] count; ElemType
//	load                args[0] address
//	store               args[0] value, args[1] address
//	gep                 args[0] base, args[1:] indexes; ElemType
//	atomicrmw           args[0] address, args[1] operand; Atomic
//	cmpxchg             args[0] address, args[1] expected, args[2] new
//	select              args[0] condition, args[1], args[2]
//	phi                 args = incoming values, Incoming = blocks
//	call/invoke         Callee + args
//	vaarg               args[0] list pointer
//	condbr              args[0] condition; Targets[0] then, Targets[1] else
//	switch              args[0] selector; Targets[0] default, Targets[1+i] per Cases[i]
//	indirectbr          args[0] address; Targets = possible destinations
//	ret                 args[0] optional result
//
// Mutate operands only through SetArg, SetCallee, AddIncoming and
// ClearIncoming so use counts stay consistent.
type Instr struct {
	op    Op
	name  string // result name, "" while detached or for void results
	typ   *Type
	args  []Value
	block *Block

	Pred     Pred
	Atomic   AtomicKind
	Mask     []int
	Field    int
	ElemType *Type
	Incoming []*Block
	Targets  []*Block
	Cases    []int64
	Callee   Value
	Predict  BranchPrediction

	uses int
}

// NewInstr builds a detached instruction. It is normally reached through a
// Builder, which also attaches it to a block and names its result.
func NewInstr(op Op, typ *Type, args ...Value) *Instr {
	i := &Instr{op: op, typ: typ}
	i.args = make([]Value, len(args))
	for k, a := range args {
		i.args[k] = a
		addUse(a)
	}
	return i
}

func addUse(v Value) {
	if u, ok := v.(*Instr); ok {
		u.uses++
	}
}

func dropUse(v Value) {
	if u, ok := v.(*Instr); ok {
		u.uses--
		if u.uses < 0 {
			panic("ir: negative use count on %" + u.name)
		}
	}
}

func (i *Instr) Op() Op          { return i.op }
func (i *Instr) Type() *Type     { return i.typ }
func (i *Instr) Name() string    { return i.name }
func (i *Instr) Ident() string   { return "%" + i.name }
func (i *Instr) Block() *Block   { return i.block }
func (i *Instr) IsTerm() bool    { return i.op.IsTerm() }
func (i *Instr) NumArgs() int    { return len(i.args) }
func (i *Instr) Arg(k int) Value { return i.args[k] }

// Args returns the operand slice. Callers must not mutate it directly.
func (i *Instr) Args() []Value { return i.args }

// Uses returns how many operand slots currently reference this
// instruction's result.
func (i *Instr) Uses() int { return i.uses }

// SetArg replaces operand k, updating use counts.
func (i *Instr) SetArg(k int, v Value) {
	dropUse(i.args[k])
	i.args[k] = v
	addUse(v)
}

// SetCallee replaces a call's callee, updating use counts.
func (i *Instr) SetCallee(v Value) {
	dropUse(i.Callee)
	i.Callee = v
	addUse(v)
}

// AddIncoming appends an incoming (value, predecessor) pair to a phi.
func (i *Instr) AddIncoming(v Value, pred *Block) {
	if i.op != OpPhi {
		panic("ir: AddIncoming on " + i.op.String())
	}
	i.args = append(i.args, v)
	addUse(v)
	i.Incoming = append(i.Incoming, pred)
}

// ClearIncoming drops all of a phi's incoming pairs, releasing their uses.
// Detaching the value list first is how reference cycles through back edges
// are broken before deletion.
func (i *Instr) ClearIncoming() {
	for _, a := range i.args {
		dropUse(a)
	}
	i.args = i.args[:0]
	i.Incoming = i.Incoming[:0]
}

// IncomingFor returns the incoming value for the given predecessor, or nil.
// With duplicate edges the first entry wins.
func (i *Instr) IncomingFor(pred *Block) Value {
	for k, b := range i.Incoming {
		if b == pred {
			return i.args[k]
		}
	}
	return nil
}

// ReplaceIncomingBlock rewrites phi entries recorded for old to point at
// new. Used when an edge is redirected through a freshly split block.
func (i *Instr) ReplaceIncomingBlock(old, new *Block) {
	for k, b := range i.Incoming {
		if b == old {
			i.Incoming[k] = new
		}
	}
}

// SetTarget redirects terminator target k, keeping predecessor lists
// consistent.
func (i *Instr) SetTarget(k int, b *Block) {
	if i.block != nil {
		i.Targets[k].removePred(i.block)
		b.addPred(i.block)
	}
	i.Targets[k] = b
}

// Erase unlinks the instruction from its block and releases its operand and
// target references. The caller is responsible for checking Uses first; an
// erase while still referenced leaves dangling operands behind.
func (i *Instr) Erase() {
	if i.block != nil {
		i.block.remove(i)
	}
	for _, a := range i.args {
		dropUse(a)
	}
	i.args = nil
	i.Incoming = nil
	if i.Callee != nil {
		dropUse(i.Callee)
		i.Callee = nil
	}
}

func (i *Instr) String() string {
	var p printer
	p.instr(i)
	return p.sb.String()
}
