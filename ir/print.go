// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// The textual form printed here round-trips through Parse. Operands are
// printed with their type except where the instruction form fixes it, e.g.
// the shared type of a binary op's operands.

type printer struct {
	sb strings.Builder
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(&p.sb, format, args...)
}

// ref prints an operand without its type.
func (p *printer) ref(v Value) {
	switch v := v.(type) {
	case *Block:
		p.sb.WriteString(v.name)
	default:
		p.sb.WriteString(v.Ident())
	}
}

// operand prints a typed operand.
func (p *printer) operand(v Value) {
	p.sb.WriteString(v.Type().String())
	p.sb.WriteByte(' ')
	p.ref(v)
}

func (p *printer) operands(vs []Value) {
	for k, v := range vs {
		if k > 0 {
			p.sb.WriteString(", ")
		}
		p.operand(v)
	}
}

func (p *printer) module(m *Module) {
	for _, g := range m.globals {
		p.global(g)
		p.sb.WriteByte('\n')
	}
	if len(m.globals) > 0 {
		p.sb.WriteByte('\n')
	}
	for _, f := range m.funcs {
		if f.IsDecl() {
			p.declare(f)
			p.sb.WriteByte('\n')
		}
	}
	for _, f := range m.funcs {
		if !f.IsDecl() {
			p.fn(f)
			p.sb.WriteByte('\n')
		}
	}
}

func (p *printer) global(g *Global) {
	init := g.Init
	if init == nil {
		if g.Elem.IsFloat() {
			init = ConstFloat(g.Elem, 0)
		} else {
			init = ConstInt(g.Elem, 0)
		}
	}
	p.printf("global @%s = %s %s", g.name, g.Elem, init.Ident())
}

func (p *printer) signature(f *Func) string {
	sig := f.sig
	parts := make([]string, len(sig.Params))
	for i, t := range sig.Params {
		parts[i] = t.String()
	}
	if sig.Variadic {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("(%s) %s", strings.Join(parts, ", "), sig.Ret)
}

func (p *printer) declare(f *Func) {
	p.printf("declare @%s%s\n", f.name, p.signature(f))
}

func (p *printer) fn(f *Func) {
	parts := make([]string, len(f.params))
	for i, prm := range f.params {
		parts[i] = fmt.Sprintf("%%%s %s", prm.name, prm.typ)
	}
	if f.sig.Variadic {
		parts = append(parts, "...")
	}
	p.printf("func @%s(%s) %s {\n", f.name, strings.Join(parts, ", "), f.sig.Ret)
	for _, b := range f.blocks {
		p.printf("%s:\n", b.name)
		for _, i := range b.instrs {
			p.sb.WriteString("  ")
			p.instr(i)
			p.sb.WriteByte('\n')
		}
	}
	p.sb.WriteString("}\n")
}

func (p *printer) instr(i *Instr) {
	if i.typ != Void && i.name != "" {
		p.printf("%%%s = ", i.name)
	}
	op := i.op
	switch op {
	case OpAdd, OpSub, OpMul, OpSDiv, OpUDiv, OpSRem, OpURem,
		OpAnd, OpOr, OpXor, OpShl, OpLShr, OpAShr,
		OpFAdd, OpFSub, OpFMul, OpFDiv, OpFRem:
		p.printf("%s %s ", op, i.args[0].Type())
		p.ref(i.args[0])
		p.sb.WriteString(", ")
		p.ref(i.args[1])

	case OpICmp, OpFCmp:
		p.printf("%s %s %s ", op, i.Pred, i.args[0].Type())
		p.ref(i.args[0])
		p.sb.WriteString(", ")
		p.ref(i.args[1])

	case OpTrunc, OpZExt, OpSExt, OpFPTrunc, OpFPExt, OpFPToSI, OpFPToUI,
		OpSIToFP, OpUIToFP, OpPtrToInt, OpIntToPtr, OpBitcast:
		p.printf("%s ", op)
		p.operand(i.args[0])
		p.printf(" to %s", i.typ)

	case OpBroadcast:
		p.printf("broadcast %s ", i.typ)
		p.ref(i.args[0])

	case OpExtractLane:
		p.printf("extractlane %s ", i.args[0].Type())
		p.ref(i.args[0])
		p.printf(", %s", i.args[1].Ident())

	case OpInsertLane:
		p.printf("insertlane %s ", i.args[0].Type())
		p.ref(i.args[0])
		p.sb.WriteString(", ")
		p.operand(i.args[1])
		p.printf(", %s", i.args[2].Ident())

	case OpShuffle:
		p.printf("shuffle %s ", i.args[0].Type())
		p.ref(i.args[0])
		p.sb.WriteString(", ")
		p.ref(i.args[1])
		p.sb.WriteString(", [")
		for k, m := range i.Mask {
			if k > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteString(strconv.Itoa(m))
		}
		p.sb.WriteString("]")

	case OpExtractValue:
		p.printf("extractvalue %s ", i.args[0].Type())
		p.ref(i.args[0])
		p.printf(", %d", i.Field)

	case OpInsertValue:
		p.printf("insertvalue %s ", i.args[0].Type())
		p.ref(i.args[0])
		p.sb.WriteString(", ")
		p.operand(i.args[1])
		p.printf(", %d", i.Field)

	case OpAlloca:
		p.printf("alloca %s, ", i.ElemType)
		p.operand(i.args[0])

	case OpLoad:
		p.printf("load %s, ", i.typ)
		p.operand(i.args[0])

	case OpStore:
		p.sb.WriteString("store ")
		p.operand(i.args[0])
		p.sb.WriteString(", ")
		p.operand(i.args[1])

	case OpGEP:
		p.printf("gep %s, ", i.ElemType)
		p.operands(i.args)

	case OpAtomicRMW:
		p.printf("atomicrmw %s ", i.Atomic)
		p.operand(i.args[0])
		p.sb.WriteString(", ")
		p.operand(i.args[1])

	case OpCmpXchg:
		p.sb.WriteString("cmpxchg ")
		p.operands(i.args)

	case OpFence:
		p.sb.WriteString("fence")

	case OpSelect:
		p.sb.WriteString("select ")
		p.operands(i.args)

	case OpPhi:
		p.printf("phi %s ", i.typ)
		for k := range i.args {
			if k > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteByte('[')
			p.ref(i.args[k])
			p.printf(", %s]", i.Incoming[k].name)
		}

	case OpCall, OpInvoke:
		p.printf("%s %s ", op, i.typ)
		p.ref(i.Callee)
		p.sb.WriteByte('(')
		p.operands(i.args)
		p.sb.WriteByte(')')
		if op == OpInvoke {
			p.printf(" to %s unwind %s", i.Targets[0].name, i.Targets[1].name)
		}

	case OpVAArg:
		p.printf("vaarg %s, ", i.typ)
		p.operand(i.args[0])

	case OpBr:
		p.printf("br %s", i.Targets[0].name)

	case OpCondBr:
		p.sb.WriteString("condbr ")
		p.operand(i.args[0])
		p.printf(", %s, %s", i.Targets[0].name, i.Targets[1].name)
		switch i.Predict {
		case BranchUnlikely:
			p.sb.WriteString(" !unlikely")
		case BranchLikely:
			p.sb.WriteString(" !likely")
		}

	case OpSwitch:
		p.sb.WriteString("switch ")
		p.operand(i.args[0])
		p.printf(", %s, [", i.Targets[0].name)
		for k, c := range i.Cases {
			if k > 0 {
				p.sb.WriteString(", ")
			}
			p.printf("%d: %s", c, i.Targets[1+k].name)
		}
		p.sb.WriteString("]")

	case OpIndirectBr:
		p.sb.WriteString("indirectbr ")
		p.operand(i.args[0])
		p.sb.WriteString(", [")
		for k, t := range i.Targets {
			if k > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteString(t.name)
		}
		p.sb.WriteString("]")

	case OpRet:
		if len(i.args) == 0 {
			p.sb.WriteString("ret void")
		} else {
			p.sb.WriteString("ret ")
			p.operand(i.args[0])
		}

	case OpUnreachable:
		p.sb.WriteString("unreachable")

	case OpResume:
		p.sb.WriteString("resume ")
		p.operand(i.args[0])

	case OpLandingPad:
		p.printf("landingpad %s", i.typ)

	default:
		p.printf("%s ???", op)
	}
}

// String renders the whole module in the textual form.
func (m *Module) String() string {
	var p printer
	p.module(m)
	return p.sb.String()
}

// String renders one function in the textual form.
func (f *Func) String() string {
	var p printer
	if f.IsDecl() {
		p.declare(f)
	} else {
		p.fn(f)
	}
	return p.sb.String()
}
