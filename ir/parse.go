// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Parse reads a module in the textual form produced by Module.String.
//
// The input is line oriented: one global, declaration, label or instruction
// per line, ';' starting a comment. Non-phi operands must be defined before
// use; phi incoming values may reference forward definitions and are
// resolved after the function body is read.
func Parse(name, src string) (*Module, error) {
	p := &parser{m: NewModule(name), lines: strings.Split(src, "\n")}
	if err := p.run(); err != nil {
		return nil, err
	}
	return p.m, nil
}

type parser struct {
	m     *Module
	lines []string
	ln    int // index of the line being parsed

	// Per-function state.
	fn      *Func
	locals  map[string]Value
	blocks  map[string]*Block
	pending []pendingPhi
}

type pendingPhi struct {
	phi  *Instr
	ln   int
	refs []phiRef
}

type phiRef struct {
	tok   string
	block string
}

func (p *parser) errf(format string, args ...any) error {
	return errors.Errorf("line %d: "+format, append([]any{p.ln + 1}, args...)...)
}

func (p *parser) run() error {
	for p.ln = 0; p.ln < len(p.lines); p.ln++ {
		toks, err := lexLine(p.lines[p.ln])
		if err != nil {
			return p.errf("%v", err)
		}
		if len(toks) == 0 {
			continue
		}
		switch toks[0] {
		case "global":
			if err := p.parseGlobal(toks); err != nil {
				return err
			}
		case "declare":
			if err := p.parseDeclare(toks); err != nil {
				return err
			}
		case "func":
			if err := p.parseFunc(toks); err != nil {
				return err
			}
		default:
			return p.errf("unexpected %q at top level", toks[0])
		}
	}
	return nil
}

// global @name = <type> <const>
func (p *parser) parseGlobal(toks []string) error {
	c := cursor{p: p, toks: toks[1:]}
	gname, err := c.global()
	if err != nil {
		return err
	}
	if err := c.expect("="); err != nil {
		return err
	}
	t, err := c.typ()
	if err != nil {
		return err
	}
	lit, err := c.next()
	if err != nil {
		return err
	}
	init, err := constFrom(t, lit)
	if err != nil {
		return p.errf("global @%s: %v", gname, err)
	}
	if p.m.Global(gname) != nil || p.m.Func(gname) != nil {
		return p.errf("redefinition of @%s", gname)
	}
	p.m.NewGlobal(gname, t, init)
	return c.end()
}

// declare @name(<type>, ...) <ret>
func (p *parser) parseDeclare(toks []string) error {
	c := cursor{p: p, toks: toks[1:]}
	fname, err := c.global()
	if err != nil {
		return err
	}
	if err := c.expect("("); err != nil {
		return err
	}
	var params []*Type
	variadic := false
	for !c.peekIs(")") {
		if len(params) > 0 || variadic {
			if err := c.expect(","); err != nil {
				return err
			}
		}
		if c.peekIs("...") {
			c.next()
			variadic = true
			continue
		}
		t, err := c.typ()
		if err != nil {
			return err
		}
		params = append(params, t)
	}
	c.next() // ")"
	ret, err := c.typ()
	if err != nil {
		return err
	}
	if p.m.Func(fname) != nil || p.m.Global(fname) != nil {
		return p.errf("redefinition of @%s", fname)
	}
	p.m.NewFunc(fname, FuncOf(ret, params, variadic))
	return c.end()
}

// func @name(%p <type>, ...) <ret> { ... }
func (p *parser) parseFunc(toks []string) error {
	c := cursor{p: p, toks: toks[1:]}
	fname, err := c.global()
	if err != nil {
		return err
	}
	if err := c.expect("("); err != nil {
		return err
	}
	type paramDecl struct {
		name string
		typ  *Type
	}
	var decls []paramDecl
	var ptypes []*Type
	variadic := false
	for !c.peekIs(")") {
		if len(decls) > 0 || variadic {
			if err := c.expect(","); err != nil {
				return err
			}
		}
		if c.peekIs("...") {
			c.next()
			variadic = true
			continue
		}
		pname, err := c.local()
		if err != nil {
			return err
		}
		t, err := c.typ()
		if err != nil {
			return err
		}
		decls = append(decls, paramDecl{pname, t})
		ptypes = append(ptypes, t)
	}
	c.next() // ")"
	ret, err := c.typ()
	if err != nil {
		return err
	}
	if err := c.expect("{"); err != nil {
		return err
	}
	if err := c.end(); err != nil {
		return err
	}
	if p.m.Func(fname) != nil || p.m.Global(fname) != nil {
		return p.errf("redefinition of @%s", fname)
	}

	p.fn = p.m.NewFunc(fname, FuncOf(ret, ptypes, variadic))
	p.locals = map[string]Value{}
	p.blocks = map[string]*Block{}
	p.pending = nil
	for _, d := range decls {
		if _, dup := p.locals[d.name]; dup {
			return p.errf("duplicate parameter %%%s", d.name)
		}
		p.locals[d.name] = p.fn.NewParam(d.name, d.typ)
	}

	// First pass: create the labeled blocks in source order, so branch
	// targets can be resolved while body lines are read.
	start := p.ln + 1
	depth := 1
	end := -1
	for ln := start; ln < len(p.lines); ln++ {
		toks, err := lexLine(p.lines[ln])
		if err != nil {
			p.ln = ln
			return p.errf("%v", err)
		}
		if len(toks) == 1 && toks[0] == "}" {
			depth--
			if depth == 0 {
				end = ln
				break
			}
		}
		if len(toks) == 2 && toks[1] == ":" {
			bname := toks[0]
			if _, dup := p.blocks[bname]; dup {
				p.ln = ln
				return p.errf("duplicate block %s", bname)
			}
			p.blocks[bname] = p.fn.NewBlock(bname)
		}
	}
	if end < 0 {
		return p.errf("func @%s: missing closing }", fname)
	}

	// Second pass: fill in instructions.
	bld := NewBuilder(p.fn)
	var cur *Block
	for p.ln = start; p.ln < end; p.ln++ {
		toks, err := lexLine(p.lines[p.ln])
		if err != nil {
			return p.errf("%v", err)
		}
		if len(toks) == 0 {
			continue
		}
		if len(toks) == 2 && toks[1] == ":" {
			cur = p.blocks[toks[0]]
			bld.SetBlock(cur)
			continue
		}
		if cur == nil {
			return p.errf("instruction before first block label")
		}
		if err := p.parseInstr(bld, toks); err != nil {
			return err
		}
	}
	p.ln = end

	// Resolve phi incoming pairs now that every definition exists.
	for _, pend := range p.pending {
		p.ln = pend.ln
		for _, r := range pend.refs {
			b, ok := p.blocks[r.block]
			if !ok {
				return p.errf("phi references unknown block %s", r.block)
			}
			v, err := p.resolve(r.tok, pend.phi.Type())
			if err != nil {
				return err
			}
			pend.phi.AddIncoming(v, b)
		}
	}
	p.ln = end
	p.fn = nil
	return nil
}

// resolve turns an operand token into a Value of the wanted type.
func (p *parser) resolve(tok string, want *Type) (Value, error) {
	switch {
	case strings.HasPrefix(tok, "%"):
		v, ok := p.locals[tok[1:]]
		if !ok {
			return nil, p.errf("use of undefined value %s", tok)
		}
		return v, nil
	case strings.HasPrefix(tok, "@"):
		name := tok[1:]
		if f := p.m.Func(name); f != nil {
			return f, nil
		}
		if g := p.m.Global(name); g != nil {
			return g, nil
		}
		return nil, p.errf("use of undefined @%s", name)
	default:
		c, err := constFrom(want, tok)
		if err != nil {
			return nil, p.errf("%v", err)
		}
		return c, nil
	}
}

func constFrom(t *Type, lit string) (*Const, error) {
	if t.IsVector() {
		t = t.Elem
	}
	if t.IsFloat() {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, errors.Errorf("bad %s literal %q", t, lit)
		}
		return ConstFloat(t, f), nil
	}
	n, err := strconv.ParseInt(lit, 0, 64)
	if err != nil {
		return nil, errors.Errorf("bad %s literal %q", t, lit)
	}
	return ConstInt(t, n), nil
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, opCount)
	for op := OpInvalid + 1; op < opCount; op++ {
		m[op.String()] = op
	}
	return m
}()

var predByName = func() map[string]Pred {
	m := map[string]Pred{}
	for pr := PredEQ; pr <= PredOLE; pr++ {
		m[pr.String()] = pr
	}
	return m
}()

var atomicByName = func() map[string]AtomicKind {
	m := map[string]AtomicKind{}
	for k := AtomicXchg; k <= AtomicMin; k++ {
		m[k.String()] = k
	}
	return m
}()

func (p *parser) parseInstr(bld *Builder, toks []string) error {
	name := ""
	if strings.HasPrefix(toks[0], "%") {
		if len(toks) < 3 || toks[1] != "=" {
			return p.errf("expected = after %s", toks[0])
		}
		name = toks[0][1:]
		toks = toks[2:]
	}
	op, ok := opByName[toks[0]]
	if !ok {
		return p.errf("unknown instruction %q", toks[0])
	}
	c := cursor{p: p, toks: toks[1:]}

	defineLocal := func(i *Instr) error {
		if name == "" {
			return nil
		}
		if _, dup := p.locals[name]; dup {
			return p.errf("redefinition of %%%s", name)
		}
		p.locals[name] = i
		return nil
	}

	switch op {
	case OpAdd, OpSub, OpMul, OpSDiv, OpUDiv, OpSRem, OpURem,
		OpAnd, OpOr, OpXor, OpShl, OpLShr, OpAShr,
		OpFAdd, OpFSub, OpFMul, OpFDiv, OpFRem:
		t, err := c.typ()
		if err != nil {
			return err
		}
		a, err := c.value(t)
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		b, err := c.value(t)
		if err != nil {
			return err
		}
		if err := defineLocal(bld.BinOp(op, name, a, b)); err != nil {
			return err
		}

	case OpICmp, OpFCmp:
		ptok, err := c.next()
		if err != nil {
			return err
		}
		pred, ok := predByName[ptok]
		if !ok {
			return p.errf("unknown predicate %q", ptok)
		}
		t, err := c.typ()
		if err != nil {
			return err
		}
		a, err := c.value(t)
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		b, err := c.value(t)
		if err != nil {
			return err
		}
		var i *Instr
		if op == OpICmp {
			i = bld.ICmp(pred, name, a, b)
		} else {
			i = bld.FCmp(pred, name, a, b)
		}
		if err := defineLocal(i); err != nil {
			return err
		}

	case OpTrunc, OpZExt, OpSExt, OpFPTrunc, OpFPExt, OpFPToSI, OpFPToUI,
		OpSIToFP, OpUIToFP, OpPtrToInt, OpIntToPtr, OpBitcast:
		st, err := c.typ()
		if err != nil {
			return err
		}
		v, err := c.value(st)
		if err != nil {
			return err
		}
		if err := c.expect("to"); err != nil {
			return err
		}
		dt, err := c.typ()
		if err != nil {
			return err
		}
		if err := defineLocal(bld.Conv(op, name, dt, v)); err != nil {
			return err
		}

	case OpBroadcast:
		vt, err := c.typ()
		if err != nil {
			return err
		}
		if !vt.IsVector() {
			return p.errf("broadcast needs a vector type, got %s", vt)
		}
		s, err := c.value(vt.Elem)
		if err != nil {
			return err
		}
		if err := defineLocal(bld.Broadcast(name, s, vt.Len)); err != nil {
			return err
		}

	case OpExtractLane, OpInsertLane:
		vt, err := c.typ()
		if err != nil {
			return err
		}
		v, err := c.value(vt)
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		var i *Instr
		if op == OpInsertLane {
			s, err := c.typedValue()
			if err != nil {
				return err
			}
			if err := c.expect(","); err != nil {
				return err
			}
			lane, err := c.intLit()
			if err != nil {
				return err
			}
			i = bld.InsertLane(name, v, s, lane)
		} else {
			lane, err := c.intLit()
			if err != nil {
				return err
			}
			i = bld.ExtractLane(name, v, lane)
		}
		if err := defineLocal(i); err != nil {
			return err
		}

	case OpShuffle:
		vt, err := c.typ()
		if err != nil {
			return err
		}
		a, err := c.value(vt)
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		b, err := c.value(vt)
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		mask, err := c.intList()
		if err != nil {
			return err
		}
		if err := defineLocal(bld.Shuffle(name, a, b, mask)); err != nil {
			return err
		}

	case OpExtractValue, OpInsertValue:
		st, err := c.typ()
		if err != nil {
			return err
		}
		agg, err := c.value(st)
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		var i *Instr
		if op == OpInsertValue {
			vt, err := c.typ()
			if err != nil {
				return err
			}
			v, err := c.value(vt)
			if err != nil {
				return err
			}
			if err := c.expect(","); err != nil {
				return err
			}
			field, err := c.intLit()
			if err != nil {
				return err
			}
			i = bld.InsertValue(name, agg, v, field)
		} else {
			field, err := c.intLit()
			if err != nil {
				return err
			}
			if field < 0 || field >= len(st.Fields) {
				return p.errf("field %d out of range for %s", field, st)
			}
			i = bld.ExtractValue(name, agg, field)
		}
		if err := defineLocal(i); err != nil {
			return err
		}

	case OpAlloca:
		et, err := c.typ()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		count, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := defineLocal(bld.Alloca(name, et, count)); err != nil {
			return err
		}

	case OpLoad:
		t, err := c.typ()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		addr, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := defineLocal(bld.Load(name, t, addr)); err != nil {
			return err
		}

	case OpStore:
		v, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		addr, err := c.typedValue()
		if err != nil {
			return err
		}
		bld.Store(v, addr)

	case OpGEP:
		et, err := c.typ()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		base, err := c.typedValue()
		if err != nil {
			return err
		}
		var idxs []Value
		for c.peekIs(",") {
			c.next()
			idx, err := c.typedValue()
			if err != nil {
				return err
			}
			idxs = append(idxs, idx)
		}
		if err := defineLocal(bld.GEP(name, et, base, idxs...)); err != nil {
			return err
		}

	case OpAtomicRMW:
		ktok, err := c.next()
		if err != nil {
			return err
		}
		kind, ok := atomicByName[ktok]
		if !ok {
			return p.errf("unknown atomicrmw kind %q", ktok)
		}
		addr, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		v, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := defineLocal(bld.AtomicRMW(kind, name, addr, v)); err != nil {
			return err
		}

	case OpCmpXchg:
		addr, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		want, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		nv, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := defineLocal(bld.CmpXchg(name, addr, want, nv)); err != nil {
			return err
		}

	case OpFence:
		bld.Fence()

	case OpSelect:
		cond, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		a, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		b, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := defineLocal(bld.Select(name, cond, a, b)); err != nil {
			return err
		}

	case OpPhi:
		t, err := c.typ()
		if err != nil {
			return err
		}
		phi := bld.Phi(name, t)
		pend := pendingPhi{phi: phi, ln: p.ln}
		for c.peekIs("[") || c.peekIs(",") {
			if c.peekIs(",") {
				c.next()
			}
			if err := c.expect("["); err != nil {
				return err
			}
			vtok, err := c.next()
			if err != nil {
				return err
			}
			if err := c.expect(","); err != nil {
				return err
			}
			btok, err := c.next()
			if err != nil {
				return err
			}
			if err := c.expect("]"); err != nil {
				return err
			}
			pend.refs = append(pend.refs, phiRef{tok: vtok, block: btok})
		}
		p.pending = append(p.pending, pend)
		if err := defineLocal(phi); err != nil {
			return err
		}

	case OpCall, OpInvoke:
		ret, err := c.typ()
		if err != nil {
			return err
		}
		ctok, err := c.next()
		if err != nil {
			return err
		}
		var asmText string
		isAsm := false
		if ctok == "asm" {
			str, err := c.next()
			if err != nil {
				return err
			}
			asmText = strings.Trim(str, `"`)
			isAsm = true
		}
		if err := c.expect("("); err != nil {
			return err
		}
		var args []Value
		for !c.peekIs(")") {
			if len(args) > 0 {
				if err := c.expect(","); err != nil {
					return err
				}
			}
			a, err := c.typedValue()
			if err != nil {
				return err
			}
			args = append(args, a)
		}
		c.next() // ")"
		var callee Value
		if isAsm {
			ptypes := make([]*Type, len(args))
			for k, a := range args {
				ptypes[k] = a.Type()
			}
			callee = &InlineAsm{Sig: FuncOf(ret, ptypes, false), Asm: asmText}
		} else {
			callee, err = p.resolve(ctok, Ptr)
			if err != nil {
				return err
			}
		}
		if op == OpInvoke {
			if err := c.expect("to"); err != nil {
				return err
			}
			ntok, err := c.next()
			if err != nil {
				return err
			}
			if err := c.expect("unwind"); err != nil {
				return err
			}
			utok, err := c.next()
			if err != nil {
				return err
			}
			nb, ub := p.blocks[ntok], p.blocks[utok]
			if nb == nil || ub == nil {
				return p.errf("invoke references unknown block")
			}
			i := NewInstr(OpInvoke, ret, args...)
			i.Callee = callee
			addUse(callee)
			i.Targets = []*Block{nb, ub}
			bld.insert(i, name)
			if err := defineLocal(i); err != nil {
				return err
			}
		} else {
			i := bld.Call(name, ret, callee, args...)
			if err := defineLocal(i); err != nil {
				return err
			}
		}

	case OpVAArg:
		t, err := c.typ()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		list, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := defineLocal(bld.VAArg(name, t, list)); err != nil {
			return err
		}

	case OpBr:
		btok, err := c.next()
		if err != nil {
			return err
		}
		b, ok := p.blocks[btok]
		if !ok {
			return p.errf("br to unknown block %s", btok)
		}
		bld.Br(b)

	case OpCondBr:
		cond, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		ttok, err := c.next()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		etok, err := c.next()
		if err != nil {
			return err
		}
		predict := BranchUnknown
		if c.peekIs("!unlikely") {
			c.next()
			predict = BranchUnlikely
		} else if c.peekIs("!likely") {
			c.next()
			predict = BranchLikely
		}
		tb, eb := p.blocks[ttok], p.blocks[etok]
		if tb == nil || eb == nil {
			return p.errf("condbr to unknown block")
		}
		bld.CondBr(cond, tb, eb, predict)

	case OpSwitch:
		sel, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		dtok, err := c.next()
		if err != nil {
			return err
		}
		db, ok := p.blocks[dtok]
		if !ok {
			return p.errf("switch to unknown block %s", dtok)
		}
		if err := c.expect(","); err != nil {
			return err
		}
		if err := c.expect("["); err != nil {
			return err
		}
		var cases []int64
		var dsts []*Block
		for !c.peekIs("]") {
			if len(cases) > 0 {
				if err := c.expect(","); err != nil {
					return err
				}
			}
			val, err := c.intLit()
			if err != nil {
				return err
			}
			if err := c.expect(":"); err != nil {
				return err
			}
			btok, err := c.next()
			if err != nil {
				return err
			}
			b, ok := p.blocks[btok]
			if !ok {
				return p.errf("switch case to unknown block %s", btok)
			}
			cases = append(cases, int64(val))
			dsts = append(dsts, b)
		}
		c.next() // "]"
		bld.Switch(sel, db, cases, dsts)

	case OpIndirectBr:
		addr, err := c.typedValue()
		if err != nil {
			return err
		}
		if err := c.expect(","); err != nil {
			return err
		}
		if err := c.expect("["); err != nil {
			return err
		}
		var dsts []*Block
		for !c.peekIs("]") {
			if len(dsts) > 0 {
				if err := c.expect(","); err != nil {
					return err
				}
			}
			btok, err := c.next()
			if err != nil {
				return err
			}
			b, ok := p.blocks[btok]
			if !ok {
				return p.errf("indirectbr to unknown block %s", btok)
			}
			dsts = append(dsts, b)
		}
		c.next() // "]"
		bld.IndirectBr(addr, dsts)

	case OpRet:
		if c.peekIs("void") {
			c.next()
			bld.Ret(nil)
		} else {
			v, err := c.typedValue()
			if err != nil {
				return err
			}
			bld.Ret(v)
		}

	case OpUnreachable:
		bld.Unreachable()

	case OpResume:
		v, err := c.typedValue()
		if err != nil {
			return err
		}
		bld.insert(NewInstr(OpResume, Void, v), "")

	case OpLandingPad:
		t, err := c.typ()
		if err != nil {
			return err
		}
		if err := defineLocal(bld.Emit(OpLandingPad, name, t)); err != nil {
			return err
		}

	default:
		return p.errf("unhandled instruction %q", op)
	}
	return c.end()
}
