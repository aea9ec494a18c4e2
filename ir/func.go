// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

package ir

import "strconv"

// Func is a function definition or declaration. A declaration has no
// blocks. As an operand a function denotes its address and is pointer
// typed; Sig carries the function type.
type Func struct {
	name   string
	sig    *Type
	params []*Param
	blocks []*Block
	mod    *Module

	names map[string]bool
	seq   int
}

func (f *Func) Type() *Type   { return Ptr }
func (f *Func) Sig() *Type    { return f.sig }
func (f *Func) Name() string  { return f.name }
func (f *Func) Ident() string { return "@" + f.name }

func (f *Func) Params() []*Param { return f.params }
func (f *Func) Blocks() []*Block { return f.blocks }
func (f *Func) Module() *Module  { return f.mod }

// IsDecl reports whether f is a body-less declaration.
func (f *Func) IsDecl() bool { return len(f.blocks) == 0 }

// Entry returns the entry block, or nil for a declaration.
func (f *Func) Entry() *Block {
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[0]
}

// BlockByName returns the named block, or nil.
func (f *Func) BlockByName(name string) *Block {
	for _, b := range f.blocks {
		if b.name == name {
			return b
		}
	}
	return nil
}

// NewBlock appends a block. The name is uniquified if already taken.
func (f *Func) NewBlock(name string) *Block {
	return f.insertBlock(len(f.blocks), name)
}

// NewBlockAfter inserts a block directly after b.
func (f *Func) NewBlockAfter(b *Block, name string) *Block {
	return f.insertBlock(b.index+1, name)
}

func (f *Func) insertBlock(at int, name string) *Block {
	b := &Block{name: f.genName(name), fn: f}
	f.blocks = append(f.blocks, nil)
	copy(f.blocks[at+1:], f.blocks[at:])
	f.blocks[at] = b
	for k := at; k < len(f.blocks); k++ {
		f.blocks[k].index = k
	}
	return b
}

// genName claims a result or block name, appending a numeric suffix on
// collision.
func (f *Func) genName(base string) string {
	if base == "" {
		base = "t"
	}
	if f.names == nil {
		f.names = map[string]bool{}
	}
	name := base
	for f.names[name] {
		f.seq++
		name = base + strconv.Itoa(f.seq)
	}
	f.names[name] = true
	return name
}

// NewParam appends a parameter to a declaration-stage function.
func (f *Func) NewParam(name string, t *Type) *Param {
	p := &Param{name: f.genName(name), typ: t, Parent: f}
	f.params = append(f.params, p)
	return p
}

// NumInstrs counts the function's instructions.
func (f *Func) NumInstrs() int {
	n := 0
	for _, b := range f.blocks {
		n += len(b.instrs)
	}
	return n
}
