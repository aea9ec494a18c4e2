// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"strconv"
)

// Value is anything an instruction can reference as an operand or produce as
// a result: constants, parameters, globals, functions, blocks, inline-asm
// fragments and other instructions. Values are compared by identity.
type Value interface {
	// Type returns the value's type. Functions and globals are pointer
	// typed when used as operands; blocks are label typed.
	Type() *Type

	// Ident returns the operand spelling used by the printer, e.g. "%r",
	// "@main" or "42".
	Ident() string
}

// Const is an immutable scalar constant. Integer and pointer constants carry
// their value in Int; float and double constants in Float.
type Const struct {
	typ   *Type
	Int   int64
	Float float64
}

// ConstInt returns an integer or pointer constant of type t.
func ConstInt(t *Type, v int64) *Const {
	return &Const{typ: t, Int: v}
}

// ConstFloat returns a float or double constant of type t.
func ConstFloat(t *Type, v float64) *Const {
	return &Const{typ: t, Float: v}
}

func (c *Const) Type() *Type { return c.typ }

func (c *Const) Ident() string {
	if c.typ.IsFloat() {
		return formatFloat(c.Float)
	}
	return strconv.FormatInt(c.Int, 10)
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	// Keep float literals lexically distinct from integers.
	for _, r := range s {
		if r == '.' || r == 'e' || r == 'E' || r == 'n' || r == 'i' {
			return s
		}
	}
	return s + ".0"
}

// Param is a function parameter.
type Param struct {
	name   string
	typ    *Type
	Parent *Func
}

func (p *Param) Type() *Type   { return p.typ }
func (p *Param) Name() string  { return p.name }
func (p *Param) Ident() string { return "%" + p.name }

// Global is a module-level memory cell. As an operand it denotes the cell's
// address and is pointer typed.
type Global struct {
	name string
	// Elem is the pointed-to type, fixing the cell's size.
	Elem *Type
	// Init is the initial value, nil for zero initialization.
	Init *Const
}

func (g *Global) Type() *Type   { return Ptr }
func (g *Global) Name() string  { return g.name }
func (g *Global) Ident() string { return "@" + g.name }

// InlineAsm is an opaque machine-code fragment used as a call target. The
// empty fragment is the conventional optimization barrier.
type InlineAsm struct {
	// Sig is the fragment's function type.
	Sig *Type
	// Asm is the raw template text; empty means a pure barrier.
	Asm string
}

func (a *InlineAsm) Type() *Type   { return Ptr }
func (a *InlineAsm) Ident() string { return fmt.Sprintf("asm %q", a.Asm) }
