// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

package ir

// Module is one translation unit: globals plus functions, in declaration
// order.
type Module struct {
	Name    string
	globals []*Global
	funcs   []*Func
}

// NewModule returns an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// Funcs returns the functions in declaration order.
func (m *Module) Funcs() []*Func { return m.funcs }

// Globals returns the globals in declaration order.
func (m *Module) Globals() []*Global { return m.globals }

// Func returns the named function, or nil.
func (m *Module) Func(name string) *Func {
	for _, f := range m.funcs {
		if f.name == name {
			return f
		}
	}
	return nil
}

// Global returns the named global, or nil.
func (m *Module) Global(name string) *Global {
	for _, g := range m.globals {
		if g.name == name {
			return g
		}
	}
	return nil
}

// NewFunc adds a function with the given signature. It starts as a
// declaration; adding a block turns it into a definition.
func (m *Module) NewFunc(name string, sig *Type) *Func {
	f := &Func{name: name, sig: sig, mod: m}
	m.funcs = append(m.funcs, f)
	return f
}

// NewGlobal adds a global cell of the given element type.
func (m *Module) NewGlobal(name string, elem *Type, init *Const) *Global {
	g := &Global{name: name, Elem: elem, Init: init}
	m.globals = append(m.globals, g)
	return g
}
