// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

package ir

// FuncStats summarizes one function's instruction mix.
type FuncStats struct {
	Insts    int
	AsmCalls int
	VecInsts int

	// The counted instructions, for optional listings.
	Asm []*Instr
	Vec []*Instr
}

// Stats summarizes a module: per-function counts plus module totals.
type Stats struct {
	Funcs   []*Func
	PerFunc map[*Func]*FuncStats

	TotalInsts    int
	TotalAsmCalls int
	TotalVecInsts int
}

// CollectStats counts instructions, inline-asm calls and vector-operand
// instructions per defined function. An instruction is vector-related when
// at least one operand is vector typed.
func CollectStats(m *Module) *Stats {
	st := &Stats{PerFunc: map[*Func]*FuncStats{}}
	for _, f := range m.Funcs() {
		if f.IsDecl() {
			continue
		}
		fs := &FuncStats{}
		for _, b := range f.Blocks() {
			for _, i := range b.Instrs() {
				fs.Insts++
				if i.Op() == OpCall {
					if _, ok := i.Callee.(*InlineAsm); ok {
						fs.AsmCalls++
						fs.Asm = append(fs.Asm, i)
					}
				}
				for _, a := range i.Args() {
					if a.Type().IsVector() {
						fs.VecInsts++
						fs.Vec = append(fs.Vec, i)
						break
					}
				}
			}
		}
		st.Funcs = append(st.Funcs, f)
		st.PerFunc[f] = fs
		st.TotalInsts += fs.Insts
		st.TotalAsmCalls += fs.AsmCalls
		st.TotalVecInsts += fs.VecInsts
	}
	return st
}
