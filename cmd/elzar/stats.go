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

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tudinfse/elzar/ir"
)

func newStatsCommand() *cobra.Command {
	var printVec, printAsm bool

	cmd := &cobra.Command{
		Use:   "stats FILE",
		Short: "Count instructions per function, vector and inline-asm ones separately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseFile(args[0])
			if err != nil {
				return err
			}
			writeStats(cmd.OutOrStdout(), ir.CollectStats(m), printVec, printAsm)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printVec, "print-vec", false, "List every vector instruction")
	cmd.Flags().BoolVar(&printAsm, "print-asm", false, "List every inline-assembly call")
	return cmd
}

func writeStats(w io.Writer, st *ir.Stats, printVec, printAsm bool) {
	fmt.Fprintf(w, "----- MODULE STATISTICS -----\n")
	fmt.Fprintf(w, "  Total number of instructions:        %d\n", st.TotalInsts)
	fmt.Fprintf(w, "  Total number of assembly calls:      %d\n", st.TotalAsmCalls)
	fmt.Fprintf(w, "  Total number of vector instructions: %d\n", st.TotalVecInsts)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\n----- FUNCTION STATISTICS -----\n\n")
	for _, f := range st.Funcs {
		fs := st.PerFunc[f]
		fmt.Fprintf(w, "%s\n", f.Name())
		fmt.Fprintf(w, "  Number of instructions:        %d\n", fs.Insts)
		fmt.Fprintf(w, "  Number of assembly calls:      %d\n", fs.AsmCalls)
		fmt.Fprintf(w, "  Number of vector instructions: %d\n", fs.VecInsts)
		fmt.Fprintln(w)
	}

	if printVec {
		fmt.Fprintf(w, "\n----- VECTOR INSTRUCTIONS STATISTICS -----\n\n")
		writeInstrList(w, st, func(fs *ir.FuncStats) []*ir.Instr { return fs.Vec })
	}
	if printAsm {
		fmt.Fprintf(w, "\n----- ASSEMBLY CALLS STATISTICS -----\n\n")
		writeInstrList(w, st, func(fs *ir.FuncStats) []*ir.Instr { return fs.Asm })
	}
}

func writeInstrList(w io.Writer, st *ir.Stats, pick func(*ir.FuncStats) []*ir.Instr) {
	for _, f := range st.Funcs {
		ins := pick(st.PerFunc[f])
		if len(ins) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\n", f.Name())
		for k, in := range ins {
			fmt.Fprintf(w, "[%d] %s\n", k, in)
		}
		fmt.Fprintln(w)
	}
}
