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

import "github.com/tudinfse/elzar/ir"

// calleeOperand designates an indirect call's callee slot in a checkpoint.
const calleeOperand = -1

// checkpoint defers the collapse of a redundant value to one lane for an
// externally observable use. plain checkpoints substitute without voting.
type checkpoint struct {
	user  *ir.Instr
	val   ir.Value
	opIdx int
	plain bool
}

// operandType returns the scalar type the consumer declares for the
// checkpointed slot.
func (cp checkpoint) operandType() *ir.Type {
	if cp.opIdx == calleeOperand {
		return ir.Ptr
	}
	return cp.user.Arg(cp.opIdx).Type()
}

// insertChecks resolves the checkpoint worklist in reverse creation order,
// so the control splits branch checkpoints introduce cannot invalidate the
// insertion points of checkpoints recorded before them.
func (tr *transformer) insertChecks() error {
	for i := len(tr.checks) - 1; i >= 0; i-- {
		cp := tr.checks[i]
		var err error
		if cp.user.Op() == ir.OpCondBr {
			err = tr.checkBranch(cp)
		} else {
			err = tr.checkScalar(cp)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// checkScalar materializes one non-branch checkpoint: vote on the group
// when the category is enabled, extract lane 0, convert to the consumer's
// declared operand type and substitute it in.
func (tr *transformer) checkScalar(cp checkpoint) error {
	vote := !cp.plain && tr.cfg.checkEnabled(categoryOf(cp.user.Op()))
	rv := cp.val
	tr.bld.SetBefore(cp.user)
	if vote {
		// Widths outside the helper set fall back to a plain
		// extraction; coverage was already flagged reduced when the
		// lane count was derived.
		if helper := tr.h.checkFor(rv.Type().Elem); helper != nil {
			rv = tr.bld.Call("chk", rv.Type(), helper, rv)
		}
	}
	scalar := ir.Value(tr.bld.ExtractLane("one", rv, 0))
	if want := cp.operandType(); !want.Equal(scalar.Type()) {
		// Sub-64-bit integers ride promoted through i64.
		scalar = tr.bld.Conv(ir.OpTrunc, "one.t", want, scalar)
	}
	if cp.opIdx == calleeOperand {
		cp.user.SetCallee(scalar)
	} else {
		cp.user.SetArg(cp.opIdx, scalar)
	}
	return nil
}

// checkBranch materializes a conditional-branch checkpoint. With branch
// checks enabled the decision is taken on the whole aggregate:
//
//	head:  mix = ptestnzc(C, ones); condbr mix != 0, vote, cont !unlikely
//	cont:  condbr ptestz(C, ones) == 0, then, else
//	vote:  F = mask_i64(C); condbr ptestz(F, ones) == 0, then, else
//
// The agreement path never pays for the vote; the correction path restores
// the single-fault invariant before deciding.
func (tr *transformer) checkBranch(cp checkpoint) error {
	br := cp.user
	cond := cp.val
	if !tr.cfg.checkEnabled(catBranch) {
		tr.bld.SetBefore(br)
		one := tr.bld.ExtractLane("one", cond, 0)
		flag := tr.bld.Conv(ir.OpTrunc, "one.t", ir.I1, one)
		br.SetArg(0, flag)
		return nil
	}

	blk := br.Block()
	tr.bld.SetBefore(br)
	ones := tr.bld.Broadcast("ones", ir.ConstInt(ir.I64, -1), tr.condLanes)
	mix := tr.bld.Call("mix", ir.I32, tr.h.ptestnzc, cond, ones)
	mixFlag := tr.bld.ICmp(ir.PredNE, "mix.b", mix, ir.ConstInt(ir.I32, 0))

	tail := blk.SplitBefore(br, blk.Name()+".cont")
	corr := tr.fn.NewBlockAfter(tail, blk.Name()+".vote")

	// SplitBefore re-terminated the head with a plain branch; replace it
	// with the mixed-lanes dispatch.
	blk.Term().Erase()
	tr.bld.SetBlock(blk)
	tr.bld.CondBr(mixFlag, corr, tail, ir.BranchUnlikely)

	// Agreement path: decide on "condition not all-zero".
	tr.bld.SetBefore(br)
	agree := tr.bld.Call("agree", ir.I32, tr.h.ptestz, cond, ones)
	agreeFlag := tr.bld.ICmp(ir.PredEQ, "agree.b", agree, ir.ConstInt(ir.I32, 0))
	br.SetArg(0, agreeFlag)

	// Correction path: majority-vote the lanes, then take the same
	// decision on the repaired aggregate.
	tr.bld.SetBlock(corr)
	fixed := tr.bld.Call("fixed", tr.condType, tr.h.mask, cond)
	fz := tr.bld.Call("fixed.z", ir.I32, tr.h.ptestz, fixed, ones)
	fixedFlag := tr.bld.ICmp(ir.PredEQ, "fixed.b", fz, ir.ConstInt(ir.I32, 0))
	tr.bld.CondBr(fixedFlag, br.Targets[0], br.Targets[1], ir.BranchUnknown)

	// The successors gained the correction block as a predecessor;
	// extend their merge nodes with the tail's incoming values.
	seen := map[*ir.Block]bool{}
	for _, s := range br.Targets {
		if seen[s] {
			continue
		}
		seen[s] = true
		for _, phi := range s.Phis() {
			v := phi.IncomingFor(tail)
			if v == nil {
				return internalf("merge %s in %s lacks an entry for %s",
					phi.Ident(), s.Name(), tail.Name())
			}
			phi.AddIncoming(v, corr)
		}
	}
	return nil
}
