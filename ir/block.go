// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

package ir

// Block is a basic block: ordered instructions ending in one terminator.
// Predecessor lists are maintained automatically as terminators are
// attached, retargeted and erased; a block reached twice by the same
// terminator appears twice in the predecessor list, mirroring the two
// incoming edges.
type Block struct {
	name   string
	fn     *Func
	index  int
	instrs []*Instr
	preds  []*Block
}

func (b *Block) Type() *Type   { return Label }
func (b *Block) Name() string  { return b.name }
func (b *Block) Ident() string { return "%" + b.name }
func (b *Block) Func() *Func   { return b.fn }

// Instrs returns the instruction list. Callers must not mutate it directly.
func (b *Block) Instrs() []*Instr { return b.instrs }

// First returns the first instruction, or nil for an empty block.
func (b *Block) First() *Instr {
	if len(b.instrs) == 0 {
		return nil
	}
	return b.instrs[0]
}

// Term returns the block's terminator, or nil while unterminated.
func (b *Block) Term() *Instr {
	if n := len(b.instrs); n > 0 && b.instrs[n-1].IsTerm() {
		return b.instrs[n-1]
	}
	return nil
}

// Phis returns the leading run of phi instructions.
func (b *Block) Phis() []*Instr {
	n := 0
	for n < len(b.instrs) && b.instrs[n].op == OpPhi {
		n++
	}
	return b.instrs[:n]
}

// Preds returns the predecessor list, with duplicates for duplicate edges.
func (b *Block) Preds() []*Block { return b.preds }

// Succs returns the successor blocks in terminator target order.
func (b *Block) Succs() []*Block {
	if t := b.Term(); t != nil {
		return t.Targets
	}
	return nil
}

// Append attaches i at the end of the block.
func (b *Block) Append(i *Instr) { b.attach(i, len(b.instrs)) }

// InsertBefore attaches i immediately before mark, which must be in b.
func (b *Block) InsertBefore(i, mark *Instr) { b.attach(i, b.indexOf(mark)) }

// InsertAfter attaches i immediately after mark, which must be in b.
func (b *Block) InsertAfter(i, mark *Instr) { b.attach(i, b.indexOf(mark)+1) }

func (b *Block) indexOf(i *Instr) int {
	for k, in := range b.instrs {
		if in == i {
			return k
		}
	}
	panic("ir: instruction %" + i.name + " not in block " + b.name)
}

func (b *Block) attach(i *Instr, at int) {
	if i.block != nil {
		panic("ir: instruction %" + i.name + " already attached")
	}
	i.block = b
	b.instrs = append(b.instrs, nil)
	copy(b.instrs[at+1:], b.instrs[at:])
	b.instrs[at] = i
	if i.name == "" && i.typ != Void && b.fn != nil {
		i.name = b.fn.genName("t")
	}
	for _, t := range i.Targets {
		t.addPred(b)
	}
}

func (b *Block) remove(i *Instr) {
	at := b.indexOf(i)
	b.instrs = append(b.instrs[:at], b.instrs[at+1:]...)
	for _, t := range i.Targets {
		t.removePred(b)
	}
	i.block = nil
}

func (b *Block) addPred(p *Block) { b.preds = append(b.preds, p) }

// removePred drops one occurrence of p, one edge's worth.
func (b *Block) removePred(p *Block) {
	for k, q := range b.preds {
		if q == p {
			b.preds = append(b.preds[:k], b.preds[k+1:]...)
			return
		}
	}
}

func (b *Block) replacePredAll(old, new *Block) {
	for k, q := range b.preds {
		if q == old {
			b.preds[k] = new
		}
	}
}

// SplitBefore cuts the block in two immediately before mark: mark and
// everything after it, terminator included, move to a fresh block placed
// right after b, and b is re-terminated with a plain branch to it. Successor
// predecessor lists and phi incoming entries that referenced b through the
// moved terminator are rewritten to the new block.
func (b *Block) SplitBefore(mark *Instr, name string) *Block {
	at := b.indexOf(mark)
	nb := b.fn.insertBlock(b.index+1, name)

	moved := b.instrs[at:]
	b.instrs = b.instrs[:at:at]
	nb.instrs = append(nb.instrs, moved...)
	for _, i := range moved {
		i.block = nb
	}

	if t := nb.Term(); t != nil {
		seen := map[*Block]bool{}
		for _, s := range t.Targets {
			if seen[s] {
				continue
			}
			seen[s] = true
			s.replacePredAll(b, nb)
			for _, phi := range s.Phis() {
				phi.ReplaceIncomingBlock(b, nb)
			}
		}
	}

	b.Append(NewInstr(OpBr, Void).withTargets(nb))
	return nb
}

func (i *Instr) withTargets(bs ...*Block) *Instr {
	i.Targets = bs
	return i
}
