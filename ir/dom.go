// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

package ir

import "sort"

// This file computes dominator-tree visitation order. Immediate dominators
// are found with the Cooper-Harvey-Kennedy iteration over a postorder
// numbering; the tree is then walked in preorder, so a block is always
// visited after every block that must execute before it on any
// entry-reaching path.

type blockAndIndex struct {
	b     *Block
	index int // next successor index to visit
}

// postorder returns the entry-reachable blocks in postorder, filling
// ponums with each block's postorder number (indexed by Block.index).
func (f *Func) postorder(ponums []int) []*Block {
	seen := make([]bool, len(f.blocks))
	order := make([]*Block, 0, len(f.blocks))
	entry := f.blocks[0]
	s := make([]blockAndIndex, 0, 32)
	s = append(s, blockAndIndex{b: entry})
	seen[entry.index] = true
	for len(s) > 0 {
		tos := len(s) - 1
		x := s[tos]
		b := x.b
		if i := x.index; i < len(b.Succs()) {
			s[tos].index++
			bb := b.Succs()[i]
			if !seen[bb.index] {
				seen[bb.index] = true
				s = append(s, blockAndIndex{b: bb})
			}
			continue
		}
		s = s[:tos]
		ponums[b.index] = len(order)
		order = append(order, b)
	}
	return order
}

// intersect finds the closest common ancestor of b and c in the dominator
// tree under construction, walking up toward higher postorder numbers.
func intersect(b, c *Block, ponums []int, idom []*Block) *Block {
	for b != c {
		for ponums[b.index] < ponums[c.index] {
			b = idom[b.index]
		}
		for ponums[c.index] < ponums[b.index] {
			c = idom[c.index]
		}
	}
	return b
}

// DomOrder returns every block of f, dominance-tree preorder first, then
// blocks unreachable from the entry (landing pads and the like) in function
// order.
func (f *Func) DomOrder() []*Block {
	if len(f.blocks) == 0 {
		return nil
	}
	n := len(f.blocks)
	ponums := make([]int, n)
	for i := range ponums {
		ponums[i] = -1
	}
	po := f.postorder(ponums)
	entry := f.blocks[0]

	idom := make([]*Block, n)
	idom[entry.index] = entry
	for changed := true; changed; {
		changed = false
		// Reverse postorder; the entry is last in po.
		for i := len(po) - 2; i >= 0; i-- {
			b := po[i]
			var nd *Block
			for _, p := range b.preds {
				if ponums[p.index] < 0 || idom[p.index] == nil {
					continue
				}
				if nd == nil {
					nd = p
					continue
				}
				nd = intersect(p, nd, ponums, idom)
			}
			if nd != nil && idom[b.index] != nd {
				idom[b.index] = nd
				changed = true
			}
		}
	}

	kids := make([][]*Block, n)
	for _, b := range po {
		if b != entry {
			d := idom[b.index]
			kids[d.index] = append(kids[d.index], b)
		}
	}
	for _, k := range kids {
		sort.Slice(k, func(i, j int) bool { return k[i].index < k[j].index })
	}

	order := make([]*Block, 0, n)
	var walk func(*Block)
	walk = func(b *Block) {
		order = append(order, b)
		for _, k := range kids[b.index] {
			walk(k)
		}
	}
	walk(entry)

	for _, b := range f.blocks {
		if ponums[b.index] < 0 {
			order = append(order, b)
		}
	}
	return order
}
