package ir

import "testing"

func blockNames(bs []*Block) []string {
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = b.Name()
	}
	return names
}

func checkOrder(t *testing.T, got []*Block, want []string) {
	t.Helper()
	names := blockNames(got)
	if len(names) != len(want) {
		t.Fatalf("order: got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order: got %v, want %v", names, want)
		}
	}
}

func TestDomOrderDiamond(t *testing.T) {
	f, _ := buildDiamond(t)
	checkOrder(t, f.DomOrder(), []string{"entry", "left", "right", "join"})
}

func TestDomOrderLoop(t *testing.T) {
	m := NewModule("test")
	f := m.NewFunc("f", FuncOf(I64, []*Type{I64}, false))
	n := f.NewParam("n", I64)

	entry := f.NewBlock("entry")
	loop := f.NewBlock("loop")
	done := f.NewBlock("done")

	bld := NewBuilder(f)
	bld.SetBlock(entry)
	bld.Br(loop)

	bld.SetBlock(loop)
	i := bld.Phi("i", I64)
	next := bld.BinOp(OpAdd, "next", i, ConstInt(I64, 1))
	i.AddIncoming(ConstInt(I64, 0), entry)
	i.AddIncoming(next, loop)
	c := bld.ICmp(PredSLT, "c", next, n)
	bld.CondBr(c, loop, done, BranchLikely)

	bld.SetBlock(done)
	bld.Ret(next)

	// The back edge must not disturb the order: loop's only dominator
	// besides itself is entry, and done is dominated by loop.
	checkOrder(t, f.DomOrder(), []string{"entry", "loop", "done"})
}

func TestDomOrderNestedJoin(t *testing.T) {
	m := NewModule("test")
	f := m.NewFunc("f", FuncOf(Void, []*Type{I1, I1}, false))
	p := f.NewParam("p", I1)
	q := f.NewParam("q", I1)

	entry := f.NewBlock("entry")
	a := f.NewBlock("a")
	b := f.NewBlock("b")
	c := f.NewBlock("c")
	exit := f.NewBlock("exit")

	bld := NewBuilder(f)
	bld.SetBlock(entry)
	bld.CondBr(p, a, exit, BranchUnknown)
	bld.SetBlock(a)
	bld.CondBr(q, b, c, BranchUnknown)
	bld.SetBlock(b)
	bld.Br(exit)
	bld.SetBlock(c)
	bld.Br(exit)
	bld.SetBlock(exit)
	bld.Ret(nil)

	// exit has three predecessors but its immediate dominator is entry,
	// so it is visited as entry's child, after the a subtree.
	checkOrder(t, f.DomOrder(), []string{"entry", "a", "b", "c", "exit"})
}

func TestDomOrderUnreachable(t *testing.T) {
	m := NewModule("test")
	f := m.NewFunc("f", FuncOf(Void, nil, false))

	entry := f.NewBlock("entry")
	orphan := f.NewBlock("orphan")
	tail := f.NewBlock("tail")

	bld := NewBuilder(f)
	bld.SetBlock(entry)
	bld.Br(tail)
	bld.SetBlock(orphan)
	bld.Unreachable()
	bld.SetBlock(tail)
	bld.Ret(nil)

	// Unreachable blocks trail the dominance order in function order.
	checkOrder(t, f.DomOrder(), []string{"entry", "tail", "orphan"})
}
