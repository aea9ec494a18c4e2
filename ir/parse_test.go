package ir

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const roundTripSrc = `
global @g = i64 7
global @fg = double 2.5

declare @ext(i64) i64
declare @printf(ptr, ...) i32

func @math(%a i64, %b i64) i64 {
entry:
  %sum = add i64 %a, %b
  %cmp = icmp sgt i64 %sum, 0
  condbr i1 %cmp, pos, neg !likely
pos:
  %dbl = shl i64 %sum, 1
  br done
neg:
  %neg1 = sub i64 0, %sum
  br done
done:
  %r = phi i64 [%dbl, pos], [%neg1, neg]
  %out = call i64 @ext(i64 %r)
  ret i64 %out
}

func @vecops(%p ptr, %n i64) void {
entry:
  %v = broadcast <4 x i64> -1
  %x = extractlane <4 x i64> %v, 0
  %v2 = insertlane <4 x i64> %v, i64 %x, 2
  %shuf = shuffle <4 x i64> %v, %v2, [0, 4, 1, 5]
  %slot = gep i64, ptr %p, i64 %n
  %old = load i64, ptr %slot
  store i64 %x, ptr @g
  %was = atomicrmw add ptr %slot, i64 1
  %pair = cmpxchg ptr %slot, i64 %was, i64 %old
  %new = extractvalue {i64, i1} %pair, 0
  %ok = extractvalue {i64, i1} %pair, 1
  %pair2 = insertvalue {i64, i1} %pair, i64 %new, 0
  fence
  %sel = select i1 %ok, i64 %new, i64 %old
  %buf = alloca i64, i64 4
  store i64 %sel, ptr %buf
  call void asm ""()
  ret void
}

func @flow(%s i64, %fp ptr) i64 {
entry:
  switch i64 %s, def, [1: one, 2: two]
one:
  br def
two:
  %t = trunc i64 %s to i32
  %w = zext i32 %t to i64
  br def
def:
  %m = phi i64 [0, entry], [%w, two], [1, one]
  %ind = call i64 %fp(i64 %m)
  ret i64 %ind
}

func @jump(%a ptr) void {
entry:
  indirectbr ptr %a, [b1, b2]
b1:
  ret void
b2:
  unreachable
}

func @tryit(%x i64) i64 {
entry:
  %r = invoke i64 @ext(i64 %x) to cont unwind lpad
cont:
  ret i64 %r
lpad:
  %lp = landingpad {ptr, i32}
  resume {ptr, i32} %lp
}

func @sum(%count i64, ...) i64 {
entry:
  %ap = alloca i8, i64 24
  %first = vaarg i64, ptr %ap
  ret i64 %first
}

func @fmath(%d double) double {
entry:
  %e = fadd double %d, 1.5
  %c = fcmp ogt double %e, 0.0
  %conv = fptosi double %e to i64
  %back = sitofp i64 %conv to double
  %pick = select i1 %c, double %e, double %back
  ret double %pick
}
`

// TestParseRoundTrip checks that printing reaches a fixed point: the printed
// form of a parsed module reparses to the identical text.
func TestParseRoundTrip(t *testing.T) {
	m, err := Parse("rt", roundTripSrc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s1 := m.String()
	m2, err := Parse("rt", s1)
	if err != nil {
		t.Fatalf("reparse: %v\nprinted:\n%s", err, s1)
	}
	if s2 := m2.String(); s2 != s1 {
		t.Errorf("print not stable (-first +second):\n%s", cmp.Diff(s1, s2))
	}
}

func TestParseStructure(t *testing.T) {
	m, err := Parse("rt", roundTripSrc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := len(m.Funcs()); got != 9 {
		t.Errorf("functions: got %d, want 9", got)
	}
	if f := m.Func("ext"); f == nil || !f.IsDecl() {
		t.Error("@ext not parsed as a declaration")
	}
	if f := m.Func("printf"); f == nil || !f.Sig().Variadic {
		t.Error("@printf not parsed as variadic")
	}
	if g := m.Global("g"); g == nil || g.Elem != I64 || g.Init.Int != 7 {
		t.Error("@g not parsed as i64 7")
	}

	math := m.Func("math")
	br := math.Entry().Term()
	if br.Op() != OpCondBr || br.Predict != BranchLikely {
		t.Error("condbr prediction annotation lost")
	}
	phi := math.BlockByName("done").First()
	if phi.Op() != OpPhi {
		t.Fatal("done does not start with a phi")
	}
	if v := phi.IncomingFor(math.BlockByName("pos")); v == nil || v.Ident() != "%dbl" {
		t.Errorf("phi incoming for pos: got %v, want %%dbl", v)
	}

	vec := m.Func("vecops")
	bc := vec.Entry().First()
	if bc.Op() != OpBroadcast || !bc.Type().Equal(VecOf(I64, 4)) {
		t.Errorf("broadcast type: got %s", bc.Type())
	}
	if c, ok := bc.Arg(0).(*Const); !ok || c.Int != -1 || c.Type() != I64 {
		t.Error("broadcast scalar not parsed as scalar i64 -1")
	}

	flow := m.Func("flow")
	sw := flow.Entry().Term()
	if sw.Op() != OpSwitch || len(sw.Cases) != 2 || sw.Cases[0] != 1 || sw.Cases[1] != 2 {
		t.Errorf("switch cases: got %v, want [1 2]", sw.Cases)
	}
	mphi := flow.BlockByName("def").First()
	if v := mphi.IncomingFor(flow.Entry()); v == nil {
		t.Error("phi constant incoming from entry missing")
	} else if c, ok := v.(*Const); !ok || c.Int != 0 {
		t.Errorf("phi incoming from entry: got %v, want 0", v)
	}

	asmCall := vec.Entry().Instrs()[len(vec.Entry().Instrs())-2]
	if asmCall.Op() != OpCall {
		t.Fatal("expected an asm call before ret")
	}
	if a, ok := asmCall.Callee.(*InlineAsm); !ok || a.Asm != "" {
		t.Error("asm callee not parsed as the empty fragment")
	}
}

func TestParsePhiForwardRef(t *testing.T) {
	src := `
func @count(%n i64) i64 {
entry:
  br loop
loop:
  %i = phi i64 [0, entry], [%next, loop]
  %next = add i64 %i, 1
  %c = icmp slt i64 %next, %n
  condbr i1 %c, loop, done
done:
  ret i64 %next
}
`
	m, err := Parse("fwd", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	f := m.Func("count")
	loop := f.BlockByName("loop")
	phi := loop.First()
	next := phi.IncomingFor(loop)
	if next == nil || next.Ident() != "%next" {
		t.Fatalf("forward phi incoming: got %v, want %%next", next)
	}
	if in, ok := next.(*Instr); !ok || in.Uses() != 3 {
		t.Errorf("uses of %%next: got %v, want 3", next)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			"unknown instruction",
			"func @f() void {\nentry:\n  %x = frobnicate i64 1\n}",
			"unknown instruction",
		},
		{
			"undefined value",
			"func @f() void {\nentry:\n  %x = add i64 %nope, 1\n  ret void\n}",
			"use of undefined value",
		},
		{
			"bad literal",
			"func @f() void {\nentry:\n  %x = add i64 zzz, 1\n  ret void\n}",
			"bad i64 literal",
		},
		{
			"duplicate block",
			"func @f() void {\nentry:\n  ret void\nentry:\n  ret void\n}",
			"duplicate block",
		},
		{
			"redefined local",
			"func @f() void {\nentry:\n  %x = add i64 1, 2\n  %x = add i64 3, 4\n  ret void\n}",
			"redefinition of %x",
		},
		{
			"branch to unknown block",
			"func @f() void {\nentry:\n  br nowhere\n}",
			"br to unknown block",
		},
		{
			"missing close",
			"func @f() void {\nentry:\n  ret void\n",
			"missing closing",
		},
		{
			"instruction before label",
			"func @f() void {\n  ret void\n}",
			"instruction before first block label",
		},
		{
			"top level junk",
			"banana",
			"unexpected \"banana\" at top level",
		},
		{
			"global redefinition",
			"global @g = i64 1\nglobal @g = i64 2",
			"redefinition of @g",
		},
		{
			"trailing tokens",
			"func @f() void {\nentry:\n  ret void extra\n}",
			"trailing",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("bad", tc.src)
			if err == nil {
				t.Fatal("parse unexpectedly succeeded")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
