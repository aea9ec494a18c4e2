package ir

import "testing"

func TestCollectStats(t *testing.T) {
	src := `
declare @ext(i64) i64

func @mixed(%a i64) i64 {
entry:
  %v = broadcast <4 x i64> 1
  %w = add <4 x i64> %v, %v
  %x = extractlane <4 x i64> %w, 0
  call void asm ""()
  %r = call i64 @ext(i64 %x)
  ret i64 %r
}

func @plain(%a i64) i64 {
entry:
  %r = add i64 %a, 1
  ret i64 %r
}
`
	m, err := Parse("stats", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	st := CollectStats(m)

	if got := len(st.Funcs); got != 2 {
		t.Fatalf("counted functions: got %d, want 2 (declarations excluded)", got)
	}
	if st.TotalInsts != 8 {
		t.Errorf("total instructions: got %d, want 8", st.TotalInsts)
	}
	if st.TotalAsmCalls != 1 {
		t.Errorf("asm calls: got %d, want 1", st.TotalAsmCalls)
	}
	// %w reads a vector twice but counts once; %x reads one vector operand.
	if st.TotalVecInsts != 2 {
		t.Errorf("vector instructions: got %d, want 2", st.TotalVecInsts)
	}

	fs := st.PerFunc[m.Func("plain")]
	if fs == nil || fs.Insts != 2 || fs.VecInsts != 0 || fs.AsmCalls != 0 {
		t.Errorf("plain stats: got %+v", fs)
	}
}
