package ir

import "testing"

func TestTypeString(t *testing.T) {
	cases := []struct {
		typ  *Type
		want string
	}{
		{I1, "i1"},
		{I64, "i64"},
		{Float, "float"},
		{Double, "double"},
		{Ptr, "ptr"},
		{Void, "void"},
		{VecOf(I64, 4), "<4 x i64>"},
		{VecOf(Float, 8), "<8 x float>"},
		{StructOf(I64, I1), "{i64, i1}"},
		{FuncOf(I32, []*Type{Ptr}, true), "i32 (ptr, ...)"},
	}
	for _, c := range cases {
		if got := c.typ.String(); got != c.want {
			t.Errorf("String: got %q, want %q", got, c.want)
		}
	}
}

func TestTypeEqual(t *testing.T) {
	if !VecOf(I64, 4).Equal(VecOf(IntType(64), 4)) {
		t.Error("Equal: identical vector types compare unequal")
	}
	if VecOf(I64, 4).Equal(VecOf(I64, 8)) {
		t.Error("Equal: different lane counts compare equal")
	}
	if VecOf(I64, 4).Equal(VecOf(I32, 4)) {
		t.Error("Equal: different elements compare equal")
	}
	if !StructOf(I64, I1).Equal(StructOf(I64, I1)) {
		t.Error("Equal: identical struct types compare unequal")
	}
	if I32.Equal(Float) {
		t.Error("Equal: i32 equals float")
	}
}

func TestScalarBits(t *testing.T) {
	cases := []struct {
		typ  *Type
		want int
	}{
		{I1, 1}, {I8, 8}, {I16, 16}, {I32, 32}, {I64, 64},
		{Float, 32}, {Double, 64}, {Ptr, 64},
	}
	for _, c := range cases {
		if got := c.typ.ScalarBits(); got != c.want {
			t.Errorf("ScalarBits(%s): got %d, want %d", c.typ, got, c.want)
		}
	}
}

func TestSizeBytes(t *testing.T) {
	if got := I1.SizeBytes(); got != 1 {
		t.Errorf("SizeBytes(i1): got %d, want 1", got)
	}
	if got := VecOf(I32, 8).SizeBytes(); got != 32 {
		t.Errorf("SizeBytes(<8 x i32>): got %d, want 32", got)
	}
	if got := StructOf(I64, I1).SizeBytes(); got != 9 {
		t.Errorf("SizeBytes({i64, i1}): got %d, want 9", got)
	}
}
