package swift

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/tudinfse/elzar/ir"
)

func TestLaneWidthLaw(t *testing.T) {
	types := []*ir.Type{ir.I8, ir.I16, ir.I32, ir.I64, ir.Float, ir.Double, ir.Ptr}
	for _, typ := range types {
		n, known, err := laneCountFor(ProfileHardened, typ)
		assert.NilError(t, err, typ.String())
		assert.Assert(t, known, typ.String())
		assert.Equal(t, n*typ.ScalarBits(), TotalBits, typ.String())

		n, known, err = laneCountFor(ProfileSimplified, typ)
		assert.NilError(t, err, typ.String())
		assert.Assert(t, known, typ.String())
		assert.Equal(t, n, 2, typ.String())
	}
}

func TestLaneCountBoolPromotes(t *testing.T) {
	n, known, err := laneCountFor(ProfileHardened, ir.I1)
	assert.NilError(t, err)
	assert.Assert(t, known)
	assert.Equal(t, n, 4)
}

func TestLaneCountOddWidthFallsBack(t *testing.T) {
	n, known, err := laneCountFor(ProfileHardened, ir.IntType(24))
	assert.NilError(t, err)
	assert.Assert(t, !known)
	assert.Equal(t, n, fallbackLanes)
}

func TestLaneCountNonScalar(t *testing.T) {
	for _, typ := range []*ir.Type{ir.Void, ir.StructOf(ir.I64, ir.I1), ir.VecOf(ir.I64, 4)} {
		_, _, err := laneCountFor(ProfileHardened, typ)
		assert.ErrorIs(t, err, ErrUnsupported, typ.String())
	}
}

func TestValueMapDoubleDefine(t *testing.T) {
	m := newValueMap()
	a := ir.ConstInt(ir.I64, 1)
	assert.NilError(t, m.define(a, ir.ConstInt(ir.I64, 2)))
	assert.ErrorIs(t, m.define(a, ir.ConstInt(ir.I64, 3)), ErrInternal)
	assert.Assert(t, m.lookup(ir.ConstInt(ir.I64, 9)) == nil)
}

func TestParseProfile(t *testing.T) {
	for in, want := range map[string]Profile{
		"hardened":   ProfileHardened,
		"avx":        ProfileHardened,
		"Simplified": ProfileSimplified,
		"simd":       ProfileSimplified,
	} {
		got, err := ParseProfile(in)
		assert.NilError(t, err, in)
		assert.Equal(t, got, want, in)
	}
	_, err := ParseProfile("triple")
	assert.ErrorContains(t, err, "unknown profile")
}
