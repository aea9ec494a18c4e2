package interp

import (
	"errors"
	"math"
	"strings"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/tudinfse/elzar/ir"
)

func machine(t *testing.T, src string) *Machine {
	t.Helper()
	m, err := ir.Parse(t.Name(), src)
	assert.NilError(t, err)
	mc, err := New(m)
	assert.NilError(t, err)
	return mc
}

func run(t *testing.T, src, fn string, args ...uint64) uint64 {
	t.Helper()
	got, err := machine(t, src).Run(fn, args...)
	assert.NilError(t, err)
	return got
}

func neg(x int64) uint64 { return uint64(x) }

func TestIntegerOps(t *testing.T) {
	const tmpl = `
func @f(%a i64, %b i64) i64 {
entry:
  %r = OP i64 %a, %b
  ret i64 %r
}
`
	tests := []struct {
		name string
		op   string
		a, b uint64
		want uint64
	}{
		{"add", "add", 40, 2, 42},
		{"sub", "sub", 2, 5, neg(-3)},
		{"mul", "mul", 6, 7, 42},
		{"sdiv", "sdiv", neg(-9), 2, neg(-4)},
		{"udiv", "udiv", neg(-9), 2, (math.MaxUint64 - 8) / 2},
		{"srem", "srem", neg(-9), 2, neg(-1)},
		{"urem", "urem", 7, 4, 3},
		{"and", "and", 0b1100, 0b1010, 0b1000},
		{"or", "or", 0b1100, 0b1010, 0b1110},
		{"xor", "xor", 0b1100, 0b1010, 0b0110},
		{"shl", "shl", 1, 3, 8},
		{"shl-wide", "shl", 1, 64, 0},
		{"lshr", "lshr", neg(-1), 60, 15},
		{"lshr-wide", "lshr", 8, 70, 0},
		{"ashr", "ashr", neg(-16), 2, neg(-4)},
		{"ashr-wide-neg", "ashr", neg(-1), 100, neg(-1)},
		{"ashr-wide-pos", "ashr", 8, 70, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := strings.Replace(tmpl, "OP", tc.op, 1)
			assert.Equal(t, run(t, src, "f", tc.a, tc.b), tc.want)
		})
	}
}

func TestNarrowWraparound(t *testing.T) {
	const src = `
func @f(%a i8, %b i8) i8 {
entry:
  %r = add i8 %a, %b
  ret i8 %r
}
`
	assert.Equal(t, run(t, src, "f", 200, 100), uint64(44))
}

func TestDivideByZero(t *testing.T) {
	const src = `
func @f(%a i64, %b i64) i64 {
entry:
  %r = sdiv i64 %a, %b
  ret i64 %r
}
`
	_, err := machine(t, src).Run("f", 1, 0)
	assert.ErrorContains(t, err, "division by zero")
}

func TestComparisons(t *testing.T) {
	const tmpl = `
func @f(%a i32, %b i32) i1 {
entry:
  %c = icmp PRED i32 %a, %b
  ret i1 %c
}
`
	tests := []struct {
		pred string
		a, b uint64
		want uint64
	}{
		{"eq", 5, 5, 1},
		{"ne", 5, 5, 0},
		{"sgt", 0, 0xffffffff, 1},
		{"ugt", 0, 0xffffffff, 0},
		{"slt", 0xffffffff, 0, 1},
		{"ule", 3, 3, 1},
	}
	for _, tc := range tests {
		t.Run(tc.pred, func(t *testing.T) {
			src := strings.Replace(tmpl, "PRED", tc.pred, 1)
			assert.Equal(t, run(t, src, "f", tc.a, tc.b), tc.want)
		})
	}
}

func TestFloatMath(t *testing.T) {
	const src = `
func @f(%a double, %b double) double {
entry:
  %m = fmul double %a, %b
  %s = fadd double %m, %a
  ret double %s
}
`
	d := math.Float64bits
	got := run(t, src, "f", d(1.5), d(2.0))
	assert.Equal(t, math.Float64frombits(got), 4.5)
}

func TestFloatCompareNaN(t *testing.T) {
	const src = `
func @f(%a double, %b double) i1 {
entry:
  %c = fcmp olt double %a, %b
  ret i1 %c
}
`
	d := math.Float64bits
	assert.Equal(t, run(t, src, "f", d(0.5), d(1.0)), uint64(1))
	assert.Equal(t, run(t, src, "f", d(math.NaN()), d(1.0)), uint64(0))
}

func TestIntConversions(t *testing.T) {
	const src = `
func @f(%a i64) i64 {
entry:
  %t = trunc i64 %a to i8
  %s = sext i8 %t to i64
  ret i64 %s
}

func @g(%a i64) i64 {
entry:
  %t = trunc i64 %a to i8
  %z = zext i8 %t to i64
  ret i64 %z
}
`
	assert.Equal(t, run(t, src, "f", 0xff), neg(-1))
	assert.Equal(t, run(t, src, "g", 0xff), uint64(255))
}

func TestFloatConversions(t *testing.T) {
	const src = `
func @f(%a i64) i64 {
entry:
  %d = sitofp i64 %a to double
  %h = fmul double %d, %d
  %r = fptosi double %h to i64
  ret i64 %r
}
`
	assert.Equal(t, run(t, src, "f", neg(-3)), uint64(9))
}

func TestBitcastRepacksLanes(t *testing.T) {
	const src = `
func @f(%a i64) i64 {
entry:
  %d = bitcast i64 %a to double
  %r = bitcast double %d to i64
  ret i64 %r
}

func @g(%a i32, %b i32) i64 {
entry:
  %v = broadcast <2 x i32> %a
  %w = insertlane <2 x i32> %v, i32 %b, 1
  %r = bitcast <2 x i32> %w to i64
  ret i64 %r
}
`
	assert.Equal(t, run(t, src, "f", 0x3ff0000000000001), uint64(0x3ff0000000000001))
	assert.Equal(t, run(t, src, "g", 2, 3), uint64(3)<<32|2)
}

func TestMemoryRoundTrip(t *testing.T) {
	const src = `
func @f(%x i64) i64 {
entry:
  %p = alloca i64, i64 2
  %q = gep i64, ptr %p, i64 1
  store i64 %x, ptr %q
  %v = load i64, ptr %q
  ret i64 %v
}
`
	assert.Equal(t, run(t, src, "f", 12345), uint64(12345))
}

func TestStructFieldOffsets(t *testing.T) {
	const src = `
func @f(%x i32) i32 {
entry:
  %p = alloca {i64, i32}, i64 1
  %f0 = gep {i64, i32}, ptr %p, i64 0, i64 0
  %f1 = gep {i64, i32}, ptr %p, i64 0, i64 1
  store i64 -1, ptr %f0
  store i32 %x, ptr %f1
  %v = load i32, ptr %f1
  ret i32 %v
}
`
	assert.Equal(t, run(t, src, "f", 9), uint64(9))
}

func TestBadAccessFaults(t *testing.T) {
	const src = `
func @f(%p ptr) i64 {
entry:
  %v = load i64, ptr %p
  ret i64 %v
}
`
	mc := machine(t, src)
	_, err := mc.Run("f", 0)
	assert.ErrorContains(t, err, "nil page")
	_, err = mc.Run("f", 1<<40)
	assert.ErrorContains(t, err, "out of bounds")
}

func TestGlobalState(t *testing.T) {
	const src = `
global @seed = i64 41

func @next() i64 {
entry:
  %v = load i64, ptr @seed
  %n = add i64 %v, 1
  store i64 %n, ptr @seed
  ret i64 %n
}
`
	mc := machine(t, src)
	got, err := mc.Run("next")
	assert.NilError(t, err)
	assert.Equal(t, got, uint64(42))
	got, err = mc.Run("next")
	assert.NilError(t, err)
	assert.Equal(t, got, uint64(43))

	addr, ok := mc.GlobalAddr("seed")
	assert.Assert(t, ok)
	v, err := mc.Peek(addr, 8)
	assert.NilError(t, err)
	assert.Equal(t, v, uint64(43))
}

func TestExternCallsAndTrace(t *testing.T) {
	const src = `
declare @emit(i64) void
declare @clock() i64

func @f(%a i64) i64 {
entry:
  call void @emit(i64 %a)
  %t = call i64 @clock()
  %r = add i64 %t, %a
  call void @emit(i64 %r)
  ret i64 %r
}
`
	mc := machine(t, src)
	mc.Externs["emit"] = func([]uint64) (uint64, error) { return 0, nil }
	mc.Externs["clock"] = func([]uint64) (uint64, error) { return 100, nil }
	got, err := mc.Run("f", 5)
	assert.NilError(t, err)
	assert.Equal(t, got, uint64(105))
	assert.DeepEqual(t, mc.Trace, []string{"emit(5)", "clock()", "emit(105)"})

	_, err = machine(t, src).Run("f", 5)
	assert.ErrorContains(t, err, "unbound external @emit")
}

func TestIndirectCall(t *testing.T) {
	const src = `
func @inc(%x i64) i64 {
entry:
  %r = add i64 %x, 1
  ret i64 %r
}

func @dec(%x i64) i64 {
entry:
  %r = sub i64 %x, 1
  ret i64 %r
}

func @apply(%c i1, %x i64) i64 {
entry:
  %fp = select i1 %c, ptr @inc, ptr @dec
  %r = call i64 %fp(i64 %x)
  ret i64 %r
}
`
	assert.Equal(t, run(t, src, "apply", 1, 10), uint64(11))
	assert.Equal(t, run(t, src, "apply", 0, 10), uint64(9))
}

func TestSwitchDispatch(t *testing.T) {
	const src = `
func @f(%k i64) i64 {
entry:
  switch i64 %k, other, [1: one, 2: two]
one:
  ret i64 10
two:
  ret i64 20
other:
  ret i64 0
}
`
	assert.Equal(t, run(t, src, "f", 1), uint64(10))
	assert.Equal(t, run(t, src, "f", 2), uint64(20))
	assert.Equal(t, run(t, src, "f", 9), uint64(0))
}

func TestLoopAccumulates(t *testing.T) {
	const src = `
func @sum(%n i64) i64 {
entry:
  br loop
loop:
  %i = phi i64 [0, entry], [%i2, loop]
  %acc = phi i64 [0, entry], [%acc2, loop]
  %acc2 = add i64 %acc, %i
  %i2 = add i64 %i, 1
  %t = icmp slt i64 %i2, %n
  condbr i1 %t, loop, exit
exit:
  ret i64 %acc2
}
`
	assert.Equal(t, run(t, src, "sum", 5), uint64(10))
	assert.Equal(t, run(t, src, "sum", 1), uint64(0))
}

func TestMergesCommitTogether(t *testing.T) {
	// The two merges swap values every iteration; evaluating them in
	// sequence instead of staging them would collapse both to one value.
	const src = `
func @swap(%n i64) i64 {
entry:
  br loop
loop:
  %a = phi i64 [1, entry], [%b, loop]
  %b = phi i64 [2, entry], [%a, loop]
  %i = phi i64 [0, entry], [%i2, loop]
  %i2 = add i64 %i, 1
  %t = icmp slt i64 %i2, %n
  condbr i1 %t, loop, exit
exit:
  %r = mul i64 %a, 10
  %s = add i64 %r, %b
  ret i64 %s
}
`
	assert.Equal(t, run(t, src, "swap", 2), uint64(21))
	assert.Equal(t, run(t, src, "swap", 3), uint64(12))
}

func TestAtomicOps(t *testing.T) {
	const src = `
func @f(%d i64) i64 {
entry:
  %p = alloca i64, i64 1
  store i64 10, ptr %p
  %old = atomicrmw add ptr %p, i64 %d
  %now = load i64, ptr %p
  %c = mul i64 %old, 100
  %r = add i64 %c, %now
  ret i64 %r
}

func @g(%d i64) i64 {
entry:
  %p = alloca i64, i64 1
  store i64 -5, ptr %p
  %old = atomicrmw max ptr %p, i64 %d
  %now = load i64, ptr %p
  ret i64 %now
}
`
	assert.Equal(t, run(t, src, "f", 5), uint64(1015))
	assert.Equal(t, run(t, src, "g", 3), uint64(3))
	assert.Equal(t, run(t, src, "g", neg(-9)), neg(-5))
}

func TestCmpXchg(t *testing.T) {
	const src = `
func @f(%want i64, %next i64) i64 {
entry:
  %p = alloca i64, i64 1
  store i64 7, ptr %p
  %r = cmpxchg ptr %p, i64 %want, i64 %next
  %old = extractvalue {i64, i1} %r, 0
  %ok = extractvalue {i64, i1} %r, 1
  %okz = zext i1 %ok to i64
  %now = load i64, ptr %p
  %h = mul i64 %old, 100
  %m = mul i64 %okz, 10
  %s = add i64 %h, %m
  %v = add i64 %s, %now
  ret i64 %v
}
`
	assert.Equal(t, run(t, src, "f", 7, 9), uint64(719))
	assert.Equal(t, run(t, src, "f", 5, 9), uint64(707))
}

func TestStepBudget(t *testing.T) {
	const src = `
func @spin() void {
entry:
  br entry
}
`
	mc := machine(t, src)
	mc.MaxSteps = 100
	_, err := mc.Run("spin")
	assert.ErrorContains(t, err, "step budget exhausted")
}

func TestUnreachable(t *testing.T) {
	const src = `
func @f() i64 {
entry:
  unreachable
}
`
	_, err := machine(t, src).Run("f")
	assert.ErrorContains(t, err, "unreachable executed")
}

func TestCheckHelperVotes(t *testing.T) {
	const src = `
declare @ELZAR_check_i64(<4 x i64>) <4 x i64>

func @one(%a i64, %bad i64) i64 {
entry:
  %v = broadcast <4 x i64> %a
  %w = insertlane <4 x i64> %v, i64 %bad, 2
  %chk = call <4 x i64> @ELZAR_check_i64(<4 x i64> %w)
  %r = extractlane <4 x i64> %chk, 0
  ret i64 %r
}

func @two(%a i64, %bad i64) i64 {
entry:
  %v = broadcast <4 x i64> %a
  %w = insertlane <4 x i64> %v, i64 %bad, 2
  %u = insertlane <4 x i64> %w, i64 %bad, 3
  %chk = call <4 x i64> @ELZAR_check_i64(<4 x i64> %u)
  %r = extractlane <4 x i64> %chk, 0
  ret i64 %r
}
`
	assert.Equal(t, run(t, src, "one", 9, 1), uint64(9))

	_, err := machine(t, src).Run("two", 9, 1)
	assert.ErrorContains(t, err, "no majority")
	var ve *VoteError
	assert.Assert(t, errors.As(err, &ve))
	assert.Equal(t, ve.Op, "check_i64")
}

func TestFaultFiresOnce(t *testing.T) {
	const src = `
func @f(%a i64) i64 {
entry:
  %r = add i64 %a, 1
  %s = mul i64 %r, 2
  ret i64 %s
}
`
	mc := machine(t, src)
	mc.Fault = &Fault{Func: "f", Value: "r", Lane: 0, Flip: 0b100}
	got, err := mc.Run("f", 1)
	assert.NilError(t, err)
	assert.Equal(t, got, uint64(12))

	got, err = mc.Run("f", 1)
	assert.NilError(t, err)
	assert.Equal(t, got, uint64(4))
}
