package interp

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/tudinfse/elzar/ir"
	"github.com/tudinfse/elzar/swift"
)

const axpySrc = `
func @axpy(%a i64, %x i64, %y i64) i64 {
entry:
  %m = mul i64 %a, %x
  %s = add i64 %m, %y
  ret i64 %s
}
`

const sumSrc = `
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

const bumpSrc = `
global @ctr = i64 0

func @bump(%d i64) i64 {
entry:
  %v = load i64, ptr @ctr
  %n = add i64 %v, %d
  store i64 %n, ptr @ctr
  ret i64 %n
}
`

const emitSrc = `
declare @emit(i64) void

func @work(%a i64) i64 {
entry:
  %b = mul i64 %a, 3
  call void @emit(i64 %b)
  %c = add i64 %b, 1
  call void @emit(i64 %c)
  ret i64 %c
}
`

const driveSrc = `
func @classify(%a i64, %b i64, %p ptr) i64 {
entry:
  %r = add i64 %a, %b
  %c = icmp sgt i64 %r, 0
  condbr i1 %c, then, done
then:
  store i64 %r, ptr %p
  br done
done:
  %m = phi i64 [1, then], [2, entry]
  ret i64 %m
}

func @drive(%a i64, %b i64) i64 {
entry:
  %p = alloca i64, i64 1
  %r = call i64 @classify(i64 %a, i64 %b, ptr %p)
  %v = load i64, ptr %p
  %h = mul i64 %r, 1000
  %s = add i64 %h, %v
  ret i64 %s
}
`

const blendSrc = `
func @blend(%a i32, %b i32) i32 {
entry:
  %s = add i32 %a, %b
  %c = icmp ult i32 %s, 100
  %r = select i1 %c, i32 %s, i32 100
  ret i32 %r
}
`

// hardenedPair parses src twice and hardens one copy, so the same program
// can run with and without lane replication.
func hardenedPair(t *testing.T, cfg *swift.Config, src string) (plain, hard *Machine) {
	t.Helper()
	pm, err := ir.Parse(t.Name(), src)
	assert.NilError(t, err)
	hm, err := ir.Parse(t.Name(), src)
	assert.NilError(t, err)
	if cfg == nil {
		cfg = swift.DefaultConfig()
	}
	assert.NilError(t, swift.Transform(hm, cfg))
	plain, err = New(pm)
	assert.NilError(t, err)
	hard, err = New(hm)
	assert.NilError(t, err)
	return plain, hard
}

func runSame(t *testing.T, plain, hard *Machine, fn string, args ...uint64) uint64 {
	t.Helper()
	want, err := plain.Run(fn, args...)
	assert.NilError(t, err)
	got, err := hard.Run(fn, args...)
	assert.NilError(t, err)
	assert.Equal(t, got, want)
	return want
}

func TestHardenedMatchesPlain(t *testing.T) {
	tests := []struct {
		name string
		src  string
		fn   string
		args [][]uint64
	}{
		{"straightline", axpySrc, "axpy", [][]uint64{{2, 3, 4}, {0, 0, 0}, {neg(-1), 7, 1}}},
		{"loop", sumSrc, "sum", [][]uint64{{1}, {5}, {17}}},
		{"branchy", driveSrc, "drive", [][]uint64{{3, 4}, {0, neg(-5)}, {1, neg(-1)}}},
		{"select", blendSrc, "blend", [][]uint64{{30, 40}, {80, 90}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, args := range tc.args {
				plain, hard := hardenedPair(t, nil, tc.src)
				runSame(t, plain, hard, tc.fn, args...)
			}
		})
	}
}

func TestSimplifiedProfileMatchesPlain(t *testing.T) {
	cfg := swift.DefaultConfig()
	cfg.Profile = swift.ProfileSimplified
	tests := []struct {
		src  string
		fn   string
		args []uint64
	}{
		{axpySrc, "axpy", []uint64{2, 3, 4}},
		{sumSrc, "sum", []uint64{9}},
	}
	for _, tc := range tests {
		plain, hard := hardenedPair(t, cfg, tc.src)
		runSame(t, plain, hard, tc.fn, tc.args...)
	}
}

func TestGlobalMemoryMatches(t *testing.T) {
	plain, hard := hardenedPair(t, nil, bumpSrc)
	runSame(t, plain, hard, "bump", 3)
	runSame(t, plain, hard, "bump", 4)

	// Globals are laid out before function addresses in both machines, so
	// the counter lives at the same place.
	pa, ok := plain.GlobalAddr("ctr")
	assert.Assert(t, ok)
	ha, ok := hard.GlobalAddr("ctr")
	assert.Assert(t, ok)
	assert.Equal(t, pa, ha)

	pv, err := plain.Peek(pa, 8)
	assert.NilError(t, err)
	hv, err := hard.Peek(ha, 8)
	assert.NilError(t, err)
	assert.Equal(t, pv, uint64(7))
	assert.Equal(t, hv, uint64(7))
}

func TestExternalTraceMatches(t *testing.T) {
	plain, hard := hardenedPair(t, nil, emitSrc)
	for _, mc := range []*Machine{plain, hard} {
		mc.Externs["emit"] = func([]uint64) (uint64, error) { return 0, nil }
	}
	runSame(t, plain, hard, "work", 2)
	assert.DeepEqual(t, plain.Trace, []string{"emit(6)", "emit(7)"})
	assert.DeepEqual(t, hard.Trace, plain.Trace)
}

func TestCheckpointAbsorbsFault(t *testing.T) {
	// One corrupted lane feeding a checkpoint is outvoted by the other
	// three, no matter which lane it is.
	for _, ln := range []int{0, 1, 3} {
		plain, hard := hardenedPair(t, nil, axpySrc)
		hard.Fault = &Fault{Func: "axpy", Value: "s.r", Lane: ln, Flip: 0xdead}
		runSame(t, plain, hard, "axpy", 2, 3, 4)
	}
}

func TestBranchVoteRepairsFault(t *testing.T) {
	// Corrupting one lane of the loop condition diverts the branch into
	// its voting block, which rebuilds a coherent group before jumping.
	for _, ln := range []int{0, 2} {
		plain, hard := hardenedPair(t, nil, sumSrc)
		hard.Fault = &Fault{Func: "sum", Value: "t.r", Lane: ln, Flip: ^uint64(0)}
		runSame(t, plain, hard, "sum", 5)
	}
}

func TestCorruptedValueSkipsGuardedStore(t *testing.T) {
	// A negative sum takes the else edge past the guarded store. Flipping
	// one lane of the sum flips that lane's compare too; the branch vote
	// restores agreement and the store stays unreached.
	plain, hard := hardenedPair(t, nil, driveSrc)
	hard.Fault = &Fault{Func: "classify", Value: "r.r", Lane: 1, Flip: ^uint64(0)}
	runSame(t, plain, hard, "drive", 3, neg(-5))
}

func TestSimplifiedTieAborts(t *testing.T) {
	// Two lanes cannot outvote each other, so any divergence surfaces as
	// a failed vote instead of a silent repair.
	cfg := swift.DefaultConfig()
	cfg.Profile = swift.ProfileSimplified
	_, hard := hardenedPair(t, cfg, axpySrc)
	hard.Fault = &Fault{Func: "axpy", Value: "s.r", Lane: 1, Flip: 1}
	_, err := hard.Run("axpy", 2, 3, 4)
	assert.ErrorContains(t, err, "no majority")
}

func TestDisabledChecksLetFaultEscape(t *testing.T) {
	cfg := swift.DefaultConfig()
	cfg.NoCheckAll = true
	plain, hard := hardenedPair(t, cfg, axpySrc)
	want, err := plain.Run("axpy", 2, 3, 4)
	assert.NilError(t, err)
	hard.Fault = &Fault{Func: "axpy", Value: "s.r", Lane: 0, Flip: 0xff}
	got, err := hard.Run("axpy", 2, 3, 4)
	assert.NilError(t, err)
	assert.Assert(t, got != want)
}
