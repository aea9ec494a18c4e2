package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

const sampleSrc = `
func @axpy(%a i64, %x i64, %y i64) i64 {
entry:
  %m = mul i64 %a, %x
  %s = add i64 %m, %y
  ret i64 %s
}

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

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.ir")
	assert.NilError(t, os.WriteFile(path, []byte(sampleSrc), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHardenPrintsModule(t *testing.T) {
	out, err := execute(t, "harden", writeSample(t))
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "declare @ELZAR_check_i64(<4 x i64>) <4 x i64>"))
	assert.Assert(t, strings.Contains(out, "broadcast <4 x i64>"))
}

func TestHardenSimplifiedProfile(t *testing.T) {
	out, err := execute(t, "harden", "--profile", "simplified", writeSample(t))
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "<2 x i64>"))
}

func TestHardenWritesFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.ir")
	_, err := execute(t, "harden", "-o", dst, writeSample(t))
	assert.NilError(t, err)
	data, err := os.ReadFile(dst)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(string(data), "ELZAR_ptestz"))
}

func TestHardenRejectsUnknownProfile(t *testing.T) {
	_, err := execute(t, "harden", "--profile", "bogus", writeSample(t))
	assert.ErrorContains(t, err, "unknown profile")
}

func TestStatsReportsCounts(t *testing.T) {
	out, err := execute(t, "stats", writeSample(t))
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "----- MODULE STATISTICS -----"))
	assert.Assert(t, strings.Contains(out, "Total number of instructions:        11"))
	assert.Assert(t, strings.Contains(out, "Total number of vector instructions: 0"))
	assert.Assert(t, strings.Contains(out, "axpy\n"))
}

func TestStatsListsVectorInstrs(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "hard.ir")
	_, err := execute(t, "harden", "-o", dst, writeSample(t))
	assert.NilError(t, err)

	out, err := execute(t, "stats", "--print-vec", dst)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "----- VECTOR INSTRUCTIONS STATISTICS -----"))
	assert.Assert(t, strings.Contains(out, "broadcast <4 x i64>"))
}

func TestRunExecutesEntry(t *testing.T) {
	out, err := execute(t, "run", writeSample(t), "--entry", "sum", "5")
	assert.NilError(t, err)
	assert.Equal(t, out, "10\n")
}

func TestRunHardensFirst(t *testing.T) {
	out, err := execute(t, "run", "--harden", writeSample(t), "--entry", "axpy", "2", "3", "4")
	assert.NilError(t, err)
	assert.Equal(t, out, "10\n")
}

func TestRunUnknownEntry(t *testing.T) {
	_, err := execute(t, "run", writeSample(t), "--entry", "nope")
	assert.ErrorContains(t, err, "no defined function")
}
