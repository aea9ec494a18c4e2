// Copyright 2025 elzar Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lanes

import (
	"math"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// ExitFunc is called when a checkpoint cannot recover a majority. op names
// the failed helper, detail shows the disagreeing lanes.
type ExitFunc func(op, detail string)

var (
	exitMu sync.Mutex
	exitFn ExitFunc = defaultExit
)

func defaultExit(op, detail string) {
	logrus.WithField("op", op).Errorf("lane vote failed, no majority: %s", detail)
	os.Exit(1)
}

// SetExitFunc installs fn as the no-majority handler and returns the
// previous one. A nil fn restores the default, which logs and exits the
// process. If the installed handler returns, the checkpoint falls back to
// lane zero.
func SetExitFunc(fn ExitFunc) ExitFunc {
	exitMu.Lock()
	defer exitMu.Unlock()
	prev := exitFn
	if fn == nil {
		fn = defaultExit
	}
	exitFn = fn
	return prev
}

func fail(op, detail string) {
	exitMu.Lock()
	fn := exitFn
	exitMu.Unlock()
	fn(op, detail)
}

// Vote returns the value held by a strict majority of lanes, if one exists.
func Vote[T Scalar](g Group[T]) (T, bool) {
	n := len(g.data)
	for i, v := range g.data {
		count := 1
		for _, w := range g.data[i+1:] {
			if w == v {
				count++
			}
		}
		if count*2 > n {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func check[T Scalar](op string, g Group[T]) T {
	if v, ok := Vote(g); ok {
		return v
	}
	fail(op, g.String())
	return g.data[0]
}

// CheckI8 votes an i8 group down to its majority scalar.
func CheckI8(g Group[int8]) int8 { return check("check_i8", g) }

// CheckI16 votes an i16 group down to its majority scalar.
func CheckI16(g Group[int16]) int16 { return check("check_i16", g) }

// CheckI32 votes an i32 group down to its majority scalar.
func CheckI32(g Group[int32]) int32 { return check("check_i32", g) }

// CheckI64 votes an i64 group down to its majority scalar.
func CheckI64(g Group[int64]) int64 { return check("check_i64", g) }

// CheckPtr votes a pointer group down to its majority address.
func CheckPtr(g Group[uintptr]) uintptr { return check("check_ptr", g) }

// CheckF32 votes a float group down to its majority scalar. Lanes are
// compared as bit patterns, so a NaN result is not mistaken for a fault.
func CheckF32(g Group[float32]) float32 {
	bits := Group[uint32]{data: make([]uint32, len(g.data))}
	for i, v := range g.data {
		bits.data[i] = math.Float32bits(v)
	}
	if v, ok := Vote(bits); ok {
		return math.Float32frombits(v)
	}
	fail("check_float", g.String())
	return g.data[0]
}

// CheckF64 votes a double group down to its majority scalar, comparing bit
// patterns like CheckF32.
func CheckF64(g Group[float64]) float64 {
	bits := Group[uint64]{data: make([]uint64, len(g.data))}
	for i, v := range g.data {
		bits.data[i] = math.Float64bits(v)
	}
	if v, ok := Vote(bits); ok {
		return math.Float64frombits(v)
	}
	fail("check_double", g.String())
	return g.data[0]
}

// MaskI64 rebuilds a coherent condition group from one that failed the
// agreement test. Under the single-fault assumption one half of the group
// is still intact: if the low pair agrees the fault sits in the high half
// and lane zero is broadcast, otherwise lane two is. Groups too short to
// split fall back to a majority vote.
func MaskI64(g Group[uint64]) Group[uint64] {
	n := len(g.data)
	if n >= 4 {
		if g.data[0] == g.data[1] {
			return Splat(g.data[0], n)
		}
		return Splat(g.data[2], n)
	}
	if v, ok := Vote(g); ok {
		return Splat(v, n)
	}
	fail("mask_i64", g.String())
	return g
}
