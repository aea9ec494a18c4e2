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

// Package lanes is the runtime the hardened code calls into: redundant
// lane groups, majority voting, checkpoint helpers and the ptest-style
// predicates the branch protocol is built on.
//
// A Group carries one logical value replicated across every lane. After a
// fault-free computation all lanes agree; a checkpoint recovers the single
// trusted scalar by majority vote:
//
//	g := lanes.Splat(int64(42), 4)
//	g = g.WithLane(2, 7) // a fault flips one copy
//	v := lanes.CheckI64(g)
//	// v == 42
//
// When no majority exists the configured exit hook runs; see SetExitFunc.
package lanes

import (
	"fmt"
	"strings"
	"unsafe"
)

// Scalar is the constraint for types a lane can hold.
type Scalar interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64
}

// GroupBytes is the logical register width the hardened profile assumes:
// 256 bits, the width of an AVX ymm register.
const GroupBytes = 32

// Count returns how many copies of T fit in one group.
//
// For example, with the 32-byte group width:
//   - int64, float64, uintptr: 4 lanes
//   - int32, float32: 8 lanes
//   - int16: 16 lanes
//   - int8: 32 lanes
func Count[T Scalar]() int {
	var zero T
	return GroupBytes / int(unsafe.Sizeof(zero))
}

// Group holds the redundant copies of one value, one per lane.
//
// Group instances should not be mutated in place except through WithLane;
// the checkpoint helpers rely on value semantics.
type Group[T Scalar] struct {
	data []T
}

// Splat returns a group with all n lanes set to v.
func Splat[T Scalar](v T, n int) Group[T] {
	data := make([]T, n)
	for i := range data {
		data[i] = v
	}
	return Group[T]{data: data}
}

// Of returns a group with the given lane values.
func Of[T Scalar](vs ...T) Group[T] {
	data := make([]T, len(vs))
	copy(data, vs)
	return Group[T]{data: data}
}

// NumLanes returns the number of lanes in the group.
func (g Group[T]) NumLanes() int {
	return len(g.data)
}

// Lane returns lane i.
func (g Group[T]) Lane(i int) T {
	return g.data[i]
}

// WithLane returns a copy of g with lane i replaced by v.
func (g Group[T]) WithLane(i int, v T) Group[T] {
	data := make([]T, len(g.data))
	copy(data, g.data)
	data[i] = v
	return Group[T]{data: data}
}

// Data returns the underlying lane slice. This is primarily for testing and
// bridging; callers must not mutate it.
func (g Group[T]) Data() []T {
	return g.data
}

// AllEqual reports whether every lane holds the same value.
func (g Group[T]) AllEqual() bool {
	for _, v := range g.data[1:] {
		if v != g.data[0] {
			return false
		}
	}
	return true
}

// Equal reports lane-wise equality with o.
func (g Group[T]) Equal(o Group[T]) bool {
	if len(g.data) != len(o.data) {
		return false
	}
	for i, v := range g.data {
		if v != o.data[i] {
			return false
		}
	}
	return true
}

func (g Group[T]) String() string {
	parts := make([]string, len(g.data))
	for i, v := range g.data {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
