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

// The branch protocol probes a condition group with the two ptest
// predicates before deciding whether a majority vote is needed. Both treat
// the group as one wide register: every bit of every lane participates, so
// a fault that flips bits inside a single lane is caught the same way as a
// lane-level disagreement.

// PTestZ returns 1 when a AND b is zero across the whole group, else 0.
func PTestZ(a, b Group[uint64]) int {
	n := min(len(a.data), len(b.data))
	for i := 0; i < n; i++ {
		if a.data[i]&b.data[i] != 0 {
			return 0
		}
	}
	return 1
}

// PTestNZC returns 1 when a is mixed against b: some bit of a AND b set
// and some bit of NOT a AND b set. For a canonical condition group tested
// against all ones this fires exactly when the lanes disagree.
func PTestNZC(a, b Group[uint64]) int {
	n := min(len(a.data), len(b.data))
	anySet := false
	anyClear := false
	for i := 0; i < n; i++ {
		if a.data[i]&b.data[i] != 0 {
			anySet = true
		}
		if ^a.data[i]&b.data[i] != 0 {
			anyClear = true
		}
	}
	if anySet && anyClear {
		return 1
	}
	return 0
}
