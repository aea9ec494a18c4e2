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

package swift

import "github.com/tudinfse/elzar/ir"

// TotalBits is the redundancy width of the hardened profile: every scalar
// is replicated until its copies fill 256 bits, one ymm register.
const TotalBits = 256

// fallbackLanes is used for integer widths outside the profile table. The
// value keeps the transformation going with reduced coverage guarantees.
const fallbackLanes = 4

// laneCountFor returns how many redundant copies of t one group holds.
// known is false when the width is outside the profile table and the
// fallback applies; the caller decides how loudly to warn. Non-scalar
// types cannot be lane-packed at all.
func laneCountFor(p Profile, t *ir.Type) (n int, known bool, err error) {
	if t == nil || !t.IsScalar() {
		return 0, false, unsupportedf("no lane count for type %s", t)
	}
	if p == ProfileSimplified {
		return 2, true, nil
	}
	if t.IsInt() {
		switch t.Bits {
		case 1:
			// Booleans are promoted to the widest integer before
			// packing.
			return TotalBits / 64, true, nil
		case 8, 16, 32, 64:
			return TotalBits / t.Bits, true, nil
		}
		return fallbackLanes, false, nil
	}
	return TotalBits / t.ScalarBits(), true, nil
}

// laneCount wraps laneCountFor with the recoverable-width warning.
func (tr *transformer) laneCount(t *ir.Type) (int, error) {
	n, known, err := laneCountFor(tr.cfg.Profile, t)
	if err != nil {
		return 0, err
	}
	if !known {
		tr.log.WithField("type", t.String()).
			Warnf("integer width outside the profile table, assuming %d lanes", n)
	}
	return n, nil
}

// redundantType returns the vector type carrying t's redundant copies.
// Booleans ride in the canonical condition encoding.
func (tr *transformer) redundantType(t *ir.Type) (*ir.Type, error) {
	if t == ir.I1 {
		return tr.condType, nil
	}
	n, err := tr.laneCount(t)
	if err != nil {
		return nil, err
	}
	return ir.VecOf(t, n), nil
}
