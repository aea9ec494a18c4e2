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

// valueMap tracks the redundant counterpart of every duplicated value
// within one function's transformation. Entries are created once and never
// removed; a second define for the same value is an invariant violation.
type valueMap struct {
	entries map[ir.Value]ir.Value
}

func newValueMap() *valueMap {
	return &valueMap{entries: make(map[ir.Value]ir.Value)}
}

func (m *valueMap) define(orig, red ir.Value) error {
	if prev, ok := m.entries[orig]; ok {
		return internalf("redundant value for %s already defined as %s", orig.Ident(), prev.Ident())
	}
	m.entries[orig] = red
	return nil
}

// lookup returns the recorded counterpart of orig, or nil.
func (m *valueMap) lookup(orig ir.Value) ir.Value {
	return m.entries[orig]
}
