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

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/tudinfse/elzar/ir"
)

// Profile selects the lane-count table.
type Profile uint8

const (
	// ProfileHardened packs lanes into a fixed 256-bit redundancy width:
	// the lane count depends on the scalar width.
	ProfileHardened Profile = iota

	// ProfileSimplified duplicates every value across two lanes
	// regardless of width.
	ProfileSimplified
)

func (p Profile) String() string {
	switch p {
	case ProfileHardened:
		return "hardened"
	case ProfileSimplified:
		return "simplified"
	}
	return "profile(?)"
}

// ParseProfile reads a profile name as accepted on the command line.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(s) {
	case "hardened", "avx":
		return ProfileHardened, nil
	case "simplified", "simd":
		return ProfileSimplified, nil
	}
	return 0, errors.Errorf("unknown profile %q (want hardened or simplified)", s)
}

// Config carries one transformation run's settings. Build it once and treat
// it as immutable; a Config is safe to share across concurrently
// transformed functions.
type Config struct {
	Profile Profile

	// Checkpoint filters. Each switch drops one category of voting
	// checkpoints; NoCheckAll drops every checkpoint. Filtered
	// checkpoints still collapse the redundant operand to a plain lane
	// extraction, so consumers always receive scalars.
	NoCheckAll    bool
	NoCheckBranch bool
	NoCheckLoad   bool
	NoCheckStore  bool
	NoCheckAtomic bool
	NoCheckCall   bool

	// PassThrough lists callee names left entirely untouched, in
	// addition to the built-in ELZAR_ and llvm. prefixes. Nil means
	// DefaultPassThrough.
	PassThrough mapset.Set[string]

	// Parallel bounds how many functions transform concurrently; values
	// below two run sequentially.
	Parallel int
}

// DefaultPassThrough returns the built-in pass-through set: the
// transactifier entry points, which must observe their true scalar
// arguments and must not be rewritten.
func DefaultPassThrough() mapset.Set[string] {
	return mapset.NewThreadUnsafeSet(
		"tx_cond_start",
		"tx_start",
		"tx_end",
		"tx_abort",
		"tx_increment",
		"tx_pthread_mutex_lock",
		"tx_pthread_mutex_unlock",
	)
}

// DefaultConfig returns the hardened profile with every check enabled.
func DefaultConfig() *Config {
	return &Config{
		Profile:     ProfileHardened,
		PassThrough: DefaultPassThrough(),
		Parallel:    1,
	}
}

// passesThrough reports whether a direct call to the named function is
// left untouched.
func (c *Config) passesThrough(name string) bool {
	if strings.HasPrefix(name, "ELZAR_") || strings.HasPrefix(name, "llvm.") {
		return true
	}
	set := c.PassThrough
	if set == nil {
		set = defaultPassThrough
	}
	return set.Contains(name)
}

var defaultPassThrough = DefaultPassThrough()

// category buckets a checkpoint by its consumer, for the per-category
// filter switches.
type category uint8

const (
	catOther category = iota
	catBranch
	catLoad
	catStore
	catAtomic
	catCall
)

func categoryOf(op ir.Op) category {
	switch op {
	case ir.OpCondBr:
		return catBranch
	case ir.OpLoad:
		return catLoad
	case ir.OpStore:
		return catStore
	case ir.OpAtomicRMW, ir.OpCmpXchg:
		return catAtomic
	case ir.OpCall:
		return catCall
	}
	return catOther
}

// checkEnabled reports whether checkpoints of the given category are
// materialized as voting calls.
func (c *Config) checkEnabled(cat category) bool {
	if c.NoCheckAll {
		return false
	}
	switch cat {
	case catBranch:
		return !c.NoCheckBranch
	case catLoad:
		return !c.NoCheckLoad
	case catStore:
		return !c.NoCheckStore
	case catAtomic:
		return !c.NoCheckAtomic
	case catCall:
		return !c.NoCheckCall
	}
	return true
}
