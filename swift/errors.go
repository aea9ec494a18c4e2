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

import "github.com/pkg/errors"

// The engine distinguishes two fatal error kinds. Internal errors mean the
// transformation itself broke an invariant; unsupported errors mean the
// input uses a construct the transformation refuses to harden. Both abort
// the current function, since continuing would produce a wrong program
// rather than an unprotected one. Test for a kind with errors.Is.
var (
	// ErrInternal marks an internal consistency violation: a missing
	// redundant value, a double definition, an original still in use at
	// deletion time.
	ErrInternal = errors.New("internal consistency violation")

	// ErrUnsupported marks input the engine rejects: exception dispatch,
	// side-effecting inline asm, pre-vectorized operands, aggregates
	// outside the compare-exchange pattern.
	ErrUnsupported = errors.New("unsupported construct")
)

func internalf(format string, args ...any) error {
	return errors.Wrapf(ErrInternal, format, args...)
}

func unsupportedf(format string, args ...any) error {
	return errors.Wrapf(ErrUnsupported, format, args...)
}
