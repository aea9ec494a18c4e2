// Copyright 2025 The elzar Authors. SPDX-License-Identifier: Apache-2.0

// Package ir defines the program representation the hardening pass operates
// on: a module of functions, each a list of basic blocks holding ordered
// instructions in SSA form, with explicit control-flow edges and dominance
// information.
//
// The representation is mutable in place. All structural mutation goes
// through methods that keep use counts and predecessor lists consistent, so
// a pass can insert, rewire and erase instructions without bookkeeping of
// its own.
//
// A compact textual form is provided for tests and tooling:
//
//	func @add2(%a i64, %b i64) i64 {
//	entry:
//	  %r = add i64 %a, %b
//	  ret i64 %r
//	}
//
// See Parse and Module.String.
package ir

import (
	"fmt"
	"strings"
)

// TypeKind discriminates the Type variants.
type TypeKind uint8

const (
	KVoid TypeKind = iota
	KInt
	KFloat  // 32-bit IEEE
	KDouble // 64-bit IEEE
	KPtr
	KVector
	KStruct
	KFunc
	KLabel
)

// Type describes the type of a Value. Types are immutable once constructed;
// the scalar types are package-level singletons and may be compared by
// pointer, everything else compares with Equal.
type Type struct {
	Kind     TypeKind
	Bits     int     // KInt: bit width (1, 8, 16, 32, 64 supported by the width model)
	Elem     *Type   // KVector: element type
	Len      int     // KVector: lane count
	Fields   []*Type // KStruct
	Ret      *Type   // KFunc
	Params   []*Type // KFunc
	Variadic bool    // KFunc
}

// Scalar singletons.
var (
	Void   = &Type{Kind: KVoid}
	I1     = &Type{Kind: KInt, Bits: 1}
	I8     = &Type{Kind: KInt, Bits: 8}
	I16    = &Type{Kind: KInt, Bits: 16}
	I32    = &Type{Kind: KInt, Bits: 32}
	I64    = &Type{Kind: KInt, Bits: 64}
	Float  = &Type{Kind: KFloat}
	Double = &Type{Kind: KDouble}
	Ptr    = &Type{Kind: KPtr}
	Label  = &Type{Kind: KLabel}
)

// IntType returns the integer type of the given width. Widths with a
// singleton return it, so the common cases stay pointer-comparable.
func IntType(bits int) *Type {
	switch bits {
	case 1:
		return I1
	case 8:
		return I8
	case 16:
		return I16
	case 32:
		return I32
	case 64:
		return I64
	}
	return &Type{Kind: KInt, Bits: bits}
}

// VecOf returns the vector type with n lanes of elem.
func VecOf(elem *Type, n int) *Type {
	return &Type{Kind: KVector, Elem: elem, Len: n}
}

// StructOf returns the struct type with the given field types.
func StructOf(fields ...*Type) *Type {
	return &Type{Kind: KStruct, Fields: fields}
}

// FuncOf returns the function type with the given return and parameter
// types.
func FuncOf(ret *Type, params []*Type, variadic bool) *Type {
	return &Type{Kind: KFunc, Ret: ret, Params: params, Variadic: variadic}
}

// IsInt reports whether t is an integer type of any width.
func (t *Type) IsInt() bool { return t.Kind == KInt }

// IsFloat reports whether t is float or double.
func (t *Type) IsFloat() bool { return t.Kind == KFloat || t.Kind == KDouble }

// IsScalar reports whether t is a lane-packable scalar: integer, float,
// double or pointer.
func (t *Type) IsScalar() bool {
	switch t.Kind {
	case KInt, KFloat, KDouble, KPtr:
		return true
	}
	return false
}

// IsVector reports whether t is a vector type.
func (t *Type) IsVector() bool { return t.Kind == KVector }

// IsAggregate reports whether t is a struct type.
func (t *Type) IsAggregate() bool { return t.Kind == KStruct }

// ScalarBits returns the bit width of a scalar type: the integer width,
// 32 for float, 64 for double and pointer. It panics on non-scalars.
func (t *Type) ScalarBits() int {
	switch t.Kind {
	case KInt:
		return t.Bits
	case KFloat:
		return 32
	case KDouble, KPtr:
		return 64
	}
	panic("ir: ScalarBits on non-scalar type " + t.String())
}

// SizeBytes returns the in-memory size of t for loads, stores and address
// arithmetic. An i1 occupies one byte.
func (t *Type) SizeBytes() int {
	switch t.Kind {
	case KInt:
		if t.Bits <= 8 {
			return 1
		}
		return t.Bits / 8
	case KFloat:
		return 4
	case KDouble, KPtr:
		return 8
	case KVector:
		return t.Elem.SizeBytes() * t.Len
	case KStruct:
		n := 0
		for _, f := range t.Fields {
			n += f.SizeBytes()
		}
		return n
	}
	panic("ir: SizeBytes on type " + t.String())
}

// Equal reports structural type equality.
func (t *Type) Equal(u *Type) bool {
	if t == u {
		return true
	}
	if t == nil || u == nil || t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case KInt:
		return t.Bits == u.Bits
	case KVector:
		return t.Len == u.Len && t.Elem.Equal(u.Elem)
	case KStruct:
		if len(t.Fields) != len(u.Fields) {
			return false
		}
		for i := range t.Fields {
			if !t.Fields[i].Equal(u.Fields[i]) {
				return false
			}
		}
		return true
	case KFunc:
		if t.Variadic != u.Variadic || len(t.Params) != len(u.Params) || !t.Ret.Equal(u.Ret) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(u.Params[i]) {
				return false
			}
		}
		return true
	}
	return true
}

// String renders t in the textual IR syntax.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KVoid:
		return "void"
	case KInt:
		return fmt.Sprintf("i%d", t.Bits)
	case KFloat:
		return "float"
	case KDouble:
		return "double"
	case KPtr:
		return "ptr"
	case KLabel:
		return "label"
	case KVector:
		return fmt.Sprintf("<%d x %s>", t.Len, t.Elem)
	case KStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KFunc:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		if t.Variadic {
			parts = append(parts, "...")
		}
		return fmt.Sprintf("%s (%s)", t.Ret, strings.Join(parts, ", "))
	}
	return "?"
}
