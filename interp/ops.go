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

package interp

import (
	"math"

	"github.com/pkg/errors"

	"github.com/tudinfse/elzar/ir"
	"github.com/tudinfse/elzar/lanes"
)

// Lanes hold their value normalized to the type's bit width, in the low
// bits of the word. Signed interpretation happens at the operation that
// needs it.

func maskBits(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<bits - 1
}

func norm(x uint64, bits int) uint64 { return x & maskBits(bits) }

// sextBits widens a bits-wide pattern to the full word, two's complement.
func sextBits(x uint64, bits int) uint64 {
	if bits >= 64 {
		return x
	}
	sign := uint64(1) << (bits - 1)
	return (x ^ sign) - sign
}

func signed(x uint64, bits int) int64 { return int64(sextBits(x, bits)) }

func elemType(t *ir.Type) *ir.Type {
	if t.IsVector() {
		return t.Elem
	}
	return t
}

func elemBits(t *ir.Type) int { return elemType(t).ScalarBits() }

func lanesOf(t *ir.Type) int {
	if t.IsVector() {
		return t.Len
	}
	return 1
}

// lane reads lane i, treating a single word as a splat.
func lane(v val, i int) uint64 {
	if len(v) == 1 {
		return v[0]
	}
	return v[i]
}

func splat(x uint64, n int) val {
	v := make(val, n)
	for i := range v {
		v[i] = x
	}
	return v
}

func normVal(v val, t *ir.Type) val {
	if !t.IsScalar() && !t.IsVector() {
		return v
	}
	bits := elemBits(t)
	out := make(val, len(v))
	for i, x := range v {
		out[i] = norm(x, bits)
	}
	return out
}

func encodeConst(c *ir.Const) uint64 {
	t := c.Type()
	switch t.Kind {
	case ir.KFloat:
		return uint64(math.Float32bits(float32(c.Float)))
	case ir.KDouble:
		return math.Float64bits(c.Float)
	}
	return norm(uint64(c.Int), elemBits(t))
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// step executes one non-terminator, non-phi instruction and returns its
// value, nil for void instructions.
func (mc *Machine) step(fr *frame, in *ir.Instr) (val, error) {
	switch op := in.Op(); op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpUDiv, ir.OpSRem,
		ir.OpURem, ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpLShr,
		ir.OpAShr:
		a, b, err := mc.pair(fr, in)
		if err != nil {
			return nil, err
		}
		t := in.Arg(0).Type()
		return binInt(op, elemBits(t), lanesOf(t), a, b)

	case ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv, ir.OpFRem:
		a, b, err := mc.pair(fr, in)
		if err != nil {
			return nil, err
		}
		t := in.Arg(0).Type()
		return binFlt(op, elemType(t), lanesOf(t), a, b), nil

	case ir.OpICmp:
		a, b, err := mc.pair(fr, in)
		if err != nil {
			return nil, err
		}
		t := in.Arg(0).Type()
		return cmpInt(in.Pred, elemBits(t), lanesOf(t), a, b)

	case ir.OpFCmp:
		a, b, err := mc.pair(fr, in)
		if err != nil {
			return nil, err
		}
		t := in.Arg(0).Type()
		return cmpFlt(in.Pred, elemType(t), lanesOf(t), a, b)

	case ir.OpTrunc, ir.OpZExt, ir.OpSExt, ir.OpPtrToInt, ir.OpIntToPtr,
		ir.OpFPTrunc, ir.OpFPExt, ir.OpFPToSI, ir.OpFPToUI,
		ir.OpSIToFP, ir.OpUIToFP:
		a, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		return convert(op, in.Arg(0).Type(), in.Type(), a), nil

	case ir.OpBitcast:
		a, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		return repack(a, in.Arg(0).Type(), in.Type()), nil

	case ir.OpBroadcast:
		a, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		return splat(lane(a, 0), in.Type().Len), nil

	case ir.OpExtractLane:
		v, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		ix, err := mc.laneIndex(fr, in.Arg(1), len(v))
		if err != nil {
			return nil, err
		}
		return val{v[ix]}, nil

	case ir.OpInsertLane:
		v, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		s, err := mc.eval(fr, in.Arg(1))
		if err != nil {
			return nil, err
		}
		ix, err := mc.laneIndex(fr, in.Arg(2), len(v))
		if err != nil {
			return nil, err
		}
		out := append(val(nil), v...)
		out[ix] = lane(s, 0)
		return out, nil

	case ir.OpShuffle:
		a, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		b, err := mc.eval(fr, in.Arg(1))
		if err != nil {
			return nil, err
		}
		la := lanesOf(in.Arg(0).Type())
		out := make(val, len(in.Mask))
		for i, m := range in.Mask {
			switch {
			case m >= 0 && m < la:
				out[i] = lane(a, m)
			case m >= la && m < la+lanesOf(in.Arg(1).Type()):
				out[i] = lane(b, m-la)
			default:
				return nil, errors.Errorf("shuffle index %d out of range", m)
			}
		}
		return out, nil

	case ir.OpExtractValue:
		v, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		if in.Field < 0 || in.Field >= len(v) {
			return nil, errors.Errorf("field %d out of range", in.Field)
		}
		return val{v[in.Field]}, nil

	case ir.OpInsertValue:
		v, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		s, err := mc.eval(fr, in.Arg(1))
		if err != nil {
			return nil, err
		}
		if in.Field < 0 || in.Field >= len(v) {
			return nil, errors.Errorf("field %d out of range", in.Field)
		}
		out := append(val(nil), v...)
		out[in.Field] = lane(s, 0)
		return out, nil

	case ir.OpAlloca:
		c, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		count := signed(lane(c, 0), elemBits(in.Arg(0).Type()))
		if count < 0 {
			return nil, errors.Errorf("alloca of negative count %d", count)
		}
		return val{mc.alloc(in.ElemType.SizeBytes() * int(count))}, nil

	case ir.OpLoad:
		av, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		if len(av) != 1 {
			return nil, errors.New("vector load is not supported")
		}
		x, err := mc.loadBits(av[0], in.Type().SizeBytes())
		if err != nil {
			return nil, err
		}
		return val{x}, nil

	case ir.OpStore:
		v, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		av, err := mc.eval(fr, in.Arg(1))
		if err != nil {
			return nil, err
		}
		if len(v) != 1 || len(av) != 1 {
			return nil, errors.New("vector store is not supported")
		}
		return nil, mc.storeBits(av[0], v[0], in.Arg(0).Type().SizeBytes())

	case ir.OpGEP:
		return mc.gep(fr, in)

	case ir.OpAtomicRMW:
		return mc.atomicRMW(fr, in)

	case ir.OpCmpXchg:
		return mc.cmpXchg(fr, in)

	case ir.OpFence:
		return nil, nil

	case ir.OpSelect:
		c, err := mc.eval(fr, in.Arg(0))
		if err != nil {
			return nil, err
		}
		a, err := mc.eval(fr, in.Arg(1))
		if err != nil {
			return nil, err
		}
		b, err := mc.eval(fr, in.Arg(2))
		if err != nil {
			return nil, err
		}
		n := lanesOf(in.Type())
		if len(c) == 1 {
			if c[0] != 0 {
				return append(val(nil), a...), nil
			}
			return append(val(nil), b...), nil
		}
		out := make(val, n)
		for i := 0; i < n; i++ {
			if lane(c, i) != 0 {
				out[i] = lane(a, i)
			} else {
				out[i] = lane(b, i)
			}
		}
		return out, nil

	case ir.OpCall:
		return mc.doCall(fr, in)
	}
	return nil, errors.Errorf("instruction %s is not supported", in.Op())
}

func (mc *Machine) pair(fr *frame, in *ir.Instr) (val, val, error) {
	a, err := mc.eval(fr, in.Arg(0))
	if err != nil {
		return nil, nil, err
	}
	b, err := mc.eval(fr, in.Arg(1))
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (mc *Machine) laneIndex(fr *frame, v ir.Value, n int) (int, error) {
	x, err := mc.eval(fr, v)
	if err != nil {
		return 0, err
	}
	ix := int(lane(x, 0))
	if ix < 0 || ix >= n {
		return 0, errors.Errorf("lane %d out of range", ix)
	}
	return ix, nil
}

func binInt(op ir.Op, bits, n int, a, b val) (val, error) {
	out := make(val, n)
	for i := 0; i < n; i++ {
		x, y := lane(a, i), lane(b, i)
		var r uint64
		switch op {
		case ir.OpAdd:
			r = x + y
		case ir.OpSub:
			r = x - y
		case ir.OpMul:
			r = x * y
		case ir.OpUDiv, ir.OpURem:
			if y == 0 {
				return nil, errors.New("integer division by zero")
			}
			if op == ir.OpUDiv {
				r = x / y
			} else {
				r = x % y
			}
		case ir.OpSDiv, ir.OpSRem:
			if y == 0 {
				return nil, errors.New("integer division by zero")
			}
			sx, sy := signed(x, bits), signed(y, bits)
			if op == ir.OpSDiv {
				r = uint64(sx / sy)
			} else {
				r = uint64(sx % sy)
			}
		case ir.OpAnd:
			r = x & y
		case ir.OpOr:
			r = x | y
		case ir.OpXor:
			r = x ^ y
		case ir.OpShl:
			if y < uint64(bits) {
				r = x << y
			}
		case ir.OpLShr:
			if y < uint64(bits) {
				r = x >> y
			}
		case ir.OpAShr:
			s := signed(x, bits)
			if y >= uint64(bits) {
				y = uint64(bits - 1)
			}
			r = uint64(s >> y)
		}
		out[i] = norm(r, bits)
	}
	return out, nil
}

func binFlt(op ir.Op, et *ir.Type, n int, a, b val) val {
	wide := et.Kind == ir.KDouble
	out := make(val, n)
	for i := 0; i < n; i++ {
		if wide {
			x := math.Float64frombits(lane(a, i))
			y := math.Float64frombits(lane(b, i))
			out[i] = math.Float64bits(fltOp64(op, x, y))
		} else {
			x := math.Float32frombits(uint32(lane(a, i)))
			y := math.Float32frombits(uint32(lane(b, i)))
			out[i] = uint64(math.Float32bits(fltOp32(op, x, y)))
		}
	}
	return out
}

func fltOp64(op ir.Op, x, y float64) float64 {
	switch op {
	case ir.OpFAdd:
		return x + y
	case ir.OpFSub:
		return x - y
	case ir.OpFMul:
		return x * y
	case ir.OpFDiv:
		return x / y
	}
	return math.Mod(x, y)
}

func fltOp32(op ir.Op, x, y float32) float32 {
	switch op {
	case ir.OpFAdd:
		return x + y
	case ir.OpFSub:
		return x - y
	case ir.OpFMul:
		return x * y
	case ir.OpFDiv:
		return x / y
	}
	return float32(math.Mod(float64(x), float64(y)))
}

func cmpInt(p ir.Pred, bits, n int, a, b val) (val, error) {
	out := make(val, n)
	for i := 0; i < n; i++ {
		x, y := lane(a, i), lane(b, i)
		sx, sy := signed(x, bits), signed(y, bits)
		var r bool
		switch p {
		case ir.PredEQ:
			r = x == y
		case ir.PredNE:
			r = x != y
		case ir.PredUGT:
			r = x > y
		case ir.PredUGE:
			r = x >= y
		case ir.PredULT:
			r = x < y
		case ir.PredULE:
			r = x <= y
		case ir.PredSGT:
			r = sx > sy
		case ir.PredSGE:
			r = sx >= sy
		case ir.PredSLT:
			r = sx < sy
		case ir.PredSLE:
			r = sx <= sy
		default:
			return nil, errors.Errorf("predicate %s on integers", p)
		}
		out[i] = boolWord(r)
	}
	return out, nil
}

func cmpFlt(p ir.Pred, et *ir.Type, n int, a, b val) (val, error) {
	wide := et.Kind == ir.KDouble
	out := make(val, n)
	for i := 0; i < n; i++ {
		var x, y float64
		if wide {
			x = math.Float64frombits(lane(a, i))
			y = math.Float64frombits(lane(b, i))
		} else {
			x = float64(math.Float32frombits(uint32(lane(a, i))))
			y = float64(math.Float32frombits(uint32(lane(b, i))))
		}
		var r bool
		switch p {
		case ir.PredOEQ:
			r = x == y
		case ir.PredONE:
			r = !math.IsNaN(x) && !math.IsNaN(y) && x != y
		case ir.PredOGT:
			r = x > y
		case ir.PredOGE:
			r = x >= y
		case ir.PredOLT:
			r = x < y
		case ir.PredOLE:
			r = x <= y
		default:
			return nil, errors.Errorf("predicate %s on floats", p)
		}
		out[i] = boolWord(r)
	}
	return out, nil
}

func convert(op ir.Op, from, to *ir.Type, a val) val {
	fe, te := elemType(from), elemType(to)
	n := lanesOf(to)
	out := make(val, n)
	for i := 0; i < n; i++ {
		x := lane(a, i)
		var r uint64
		switch op {
		case ir.OpTrunc, ir.OpPtrToInt:
			r = norm(x, te.ScalarBits())
		case ir.OpZExt, ir.OpIntToPtr:
			r = x
		case ir.OpSExt:
			r = norm(sextBits(x, fe.ScalarBits()), te.ScalarBits())
		case ir.OpFPTrunc:
			r = uint64(math.Float32bits(float32(math.Float64frombits(x))))
		case ir.OpFPExt:
			r = math.Float64bits(float64(math.Float32frombits(uint32(x))))
		case ir.OpFPToSI:
			r = norm(uint64(int64(decodeFlt(x, fe))), te.ScalarBits())
		case ir.OpFPToUI:
			r = norm(uint64(decodeFlt(x, fe)), te.ScalarBits())
		case ir.OpSIToFP:
			r = encodeFlt(float64(signed(x, fe.ScalarBits())), te)
		case ir.OpUIToFP:
			r = encodeFlt(float64(x), te)
		}
		out[i] = r
	}
	return out
}

func decodeFlt(x uint64, et *ir.Type) float64 {
	if et.Kind == ir.KDouble {
		return math.Float64frombits(x)
	}
	return float64(math.Float32frombits(uint32(x)))
}

func encodeFlt(f float64, et *ir.Type) uint64 {
	if et.Kind == ir.KDouble {
		return math.Float64bits(f)
	}
	return uint64(math.Float32bits(float32(f)))
}

// repack reinterprets a value's bytes as another type of the same size,
// little-endian, lane zero lowest.
func repack(a val, from, to *ir.Type) val {
	if from.Equal(to) {
		return append(val(nil), a...)
	}
	fs := elemType(from).SizeBytes()
	buf := make([]byte, from.SizeBytes())
	for i := 0; i < lanesOf(from); i++ {
		x := lane(a, i)
		for j := 0; j < fs; j++ {
			buf[i*fs+j] = byte(x >> (8 * j))
		}
	}
	ts := elemType(to).SizeBytes()
	out := make(val, lanesOf(to))
	for i := range out {
		var x uint64
		for j := 0; j < ts; j++ {
			x |= uint64(buf[i*ts+j]) << (8 * j)
		}
		out[i] = x
	}
	return out
}

func (mc *Machine) gep(fr *frame, in *ir.Instr) (val, error) {
	base, err := mc.eval(fr, in.Arg(0))
	if err != nil {
		return nil, err
	}
	idxs := make([]val, in.NumArgs()-1)
	for k := range idxs {
		idxs[k], err = mc.eval(fr, in.Arg(k+1))
		if err != nil {
			return nil, err
		}
	}
	n := lanesOf(in.Type())
	out := make(val, n)
	for l := 0; l < n; l++ {
		addr := lane(base, l)
		if len(idxs) > 0 {
			ix := signed(lane(idxs[0], l), elemBits(in.Arg(1).Type()))
			addr += uint64(ix) * uint64(in.ElemType.SizeBytes())
		}
		t := in.ElemType
		for k := 1; k < len(idxs); k++ {
			ix := signed(lane(idxs[k], l), elemBits(in.Arg(k+1).Type()))
			switch {
			case t.IsAggregate():
				if ix < 0 || int(ix) >= len(t.Fields) {
					return nil, errors.Errorf("field index %d out of range in %s", ix, t)
				}
				for f := 0; f < int(ix); f++ {
					addr += uint64(t.Fields[f].SizeBytes())
				}
				t = t.Fields[ix]
			case t.IsVector():
				addr += uint64(ix) * uint64(t.Elem.SizeBytes())
				t = t.Elem
			default:
				return nil, errors.Errorf("gep cannot index into %s", t)
			}
		}
		out[l] = addr
	}
	return out, nil
}

func (mc *Machine) atomicRMW(fr *frame, in *ir.Instr) (val, error) {
	av, err := mc.eval(fr, in.Arg(0))
	if err != nil {
		return nil, err
	}
	v, err := mc.eval(fr, in.Arg(1))
	if err != nil {
		return nil, err
	}
	if len(av) != 1 || len(v) != 1 {
		return nil, errors.New("vector atomics are not supported")
	}
	t := in.Arg(1).Type()
	size := t.SizeBytes()
	old, err := mc.loadBits(av[0], size)
	if err != nil {
		return nil, err
	}
	bits := elemBits(t)
	x, y := old, v[0]
	var r uint64
	switch in.Atomic {
	case ir.AtomicXchg:
		r = y
	case ir.AtomicAdd:
		r = x + y
	case ir.AtomicSub:
		r = x - y
	case ir.AtomicAnd:
		r = x & y
	case ir.AtomicOr:
		r = x | y
	case ir.AtomicXor:
		r = x ^ y
	case ir.AtomicMax:
		r = y
		if signed(x, bits) > signed(y, bits) {
			r = x
		}
	case ir.AtomicMin:
		r = y
		if signed(x, bits) < signed(y, bits) {
			r = x
		}
	default:
		return nil, errors.Errorf("atomic %s is not supported", in.Atomic)
	}
	if err := mc.storeBits(av[0], norm(r, bits), size); err != nil {
		return nil, err
	}
	return val{old}, nil
}

func (mc *Machine) cmpXchg(fr *frame, in *ir.Instr) (val, error) {
	av, err := mc.eval(fr, in.Arg(0))
	if err != nil {
		return nil, err
	}
	want, err := mc.eval(fr, in.Arg(1))
	if err != nil {
		return nil, err
	}
	next, err := mc.eval(fr, in.Arg(2))
	if err != nil {
		return nil, err
	}
	size := in.Arg(1).Type().SizeBytes()
	old, err := mc.loadBits(av[0], size)
	if err != nil {
		return nil, err
	}
	ok := old == lane(want, 0)
	if ok {
		if err := mc.storeBits(av[0], lane(next, 0), size); err != nil {
			return nil, err
		}
	}
	return val{old, boolWord(ok)}, nil
}

func (mc *Machine) doCall(fr *frame, in *ir.Instr) (val, error) {
	args := make([]val, in.NumArgs())
	for k := range args {
		a, err := mc.eval(fr, in.Arg(k))
		if err != nil {
			return nil, err
		}
		args[k] = a
	}
	switch callee := in.Callee.(type) {
	case *ir.InlineAsm:
		if callee.Asm != "" {
			return nil, errors.Errorf("inline asm %q is not executable", callee.Asm)
		}
		return nil, nil
	case *ir.Func:
		return mc.invoke(callee, args)
	}
	av, err := mc.eval(fr, in.Callee)
	if err != nil {
		return nil, err
	}
	f := mc.funcByAddr[lane(av, 0)]
	if f == nil {
		return nil, errors.Errorf("indirect call to %#x hits no function", lane(av, 0))
	}
	return mc.invoke(f, args)
}

// helper routes a checkpoint call into the lanes package, mirroring what
// the hardened binary's runtime does.
func (mc *Machine) helper(name string, args []val) (val, error) {
	if len(args) == 0 {
		return nil, errors.Errorf("helper %s takes arguments", name)
	}
	a := args[0]
	n := len(a)
	switch name {
	case "ELZAR_check_i8":
		xs := make([]int8, n)
		for i, x := range a {
			xs[i] = int8(x)
		}
		return splat(norm(uint64(lanes.CheckI8(lanes.Of(xs...))), 8), n), nil
	case "ELZAR_check_i16":
		xs := make([]int16, n)
		for i, x := range a {
			xs[i] = int16(x)
		}
		return splat(norm(uint64(lanes.CheckI16(lanes.Of(xs...))), 16), n), nil
	case "ELZAR_check_i32":
		xs := make([]int32, n)
		for i, x := range a {
			xs[i] = int32(x)
		}
		return splat(norm(uint64(lanes.CheckI32(lanes.Of(xs...))), 32), n), nil
	case "ELZAR_check_i64":
		xs := make([]int64, n)
		for i, x := range a {
			xs[i] = int64(x)
		}
		return splat(uint64(lanes.CheckI64(lanes.Of(xs...))), n), nil
	case "ELZAR_check_ptr":
		xs := make([]uintptr, n)
		for i, x := range a {
			xs[i] = uintptr(x)
		}
		return splat(uint64(lanes.CheckPtr(lanes.Of(xs...))), n), nil
	case "ELZAR_check_float":
		xs := make([]float32, n)
		for i, x := range a {
			xs[i] = math.Float32frombits(uint32(x))
		}
		got := lanes.CheckF32(lanes.Of(xs...))
		return splat(uint64(math.Float32bits(got)), n), nil
	case "ELZAR_check_double":
		xs := make([]float64, n)
		for i, x := range a {
			xs[i] = math.Float64frombits(x)
		}
		got := lanes.CheckF64(lanes.Of(xs...))
		return splat(math.Float64bits(got), n), nil
	case "ELZAR_mask_i64":
		g := lanes.MaskI64(groupU64(a))
		return append(val(nil), g.Data()...), nil
	case "ELZAR_ptestz", "ELZAR_ptestnzc":
		if len(args) < 2 {
			return nil, errors.Errorf("helper %s takes two arguments", name)
		}
		ga, gb := groupU64(args[0]), groupU64(args[1])
		if name == "ELZAR_ptestz" {
			return val{uint64(lanes.PTestZ(ga, gb))}, nil
		}
		return val{uint64(lanes.PTestNZC(ga, gb))}, nil
	}
	return nil, errors.Errorf("unknown helper %s", name)
}

func groupU64(v val) lanes.Group[uint64] {
	return lanes.Of([]uint64(v)...)
}
