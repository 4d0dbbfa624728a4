package vm

import (
	"bytes"
	"math"
	"strings"

	"github.com/melbi-lang/melbi/internal/diag"
)

// exec runs code to completion from instruction 0, returning the value left
// on top of the stack by OpReturn (or falling off the end, which does not
// occur for a well-formed Code: the compiler always terminates a Code with
// OpReturn).
func (vm *VM) exec(code *Code, locals, captures []RawValue) (RawValue, *diag.RuntimeError) {
	f := &frame{locals: locals, captures: captures}
	ip := 0

	for ip < len(code.Instructions) {
		opStart := ip
		op := Opcode(code.Instructions[ip])
		ip++

		switch op {
		case OpConstLoad:
			i := readOperand(code.Instructions, ip)
			ip += 2
			f.push(code.Constants[i])

		case OpConstTrue:
			f.push(BoolRaw(true))
		case OpConstFalse:
			f.push(BoolRaw(false))

		case OpLocalLoad:
			i := readOperand(code.Instructions, ip)
			ip += 2
			f.push(f.locals[i])
		case OpLocalStore:
			i := readOperand(code.Instructions, ip)
			ip += 2
			f.locals[i] = f.pop()
		case OpCaptureLoad:
			i := readOperand(code.Instructions, ip)
			ip += 2
			f.push(f.captures[i])

		case OpIntAdd, OpIntSub, OpIntMul, OpIntPow:
			r, l := f.pop().Int(), f.pop().Int()
			f.push(IntRaw(intArith(op, l, r)))
		case OpIntDiv:
			r, l := f.pop().Int(), f.pop().Int()
			if r == 0 {
				if catch(f, &ip) {
					continue
				}
				return 0, diag.NewRuntimeError("R001", code.spanAt(opStart), "integer division by zero")
			}
			f.push(IntRaw(l / r))

		case OpFloatAdd:
			r, l := f.pop().Float(), f.pop().Float()
			f.push(FloatRaw(l + r))
		case OpFloatSub:
			r, l := f.pop().Float(), f.pop().Float()
			f.push(FloatRaw(l - r))
		case OpFloatMul:
			r, l := f.pop().Float(), f.pop().Float()
			f.push(FloatRaw(l * r))
		case OpFloatDiv:
			r, l := f.pop().Float(), f.pop().Float()
			f.push(FloatRaw(l / r))
		case OpFloatPow:
			r, l := f.pop().Float(), f.pop().Float()
			f.push(FloatRaw(floatPow(l, r)))

		case OpIntEq:
			r, l := f.pop().Int(), f.pop().Int()
			f.push(BoolRaw(l == r))
		case OpIntNeq:
			r, l := f.pop().Int(), f.pop().Int()
			f.push(BoolRaw(l != r))
		case OpIntLt:
			r, l := f.pop().Int(), f.pop().Int()
			f.push(BoolRaw(l < r))
		case OpIntGt:
			r, l := f.pop().Int(), f.pop().Int()
			f.push(BoolRaw(l > r))
		case OpIntLe:
			r, l := f.pop().Int(), f.pop().Int()
			f.push(BoolRaw(l <= r))
		case OpIntGe:
			r, l := f.pop().Int(), f.pop().Int()
			f.push(BoolRaw(l >= r))

		case OpFloatEq:
			r, l := f.pop().Float(), f.pop().Float()
			f.push(BoolRaw(l == r))
		case OpFloatNeq:
			r, l := f.pop().Float(), f.pop().Float()
			f.push(BoolRaw(l != r))
		case OpFloatLt:
			r, l := f.pop().Float(), f.pop().Float()
			f.push(BoolRaw(l < r))
		case OpFloatGt:
			r, l := f.pop().Float(), f.pop().Float()
			f.push(BoolRaw(l > r))
		case OpFloatLe:
			r, l := f.pop().Float(), f.pop().Float()
			f.push(BoolRaw(l <= r))
		case OpFloatGe:
			r, l := f.pop().Float(), f.pop().Float()
			f.push(BoolRaw(l >= r))

		case OpStrEq, OpStrNeq, OpStrLt, OpStrGt, OpStrLe, OpStrGe:
			rv, lv := f.pop(), f.pop()
			r, l := vm.Arena.Str(rv), vm.Arena.Str(lv)
			f.push(BoolRaw(strCompare(op, strings.Compare(l, r))))

		case OpBytesEq, OpBytesNeq, OpBytesLt, OpBytesGt, OpBytesLe, OpBytesGe:
			rv, lv := f.pop(), f.pop()
			cmp := bytes.Compare(vm.Arena.Bytes(lv), vm.Arena.Bytes(rv))
			f.push(BoolRaw(bytesCompare(op, cmp)))

		case OpBoolEq, OpBoolNeq:
			r, l := f.pop().Bool(), f.pop().Bool()
			eq := l == r
			if op == OpBoolNeq {
				eq = !eq
			}
			f.push(BoolRaw(eq))

		case OpIntNeg:
			f.push(IntRaw(-f.pop().Int()))
		case OpFloatNeg:
			f.push(FloatRaw(-f.pop().Float()))
		case OpNot:
			f.push(BoolRaw(!f.pop().Bool()))

		case OpJump:
			off := int(int16(readOperand(code.Instructions, ip)))
			ip += 2
			ip += off
		case OpJumpIfFalse:
			off := int(int16(readOperand(code.Instructions, ip)))
			ip += 2
			if !f.pop().Bool() {
				ip += off
			}
		case OpJumpIfTrue:
			off := int(int16(readOperand(code.Instructions, ip)))
			ip += 2
			if f.pop().Bool() {
				ip += off
			}

		case OpCallAdapter:
			i := readOperand(code.Instructions, ip)
			ip += 2
			adapter := code.Adapters[i]
			args := f.popN(adapter.Arity())
			result, rerr := adapter.Call(vm.Arena, vm.Manager, args)
			if rerr != nil {
				if rerr.Kind == diag.Catchable && catch(f, &ip) {
					continue
				}
				return 0, rerr
			}
			f.push(result)

		case OpCall:
			i := readOperand(code.Instructions, ip)
			ip += 2
			site := code.CallSites[i]
			args := f.popN(len(site.ArgTypes))
			closureRaw := f.pop()
			result, rerr := vm.CallClosure(vm.Arena.Closure(closureRaw), site.ArgTypes, args)
			if rerr != nil {
				if rerr.Kind == diag.Catchable && catch(f, &ip) {
					continue
				}
				return 0, rerr
			}
			f.push(result)

		case OpMakeArray:
			n := int(readOperand(code.Instructions, ip))
			ip += 2
			f.push(vm.Arena.AllocArray(&ArrayData{Elements: f.popN(n)}))

		case OpMakeMap:
			n := int(readOperand(code.Instructions, ip))
			ip += 2
			pairs := f.popN(2 * n)
			keys := make([]RawValue, n)
			vals := make([]RawValue, n)
			for i := 0; i < n; i++ {
				keys[i] = pairs[2*i]
				vals[i] = pairs[2*i+1]
			}
			f.push(vm.Arena.AllocMap(&MapData{Keys: keys, Vals: vals}))

		case OpMakeRecord:
			n := int(readOperand(code.Instructions, ip))
			ip += 2
			f.push(vm.Arena.AllocRecord(&RecordData{Fields: f.popN(n)}))

		case OpMakeClosure:
			i := readOperand(code.Instructions, ip)
			ip += 2
			tmpl := code.Templates[i]
			captures := f.popN(tmpl.CaptureCount)
			f.push(vm.Arena.AllocClosure(&Closure{Insts: tmpl.Insts, Captures: captures}))

		case OpIndexArray:
			idx := f.pop().Int()
			data := vm.Arena.Array(f.pop())
			if idx < 0 || int(idx) >= len(data.Elements) {
				if catch(f, &ip) {
					continue
				}
				return 0, diag.NewRuntimeError("R002", code.spanAt(opStart), "array index out of range")
			}
			f.push(data.Elements[idx])

		case OpIndexMap:
			i := readOperand(code.Instructions, ip)
			ip += 2
			keyType := code.Types[i]
			key := f.pop()
			data := vm.Arena.Map(f.pop())
			val, ok := MapLookup(vm.Arena, keyType, data, key)
			if !ok {
				if catch(f, &ip) {
					continue
				}
				return 0, diag.NewRuntimeError("R003", code.spanAt(opStart), "key not found in map")
			}
			f.push(val)

		case OpIndexBytes:
			idx := f.pop().Int()
			data := vm.Arena.Bytes(f.pop())
			if idx < 0 || int(idx) >= len(data) {
				if catch(f, &ip) {
					continue
				}
				return 0, diag.NewRuntimeError("R002", code.spanAt(opStart), "bytes index out of range")
			}
			f.push(IntRaw(int64(data[idx])))

		case OpFieldLoad:
			i := readOperand(code.Instructions, ip)
			ip += 2
			data := vm.Arena.Record(f.pop())
			f.push(data.Fields[i])

		case OpPushHandler:
			off := int(int16(readOperand(code.Instructions, ip)))
			ip += 2
			f.handlers = append(f.handlers, handlerFrame{fallbackIP: ip + off, stackHeight: len(f.stack)})
		case OpPopHandler:
			f.handlers = f.handlers[:len(f.handlers)-1]

		case OpDup:
			f.push(f.stack[len(f.stack)-1])

		case OpPatchCapture:
			i := readOperand(code.Instructions, ip)
			ip += 2
			newVal := f.pop()
			closureRaw := f.pop()
			vm.Arena.Closure(closureRaw).Captures[i] = newVal

		case OpPop:
			f.pop()
		case OpReturn:
			return f.pop(), nil

		default:
			return 0, diag.NewInternalError("I000", code.spanAt(opStart), "unknown opcode %d", op)
		}
	}

	return 0, diag.NewInternalError("I001", code.spanAt(len(code.Instructions)-1), "code fell off the end without Return")
}

// catch resumes at the innermost installed `otherwise` handler for a
// freshly-raised catchable error: truncates the stack to the handler's
// recorded height and sets ip to its fallback. Reports ok=false when no
// handler is installed, so the caller propagates the error out instead.
func catch(f *frame, ip *int) (ok bool) {
	if len(f.handlers) == 0 {
		return false
	}
	h := f.handlers[len(f.handlers)-1]
	f.handlers = f.handlers[:len(f.handlers)-1]
	f.stack = f.stack[:h.stackHeight]
	*ip = h.fallbackIP
	return true
}

func intArith(op Opcode, l, r int64) int64 {
	switch op {
	case OpIntAdd:
		return l + r
	case OpIntSub:
		return l - r
	case OpIntMul:
		return l * r
	case OpIntPow:
		return intPow(l, r)
	default:
		return 0
	}
}

// intPow computes l**r with wrapping semantics (spec.md invariant 9), via
// repeated squaring so overflow wraps the same way a chain of IntMul would.
// A negative exponent has no integer result; by convention this yields 0.
func intPow(l, r int64) int64 {
	if r < 0 {
		return 0
	}
	var result int64 = 1
	base := l
	for r > 0 {
		if r&1 == 1 {
			result *= base
		}
		base *= base
		r >>= 1
	}
	return result
}

func floatPow(l, r float64) float64 {
	return math.Pow(l, r)
}

func strCompare(op Opcode, cmp int) bool {
	switch op {
	case OpStrEq:
		return cmp == 0
	case OpStrNeq:
		return cmp != 0
	case OpStrLt:
		return cmp < 0
	case OpStrGt:
		return cmp > 0
	case OpStrLe:
		return cmp <= 0
	case OpStrGe:
		return cmp >= 0
	default:
		return false
	}
}

func bytesCompare(op Opcode, cmp int) bool {
	switch op {
	case OpBytesEq:
		return cmp == 0
	case OpBytesNeq:
		return cmp != 0
	case OpBytesLt:
		return cmp < 0
	case OpBytesGt:
		return cmp > 0
	case OpBytesLe:
		return cmp <= 0
	case OpBytesGe:
		return cmp >= 0
	default:
		return false
	}
}
