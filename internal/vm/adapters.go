package vm

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/types"
)

// FunctionAdapter wraps a native function (spec.md §4.4, §6 "Native
// function contract"): it re-attaches parameter types to convert raw
// arguments into typed Values before calling, and strips the type off the
// result.
type FunctionAdapter struct {
	ParamTypes []*types.Type
	Ret        *types.Type
	Fn         func(*ValueArena, *types.Manager, []Value) (Value, *diag.RuntimeError)
}

func (a *FunctionAdapter) Arity() int { return len(a.ParamTypes) }

func (a *FunctionAdapter) Call(va *ValueArena, tm *types.Manager, args []RawValue) (RawValue, *diag.RuntimeError) {
	typed := make([]Value, len(args))
	for i, raw := range args {
		typed[i] = Value{Type: a.ParamTypes[i], Raw: raw}
	}
	result, err := a.Fn(va, tm, typed)
	if err != nil {
		return 0, err
	}
	return result.Raw, nil
}

// CastAdapter converts a `as` cast (spec.md §4.4, §9 open question 3: every
// failing cast is a catchable runtime error, never a compile-time split
// between lossless/fallible casts).
type CastAdapter struct {
	From, To *types.Type
	Span     ast.Span
}

func (a *CastAdapter) Arity() int { return 1 }

func (a *CastAdapter) Call(va *ValueArena, tm *types.Manager, args []RawValue) (RawValue, *diag.RuntimeError) {
	v := args[0]
	switch {
	case a.From.Kind() == types.KindInt && a.To.Kind() == types.KindFloat:
		return FloatRaw(float64(v.Int())), nil
	case a.From.Kind() == types.KindFloat && a.To.Kind() == types.KindInt:
		return IntRaw(int64(v.Float())), nil
	case a.From.Kind() == types.KindInt && a.To.Kind() == types.KindStr:
		return va.AllocStr(strconv.FormatInt(v.Int(), 10)), nil
	case a.From.Kind() == types.KindFloat && a.To.Kind() == types.KindStr:
		return va.AllocStr(formatFloat(v.Float())), nil
	case a.From.Kind() == types.KindBool && a.To.Kind() == types.KindStr:
		if v.Bool() {
			return va.AllocStr("true"), nil
		}
		return va.AllocStr("false"), nil
	case a.From.Kind() == types.KindStr && a.To.Kind() == types.KindBytes:
		return va.AllocBytes([]byte(va.Str(v))), nil
	case a.From.Kind() == types.KindBytes && a.To.Kind() == types.KindStr:
		b := va.Bytes(v)
		if !utf8.Valid(b) {
			return 0, diag.NewRuntimeError("R010", a.Span, "cast from Bytes to Str: invalid UTF-8")
		}
		return va.AllocStr(string(b)), nil
	default:
		return 0, diag.NewInternalError("I010", a.Span, "unsupported cast %s -> %s", a.From, a.To)
	}
}

// FormatStrAdapter evaluates a format-string literal's interpolation slots
// (spec.md §4.4): Fragments has len(SlotTypes)+1 entries.
type FormatStrAdapter struct {
	Fragments []string
	SlotTypes []*types.Type
}

func (a *FormatStrAdapter) Arity() int { return len(a.SlotTypes) }

func (a *FormatStrAdapter) Call(va *ValueArena, tm *types.Manager, args []RawValue) (RawValue, *diag.RuntimeError) {
	var b strings.Builder
	for i, frag := range a.Fragments {
		b.WriteString(frag)
		if i < len(args) {
			writeDisplay(&b, va, a.SlotTypes[i], args[i])
		}
	}
	return va.AllocStr(b.String()), nil
}

// EqualAdapter implements `==`/`!=` for the compound types (Array, Map,
// Record, Symbol) that direct typed opcodes don't cover, via structural
// RawEqual.
type EqualAdapter struct {
	T      *types.Type
	Negate bool
}

func (a *EqualAdapter) Arity() int { return 2 }

func (a *EqualAdapter) Call(va *ValueArena, tm *types.Manager, args []RawValue) (RawValue, *diag.RuntimeError) {
	eq := RawEqual(va, a.T, args[0], args[1])
	if a.Negate {
		eq = !eq
	}
	return BoolRaw(eq), nil
}

// ContainsAdapter implements `in`/`not in` (spec.md Containable instances).
type ContainsAdapter struct {
	Haystack *types.Type
	Negate   bool
	Span     ast.Span
}

func (a *ContainsAdapter) Arity() int { return 2 }

// Call pops (needle, haystack) in that order — the compiler emits needle
// then haystack, matching the surface syntax `needle in haystack`.
func (a *ContainsAdapter) Call(va *ValueArena, tm *types.Manager, args []RawValue) (RawValue, *diag.RuntimeError) {
	needle, haystack := args[0], args[1]
	var found bool
	switch a.Haystack.Kind() {
	case types.KindStr:
		found = strings.Contains(va.Str(haystack), va.Str(needle))
	case types.KindBytes:
		found = strings.Contains(string(va.Bytes(haystack)), string(va.Bytes(needle)))
	case types.KindArray:
		data := va.Array(haystack)
		for _, e := range data.Elements {
			if RawEqual(va, a.Haystack.Elem(), e, needle) {
				found = true
				break
			}
		}
	case types.KindMap:
		_, found = MapLookup(va, a.Haystack.MapKey(), va.Map(haystack), needle)
	default:
		return 0, diag.NewInternalError("I011", a.Span, "unsupported Containable haystack type %s", a.Haystack)
	}
	if a.Negate {
		found = !found
	}
	return BoolRaw(found), nil
}
