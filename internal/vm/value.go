// Package vm implements melbi's runtime (spec.md §3.5, §4.5): an untagged
// 64-bit value union, an arena for boxed payloads, and a stack machine that
// executes the bytecode internal/compiler produces.
package vm

import (
	"math"

	"github.com/melbi-lang/melbi/internal/arena"
	"github.com/melbi-lang/melbi/internal/types"
)

// RawValue is the VM's untyped 64-bit currency (spec.md §3.5). Scalars are
// packed directly; aggregates (strings, bytes, arrays, maps, records,
// closures) are an arena.Handle into a ValueArena, reinterpreted as a
// RawValue. Which encoding a given RawValue holds is never self-describing —
// it is decided entirely by the opcode that produced it and the opcode that
// consumes it, exactly as spec.md's "untagged union" calls for.
type RawValue uint64

func IntRaw(v int64) RawValue     { return RawValue(uint64(v)) }
func (r RawValue) Int() int64     { return int64(r) }
func FloatRaw(v float64) RawValue { return RawValue(math.Float64bits(v)) }
func (r RawValue) Float() float64 { return math.Float64frombits(uint64(r)) }

func BoolRaw(v bool) RawValue {
	if v {
		return 1
	}
	return 0
}
func (r RawValue) Bool() bool { return r != 0 }

func HandleRaw(h arena.Handle) RawValue { return RawValue(h) }
func (r RawValue) Handle() arena.Handle { return arena.Handle(r) }

// Value is the pair (Type, RawValue): the safe surface spec.md §3.5
// describes, used at API boundaries (native function args/results, compiled
// expression arguments and results) where the raw union alone is ambiguous.
type Value struct {
	Type *types.Type
	Raw  RawValue
}

// ArrayData is the boxed payload behind a RawValue produced by MakeArray.
type ArrayData struct {
	Elements []RawValue
}

// MapData is a sorted-by-insertion pair array (spec.md §3.5: "maps and
// records share the layout of a sorted pair-array"). Lookup is linear scan
// with RawEqual — melbi maps are small, expression-language-sized values,
// not a general-purpose hash table workload.
type MapData struct {
	Keys []RawValue
	Vals []RawValue
}

// RecordData stores field values positionally, matching the interned
// record type's own sorted Fields() order — field access compiles to a
// constant index, never a runtime name lookup.
type RecordData struct {
	Fields []RawValue
}

// Closure is the runtime value behind a lambda (spec.md §3.5 "Closures are
// {instantiations, captures}"). Insts is populated by MakeClosure from the
// compiler's per-call-site Code objects; Captures holds the current runtime
// value of every free variable, captured by value (spec.md §5: "closures
// reference their captures by value").
type Closure struct {
	Insts    []Instantiation
	Captures []RawValue
}

// Instantiation pairs one monomorphized Code with the parameter types it
// was compiled against, so CallClosure can select among instantiations by
// matching runtime argument types (spec.md §4.5 closure call protocol).
type Instantiation struct {
	ParamTypes []*types.Type
	Code       *Code
}

// ValueArena owns every boxed payload produced during one run (spec.md
// §3.6): strings and byte strings are stored as plain Go string/[]byte —
// Go's own immutable string and slice types already are exactly the "Slice
// in the arena" the spec describes for an arena-less host language, so
// boxing them again behind a second indirection would just be reinventing
// what the language gives for free.
type ValueArena struct {
	arena.Arena[any]
}

func NewValueArena() *ValueArena {
	return &ValueArena{Arena: *arena.New[any]()}
}

func (a *ValueArena) AllocStr(s string) RawValue    { return HandleRaw(a.Alloc(s)) }
func (a *ValueArena) AllocBytes(b []byte) RawValue  { return HandleRaw(a.Alloc(b)) }
func (a *ValueArena) AllocArray(d *ArrayData) RawValue  { return HandleRaw(a.Alloc(d)) }
func (a *ValueArena) AllocMap(d *MapData) RawValue      { return HandleRaw(a.Alloc(d)) }
func (a *ValueArena) AllocRecord(d *RecordData) RawValue { return HandleRaw(a.Alloc(d)) }
func (a *ValueArena) AllocClosure(d *Closure) RawValue  { return HandleRaw(a.Alloc(d)) }

func (a *ValueArena) Str(r RawValue) string        { return a.Get(r.Handle()).(string) }
func (a *ValueArena) Bytes(r RawValue) []byte      { return a.Get(r.Handle()).([]byte) }
func (a *ValueArena) Array(r RawValue) *ArrayData  { return a.Get(r.Handle()).(*ArrayData) }
func (a *ValueArena) Map(r RawValue) *MapData      { return a.Get(r.Handle()).(*MapData) }
func (a *ValueArena) Record(r RawValue) *RecordData { return a.Get(r.Handle()).(*RecordData) }
func (a *ValueArena) Closure(r RawValue) *Closure  { return a.Get(r.Handle()).(*Closure) }

// RawEqual decides structural equality of two RawValues of the given
// static type — the primitive behind `==`/`!=`, Map key lookup, and
// Containable's `in`. t is always known statically (the analyzer already
// unified both sides), so no runtime type tag is needed.
func RawEqual(a *ValueArena, t *types.Type, x, y RawValue) bool {
	switch t.Kind() {
	case types.KindInt:
		return x.Int() == y.Int()
	case types.KindFloat:
		return x.Float() == y.Float()
	case types.KindBool:
		return x.Bool() == y.Bool()
	case types.KindStr:
		return a.Str(x) == a.Str(y)
	case types.KindBytes:
		return string(a.Bytes(x)) == string(a.Bytes(y))
	case types.KindSymbol:
		return x.Int() == y.Int()
	case types.KindArray:
		xa, ya := a.Array(x), a.Array(y)
		if len(xa.Elements) != len(ya.Elements) {
			return false
		}
		for i := range xa.Elements {
			if !RawEqual(a, t.Elem(), xa.Elements[i], ya.Elements[i]) {
				return false
			}
		}
		return true
	case types.KindMap:
		xm, ym := a.Map(x), a.Map(y)
		if len(xm.Keys) != len(ym.Keys) {
			return false
		}
		for i := range xm.Keys {
			idx := findKey(a, t.MapKey(), ym, xm.Keys[i])
			if idx < 0 || !RawEqual(a, t.MapVal(), xm.Vals[i], ym.Vals[idx]) {
				return false
			}
		}
		return true
	case types.KindRecord:
		xr, yr := a.Record(x), a.Record(y)
		for i, f := range t.Fields() {
			if !RawEqual(a, f.Type, xr.Fields[i], yr.Fields[i]) {
				return false
			}
		}
		return true
	default:
		return x == y
	}
}

func findKey(a *ValueArena, keyType *types.Type, m *MapData, key RawValue) int {
	for i, k := range m.Keys {
		if RawEqual(a, keyType, k, key) {
			return i
		}
	}
	return -1
}

// MapLookup finds a key in a MapData, returning (value, true) on a hit.
func MapLookup(a *ValueArena, keyType *types.Type, m *MapData, key RawValue) (RawValue, bool) {
	idx := findKey(a, keyType, m, key)
	if idx < 0 {
		return 0, false
	}
	return m.Vals[idx], true
}
