// Package types implements Melbi's interned type representation (spec.md
// §3.1, §4.2): every Type is a handle such that structural equality is
// decided once, at intern time, and thereafter two types are equal iff they
// are the same pointer.
package types

import (
	"sort"
	"strings"
)

// Kind tags the shape of a Type. A Type is one of the variants in spec.md
// §3.1; unlike the Rust original's tagged enum, Go models this as one struct
// with a Kind discriminant and kind-specific fields, which keeps interning
// (hash-consing on structure) simple: the canonical key for any Type is a
// pure function of (Kind, its already-interned children).
type Kind uint8

const (
	KindVar Kind = iota
	KindInt
	KindFloat
	KindBool
	KindStr
	KindBytes
	KindArray
	KindMap
	KindRecord
	KindFunction
	KindSymbol
)

// Field is one (name, type) pair of a Record, always interned with the
// field list sorted by Name (spec.md §3.1 invariant).
type Field struct {
	Name string
	Type *Type
}

// Type is an interned handle. Two Types are equal iff they are the same
// pointer — never compare Types with reflect.DeepEqual or by field, only by
// identity (== on *Type).
type Type struct {
	kind Kind

	varID uint16 // KindVar

	elem *Type // KindArray
	key  *Type // KindMap
	val  *Type // KindMap

	fields []Field // KindRecord, sorted+deduped by Name

	params []*Type // KindFunction
	ret    *Type   // KindFunction

	parts []string // KindSymbol, sorted+deduped

	// flags propagate by union from children at intern time (spec.md §3.1);
	// reserved for future inference-var/error/placeholder tracking. Kept as
	// a plain bitset so adding a flag never changes the interning key.
	flags flag
}

type flag uint8

const (
	flagHasVar flag = 1 << iota
)

func (t *Type) Kind() Kind { return t.kind }

// HasTypeVar reports whether t or any of its interned children is (or
// contains) a TypeVar, from a flag set at interning time rather than by
// re-walking the tree.
func (t *Type) HasTypeVar() bool { return t.flags&flagHasVar != 0 }

func (t *Type) VarID() uint16 { return t.varID }
func (t *Type) Elem() *Type   { return t.elem }
func (t *Type) MapKey() *Type { return t.key }
func (t *Type) MapVal() *Type { return t.val }
func (t *Type) Fields() []Field {
	return t.fields
}
func (t *Type) Params() []*Type { return t.params }
func (t *Type) Ret() *Type      { return t.ret }
func (t *Type) SymbolParts() []string {
	return t.parts
}

// Field looks up a record field by name, returning (type, true) if present.
func (t *Type) Field(name string) (*Type, bool) {
	// fields are sorted, so this could binary search; linear is fine at the
	// tiny field counts real records have, and keeps this obviously correct.
	for _, f := range t.fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// String renders a canonical textual display of t (spec.md invariant 5:
// this display, parsed back by the type-expression grammar and resolved by
// the analyzer, must yield the same interned handle).
func (t *Type) String() string {
	var b strings.Builder
	t.writeTo(&b)
	return b.String()
}

func (t *Type) writeTo(b *strings.Builder) {
	switch t.kind {
	case KindVar:
		b.WriteByte('t')
		b.WriteString(itoa(uint64(t.varID)))
	case KindInt:
		b.WriteString("Int")
	case KindFloat:
		b.WriteString("Float")
	case KindBool:
		b.WriteString("Bool")
	case KindStr:
		b.WriteString("Str")
	case KindBytes:
		b.WriteString("Bytes")
	case KindArray:
		b.WriteString("Array[")
		t.elem.writeTo(b)
		b.WriteByte(']')
	case KindMap:
		b.WriteString("Map[")
		t.key.writeTo(b)
		b.WriteString(", ")
		t.val.writeTo(b)
		b.WriteByte(']')
	case KindRecord:
		b.WriteByte('{')
		for i, f := range t.fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			f.Type.writeTo(b)
		}
		b.WriteByte('}')
	case KindFunction:
		b.WriteByte('(')
		for i, p := range t.params {
			if i > 0 {
				b.WriteString(", ")
			}
			p.writeTo(b)
		}
		b.WriteString(") -> ")
		t.ret.writeTo(b)
	case KindSymbol:
		b.WriteByte('<')
		b.WriteString(strings.Join(t.parts, "|"))
		b.WriteByte('>')
	}
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// sortFields sorts by name only; Record interning rejects (rather than
// silently dedups) duplicate names per spec.md §4.2 — see Manager.Record.
func sortFields(fields []Field) []Field {
	out := append([]Field(nil), fields...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func hasDuplicateNames(fields []Field) bool {
	for i := 1; i < len(fields); i++ {
		if fields[i-1].Name == fields[i].Name {
			return true
		}
	}
	return false
}

func sortParts(parts []string) []string {
	out := append([]string(nil), parts...)
	sort.Strings(out)
	deduped := out[:0]
	for i, p := range out {
		if i > 0 && deduped[len(deduped)-1] == p {
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}
