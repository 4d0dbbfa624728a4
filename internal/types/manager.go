package types

import (
	"fmt"
	"strings"
)

// Manager is the hash-consing type interner (spec.md §4.2). It lives in the
// engine's type arena for the engine's lifetime; every factory method is
// idempotent — calling int() twice returns the same *Type both times.
type Manager struct {
	intT, floatT, boolT, strT, bytesT *Type

	vars map[uint16]*Type

	arrays  map[*Type]*Type
	maps    map[mapKey]*Type
	records map[string]*Type
	funcs   map[string]*Type
	symbols map[string]*Type

	nextVar uint16
}

type mapKey struct{ key, val *Type }

// NewManager constructs an empty interner with the five scalar singletons
// pre-built.
func NewManager() *Manager {
	m := &Manager{
		vars:    make(map[uint16]*Type),
		arrays:  make(map[*Type]*Type),
		maps:    make(map[mapKey]*Type),
		records: make(map[string]*Type),
		funcs:   make(map[string]*Type),
		symbols: make(map[string]*Type),
	}
	m.intT = &Type{kind: KindInt}
	m.floatT = &Type{kind: KindFloat}
	m.boolT = &Type{kind: KindBool}
	m.strT = &Type{kind: KindStr}
	m.bytesT = &Type{kind: KindBytes}
	return m
}

func (m *Manager) Int() *Type   { return m.intT }
func (m *Manager) Float() *Type { return m.floatT }
func (m *Manager) Bool() *Type  { return m.boolT }
func (m *Manager) Str() *Type   { return m.strT }
func (m *Manager) Bytes() *Type { return m.bytesT }

// TypeVar returns the interned variable with the given id, creating it if
// this is the first reference to that id.
func (m *Manager) TypeVar(id uint16) *Type {
	if t, ok := m.vars[id]; ok {
		return t
	}
	t := &Type{kind: KindVar, varID: id, flags: flagHasVar}
	m.vars[id] = t
	return t
}

// FreshTypeVar issues a new, never-before-seen type variable.
func (m *Manager) FreshTypeVar() *Type {
	id := m.nextVar
	m.nextVar++
	return m.TypeVar(id)
}

func (m *Manager) Array(elem *Type) *Type {
	if t, ok := m.arrays[elem]; ok {
		return t
	}
	t := &Type{kind: KindArray, elem: elem, flags: elem.flags & flagHasVar}
	m.arrays[elem] = t
	return t
}

func (m *Manager) Map(key, val *Type) *Type {
	k := mapKey{key, val}
	if t, ok := m.maps[k]; ok {
		return t
	}
	t := &Type{kind: KindMap, key: key, val: val, flags: (key.flags | val.flags) & flagHasVar}
	m.maps[k] = t
	return t
}

// Record interns a record type. Field names must be unique; duplicates are
// a hard error (spec.md §4.2), unlike Symbol's silent dedup.
func (m *Manager) Record(fields []Field) (*Type, error) {
	sorted := sortFields(fields)
	if hasDuplicateNames(sorted) {
		return nil, fmt.Errorf("duplicate record field name in %v", fieldNames(sorted))
	}
	key := recordKey(sorted)
	if t, ok := m.records[key]; ok {
		return t, nil
	}
	var fl flag
	for _, f := range sorted {
		fl |= f.Type.flags & flagHasVar
	}
	t := &Type{kind: KindRecord, fields: sorted, flags: fl}
	m.records[key] = t
	return t, nil
}

// MustRecord panics on duplicate field names; for call sites (native
// package registration, tests) that already know fields are well-formed.
func (m *Manager) MustRecord(fields []Field) *Type {
	t, err := m.Record(fields)
	if err != nil {
		panic(err)
	}
	return t
}

func (m *Manager) Function(params []*Type, ret *Type) *Type {
	key := funcKey(params, ret)
	if t, ok := m.funcs[key]; ok {
		return t
	}
	fl := ret.flags & flagHasVar
	for _, p := range params {
		fl |= p.flags & flagHasVar
	}
	ps := append([]*Type(nil), params...)
	t := &Type{kind: KindFunction, params: ps, ret: ret, flags: fl}
	m.funcs[key] = t
	return t
}

// Symbol interns a closed tagged set; parts are sorted and deduplicated
// silently (spec.md §3.1).
func (m *Manager) Symbol(parts []string) *Type {
	sorted := sortParts(parts)
	key := strings.Join(sorted, "\x00")
	if t, ok := m.symbols[key]; ok {
		return t
	}
	t := &Type{kind: KindSymbol, parts: sorted}
	m.symbols[key] = t
	return t
}

func recordKey(sorted []Field) string {
	var b strings.Builder
	for _, f := range sorted {
		b.WriteString(f.Name)
		b.WriteByte('\x00')
		fmt.Fprintf(&b, "%p", f.Type)
		b.WriteByte('\x01')
	}
	return b.String()
}

func funcKey(params []*Type, ret *Type) string {
	var b strings.Builder
	for _, p := range params {
		fmt.Fprintf(&b, "%p", p)
		b.WriteByte('\x00')
	}
	b.WriteByte('\x01')
	fmt.Fprintf(&b, "%p", ret)
	return b.String()
}

func fieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
