package types

// This file implements the closed type-class instance tables from
// spec.md §4.3: Numeric, Indexable, Hashable, Ord, Containable. These are
// not open for extension (no user-defined instances, no overloading beyond
// what's listed here — spec.md §1 Non-goals).

// Numeric reports the result type of a binary arithmetic operator applied to
// (left, right), or (nil, false) if no instance matches. Mixed numeric
// (Int, Float) is intentionally not an instance: it is a type error.
func Numeric(left, right *Type) (*Type, bool) {
	if left.kind != right.kind {
		return nil, false
	}
	switch left.kind {
	case KindInt:
		return left, true
	case KindFloat:
		return left, true
	default:
		return nil, false
	}
}

// Indexable reports the result type of indexing a container by key, or
// (nil, false) if no instance matches. m supplies the Int singleton for the
// (Bytes, Int) -> Int instance.
func Indexable(m *Manager, container, key *Type) (*Type, bool) {
	switch container.kind {
	case KindArray:
		if key.kind == KindInt {
			return container.elem, true
		}
	case KindMap:
		if container.key == key {
			return container.val, true
		}
	case KindBytes:
		if key.kind == KindInt {
			return m.Int(), true
		}
	}
	return nil, false
}

// Hashable reports whether t may be used as a Map key or Array element under
// structural equality.
func Hashable(t *Type) bool {
	switch t.kind {
	case KindInt, KindFloat, KindBool, KindStr, KindBytes, KindSymbol:
		return true
	case KindArray:
		return Hashable(t.elem)
	default:
		return false
	}
}

// Ord reports whether t supports `< > <= >=`.
func Ord(t *Type) bool {
	switch t.kind {
	case KindInt, KindFloat, KindStr, KindBytes:
		return true
	default:
		return false
	}
}

// Containable reports whether `needle in haystack` type-checks.
func Containable(needle, haystack *Type) bool {
	switch haystack.kind {
	case KindStr:
		return needle.kind == KindStr
	case KindBytes:
		return needle.kind == KindBytes
	case KindArray:
		return needle == haystack.elem
	case KindMap:
		return needle == haystack.key
	default:
		return false
	}
}

// Displayable reports whether t may appear as a format-string interpolation
// slot (spec.md §4.3: "every interpolated expression must be of a
// displayable type (all scalars, arrays, maps, records, symbols)").
// Functions are the sole non-displayable type.
func Displayable(t *Type) bool {
	return t.kind != KindFunction && t.kind != KindVar
}
