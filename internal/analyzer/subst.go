package analyzer

import "github.com/melbi-lang/melbi/internal/types"

// Subst maps type variable ids to their bound types, exactly like the
// teacher's typesystem.Subst, except keyed by the small uint16 var ids
// internal/types hands out rather than string names.
type Subst map[uint16]*types.Type

// Apply fully resolves t against s, rebuilding any structural type that
// contains a bound variable through the Manager so the result stays
// properly interned.
func (s Subst) Apply(m *types.Manager, t *types.Type) *types.Type {
	switch t.Kind() {
	case types.KindVar:
		if rep, ok := s[t.VarID()]; ok {
			if rep.Kind() == types.KindVar && rep.VarID() == t.VarID() {
				return t
			}
			return s.Apply(m, rep)
		}
		return t
	case types.KindArray:
		return m.Array(s.Apply(m, t.Elem()))
	case types.KindMap:
		return m.Map(s.Apply(m, t.MapKey()), s.Apply(m, t.MapVal()))
	case types.KindRecord:
		fields := t.Fields()
		resolved := make([]types.Field, len(fields))
		for i, f := range fields {
			resolved[i] = types.Field{Name: f.Name, Type: s.Apply(m, f.Type)}
		}
		return m.MustRecord(resolved)
	case types.KindFunction:
		params := t.Params()
		resolved := make([]*types.Type, len(params))
		for i, p := range params {
			resolved[i] = s.Apply(m, p)
		}
		return m.Function(resolved, s.Apply(m, t.Ret()))
	default:
		return t
	}
}
