package analyzer

import (
	"fmt"

	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/types"
)

// unify enforces strict structural equality (melbi has no subtyping — every
// invariant in spec.md §4.2 is stated as "equal" not "compatible"), binding
// free type variables and running an occurs check, in the manner of the
// teacher's typesystem.Unify/Bind pair.
func (c *Checker) unify(span ast.Span, t1, t2 *types.Type) bool {
	t1 = c.subst.Apply(c.manager, t1)
	t2 = c.subst.Apply(c.manager, t2)
	if t1 == t2 {
		return true
	}
	if t1.Kind() == types.KindVar {
		return c.bindVar(span, t1.VarID(), t2)
	}
	if t2.Kind() == types.KindVar {
		return c.bindVar(span, t2.VarID(), t1)
	}
	if t1.Kind() != t2.Kind() {
		c.typeMismatch(span, t1, t2)
		return false
	}
	switch t1.Kind() {
	case types.KindArray:
		return c.unify(span, t1.Elem(), t2.Elem())
	case types.KindMap:
		ok1 := c.unify(span, t1.MapKey(), t2.MapKey())
		ok2 := c.unify(span, t1.MapVal(), t2.MapVal())
		return ok1 && ok2
	case types.KindRecord:
		f1, f2 := t1.Fields(), t2.Fields()
		if len(f1) != len(f2) {
			c.typeMismatch(span, t1, t2)
			return false
		}
		ok := true
		for i := range f1 {
			if f1[i].Name != f2[i].Name {
				c.typeMismatch(span, t1, t2)
				return false
			}
			if !c.unify(span, f1[i].Type, f2[i].Type) {
				ok = false
			}
		}
		return ok
	case types.KindFunction:
		p1, p2 := t1.Params(), t2.Params()
		if len(p1) != len(p2) {
			c.typeMismatch(span, t1, t2)
			return false
		}
		ok := true
		for i := range p1 {
			if !c.unify(span, p1[i], p2[i]) {
				ok = false
			}
		}
		if !c.unify(span, t1.Ret(), t2.Ret()) {
			ok = false
		}
		return ok
	case types.KindSymbol:
		if t1.String() != t2.String() {
			c.typeMismatch(span, t1, t2)
			return false
		}
		return true
	default:
		// Scalars are interned singletons, so reaching here with t1 != t2
		// already means a real mismatch (e.g. Int vs Float).
		c.typeMismatch(span, t1, t2)
		return false
	}
}

func (c *Checker) bindVar(span ast.Span, id uint16, t *types.Type) bool {
	if t.Kind() == types.KindVar && t.VarID() == id {
		return true
	}
	if c.occurs(id, t) {
		c.errorf("T001", span, "infinite type: variable occurs within %s", t)
		return false
	}
	c.subst[id] = t
	return true
}

func (c *Checker) occurs(id uint16, t *types.Type) bool {
	switch t.Kind() {
	case types.KindVar:
		return t.VarID() == id
	case types.KindArray:
		return c.occurs(id, t.Elem())
	case types.KindMap:
		return c.occurs(id, t.MapKey()) || c.occurs(id, t.MapVal())
	case types.KindRecord:
		for _, f := range t.Fields() {
			if c.occurs(id, f.Type) {
				return true
			}
		}
		return false
	case types.KindFunction:
		for _, p := range t.Params() {
			if c.occurs(id, p) {
				return true
			}
		}
		return c.occurs(id, t.Ret())
	default:
		return false
	}
}

func (c *Checker) typeMismatch(span ast.Span, t1, t2 *types.Type) {
	c.errorf("T002", span, "type mismatch: expected %s, found %s", t1, t2)
}

func (c *Checker) errorf(code string, span ast.Span, format string, args ...any) {
	c.errs.Addf(code, diag.Span{Start: span.Start, End: span.End}, format, args...)
}

// errorfHelp is errorf plus a Help string (spec.md §8 D1: "help mentions
// expected numeric"), used where a generic message benefits from a short
// fix-it hint.
func (c *Checker) errorfHelp(code string, span ast.Span, help, format string, args ...any) {
	c.errs.Add(diag.Diagnostic{
		Severity: diag.Error,
		Code:     code,
		Span:     diag.Span{Start: span.Start, End: span.End},
		Message:  fmt.Sprintf(format, args...),
		Help:     help,
	})
}
