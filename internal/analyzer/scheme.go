package analyzer

import (
	"sort"

	"github.com/melbi-lang/melbi/internal/types"
)

// freeTypeVars walks t (already resolved against the current substitution)
// and records every KindVar id it reaches into into.
func freeTypeVars(t *types.Type, into map[uint16]bool) {
	switch t.Kind() {
	case types.KindVar:
		into[t.VarID()] = true
	case types.KindArray:
		freeTypeVars(t.Elem(), into)
	case types.KindMap:
		freeTypeVars(t.MapKey(), into)
		freeTypeVars(t.MapVal(), into)
	case types.KindRecord:
		for _, f := range t.Fields() {
			freeTypeVars(f.Type, into)
		}
	case types.KindFunction:
		for _, p := range t.Params() {
			freeTypeVars(p, into)
		}
		freeTypeVars(t.Ret(), into)
	}
}

// envFreeTypeVars collects the type variables free in env's Type-valued
// bindings (walking the whole parent chain): these are the variables a
// generalize call must NOT quantify over, since they belong to an
// enclosing, not-yet-generalized context (e.g. a lambda parameter a
// where-binding happens to use). Scheme- and Lambda-valued entries are
// skipped: a Scheme is already closed with respect to its own defining
// context, and a Lambda's type is resolved per call site, not as one type.
func envFreeTypeVars(c *Checker, env *Env) map[uint16]bool {
	out := map[uint16]bool{}
	for e := env; e != nil; e = e.parent {
		for _, entry := range e.vars {
			if entry.Type != nil {
				freeTypeVars(c.subst.Apply(c.manager, entry.Type), out)
			}
		}
	}
	return out
}

// generalize quantifies every type variable free in t but not free in env,
// producing a Scheme for a non-lambda where-binding. Returns nil — bind t
// directly, the common monomorphic case — when nothing qualifies.
func generalize(c *Checker, env *Env, t *types.Type) *Scheme {
	resolved := c.subst.Apply(c.manager, t)
	tvars := map[uint16]bool{}
	freeTypeVars(resolved, tvars)
	if len(tvars) == 0 {
		return nil
	}
	envVars := envFreeTypeVars(c, env)
	var quantified []uint16
	for v := range tvars {
		if !envVars[v] {
			quantified = append(quantified, v)
		}
	}
	if len(quantified) == 0 {
		return nil
	}
	sort.Slice(quantified, func(i, j int) bool { return quantified[i] < quantified[j] })
	return &Scheme{Vars: quantified, Type: resolved}
}

// instantiate substitutes a fresh type variable for each of scheme's
// quantified variables, the non-lambda counterpart of lambda.go's
// monomorphize: each use site gets its own fresh copy, later pinned down by
// whatever that use site unifies it against.
func instantiate(c *Checker, scheme *Scheme) *types.Type {
	fresh := Subst{}
	for _, v := range scheme.Vars {
		fresh[v] = c.manager.FreshTypeVar()
	}
	return fresh.Apply(c.manager, scheme.Type)
}
