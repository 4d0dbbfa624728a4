package analyzer

import (
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/types"
)

// Scheme is a let-polymorphic type scheme produced by generalizing a
// non-lambda `where`-binding (spec.md §4.3 "Generalisation and
// instantiation": generalisation happens "at a where binding or a lambda
// bound to a name" — Scheme is the non-lambda half; lambda.go's
// Instantiation table is the lambda half). Vars lists the type variables
// universally quantified over Type; each use site substitutes a fresh
// variable per entry in Vars (see instantiate in scheme.go).
type Scheme struct {
	Vars []uint16
	Type *types.Type
}

// EnvEntry is a concrete, already-typed binding (natives, literals,
// monomorphic where-bound values), a polymorphic non-lambda where-binding
// (Scheme), or a deferred lambda: its body is left unchecked until a Call
// site supplies concrete argument types (spec.md §4.3's per-call-site
// monomorphization). Exactly one of Type, Scheme, Lambda is set.
type EnvEntry struct {
	Type    *types.Type
	Scheme  *Scheme
	Lambda  *ast.Lambda
	Closure *Env
}

// Env is a lexical scope chain, grounded on the teacher's InferenceContext
// but scoped per-node instead of held as a single flat table: melbi's
// `where` blocks and lambda bodies each introduce a real nested scope.
type Env struct {
	vars   map[string]EnvEntry
	parent *Env
}

func NewEnv() *Env {
	return &Env{vars: make(map[string]EnvEntry)}
}

func (e *Env) Child() *Env {
	return &Env{vars: make(map[string]EnvEntry), parent: e}
}

func (e *Env) Bind(name string, t *types.Type) {
	e.vars[name] = EnvEntry{Type: t}
}

func (e *Env) BindLambda(name string, lam *ast.Lambda, closure *Env) {
	e.vars[name] = EnvEntry{Lambda: lam, Closure: closure}
}

func (e *Env) BindScheme(name string, scheme *Scheme) {
	e.vars[name] = EnvEntry{Scheme: scheme}
}

func (e *Env) Lookup(name string) (EnvEntry, bool) {
	for env := e; env != nil; env = env.parent {
		if entry, ok := env.vars[name]; ok {
			return entry, true
		}
	}
	return EnvEntry{}, false
}
