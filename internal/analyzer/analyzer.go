// Package analyzer implements melbi's static semantics (spec.md §4.3): a
// Hindley-Milner-style inference pass over the parsed tree that resolves
// every expression to an interned internal/types.Type, enforces the type-class
// constraints in internal/types/classes.go, and decides each lambda's
// per-call-site monomorphizations.
package analyzer

import (
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/types"
)

// Result is the typed tree: the parsed tree decorated in place via a
// side-table, following the teacher's own InferenceContext.TypeMap
// convention (map[ast.Node]typesystem.Type) rather than building a second
// parallel node hierarchy.
type Result struct {
	Types          map[ast.Expr]*types.Type
	RootType       *types.Type
	Instantiations map[*ast.Lambda]map[string]*Instantiation
	Order          []lambdaInstKey
}

// Checker carries all mutable inference state for a single Analyze call.
type Checker struct {
	manager *types.Manager
	errs    *diag.Bag

	types   map[ast.Expr]*types.Type
	subst   Subst
	depth   int

	instantiations map[*ast.Lambda]map[string]*Instantiation
	order          []lambdaInstKey
}

const maxInferDepth = 200

// Analyze type-checks root under the given global environment (native
// functions and any host-supplied bindings) and returns the decorated tree,
// or diagnostics if analysis failed.
func Analyze(m *types.Manager, root ast.Expr, globals map[string]*types.Type) (*Result, *diag.Bag) {
	errs := &diag.Bag{}
	c := &Checker{
		manager:        m,
		errs:           errs,
		types:          make(map[ast.Expr]*types.Type),
		subst:          Subst{},
		instantiations: make(map[*ast.Lambda]map[string]*Instantiation),
	}

	env := NewEnv()
	for name, t := range globals {
		env.Bind(name, t)
	}

	rootType := c.infer(env, root)

	for expr, t := range c.types {
		c.types[expr] = c.subst.Apply(c.manager, t)
	}
	rootType = c.subst.Apply(c.manager, rootType)
	for _, byKey := range c.instantiations {
		for _, inst := range byKey {
			inst.Ret = c.subst.Apply(c.manager, inst.Ret)
		}
	}

	return &Result{
		Types:          c.types,
		RootType:       rootType,
		Instantiations: c.instantiations,
		Order:          c.order,
	}, errs
}

// record decorates expr with its inferred type, matching the teacher's
// TypeMap[node] = type assignment convention.
func (c *Checker) record(expr ast.Expr, t *types.Type) *types.Type {
	c.types[expr] = t
	return t
}

func (c *Checker) enterDepth(span ast.Span) bool {
	c.depth++
	if c.depth > maxInferDepth {
		c.errorf("T099", span, "expression too deeply nested to type-check")
		return false
	}
	return true
}

func (c *Checker) exitDepth() { c.depth-- }
