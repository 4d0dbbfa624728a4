package analyzer

import (
	"fmt"
	"strings"

	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/types"
)

// Instantiation is one concrete monomorphization of a lambda: a fixed tuple
// of argument types, the body expression (shared with every other
// instantiation of the same lambda), and the scope in which free variables
// of the body resolve. internal/compiler emits exactly one Code per
// Instantiation (spec.md §4.4's per-call-site compiled closures).
type Instantiation struct {
	ParamNames []string
	Params     []*types.Type
	Ret        *types.Type
	Body       ast.Expr
	Env        *Env
}

// instantiationKey builds a deduplication key from a tuple of already-interned
// types: since internal/types hash-conses every type, pointer identity alone
// decides equality, so printing pointers is a sound (if unusual-looking) map
// key — no structural comparison is needed.
func instantiationKey(params []*types.Type) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%p", p)
	}
	return b.String()
}

// monomorphize type-checks lam's body against concrete argument types,
// reusing a cached Instantiation when this exact argument-type tuple has
// already been seen at another call site.
func (c *Checker) monomorphize(defEnv *Env, lam *ast.Lambda, args []*types.Type, span ast.Span) *types.Type {
	if len(args) != len(lam.Params) {
		c.errorf("T040", span, "lambda expects %d argument(s), got %d", len(lam.Params), len(args))
		return c.manager.FreshTypeVar()
	}

	key := instantiationKey(args)
	byKey := c.instantiations[lam]
	if byKey == nil {
		byKey = map[string]*Instantiation{}
		c.instantiations[lam] = byKey
	}
	if inst, ok := byKey[key]; ok {
		return inst.Ret
	}

	bodyEnv := defEnv.Child()
	for i, name := range lam.Params {
		bodyEnv.Bind(name, args[i])
	}
	// Cached before the body is inferred, with a fresh result variable, so a
	// recursive call with the same argument types reuses this entry instead
	// of re-entering the body.
	inst := &Instantiation{
		ParamNames: append([]string(nil), lam.Params...),
		Params:     args,
		Ret:        c.manager.FreshTypeVar(),
		Body:       lam.Body,
		Env:        bodyEnv,
	}
	byKey[key] = inst
	c.order = append(c.order, lambdaInstKey{Lambda: lam, Key: key})

	bodyType := c.infer(bodyEnv, lam.Body)
	c.unify(span, inst.Ret, bodyType)
	inst.Ret = c.subst.Apply(c.manager, inst.Ret)
	return inst.Ret
}

// lambdaInstKey preserves discovery order so the compiler can emit Code
// objects deterministically rather than iterating a Go map.
type lambdaInstKey struct {
	Lambda *ast.Lambda
	Key    string
}
