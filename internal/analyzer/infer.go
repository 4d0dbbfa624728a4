package analyzer

import (
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/types"
)

// infer dispatches on the concrete node type and returns its resolved type,
// recording it into c.types as it goes. Nil expr (the parser's depth-limit
// placeholder) yields a fresh, unconstrained type var so callers can keep
// going without a second cascade of diagnostics.
func (c *Checker) infer(env *Env, expr ast.Expr) *types.Type {
	if expr == nil {
		return c.manager.FreshTypeVar()
	}
	if !c.enterDepth(expr.Span()) {
		return c.manager.FreshTypeVar()
	}
	defer c.exitDepth()

	switch n := expr.(type) {
	case *ast.IntLit:
		return c.record(n, c.manager.Int())
	case *ast.FloatLit:
		return c.record(n, c.manager.Float())
	case *ast.BoolLit:
		return c.record(n, c.manager.Bool())
	case *ast.StringLit:
		return c.record(n, c.manager.Str())
	case *ast.BytesLit:
		return c.record(n, c.manager.Bytes())
	case *ast.FormatStringLit:
		return c.inferFormatString(env, n)
	case *ast.Ident:
		return c.inferIdent(env, n)
	case *ast.Binary:
		return c.inferBinary(env, n)
	case *ast.Logical:
		return c.inferLogical(env, n)
	case *ast.Unary:
		return c.inferUnary(env, n)
	case *ast.If:
		return c.inferIf(env, n)
	case *ast.Where:
		return c.inferWhere(env, n)
	case *ast.Otherwise:
		return c.inferOtherwise(env, n)
	case *ast.Cast:
		return c.inferCast(env, n)
	case *ast.Index:
		return c.inferIndex(env, n)
	case *ast.Field:
		return c.inferField(env, n)
	case *ast.Call:
		return c.inferCall(env, n)
	case *ast.Lambda:
		return c.inferLambdaValue(n)
	case *ast.ArrayLit:
		return c.inferArrayLit(env, n)
	case *ast.MapLit:
		return c.inferMapLit(env, n)
	case *ast.RecordLit:
		return c.inferRecordLit(env, n)
	default:
		c.errorf("T999", expr.Span(), "internal: unhandled node type %T", expr)
		return c.manager.FreshTypeVar()
	}
}

func (c *Checker) inferFormatString(env *Env, n *ast.FormatStringLit) *types.Type {
	for _, sub := range n.Exprs {
		t := c.infer(env, sub)
		resolved := c.subst.Apply(c.manager, t)
		if !types.Displayable(resolved) {
			c.errorf("T010", sub.Span(), "%s cannot be interpolated into a format string", resolved)
		}
	}
	return c.record(n, c.manager.Str())
}

func (c *Checker) inferIdent(env *Env, n *ast.Ident) *types.Type {
	entry, ok := env.Lookup(n.Name)
	if !ok {
		c.errorf("T003", n.Span(), "undefined name %q", n.Name)
		return c.record(n, c.manager.FreshTypeVar())
	}
	if entry.Lambda != nil {
		// A deferred lambda used somewhere other than as a direct call
		// target: give it a fully generic function shape. If it's later
		// applied through this same Ident in a Call, inferCall intercepts
		// before this branch ever runs.
		params := make([]*types.Type, len(entry.Lambda.Params))
		for i := range params {
			params[i] = c.manager.FreshTypeVar()
		}
		return c.record(n, c.manager.Function(params, c.manager.FreshTypeVar()))
	}
	if entry.Scheme != nil {
		// A polymorphic non-lambda where-binding: each reference gets its
		// own fresh instantiation (spec.md §4.3), independently pinned down
		// by whatever this particular use unifies it against.
		return c.record(n, instantiate(c, entry.Scheme))
	}
	return c.record(n, entry.Type)
}

func (c *Checker) inferBinary(env *Env, n *ast.Binary) *types.Type {
	left := c.infer(env, n.Left)
	right := c.infer(env, n.Right)
	lr := c.subst.Apply(c.manager, left)
	rr := c.subst.Apply(c.manager, right)

	switch n.Op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpPow:
		if lr.Kind() == types.KindVar || rr.Kind() == types.KindVar {
			// An operand whose type is not yet known (such as a recursive
			// call's result) takes the other operand's type.
			c.unify(n.Span(), lr, rr)
			lr = c.subst.Apply(c.manager, lr)
			rr = c.subst.Apply(c.manager, rr)
		}
		if result, ok := types.Numeric(lr, rr); ok {
			return c.record(n, result)
		}
		c.errorfHelp("T011", n.Span(), "expected two Int or two Float (numeric) operands",
			"arithmetic operator requires two Int or two Float operands, found %s and %s", lr, rr)
		return c.record(n, c.manager.FreshTypeVar())
	case ast.OpEq, ast.OpNeq:
		c.unify(n.Span(), lr, rr)
		return c.record(n, c.manager.Bool())
	case ast.OpLt, ast.OpGt, ast.OpLe, ast.OpGe:
		c.unify(n.Span(), lr, rr)
		if !types.Ord(lr) {
			c.errorf("T012", n.Span(), "%s does not support ordering comparisons", lr)
		}
		return c.record(n, c.manager.Bool())
	case ast.OpIn, ast.OpNotIn:
		if !types.Containable(lr, rr) {
			c.errorf("T013", n.Span(), "%s is not a member type of %s", lr, rr)
		}
		return c.record(n, c.manager.Bool())
	default:
		c.errorf("T999", n.Span(), "internal: unhandled binary operator")
		return c.record(n, c.manager.FreshTypeVar())
	}
}

func (c *Checker) inferLogical(env *Env, n *ast.Logical) *types.Type {
	left := c.infer(env, n.Left)
	right := c.infer(env, n.Right)
	c.unify(n.Left.Span(), left, c.manager.Bool())
	c.unify(n.Right.Span(), right, c.manager.Bool())
	return c.record(n, c.manager.Bool())
}

func (c *Checker) inferUnary(env *Env, n *ast.Unary) *types.Type {
	operand := c.infer(env, n.Operand)
	resolved := c.subst.Apply(c.manager, operand)
	switch n.Op {
	case ast.OpNeg:
		if result, ok := types.Numeric(resolved, resolved); ok {
			return c.record(n, result)
		}
		c.errorfHelp("T011", n.Span(), "expected Int or Float (numeric)",
			"unary - requires Int or Float, found %s", resolved)
		return c.record(n, c.manager.FreshTypeVar())
	case ast.OpNot:
		c.unify(n.Operand.Span(), operand, c.manager.Bool())
		return c.record(n, c.manager.Bool())
	default:
		c.errorf("T999", n.Span(), "internal: unhandled unary operator")
		return c.record(n, c.manager.FreshTypeVar())
	}
}

func (c *Checker) inferIf(env *Env, n *ast.If) *types.Type {
	cond := c.infer(env, n.Cond)
	c.unify(n.Cond.Span(), cond, c.manager.Bool())
	thenT := c.infer(env, n.Then)
	elseT := c.infer(env, n.Else)
	c.unify(n.Span(), thenT, elseT)
	return c.record(n, thenT)
}

func (c *Checker) inferWhere(env *Env, n *ast.Where) *types.Type {
	// A duplicate name within one where block is already rejected at parse
	// time (expr_binary.go's parseWhere, T020) — inferWhere never sees one.
	scope := env.Child()
	for _, b := range n.Bindings {
		if lam, ok := b.Value.(*ast.Lambda); ok {
			scope.BindLambda(b.Name, lam, scope)
			continue
		}
		t := c.infer(scope, b.Value)
		if scheme := generalize(c, scope, t); scheme != nil {
			scope.BindScheme(b.Name, scheme)
			continue
		}
		scope.Bind(b.Name, t)
	}
	bodyT := c.infer(scope, n.Body)
	return c.record(n, bodyT)
}

func (c *Checker) inferOtherwise(env *Env, n *ast.Otherwise) *types.Type {
	primary := c.infer(env, n.Primary)
	fallback := c.infer(env, n.Fallback)
	c.unify(n.Span(), primary, fallback)
	return c.record(n, primary)
}

func (c *Checker) inferCast(env *Env, n *ast.Cast) *types.Type {
	from := c.infer(env, n.Value)
	to := c.resolveTypeExpr(n.TypeExpr)
	fromR := c.subst.Apply(c.manager, from)
	if !castAllowed(fromR, to) {
		c.errorf("T014", n.Span(), "cannot cast %s as %s", fromR, to)
	}
	return c.record(n, to)
}

func (c *Checker) inferIndex(env *Env, n *ast.Index) *types.Type {
	container := c.infer(env, n.Container)
	key := c.infer(env, n.Key)
	cr := c.subst.Apply(c.manager, container)
	kr := c.subst.Apply(c.manager, key)
	if result, ok := types.Indexable(c.manager, cr, kr); ok {
		return c.record(n, result)
	}
	c.errorf("T015", n.Span(), "%s cannot be indexed by %s", cr, kr)
	return c.record(n, c.manager.FreshTypeVar())
}

func (c *Checker) inferField(env *Env, n *ast.Field) *types.Type {
	container := c.infer(env, n.Container)
	cr := c.subst.Apply(c.manager, container)
	if cr.Kind() == types.KindVar {
		c.errorf("T016", n.Span(), "cannot determine record shape to resolve field %q", n.Name)
		return c.record(n, c.manager.FreshTypeVar())
	}
	if cr.Kind() != types.KindRecord {
		c.errorf("T017", n.Span(), "%s has no field %q", cr, n.Name)
		return c.record(n, c.manager.FreshTypeVar())
	}
	ft, ok := cr.Field(n.Name)
	if !ok {
		c.errorf("T017", n.Span(), "%s has no field %q", cr, n.Name)
		return c.record(n, c.manager.FreshTypeVar())
	}
	return c.record(n, ft)
}

func (c *Checker) inferLambdaValue(n *ast.Lambda) *types.Type {
	params := make([]*types.Type, len(n.Params))
	for i := range params {
		params[i] = c.manager.FreshTypeVar()
	}
	return c.record(n, c.manager.Function(params, c.manager.FreshTypeVar()))
}

func (c *Checker) inferCall(env *Env, n *ast.Call) *types.Type {
	argTypes := make([]*types.Type, len(n.Args))
	for i, a := range n.Args {
		argTypes[i] = c.subst.Apply(c.manager, c.infer(env, a))
	}

	// Direct lambda literal application (IIFE): monomorphize against env.
	if lam, ok := n.Callee.(*ast.Lambda); ok {
		ret := c.monomorphize(env, lam, argTypes, n.Span())
		c.record(n.Callee, c.manager.Function(argTypes, ret))
		return c.record(n, ret)
	}

	// Named lambda (bound via `where`) applied by identifier.
	if ident, ok := n.Callee.(*ast.Ident); ok {
		if entry, found := env.Lookup(ident.Name); found && entry.Lambda != nil {
			ret := c.monomorphize(entry.Closure, entry.Lambda, argTypes, n.Span())
			c.record(ident, c.manager.Function(argTypes, ret))
			return c.record(n, ret)
		}
	}

	// General case: callee is an ordinary (already concrete) Function value
	// — a native function, or a function pulled out of a record/array/map.
	calleeT := c.infer(env, n.Callee)
	ret := c.manager.FreshTypeVar()
	c.unify(n.Callee.Span(), calleeT, c.manager.Function(argTypes, ret))
	return c.record(n, c.subst.Apply(c.manager, ret))
}

func (c *Checker) inferArrayLit(env *Env, n *ast.ArrayLit) *types.Type {
	if len(n.Elements) == 0 {
		return c.record(n, c.manager.Array(c.manager.FreshTypeVar()))
	}
	elemT := c.infer(env, n.Elements[0])
	for _, e := range n.Elements[1:] {
		t := c.infer(env, e)
		c.unify(e.Span(), elemT, t)
	}
	return c.record(n, c.manager.Array(c.subst.Apply(c.manager, elemT)))
}

func (c *Checker) inferMapLit(env *Env, n *ast.MapLit) *types.Type {
	if len(n.Entries) == 0 {
		return c.record(n, c.manager.Map(c.manager.FreshTypeVar(), c.manager.FreshTypeVar()))
	}
	keyT := c.infer(env, n.Entries[0].Key)
	valT := c.infer(env, n.Entries[0].Value)
	if kr := c.subst.Apply(c.manager, keyT); !types.Hashable(kr) {
		c.errorf("T018", n.Entries[0].Key.Span(), "%s cannot be used as a map key", kr)
	}
	for _, e := range n.Entries[1:] {
		kt := c.infer(env, e.Key)
		vt := c.infer(env, e.Value)
		c.unify(e.Key.Span(), keyT, kt)
		c.unify(e.Value.Span(), valT, vt)
	}
	return c.record(n, c.manager.Map(c.subst.Apply(c.manager, keyT), c.subst.Apply(c.manager, valT)))
}

func (c *Checker) inferRecordLit(env *Env, n *ast.RecordLit) *types.Type {
	fields := make([]types.Field, len(n.Fields))
	for i, f := range n.Fields {
		t := c.infer(env, f.Value)
		fields[i] = types.Field{Name: f.Name, Type: c.subst.Apply(c.manager, t)}
	}
	rec, err := c.manager.Record(fields)
	if err != nil {
		c.errorf("T019", n.Span(), "%v", err)
		return c.record(n, c.manager.FreshTypeVar())
	}
	return c.record(n, rec)
}
