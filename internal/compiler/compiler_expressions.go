package compiler

import (
	"github.com/melbi-lang/melbi/internal/analyzer"
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/types"
	"github.com/melbi-lang/melbi/internal/vm"
)

// lowerExpr emits, into lc.code, the instructions that leave expr's value on
// top of the stack, dispatching by concrete node type. Mirrors the
// teacher's compiler_expressions.go structural-recursion shape.
func (c *Compiler) lowerExpr(lc *lowerCtx, expr ast.Expr) {
	if c.failed() {
		return
	}
	switch e := expr.(type) {
	case *ast.IntLit:
		c.emitConst(lc, vm.IntRaw(e.Value), e.Span())
	case *ast.FloatLit:
		c.emitConst(lc, vm.FloatRaw(e.Value), e.Span())
	case *ast.BoolLit:
		if e.Value {
			lc.code.Emit(vm.OpConstTrue, e.Span())
		} else {
			lc.code.Emit(vm.OpConstFalse, e.Span())
		}
		lc.track(1)
	case *ast.StringLit:
		c.lowerStringConst(lc, e.Value, e.Span())
	case *ast.BytesLit:
		c.lowerBytesConst(lc, e.Value, e.Span())
	case *ast.FormatStringLit:
		c.lowerFormatString(lc, e)
	case *ast.Ident:
		c.lowerIdent(lc, e)
	case *ast.Binary:
		c.lowerBinary(lc, e)
	case *ast.Logical:
		c.lowerLogical(lc, e)
	case *ast.Unary:
		c.lowerUnary(lc, e)
	case *ast.If:
		c.lowerIf(lc, e)
	case *ast.Otherwise:
		c.lowerOtherwise(lc, e)
	case *ast.Where:
		c.lowerWhere(lc, e)
	case *ast.Lambda:
		c.lowerLambdaLiteral(lc, e, nil)
	case *ast.Call:
		c.lowerCall(lc, e)
	case *ast.Index:
		c.lowerIndex(lc, e)
	case *ast.Field:
		c.lowerField(lc, e)
	case *ast.Cast:
		c.lowerCast(lc, e)
	case *ast.ArrayLit:
		c.lowerArrayLit(lc, e)
	case *ast.MapLit:
		c.lowerMapLit(lc, e)
	case *ast.RecordLit:
		c.lowerRecordLit(lc, e)
	default:
		c.fail("I031", expr.Span(), "internal error: unhandled expression node %T", expr)
	}
}

func (c *Compiler) emitConst(lc *lowerCtx, raw vm.RawValue, span ast.Span) {
	idx := lc.code.AddConstant(raw)
	if idx < 0 {
		c.fail("C002", span, "too many constants in one compiled expression")
		return
	}
	lc.code.Emit(vm.OpConstLoad, span)
	lc.code.EmitOperand(uint16(idx))
	lc.track(1)
}

func (c *Compiler) lowerStringConst(lc *lowerCtx, s string, span ast.Span) {
	c.emitConst(lc, c.constArena.AllocStr(s), span)
}

func (c *Compiler) lowerBytesConst(lc *lowerCtx, b []byte, span ast.Span) {
	c.emitConst(lc, c.constArena.AllocBytes(append([]byte(nil), b...)), span)
}

func (c *Compiler) lowerIdent(lc *lowerCtx, e *ast.Ident) {
	kind, slot, ok := c.resolveIdent(lc, e.Name)
	if !ok {
		c.fail("I032", e.Span(), "internal error: unresolved identifier %q survived analysis", e.Name)
		return
	}
	switch kind {
	case identLocal:
		lc.code.Emit(vm.OpLocalLoad, e.Span())
		lc.code.EmitOperand(uint16(slot))
		lc.track(1)
	case identCapture:
		lc.code.Emit(vm.OpCaptureLoad, e.Span())
		lc.code.EmitOperand(uint16(slot))
		lc.track(1)
	case identGlobal:
		g := c.globals[e.Name]
		if g.Adapter != nil {
			// A bare reference to a directly-callable native function as a
			// value (not called) has no closure representation in this
			// design — that fast path only exists for a direct Call (see
			// lowerCall). The analyzer accepts such a reference outside
			// call position (`[f]`, or `g where { g = f }`), so it is
			// reported here as an internal compile error.
			c.fail("I033", e.Span(), "internal error: native %q referenced outside call position", e.Name)
			return
		}
		// An ordinary global value (a native package's record, spec.md
		// §4.6) is interned once at registration time and just needs a
		// constant load here, exactly like a literal.
		c.emitConst(lc, g.Value, e.Span())
	}
}

func (c *Compiler) lowerBinary(lc *lowerCtx, e *ast.Binary) {
	switch e.Op {
	case ast.OpIn, ast.OpNotIn:
		c.lowerContains(lc, e)
		return
	}

	c.lowerExpr(lc, e.Left)
	c.lowerExpr(lc, e.Right)
	if c.failed() {
		return
	}

	switch e.Op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpPow:
		c.lowerArith(lc, e)
	case ast.OpEq, ast.OpNeq:
		c.lowerEquality(lc, e)
	case ast.OpLt, ast.OpGt, ast.OpLe, ast.OpGe:
		c.lowerOrd(lc, e)
	default:
		c.fail("I034", e.Span(), "internal error: unhandled binary operator")
	}
}

func (c *Compiler) lowerArith(lc *lowerCtx, e *ast.Binary) {
	result := c.typeOf(e)
	var ops [5]vm.Opcode
	switch result.Kind() {
	case types.KindInt:
		ops = [5]vm.Opcode{vm.OpIntAdd, vm.OpIntSub, vm.OpIntMul, vm.OpIntDiv, vm.OpIntPow}
	case types.KindFloat:
		ops = [5]vm.Opcode{vm.OpFloatAdd, vm.OpFloatSub, vm.OpFloatMul, vm.OpFloatDiv, vm.OpFloatPow}
	default:
		c.fail("I035", e.Span(), "internal error: arithmetic on non-numeric type %s", result)
		return
	}
	idx := map[ast.BinaryOp]int{ast.OpAdd: 0, ast.OpSub: 1, ast.OpMul: 2, ast.OpDiv: 3, ast.OpPow: 4}[e.Op]
	lc.code.Emit(ops[idx], e.Span())
	lc.track(-1)
}

func (c *Compiler) lowerOrd(lc *lowerCtx, e *ast.Binary) {
	operand := c.typeOf(e.Left)
	var table map[ast.BinaryOp]vm.Opcode
	switch operand.Kind() {
	case types.KindInt:
		table = map[ast.BinaryOp]vm.Opcode{ast.OpLt: vm.OpIntLt, ast.OpGt: vm.OpIntGt, ast.OpLe: vm.OpIntLe, ast.OpGe: vm.OpIntGe}
	case types.KindFloat:
		table = map[ast.BinaryOp]vm.Opcode{ast.OpLt: vm.OpFloatLt, ast.OpGt: vm.OpFloatGt, ast.OpLe: vm.OpFloatLe, ast.OpGe: vm.OpFloatGe}
	case types.KindStr:
		table = map[ast.BinaryOp]vm.Opcode{ast.OpLt: vm.OpStrLt, ast.OpGt: vm.OpStrGt, ast.OpLe: vm.OpStrLe, ast.OpGe: vm.OpStrGe}
	case types.KindBytes:
		table = map[ast.BinaryOp]vm.Opcode{ast.OpLt: vm.OpBytesLt, ast.OpGt: vm.OpBytesGt, ast.OpLe: vm.OpBytesLe, ast.OpGe: vm.OpBytesGe}
	default:
		c.fail("I036", e.Span(), "internal error: ordering comparison on non-Ord type %s", operand)
		return
	}
	lc.code.Emit(table[e.Op], e.Span())
	lc.track(-1)
}

func (c *Compiler) lowerEquality(lc *lowerCtx, e *ast.Binary) {
	operand := c.typeOf(e.Left)
	negate := e.Op == ast.OpNeq
	switch operand.Kind() {
	case types.KindInt:
		lc.code.Emit(pick(negate, vm.OpIntNeq, vm.OpIntEq), e.Span())
	case types.KindFloat:
		lc.code.Emit(pick(negate, vm.OpFloatNeq, vm.OpFloatEq), e.Span())
	case types.KindStr:
		lc.code.Emit(pick(negate, vm.OpStrNeq, vm.OpStrEq), e.Span())
	case types.KindBytes:
		lc.code.Emit(pick(negate, vm.OpBytesNeq, vm.OpBytesEq), e.Span())
	case types.KindBool:
		lc.code.Emit(pick(negate, vm.OpBoolNeq, vm.OpBoolEq), e.Span())
	default:
		// Array, Map, Record, Symbol: structural equality has no fixed
		// arity-2 opcode (the comparison recurses through the container's
		// element/field types), so it goes through EqualAdapter instead.
		c.emitCallAdapter(lc, &vm.EqualAdapter{T: operand, Negate: negate}, e.Span())
		return
	}
	lc.track(-1)
}

func pick(cond bool, yes, no vm.Opcode) vm.Opcode {
	if cond {
		return yes
	}
	return no
}

func (c *Compiler) lowerContains(lc *lowerCtx, e *ast.Binary) {
	c.lowerExpr(lc, e.Left)
	c.lowerExpr(lc, e.Right)
	if c.failed() {
		return
	}
	haystack := c.typeOf(e.Right)
	c.emitCallAdapter(lc, &vm.ContainsAdapter{Haystack: haystack, Negate: e.Op == ast.OpNotIn, Span: e.Span()}, e.Span())
}

func (c *Compiler) lowerLogical(lc *lowerCtx, e *ast.Logical) {
	c.lowerExpr(lc, e.Left)
	if c.failed() {
		return
	}
	var jumpOp vm.Opcode
	if e.Op == ast.OpAnd {
		jumpOp = vm.OpJumpIfFalse
	} else {
		jumpOp = vm.OpJumpIfTrue
	}
	// `and`/`or` leave the deciding operand on the stack without consuming
	// it (spec.md §4.4: short-circuit leaving the deciding value on the
	// stack), so the jump instruction must not pop — but every Jump*
	// instruction in this instruction set does pop. A duplicate of the
	// top-of-stack value is pushed first so the pop inside the conditional
	// jump consumes the copy, leaving the original as the short-circuited
	// result.
	lc.code.Emit(vm.OpDup, e.Span())
	lc.track(1)
	patch := lc.code.EmitJumpPlaceholder(jumpOp, e.Span())
	lc.track(-1)
	lc.code.Emit(vm.OpPop, e.Span())
	lc.track(-1)
	c.lowerExpr(lc, e.Right)
	if !lc.code.PatchJump(patch) {
		c.fail("C003", e.Span(), "jump too far to encode in a 16-bit operand")
	}
}

func (c *Compiler) lowerUnary(lc *lowerCtx, e *ast.Unary) {
	c.lowerExpr(lc, e.Operand)
	if c.failed() {
		return
	}
	switch e.Op {
	case ast.OpNeg:
		switch c.typeOf(e).Kind() {
		case types.KindInt:
			lc.code.Emit(vm.OpIntNeg, e.Span())
		case types.KindFloat:
			lc.code.Emit(vm.OpFloatNeg, e.Span())
		default:
			c.fail("I037", e.Span(), "internal error: negation on non-numeric type")
		}
	case ast.OpNot:
		lc.code.Emit(vm.OpNot, e.Span())
	}
}

func (c *Compiler) lowerIf(lc *lowerCtx, e *ast.If) {
	c.lowerExpr(lc, e.Cond)
	if c.failed() {
		return
	}
	lc.track(-1)
	elseJump := lc.code.EmitJumpPlaceholder(vm.OpJumpIfFalse, e.Span())
	c.lowerExpr(lc, e.Then)
	endJump := lc.code.EmitJumpPlaceholder(vm.OpJump, e.Span())
	if !lc.code.PatchJump(elseJump) {
		c.fail("C003", e.Span(), "jump too far to encode in a 16-bit operand")
	}
	// `then` and `else` are mutually exclusive, so the stack-depth
	// accounting taken after `then` already reflects what `else` also
	// produces; only one branch's instructions ever execute.
	lc.stackDepth--
	c.lowerExpr(lc, e.Else)
	if !lc.code.PatchJump(endJump) {
		c.fail("C003", e.Span(), "jump too far to encode in a 16-bit operand")
	}
}

func (c *Compiler) lowerOtherwise(lc *lowerCtx, e *ast.Otherwise) {
	handlerPatch := lc.code.EmitJumpPlaceholder(vm.OpPushHandler, e.Span())
	base := lc.stackDepth
	c.lowerExpr(lc, e.Primary)
	lc.code.Emit(vm.OpPopHandler, e.Span())
	skip := lc.code.EmitJumpPlaceholder(vm.OpJump, e.Span())
	if !lc.code.PatchJump(handlerPatch) {
		c.fail("C003", e.Span(), "jump too far to encode in a 16-bit operand")
	}
	lc.stackDepth = base
	c.lowerExpr(lc, e.Fallback)
	if !lc.code.PatchJump(skip) {
		c.fail("C003", e.Span(), "jump too far to encode in a 16-bit operand")
	}
}

func (c *Compiler) lowerWhere(lc *lowerCtx, e *ast.Where) {
	// Matches analyzer.inferWhere's binding order: a lambda binding is
	// registered in scope *before* its body is analyzed, but a non-lambda
	// binding is only bound *after* its value is inferred, so its own
	// right-hand side resolves a same-named reference against the
	// enclosing scope, not itself. Declaring every local up front here
	// would shadow that outer binding during the non-lambda right-hand
	// side's lowering, so the local is only declared after lowering for
	// the non-lambda case, mirroring inferWhere's scope.Bind placement.
	//
	// All lambda-bound names are declared up front, though (lambdaSlots
	// below), because analyzer.Env.BindLambda stores a reference to the
	// shared `scope` object rather than a snapshot — by the time any
	// lambda in this block is actually monomorphized (lazily, at its first
	// call site, typically from inside e.Body after every binding in this
	// loop has already run), every sibling lambda is visible in `scope`
	// regardless of source order. That lets one where-bound lambda forward-
	// reference another defined later in the same block.
	lambdaSlots := map[string]int{}
	for _, b := range e.Bindings {
		if _, ok := b.Value.(*ast.Lambda); ok {
			lambdaSlots[b.Name] = lc.declareLocal(b.Name)
		}
	}

	// Patches are collected across every lambda in this where block but
	// not emitted until every binding has been constructed and stored: a
	// lambda that forward-references a sibling defined later in the block
	// would otherwise have that sibling's slot patched in before the
	// sibling's own closure is ever built.
	type pendingPatch struct {
		ownerSlot int
		capturePatch
	}
	var pending []pendingPatch

	for _, b := range e.Bindings {
		lam, isLambda := b.Value.(*ast.Lambda)
		if !isLambda {
			c.lowerExpr(lc, b.Value)
			slot := lc.declareLocal(b.Name)
			lc.code.Emit(vm.OpLocalStore, b.Span)
			lc.code.EmitOperand(uint16(slot))
			lc.track(-1)
			continue
		}

		slot := lambdaSlots[b.Name]
		patches := c.lowerLambdaLiteral(lc, lam, lambdaSlots)
		lc.code.Emit(vm.OpLocalStore, b.Span)
		lc.code.EmitOperand(uint16(slot))
		lc.track(-1)
		for _, p := range patches {
			pending = append(pending, pendingPatch{ownerSlot: slot, capturePatch: p})
		}
	}

	// Tie the knot: every capture a where-bound lambda took of a sibling
	// lambda (including itself) was pushed as a placeholder at MakeClosure
	// time, since that sibling's closure might not exist yet. By this
	// point every binding in the block has been constructed and stored, so
	// each placeholder can now be patched with the sibling's real value.
	for _, p := range pending {
		lc.code.Emit(vm.OpLocalLoad, e.Span())
		lc.code.EmitOperand(uint16(p.ownerSlot))
		lc.track(1)
		lc.code.Emit(vm.OpLocalLoad, e.Span())
		lc.code.EmitOperand(uint16(p.siblingSlot))
		lc.track(1)
		lc.code.Emit(vm.OpPatchCapture, e.Span())
		lc.code.EmitOperand(uint16(p.captureIdx))
		lc.track(-2)
	}

	c.lowerExpr(lc, e.Body)
}

func (c *Compiler) lowerArrayLit(lc *lowerCtx, e *ast.ArrayLit) {
	for _, el := range e.Elements {
		c.lowerExpr(lc, el)
	}
	if c.failed() {
		return
	}
	lc.code.Emit(vm.OpMakeArray, e.Span())
	lc.code.EmitOperand(uint16(len(e.Elements)))
	lc.track(-len(e.Elements) + 1)
}

func (c *Compiler) lowerMapLit(lc *lowerCtx, e *ast.MapLit) {
	for _, entry := range e.Entries {
		c.lowerExpr(lc, entry.Key)
		c.lowerExpr(lc, entry.Value)
	}
	if c.failed() {
		return
	}
	lc.code.Emit(vm.OpMakeMap, e.Span())
	lc.code.EmitOperand(uint16(len(e.Entries)))
	lc.track(-2*len(e.Entries) + 1)
}

func (c *Compiler) lowerRecordLit(lc *lowerCtx, e *ast.RecordLit) {
	t := c.typeOf(e)
	// Fields must push in the interned record type's sorted order, not
	// source order, so RecordData.Fields lines up positionally with
	// t.Fields() everywhere a field index is used (FieldLoad, Display,
	// RawEqual).
	byName := make(map[string]ast.Expr, len(e.Fields))
	for _, f := range e.Fields {
		byName[f.Name] = f.Value
	}
	for _, f := range t.Fields() {
		c.lowerExpr(lc, byName[f.Name])
	}
	if c.failed() {
		return
	}
	lc.code.Emit(vm.OpMakeRecord, e.Span())
	lc.code.EmitOperand(uint16(len(t.Fields())))
	lc.track(-len(t.Fields()) + 1)
}

func (c *Compiler) lowerFormatString(lc *lowerCtx, e *ast.FormatStringLit) {
	slotTypes := make([]*types.Type, len(e.Exprs))
	for i, sub := range e.Exprs {
		c.lowerExpr(lc, sub)
		slotTypes[i] = c.typeOf(sub)
	}
	if c.failed() {
		return
	}
	adapter := &vm.FormatStrAdapter{Fragments: e.Fragments, SlotTypes: slotTypes}
	c.emitCallAdapter(lc, adapter, e.Span())
}

func (c *Compiler) lowerCast(lc *lowerCtx, e *ast.Cast) {
	c.lowerExpr(lc, e.Value)
	if c.failed() {
		return
	}
	from := c.typeOf(e.Value)
	to := c.typeOf(e)
	if from == to {
		// A no-op cast (already this type) still type-checks under
		// spec.md's "trivially compatible" rule; nothing to emit.
		return
	}
	c.emitCallAdapter(lc, &vm.CastAdapter{From: from, To: to, Span: e.Span()}, e.Span())
}

func (c *Compiler) lowerIndex(lc *lowerCtx, e *ast.Index) {
	c.lowerExpr(lc, e.Container)
	c.lowerExpr(lc, e.Key)
	if c.failed() {
		return
	}
	container := c.typeOf(e.Container)
	switch container.Kind() {
	case types.KindArray:
		lc.code.Emit(vm.OpIndexArray, e.Span())
		lc.track(-1)
	case types.KindBytes:
		lc.code.Emit(vm.OpIndexBytes, e.Span())
		lc.track(-1)
	case types.KindMap:
		typeIdx := lc.code.AddType(container.MapKey())
		lc.code.Emit(vm.OpIndexMap, e.Span())
		lc.code.EmitOperand(uint16(typeIdx))
		lc.track(-1)
	default:
		c.fail("I038", e.Span(), "internal error: indexing non-Indexable type %s", container)
	}
}

func (c *Compiler) lowerField(lc *lowerCtx, e *ast.Field) {
	c.lowerExpr(lc, e.Container)
	if c.failed() {
		return
	}
	container := c.typeOf(e.Container)
	idx := -1
	for i, f := range container.Fields() {
		if f.Name == e.Name {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.fail("I039", e.Span(), "internal error: field %q not found on %s", e.Name, container)
		return
	}
	lc.code.Emit(vm.OpFieldLoad, e.Span())
	lc.code.EmitOperand(uint16(idx))
}

func (c *Compiler) emitCallAdapter(lc *lowerCtx, adapter vm.Adapter, span ast.Span) {
	idx := lc.code.AddAdapter(adapter)
	if idx < 0 {
		c.fail("C002", span, "too many adapters in one compiled expression")
		return
	}
	lc.code.Emit(vm.OpCallAdapter, span)
	lc.code.EmitOperand(uint16(idx))
	lc.track(-adapter.Arity() + 1)
}

func (c *Compiler) lowerCall(lc *lowerCtx, e *ast.Call) {
	// A direct reference to a global's name, not shadowed by a local or
	// capture, is a native call and lowers straight to OpCallAdapter.
	// Everything else (a `where`-bound lambda, a parameter holding a
	// closure, a closure returned from another call) is a value and goes
	// through OpCall.
	if ident, ok := e.Callee.(*ast.Ident); ok {
		if g, ok := c.globals[ident.Name]; ok && g.Adapter != nil && !isLocalOrCapture(lc, ident.Name) {
			c.lowerNativeCall(lc, g, e)
			return
		}
	}

	c.lowerExpr(lc, e.Callee)
	for _, a := range e.Args {
		c.lowerExpr(lc, a)
	}
	if c.failed() {
		return
	}
	argTypes := make([]*types.Type, len(e.Args))
	for i, a := range e.Args {
		argTypes[i] = c.typeOf(a)
	}
	idx := lc.code.AddCallSite(&vm.CallSite{ArgTypes: argTypes})
	if idx < 0 {
		c.fail("C002", e.Span(), "too many call sites in one compiled expression")
		return
	}
	lc.code.Emit(vm.OpCall, e.Span())
	lc.code.EmitOperand(uint16(idx))
	lc.track(-len(e.Args))
}

func isLocalOrCapture(lc *lowerCtx, name string) bool {
	if _, ok := lc.locals[name]; ok {
		return true
	}
	if _, ok := lc.captures[name]; ok {
		return true
	}
	for p := lc.parent; p != nil; p = p.parent {
		if _, ok := p.locals[name]; ok {
			return true
		}
	}
	return false
}

func (c *Compiler) lowerNativeCall(lc *lowerCtx, g *Global, e *ast.Call) {
	for _, a := range e.Args {
		c.lowerExpr(lc, a)
	}
	if c.failed() {
		return
	}
	c.emitCallAdapter(lc, g.Adapter, e.Span())
}

// capturePatch records one placeholder capture that must be patched in
// after construction because it refers to a where-bound lambda sibling
// (possibly itself) whose own closure may not exist yet at MakeClosure
// time. captureIdx is this lambda's capture slot; siblingSlot is the
// enclosing Code's local slot holding the sibling's (eventual) closure.
type capturePatch struct {
	captureIdx  int
	siblingSlot int
}

// lowerLambdaLiteral builds a ClosureTemplate from every instantiation the
// analyzer recorded for lam, compiling one nested Code per instantiation,
// then emits the MakeClosure instruction in lc.code along with the push
// instructions for whatever free variables the lambda's body captured.
// siblings is non-nil only when lam is one of a where block's lambda
// bindings: it maps every lambda-bound name in that same block (including
// lam's own, for self-recursion) to its local slot in lc, so a capture of
// one of those names can be deferred via capturePatch instead of read
// eagerly from a slot that may not hold its closure yet.
func (c *Compiler) lowerLambdaLiteral(lc *lowerCtx, lam *ast.Lambda, siblings map[string]int) []capturePatch {
	insts := c.instantiationsFor(lam)
	if len(insts) == 0 {
		c.fail("I040", lam.Span(), "internal error: lambda has no recorded instantiation")
		return nil
	}

	template := &vm.ClosureTemplate{}
	var bodyCtx *lowerCtx
	for _, inst := range insts {
		bodyCode := vm.NewCode()
		nested := newLowerCtx(bodyCode, lc)
		nested.isLambdaScope = true
		for _, name := range inst.ParamNames {
			nested.declareLocal(name)
		}
		c.lowerExpr(nested, inst.Body)
		bodyCode.Emit(vm.OpReturn, lam.Span())
		bodyCode.NumLocals = nested.nextSlot
		bodyCode.MaxStackSize = nested.maxStack
		if c.failed() {
			return nil
		}
		template.Insts = append(template.Insts, vm.Instantiation{ParamTypes: inst.Params, Code: bodyCode})
		// Every instantiation of one lambda literal closes over the exact
		// same set of free variables (they all share the same body AST and
		// lexical scope) — only the first instantiation's capture list is
		// kept, later ones reuse bodyCtx via CaptureCount below.
		if bodyCtx == nil {
			bodyCtx = nested
		}
	}
	template.CaptureCount = len(bodyCtx.captureOrder)

	idx := lc.code.AddTemplate(template)
	if idx < 0 {
		c.fail("C002", lam.Span(), "too many closure templates in one compiled expression")
		return nil
	}

	var patches []capturePatch
	for i, name := range bodyCtx.captureOrder {
		if siblingSlot, ok := siblings[name]; ok {
			// Placeholder now; lowerWhere patches it once every lambda in
			// the binding group has been constructed and stored.
			lc.code.Emit(vm.OpConstFalse, lam.Span())
			lc.track(1)
			patches = append(patches, capturePatch{captureIdx: i, siblingSlot: siblingSlot})
			continue
		}
		c.pushCaptureValue(lc, name, lam.Span())
	}
	lc.code.Emit(vm.OpMakeClosure, lam.Span())
	lc.code.EmitOperand(uint16(idx))
	lc.track(-template.CaptureCount + 1)
	return patches
}

// instantiationsFor returns lam's recorded instantiations in analyzer
// discovery order (Result.Order is the single global discovery sequence
// across every lambda in the tree; this filters to the ones for lam).
func (c *Compiler) instantiationsFor(lam *ast.Lambda) []*analyzer.Instantiation {
	byKey := c.result.Instantiations[lam]
	var out []*analyzer.Instantiation
	seen := map[string]bool{}
	for _, k := range c.result.Order {
		if k.Lambda != lam || seen[k.Key] {
			continue
		}
		seen[k.Key] = true
		out = append(out, byKey[k.Key])
	}
	return out
}
