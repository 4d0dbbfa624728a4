// Package compiler lowers melbi's typed expression tree (internal/analyzer's
// output) into internal/vm bytecode (spec.md §4.4). It owns no bytecode or
// runtime types of its own — Code, Opcode, Adapter and every concrete
// adapter already live in internal/vm (see DESIGN.md's package-boundary
// note) — this package is purely the structural-recursion lowering pass
// over internal/ast that builds them.
package compiler

import (
	"fmt"

	"github.com/melbi-lang/melbi/internal/analyzer"
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/types"
	"github.com/melbi-lang/melbi/internal/vm"
)

// Global describes one binding visible to every compiled expression,
// compiled once by the engine at registration time and shared read-only
// across every Compile call (spec.md §5: "the engine's global environment:
// read-only after engine construction"). Exactly one of Adapter or Value is
// set: Adapter names a function callable directly by its bare identifier
// (`lowerCall`'s fast path straight to OpCallAdapter); Value is an ordinary
// runtime value — typically a native package's record (spec.md §4.6), whose
// function fields are already real closures and need no special call-site
// handling at all.
type Global struct {
	Name    string
	Type    *types.Type
	Adapter *vm.FunctionAdapter
	Value   vm.RawValue
}

// Error reports a compile-time failure: a full constant, adapter, template
// or call-site pool (C002), a jump too far for its 16-bit operand (C003),
// or an internal error (I0xx). The number of local slots is not checked
// against the 16-bit operand limit.
type Error struct {
	Code    string
	Message string
	Span    ast.Span
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Compiler lowers one analyzed root expression (and every lambda
// instantiation the analyzer discovered within it) into a vm.Code.
type Compiler struct {
	manager    *types.Manager
	result     *analyzer.Result
	globals    map[string]*Global
	constArena *vm.ValueArena
	err        *Error
}

// Param is one of a compiled expression's declared runtime arguments
// (spec.md §6 "engine.compile(source, [(param_name, param_type)])"): unlike
// a Global, a Param's value is never baked into the constant pool — it
// arrives fresh in the locals slice passed to every Run call, so it
// compiles to a root-level local slot instead of a constant load.
type Param struct {
	Name string
	Type *types.Type
}

// Compile lowers root using result (the analyzer's typed decoration of root,
// produced against a globals environment that already folds params in
// alongside native globals — see analyzer.Analyze) against manager and the
// given native globals and declared params, returning the top-level Code or
// the first compile error encountered. constArena is the engine's
// long-lived arena (spec.md §3.6 "engine arena: owns... constant pool"), not
// the per-run value arena Run is later called with — string and bytes
// literals are interned into it once, at compile time, so the same Code can
// be run concurrently against many distinct per-call value arenas without
// re-allocating its own constants on every run.
func Compile(manager *types.Manager, result *analyzer.Result, root ast.Expr, globals []Global, params []Param, constArena *vm.ValueArena) (*vm.Code, error) {
	byName := make(map[string]*Global, len(globals))
	for i := range globals {
		byName[globals[i].Name] = &globals[i]
	}
	c := &Compiler{manager: manager, result: result, globals: byName, constArena: constArena}

	top := vm.NewCode()
	lc := newLowerCtx(top, nil)
	// Params occupy slots 0..len(params)-1, in declaration order, matching
	// the locals slice a caller supplies to vm.VM.Run for this Code.
	for _, p := range params {
		lc.declareLocal(p.Name)
	}
	c.lowerExpr(lc, root)
	top.Emit(vm.OpReturn, root.Span())
	top.NumLocals = lc.nextSlot
	top.MaxStackSize = lc.maxStack

	if c.err != nil {
		return nil, c.err
	}
	return top, nil
}

func (c *Compiler) fail(code string, span ast.Span, format string, args ...any) {
	if c.err == nil {
		c.err = &Error{Code: code, Message: fmt.Sprintf(format, args...), Span: span}
	}
}

func (c *Compiler) failed() bool { return c.err != nil }

// typeOf returns expr's analyzer-resolved type. Every expr in a
// successfully analyzed tree has one (analyzer invariant 4).
func (c *Compiler) typeOf(expr ast.Expr) *types.Type {
	return c.result.Types[expr]
}

// lowerCtx tracks one Code's local-variable slot assignment and, for a
// lambda body's Code, the chain of captures it borrows from its lexical
// parent. This is a purely compiler-side scope — separate from
// analyzer.Env, which tracks types, not stack slots.
type lowerCtx struct {
	code   *vm.Code
	parent *lowerCtx

	locals   map[string]int
	order    []string // local names in slot order, for diagnostics
	nextSlot int

	captures      map[string]int // name -> capture slot in this Code
	captureOrder  []string       // capture names in slot order
	isLambdaScope bool           // true for a lambda instantiation's own Code

	stackDepth int
	maxStack   int
}

func newLowerCtx(code *vm.Code, parent *lowerCtx) *lowerCtx {
	return &lowerCtx{
		code:     code,
		parent:   parent,
		locals:   map[string]int{},
		captures: map[string]int{},
	}
}

// declareLocal assigns name the next free slot in this Code.
func (lc *lowerCtx) declareLocal(name string) int {
	slot := lc.nextSlot
	lc.nextSlot++
	lc.locals[name] = slot
	lc.order = append(lc.order, name)
	return slot
}

func (lc *lowerCtx) track(delta int) {
	lc.stackDepth += delta
	if lc.stackDepth > lc.maxStack {
		lc.maxStack = lc.stackDepth
	}
}

// identKind classifies how an Ident resolves, decided once per reference
// by resolveIdent below.
type identKind int

const (
	identLocal identKind = iota
	identCapture
	identGlobal
)

// resolveIdent decides how name is reached from lc: a local slot in lc's
// own Code, a capture slot (chaining the capture up through every enclosing
// lambda scope that doesn't already have it as a local), or a global
// native. Globals are checked last so a local or captured binding always
// shadows a same-named native, matching spec.md's inside-out lookup order.
// ok is false only when name resolves nowhere, which analyzer success
// already rules out.
func (c *Compiler) resolveIdent(lc *lowerCtx, name string) (kind identKind, slot int, ok bool) {
	if slot, ok := lc.locals[name]; ok {
		return identLocal, slot, true
	}
	if slot, ok := lc.captures[name]; ok {
		return identCapture, slot, true
	}
	if lc.parent != nil {
		if slot := c.captureFromParent(lc, name); slot >= 0 {
			return identCapture, slot, true
		}
	}
	if _, ok := c.globals[name]; ok {
		return identGlobal, 0, true
	}
	return identGlobal, 0, false
}

// captureFromParent ensures name is available as a capture of lc, chaining
// through lc.parent (recursively, if the parent itself must capture it from
// its own enclosing scope) and returns lc's capture slot, or -1 if name is
// not bound anywhere in the enclosing chain.
func (c *Compiler) captureFromParent(lc *lowerCtx, name string) int {
	if slot, ok := lc.captures[name]; ok {
		return slot
	}
	parent := lc.parent
	if parent == nil {
		return -1
	}
	if _, ok := parent.locals[name]; !ok {
		if _, ok := parent.captures[name]; !ok {
			if c.captureFromParent(parent, name) < 0 {
				return -1
			}
		}
	}
	slot := len(lc.captureOrder)
	lc.captures[name] = slot
	lc.captureOrder = append(lc.captureOrder, name)
	return slot
}

// pushCaptureValue emits, in parent (the Code that constructs a MakeClosure
// instruction), the instruction that pushes name's current runtime value —
// a LocalLoad if parent binds it directly, or a CaptureLoad if parent
// itself only has it as one of its own captures (the recursive case of a
// lambda nested two or more levels deep capturing a grandparent's binding).
func (c *Compiler) pushCaptureValue(parent *lowerCtx, name string, span ast.Span) {
	if slot, ok := parent.locals[name]; ok {
		parent.code.Emit(vm.OpLocalLoad, span)
		parent.code.EmitOperand(uint16(slot))
		parent.track(1)
		return
	}
	if slot, ok := parent.captures[name]; ok {
		parent.code.Emit(vm.OpCaptureLoad, span)
		parent.code.EmitOperand(uint16(slot))
		parent.track(1)
		return
	}
	c.fail("I030", span, "internal error: capture %q not found while building closure", name)
}
