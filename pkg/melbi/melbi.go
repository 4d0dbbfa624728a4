// Package melbi is the host-facing embedding API (spec.md §6 "Embedding
// API"): an Engine owns a long-lived type manager, native-global
// environment and constant arena; Compile turns one expression's source
// into a CompiledExpression that Run executes against fresh per-call
// arguments. Mirrors the shape of the teacher's pkg/embed VM wrapper, with
// explicit types standing in for the teacher's reflect-driven marshalling —
// melbi is statically typed, so every binding's Type is supplied up front
// rather than inferred from a Go value at bind time.
package melbi

import (
	"fmt"

	"github.com/melbi-lang/melbi/internal/analyzer"
	"github.com/melbi-lang/melbi/internal/compiler"
	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/parser"
	"github.com/melbi-lang/melbi/internal/types"
	"github.com/melbi-lang/melbi/internal/vm"
)

// Re-exported so callers can name types and values without importing
// internal/types or internal/vm. Run and ConstArena still take and return a
// *vm.ValueArena, which is not re-exported.
type (
	Type     = types.Type
	Manager  = types.Manager
	Value    = vm.Value
	RawValue = vm.RawValue
)

// Severity mirrors diag.Severity.
type Severity = diag.Severity

const (
	SeverityError   = diag.Error
	SeverityWarning = diag.Warning
	SeverityInfo    = diag.Info
)

// Diagnostic is one compile-time finding (a parse or type error).
type Diagnostic struct {
	Severity Severity
	Code     string
	Message  string
	Help     string
	Start    int
	End      int
}

// CompileError collects every diagnostic a failed Compile produced (spec.md
// §4.1/§4.3: "collects additional top-level errors" rather than stopping at
// the first one).
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "melbi: compilation failed"
	}
	return fmt.Sprintf("melbi: %s: %s", e.Diagnostics[0].Code, e.Diagnostics[0].Message)
}

// RuntimeError is a catchable-or-worse failure raised while running a
// CompiledExpression (spec.md §7's three-axis classification).
type RuntimeError struct {
	Kind    diag.RuntimeKind
	Code    string
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("melbi: %s: %s", e.Code, e.Message)
}

func fromBag(bag *diag.Bag) *CompileError {
	if bag == nil || bag.Len() == 0 {
		return nil
	}
	ds := make([]Diagnostic, 0, bag.Len())
	for _, d := range bag.Diagnostics() {
		ds = append(ds, Diagnostic{
			Severity: d.Severity,
			Code:     d.Code,
			Message:  d.Message,
			Help:     d.Help,
			Start:    d.Span.Start,
			End:      d.Span.End,
		})
	}
	return &CompileError{Diagnostics: ds}
}

func fromRuntimeError(rerr *diag.RuntimeError) *RuntimeError {
	if rerr == nil {
		return nil
	}
	return &RuntimeError{Kind: rerr.Kind, Code: rerr.Code, Message: rerr.Message}
}

// EngineOptions configures resource limits shared by every CompiledExpression
// an Engine produces (spec.md §9 "RunOptions": max_depth defaults to 1000,
// max_iterations defaults to unlimited). A zero value is the default: unlike
// the original's nested Option<Option<..>> override-merge, Go just treats
// <= 0 as "use the built-in default" the same way vm.New already does.
type EngineOptions struct {
	// MaxDepth bounds nested closure-call recursion. <= 0 means 1000.
	MaxDepth int
	// MaxIterations bounds the number of closure calls per run. <= 0 means
	// unlimited.
	MaxIterations int
	// MaxParseDepth bounds expression nesting at parse time. <= 0 means
	// parser.DefaultMaxDepth.
	MaxParseDepth int
}

// NativeFunction is a Go function exposed to melbi source as a package
// field (spec.md §4.6 FFI contract), e.g. Math.abs or UUID.v4.
type NativeFunction struct {
	Name   string
	Params []*Type
	Ret    *Type
	Fn     func(*vm.ValueArena, *Manager, []Value) (Value, *RuntimeError)
}

// NativeConst is a constant package field, e.g. Math.PI.
type NativeConst struct {
	Name  string
	Type  *Type
	Value RawValue
}

// NativePackage is a registered record-typed global (spec.md §4.6): its
// function fields are genuine closures, reachable through the same OpCall
// path as any melbi-authored lambda (see internal/natives).
type NativePackage struct {
	Name  string
	Type  *Type
	Value RawValue
}

// Param declares one of a compiled expression's runtime arguments (spec.md
// §6 "engine.compile(source, [(param_name, param_type)])").
type Param struct {
	Name string
	Type *Type
}

// Engine is melbi's compilation and execution context: one type Manager,
// one read-only native-global environment, and one long-lived constant
// arena shared by every CompiledExpression it produces (spec.md §3.6
// "engine arena... owns types, globals, the constant pool").
type Engine struct {
	manager    *Manager
	options    EngineOptions
	constArena *vm.ValueArena

	analyzerGlobals map[string]*Type
	compilerGlobals []compiler.Global
}

// NewEngine constructs an Engine with its own fresh type Manager and
// constant arena. Globals are registered once, here, and are shared
// read-only by every expression this Engine later compiles (spec.md §5).
func NewEngine(options EngineOptions) *Engine {
	return &Engine{
		manager:         types.NewManager(),
		options:         options,
		constArena:      vm.NewValueArena(),
		analyzerGlobals: make(map[string]*Type),
	}
}

// Manager returns the Engine's type interner, for building Param/NativeFunction
// types programmatically.
func (e *Engine) Manager() *Manager { return e.manager }

// BindConst registers a plain constant global (spec.md §4.6): a Str, Int,
// or any other value visible under its name to every expression this Engine
// compiles afterward.
func (e *Engine) BindConst(c NativeConst) {
	e.analyzerGlobals[c.Name] = c.Type
	e.compilerGlobals = append(e.compilerGlobals, compiler.Global{Name: c.Name, Type: c.Type, Value: c.Value})
}

// BindFunction registers a native function callable directly by its bare
// name (e.g. `contains(xs, x)`), as opposed to through a package record
// (see RegisterPackage).
func (e *Engine) BindFunction(fn NativeFunction) {
	fnType := e.manager.Function(fn.Params, fn.Ret)
	e.analyzerGlobals[fn.Name] = fnType
	adapter := &vm.FunctionAdapter{
		ParamTypes: fn.Params,
		Ret:        fn.Ret,
		Fn: func(va *vm.ValueArena, tm *types.Manager, args []vm.Value) (vm.Value, *diag.RuntimeError) {
			result, rerr := fn.Fn(va, tm, args)
			if rerr != nil {
				return vm.Value{}, toRuntimeError(rerr)
			}
			return result, nil
		},
	}
	e.compilerGlobals = append(e.compilerGlobals, compiler.Global{Name: fn.Name, Type: fnType, Adapter: adapter})
}

// RegisterPackage registers a native package (spec.md §4.6), e.g. the
// result of internal/natives/uuidpkg.Register or mathpkg.Register, as a
// record-typed global reachable as `Name.field`.
func (e *Engine) RegisterPackage(pkg NativePackage) {
	e.analyzerGlobals[pkg.Name] = pkg.Type
	e.compilerGlobals = append(e.compilerGlobals, compiler.Global{Name: pkg.Name, Type: pkg.Type, Value: pkg.Value})
}

// ConstArena exposes the Engine's long-lived constant arena, the one
// internal/natives.Build and friends need to intern their closures and
// string/bytes constants into before RegisterPackage/BindConst.
func (e *Engine) ConstArena() *vm.ValueArena { return e.constArena }

func toRuntimeError(r *RuntimeError) *diag.RuntimeError {
	switch r.Kind {
	case diag.ResourceExceeded:
		return diag.NewResourceExceeded(r.Code, diag.Span{}, "%s", r.Message)
	case diag.Internal:
		return diag.NewInternalError(r.Code, diag.Span{}, "%s", r.Message)
	default:
		return diag.NewRuntimeError(r.Code, diag.Span{}, "%s", r.Message)
	}
}

// CompiledExpression is one parsed, type-checked, bytecode-lowered
// expression, ready to Run repeatedly against fresh arguments and value
// arenas (spec.md §6 "compiled.run(value_arena, &[RawValue]) -> Value |
// Error").
type CompiledExpression struct {
	engine     *Engine
	source     string
	params     []Param
	returnType *Type
	code       *vm.Code
}

// Source returns the original expression text this was compiled from.
func (c *CompiledExpression) Source() string { return c.source }

// Params returns the declared parameter list, in argument order.
func (c *CompiledExpression) Params() []Param { return c.params }

// ReturnType returns the expression's inferred result type.
func (c *CompiledExpression) ReturnType() *Type { return c.returnType }

// Compile parses, type-checks and lowers source against e's registered
// globals plus the given params, returning a reusable CompiledExpression or
// the full set of diagnostics found.
func (e *Engine) Compile(source string, params []Param) (*CompiledExpression, error) {
	pr, perrs := parser.Parse(source, e.options.MaxParseDepth)
	if perrs.HasErrors() {
		return nil, fromBag(perrs)
	}

	seen := make(map[string]struct{}, len(params))
	globals := make(map[string]*Type, len(e.analyzerGlobals)+len(params))
	for name, t := range e.analyzerGlobals {
		globals[name] = t
	}
	for _, p := range params {
		if _, dup := seen[p.Name]; dup {
			return nil, &CompileError{Diagnostics: []Diagnostic{{
				Severity: diag.Error,
				Code:     "T021",
				Message:  fmt.Sprintf("duplicate parameter name %q", p.Name),
			}}}
		}
		seen[p.Name] = struct{}{}
		globals[p.Name] = p.Type
	}

	result, aerrs := analyzer.Analyze(e.manager, pr.Root, globals)
	if aerrs.HasErrors() {
		return nil, fromBag(aerrs)
	}

	compilerParams := make([]compiler.Param, len(params))
	for i, p := range params {
		compilerParams[i] = compiler.Param{Name: p.Name, Type: p.Type}
	}
	code, err := compiler.Compile(e.manager, result, pr.Root, e.compilerGlobals, compilerParams, e.constArena)
	if err != nil {
		return nil, err
	}

	return &CompiledExpression{
		engine:     e,
		source:     source,
		params:     params,
		returnType: result.RootType,
		code:       code,
	}, nil
}

// Run executes the compiled expression against args (in the order declared
// to Compile) using arena for every value this run allocates. Callers may
// run the same CompiledExpression concurrently from multiple goroutines
// provided each goroutine supplies its own arena (spec.md §4.5): the Engine's
// constant pool and type Manager are read-only after construction, but a
// ValueArena is not safe to share across concurrent runs.
func (c *CompiledExpression) Run(arena *vm.ValueArena, args []RawValue) (Value, *RuntimeError) {
	locals := make([]RawValue, c.code.NumLocals)
	copy(locals, args)

	m := vm.New(arena, c.engine.manager, c.engine.options.MaxDepth, c.engine.options.MaxIterations)
	raw, rerr := m.Run(c.code, locals, nil)
	if rerr != nil {
		return Value{}, fromRuntimeError(rerr)
	}
	return Value{Type: c.returnType, Raw: raw}, nil
}

// Eval is a convenience wrapper over Compile+Run for a one-shot,
// parameterless expression, allocating its own arena.
func (e *Engine) Eval(source string) (Value, error) {
	expr, err := e.Compile(source, nil)
	if err != nil {
		return Value{}, err
	}
	arena := vm.NewValueArena()
	val, rerr := expr.Run(arena, nil)
	if rerr != nil {
		return Value{}, rerr
	}
	return val, nil
}
