package vm

import (
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/types"
)

// CallClosure invokes c against args, whose static types (argTypes) were
// baked into the call site at compile time. Closures carry one Code per
// instantiation the analyzer discovered for that lambda (spec.md §4.5
// "polymorphism without monomorphisation at codegen time" — every distinct
// set of call-site argument types gets its own Code, selected here by
// matching *types.Type pointer identity, never by inspecting RawValue).
func (vm *VM) CallClosure(c *Closure, argTypes []*types.Type, args []RawValue) (RawValue, *diag.RuntimeError) {
	if vm.MaxIterations > 0 {
		if vm.iterations >= vm.MaxIterations {
			return 0, diag.NewResourceExceeded("R901", ast.Span{}, "iteration budget of %d calls exceeded", vm.MaxIterations)
		}
		vm.iterations++
	}

	inst := selectInstantiation(c.Insts, argTypes)
	if inst == nil {
		return 0, diag.NewInternalError("I020", ast.Span{}, "no closure instantiation matches call site argument types")
	}
	// args is sized to exactly the parameter count (the call site only ever
	// pushes that many); the body's own Code may need further slots beyond
	// its parameters (a where binding in the lambda's own body, say), so
	// locals must be grown to inst.Code.NumLocals rather than run with args
	// directly.
	locals := args
	if inst.Code.NumLocals > len(args) {
		locals = make([]RawValue, inst.Code.NumLocals)
		copy(locals, args)
	}
	return vm.Run(inst.Code, locals, c.Captures)
}

// selectInstantiation finds the Instantiation whose ParamTypes match
// argTypes pointer-for-pointer. The common case is a single, monomorphic
// instantiation; the linear scan only matters for lambdas the analyzer
// actually specialized at more than one call site.
func selectInstantiation(insts []Instantiation, argTypes []*types.Type) *Instantiation {
	if len(insts) == 1 {
		return &insts[0]
	}
	for i := range insts {
		if paramTypesMatch(insts[i].ParamTypes, argTypes) {
			return &insts[i]
		}
	}
	return nil
}

func paramTypesMatch(params, args []*types.Type) bool {
	if len(params) != len(args) {
		return false
	}
	for i := range params {
		if params[i] != args[i] {
			return false
		}
	}
	return true
}
