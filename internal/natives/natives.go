// Package natives is the shared plumbing behind every native package this
// module registers (spec.md §4.6 FFI contract): building one sorted Record
// value whose fields are native functions and constants, the way
// uuidpkg/mathpkg each do for exactly one package.
package natives

import (
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/types"
	"github.com/melbi-lang/melbi/internal/vm"
)

// Package is one native package's registered shape: a record-typed global
// value bound to Name in both the analyzer's globals and the compiler's.
type Package struct {
	Name  string
	Type  *types.Type
	Value vm.RawValue
}

// Func describes one native function field before Build wires it into a
// Package's record.
type Func struct {
	Name   string
	Params []*types.Type
	Ret    *types.Type
	Fn     func(*vm.ValueArena, *types.Manager, []vm.Value) (vm.Value, *diag.RuntimeError)
}

// Const describes one constant field.
type Const struct {
	Name  string
	Type  *types.Type
	Value vm.RawValue
}

// Build interns funcs and consts into arena as one sorted Record value. Each
// Func gets a zero-capture Closure whose single Instantiation's Code does
// nothing but forward its locals into an OpCallAdapter invoking Fn and
// return the result — the same shape OpCall expects at every call site
// (spec.md §4.6: "native functions ... invoked through the VM's
// FunctionAdapter exactly like Melbi closures"), so a native reached through
// a record field (`UUID.v4()`) needs no call-site special case in the
// compiler: it is a real closure value like any other.
func Build(name string, tm *types.Manager, arena *vm.ValueArena, funcs []Func, consts []Const) (Package, error) {
	fields := make([]types.Field, 0, len(funcs)+len(consts))
	vals := make(map[string]vm.RawValue, len(funcs)+len(consts))

	for _, f := range funcs {
		fnType := tm.Function(f.Params, f.Ret)
		fields = append(fields, types.Field{Name: f.Name, Type: fnType})
		vals[f.Name] = closureFor(arena, f)
	}
	for _, c := range consts {
		fields = append(fields, types.Field{Name: c.Name, Type: c.Type})
		vals[c.Name] = c.Value
	}

	recType, err := tm.Record(fields)
	if err != nil {
		return Package{}, err
	}

	ordered := make([]vm.RawValue, len(recType.Fields()))
	for i, f := range recType.Fields() {
		ordered[i] = vals[f.Name]
	}
	val := arena.AllocRecord(&vm.RecordData{Fields: ordered})
	return Package{Name: name, Type: recType, Value: val}, nil
}

func closureFor(arena *vm.ValueArena, f Func) vm.RawValue {
	adapter := &vm.FunctionAdapter{ParamTypes: f.Params, Ret: f.Ret, Fn: f.Fn}

	body := vm.NewCode()
	for i := range f.Params {
		body.Emit(vm.OpLocalLoad, ast.Span{})
		body.EmitOperand(uint16(i))
	}
	idx := body.AddAdapter(adapter)
	body.Emit(vm.OpCallAdapter, ast.Span{})
	body.EmitOperand(uint16(idx))
	body.Emit(vm.OpReturn, ast.Span{})
	body.NumLocals = len(f.Params)
	body.MaxStackSize = len(f.Params) + 1

	closure := &vm.Closure{Insts: []vm.Instantiation{{ParamTypes: f.Params, Code: body}}}
	return arena.AllocClosure(closure)
}
