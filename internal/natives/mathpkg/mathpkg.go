// Package mathpkg registers the Math native package (spec.md §4.6): the
// minimum needed to exercise a native function with a non-trivial body and
// a native constant, without reimplementing a Math stdlib (out of scope per
// spec.md §1).
package mathpkg

import (
	stdmath "math"

	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/natives"
	"github.com/melbi-lang/melbi/internal/types"
	"github.com/melbi-lang/melbi/internal/vm"
)

// Register builds the Math package value: the constant `Math.PI` and
// `Math.abs(Float) -> Float`.
func Register(tm *types.Manager, arena *vm.ValueArena) (natives.Package, error) {
	return natives.Build("Math", tm, arena, []natives.Func{
		{
			Name:   "abs",
			Params: []*types.Type{tm.Float()},
			Ret:    tm.Float(),
			Fn: func(va *vm.ValueArena, _ *types.Manager, args []vm.Value) (vm.Value, *diag.RuntimeError) {
				return vm.Value{Type: tm.Float(), Raw: vm.FloatRaw(stdmath.Abs(args[0].Raw.Float()))}, nil
			},
		},
	}, []natives.Const{
		{Name: "PI", Type: tm.Float(), Value: vm.FloatRaw(3.14159)},
	})
}
