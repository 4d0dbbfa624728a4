// Package uuidpkg registers the UUID native package (spec.md §4.6): proof
// the FFI contract works end to end against a real third-party library
// rather than a toy.
package uuidpkg

import (
	"github.com/google/uuid"

	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/natives"
	"github.com/melbi-lang/melbi/internal/types"
	"github.com/melbi-lang/melbi/internal/vm"
)

// Register builds the UUID package value: `UUID.v4() -> Str`.
func Register(tm *types.Manager, arena *vm.ValueArena) (natives.Package, error) {
	return natives.Build("UUID", tm, arena, []natives.Func{
		{
			Name: "v4",
			Ret:  tm.Str(),
			Fn: func(va *vm.ValueArena, _ *types.Manager, _ []vm.Value) (vm.Value, *diag.RuntimeError) {
				return vm.Value{Type: tm.Str(), Raw: va.AllocStr(uuid.NewString())}, nil
			},
		},
	}, nil)
}
