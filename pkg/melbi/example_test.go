package melbi_test

import (
	"fmt"

	"github.com/melbi-lang/melbi/internal/natives/mathpkg"
	"github.com/melbi-lang/melbi/internal/natives/uuidpkg"
	"github.com/melbi-lang/melbi/internal/vm"
	"github.com/melbi-lang/melbi/pkg/melbi"
)

func Example() {
	engine := melbi.NewEngine(melbi.EngineOptions{})

	mathPkg, err := mathpkg.Register(engine.Manager(), engine.ConstArena())
	if err != nil {
		panic(err)
	}
	engine.RegisterPackage(melbi.NativePackage{Name: mathPkg.Name, Type: mathPkg.Type, Value: mathPkg.Value})

	expr, err := engine.Compile("(Math.abs(x - y) + Math.PI) as Int", []melbi.Param{
		{Name: "x", Type: engine.Manager().Float()},
		{Name: "y", Type: engine.Manager().Float()},
	})
	if err != nil {
		panic(err)
	}

	arena := vm.NewValueArena()
	result, rerr := expr.Run(arena, []melbi.RawValue{
		vm.FloatRaw(1),
		vm.FloatRaw(4),
	})
	if rerr != nil {
		panic(rerr)
	}

	fmt.Println(result.Raw.Int())
	// Output: 6
}

func ExampleEngine_RegisterPackage() {
	engine := melbi.NewEngine(melbi.EngineOptions{})

	uuidPkg, err := uuidpkg.Register(engine.Manager(), engine.ConstArena())
	if err != nil {
		panic(err)
	}
	engine.RegisterPackage(melbi.NativePackage{Name: uuidPkg.Name, Type: uuidPkg.Type, Value: uuidPkg.Value})

	expr, err := engine.Compile("UUID.v4()", nil)
	if err != nil {
		panic(err)
	}

	arena := vm.NewValueArena()
	result, rerr := expr.Run(arena, nil)
	if rerr != nil {
		panic(rerr)
	}

	fmt.Println(len(arena.Str(result.Raw)) == 36)
	// Output: true
}
