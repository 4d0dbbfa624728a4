package melbi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/vm"
	"github.com/melbi-lang/melbi/pkg/melbi"
)

func TestEngineBindConst(t *testing.T) {
	engine := melbi.NewEngine(melbi.EngineOptions{})
	arena := engine.ConstArena()
	engine.BindConst(melbi.NativeConst{
		Name:  "greeting",
		Type:  engine.Manager().Str(),
		Value: arena.AllocStr("hello"),
	})

	val, err := engine.Eval("greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", engine.ConstArena().Str(val.Raw))
}

func TestEngineBindFunction(t *testing.T) {
	engine := melbi.NewEngine(melbi.EngineOptions{})
	engine.BindFunction(melbi.NativeFunction{
		Name:   "double",
		Params: []*melbi.Type{engine.Manager().Int()},
		Ret:    engine.Manager().Int(),
		Fn: func(_ *vm.ValueArena, _ *melbi.Manager, args []melbi.Value) (melbi.Value, *melbi.RuntimeError) {
			return melbi.Value{Type: engine.Manager().Int(), Raw: vm.IntRaw(args[0].Raw.Int() * 2)}, nil
		},
	})

	val, err := engine.Eval("double(21)")
	require.NoError(t, err)
	assert.Equal(t, int64(42), val.Raw.Int())
}

func TestEngineCompileWithParams(t *testing.T) {
	engine := melbi.NewEngine(melbi.EngineOptions{})
	expr, err := engine.Compile("a + b", []melbi.Param{
		{Name: "a", Type: engine.Manager().Int()},
		{Name: "b", Type: engine.Manager().Int()},
	})
	require.NoError(t, err)

	arena := vm.NewValueArena()
	val, rerr := expr.Run(arena, []melbi.RawValue{vm.IntRaw(10), vm.IntRaw(32)})
	require.Nil(t, rerr)
	assert.Equal(t, int64(42), val.Raw.Int())
}

func TestEngineCompileDuplicateParamName(t *testing.T) {
	engine := melbi.NewEngine(melbi.EngineOptions{})
	_, err := engine.Compile("a + a", []melbi.Param{
		{Name: "a", Type: engine.Manager().Int()},
		{Name: "a", Type: engine.Manager().Int()},
	})
	require.Error(t, err)
	var compileErr *melbi.CompileError
	require.ErrorAs(t, err, &compileErr)
	require.Len(t, compileErr.Diagnostics, 1)
	assert.Equal(t, "T021", compileErr.Diagnostics[0].Code)
}

func TestEngineCompileReportsParseErrors(t *testing.T) {
	engine := melbi.NewEngine(melbi.EngineOptions{})
	_, err := engine.Compile("1 +", nil)
	require.Error(t, err)
	var compileErr *melbi.CompileError
	require.ErrorAs(t, err, &compileErr)
	require.NotEmpty(t, compileErr.Diagnostics)
}

func TestEngineRunCatchesDivByZeroAsRuntimeError(t *testing.T) {
	engine := melbi.NewEngine(melbi.EngineOptions{})
	_, err := engine.Eval("1 / 0")
	require.Error(t, err)
	var rerr *melbi.RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, diag.Catchable, rerr.Kind)
}

func TestEngineOptionsMaxDepth(t *testing.T) {
	engine := melbi.NewEngine(melbi.EngineOptions{MaxDepth: 2})
	expr, err := engine.Compile(`
		fact(5) where {
			fact = (n) => if n == 0 then 1 else n * fact(n - 1)
		}
	`, nil)
	require.NoError(t, err)

	arena := vm.NewValueArena()
	_, rerr := expr.Run(arena, nil)
	require.NotNil(t, rerr)
	assert.Equal(t, diag.ResourceExceeded, rerr.Kind)
}
