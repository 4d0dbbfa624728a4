package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/melbi-lang/melbi/internal/analyzer"
	"github.com/melbi-lang/melbi/internal/compiler"
	"github.com/melbi-lang/melbi/internal/parser"
	"github.com/melbi-lang/melbi/internal/types"
	"github.com/melbi-lang/melbi/internal/vm"
)

// compileAndRun takes source through the full parse -> analyze -> compile ->
// execute pipeline with no native globals, matching how pkg/melbi wires the
// same stages together for a real engine.
func compileAndRun(t *testing.T, src string) (vm.RawValue, *types.Type, *vm.ValueArena) {
	t.Helper()
	pr, perrs := parser.Parse(src, 0)
	require.False(t, perrs.HasErrors(), "parse errors: %v", perrs.Diagnostics())

	manager := types.NewManager()
	result, aerrs := analyzer.Analyze(manager, pr.Root, nil)
	require.False(t, aerrs.HasErrors(), "analysis errors: %v", aerrs.Diagnostics())

	constArena := vm.NewValueArena()
	code, err := compiler.Compile(manager, result, pr.Root, nil, nil, constArena)
	require.NoError(t, err)

	runArena := vm.NewValueArena()
	m := vm.New(runArena, manager, 0, 0)
	got, rerr := m.Run(code, make([]vm.RawValue, code.NumLocals), nil)
	require.Nil(t, rerr, "runtime error: %v", rerr)
	return got, result.RootType, runArena
}

func TestCompileArithmetic(t *testing.T) {
	got, _, _ := compileAndRun(t, "1 + 2 * 3")
	require.Equal(t, int64(7), got.Int())
}

func TestCompileIfElse(t *testing.T) {
	got, _, _ := compileAndRun(t, "if 2 < 1 then 10 else 20")
	require.Equal(t, int64(20), got.Int())
}

func TestCompileAndOrShortCircuit(t *testing.T) {
	got, _, _ := compileAndRun(t, "false and (1 / 0 == 0)")
	require.False(t, got.Bool())

	got, _, _ = compileAndRun(t, "true or (1 / 0 == 0)")
	require.True(t, got.Bool())
}

func TestCompileOtherwiseCatchesDivByZero(t *testing.T) {
	got, _, _ := compileAndRun(t, "1 / 0 otherwise -1")
	require.Equal(t, int64(-1), got.Int())
}

func TestCompileWhereNonLambdaShadowing(t *testing.T) {
	// The inner `a` binding's own right-hand side must resolve to the outer
	// `a`, not to itself: a naive declare-before-lower compiler would read an
	// uninitialized local here instead of 1.
	got, _, _ := compileAndRun(t, `
		(a where { a = a + 1 }) where { a = 1 }
	`)
	require.Equal(t, int64(2), got.Int())
}

func TestCompileLambdaBodyWithOwnWhereBinding(t *testing.T) {
	// The lambda body's `where` needs a local slot beyond the lambda's own
	// parameter: exercises CallClosure growing the locals it hands to Run
	// past the argument count it was actually called with.
	got, _, _ := compileAndRun(t, `
		square(6) where {
			square = (n) => (n * m) where { m = n }
		}
	`)
	require.Equal(t, int64(36), got.Int())
}

func TestCompileWhereSelfRecursiveLambda(t *testing.T) {
	got, _, _ := compileAndRun(t, `
		fact(5) where {
			fact = (n) => if n == 0 then 1 else n * fact(n - 1)
		}
	`)
	require.Equal(t, int64(120), got.Int())
}

func TestCompileWhereMutuallyRecursiveLambdas(t *testing.T) {
	// isEven references isOdd, declared later in the same where block, and
	// vice versa: only resolvable with the capture-patch mechanism since
	// neither closure exists yet when the other is constructed.
	got, _, _ := compileAndRun(t, `
		isEven(10) where {
			isEven = (n) => if n == 0 then true else isOdd(n - 1),
			isOdd = (n) => if n == 0 then false else isEven(n - 1)
		}
	`)
	require.True(t, got.Bool())

	got, _, _ = compileAndRun(t, `
		isOdd(7) where {
			isEven = (n) => if n == 0 then true else isOdd(n - 1),
			isOdd = (n) => if n == 0 then false else isEven(n - 1)
		}
	`)
	require.True(t, got.Bool())
}

func TestCompileArrayIndex(t *testing.T) {
	got, _, _ := compileAndRun(t, "[1, 2, 3][1]")
	require.Equal(t, int64(2), got.Int())
}

func TestCompileFormatString(t *testing.T) {
	got, _, arena := compileAndRun(t, `f"n = {1 + 1}"`)
	require.Equal(t, "n = 2", arena.Str(got))
}

func TestCompileRecordFieldAccess(t *testing.T) {
	got, _, _ := compileAndRun(t, "{x = 1, y = 2}.y")
	require.Equal(t, int64(2), got.Int())
}

func TestCompileMapLookup(t *testing.T) {
	got, _, _ := compileAndRun(t, `{"a": 1, "b": 2}["b"]`)
	require.Equal(t, int64(2), got.Int())
}

func TestCompileArrayStructuralEquality(t *testing.T) {
	got, _, _ := compileAndRun(t, "[1, 2] == [1, 2]")
	require.True(t, got.Bool())
}

func TestCompileCastIntToStr(t *testing.T) {
	got, _, arena := compileAndRun(t, "5 as Str")
	require.Equal(t, "5", arena.Str(got))
}
