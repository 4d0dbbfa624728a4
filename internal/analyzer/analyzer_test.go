package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/melbi-lang/melbi/internal/parser"
	"github.com/melbi-lang/melbi/internal/types"
)

func check(t *testing.T, src string, globals map[string]*types.Type) (*Result, *types.Manager) {
	t.Helper()
	res, perrs := parser.Parse(src, 0)
	require.False(t, perrs.HasErrors(), "parse errors: %v", perrs.Diagnostics())

	m := types.NewManager()
	result, aerrs := Analyze(m, res.Root, globals)
	require.False(t, aerrs.HasErrors(), "analysis errors: %v", aerrs.Diagnostics())
	return result, m
}

func TestInferArithmetic(t *testing.T) {
	result, m := check(t, "1 + 2 * 3", nil)
	require.Equal(t, m.Int(), result.RootType)
}

func TestInferArithmeticRejectsMixedNumeric(t *testing.T) {
	res, perrs := parser.Parse("1 + 1.5", 0)
	require.False(t, perrs.HasErrors())
	m := types.NewManager()
	_, aerrs := Analyze(m, res.Root, nil)
	require.True(t, aerrs.HasErrors())
}

func TestInferIfBranchesMustAgree(t *testing.T) {
	result, m := check(t, `if true then 1 else 2`, nil)
	require.Equal(t, m.Int(), result.RootType)
}

func TestInferArrayAndIndex(t *testing.T) {
	result, m := check(t, `[1, 2, 3][0]`, nil)
	require.Equal(t, m.Int(), result.RootType)
}

func TestInferRecordFieldAccess(t *testing.T) {
	result, m := check(t, `{x = 1, y = "hi"}.y`, nil)
	require.Equal(t, m.Str(), result.RootType)
}

func TestInferWhereBinding(t *testing.T) {
	result, m := check(t, `a + 1 where { a = 41 }`, nil)
	require.Equal(t, m.Int(), result.RootType)
}

func TestInferLambdaTwoInstantiations(t *testing.T) {
	src := `
		double(1) + (double(1.5) as Int)
		where { double = (x) => x + x }
	`
	res, perrs := parser.Parse(src, 0)
	require.False(t, perrs.HasErrors(), "%v", perrs.Diagnostics())
	m := types.NewManager()
	result, aerrs := Analyze(m, res.Root, nil)
	require.False(t, aerrs.HasErrors(), "%v", aerrs.Diagnostics())

	var total int
	for _, byKey := range result.Instantiations {
		total += len(byKey)
	}
	require.Equal(t, 2, total)
}

func TestInferUndefinedName(t *testing.T) {
	res, perrs := parser.Parse("x + 1", 0)
	require.False(t, perrs.HasErrors())
	m := types.NewManager()
	_, aerrs := Analyze(m, res.Root, nil)
	require.True(t, aerrs.HasErrors())
}

func TestInferNativeFunctionCall(t *testing.T) {
	m := types.NewManager()
	globals := map[string]*types.Type{
		"abs": m.Function([]*types.Type{m.Int()}, m.Int()),
	}
	res, perrs := parser.Parse("abs(-5)", 0)
	require.False(t, perrs.HasErrors())
	result, aerrs := Analyze(m, res.Root, globals)
	require.False(t, aerrs.HasErrors(), "%v", aerrs.Diagnostics())
	require.Equal(t, m.Int(), result.RootType)
}

func TestInferFormatStringRejectsFunction(t *testing.T) {
	m := types.NewManager()
	globals := map[string]*types.Type{
		"f": m.Function([]*types.Type{m.Int()}, m.Int()),
	}
	res, perrs := parser.Parse(`f"{f}"`, 0)
	require.False(t, perrs.HasErrors())
	_, aerrs := Analyze(m, res.Root, globals)
	require.True(t, aerrs.HasErrors())
}
