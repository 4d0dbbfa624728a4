package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/melbi-lang/melbi/internal/ast"
)

func mustParse(t *testing.T, src string) ast.Expr {
	t.Helper()
	res, errs := Parse(src, 0)
	require.False(t, errs.HasErrors(), "unexpected diagnostics: %v", errs.Diagnostics())
	require.NotNil(t, res.Root)
	return res.Root
}

func TestParseArithmeticPrecedence(t *testing.T) {
	root := mustParse(t, "1 + 2 * 3 ^ 2")
	bin, ok := root.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, ast.OpAdd, bin.Op)

	rhs, ok := bin.Right.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, ast.OpMul, rhs.Op)

	pow, ok := rhs.Right.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, ast.OpPow, pow.Op)
}

func TestParsePowRightAssociative(t *testing.T) {
	root := mustParse(t, "2 ^ 3 ^ 2")
	top, ok := root.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, ast.OpPow, top.Op)
	_, leftIsLit := top.Left.(*ast.IntLit)
	require.True(t, leftIsLit)
	_, rightIsBinary := top.Right.(*ast.Binary)
	require.True(t, rightIsBinary)
}

func TestParseComparisonNonAssociative(t *testing.T) {
	_, errs := Parse("1 < 2 < 3", 0)
	require.True(t, errs.HasErrors())
}

func TestParseLambdaVsGrouping(t *testing.T) {
	lambda := mustParse(t, "(x, y) => x + y")
	l, ok := lambda.(*ast.Lambda)
	require.True(t, ok)
	require.Equal(t, []string{"x", "y"}, l.Params)

	grouped := mustParse(t, "(1 + 2) * 3")
	bin, ok := grouped.(*ast.Binary)
	require.True(t, ok)
	require.Equal(t, ast.OpMul, bin.Op)
	_, groupedIsBinary := bin.Left.(*ast.Binary)
	require.True(t, groupedIsBinary)
}

func TestParseZeroArgLambda(t *testing.T) {
	root := mustParse(t, "() => 42")
	l, ok := root.(*ast.Lambda)
	require.True(t, ok)
	require.Empty(t, l.Params)
}

func TestParseIfWhereOtherwise(t *testing.T) {
	root := mustParse(t, "(if a then b else c) where { a = true } otherwise 0")
	oth, ok := root.(*ast.Otherwise)
	require.True(t, ok)
	where, ok := oth.Primary.(*ast.Where)
	require.True(t, ok)
	require.Len(t, where.Bindings, 1)
	require.Equal(t, "a", where.Bindings[0].Name)
	_, ok = where.Body.(*ast.If)
	require.True(t, ok)
}

func TestParseWhereDuplicateBindingDiagnostic(t *testing.T) {
	_, errs := Parse("x where { a = 1, a = 2 }", 0)
	require.True(t, errs.HasErrors())
	found := false
	for _, d := range errs.Diagnostics() {
		if d.Code == "T020" {
			found = true
		}
	}
	require.True(t, found)
}

func TestParseCallIndexField(t *testing.T) {
	root := mustParse(t, "f(1, 2).field[0]")
	idx, ok := root.(*ast.Index)
	require.True(t, ok)
	field, ok := idx.Container.(*ast.Field)
	require.True(t, ok)
	require.Equal(t, "field", field.Name)
	call, ok := field.Container.(*ast.Call)
	require.True(t, ok)
	require.Len(t, call.Args, 2)
}

func TestParseArrayMapRecordLiterals(t *testing.T) {
	arr := mustParse(t, "[1, 2, 3]")
	a, ok := arr.(*ast.ArrayLit)
	require.True(t, ok)
	require.Len(t, a.Elements, 3)

	m := mustParse(t, `{"a": 1, "b": 2}`)
	ml, ok := m.(*ast.MapLit)
	require.True(t, ok)
	require.Len(t, ml.Entries, 2)

	rec := mustParse(t, "{x = 1, y = 2}")
	rl, ok := rec.(*ast.RecordLit)
	require.True(t, ok)
	require.Len(t, rl.Fields, 2)

	empty := mustParse(t, "Record {}")
	_, ok = empty.(*ast.RecordLit)
	require.True(t, ok)

	emptyMap := mustParse(t, "{}")
	_, ok = emptyMap.(*ast.MapLit)
	require.True(t, ok)
}

func TestParseFormatString(t *testing.T) {
	root := mustParse(t, `f"hello {name}, you are {age + 1} next year"`)
	fs, ok := root.(*ast.FormatStringLit)
	require.True(t, ok)
	require.Len(t, fs.Fragments, 3)
	require.Len(t, fs.Exprs, 2)
	_, ok = fs.Exprs[0].(*ast.Ident)
	require.True(t, ok)
	_, ok = fs.Exprs[1].(*ast.Binary)
	require.True(t, ok)
}

func TestParseUnitSuffix(t *testing.T) {
	root := mustParse(t, "42`m/s`")
	lit, ok := root.(*ast.IntLit)
	require.True(t, ok)
	require.NotNil(t, lit.Unit)
	require.Equal(t, "m/s", lit.Unit.Text)
}

func TestParseCastExpression(t *testing.T) {
	root := mustParse(t, "x as Int")
	c, ok := root.(*ast.Cast)
	require.True(t, ok)
	named, ok := c.TypeExpr.(*ast.NamedTypeExpr)
	require.True(t, ok)
	require.Equal(t, "Int", named.Name)
}

func TestParseMaxDepthExceeded(t *testing.T) {
	src := ""
	for i := 0; i < 50; i++ {
		src += "("
	}
	src += "1"
	for i := 0; i < 50; i++ {
		src += ")"
	}
	_, errs := Parse(src, 10)
	require.True(t, errs.HasErrors())
}
