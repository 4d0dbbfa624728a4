package analyzer

import (
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/types"
)

// resolveTypeExpr turns a parsed cast target (ast.TypeExpr) into an interned
// *types.Type, reporting unknown scalar names rather than panicking, so a
// single typo doesn't abort analysis of the whole expression.
func (c *Checker) resolveTypeExpr(te ast.TypeExpr) *types.Type {
	switch te := te.(type) {
	case *ast.NamedTypeExpr:
		switch te.Name {
		case "Int":
			return c.manager.Int()
		case "Float":
			return c.manager.Float()
		case "Bool":
			return c.manager.Bool()
		case "Str":
			return c.manager.Str()
		case "Bytes":
			return c.manager.Bytes()
		default:
			c.errorf("T030", te.Span(), "unknown type name %q", te.Name)
			return c.manager.FreshTypeVar()
		}
	case *ast.ArrayTypeExpr:
		return c.manager.Array(c.resolveTypeExpr(te.Elem))
	case *ast.MapTypeExpr:
		return c.manager.Map(c.resolveTypeExpr(te.Key), c.resolveTypeExpr(te.Value))
	case *ast.RecordTypeExpr:
		fields := make([]types.Field, len(te.Fields))
		for i, f := range te.Fields {
			fields[i] = types.Field{Name: f.Name, Type: c.resolveTypeExpr(f.Type)}
		}
		rec, err := c.manager.Record(fields)
		if err != nil {
			c.errorf("T031", te.Span(), "%v", err)
			return c.manager.FreshTypeVar()
		}
		return rec
	case *ast.FunctionTypeExpr:
		params := make([]*types.Type, len(te.Params))
		for i, p := range te.Params {
			params[i] = c.resolveTypeExpr(p)
		}
		return c.manager.Function(params, c.resolveTypeExpr(te.Ret))
	default:
		c.errorf("T032", te.Span(), "unsupported type expression")
		return c.manager.FreshTypeVar()
	}
}

// castAllowed mirrors spec.md §4.3's cast table: conversions between the
// scalar representations, plus the identity cast.
func castAllowed(from, to *types.Type) bool {
	if from == to {
		return true
	}
	pair := [2]types.Kind{from.Kind(), to.Kind()}
	switch pair {
	case [2]types.Kind{types.KindInt, types.KindFloat},
		[2]types.Kind{types.KindFloat, types.KindInt},
		[2]types.Kind{types.KindInt, types.KindStr},
		[2]types.Kind{types.KindFloat, types.KindStr},
		[2]types.Kind{types.KindBool, types.KindStr},
		[2]types.Kind{types.KindStr, types.KindBytes},
		[2]types.Kind{types.KindBytes, types.KindStr}:
		return true
	default:
		return false
	}
}
