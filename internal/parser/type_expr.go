package parser

import (
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/token"
)

// parseTypeExpr parses the cast-target grammar of `as` (spec.md §4.1): named
// scalar types, Array[T], Map[K, V], record shapes, and function types.
func (p *Parser) parseTypeExpr() ast.TypeExpr {
	switch {
	case p.at(token.LBRACKET):
		return p.parseArrayTypeExpr()
	case p.at(token.LBRACE):
		return p.parseRecordTypeExpr()
	case p.at(token.LPAREN):
		return p.parseFunctionTypeExpr()
	case p.at(token.IDENT):
		return p.parseNamedOrMapTypeExpr()
	default:
		t := p.cur()
		p.errorf("P014", p.spanOf(t), "expected type expression, found %q", t.Lexeme)
		if !p.at(token.EOF) {
			p.advance()
		}
		return &ast.NamedTypeExpr{Name: "Int", Base: ast.NewBase(t.Start, t.End)}
	}
}

// parseNamedOrMapTypeExpr handles both plain names (`Int`, `Str`, a record
// type alias) and the `Map[K, V]`/`Array[T]` bracketed forms that are
// spelled as an identifier followed by `[`.
func (p *Parser) parseNamedOrMapTypeExpr() ast.TypeExpr {
	t := p.cur()
	p.advance()
	if t.Lexeme == "Map" && p.at(token.LBRACKET) {
		p.advance()
		key := p.parseTypeExpr()
		p.expect(token.COMMA)
		val := p.parseTypeExpr()
		end := p.cur().End
		p.expect(token.RBRACKET)
		return &ast.MapTypeExpr{Key: key, Value: val, Base: ast.NewBase(t.Start, end)}
	}
	if t.Lexeme == "Array" && p.at(token.LBRACKET) {
		p.advance()
		elem := p.parseTypeExpr()
		end := p.cur().End
		p.expect(token.RBRACKET)
		return &ast.ArrayTypeExpr{Elem: elem, Base: ast.NewBase(t.Start, end)}
	}
	return &ast.NamedTypeExpr{Name: t.Lexeme, Base: ast.NewBase(t.Start, t.End)}
}

// parseArrayTypeExpr handles the bracket-first spelling `[T]` as a synonym
// for `Array[T]`.
func (p *Parser) parseArrayTypeExpr() ast.TypeExpr {
	start := p.cur().Start
	p.advance() // consume [
	elem := p.parseTypeExpr()
	end := p.cur().End
	p.expect(token.RBRACKET)
	return &ast.ArrayTypeExpr{Elem: elem, Base: ast.NewBase(start, end)}
}

func (p *Parser) parseRecordTypeExpr() ast.TypeExpr {
	start := p.cur().Start
	p.advance() // consume {
	var fields []ast.RecordTypeField
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		nameTok := p.expect(token.IDENT)
		p.expect(token.COLON)
		ty := p.parseTypeExpr()
		fields = append(fields, ast.RecordTypeField{Name: nameTok.Lexeme, Type: ty})
		if p.at(token.COMMA) {
			p.advance()
		} else {
			break
		}
	}
	end := p.cur().End
	p.expect(token.RBRACE)
	return &ast.RecordTypeExpr{Fields: fields, Base: ast.NewBase(start, end)}
}

// parseFunctionTypeExpr parses `(Params...) -> Ret`.
func (p *Parser) parseFunctionTypeExpr() ast.TypeExpr {
	start := p.cur().Start
	p.advance() // consume (
	var params []ast.TypeExpr
	for !p.at(token.RPAREN) && !p.at(token.EOF) {
		params = append(params, p.parseTypeExpr())
		if p.at(token.COMMA) {
			p.advance()
		} else {
			break
		}
	}
	p.expect(token.RPAREN)
	// `->` has no token of its own: it lexes as MINUS followed by GT.
	if p.at(token.MINUS) && p.peekIs(token.GT) {
		p.advance()
		p.advance()
	} else {
		p.errorf("P011", p.spanOf(p.cur()), "expected ->, found %q", p.cur().Lexeme)
	}
	ret := p.parseTypeExpr()
	return &ast.FunctionTypeExpr{Params: params, Ret: ret, Base: ast.NewBase(start, ret.Span().End)}
}
