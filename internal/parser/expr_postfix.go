package parser

import (
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/token"
)

// parsePostfix handles call `f(a, b)`, index `a[k]`, and field `r.name`
// suffixes, left-associatively chained onto any atom.
func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parseAtom()
	for {
		switch {
		case p.at(token.LPAREN):
			expr = p.parseCallArgs(expr)
		case p.at(token.LBRACKET):
			p.advance()
			key := p.parseExpr()
			end := p.cur().End
			p.expect(token.RBRACKET)
			expr = &ast.Index{Container: expr, Key: key, Base: ast.NewBase(expr.Span().Start, end)}
		case p.at(token.DOT):
			p.advance()
			nameTok := p.parseFieldName()
			expr = &ast.Field{Container: expr, Name: nameTok.Lexeme, Base: ast.NewBase(expr.Span().Start, nameTok.End)}
		default:
			return expr
		}
	}
}

// parseFieldName accepts both bare and backtick-quoted field names after `.`.
func (p *Parser) parseFieldName() token.Token {
	if p.at(token.QUOTED_ID) {
		t := p.cur()
		p.advance()
		return t
	}
	return p.expect(token.IDENT)
}

func (p *Parser) parseCallArgs(callee ast.Expr) ast.Expr {
	p.advance() // consume (
	var args []ast.Expr
	for !p.at(token.RPAREN) && !p.at(token.EOF) {
		args = append(args, p.parseExpr())
		if p.at(token.COMMA) {
			p.advance()
		} else {
			break
		}
	}
	end := p.cur().End
	p.expect(token.RPAREN)
	return &ast.Call{Callee: callee, Args: args, Base: ast.NewBase(callee.Span().Start, end)}
}
