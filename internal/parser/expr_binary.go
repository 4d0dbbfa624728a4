package parser

import (
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/token"
)

// parseExpr is the grammar's entry point — the loosest (`otherwise`) level.
func (p *Parser) parseExpr() ast.Expr {
	return p.parseOtherwise()
}

func (p *Parser) parseOtherwise() ast.Expr {
	start := p.cur().Start
	if !p.enterDepth(ast.NewSpan(start, start)) {
		return p.skipToEnd(start)
	}
	defer p.exitDepth()

	left := p.parseWhere()
	for p.at(token.OTHERWISE) {
		p.advance()
		right := p.parseWhere()
		left = &ast.Otherwise{Primary: left, Fallback: right, Base: baseSpan(left, right)}
	}
	return left
}

func (p *Parser) parseWhere() ast.Expr {
	left := p.parseIf()
	for p.at(token.WHERE) {
		p.advance()
		p.expect(token.LBRACE)
		var bindings []ast.WhereBinding
		seen := map[string]bool{}
		for !p.at(token.RBRACE) && !p.at(token.EOF) {
			nameTok := p.expect(token.IDENT)
			bStart := nameTok.Start
			p.expect(token.ASSIGN)
			val := p.parseExpr()
			bindings = append(bindings, ast.WhereBinding{
				Name: nameTok.Lexeme, Value: val, Span: ast.NewSpan(bStart, p.cur().Start),
			})
			if seen[nameTok.Lexeme] {
				p.errorf("T020", ast.NewSpan(bStart, bStart+len(nameTok.Lexeme)),
					"duplicate binding %q in where block", nameTok.Lexeme)
			}
			seen[nameTok.Lexeme] = true
			if p.at(token.COMMA) {
				p.advance()
			} else {
				break
			}
		}
		end := p.cur().End
		p.expect(token.RBRACE)
		left = &ast.Where{Body: left, Bindings: bindings, Base: ast.NewBase(left.Span().Start, end)}
	}
	return left
}

func (p *Parser) parseIf() ast.Expr {
	if p.at(token.IF) {
		start := p.cur().Start
		p.advance()
		cond := p.parseExpr()
		p.expect(token.THEN)
		thenE := p.parseExpr()
		p.expect(token.ELSE)
		elseE := p.parseExpr()
		return &ast.If{Cond: cond, Then: thenE, Else: elseE, Base: ast.NewBase(start, elseE.Span().End)}
	}
	return p.parseOr()
}

func (p *Parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.at(token.OR) {
		p.advance()
		right := p.parseAnd()
		left = &ast.Logical{Op: ast.OpOr, Left: left, Right: right, Base: baseSpan(left, right)}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	left := p.parseNot()
	for p.at(token.AND) {
		p.advance()
		right := p.parseNot()
		left = &ast.Logical{Op: ast.OpAnd, Left: left, Right: right, Base: baseSpan(left, right)}
	}
	return left
}

func (p *Parser) parseNot() ast.Expr {
	if p.at(token.NOT) {
		start := p.cur().Start
		p.advance()
		operand := p.parseNot()
		return &ast.Unary{Op: ast.OpNot, Operand: operand, Base: ast.NewBase(start, operand.Span().End)}
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() ast.Expr {
	left := p.parseAdd()
	op, ok := comparisonOp(p.cur().Kind)
	if !ok {
		// `not in` is two tokens; check for it specially.
		if p.at(token.NOT) && p.peekIs(token.IN) {
			p.advance()
			p.advance()
			right := p.parseAdd()
			return &ast.Binary{Op: ast.OpNotIn, Left: left, Right: right, Base: baseSpan(left, right)}
		}
		return left
	}
	p.advance()
	right := p.parseAdd()
	return &ast.Binary{Op: op, Left: left, Right: right, Base: baseSpan(left, right)}
}

func comparisonOp(k token.Kind) (ast.BinaryOp, bool) {
	switch k {
	case token.EQ:
		return ast.OpEq, true
	case token.NEQ:
		return ast.OpNeq, true
	case token.LT:
		return ast.OpLt, true
	case token.GT:
		return ast.OpGt, true
	case token.LE:
		return ast.OpLe, true
	case token.GE:
		return ast.OpGe, true
	case token.IN:
		return ast.OpIn, true
	default:
		return 0, false
	}
}

func (p *Parser) parseAdd() ast.Expr {
	left := p.parseMul()
	for p.at(token.PLUS) || p.at(token.MINUS) {
		op := ast.OpAdd
		if p.at(token.MINUS) {
			op = ast.OpSub
		}
		p.advance()
		right := p.parseMul()
		left = &ast.Binary{Op: op, Left: left, Right: right, Base: baseSpan(left, right)}
	}
	return left
}

func (p *Parser) parseMul() ast.Expr {
	left := p.parsePow()
	for p.at(token.STAR) || p.at(token.SLASH) {
		op := ast.OpMul
		if p.at(token.SLASH) {
			op = ast.OpDiv
		}
		p.advance()
		right := p.parsePow()
		left = &ast.Binary{Op: op, Left: left, Right: right, Base: baseSpan(left, right)}
	}
	return left
}

// parsePow is right-associative: a ^ b ^ c == a ^ (b ^ c).
func (p *Parser) parsePow() ast.Expr {
	left := p.parseUnary()
	if p.at(token.CARET) {
		p.advance()
		right := p.parsePow()
		return &ast.Binary{Op: ast.OpPow, Left: left, Right: right, Base: baseSpan(left, right)}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	if p.at(token.MINUS) {
		start := p.cur().Start
		p.advance()
		operand := p.parseUnary()
		return &ast.Unary{Op: ast.OpNeg, Operand: operand, Base: ast.NewBase(start, operand.Span().End)}
	}
	return p.parseCast()
}

func (p *Parser) parseCast() ast.Expr {
	left := p.parsePostfix()
	for p.at(token.AS) {
		p.advance()
		te := p.parseTypeExpr()
		left = &ast.Cast{Value: left, TypeExpr: te, Base: ast.NewBase(left.Span().Start, te.Span().End)}
	}
	return left
}

func baseSpan(l, r ast.Expr) ast.Base {
	return ast.NewBase(l.Span().Start, r.Span().End)
}

// skipToEnd is used once MaxDepthExceeded fires: it still returns a
// (non-fabricated) nil so callers can detect failure, while draining
// tokens so the caller's "unexpected trailing input" check doesn't pile on
// a second, confusing diagnostic.
func (p *Parser) skipToEnd(start int) ast.Expr {
	for !p.at(token.EOF) {
		p.advance()
	}
	return nil
}
