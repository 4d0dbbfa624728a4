package parser

import (
	"strconv"
	"strings"

	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/lexer"
	"github.com/melbi-lang/melbi/internal/token"
)

// parseAtom parses the grammar's leaves: literals, identifiers, parenthesized
// groups / lambdas, and the three bracketed collection literals.
func (p *Parser) parseAtom() ast.Expr {
	switch {
	case p.at(token.INT):
		return p.parseIntLit()
	case p.at(token.FLOAT):
		return p.parseFloatLit()
	case p.at(token.STRING):
		return p.parseStringLit()
	case p.at(token.BYTES):
		return p.parseBytesLit()
	case p.at(token.FSTRING):
		return p.parseFormatStringLit()
	case p.at(token.TRUE), p.at(token.FALSE):
		t := p.cur()
		p.advance()
		return &ast.BoolLit{Value: t.Kind == token.TRUE, Base: ast.NewBase(t.Start, t.End)}
	case p.at(token.IDENT):
		if p.cur().Lexeme == "Record" && p.peekIs(token.LBRACE) {
			start := p.cur().Start
			p.advance()
			return p.parseRecordBraceBody(start)
		}
		t := p.cur()
		p.advance()
		return &ast.Ident{Name: t.Lexeme, Quoted: false, Base: ast.NewBase(t.Start, t.End)}
	case p.at(token.QUOTED_ID):
		t := p.cur()
		p.advance()
		return &ast.Ident{Name: t.Lexeme, Quoted: true, Base: ast.NewBase(t.Start, t.End)}
	case p.at(token.LPAREN):
		return p.parseParenOrLambda()
	case p.at(token.LBRACKET):
		return p.parseArrayLit()
	case p.at(token.LBRACE):
		return p.parseBraceLit()
	default:
		t := p.cur()
		p.errorf("P012", p.spanOf(t), "unexpected token %q", t.Lexeme)
		if !p.at(token.EOF) {
			p.advance()
		}
		return &ast.Ident{Name: "", Base: ast.NewBase(t.Start, t.End)}
	}
}

func (p *Parser) parseIntLit() ast.Expr {
	t := p.cur()
	p.advance()
	v, err := parseIntLexeme(t.Lexeme)
	if err != nil {
		p.errorf("P013", p.spanOf(t), "invalid integer literal %q: %v", t.Lexeme, err)
	}
	lit := &ast.IntLit{Value: v, Base: ast.NewBase(t.Start, t.End)}
	if unit := p.tryParseAdjacentUnit(t.End); unit != nil {
		lit.Unit = unit
		lit.SpanVal.End = unit.SpanVal.End
	}
	return lit
}

func (p *Parser) parseFloatLit() ast.Expr {
	t := p.cur()
	p.advance()
	v, err := strconv.ParseFloat(strings.ReplaceAll(t.Lexeme, "_", ""), 64)
	if err != nil {
		p.errorf("P013", p.spanOf(t), "invalid float literal %q: %v", t.Lexeme, err)
	}
	lit := &ast.FloatLit{Value: v, Base: ast.NewBase(t.Start, t.End)}
	if unit := p.tryParseAdjacentUnit(t.End); unit != nil {
		lit.Unit = unit
		lit.SpanVal.End = unit.SpanVal.End
	}
	return lit
}

// tryParseAdjacentUnit consumes a QUOTED_ID immediately following a numeric
// literal (no intervening source bytes) as a unit suffix.
func (p *Parser) tryParseAdjacentUnit(prevEnd int) *ast.Unit {
	if p.at(token.QUOTED_ID) && p.cur().Start == prevEnd {
		t := p.cur()
		p.advance()
		return &ast.Unit{Text: t.Lexeme, Base: ast.NewBase(t.Start, t.End)}
	}
	return nil
}

func parseIntLexeme(lexeme string) (int64, error) {
	s := strings.ReplaceAll(lexeme, "_", "")
	base := 10
	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		base, s = 16, s[2:]
	case strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B"):
		base, s = 2, s[2:]
	case strings.HasPrefix(s, "0o") || strings.HasPrefix(s, "0O"):
		base, s = 8, s[2:]
	}
	return strconv.ParseInt(s, base, 64)
}

func (p *Parser) parseStringLit() ast.Expr {
	t := p.cur()
	p.advance()
	return &ast.StringLit{Value: unescapeString(t.Lexeme), Base: ast.NewBase(t.Start, t.End)}
}

func (p *Parser) parseBytesLit() ast.Expr {
	t := p.cur()
	p.advance()
	return &ast.BytesLit{Value: []byte(unescapeString(t.Lexeme)), Base: ast.NewBase(t.Start, t.End)}
}

// unescapeString resolves the small set of backslash escapes melbi supports.
// An unrecognized escape is kept verbatim (the character after the
// backslash), matching the lexer's own tolerant "preserve raw" philosophy.
func unescapeString(raw string) string {
	var b strings.Builder
	i := 0
	for i < len(raw) {
		if raw[i] == '\\' && i+1 < len(raw) {
			switch raw[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case '\\', '"', '\'', '{', '}':
				b.WriteByte(raw[i+1])
			default:
				b.WriteByte(raw[i+1])
			}
			i += 2
			continue
		}
		b.WriteByte(raw[i])
		i++
	}
	return b.String()
}

// parseFormatStringLit splits a raw f-string body into literal fragments and
// interpolated sub-expressions, parsing each sub-expression with its own
// nested token stream so diagnostics still carry source-accurate spans.
func (p *Parser) parseFormatStringLit() ast.Expr {
	t := p.cur()
	p.advance()

	contentOffset := 2 // `f"`
	frags, exprSrcs, exprStarts := splitFormatString(t.Lexeme)

	exprs := make([]ast.Expr, len(exprSrcs))
	for i, src := range exprSrcs {
		baseOffset := t.Start + contentOffset + exprStarts[i]
		exprs[i] = p.parseInterpolation(src, baseOffset)
	}
	return &ast.FormatStringLit{Fragments: frags, Exprs: exprs, Base: ast.NewBase(t.Start, t.End)}
}

// splitFormatString walks raw (the verbatim bytes between the f-string's
// quotes) and separates it into literal text fragments and the source text
// of each `{...}` interpolation body, tracking brace depth so interpolations
// that themselves contain `{`/`}` (e.g. a record literal) split correctly.
// len(frags) == len(exprSrcs)+1.
func splitFormatString(raw string) (frags []string, exprSrcs []string, exprStarts []int) {
	var b strings.Builder
	i, n := 0, len(raw)
	for i < n {
		ch := raw[i]
		if ch == '\\' && i+1 < n {
			b.WriteByte(ch)
			b.WriteByte(raw[i+1])
			i += 2
			continue
		}
		if ch == '{' {
			frags = append(frags, unescapeString(b.String()))
			b.Reset()
			depth := 1
			start := i + 1
			j := start
			for j < n && depth > 0 {
				if raw[j] == '\\' && j+1 < n {
					j += 2
					continue
				}
				if raw[j] == '{' {
					depth++
				} else if raw[j] == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				j++
			}
			exprSrcs = append(exprSrcs, raw[start:j])
			exprStarts = append(exprStarts, start)
			i = j + 1
			continue
		}
		b.WriteByte(ch)
		i++
	}
	frags = append(frags, unescapeString(b.String()))
	return frags, exprSrcs, exprStarts
}

// parseInterpolation parses an embedded expression's source text with its
// own token stream, then splices its diagnostics back into the parent bag
// with spans shifted by baseOffset so they still point into the original
// source.
func (p *Parser) parseInterpolation(src string, baseOffset int) ast.Expr {
	localBag := &diag.Bag{}
	lx := lexer.New(src, localBag)
	var toks []token.Token
	for {
		tk := lx.NextToken()
		toks = append(toks, tk)
		if tk.Kind == token.EOF {
			break
		}
	}
	remaining := p.maxDepth - p.depth
	if remaining <= 0 {
		remaining = 1
	}
	sub := &Parser{toks: toks, errors: localBag, source: src, maxDepth: remaining}
	expr := sub.parseExpr()
	if sub.cur().Kind != token.EOF {
		sub.errorf("P010", sub.spanOf(sub.cur()), "unexpected trailing input %q", sub.cur().Lexeme)
	}
	for _, d := range localBag.Diagnostics() {
		d.Span.Start += baseOffset
		d.Span.End += baseOffset
		p.errors.Add(d)
	}
	return expr
}

// parseParenOrLambda disambiguates `(params) => body` from a parenthesized
// grouping, both of which open with `(`. It speculatively parses a bare
// identifier list and backtracks to ordinary expression parsing if the
// `=>` that would confirm a lambda isn't there.
func (p *Parser) parseParenOrLambda() ast.Expr {
	start := p.cur().Start
	mark := p.mark()
	p.advance() // consume (

	var params []string
	isParamList := true
	if !p.at(token.RPAREN) {
		for {
			if !p.at(token.IDENT) {
				isParamList = false
				break
			}
			params = append(params, p.cur().Lexeme)
			p.advance()
			if p.at(token.COMMA) {
				p.advance()
				continue
			}
			break
		}
	}
	if isParamList && p.at(token.RPAREN) {
		p.advance()
		if p.at(token.ARROW) {
			p.advance()
			body := p.parseExpr()
			return &ast.Lambda{Params: params, Body: body, Base: ast.NewBase(start, body.Span().End)}
		}
	}

	p.reset(mark)
	p.advance() // consume (
	inner := p.parseExpr()
	p.expect(token.RPAREN)
	return inner
}

func (p *Parser) parseArrayLit() ast.Expr {
	start := p.cur().Start
	p.advance() // consume [
	var elems []ast.Expr
	for !p.at(token.RBRACKET) && !p.at(token.EOF) {
		elems = append(elems, p.parseExpr())
		if p.at(token.COMMA) {
			p.advance()
		} else {
			break
		}
	}
	end := p.cur().End
	p.expect(token.RBRACKET)
	return &ast.ArrayLit{Elements: elems, Base: ast.NewBase(start, end)}
}

// parseBraceLit disambiguates `{}`/`{k: v, ...}` map literals from
// `{name = expr, ...}` record literals by peeking at the first entry's
// shape: a bare identifier directly followed by `=` can only start a record
// field, since map keys are full expressions.
func (p *Parser) parseBraceLit() ast.Expr {
	start := p.cur().Start
	if p.peekAt(1).Kind == token.IDENT && p.peekAt(2).Kind == token.ASSIGN {
		return p.parseRecordBraceBody(start)
	}
	return p.parseMapBraceBody(start)
}

func (p *Parser) parseRecordBraceBody(start int) ast.Expr {
	p.expect(token.LBRACE)
	var fields []ast.RecordField
	seen := map[string]bool{}
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		nameTok := p.expect(token.IDENT)
		p.expect(token.ASSIGN)
		val := p.parseExpr()
		fields = append(fields, ast.RecordField{
			Name: nameTok.Lexeme, Value: val, Span: ast.NewSpan(nameTok.Start, val.Span().End),
		})
		if seen[nameTok.Lexeme] {
			p.errorf("T021", p.spanOf(nameTok), "duplicate field %q in record literal", nameTok.Lexeme)
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
	return &ast.RecordLit{Fields: fields, Base: ast.NewBase(start, end)}
}

func (p *Parser) parseMapBraceBody(start int) ast.Expr {
	p.expect(token.LBRACE)
	var entries []ast.MapEntry
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		key := p.parseExpr()
		p.expect(token.COLON)
		val := p.parseExpr()
		entries = append(entries, ast.MapEntry{Key: key, Value: val})
		if p.at(token.COMMA) {
			p.advance()
		} else {
			break
		}
	}
	end := p.cur().End
	p.expect(token.RBRACE)
	return &ast.MapLit{Entries: entries, Base: ast.NewBase(start, end)}
}
