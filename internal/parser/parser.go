// Package parser implements Melbi's expression grammar (spec.md §4.1):
// deterministic, context-free, depth-limited, producing an ast.Expr plus a
// sorted non-overlapping comment list, or diagnostics.
package parser

import (
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/lexer"
	"github.com/melbi-lang/melbi/internal/token"
)

// DefaultMaxDepth is the default nesting cap (spec.md §4.1).
const DefaultMaxDepth = 100

// Parser is a hand-written recursive-descent / precedence-climbing parser.
// It tokenizes its whole input up front rather than streaming token by
// token: melbi's lambda-vs-grouping ambiguity ("(x) => x" vs "(x + 1)")
// needs arbitrary lookahead with backtracking, and expressions are short
// enough that holding the full token slice is simpler and just as correct
// as a streaming design.
type Parser struct {
	toks []token.Token
	pos  int

	errors *diag.Bag
	source string

	depth    int
	maxDepth int
}

// Parse parses source into a parsed expression tree. Diagnostics are
// collected in the returned Bag, which has at least one error whenever
// parsing failed. Root is nil when the nesting cap is exceeded; after other
// errors Root is a partial tree in which placeholder nodes (an Ident with an
// empty name, an `Int` type expression) stand in for the malformed parts.
func Parse(source string, maxDepth int) (*ast.ParseResult, *diag.Bag) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	errs := &diag.Bag{}
	lx := lexer.New(source, errs)

	var toks []token.Token
	for {
		t := lx.NextToken()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			break
		}
	}

	p := &Parser{toks: toks, errors: errs, source: source, maxDepth: maxDepth}

	root := p.parseExpr()
	if p.cur().Kind != token.EOF {
		p.errorf("P010", p.spanOf(p.cur()), "unexpected trailing input %q", p.cur().Lexeme)
	}

	comments := toCommentList(lx.Comments)
	return &ast.ParseResult{Root: root, Comments: comments, Source: source}, errs
}

func toCommentList(toks []token.Token) []ast.Comment {
	out := make([]ast.Comment, len(toks))
	for i, t := range toks {
		out[i] = ast.Comment{Span: ast.NewSpan(t.Start, t.End), Text: t.Lexeme}
	}
	return out
}

func (p *Parser) cur() token.Token {
	return p.toks[p.pos]
}

func (p *Parser) peekAt(offset int) token.Token {
	i := p.pos + offset
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[i]
}

func (p *Parser) advance() {
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
}

func (p *Parser) at(k token.Kind) bool     { return p.cur().Kind == k }
func (p *Parser) peekIs(k token.Kind) bool { return p.peekAt(1).Kind == k }

// mark/reset implement the backtracking the lambda-vs-grouping disambiguator
// needs (see expr_atoms.go parseParenOrLambda).
func (p *Parser) mark() int      { return p.pos }
func (p *Parser) reset(mark int) { p.pos = mark }

func (p *Parser) expect(k token.Kind) token.Token {
	if p.cur().Kind != k {
		p.errorf("P011", p.spanOf(p.cur()), "expected %s, found %q", k, p.cur().Lexeme)
		return p.cur()
	}
	t := p.cur()
	p.advance()
	return t
}

func (p *Parser) spanOf(t token.Token) ast.Span { return ast.NewSpan(t.Start, t.End) }

func (p *Parser) errorf(code string, span ast.Span, format string, args ...any) {
	p.errors.Addf(code, diag.Span{Start: span.Start, End: span.End}, format, args...)
}

// enterDepth must be paired with a deferred exitDepth at the start of every
// recursive grammar production that descends into a sub-expression,
// enforcing spec.md's MaxDepthExceeded cap.
func (p *Parser) enterDepth(span ast.Span) bool {
	p.depth++
	if p.depth > p.maxDepth {
		p.errorf("P099", span, "maximum expression nesting depth (%d) exceeded", p.maxDepth)
		return false
	}
	return true
}

func (p *Parser) exitDepth() { p.depth-- }
