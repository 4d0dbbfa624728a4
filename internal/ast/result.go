package ast

// ParseResult is the top-level output of internal/parser: a single
// expression plus the source-order comment list, or diagnostics (carried
// separately by the caller — see internal/diag.Bag).
//
// Every child span and comment span is pairwise non-overlapping and ordered
// within Root's span (spec.md invariant 2/3).
type ParseResult struct {
	Root     Expr
	Comments []Comment
	Source   string
}
