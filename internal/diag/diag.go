// Package diag implements Melbi's layered diagnostic model (spec.md §7):
// compile-time diagnostics with spans and context chains, and a three-axis
// runtime error classification (catchable / resource-exceeded / internal).
package diag

import "fmt"

// Severity is the level of a Diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Span mirrors ast.Span without importing internal/ast, so diag stays a leaf
// package every other layer can depend on.
type Span struct {
	Start, End int
}

// Related is additional context attached to a Diagnostic, e.g. "defined
// here" or "while unifying key of Map[...]".
type Related struct {
	Span    Span
	Message string
}

// Diagnostic is a single compile-time finding: a parser error (code "P###")
// or an analyzer error (code "T###").
type Diagnostic struct {
	Severity Severity
	Code     string
	Message  string
	Span     Span
	Related  []Related
	Help     string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Code, d.Message)
}

// WithRelated returns a copy of d with an additional context entry appended.
// Used to build the "original site first, instantiation sites appended"
// chains spec.md §4.3 requires for constraint failures.
func (d Diagnostic) WithRelated(span Span, message string) Diagnostic {
	d.Related = append(append([]Related{}, d.Related...), Related{Span: span, Message: message})
	return d
}

// Bag accumulates diagnostics across a compile pass (parser or analyzer),
// matching spec.md §4.1's "collects additional top-level errors" recovery
// model: failure never stops collection outright.
type Bag struct {
	items []Diagnostic
}

func (b *Bag) Add(d Diagnostic) { b.items = append(b.items, d) }

func (b *Bag) Addf(code string, span Span, format string, args ...any) {
	b.Add(Diagnostic{Severity: Error, Code: code, Span: span, Message: fmt.Sprintf(format, args...)})
}

func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

func (b *Bag) Diagnostics() []Diagnostic { return b.items }

func (b *Bag) Len() int { return len(b.items) }

// RuntimeKind classifies a RuntimeError along spec.md §7's three axes.
// Only Catchable is visible to `otherwise`; the other two always propagate.
type RuntimeKind int

const (
	Catchable RuntimeKind = iota
	ResourceExceeded
	Internal
)

// RuntimeError is what the VM raises. Code follows the same "R###" /
// "E###" / "I###" families as Diagnostic's "P###" / "T###", keeping every
// error surfaced to a caller in the same (code, span, message) shape.
type RuntimeError struct {
	Kind    RuntimeKind
	Code    string
	Message string
	Span    Span
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewRuntimeError(code string, span Span, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: Catchable, Code: code, Span: span, Message: fmt.Sprintf(format, args...)}
}

func NewResourceExceeded(code string, span Span, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: ResourceExceeded, Code: code, Span: span, Message: fmt.Sprintf(format, args...)}
}

func NewInternalError(code string, span Span, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: Internal, Code: code, Span: span, Message: fmt.Sprintf(format, args...)}
}
