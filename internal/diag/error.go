package diag

import "fmt"

// BoundaryError is a single error value covering the four boundary outcomes
// (API misuse, compilation, runtime, resource exceeded), built from a
// Diagnostic list or a RuntimeError. pkg/melbi does not return it: its API
// reports CompileError and RuntimeError instead.
type BoundaryError struct {
	Kind          ErrorKind
	APIMessage    string
	Diagnostics   []Diagnostic
	RuntimeDiag   Diagnostic
	ResourceMsg   string
}

type ErrorKind int

const (
	KindAPI ErrorKind = iota
	KindCompilation
	KindRuntime
	KindResourceExceeded
)

func (e *BoundaryError) Error() string {
	switch e.Kind {
	case KindAPI:
		return fmt.Sprintf("api error: %s", e.APIMessage)
	case KindCompilation:
		n := 0
		for _, d := range e.Diagnostics {
			if d.Severity == Error {
				n++
			}
		}
		return fmt.Sprintf("compilation failed with %d error(s)", n)
	case KindRuntime:
		return fmt.Sprintf("runtime error: %s", e.RuntimeDiag.Message)
	case KindResourceExceeded:
		return fmt.Sprintf("resource limit exceeded: %s", e.ResourceMsg)
	default:
		return "unknown melbi error"
	}
}

func NewAPIError(format string, args ...any) *BoundaryError {
	return &BoundaryError{Kind: KindAPI, APIMessage: fmt.Sprintf(format, args...)}
}

func NewCompilationError(diags []Diagnostic) *BoundaryError {
	return &BoundaryError{Kind: KindCompilation, Diagnostics: diags}
}

// FromRuntimeError converts an internal RuntimeError to a BoundaryError,
// splitting catchable runtime failures from resource-exceeded/internal ones
// exactly as spec.md §7 describes ("resource-exceeded and internal errors
// always propagate out").
func FromRuntimeError(re *RuntimeError) *BoundaryError {
	switch re.Kind {
	case ResourceExceeded:
		return &BoundaryError{Kind: KindResourceExceeded, ResourceMsg: re.Message}
	case Internal:
		return &BoundaryError{Kind: KindAPI, APIMessage: fmt.Sprintf("internal error: %s", re.Message)}
	}
	return &BoundaryError{
		Kind: KindRuntime,
		RuntimeDiag: Diagnostic{
			Severity: Error,
			Code:     re.Code,
			Message:  re.Message,
			Span:     re.Span,
		},
	}
}
