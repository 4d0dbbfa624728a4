package vm

import (
	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/types"
)

// VM executes one Code against one ValueArena (spec.md §4.5). It has no
// frame stack of its own: a closure call recurses directly into exec,
// exactly as spec.md's closure call protocol describes ("construct an
// inner VM instance sharing the value arena") — the host language's own
// call stack stands in for an explicit frame array, and depth is bounded
// the same way real recursion would be.
type VM struct {
	Arena   *ValueArena
	Manager *types.Manager

	MaxDepth      int
	MaxIterations int // 0 means unlimited (spec.md §9 open question: enforced here)

	depth      int
	iterations int
}

func New(arena *ValueArena, manager *types.Manager, maxDepth, maxIterations int) *VM {
	if maxDepth <= 0 {
		maxDepth = 1000
	}
	return &VM{Arena: arena, Manager: manager, MaxDepth: maxDepth, MaxIterations: maxIterations}
}

// Run executes code's top level (a CompiledExpression's own Code, or a
// lambda instantiation's Code reached via CallClosure) with the given
// locals (parameters, in declaration order) and captures.
func (vm *VM) Run(code *Code, locals, captures []RawValue) (RawValue, *diag.RuntimeError) {
	vm.depth++
	defer func() { vm.depth-- }()
	if vm.depth > vm.MaxDepth {
		return 0, diag.NewResourceExceeded("R900", ast.Span{}, "evaluation depth exceeded %d", vm.MaxDepth)
	}
	return vm.exec(code, locals, captures)
}

// handlerFrame is one installed `otherwise` fallback (spec.md §4.5: "a
// handler stack of (fallback_ip, stack_height) pairs").
type handlerFrame struct {
	fallbackIP  int
	stackHeight int
}

type frame struct {
	stack    []RawValue
	locals   []RawValue
	captures []RawValue
	handlers []handlerFrame
}

func (f *frame) push(v RawValue) { f.stack = append(f.stack, v) }

func (f *frame) pop() RawValue {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popN(n int) []RawValue {
	out := append([]RawValue(nil), f.stack[len(f.stack)-n:]...)
	f.stack = f.stack[:len(f.stack)-n]
	return out
}
