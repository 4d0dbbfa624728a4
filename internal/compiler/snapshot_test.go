package compiler_test

import (
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/require"

	"github.com/melbi-lang/melbi/internal/analyzer"
	"github.com/melbi-lang/melbi/internal/compiler"
	"github.com/melbi-lang/melbi/internal/parser"
	"github.com/melbi-lang/melbi/internal/types"
	"github.com/melbi-lang/melbi/internal/vm"
)

// compileOnly takes src through parse -> analyze -> compile and returns the
// top-level Code, without running it — snapshot tests pin the shape compile
// produces, not what running it computes.
func compileOnly(t *testing.T, src string) *vm.Code {
	t.Helper()
	pr, perrs := parser.Parse(src, 0)
	require.False(t, perrs.HasErrors(), "parse errors: %v", perrs.Diagnostics())

	manager := types.NewManager()
	result, aerrs := analyzer.Analyze(manager, pr.Root, nil)
	require.False(t, aerrs.HasErrors(), "analysis errors: %v", aerrs.Diagnostics())

	constArena := vm.NewValueArena()
	code, err := compiler.Compile(manager, result, pr.Root, nil, nil, constArena)
	require.NoError(t, err)
	return code
}

// TestSnapshotArithmetic pins the bytecode shape of plain arithmetic
// lowering, the compiler's simplest lowering path.
func TestSnapshotArithmetic(t *testing.T) {
	code := compileOnly(t, "1 + 2 * 3 - 4 / 2")
	snaps.MatchSnapshot(t, vm.Disassemble(code, "arithmetic"))
}

// TestSnapshotIfAndShortCircuit pins the jump-patching shape of `if` and
// `and` short-circuit lowering, where a regression in displacement
// computation would otherwise only surface as a wrong runtime answer.
func TestSnapshotIfAndShortCircuit(t *testing.T) {
	code := compileOnly(t, "if (1 < 2) and (3 < 4) then 10 else 20")
	snaps.MatchSnapshot(t, vm.Disassemble(code, "if-and-or"))
}

// TestSnapshotOtherwiseHandler pins PushHandler/PopHandler placement around
// a catchable division.
func TestSnapshotOtherwiseHandler(t *testing.T) {
	code := compileOnly(t, "1 / 0 otherwise -1")
	snaps.MatchSnapshot(t, vm.Disassemble(code, "otherwise"))
}

// TestSnapshotSelfRecursiveLambda pins the OpPatchCapture shape a
// self-recursive where-bound lambda lowers to, including the nested
// instantiation's own Code.
func TestSnapshotSelfRecursiveLambda(t *testing.T) {
	code := compileOnly(t, `
		fact(5) where {
			fact = (n) => if n == 0 then 1 else n * fact(n - 1)
		}
	`)
	snaps.MatchSnapshot(t, vm.Disassemble(code, "self-recursive-lambda"))
}

// TestSnapshotRecordAndMap pins MakeRecord/FieldLoad and MakeMap/IndexMap
// lowering.
func TestSnapshotRecordAndMap(t *testing.T) {
	code := compileOnly(t, `{x = 1, y = 2}.y + {"a": 1, "b": 2}["b"]`)
	snaps.MatchSnapshot(t, vm.Disassemble(code, "record-and-map"))
}

// TestSnapshotFormatString pins how an f-string's interpolated expressions
// and literal segments lower to a FormatStrAdapter call.
func TestSnapshotFormatString(t *testing.T) {
	code := compileOnly(t, `f"n = {1 + 1}"`)
	snaps.MatchSnapshot(t, vm.Disassemble(code, "format-string"))
}
