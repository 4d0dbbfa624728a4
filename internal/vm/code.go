package vm

import (
	"encoding/binary"

	"github.com/melbi-lang/melbi/internal/ast"
	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/types"
)

// Adapter is the re-typing boundary spec.md §4.4 describes: a small object
// declaring an arity and a callback, used exactly where the VM needs type
// information erased at compile time. OpCallAdapter pops Arity() raw values
// and invokes Call.
type Adapter interface {
	Arity() int
	Call(va *ValueArena, tm *types.Manager, args []RawValue) (RawValue, *diag.RuntimeError)
}

// ClosureTemplate is the MakeClosure blueprint for one lambda: the set of
// per-call-site Instantiations the analyzer discovered, plus how many free
// variables to capture from the stack at closure-construction time.
type ClosureTemplate struct {
	Insts        []Instantiation
	CaptureCount int
}

// CallSite records the statically-known argument types for one OpCall
// instruction. Argument types are always fully resolved by the analyzer
// (spec.md invariant 4), even when the callee is an arbitrary closure value
// whose concrete instantiation can only be selected at runtime — so the
// compiler bakes ArgTypes in at compile time and CallClosure only has to
// match them against a closure's available Instantiations.
type CallSite struct {
	ArgTypes []*types.Type
}

// Code is a compiled expression's bytecode (spec.md §3.4): a flat
// instruction stream plus the indexed pools instructions reference by
// 16-bit big-endian operand. One Code exists per lambda instantiation in
// addition to the top-level expression's own Code (spec.md §4.4 "Lambdas").
type Code struct {
	Instructions []byte
	Spans        []ast.Span // Spans[i] is valid where Instructions[i] starts an opcode

	Constants []RawValue
	Adapters  []Adapter
	Templates []*ClosureTemplate
	CallSites []*CallSite
	Types     []*types.Type // referenced by OpIndexMap for its key type

	NumLocals    int
	MaxStackSize int
}

func NewCode() *Code {
	return &Code{}
}

// maxPoolIndex is the largest index a 16-bit operand can address — the
// threshold the Add* pool methods below enforce (TooManyConstants). Local
// slot numbers are not checked against it.
const maxPoolIndex = 1<<16 - 1

// maxJumpOffset is the largest relative displacement a 16-bit signed jump
// operand can encode, spec.md §4.4's JumpTooFar.
const maxJumpOffset = 1<<15 - 1
const minJumpOffset = -(1 << 15)

// Emit appends an opcode byte, recording span for runtime error reporting,
// and returns its offset.
func (c *Code) Emit(op Opcode, span ast.Span) int {
	off := len(c.Instructions)
	c.Instructions = append(c.Instructions, byte(op))
	c.Spans = append(c.Spans, span)
	return off
}

// EmitOperand appends a 16-bit big-endian operand (index or relative
// jump displacement).
func (c *Code) EmitOperand(v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	c.Instructions = append(c.Instructions, buf[:]...)
	c.Spans = append(c.Spans, ast.Span{}, ast.Span{})
}

func readOperand(code []byte, ip int) uint16 {
	return binary.BigEndian.Uint16(code[ip:])
}

// AddConstant interns v into the constant pool and returns its index, or
// -1 if the pool is already full (spec.md §4.4 TooManyConstants).
func (c *Code) AddConstant(v RawValue) int {
	if len(c.Constants) > maxPoolIndex {
		return -1
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

func (c *Code) AddAdapter(a Adapter) int {
	if len(c.Adapters) > maxPoolIndex {
		return -1
	}
	c.Adapters = append(c.Adapters, a)
	return len(c.Adapters) - 1
}

func (c *Code) AddTemplate(t *ClosureTemplate) int {
	if len(c.Templates) > maxPoolIndex {
		return -1
	}
	c.Templates = append(c.Templates, t)
	return len(c.Templates) - 1
}

func (c *Code) AddCallSite(cs *CallSite) int {
	if len(c.CallSites) > maxPoolIndex {
		return -1
	}
	c.CallSites = append(c.CallSites, cs)
	return len(c.CallSites) - 1
}

func (c *Code) AddType(t *types.Type) int {
	if len(c.Types) > maxPoolIndex {
		return -1
	}
	c.Types = append(c.Types, t)
	return len(c.Types) - 1
}

// EmitJumpPlaceholder emits op followed by a zeroed operand to be filled in
// later by PatchJump once the jump target is known, mirroring the
// emit-then-fixup pattern used for `if`/`and`/`or` lowering.
func (c *Code) EmitJumpPlaceholder(op Opcode, span ast.Span) int {
	c.Emit(op, span)
	opAt := len(c.Instructions)
	c.EmitOperand(0)
	return opAt
}

// PatchJump rewrites the operand at operandOffset (as returned by
// EmitJumpPlaceholder) to a displacement relative to the instruction
// immediately following the operand, landing at the current end of the
// stream. Returns false if the displacement overflows 16 bits signed.
func (c *Code) PatchJump(operandOffset int) bool {
	disp := len(c.Instructions) - (operandOffset + 2)
	if disp > maxJumpOffset || disp < minJumpOffset {
		return false
	}
	binary.BigEndian.PutUint16(c.Instructions[operandOffset:], uint16(int16(disp)))
	return true
}

// Here returns the current end-of-stream offset. The compiler does not call
// it: melbi's grammar has no backward jumps, and forward targets (including
// otherwise's fallback) go through EmitJumpPlaceholder and PatchJump.
func (c *Code) Here() int { return len(c.Instructions) }

func (c *Code) Len() int { return len(c.Instructions) }

// spanAt finds the span recorded for the opcode byte at ip, for runtime
// error reporting.
func (c *Code) spanAt(ip int) ast.Span {
	if ip >= 0 && ip < len(c.Spans) {
		return c.Spans[ip]
	}
	return ast.Span{}
}
