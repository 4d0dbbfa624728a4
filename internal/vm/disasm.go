package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable rendering of code's instruction
// stream, recursively expanding every ClosureTemplate instantiation it
// references. Used by tooling and by internal/compiler's snapshot tests to
// pin bytecode shape without depending on the raw byte layout directly.
func Disassemble(code *Code, name string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s ==\n", name)
	disassembleBlock(&sb, code)
	return sb.String()
}

func disassembleBlock(sb *strings.Builder, code *Code) {
	offset := 0
	for offset < len(code.Instructions) {
		offset = disassembleInstruction(sb, code, offset)
	}
}

func disassembleInstruction(sb *strings.Builder, code *Code, offset int) int {
	fmt.Fprintf(sb, "%04d ", offset)

	op := Opcode(code.Instructions[offset])
	switch op {
	case OpConstLoad:
		return constantInstruction(sb, code, offset)
	case OpLocalLoad, OpLocalStore, OpCaptureLoad:
		return operandInstruction(sb, op.String(), code, offset)
	case OpCallAdapter:
		return operandInstruction(sb, "CallAdapter", code, offset)
	case OpCall:
		return callInstruction(sb, code, offset)
	case OpMakeArray, OpMakeMap, OpMakeRecord:
		return operandInstruction(sb, op.String(), code, offset)
	case OpMakeClosure:
		return closureInstruction(sb, code, offset)
	case OpIndexMap:
		return typeInstruction(sb, code, offset)
	case OpFieldLoad:
		return operandInstruction(sb, "FieldLoad", code, offset)
	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpPushHandler:
		return jumpInstruction(sb, op.String(), code, offset)
	case OpPatchCapture:
		return operandInstruction(sb, "PatchCapture", code, offset)
	default:
		fmt.Fprintf(sb, "%s\n", op.String())
		return offset + 1
	}
}

// constantInstruction prints the constant pool index and its raw bits.
// RawValue is an untagged union (spec.md §3.5) — without the static type the
// analyzer assigned to this load, a constant's bytes could mean an Int, a
// Float, or an arena handle, so this prints the bit pattern rather than
// guessing a representation.
func constantInstruction(sb *strings.Builder, code *Code, offset int) int {
	idx := readOperand(code.Instructions, offset+1)
	if int(idx) < len(code.Constants) {
		fmt.Fprintf(sb, "%-14s %4d (raw 0x%016x)\n", "ConstLoad", idx, uint64(code.Constants[idx]))
	} else {
		fmt.Fprintf(sb, "%-14s %4d (invalid)\n", "ConstLoad", idx)
	}
	return offset + 3
}

func operandInstruction(sb *strings.Builder, name string, code *Code, offset int) int {
	idx := readOperand(code.Instructions, offset+1)
	fmt.Fprintf(sb, "%-14s %4d\n", name, idx)
	return offset + 3
}

func typeInstruction(sb *strings.Builder, code *Code, offset int) int {
	idx := readOperand(code.Instructions, offset+1)
	if int(idx) < len(code.Types) {
		fmt.Fprintf(sb, "%-14s %4d (key %s)\n", "IndexMap", idx, code.Types[idx].String())
	} else {
		fmt.Fprintf(sb, "%-14s %4d (invalid)\n", "IndexMap", idx)
	}
	return offset + 3
}

func callInstruction(sb *strings.Builder, code *Code, offset int) int {
	idx := readOperand(code.Instructions, offset+1)
	argc := 0
	if int(idx) < len(code.CallSites) {
		argc = len(code.CallSites[idx].ArgTypes)
	}
	fmt.Fprintf(sb, "%-14s %4d (argc %d)\n", "Call", idx, argc)
	return offset + 3
}

func jumpInstruction(sb *strings.Builder, name string, code *Code, offset int) int {
	disp := int(int16(readOperand(code.Instructions, offset+1)))
	target := offset + 3 + disp
	fmt.Fprintf(sb, "%-14s %4d -> %04d\n", name, disp, target)
	return offset + 3
}

func closureInstruction(sb *strings.Builder, code *Code, offset int) int {
	idx := readOperand(code.Instructions, offset+1)
	fmt.Fprintf(sb, "%-14s %4d\n", "MakeClosure", idx)
	if int(idx) >= len(code.Templates) {
		return offset + 3
	}
	tmpl := code.Templates[idx]
	for i, inst := range tmpl.Insts {
		fmt.Fprintf(sb, "    | inst %d: params=%d locals=%d captures=%d\n",
			i, len(inst.ParamTypes), inst.Code.NumLocals, tmpl.CaptureCount)
		nested := Disassemble(inst.Code, fmt.Sprintf("closure %d inst %d", idx, i))
		indented := strings.ReplaceAll(strings.TrimSuffix(nested, "\n"), "\n", "\n    | ")
		fmt.Fprintf(sb, "    | %s\n", indented)
	}
	return offset + 3
}
