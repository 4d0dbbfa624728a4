package vm

import (
	"strconv"
	"strings"

	"github.com/melbi-lang/melbi/internal/types"
)

// Display renders raw as its canonical textual form under t (spec.md §9
// "Format strings": every displayable type has a canonical rendering, and a
// Float's display always contains a decimal point so `2.0` round-trips as
// `2.` rather than being mistaken for an Int).
func Display(va *ValueArena, t *types.Type, raw RawValue) string {
	var b strings.Builder
	writeDisplay(&b, va, t, raw)
	return b.String()
}

func writeDisplay(b *strings.Builder, va *ValueArena, t *types.Type, raw RawValue) {
	switch t.Kind() {
	case types.KindInt:
		b.WriteString(strconv.FormatInt(raw.Int(), 10))
	case types.KindFloat:
		b.WriteString(formatFloat(raw.Float()))
	case types.KindBool:
		if raw.Bool() {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case types.KindStr:
		b.WriteString(va.Str(raw))
	case types.KindBytes:
		bs := va.Bytes(raw)
		b.WriteString("0x")
		const hex = "0123456789abcdef"
		for _, c := range bs {
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xf])
		}
	case types.KindArray:
		data := va.Array(raw)
		b.WriteByte('[')
		for i, e := range data.Elements {
			if i > 0 {
				b.WriteString(", ")
			}
			writeDisplay(b, va, t.Elem(), e)
		}
		b.WriteByte(']')
	case types.KindMap:
		data := va.Map(raw)
		b.WriteByte('{')
		for i := range data.Keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeDisplay(b, va, t.MapKey(), data.Keys[i])
			b.WriteString(": ")
			writeDisplay(b, va, t.MapVal(), data.Vals[i])
		}
		b.WriteByte('}')
	case types.KindRecord:
		data := va.Record(raw)
		b.WriteByte('{')
		for i, f := range t.Fields() {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(" = ")
			writeDisplay(b, va, f.Type, data.Fields[i])
		}
		b.WriteByte('}')
	case types.KindSymbol:
		b.WriteString(t.String())
	default:
		b.WriteString("<?>")
	}
}

// formatFloat mirrors the "always a decimal point" rule: strconv's shortest
// round-trip form, with a trailing "." appended when it would otherwise
// look like an integer or use exponent notation without one.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.Contains(s, ".") {
		return s + "."
	}
	return s
}
