package melbi_test

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/melbi-lang/melbi/internal/diag"
	"github.com/melbi-lang/melbi/internal/natives/mathpkg"
	"github.com/melbi-lang/melbi/internal/vm"
	"github.com/melbi-lang/melbi/pkg/melbi"
)

// valueFixture is one typed value in YAML, discriminated by kind (spec.md
// §8's scenario/diagnostics tables describe values by type and literal).
type valueFixture struct {
	Kind  string  `yaml:"kind"`
	Int   int64   `yaml:"int"`
	Float float64 `yaml:"float"`
	Str   string  `yaml:"str"`
	Bool  bool    `yaml:"bool"`
}

func (v valueFixture) raw(arena *vm.ValueArena) melbi.RawValue {
	switch v.Kind {
	case "int":
		return vm.IntRaw(v.Int)
	case "float":
		return vm.FloatRaw(v.Float)
	case "str":
		return arena.AllocStr(v.Str)
	case "bool":
		return vm.BoolRaw(v.Bool)
	default:
		panic(fmt.Sprintf("fixture: unknown value kind %q", v.Kind))
	}
}

func (v valueFixture) assertEqual(t *testing.T, arena *vm.ValueArena, got melbi.Value) {
	t.Helper()
	switch v.Kind {
	case "int":
		assert.Equal(t, v.Int, got.Raw.Int())
	case "float":
		assert.Equal(t, v.Float, got.Raw.Float())
	case "str":
		assert.Equal(t, v.Str, arena.Str(got.Raw))
	case "bool":
		assert.Equal(t, v.Bool, got.Raw.Bool())
	default:
		t.Fatalf("fixture: unknown value kind %q", v.Kind)
	}
}

type paramFixture struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type scenarioFixture struct {
	ID            string         `yaml:"id"`
	Description   string         `yaml:"description"`
	Source        string         `yaml:"source"`
	NativePackage string         `yaml:"native_package"`
	Params        []paramFixture `yaml:"params"`
	Args          []valueFixture `yaml:"args"`
	Expect        valueFixture   `yaml:"expect"`
}

type scenariosFile struct {
	Scenarios []scenarioFixture `yaml:"scenarios"`
}

func paramType(m *melbi.Manager, name string) *melbi.Type {
	switch name {
	case "int":
		return m.Int()
	case "float":
		return m.Float()
	case "str":
		return m.Str()
	case "bool":
		return m.Bool()
	default:
		panic(fmt.Sprintf("fixture: unknown param type %q", name))
	}
}

// TestScenarios runs every entry of internal/testdata/scenarios.yaml (spec.md
// §8 "End-to-end scenarios") through a fresh Engine and asserts its result.
func TestScenarios(t *testing.T) {
	data, err := os.ReadFile("../../internal/testdata/scenarios.yaml")
	require.NoError(t, err)

	var file scenariosFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.NotEmpty(t, file.Scenarios)

	for _, sc := range file.Scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			engine := melbi.NewEngine(melbi.EngineOptions{})

			if sc.NativePackage == "math" {
				pkg, err := mathpkg.Register(engine.Manager(), engine.ConstArena())
				require.NoError(t, err)
				engine.RegisterPackage(melbi.NativePackage{Name: pkg.Name, Type: pkg.Type, Value: pkg.Value})
			}

			params := make([]melbi.Param, len(sc.Params))
			for i, p := range sc.Params {
				params[i] = melbi.Param{Name: p.Name, Type: paramType(engine.Manager(), p.Type)}
			}

			expr, err := engine.Compile(sc.Source, params)
			require.NoError(t, err, "compile")

			arena := vm.NewValueArena()
			args := make([]melbi.RawValue, len(sc.Args))
			for i, a := range sc.Args {
				args[i] = a.raw(arena)
			}

			got, rerr := expr.Run(arena, args)
			require.Nil(t, rerr, "run: %v", rerr)
			sc.Expect.assertEqual(t, arena, got)
		})
	}
}

type generateFixture struct {
	Kind  string `yaml:"kind"`
	Count int    `yaml:"count"`
}

// source synthesizes D4/D5's deeply-nested sources, which are impractical to
// spell out literally in YAML.
func (g generateFixture) source() string {
	switch g.Kind {
	case "nested_parens":
		return strings.Repeat("(", g.Count) + "1" + strings.Repeat(")", g.Count)
	case "deep_recursion":
		return fmt.Sprintf(
			`(count(%d) where { count = (n) => if n == 0 then 0 else 1 + count(n - 1) }) otherwise -1`,
			g.Count,
		)
	default:
		panic(fmt.Sprintf("fixture: unknown generate kind %q", g.Kind))
	}
}

type diagnosticExpectFixture struct {
	Stage           string `yaml:"stage"` // "compile" or "run"
	Code            string `yaml:"code"`
	MessageContains string `yaml:"message_contains"`
	HelpContains    string `yaml:"help_contains"`
	Kind            string `yaml:"kind"` // RuntimeError kind, for stage: run
}

type diagnosticFixture struct {
	ID          string                  `yaml:"id"`
	Description string                  `yaml:"description"`
	Source      string                  `yaml:"source"`
	Generate    *generateFixture        `yaml:"generate"`
	Expect      diagnosticExpectFixture `yaml:"expect"`
}

type diagnosticsFile struct {
	Diagnostics []diagnosticFixture `yaml:"diagnostics"`
}

// TestDiagnostics runs every entry of internal/testdata/diagnostics.yaml
// (spec.md §8 "Diagnostics scenarios") and asserts the shape of the error it
// produces, either at Compile (parse/type errors) or at Run (resource
// limits, per the D5 "not caught by otherwise" property).
func TestDiagnostics(t *testing.T) {
	data, err := os.ReadFile("../../internal/testdata/diagnostics.yaml")
	require.NoError(t, err)

	var file diagnosticsFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.NotEmpty(t, file.Diagnostics)

	for _, d := range file.Diagnostics {
		t.Run(d.ID, func(t *testing.T) {
			source := d.Source
			if d.Generate != nil {
				source = d.Generate.source()
			}

			engine := melbi.NewEngine(melbi.EngineOptions{})
			expr, err := engine.Compile(source, nil)

			switch d.Expect.Stage {
			case "compile":
				require.Error(t, err)
				var compileErr *melbi.CompileError
				require.ErrorAs(t, err, &compileErr)
				require.NotEmpty(t, compileErr.Diagnostics)
				checkDiagnosticExpectations(t, d.Expect, compileErr.Diagnostics[0])
			case "run":
				require.NoError(t, err, "compile")
				arena := vm.NewValueArena()
				_, rerr := expr.Run(arena, nil)
				require.NotNil(t, rerr)
				if d.Expect.Kind != "" {
					assert.Equal(t, d.Expect.Kind, runtimeKindName(rerr.Kind))
				}
			default:
				t.Fatalf("fixture: unknown expect.stage %q", d.Expect.Stage)
			}
		})
	}
}

func checkDiagnosticExpectations(t *testing.T, expect diagnosticExpectFixture, got melbi.Diagnostic) {
	t.Helper()
	if expect.Code != "" {
		assert.Equal(t, expect.Code, got.Code)
	}
	if expect.MessageContains != "" {
		assert.Contains(t, got.Message, expect.MessageContains)
	}
	if expect.HelpContains != "" {
		assert.Contains(t, got.Help, expect.HelpContains)
	}
}

func runtimeKindName(k diag.RuntimeKind) string {
	switch k {
	case diag.Catchable:
		return "catchable"
	case diag.ResourceExceeded:
		return "resource_exceeded"
	case diag.Internal:
		return "internal"
	default:
		return "unknown"
	}
}
