package diag

import (
	"bytes"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/stretchr/testify/require"

	"github.com/atlas-lang/atlas/position"
)

func TestToHumanString(t *testing.T) {
	d := Error("AT3001", "type mismatch", position.NewSpan(10, 14)).
		WithFile("main.atlas").
		WithLineColumn(position.LineColumn{Line: 3, Column: 5}).
		WithSnippet("let x: number = \"oops\";").
		WithLabel("expected `number`, found `string`").
		WithNote("declared here").
		WithHelp("convert with `number(x)`")

	got := d.ToHumanString()
	require.Contains(t, got, "error[AT3001]: type mismatch\n")
	require.Contains(t, got, "  --> main.atlas:3:5\n")
	require.Contains(t, got, " 3 | let x: number = \"oops\";\n")
	require.Contains(t, got, "^^^^ expected `number`, found `string`")
	require.Contains(t, got, "   = note: declared here\n")
	require.Contains(t, got, "   = help: convert with `number(x)`\n")
}

func TestSortErrorsBeforeWarnings(t *testing.T) {
	warn := Warning("AW2001", "unused variable", position.NewSpan(0, 1)).WithFile("a.atlas").WithLineColumn(position.LineColumn{Line: 1, Column: 1})
	err := Error("AT3001", "type mismatch", position.NewSpan(0, 1)).WithFile("a.atlas").WithLineColumn(position.LineColumn{Line: 5, Column: 1})

	diags := []Diagnostic{warn, err}
	Sort(diags)
	require.Equal(t, LevelError, diags[0].Level)
	require.Equal(t, LevelWarning, diags[1].Level)
}

func TestSortByFileLineColumn(t *testing.T) {
	a := Error("AT3001", "m1", position.Span{}).WithFile("a.atlas").WithLineColumn(position.LineColumn{Line: 2, Column: 1})
	b := Error("AT3001", "m2", position.Span{}).WithFile("a.atlas").WithLineColumn(position.LineColumn{Line: 1, Column: 1})
	c := Error("AT3001", "m3", position.Span{}).WithFile("b.atlas").WithLineColumn(position.LineColumn{Line: 1, Column: 1})

	diags := []Diagnostic{a, c, b}
	Sort(diags)
	require.Equal(t, []string{"m2", "m1", "m3"}, []string{diags[0].Message, diags[1].Message, diags[2].Message})
}

func TestNormalizePathSentinelPassthrough(t *testing.T) {
	require.Equal(t, "<input>", NormalizePath("<input>", "/home/user/proj"))
	require.Equal(t, "<unknown>", NormalizePath("<unknown>", "/home/user/proj"))
}

func TestNormalizePathAbsoluteUnderCwd(t *testing.T) {
	got := NormalizePath("/home/user/proj/src/main.atlas", "/home/user/proj")
	require.Equal(t, "src/main.atlas", got)
}

func TestNormalizePathAbsoluteOutsideCwd(t *testing.T) {
	got := NormalizePath("/var/other/main.atlas", "/home/user/proj")
	require.Equal(t, "main.atlas", got)
}

func TestNormalizePathRelativeUnchanged(t *testing.T) {
	require.Equal(t, "src/main.atlas", NormalizePath("src/main.atlas", "/home/user/proj"))
}

func TestNormalizePathIdempotent(t *testing.T) {
	once := NormalizePath("/home/user/proj/src/main.atlas", "/home/user/proj")
	twice := NormalizePath(once, "/home/user/proj")
	require.Equal(t, once, twice)
}

func TestJSONRoundTrip(t *testing.T) {
	d := Error("AT3001", "type mismatch", position.NewSpan(0, 3)).WithFile("a.atlas")
	data, err := d.ToJSON()
	require.NoError(t, err)

	back, err := FromJSON(data)
	require.NoError(t, err)
	require.Equal(t, d, back)
}

func TestJSONMatchesSchema(t *testing.T) {
	compiler := jsonschema.NewCompiler()
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(Schema))
	require.NoError(t, err)
	require.NoError(t, compiler.AddResource("schema.json", schemaDoc))
	sch, err := compiler.Compile("schema.json")
	require.NoError(t, err)

	d := Error("AT3001", "type mismatch", position.NewSpan(0, 3)).
		WithFile("a.atlas").
		WithLineColumn(position.LineColumn{Line: 1, Column: 1}).
		WithHelp("try converting")
	data, err := d.ToJSON()
	require.NoError(t, err)

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, sch.Validate(inst))
}
