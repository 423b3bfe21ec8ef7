package sourcemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousuf/scopemap-mcp/internal/model"
)

// testMap maps bundle.js 1:0 -> app.js 1:0 (count), 1:4 -> app.js 2:2 (total)
// and 2:0 -> app.js 4:0.
const testMap = `{
	"version": 3,
	"file": "bundle.js",
	"sources": ["src/app.js"],
	"sourcesContent": ["let count = 0;\n  total\n\nfoo"],
	"names": ["count", "total"],
	"mappings": "AAAAA,IACEC;AAEF"
}`

func TestService_Register(t *testing.T) {
	svc := NewService()

	originals, err := svc.Register("gen1", []byte(testMap))
	require.NoError(t, err)
	require.Len(t, originals, 1)

	assert.Equal(t, "src/app.js", originals[0].URL)
	assert.Equal(t, model.OriginalID("gen1", "src/app.js"), originals[0].ID)
	require.NotNil(t, originals[0].Content)
	assert.Contains(t, *originals[0].Content, "let count")
	assert.True(t, svc.HasMap("gen1"))
}

func TestService_RegisterErrors(t *testing.T) {
	svc := NewService()

	_, err := svc.Register("gen1", []byte(`{not json`))
	assert.Error(t, err)

	_, err = svc.Register(model.OriginalID("gen1", "a.js"), []byte(testMap))
	assert.Error(t, err)

	assert.False(t, svc.HasMap("gen1"))
}

func TestService_OriginalLocation(t *testing.T) {
	svc := NewService()
	_, err := svc.Register("gen1", []byte(testMap))
	require.NoError(t, err)

	origID := model.OriginalID("gen1", "src/app.js")

	loc, name, ok := svc.OriginalLocation(model.Location{SourceID: "gen1", Line: 1, Column: 4})
	require.True(t, ok)
	assert.Equal(t, model.Location{SourceID: origID, Line: 2, Column: 2}, loc)
	assert.Equal(t, "total", name)

	loc, _, ok = svc.OriginalLocation(model.Location{SourceID: "gen1", Line: 2, Column: 0})
	require.True(t, ok)
	assert.Equal(t, 4, loc.Line)

	_, _, ok = svc.OriginalLocation(model.Location{SourceID: "unknown", Line: 1, Column: 0})
	assert.False(t, ok)
}

func TestEntry_OriginalIDLongestSuffix(t *testing.T) {
	short := model.OriginalID("gen1", "app.js")
	long := model.OriginalID("gen1", "lib/app.js")
	e := &entry{
		generatedID: "gen1",
		originals:   []OriginalSource{{ID: short, URL: "app.js"}, {ID: long, URL: "lib/app.js"}},
		byURL:       map[string]string{"app.js": short, "lib/app.js": long},
		rawSources:  map[string]string{short: "app.js", long: "lib/app.js"},
	}

	for i := 0; i < 20; i++ {
		assert.Equal(t, long, e.originalID("/root/lib/app.js"))
		assert.Equal(t, short, e.originalID("/root/src/app.js"))
	}
	assert.Equal(t, long, e.originalID("lib/app.js"))
	assert.Equal(t, model.OriginalID("gen1", "other.js"), e.originalID("other.js"))
}

func TestService_MapStack(t *testing.T) {
	svc := NewService()
	_, err := svc.Register("gen1", []byte(testMap))
	require.NoError(t, err)

	stack := "    at add (http://localhost/bundle.js:1:5)\n    at run (native)"
	out, err := svc.MapStack("gen1", stack, false)
	require.NoError(t, err)

	assert.Equal(t, "    at total (src/app.js:2:3)\n    at run (native)", out)

	debugOut, err := svc.MapStack("gen1", stack, true)
	require.NoError(t, err)
	assert.Contains(t, debugOut, "✓ mapped")
	assert.Contains(t, debugOut, "✗ unmapped")

	_, err = svc.MapStack("missing", stack, false)
	assert.ErrorIs(t, err, ErrNoSourceMap)
}

func TestParseStack(t *testing.T) {
	stack := `Error: boom
    at add (http://localhost/bundle.js:1:5)
    at http://localhost/bundle.js:2:1
    at Array.map (native)
run@http://localhost/bundle.js:3:7
`
	frames := ParseStack(stack)
	require.Len(t, frames, 4)

	assert.Equal(t, "add", frames[0].FunctionName)
	assert.Equal(t, "http://localhost/bundle.js", frames[0].FileName)
	loc, ok := frames[0].GeneratedLocation("gen1")
	require.True(t, ok)
	assert.Equal(t, model.Location{SourceID: "gen1", Line: 1, Column: 4}, loc)

	assert.Equal(t, "<anonymous>", frames[1].FunctionName)

	assert.True(t, frames[2].IsNative)
	_, ok = frames[2].GeneratedLocation("gen1")
	assert.False(t, ok)

	assert.Equal(t, "run", frames[3].FunctionName)
	assert.Equal(t, 3, *frames[3].LineNumber)
}

func TestJoinSourceRoot(t *testing.T) {
	assert.Equal(t, "a.js", joinSourceRoot("", "a.js"))
	assert.Equal(t, "webpack:///src/a.js", joinSourceRoot("webpack:///", "src/a.js"))
	assert.Equal(t, "http://x/a.js", joinSourceRoot("webpack:///", "http://x/a.js"))
	assert.Equal(t, "root/a.js", joinSourceRoot("root/", "/a.js"))
}
