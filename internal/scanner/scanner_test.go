package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runZeroInc/mustachevm/internal/compiler"
	"github.com/runZeroInc/mustachevm/internal/token"
)

func diagCodes(diags []token.Diagnostic) []token.ErrCode {
	codes := make([]token.ErrCode, len(diags))
	for i, d := range diags {
		codes[i] = d.Code
	}
	return codes
}

func TestScanBasicVariable(t *testing.T) {
	src := []byte("hi {{name}}")
	tags, ok := Scan(src, nil)
	require.True(t, ok)

	require.Len(t, tags, 3) // IndentMarker@0, Var, terminal None
	assert.Equal(t, token.IndentMarker, tags[0].Kind)
	assert.Equal(t, token.Var, tags[1].Kind)
	assert.Equal(t, "name", tags[1].Name(src))
	assert.Equal(t, token.None, tags[2].Kind)
}

func TestScanSectionBalance(t *testing.T) {
	_, ok := Scan([]byte("{{#a}}x{{/a}}"), nil)
	assert.True(t, ok)
}

func TestScanSectionNameMismatch(t *testing.T) {
	var diags []token.Diagnostic
	_, ok := Scan([]byte("{{#a}}x{{/b}}"), func(d token.Diagnostic) {
		diags = append(diags, d)
	})
	require.False(t, ok)
	assert.Contains(t, diagCodes(diags), token.ErrSectionNameMismatch)
	assert.Contains(t, diagCodes(diags), token.ErrSectionOpenerHere)
}

func TestScanDanglingSectionOpener(t *testing.T) {
	var diags []token.Diagnostic
	_, ok := Scan([]byte("{{#a}}x"), func(d token.Diagnostic) {
		diags = append(diags, d)
	})
	require.False(t, ok)
	assert.Contains(t, diagCodes(diags), token.ErrDanglingSectionOpener)
}

func TestScanDanglingSectionCloser(t *testing.T) {
	var diags []token.Diagnostic
	_, ok := Scan([]byte("x{{/a}}"), func(d token.Diagnostic) {
		diags = append(diags, d)
	})
	require.False(t, ok)
	assert.Contains(t, diagCodes(diags), token.ErrDanglingSectionCloser)
}

func TestScanDanglingOpenerAtEOF(t *testing.T) {
	var diags []token.Diagnostic
	_, ok := Scan([]byte("hi {{name"), func(d token.Diagnostic) {
		diags = append(diags, d)
	})
	require.False(t, ok)
	assert.Contains(t, diagCodes(diags), token.ErrDanglingOpener)
}

func TestScanDanglingCloser(t *testing.T) {
	var diags []token.Diagnostic
	_, ok := Scan([]byte("a}}b"), func(d token.Diagnostic) {
		diags = append(diags, d)
	})
	require.False(t, ok)
	assert.Contains(t, diagCodes(diags), token.ErrDanglingCloser)
}

func TestScanNoTagName(t *testing.T) {
	var diags []token.Diagnostic
	_, ok := Scan([]byte("{{}}"), func(d token.Diagnostic) {
		diags = append(diags, d)
	})
	require.False(t, ok)
	assert.Contains(t, diagCodes(diags), token.ErrNoTagName)
}

func TestScanDelimiterReset(t *testing.T) {
	src := []byte("{{=<% %>=}}<%a%><%={{ }}=%>{{a}}")
	tags, ok := Scan(src, nil)
	require.True(t, ok)

	var names []string
	for _, tag := range tags {
		if tag.Kind == token.Var {
			names = append(names, tag.Name(src))
		}
	}
	assert.Equal(t, []string{"a", "a"}, names)
}

func TestScanInvalidDelimiters(t *testing.T) {
	var diags []token.Diagnostic
	_, ok := Scan([]byte("{{=bad=}}"), func(d token.Diagnostic) {
		diags = append(diags, d)
	})
	require.False(t, ok)
	assert.Contains(t, diagCodes(diags), token.ErrInvalidDelimiters)
}

func TestScanInvertedSectionRewrite(t *testing.T) {
	src := []byte("{{^a}}x{{/a}}")
	tags, ok := Scan(src, nil)
	require.True(t, ok)

	var closeKind token.Kind
	for _, tag := range tags {
		if tag.Kind == token.SectionClose || tag.Kind == token.SectionCloseInv {
			closeKind = tag.Kind
		}
	}
	assert.Equal(t, token.SectionCloseInv, closeKind)
}

// FuzzCompile exercises the scanner and compiler together against
// arbitrary byte input: neither should ever panic, regardless of how
// malformed the template is.
func FuzzCompile(f *testing.F) {
	seeds := []string{
		"",
		"hello world",
		"{{name}}",
		"{{{raw}}}",
		"{{&raw}}",
		"{{#a}}{{b}}{{/a}}",
		"{{^a}}{{b}}{{/a}}",
		"{{!comment}}",
		"{{=<% %>=}}<%a%>",
		"{{>partial}}",
		"{{#a}}",
		"{{/a}}",
		"{{",
		"}}",
		"{{#a}}{{/b}}",
		"{{.}}",
		"{{a.b.c}}",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, src string) {
		data := []byte(src)
		tags, ok := Scan(data, nil)
		if !ok {
			return
		}
		_ = compiler.Compile(data, tags)
	})
}
