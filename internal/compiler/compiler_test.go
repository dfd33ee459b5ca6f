package compiler

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runZeroInc/mustachevm/internal/scanner"
	"github.com/runZeroInc/mustachevm/internal/vm"
)

// stubProvider is a minimal, non-reflection vm.Provider over plain Go
// values (map[string]any, []any, scalars), used to exercise the
// compiler's bytecode output against the interpreter without the
// mustache package's reflection machinery.
type stubProvider struct {
	root     any
	partials map[string]vm.Code
}

func (p *stubProvider) Root() vm.Node { return p.root }

func (p *stubProvider) ChildByName(n vm.Node, name string) vm.Node {
	if m, ok := n.(map[string]any); ok {
		return m[name]
	}
	return nil
}

func (p *stubProvider) ChildByIndex(n vm.Node, index int) vm.Node {
	switch v := n.(type) {
	case []any:
		if index >= 0 && index < len(v) {
			return v[index]
		}
		return nil
	case map[string]any:
		if index == 0 {
			return v
		}
		return nil
	case string:
		if index == 0 && v != "" {
			return v
		}
		return nil
	case bool:
		if index == 0 && v {
			return v
		}
		return nil
	case nil:
		return nil
	default:
		if index == 0 {
			return v
		}
		return nil
	}
}

func (p *stubProvider) Dump(n vm.Node, sink vm.Sink) error {
	if n == nil {
		return nil
	}
	return sink([]byte(fmt.Sprint(n)))
}

func (p *stubProvider) GetPartial(name string) (vm.Code, bool) {
	code, ok := p.partials[name]
	return code, ok
}

func (p *stubProvider) Missing(string) {}

type captureRenderer struct {
	buf bytes.Buffer
}

func (r *captureRenderer) OutVerbatim(p []byte) error { r.buf.Write(p); return nil }
func (r *captureRenderer) OutEscaped(p []byte) error  { r.buf.Write(p); return nil }

func render(t *testing.T, src string, root any, partials map[string]vm.Code) string {
	t.Helper()
	data := []byte(src)
	tags, ok := scanner.Scan(data, nil)
	require.True(t, ok)
	code := Compile(data, tags)

	r := &captureRenderer{}
	p := &stubProvider{root: root, partials: partials}
	require.NoError(t, vm.Exec(code, r, p))
	return r.buf.String()
}

func TestCompileLiteral(t *testing.T) {
	assert.Equal(t, "hello world", render(t, "hello world", nil, nil))
}

func TestCompileVariable(t *testing.T) {
	root := map[string]any{"name": "world"}
	assert.Equal(t, "hello world", render(t, "hello {{name}}", root, nil))
}

func TestCompileDottedName(t *testing.T) {
	root := map[string]any{"a": map[string]any{"b": "deep"}}
	assert.Equal(t, "deep", render(t, "{{a.b}}", root, nil))
}

func TestCompileSectionOverSlice(t *testing.T) {
	root := map[string]any{"items": []any{"a", "b", "c"}}
	assert.Equal(t, "a,b,c,", render(t, "{{#items}}{{.}},{{/items}}", root, nil))
}

func TestCompileSectionFalsy(t *testing.T) {
	root := map[string]any{"items": []any{}}
	assert.Equal(t, "", render(t, "{{#items}}shown{{/items}}", root, nil))
}

func TestCompileInvertedSection(t *testing.T) {
	root := map[string]any{"items": []any{}}
	assert.Equal(t, "empty", render(t, "{{^items}}empty{{/items}}", root, nil))
}

func TestCompileInvertedSectionTruthy(t *testing.T) {
	root := map[string]any{"items": []any{"a"}}
	assert.Equal(t, "", render(t, "{{^items}}empty{{/items}}", root, nil))
}

func TestCompileNestedSections(t *testing.T) {
	root := map[string]any{
		"users": []any{
			map[string]any{"name": "alice"},
			map[string]any{"name": "bob"},
		},
	}
	assert.Equal(t, "alice,bob,", render(t, "{{#users}}{{name}},{{/users}}", root, nil))
}

func TestCompilePartial(t *testing.T) {
	partialSrc := []byte("[{{name}}]")
	ptags, ok := scanner.Scan(partialSrc, nil)
	require.True(t, ok)
	partials := map[string]vm.Code{"greet": Compile(partialSrc, ptags)}

	root := map[string]any{"name": "mike"}
	assert.Equal(t, "[mike]", render(t, "{{>greet}}", root, partials))
}

func TestCompileComment(t *testing.T) {
	assert.Equal(t, "ab", render(t, "a{{! nope }}b", nil, nil))
}
