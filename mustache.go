// Package mustache compiles and renders Mustache templates. A
// Template is compiled once, via Compiler, into an immutable bytecode
// program; rendering executes that program against a caller-supplied
// data value (or the built-in reflection-based DataProvider) any
// number of times, concurrently, without recompiling.
package mustache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/runZeroInc/mustachevm/internal/compiler"
	"github.com/runZeroInc/mustachevm/internal/scanner"
	"github.com/runZeroInc/mustachevm/internal/token"
	"github.com/runZeroInc/mustachevm/internal/vm"
)

// Compiler configures and produces Templates. The zero value (or
// New()) is ready to use; each With* method returns the receiver so
// calls can be chained.
type Compiler struct {
	partial        PartialProvider
	escapeMode     EscapeMode
	valueStringer  ValueStringer
	errorOnMissing bool
	errorSink      ErrorSink
}

// New returns a Compiler with default settings: no partial provider,
// HTML escaping, fmt.Sprint value stringification, and missing
// lookups silently rendering as empty.
func New() *Compiler {
	return &Compiler{}
}

// WithPartials installs a partial source. Partial tags compile lazily
// on first use and are cached on the resulting Template.
func (c *Compiler) WithPartials(pp PartialProvider) *Compiler {
	c.partial = pp
	return c
}

// WithValueStringer overrides how resolved values are converted to
// their rendered text. The default is fmt.Sprint.
func (c *Compiler) WithValueStringer(vs ValueStringer) *Compiler {
	c.valueStringer = vs
	return c
}

// WithEscapeMode selects how {{variable}} tags escape their output.
// The default is EscapeHTML.
func (c *Compiler) WithEscapeMode(m EscapeMode) *Compiler {
	c.escapeMode = m
	return c
}

// WithErrors makes a render fail with an error on the first name that
// could not be resolved against the data tree (or partial that could
// not be found), instead of silently rendering it as empty.
func (c *Compiler) WithErrors(b bool) *Compiler {
	c.errorOnMissing = b
	return c
}

// WithErrorSink installs a callback invoked once for every diagnostic
// reported while scanning a template's source, in addition to (not
// instead of) the *ParseError CompileString/CompileFile already return
// on failure. Use this to stream diagnostics to a linter or log as
// they're found, rather than only inspecting the aggregated error.
func (c *Compiler) WithErrorSink(sink ErrorSink) *Compiler {
	c.errorSink = sink
	return c
}

// CompileString compiles a template from its source text.
func (c *Compiler) CompileString(src string) (*Template, error) {
	data := []byte(src)

	var diags []Diagnostic
	tags, ok := scanner.Scan(data, func(d token.Diagnostic) {
		diag := Diagnostic{Code: ErrCode(d.Code), Message: d.Code.String(), Line: d.Line, Column: d.Column}
		diags = append(diags, diag)
		if c.errorSink != nil {
			c.errorSink(diag)
		}
	})
	if !ok {
		return nil, &ParseError{Diagnostics: diags}
	}

	code := compiler.Compile(data, tags)

	return &Template{
		code:           code,
		partial:        c.partial,
		escapeMode:     c.escapeMode,
		valueStringer:  c.valueStringer,
		errorOnMissing: c.errorOnMissing,
		errorSink:      c.errorSink,
		partialCache:   map[string][]byte{},
	}, nil
}

// CompileFile reads filename and compiles its contents.
func (c *Compiler) CompileFile(filename string) (*Template, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return c.CompileString(string(data))
}

// JSONTemplate compiles src with raw (unescaped) output and a value
// stringer that renders resolved values as JSON, a convenience for
// templates whose output is itself meant to be embedded in JSON.
func JSONTemplate(src string) (*Template, error) {
	return New().WithEscapeMode(Raw).WithValueStringer(jsonValueString).CompileString(src)
}

func jsonValueString(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func defaultValueString(v any) (string, error) {
	return fmt.Sprint(v), nil
}

// Template is a compiled Mustache program. It holds no reference to
// its source text and is safe for concurrent use by multiple
// goroutines: Render/Frender/Process each build their own interpreter
// state, and the partial cache is guarded by a mutex.
type Template struct {
	code vm.Code

	partial        PartialProvider
	escapeMode     EscapeMode
	valueStringer  ValueStringer
	errorOnMissing bool
	errorSink      ErrorSink

	partialMu    sync.RWMutex
	partialCache map[string][]byte
}

// Process executes the template against provider, sending output to
// renderer. This is the low-level entry point for callers supplying
// their own DataProvider/Renderer instead of a plain Go value.
func (t *Template) Process(renderer Renderer, provider DataProvider) error {
	return vm.Exec(t.code, rendererAdapter{renderer}, providerAdapter{provider})
}

// Frender renders the template against context (generally a map or
// struct; later arguments shadow earlier ones during name resolution,
// the way a nested scope shadows its parent) to out.
func (t *Template) Frender(out io.Writer, context ...any) error {
	p := newReflectProvider(t, context)
	r := &bufRenderer{mode: t.escapeMode}

	if err := vm.Exec(t.code, r, providerAdapter{p}); err != nil {
		return err
	}
	if _, err := out.Write(r.buf.Bytes()); err != nil {
		return err
	}
	if p.missed && t.errorOnMissing {
		if p.missErr != nil {
			return p.missErr
		}
		return fmt.Errorf("mustache: no such name %q", p.missName)
	}
	return nil
}

// Render renders the template against context and returns the result.
func (t *Template) Render(context ...any) (string, error) {
	var buf bytes.Buffer
	err := t.Frender(&buf, context...)
	return buf.String(), err
}

// RenderInLayout renders the template, then renders layout with a
// "content" key set to that output, layered over context.
func (t *Template) RenderInLayout(layout *Template, context ...any) (string, error) {
	var buf bytes.Buffer
	if err := t.FRenderInLayout(&buf, layout, context...); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FRenderInLayout is RenderInLayout to an io.Writer.
func (t *Template) FRenderInLayout(out io.Writer, layout *Template, context ...any) error {
	content, err := t.Render(context...)
	if err != nil {
		return err
	}
	allContext := make([]any, 0, len(context)+1)
	allContext = append(allContext, context...)
	allContext = append(allContext, map[string]string{"content": content})
	return layout.Frender(out, allContext...)
}

// compilePartial resolves and compiles (with caching) the named
// partial. Compiled bytecode doesn't depend on escape mode or value
// stringer (those are runtime rendering concerns), so one cache per
// Template, shared across every Render call, is safe. A genuinely
// missing partial (PartialProvider.Get returning "", nil) renders as
// empty, matching Get's documented contract. A hard error from Get is
// returned unchanged, and a partial whose source fails to scan is
// reported as a *ParseError (the same as a malformed top-level
// template passed to CompileString/CompileFile), so WithErrors(true)
// can surface either.
func (t *Template) compilePartial(name string) (code []byte, ok bool, err error) {
	t.partialMu.RLock()
	code, ok = t.partialCache[name]
	t.partialMu.RUnlock()
	if ok {
		return code, true, nil
	}

	if t.partial == nil {
		return nil, false, nil
	}
	src, err := t.partial.Get(name)
	if err != nil {
		return nil, false, err
	}
	if src == "" {
		return nil, false, nil
	}

	data := []byte(src)
	var diags []Diagnostic
	tags, scanOK := scanner.Scan(data, func(d token.Diagnostic) {
		diag := Diagnostic{Code: ErrCode(d.Code), Message: d.Code.String(), Line: d.Line, Column: d.Column}
		diags = append(diags, diag)
		if t.errorSink != nil {
			t.errorSink(diag)
		}
	})
	if !scanOK {
		return nil, false, &ParseError{Diagnostics: diags}
	}
	code = compiler.Compile(data, tags)

	t.partialMu.Lock()
	t.partialCache[name] = code
	t.partialMu.Unlock()
	return code, true, nil
}
