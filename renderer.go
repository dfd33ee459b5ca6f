package mustache

import (
	"bytes"
	"encoding/json"
	"html/template"
	"strings"

	"github.com/runZeroInc/mustachevm/internal/vm"
)

// EscapeMode selects how {{variable}} tags (as opposed to
// {{{variable}}}/{{&variable}}, which are always verbatim) escape
// their output.
type EscapeMode int

const (
	// EscapeHTML escapes '&', '<', '>', '"' and '\'' the way
	// html/template does. This is the default, matching Mustache's
	// original HTML-templating use case.
	EscapeHTML EscapeMode = iota
	// EscapeJSON escapes control characters and quotes so that the
	// interpolated value is safe inside a JSON string literal.
	EscapeJSON
	// Raw disables escaping entirely; {{variable}} behaves like
	// {{{variable}}}.
	Raw
)

// Renderer is the capability set an application can implement directly
// (via Template.Process) to receive rendered output without going
// through Render/Frender's buffering.
type Renderer interface {
	OutVerbatim(p []byte) error
	OutEscaped(p []byte) error
}

// bufRenderer accumulates output in memory, applying mode's escaping
// policy to OutEscaped calls.
type bufRenderer struct {
	buf  bytes.Buffer
	mode EscapeMode
}

func (r *bufRenderer) OutVerbatim(p []byte) error {
	r.buf.Write(p)
	return nil
}

func (r *bufRenderer) OutEscaped(p []byte) error {
	switch r.mode {
	case EscapeJSON:
		r.buf.WriteString(jsonEscape(string(p)))
	case Raw:
		r.buf.Write(p)
	default:
		template.HTMLEscape(&r.buf, p)
	}
	return nil
}

// jsonEscape renders s as the body of a double-quoted JSON string
// (without the surrounding quotes), via encoding/json. HTML escaping
// is disabled: this output is going into a JSON document, not HTML, so
// '<'/'>'/'&' must stay literal rather than being rewritten as JSON
// unicode escape sequences.
func jsonEscape(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return s
	}
	// Encode appends a trailing newline and wraps in quotes; strip both.
	out := strings.TrimSuffix(buf.String(), "\n")
	return out[1 : len(out)-1]
}

// rendererAdapter lets any Renderer satisfy vm.Renderer.
type rendererAdapter struct {
	Renderer
}

func (a rendererAdapter) OutVerbatim(p []byte) error { return a.Renderer.OutVerbatim(p) }
func (a rendererAdapter) OutEscaped(p []byte) error  { return a.Renderer.OutEscaped(p) }

var _ vm.Renderer = rendererAdapter{}
