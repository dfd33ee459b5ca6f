package mustache

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/runZeroInc/mustachevm/internal/vm"
)

// ValueStringer converts a resolved value to its textual
// representation. It is the hook WithValueStringer installs; the
// default is fmt.Sprint.
type ValueStringer func(value any) (string, error)

// DataProvider is the capability set that supplies the data tree a
// template is rendered against. Applications that want something
// other than struct/map reflection (e.g. a JSON-parsed document tree,
// a database row) can implement it directly and pass it to
// Template.Process instead of calling Render/Frender.
type DataProvider interface {
	Root() any
	ChildByName(node any, name string) any
	ChildByIndex(node any, index int) any
	Dump(node any, sink func([]byte) error) error
	GetPartial(name string) (code []byte, ok bool)
	// Missing is called once for an interpolation tag whose name
	// resolved to nothing anywhere in the scope chain. Implementations
	// that don't support strict missing-name errors can leave it empty.
	Missing(name string)
}

// providerAdapter lets any DataProvider satisfy vm.Provider without
// every implementation needing to import the internal package.
type providerAdapter struct {
	DataProvider
}

func (a providerAdapter) Root() vm.Node { return a.DataProvider.Root() }
func (a providerAdapter) ChildByName(n vm.Node, name string) vm.Node {
	return a.DataProvider.ChildByName(n, name)
}
func (a providerAdapter) ChildByIndex(n vm.Node, index int) vm.Node {
	return a.DataProvider.ChildByIndex(n, index)
}
func (a providerAdapter) Dump(n vm.Node, sink vm.Sink) error {
	return a.DataProvider.Dump(n, sink)
}
func (a providerAdapter) GetPartial(name string) (vm.Code, bool) {
	code, ok := a.DataProvider.GetPartial(name)
	return vm.Code(code), ok
}
func (a providerAdapter) Missing(name string) { a.DataProvider.Missing(name) }

// reflectNode wraps a reflect.Value so that a missing/invalid result
// can be represented as a plain Go nil (required by the interpreter's
// "node != nil" contract) rather than a boxed zero reflect.Value.
type reflectNode struct {
	v reflect.Value
}

func wrapNode(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return &reflectNode{v}
}

func unwrapNode(n any) reflect.Value {
	if n == nil {
		return reflect.Value{}
	}
	return n.(*reflectNode).v
}

// multiRootNode represents the layered context chain a variadic
// Render(context...) call produces: several independent root values
// searched most-recently-given first for nested section lookups.
type multiRootNode struct {
	vals []reflect.Value
}

// reflectProvider is the default DataProvider: it resolves names
// against a chain of Go values via reflection.
type reflectProvider struct {
	roots []any

	tmpl   *Template // for partial lookup/compile/cache
	strict bool      // WithErrors(true)

	stringer ValueStringer

	missed   bool
	missName string
	missErr  error // set instead of missName when the miss carries its own error (e.g. a malformed partial)
}

func newReflectProvider(tmpl *Template, roots []any) *reflectProvider {
	return &reflectProvider{
		roots:    roots,
		tmpl:     tmpl,
		strict:   tmpl.errorOnMissing,
		stringer: tmpl.valueStringer,
	}
}

func (p *reflectProvider) Root() any {
	vals := make([]reflect.Value, 0, len(p.roots))
	for _, r := range p.roots {
		vals = append(vals, reflect.ValueOf(r))
	}
	return &multiRootNode{vals}
}

// indirect dereferences pointers and interfaces down to the first
// non-pointer, non-interface value (or an invalid Value).
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() {
		switch v.Kind() {
		case reflect.Ptr, reflect.Interface:
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		default:
			return v
		}
	}
	return v
}

func (p *reflectProvider) ChildByName(n any, name string) any {
	if mr, ok := n.(*multiRootNode); ok {
		for i := len(mr.vals) - 1; i >= 0; i-- {
			if r := lookupField(mr.vals[i], name); r.IsValid() {
				return wrapNode(r)
			}
		}
		return nil
	}

	v := indirect(unwrapNode(n))
	r := lookupField(v, name)
	if !r.IsValid() {
		return nil
	}
	return wrapNode(r)
}

// lookupField resolves name against v, descending through pointers and
// interfaces one level at a time. A zero-argument method is tried at
// every level (this has to happen before collapsing a pointer, since
// a pointer-receiver method's receiver type is only in the pointer
// Value's method set, not the pointee's).
func lookupField(v reflect.Value, name string) reflect.Value {
	for v.IsValid() {
		if m := v.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 {
			switch m.Type().NumOut() {
			case 1, 2:
				return m.Call(nil)[0]
			}
		}

		switch v.Kind() {
		case reflect.Ptr, reflect.Interface:
			v = v.Elem()
		case reflect.Struct:
			return v.FieldByName(name)
		case reflect.Map:
			if v.Type().Key().Kind() == reflect.String {
				return v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
			}
			return reflect.Value{}
		default:
			return reflect.Value{}
		}
	}
	return reflect.Value{}
}

func (p *reflectProvider) recordMiss(name string) {
	if p.strict && !p.missed {
		p.missed = true
		p.missName = name
	}
}

// recordErr behaves like recordMiss but carries a concrete error (such
// as a malformed partial's *ParseError) through to Frender verbatim,
// instead of synthesizing a generic "no such name" message for it.
func (p *reflectProvider) recordErr(err error) {
	if p.strict && !p.missed {
		p.missed = true
		p.missErr = err
	}
}

// Missing implements the scope-chain-exhausted notification from
// vm.Exec: by the time this is called the name has already failed to
// resolve at every level, so it is always a definitive miss.
func (p *reflectProvider) Missing(name string) {
	p.recordMiss(name)
}

func (p *reflectProvider) ChildByIndex(n any, index int) any {
	if mr, ok := n.(*multiRootNode); ok {
		// A single root behaves exactly as if it had been passed
		// directly (a top-level {{#.}} over a slice context must
		// iterate the slice, not treat the chain as one opaque
		// container). Any other chain (more than one context argument,
		// or none at all) falls back to "itself, one iteration".
		if len(mr.vals) == 1 {
			return p.childOfValue(indirect(mr.vals[0]), index)
		}
		if index == 0 {
			return mr
		}
		return nil
	}

	return p.childOfValue(indirect(unwrapNode(n)), index)
}

func (p *reflectProvider) childOfValue(v reflect.Value, index int) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if index >= 0 && index < v.Len() {
			return wrapNode(v.Index(index))
		}
		return nil
	case reflect.Map, reflect.Struct:
		// Non-sequence container: truthy, exactly one iteration with
		// the container itself as the element (lets {{#obj}}{{field}}
		// {{/obj}} address obj's own fields).
		if index == 0 {
			return wrapNode(v)
		}
		return nil
	default:
		if index == 0 && !isFalsy(v) {
			return wrapNode(v)
		}
		return nil
	}
}

// isFalsy reports whether v (already indirected) should be treated as
// a false/empty value for section truthiness purposes.
func isFalsy(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.String:
		return len(strings.TrimSpace(v.String())) == 0
	case reflect.Slice, reflect.Array, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}

func (p *reflectProvider) Dump(n any, sink func([]byte) error) error {
	var v reflect.Value
	if mr, ok := n.(*multiRootNode); ok {
		// A layered chain of more than one root has no single value to
		// stringify; a lone root dumps as itself.
		if len(mr.vals) != 1 {
			return nil
		}
		v = mr.vals[0]
	} else {
		v = unwrapNode(n)
	}
	if !v.IsValid() {
		return nil
	}

	var s string
	var err error
	if p.stringer != nil {
		s, err = p.stringer(v.Interface())
	} else {
		s, err = defaultValueString(v.Interface())
	}
	if err != nil {
		return err
	}
	return sink([]byte(s))
}

func (p *reflectProvider) GetPartial(name string) (code []byte, ok bool) {
	code, ok, err := p.tmpl.compilePartial(name)
	if err != nil {
		p.recordErr(fmt.Errorf("mustache: partial %q: %w", name, err))
	} else if !ok {
		p.recordErr(fmt.Errorf("mustache: no such partial %q", name))
	}
	return code, ok
}
