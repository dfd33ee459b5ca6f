package mustache

import (
	"fmt"

	"github.com/runZeroInc/mustachevm/internal/token"
)

// ErrCode enumerates the diagnostics the parser can report during
// compilation.
type ErrCode = token.ErrCode

// The parser diagnostic codes, re-exported from internal/token so
// callers never need to import the internal package.
const (
	ErrDanglingOpener        = token.ErrDanglingOpener
	ErrDanglingCloser        = token.ErrDanglingCloser
	ErrIncompatibleCloser    = token.ErrIncompatibleCloser
	ErrNoTagName             = token.ErrNoTagName
	ErrInvalidTagName        = token.ErrInvalidTagName
	ErrDanglingSectionOpener = token.ErrDanglingSectionOpener
	ErrDanglingSectionCloser = token.ErrDanglingSectionCloser
	ErrSectionNameMismatch   = token.ErrSectionNameMismatch
	ErrSectionOpenerHere     = token.ErrSectionOpenerHere
	ErrInvalidDelimiters     = token.ErrInvalidDelimiters
)

// Diagnostic is a single parser-reported problem, with its source
// location.
type Diagnostic struct {
	Code    ErrCode
	Message string
	Line    int
	Column  int
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
}

// ErrorSink receives parser diagnostics as they are reported.
type ErrorSink func(d Diagnostic)

// ParseError is returned by CompileString/CompileFile when one
// or more diagnostics were reported during parsing or compilation.
type ParseError struct {
	Diagnostics []Diagnostic
}

func (e *ParseError) Error() string {
	if len(e.Diagnostics) == 1 {
		return "mustache: " + e.Diagnostics[0].Error()
	}
	return fmt.Sprintf("mustache: %d parse errors, first: %s", len(e.Diagnostics), e.Diagnostics[0].Error())
}
