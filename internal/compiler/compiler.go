// Package compiler lowers a scanned tag sequence into a linear
// bytecode instruction stream, patching forward jump operands for
// section open/close pairs via a compile-time stack of insertion
// offsets.
package compiler

import (
	"github.com/runZeroInc/mustachevm/internal/bytecode"
	"github.com/runZeroInc/mustachevm/internal/token"
)

// Compile lowers tags (as produced by scanner.Scan over src) into a
// bytecode instruction stream.
func Compile(src []byte, tags []token.Tag) []byte {
	c := &compiler{src: src, insns: &bytecode.Buffer{}}
	c.run(tags)
	return c.insns.Bytes()
}

type compiler struct {
	src   []byte
	insns *bytecode.Buffer
	jmpPos []int // compile-time stack of insertion offsets awaiting a jump distance
}

func (c *compiler) pushJmpPos(pos int) {
	c.jmpPos = append(c.jmpPos, pos)
}

func (c *compiler) popJmpPos() int {
	n := len(c.jmpPos) - 1
	pos := c.jmpPos[n]
	c.jmpPos = c.jmpPos[:n]
	return pos
}

func (c *compiler) run(tags []token.Tag) {
	off := 0

	for i := range tags {
		tag := &tags[i]

		if off < tag.Begin {
			c.insns.AppendNum(bytecode.OpLiteral)
			c.insns.AppendNum(uint64(tag.Begin - off))
			c.insns.Append(c.src[off:tag.Begin])
			off = tag.Begin
		}

		switch tag.Kind {
		case token.Var, token.VerbatimVar:
			c.insns.AppendNum(bytecode.OpResolve)
			c.appendTagName(tag)
			if tag.Kind == token.Var {
				c.insns.AppendNum(bytecode.OpOutEscaped)
			} else {
				c.insns.AppendNum(bytecode.OpOutVerbatim)
			}

		case token.SectionOpen:
			c.insns.AppendNum(bytecode.OpResolveSetjmp)
			c.pushJmpPos(c.insns.Len())
			c.appendTagName(tag)
			c.insns.AppendNum(bytecode.OpEnter)
			c.pushJmpPos(c.insns.Len())

		case token.SectionClose:
			c.insns.AppendNum(bytecode.OpLeave)
			loopBack := c.popJmpPos()
			c.insns.AppendNum(uint64(c.insns.Len() - loopBack))
			jmpPos := c.popJmpPos()
			c.insns.InsertNum(jmpPos, uint64(c.insns.Len()-jmpPos))

		case token.SectionOpenInv:
			c.insns.AppendNum(bytecode.OpResolveSetjmp)
			c.pushJmpPos(c.insns.Len())
			c.appendTagName(tag)
			c.insns.AppendNum(bytecode.OpEnterInv)

		case token.SectionCloseInv:
			jmpPos := c.popJmpPos()
			c.insns.InsertNum(jmpPos, uint64(c.insns.Len()-jmpPos))

		case token.Partial:
			c.insns.AppendNum(bytecode.OpPartial)
			name := c.src[tag.NameBegin:tag.NameEnd]
			c.insns.AppendNum(uint64(len(name)))
			c.insns.Append(name)

			indentLen := 0
			for tag.Begin+indentLen < len(c.src) && isWhitespace(c.src[tag.Begin+indentLen]) {
				indentLen++
			}
			c.insns.AppendNum(uint64(indentLen))
			c.insns.Append(c.src[tag.Begin : tag.Begin+indentLen])

		case token.IndentMarker:
			c.insns.AppendNum(bytecode.OpIndent)

		case token.None:
			c.insns.AppendNum(bytecode.OpExit)
			return

		case token.Comment, token.DelimReset:
			// Emit nothing.
		}

		off = tag.End
	}
}

func (c *compiler) appendTagName(tag *token.Tag) {
	name := c.src[tag.NameBegin:tag.NameEnd]

	var nTokens int
	if len(name) == 1 && name[0] == '.' {
		nTokens = 0
	} else {
		nTokens = 1
		for _, b := range name {
			if b == '.' {
				nTokens++
			}
		}
	}

	c.insns.AppendNum(uint64(nTokens))

	tokBeg := 0
	for i := 0; i < nTokens; i++ {
		tokEnd := tokBeg
		for tokEnd < len(name) && name[tokEnd] != '.' {
			tokEnd++
		}
		c.insns.AppendNum(uint64(tokEnd - tokBeg))
		c.insns.Append(name[tokBeg:tokEnd])
		tokBeg = tokEnd + 1
	}
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\v' || b == '\f'
}
