// Package vm executes compiled mustache bytecode: a flat
// program-counter loop over a context stack (name resolution scope),
// an iteration-index stack (section loops), a partial-return stack
// (nested template invocation) and an indent buffer (partial
// indentation inheritance).
package vm

import (
	"github.com/runZeroInc/mustachevm/internal/bytecode"
)

// Code is a compiled bytecode instruction stream, as produced by
// internal/compiler.
type Code []byte

// Node is an opaque handle into the caller's data tree. The
// interpreter never inspects it; it is only ever passed back to the
// Provider.
type Node = any

// Sink receives output bytes. A non-nil error aborts Exec at the next
// instruction boundary.
type Sink func(p []byte) error

// Renderer is the capability set an application implements to receive
// rendered output.
type Renderer interface {
	// OutVerbatim emits p without any escaping.
	OutVerbatim(p []byte) error
	// OutEscaped emits p, escaped per the renderer's own policy.
	OutEscaped(p []byte) error
}

// Provider is the capability set an application implements to supply
// the data tree the template is rendered against.
type Provider interface {
	// Root returns the initial lookup context.
	Root() Node
	// ChildByName returns the named child of n, or nil if there is
	// none.
	ChildByName(n Node, name string) Node
	// ChildByIndex returns the index'th child of n, used both to
	// enumerate sequences and to probe truthiness of singletons (a
	// truthy scalar returns itself at index 0 and nil beyond).
	ChildByIndex(n Node, index int) Node
	// Dump stringifies n to sink, which may be called any number of
	// times.
	Dump(n Node, sink Sink) error
	// GetPartial resolves a named partial to its compiled bytecode, or
	// reports ok=false if there is none.
	GetPartial(name string) (code Code, ok bool)
	// Missing is called once for a {{variable}} tag whose name (the
	// full dotted path) resolved to no node anywhere in the scope
	// chain. It is never called for a section/inverted-section tag,
	// where a missing name is ordinary falsy control flow rather than
	// an unresolved reference.
	Missing(name string)
}

type partialFrame struct {
	code      Code
	returnPC  int
	indentLen int
}

// Exec runs code against provider, sending output through renderer. It
// returns the first error returned by a Renderer or Provider callback;
// such an error aborts execution at the next instruction boundary.
func Exec(code Code, renderer Renderer, provider Provider) error {
	insns := code
	pc := 0
	var jmpAddr int
	var node Node

	var nodeStack []Node
	var indexStack []int
	var partialStack []partialFrame
	var indentBuf []byte

	push := func(n Node) { nodeStack = append(nodeStack, n) }
	pop := func() Node {
		n := nodeStack[len(nodeStack)-1]
		nodeStack = nodeStack[:len(nodeStack)-1]
		return n
	}
	peek := func() Node { return nodeStack[len(nodeStack)-1] }
	pushIdx := func(i int) { indexStack = append(indexStack, i) }
	popIdx := func() int {
		i := indexStack[len(indexStack)-1]
		indexStack = indexStack[:len(indexStack)-1]
		return i
	}

	node = provider.Root()
	push(node)

	for {
		var opcodeNum uint64
		opcodeNum, pc = bytecode.DecodeNum(insns, pc)
		opcode := int(opcodeNum)

		switch opcode {
		case bytecode.OpLiteral:
			var n uint64
			n, pc = bytecode.DecodeNum(insns, pc)
			if err := renderer.OutVerbatim(insns[pc : pc+int(n)]); err != nil {
				return err
			}
			pc += int(n)

		case bytecode.OpResolveSetjmp, bytecode.OpResolve:
			if opcode == bytecode.OpResolveSetjmp {
				var jmpLen uint64
				jmpLen, pc = bytecode.DecodeNum(insns, pc)
				jmpAddr = pc + int(jmpLen)
			}

			var nNames uint64
			nNames, pc = bytecode.DecodeNum(insns, pc)

			if nNames == 0 {
				node = peek()
				break
			}

			var fullName string
			for i := uint64(0); i < nNames; i++ {
				var nameLen uint64
				nameLen, pc = bytecode.DecodeNum(insns, pc)
				name := string(insns[pc : pc+int(nameLen)])
				pc += int(nameLen)

				if i > 0 {
					fullName += "."
				}
				fullName += name

				if i == 0 {
					node = nil
					for j := len(nodeStack) - 1; j >= 0; j-- {
						node = provider.ChildByName(nodeStack[j], name)
						if node != nil {
							break
						}
					}
				} else if node != nil {
					node = provider.ChildByName(node, name)
				}
			}

			if opcode == bytecode.OpResolve && node == nil {
				provider.Missing(fullName)
			}

		case bytecode.OpOutVerbatim, bytecode.OpOutEscaped:
			if node != nil {
				sink := renderer.OutEscaped
				if opcode == bytecode.OpOutVerbatim {
					sink = renderer.OutVerbatim
				}
				if err := provider.Dump(node, sink); err != nil {
					return err
				}
			}

		case bytecode.OpEnter:
			if node != nil {
				push(node)
				node = provider.ChildByIndex(node, 0)
				if node != nil {
					push(node)
					pushIdx(0)
				} else {
					pop()
				}
			}
			if node == nil {
				pc = jmpAddr
			}

		case bytecode.OpLeave:
			jmpBase := pc
			var jmpLen uint64
			jmpLen, pc = bytecode.DecodeNum(insns, pc)
			index := popIdx()

			pop()
			node = provider.ChildByIndex(peek(), index+1)
			if node != nil {
				push(node)
				pushIdx(index + 1)
				pc = jmpBase - int(jmpLen)
			} else {
				pop()
			}

		case bytecode.OpEnterInv:
			if node == nil || provider.ChildByIndex(node, 0) == nil {
				// Falsy: fall through, run the body.
			} else {
				pc = jmpAddr
			}

		case bytecode.OpPartial:
			var nameLen uint64
			nameLen, pc = bytecode.DecodeNum(insns, pc)
			name := string(insns[pc : pc+int(nameLen)])
			pc += int(nameLen)

			var indentLen uint64
			indentLen, pc = bytecode.DecodeNum(insns, pc)
			indent := insns[pc : pc+int(indentLen)]
			pc += int(indentLen)

			if partial, ok := provider.GetPartial(name); ok {
				partialStack = append(partialStack, partialFrame{
					code:      insns,
					returnPC:  pc,
					indentLen: int(indentLen),
				})
				indentBuf = append(indentBuf, indent...)
				insns = partial
				pc = 0
			}

		case bytecode.OpIndent:
			if err := renderer.OutVerbatim(indentBuf); err != nil {
				return err
			}

		case bytecode.OpExit:
			if len(partialStack) == 0 {
				return nil
			}
			top := partialStack[len(partialStack)-1]
			partialStack = partialStack[:len(partialStack)-1]
			insns = top.code
			pc = top.returnPC
			indentBuf = indentBuf[:len(indentBuf)-top.indentLen]
		}
	}
}
