package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/k0kubun/pp/v3"

	"github.com/sarchlab/m2sim/emu"
)

// segment names the region a line's directive or instruction belongs to.
type segment int

const (
	segText segment = iota
	segData
)

// Option configures Assemble.
type Option func(*assembler)

// WithSymbolTrace dumps the resolved symbol table to stdout with
// github.com/k0kubun/pp/v3 once assembly succeeds, the same debug aid the
// two-pass assembler this package is grounded on prints its intermediate
// representation with.
func WithSymbolTrace(enabled bool) Option {
	return func(a *assembler) { a.trace = enabled }
}

type pendingInstruction struct {
	line sourceLine
	addr uint32
}

type assembler struct {
	symbols map[string]uint32
	pending []pendingInstruction
	trace   bool

	textAddr uint32
	dataAddr uint32
	segment  segment
}

// Assemble two-pass-assembles source into mem's text and data images: the
// first pass walks every line to resolve labels and lay out data
// directives, the second encodes each instruction now that forward label
// references are resolvable.
func Assemble(mem *emu.Memory, source string, opts ...Option) error {
	a := &assembler{
		symbols:  make(map[string]uint32),
		textAddr: emu.TextSegmentBase,
		dataAddr: emu.DataSegmentBase,
		segment:  segText,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.firstPass(mem, source); err != nil {
		return err
	}
	if err := a.secondPass(mem); err != nil {
		return err
	}

	if a.trace {
		pp.Println(a.symbols)
	}
	return nil
}

func (a *assembler) firstPass(mem *emu.Memory, source string) error {
	for i, raw := range strings.Split(source, "\n") {
		lineNo := i + 1
		sl, ok := tokenizeLine(raw, lineNo)
		if !ok {
			continue
		}

		if sl.label != "" {
			a.symbols[sl.label] = a.currentAddr()
		}
		if sl.op == "" {
			continue
		}

		if isDirective(sl.op) {
			if err := a.applyDirective(mem, sl); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}

		a.pending = append(a.pending, pendingInstruction{line: sl, addr: a.textAddr})
		a.textAddr += emu.InstructionWidth
	}
	return nil
}

func (a *assembler) secondPass(mem *emu.Memory) error {
	for _, p := range a.pending {
		word, disasm, err := encodeInstruction(p.line, p.addr, a.symbols)
		if err != nil {
			return fmt.Errorf("line %d: %w", p.line.lineNo, err)
		}
		mem.SetText(p.addr, word, disasm)
	}
	return nil
}

func (a *assembler) currentAddr() uint32 {
	if a.segment == segText {
		return a.textAddr
	}
	return a.dataAddr
}

func isDirective(op string) bool {
	switch op {
	case ".text", ".data", ".word", ".byte", ".space":
		return true
	default:
		return false
	}
}

func (a *assembler) applyDirective(mem *emu.Memory, sl sourceLine) error {
	switch sl.op {
	case ".text":
		a.segment = segText
	case ".data":
		a.segment = segData
	case ".word":
		val, err := requireImmediate(sl, 0)
		if err != nil {
			return err
		}
		for shift := 0; shift < 32; shift += 8 {
			mem.SetByte(a.dataAddr, uint8(uint32(val)>>shift))
			a.dataAddr++
		}
	case ".byte":
		val, err := requireImmediate(sl, 0)
		if err != nil {
			return err
		}
		mem.SetByte(a.dataAddr, uint8(val))
		a.dataAddr++
	case ".space":
		n, err := requireImmediate(sl, 0)
		if err != nil {
			return err
		}
		for i := int32(0); i < n; i++ {
			mem.SetByte(a.dataAddr, 0)
			a.dataAddr++
		}
	}
	return nil
}

func requireImmediate(sl sourceLine, index int) (int32, error) {
	if index >= len(sl.args) {
		return 0, fmt.Errorf("%s: missing argument %d", sl.op, index)
	}
	arg := sl.args[index]
	if arg.kind != tokImmediate {
		return 0, fmt.Errorf("%s: expected an immediate, got %q", sl.op, arg.text)
	}
	return parseImmediate(arg.text)
}

// parseImmediate parses a decimal or 0x-hex literal, using strconv's
// base-0 auto-detection instead of the source's per-base regexp dispatch —
// stdlib already does exactly that job.
func parseImmediate(text string) (int32, error) {
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid immediate %q: %w", text, err)
	}
	return int32(v), nil
}

func parseRegister(tok token) (uint8, error) {
	if tok.kind != tokRegister {
		return 0, fmt.Errorf("expected a register, got %q", tok.text)
	}
	n, err := strconv.Atoi(tok.text[1:])
	if err != nil || n < 0 || n > 31 {
		return 0, fmt.Errorf("invalid register %q", tok.text)
	}
	return uint8(n), nil
}
