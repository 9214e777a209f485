// Package asm assembles RV32I/M assembly text into the text and data images
// the emulator and pipeline consume.
package asm

import "strings"

// tokenKind classifies one lexed token, mirroring the token classes the
// original tokenizer split a line into (opcode, register, immediate,
// memory-operand, label, directive).
type tokenKind int

const (
	tokUnknown tokenKind = iota
	tokMnemonic
	tokDirective
	tokRegister
	tokImmediate
	tokSymbol
)

type token struct {
	kind tokenKind
	text string
}

// sourceLine is one non-empty, non-comment line, split into an optional
// label, the mnemonic or directive name, and its raw operand tokens.
type sourceLine struct {
	lineNo int
	label  string
	op     string
	args   []token
}

// stripComment removes a trailing "#" or "//" comment, matching the two
// comment styles the source tokenizer recognized.
func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	return line
}

// tokenizeLine strips any trailing comment from one raw line, then splits it
// into a label (if any), an opcode/directive name, and classified argument
// tokens. A
// "offset(reg)" memory operand lexes as two tokens, immediate then
// register, exactly like the source tokenizer's MEMORY handling.
func tokenizeLine(raw string, lineNo int) (sourceLine, bool) {
	line := strings.TrimSpace(stripComment(raw))
	if line == "" {
		return sourceLine{}, false
	}

	label := ""
	if colon := strings.IndexByte(line, ':'); colon >= 0 {
		label = strings.TrimSpace(line[:colon])
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return sourceLine{lineNo: lineNo, label: label}, true
		}
	}

	fields := splitFields(line)
	if len(fields) == 0 {
		return sourceLine{lineNo: lineNo, label: label}, label != ""
	}

	sl := sourceLine{lineNo: lineNo, label: label, op: fields[0]}
	for _, f := range fields[1:] {
		sl.args = append(sl.args, classifyOperand(f)...)
	}
	return sl, true
}

// splitFields breaks the operand portion of a line on whitespace and
// commas, the way an RV32 assembler's operand list is written
// ("add x1, x2, x3").
func splitFields(line string) []string {
	replaced := strings.Map(func(r rune) rune {
		if r == ',' {
			return ' '
		}
		return r
	}, line)
	return strings.Fields(replaced)
}

// classifyOperand tags a single operand token, expanding "imm(reg)" memory
// operands into their two constituent tokens.
func classifyOperand(f string) []token {
	if open := strings.IndexByte(f, '('); open >= 0 && strings.HasSuffix(f, ")") {
		offset := f[:open]
		reg := f[open+1 : len(f)-1]
		return []token{
			{kind: tokImmediate, text: offset},
			{kind: tokRegister, text: reg},
		}
	}
	if isRegisterName(f) {
		return []token{{kind: tokRegister, text: f}}
	}
	if isImmediateLiteral(f) {
		return []token{{kind: tokImmediate, text: f}}
	}
	return []token{{kind: tokSymbol, text: f}}
}

// isRegisterName reports whether tok names one of x0-x31, the only register
// syntax the source's lexer accepted (no ABI aliases).
func isRegisterName(tok string) bool {
	if len(tok) < 2 || tok[0] != 'x' {
		return false
	}
	for _, r := range tok[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	n := 0
	for _, r := range tok[1:] {
		n = n*10 + int(r-'0')
	}
	return n <= 31
}

// isImmediateLiteral reports whether tok is a decimal or 0x-hex integer
// literal, optionally negative.
func isImmediateLiteral(tok string) bool {
	if tok == "" {
		return false
	}
	if tok[0] == '-' {
		tok = tok[1:]
	}
	if tok == "" {
		return false
	}
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
		tok = tok[2:]
		if tok == "" {
			return false
		}
		for _, r := range tok {
			if !isHexDigit(r) {
				return false
			}
		}
		return true
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
