package addrmap

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// 00000130 <main>:   or   00000130 main:
	labelRe = regexp.MustCompile(`^([0-9a-fA-F]{8,16})\s+<?([^<>\s][^<>]*?)>?:\s*$`)

	// ; src/main.c:10   optionally followed by an objdump discriminator.
	sourceRe = regexp.MustCompile(`^\s*;\s*(\S.*?):(\d+)(?:\s+\(discriminator \d+\))?\s*$`)

	// ; 12   continues the file of the previous source comment.
	sourceLineRe = regexp.MustCompile(`^\s*;\s*(\d+)\s*$`)

	//   132:	f000 f89f 	bl	274 <foo>
	instrRe = regexp.MustCompile(`^\s*([0-9a-fA-F]+):\s+(.*)$`)

	hexBytesRe = regexp.MustCompile(`^[0-9a-fA-F]{2,8}(?: [0-9a-fA-F]{2,8})*$`)
	columnsRe  = regexp.MustCompile(`\t+|\s{2,}`)

	// 20000000 g     O .bss	00000004 counter
	symtabRe = regexp.MustCompile(`^([0-9a-fA-F]{8,16}) (.{7}) (\S+)\s+([0-9a-fA-F]{8,16})\s+(\S+)\s*$`)
)

type lineKind int

const (
	kindOther lineKind = iota
	kindLabel
	kindSource
	kindInstruction
	kindSymtab
)

// parsedLine is one classified listing line.
type parsedLine struct {
	kind lineKind

	// kindLabel
	name string

	// kindSource; file is empty for a line-only comment.
	file string
	line int

	// kindLabel, kindInstruction, kindSymtab
	address string

	// kindInstruction
	branch bool

	// kindSymtab
	variable *Variable
}

func classify(raw string) parsedLine {
	line := strings.TrimRight(raw, "\r\n")
	if strings.TrimSpace(line) == "" {
		return parsedLine{}
	}

	if m := labelRe.FindStringSubmatch(line); m != nil {
		return parsedLine{kind: kindLabel, address: NormalizeAddress(m[1]), name: strings.TrimSpace(m[2])}
	}
	if m := sourceRe.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil || n <= 0 {
			return parsedLine{}
		}
		return parsedLine{kind: kindSource, file: NormalizePath(m[1]), line: n}
	}
	if m := sourceLineRe.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return parsedLine{}
		}
		return parsedLine{kind: kindSource, line: n}
	}
	if m := symtabRe.FindStringSubmatch(line); m != nil {
		if v, ok := parseSymtab(m); ok {
			return parsedLine{kind: kindSymtab, address: v.Address, variable: &v}
		}
		return parsedLine{}
	}
	if m := instrRe.FindStringSubmatch(line); m != nil {
		branch, ok := parseInstruction(m[2])
		if !ok {
			return parsedLine{}
		}
		return parsedLine{kind: kindInstruction, address: NormalizeAddress(m[1]), branch: branch}
	}
	return parsedLine{}
}

// parseInstruction splits "<hex bytes><sep><mnemonic> <operands>" and reports
// whether the mnemonic transfers control. Listings normally separate the
// byte column with a tab or a run of spaces; single-spaced lines fall back to
// reading byte groups token by token.
func parseInstruction(rest string) (branch bool, ok bool) {
	rest = strings.TrimSpace(rest)
	cols := columnsRe.Split(rest, -1)
	if len(cols) >= 2 && hexBytesRe.MatchString(cols[0]) {
		fields := strings.Fields(cols[1])
		if len(fields) == 0 {
			return false, true
		}
		return isBranch(fields[0]), true
	}

	fields := strings.Fields(rest)
	n := 0
	for n < len(fields) && isByteGroup(fields[n]) {
		n++
	}
	if n == 0 {
		return false, false
	}
	if n == len(fields) {
		// Continuation of a long encoding, still an addressable instruction.
		return false, true
	}
	return isBranch(fields[n]), true
}

// isByteGroup reports whether tok is one encoding group: 2, 4 or 8 hex digits.
func isByteGroup(tok string) bool {
	switch len(tok) {
	case 2, 4, 8:
	default:
		return false
	}
	_, err := strconv.ParseUint(tok, 16, 32)
	return err == nil
}

var branchMnemonics = map[string]bool{
	"b": true, "bl": true, "blx": true, "bx": true,
	"cbz": true, "cbnz": true, "tbb": true, "tbh": true,
	"call": true, "jmp": true, "j": true, "jal": true, "jalr": true, "jr": true,
	"bltu": true, "bgeu": true, "beqz": true, "bnez": true,
}

var conditionCodes = map[string]bool{
	"eq": true, "ne": true, "cs": true, "cc": true, "hs": true, "lo": true,
	"mi": true, "pl": true, "vs": true, "vc": true, "hi": true, "ls": true,
	"ge": true, "lt": true, "gt": true, "le": true, "al": true,
}

func isBranch(mnemonic string) bool {
	m := strings.ToLower(mnemonic)
	// Width qualifiers: b.n, bl.w, beq.n
	if i := strings.IndexByte(m, '.'); i > 0 {
		m = m[:i]
	}
	if branchMnemonics[m] {
		return true
	}
	// Conditional forms: beq, bne, blne, bxeq
	for _, base := range []string{"bl", "bx", "b"} {
		if strings.HasPrefix(m, base) && conditionCodes[m[len(base):]] {
			return true
		}
	}
	return false
}

func parseSymtab(m []string) (Variable, bool) {
	flags, section, name := m[2], m[3], m[5]
	// flags is objdump's fixed 7-column field; column 6 is the kind.
	if len(flags) != 7 || flags[6] != 'O' {
		return Variable{}, false
	}
	if section == "*UND*" || section == "*ABS*" || isInternalName(name) {
		return Variable{}, false
	}
	size, err := strconv.ParseUint(m[4], 16, 32)
	if err != nil {
		return Variable{}, false
	}
	addr := NormalizeAddress(m[1])
	if addr == "0" {
		return Variable{}, false
	}
	return Variable{
		Name:    name,
		Address: "0x" + addr,
		Size:    uint32(size),
		Section: section,
		Static:  flags[0] == 'l',
	}, true
}

func isInternalName(name string) bool {
	return name == "" ||
		strings.HasPrefix(name, "$") ||
		strings.HasPrefix(name, ".") ||
		strings.HasPrefix(name, "__")
}
