package probe

import (
	"bufio"
	"regexp"
	"strings"
)

// RegisterInfo is one CPU register as reported by the probe tool.
type RegisterInfo struct {
	Name        string `json:"name" table:"NAME"`
	Value       string `json:"value" table:"VALUE"`
	Description string `json:"description,omitempty" table:"DESCRIPTION"`
}

// MemoryReadResult is the outcome of a memory read.
type MemoryReadResult struct {
	Address string `json:"address" table:"ADDRESS"`
	Data    string `json:"data" table:"DATA"`
	Size    int    `json:"size" table:"SIZE"`
}

// NAME: 0x00000001, NAME: 42 or NAME: 2a, optionally followed by an
// annotation such as "(42)" or "<main+4>".
var (
	registerLineRe  = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_]*)\s*:\s*(` + registerValue + `)` + registerSuffix + `$`)
	registerValueRe = regexp.MustCompile(`^\s*(` + registerValue + `)` + registerSuffix + `$`)
)

const (
	registerValue  = `0[xX][0-9a-fA-F]+|[0-9a-fA-F]+`
	registerSuffix = `(?:\s+[(\[<#].*?)?\s*`
)

// ParseRegisters extracts "NAME: value" lines whose value is a number. Other
// lines, including probe status chatter, are ignored.
func ParseRegisters(output string) []RegisterInfo {
	regs := []RegisterInfo{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := registerLineRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		regs = append(regs, RegisterInfo{
			Name:        m[1],
			Value:       m[2],
			Description: DescribeRegister(m[1]),
		})
	}
	return regs
}

// ParseRegister finds name in the output of a single-register read. A bare
// value with no name prefix is accepted as the register's value.
func ParseRegister(output, name string) (RegisterInfo, bool) {
	for _, r := range ParseRegisters(output) {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}

	m := registerValueRe.FindStringSubmatch(strings.TrimSpace(output))
	if m == nil {
		return RegisterInfo{}, false
	}
	return RegisterInfo{Name: name, Value: m[1], Description: DescribeRegister(name)}, true
}

// ParseMemory interprets the output of a memory read at address. The data is
// the text after the first ": " (or the whole output if there is none); the
// size is the number of bytes its hex digits encode, or 4 if that cannot be
// determined.
func ParseMemory(address, output string) MemoryReadResult {
	line := ""
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if l := strings.TrimSpace(scanner.Text()); l != "" {
			line = l
			break
		}
	}

	data := line
	if i := strings.Index(line, ": "); i >= 0 {
		data = strings.TrimSpace(line[i+2:])
	}

	return MemoryReadResult{
		Address: address,
		Data:    data,
		Size:    dataSize(data),
	}
}

func dataSize(data string) int {
	digits := 0
	for _, field := range strings.Fields(data) {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		for _, c := range field {
			if !isHexDigit(c) {
				return 4
			}
		}
		digits += len(field)
	}
	if digits < 2 {
		return 4
	}
	return digits / 2
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
