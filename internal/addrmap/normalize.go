package addrmap

import (
	"path"
	"strconv"
	"strings"
)

// NormalizeAddress reduces a hex address to its canonical lookup form: no 0x
// prefix, lower case, no leading zeros. "0x000001A0", "1a0" and "0X1a0" all
// become "1a0"; an all-zero address becomes "0".
func NormalizeAddress(addr string) string {
	s := strings.TrimSpace(addr)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	s = strings.TrimLeft(strings.ToLower(s), "0")
	if s == "" {
		return "0"
	}
	return s
}

// FormatAddress returns addr in the 0x-prefixed canonical form the probe tool accepts.
func FormatAddress(addr string) string {
	return "0x" + NormalizeAddress(addr)
}

// ParseAddress parses a hex address in any accepted spelling.
func ParseAddress(addr string) (uint64, error) {
	return strconv.ParseUint(NormalizeAddress(addr), 16, 64)
}

// NormalizePath makes Windows and Unix spellings of the same source path
// compare equal. Separators become '/' and the path is cleaned; case is kept.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = path.Clean(strings.ReplaceAll(p, `\`, "/"))
	return strings.TrimPrefix(p, "./")
}

// LineKey is the forward-index key for a source line.
func LineKey(file string, line int) string {
	return NormalizePath(file) + ":" + strconv.Itoa(line)
}
