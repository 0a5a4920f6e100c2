package addrmap

import (
	"fmt"
	"strconv"
	"strings"
)

// Location ties a source line to the address of its first instruction.
type Location struct {
	File     string `json:"file" table:"FILE"`
	Line     int    `json:"line" table:"LINE"`
	Address  string `json:"address" table:"ADDRESS"`
	Function string `json:"function,omitempty" table:"FUNCTION"`
}

// Declaration is a breakpoint as the IDE declares it: either a source line or a
// function name.
type Declaration struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Function string `json:"function,omitempty"`
}

// IsFunction reports whether the declaration names a function.
func (d Declaration) IsFunction() bool {
	return d.Function != ""
}

// Function is a labelled function entry point in the listing.
type Function struct {
	Name    string `json:"name" table:"NAME"`
	Address string `json:"address" table:"ADDRESS"`
}

// Variable is a data object found in the listing's symbol table section.
type Variable struct {
	Name    string `json:"name" table:"NAME"`
	Address string `json:"address" table:"ADDRESS"`
	Size    uint32 `json:"size" table:"SIZE"`
	Section string `json:"section" table:"SECTION"`
	// Static is true for file-local objects.
	Static bool `json:"static" table:"STATIC"`
}

// ParseDeclaration reads "file:line" or a bare function name. Windows drive
// letters are fine since only the last colon separates the line.
func ParseDeclaration(s string) (Declaration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Declaration{}, fmt.Errorf("empty location")
	}

	if i := strings.LastIndex(s, ":"); i >= 0 {
		line, err := strconv.Atoi(s[i+1:])
		if err != nil || line <= 0 || i == 0 {
			return Declaration{}, fmt.Errorf("invalid location %q: want file:line or a function name", s)
		}
		return Declaration{File: s[:i], Line: line}, nil
	}

	if strings.ContainsAny(s, `/\ `) {
		return Declaration{}, fmt.Errorf("invalid function name %q", s)
	}
	return Declaration{Function: s}, nil
}
