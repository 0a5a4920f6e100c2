package elfsym

import "fmt"

// Kind classifies a symbol.
type Kind string

const (
	KindFunction Kind = "function"
	KindVariable Kind = "variable"
)

// Scope is the symbol binding as seen by a source-level debugger.
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeGlobal Scope = "global"
)

// Symbol is one function or data object from an image's symbol table.
type Symbol struct {
	Name    string `json:"name" table:"NAME"`
	Address uint32 `json:"address" table:"ADDRESS,hex"`
	Size    uint32 `json:"size" table:"SIZE"`
	Scope   Scope  `json:"scope" table:"SCOPE"`
	Kind    Kind   `json:"kind" table:"KIND"`
}

// Hex returns the address in the 0x-prefixed lower-case form used by the probe tool.
func (s Symbol) Hex() string {
	return fmt.Sprintf("0x%x", s.Address)
}

// Contains reports whether addr falls inside the symbol. Zero-sized symbols only
// contain their own address.
func (s Symbol) Contains(addr uint32) bool {
	if s.Size == 0 {
		return addr == s.Address
	}
	return addr >= s.Address && addr-s.Address < s.Size
}
