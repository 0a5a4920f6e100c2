package elfsym

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/coral-mesh/mcudbg/internal/safe"
)

var (
	// ErrNotELF32LE is returned for buffers that are not 32-bit little-endian ELF.
	ErrNotELF32LE = errors.New("not a 32-bit little-endian ELF image")

	// ErrMalformedImage is returned when a header points outside the buffer or a
	// table is internally inconsistent.
	ErrMalformedImage = errors.New("malformed ELF image")

	// ErrNoSymbolTable is returned for stripped images.
	ErrNoSymbolTable = errors.New("image has no .symtab section")
)

const (
	ehdrSize    = 52
	shdrMinSize = 40
	symMinSize  = 16
)

var le = binary.LittleEndian

// section is the part of an ELF32 section header the reader needs.
type section struct {
	name    uint32
	typ     elf.SectionType
	offset  uint32
	size    uint32
	link    uint32
	entsize uint32
}

// Read returns the symbols of data, or an empty slice when data is not a
// readable 32-bit little-endian ELF image. It never fails.
func Read(data []byte) []Symbol {
	syms, err := Parse(data)
	if err != nil {
		return []Symbol{}
	}
	return syms
}

// ReadFile reads the image at path. Only I/O failures are reported; content
// problems yield an empty slice like Read.
func ReadFile(path string) ([]Symbol, error) {
	data, err := safe.ReadFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", path, err)
	}
	return Read(data), nil
}

// Parse extracts function and object symbols from data.
func Parse(data []byte) ([]Symbol, error) {
	if len(data) < ehdrSize || !bytes.Equal(data[:4], []byte(elf.ELFMAG)) {
		return nil, ErrNotELF32LE
	}
	if elf.Class(data[elf.EI_CLASS]) != elf.ELFCLASS32 || elf.Data(data[elf.EI_DATA]) != elf.ELFDATA2LSB {
		return nil, ErrNotELF32LE
	}

	machine := elf.Machine(le.Uint16(data[18:]))
	shoff := le.Uint32(data[32:])
	shentsize := uint32(le.Uint16(data[46:]))
	shnum := uint32(le.Uint16(data[48:]))
	shstrndx := uint32(le.Uint16(data[50:]))

	if shoff == 0 || shnum == 0 {
		return nil, ErrNoSymbolTable
	}
	if shentsize < shdrMinSize {
		return nil, fmt.Errorf("%w: section header entry size %d", ErrMalformedImage, shentsize)
	}
	if !inBounds(data, uint64(shoff), uint64(shentsize)*uint64(shnum)) {
		return nil, fmt.Errorf("%w: section header table outside image", ErrMalformedImage)
	}
	if shstrndx >= shnum {
		return nil, fmt.Errorf("%w: section name table index %d of %d", ErrMalformedImage, shstrndx, shnum)
	}

	sections := make([]section, shnum)
	for i := uint32(0); i < shnum; i++ {
		h := data[shoff+i*shentsize:]
		sections[i] = section{
			name:    le.Uint32(h[0:]),
			typ:     elf.SectionType(le.Uint32(h[4:])),
			offset:  le.Uint32(h[16:]),
			size:    le.Uint32(h[20:]),
			link:    le.Uint32(h[24:]),
			entsize: le.Uint32(h[36:]),
		}
	}

	shstr := sections[shstrndx]
	if !inBounds(data, uint64(shstr.offset), uint64(shstr.size)) {
		return nil, fmt.Errorf("%w: section name table outside image", ErrMalformedImage)
	}
	shstrtab := data[shstr.offset : shstr.offset+shstr.size]

	symtab := -1
	for i, s := range sections {
		if name, ok := cstring(shstrtab, s.name); ok && name == ".symtab" {
			symtab = i
			break
		}
	}
	if symtab < 0 {
		// Some linkers rename sections; the type is authoritative.
		for i, s := range sections {
			if s.typ == elf.SHT_SYMTAB {
				symtab = i
				break
			}
		}
	}
	if symtab < 0 {
		return nil, ErrNoSymbolTable
	}

	st := sections[symtab]
	if st.link >= shnum {
		return nil, fmt.Errorf("%w: symbol string table index %d", ErrMalformedImage, st.link)
	}
	str := sections[st.link]
	if !inBounds(data, uint64(st.offset), uint64(st.size)) {
		return nil, fmt.Errorf("%w: symbol table outside image", ErrMalformedImage)
	}
	if !inBounds(data, uint64(str.offset), uint64(str.size)) {
		return nil, fmt.Errorf("%w: symbol string table outside image", ErrMalformedImage)
	}
	strtab := data[str.offset : str.offset+str.size]

	entsize := st.entsize
	if entsize < symMinSize {
		entsize = symMinSize
	}

	var syms []Symbol
	count := st.size / entsize
	for i := uint32(1); i < count; i++ { // entry 0 is reserved
		e := data[st.offset+i*entsize:]
		nameOff := le.Uint32(e[0:])
		value := le.Uint32(e[4:])
		size := le.Uint32(e[8:])
		info := e[12]
		shndx := elf.SectionIndex(le.Uint16(e[14:]))

		if shndx == elf.SHN_UNDEF || value == 0 {
			continue
		}

		var kind Kind
		switch elf.ST_TYPE(info) {
		case elf.STT_FUNC:
			kind = KindFunction
		case elf.STT_OBJECT:
			kind = KindVariable
		default:
			continue
		}

		name, ok := cstring(strtab, nameOff)
		if !ok || isInternal(name) {
			continue
		}

		scope := ScopeGlobal
		if elf.ST_BIND(info) == elf.STB_LOCAL {
			scope = ScopeLocal
		}

		// Thumb function symbols carry the interworking bit.
		if kind == KindFunction && machine == elf.EM_ARM {
			value &^= 1
		}

		syms = append(syms, Symbol{
			Name:    name,
			Address: value,
			Size:    size,
			Scope:   scope,
			Kind:    kind,
		})
	}

	if syms == nil {
		syms = []Symbol{}
	}
	return syms, nil
}

// Functions returns the function symbols of syms sorted by address.
func Functions(syms []Symbol) []Symbol {
	return filter(syms, KindFunction)
}

// Variables returns the data symbols of syms sorted by address.
func Variables(syms []Symbol) []Symbol {
	return filter(syms, KindVariable)
}

// Lookup returns the symbol containing addr, preferring functions when a data
// symbol overlaps.
func Lookup(syms []Symbol, addr uint32) (Symbol, bool) {
	var found Symbol
	ok := false
	for _, s := range syms {
		if !s.Contains(addr) {
			continue
		}
		if !ok || (s.Kind == KindFunction && found.Kind != KindFunction) {
			found, ok = s, true
		}
	}
	return found, ok
}

func filter(syms []Symbol, kind Kind) []Symbol {
	out := make([]Symbol, 0, len(syms))
	for _, s := range syms {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// isInternal reports names emitted by the toolchain rather than the user:
// ARM mapping symbols ($t, $d, $a), local labels (.L...) and reserved names (__...).
func isInternal(name string) bool {
	return name == "" ||
		strings.HasPrefix(name, "$") ||
		strings.HasPrefix(name, ".") ||
		strings.HasPrefix(name, "__")
}

func inBounds(data []byte, off, size uint64) bool {
	return off <= uint64(len(data)) && size <= uint64(len(data))-off
}

// cstring returns the NUL-terminated string at off in tab.
func cstring(tab []byte, off uint32) (string, bool) {
	if uint64(off) >= uint64(len(tab)) {
		return "", false
	}
	end := bytes.IndexByte(tab[off:], 0)
	if end < 0 {
		return "", false
	}
	return string(tab[off : off+uint32(end)]), true
}
