package testutil

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// ELFSymbol describes one symbol-table entry for BuildELF32.
type ELFSymbol struct {
	Name    string
	Value   uint32
	Size    uint32
	Type    elf.SymType
	Bind    elf.SymBind
	Section uint16 // 0 means SHN_UNDEF; defaults to 1 when left zero and Undefined is false
	// Undefined forces SHN_UNDEF.
	Undefined bool
}

// BuildELF32 returns a minimal little-endian ELF32 image holding a .text
// placeholder, .symtab, .strtab and .shstrtab. It is enough for symbol-table
// readers; there are no program headers.
func BuildELF32(machine elf.Machine, symbols []ELFSymbol) []byte {
	const (
		ehsize    = 52
		shentsize = 40
		symsize   = 16
	)

	// .shstrtab
	shstr := []byte{0}
	nameOff := func(s string) uint32 {
		off := uint32(len(shstr))
		shstr = append(shstr, s...)
		shstr = append(shstr, 0)
		return off
	}
	textName := nameOff(".text")
	symtabName := nameOff(".symtab")
	strtabName := nameOff(".strtab")
	shstrName := nameOff(".shstrtab")

	// .strtab and .symtab
	strtab := []byte{0}
	var symtab bytes.Buffer
	symtab.Write(make([]byte, symsize)) // index 0 is the null symbol
	for _, s := range symbols {
		off := uint32(len(strtab))
		strtab = append(strtab, s.Name...)
		strtab = append(strtab, 0)

		shndx := s.Section
		if s.Undefined {
			shndx = uint16(elf.SHN_UNDEF)
		} else if shndx == 0 {
			shndx = 1
		}

		entry := make([]byte, symsize)
		binary.LittleEndian.PutUint32(entry[0:], off)
		binary.LittleEndian.PutUint32(entry[4:], s.Value)
		binary.LittleEndian.PutUint32(entry[8:], s.Size)
		entry[12] = elf.ST_INFO(s.Bind, s.Type)
		binary.LittleEndian.PutUint16(entry[14:], shndx)
		symtab.Write(entry)
	}

	text := []byte{0x00, 0xbf, 0x00, 0xbf} // two Thumb NOPs

	// Layout: header | .text | .symtab | .strtab | .shstrtab | section headers
	textOff := uint32(ehsize)
	symOff := textOff + uint32(len(text))
	strOff := symOff + uint32(symtab.Len())
	shstrOff := strOff + uint32(len(strtab))
	shOff := shstrOff + uint32(len(shstr))

	var out bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS32), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)}
	out.Write(ident[:])
	le := func(v any) { _ = binary.Write(&out, binary.LittleEndian, v) }
	le(uint16(elf.ET_EXEC))
	le(uint16(machine))
	le(uint32(elf.EV_CURRENT))
	le(uint32(0)) // entry
	le(uint32(0)) // phoff
	le(shOff)
	le(uint32(0)) // flags
	le(uint16(ehsize))
	le(uint16(0)) // phentsize
	le(uint16(0)) // phnum
	le(uint16(shentsize))
	le(uint16(5)) // shnum
	le(uint16(4)) // shstrndx

	out.Write(text)
	out.Write(symtab.Bytes())
	out.Write(strtab)
	out.Write(shstr)

	section := func(name, typ, flags, off, size, link, info, entsize uint32) {
		le(name)
		le(typ)
		le(flags)
		le(uint32(0)) // addr
		le(off)
		le(size)
		le(link)
		le(info)
		le(uint32(1)) // addralign
		le(entsize)
	}
	section(0, 0, 0, 0, 0, 0, 0, 0)
	section(textName, uint32(elf.SHT_PROGBITS), uint32(elf.SHF_ALLOC|elf.SHF_EXECINSTR), textOff, uint32(len(text)), 0, 0, 0)
	section(symtabName, uint32(elf.SHT_SYMTAB), 0, symOff, uint32(symtab.Len()), 3, 1, symsize)
	section(strtabName, uint32(elf.SHT_STRTAB), 0, strOff, uint32(len(strtab)), 0, 0, 0)
	section(shstrName, uint32(elf.SHT_STRTAB), 0, shstrOff, uint32(len(shstr)), 0, 0, 0)

	return out.Bytes()
}
