// Package elfsym extracts function and variable symbols from a linked 32-bit
// little-endian ELF image by reading its section and symbol tables straight
// from the file bytes.
//
// The reader is deliberately forgiving: symbol data only adds context to a
// debug session, so a truncated or inconsistent image yields no symbols rather
// than an error the session has to handle. Parse exposes the reason for
// callers that want it; Read and ReadFile swallow it.
//
// # Usage
//
//	syms, err := elfsym.ReadFile("build/firmware.elf")
//	if err != nil {
//		return err // I/O only
//	}
//	for _, s := range elfsym.Variables(syms) {
//		fmt.Printf("%s @ %s (%d bytes)\n", s.Name, s.Hex(), s.Size)
//	}
package elfsym
