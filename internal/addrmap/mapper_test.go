package addrmap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleListing = `
firmware.elf:     file format elf32-littlearm

SYMBOL TABLE:
00000130 g     F .text	00000028 main
20000000 g     O .bss	00000004 counter
20000004 l     O .bss	00000001 state
20000008 l     O .bss	00000004 $d
00000000         *UND*	00000000 printf

Disassembly of section .text:

00000130 <main>:
; src/main.c:8
     130:	b580      	push	{r7, lr}
; src/main.c:10
     132:	f000 f89f 	bl	274 <helper>
; src/main.c:11
     136:	2001      	movs	r0, #1
     138:	4b02      	ldr	r3, [pc, #8]
     13a:	d1fe      	bne.n	13a <main+0xa>
; 12
     13c:	bd80      	pop	{r7, pc}

00000274 <helper>:
; src\util\helper.c:3
     274:	4770      	bx	lr
; src/main.c:10
     276:	bf00      	nop
`

func parseSample(t *testing.T) *Mapper {
	t.Helper()
	m, err := Parse(strings.NewReader(sampleListing))
	require.NoError(t, err)
	require.True(t, m.Loaded())
	return m
}

func TestResolve_BranchInstructionLine(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"aligned columns", "  132: f000 f89f    bl    0x274 <foo>"},
		{"objdump tabs", "     132:\tf000 f89f \tbl\t274 <foo>"},
		{"single spaces", "  132: f000 f89f bl 0x274 <foo>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(strings.NewReader("; main.c:10\n" + tt.line + "\n"))
			require.NoError(t, err)

			loc, ok := m.Resolve("main.c", 10)
			require.True(t, ok)
			assert.Equal(t, "0x132", loc.Address)
			assert.Equal(t, "main.c", loc.File)
			assert.Equal(t, 10, loc.Line)
		})
	}
}

func TestResolve_SingleSpacedPrefersBranch(t *testing.T) {
	listing := "; main.c:10\n  130: b580 push {r7, lr}\n  132: f000 f89f bl 0x274 <foo>\n"
	m, err := Parse(strings.NewReader(listing))
	require.NoError(t, err)

	loc, ok := m.Resolve("main.c", 10)
	require.True(t, ok)
	assert.Equal(t, "0x132", loc.Address)
}

func TestResolve_Sample(t *testing.T) {
	m := parseSample(t)

	tests := []struct {
		name string
		file string
		line int
		want string
		fn   string
	}{
		{"first instruction", "src/main.c", 8, "0x130", "main"},
		{"call", "src/main.c", 10, "0x132", "main"},
		{"branch preferred over earlier instruction", "src/main.c", 11, "0x13a", "main"},
		{"line-only comment keeps current file", "src/main.c", 12, "0x13c", "main"},
		{"backslashes normalized", "src/util/helper.c", 3, "0x274", "helper"},
		{"windows spelling", `src\util\helper.c`, 3, "0x274", "helper"},
		{"absolute IDE path", "/home/dev/proj/src/main.c", 10, "0x132", "main"},
		{"windows absolute IDE path", `C:\work\proj\src\util\helper.c`, 3, "0x274", "helper"},
		{"base name only", "main.c", 8, "0x130", "main"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, ok := m.Resolve(tt.file, tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.want, loc.Address)
			assert.Equal(t, tt.fn, loc.Function)
		})
	}
}

func TestResolve_Unresolved(t *testing.T) {
	m := parseSample(t)

	_, ok := m.Resolve("src/main.c", 99)
	assert.False(t, ok)
	_, ok = m.Resolve("other.c", 8)
	assert.False(t, ok)
	_, ok = m.Resolve("src/main.c", 0)
	assert.False(t, ok)
}

func TestResolve_FirstOccurrenceWins(t *testing.T) {
	m := parseSample(t)

	loc, ok := m.Resolve("src/main.c", 10)
	require.True(t, ok)
	assert.Equal(t, "0x132", loc.Address)

	_, ok = m.ReverseResolve("0x276")
	assert.False(t, ok, "the later duplicate is not indexed")
}

func TestForwardAndReverseAgree(t *testing.T) {
	m := parseSample(t)

	lines := m.Lines()
	require.Len(t, lines, 5)

	for _, loc := range lines {
		fwd, ok := m.Resolve(loc.File, loc.Line)
		require.True(t, ok, loc)
		assert.Equal(t, loc, fwd)

		rev, ok := m.ReverseResolve(loc.Address)
		require.True(t, ok, loc)
		assert.Equal(t, loc.File, rev.File)
		assert.Equal(t, loc.Line, rev.Line)
	}
}

func TestReverseResolve_AddressSpellings(t *testing.T) {
	m := parseSample(t)

	for _, addr := range []string{"0x132", "0X132", "132", "0x00000132", "00000132"} {
		loc, ok := m.ReverseResolve(addr)
		require.True(t, ok, addr)
		assert.Equal(t, 10, loc.Line, addr)
	}
}

func TestLocate(t *testing.T) {
	m := parseSample(t)

	loc, ok := m.Locate("0x134")
	require.True(t, ok)
	assert.Equal(t, 10, loc.Line)

	loc, ok = m.Locate("0x13a")
	require.True(t, ok)
	assert.Equal(t, 11, loc.Line)

	loc, ok = m.Locate("0x276")
	require.True(t, ok)
	assert.Equal(t, "src/util/helper.c", loc.File)

	_, ok = m.Locate("0x100")
	assert.False(t, ok)

	_, ok = m.Locate("zz")
	assert.False(t, ok)
}

func TestResolveFunction(t *testing.T) {
	m := parseSample(t)

	loc, ok := m.ResolveFunction("helper")
	require.True(t, ok)
	assert.Equal(t, "0x274", loc.Address)
	assert.Equal(t, "src/util/helper.c", loc.File)
	assert.Equal(t, 3, loc.Line)

	_, ok = m.ResolveFunction("missing")
	assert.False(t, ok)
}

func TestResolveAll(t *testing.T) {
	m := parseSample(t)

	resolved, unresolved := m.ResolveAll([]Declaration{
		{File: "src/main.c", Line: 10},
		{Function: "helper"},
		{File: "src/main.c", Line: 42},
		{Function: "nope"},
	})

	require.Len(t, resolved, 2)
	assert.Equal(t, "0x132", resolved[0].Address)
	assert.Equal(t, "0x274", resolved[1].Address)
	assert.Equal(t, []Declaration{{File: "src/main.c", Line: 42}, {Function: "nope"}}, unresolved)
}

func TestFunctionsAndVariables(t *testing.T) {
	m := parseSample(t)

	assert.Equal(t, []Function{
		{Name: "main", Address: "0x130"},
		{Name: "helper", Address: "0x274"},
	}, m.Functions())

	assert.Equal(t, []Variable{
		{Name: "counter", Address: "0x20000000", Size: 4, Section: ".bss"},
		{Name: "state", Address: "0x20000004", Size: 1, Section: ".bss", Static: true},
	}, m.Variables())
}

func TestNotLoaded(t *testing.T) {
	m := New()

	assert.False(t, m.Loaded())
	_, ok := m.Resolve("main.c", 10)
	assert.False(t, ok)
	_, ok = m.ResolveFunction("main")
	assert.False(t, ok)
	_, ok = m.ReverseResolve("0x132")
	assert.False(t, ok)
	_, ok = m.Locate("0x132")
	assert.False(t, ok)
	assert.Empty(t, m.Lines())
	assert.Empty(t, m.Functions())
	assert.Empty(t, m.Variables())

	resolved, unresolved := m.ResolveAll([]Declaration{{File: "main.c", Line: 10}})
	assert.Empty(t, resolved)
	assert.Len(t, unresolved, 1)

	var nilMapper *Mapper
	assert.False(t, nilMapper.Loaded())
}

func TestLookaheadWindow(t *testing.T) {
	listing := "; a.c:1\n\n\n\n     10:\t2001      \tmovs\tr0, #1\n"

	m, err := Parse(strings.NewReader(listing))
	require.NoError(t, err)
	_, ok := m.Resolve("a.c", 1)
	assert.True(t, ok)

	m, err = Parse(strings.NewReader(listing), WithLookahead(2))
	require.NoError(t, err)
	_, ok = m.Resolve("a.c", 1)
	assert.False(t, ok, "instruction is outside the window")
}

func TestLookaheadStopsAtLabelOrComment(t *testing.T) {
	listing := `; a.c:1
00000010 <f>:
      10:	2001      	movs	r0, #1
; a.c:2
; a.c:3
      12:	2002      	movs	r0, #2
`
	m, err := Parse(strings.NewReader(listing))
	require.NoError(t, err)

	_, ok := m.Resolve("a.c", 1)
	assert.False(t, ok)
	_, ok = m.Resolve("a.c", 2)
	assert.False(t, ok)
	loc, ok := m.Resolve("a.c", 3)
	require.True(t, ok)
	assert.Equal(t, "0x12", loc.Address)
}

func TestParse_SkipsMalformedLines(t *testing.T) {
	listing := `garbage here
; not a location
;: 
  zz:	nothing
  40:	not hex bytes
; b.c:5
  42:	2001      	movs	r0, #1
`
	m, err := Parse(strings.NewReader(listing))
	require.NoError(t, err)

	assert.Len(t, m.Lines(), 1)
	loc, ok := m.Resolve("b.c", 5)
	require.True(t, ok)
	assert.Equal(t, "0x42", loc.Address)
}

func TestParse_ReadErrorLeavesUnloaded(t *testing.T) {
	m, err := Parse(strings.NewReader(strings.Repeat("a", maxLineLength+10)))
	require.Error(t, err)
	require.NotNil(t, m)
	assert.False(t, m.Loaded())
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "firmware.lst")
	require.NoError(t, os.WriteFile(p, []byte(sampleListing), 0o600))

	m, err := Load(p)
	require.NoError(t, err)
	assert.True(t, m.Loaded())

	_, err = Load(filepath.Join(t.TempDir(), "missing.lst"))
	assert.Error(t, err)
}
