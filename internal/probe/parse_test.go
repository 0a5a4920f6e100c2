package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegisters(t *testing.T) {
	out := "Target halted\nR0: 0x00000001\n  sp : 0x20001000\nPC: 0x08000130\nxPSR: 0x61000000\n\ngarbage line\n"

	regs := ParseRegisters(out)
	require.Len(t, regs, 4)
	assert.Equal(t, RegisterInfo{Name: "R0", Value: "0x00000001", Description: "General purpose register 0"}, regs[0])
	assert.Equal(t, "sp", regs[1].Name)
	assert.Equal(t, "0x20001000", regs[1].Value)
	assert.Equal(t, "Program counter (R15)", regs[2].Description)
	assert.Equal(t, "Program status register", regs[3].Description)

	pc, ok := ProgramCounter(regs)
	require.True(t, ok)
	assert.Equal(t, "0x08000130", pc.Value)
}

func TestParseRegisters_IgnoresStatusLines(t *testing.T) {
	out := "Info: connected to target\nStatus: OK\nR0: 0x00000001\nR1: 42 (0x2a)\nPC: 0x08000130 <main+4>\nMode: thread\n"

	regs := ParseRegisters(out)
	require.Len(t, regs, 3)
	assert.Equal(t, []string{"R0", "R1", "PC"}, []string{regs[0].Name, regs[1].Name, regs[2].Name})
	assert.Equal(t, "42", regs[1].Value)
	assert.Equal(t, "0x08000130", regs[2].Value)
}

func TestParseRegisters_Empty(t *testing.T) {
	regs := ParseRegisters("")
	assert.NotNil(t, regs)
	assert.Empty(t, regs)

	_, ok := ProgramCounter(regs)
	assert.False(t, ok)
}

func TestParseRegister(t *testing.T) {
	r, ok := ParseRegister("PC: 0x08000130\n", "pc")
	require.True(t, ok)
	assert.Equal(t, "0x08000130", r.Value)

	r, ok = ParseRegister("0x20001000\n", "sp")
	require.True(t, ok)
	assert.Equal(t, RegisterInfo{Name: "sp", Value: "0x20001000", Description: "Stack pointer (R13)"}, r)

	_, ok = ParseRegister("", "pc")
	assert.False(t, ok)

	_, ok = ParseRegister("R0: 1\n", "pc")
	assert.False(t, ok)

	_, ok = ParseRegister("error: no target\n", "pc")
	assert.False(t, ok)

	_, ok = ParseRegister("not connected\n", "pc")
	assert.False(t, ok)
}

func TestParseMemory(t *testing.T) {
	tests := []struct {
		name   string
		output string
		data   string
		size   int
	}{
		{"word", "0x20000000: 0x0000002a\n", "0x0000002a", 4},
		{"bytes", "0x20000000: 2a 00\n", "2a 00", 2},
		{"no separator", "deadbeefcafe\n", "deadbeefcafe", 6},
		{"non-hex data", "0x20000000: hello\n", "hello", 4},
		{"empty", "", "", 4},
		{"leading blank lines", "\n\n0x0: ff\n", "ff", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMemory("0x20000000", tt.output)
			assert.Equal(t, "0x20000000", got.Address)
			assert.Equal(t, tt.data, got.Data)
			assert.Equal(t, tt.size, got.Size)
		})
	}
}

func TestDescribeRegister(t *testing.T) {
	assert.Equal(t, "Link register (R14)", DescribeRegister("LR"))
	assert.Empty(t, DescribeRegister("q0"))
}

func TestCommandArgs(t *testing.T) {
	assert.Equal(t, []string{"bp", "--clear", "--slot", "2"}, ClearSlotArgs("2"))
	assert.Equal(t, []string{"bp", "--clear", "0x132"}, ClearBreakpointArgs("0x132"))
	assert.Equal(t, []string{"bp", "--list"}, ListBreakpointsArgs())
	assert.Equal(t, []string{"write", "0x20000000", "0x1"}, WriteMemoryArgs("0x20000000", "0x1"))
}
