package probe

import "strings"

var cortexMRegisters = map[string]string{
	"r0":        "General purpose register 0",
	"r1":        "General purpose register 1",
	"r2":        "General purpose register 2",
	"r3":        "General purpose register 3",
	"r4":        "General purpose register 4",
	"r5":        "General purpose register 5",
	"r6":        "General purpose register 6",
	"r7":        "General purpose register 7 (frame pointer)",
	"r8":        "General purpose register 8",
	"r9":        "General purpose register 9",
	"r10":       "General purpose register 10",
	"r11":       "General purpose register 11",
	"r12":       "Intra-procedure call scratch register",
	"sp":        "Stack pointer (R13)",
	"r13":       "Stack pointer",
	"lr":        "Link register (R14)",
	"r14":       "Link register",
	"pc":        "Program counter (R15)",
	"r15":       "Program counter",
	"xpsr":      "Program status register",
	"psr":       "Program status register",
	"msp":       "Main stack pointer",
	"psp":       "Process stack pointer",
	"primask":   "Priority mask",
	"basepri":   "Base priority mask",
	"faultmask": "Fault mask",
	"control":   "Control register",
}

// DescribeRegister returns a short description of a Cortex-M register, or ""
// for names it does not know.
func DescribeRegister(name string) string {
	return cortexMRegisters[strings.ToLower(name)]
}

// ProgramCounter finds the PC among regs.
func ProgramCounter(regs []RegisterInfo) (RegisterInfo, bool) {
	for _, r := range regs {
		switch strings.ToLower(r.Name) {
		case "pc", "r15":
			return r, true
		}
	}
	return RegisterInfo{}, false
}
