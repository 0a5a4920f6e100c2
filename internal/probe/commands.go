package probe

// Subcommands understood by the probe tool.
const (
	CmdHalt    = "halt"
	CmdResume  = "resume"
	CmdStep    = "step"
	CmdReadReg = "read-reg"
	CmdReadAll = "read-all"
	CmdRead    = "read"
	CmdWrite   = "write"
	CmdBP      = "bp"
)

// ReadRegisterArgs reads a single register.
func ReadRegisterArgs(name string) []string { return []string{CmdReadReg, name} }

// ReadMemoryArgs reads the word at address.
func ReadMemoryArgs(address string) []string { return []string{CmdRead, address} }

// WriteMemoryArgs writes value at address.
func WriteMemoryArgs(address, value string) []string { return []string{CmdWrite, address, value} }

// SetBreakpointArgs arms a hardware breakpoint at address.
func SetBreakpointArgs(address string) []string { return []string{CmdBP, address} }

// ClearBreakpointArgs disarms the breakpoint at address.
func ClearBreakpointArgs(address string) []string { return []string{CmdBP, "--clear", address} }

// ClearSlotArgs disarms a breakpoint slot by index.
func ClearSlotArgs(slot string) []string { return []string{CmdBP, "--clear", "--slot", slot} }

// ListBreakpointsArgs lists the hardware breakpoint slots.
func ListBreakpointsArgs() []string { return []string{CmdBP, "--list"} }
