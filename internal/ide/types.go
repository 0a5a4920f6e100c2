package ide

// Tool inputs. Their JSON schemas are reflected for the MCP tool listing, so
// the jsonschema descriptions are what the IDE shows.

// EmptyInput is the input of tools without arguments.
type EmptyInput struct{}

// RegistersInput selects registers to read.
type RegistersInput struct {
	Name *string `json:"name,omitempty" jsonschema:"description=Single register to read (e.g. 'pc' 'r0'); all registers when omitted"`
}

// ReadMemoryInput addresses a memory read.
type ReadMemoryInput struct {
	Address string `json:"address" jsonschema:"description=Hex address of the word to read (e.g. '0x20000000')"`
}

// WriteMemoryInput addresses a memory write.
type WriteMemoryInput struct {
	Address string `json:"address" jsonschema:"description=Hex address of the word to write"`
	Value   string `json:"value" jsonschema:"description=Value to write as understood by the probe tool (e.g. '0x2a')"`
}

// BreakpointAddInput declares a breakpoint.
type BreakpointAddInput struct {
	File     *string `json:"file,omitempty" jsonschema:"description=Source file as known to the IDE; matched by trailing path components"`
	Line     *int    `json:"line,omitempty" jsonschema:"description=1-based source line; required with file"`
	Function *string `json:"function,omitempty" jsonschema:"description=Function name; alternative to file and line"`
	Enable   *bool   `json:"enable,omitempty" jsonschema:"description=Arm the breakpoint on the target right away (default true)"`
}

// BreakpointRefInput identifies a breakpoint.
type BreakpointRefInput struct {
	ID string `json:"id" jsonschema:"description=Breakpoint ID or its address"`
}

// BreakpointToggleInput arms or disarms a breakpoint.
type BreakpointToggleInput struct {
	ID      string `json:"id" jsonschema:"description=Breakpoint ID or its address"`
	Enabled bool   `json:"enabled" jsonschema:"description=true to arm the breakpoint and false to disarm it"`
}

// BreakpointsInput lists breakpoints.
type BreakpointsInput struct {
	Sync *bool `json:"sync,omitempty" jsonschema:"description=Reconcile with the slots reported by the target before listing"`
}

// ResolveInput looks up a location.
type ResolveInput struct {
	Location string `json:"location" jsonschema:"description=0x-prefixed address or file:line or a function name"`
}

// SymbolsInput lists symbols of the firmware image.
type SymbolsInput struct {
	Kind   *string `json:"kind,omitempty" jsonschema:"description=Restrict to one kind,enum=function,enum=variable"`
	Filter *string `json:"filter,omitempty" jsonschema:"description=Substring the symbol name must contain"`
}
