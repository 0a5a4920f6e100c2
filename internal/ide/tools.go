package ide

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/coral-mesh/mcudbg/internal/addrmap"
	"github.com/coral-mesh/mcudbg/internal/breakpoint"
	"github.com/coral-mesh/mcudbg/internal/debug"
	"github.com/coral-mesh/mcudbg/internal/elfsym"
	"github.com/coral-mesh/mcudbg/internal/probe"
)

func (s *Server) registerTools() {
	s.registerTool("mcudbg_start",
		"Start a debug session on the attached board. The port is auto-detected unless given.",
		debug.StartOptions{}, s.handleStart)
	s.registerTool("mcudbg_stop",
		"Stop the debug session and release the probe.",
		EmptyInput{}, s.handleStop)
	s.registerTool("mcudbg_status",
		"Report the session state, the board and the breakpoint summary.",
		EmptyInput{}, s.handleStatus)
	s.registerTool("mcudbg_halt",
		"Halt the target and return its registers.",
		EmptyInput{}, s.handleHalt)
	s.registerTool("mcudbg_resume",
		"Let the target run. A breakpoint hit is reported as an event notification.",
		EmptyInput{}, s.handleResume)
	s.registerTool("mcudbg_step",
		"Execute one instruction and return the registers and the new location.",
		EmptyInput{}, s.handleStep)
	s.registerTool("mcudbg_registers",
		"Read all CPU registers, or one register by name.",
		RegistersInput{}, s.handleRegisters)
	s.registerTool("mcudbg_read_memory",
		"Read one word of target memory.",
		ReadMemoryInput{}, s.handleReadMemory)
	s.registerTool("mcudbg_write_memory",
		"Write one word of target memory.",
		WriteMemoryInput{}, s.handleWriteMemory)
	s.registerTool("mcudbg_breakpoint_add",
		"Declare a breakpoint at file:line or at a function and arm it when a session is active.",
		BreakpointAddInput{}, s.handleBreakpointAdd)
	s.registerTool("mcudbg_breakpoint_remove",
		"Disarm and forget a breakpoint.",
		BreakpointRefInput{}, s.handleBreakpointRemove)
	s.registerTool("mcudbg_breakpoint_toggle",
		"Arm or disarm a declared breakpoint.",
		BreakpointToggleInput{}, s.handleBreakpointToggle)
	s.registerTool("mcudbg_breakpoints",
		"List declared breakpoints with their state and hardware slot.",
		BreakpointsInput{}, s.handleBreakpoints)
	s.registerTool("mcudbg_variables",
		"List program variables with their values while the target is halted.",
		EmptyInput{}, s.handleVariables)
	s.registerTool("mcudbg_resolve",
		"Map file:line or a function to an address, or an address to its source line.",
		ResolveInput{}, s.handleResolve)
	s.registerTool("mcudbg_symbols",
		"List functions and variables of the firmware image.",
		SymbolsInput{}, s.handleSymbols)
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input debug.StartOptions
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := s.ctrl.Start(ctx, input); err != nil {
		return errorResult("failed to start session", err)
	}
	return jsonResult(s.ctrl.Status())
}

func (s *Server) handleStop(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ctrl.Stop(ctx); err != nil {
		return errorResult("failed to stop session", err)
	}
	return jsonResult(s.ctrl.Status())
}

func (s *Server) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.ctrl.Status())
}

type haltResult struct {
	State     debug.State          `json:"state"`
	Frame     debug.Frame          `json:"frame"`
	Registers []probe.RegisterInfo `json:"registers"`
}

func (s *Server) stopped(regs []probe.RegisterInfo) haltResult {
	res := haltResult{State: s.ctrl.State(), Registers: regs}
	if pc, ok := probe.ProgramCounter(regs); ok {
		res.Frame = s.ctrl.Describe(pc.Value)
	}
	return res
}

func (s *Server) handleHalt(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	regs, err := s.ctrl.Halt(ctx)
	if err != nil {
		return errorResult("failed to halt target", err)
	}
	return jsonResult(s.stopped(regs))
}

func (s *Server) handleResume(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ctrl.Resume(ctx); err != nil {
		return errorResult("failed to resume target", err)
	}
	return jsonResult(s.ctrl.Status())
}

func (s *Server) handleStep(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	regs, err := s.ctrl.Step(ctx)
	if err != nil {
		return errorResult("failed to step target", err)
	}
	return jsonResult(s.stopped(regs))
}

func (s *Server) handleRegisters(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input RegistersInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if input.Name != nil && *input.Name != "" {
		reg, err := s.ctrl.ReadRegister(ctx, *input.Name)
		if err != nil {
			return errorResult("failed to read register", err)
		}
		return jsonResult(reg)
	}

	regs, err := s.ctrl.ReadRegisters(ctx)
	if err != nil {
		return errorResult("failed to read registers", err)
	}
	return jsonResult(regs)
}

func (s *Server) handleReadMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ReadMemoryInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	mem, err := s.ctrl.ReadMemory(ctx, input.Address)
	if err != nil {
		return errorResult("failed to read memory", err)
	}
	return jsonResult(mem)
}

func (s *Server) handleWriteMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input WriteMemoryInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.ctrl.WriteMemory(ctx, input.Address, input.Value); err != nil {
		return errorResult("failed to write memory", err)
	}
	return jsonResult(map[string]string{
		"address": addrmap.FormatAddress(input.Address),
		"value":   input.Value,
	})
}

func (s *Server) handleBreakpointAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input BreakpointAddInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var decl addrmap.Declaration
	if input.Function != nil {
		decl.Function = strings.TrimSpace(*input.Function)
	}
	if input.File != nil {
		decl.File = *input.File
	}
	if input.Line != nil {
		decl.Line = *input.Line
	}

	bp, err := s.ctrl.Breakpoints().Declare(decl)
	if err != nil {
		return errorResult("failed to declare breakpoint", err)
	}

	enable := input.Enable == nil || *input.Enable
	if enable && s.armable() && bp.State == breakpoint.StateResolved {
		armed, err := s.ctrl.Breakpoints().Enable(ctx, bp.ID)
		if err != nil {
			return errorResult(fmt.Sprintf("breakpoint %s declared but not armed", bp.ID), err)
		}
		bp = armed
	}
	return jsonResult(bp)
}

// armable reports whether breakpoint commands can reach the device now.
func (s *Server) armable() bool {
	st := s.ctrl.State()
	return st == debug.StateHalted || (st == debug.StateRunning && !s.ctrl.Status().Monitoring)
}

func (s *Server) handleBreakpointRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input BreakpointRefInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.ctrl.Breakpoints().Remove(ctx, input.ID); err != nil {
		return errorResult("failed to remove breakpoint", err)
	}
	return jsonResult(s.ctrl.Breakpoints().List())
}

func (s *Server) handleBreakpointToggle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input BreakpointToggleInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var (
		bp  breakpoint.Breakpoint
		err error
	)
	if input.Enabled {
		bp, err = s.ctrl.Breakpoints().Enable(ctx, input.ID)
	} else {
		bp, err = s.ctrl.Breakpoints().Disable(ctx, input.ID)
	}
	if err != nil {
		return errorResult("failed to toggle breakpoint", err)
	}
	return jsonResult(bp)
}

type breakpointsResult struct {
	Capacity    int                     `json:"capacity"`
	Breakpoints []breakpoint.Breakpoint `json:"breakpoints"`
	Sync        *breakpoint.SyncReport  `json:"sync,omitempty"`
}

func (s *Server) handleBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input BreakpointsInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := breakpointsResult{Capacity: s.ctrl.Breakpoints().Capacity()}
	if input.Sync != nil && *input.Sync {
		report, err := s.ctrl.Breakpoints().Sync(ctx)
		if err != nil {
			return errorResult("failed to sync breakpoints", err)
		}
		res.Sync = &report
	}
	res.Breakpoints = s.ctrl.Breakpoints().List()
	return jsonResult(res)
}

func (s *Server) handleVariables(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vars, err := s.ctrl.Variables(ctx)
	if err != nil {
		return errorResult("failed to list variables", err)
	}
	return jsonResult(vars)
}

func (s *Server) handleResolve(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ResolveInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	loc, err := s.ctrl.Workspace().Lookup(input.Location)
	if err != nil {
		if errors.Is(err, debug.ErrUnknownLocation) && !s.ctrl.Workspace().Mapper().Loaded() {
			return mcp.NewToolResultError(fmt.Sprintf("%v (no disassembly listing loaded)", err)), nil
		}
		return errorResult("failed to resolve location", err)
	}
	return jsonResult(loc)
}

// SymbolInfo is one entry of the symbols listing.
type SymbolInfo struct {
	Name    string `json:"name" table:"NAME"`
	Address string `json:"address" table:"ADDRESS"`
	Kind    string `json:"kind" table:"KIND"`
	Size    uint32 `json:"size,omitempty" table:"SIZE"`
	Scope   string `json:"scope,omitempty" table:"SCOPE"`
}

// Symbols lists the symbols of the workspace image, or of the listing when no
// image is available.
func Symbols(ws *debug.Workspace) []SymbolInfo {
	var out []SymbolInfo
	if syms := ws.Symbols(); len(syms) > 0 {
		for _, sym := range syms {
			out = append(out, SymbolInfo{
				Name:    sym.Name,
				Address: sym.Hex(),
				Kind:    string(sym.Kind),
				Size:    sym.Size,
				Scope:   string(sym.Scope),
			})
		}
		return out
	}

	m := ws.Mapper()
	for _, fn := range m.Functions() {
		out = append(out, SymbolInfo{Name: fn.Name, Address: fn.Address, Kind: string(elfsym.KindFunction)})
	}
	for _, v := range m.Variables() {
		scope := string(elfsym.ScopeGlobal)
		if v.Static {
			scope = string(elfsym.ScopeLocal)
		}
		out = append(out, SymbolInfo{Name: v.Name, Address: v.Address, Kind: string(elfsym.KindVariable), Size: v.Size, Scope: scope})
	}
	return out
}

func (s *Server) handleSymbols(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SymbolsInput
	if err := bindArguments(request, &input); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := []SymbolInfo{}
	for _, sym := range Symbols(s.ctrl.Workspace()) {
		if input.Kind != nil && *input.Kind != "" && sym.Kind != *input.Kind {
			continue
		}
		if input.Filter != nil && !strings.Contains(sym.Name, *input.Filter) {
			continue
		}
		out = append(out, sym)
	}
	return jsonResult(out)
}
