package debug

import (
	"context"
	"errors"
	"fmt"

	"github.com/coral-mesh/mcudbg/internal/addrmap"
	"github.com/coral-mesh/mcudbg/internal/elfsym"
	"github.com/coral-mesh/mcudbg/internal/probe"
)

// VariableScope classifies a variable.
type VariableScope string

const (
	ScopeLocal    VariableScope = "local"
	ScopeGlobal   VariableScope = "global"
	ScopeStatic   VariableScope = "static"
	ScopeArgument VariableScope = "argument"
)

// VariableInfo is one entry of a variables snapshot.
type VariableInfo struct {
	Name    string        `json:"name" table:"NAME"`
	Address string        `json:"address,omitempty" table:"ADDRESS"`
	File    string        `json:"file,omitempty" table:"-"`
	Line    int           `json:"line,omitempty" table:"-"`
	Scope   VariableScope `json:"scope" table:"SCOPE"`
	Type    string        `json:"type,omitempty" table:"TYPE"`
	Value   string        `json:"value,omitempty" table:"VALUE"`
	Size    int           `json:"size,omitempty" table:"SIZE"`
}

// Variables returns a snapshot of the program's variables. They come from the
// listing's symbol table, else the image's symbol table, else the registers
// stand in so an active session always shows something. Values are read from
// the target only while it is halted.
func (c *Controller) Variables(ctx context.Context) ([]VariableInfo, error) {
	s, _, err := c.current()
	if err != nil {
		return nil, err
	}

	vars := listingVariables(c.workspace.Mapper())
	if len(vars) == 0 {
		vars = imageVariables(c.workspace.Symbols())
	}

	if len(vars) > 0 {
		if !s.Board.Offline && c.State() == StateHalted {
			c.readValues(ctx, vars)
		}
		return vars, nil
	}

	return c.registerVariables(ctx)
}

func listingVariables(m *addrmap.Mapper) []VariableInfo {
	var vars []VariableInfo
	for _, v := range m.Variables() {
		scope := ScopeGlobal
		if v.Static {
			scope = ScopeStatic
		}
		vars = append(vars, VariableInfo{
			Name:    v.Name,
			Address: v.Address,
			Scope:   scope,
			Size:    int(v.Size),
		})
	}
	return vars
}

func imageVariables(syms []elfsym.Symbol) []VariableInfo {
	var vars []VariableInfo
	for _, s := range elfsym.Variables(syms) {
		scope := ScopeGlobal
		if s.Scope == elfsym.ScopeLocal {
			scope = ScopeStatic
		}
		vars = append(vars, VariableInfo{
			Name:    s.Name,
			Address: s.Hex(),
			Scope:   scope,
			Size:    int(s.Size),
		})
	}
	return vars
}

// readValues fills in values for the first MaxVariableReads variables. Failed
// reads leave the value empty.
func (c *Controller) readValues(ctx context.Context, vars []VariableInfo) {
	for i := range vars {
		if i >= c.cfg.MaxVariableReads {
			c.logger.Debug().
				Int("variables", len(vars)).
				Int("read", c.cfg.MaxVariableReads).
				Msg("Variable value reads capped")
			return
		}
		mem, err := c.ReadMemory(ctx, vars[i].Address)
		if err != nil {
			if errors.Is(err, ErrTargetRunning) || errors.Is(err, ErrNoActiveSession) {
				return
			}
			c.logger.Debug().Err(err).Str("variable", vars[i].Name).Msg("Failed to read variable")
			continue
		}
		vars[i].Value = mem.Data
	}
}

func (c *Controller) registerVariables(ctx context.Context) ([]VariableInfo, error) {
	regs, err := c.ReadRegisters(ctx)
	if err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			return nil, err
		}
		c.mu.Lock()
		regs = c.registers
		c.mu.Unlock()
		if regs == nil {
			regs = placeholderRegisters()
		}
	}

	vars := make([]VariableInfo, len(regs))
	for i, r := range regs {
		vars[i] = VariableInfo{
			Name:  r.Name,
			Scope: ScopeLocal,
			Type:  "register",
			Value: r.Value,
		}
	}
	return vars, nil
}

// Frame is where the target is stopped.
type Frame struct {
	PC       string `json:"pc"`
	Function string `json:"function,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// Where reads the program counter and labels it with a source line from the
// listing, or the enclosing function from the image.
func (c *Controller) Where(ctx context.Context) (Frame, error) {
	if _, _, err := c.hardware(); err != nil {
		return Frame{}, err
	}

	pc, err := c.ReadRegister(ctx, "pc")
	if err != nil {
		return Frame{}, err
	}
	return c.Describe(pc.Value), nil
}

// Describe labels an address using the workspace artifacts.
func (c *Controller) Describe(address string) Frame {
	f := Frame{PC: address}
	if v, err := addrmap.ParseAddress(address); err == nil {
		f.PC = addrmap.FormatAddress(address)
		if loc, ok := c.workspace.Mapper().Locate(address); ok {
			f.Function, f.File, f.Line = loc.Function, loc.File, loc.Line
			return f
		}
		if v <= 0xffffffff {
			if sym, ok := elfsym.Lookup(elfsym.Functions(c.workspace.Symbols()), uint32(v)); ok {
				f.Function = sym.Name
			}
		}
	}
	return f
}

// LastRegisters returns the registers read most recently in this session.
func (c *Controller) LastRegisters() []probe.RegisterInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]probe.RegisterInfo(nil), c.registers...)
}

func (f Frame) String() string {
	switch {
	case f.File != "" && f.Function != "":
		return fmt.Sprintf("%s in %s at %s:%d", f.PC, f.Function, f.File, f.Line)
	case f.File != "":
		return fmt.Sprintf("%s at %s:%d", f.PC, f.File, f.Line)
	case f.Function != "":
		return fmt.Sprintf("%s in %s", f.PC, f.Function)
	default:
		return f.PC
	}
}
