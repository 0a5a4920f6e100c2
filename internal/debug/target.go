package debug

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/coral-mesh/mcudbg/internal/addrmap"
	"github.com/coral-mesh/mcudbg/internal/breakpoint"
	"github.com/coral-mesh/mcudbg/internal/probe"
)

const placeholderValue = "0x00000000"

var placeholderRegisterNames = []string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc", "xpsr",
}

func placeholderRegisters() []probe.RegisterInfo {
	regs := make([]probe.RegisterInfo, len(placeholderRegisterNames))
	for i, name := range placeholderRegisterNames {
		regs[i] = probe.RegisterInfo{Name: name, Value: placeholderValue, Description: probe.DescribeRegister(name)}
	}
	return regs
}

// commandSession returns the session a transport command may run against. It
// reports offline sessions so callers can substitute placeholders.
func (c *Controller) commandSession() (s Session, offline bool, err error) {
	s, running, err := c.current()
	if err != nil {
		return Session{}, false, err
	}
	if s.Board.Offline {
		return s, true, nil
	}
	if running {
		return Session{}, false, ErrTargetRunning
	}
	return s, false, nil
}

// ReadRegisters reads every register. Offline sessions get zeroed placeholders.
func (c *Controller) ReadRegisters(ctx context.Context) ([]probe.RegisterInfo, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, offline, err := c.commandSession()
	if err != nil {
		return nil, err
	}
	if offline {
		return placeholderRegisters(), nil
	}

	regs, err := c.readAll(ctx, s.Board.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to read registers: %w", err)
	}
	c.mu.Lock()
	c.registers = regs
	c.mu.Unlock()
	return regs, nil
}

// ReadRegister reads one register by name.
func (c *Controller) ReadRegister(ctx context.Context, name string) (probe.RegisterInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return probe.RegisterInfo{}, fmt.Errorf("register name is required")
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, offline, err := c.commandSession()
	if err != nil {
		return probe.RegisterInfo{}, err
	}
	if offline {
		return probe.RegisterInfo{Name: name, Value: placeholderValue, Description: probe.DescribeRegister(name)}, nil
	}

	out, err := c.transport.Run(ctx, s.Board.Port, probe.ReadRegisterArgs(name)...)
	if err != nil {
		return probe.RegisterInfo{}, fmt.Errorf("failed to read register %s: %w", name, err)
	}
	reg, ok := probe.ParseRegister(out, name)
	if !ok {
		return probe.RegisterInfo{}, fmt.Errorf("register %s not found in probe output", name)
	}
	return reg, nil
}

// ReadMemory reads the word at address.
func (c *Controller) ReadMemory(ctx context.Context, address string) (probe.MemoryReadResult, error) {
	if _, err := addrmap.ParseAddress(address); err != nil {
		return probe.MemoryReadResult{}, fmt.Errorf("invalid address %q: %w", address, err)
	}
	address = addrmap.FormatAddress(address)

	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, offline, err := c.commandSession()
	if err != nil {
		return probe.MemoryReadResult{}, err
	}
	if offline {
		return probe.MemoryReadResult{Address: address, Data: placeholderValue, Size: 4}, nil
	}

	out, err := c.transport.Run(ctx, s.Board.Port, probe.ReadMemoryArgs(address)...)
	if err != nil {
		return probe.MemoryReadResult{}, fmt.Errorf("failed to read memory at %s: %w", address, err)
	}
	return probe.ParseMemory(address, out), nil
}

// WriteMemory writes value at address. It is a no-op offline.
func (c *Controller) WriteMemory(ctx context.Context, address, value string) error {
	if _, err := addrmap.ParseAddress(address); err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("value is required")
	}
	address = addrmap.FormatAddress(address)

	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, offline, err := c.commandSession()
	if err != nil {
		return err
	}
	if offline {
		c.logger.Debug().Str("address", address).Msg("Ignoring memory write in offline session")
		return nil
	}

	if _, err := c.transport.Run(ctx, s.Board.Port, probe.WriteMemoryArgs(address, value)...); err != nil {
		return fmt.Errorf("failed to write memory at %s: %w", address, err)
	}
	return nil
}

// deviceSession returns the session for a breakpoint slot command.
func (c *Controller) deviceSession() (Session, error) {
	s, running, err := c.hardware()
	if err != nil {
		return Session{}, err
	}
	if running {
		return Session{}, ErrTargetRunning
	}
	return s, nil
}

// SetBreakpoint arms a hardware breakpoint at addr.
func (c *Controller) SetBreakpoint(ctx context.Context, addr string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, err := c.deviceSession()
	if err != nil {
		return err
	}
	_, err = c.transport.Run(ctx, s.Board.Port, probe.SetBreakpointArgs(addrmap.FormatAddress(addr))...)
	return err
}

// ClearBreakpoint disarms the hardware breakpoint at addr.
func (c *Controller) ClearBreakpoint(ctx context.Context, addr string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, err := c.deviceSession()
	if err != nil {
		return err
	}
	_, err = c.transport.Run(ctx, s.Board.Port, probe.ClearBreakpointArgs(addrmap.FormatAddress(addr))...)
	return err
}

// ClearSlot disarms a hardware breakpoint slot.
func (c *Controller) ClearSlot(ctx context.Context, slot int) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, err := c.deviceSession()
	if err != nil {
		return err
	}
	_, err = c.transport.Run(ctx, s.Board.Port, probe.ClearSlotArgs(strconv.Itoa(slot))...)
	return err
}

// ListSlots queries the hardware breakpoint slots.
func (c *Controller) ListSlots(ctx context.Context) ([]breakpoint.Slot, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, err := c.deviceSession()
	if err != nil {
		return nil, err
	}
	out, err := c.transport.Run(ctx, s.Board.Port, probe.ListBreakpointsArgs()...)
	if err != nil {
		return nil, err
	}
	return breakpoint.ParseSlots(out), nil
}

var _ breakpoint.Device = (*Controller)(nil)
