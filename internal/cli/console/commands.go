package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/coral-mesh/mcudbg/internal/addrmap"
	"github.com/coral-mesh/mcudbg/internal/cli/helpers"
)

type command struct {
	name    string
	aliases []string
	usage   string
	help    string
}

var commands = []command{
	{name: "start", usage: "start [port|offline]", help: "start a debug session"},
	{name: "stop", help: "end the debug session"},
	{name: "status", help: "show the session state"},
	{name: "halt", help: "halt the target"},
	{name: "continue", aliases: []string{"c", "resume"}, help: "let the target run until it halts"},
	{name: "step", aliases: []string{"s"}, help: "execute one instruction"},
	{name: "regs", usage: "regs [name]", help: "read registers"},
	{name: "read", usage: "read <address>", help: "read one word of memory"},
	{name: "write", usage: "write <address> <value>", help: "write one word of memory"},
	{name: "break", aliases: []string{"b"}, usage: "break <file:line|function>", help: "declare and arm a breakpoint"},
	{name: "delete", usage: "delete <id|address>", help: "remove a breakpoint"},
	{name: "enable", usage: "enable <id|address>", help: "arm a breakpoint"},
	{name: "disable", usage: "disable <id|address>", help: "disarm a breakpoint"},
	{name: "breakpoints", aliases: []string{"bl"}, usage: "breakpoints [sync]", help: "list breakpoints"},
	{name: "vars", help: "list variables"},
	{name: "where", help: "show the current location"},
	{name: "resolve", usage: "resolve <file:line|function|address>", help: "look up a location"},
	{name: "symbols", usage: "symbols [filter]", help: "list firmware symbols"},
	{name: "reload", help: "re-read the build artifacts"},
	{name: "help", aliases: []string{"?"}, help: "show this help"},
	{name: "quit", aliases: []string{"exit", "q"}, help: "leave the console"},
}

func lookup(word string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == word {
			return cmd, true
		}
		for _, alias := range cmd.aliases {
			if alias == word {
				return cmd, true
			}
		}
	}
	return command{}, false
}

// Execute runs one console command line.
func (c *Console) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, ok := lookup(fields[0])
	if !ok {
		return fmt.Errorf("unknown command %q (try 'help')", fields[0])
	}
	args := fields[1:]

	switch cmd.name {
	case "start":
		return c.cmdStart(ctx, args)
	case "stop":
		return c.ctrl.Stop(ctx)
	case "status":
		return c.cmdStatus()
	case "halt":
		_, err := c.ctrl.Halt(ctx)
		if err != nil {
			return err
		}
		return c.cmdWhere()
	case "continue":
		if err := c.ctrl.Resume(ctx); err != nil {
			return err
		}
		c.println(hintStyle.Render("running"))
		return nil
	case "step":
		if _, err := c.ctrl.Step(ctx); err != nil {
			return err
		}
		return c.cmdWhere()
	case "regs":
		return c.cmdRegs(ctx, args)
	case "read":
		if len(args) != 1 {
			return usageError(cmd)
		}
		mem, err := c.ctrl.ReadMemory(ctx, args[0])
		if err != nil {
			return err
		}
		c.printf("%s: %s\n", mem.Address, mem.Data)
		return nil
	case "write":
		if len(args) != 2 {
			return usageError(cmd)
		}
		return c.ctrl.WriteMemory(ctx, args[0], args[1])
	case "break":
		if len(args) != 1 {
			return usageError(cmd)
		}
		return c.cmdBreak(ctx, args[0])
	case "delete", "enable", "disable":
		if len(args) != 1 {
			return usageError(cmd)
		}
		return c.cmdBreakpointRef(ctx, cmd.name, args[0])
	case "breakpoints":
		return c.cmdBreakpoints(ctx, args)
	case "vars":
		vars, err := c.ctrl.Variables(ctx)
		if err != nil {
			return err
		}
		return c.table(vars)
	case "where":
		return c.cmdWhere()
	case "resolve":
		if len(args) != 1 {
			return usageError(cmd)
		}
		loc, err := c.ctrl.Workspace().Lookup(args[0])
		if err != nil {
			return err
		}
		return c.table([]addrmap.Location{loc})
	case "symbols":
		return c.cmdSymbols(args)
	case "reload":
		if moved := c.ctrl.ReloadWorkspace(); len(moved) > 0 {
			c.printf("%d breakpoint(s) moved or lost their address: %s\n", len(moved), strings.Join(moved, ", "))
		}
		return nil
	case "help":
		c.printHelp()
		return nil
	case "quit":
		return ErrExit
	}
	return nil
}

func usageError(cmd command) error {
	return fmt.Errorf("usage: %s", cmd.usage)
}

func (c *Console) table(data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return helpers.Print(c.out, string(helpers.FormatTable), data)
}

func (c *Console) cmdStart(ctx context.Context, args []string) error {
	opts := c.start
	if len(args) > 0 {
		if args[0] == "offline" {
			opts.AllowOffline = true
			opts.Port = ""
		} else {
			opts.Port = args[0]
		}
	}

	s, err := c.ctrl.Start(ctx, opts)
	if err != nil {
		return err
	}
	c.printf("session %s on %s\n", s.ID, s.Board)
	return nil
}

func (c *Console) cmdStatus() error {
	st := c.ctrl.Status()
	c.printf("state:       %s\n", st.State)
	if st.Session != nil {
		c.printf("session:     %s\n", st.Session.ID)
		c.printf("board:       %s\n", st.Session.Board)
	}
	c.printf("breakpoints: %d declared, %d armed of %d slots\n", st.Breakpoints, st.Armed, c.ctrl.Breakpoints().Capacity())
	c.printf("listing:     %t\n", st.Listing)
	return nil
}

func (c *Console) cmdWhere() error {
	regs := c.ctrl.LastRegisters()
	for _, r := range regs {
		if strings.EqualFold(r.Name, "pc") {
			c.println(c.ctrl.Describe(r.Value).String())
			return nil
		}
	}
	c.println(hintStyle.Render("location unknown"))
	return nil
}

func (c *Console) cmdRegs(ctx context.Context, args []string) error {
	if len(args) == 1 {
		reg, err := c.ctrl.ReadRegister(ctx, args[0])
		if err != nil {
			return err
		}
		c.printf("%s = %s\n", reg.Name, reg.Value)
		return nil
	}
	regs, err := c.ctrl.ReadRegisters(ctx)
	if err != nil {
		return err
	}
	return c.table(regs)
}

func (c *Console) cmdBreak(ctx context.Context, where string) error {
	decl, err := addrmap.ParseDeclaration(where)
	if err != nil {
		return err
	}

	bps := c.ctrl.Breakpoints()
	bp, err := bps.Declare(decl)
	if err != nil {
		return err
	}
	if bp.Address == "" {
		c.printf("breakpoint %s declared at %s (no address yet)\n", bp.ID, bp.Location)
		return nil
	}
	if st := c.ctrl.Status(); st.Session == nil || st.Session.Board.Offline || st.Monitoring {
		c.printf("breakpoint %s declared at %s (%s)\n", bp.ID, bp.Location, bp.Address)
		return nil
	}

	bp, err = bps.Enable(ctx, bp.ID)
	if err != nil {
		return fmt.Errorf("breakpoint %s declared but not armed: %w", bp.ID, err)
	}
	c.printf("breakpoint %s armed at %s (%s, slot %d)\n", bp.ID, bp.Location, bp.Address, bp.Slot)
	return nil
}

func (c *Console) cmdBreakpointRef(ctx context.Context, action, ref string) error {
	bps := c.ctrl.Breakpoints()
	switch action {
	case "delete":
		return bps.Remove(ctx, ref)
	case "enable":
		_, err := bps.Enable(ctx, ref)
		return err
	default:
		_, err := bps.Disable(ctx, ref)
		return err
	}
}

func (c *Console) cmdBreakpoints(ctx context.Context, args []string) error {
	bps := c.ctrl.Breakpoints()
	if len(args) == 1 && args[0] == "sync" {
		report, err := bps.Sync(ctx)
		if err != nil {
			return err
		}
		for _, s := range report.Strays {
			c.printf("slot %d enabled at %s is not a declared breakpoint\n", s.Index, s.Address)
		}
	}

	list := bps.List()
	if len(list) == 0 {
		c.println(hintStyle.Render("no breakpoints"))
		return nil
	}
	return c.table(list)
}

func (c *Console) cmdSymbols(args []string) error {
	syms := c.ctrl.Workspace().Symbols()
	if len(args) == 1 {
		filtered := syms[:0:0]
		for _, s := range syms {
			if strings.Contains(s.Name, args[0]) {
				filtered = append(filtered, s)
			}
		}
		syms = filtered
	}
	if len(syms) == 0 {
		c.println(hintStyle.Render("no symbols (is an image configured?)"))
		return nil
	}
	return c.table(syms)
}

func (c *Console) printHelp() {
	width := 0
	for _, cmd := range commands {
		width = max(width, len(usage(cmd)))
	}
	for _, cmd := range commands {
		line := fmt.Sprintf("  %-*s  %s", width, usage(cmd), cmd.help)
		if len(cmd.aliases) > 0 {
			line += hintStyle.Render(" (" + strings.Join(cmd.aliases, ", ") + ")")
		}
		c.println(line)
	}
}

func usage(cmd command) string {
	if cmd.usage != "" {
		return cmd.usage
	}
	return cmd.name
}
