// Package console implements the interactive debugger shell: a readline REPL
// over one debug controller that prints session events as they arrive.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/coral-mesh/mcudbg/internal/debug"
	"github.com/coral-mesh/mcudbg/internal/probe"
)

// ErrExit is returned by Execute for the quit command.
var ErrExit = errors.New("exit")

// Console runs commands against a controller and writes results to out.
type Console struct {
	ctrl  *debug.Controller
	start debug.StartOptions

	mu  sync.Mutex
	out io.Writer
}

// New creates a console. start is used by the start command when it is given
// no arguments.
func New(ctrl *debug.Controller, start debug.StartOptions, out io.Writer) *Console {
	return &Console{ctrl: ctrl, start: start, out: out}
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *Console) println(s string) {
	c.printf("%s\n", s)
}

// Watch prints session events until ctx is done.
func (c *Console) Watch(ctx context.Context) {
	events, unsubscribe := c.ctrl.Subscribe(16)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.println(eventLine(ev, c.frameFor(ev)))
		}
	}
}

func (c *Console) frameFor(ev debug.Event) string {
	if ev.Kind == debug.EventDeviceDisconnected {
		return ""
	}
	if pc, ok := probe.ProgramCounter(c.ctrl.LastRegisters()); ok {
		return c.ctrl.Describe(pc.Value).String()
	}
	return ""
}

// RunInteractive reads commands with line editing and history until quit or
// end of input.
func (c *Console) RunInteractive(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt(c.ctrl.State()),
		HistoryFile:     historyFile,
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer func() {
		_ = rl.Close()
	}()

	c.mu.Lock()
	c.out = rl.Stdout()
	c.mu.Unlock()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.Watch(watchCtx)

	c.println(hintStyle.Render("mcudbg console. Type 'help' for commands, 'quit' or Ctrl+D to exit."))

	for {
		rl.SetPrompt(prompt(c.ctrl.State()))
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			c.println(errorLine(err))
		}
	}
}

// RunScript executes one command per line of in, stopping at the first error.
func (c *Console) RunScript(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := c.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrExit) {
				return nil
			}
			return fmt.Errorf("%s: %w", line, err)
		}
	}
	return scanner.Err()
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, cmd := range commands {
		items = append(items, readline.PcItem(cmd.name))
	}
	return readline.NewPrefixCompleter(items...)
}
