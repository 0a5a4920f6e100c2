package console

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/coral-mesh/mcudbg/internal/debug"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	stopStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	disconnectStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func prompt(st debug.State) string {
	return promptStyle.Render(fmt.Sprintf("mcudbg(%s)>", st)) + " "
}

// eventLine renders one session event for the console.
func eventLine(ev debug.Event, frame string) string {
	stamp := hintStyle.Render(ev.Time.Format(time.TimeOnly))
	switch ev.Kind {
	case debug.EventDeviceDisconnected:
		msg := "device disconnected"
		if ev.Reason != "" {
			msg += ": " + ev.Reason
		}
		return fmt.Sprintf("%s %s", stamp, disconnectStyle.Render(msg))
	case debug.EventBreakpointHit:
		return fmt.Sprintf("%s %s %s", stamp, stopStyle.Render("breakpoint hit"), frame)
	default:
		if frame == "" {
			return fmt.Sprintf("%s %s", stamp, stopStyle.Render(ev.Kind.String()))
		}
		return fmt.Sprintf("%s %s %s", stamp, stopStyle.Render(ev.Kind.String()), frame)
	}
}

func errorLine(err error) string {
	return errorStyle.Render("error:") + " " + err.Error()
}
