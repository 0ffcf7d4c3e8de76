package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/twistedxcom/agentmux/internal/session"
)

// Table column widths for list output.
const (
	colID   = 10
	colTask = 28
	colDir  = 36
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	workingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	deadStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	activeStyle  = lipgloss.NewStyle().Bold(true)
)

// normalizeArgs reorders args so flags come before positional arguments.
// The flag package stops parsing at the first non-flag argument, so
// "add /path -t title" would otherwise silently ignore -t.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)
			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") {
				continue
			}
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// pad truncates or right-pads s to the given display width, rune-aware.
func pad(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		return runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}

func printSessionTable(sessions []*session.Session, lastActiveID string) {
	if len(sessions) == 0 {
		fmt.Println("No sessions. Create one with: agentmux add -t \"task\"")
		return
	}

	fmt.Println(headerStyle.Render(
		pad("ID", colID) + pad("STATE", 10) + pad("TASK", colTask) + pad("DIRECTORY", colDir)))

	for _, s := range sessions {
		state, style := "dead", deadStyle
		if s.IsRunning() {
			state, style = "running", idleStyle
		}
		task := s.TaskLabel
		if task == "" {
			task = "-"
		}
		line := pad(s.Suffix(), colID) +
			style.Render(pad(state, 10)) +
			pad(task, colTask) +
			pad(collapseHome(s.WorkingDirectory), colDir)
		if s.ID == lastActiveID {
			line = activeStyle.Render(line)
		}
		fmt.Println(line)
	}
}

func printSessionsJSON(sessions []*session.Session) error {
	type row struct {
		ID               string    `json:"id"`
		Suffix           string    `json:"suffix"`
		Task             string    `json:"task,omitempty"`
		WorkingDirectory string    `json:"working_directory"`
		MultiplexerName  string    `json:"multiplexer_name"`
		Running          bool      `json:"running"`
		CreatedAt        time.Time `json:"created_at"`
	}
	rows := make([]row, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, row{
			ID:               s.ID,
			Suffix:           s.Suffix(),
			Task:             s.TaskLabel,
			WorkingDirectory: s.WorkingDirectory,
			MultiplexerName:  s.MultiplexerName,
			Running:          s.IsRunning(),
			CreatedAt:        s.CreatedAt,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// collapseHome shortens a path under $HOME to ~/...
func collapseHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+string(os.PathSeparator)) {
		return "~" + path[len(home):]
	}
	return path
}
